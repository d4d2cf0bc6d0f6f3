package version

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/timelessos/flint/internal/catalog"
	"github.com/timelessos/flint/internal/hashkind"
	"github.com/timelessos/flint/internal/manifest"
	"github.com/timelessos/flint/internal/store"
)

func setupInstalledRepo(t *testing.T) (repoDir, storeDir string) {
	t.Helper()
	repoDir = t.TempDir()
	keyDir := t.TempDir()
	storeDir = t.TempDir()

	if _, err := manifest.Create(repoDir, keyDir); err != nil {
		t.Fatalf("manifest.Create() failed: %v", err)
	}

	treeDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(treeDir, "bin.sh"), []byte("#!/bin/sh\necho hi"), 0o755); err != nil {
		t.Fatalf("write: %v", err)
	}
	chunks, err := store.SaveTree(treeDir, storeDir, hashkind.Blake3)
	if err != nil {
		t.Fatalf("SaveTree() failed: %v", err)
	}

	pkg := manifest.Package{ID: "curl", Chunks: chunks, Commands: []string{"bin.sh"}}
	if _, err := catalog.InsertPackage(repoDir, keyDir, pkg); err != nil {
		t.Fatalf("InsertPackage() failed: %v", err)
	}

	return repoDir, storeDir
}

func TestInstallThenSwitchThenGetInstalled(t *testing.T) {
	repoDir, storeDir := setupInstalledRepo(t)

	packageHash, err := InstallVersion(repoDir, storeDir, hashkind.Blake3, "curl")
	if err != nil {
		t.Fatalf("InstallVersion() failed: %v", err)
	}
	if packageHash == "" {
		t.Fatal("InstallVersion() returned empty package hash")
	}

	if err := SwitchVersion(repoDir, "curl", packageHash); err != nil {
		t.Fatalf("SwitchVersion() failed: %v", err)
	}

	link := filepath.Join(repoDir, catalog.InstalledDirName, "curl")
	target, err := os.Readlink(link)
	if err != nil {
		t.Fatalf("Readlink() failed: %v", err)
	}
	wantTarget := filepath.Join("..", catalog.VersionsDirName, "curl-"+packageHash)
	if target != wantTarget {
		t.Errorf("symlink target = %q, want %q", target, wantTarget)
	}

	installed, err := catalog.GetInstalledPackage(repoDir, "curl")
	if err != nil {
		t.Fatalf("GetInstalledPackage() failed: %v", err)
	}
	if installed.ID != "curl" {
		t.Errorf("GetInstalledPackage().ID = %q, want curl", installed.ID)
	}

	binPath := filepath.Join(link, "bin.sh")
	if _, err := os.Stat(binPath); err != nil {
		t.Errorf("materialized file missing through symlink: %v", err)
	}
}

func TestInstallVersionIsIdempotent(t *testing.T) {
	repoDir, storeDir := setupInstalledRepo(t)

	first, err := InstallVersion(repoDir, storeDir, hashkind.Blake3, "curl")
	if err != nil {
		t.Fatalf("first InstallVersion() failed: %v", err)
	}
	second, err := InstallVersion(repoDir, storeDir, hashkind.Blake3, "curl")
	if err != nil {
		t.Fatalf("second InstallVersion() failed: %v", err)
	}
	if first != second {
		t.Errorf("package hash changed across idempotent installs: %q != %q", first, second)
	}
}

func TestGetVersionsFiltersByID(t *testing.T) {
	repoDir, storeDir := setupInstalledRepo(t)

	packageHash, err := InstallVersion(repoDir, storeDir, hashkind.Blake3, "curl")
	if err != nil {
		t.Fatalf("InstallVersion() failed: %v", err)
	}

	versionsDir := filepath.Join(repoDir, catalog.VersionsDirName)
	if err := os.MkdirAll(filepath.Join(versionsDir, "wget-deadbeef"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	hashes, err := GetVersions(repoDir, "curl")
	if err != nil {
		t.Fatalf("GetVersions() failed: %v", err)
	}
	if len(hashes) != 1 || hashes[0] != packageHash {
		t.Errorf("GetVersions() = %v, want [%q]", hashes, packageHash)
	}
}

func TestRemoveVersionDeletesDirectory(t *testing.T) {
	repoDir, storeDir := setupInstalledRepo(t)

	packageHash, err := InstallVersion(repoDir, storeDir, hashkind.Blake3, "curl")
	if err != nil {
		t.Fatalf("InstallVersion() failed: %v", err)
	}

	if err := RemoveVersion(repoDir, "curl", packageHash); err != nil {
		t.Fatalf("RemoveVersion() failed: %v", err)
	}

	versionDir := filepath.Join(repoDir, catalog.VersionsDirName, "curl-"+packageHash)
	if _, err := os.Stat(versionDir); !os.IsNotExist(err) {
		t.Errorf("version directory still exists after removal")
	}
}

func TestCleanUsedKeepsOnlyInstalled(t *testing.T) {
	repoDir, storeDir := setupInstalledRepo(t)

	packageHash, err := InstallVersion(repoDir, storeDir, hashkind.Blake3, "curl")
	if err != nil {
		t.Fatalf("InstallVersion() failed: %v", err)
	}
	if err := SwitchVersion(repoDir, "curl", packageHash); err != nil {
		t.Fatalf("SwitchVersion() failed: %v", err)
	}

	danglingPath := filepath.Join(storeDir, "dangling1234420")
	if err := os.WriteFile(danglingPath, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	removed, err := CleanUsed(repoDir, storeDir)
	if err != nil {
		t.Fatalf("CleanUsed() failed: %v", err)
	}
	if len(removed) != 1 || removed[0] != "dangling1234420" {
		t.Fatalf("CleanUsed() removed = %v, want [dangling1234420]", removed)
	}
}
