// Package version implements the version & install layer: materializing
// versioned package trees, switching the current-version symlink, listing
// and removing versions, and the consumer-side garbage-collection mode.
package version

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/timelessos/flint/internal/catalog"
	"github.com/timelessos/flint/internal/ferr"
	"github.com/timelessos/flint/internal/hashkind"
	"github.com/timelessos/flint/internal/manifest"
	"github.com/timelessos/flint/internal/store"
)

// ChunkFetcher fetches any chunks missing from storeDir from a repository's
// declared mirrors, verifying each against its expected hash. A
// *mirror.Client satisfies this interface; it is defined here, rather than
// imported from internal/mirror, to keep this package the sole entry point
// for the high-level install workflow.
type ChunkFetcher interface {
	FetchChunks(ctx context.Context, mirrors []string, storeDir string, chunks []store.Chunk, kind hashkind.Kind) error
}

// Install is the high-level entry point from spec.md section 4.8: it
// consults mirrors to fetch any chunks missing from the local store, then
// performs InstallVersion followed by SwitchVersion.
func Install(ctx context.Context, fetcher ChunkFetcher, repoDir, storeDir string, kind hashkind.Kind, id string) (string, error) {
	m, err := manifest.ReadManifest(repoDir)
	if err != nil {
		return "", err
	}
	pkg, err := catalog.GetPackage(repoDir, id)
	if err != nil {
		return "", err
	}

	if fetcher != nil {
		if err := fetcher.FetchChunks(ctx, m.Mirrors, storeDir, pkg.Chunks, kind); err != nil {
			return "", err
		}
	}

	packageHash, err := InstallVersion(repoDir, storeDir, kind, id)
	if err != nil {
		return "", err
	}
	if err := SwitchVersion(repoDir, id, packageHash); err != nil {
		return "", err
	}
	return packageHash, nil
}

// versionDirName builds the versions/{id}-{hash} directory name.
func versionDirName(id, packageHash string) string {
	return id + "-" + packageHash
}

// InstallVersion materializes the package identified by id into
// versions/{id}-{package_hash} and writes its install.meta snapshot,
// returning package_hash. Rematerializing over an existing directory is
// permitted (idempotent).
func InstallVersion(repoDir, storeDir string, kind hashkind.Kind, id string) (string, error) {
	pkg, err := catalog.GetPackage(repoDir, id)
	if err != nil {
		return "", err
	}

	data, err := manifest.MarshalPackage(pkg)
	if err != nil {
		return "", err
	}
	packageHash, err := hashkind.Sum(kind, data)
	if err != nil {
		return "", err
	}

	versionDir := filepath.Join(repoDir, catalog.VersionsDirName, versionDirName(id, packageHash))
	if err := os.MkdirAll(versionDir, 0o755); err != nil {
		return "", ferr.Wrap(ferr.Io, "version.InstallVersion", versionDir, err)
	}

	if err := store.LoadTree(versionDir, storeDir, pkg.Chunks); err != nil {
		return "", err
	}

	metaPath := filepath.Join(versionDir, "install.meta")
	if err := os.WriteFile(metaPath, data, 0o644); err != nil {
		return "", ferr.Wrap(ferr.Io, "version.InstallVersion", metaPath, err)
	}

	return packageHash, nil
}

// SwitchVersion atomically points installed/{id} at
// versions/{id}-{packageHash}, via a rename-over-symlink sequence.
func SwitchVersion(repoDir, id, packageHash string) error {
	installedDir := filepath.Join(repoDir, catalog.InstalledDirName)
	if err := os.MkdirAll(installedDir, 0o755); err != nil {
		return ferr.Wrap(ferr.Io, "version.SwitchVersion", installedDir, err)
	}

	target := filepath.Join("..", catalog.VersionsDirName, versionDirName(id, packageHash))
	link := filepath.Join(installedDir, id)
	tmp := link + ".tmp"

	_ = os.Remove(tmp)
	if err := os.Symlink(target, tmp); err != nil {
		return ferr.Wrap(ferr.Io, "version.SwitchVersion", tmp, err)
	}
	if err := os.Rename(tmp, link); err != nil {
		return ferr.Wrap(ferr.Io, "version.SwitchVersion", link, err)
	}
	return nil
}

// GetVersions scans versions/, splits each entry's name on its last "-",
// keeps entries whose part before that dash equals id, and returns their
// hash suffixes in sorted order.
func GetVersions(repoDir, id string) ([]string, error) {
	versionsDir := filepath.Join(repoDir, catalog.VersionsDirName)
	entries, err := os.ReadDir(versionsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, ferr.Wrap(ferr.Io, "version.GetVersions", versionsDir, err)
	}

	var hashes []string
	for _, entry := range entries {
		name := entry.Name()
		idx := strings.LastIndex(name, "-")
		if idx < 0 {
			continue
		}
		if name[:idx] != id {
			continue
		}
		hashes = append(hashes, name[idx+1:])
	}
	sort.Strings(hashes)
	return hashes, nil
}

// RemoveVersion deletes versions/{id}-{packageHash}, failing if absent.
func RemoveVersion(repoDir, id, packageHash string) error {
	versionDir := filepath.Join(repoDir, catalog.VersionsDirName, versionDirName(id, packageHash))
	if _, err := os.Stat(versionDir); err != nil {
		if os.IsNotExist(err) {
			return ferr.New(ferr.NotFound, "version.RemoveVersion", versionDirName(id, packageHash), "no such version")
		}
		return ferr.Wrap(ferr.Io, "version.RemoveVersion", versionDir, err)
	}
	if err := os.RemoveAll(versionDir); err != nil {
		return ferr.Wrap(ferr.Io, "version.RemoveVersion", versionDir, err)
	}
	return nil
}

// CleanUsed is the consumer-side garbage-collection mode: it keeps only
// chunks referenced by currently installed packages and deletes every other
// file from storeDir.
func CleanUsed(repoDir, storeDir string) ([]string, error) {
	pkgs, err := catalog.GetAllInstalledPackages(repoDir)
	if err != nil {
		return nil, err
	}

	allowed := make(map[string]bool)
	for _, p := range pkgs {
		for _, c := range p.Chunks {
			allowed[c.Filename()] = true
		}
	}

	return store.Clean(storeDir, allowed)
}
