// Package catalog implements the repository catalog operations: inserting
// and removing packages from a signed manifest while enforcing the id/alias
// uniqueness invariant, and reading installed-package records.
package catalog

import (
	"os"
	"path/filepath"

	"github.com/timelessos/flint/internal/ferr"
	"github.com/timelessos/flint/internal/manifest"
	"github.com/timelessos/flint/internal/signing"
	"github.com/timelessos/flint/internal/store"
)

// InstalledDirName and VersionsDirName are the well-known subdirectories of
// a repository root (spec.md section 6's on-disk layout).
const (
	InstalledDirName = "installed"
	VersionsDirName  = "versions"
)

// InsertPackage upserts pkg into the repository at repoDir, rejecting the
// insert if any existing package's id or alias collides with pkg's id or
// any of its aliases, then re-signs and atomically updates the manifest.
// An existing entry with the same id is replaced (upsert); all others are
// checked for collision.
func InsertPackage(repoDir, keyDir string, pkg manifest.Package) (*manifest.Manifest, error) {
	m, err := manifest.ReadManifest(repoDir)
	if err != nil {
		return nil, err
	}

	replaceIdx := -1
	for i, existing := range m.Packages {
		if existing.ID == pkg.ID {
			replaceIdx = i
			continue
		}
		if collides(existing, pkg.ID, pkg.Aliases) {
			return nil, ferr.New(ferr.AliasCollision, "catalog.InsertPackage", pkg.ID,
				"id or alias collides with existing package "+existing.ID)
		}
	}

	if replaceIdx >= 0 {
		m.Packages[replaceIdx] = pkg
	} else {
		m.Packages = append(m.Packages, pkg)
	}

	priv, err := signing.LoadOrCreateKey(keyDir)
	if err != nil {
		return nil, err
	}
	return manifest.SignAndUpdate(repoDir, priv, m)
}

// collides reports whether existing's identity set overlaps with a
// candidate id and alias set, per the three collision rules in spec.md
// section 4.5: existing.id is among the candidate's aliases, the candidate's
// id is among existing's aliases, or the alias sets intersect.
func collides(existing manifest.Package, candidateID string, candidateAliases []string) bool {
	for _, a := range candidateAliases {
		if existing.ID == a {
			return true
		}
	}
	for _, a := range existing.Aliases {
		if a == candidateID {
			return true
		}
		for _, b := range candidateAliases {
			if a == b {
				return true
			}
		}
	}
	return false
}

// RemovePackage drops the package with the given id (alias-only lookup does
// not remove) and re-signs the manifest.
func RemovePackage(repoDir, keyDir, id string) (*manifest.Manifest, error) {
	m, err := manifest.ReadManifest(repoDir)
	if err != nil {
		return nil, err
	}

	idx := -1
	for i, p := range m.Packages {
		if p.ID == id {
			idx = i
			break
		}
	}
	if idx == -1 {
		return nil, ferr.New(ferr.NotFound, "catalog.RemovePackage", id, "no package with this id")
	}
	m.Packages = append(m.Packages[:idx], m.Packages[idx+1:]...)

	priv, err := signing.LoadOrCreateKey(keyDir)
	if err != nil {
		return nil, err
	}
	return manifest.SignAndUpdate(repoDir, priv, m)
}

// GetPackage returns the first package whose id or alias set contains
// selector.
func GetPackage(repoDir, selector string) (*manifest.Package, error) {
	m, err := manifest.ReadManifest(repoDir)
	if err != nil {
		return nil, err
	}
	for _, p := range m.Packages {
		if p.HasIdentity(selector) {
			pkg := p
			return &pkg, nil
		}
	}
	return nil, ferr.New(ferr.NotFound, "catalog.GetPackage", selector, "no package with this id or alias")
}

// GetAllPackages returns every package in the repository's manifest, for GC
// and update workflows.
func GetAllPackages(repoDir string) ([]manifest.Package, error) {
	m, err := manifest.ReadManifest(repoDir)
	if err != nil {
		return nil, err
	}
	return m.Packages, nil
}

// GetInstalledPackage reads the install.meta snapshot for id, failing with
// NotFound if the package is not installed.
func GetInstalledPackage(repoDir, id string) (*manifest.Package, error) {
	path := filepath.Join(repoDir, InstalledDirName, id, "install.meta")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ferr.New(ferr.NotFound, "catalog.GetInstalledPackage", id, "not installed")
		}
		return nil, ferr.Wrap(ferr.Io, "catalog.GetInstalledPackage", path, err)
	}
	return manifest.UnmarshalPackage(data)
}

// GetAllInstalledPackages enumerates install.meta snapshots for every
// currently installed package id under repoDir.
func GetAllInstalledPackages(repoDir string) ([]manifest.Package, error) {
	installedDir := filepath.Join(repoDir, InstalledDirName)
	entries, err := os.ReadDir(installedDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, ferr.Wrap(ferr.Io, "catalog.GetAllInstalledPackages", installedDir, err)
	}

	var pkgs []manifest.Package
	for _, entry := range entries {
		pkg, err := GetInstalledPackage(repoDir, entry.Name())
		if err != nil {
			if kind, ok := ferr.KindOf(err); ok && kind == ferr.NotFound {
				continue
			}
			return nil, err
		}
		pkgs = append(pkgs, *pkg)
	}
	return pkgs, nil
}

// CleanUnused computes the allowed chunk-filename set from every package in
// the repository's signed manifest (not just installed ones) and removes
// every other file from storeDir. This is the producer-side GC mode from
// spec.md section 4.2, run by repository administrators after removing
// packages.
func CleanUnused(repoDir, storeDir string) ([]string, error) {
	pkgs, err := GetAllPackages(repoDir)
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
