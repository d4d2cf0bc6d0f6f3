// Package build orchestrates package production: source acquisition,
// dependency materialization, build/post scripts, chunking, and build-hash
// short-circuit caching.
package build

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/timelessos/flint/internal/buildmanifest"
	"github.com/timelessos/flint/internal/catalog"
	"github.com/timelessos/flint/internal/ferr"
	"github.com/timelessos/flint/internal/hashkind"
	"github.com/timelessos/flint/internal/log"
	"github.com/timelessos/flint/internal/manifest"
	"github.com/timelessos/flint/internal/source"
	"github.com/timelessos/flint/internal/store"
)

// Engine builds packages from build manifests into a repository.
type Engine struct {
	RepoDir  string
	KeyDir   string
	StoreDir string
	HashKind hashkind.Kind
	Fetcher  *source.Fetcher
	Logger   log.Logger
}

// NewEngine constructs an Engine with sane defaults for hash kind and logger.
func NewEngine(repoDir, keyDir, storeDir, cacheDir string) *Engine {
	return &Engine{
		RepoDir:  repoDir,
		KeyDir:   keyDir,
		StoreDir: storeDir,
		HashKind: hashkind.Blake3,
		Fetcher:  source.NewFetcher(cacheDir),
		Logger:   log.Default(),
	}
}

// Options controls a single Build invocation.
type Options struct {
	// ForceBuild skips the build-hash short-circuit check.
	ForceBuild bool
}

// Build produces the package described by the build manifest at path,
// following the sequence in spec.md section 4.7, and returns the resulting
// package manifest entry.
func (e *Engine) Build(ctx context.Context, path string, opts Options) (*manifest.Package, error) {
	bm, err := buildmanifest.Load(path)
	if err != nil {
		return nil, err
	}

	buildHash, err := e.computeBuildHash(bm)
	if err != nil {
		return nil, err
	}

	if !opts.ForceBuild {
		if existing, err := catalog.GetPackage(e.RepoDir, bm.ID); err == nil && existing.BuildHash == buildHash {
			e.Logger.Info("build short-circuited: build hash unchanged", "id", bm.ID, "build_hash", buildHash)
			return existing, nil
		}
	}

	sandboxDir, err := os.MkdirTemp("", "flint-build-*")
	if err != nil {
		return nil, ferr.Wrap(ferr.Io, "build.Build", "", err)
	}
	defer os.RemoveAll(sandboxDir)

	if err := e.Fetcher.Acquire(ctx, bm.Sources, sandboxDir); err != nil {
		return nil, err
	}

	env := map[string]string{}
	for _, id := range append(append([]string{}, bm.Include...), bm.SDKs...) {
		depEnv, err := e.materializeDependency(id, path, sandboxDir)
		if err != nil {
			return nil, err
		}
		for k, v := range depEnv {
			env[k] = v
		}
	}

	if bm.BuildScript != "" {
		if err := runScript(ctx, bm.BuildScript, sandboxDir, env); err != nil {
			return nil, ferr.Wrap(ferr.BuildScriptFailed, "build.Build", bm.ID, err)
		}
	}

	outDir := filepath.Join(sandboxDir, bm.Directory)

	if bm.PostScript != "" {
		if err := runScript(ctx, bm.PostScript, outDir, env); err != nil {
			return nil, ferr.Wrap(ferr.BuildScriptFailed, "build.Build", bm.ID, err)
		}
	}

	for _, id := range bm.Include {
		if _, err := e.materializeDependency(id, path, outDir); err != nil {
			return nil, err
		}
	}

	chunks, err := store.SaveTree(outDir, e.StoreDir, e.HashKind, store.WithLogger(e.Logger))
	if err != nil {
		return nil, err
	}

	pkg := manifest.Package{
		ID:        bm.ID,
		Aliases:   bm.Aliases,
		Metadata:  bm.Metadata,
		Chunks:    chunks,
		Commands:  bm.Commands,
		BuildHash: buildHash,
	}
	if len(env) > 0 {
		pkg.Env = env
	}

	updated, err := catalog.InsertPackage(e.RepoDir, e.KeyDir, pkg)
	if err != nil {
		return nil, err
	}

	for _, p := range updated.Packages {
		if p.ID == pkg.ID {
			return &p, nil
		}
	}
	return &pkg, nil
}

// materializeDependency locates the sibling build manifest referenced by id
// (a search-path-relative string, joined against the referencing manifest's
// own directory, per spec.md section 9's include/sdks path note), finds its
// already-built package in the repository, and materializes its chunks into
// destDir. Recursive auto-build is not implemented: an unbuilt dependency
// fails with DependencyNotBuilt.
func (e *Engine) materializeDependency(depPath, fromManifestPath, destDir string) (map[string]string, error) {
	resolved := depPath
	if !filepath.IsAbs(depPath) {
		resolved = filepath.Join(filepath.Dir(fromManifestPath), depPath)
	}

	depManifest, err := buildmanifest.Load(resolved)
	if err != nil {
		return nil, err
	}

	pkg, err := catalog.GetPackage(e.RepoDir, depManifest.ID)
	if err != nil {
		return nil, ferr.Wrap(ferr.DependencyNotBuilt, "build.materializeDependency", depManifest.ID, err)
	}

	if err := store.LoadTree(destDir, e.StoreDir, pkg.Chunks, store.WithLogger(e.Logger)); err != nil {
		return nil, err
	}

	return pkg.Env, nil
}

// computeBuildHash hashes, in order, the raw build manifest bytes, the
// build_hash of every include/sdks dependency, and the contents of the
// build and post scripts.
func (e *Engine) computeBuildHash(bm *buildmanifest.Manifest) (string, error) {
	data, err := os.ReadFile(bm.Path())
	if err != nil {
		return "", ferr.Wrap(ferr.Io, "build.computeBuildHash", bm.Path(), err)
	}

	var payload []byte
	payload = append(payload, data...)

	for _, id := range append(append([]string{}, bm.Include...), bm.SDKs...) {
		depHash, err := e.dependencyBuildHash(id, bm.Path())
		if err != nil {
			return "", err
		}
		payload = append(payload, []byte(depHash)...)
	}

	if bm.BuildScript != "" {
		payload = append(payload, []byte(bm.BuildScript)...)
	}
	if bm.PostScript != "" {
		payload = append(payload, []byte(bm.PostScript)...)
	}

	return hashkind.Sum(e.HashKind, payload)
}

func (e *Engine) dependencyBuildHash(depPath, fromManifestPath string) (string, error) {
	resolved := depPath
	if !filepath.IsAbs(depPath) {
		resolved = filepath.Join(filepath.Dir(fromManifestPath), depPath)
	}
	depManifest, err := buildmanifest.Load(resolved)
	if err != nil {
		return "", err
	}
	pkg, err := catalog.GetPackage(e.RepoDir, depManifest.ID)
	if err != nil {
		return "", ferr.Wrap(ferr.DependencyNotBuilt, "build.dependencyBuildHash", depManifest.ID, err)
	}
	return pkg.BuildHash, nil
}

func runScript(ctx context.Context, script, dir string, env map[string]string) error {
	cmd := exec.CommandContext(ctx, "sh", "-c", script)
	cmd.Dir = dir
	cmd.Env = os.Environ()
	for k, v := range env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}
