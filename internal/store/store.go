// Package store implements the content-addressed chunk store: saving and
// loading filesystem trees as deduplicated, hash-addressed files, integrity
// verification, and garbage collection of unreferenced chunks.
package store

import (
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/timelessos/flint/internal/ferr"
	"github.com/timelessos/flint/internal/hashkind"
	"github.com/timelessos/flint/internal/log"
)

// Chunk is a single file as stored: its logical path within a tree, the hex
// digest of its bytes, its Unix permission bits, and its size in rounded
// kilobytes. Two bytewise-identical files with distinct mode bits are
// distinct chunks, since the store addresses by (hash, mode).
type Chunk struct {
	Path        string `yaml:"path"`
	Hash        string `yaml:"hash"`
	Permissions uint32 `yaml:"permissions"`
	Size        int64  `yaml:"size"`
}

// Filename returns the store filename for a chunk: the hex hash concatenated
// with the base-10 decimal of mode & 0o777, no separator.
func Filename(hash string, perm uint32) string {
	return hash + strconv.FormatUint(uint64(perm&0o777), 10)
}

// Filename returns c's store filename.
func (c Chunk) Filename() string {
	return Filename(c.Hash, c.Permissions)
}

// Option configures store operations.
type Option func(*options)

type options struct {
	logger log.Logger
}

// WithLogger overrides the logger used during a store operation.
func WithLogger(l log.Logger) Option {
	return func(o *options) { o.logger = l }
}

func resolveOptions(opts []Option) options {
	o := options{logger: log.Default()}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

// SaveTree walks treeRoot recursively and, for every regular file, computes
// its hash under kind, derives its chunk filename, and hardlinks it into
// storeDir, falling back to a byte copy when hardlinking fails (cross-device
// links, unsupported filesystems). If treeRoot is itself a single file, it
// emits one chunk whose Path is the file's base name.
func SaveTree(treeRoot, storeDir string, kind hashkind.Kind, opts ...Option) ([]Chunk, error) {
	o := resolveOptions(opts)

	if err := os.MkdirAll(storeDir, 0o755); err != nil {
		return nil, ferr.Wrap(ferr.Io, "store.SaveTree", storeDir, err)
	}

	info, err := os.Lstat(treeRoot)
	if err != nil {
		return nil, ferr.Wrap(ferr.Io, "store.SaveTree", treeRoot, err)
	}

	if !info.IsDir() {
		chunk, err := saveFile(treeRoot, filepath.Base(treeRoot), storeDir, kind, o.logger)
		if err != nil {
			return nil, err
		}
		return []Chunk{chunk}, nil
	}

	var chunks []Chunk
	walkErr := filepath.Walk(treeRoot, func(path string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if fi.IsDir() {
			return nil
		}
		if fi.Mode()&os.ModeSymlink != 0 {
			return nil
		}
		relPath, err := filepath.Rel(treeRoot, path)
		if err != nil {
			return err
		}
		chunk, err := saveFile(path, relPath, storeDir, kind, o.logger)
		if err != nil {
			return err
		}
		chunks = append(chunks, chunk)
		return nil
	})
	if walkErr != nil {
		if fe, ok := walkErr.(*ferr.Error); ok {
			return nil, fe
		}
		return nil, ferr.Wrap(ferr.Io, "store.SaveTree", treeRoot, walkErr)
	}

	return chunks, nil
}

func saveFile(path, relPath, storeDir string, kind hashkind.Kind, logger log.Logger) (Chunk, error) {
	info, err := os.Lstat(path)
	if err != nil {
		return Chunk{}, ferr.Wrap(ferr.Io, "store.saveFile", path, err)
	}

	hash, err := hashFile(path, kind)
	if err != nil {
		return Chunk{}, err
	}

	perm := uint32(info.Mode().Perm())
	dest := filepath.Join(storeDir, Filename(hash, perm))

	if _, err := os.Stat(dest); err != nil {
		if err := os.Link(path, dest); err != nil {
			logger.Debug("hardlink failed, falling back to copy", "path", path, "error", err)
			if err := copyFile(path, dest, os.FileMode(perm)); err != nil {
				return Chunk{}, ferr.Wrap(ferr.Io, "store.saveFile", path, err)
			}
		}
	}

	return Chunk{
		Path:        filepath.ToSlash(relPath),
		Hash:        hash,
		Permissions: perm,
		Size:        (info.Size() + 1023) / 1024,
	}, nil
}

// LoadTree materializes chunks under destRoot, hardlinking each from its
// store location and falling back to a copy, then setting the file mode to
// chunk.Permissions & 0o777.
func LoadTree(destRoot, storeDir string, chunks []Chunk, opts ...Option) error {
	o := resolveOptions(opts)

	for _, c := range chunks {
		dest := filepath.Join(destRoot, filepath.FromSlash(c.Path))
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return ferr.Wrap(ferr.Io, "store.LoadTree", dest, err)
		}

		src := filepath.Join(storeDir, c.Filename())
		_ = os.Remove(dest)
		if err := os.Link(src, dest); err != nil {
			o.logger.Debug("hardlink failed, falling back to copy", "path", dest, "error", err)
			if err := copyFile(src, dest, os.FileMode(c.Permissions&0o777)); err != nil {
				return ferr.Wrap(ferr.Io, "store.LoadTree", src, err)
			}
		}

		if err := os.Chmod(dest, os.FileMode(c.Permissions&0o777)); err != nil {
			return ferr.Wrap(ferr.Io, "store.LoadTree", dest, err)
		}
	}

	return nil
}

// VerifyResult reports chunks missing from the store or whose content no
// longer matches their recorded hash.
type VerifyResult struct {
	Missing    []Chunk
	Mismatched []Chunk
}

// OK reports whether every chunk verified cleanly.
func (r VerifyResult) OK() bool {
	return len(r.Missing) == 0 && len(r.Mismatched) == 0
}

// Verify confirms, for every chunk, that its store file exists and that
// re-hashing it reproduces chunk.Hash.
func Verify(storeDir string, chunks []Chunk, kind hashkind.Kind) (VerifyResult, error) {
	var result VerifyResult

	for _, c := range chunks {
		path := filepath.Join(storeDir, c.Filename())
		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			result.Missing = append(result.Missing, c)
			continue
		}

		actual, err := hashFile(path, kind)
		if err != nil {
			return VerifyResult{}, err
		}
		if actual != c.Hash {
			result.Mismatched = append(result.Mismatched, c)
		}
	}

	return result, nil
}

// Clean deletes every regular file in storeDir whose name is not present in
// allowed. The caller computes allowed (see the catalog and version
// packages' garbage-collection helpers).
func Clean(storeDir string, allowed map[string]bool) (removed []string, err error) {
	entries, err := os.ReadDir(storeDir)
	if err != nil {
		return nil, ferr.Wrap(ferr.Io, "store.Clean", storeDir, err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if allowed[entry.Name()] {
			continue
		}
		path := filepath.Join(storeDir, entry.Name())
		if err := os.Remove(path); err != nil {
			return removed, ferr.Wrap(ferr.Io, "store.Clean", path, err)
		}
		removed = append(removed, entry.Name())
	}

	sort.Strings(removed)
	return removed, nil
}

func hashFile(path string, kind hashkind.Kind) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", ferr.Wrap(ferr.Io, "store.hashFile", path, err)
	}
	defer f.Close()

	h, err := hashkind.New(kind)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(h, f); err != nil {
		return "", ferr.Wrap(ferr.Io, "store.hashFile", path, err)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

func copyFile(src, dst string, mode os.FileMode) error {
	srcFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer srcFile.Close()

	dstFile, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	defer dstFile.Close()

	_, err = io.Copy(dstFile, srcFile)
	return err
}
