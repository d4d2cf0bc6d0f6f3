// Package mirror fetches repository manifests and chunks from HTTP mirrors,
// verifying every chunk body against its expected hash and falling back
// across mirrors on corruption or transport failure.
package mirror

import (
	"context"
	"crypto/ed25519"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/timelessos/flint/internal/ferr"
	"github.com/timelessos/flint/internal/hashkind"
	"github.com/timelessos/flint/internal/manifest"
	"github.com/timelessos/flint/internal/store"
)

// MaxConcurrentFetches bounds in-flight chunk downloads per install, per
// spec.md section 4.9/section 5.
const MaxConcurrentFetches = 8

// Client fetches manifests and chunks from a repository's declared mirrors.
type Client struct {
	httpClient *http.Client
}

// NewClient builds a mirror Client using a hardened transport: disabled
// response compression, SSRF-checked redirects, and explicit dial/handshake
// timeouts (see newSecureTransport).
func NewClient(timeout time.Duration) *Client {
	return &Client{
		httpClient: newSecureTransport(timeout),
	}
}

func (c *Client) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, ferr.Wrap(ferr.Network, "mirror.get", url, err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, ferr.Wrap(ferr.Network, "mirror.get", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, ferr.New(ferr.Network, "mirror.get", url, resp.Status)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, ferr.Wrap(ferr.Network, "mirror.get", url, err)
	}
	return data, nil
}

// FetchChunks downloads every missing chunk (those not already present under
// storeDir) from mirrors, trying each mirror in order for a given chunk and
// verifying its body hash before accepting it, with up to
// MaxConcurrentFetches downloads in flight. The call fails fast on the first
// chunk whose body never verifies across any mirror.
func (c *Client) FetchChunks(ctx context.Context, mirrors []string, storeDir string, chunks []store.Chunk, kind hashkind.Kind) error {
	result, err := store.Verify(storeDir, chunks, kind)
	if err != nil {
		return err
	}
	if len(result.Missing) == 0 {
		return nil
	}

	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(MaxConcurrentFetches)

	for _, chunk := range result.Missing {
		chunk := chunk
		group.Go(func() error {
			return c.fetchChunk(gctx, mirrors, storeDir, chunk)
		})
	}

	return group.Wait()
}

func (c *Client) fetchChunk(ctx context.Context, mirrors []string, storeDir string, chunk store.Chunk) error {
	var lastErr error
	for _, m := range mirrors {
		url := m + "/chunks/" + chunk.Filename()
		body, err := c.get(ctx, url)
		if err != nil {
			lastErr = err
			continue
		}

		sum, err := hashkind.Sum(hashkind.Blake3, body)
		if err != nil {
			return err
		}
		if sum != chunk.Hash {
			lastErr = ferr.New(ferr.ChunkCorrupt, "mirror.fetchChunk", chunk.Filename(), "downloaded body hash mismatch")
			continue
		}

		if err := writeChunkAtomically(storeDir, chunk.Filename(), body); err != nil {
			return err
		}
		return nil
	}

	if lastErr == nil {
		lastErr = ferr.New(ferr.Network, "mirror.fetchChunk", chunk.Filename(), "no mirrors configured")
	}
	return lastErr
}

func writeChunkAtomically(storeDir, filename string, body []byte) error {
	if err := os.MkdirAll(storeDir, 0o755); err != nil {
		return ferr.Wrap(ferr.Io, "mirror.writeChunkAtomically", storeDir, err)
	}
	dest := filepath.Join(storeDir, filename)
	tmp := dest + ".new"
	if err := os.WriteFile(tmp, body, 0o644); err != nil {
		return ferr.Wrap(ferr.Io, "mirror.writeChunkAtomically", tmp, err)
	}
	if err := os.Rename(tmp, dest); err != nil {
		return ferr.Wrap(ferr.Io, "mirror.writeChunkAtomically", dest, err)
	}
	return nil
}

// AddRepository fetches a manifest and signature from url, verifies them
// in memory, and only then writes them atomically into repoDir. If
// expectedPublicKey is non-nil, the manifest is verified against it
// (pinned); otherwise the embedded key is trusted on first use, after a
// self-consistency check that the manifest is signed by its own embedded
// key. A manifest that fails verification is never written to repoDir, so
// a compromised or misconfigured mirror cannot poison a later
// trust-on-first-use baseline.
func (c *Client) AddRepository(ctx context.Context, url, repoDir string, expectedPublicKey ed25519.PublicKey) (*manifest.Manifest, error) {
	data, err := c.get(ctx, url+"/manifest.yml")
	if err != nil {
		return nil, err
	}
	sig, err := c.get(ctx, url+"/manifest.yml.sig")
	if err != nil {
		return nil, err
	}

	var m *manifest.Manifest
	if expectedPublicKey != nil {
		m, err = manifest.VerifyManifestBytes(data, sig, expectedPublicKey)
	} else {
		m, err = manifest.ParseManifestSelfVerified(data, sig)
	}
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(repoDir, 0o755); err != nil {
		return nil, ferr.Wrap(ferr.Io, "mirror.AddRepository", repoDir, err)
	}
	if err := writeManifestFilesForAdd(repoDir, data, sig); err != nil {
		return nil, err
	}

	return m, nil
}

// UpdateRepository fetches manifest.yml + manifest.yml.sig from the first
// mirror and installs them via manifest.UpdateManifest, which verifies the
// new bytes against the existing local public key (rejecting unilateral key
// rotation). It reports whether the manifest content actually changed.
func (c *Client) UpdateRepository(ctx context.Context, mirrors []string, repoDir string) (changed bool, err error) {
	if len(mirrors) == 0 {
		return false, ferr.New(ferr.Network, "mirror.UpdateRepository", repoDir, "no mirrors configured")
	}

	old, err := manifest.ReadManifest(repoDir)
	if err != nil {
		return false, err
	}
	oldData, err := manifest.Marshal(old)
	if err != nil {
		return false, err
	}

	data, err := c.get(ctx, mirrors[0]+"/manifest.yml")
	if err != nil {
		return false, err
	}
	sig, err := c.get(ctx, mirrors[0]+"/manifest.yml.sig")
	if err != nil {
		return false, err
	}

	if _, err := manifest.UpdateManifest(repoDir, data, sig); err != nil {
		return false, err
	}

	return string(data) != string(oldData), nil
}

func writeManifestFilesForAdd(repoDir string, data, sig []byte) error {
	sigPath := filepath.Join(repoDir, manifest.SigFileName)
	manifestPath := filepath.Join(repoDir, manifest.ManifestFileName)

	if err := atomicWriteForAdd(sigPath, sig); err != nil {
		return err
	}
	if err := atomicWriteForAdd(manifestPath, data); err != nil {
		return err
	}
	return nil
}

func atomicWriteForAdd(path string, data []byte) error {
	tmp := path + ".new"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return ferr.Wrap(ferr.Io, "mirror.atomicWriteForAdd", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return ferr.Wrap(ferr.Io, "mirror.atomicWriteForAdd", path, err)
	}
	return nil
}
