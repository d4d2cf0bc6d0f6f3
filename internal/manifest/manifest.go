// Package manifest implements atomic, signature-verified YAML read/write of
// repository manifests: the signed catalog of packages that anchors a
// repository's cryptographic trust chain.
package manifest

import (
	"crypto/ed25519"
	"os"
	"path/filepath"

	"github.com/timelessos/flint/internal/ferr"
	"github.com/timelessos/flint/internal/signing"
	"github.com/timelessos/flint/internal/store"
	"gopkg.in/yaml.v3"
)

// ManifestFileName and SigFileName are the two files a repository manifest
// lives on disk as; the signature covers the exact bytes of the YAML file.
const (
	ManifestFileName = "manifest.yml"
	SigFileName      = "manifest.yml.sig"

	// CurrentEdition is the edition stamped on newly created repositories.
	CurrentEdition = "2025"
)

// PackageMetadata carries the descriptive, non-structural fields of a package.
type PackageMetadata struct {
	Title       string `yaml:"title,omitempty"`
	Description string `yaml:"description,omitempty"`
	HomepageURL string `yaml:"homepage_url,omitempty"`
	Version     string `yaml:"version,omitempty"`
	License     string `yaml:"license,omitempty"`
}

// Package is a single package's entry in a repository manifest.
type Package struct {
	ID        string            `yaml:"id"`
	Aliases   []string          `yaml:"aliases,omitempty"`
	Metadata  PackageMetadata   `yaml:"metadata"`
	Chunks    []store.Chunk     `yaml:"chunks"`
	Commands  []string          `yaml:"commands,omitempty"`
	Env       map[string]string `yaml:"env,omitempty"`
	BuildHash string            `yaml:"build_hash"`
}

// HasIdentity reports whether selector matches p's id or any of its aliases.
func (p Package) HasIdentity(selector string) bool {
	if p.ID == selector {
		return true
	}
	for _, a := range p.Aliases {
		if a == selector {
			return true
		}
	}
	return false
}

// RepositoryMetadata carries descriptive fields for the repository as a whole.
type RepositoryMetadata struct {
	Name        string `yaml:"name,omitempty"`
	Description string `yaml:"description,omitempty"`
}

// Manifest is the signed, on-disk catalog of packages for one repository.
type Manifest struct {
	Metadata  RepositoryMetadata `yaml:"metadata"`
	Packages  []Package          `yaml:"packages"`
	PublicKey string             `yaml:"public_key"`
	Mirrors   []string           `yaml:"mirrors,omitempty"`
	Edition   string             `yaml:"edition"`
	HashKind  string             `yaml:"hash_kind"`
}

// MarshalPackage serializes a single Package to YAML, the format
// `install.meta` snapshots use (spec.md section 3's Install record; see
// original_source/src/repo/versions.rs, which reuses this same serializer).
func MarshalPackage(p *Package) ([]byte, error) {
	data, err := yaml.Marshal(p)
	if err != nil {
		return nil, ferr.Wrap(ferr.Codec, "manifest.MarshalPackage", p.ID, err)
	}
	return data, nil
}

// UnmarshalPackage parses an `install.meta` snapshot back into a Package.
func UnmarshalPackage(data []byte) (*Package, error) {
	var p Package
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, ferr.Wrap(ferr.Codec, "manifest.UnmarshalPackage", "", err)
	}
	return &p, nil
}

// Marshal serializes m to its canonical YAML byte representation.
func Marshal(m *Manifest) ([]byte, error) {
	data, err := yaml.Marshal(m)
	if err != nil {
		return nil, ferr.Wrap(ferr.Codec, "manifest.Marshal", "", err)
	}
	return data, nil
}

func unmarshal(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, ferr.Wrap(ferr.Codec, "manifest.unmarshal", "", err)
	}
	return &m, nil
}

// Create initializes a new, empty, self-signed repository at repoDir using
// the keypair resolved from keyDir. The resulting manifest has
// edition=CurrentEdition, an empty package list, and a public_key matching
// the host key.
func Create(repoDir, keyDir string) (*Manifest, error) {
	priv, err := signing.LoadOrCreateKey(keyDir)
	if err != nil {
		return nil, err
	}
	pub := priv.Public().(ed25519.PublicKey)
	pubPEM, err := signing.EncodePublicKey(pub)
	if err != nil {
		return nil, err
	}

	m := &Manifest{
		Packages:  []Package{},
		PublicKey: pubPEM,
		Edition:   CurrentEdition,
		HashKind:  "blake3",
	}

	if err := os.MkdirAll(repoDir, 0o755); err != nil {
		return nil, ferr.Wrap(ferr.Io, "manifest.Create", repoDir, err)
	}

	data, err := Marshal(m)
	if err != nil {
		return nil, err
	}
	sig, err := signing.Sign(priv, data)
	if err != nil {
		return nil, err
	}

	if err := writeManifestFiles(repoDir, data, sig); err != nil {
		return nil, err
	}

	return m, nil
}

// ReadManifest reads and verifies a repository manifest against its own
// embedded public key.
func ReadManifest(repoDir string) (*Manifest, error) {
	data, sig, err := readManifestFiles(repoDir)
	if err != nil {
		return nil, err
	}

	m, err := unmarshal(data)
	if err != nil {
		return nil, err
	}

	pub, err := signing.DecodePublicKey(m.PublicKey)
	if err != nil {
		return nil, err
	}
	if err := signing.Verify(pub, data, sig); err != nil {
		return nil, err
	}

	return m, nil
}

// ReadManifestPinned reads a repository manifest and verifies it against a
// caller-supplied public key rather than the manifest's own embedded key,
// for trust-on-first-use and pinned-repository workflows.
func ReadManifestPinned(repoDir string, expectedPublicKey ed25519.PublicKey) (*Manifest, error) {
	data, sig, err := readManifestFiles(repoDir)
	if err != nil {
		return nil, err
	}

	if err := signing.Verify(expectedPublicKey, data, sig); err != nil {
		return nil, err
	}

	return unmarshal(data)
}

// VerifyManifestBytes verifies data against signature using
// expectedPublicKey and, only if that succeeds, parses data into a Manifest.
// It touches no filesystem state, so a caller fetching a manifest from an
// untrusted mirror can verify before persisting anything (pinned-key case).
func VerifyManifestBytes(data, signature []byte, expectedPublicKey ed25519.PublicKey) (*Manifest, error) {
	if err := signing.Verify(expectedPublicKey, data, signature); err != nil {
		return nil, err
	}
	return unmarshal(data)
}

// ParseManifestSelfVerified parses data, extracts its own embedded public
// key, and verifies signature against that key (trust-on-first-use). It
// touches no filesystem state, so a caller can reject a malicious or
// corrupt manifest before ever writing it to repoDir.
func ParseManifestSelfVerified(data, signature []byte) (*Manifest, error) {
	m, err := unmarshal(data)
	if err != nil {
		return nil, err
	}
	pub, err := signing.DecodePublicKey(m.PublicKey)
	if err != nil {
		return nil, err
	}
	if err := signing.Verify(pub, data, signature); err != nil {
		return nil, err
	}
	return m, nil
}

// UpdateManifest atomically replaces a repository's manifest. signature must
// verify against the OLD manifest's embedded public key, which forbids
// unilateral key rotation; newBytes must themselves parse as a valid
// Manifest. Per spec.md section 4.4 the write order is: install the new
// signature first, then the new manifest, so a reader that observes a
// signature mismatch can treat it as retryable rather than corrupt.
func UpdateManifest(repoDir string, newBytes, signature []byte) (*Manifest, error) {
	old, err := ReadManifest(repoDir)
	if err != nil {
		return nil, err
	}

	oldPub, err := signing.DecodePublicKey(old.PublicKey)
	if err != nil {
		return nil, err
	}
	if err := signing.Verify(oldPub, newBytes, signature); err != nil {
		return nil, err
	}

	newManifest, err := unmarshal(newBytes)
	if err != nil {
		return nil, err
	}

	if err := writeManifestFiles(repoDir, newBytes, signature); err != nil {
		return nil, err
	}

	return newManifest, nil
}

// SignAndUpdate marshals m, signs it with priv, and atomically installs it
// over repoDir's existing manifest via UpdateManifest.
func SignAndUpdate(repoDir string, priv ed25519.PrivateKey, m *Manifest) (*Manifest, error) {
	data, err := Marshal(m)
	if err != nil {
		return nil, err
	}
	sig, err := signing.Sign(priv, data)
	if err != nil {
		return nil, err
	}
	return UpdateManifest(repoDir, data, sig)
}

func readManifestFiles(repoDir string) (data, sig []byte, err error) {
	manifestPath := filepath.Join(repoDir, ManifestFileName)
	sigPath := filepath.Join(repoDir, SigFileName)

	data, err = os.ReadFile(manifestPath)
	if err != nil {
		return nil, nil, ferr.Wrap(ferr.Io, "manifest.readManifestFiles", manifestPath, err)
	}
	sig, err = os.ReadFile(sigPath)
	if err != nil {
		return nil, nil, ferr.Wrap(ferr.Io, "manifest.readManifestFiles", sigPath, err)
	}
	return data, sig, nil
}

// writeManifestFiles installs new manifest bytes and their signature using
// a write-to-.new-then-rename sequence per file, ordered signature-first
// per spec.md section 4.4's two-file atomicity note.
func writeManifestFiles(repoDir string, data, sig []byte) error {
	sigPath := filepath.Join(repoDir, SigFileName)
	manifestPath := filepath.Join(repoDir, ManifestFileName)

	if err := atomicWrite(sigPath, sig, 0o644); err != nil {
		return err
	}
	if err := atomicWrite(manifestPath, data, 0o644); err != nil {
		return err
	}
	return nil
}

func atomicWrite(path string, data []byte, mode os.FileMode) error {
	tmp := path + ".new"
	if err := os.WriteFile(tmp, data, mode); err != nil {
		return ferr.Wrap(ferr.Io, "manifest.atomicWrite", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return ferr.Wrap(ferr.Io, "manifest.atomicWrite", path, err)
	}
	return nil
}
