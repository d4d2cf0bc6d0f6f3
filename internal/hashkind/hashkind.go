// Package hashkind wraps hash primitives behind a kind-tagged enum, the way
// a repository manifest carries a hash_kind field that every operation must
// check before trusting a digest.
package hashkind

import (
	"encoding/hex"
	"hash"

	"github.com/timelessos/flint/internal/ferr"
	"lukechampine.com/blake3"
)

// Kind identifies which hash algorithm a repository's chunks and manifests
// are addressed with.
type Kind int

const (
	// Blake3 is the only implemented hash kind.
	Blake3 Kind = iota
	// SHA256 is declared but not implemented (spec's hash-kind migration
	// Open Question); selecting it returns UnsupportedHashKind.
	SHA256
	// SHA512 is declared but not implemented, same as SHA256.
	SHA512
)

func (k Kind) String() string {
	switch k {
	case Blake3:
		return "blake3"
	case SHA256:
		return "sha256"
	case SHA512:
		return "sha512"
	default:
		return "unknown"
	}
}

// ParseKind maps a manifest's hash_kind string to a Kind. Unknown strings
// also surface as UnsupportedHashKind so a malformed manifest never silently
// falls back to blake3.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "blake3":
		return Blake3, nil
	case "sha256":
		return SHA256, nil
	case "sha512":
		return SHA512, nil
	default:
		return 0, ferr.New(ferr.UnsupportedHashKind, "hashkind.ParseKind", s, "unrecognized hash kind")
	}
}

// New returns a streaming hash.Hash for kind, or UnsupportedHashKind if kind
// has no implementation.
func New(kind Kind) (hash.Hash, error) {
	switch kind {
	case Blake3:
		return blake3.New(32, nil), nil
	default:
		return nil, ferr.New(ferr.UnsupportedHashKind, "hashkind.New", kind.String(), "hash kind not implemented")
	}
}

// Sum computes the hex-encoded lowercase digest of data under kind.
func Sum(kind Kind, data []byte) (string, error) {
	h, err := New(kind)
	if err != nil {
		return "", err
	}
	if _, err := h.Write(data); err != nil {
		return "", ferr.Wrap(ferr.Io, "hashkind.Sum", kind.String(), err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
