// Package ferr defines the tagged-variant error type used at the public
// boundary of every core flint package. Callers branch on Kind with
// errors.As instead of matching error strings.
package ferr

import "fmt"

// Kind classifies the failure mode of an Error.
type Kind int

const (
	// Io covers filesystem failures: permission denied, disk full, unreadable
	// directory entries.
	Io Kind = iota

	// Codec covers YAML/PEM decode failures on otherwise-readable bytes.
	Codec

	// InvalidSignature means a manifest's signature does not verify against
	// its embedded public key, or a rotation attempt was rejected.
	InvalidSignature

	// NotFound means a package id, alias, chunk, or version directory does
	// not exist.
	NotFound

	// AliasCollision means a repository insert would violate the
	// id/alias uniqueness invariant.
	AliasCollision

	// DependencyNotBuilt means a build or include/sdks dependency has no
	// corresponding entry in the repository catalog.
	DependencyNotBuilt

	// BuildScriptFailed means a build manifest's script exited non-zero.
	BuildScriptFailed

	// Network covers HTTP/DNS/TLS failures talking to a mirror.
	Network

	// ChunkCorrupt means a chunk body downloaded from a mirror does not hash
	// to the chunk's expected hash.
	ChunkCorrupt

	// UnsupportedHashKind means a hash kind was selected that has no
	// implementation (spec.md's hash-kind migration Open Question).
	UnsupportedHashKind

	// PathEscape means a computed path would resolve outside its intended
	// root: a tar source entry escaping its extraction directory, or a
	// repository name escaping the repos directory.
	PathEscape
)

// String renders the Kind as its lower_snake_case name.
func (k Kind) String() string {
	switch k {
	case Io:
		return "io"
	case Codec:
		return "codec"
	case InvalidSignature:
		return "invalid_signature"
	case NotFound:
		return "not_found"
	case AliasCollision:
		return "alias_collision"
	case DependencyNotBuilt:
		return "dependency_not_built"
	case BuildScriptFailed:
		return "build_script_failed"
	case Network:
		return "network"
	case ChunkCorrupt:
		return "chunk_corrupt"
	case UnsupportedHashKind:
		return "unsupported_hash_kind"
	case PathEscape:
		return "path_escape"
	default:
		return "unknown"
	}
}

// Error is flint's tagged-variant error. Op names the failing operation
// (e.g. "store.SaveTree", "catalog.InsertPackage"); Subject is the id,
// path, or alias the operation was acting on, when there is one.
type Error struct {
	Kind    Kind
	Op      string
	Subject string
	Msg     string
	Err     error
}

func (e *Error) Error() string {
	var s string
	if e.Subject != "" {
		s = fmt.Sprintf("%s: %s (%s): %s", e.Op, e.Kind, e.Subject, e.Msg)
	} else {
		s = fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, e.Msg)
	}
	if e.Err != nil {
		s = fmt.Sprintf("%s: %v", s, e.Err)
	}
	return s
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, &ferr.Error{Kind: k}) match any *Error of Kind k,
// ignoring Op, Subject and Msg, for callers that only care about the Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// New constructs an Error with no wrapped cause.
func New(kind Kind, op, subject, msg string) *Error {
	return &Error{Kind: kind, Op: op, Subject: subject, Msg: msg}
}

// Wrap constructs an Error that wraps an underlying cause.
func Wrap(kind Kind, op, subject string, err error) *Error {
	return &Error{Kind: kind, Op: op, Subject: subject, Msg: err.Error(), Err: err}
}

// KindOf reports the Kind of err if it is (or wraps) a *Error, and ok=false
// otherwise.
func KindOf(err error) (Kind, bool) {
	var fe *Error
	if ok := asError(err, &fe); ok {
		return fe.Kind, true
	}
	return 0, false
}

// asError is a small local errors.As to avoid importing errors just for
// this one call site everywhere KindOf is used.
func asError(err error, target **Error) bool {
	for err != nil {
		if fe, ok := err.(*Error); ok {
			*target = fe
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
