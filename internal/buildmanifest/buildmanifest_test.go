package buildmanifest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/timelessos/flint/internal/ferr"
)

func writeManifest(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "build.yml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestLoadMinimalManifest(t *testing.T) {
	path := writeManifest(t, "id: test_package\nedition: \"2025\"\ndirectory: \".\"\n")

	m, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if m.ID != "test_package" || m.Edition != "2025" || m.Directory != "." {
		t.Errorf("Load() = %+v, want id=test_package edition=2025 directory=.", m)
	}
	if m.Path() != path {
		t.Errorf("Path() = %q, want %q", m.Path(), path)
	}
}

func TestLoadWithSourcesIncludeSDKs(t *testing.T) {
	path := writeManifest(t, `id: curl
edition: "2025"
directory: "."
sources:
  - kind: git
    url: https://example.com/curl.git
    commit: abc123
include:
  - ../openssl/build.yml
sdks:
  - ../make/build.yml
build_script: "./configure && make"
post_script: "make install"
env:
  PATH: "./bin"
`)

	m, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if len(m.Sources) != 1 || m.Sources[0].Kind != SourceGit || m.Sources[0].Commit != "abc123" {
		t.Errorf("Sources = %+v, want one git source pinned to abc123", m.Sources)
	}
	if len(m.Include) != 1 || len(m.SDKs) != 1 {
		t.Errorf("Include/SDKs = %v/%v, want one entry each", m.Include, m.SDKs)
	}
	if m.Env["PATH"] != "./bin" {
		t.Errorf("Env[PATH] = %q, want %q", m.Env["PATH"], "./bin")
	}
}

func TestValidateRejectsMissingID(t *testing.T) {
	path := writeManifest(t, "edition: \"2025\"\ndirectory: \".\"\n")

	_, err := Load(path)
	if kind, ok := ferr.KindOf(err); !ok || kind != ferr.Codec {
		t.Errorf("Load() error kind = %v, ok=%v, want Codec", kind, ok)
	}
}

func TestValidateRejectsUnknownSourceKind(t *testing.T) {
	path := writeManifest(t, `id: curl
edition: "2025"
directory: "."
sources:
  - kind: ftp
    url: ftp://example.com/curl.tar
`)

	_, err := Load(path)
	if kind, ok := ferr.KindOf(err); !ok || kind != ferr.Codec {
		t.Errorf("Load() error kind = %v, ok=%v, want Codec", kind, ok)
	}
}
