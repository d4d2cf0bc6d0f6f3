package run

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/timelessos/flint/internal/ferr"
	"github.com/timelessos/flint/internal/manifest"
)

func writeScript(t *testing.T, dir, name, contents string) {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(contents), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
}

func TestStartSucceedsWithArgs(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "flint", "#!/bin/sh\nif [ \"$#\" -gt 0 ]; then exit 0; else exit 1; fi\n")

	pkg := &manifest.Package{Commands: []string{"flint"}}

	result, err := Start(context.Background(), pkg, dir, "flint", []string{"--help"})
	if err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	if !result.Success() {
		t.Errorf("Start() with args = %+v, want success", result)
	}
}

func TestStartFailsWithoutArgs(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "flint", "#!/bin/sh\nif [ \"$#\" -gt 0 ]; then exit 0; else exit 1; fi\n")

	pkg := &manifest.Package{Commands: []string{"flint"}}

	result, err := Start(context.Background(), pkg, dir, "flint", nil)
	if err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	if result.Success() {
		t.Errorf("Start() with no args = %+v, want failure", result)
	}
}

func TestStartMatchesEntrypointBySuffix(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "bin"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	writeScript(t, filepath.Join(dir, "bin"), "myapp", "#!/bin/sh\nexit 0\n")

	pkg := &manifest.Package{Commands: []string{"bin/myapp"}}

	result, err := Start(context.Background(), pkg, dir, "myapp", nil)
	if err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	if !result.Success() {
		t.Errorf("Start() = %+v, want success", result)
	}
}

func TestStartResolvesLeadingSlashCommandUnderInstalledDir(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "bin"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	writeScript(t, filepath.Join(dir, "bin"), "bash", "#!/bin/sh\nexit 0\n")

	pkg := &manifest.Package{Commands: []string{"/bin/bash"}}

	result, err := Start(context.Background(), pkg, dir, "bash", nil)
	if err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	if !result.Success() {
		t.Errorf("Start() = %+v, want success (expected installed-tree /bin/bash, not the host's)", result)
	}
}

func TestStartNoMatchingCommand(t *testing.T) {
	pkg := &manifest.Package{Commands: []string{"bin/myapp"}}

	_, err := Start(context.Background(), pkg, t.TempDir(), "nonexistent", nil)
	if kind, ok := ferr.KindOf(err); !ok || kind != ferr.NotFound {
		t.Errorf("error kind = %v, ok=%v, want NotFound", kind, ok)
	}
}

func TestBuildEnvExpandsDotSlashPrefix(t *testing.T) {
	env := buildEnv(map[string]string{"DATA_DIR": "./data"}, "/opt/flint/curl")
	want := "DATA_DIR=/opt/flint/curl/data"
	found := false
	for _, e := range env {
		if e == want {
			found = true
		}
	}
	if !found {
		t.Errorf("buildEnv() = %v, want entry %q", env, want)
	}
}
