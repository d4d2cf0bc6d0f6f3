package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/timelessos/flint/internal/hashkind"
)

func TestChunkFilenameStability(t *testing.T) {
	got := Filename("a8sf799a8s6fa7f5", 0o777)
	want := "a8sf799a8s6fa7f5511"
	if got != want {
		t.Errorf("Filename() = %q, want %q", got, want)
	}
}

func TestSaveTreeLoadTreeRoundTrip(t *testing.T) {
	src := t.TempDir()
	storeDir := t.TempDir()
	dest := t.TempDir()

	mustWrite(t, filepath.Join(src, "bin", "tool"), "#!/bin/sh\necho hi\n", 0o755)
	mustWrite(t, filepath.Join(src, "share", "doc.txt"), "hello world", 0o644)

	chunks, err := SaveTree(src, storeDir, hashkind.Blake3)
	if err != nil {
		t.Fatalf("SaveTree() failed: %v", err)
	}
	if len(chunks) != 2 {
		t.Fatalf("SaveTree() returned %d chunks, want 2", len(chunks))
	}

	if err := LoadTree(dest, storeDir, chunks); err != nil {
		t.Fatalf("LoadTree() failed: %v", err)
	}

	for _, rel := range []string{filepath.Join("bin", "tool"), filepath.Join("share", "doc.txt")} {
		srcBytes, err := os.ReadFile(filepath.Join(src, rel))
		if err != nil {
			t.Fatalf("reading source %s: %v", rel, err)
		}
		destBytes, err := os.ReadFile(filepath.Join(dest, rel))
		if err != nil {
			t.Fatalf("reading dest %s: %v", rel, err)
		}
		if string(srcBytes) != string(destBytes) {
			t.Errorf("%s: content mismatch after round trip", rel)
		}

		srcInfo, _ := os.Stat(filepath.Join(src, rel))
		destInfo, _ := os.Stat(filepath.Join(dest, rel))
		if srcInfo.Mode().Perm() != destInfo.Mode().Perm() {
			t.Errorf("%s: mode mismatch, src=%v dest=%v", rel, srcInfo.Mode().Perm(), destInfo.Mode().Perm())
		}
	}
}

func TestSaveTreeSingleFile(t *testing.T) {
	storeDir := t.TempDir()
	srcDir := t.TempDir()
	file := filepath.Join(srcDir, "flint")
	mustWrite(t, file, "binary contents", 0o755)

	chunks, err := SaveTree(file, storeDir, hashkind.Blake3)
	if err != nil {
		t.Fatalf("SaveTree() failed: %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("SaveTree() returned %d chunks, want 1", len(chunks))
	}
	if chunks[0].Path != "flint" {
		t.Errorf("Path = %q, want %q", chunks[0].Path, "flint")
	}
}

func TestVerifyDetectsMissingAndMismatched(t *testing.T) {
	src := t.TempDir()
	storeDir := t.TempDir()

	mustWrite(t, filepath.Join(src, "file.txt"), "content", 0o644)
	chunks, err := SaveTree(src, storeDir, hashkind.Blake3)
	if err != nil {
		t.Fatalf("SaveTree() failed: %v", err)
	}

	result, err := Verify(storeDir, chunks, hashkind.Blake3)
	if err != nil {
		t.Fatalf("Verify() failed: %v", err)
	}
	if !result.OK() {
		t.Fatalf("Verify() on intact store = %+v, want OK", result)
	}

	path := filepath.Join(storeDir, chunks[0].Filename())
	if err := os.WriteFile(path, []byte("tampered"), 0o644); err != nil {
		t.Fatalf("tampering with chunk: %v", err)
	}

	result, err = Verify(storeDir, chunks, hashkind.Blake3)
	if err != nil {
		t.Fatalf("Verify() failed: %v", err)
	}
	if len(result.Mismatched) != 1 {
		t.Fatalf("Verify() mismatched = %d, want 1", len(result.Mismatched))
	}

	missingChunk := chunks[0]
	missingChunk.Hash = "deadbeef"
	result, err = Verify(storeDir, []Chunk{missingChunk}, hashkind.Blake3)
	if err != nil {
		t.Fatalf("Verify() failed: %v", err)
	}
	if len(result.Missing) != 1 {
		t.Fatalf("Verify() missing = %d, want 1", len(result.Missing))
	}
}

func TestCleanRemovesUnreferenced(t *testing.T) {
	storeDir := t.TempDir()
	src := t.TempDir()

	mustWrite(t, filepath.Join(src, "keep.txt"), "keep", 0o644)
	mustWrite(t, filepath.Join(src, "drop.txt"), "drop", 0o644)

	chunks, err := SaveTree(src, storeDir, hashkind.Blake3)
	if err != nil {
		t.Fatalf("SaveTree() failed: %v", err)
	}

	var keepName string
	for _, c := range chunks {
		if c.Path == "keep.txt" {
			keepName = c.Filename()
		}
	}

	allowed := map[string]bool{keepName: true}
	removed, err := Clean(storeDir, allowed)
	if err != nil {
		t.Fatalf("Clean() failed: %v", err)
	}
	if len(removed) != 1 {
		t.Fatalf("Clean() removed %d files, want 1", len(removed))
	}

	entries, err := os.ReadDir(storeDir)
	if err != nil {
		t.Fatalf("reading store dir: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != keepName {
		t.Fatalf("store dir after Clean() = %v, want only %q", entries, keepName)
	}
}

func mustWrite(t *testing.T, path, content string, mode os.FileMode) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), mode); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
