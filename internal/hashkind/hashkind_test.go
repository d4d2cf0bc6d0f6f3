package hashkind

import (
	"testing"

	"github.com/timelessos/flint/internal/ferr"
)

func TestSumBlake3HelloWorld(t *testing.T) {
	got, err := Sum(Blake3, []byte("hello world"))
	if err != nil {
		t.Fatalf("Sum() failed: %v", err)
	}
	want := "d74981efa70a0c880b8d8c1985d075dbcbf679b99a5f9914e5aaf96b831a9e24"
	if got != want {
		t.Errorf("Sum(Blake3, \"hello world\") = %q, want %q", got, want)
	}
}

func TestParseKind(t *testing.T) {
	tests := []struct {
		in   string
		want Kind
	}{
		{"blake3", Blake3},
		{"sha256", SHA256},
		{"sha512", SHA512},
	}
	for _, tt := range tests {
		got, err := ParseKind(tt.in)
		if err != nil {
			t.Fatalf("ParseKind(%q) failed: %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParseKind(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestParseKindUnknown(t *testing.T) {
	_, err := ParseKind("md5")
	if kind, ok := ferr.KindOf(err); !ok || kind != ferr.UnsupportedHashKind {
		t.Fatalf("ParseKind(\"md5\") error kind = %v, ok=%v, want UnsupportedHashKind", kind, ok)
	}
}

func TestSumUnsupportedKind(t *testing.T) {
	_, err := Sum(SHA256, []byte("x"))
	if kind, ok := ferr.KindOf(err); !ok || kind != ferr.UnsupportedHashKind {
		t.Fatalf("Sum(SHA256, ...) error kind = %v, ok=%v, want UnsupportedHashKind", kind, ok)
	}
}

func TestKindString(t *testing.T) {
	if Blake3.String() != "blake3" {
		t.Errorf("Blake3.String() = %q, want %q", Blake3.String(), "blake3")
	}
}
