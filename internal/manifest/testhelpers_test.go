package manifest

import (
	"crypto/ed25519"
	"testing"

	"github.com/timelessos/flint/internal/signing"
)

func loadKeyForTest(keyDir string) (ed25519.PrivateKey, error) {
	return signing.LoadOrCreateKey(keyDir)
}

func mustEncodePublic(t *testing.T, priv ed25519.PrivateKey) string {
	t.Helper()
	pub := priv.Public().(ed25519.PublicKey)
	pem, err := signing.EncodePublicKey(pub)
	if err != nil {
		t.Fatalf("EncodePublicKey() failed: %v", err)
	}
	return pem
}
