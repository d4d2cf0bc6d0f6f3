// Package signing manages the host Ed25519 keypair and produces/verifies
// detached signatures over repository manifest bytes.
package signing

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"

	"github.com/timelessos/flint/internal/ferr"
)

// KeyFileName is the name of the PKCS#8 PEM-encoded private key file under
// a host's key directory.
const KeyFileName = "id_ed25519"

// pemBlockType matches the conventional block type for PKCS#8 private keys.
const pemBlockType = "PRIVATE KEY"

// publicPemBlockType matches the conventional block type for SPKI public keys.
const publicPemBlockType = "PUBLIC KEY"

// LoadOrCreateKey returns the host's Ed25519 keypair, generating and
// persisting one under keyDir if it does not already exist. The private key
// file is written with mode 0600.
func LoadOrCreateKey(keyDir string) (ed25519.PrivateKey, error) {
	path := filepath.Join(keyDir, KeyFileName)

	if data, err := os.ReadFile(path); err == nil {
		return decodePrivateKey(path, data)
	} else if !os.IsNotExist(err) {
		return nil, ferr.Wrap(ferr.Io, "signing.LoadOrCreateKey", path, err)
	}

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, ferr.Wrap(ferr.Io, "signing.LoadOrCreateKey", path, err)
	}

	if err := os.MkdirAll(keyDir, 0o700); err != nil {
		return nil, ferr.Wrap(ferr.Io, "signing.LoadOrCreateKey", keyDir, err)
	}

	if err := writePrivateKey(path, priv); err != nil {
		return nil, err
	}

	return priv, nil
}

func writePrivateKey(path string, priv ed25519.PrivateKey) error {
	der, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return ferr.Wrap(ferr.Codec, "signing.writePrivateKey", path, err)
	}

	block := &pem.Block{Type: pemBlockType, Bytes: der}
	data := pem.EncodeToMemory(block)

	tmp := path + ".new"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return ferr.Wrap(ferr.Io, "signing.writePrivateKey", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return ferr.Wrap(ferr.Io, "signing.writePrivateKey", path, err)
	}
	return nil
}

func decodePrivateKey(path string, data []byte) (ed25519.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil || block.Type != pemBlockType {
		return nil, ferr.New(ferr.Codec, "signing.decodePrivateKey", path, "not a PEM-encoded private key")
	}

	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, ferr.Wrap(ferr.Codec, "signing.decodePrivateKey", path, err)
	}

	priv, ok := key.(ed25519.PrivateKey)
	if !ok {
		return nil, ferr.New(ferr.Codec, "signing.decodePrivateKey", path, "key is not Ed25519")
	}
	return priv, nil
}

// EncodePublicKey renders pub as an SPKI PEM block, the form a repository
// manifest embeds as its public_key field.
func EncodePublicKey(pub ed25519.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", ferr.Wrap(ferr.Codec, "signing.EncodePublicKey", "", err)
	}
	block := &pem.Block{Type: publicPemBlockType, Bytes: der}
	return string(pem.EncodeToMemory(block)), nil
}

// DecodePublicKey parses an SPKI PEM-encoded Ed25519 public key.
func DecodePublicKey(pemStr string) (ed25519.PublicKey, error) {
	block, _ := pem.Decode([]byte(pemStr))
	if block == nil || block.Type != publicPemBlockType {
		return nil, ferr.New(ferr.Codec, "signing.DecodePublicKey", "", "not a PEM-encoded public key")
	}

	key, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, ferr.Wrap(ferr.Codec, "signing.DecodePublicKey", "", err)
	}

	pub, ok := key.(ed25519.PublicKey)
	if !ok {
		return nil, ferr.New(ferr.Codec, "signing.DecodePublicKey", "", "key is not Ed25519")
	}
	return pub, nil
}

// Sign produces a detached 64-byte Ed25519 signature over manifestBytes. It
// verifies its own output before returning, to catch key corruption.
func Sign(priv ed25519.PrivateKey, manifestBytes []byte) ([]byte, error) {
	sig := ed25519.Sign(priv, manifestBytes)

	pub, ok := priv.Public().(ed25519.PublicKey)
	if !ok {
		return nil, ferr.New(ferr.Codec, "signing.Sign", "", "private key has no matching Ed25519 public key")
	}
	if !ed25519.Verify(pub, manifestBytes, sig) {
		return nil, ferr.New(ferr.InvalidSignature, "signing.Sign", "", "self-verification of freshly produced signature failed")
	}

	return sig, nil
}

// Verify performs strict Ed25519 verification of sig over manifestBytes
// against verifyingKey, rejecting malleable encodings.
func Verify(verifyingKey ed25519.PublicKey, manifestBytes, sig []byte) error {
	if len(sig) != ed25519.SignatureSize {
		return ferr.New(ferr.InvalidSignature, "signing.Verify", "", "signature has wrong length")
	}
	if !ed25519.Verify(verifyingKey, manifestBytes, sig) {
		return ferr.New(ferr.InvalidSignature, "signing.Verify", "", "signature does not verify")
	}
	return nil
}
