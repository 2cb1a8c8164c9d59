package cryptoref

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
)

// On-disk keypair format: hex-encoded public key in a .pk file, the
// ed25519 seed in a .sk file. Secret files are written 0600.

// SaveKeypair writes kp to pkPath/skPath.
func SaveKeypair(kp *Keypair, pkPath, skPath string) error {
	pkHex := hex.EncodeToString(kp.Public)
	if err := os.WriteFile(pkPath, []byte(pkHex+"\n"), 0644); err != nil {
		return fmt.Errorf("write public key: %w", err)
	}
	skHex := hex.EncodeToString(kp.private.Seed())
	if err := os.WriteFile(skPath, []byte(skHex+"\n"), 0600); err != nil {
		return fmt.Errorf("write secret key: %w", err)
	}
	return nil
}

// LoadKeypair restores a keypair saved by SaveKeypair. The public key
// file is cross-checked against the key derived from the seed.
func LoadKeypair(pkPath, skPath string) (*Keypair, error) {
	skData, err := os.ReadFile(skPath)
	if err != nil {
		return nil, fmt.Errorf("read secret key: %w", err)
	}
	seed, err := hex.DecodeString(strings.TrimSpace(string(skData)))
	if err != nil {
		return nil, fmt.Errorf("decode secret key: %w", err)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("secret key is %d bytes, want %d", len(seed), ed25519.SeedSize)
	}
	priv := ed25519.NewKeyFromSeed(seed)
	kp := &Keypair{
		Public:  priv.Public().(ed25519.PublicKey),
		private: priv,
	}

	pkData, err := os.ReadFile(pkPath)
	if err != nil {
		return nil, fmt.Errorf("read public key: %w", err)
	}
	pub, err := hex.DecodeString(strings.TrimSpace(string(pkData)))
	if err != nil {
		return nil, fmt.Errorf("decode public key: %w", err)
	}
	if !kp.Public.Equal(ed25519.PublicKey(pub)) {
		return nil, fmt.Errorf("public key file does not match secret key")
	}
	return kp, nil
}
