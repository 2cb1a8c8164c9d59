package cryptoref

import (
	"path/filepath"
	"testing"

	"github.com/rlmd-io/rlmdcore/types"
)

func testMessage() *types.VoteMessage {
	src := types.Checkpoint{ChkpSlot: 0}
	tgt := types.Checkpoint{ChkpSlot: 1, BlockSlot: 1}
	return &types.VoteMessage{Slot: 1, FFGSource: &src, FFGTarget: &tgt}
}

func TestGenerateDeterministic(t *testing.T) {
	a := GenerateKeypair(7)
	b := GenerateKeypair(7)
	if !a.Public.Equal(b.Public) {
		t.Fatal("same seed must derive the same keypair")
	}
	c := GenerateKeypair(8)
	if a.Public.Equal(c.Public) {
		t.Fatal("different seeds must derive different keypairs")
	}
}

func TestSignAndVerifyVote(t *testing.T) {
	kp := GenerateKeypair(1)
	reg, err := NewRegistry(map[types.NodeIdentity][]byte{3: kp.PublicKeyBytes()})
	if err != nil {
		t.Fatalf("registry: %v", err)
	}

	sv, err := kp.SignVote(testMessage(), 3)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if !reg.VerifyVote(sv) {
		t.Fatal("correctly signed vote must verify")
	}

	sv.Signature[0] ^= 0xff
	if reg.VerifyVote(sv) {
		t.Fatal("corrupted signature must not verify")
	}
}

func TestVerifyRejectsUnknownSender(t *testing.T) {
	kp := GenerateKeypair(1)
	reg, err := NewRegistry(map[types.NodeIdentity][]byte{3: kp.PublicKeyBytes()})
	if err != nil {
		t.Fatalf("registry: %v", err)
	}

	sv, err := kp.SignVote(testMessage(), 9)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if reg.VerifyVote(sv) {
		t.Fatal("vote from unregistered sender must not verify")
	}
}

func TestVerifyRejectsWrongKey(t *testing.T) {
	signer := GenerateKeypair(1)
	other := GenerateKeypair(2)
	reg, err := NewRegistry(map[types.NodeIdentity][]byte{3: other.PublicKeyBytes()})
	if err != nil {
		t.Fatalf("registry: %v", err)
	}

	sv, err := signer.SignVote(testMessage(), 3)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if reg.VerifyVote(sv) {
		t.Fatal("vote signed with the wrong key must not verify")
	}
}

func TestSignAndVerifyPropose(t *testing.T) {
	kp := GenerateKeypair(1)
	reg, err := NewRegistry(map[types.NodeIdentity][]byte{0: kp.PublicKeyBytes()})
	if err != nil {
		t.Fatalf("registry: %v", err)
	}

	msg := &types.ProposeMessage{
		Block: &types.Block{Slot: 1, Body: &types.BlockBody{}},
	}
	signed, err := kp.SignPropose(msg, 0)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if !reg.VerifyPropose(signed) {
		t.Fatal("correctly signed propose message must verify")
	}
}

func TestRegistryRejectsBadKeyLength(t *testing.T) {
	if _, err := NewRegistry(map[types.NodeIdentity][]byte{0: {1, 2, 3}}); err == nil {
		t.Fatal("short pubkey must be rejected")
	}
}

func TestKeystoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	pkPath := filepath.Join(dir, "validator_0.pk")
	skPath := filepath.Join(dir, "validator_0.sk")

	kp := GenerateKeypair(42)
	if err := SaveKeypair(kp, pkPath, skPath); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := LoadKeypair(pkPath, skPath)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !loaded.Public.Equal(kp.Public) {
		t.Fatal("loaded keypair must match the saved one")
	}

	// Signatures from the loaded key verify against the original pubkey.
	reg, err := NewRegistry(map[types.NodeIdentity][]byte{0: kp.PublicKeyBytes()})
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	sv, err := loaded.SignVote(testMessage(), 0)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if !reg.VerifyVote(sv) {
		t.Fatal("signature from loaded key must verify")
	}
}

func TestLoadKeypairDetectsMismatch(t *testing.T) {
	dir := t.TempDir()
	pkPath := filepath.Join(dir, "v.pk")
	skPath := filepath.Join(dir, "v.sk")
	otherPk := filepath.Join(dir, "other.pk")
	otherSk := filepath.Join(dir, "other.sk")

	if err := SaveKeypair(GenerateKeypair(1), pkPath, skPath); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := SaveKeypair(GenerateKeypair(2), otherPk, otherSk); err != nil {
		t.Fatalf("save: %v", err)
	}

	if _, err := LoadKeypair(otherPk, skPath); err == nil {
		t.Fatal("mismatched pk/sk files must be rejected")
	}
}
