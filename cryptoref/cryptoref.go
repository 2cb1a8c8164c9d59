// Package cryptoref provides the reference ed25519-backed Signer and
// SignatureVerifier used by the node binary and tests. The consensus
// core never imports this package; it depends only on the
// externalapi.SignatureVerifier contract, so any scheme with 64-byte
// signatures can be swapped in.
package cryptoref

import (
	"crypto/ed25519"
	"encoding/binary"
	"fmt"

	"github.com/rlmd-io/rlmdcore/externalapi"
	"github.com/rlmd-io/rlmdcore/types"
)

// PublicKeySize is the serialized public key length.
const PublicKeySize = ed25519.PublicKeySize

// Keypair holds a validator's signing keys.
type Keypair struct {
	Public  ed25519.PublicKey
	private ed25519.PrivateKey
}

// GenerateKeypair derives a keypair deterministically from seed, so
// devnet key sets are reproducible across nodes.
func GenerateKeypair(seed uint64) *Keypair {
	var seedBytes [ed25519.SeedSize]byte
	binary.LittleEndian.PutUint64(seedBytes[:8], seed)
	priv := ed25519.NewKeyFromSeed(seedBytes[:])
	return &Keypair{
		Public:  priv.Public().(ed25519.PublicKey),
		private: priv,
	}
}

// PublicKeyBytes returns the serialized public key.
func (kp *Keypair) PublicKeyBytes() []byte {
	return []byte(kp.Public)
}

// SignRoot signs a 32-byte message root.
func (kp *Keypair) SignRoot(root [32]byte) types.Signature {
	var sig types.Signature
	copy(sig[:], ed25519.Sign(kp.private, root[:]))
	return sig
}

// SignVote produces a SignedVote for msg from sender.
func (kp *Keypair) SignVote(msg *types.VoteMessage, sender types.NodeIdentity) (*types.SignedVote, error) {
	root, err := msg.HashTreeRoot()
	if err != nil {
		return nil, fmt.Errorf("hash vote message: %w", err)
	}
	return &types.SignedVote{
		Message:   msg,
		Signature: kp.SignRoot(root),
		Sender:    sender,
	}, nil
}

// SignPropose produces a SignedProposeMessage for msg from sender.
func (kp *Keypair) SignPropose(msg *types.ProposeMessage, sender types.NodeIdentity) (*types.SignedProposeMessage, error) {
	root, err := msg.HashTreeRoot()
	if err != nil {
		return nil, fmt.Errorf("hash propose message: %w", err)
	}
	return &types.SignedProposeMessage{
		Message:   msg,
		Signature: kp.SignRoot(root),
		Sender:    sender,
	}, nil
}

// Registry maps sender identities to their public keys and implements
// externalapi.SignatureVerifier over them.
type Registry struct {
	keys map[types.NodeIdentity]ed25519.PublicKey
}

var _ externalapi.SignatureVerifier = (*Registry)(nil)

// NewRegistry builds a Registry from serialized public keys indexed by
// sender identity.
func NewRegistry(pubkeys map[types.NodeIdentity][]byte) (*Registry, error) {
	keys := make(map[types.NodeIdentity]ed25519.PublicKey, len(pubkeys))
	for id, pk := range pubkeys {
		if len(pk) != PublicKeySize {
			return nil, fmt.Errorf("pubkey for %d is %d bytes, want %d", id, len(pk), PublicKeySize)
		}
		keys[id] = ed25519.PublicKey(append([]byte(nil), pk...))
	}
	return &Registry{keys: keys}, nil
}

// VerifyVote checks the vote's signature against the sender's registered key.
func (r *Registry) VerifyVote(vote *types.SignedVote) bool {
	pk, ok := r.keys[vote.Sender]
	if !ok {
		return false
	}
	root, err := vote.Message.HashTreeRoot()
	if err != nil {
		return false
	}
	return ed25519.Verify(pk, root[:], vote.Signature[:])
}

// VerifyPropose checks the propose message's signature against the
// sender's registered key.
func (r *Registry) VerifyPropose(msg *types.SignedProposeMessage) bool {
	pk, ok := r.keys[msg.Sender]
	if !ok {
		return false
	}
	root, err := msg.Message.HashTreeRoot()
	if err != nil {
		return false
	}
	return ed25519.Verify(pk, root[:], msg.Signature[:])
}
