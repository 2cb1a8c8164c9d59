package types

import ssz "github.com/ferranbt/fastssz"

// SignatureSize is the fixed signature length used by the reference
// signer (see cryptoref). The core itself never inspects signature bytes;
// verify_signature is an external collaborator.
const SignatureSize = 64

// Signature is an opaque, fixed-size signature blob.
type Signature [SignatureSize]byte

// VoteMessage is the unsigned content of a validator's vote: the head it
// is attesting to, plus the FFG source/target checkpoint pair.
type VoteMessage struct {
	Slot      uint64
	HeadHash  Hash        `ssz-size:"32"`
	FFGSource *Checkpoint `ssz-size:"48"`
	FFGTarget *Checkpoint `ssz-size:"48"`
}

// SignedVote is a VoteMessage together with its signature and sender.
// Votes are held in sets, deduplicated by the full (message, signature,
// sender) tuple.
type SignedVote struct {
	Message   *VoteMessage
	Signature Signature `ssz-size:"64"`
	Sender    NodeIdentity
}

// VoteKey is the comparable identity of a SignedVote, usable as a Go map
// key for set deduplication of the full (message, signature, sender) tuple.
type VoteKey struct {
	MessageRoot [32]byte
	Signature   Signature
	Sender      NodeIdentity
}

// Key returns v's deduplication key.
func (v *SignedVote) Key() VoteKey {
	root, err := v.Message.HashTreeRoot()
	if err != nil {
		// HashTreeRootWith never errors for a well-formed VoteMessage;
		// a failure here means the message itself is malformed.
		panic(err)
	}
	return VoteKey{MessageRoot: root, Signature: v.Signature, Sender: v.Sender}
}

// Less implements the canonical vote ordering required for block-body
// serialization: sorted by (sender, slot, head_hash).
func (v *SignedVote) Less(other *SignedVote) bool {
	if v.Sender != other.Sender {
		return v.Sender < other.Sender
	}
	if v.Message.Slot != other.Message.Slot {
		return v.Message.Slot < other.Message.Slot
	}
	return v.Message.HeadHash.Compare(other.Message.HeadHash) < 0
}

func (m *VoteMessage) HashTreeRoot() ([32]byte, error) {
	return ssz.HashWithDefaultHasher(m)
}

func (m *VoteMessage) HashTreeRootWith(hh *ssz.Hasher) error {
	indx := hh.Index()
	hh.PutUint64(m.Slot)
	hh.PutBytes(m.HeadHash[:])
	if err := m.FFGSource.HashTreeRootWith(hh); err != nil {
		return err
	}
	if err := m.FFGTarget.HashTreeRootWith(hh); err != nil {
		return err
	}
	hh.Merkleize(indx)
	return nil
}

func (v *SignedVote) HashTreeRoot() ([32]byte, error) {
	return ssz.HashWithDefaultHasher(v)
}

func (v *SignedVote) HashTreeRootWith(hh *ssz.Hasher) error {
	indx := hh.Index()
	if err := v.Message.HashTreeRootWith(hh); err != nil {
		return err
	}
	hh.PutBytes(v.Signature[:])
	hh.PutUint64(uint64(v.Sender))
	hh.Merkleize(indx)
	return nil
}
