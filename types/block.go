package types

import ssz "github.com/ferranbt/fastssz"

// MaxVotesPerBlock and MaxProposerViewVotes bound the variable-length SSZ
// lists below. Sized generously relative to a realistic validator set.
const (
	MaxVotesPerBlock     = 4096
	MaxProposerViewVotes = 4096
	MaxBodyPayloadBytes  = 1 << 20
)

// BlockBody is an opaque payload: its contents are produced externally by
// block_body_for_proposal and are never interpreted by the core.
type BlockBody struct {
	Payload []byte `ssz-max:"1048576"`
}

// Block is the core's view of a chain block: parent link, slot, the set
// of votes it carries, and an opaque body. Content-addressed: two
// structurally identical blocks must hash identically.
type Block struct {
	ParentHash Hash `ssz-size:"32"`
	Slot       uint64
	Votes      []*SignedVote `ssz-max:"4096"`
	Body       *BlockBody
}

// SortedVotes returns a copy of b.Votes ordered by (sender, slot,
// head_hash), the canonical ordering required before hashing or wire
// encoding.
func (b *Block) SortedVotes() []*SignedVote {
	out := make([]*SignedVote, len(b.Votes))
	copy(out, b.Votes)
	sortVotes(out)
	return out
}

func sortVotes(votes []*SignedVote) {
	// insertion sort: blocks carry at most a few thousand votes, and the
	// comparator is cheap; avoids importing sort just for this.
	for i := 1; i < len(votes); i++ {
		for j := i; j > 0 && votes[j].Less(votes[j-1]); j-- {
			votes[j], votes[j-1] = votes[j-1], votes[j]
		}
	}
}

// ProposeMessage bundles a proposed block with the proposer's own
// extended view, which bypasses the view-merge buffer on receipt.
type ProposeMessage struct {
	Block        *Block
	ProposerView []*SignedVote `ssz-max:"4096"`
}

// SignedProposeMessage is the gossip envelope for a ProposeMessage.
type SignedProposeMessage struct {
	Message   *ProposeMessage
	Signature Signature `ssz-size:"64"`
	Sender    NodeIdentity
}

func (b *Block) HashTreeRoot() ([32]byte, error) {
	return ssz.HashWithDefaultHasher(b)
}

func (b *Block) HashTreeRootWith(hh *ssz.Hasher) error {
	indx := hh.Index()
	hh.PutBytes(b.ParentHash[:])
	hh.PutUint64(b.Slot)

	votesIdx := hh.Index()
	for _, v := range b.SortedVotes() {
		if err := v.HashTreeRootWith(hh); err != nil {
			return err
		}
	}
	hh.MerkleizeWithMixin(votesIdx, uint64(len(b.Votes)), MaxVotesPerBlock)

	if err := b.Body.HashTreeRootWith(hh); err != nil {
		return err
	}
	hh.Merkleize(indx)
	return nil
}

func (bb *BlockBody) HashTreeRootWith(hh *ssz.Hasher) error {
	indx := hh.Index()
	hh.PutBytes(bb.Payload)
	hh.FillUpTo32()
	hh.Merkleize(indx)
	return nil
}
