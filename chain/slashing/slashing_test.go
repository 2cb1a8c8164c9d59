package slashing

import (
	"testing"

	"github.com/rlmd-io/rlmdcore/types"
)

func vote(sender types.NodeIdentity, srcChkp, srcBlock, tgtChkp, tgtBlock uint64, headByte byte) *types.SignedVote {
	var head types.Hash
	head[0] = headByte
	src := types.Checkpoint{ChkpSlot: srcChkp, BlockSlot: srcBlock}
	tgt := types.Checkpoint{BlockHash: head, ChkpSlot: tgtChkp, BlockSlot: tgtBlock}
	return &types.SignedVote{
		Message: &types.VoteMessage{Slot: tgtChkp, HeadHash: head, FFGSource: &src, FFGTarget: &tgt},
		Sender:  sender,
	}
}

func TestEquivocation(t *testing.T) {
	v1 := vote(0, 0, 0, 1, 1, 0xaa)
	v2 := vote(0, 0, 0, 1, 1, 0xbb) // same target chkp_slot, different vote

	if !IsEquivocation(v1, v2) {
		t.Fatal("distinct votes with equal target chkp_slot are an equivocation")
	}
	if !IsSlashablePair(v1, v2) {
		t.Fatal("equivocation is slashable")
	}
}

func TestEquivocationRequiresSameSender(t *testing.T) {
	v1 := vote(0, 0, 0, 1, 1, 0xaa)
	v2 := vote(1, 0, 0, 1, 1, 0xbb)
	if IsEquivocation(v1, v2) {
		t.Fatal("votes from different senders cannot equivocate")
	}
}

func TestSameVoteNotEquivocation(t *testing.T) {
	v := vote(0, 0, 0, 1, 1, 0xaa)
	if IsEquivocation(v, v) {
		t.Fatal("a vote does not equivocate with itself")
	}
}

func TestSurround(t *testing.T) {
	// outer: source (0,0) -> target chkp 4; inner: source (1,1) -> target chkp 3.
	outer := vote(0, 0, 0, 4, 4, 0xaa)
	inner := vote(0, 1, 1, 3, 3, 0xbb)

	if !IsSurround(outer, inner) {
		t.Fatal("outer vote surrounds inner vote")
	}
	if !IsSurround(inner, outer) {
		t.Fatal("surround detection must be symmetric in argument order")
	}
}

func TestNoSurroundForNestedTargetsOnly(t *testing.T) {
	// Chained votes: (0 -> 1) then (1 -> 2). Legal.
	a := vote(0, 0, 0, 1, 1, 0xaa)
	b := vote(0, 1, 1, 2, 2, 0xbb)
	if IsSurround(a, b) {
		t.Fatal("consecutive chained votes must not be flagged")
	}
	if IsSlashablePair(a, b) {
		t.Fatal("chained votes are not slashable")
	}
}

func TestSurroundSourceTieNotSlashable(t *testing.T) {
	// Equal sources: (0,0)->3 and (0,0)->2 with differing target chkp
	// slots is neither surround (source not strictly less) nor
	// equivocation (targets differ).
	a := vote(0, 0, 0, 3, 3, 0xaa)
	b := vote(0, 0, 0, 2, 2, 0xbb)
	if IsSurround(a, b) {
		t.Fatal("equal sources do not surround")
	}
	if IsSlashablePair(a, b) {
		t.Fatal("equal sources with differing targets are not slashable")
	}
}

func TestSurroundBlockSlotOrdering(t *testing.T) {
	// Sources share chkp_slot but differ in block_slot: (0,0) < (0,5)
	// lexicographically, so the wider vote surrounds.
	outer := vote(0, 0, 0, 4, 4, 0xaa)
	inner := vote(0, 0, 5, 3, 3, 0xbb)
	if !IsSurround(outer, inner) {
		t.Fatal("lexicographic source ordering must include block_slot")
	}
}

func TestSlashableNodes(t *testing.T) {
	votes := []*types.SignedVote{
		vote(0, 0, 0, 1, 1, 0xaa),
		vote(0, 0, 0, 1, 1, 0xbb), // V0 equivocates
		vote(1, 0, 0, 1, 1, 0xcc),
		vote(2, 0, 0, 4, 4, 0xdd),
		vote(2, 1, 1, 3, 3, 0xee), // V2 surround-votes
	}

	flagged := SlashableNodes(votes)
	if !flagged[0] {
		t.Fatal("V0 must be flagged for equivocation")
	}
	if !flagged[2] {
		t.Fatal("V2 must be flagged for surround voting")
	}
	if flagged[1] {
		t.Fatal("V1 is honest and must not be flagged")
	}
}

func TestSlashableNodesEmpty(t *testing.T) {
	if got := SlashableNodes(nil); len(got) != 0 {
		t.Fatalf("no votes, no offenders: got %v", got)
	}
}
