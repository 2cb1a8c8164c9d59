package voteview

import (
	"testing"

	"github.com/rlmd-io/rlmdcore/types"
)

func sharedMessage() *types.VoteMessage {
	var head types.Hash
	head[0] = 0x11
	src := types.Checkpoint{ChkpSlot: 0, BlockSlot: 0}
	tgt := types.Checkpoint{BlockHash: head, ChkpSlot: 1, BlockSlot: 1}
	return &types.VoteMessage{Slot: 1, HeadHash: head, FFGSource: &src, FFGTarget: &tgt}
}

func signedBy(msg *types.VoteMessage, sender types.NodeIdentity, sigByte byte) *types.SignedVote {
	v := &types.SignedVote{Message: msg, Sender: sender}
	v.Signature[0] = sigByte
	return v
}

func TestAggregateDisaggregateRoundTrip(t *testing.T) {
	msg := sharedMessage()
	votes := []*types.SignedVote{
		signedBy(msg, 2, 0xc2),
		signedBy(msg, 0, 0xc0),
		signedBy(msg, 5, 0xc5),
	}

	agg, err := AggregateVotes(votes)
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}

	out, err := DisaggregateVotes(agg)
	if err != nil {
		t.Fatalf("disaggregate: %v", err)
	}
	if len(out) != 3 {
		t.Fatalf("expected 3 votes, got %d", len(out))
	}
	// Ascending sender order with signatures intact.
	wantSenders := []types.NodeIdentity{0, 2, 5}
	wantSigs := []byte{0xc0, 0xc2, 0xc5}
	for i, v := range out {
		if v.Sender != wantSenders[i] {
			t.Fatalf("sender[%d] = %d, want %d", i, v.Sender, wantSenders[i])
		}
		if v.Signature[0] != wantSigs[i] {
			t.Fatalf("signature[%d] mismatch", i)
		}
	}
}

func TestAggregateRejectsMixedMessages(t *testing.T) {
	msgA := sharedMessage()
	msgB := sharedMessage()
	msgB.Slot = 2

	_, err := AggregateVotes([]*types.SignedVote{signedBy(msgA, 0, 1), signedBy(msgB, 1, 2)})
	if err == nil {
		t.Fatal("expected error for differing messages")
	}
}

func TestAggregateRejectsDuplicateSender(t *testing.T) {
	msg := sharedMessage()
	_, err := AggregateVotes([]*types.SignedVote{signedBy(msg, 1, 1), signedBy(msg, 1, 2)})
	if err == nil {
		t.Fatal("expected error for duplicate sender")
	}
}

func TestDisaggregateRejectsLengthMismatch(t *testing.T) {
	msg := sharedMessage()
	agg, err := AggregateVotes([]*types.SignedVote{signedBy(msg, 0, 1), signedBy(msg, 1, 2)})
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	agg.AggregatedSignature = agg.AggregatedSignature[:types.SignatureSize]
	if _, err := DisaggregateVotes(agg); err == nil {
		t.Fatal("expected error for truncated signature blob")
	}
}

func TestBitlist(t *testing.T) {
	bl := MakeBitlist(10)
	if got := BitlistLen(bl); got != 10 {
		t.Fatalf("BitlistLen = %d, want 10", got)
	}
	bl = SetBit(bl, 3, true)
	bl = SetBit(bl, 9, true)
	if !GetBit(bl, 3) || !GetBit(bl, 9) {
		t.Fatal("set bits must read back true")
	}
	if GetBit(bl, 4) {
		t.Fatal("unset bit must read back false")
	}
	bl = SetBit(bl, 3, false)
	if GetBit(bl, 3) {
		t.Fatal("cleared bit must read back false")
	}
	if got := BitlistLen(bl); got != 10 {
		t.Fatalf("length must survive bit mutation, got %d", got)
	}
}
