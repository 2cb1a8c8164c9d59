package voteview

import (
	"fmt"
	"sort"

	"github.com/rlmd-io/rlmdcore/types"
)

// Vote aggregation: votes sharing one VoteMessage travel as a single
// gossip payload, a sender bitlist plus signatures concatenated in
// ascending sender order. This is a transport optimization only;
// DisaggregateVotes must yield the exact SignedVote set the view would
// have accepted one at a time.

// AggregateVotes bundles votes carrying identical messages.
func AggregateVotes(votes []*types.SignedVote) (*types.AggregatedVote, error) {
	if len(votes) == 0 {
		return nil, fmt.Errorf("no votes to aggregate")
	}
	msgRoot, err := votes[0].Message.HashTreeRoot()
	if err != nil {
		return nil, err
	}
	for _, v := range votes[1:] {
		root, err := v.Message.HashTreeRoot()
		if err != nil {
			return nil, err
		}
		if root != msgRoot {
			return nil, fmt.Errorf("votes carry differing messages")
		}
	}

	sorted := make([]*types.SignedVote, len(votes))
	copy(sorted, votes)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Sender < sorted[j].Sender
	})
	for i := 1; i < len(sorted); i++ {
		if sorted[i].Sender == sorted[i-1].Sender {
			return nil, fmt.Errorf("duplicate sender %d", sorted[i].Sender)
		}
	}

	maxID := uint64(sorted[len(sorted)-1].Sender)
	bits := MakeBitlist(maxID + 1)
	for _, v := range sorted {
		bits = SetBit(bits, uint64(v.Sender), true)
	}

	aggSig := make([]byte, 0, len(sorted)*types.SignatureSize)
	for _, v := range sorted {
		aggSig = append(aggSig, v.Signature[:]...)
	}

	return &types.AggregatedVote{
		Message:             sorted[0].Message,
		AggregationBits:     bits,
		AggregatedSignature: aggSig,
	}, nil
}

// DisaggregateVotes splits an aggregate back into individual SignedVotes.
func DisaggregateVotes(agg *types.AggregatedVote) ([]*types.SignedVote, error) {
	numBits := uint64(BitlistLen(agg.AggregationBits))
	var senders []types.NodeIdentity
	for i := uint64(0); i < numBits; i++ {
		if GetBit(agg.AggregationBits, i) {
			senders = append(senders, types.NodeIdentity(i))
		}
	}

	expectedLen := len(senders) * types.SignatureSize
	if len(agg.AggregatedSignature) != expectedLen {
		return nil, fmt.Errorf(
			"signature length mismatch: got %d, expected %d (%d senders)",
			len(agg.AggregatedSignature), expectedLen, len(senders),
		)
	}

	votes := make([]*types.SignedVote, len(senders))
	for i, sender := range senders {
		v := &types.SignedVote{Message: agg.Message, Sender: sender}
		copy(v.Signature[:], agg.AggregatedSignature[i*types.SignatureSize:(i+1)*types.SignatureSize])
		votes[i] = v
	}
	return votes, nil
}
