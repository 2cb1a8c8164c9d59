// Package voteview implements the valid_vote predicate and the five pure,
// set-to-set filters the fork choice and FFG layers compose over it.
package voteview

import (
	"github.com/rlmd-io/rlmdcore/chain/dag"
	"github.com/rlmd-io/rlmdcore/externalapi"
	"github.com/rlmd-io/rlmdcore/types"
)

// Dependencies groups the collaborators ValidVote needs to evaluate a
// vote against the current view.
type Dependencies struct {
	DAG      *dag.DAG
	Balances externalapi.ValidatorSetProvider
	Verifier externalapi.SignatureVerifier
}

// ValidVote reports whether v is admissible to the view: signature,
// head/checkpoint availability and topology, sender membership, and
// checkpoint slot consistency.
func ValidVote(deps Dependencies, v *types.SignedVote) bool {
	if !deps.Verifier.VerifyVote(v) {
		return false
	}
	msg := v.Message

	if !deps.DAG.HasBlock(msg.HeadHash) || !deps.DAG.IsCompleteChain(msg.HeadHash) {
		return false
	}

	headBlock := deps.DAG.GetBlock(msg.HeadHash)
	balances := deps.Balances.ValidatorSetForSlot(headBlock, msg.Slot)
	if !balances.Contains(v.Sender) {
		return false
	}

	src, tgt := msg.FFGSource, msg.FFGTarget
	if !deps.DAG.HasBlock(src.BlockHash) || !deps.DAG.HasBlock(tgt.BlockHash) {
		return false
	}
	if !deps.DAG.IsAncestorDescendant(src.BlockHash, tgt.BlockHash) {
		return false
	}
	if !deps.DAG.IsAncestorDescendant(tgt.BlockHash, msg.HeadHash) {
		return false
	}
	if src.ChkpSlot >= tgt.ChkpSlot {
		return false
	}
	if deps.DAG.GetBlock(src.BlockHash).Slot != src.BlockSlot {
		return false
	}
	if deps.DAG.GetBlock(tgt.BlockHash).Slot != tgt.BlockSlot {
		return false
	}
	return true
}

// FilterInvalid keeps only votes that satisfy ValidVote.
func FilterInvalid(deps Dependencies, votes []*types.SignedVote) []*types.SignedVote {
	out := make([]*types.SignedVote, 0, len(votes))
	for _, v := range votes {
		if ValidVote(deps, v) {
			out = append(out, v)
		}
	}
	return out
}

// FilterExpired removes votes older than the eta horizon:
// vote.slot + eta < current_slot.
func FilterExpired(votes []*types.SignedVote, currentSlot, eta uint64) []*types.SignedVote {
	out := make([]*types.SignedVote, 0, len(votes))
	for _, v := range votes {
		if v.Message.Slot+eta >= currentSlot {
			out = append(out, v)
		}
	}
	return out
}

// FilterEquivocating drops every vote whose sender cast another vote in
// view with the same slot but a different head_hash.
func FilterEquivocating(votes []*types.SignedVote) []*types.SignedVote {
	bySenderSlot := make(map[senderSlot]map[types.Hash]bool)
	for _, v := range votes {
		key := senderSlot{v.Sender, v.Message.Slot}
		if bySenderSlot[key] == nil {
			bySenderSlot[key] = make(map[types.Hash]bool)
		}
		bySenderSlot[key][v.Message.HeadHash] = true
	}

	equivocators := make(map[types.NodeIdentity]bool)
	for key, heads := range bySenderSlot {
		if len(heads) > 1 {
			equivocators[key.sender] = true
		}
	}

	out := make([]*types.SignedVote, 0, len(votes))
	for _, v := range votes {
		if !equivocators[v.Sender] {
			out = append(out, v)
		}
	}
	return out
}

type senderSlot struct {
	sender types.NodeIdentity
	slot   uint64
}

// FilterLMD keeps, per sender, only the vote with the greatest slot,
// ties broken deterministically by hash(vote).
func FilterLMD(votes []*types.SignedVote) []*types.SignedVote {
	best := make(map[types.NodeIdentity]*types.SignedVote)
	bestRoot := make(map[types.NodeIdentity][32]byte)

	for _, v := range votes {
		cur, ok := best[v.Sender]
		if !ok {
			best[v.Sender] = v
			bestRoot[v.Sender] = voteRoot(v)
			continue
		}
		if v.Message.Slot > cur.Message.Slot {
			best[v.Sender] = v
			bestRoot[v.Sender] = voteRoot(v)
			continue
		}
		if v.Message.Slot == cur.Message.Slot {
			root := voteRoot(v)
			if greater(root, bestRoot[v.Sender]) {
				best[v.Sender] = v
				bestRoot[v.Sender] = root
			}
		}
	}

	out := make([]*types.SignedVote, 0, len(best))
	for _, v := range best {
		out = append(out, v)
	}
	return out
}

func voteRoot(v *types.SignedVote) [32]byte {
	root, err := v.HashTreeRoot()
	if err != nil {
		panic(err)
	}
	return root
}

func greater(a, b [32]byte) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] > b[i]
		}
	}
	return false
}

// ReceivalTimeLookup resolves a vote's first-receipt time, as recorded in
// vote_receival_times.
type ReceivalTimeLookup func(types.VoteKey) (uint64, bool)

// FilterLateReceived keeps only votes whose first-receipt time is
// <= 4Δ·current_slot − Δ, i.e. received before MERGE of the previous
// slot. Bypassed entirely when acting as proposer.
func FilterLateReceived(votes []*types.SignedVote, receival ReceivalTimeLookup, delta, currentSlot uint64, isProposer bool) []*types.SignedVote {
	if isProposer {
		return votes
	}
	if currentSlot == 0 {
		// No previous slot exists; nothing can have been received before
		// its MERGE, so only the proposer bypass sees votes at slot 0.
		return nil
	}
	cutoff := types.PhasesPerSlot*delta*currentSlot - delta
	out := make([]*types.SignedVote, 0, len(votes))
	for _, v := range votes {
		t, ok := receival(v.Key())
		if !ok {
			continue
		}
		if t <= cutoff {
			out = append(out, v)
		}
	}
	return out
}
