// Package ffg computes justified and finalized checkpoints over the
// supermajority-link graph derived from votes. Justification is
// mutually recursive over the checkpoint graph; this package materializes
// it via memoized dynamic programming in ascending (chkp_slot,
// block_slot) order, rather than by naive recursion.
package ffg

import (
	"sort"

	"github.com/rlmd-io/rlmdcore/chain/dag"
	"github.com/rlmd-io/rlmdcore/externalapi"
	"github.com/rlmd-io/rlmdcore/types"
)

// Engine computes justification/finalization given a DAG and a balance
// provider. Votes are supplied per call already filtered to valid_vote
// by the caller.
type Engine struct {
	dag      *dag.DAG
	balances externalapi.ValidatorSetProvider
}

// New returns an Engine over dag using balances for stake lookups.
func New(d *dag.DAG, balances externalapi.ValidatorSetProvider) *Engine {
	return &Engine{dag: d, balances: balances}
}

type checkpointKey struct {
	root      types.Hash
	chkpSlot  uint64
	blockSlot uint64
}

func keyOf(c types.Checkpoint) checkpointKey {
	return checkpointKey{c.BlockHash, c.ChkpSlot, c.BlockSlot}
}

// Justified returns every justified checkpoint reachable from votes,
// always including genesis.
func (e *Engine) Justified(votes []*types.SignedVote, genesis types.Checkpoint) map[types.Checkpoint]bool {
	candidates := make(map[checkpointKey]types.Checkpoint)
	candidates[keyOf(genesis)] = genesis
	for _, v := range votes {
		candidates[keyOf(*v.Message.FFGSource)] = *v.Message.FFGSource
		candidates[keyOf(*v.Message.FFGTarget)] = *v.Message.FFGTarget
	}

	ordered := make([]types.Checkpoint, 0, len(candidates))
	for _, c := range candidates {
		ordered = append(ordered, c)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Less(ordered[j]) })

	justified := make(map[checkpointKey]bool, len(candidates))
	justified[keyOf(genesis)] = true

	for _, c := range ordered {
		if keyOf(c) == keyOf(genesis) {
			continue
		}
		if e.isJustified(c, votes, justified) {
			justified[keyOf(c)] = true
		}
	}

	out := make(map[types.Checkpoint]bool, len(justified))
	for k := range justified {
		out[candidates[k]] = true
	}
	return out
}

// isJustified evaluates the supermajority rule for c, using
// justifiedSoFar (checkpoints at strictly smaller chkp_slot, already
// decided by the ascending processing order, which is what bounds the
// recursion).
func (e *Engine) isJustified(c types.Checkpoint, votes []*types.SignedVote, justifiedSoFar map[checkpointKey]bool) bool {
	if !e.dag.HasBlock(c.BlockHash) {
		return false
	}
	balances := e.balances.ValidatorSetForSlot(e.dag.GetBlock(c.BlockHash), c.BlockSlot)
	total := balances.TotalWeight()
	if total == 0 {
		return false
	}

	counted := make(map[types.NodeIdentity]bool)
	var support uint64
	for _, v := range votes {
		tgt, src := v.Message.FFGTarget, v.Message.FFGSource
		if tgt.ChkpSlot != c.ChkpSlot {
			continue
		}
		if !e.dag.IsAncestorDescendant(c.BlockHash, tgt.BlockHash) {
			continue
		}
		if !e.dag.IsAncestorDescendant(src.BlockHash, c.BlockHash) {
			continue
		}
		if !justifiedSoFar[keyOf(*src)] {
			continue
		}
		if counted[v.Sender] {
			continue
		}
		counted[v.Sender] = true
		support += balances.WeightOf(v.Sender)
	}
	return support*3 >= total*2
}

// GreatestJustified returns the max by (chkp_slot, block_slot).
func GreatestJustified(justified map[types.Checkpoint]bool) types.Checkpoint {
	return greatest(justified)
}

// Finalized returns every finalized checkpoint: justified, with a
// supermajority-supported FFG-link to a justified checkpoint at the next
// chkp_slot. Genesis is vacuously finalized.
func (e *Engine) Finalized(justified map[types.Checkpoint]bool, votes []*types.SignedVote) map[types.Checkpoint]bool {
	finalized := make(map[types.Checkpoint]bool)
	for c := range justified {
		if c.ChkpSlot == 0 {
			finalized[c] = true
		}
	}
	for c := range justified {
		for cprime := range justified {
			if cprime.ChkpSlot != c.ChkpSlot+1 {
				continue
			}
			if e.linkSupported(c, cprime, votes) {
				finalized[c] = true
			}
		}
	}
	return finalized
}

func (e *Engine) linkSupported(c, cprime types.Checkpoint, votes []*types.SignedVote) bool {
	if !e.dag.HasBlock(cprime.BlockHash) {
		return false
	}
	balances := e.balances.ValidatorSetForSlot(e.dag.GetBlock(cprime.BlockHash), cprime.BlockSlot)
	total := balances.TotalWeight()
	if total == 0 {
		return false
	}
	counted := make(map[types.NodeIdentity]bool)
	var support uint64
	for _, v := range votes {
		if !v.Message.FFGSource.Equal(c) || !v.Message.FFGTarget.Equal(cprime) {
			continue
		}
		if counted[v.Sender] {
			continue
		}
		counted[v.Sender] = true
		support += balances.WeightOf(v.Sender)
	}
	return support*3 >= total*2
}

// GreatestFinalized returns the max finalized checkpoint by chkp_slot.
func GreatestFinalized(finalized map[types.Checkpoint]bool) types.Checkpoint {
	return greatest(finalized)
}

func greatest(set map[types.Checkpoint]bool) types.Checkpoint {
	var best types.Checkpoint
	first := true
	for c := range set {
		if first || best.Less(c) {
			best = c
			first = false
		}
	}
	return best
}
