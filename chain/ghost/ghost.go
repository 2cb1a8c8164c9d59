// Package ghost implements the strict-majority GHOST fork-choice engine:
// starting from a seed block, descend into the unique child whose weight
// strictly exceeds half of total_vote_weight, stopping as soon as no
// such child exists.
//
// total_vote_weight is fixed at the seed and threaded explicitly through
// every recursive descent; re-deriving it per level would let the
// threshold drift as votes fall outside the subtree.
package ghost

import (
	"github.com/rlmd-io/rlmdcore/chain/dag"
	"github.com/rlmd-io/rlmdcore/types"
)

// Engine computes GHOST heads over a DAG.
type Engine struct {
	dag *dag.DAG
}

// New returns an Engine over dag.
func New(d *dag.DAG) *Engine {
	return &Engine{dag: d}
}

// GetHead returns the GHOST head starting from seed, given the relevant
// vote set (invalid/equivocating/expired votes removed, LMD-reduced,
// late-received optionally dropped) and the balance mapping for
// (seed, current_slot).
func (e *Engine) GetHead(seed types.Hash, relevantVotes []*types.SignedVote, balances types.ValidatorBalances) types.Hash {
	totalVoteWeight := uniqueSenderWeight(relevantVotes, balances)
	return e.descend(seed, relevantVotes, balances, totalVoteWeight)
}

func (e *Engine) descend(node types.Hash, votes []*types.SignedVote, balances types.ValidatorBalances, totalVoteWeight uint64) types.Hash {
	children := e.dag.GetChildren(node)
	if len(children) == 0 {
		return node
	}

	var best types.Hash
	var bestWeight uint64
	found := false
	for _, child := range children {
		w := e.ghostWeight(child, votes, balances)
		if 2*w <= totalVoteWeight {
			continue
		}
		if !found || w > bestWeight || (w == bestWeight && tieBreak(child, best)) {
			best = child
			bestWeight = w
			found = true
		}
	}
	if !found {
		return node
	}
	return e.descend(best, votes, balances, totalVoteWeight)
}

// ghostWeight sums the stake of senders whose latest surviving vote has a
// head_hash descending from child (the GLOSSARY's "GHOST weight").
func (e *Engine) ghostWeight(child types.Hash, votes []*types.SignedVote, balances types.ValidatorBalances) uint64 {
	counted := make(map[types.NodeIdentity]bool)
	var weight uint64
	for _, v := range votes {
		if counted[v.Sender] {
			continue
		}
		if !e.dag.HasBlock(v.Message.HeadHash) {
			continue
		}
		if e.dag.IsAncestorDescendant(child, v.Message.HeadHash) {
			counted[v.Sender] = true
			weight += balances.WeightOf(v.Sender)
		}
	}
	return weight
}

func uniqueSenderWeight(votes []*types.SignedVote, balances types.ValidatorBalances) uint64 {
	counted := make(map[types.NodeIdentity]bool)
	var total uint64
	for _, v := range votes {
		if counted[v.Sender] {
			continue
		}
		counted[v.Sender] = true
		total += balances.WeightOf(v.Sender)
	}
	return total
}

func tieBreak(a, b types.Hash) bool {
	return a.Compare(b) > 0
}

// IsConfirmed reports whether block is an ancestor of head and its GHOST
// weight holds a ⅔ stake majority.
func (e *Engine) IsConfirmed(block, head types.Hash, votes []*types.SignedVote, balances types.ValidatorBalances) bool {
	if !e.dag.IsAncestorDescendant(block, head) {
		return false
	}
	total := balances.TotalWeight()
	if total == 0 {
		return false
	}
	return e.ghostWeight(block, votes, balances)*3 >= total*2
}
