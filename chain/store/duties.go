package store

import (
	"fmt"

	"github.com/rlmd-io/rlmdcore/observability/logging"
	"github.com/rlmd-io/rlmdcore/types"
)

// Validator-facing duty computation: what a proposer publishes at
// the PROPOSE edge and what a voter signs at the VOTE edge. Signing
// itself happens outside the core; these return unsigned messages.

// BuildProposal assembles the block and accompanying proposer view for
// the current slot. Returns an error if id is not the designated
// proposer (oracle).
func (n *NodeState) BuildProposal(id types.NodeIdentity) (*types.ProposeMessage, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	slot := n.clock.SlotOf(n.time)
	if !n.deps.Proposer.IsProposer(id, slot) {
		return nil, fmt.Errorf("node %d is not proposer for slot %d", id, slot)
	}

	head := n.headLocked(true)
	block := &types.Block{
		ParentHash: head,
		Slot:       slot,
		Votes:      n.votesToIncludeInProposedBlockLocked(head),
		Body:       n.deps.BodyBuilder.BuildBlockBody(),
	}

	msg := &types.ProposeMessage{
		Block:        block,
		ProposerView: n.proposeMessageViewLocked(head),
	}

	// Deliver our own proposal locally; gossip has no self-delivery.
	hash := n.deps.Hasher.HashBlock(block)
	n.buffer.DeliverBlock(hash, block)

	log.Info("built proposal",
		"slot", slot,
		"proposer", uint64(id),
		"parent", logging.ShortHash(head),
		"votes", len(block.Votes),
		"view", len(msg.ProposerView),
	)
	return msg, nil
}

// votesToIncludeInProposedBlockLocked returns the valid votes whose head
// is on the chain of the proposed block's parent, minus votes already
// carried by a block on that chain.
func (n *NodeState) votesToIncludeInProposedBlockLocked(parent types.Hash) []*types.SignedVote {
	if !n.dag.HasBlock(parent) || !n.dag.IsCompleteChain(parent) {
		return nil
	}
	onChain := n.votesOnChainLocked(parent)

	var out []*types.SignedVote
	for _, v := range n.validVotesLocked() {
		if onChain[v.Key()] {
			continue
		}
		if n.dag.IsAncestorDescendant(v.Message.HeadHash, parent) {
			out = append(out, v)
		}
	}
	return out
}

// proposeMessageViewLocked returns the valid, non-expired votes for a
// descendant of the greatest justified block that are not already on the
// proposed chain, the proposer_view shipped alongside the block.
func (n *NodeState) proposeMessageViewLocked(parent types.Hash) []*types.SignedVote {
	gjBlock := n.greatestJustified.BlockHash
	onChain := n.votesOnChainLocked(parent)
	currentSlot := n.clock.SlotOf(n.time)

	var out []*types.SignedVote
	for _, v := range n.validVotesLocked() {
		if v.Message.Slot+n.config.Eta < currentSlot {
			continue
		}
		if onChain[v.Key()] {
			continue
		}
		if n.dag.HasBlock(v.Message.HeadHash) && n.dag.IsAncestorDescendant(gjBlock, v.Message.HeadHash) {
			out = append(out, v)
		}
	}
	return out
}

func (n *NodeState) votesOnChainLocked(tip types.Hash) map[types.VoteKey]bool {
	onChain := make(map[types.VoteKey]bool)
	if !n.dag.HasBlock(tip) || !n.dag.IsCompleteChain(tip) {
		return onChain
	}
	for _, hash := range n.dag.GetBlockchain(tip) {
		for _, v := range n.dag.GetBlock(hash).Votes {
			onChain[v.Key()] = true
		}
	}
	return onChain
}

// BuildVote computes the unsigned vote a validator casts at the VOTE
// edge: head from GHOST (is_proposer=false), source from the cached
// greatest justified checkpoint, target per the selection rule below.
func (n *NodeState) BuildVote() (*types.VoteMessage, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	slot := n.clock.SlotOf(n.time)
	head := n.headLocked(false)
	if !n.dag.HasBlock(head) {
		return nil, fmt.Errorf("no head block at slot %d", slot)
	}

	src := n.greatestJustified
	targetBlock := n.voteTargetLocked(head, src, slot)

	return &types.VoteMessage{
		Slot:     slot,
		HeadHash: head,
		FFGSource: &types.Checkpoint{
			BlockHash: src.BlockHash,
			ChkpSlot:  src.ChkpSlot,
			BlockSlot: src.BlockSlot,
		},
		FFGTarget: &types.Checkpoint{
			BlockHash: targetBlock,
			ChkpSlot:  slot,
			BlockSlot: n.dag.GetBlock(targetBlock).Slot,
		},
	}, nil
}

// voteTargetLocked picks the target block for an FFG vote: the highest
// confirmed ancestor of head not older than the k-deep slot, clamped so
// the target never precedes the source.
func (n *NodeState) voteTargetLocked(head types.Hash, src types.Checkpoint, slot uint64) types.Hash {
	headSlot := n.dag.GetBlock(head).Slot

	safe := kDeepSlot(headSlot, n.config.K)
	if src.BlockSlot > safe {
		safe = src.BlockSlot
	}

	targetSlot := safe
	if n.previousSlotJustifiedLocked(slot) && !n.inactivityLeakLocked(slot) {
		if n.confirmedSlot > targetSlot {
			targetSlot = n.confirmedSlot
		}
	}

	// Highest ancestor of head whose slot does not exceed targetSlot.
	target := head
	for {
		block := n.dag.GetBlock(target)
		if block.Slot <= targetSlot {
			return target
		}
		if target == n.genesisHash {
			return target
		}
		target = block.ParentHash
	}
}

func (n *NodeState) previousSlotJustifiedLocked(slot uint64) bool {
	if slot == 0 {
		return true
	}
	return n.justifiedChkpSlots[slot-1]
}

// inactivityLeakLocked reports whether finalization has stalled past the
// vote-expiry horizon, the point where only the safe target keeps the
// chain recoverable.
func (n *NodeState) inactivityLeakLocked(slot uint64) bool {
	return slot > n.greatestFinalized.ChkpSlot+n.config.Eta
}

func kDeepSlot(slot, k uint64) uint64 {
	if slot < k {
		return 0
	}
	return slot - k
}
