// Package store assembles the DAG, vote view, FFG engine, GHOST engine,
// view-merge buffer and slashing detector into the per-node NodeState:
// the public on_tick/on_receive_*/query surface the rest of a node is
// built on.
package store

import (
	"log/slog"
	"sync"
	"time"

	"github.com/rlmd-io/rlmdcore/chain/clock"
	"github.com/rlmd-io/rlmdcore/chain/dag"
	"github.com/rlmd-io/rlmdcore/chain/ffg"
	"github.com/rlmd-io/rlmdcore/chain/ghost"
	"github.com/rlmd-io/rlmdcore/chain/slashing"
	"github.com/rlmd-io/rlmdcore/chain/viewmerge"
	"github.com/rlmd-io/rlmdcore/chain/voteview"
	"github.com/rlmd-io/rlmdcore/externalapi"
	"github.com/rlmd-io/rlmdcore/observability/logging"
	"github.com/rlmd-io/rlmdcore/observability/metrics"
	"github.com/rlmd-io/rlmdcore/storage"
	"github.com/rlmd-io/rlmdcore/types"
)

var log = logging.NewComponentLogger(logging.CompConsensus)

// Collaborators groups the external interfaces a NodeState depends on.
// None of them are implemented by this package.
type Collaborators struct {
	Hasher      externalapi.BlockHasher
	Verifier    externalapi.SignatureVerifier
	Balances    externalapi.ValidatorSetProvider
	BodyBuilder externalapi.BlockBodyBuilder
	Proposer    externalapi.ProposerOracle
}

// NodeState is the per-node consensus core: time, the block/vote
// view, staging buffers, and the cached greatest_justified_checkpoint /
// highest_candidate_block used to seed fork choice.
type NodeState struct {
	mu sync.Mutex

	time  uint64
	clock clock.Clock
	phase clock.Phase

	config types.Configuration
	deps   Collaborators

	store  storage.Store
	dag    *dag.DAG
	buffer *viewmerge.Buffer
	ffg    *ffg.Engine
	ghost  *ghost.Engine

	genesisHash types.Hash
	genesisCkpt types.Checkpoint

	greatestJustified     types.Checkpoint
	greatestFinalized     types.Checkpoint
	justifiedChkpSlots    map[uint64]bool
	highestCandidateBlock types.Hash
	confirmedSlot         uint64
}

// New constructs a NodeState anchored at config.Genesis.
func New(config types.Configuration, deps Collaborators, backing storage.Store) *NodeState {
	genesisHash := deps.Hasher.HashBlock(config.Genesis)
	backing.PutBlock(genesisHash, config.Genesis)

	d := dag.New(backing, genesisHash)
	genesisCkpt := types.GenesisCheckpoint(genesisHash)

	return &NodeState{
		clock:                 clock.New(config.Delta),
		config:                config,
		deps:                  deps,
		store:                 backing,
		dag:                   d,
		buffer:                viewmerge.New(backing),
		ffg:                   ffg.New(d, deps.Balances),
		ghost:                 ghost.New(d),
		genesisHash:           genesisHash,
		genesisCkpt:           genesisCkpt,
		greatestJustified:     genesisCkpt,
		greatestFinalized:     genesisCkpt,
		justifiedChkpSlots:    map[uint64]bool{0: true},
		highestCandidateBlock: genesisHash,
	}
}

// CurrentSlot returns slot_of(time).
func (n *NodeState) CurrentSlot() uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.clock.SlotOf(n.time)
}

// CurrentPhase returns the phase at the current time.
func (n *NodeState) CurrentPhase() clock.Phase {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.phase
}

// OnTick advances time to the given tick, executing phase-edge actions
// atomically. Ticks in the past are ignored; jumps over several phases
// replay every skipped edge in order so state stays deterministic under
// coarse tickers.
func (n *NodeState) OnTick(time uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for n.time < time {
		n.time++
		n.phase = n.clock.PhaseOf(n.time)
		if n.clock.PhaseEdge(n.time) {
			n.onPhaseEdgeLocked()
		}
	}
}

func (n *NodeState) onPhaseEdgeLocked() {
	switch n.phase {
	case clock.Confirm:
		n.recomputeConfirmedSlotLocked()
	case clock.Merge:
		start := time.Now()
		pendingBlocks, pendingVotes := n.buffer.PendingBlockCount(), n.buffer.PendingVoteCount()
		n.buffer.Merge(n.time)
		n.recomputeGreatestJustifiedLocked()
		n.recomputeHighestCandidateBlockLocked() // must follow greatest-justified update
		metrics.ViewMergeTime.Observe(time.Since(start).Seconds())
		metrics.BufferedBlocks.Set(0)
		metrics.BufferedVotes.Set(0)
		log.Debug("view merge",
			slog.Uint64("slot", n.clock.SlotOf(n.time)),
			slog.Int("merged_blocks", pendingBlocks),
			slog.Int("merged_votes", pendingVotes),
			slog.Uint64("justified_slot", n.greatestJustified.ChkpSlot),
			slog.Uint64("finalized_slot", n.greatestFinalized.ChkpSlot),
		)
	}
}

// OnReceiveBlock stages a block into the buffer. Votes embedded in
// the block are harvested at the next view-merge, not immediately.
func (n *NodeState) OnReceiveBlock(block *types.Block) {
	n.mu.Lock()
	defer n.mu.Unlock()
	hash := n.deps.Hasher.HashBlock(block)
	n.buffer.StageBlock(hash, block)
	metrics.BufferedBlocks.Set(float64(n.buffer.PendingBlockCount()))
}

// OnReceiveVote stages a vote into the buffer, recording its first
// receipt time.
func (n *NodeState) OnReceiveVote(vote *types.SignedVote) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.buffer.StageVote(vote, n.time)
	metrics.BufferedVotes.Set(float64(n.buffer.PendingVoteCount()))
}

// OnReceivePropose handles a Propose message: the proposed block and the
// bundled proposer_view both bypass the buffer so the subsequent VOTE
// phase runs on the proposer's extended view.
func (n *NodeState) OnReceivePropose(msg *types.SignedProposeMessage) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.deps.Verifier.VerifyPropose(msg) {
		return
	}
	hash := n.deps.Hasher.HashBlock(msg.Message.Block)
	n.buffer.DeliverBlock(hash, msg.Message.Block)
	n.buffer.MergeProposerView(msg.Message.ProposerView, n.time)
}

func (n *NodeState) recomputeGreatestJustifiedLocked() {
	votes := n.validVotesLocked()
	justified := n.ffg.Justified(votes, n.genesisCkpt)

	gj := ffg.GreatestJustified(justified)
	if n.greatestJustified.Less(gj) {
		n.greatestJustified = gj
	}
	n.justifiedChkpSlots = make(map[uint64]bool, len(justified))
	for c := range justified {
		n.justifiedChkpSlots[c.ChkpSlot] = true
	}

	finalized := n.ffg.Finalized(justified, votes)
	gf := ffg.GreatestFinalized(finalized)
	if n.greatestFinalized.Less(gf) {
		n.greatestFinalized = gf
	}

	metrics.LatestJustifiedSlot.Set(float64(n.greatestJustified.ChkpSlot))
	metrics.LatestFinalizedSlot.Set(float64(n.greatestFinalized.ChkpSlot))
}

// recomputeHighestCandidateBlockLocked picks the fork-choice seed: among
// descendants of greatest_justified_block for which the previous slot's
// votes form a recent ⅔-supermajority GHOST weight, pick the one with
// greatest slot; else fall back to the greatest justified block itself.
func (n *NodeState) recomputeHighestCandidateBlockLocked() {
	root := n.greatestJustified.BlockHash
	if !n.dag.HasBlock(root) {
		n.highestCandidateBlock = n.genesisHash
		return
	}

	currentSlot := n.clock.SlotOf(n.time)
	votes := n.previousSlotVotesLocked(currentSlot)
	balances := n.deps.Balances.ValidatorSetForSlot(n.dag.GetBlock(root), currentSlot)
	total := balances.TotalWeight()

	best := root
	bestSlot := n.dag.GetBlock(root).Slot
	for hash := range n.store.AllBlocks() {
		if !n.dag.IsAncestorDescendant(root, hash) {
			continue
		}
		block := n.dag.GetBlock(hash)
		if block.Slot <= bestSlot {
			continue
		}
		if n.isRecentQuorumForBlockLocked(hash, votes, balances, total) {
			best = hash
			bestSlot = block.Slot
		}
	}
	n.highestCandidateBlock = best
}

// previousSlotVotesLocked reduces the view to the LMD votes cast in the
// slot before currentSlot, the "recent" vote set the candidate rule
// quorum-checks against.
func (n *NodeState) previousSlotVotesLocked(currentSlot uint64) []*types.SignedVote {
	if currentSlot == 0 {
		return nil
	}
	prev := currentSlot - 1
	votes := voteview.FilterLMD(voteview.FilterEquivocating(n.validVotesLocked()))
	out := make([]*types.SignedVote, 0, len(votes))
	for _, v := range votes {
		if v.Message.Slot == prev {
			out = append(out, v)
		}
	}
	return out
}

func (n *NodeState) isRecentQuorumForBlockLocked(block types.Hash, votes []*types.SignedVote, balances types.ValidatorBalances, total uint64) bool {
	if total == 0 {
		return false
	}
	counted := make(map[types.NodeIdentity]bool)
	var weight uint64
	for _, v := range votes {
		if counted[v.Sender] {
			continue
		}
		if !n.dag.HasBlock(v.Message.HeadHash) {
			continue
		}
		if n.dag.IsAncestorDescendant(block, v.Message.HeadHash) {
			counted[v.Sender] = true
			weight += balances.WeightOf(v.Sender)
		}
	}
	return weight*3 >= total*2
}

func (n *NodeState) recomputeConfirmedSlotLocked() {
	head := n.headLocked(false)
	if !n.dag.HasBlock(head) {
		n.confirmedSlot = 0
		return
	}
	votes := n.relevantVotesLocked(false)
	balances := n.deps.Balances.ValidatorSetForSlot(n.dag.GetBlock(head), n.clock.SlotOf(n.time))

	best := uint64(0)
	for _, hash := range n.dag.GetBlockchain(head) {
		if n.ghost.IsConfirmed(hash, head, votes, balances) {
			slot := n.dag.GetBlock(hash).Slot
			if slot > best {
				best = slot
			}
		}
	}
	n.confirmedSlot = best
	metrics.ConfirmedSlot.Set(float64(best))
}

func (n *NodeState) validVotesLocked() []*types.SignedVote {
	start := time.Now()
	deps := voteview.Dependencies{DAG: n.dag, Balances: n.deps.Balances, Verifier: n.deps.Verifier}
	votes := voteview.FilterInvalid(deps, n.store.AllVotes())
	metrics.VoteValidationTime.Observe(time.Since(start).Seconds())
	return votes
}

// relevantVotesLocked reduces the view to fork-choice-relevant votes:
// valid, non-equivocating,
// non-expired, LMD-reduced votes, optionally dropping late-received ones.
func (n *NodeState) relevantVotesLocked(isProposer bool) []*types.SignedVote {
	currentSlot := n.clock.SlotOf(n.time)
	votes := n.validVotesLocked()
	votes = voteview.FilterEquivocating(votes)
	votes = voteview.FilterExpired(votes, currentSlot, n.config.Eta)
	votes = voteview.FilterLMD(votes)
	return voteview.FilterLateReceived(votes, n.store.ReceivalTime, n.config.Delta, currentSlot, isProposer)
}

func (n *NodeState) headLocked(isProposer bool) types.Hash {
	seed := n.highestCandidateBlock
	if !n.dag.HasBlock(seed) {
		seed = n.genesisHash
	}
	votes := n.relevantVotesLocked(isProposer)
	balances := n.deps.Balances.ValidatorSetForSlot(n.dag.GetBlock(seed), n.clock.SlotOf(n.time))
	return n.ghost.GetHead(seed, votes, balances)
}

// Head returns the canonical chain tip, as a voter would see it
// (is_proposer=false); proposers must call HeadForProposal instead so
// that late-received votes are not dropped.
func (n *NodeState) Head() types.Hash {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.headLocked(false)
}

// HeadForProposal returns get_head(is_proposer=true).
func (n *NodeState) HeadForProposal() types.Hash {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.headLocked(true)
}

// GreatestJustifiedCheckpoint returns the cached greatest_justified_checkpoint.
func (n *NodeState) GreatestJustifiedCheckpoint() types.Checkpoint {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.greatestJustified
}

// GreatestFinalizedCheckpoint returns the cached greatest_finalized_checkpoint.
func (n *NodeState) GreatestFinalizedCheckpoint() types.Checkpoint {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.greatestFinalized
}

// IsConfirmed reports whether block is an ancestor of the current head
// with ⅔ GHOST-weight support.
func (n *NodeState) IsConfirmed(block types.Hash) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	head := n.headLocked(false)
	votes := n.relevantVotesLocked(false)
	balances := n.deps.Balances.ValidatorSetForSlot(n.dag.GetBlock(head), n.clock.SlotOf(n.time))
	return n.ghost.IsConfirmed(block, head, votes, balances)
}

// SlashableNodes returns every sender implicated in an equivocation or
// surround pair currently in view.
func (n *NodeState) SlashableNodes() map[types.NodeIdentity]bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	flagged := slashing.SlashableNodes(n.store.AllVotes())
	metrics.SlashableNodes.Set(float64(len(flagged)))
	return flagged
}

// GenesisHash returns the fixed genesis block hash.
func (n *NodeState) GenesisHash() types.Hash {
	return n.genesisHash
}

// DAG exposes the underlying block DAG for read-only queries by the node
// package (status answers, slot logging, sync) and for test fixtures.
func (n *NodeState) DAG() *dag.DAG { return n.dag }

// Store exposes the underlying storage for callers that need to inspect
// the raw view (e.g. sync-on-MissingAncestor).
func (n *NodeState) Store() storage.Store { return n.store }
