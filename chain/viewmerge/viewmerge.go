// Package viewmerge implements the per-node staging area: gossip
// arriving mid-slot lands in buffer_blocks/buffer_votes and is only
// promoted into the canonical view at the MERGE phase edge, so that a
// VOTE-phase computation cannot be flipped by adversarial late release.
package viewmerge

import (
	"sync"

	"github.com/rlmd-io/rlmdcore/storage"
	"github.com/rlmd-io/rlmdcore/types"
)

// Buffer holds staged blocks/votes in front of a canonical storage.Store.
type Buffer struct {
	mu    sync.Mutex
	store storage.Store

	bufferBlocks map[types.Hash]*types.Block
	bufferVotes  map[types.VoteKey]*types.SignedVote
}

// New returns an empty Buffer in front of store.
func New(store storage.Store) *Buffer {
	return &Buffer{
		store:        store,
		bufferBlocks: make(map[types.Hash]*types.Block),
		bufferVotes:  make(map[types.VoteKey]*types.SignedVote),
	}
}

// StageBlock places a block into buffer_blocks unless it is already
// present in the buffer or the view. No receipt time is recorded for
// blocks.
func (b *Buffer) StageBlock(hash types.Hash, block *types.Block) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.store.HasBlock(hash) {
		return
	}
	if _, ok := b.bufferBlocks[hash]; ok {
		return
	}
	b.bufferBlocks[hash] = block
}

// StageVote places a vote into buffer_votes. vote_receival_times is set
// on first observation and never updated thereafter.
func (b *Buffer) StageVote(vote *types.SignedVote, receivedAt uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	key := vote.Key()
	b.store.PutReceivalTime(key, receivedAt)
	if _, ok := b.bufferVotes[key]; ok {
		return
	}
	b.bufferVotes[key] = vote
}

// DeliverBlock puts a block straight into the canonical view, dropping
// any staged copy. The Propose-receipt path and a proposer's own freshly
// built block use this, so those blocks enter the view immediately
// rather than waiting for MERGE.
func (b *Buffer) DeliverBlock(hash types.Hash, block *types.Block) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.bufferBlocks, hash)
	b.store.PutBlock(hash, block)
}

// MergeProposerView delivers a Propose message's bundled proposer_view
// directly into the canonical view, bypassing the buffer so the node's
// very next VOTE computation sees the extended view.
func (b *Buffer) MergeProposerView(votes []*types.SignedVote, receivedAt uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, v := range votes {
		b.store.PutReceivalTime(v.Key(), receivedAt)
		b.store.PutVote(v)
	}
}

// Merge executes the view-merge step at a MERGE phase edge:
// blocks ← blocks ∪ buffer_blocks
// votes  ← votes ∪ buffer_votes ∪ votes-extracted-from-all-known-blocks
// then clears both buffers. now stamps the first-receipt time of votes
// harvested out of block bodies, since harvesting is their first entry
// into the view.
func (b *Buffer) Merge(now uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for hash, block := range b.bufferBlocks {
		b.store.PutBlock(hash, block)
	}
	for _, vote := range b.bufferVotes {
		b.store.PutVote(vote)
	}
	for _, block := range b.store.AllBlocks() {
		for _, vote := range block.Votes {
			b.store.PutReceivalTime(vote.Key(), now)
			b.store.PutVote(vote)
		}
	}

	b.bufferBlocks = make(map[types.Hash]*types.Block)
	b.bufferVotes = make(map[types.VoteKey]*types.SignedVote)
}

// PendingBlockCount and PendingVoteCount expose buffer depth for
// diagnostics/metrics.
func (b *Buffer) PendingBlockCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.bufferBlocks)
}

func (b *Buffer) PendingVoteCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.bufferVotes)
}
