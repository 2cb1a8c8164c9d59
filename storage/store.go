// Package storage defines the block/vote persistence interface consumed
// by the chain packages. Persistent storage is an external collaborator:
// the core never assumes a particular backend, only this contract.
package storage

import "github.com/rlmd-io/rlmdcore/types"

// Store is the persistence contract for blocks and votes. Implementations
// must be safe for concurrent use.
type Store interface {
	// PutBlock stores a block keyed by its content hash.
	PutBlock(hash types.Hash, block *types.Block)
	// GetBlock returns the block for hash and whether it was present.
	GetBlock(hash types.Hash) (*types.Block, bool)
	// HasBlock reports whether hash is present without copying the block.
	HasBlock(hash types.Hash) bool
	// AllBlocks returns every known block keyed by hash. Callers must not
	// mutate the returned map.
	AllBlocks() map[types.Hash]*types.Block

	// PutVote records a signed vote, deduplicated by its full tuple key.
	PutVote(vote *types.SignedVote)
	// AllVotes returns every known vote.
	AllVotes() []*types.SignedVote

	// PutReceivalTime records the wall time a vote was first seen, if and
	// only if no time is already recorded for that vote (set-once).
	PutReceivalTime(key types.VoteKey, t uint64)
	// ReceivalTime returns the recorded first-receipt time for a vote.
	ReceivalTime(key types.VoteKey) (uint64, bool)
}
