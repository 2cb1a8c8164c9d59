// Package memory provides an in-memory storage.Store, the reference
// persistence backend used by tests and the node binary.
package memory

import (
	"sync"

	"github.com/rlmd-io/rlmdcore/storage"
	"github.com/rlmd-io/rlmdcore/types"
)

// Store is a mutex-guarded, map-backed storage.Store.
type Store struct {
	mu sync.RWMutex

	blocks   map[types.Hash]*types.Block
	votes    map[types.VoteKey]*types.SignedVote
	receival map[types.VoteKey]uint64
}

var _ storage.Store = (*Store)(nil)

// New returns an empty in-memory store.
func New() *Store {
	return &Store{
		blocks:   make(map[types.Hash]*types.Block),
		votes:    make(map[types.VoteKey]*types.SignedVote),
		receival: make(map[types.VoteKey]uint64),
	}
}

func (s *Store) PutBlock(hash types.Hash, block *types.Block) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blocks[hash] = block
}

func (s *Store) GetBlock(hash types.Hash) (*types.Block, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.blocks[hash]
	return b, ok
}

func (s *Store) HasBlock(hash types.Hash) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.blocks[hash]
	return ok
}

func (s *Store) AllBlocks() map[types.Hash]*types.Block {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[types.Hash]*types.Block, len(s.blocks))
	for h, b := range s.blocks {
		out[h] = b
	}
	return out
}

func (s *Store) PutVote(vote *types.SignedVote) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.votes[vote.Key()] = vote
}

func (s *Store) AllVotes() []*types.SignedVote {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*types.SignedVote, 0, len(s.votes))
	for _, v := range s.votes {
		out = append(out, v)
	}
	return out
}

func (s *Store) PutReceivalTime(key types.VoteKey, t uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.receival[key]; ok {
		return
	}
	s.receival[key] = t
}

func (s *Store) ReceivalTime(key types.VoteKey) (uint64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.receival[key]
	return t, ok
}
