// Package dag implements the block DAG: content-addressed lookup plus
// ancestor/descendant queries over the block store, memoized so that
// repeated ancestor walks stay linear in view size.
package dag

import (
	"sync"

	"github.com/rlmd-io/rlmdcore/storage"
	"github.com/rlmd-io/rlmdcore/types"
)

// DAG wraps a storage.Store with memoized ancestor queries.
type DAG struct {
	store   storage.Store
	genesis types.Hash

	// Cached full-chain walks, tip-keyed and genesis-last. Parent links
	// are immutable, so entries stay valid as the view grows; new blocks
	// simply get their own entries on first walk.
	mu       sync.Mutex
	ancestry map[types.Hash][]types.Hash
}

// New returns a DAG rooted at genesisHash.
func New(store storage.Store, genesisHash types.Hash) *DAG {
	return &DAG{
		store:    store,
		genesis:  genesisHash,
		ancestry: make(map[types.Hash][]types.Hash),
	}
}

// HasBlock reports whether h is known.
func (d *DAG) HasBlock(h types.Hash) bool {
	return d.store.HasBlock(h)
}

// GetBlock returns the block for h. Precondition: HasBlock(h).
func (d *DAG) GetBlock(h types.Hash) *types.Block {
	b, ok := d.store.GetBlock(h)
	if !ok {
		panic("dag: get_block precondition violated: block not present")
	}
	return b
}

// HasParent reports whether b's parent is present in view.
func (d *DAG) HasParent(h types.Hash) bool {
	b, ok := d.store.GetBlock(h)
	if !ok {
		return false
	}
	if b.ParentHash == d.genesis || b.ParentHash.IsZero() {
		return true
	}
	return d.store.HasBlock(b.ParentHash)
}

// GetParent returns h's parent hash. Precondition: HasParent(h).
func (d *DAG) GetParent(h types.Hash) types.Hash {
	b := d.GetBlock(h)
	return b.ParentHash
}

// IsCompleteChain reports whether repeatedly following parent_hash from h
// reaches genesis without gaps.
func (d *DAG) IsCompleteChain(h types.Hash) bool {
	limit := maxChainWalk(d.store)
	cur := h
	seen := 0
	for {
		if cur == d.genesis {
			return true
		}
		b, ok := d.store.GetBlock(cur)
		if !ok {
			return false
		}
		if b.ParentHash == cur {
			return false // malformed self-parent, never a complete chain
		}
		cur = b.ParentHash
		seen++
		if seen > limit {
			return false // cycle guard; a well-formed DAG never loops
		}
	}
}

func maxChainWalk(store storage.Store) int {
	n := len(store.AllBlocks())
	if n < 1<<16 {
		return 1 << 16
	}
	return n + 1
}

// GetBlockchain returns [b, parent(b), ..., genesis]. Requires a complete
// chain.
func (d *DAG) GetBlockchain(h types.Hash) []types.Hash {
	if chain, ok := d.lookupAncestry(h); ok {
		return chain
	}
	var chain []types.Hash
	cur := h
	for {
		chain = append(chain, cur)
		if cur == d.genesis {
			break
		}
		b, ok := d.store.GetBlock(cur)
		if !ok {
			panic("dag: get_blockchain precondition violated: incomplete chain")
		}
		cur = b.ParentHash
	}
	d.storeAncestry(h, chain)
	return chain
}

func (d *DAG) lookupAncestry(h types.Hash) ([]types.Hash, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	chain, ok := d.ancestry[h]
	return chain, ok
}

func (d *DAG) storeAncestry(h types.Hash, chain []types.Hash) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ancestry[h] = chain
}

// IsAncestorDescendant reports whether a == d || a is an ancestor of d,
// reflexively.
func (d *DAG) IsAncestorDescendant(ancestor, descendant types.Hash) bool {
	if ancestor == descendant {
		return true
	}
	limit := maxChainWalk(d.store)
	cur := descendant
	seen := 0
	for {
		b, ok := d.store.GetBlock(cur)
		if !ok {
			return false
		}
		if b.ParentHash == ancestor {
			return true
		}
		if b.ParentHash == cur {
			return false
		}
		cur = b.ParentHash
		seen++
		if seen > limit {
			return false
		}
		if cur == d.genesis && cur != ancestor {
			return false
		}
	}
}

// GetChildren returns every known block whose parent is h.
func (d *DAG) GetChildren(h types.Hash) []types.Hash {
	var children []types.Hash
	for hash, b := range d.store.AllBlocks() {
		if b.ParentHash == h {
			children = append(children, hash)
		}
	}
	return children
}

// Genesis returns the DAG's genesis hash.
func (d *DAG) Genesis() types.Hash { return d.genesis }
