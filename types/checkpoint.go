package types

import ssz "github.com/ferranbt/fastssz"

// Checkpoint identifies a block in the FFG lattice. Unlike a plain
// (root, slot) pair, it carries two slot dimensions: ChkpSlot is the
// logical FFG "epoch" slot that the checkpoint occupies, BlockSlot is the
// slot of the block it points at (they diverge whenever the checkpointed
// block is not itself the first block of ChkpSlot, e.g. after a skipped
// slot). Ordered lexicographically by (ChkpSlot, BlockSlot).
type Checkpoint struct {
	BlockHash Hash `ssz-size:"32"`
	ChkpSlot  uint64
	BlockSlot uint64
}

// GenesisCheckpoint returns the fixed checkpoint { hash(genesis), 0, 0 },
// which is justified and finalized vacuously.
func GenesisCheckpoint(genesisHash Hash) Checkpoint {
	return Checkpoint{BlockHash: genesisHash, ChkpSlot: 0, BlockSlot: 0}
}

// Less orders checkpoints by (ChkpSlot, BlockSlot), tie-broken by block
// hash bytes so orderings are total and deterministic.
func (c Checkpoint) Less(other Checkpoint) bool {
	if c.ChkpSlot != other.ChkpSlot {
		return c.ChkpSlot < other.ChkpSlot
	}
	if c.BlockSlot != other.BlockSlot {
		return c.BlockSlot < other.BlockSlot
	}
	return c.BlockHash.Compare(other.BlockHash) < 0
}

// Equal reports whether two checkpoints identify the same lattice point.
func (c Checkpoint) Equal(other Checkpoint) bool {
	return c.BlockHash == other.BlockHash && c.ChkpSlot == other.ChkpSlot && c.BlockSlot == other.BlockSlot
}

func (c *Checkpoint) HashTreeRoot() ([32]byte, error) {
	return ssz.HashWithDefaultHasher(c)
}

func (c *Checkpoint) HashTreeRootWith(hh *ssz.Hasher) error {
	indx := hh.Index()
	hh.PutBytes(c.BlockHash[:])
	hh.PutUint64(c.ChkpSlot)
	hh.PutUint64(c.BlockSlot)
	hh.Merkleize(indx)
	return nil
}

func (c *Checkpoint) SizeSSZ() int { return 48 }

func (c *Checkpoint) MarshalSSZTo(buf []byte) ([]byte, error) {
	buf = append(buf, c.BlockHash[:]...)
	buf = ssz.MarshalUint64(buf, c.ChkpSlot)
	buf = ssz.MarshalUint64(buf, c.BlockSlot)
	return buf, nil
}

func (c *Checkpoint) MarshalSSZ() ([]byte, error) {
	return c.MarshalSSZTo(make([]byte, 0, c.SizeSSZ()))
}

func (c *Checkpoint) UnmarshalSSZ(buf []byte) error {
	if len(buf) != c.SizeSSZ() {
		return ssz.ErrSize
	}
	copy(c.BlockHash[:], buf[0:32])
	c.ChkpSlot = ssz.UnmarshallUint64(buf[32:40])
	c.BlockSlot = ssz.UnmarshallUint64(buf[40:48])
	return nil
}
