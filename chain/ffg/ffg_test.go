package ffg

import (
	"testing"

	"github.com/rlmd-io/rlmdcore/chain/dag"
	"github.com/rlmd-io/rlmdcore/storage/memory"
	"github.com/rlmd-io/rlmdcore/types"
)

type staticBalances types.ValidatorBalances

func (b staticBalances) ValidatorSetForSlot(*types.Block, uint64) types.ValidatorBalances {
	return types.ValidatorBalances(b)
}

func makeBlock(t *testing.T, parent types.Hash, slot uint64) (*types.Block, types.Hash) {
	t.Helper()
	b := &types.Block{ParentHash: parent, Slot: slot, Body: &types.BlockBody{}}
	root, err := b.HashTreeRoot()
	if err != nil {
		t.Fatalf("hash block: %v", err)
	}
	return b, types.Hash(root)
}

func makeVote(sender types.NodeIdentity, slot uint64, head types.Hash, src, tgt types.Checkpoint) *types.SignedVote {
	return &types.SignedVote{
		Message: &types.VoteMessage{
			Slot:      slot,
			HeadHash:  head,
			FFGSource: &src,
			FFGTarget: &tgt,
		},
		Sender: sender,
	}
}

// fixture: genesis <- b1 <- b2, three validators of weight 1.
type fixture struct {
	engine      *Engine
	genesisCkpt types.Checkpoint
	c1          types.Checkpoint // (b1, 1, 1)
	c2          types.Checkpoint // (b2, 2, 2)
	b1Hash      types.Hash
	b2Hash      types.Hash
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.New()
	genesis, genesisHash := makeBlock(t, types.ZeroHash, 0)
	store.PutBlock(genesisHash, genesis)
	b1, b1Hash := makeBlock(t, genesisHash, 1)
	store.PutBlock(b1Hash, b1)
	b2, b2Hash := makeBlock(t, b1Hash, 2)
	store.PutBlock(b2Hash, b2)

	d := dag.New(store, genesisHash)
	return &fixture{
		engine:      New(d, staticBalances{0: 1, 1: 1, 2: 1}),
		genesisCkpt: types.GenesisCheckpoint(genesisHash),
		c1:          types.Checkpoint{BlockHash: b1Hash, ChkpSlot: 1, BlockSlot: 1},
		c2:          types.Checkpoint{BlockHash: b2Hash, ChkpSlot: 2, BlockSlot: 2},
		b1Hash:      b1Hash,
		b2Hash:      b2Hash,
	}
}

func TestGenesisAlwaysJustified(t *testing.T) {
	f := newFixture(t)
	justified := f.engine.Justified(nil, f.genesisCkpt)
	if !justified[f.genesisCkpt] {
		t.Fatal("genesis checkpoint must be justified with no votes")
	}
	if got := GreatestJustified(justified); !got.Equal(f.genesisCkpt) {
		t.Fatalf("greatest justified = %+v, want genesis", got)
	}
}

func TestJustifyCheckpoint(t *testing.T) {
	f := newFixture(t)
	votes := []*types.SignedVote{
		makeVote(0, 1, f.b1Hash, f.genesisCkpt, f.c1),
		makeVote(1, 1, f.b1Hash, f.genesisCkpt, f.c1),
		makeVote(2, 1, f.b1Hash, f.genesisCkpt, f.c1),
	}

	justified := f.engine.Justified(votes, f.genesisCkpt)
	if !justified[f.c1] {
		t.Fatal("three of three votes must justify the checkpoint")
	}
	if got := GreatestJustified(justified); !got.Equal(f.c1) {
		t.Fatalf("greatest justified = %+v, want c1", got)
	}
}

func TestJustifyExactTwoThirds(t *testing.T) {
	f := newFixture(t)
	votes := []*types.SignedVote{
		makeVote(0, 1, f.b1Hash, f.genesisCkpt, f.c1),
		makeVote(1, 1, f.b1Hash, f.genesisCkpt, f.c1),
	}
	justified := f.engine.Justified(votes, f.genesisCkpt)
	if !justified[f.c1] {
		t.Fatal("2 of 3 weight meets the 3*support >= 2*total rule")
	}
}

func TestInsufficientSupportNotJustified(t *testing.T) {
	f := newFixture(t)
	votes := []*types.SignedVote{
		makeVote(0, 1, f.b1Hash, f.genesisCkpt, f.c1),
	}
	justified := f.engine.Justified(votes, f.genesisCkpt)
	if justified[f.c1] {
		t.Fatal("1 of 3 weight must not justify")
	}
}

func TestUnjustifiedSourceDoesNotPropagate(t *testing.T) {
	f := newFixture(t)
	// All votes link c1 -> c2, but nothing justifies c1 first.
	votes := []*types.SignedVote{
		makeVote(0, 2, f.b2Hash, f.c1, f.c2),
		makeVote(1, 2, f.b2Hash, f.c1, f.c2),
		makeVote(2, 2, f.b2Hash, f.c1, f.c2),
	}
	justified := f.engine.Justified(votes, f.genesisCkpt)
	if justified[f.c2] {
		t.Fatal("a link from an unjustified source must not justify its target")
	}
}

func TestDuplicateSenderCountedOnce(t *testing.T) {
	f := newFixture(t)
	v := makeVote(0, 1, f.b1Hash, f.genesisCkpt, f.c1)
	votes := []*types.SignedVote{v, v, v}
	justified := f.engine.Justified(votes, f.genesisCkpt)
	if justified[f.c1] {
		t.Fatal("a single sender must only be counted once toward supermajority")
	}
}

func TestFinalize(t *testing.T) {
	f := newFixture(t)
	votes := []*types.SignedVote{
		makeVote(0, 1, f.b1Hash, f.genesisCkpt, f.c1),
		makeVote(1, 1, f.b1Hash, f.genesisCkpt, f.c1),
		makeVote(2, 1, f.b1Hash, f.genesisCkpt, f.c1),
		makeVote(0, 2, f.b2Hash, f.c1, f.c2),
		makeVote(1, 2, f.b2Hash, f.c1, f.c2),
		makeVote(2, 2, f.b2Hash, f.c1, f.c2),
	}

	justified := f.engine.Justified(votes, f.genesisCkpt)
	if !justified[f.c1] || !justified[f.c2] {
		t.Fatal("both checkpoints must be justified")
	}

	finalized := f.engine.Finalized(justified, votes)
	if !finalized[f.c1] {
		t.Fatal("c1 must be finalized by the supermajority link to c2")
	}
	if finalized[f.c2] {
		t.Fatal("c2 has no successor link yet and must not be finalized")
	}
	if got := GreatestFinalized(finalized); !got.Equal(f.c1) {
		t.Fatalf("greatest finalized = %+v, want c1", got)
	}

	// Finality implies justification.
	for c := range finalized {
		if c.ChkpSlot != 0 && !justified[c] {
			t.Fatalf("finalized checkpoint %+v is not justified", c)
		}
	}
}

func TestGenesisVacuouslyFinalized(t *testing.T) {
	f := newFixture(t)
	justified := f.engine.Justified(nil, f.genesisCkpt)
	finalized := f.engine.Finalized(justified, nil)
	if !finalized[f.genesisCkpt] {
		t.Fatal("genesis checkpoint must be vacuously finalized")
	}
}

func TestFinalizeRequiresConsecutiveLink(t *testing.T) {
	f := newFixture(t)
	// Justify c2 directly from genesis (gap of 2 chkp slots): c2 becomes
	// justified but genesis gains no consecutive-slot link.
	votes := []*types.SignedVote{
		makeVote(0, 2, f.b2Hash, f.genesisCkpt, f.c2),
		makeVote(1, 2, f.b2Hash, f.genesisCkpt, f.c2),
		makeVote(2, 2, f.b2Hash, f.genesisCkpt, f.c2),
	}
	justified := f.engine.Justified(votes, f.genesisCkpt)
	if !justified[f.c2] {
		t.Fatal("c2 should be justified from genesis")
	}
	finalized := f.engine.Finalized(justified, votes)
	if finalized[f.c2] {
		t.Fatal("c2 must not be finalized without a successor link")
	}
}
