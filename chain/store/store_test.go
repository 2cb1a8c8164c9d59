package store_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rlmd-io/rlmdcore/chain/store"
	"github.com/rlmd-io/rlmdcore/storage/memory"
	"github.com/rlmd-io/rlmdcore/types"
)

// Test collaborators: Δ=1, eta=3, k=2, three validators of weight 1,
// round-robin proposers, signature checks stubbed out.

type allowAllVerifier struct{}

func (allowAllVerifier) VerifyVote(*types.SignedVote) bool              { return true }
func (allowAllVerifier) VerifyPropose(*types.SignedProposeMessage) bool { return true }

type staticProviders struct {
	balances types.ValidatorBalances
}

func (p staticProviders) ValidatorSetForSlot(*types.Block, uint64) types.ValidatorBalances {
	return p.balances
}

func (p staticProviders) IsProposer(id types.NodeIdentity, slot uint64) bool {
	return uint64(id) == slot%uint64(len(p.balances))
}

type testHasher struct{}

func (testHasher) HashBlock(b *types.Block) types.Hash {
	root, err := b.HashTreeRoot()
	if err != nil {
		panic(err)
	}
	return types.Hash(root)
}

type emptyBody struct{}

func (emptyBody) BuildBlockBody() *types.BlockBody { return &types.BlockBody{} }

func newNode(t *testing.T) *store.NodeState {
	t.Helper()
	providers := staticProviders{balances: types.ValidatorBalances{0: 1, 1: 1, 2: 1}}
	cfg := types.Configuration{
		Delta: 1,
		Eta:   3,
		K:     2,
		Genesis: &types.Block{
			ParentHash: types.ZeroHash,
			Slot:       0,
			Body:       &types.BlockBody{},
		},
	}
	return store.New(cfg, store.Collaborators{
		Hasher:      testHasher{},
		Verifier:    allowAllVerifier{},
		Balances:    providers,
		BodyBuilder: emptyBody{},
		Proposer:    providers,
	}, memory.New())
}

func makeBlock(t *testing.T, parent types.Hash, slot uint64) (*types.Block, types.Hash) {
	t.Helper()
	b := &types.Block{ParentHash: parent, Slot: slot, Body: &types.BlockBody{}}
	root, err := b.HashTreeRoot()
	require.NoError(t, err)
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

// --- S1: genesis quiescence ---

func TestGenesisQuiescence(t *testing.T) {
	n := newNode(t)
	n.OnTick(0)

	require.Equal(t, n.GenesisHash(), n.Head())
	require.Equal(t, types.GenesisCheckpoint(n.GenesisHash()), n.GreatestJustifiedCheckpoint())
	require.Equal(t, types.GenesisCheckpoint(n.GenesisHash()), n.GreatestFinalizedCheckpoint())
	require.Empty(t, n.SlashableNodes())
}

// --- S2 / S3: justification and finalization ---

func TestJustifyAndFinalize(t *testing.T) {
	n := newNode(t)
	genesisCkpt := types.GenesisCheckpoint(n.GenesisHash())

	b1, b1Hash := makeBlock(t, n.GenesisHash(), 1)
	c1 := types.Checkpoint{BlockHash: b1Hash, ChkpSlot: 1, BlockSlot: 1}

	n.OnTick(1)
	n.OnReceiveBlock(b1)
	for id := types.NodeIdentity(0); id < 3; id++ {
		n.OnReceiveVote(makeVote(id, 1, b1Hash, genesisCkpt, c1))
	}

	// First MERGE edge at tick 3.
	n.OnTick(4)
	require.Equal(t, c1, n.GreatestJustifiedCheckpoint(), "S2: three votes justify c1")
	require.Equal(t, genesisCkpt, n.GreatestFinalizedCheckpoint())

	b2, b2Hash := makeBlock(t, b1Hash, 2)
	c2 := types.Checkpoint{BlockHash: b2Hash, ChkpSlot: 2, BlockSlot: 2}

	n.OnTick(5)
	n.OnReceiveBlock(b2)
	for id := types.NodeIdentity(0); id < 3; id++ {
		n.OnReceiveVote(makeVote(id, 2, b2Hash, c1, c2))
	}

	// Second MERGE edge at tick 7.
	n.OnTick(8)
	require.Equal(t, c2, n.GreatestJustifiedCheckpoint(), "c2 justified by the second round")
	require.Equal(t, c1, n.GreatestFinalizedCheckpoint(), "S3: the c1->c2 link finalizes c1")

	// Invariant: the finalized block is an ancestor of the head.
	head := n.Head()
	require.True(t, n.DAG().IsAncestorDescendant(n.GreatestFinalizedCheckpoint().BlockHash, head))
}

// --- S4: equivocation ---

func TestEquivocationDetectedAndDiscounted(t *testing.T) {
	n := newNode(t)
	genesisCkpt := types.GenesisCheckpoint(n.GenesisHash())

	b1a, b1aHash := makeBlock(t, n.GenesisHash(), 1)
	b1b, b1bHash := makeBlock(t, n.GenesisHash(), 2)

	n.OnTick(1)
	n.OnReceiveBlock(b1a)
	n.OnReceiveBlock(b1b)
	n.OnReceiveVote(makeVote(0, 1, b1aHash, genesisCkpt, types.Checkpoint{BlockHash: b1aHash, ChkpSlot: 1, BlockSlot: 1}))
	n.OnReceiveVote(makeVote(0, 1, b1bHash, genesisCkpt, types.Checkpoint{BlockHash: b1bHash, ChkpSlot: 1, BlockSlot: 2}))

	n.OnTick(4)

	flagged := n.SlashableNodes()
	require.True(t, flagged[0], "equivocating sender must be flagged")
	require.False(t, flagged[1])

	// Neither vote contributes weight: head stays at genesis.
	require.Equal(t, n.GenesisHash(), n.Head())
}

// --- S5: fork choice ---

func TestForkChoiceStrictMajority(t *testing.T) {
	n := newNode(t)
	genesisCkpt := types.GenesisCheckpoint(n.GenesisHash())

	b1a, b1aHash := makeBlock(t, n.GenesisHash(), 1)
	b1b, b1bHash := makeBlock(t, n.GenesisHash(), 2)
	c1a := types.Checkpoint{BlockHash: b1aHash, ChkpSlot: 1, BlockSlot: 1}
	c1b := types.Checkpoint{BlockHash: b1bHash, ChkpSlot: 1, BlockSlot: 2}

	n.OnTick(1)
	n.OnReceiveBlock(b1a)
	n.OnReceiveBlock(b1b)
	n.OnReceiveVote(makeVote(0, 1, b1aHash, genesisCkpt, c1a))
	n.OnReceiveVote(makeVote(1, 1, b1aHash, genesisCkpt, c1a))
	n.OnReceiveVote(makeVote(2, 1, b1bHash, genesisCkpt, c1b))

	n.OnTick(4)
	require.Equal(t, b1aHash, n.Head(), "2/3 majority wins the fork")

	// V2 re-votes for b1b at slot 2; LMD keeps one vote per sender and
	// b1a still holds 2 of 3.
	n.OnTick(5)
	n.OnReceiveVote(makeVote(2, 2, b1bHash, genesisCkpt, types.Checkpoint{BlockHash: b1bHash, ChkpSlot: 2, BlockSlot: 2}))
	n.OnTick(8)
	require.Equal(t, b1aHash, n.Head(), "a single flipped vote cannot overturn the majority")
}

// --- S6: view-merge stability ---

func TestViewMergeStability(t *testing.T) {
	n := newNode(t)
	genesisCkpt := types.GenesisCheckpoint(n.GenesisHash())

	b1a, b1aHash := makeBlock(t, n.GenesisHash(), 1)
	b1b, b1bHash := makeBlock(t, n.GenesisHash(), 2)
	c1a := types.Checkpoint{BlockHash: b1aHash, ChkpSlot: 1, BlockSlot: 1}
	c1b := types.Checkpoint{BlockHash: b1bHash, ChkpSlot: 1, BlockSlot: 2}

	// Early view: one vote for b1a, merged at slot 0's MERGE edge.
	n.OnTick(1)
	n.OnReceiveBlock(b1a)
	n.OnReceiveBlock(b1b)
	n.OnReceiveVote(makeVote(0, 1, b1aHash, genesisCkpt, c1a))
	n.OnTick(5) // slot 1, VOTE phase

	require.Equal(t, b1aHash, n.Head())

	// Mid-slot delivery of a head-flipping majority for b1b.
	n.OnReceiveVote(makeVote(1, 1, b1bHash, genesisCkpt, c1b))
	n.OnReceiveVote(makeVote(2, 1, b1bHash, genesisCkpt, c1b))

	// Still VOTE phase: the buffered votes must not flip the head.
	require.Equal(t, b1aHash, n.Head(), "buffered votes must not affect intra-slot fork choice")

	// After the MERGE edge (tick 7) and into slot 2 the flip lands.
	n.OnTick(8)
	require.Equal(t, b1bHash, n.Head(), "merged votes flip the head at the next slot")
}

// --- Idempotence ---

func TestIdempotentReceipt(t *testing.T) {
	n := newNode(t)
	genesisCkpt := types.GenesisCheckpoint(n.GenesisHash())

	b1, b1Hash := makeBlock(t, n.GenesisHash(), 1)
	c1 := types.Checkpoint{BlockHash: b1Hash, ChkpSlot: 1, BlockSlot: 1}
	v := makeVote(0, 1, b1Hash, genesisCkpt, c1)

	n.OnTick(1)
	n.OnReceiveBlock(b1)
	n.OnReceiveBlock(b1)
	n.OnReceiveVote(v)
	n.OnReceiveVote(v)
	n.OnTick(4)

	require.Len(t, n.Store().AllVotes(), 1, "duplicate votes collapse to one")
	require.Len(t, n.Store().AllBlocks(), 2, "genesis plus one received block")

	headBefore := n.Head()
	n.OnReceiveVote(v)
	n.OnTick(8)
	require.Equal(t, headBefore, n.Head(), "re-receiving a known vote changes nothing")
}

// --- Monotonicity ---

func TestCheckpointMonotonicity(t *testing.T) {
	n := newNode(t)
	genesisCkpt := types.GenesisCheckpoint(n.GenesisHash())

	prevJustified := n.GreatestJustifiedCheckpoint()
	prevFinalized := n.GreatestFinalizedCheckpoint()

	parent := n.GenesisHash()
	src := genesisCkpt
	for slot := uint64(1); slot <= 4; slot++ {
		b, bHash := makeBlock(t, parent, slot)
		tgt := types.Checkpoint{BlockHash: bHash, ChkpSlot: slot, BlockSlot: slot}

		n.OnTick(4*(slot-1) + 1)
		n.OnReceiveBlock(b)
		for id := types.NodeIdentity(0); id < 3; id++ {
			n.OnReceiveVote(makeVote(id, slot, bHash, src, tgt))
		}
		n.OnTick(4 * slot)

		justified := n.GreatestJustifiedCheckpoint()
		finalized := n.GreatestFinalizedCheckpoint()
		require.False(t, justified.Less(prevJustified), "greatest justified must not regress")
		require.False(t, finalized.Less(prevFinalized), "greatest finalized must not regress")
		prevJustified, prevFinalized = justified, finalized

		parent = bHash
		src = tgt
	}

	require.Equal(t, uint64(4), prevJustified.ChkpSlot)
	require.Equal(t, uint64(3), prevFinalized.ChkpSlot)
}

// --- Determinism ---

func TestDeterministicReplay(t *testing.T) {
	run := func() (types.Hash, types.Checkpoint, types.Checkpoint) {
		n := newNode(t)
		genesisCkpt := types.GenesisCheckpoint(n.GenesisHash())

		b1, b1Hash := makeBlock(t, n.GenesisHash(), 1)
		c1 := types.Checkpoint{BlockHash: b1Hash, ChkpSlot: 1, BlockSlot: 1}

		n.OnTick(1)
		n.OnReceiveBlock(b1)
		for id := types.NodeIdentity(0); id < 3; id++ {
			n.OnReceiveVote(makeVote(id, 1, b1Hash, genesisCkpt, c1))
		}
		n.OnTick(8)
		return n.Head(), n.GreatestJustifiedCheckpoint(), n.GreatestFinalizedCheckpoint()
	}

	h1, j1, f1 := run()
	h2, j2, f2 := run()
	require.Equal(t, h1, h2)
	require.Equal(t, j1, j2)
	require.Equal(t, f1, f2)
}

// --- Confirmation ---

func TestConfirmation(t *testing.T) {
	n := newNode(t)
	genesisCkpt := types.GenesisCheckpoint(n.GenesisHash())

	b1, b1Hash := makeBlock(t, n.GenesisHash(), 1)
	c1 := types.Checkpoint{BlockHash: b1Hash, ChkpSlot: 1, BlockSlot: 1}

	n.OnTick(1)
	n.OnReceiveBlock(b1)
	for id := types.NodeIdentity(0); id < 3; id++ {
		n.OnReceiveVote(makeVote(id, 1, b1Hash, genesisCkpt, c1))
	}
	n.OnTick(8)

	require.True(t, n.IsConfirmed(b1Hash), "unanimous support confirms the block")
	require.True(t, n.IsConfirmed(n.GenesisHash()), "ancestors of a confirmed block with full weight are confirmed")
}

// --- Duties: proposal and vote construction ---

func TestBuildVote(t *testing.T) {
	n := newNode(t)
	genesisCkpt := types.GenesisCheckpoint(n.GenesisHash())

	b1, b1Hash := makeBlock(t, n.GenesisHash(), 1)
	c1 := types.Checkpoint{BlockHash: b1Hash, ChkpSlot: 1, BlockSlot: 1}

	n.OnTick(1)
	n.OnReceiveBlock(b1)
	for id := types.NodeIdentity(0); id < 3; id++ {
		n.OnReceiveVote(makeVote(id, 1, b1Hash, genesisCkpt, c1))
	}
	n.OnTick(9) // slot 2, past CONFIRM of slot 1

	msg, err := n.BuildVote()
	require.NoError(t, err)
	require.Equal(t, uint64(2), msg.Slot)
	require.Equal(t, b1Hash, msg.HeadHash)
	require.Equal(t, c1, *msg.FFGSource, "source is the greatest justified checkpoint")
	require.Equal(t, b1Hash, msg.FFGTarget.BlockHash)
	require.Equal(t, uint64(2), msg.FFGTarget.ChkpSlot)
	require.Equal(t, uint64(1), msg.FFGTarget.BlockSlot)
}

func TestBuildProposal(t *testing.T) {
	n := newNode(t)
	genesisCkpt := types.GenesisCheckpoint(n.GenesisHash())

	b1, b1Hash := makeBlock(t, n.GenesisHash(), 1)
	c1 := types.Checkpoint{BlockHash: b1Hash, ChkpSlot: 1, BlockSlot: 1}

	n.OnTick(1)
	n.OnReceiveBlock(b1)
	for id := types.NodeIdentity(0); id < 3; id++ {
		n.OnReceiveVote(makeVote(id, 1, b1Hash, genesisCkpt, c1))
	}
	n.OnTick(8) // slot 2; round-robin proposer is validator 2

	_, err := n.BuildProposal(0)
	require.Error(t, err, "only the designated proposer may build")

	msg, err := n.BuildProposal(2)
	require.NoError(t, err)
	require.Equal(t, uint64(2), msg.Block.Slot)
	require.Equal(t, b1Hash, msg.Block.ParentHash)
	require.Len(t, msg.Block.Votes, 3, "votes for the parent chain ride in the block")
	require.Len(t, msg.ProposerView, 3, "fresh votes for justified descendants ship in the view")

	// The proposer's own block is visible to its node immediately.
	require.True(t, n.Store().HasBlock(testHasher{}.HashBlock(msg.Block)))
}

// --- Propose-message bypass ---

func TestProposeBypassesBuffer(t *testing.T) {
	n := newNode(t)
	genesisCkpt := types.GenesisCheckpoint(n.GenesisHash())

	b1, b1Hash := makeBlock(t, n.GenesisHash(), 1)
	c1 := types.Checkpoint{BlockHash: b1Hash, ChkpSlot: 1, BlockSlot: 1}

	votes := []*types.SignedVote{
		makeVote(0, 1, b1Hash, genesisCkpt, c1),
		makeVote(1, 1, b1Hash, genesisCkpt, c1),
	}

	n.OnTick(4) // slot 1, PROPOSE phase
	n.OnReceivePropose(&types.SignedProposeMessage{
		Message: &types.ProposeMessage{Block: b1, ProposerView: votes},
		Sender:  1,
	})

	// Both the block and the proposer view are in the canonical view
	// without waiting for MERGE.
	require.True(t, n.Store().HasBlock(b1Hash))
	require.Len(t, n.Store().AllVotes(), 2)
}
