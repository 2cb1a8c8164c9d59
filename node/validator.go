package node

import (
	"context"
	"log/slog"
	"time"

	pubsub "github.com/libp2p/go-libp2p-pubsub"

	"github.com/rlmd-io/rlmdcore/chain/clock"
	"github.com/rlmd-io/rlmdcore/chain/store"
	"github.com/rlmd-io/rlmdcore/chain/voteview"
	"github.com/rlmd-io/rlmdcore/cryptoref"
	"github.com/rlmd-io/rlmdcore/externalapi"
	"github.com/rlmd-io/rlmdcore/network/gossipsub"
	"github.com/rlmd-io/rlmdcore/observability/logging"
	"github.com/rlmd-io/rlmdcore/observability/metrics"
	"github.com/rlmd-io/rlmdcore/types"
)

// ValidatorDuties runs the per-phase duty state machine for every validator
// identity this node holds keys for.
type ValidatorDuties struct {
	IDs              []types.NodeIdentity
	Keys             map[types.NodeIdentity]*cryptoref.Keypair
	State            *store.NodeState
	Oracle           externalapi.ProposerOracle
	Topics           *gossipsub.Topics
	PublishBlock     func(context.Context, *pubsub.Topic, *types.Block) error
	PublishPropose   func(context.Context, *pubsub.Topic, *types.SignedProposeMessage) error
	PublishVote      func(context.Context, *pubsub.Topic, *types.SignedVote) error
	PublishAggregate func(context.Context, *pubsub.Topic, *types.AggregatedVote) error
	Log              *slog.Logger

	// pendingVotes collects the votes this node cast during VOTE for
	// aggregation during CONFIRM.
	pendingVotes []*types.SignedVote
}

// HasProposal reports whether this node holds the proposer for the slot.
func (v *ValidatorDuties) HasProposal(slot uint64) bool {
	for _, id := range v.IDs {
		if v.Oracle.IsProposer(id, slot) {
			return true
		}
	}
	return false
}

// OnPhase executes validator duties at a phase edge.
func (v *ValidatorDuties) OnPhase(ctx context.Context, slot uint64, phase clock.Phase) {
	switch phase {
	case clock.Propose:
		v.TryPropose(ctx, slot)
	case clock.Vote:
		v.TryVote(ctx, slot)
	case clock.Confirm:
		v.TryAggregate(ctx, slot)
	}
}

func (v *ValidatorDuties) TryPropose(ctx context.Context, slot uint64) {
	// Slot 0 is the genesis slot and does not produce a new block.
	if slot == 0 {
		return
	}

	for _, id := range v.IDs {
		if !v.Oracle.IsProposer(id, slot) {
			continue
		}

		kp, ok := v.Keys[id]
		if !ok {
			v.Log.Error("proposer key not found", "validator", uint64(id))
			continue
		}

		msg, err := v.State.BuildProposal(id)
		if err != nil {
			v.Log.Error("block proposal failed",
				"slot", slot,
				"proposer", uint64(id),
				"err", err,
			)
			continue
		}

		signed, err := kp.SignPropose(msg, id)
		if err != nil {
			v.Log.Error("propose signing failed", "slot", slot, "err", err)
			continue
		}

		blockRoot, _ := msg.Block.HashTreeRoot()
		if err := v.PublishPropose(ctx, v.Topics.Propose, signed); err != nil {
			v.Log.Error("failed to publish propose message",
				"slot", slot,
				"proposer", uint64(id),
				"err", err,
			)
			continue
		}
		// The bare block also rides the block topic for peers that only
		// follow blocks.
		if err := v.PublishBlock(ctx, v.Topics.Block, msg.Block); err != nil {
			v.Log.Error("failed to publish block", "slot", slot, "err", err)
		}
		v.Log.Info("proposed block",
			"slot", slot,
			"proposer", uint64(id),
			"block_root", logging.ShortHash(blockRoot),
			"view_votes", len(msg.ProposerView),
		)
	}
}

func (v *ValidatorDuties) TryVote(ctx context.Context, slot uint64) {
	v.pendingVotes = nil // reset for this slot

	msg, err := v.State.BuildVote()
	if err != nil {
		v.Log.Error("vote construction failed", "slot", slot, "err", err)
		return
	}

	for _, id := range v.IDs {
		kp, ok := v.Keys[id]
		if !ok {
			v.Log.Error("validator key not found", "validator", uint64(id))
			continue
		}

		signStart := time.Now()
		sv, err := kp.SignVote(msg, id)
		metrics.SigningTime.Observe(time.Since(signStart).Seconds())
		if err != nil {
			v.Log.Error("vote signing failed",
				"slot", slot,
				"validator", uint64(id),
				"err", err,
			)
			continue
		}

		v.pendingVotes = append(v.pendingVotes, sv)

		// Stage locally so the vote counts even without gossip self-delivery.
		v.State.OnReceiveVote(sv)

		if err := v.PublishVote(ctx, v.Topics.Vote, sv); err != nil {
			v.Log.Error("failed to publish vote",
				"slot", slot,
				"validator", uint64(id),
				"err", err,
			)
		} else {
			v.Log.Debug("published vote",
				"slot", slot,
				"validator", uint64(id),
				"head", logging.ShortHash(msg.HeadHash),
				"target_slot", msg.FFGTarget.BlockSlot,
			)
		}
	}
}

// TryAggregate bundles the votes cast during VOTE and publishes the
// aggregate to the aggregate_vote gossip topic.
func (v *ValidatorDuties) TryAggregate(ctx context.Context, slot uint64) {
	if len(v.pendingVotes) < 2 {
		return
	}

	agg, err := voteview.AggregateVotes(v.pendingVotes)
	if err != nil {
		v.Log.Error("aggregation failed",
			"slot", slot,
			"num_votes", len(v.pendingVotes),
			"err", err,
		)
		return
	}

	aggSize := len(agg.AggregatedSignature) + len(agg.AggregationBits)
	metrics.AggregateSizeBytes.Set(float64(aggSize))

	if v.PublishAggregate != nil && v.Topics.AggregateVote != nil {
		if err := v.PublishAggregate(ctx, v.Topics.AggregateVote, agg); err != nil {
			v.Log.Error("failed to publish aggregated votes",
				"slot", slot,
				"err", err,
			)
		} else {
			v.Log.Debug("published aggregated votes",
				"slot", slot,
				"num_votes", len(v.pendingVotes),
				"aggregate_size", aggSize,
			)
		}
	}

	v.pendingVotes = nil
}
