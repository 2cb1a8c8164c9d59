package gossipsub

import (
	"context"

	"github.com/golang/snappy"
	pubsub "github.com/libp2p/go-libp2p-pubsub"

	"github.com/rlmd-io/rlmdcore/types"
)

// GossipHandler processes decoded gossip messages.
type GossipHandler struct {
	OnBlock          func(*types.Block)
	OnVote           func(*types.SignedVote)
	OnPropose        func(*types.SignedProposeMessage)
	OnAggregatedVote func(*types.AggregatedVote)
}

// SubscribeTopics subscribes to topics and dispatches messages to handler.
func SubscribeTopics(ctx context.Context, topics *Topics, handler *GossipHandler) error {
	blockSub, err := topics.Block.Subscribe()
	if err != nil {
		return err
	}
	voteSub, err := topics.Vote.Subscribe()
	if err != nil {
		return err
	}
	proposeSub, err := topics.Propose.Subscribe()
	if err != nil {
		return err
	}

	go readBlockMessages(ctx, blockSub, handler)
	go readVoteMessages(ctx, voteSub, handler)
	go readProposeMessages(ctx, proposeSub, handler)
	if topics.AggregateVote != nil && handler.OnAggregatedVote != nil {
		aggSub, err := topics.AggregateVote.Subscribe()
		if err != nil {
			return err
		}
		go readAggregatedVoteMessages(ctx, aggSub, handler)
	}
	return nil
}

func readBlockMessages(ctx context.Context, sub *pubsub.Subscription, handler *GossipHandler) {
	for {
		msg, err := sub.Next(ctx)
		if err != nil {
			return
		}
		decoded, err := snappy.Decode(nil, msg.Data)
		if err != nil {
			continue
		}
		block := new(types.Block)
		if err := block.UnmarshalSSZ(decoded); err != nil {
			continue
		}
		if handler.OnBlock != nil {
			handler.OnBlock(block)
		}
	}
}

func readVoteMessages(ctx context.Context, sub *pubsub.Subscription, handler *GossipHandler) {
	for {
		msg, err := sub.Next(ctx)
		if err != nil {
			return
		}
		decoded, err := snappy.Decode(nil, msg.Data)
		if err != nil {
			continue
		}
		vote := new(types.SignedVote)
		if err := vote.UnmarshalSSZ(decoded); err != nil {
			continue
		}
		if handler.OnVote != nil {
			handler.OnVote(vote)
		}
	}
}

func readProposeMessages(ctx context.Context, sub *pubsub.Subscription, handler *GossipHandler) {
	for {
		msg, err := sub.Next(ctx)
		if err != nil {
			return
		}
		decoded, err := snappy.Decode(nil, msg.Data)
		if err != nil {
			continue
		}
		propose := new(types.SignedProposeMessage)
		if err := propose.UnmarshalSSZ(decoded); err != nil {
			continue
		}
		if handler.OnPropose != nil {
			handler.OnPropose(propose)
		}
	}
}

func readAggregatedVoteMessages(ctx context.Context, sub *pubsub.Subscription, handler *GossipHandler) {
	for {
		msg, err := sub.Next(ctx)
		if err != nil {
			return
		}
		decoded, err := snappy.Decode(nil, msg.Data)
		if err != nil {
			continue
		}
		agg, err := DecodeAggregatedVote(decoded)
		if err != nil {
			continue
		}
		if handler.OnAggregatedVote != nil {
			handler.OnAggregatedVote(agg)
		}
	}
}
