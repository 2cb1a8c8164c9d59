package node

import (
	"fmt"

	"github.com/rlmd-io/rlmdcore/chain/store"
	"github.com/rlmd-io/rlmdcore/chain/voteview"
	"github.com/rlmd-io/rlmdcore/network/gossipsub"
	"github.com/rlmd-io/rlmdcore/network/reqresp"
	"github.com/rlmd-io/rlmdcore/observability/logging"
	"github.com/rlmd-io/rlmdcore/observability/metrics"
	"github.com/rlmd-io/rlmdcore/types"
)

// registerHandlers wires up gossip subscriptions and req/resp protocol
// handlers onto the core's on_receive_* commands.
func registerHandlers(n *Node, state *store.NodeState) error {
	gossipLog := logging.NewComponentLogger(logging.CompGossip)

	// Register req/resp handlers.
	reqresp.RegisterReqResp(n.Host.P2P, &reqresp.ReqRespHandler{
		OnStatus: func(req reqresp.Status) reqresp.Status {
			head := state.Head()
			headSlot := uint64(0)
			if state.DAG().HasBlock(head) {
				headSlot = state.DAG().GetBlock(head).Slot
			}
			finalized := state.GreatestFinalizedCheckpoint()
			return reqresp.Status{
				Finalized: &finalized,
				Head: &types.Checkpoint{
					BlockHash: head,
					ChkpSlot:  headSlot,
					BlockSlot: headSlot,
				},
			}
		},
		OnBlocksByRoot: func(roots []types.Hash) []*types.Block {
			var blocks []*types.Block
			for _, root := range roots {
				if b, ok := state.Store().GetBlock(root); ok {
					blocks = append(blocks, b)
				}
			}
			return blocks
		},
	})

	// Subscribe to gossip.
	if err := gossipsub.SubscribeTopics(n.Host.Ctx, n.Topics, &gossipsub.GossipHandler{
		OnBlock: func(b *types.Block) {
			blockRoot, _ := b.HashTreeRoot()
			gossipLog.Debug("received block via gossip",
				"slot", b.Slot,
				"block_root", logging.ShortHash(blockRoot),
			)
			state.OnReceiveBlock(b)
		},
		OnVote: func(sv *types.SignedVote) {
			state.OnReceiveVote(sv)
			metrics.VotesReceived.WithLabelValues("gossip").Inc()
		},
		OnPropose: func(msg *types.SignedProposeMessage) {
			gossipLog.Debug("received propose message via gossip",
				"slot", msg.Message.Block.Slot,
				"proposer", uint64(msg.Sender),
				"view_votes", len(msg.Message.ProposerView),
			)
			state.OnReceivePropose(msg)
		},
		OnAggregatedVote: func(agg *types.AggregatedVote) {
			votes, err := voteview.DisaggregateVotes(agg)
			if err != nil {
				gossipLog.Warn("rejected aggregated votes", "err", err)
				return
			}
			for _, sv := range votes {
				state.OnReceiveVote(sv)
				metrics.VotesReceived.WithLabelValues("aggregate").Inc()
			}
		},
	}); err != nil {
		return fmt.Errorf("subscribe topics: %w", err)
	}

	return nil
}
