package node

import (
	"context"

	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/rlmd-io/rlmdcore/network/reqresp"
	"github.com/rlmd-io/rlmdcore/types"
)

// syncWithPeer exchanges status and fetches missing blocks from a single
// peer. It walks backwards from the peer's head until the DAG reconnects,
// then stages the blocks oldest-first; the next MERGE folds them into
// view. This is the recovery path for MissingAncestor.
func (n *Node) syncWithPeer(ctx context.Context, pid peer.ID) bool {
	head := n.State.Head()
	headSlot := uint64(0)
	if n.State.DAG().HasBlock(head) {
		headSlot = n.State.DAG().GetBlock(head).Slot
	}
	finalized := n.State.GreatestFinalizedCheckpoint()
	ourStatus := reqresp.Status{
		Finalized: &finalized,
		Head:      &types.Checkpoint{BlockHash: head, ChkpSlot: headSlot, BlockSlot: headSlot},
	}

	peerStatus, err := reqresp.RequestStatus(ctx, n.Host.P2P, pid, ourStatus)
	if err != nil {
		n.log.Debug("status exchange failed", "peer", pid.String()[:16], "err", err)
		return false
	}
	n.log.Info("status exchanged",
		"peer", pid.String()[:16],
		"peer_head_slot", peerStatus.Head.BlockSlot,
		"peer_finalized_slot", peerStatus.Finalized.ChkpSlot,
	)

	if peerStatus.Head.BlockSlot <= headSlot {
		return false
	}

	// Walk backwards: request blocks we don't have until the chain connects.
	var pending []*types.Block
	nextRoot := peerStatus.Head.BlockHash
	const maxSyncDepth = 64

	for i := 0; i < maxSyncDepth; i++ {
		if n.State.Store().HasBlock(nextRoot) {
			break // We have this block, chain is connected.
		}

		blocks, err := reqresp.RequestBlocksByRoot(ctx, n.Host.P2P, pid, []types.Hash{nextRoot})
		if err != nil || len(blocks) == 0 {
			n.log.Debug("blocks_by_root failed during sync walk", "peer", pid.String()[:16], "err", err)
			break
		}

		b := blocks[0]
		pending = append(pending, b)
		nextRoot = b.ParentHash
	}

	// Stage in forward order (oldest first).
	for i := len(pending) - 1; i >= 0; i-- {
		b := pending[i]
		n.State.OnReceiveBlock(b)
		n.log.Info("staged synced block", "slot", b.Slot)
	}
	return len(pending) > 0
}

// initialSync exchanges status with connected peers and requests any
// blocks we're missing. This allows a node that restarts mid-devnet to
// catch up.
func (n *Node) initialSync(ctx context.Context) {
	peers := n.Host.P2P.Network().Peers()
	for _, pid := range peers {
		n.syncWithPeer(ctx, pid)
	}
}
