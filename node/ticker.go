package node

import (
	"context"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/rlmd-io/rlmdcore/observability/logging"
	"github.com/rlmd-io/rlmdcore/observability/metrics"
)

// Run starts the main event loop.
func (n *Node) Run(ctx context.Context) error {
	n.log.Info("node started",
		"validators", len(n.Validator.IDs),
		"peers", n.Host.PeerCount(),
	)

	// Attempt initial sync with connected peers.
	n.initialSync(ctx)

	// Keep the mesh fed: dial peers the DHT random walk surfaces.
	if n.P2PDiscovery != nil {
		go n.P2PDiscovery.Run(ctx, func(pi peer.AddrInfo) {
			if pi.ID == n.Host.P2P.ID() {
				return
			}
			if err := n.Host.P2P.Connect(ctx, pi); err == nil {
				n.log.Debug("connected to discovered peer", "peer", pi.ID.String()[:16])
			}
		})
	}

	ticker := n.Clock.TickTicker()
	defer ticker.Stop()
	var lastSlot uint64

	for {
		select {
		case <-ctx.Done():
			n.log.Info("node shutting down")
			if err := n.Host.Close(); err != nil {
				n.log.Warn("host close error", "err", err)
			}
			return nil
		case <-ticker.C:
			if n.Clock.IsBeforeGenesis() {
				continue
			}
			tick := n.Clock.CurrentTick()
			slot := n.Clock.CurrentSlot()
			phase := n.Clock.CurrentPhase()

			// Advance the core; phase-edge behavior (CONFIRM recompute,
			// MERGE view-merge) happens inside OnTick.
			n.State.OnTick(tick)

			// Execute validator duties on phase edges.
			if n.Clock.PhaseEdge() {
				n.Validator.OnPhase(ctx, slot, phase)
			}

			// Update metrics and log on slot boundary.
			if slot != lastSlot {
				start := time.Now()

				head := n.State.Head()
				headSlot := uint64(0)
				if n.State.DAG().HasBlock(head) {
					headSlot = n.State.DAG().GetBlock(head).Slot
				}
				justified := n.State.GreatestJustifiedCheckpoint()
				finalized := n.State.GreatestFinalizedCheckpoint()

				metrics.CurrentSlot.Set(float64(slot))
				metrics.HeadSlot.Set(float64(headSlot))
				peerCount := n.Host.PeerCount()

				// Periodic sync: if head is behind, try catching up.
				if slot > headSlot+2 {
					for _, pid := range n.Host.P2P.Network().Peers() {
						if n.syncWithPeer(ctx, pid) {
							break
						}
					}
				}

				n.log.Info("slot",
					"slot", slot,
					"head", headSlot,
					"justified", justified.ChkpSlot,
					"finalized", finalized.ChkpSlot,
					"peers", peerCount,
					"elapsed", logging.TimeSince(start),
				)
				lastSlot = slot
			}
		}
	}
}
