package node

import (
	"context"
	"log/slog"

	"github.com/rlmd-io/rlmdcore/chain/store"
	"github.com/rlmd-io/rlmdcore/config"
	"github.com/rlmd-io/rlmdcore/network"
	"github.com/rlmd-io/rlmdcore/network/gossipsub"
	"github.com/rlmd-io/rlmdcore/network/p2p"
)

const Version = "v0.1.0"

// Node is the main rlmdcore node orchestrator: it owns one NodeState and
// drives it from the wall clock and the gossip/reqresp surfaces.
type Node struct {
	State     *store.NodeState
	Host      *network.Host
	Topics    *gossipsub.Topics
	Validator *ValidatorDuties

	// P2P Services
	P2PManager   *p2p.LocalNodeManager
	P2PDiscovery *p2p.DiscoveryService

	Clock *Clock
	log   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

func (n *Node) Close() {
	n.cancel()
	if n.P2PDiscovery != nil {
		n.P2PDiscovery.Close()
	}
	if n.P2PManager != nil {
		n.P2PManager.Close()
	}
	if n.Host != nil {
		n.Host.Close()
	}
}

// Config holds node configuration.
type Config struct {
	Genesis          *config.GenesisConfig
	ListenAddr       string
	NodeKeyPath      string
	Bootnodes        []string
	DiscoveryPort    int
	DataDir          string
	ValidatorIDs     []uint64
	ValidatorKeysDir string
	MetricsPort      int
	NetworkID        string
}
