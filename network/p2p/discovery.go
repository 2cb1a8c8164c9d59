package p2p

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/ethereum/go-ethereum/p2p/discover"
	"github.com/ethereum/go-ethereum/p2p/enode"
	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/rlmd-io/rlmdcore/observability/logging"
)

var discLog = logging.NewComponentLogger(logging.CompNetwork)

// lookupInterval paces the random-walk peer search. One walk per couple
// of slots is plenty on a devnet; the gossip mesh does the rest.
const lookupInterval = 30 * time.Second

// maxLookupResults bounds how many nodes a single random walk collects.
const maxLookupResults = 16

// DiscoveryService runs discv5 over the node's secp256k1 identity and
// feeds dialable peers back to the libp2p host.
type DiscoveryService struct {
	manager *LocalNodeManager
	udp     *discover.UDPv5
	port    int
}

// NewDiscoveryService starts a discv5 listener on port, seeded with the
// given ENR bootnodes. Non-ENR entries (plain multiaddrs from
// nodes.yaml) are skipped here; the host dials those directly.
func NewDiscoveryService(manager *LocalNodeManager, port int, bootnodes []string) (*DiscoveryService, error) {
	var boots []*enode.Node
	for _, url := range bootnodes {
		if url == "" {
			continue
		}
		node, err := enode.Parse(enode.ValidSchemes, url)
		if err != nil {
			discLog.Debug("skipping non-ENR bootnode for discv5", "url", url, "err", err)
			continue
		}
		boots = append(boots, node)
	}

	localAddr, err := net.ResolveUDPAddr("udp", fmt.Sprintf("0.0.0.0:%d", port))
	if err != nil {
		return nil, fmt.Errorf("resolve discv5 addr: %w", err)
	}
	conn, err := net.ListenUDP("udp", localAddr)
	if err != nil {
		return nil, fmt.Errorf("listen discv5 udp :%d: %w", port, err)
	}

	udp, err := discover.ListenV5(conn, manager.local, discover.Config{
		PrivateKey: manager.PrivateKey(),
		Bootnodes:  boots,
	})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("start discv5: %w", err)
	}

	discLog.Info("discovery service started",
		"port", port,
		"bootnodes", len(boots),
		"enr", manager.Node().String(),
	)

	return &DiscoveryService{manager: manager, udp: udp, port: port}, nil
}

func (s *DiscoveryService) Close() {
	s.udp.Close()
}

// Run walks the DHT on a fixed cadence until ctx is done, handing every
// dialable node found to connect. The caller decides what to do with
// them (the node dials through its libp2p host).
func (s *DiscoveryService) Run(ctx context.Context, connect func(peer.AddrInfo)) {
	ticker := time.NewTicker(lookupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			found := 0
			for _, pi := range s.RandomPeers(maxLookupResults) {
				connect(pi)
				found++
			}
			if found > 0 {
				discLog.Debug("discv5 lookup", "dialable", found, "table", s.TableSize())
			}
		}
	}
}

// RandomPeers performs one random walk and returns up to n nodes
// converted to dialable AddrInfos. Nodes without a usable ip/udp
// endpoint are dropped.
func (s *DiscoveryService) RandomPeers(n int) []peer.AddrInfo {
	iter := s.udp.RandomNodes()
	defer iter.Close()

	var peers []peer.AddrInfo
	for i := 0; i < n && iter.Next(); i++ {
		pi, err := ENRToAddrInfo(iter.Node().String())
		if err != nil {
			continue
		}
		peers = append(peers, *pi)
	}
	return peers
}

// TableSize returns how many nodes the local discv5 table currently holds.
func (s *DiscoveryService) TableSize() int {
	return len(s.udp.AllNodes())
}
