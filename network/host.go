// Package network owns the libp2p transport the node speaks through:
// host identity, gossipsub wiring, and bootnode dialing. Everything
// above it (gossip topics, req/resp protocols, discovery) hangs off the
// Host built here.
package network

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/libp2p/go-libp2p"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/multiformats/go-multiaddr"

	"github.com/rlmd-io/rlmdcore/network/gossipsub"
	"github.com/rlmd-io/rlmdcore/network/p2p"
	"github.com/rlmd-io/rlmdcore/observability/logging"
	"github.com/rlmd-io/rlmdcore/observability/metrics"
)

var netLog = logging.NewComponentLogger(logging.CompNetwork)

// Host wraps the libp2p host plus the gossipsub router built on it. The
// embedded context is the lifetime of every subscription and stream the
// node opens.
type Host struct {
	P2P    host.Host
	PubSub *pubsub.PubSub
	Ctx    context.Context
	Cancel context.CancelFunc
}

// NewHost brings up a QUIC libp2p host with a secp256k1 identity and
// attaches gossipsub. With a non-empty nodeKeyPath the identity is
// persistent and shared with discv5 (see network/p2p); with an empty one
// the host gets an ephemeral key of its own.
func NewHost(listenAddr string, nodeKeyPath string) (*Host, error) {
	ctx, cancel := context.WithCancel(context.Background())

	privKey, err := hostIdentity(nodeKeyPath)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("host identity: %w", err)
	}

	addr, err := multiaddr.NewMultiaddr(listenAddr)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("parse listen addr %q: %w", listenAddr, err)
	}

	h, err := libp2p.New(
		libp2p.Identity(privKey),
		libp2p.ListenAddrs(addr),
	)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("new host: %w", err)
	}

	gs, err := gossipsub.NewGossipSub(ctx, h)
	if err != nil {
		h.Close()
		cancel()
		return nil, fmt.Errorf("gossipsub: %w", err)
	}

	netLog.Info("libp2p host started",
		"peer_id", shortPeer(h.ID()),
		"addr", listenAddr,
	)
	return &Host{P2P: h, PubSub: gs, Ctx: ctx, Cancel: cancel}, nil
}

// Close shuts down the host.
func (h *Host) Close() error {
	h.Cancel()
	return h.P2P.Close()
}

// PeerCount returns the number of live connections, also pushing it to
// the connected-peers gauge.
func (h *Host) PeerCount() int {
	n := len(h.P2P.Network().Peers())
	metrics.ConnectedPeers.Set(float64(n))
	return n
}

// ConnectBootnodes dials the given addresses (multiaddr or ENR) and
// returns how many connected.
func (h *Host) ConnectBootnodes(addrs []string) int {
	connected := 0
	for _, addr := range addrs {
		pi, err := parseBootnode(addr)
		if err != nil {
			netLog.Warn("invalid bootnode", "addr", addr, "err", err)
			continue
		}
		if pi.ID == h.P2P.ID() {
			continue // skip self
		}
		if err := h.P2P.Connect(h.Ctx, *pi); err != nil {
			netLog.Warn("failed to connect to bootnode",
				"peer_id", shortPeer(pi.ID),
				"err", err,
			)
			continue
		}
		netLog.Info("connected to bootnode", "peer_id", shortPeer(pi.ID))
		connected++
	}
	metrics.ConnectedPeers.Set(float64(len(h.P2P.Network().Peers())))
	return connected
}

func parseBootnode(addr string) (*peer.AddrInfo, error) {
	if strings.HasPrefix(addr, "enr:") {
		return p2p.ENRToAddrInfo(addr)
	}
	ma, err := multiaddr.NewMultiaddr(addr)
	if err != nil {
		return nil, err
	}
	return peer.AddrInfoFromP2pAddr(ma)
}

func shortPeer(id peer.ID) string {
	s := id.String()
	if len(s) <= 16 {
		return s
	}
	return s[:16] + "..."
}

// hostIdentity loads the node key from path, generating and persisting a
// fresh one on first start. The file holds the hex-encoded secp256k1
// scalar, the format network/p2p reads for discv5. An empty path means an
// ephemeral identity.
func hostIdentity(path string) (crypto.PrivKey, error) {
	if path == "" {
		priv, _, err := crypto.GenerateSecp256k1Key(rand.Reader)
		return priv, err
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		raw, err := hex.DecodeString(strings.TrimSpace(string(data)))
		if err != nil {
			return nil, fmt.Errorf("decode node key: %w", err)
		}
		return crypto.UnmarshalSecp256k1PrivateKey(raw)
	case errors.Is(err, os.ErrNotExist):
		priv, _, err := crypto.GenerateSecp256k1Key(rand.Reader)
		if err != nil {
			return nil, err
		}
		raw, err := priv.Raw()
		if err != nil {
			return nil, err
		}
		if writeErr := os.WriteFile(path, []byte(hex.EncodeToString(raw)), 0600); writeErr != nil {
			return nil, fmt.Errorf("save node key: %w", writeErr)
		}
		netLog.Info("generated node key", "path", path)
		return priv, nil
	default:
		return nil, fmt.Errorf("read node key: %w", err)
	}
}
