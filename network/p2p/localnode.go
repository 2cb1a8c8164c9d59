package p2p

import (
	"crypto/ecdsa"
	"fmt"
	"net"
	"os"
	"path/filepath"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/p2p/enode"
	"github.com/ethereum/go-ethereum/p2p/enr"
	libp2pcrypto "github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/multiformats/go-multiaddr"
)

// LocalNodeManager owns the discv5 identity: the node database, the
// secp256k1 key shared with the libp2p host, and the local ENR.
type LocalNodeManager struct {
	db    *enode.DB
	key   *ecdsa.PrivateKey
	local *enode.LocalNode
}

// NewLocalNodeManager opens (or creates) the node DB at dbPath, loads or
// generates the node key at keyPath, and publishes ip/udpPort/tcpPort in
// the local ENR.
func NewLocalNodeManager(dbPath, keyPath string, ip net.IP, udpPort, tcpPort int) (*LocalNodeManager, error) {
	key, err := loadOrGenerateNodeKey(keyPath)
	if err != nil {
		return nil, fmt.Errorf("node key: %w", err)
	}

	db, err := enode.OpenDB(filepath.Join(dbPath, "nodes"))
	if err != nil {
		return nil, fmt.Errorf("open node db: %w", err)
	}

	local := enode.NewLocalNode(db, key)
	local.SetFallbackIP(ip)
	local.SetFallbackUDP(udpPort)
	if tcpPort > 0 {
		local.Set(enr.TCP(tcpPort))
	}

	return &LocalNodeManager{db: db, key: key, local: local}, nil
}

// PrivateKey returns the node's secp256k1 key.
func (m *LocalNodeManager) PrivateKey() *ecdsa.PrivateKey {
	return m.key
}

// Node returns the current local ENR record.
func (m *LocalNodeManager) Node() *enode.Node {
	return m.local.Node()
}

func (m *LocalNodeManager) Close() {
	m.db.Close()
}

func loadOrGenerateNodeKey(path string) (*ecdsa.PrivateKey, error) {
	if path == "" {
		return ethcrypto.GenerateKey()
	}
	if _, err := os.Stat(path); err == nil {
		return ethcrypto.LoadECDSA(path)
	}
	key, err := ethcrypto.GenerateKey()
	if err != nil {
		return nil, err
	}
	if err := ethcrypto.SaveECDSA(path, key); err != nil {
		return nil, fmt.Errorf("save node key: %w", err)
	}
	return key, nil
}

// ENRToAddrInfo converts an "enr:..." string into a dialable libp2p
// AddrInfo, assuming the peer listens on QUIC at its advertised UDP port.
func ENRToAddrInfo(enrStr string) (*peer.AddrInfo, error) {
	node, err := enode.Parse(enode.ValidSchemes, enrStr)
	if err != nil {
		return nil, fmt.Errorf("parse enr: %w", err)
	}

	pub := node.Pubkey()
	if pub == nil {
		return nil, fmt.Errorf("enr has no secp256k1 pubkey")
	}
	libp2pPub, err := libp2pcrypto.UnmarshalSecp256k1PublicKey(ethcrypto.CompressPubkey(pub))
	if err != nil {
		return nil, fmt.Errorf("convert pubkey: %w", err)
	}
	pid, err := peer.IDFromPublicKey(libp2pPub)
	if err != nil {
		return nil, fmt.Errorf("peer id: %w", err)
	}

	if node.IP() == nil || node.UDP() == 0 {
		return nil, fmt.Errorf("enr missing ip or udp port")
	}
	ma, err := multiaddr.NewMultiaddr(fmt.Sprintf("/ip4/%s/udp/%d/quic-v1", node.IP().String(), node.UDP()))
	if err != nil {
		return nil, err
	}

	return &peer.AddrInfo{ID: pid, Addrs: []multiaddr.Multiaddr{ma}}, nil
}
