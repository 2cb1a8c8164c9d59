package node

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/rlmd-io/rlmdcore/chain/store"
	"github.com/rlmd-io/rlmdcore/config"
	"github.com/rlmd-io/rlmdcore/cryptoref"
	"github.com/rlmd-io/rlmdcore/externalapi"
	"github.com/rlmd-io/rlmdcore/network"
	"github.com/rlmd-io/rlmdcore/network/gossipsub"
	"github.com/rlmd-io/rlmdcore/network/p2p"
	"github.com/rlmd-io/rlmdcore/observability/logging"
	"github.com/rlmd-io/rlmdcore/observability/metrics"
	"github.com/rlmd-io/rlmdcore/storage/memory"
	"github.com/rlmd-io/rlmdcore/types"
)

// sszBlockHasher is the concrete hash_block collaborator: the block's
// SSZ hash tree root.
type sszBlockHasher struct{}

func (sszBlockHasher) HashBlock(b *types.Block) types.Hash {
	root, err := b.HashTreeRoot()
	if err != nil {
		panic(fmt.Sprintf("block hashing failed: %v", err))
	}
	return types.Hash(root)
}

// emptyBodyBuilder fills proposals with an empty payload; execution
// payloads are outside the core's scope.
type emptyBodyBuilder struct{}

func (emptyBodyBuilder) BuildBlockBody() *types.BlockBody {
	return &types.BlockBody{}
}

// New creates and wires up a new Node.
func New(cfg Config) (*Node, error) {
	log := logging.NewComponentLogger(logging.CompNode)

	state, providers, err := initState(log, cfg)
	if err != nil {
		return nil, err
	}

	host, topics, err := initP2P(cfg)
	if err != nil {
		return nil, err
	}

	p2pManager, p2pDiscovery, err2 := initDiscovery(log, cfg)
	if err2 != nil {
		host.Close()
		return nil, err2
	}

	validatorKeys, err := loadValidatorKeys(log, cfg)
	if err != nil {
		if p2pDiscovery != nil {
			p2pDiscovery.Close()
		}
		if p2pManager != nil {
			p2pManager.Close()
		}
		host.Close()
		return nil, err
	}

	ids := make([]types.NodeIdentity, len(cfg.ValidatorIDs))
	for i, idx := range cfg.ValidatorIDs {
		ids[i] = types.NodeIdentity(idx)
	}

	validator := &ValidatorDuties{
		IDs:              ids,
		Keys:             validatorKeys,
		State:            state,
		Oracle:           providers,
		Topics:           topics,
		PublishBlock:     gossipsub.PublishBlock,
		PublishPropose:   gossipsub.PublishPropose,
		PublishVote:      gossipsub.PublishVote,
		PublishAggregate: gossipsub.PublishAggregatedVote,
		Log:              logging.NewComponentLogger(logging.CompValidator),
	}

	ctx, cancel := context.WithCancel(context.Background())
	n := &Node{
		State:        state,
		Host:         host,
		Topics:       topics,
		Clock:        NewClock(cfg.Genesis.GenesisTime, cfg.Genesis.Delta),
		Validator:    validator,
		P2PManager:   p2pManager,
		P2PDiscovery: p2pDiscovery,
		log:          log,
		ctx:          ctx,
		cancel:       cancel,
	}

	if err := registerHandlers(n, state); err != nil {
		n.Close()
		return nil, err
	}

	if len(cfg.Bootnodes) > 0 {
		host.ConnectBootnodes(cfg.Bootnodes)
	}

	startMetrics(log, cfg)

	return n, nil
}

func initState(log *slog.Logger, cfg Config) (*store.NodeState, *config.StaticValidatorSet, error) {
	providers := config.NewStaticValidatorSet(cfg.Genesis)

	registry, err := cryptoref.NewRegistry(cfg.Genesis.Pubkeys())
	if err != nil {
		return nil, nil, fmt.Errorf("build verifier registry: %w", err)
	}

	state := store.New(cfg.Genesis.Configuration(), store.Collaborators{
		Hasher:      sszBlockHasher{},
		Verifier:    registry,
		Balances:    providers,
		BodyBuilder: emptyBodyBuilder{},
		Proposer:    providers,
	}, memory.New())

	log.Info("consensus core initialized",
		"genesis_root", logging.ShortHash(state.GenesisHash()),
		"validators", len(cfg.Genesis.Validators),
		"delta", cfg.Genesis.Delta,
		"eta", cfg.Genesis.Eta,
		"k", cfg.Genesis.K,
	)
	return state, providers, nil
}

func initP2P(cfg Config) (*network.Host, *gossipsub.Topics, error) {
	host, err := network.NewHost(cfg.ListenAddr, cfg.NodeKeyPath)
	if err != nil {
		return nil, nil, fmt.Errorf("create host: %w", err)
	}

	networkID := cfg.NetworkID
	if networkID == "" {
		networkID = "rlmd0"
	}
	topics, err := gossipsub.JoinTopics(host.PubSub, networkID)
	if err != nil {
		host.Close()
		return nil, nil, fmt.Errorf("join topics: %w", err)
	}

	gossipLog := logging.NewComponentLogger(logging.CompGossip)
	gossipLog.Info("gossipsub topics joined", "network", networkID)

	return host, topics, nil
}

func initDiscovery(log *slog.Logger, cfg Config) (*p2p.LocalNodeManager, *p2p.DiscoveryService, error) {
	discPort := cfg.DiscoveryPort
	if discPort == 0 {
		discPort = 9000
	}

	p2pDBPath := filepath.Join(cfg.DataDir, "p2p")
	if err := os.MkdirAll(p2pDBPath, 0700); err != nil {
		return nil, nil, fmt.Errorf("failed to create p2p db dir: %w", err)
	}

	p2pManager, err := p2p.NewLocalNodeManager(p2pDBPath, cfg.NodeKeyPath, net.IPv4(0, 0, 0, 0), discPort, 0)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to init p2p manager: %w", err)
	}

	p2pDiscovery, err := p2p.NewDiscoveryService(p2pManager, discPort, cfg.Bootnodes)
	if err != nil {
		log.Warn("p2p discovery unavailable", "err", err)
	}

	return p2pManager, p2pDiscovery, nil
}

func loadValidatorKeys(log *slog.Logger, cfg Config) (map[types.NodeIdentity]*cryptoref.Keypair, error) {
	keys := make(map[types.NodeIdentity]*cryptoref.Keypair)
	if cfg.ValidatorKeysDir == "" {
		if len(cfg.ValidatorIDs) > 0 {
			log.Warn("no validator keys directory specified; validator duties will fail signing")
		}
		return keys, nil
	}

	for _, idx := range cfg.ValidatorIDs {
		pkPath := filepath.Join(cfg.ValidatorKeysDir, fmt.Sprintf("validator_%d.pk", idx))
		skPath := filepath.Join(cfg.ValidatorKeysDir, fmt.Sprintf("validator_%d.sk", idx))

		kp, err := cryptoref.LoadKeypair(pkPath, skPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load keypair for validator %d: %w", idx, err)
		}
		keys[types.NodeIdentity(idx)] = kp
		log.Info("loaded validator keypair", "validator_index", idx)
	}
	return keys, nil
}

func startMetrics(log *slog.Logger, cfg Config) {
	if cfg.MetricsPort <= 0 {
		return
	}
	metrics.NodeInfo.WithLabelValues("rlmdcore", Version).Set(1)
	metrics.NodeStartTime.Set(float64(time.Now().Unix()))
	metrics.ValidatorsCount.Set(float64(len(cfg.ValidatorIDs)))
	metrics.Serve(cfg.MetricsPort)
	log.Info("metrics server started", "port", cfg.MetricsPort)
}

var _ externalapi.BlockHasher = sszBlockHasher{}
var _ externalapi.BlockBodyBuilder = emptyBodyBuilder{}
