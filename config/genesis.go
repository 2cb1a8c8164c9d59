package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/rlmd-io/rlmdcore/types"
)

// GenesisValidator is one entry of the genesis validator set: identity
// is positional (index in the list), pubkey and stake come from YAML.
type GenesisValidator struct {
	Pubkey []byte
	Stake  uint64
	Index  types.NodeIdentity
}

// GenesisConfig represents the parsed config.yaml for genesis.
type GenesisConfig struct {
	GenesisTime uint64
	Delta       uint64
	Eta         uint64
	K           uint64
	Validators  []*GenesisValidator
}

// rawGenesisConfig is the on-disk YAML shape.
type rawGenesisConfig struct {
	GenesisTime       uint64 `yaml:"GENESIS_TIME"`
	Delta             uint64 `yaml:"DELTA"`
	Eta               uint64 `yaml:"ETA"`
	K                 uint64 `yaml:"K"`
	GenesisValidators []struct {
		Pubkey string `yaml:"pubkey"`
		Stake  uint64 `yaml:"stake"`
	} `yaml:"GENESIS_VALIDATORS"`
}

// LoadGenesisConfig loads and parses a genesis config YAML file.
func LoadGenesisConfig(path string) (*GenesisConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var raw rawGenesisConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if raw.Delta == 0 {
		return nil, fmt.Errorf("DELTA must be positive")
	}
	if len(raw.GenesisValidators) == 0 {
		return nil, fmt.Errorf("GENESIS_VALIDATORS must not be empty")
	}

	validators := make([]*GenesisValidator, len(raw.GenesisValidators))
	for i, entry := range raw.GenesisValidators {
		hexStr := strings.TrimPrefix(entry.Pubkey, "0x")
		pubkeyBytes, err := hex.DecodeString(hexStr)
		if err != nil {
			return nil, fmt.Errorf("invalid pubkey hex at index %d: %w", i, err)
		}
		if len(pubkeyBytes) != 32 {
			return nil, fmt.Errorf("pubkey at index %d is %d bytes, want 32", i, len(pubkeyBytes))
		}
		if entry.Stake == 0 {
			return nil, fmt.Errorf("validator %d has zero stake", i)
		}
		validators[i] = &GenesisValidator{
			Pubkey: pubkeyBytes,
			Stake:  entry.Stake,
			Index:  types.NodeIdentity(i),
		}
	}

	return &GenesisConfig{
		GenesisTime: raw.GenesisTime,
		Delta:       raw.Delta,
		Eta:         raw.Eta,
		K:           raw.K,
		Validators:  validators,
	}, nil
}

// GenesisBlock builds the fixed genesis block: zero parent, slot 0, no
// votes, empty body.
func (g *GenesisConfig) GenesisBlock() *types.Block {
	return &types.Block{
		ParentHash: types.ZeroHash,
		Slot:       0,
		Votes:      nil,
		Body:       &types.BlockBody{},
	}
}

// Configuration returns the consensus-core startup parameters.
func (g *GenesisConfig) Configuration() types.Configuration {
	return types.Configuration{
		Delta:   g.Delta,
		Eta:     g.Eta,
		K:       g.K,
		Genesis: g.GenesisBlock(),
	}
}

// Pubkeys returns the validator public keys keyed by identity, the shape
// cryptoref.NewRegistry consumes.
func (g *GenesisConfig) Pubkeys() map[types.NodeIdentity][]byte {
	out := make(map[types.NodeIdentity][]byte, len(g.Validators))
	for _, v := range g.Validators {
		out[v.Index] = v.Pubkey
	}
	return out
}
