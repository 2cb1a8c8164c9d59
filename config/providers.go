package config

import (
	"github.com/rlmd-io/rlmdcore/externalapi"
	"github.com/rlmd-io/rlmdcore/types"
)

// StaticValidatorSet serves the genesis stake distribution for every
// (block, slot) chain point, the devnet model, where the validator set
// never rotates. Lookups are trivially pure and deterministic.
type StaticValidatorSet struct {
	balances types.ValidatorBalances
	count    uint64
}

var (
	_ externalapi.ValidatorSetProvider = (*StaticValidatorSet)(nil)
	_ externalapi.ProposerOracle       = (*StaticValidatorSet)(nil)
)

// NewStaticValidatorSet builds the provider from the genesis config.
func NewStaticValidatorSet(g *GenesisConfig) *StaticValidatorSet {
	balances := make(types.ValidatorBalances, len(g.Validators))
	for _, v := range g.Validators {
		balances[v.Index] = v.Stake
	}
	return &StaticValidatorSet{balances: balances, count: uint64(len(g.Validators))}
}

// ValidatorSetForSlot returns the stake distribution. Callers must treat
// the result as immutable.
func (s *StaticValidatorSet) ValidatorSetForSlot(_ *types.Block, _ uint64) types.ValidatorBalances {
	return s.balances
}

// IsProposer implements the round-robin proposer schedule: exactly one
// proposer per slot.
func (s *StaticValidatorSet) IsProposer(id types.NodeIdentity, slot uint64) bool {
	if s.count == 0 {
		return false
	}
	return uint64(id) == slot%s.count
}
