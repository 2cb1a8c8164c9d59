// Package externalapi names the narrow interfaces the consensus core
// consumes from its environment. Cryptographic primitives,
// validator-balance lookups, the block body/execution payload, and
// proposer selection are all external collaborators: the core never
// implements them directly, only depends on these contracts.
package externalapi

import "github.com/rlmd-io/rlmdcore/types"

// BlockHasher computes the deterministic, collision-resistant hash of a
// block. Block hashing is explicitly out of scope for the core.
type BlockHasher interface {
	HashBlock(block *types.Block) types.Hash
}

// SignatureVerifier verifies the signatures over votes and propose
// messages. Signature schemes are an external collaborator.
type SignatureVerifier interface {
	VerifyVote(vote *types.SignedVote) bool
	VerifyPropose(msg *types.SignedProposeMessage) bool
}

// ValidatorSetProvider resolves the stake distribution that applies at a
// given chain point. Lookups must be pure and deterministic for a fixed
// (block, slot) pair.
type ValidatorSetProvider interface {
	ValidatorSetForSlot(block *types.Block, slot uint64) types.ValidatorBalances
}

// BlockBodyBuilder produces the opaque payload for a new block proposal.
// The block body / execution payload is out of scope for the core.
type BlockBodyBuilder interface {
	BuildBlockBody() *types.BlockBody
}

// ProposerOracle answers whether a validator is the designated proposer
// for a slot.
type ProposerOracle interface {
	IsProposer(id types.NodeIdentity, slot uint64) bool
}
