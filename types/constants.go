package types

// Protocol-wide constants: the number of phases per slot and request and
// registry size limits. The phase length Δ lives in Configuration, not
// here, since it is a per-deployment parameter rather than a fixed
// constant.
const (
	PhasesPerSlot          = 4
	HistoricalRootsLimit   = 1 << 18
	ValidatorRegistryLimit = 1 << 12
	MaxRequestBlocks       = 64
)
