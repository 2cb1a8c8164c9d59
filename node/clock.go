package node

import (
	"time"

	chainclock "github.com/rlmd-io/rlmdcore/chain/clock"
	"github.com/rlmd-io/rlmdcore/types"
)

// Clock maps wall time onto the core's integer tick domain: one tick per
// second elapsed since genesis, 4Δ ticks per slot.
type Clock struct {
	GenesisTime uint64
	inner       chainclock.Clock
}

// NewClock creates a clock from genesis time (unix seconds) and Δ.
func NewClock(genesisTime, delta uint64) *Clock {
	return &Clock{GenesisTime: genesisTime, inner: chainclock.New(delta)}
}

// IsBeforeGenesis returns true if the current time is before genesis.
func (c *Clock) IsBeforeGenesis() bool {
	return uint64(time.Now().Unix()) < c.GenesisTime
}

// CurrentTick returns ticks elapsed since genesis, or 0 if before genesis.
func (c *Clock) CurrentTick() uint64 {
	now := uint64(time.Now().Unix())
	if now < c.GenesisTime {
		return 0
	}
	return now - c.GenesisTime
}

// CurrentSlot returns the current slot number.
func (c *Clock) CurrentSlot() uint64 {
	return c.inner.SlotOf(c.CurrentTick())
}

// CurrentPhase returns the current phase within the slot.
func (c *Clock) CurrentPhase() chainclock.Phase {
	return c.inner.PhaseOf(c.CurrentTick())
}

// PhaseEdge reports whether the current tick starts a new phase.
func (c *Clock) PhaseEdge() bool {
	return c.inner.PhaseEdge(c.CurrentTick())
}

// SlotDuration returns the wall-clock length of one slot.
func (c *Clock) SlotDuration() time.Duration {
	return time.Duration(types.PhasesPerSlot*c.inner.Delta) * time.Second
}

// TickTicker returns a ticker firing once per core tick.
func (c *Clock) TickTicker() *time.Ticker {
	return time.NewTicker(time.Second)
}
