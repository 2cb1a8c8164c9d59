// Package clock maps wall time to (slot, phase). A slot is 4Δ
// ticks split into four equal phases; the clock is a pure function of
// time and configuration, with no suspension semantics.
package clock

import "github.com/rlmd-io/rlmdcore/types"

// Phase is one quarter of a slot.
type Phase int

const (
	Propose Phase = iota
	Vote
	Confirm
	Merge
)

func (p Phase) String() string {
	switch p {
	case Propose:
		return "PROPOSE"
	case Vote:
		return "VOTE"
	case Confirm:
		return "CONFIRM"
	case Merge:
		return "MERGE"
	default:
		return "UNKNOWN"
	}
}

// Clock derives slot/phase from an integer monotonic tick and Δ.
type Clock struct {
	Delta uint64
}

// New returns a Clock with the given phase length in ticks.
func New(delta uint64) Clock {
	return Clock{Delta: delta}
}

// SlotOf returns slot_of(t) = t // (4Δ).
func (c Clock) SlotOf(tick uint64) uint64 {
	return tick / (types.PhasesPerSlot * c.Delta)
}

// PhaseOf returns the phase occupied by tick within its slot.
func (c Clock) PhaseOf(tick uint64) Phase {
	offset := tick % (types.PhasesPerSlot * c.Delta)
	return Phase(offset / c.Delta)
}

// SlotStart returns the first tick of the slot containing tick.
func (c Clock) SlotStart(tick uint64) uint64 {
	return c.SlotOf(tick) * types.PhasesPerSlot * c.Delta
}

// PhaseEdge reports whether tick is the first tick of its phase, i.e. a
// phase-transition edge (the moments duty and merge logic trigger on).
func (c Clock) PhaseEdge(tick uint64) bool {
	return tick%c.Delta == 0
}
