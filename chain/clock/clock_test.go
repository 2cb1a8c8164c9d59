package clock

import "testing"

func TestSlotOf(t *testing.T) {
	c := New(1)
	cases := []struct {
		tick uint64
		slot uint64
	}{
		{0, 0}, {1, 0}, {3, 0}, {4, 1}, {7, 1}, {8, 2}, {400, 100},
	}
	for _, tc := range cases {
		if got := c.SlotOf(tc.tick); got != tc.slot {
			t.Fatalf("SlotOf(%d) = %d, want %d", tc.tick, got, tc.slot)
		}
	}
}

func TestPhaseOf(t *testing.T) {
	c := New(1)
	want := []Phase{Propose, Vote, Confirm, Merge}
	for tick := uint64(0); tick < 12; tick++ {
		if got := c.PhaseOf(tick); got != want[tick%4] {
			t.Fatalf("PhaseOf(%d) = %v, want %v", tick, got, want[tick%4])
		}
	}
}

func TestPhaseOfWideDelta(t *testing.T) {
	c := New(3)
	cases := []struct {
		tick  uint64
		phase Phase
	}{
		{0, Propose}, {2, Propose}, {3, Vote}, {5, Vote},
		{6, Confirm}, {9, Merge}, {11, Merge}, {12, Propose},
	}
	for _, tc := range cases {
		if got := c.PhaseOf(tc.tick); got != tc.phase {
			t.Fatalf("PhaseOf(%d) = %v, want %v", tc.tick, got, tc.phase)
		}
	}
}

func TestPhaseEdge(t *testing.T) {
	c := New(3)
	edges := map[uint64]bool{0: true, 3: true, 6: true, 9: true, 12: true}
	for tick := uint64(0); tick <= 12; tick++ {
		if got := c.PhaseEdge(tick); got != edges[tick] {
			t.Fatalf("PhaseEdge(%d) = %v, want %v", tick, got, edges[tick])
		}
	}
}

func TestSlotStart(t *testing.T) {
	c := New(2)
	if got := c.SlotStart(13); got != 8 {
		t.Fatalf("SlotStart(13) = %d, want 8", got)
	}
}

func TestPhaseString(t *testing.T) {
	for p, want := range map[Phase]string{Propose: "PROPOSE", Vote: "VOTE", Confirm: "CONFIRM", Merge: "MERGE"} {
		if p.String() != want {
			t.Fatalf("Phase(%d).String() = %q, want %q", p, p.String(), want)
		}
	}
}
