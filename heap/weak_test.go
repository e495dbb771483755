package heap

import (
	"testing"
)

func TestWeakTableBasics(t *testing.T) {
	wt := NewWeakTable()
	wr := wt.New(7)
	if wr.ID() == 0 {
		t.Error("weak IDs start at 1 so the zero value is never valid")
	}
	if wt.Lookup(wr.ID()) != wr {
		t.Error("Lookup should find the registered reference")
	}
	if wt.Get(wr.ID()) != 7 {
		t.Errorf("Get = %d, want 7", wt.Get(wr.ID()))
	}
	if wt.Get(9999) != NilAddr {
		t.Error("unknown ID should read as NilAddr")
	}
	if wt.Count() != 1 {
		t.Errorf("Count = %d, want 1", wt.Count())
	}
}

func TestWeakTableClearTarget(t *testing.T) {
	wt := NewWeakTable()
	a := wt.New(7)
	b := wt.New(7)
	c := wt.New(8)

	if cleared := wt.ClearTarget(7); cleared != 2 {
		t.Errorf("ClearTarget cleared %d, want 2", cleared)
	}
	if a.IsAlive() || b.IsAlive() {
		t.Error("references to the cleared target should be empty")
	}
	if !c.IsAlive() {
		t.Error("reference to another target must be untouched")
	}
	// Clearing again is a no-op.
	if cleared := wt.ClearTarget(7); cleared != 0 {
		t.Errorf("second ClearTarget cleared %d, want 0", cleared)
	}
}

func TestWeakTableProcessGC(t *testing.T) {
	wt := NewWeakTable()
	live := wt.New(1)
	dead := wt.New(2)

	marked := map[Addr]struct{}{1: {}}
	if cleared := wt.ProcessGC(marked); cleared != 1 {
		t.Errorf("ProcessGC cleared %d, want 1", cleared)
	}
	if !live.IsAlive() {
		t.Error("marked target's reference must survive")
	}
	if dead.IsAlive() {
		t.Error("unmarked target's reference must be cleared")
	}
}
