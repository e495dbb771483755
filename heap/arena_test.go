package heap

import (
	"errors"
	"testing"
)

func testBoxedShape(t *testing.T) *TypeDescriptor {
	t.Helper()
	reg := NewRegistry()
	boxed, err := reg.Box(declarePoint(t, reg))
	if err != nil {
		t.Fatalf("Box: %v", err)
	}
	return boxed
}

func TestArenaAllocateAndLoad(t *testing.T) {
	boxed := testBoxedShape(t)
	a := NewArena(0)

	obj, err := a.Allocate(boxed, 0)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if obj.Addr() == NilAddr {
		t.Error("allocated object must not have the nil address")
	}
	if a.Load(obj.Addr()) != obj {
		t.Error("Load should return the allocated object")
	}
	if a.Live() != 1 {
		t.Errorf("Live() = %d, want 1", a.Live())
	}
	if a.BytesLive() != obj.SizeBytes() {
		t.Errorf("BytesLive() = %d, want %d", a.BytesLive(), obj.SizeBytes())
	}
}

func TestArenaLoadUnknownAddress(t *testing.T) {
	a := NewArena(0)
	if a.Load(NilAddr) != nil {
		t.Error("Load(NilAddr) should be nil")
	}
	if a.Load(42) != nil {
		t.Error("Load of never-issued address should be nil")
	}
}

func TestArenaReclaimPoisons(t *testing.T) {
	boxed := testBoxedShape(t)
	a := NewArena(0)
	obj, _ := a.Allocate(boxed, 0)
	addr := obj.Addr()

	a.Reclaim(addr)
	if a.Live() != 0 {
		t.Errorf("Live() = %d after reclaim, want 0", a.Live())
	}
	if a.BytesLive() != 0 {
		t.Errorf("BytesLive() = %d after reclaim, want 0", a.BytesLive())
	}
	// The poisoned header stays behind until the cell is reused.
	stale := a.Load(addr)
	if stale == nil {
		t.Fatal("reclaimed cell should keep its poisoned object")
	}
	if !stale.Header().Poisoned() {
		t.Error("reclaimed object should be poisoned")
	}
	if stale.Type() != nil {
		t.Error("reclaimed object should have a nil type pointer")
	}

	// Double reclaim is a no-op.
	a.Reclaim(addr)
	if a.TotalFrees() != 1 {
		t.Errorf("TotalFrees() = %d, want 1", a.TotalFrees())
	}
}

func TestArenaFreeListReuse(t *testing.T) {
	boxed := testBoxedShape(t)
	a := NewArena(0)
	obj, _ := a.Allocate(boxed, 0)
	addr := obj.Addr()
	a.Reclaim(addr)

	obj2, _ := a.Allocate(boxed, 0)
	if obj2.Addr() != addr {
		t.Errorf("free-list reuse: got address %d, want %d", obj2.Addr(), addr)
	}
	if obj2.Header().Poisoned() {
		t.Error("reused cell must hold a fresh, unpoisoned object")
	}
}

func TestArenaOutOfMemory(t *testing.T) {
	boxed := testBoxedShape(t)
	a := NewArena(2)
	if _, err := a.Allocate(boxed, 0); err != nil {
		t.Fatalf("Allocate 1: %v", err)
	}
	obj2, err := a.Allocate(boxed, 0)
	if err != nil {
		t.Fatalf("Allocate 2: %v", err)
	}
	if _, err := a.Allocate(boxed, 0); !errors.Is(err, ErrOutOfMemory) {
		t.Errorf("Allocate at capacity: want ErrOutOfMemory, got %v", err)
	}

	// Reclaiming frees pressure.
	a.Reclaim(obj2.Addr())
	if _, err := a.Allocate(boxed, 0); err != nil {
		t.Errorf("Allocate after reclaim: %v", err)
	}
}

func TestArenaForEachLive(t *testing.T) {
	boxed := testBoxedShape(t)
	a := NewArena(0)
	o1, _ := a.Allocate(boxed, 0)
	o2, _ := a.Allocate(boxed, 0)
	o3, _ := a.Allocate(boxed, 0)
	a.Reclaim(o2.Addr())

	var seen []Addr
	a.ForEachLive(func(obj *Object) bool {
		seen = append(seen, obj.Addr())
		return true
	})
	if len(seen) != 2 || seen[0] != o1.Addr() || seen[1] != o3.Addr() {
		t.Errorf("ForEachLive visited %v, want [%d %d]", seen, o1.Addr(), o3.Addr())
	}
}
