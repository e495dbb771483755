package heap

import (
	"sync"
)

// ---------------------------------------------------------------------------
// WeakRef: a reference that doesn't keep its target alive
// ---------------------------------------------------------------------------

// WeakRef holds a non-owning reference to a managed object. It is never
// enumerated by visitors, so it does not keep its target alive; when the
// target is reclaimed the reference becomes empty. Weak fields store the
// WeakRef ID as their slot value.
type WeakRef struct {
	id     uint32
	target Addr // NilAddr once the target has been reclaimed
	mu     sync.RWMutex
}

// ID returns the unique identifier for this weak reference.
func (wr *WeakRef) ID() uint32 { return wr.id }

// Target returns the target address, or NilAddr if the target has been
// reclaimed.
func (wr *WeakRef) Target() Addr {
	wr.mu.RLock()
	defer wr.mu.RUnlock()
	return wr.target
}

// IsAlive returns true if the target has not been reclaimed.
func (wr *WeakRef) IsAlive() bool {
	return wr.Target() != NilAddr
}

// clear empties the reference and returns the old target.
func (wr *WeakRef) clear() Addr {
	wr.mu.Lock()
	defer wr.mu.Unlock()
	old := wr.target
	wr.target = NilAddr
	return old
}

// ---------------------------------------------------------------------------
// WeakTable: all weak references of one heap
// ---------------------------------------------------------------------------

// WeakTable tracks every weak reference of a heap. The counting strategies
// clear entries when they reclaim a target; the tracing strategy clears
// entries for everything unmarked during a collection.
type WeakTable struct {
	mu       sync.RWMutex
	refs     map[uint32]*WeakRef
	byTarget map[Addr][]uint32
	nextID   uint32
}

// NewWeakTable creates an empty weak reference table.
func NewWeakTable() *WeakTable {
	return &WeakTable{
		refs:     make(map[uint32]*WeakRef),
		byTarget: make(map[Addr][]uint32),
	}
}

// New registers a new weak reference to the given target.
func (t *WeakTable) New(target Addr) *WeakRef {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nextID++
	wr := &WeakRef{id: t.nextID, target: target}
	t.refs[wr.id] = wr
	t.byTarget[target] = append(t.byTarget[target], wr.id)
	return wr
}

// Lookup finds a weak reference by ID, nil if unknown.
func (t *WeakTable) Lookup(id uint32) *WeakRef {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.refs[id]
}

// Get returns the target of the weak reference with the given ID, or
// NilAddr if the reference is unknown or its target has been reclaimed.
func (t *WeakTable) Get(id uint32) Addr {
	wr := t.Lookup(id)
	if wr == nil {
		return NilAddr
	}
	return wr.Target()
}

// ClearTarget empties every weak reference to the given address. Called by
// the counting strategies when they reclaim an object. Returns the number
// of references cleared.
func (t *WeakTable) ClearTarget(addr Addr) int {
	t.mu.Lock()
	ids := t.byTarget[addr]
	delete(t.byTarget, addr)
	t.mu.Unlock()

	cleared := 0
	for _, id := range ids {
		if wr := t.Lookup(id); wr != nil && wr.clear() != NilAddr {
			cleared++
		}
	}
	return cleared
}

// ProcessGC is called during a tracing collection with the set of marked
// addresses. It empties weak references to everything unmarked and returns
// the number of references cleared.
func (t *WeakTable) ProcessGC(marked map[Addr]struct{}) int {
	t.mu.Lock()
	var stale []uint32
	for addr, ids := range t.byTarget {
		if _, ok := marked[addr]; !ok {
			stale = append(stale, ids...)
			delete(t.byTarget, addr)
		}
	}
	t.mu.Unlock()

	cleared := 0
	for _, id := range stale {
		if wr := t.Lookup(id); wr != nil && wr.clear() != NilAddr {
			cleared++
		}
	}
	return cleared
}

// Count returns the number of registered weak references.
func (t *WeakTable) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.refs)
}
