package heap

import (
	"sync/atomic"
)

// GcHeader is the per-object metadata word the active strategy needs. Its
// shape is identical across all object types and strategies so generic code
// can locate it at a fixed offset; which fields are meaningful depends on
// the strategy (refcount for the counting variants, the mark bit for the
// tracing variant).
//
// The count is mutated atomically because multiple goroutines may hold
// clones of the same handle.
type GcHeader struct {
	refcnt atomic.Int32
	state  atomic.Uint32
}

// Header state bits.
const (
	headerMarked uint32 = 1 << 0

	// headerPoisoned is written into the state word when the object is
	// reclaimed. The arena keeps the poisoned header around until the cell
	// is reused, so late handle operations can be detected instead of
	// silently touching freed storage.
	headerPoisoned uint32 = 0xDEAD << 16
)

// Refcount returns the current reference count.
func (h *GcHeader) Refcount() int32 { return h.refcnt.Load() }

func (h *GcHeader) initCount(n int32) { h.refcnt.Store(n) }

// retain increments the count and returns the new value.
func (h *GcHeader) retain() int32 { return h.refcnt.Add(1) }

// release decrements the count and returns the new value.
func (h *GcHeader) release() int32 { return h.refcnt.Add(-1) }

// Marked reports whether the mark bit is set.
func (h *GcHeader) Marked() bool { return h.state.Load()&headerMarked != 0 }

func (h *GcHeader) setMarked(m bool) {
	for {
		old := h.state.Load()
		next := old &^ headerMarked
		if m {
			next = old | headerMarked
		}
		if h.state.CompareAndSwap(old, next) {
			return
		}
	}
}

// Poisoned reports whether the object has been reclaimed.
func (h *GcHeader) Poisoned() bool { return h.state.Load()&headerPoisoned == headerPoisoned }

func (h *GcHeader) poison() { h.state.Store(headerPoisoned) }
