package heap

import (
	"fmt"
	"strings"
)

// StrategyKind identifies one of the pluggable collection strategies. The
// strategy is a process-wide configuration chosen when a heap is created
// and fixed for the heap's lifetime.
type StrategyKind uint8

const (
	// Refcount reclaims an object the moment its reference count drops to
	// zero. Cycles are never reclaimed by this variant alone; that is a
	// documented limitation of the variant, not of the system.
	Refcount StrategyKind = iota

	// ExternalRoot keeps refcount bookkeeping but defers all reclamation to
	// the destruction protocol of a single designated external root
	// (CPython-style embedding).
	ExternalRoot

	// Tracing reclaims by reachability: a stop-the-world mark phase from
	// the registered root set followed by a sweep of everything unmarked.
	Tracing
)

func (k StrategyKind) String() string {
	switch k {
	case Refcount:
		return "refcount"
	case ExternalRoot:
		return "externalroot"
	case Tracing:
		return "tracing"
	default:
		return "?"
	}
}

// ParseStrategyKind parses a strategy name as found in configuration files.
func ParseStrategyKind(s string) (StrategyKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "refcount", "rc":
		return Refcount, nil
	case "externalroot", "external-root", "cpython":
		return ExternalRoot, nil
	case "tracing", "marksweep", "mark-sweep":
		return Tracing, nil
	default:
		return Refcount, fmt.Errorf("heap: unknown strategy %q", s)
	}
}

// Strategy is the capability set the object layout and allocator are
// written against. A strategy owns its arena: it is the only component
// permitted to reclaim storage, and the sole mutator of arena state.
//
// Retain and Release implement the reference-adjustment protocol every
// handle copy and drop must route through. Both are synchronous and
// bounded; neither blocks.
type Strategy interface {
	Kind() StrategyKind

	// InitHeader establishes the strategy's header invariant on a freshly
	// allocated object (e.g. refcount == 1 for the counting variants).
	InitHeader(obj *Object)

	// Retain records a new reference to obj.
	Retain(obj *Object) error

	// Release records a dropped reference to obj and may reclaim it.
	Release(obj *Object) error

	// Collect performs a full collection where the variant supports one,
	// and returns ErrCollectUnsupported otherwise.
	Collect() (*CollectStats, error)
}

// newStrategy wires up the strategy for the given kind. The arena and weak
// table are owned by the heap and shared with the strategy; the heap
// serializes all access to them.
func newStrategy(kind StrategyKind, arena *Arena, weak *WeakTable) Strategy {
	switch kind {
	case Refcount:
		return &refcountStrategy{arena: arena, weak: weak}
	case ExternalRoot:
		return &externalRootStrategy{
			refcountStrategy: refcountStrategy{arena: arena, weak: weak},
		}
	case Tracing:
		return &tracingStrategy{
			arena: arena,
			weak:  weak,
			roots: make(map[Addr]int),
		}
	default:
		panic("heap: unknown strategy kind")
	}
}
