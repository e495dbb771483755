package heap

import (
	"time"
)

// CollectStats holds statistics from a single collection pass.
type CollectStats struct {
	Strategy    StrategyKind
	Marked      int // objects reachable from the root set
	Swept       int // objects reclaimed
	WeakCleared int // weak references emptied
	Live        int // live objects after the pass
	Duration    time.Duration
	Timestamp   time.Time
}

// HeapStats is a point-in-time snapshot of a heap's counters.
type HeapStats struct {
	Strategy    StrategyKind
	Live        int
	BytesLive   int
	MaxObjects  int
	TotalAllocs uint64
	TotalFrees  uint64
	Collections uint64
	WeakRefs    int
}
