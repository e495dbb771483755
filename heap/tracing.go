package heap

import (
	"time"
)

// tracingStrategy reclaims by reachability. Retain and Release are no-ops
// beyond use-after-free detection; Collect performs a stop-the-world
// mark/sweep from the registered root set, using each live object's visitor
// to discover children. The heap holds its lock for the whole pass, so no
// allocation or handle operation can interleave with the mark phase.
type tracingStrategy struct {
	arena *Arena
	weak  *WeakTable

	// roots maps pinned addresses to their pin count, so the same object
	// can be registered as a root from several places independently.
	roots map[Addr]int
}

func (s *tracingStrategy) Kind() StrategyKind { return Tracing }

func (s *tracingStrategy) InitHeader(obj *Object) {
	// No count under tracing; the zeroed header (unmarked) is the invariant.
}

func (s *tracingStrategy) Retain(obj *Object) error {
	if obj.header.Poisoned() {
		return &UseAfterFreeError{Addr: obj.addr}
	}
	return nil
}

func (s *tracingStrategy) Release(obj *Object) error {
	if obj.header.Poisoned() {
		return &UseAfterFreeError{Addr: obj.addr}
	}
	return nil
}

// addRoot pins addr as a member of the root set.
func (s *tracingStrategy) addRoot(addr Addr) {
	s.roots[addr]++
}

// removeRoot drops one pin from addr, removing it from the root set when
// no pins remain.
func (s *tracingStrategy) removeRoot(addr Addr) {
	if n := s.roots[addr]; n > 1 {
		s.roots[addr] = n - 1
	} else {
		delete(s.roots, addr)
	}
}

func (s *tracingStrategy) Collect() (*CollectStats, error) {
	start := time.Now()
	stats := &CollectStats{
		Strategy:  Tracing,
		Timestamp: start,
	}

	// Mark phase: walk the reachability graph from the root set.
	marked := make(map[Addr]struct{}, len(s.roots))
	stack := make([]Addr, 0, len(s.roots))
	for addr := range s.roots {
		stack = append(stack, addr)
	}
	for len(stack) > 0 {
		addr := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if _, done := marked[addr]; done {
			continue
		}
		obj := s.arena.Load(addr)
		if obj == nil || obj.header.Poisoned() {
			continue
		}
		marked[addr] = struct{}{}
		obj.header.setMarked(true)
		obj.VisitRefs(func(child Addr) bool {
			stack = append(stack, child)
			return true
		})
	}
	stats.Marked = len(marked)

	// Weak references to anything unmarked are emptied before the sweep.
	stats.WeakCleared = s.weak.ProcessGC(marked)

	// Sweep phase: reclaim everything unmarked, clear mark bits on
	// survivors for the next cycle.
	var dead []Addr
	s.arena.ForEachLive(func(obj *Object) bool {
		if obj.header.Marked() {
			obj.header.setMarked(false)
		} else {
			dead = append(dead, obj.addr)
		}
		return true
	})
	for _, addr := range dead {
		s.arena.Reclaim(addr)
	}
	stats.Swept = len(dead)
	stats.Live = s.arena.Live()
	stats.Duration = time.Since(start)
	return stats, nil
}
