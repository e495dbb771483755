package heap

// externalRootStrategy is the CPython-style variant: bookkeeping is
// identical to refcounting, but storage is never reclaimed eagerly.
// Objects whose count reaches zero are parked on a pending list owned by
// the designated external root; reclamation happens only when that root's
// destruction protocol runs (Heap.Close), at which point each pending
// object's visitor is invoked exactly once to release its children.
type externalRootStrategy struct {
	refcountStrategy
	pending []Addr
}

func (s *externalRootStrategy) Kind() StrategyKind { return ExternalRoot }

func (s *externalRootStrategy) Release(obj *Object) error {
	if obj.header.Poisoned() {
		return &UseAfterFreeError{Addr: obj.addr}
	}
	switch n := obj.header.release(); {
	case n == 0:
		s.pending = append(s.pending, obj.addr)
	case n < 0:
		// The count was already zero: this drop has no reference behind it.
		obj.header.retain()
		return &UseAfterFreeError{Addr: obj.addr}
	}
	return nil
}

// PendingCount returns the number of objects awaiting root teardown.
func (s *externalRootStrategy) PendingCount() int { return len(s.pending) }

// drainRoot runs the external root's destruction protocol: every pending
// object is visited once, its children released, and its storage
// reclaimed. Child releases may park further objects, which are drained in
// the same pass. Returns the number of objects reclaimed.
func (s *externalRootStrategy) drainRoot() int {
	reclaimed := 0
	for len(s.pending) > 0 {
		addr := s.pending[len(s.pending)-1]
		s.pending = s.pending[:len(s.pending)-1]

		obj := s.arena.Load(addr)
		if obj == nil || obj.header.Poisoned() {
			continue
		}

		var children []*Object
		obj.VisitRefs(func(child Addr) bool {
			if c := s.arena.Load(child); c != nil {
				children = append(children, c)
			}
			return true
		})
		s.weak.ClearTarget(addr)
		s.arena.Reclaim(addr)
		reclaimed++

		for _, c := range children {
			if c.header.Poisoned() {
				continue
			}
			if c.header.release() == 0 {
				s.pending = append(s.pending, c.addr)
			}
		}
	}
	return reclaimed
}
