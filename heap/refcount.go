package heap

// refcountStrategy reclaims an object the moment its reference count drops
// to zero: the object's visitor enumerates its children, the object is
// returned to the arena, and each child is released in turn.
//
// Cycle-forming graphs are never reclaimed by this strategy alone.
type refcountStrategy struct {
	arena *Arena
	weak  *WeakTable
}

func (s *refcountStrategy) Kind() StrategyKind { return Refcount }

func (s *refcountStrategy) InitHeader(obj *Object) {
	obj.header.initCount(1)
}

func (s *refcountStrategy) Retain(obj *Object) error {
	if obj.header.Poisoned() {
		return &UseAfterFreeError{Addr: obj.addr}
	}
	obj.header.retain()
	return nil
}

func (s *refcountStrategy) Release(obj *Object) error {
	if obj.header.Poisoned() {
		return &UseAfterFreeError{Addr: obj.addr}
	}
	s.releaseAll([]*Object{obj})
	return nil
}

// releaseAll drops one reference from every object in the worklist,
// reclaiming and cascading as counts reach zero. Iterative so that long
// reference chains don't grow the Go stack.
func (s *refcountStrategy) releaseAll(work []*Object) {
	for len(work) > 0 {
		obj := work[len(work)-1]
		work = work[:len(work)-1]

		if obj.header.Poisoned() {
			// Already reclaimed earlier in this cascade.
			continue
		}
		if obj.header.release() > 0 {
			continue
		}

		// Count reached zero: gather children before the slots are gone,
		// then reclaim and cascade.
		var children []*Object
		obj.VisitRefs(func(child Addr) bool {
			if c := s.arena.Load(child); c != nil {
				children = append(children, c)
			}
			return true
		})
		s.weak.ClearTarget(obj.addr)
		s.arena.Reclaim(obj.addr)
		work = append(work, children...)
	}
}

func (s *refcountStrategy) Collect() (*CollectStats, error) {
	return nil, ErrCollectUnsupported
}
