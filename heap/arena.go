package heap

// Arena is the raw storage substrate: a cell store addressed by stable Addr
// handles, with bump allocation and free-list reuse. The arena has no
// locking of its own; the owning strategy/heap is its sole mutator and
// serializes all access.
type Arena struct {
	// cells holds one entry per ever-allocated address; cells[a-1] is the
	// object at address a. Reclaimed cells keep their poisoned object until
	// the address is reused.
	cells []*Object
	free  []Addr // reclaimed addresses, reused LIFO

	maxObjects int // 0 means unbounded
	live       int
	bytesLive  int

	totalAllocs uint64
	totalFrees  uint64
}

// NewArena creates an arena holding at most maxObjects live objects.
// maxObjects <= 0 means unbounded.
func NewArena(maxObjects int) *Arena {
	return &Arena{maxObjects: maxObjects}
}

// Allocate materializes a zeroed instance of the given boxed storage shape
// with varLen flexible array elements. Returns ErrOutOfMemory when the
// arena is at capacity; the caller decides whether a collection can free
// pressure before retrying.
func (a *Arena) Allocate(box *TypeDescriptor, varLen int) (*Object, error) {
	if a.maxObjects > 0 && a.live >= a.maxObjects {
		return nil, ErrOutOfMemory
	}

	var addr Addr
	if n := len(a.free); n > 0 {
		addr = a.free[n-1]
		a.free = a.free[:n-1]
	} else {
		a.cells = append(a.cells, nil)
		addr = Addr(len(a.cells))
	}

	obj := newObject(box, addr, varLen)
	a.cells[addr-1] = obj
	a.live++
	a.bytesLive += obj.SizeBytes()
	a.totalAllocs++
	return obj, nil
}

// Load returns the object at the given address, which may be poisoned if
// the address was reclaimed and not yet reused. Returns nil for addresses
// the arena never handed out.
func (a *Arena) Load(addr Addr) *Object {
	if addr == NilAddr || int(addr) > len(a.cells) {
		return nil
	}
	return a.cells[addr-1]
}

// Reclaim returns the object at addr to the arena. The cell keeps a
// poisoned header until the address is reused.
func (a *Arena) Reclaim(addr Addr) {
	obj := a.Load(addr)
	if obj == nil || obj.header.Poisoned() {
		return
	}
	a.live--
	a.bytesLive -= obj.SizeBytes()
	a.totalFrees++
	obj.reclaim()
	a.free = append(a.free, addr)
}

// ForEachLive calls fn for every live object, in address order.
// Iteration stops early when fn returns false.
func (a *Arena) ForEachLive(fn func(*Object) bool) {
	for _, obj := range a.cells {
		if obj == nil || obj.header.Poisoned() {
			continue
		}
		if !fn(obj) {
			return
		}
	}
}

// Live returns the number of live objects.
func (a *Arena) Live() int { return a.live }

// BytesLive returns the total storage footprint of live objects.
func (a *Arena) BytesLive() int { return a.bytesLive }

// TotalAllocs returns the number of allocations performed.
func (a *Arena) TotalAllocs() uint64 { return a.totalAllocs }

// TotalFrees returns the number of objects reclaimed.
func (a *Arena) TotalFrees() uint64 { return a.totalFrees }

// MaxObjects returns the configured capacity, 0 if unbounded.
func (a *Arena) MaxObjects() int { return a.maxObjects }
