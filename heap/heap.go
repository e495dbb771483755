package heap

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/tliron/commonlog"
)

// ---------------------------------------------------------------------------
// Ref: the uniform GC-tracked handle
// ---------------------------------------------------------------------------

// Ref is a thin handle wrapping exactly one reference to a managed object.
// It is the uniform currency for "a GC-tracked reference to X": client code
// never sees arena addresses or raw objects directly. Copying a handle is a
// strategy-mediated operation (Heap.Clone), not a plain struct copy, and
// every drop must go through Heap.Drop.
//
// A Ref remembers which heap it belongs to; passing it to a different heap
// instance is reported as a StrategyMismatchError.
type Ref struct {
	heapID uuid.UUID
	addr   Addr
	typ    *TypeDescriptor // static storage type the handle was created as
}

// Addr returns the arena address of the target.
func (r Ref) Addr() Addr { return r.addr }

// StaticType returns the storage type the handle was allocated as. The
// target's dynamic type may be more specific; see Heap.DynamicType.
func (r Ref) StaticType() *TypeDescriptor { return r.typ }

// IsNil reports whether the handle points at no object.
func (r Ref) IsNil() bool { return r.addr == NilAddr }

// Value returns the handle encoded as a slot value.
func (r Ref) Value() Value {
	if r.IsNil() {
		return Nil
	}
	return FromRefAddr(r.addr)
}

// ---------------------------------------------------------------------------
// Heap
// ---------------------------------------------------------------------------

// Options configures a heap instance. The strategy choice is fixed for the
// heap's lifetime; it is not switchable at runtime.
type Options struct {
	Strategy   StrategyKind
	MaxObjects int // arena capacity in objects; 0 means unbounded
}

// Heap owns one arena governed by one strategy. All operations serialize on
// the heap's mutex: the baseline model is a single logical mutator, and the
// tracing collector relies on holding the lock for its whole stop-the-world
// pass. Reference counts are additionally atomic so clones of a handle held
// by several goroutines cannot corrupt the reclamation decision.
type Heap struct {
	id       uuid.UUID
	mu       sync.Mutex
	registry *Registry
	arena    *Arena
	weak     *WeakTable
	strategy Strategy
	log      commonlog.Logger

	collections uint64
	closed      bool
}

// New creates a heap drawing type metadata from the given registry. The
// registry may be shared between heaps; objects may not.
func New(registry *Registry, opts Options) *Heap {
	if registry == nil {
		registry = NewRegistry()
	}
	arena := NewArena(opts.MaxObjects)
	weak := NewWeakTable()
	h := &Heap{
		id:       uuid.New(),
		registry: registry,
		arena:    arena,
		weak:     weak,
		strategy: newStrategy(opts.Strategy, arena, weak),
		log:      commonlog.GetLogger("spymem.heap"),
	}
	h.log.Debugf("heap %s created: strategy=%s max-objects=%d", h.id, opts.Strategy, opts.MaxObjects)
	return h
}

// ID returns the heap's unique instance identifier.
func (h *Heap) ID() uuid.UUID { return h.id }

// Registry returns the type registry this heap allocates from.
func (h *Heap) Registry() *Registry { return h.registry }

// Strategy returns the collection strategy the heap was created with.
func (h *Heap) Strategy() StrategyKind { return h.strategy.Kind() }

// ---------------------------------------------------------------------------
// Allocation
// ---------------------------------------------------------------------------

// Alloc allocates a zeroed boxed instance of td and returns a handle to it.
// The dynamic type is Box(td) itself. The returned object satisfies the
// strategy's header invariant (refcount == 1 under the counting variants).
func (h *Heap) Alloc(td *TypeDescriptor) (Ref, error) {
	if td != nil && td.HasVarArray() {
		return Ref{}, &TypeMismatchError{Storage: td.name, Reason: "type has a flexible array member, use AllocVar"}
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.allocLocked(td, nil, 0)
}

// AllocAs allocates storage shaped like storage but stamps hl as the
// object's dynamic type. hl must be a declared reference shape whose
// referent fits the storage layout; this is how a high-level type system is
// layered over a small set of concrete storage shapes.
func (h *Heap) AllocAs(storage, hl *TypeDescriptor) (Ref, error) {
	if hl == nil || !hl.IsRefShape() {
		name := "?"
		if hl != nil {
			name = hl.name
		}
		return Ref{}, &TypeMismatchError{
			Storage: storage.name,
			Dynamic: name,
			Reason:  "dynamic type must be a declared reference shape",
		}
	}
	if storage != nil && storage.HasVarArray() {
		return Ref{}, &TypeMismatchError{Storage: storage.name, Reason: "type has a flexible array member, use AllocVar"}
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.allocLocked(storage, hl, 0)
}

// AllocVar allocates an instance of a type with a flexible array member,
// sized for count trailing elements.
func (h *Heap) AllocVar(td *TypeDescriptor, count int) (Ref, error) {
	if !td.HasVarArray() {
		return Ref{}, &TypeMismatchError{Storage: td.name, Reason: "type has no flexible array member"}
	}
	if count < 0 {
		return Ref{}, &TypeMismatchError{Storage: td.name, Reason: "negative element count"}
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.allocLocked(td, nil, count)
}

// allocLocked is the single allocation path. dyn == nil stamps the boxed
// storage shape itself as the dynamic type.
func (h *Heap) allocLocked(storage, dyn *TypeDescriptor, varLen int) (Ref, error) {
	if storage == nil {
		return Ref{}, &TypeMismatchError{Storage: "?", Reason: "nil storage type"}
	}
	if storage.IsBox() {
		// Allocation boxes internally; asking for Box[T] directly means the
		// caller is confused about which type it holds.
		return Ref{}, &TypeMismatchError{Storage: storage.name, Reason: "cannot allocate a synthesized Box type"}
	}
	if storage.IsRefShape() {
		return Ref{}, &TypeMismatchError{Storage: storage.name, Reason: "reference shapes are never allocated"}
	}

	box, err := h.registry.Box(storage)
	if err != nil {
		return Ref{}, err
	}

	if dyn != nil {
		// The referent's boxed layout must not require a larger prefix
		// than the storage actually provides.
		refBox, err := h.registry.Box(dyn.refTo)
		if err != nil {
			return Ref{}, err
		}
		if refBox != box && refBox.InstanceSize() > box.InstanceSize() {
			return Ref{}, &TypeMismatchError{
				Storage: storage.name,
				Dynamic: dyn.name,
				Reason: fmt.Sprintf("referent %s needs %d bytes, storage provides %d",
					dyn.refTo.name, refBox.InstanceSize(), box.InstanceSize()),
			}
		}
	}

	obj, err := h.arena.Allocate(box, varLen)
	if err != nil {
		if err != ErrOutOfMemory || h.strategy.Kind() != Tracing {
			return Ref{}, err
		}
		// Tracing variant: one automatic collection, then one retry.
		stats, cerr := h.collectLocked()
		if cerr != nil {
			return Ref{}, cerr
		}
		h.log.Infof("heap %s: collected on allocation pressure: swept=%d live=%d", h.id, stats.Swept, stats.Live)
		obj, err = h.arena.Allocate(box, varLen)
		if err != nil {
			return Ref{}, err
		}
	}

	h.strategy.InitHeader(obj)
	if dyn != nil {
		obj.typ = dyn
	} else {
		obj.typ = box
	}
	return Ref{heapID: h.id, addr: obj.addr, typ: storage}, nil
}

// ---------------------------------------------------------------------------
// Handle protocol
// ---------------------------------------------------------------------------

// resolve maps a handle to its object, enforcing heap ownership and
// reporting reclaimed targets. Callers hold h.mu.
func (h *Heap) resolve(r Ref) (*Object, error) {
	if r.heapID != h.id {
		return nil, &StrategyMismatchError{Want: h.id.String(), Got: r.heapID.String()}
	}
	obj := h.arena.Load(r.addr)
	if obj == nil {
		return nil, fmt.Errorf("heap: no object at address %d", r.addr)
	}
	if obj.header.Poisoned() {
		return nil, &UseAfterFreeError{Addr: r.addr}
	}
	return obj, nil
}

// Clone duplicates a handle, routing through the strategy's reference
// protocol (a refcount increment under the counting variants).
func (h *Heap) Clone(r Ref) (Ref, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	obj, err := h.resolve(r)
	if err != nil {
		return Ref{}, err
	}
	if err := h.strategy.Retain(obj); err != nil {
		return Ref{}, err
	}
	return r, nil
}

// Drop releases a handle. Under the counting variants this may reclaim the
// target and, recursively, everything it owned. Dropping a handle whose
// target was already reclaimed is rejected with a UseAfterFreeError.
func (h *Heap) Drop(r Ref) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	obj, err := h.resolve(r)
	if err != nil {
		return err
	}
	return h.strategy.Release(obj)
}

// DynamicType returns the target's reported type: the descriptor stamped
// into its header at allocation time.
func (h *Heap) DynamicType(r Ref) (*TypeDescriptor, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	obj, err := h.resolve(r)
	if err != nil {
		return nil, err
	}
	return obj.typ, nil
}

// Refcount returns the target's current reference count. Only meaningful
// under the counting strategies.
func (h *Heap) Refcount(r Ref) (int32, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	obj, err := h.resolve(r)
	if err != nil {
		return 0, err
	}
	return obj.header.Refcount(), nil
}

// ---------------------------------------------------------------------------
// Field access
// ---------------------------------------------------------------------------

// GetField reads a payload field by name.
func (h *Heap) GetField(r Ref, name string) (Value, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	obj, err := h.resolve(r)
	if err != nil {
		return Nil, err
	}
	idx, f, ok := obj.box.fieldIndex(name)
	if !ok {
		return Nil, fmt.Errorf("heap: type %s has no field %s", obj.box.name, name)
	}
	if f.Kind == FieldVarArray {
		return Nil, fmt.Errorf("heap: field %s is a flexible array, use GetVar", name)
	}
	return obj.slots[idx], nil
}

// SetField writes a payload field by name. Writes to strong reference
// fields route through the strategy: the new target is retained and the old
// one released, so the object graph's ownership edges stay consistent.
// Reference values are rejected in plain value fields, where the visitor
// would never find them.
func (h *Heap) SetField(r Ref, name string, v Value) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	obj, err := h.resolve(r)
	if err != nil {
		return err
	}
	idx, f, ok := obj.box.fieldIndex(name)
	if !ok {
		return fmt.Errorf("heap: type %s has no field %s", obj.box.name, name)
	}

	switch f.Kind {
	case FieldRef:
		if !v.IsRef() && !v.IsNil() {
			return fmt.Errorf("heap: field %s.%s takes a reference", obj.box.name, name)
		}
		if v.IsRef() {
			target := h.arena.Load(v.RefAddr())
			if target == nil || target.header.Poisoned() {
				return &UseAfterFreeError{Addr: v.RefAddr()}
			}
			if err := h.strategy.Retain(target); err != nil {
				return err
			}
		}
		old := obj.slots[idx]
		obj.slots[idx] = v
		if old.IsRef() {
			if oldTarget := h.arena.Load(old.RefAddr()); oldTarget != nil && !oldTarget.header.Poisoned() {
				return h.strategy.Release(oldTarget)
			}
		}
		return nil
	case FieldWeak:
		if !v.IsWeak() && !v.IsNil() {
			return fmt.Errorf("heap: field %s.%s takes a weak reference, use SetWeak", obj.box.name, name)
		}
		obj.slots[idx] = v
		return nil
	case FieldVarArray:
		return fmt.Errorf("heap: field %s is a flexible array, use SetVar", name)
	default:
		if v.IsRef() {
			return fmt.Errorf("heap: field %s.%s is not a reference field", obj.box.name, name)
		}
		obj.slots[idx] = v
		return nil
	}
}

// SetRef stores a handle into a strong reference field. The target gains a
// reference; the caller's handle is unaffected.
func (h *Heap) SetRef(r Ref, name string, target Ref) error {
	if target.heapID != h.id && !target.IsNil() {
		return &StrategyMismatchError{Want: h.id.String(), Got: target.heapID.String()}
	}
	return h.SetField(r, name, target.Value())
}

// GetRef reads a strong reference field as a handle. The returned handle is
// a new reference: it routes through the strategy's retain protocol and
// must eventually be dropped.
func (h *Heap) GetRef(r Ref, name string) (Ref, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	obj, err := h.resolve(r)
	if err != nil {
		return Ref{}, err
	}
	idx, f, ok := obj.box.fieldIndex(name)
	if !ok {
		return Ref{}, fmt.Errorf("heap: type %s has no field %s", obj.box.name, name)
	}
	if f.Kind != FieldRef {
		return Ref{}, fmt.Errorf("heap: field %s.%s is not a reference field", obj.box.name, name)
	}
	v := obj.slots[idx]
	if !v.IsRef() {
		return Ref{}, nil
	}
	target := h.arena.Load(v.RefAddr())
	if target == nil || target.header.Poisoned() {
		return Ref{}, &UseAfterFreeError{Addr: v.RefAddr()}
	}
	if err := h.strategy.Retain(target); err != nil {
		return Ref{}, err
	}
	return Ref{heapID: h.id, addr: target.addr, typ: f.Elem}, nil
}

// GetVar reads a flexible array element.
func (h *Heap) GetVar(r Ref, i int) (Value, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	obj, err := h.resolve(r)
	if err != nil {
		return Nil, err
	}
	if i < 0 || i >= obj.varLen {
		return Nil, fmt.Errorf("heap: element %d out of range (len %d)", i, obj.varLen)
	}
	return obj.VarGet(i), nil
}

// SetVar writes a flexible array element. Elements hold plain values only;
// they are invisible to visitors, so references are rejected.
func (h *Heap) SetVar(r Ref, i int, v Value) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	obj, err := h.resolve(r)
	if err != nil {
		return err
	}
	if i < 0 || i >= obj.varLen {
		return fmt.Errorf("heap: element %d out of range (len %d)", i, obj.varLen)
	}
	if v.IsRef() {
		return fmt.Errorf("heap: flexible array elements cannot hold references")
	}
	obj.VarSet(i, v)
	return nil
}

// VarLen returns the target's flexible array element count.
func (h *Heap) VarLen(r Ref) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	obj, err := h.resolve(r)
	if err != nil {
		return 0, err
	}
	return obj.varLen, nil
}

// ---------------------------------------------------------------------------
// Weak references
// ---------------------------------------------------------------------------

// NewWeak creates a weak reference to the target. The target gains no
// reference; when it is reclaimed the weak reference becomes empty.
func (h *Heap) NewWeak(target Ref) (*WeakRef, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, err := h.resolve(target); err != nil {
		return nil, err
	}
	return h.weak.New(target.addr), nil
}

// SetWeak stores a weak reference to target into a weak field of r.
func (h *Heap) SetWeak(r Ref, name string, target Ref) error {
	wr, err := h.NewWeak(target)
	if err != nil {
		return err
	}
	return h.SetField(r, name, FromWeakID(wr.ID()))
}

// Strengthen upgrades a weak reference to a strong handle, or reports false
// if the target has been reclaimed. The returned handle is a new reference
// and must eventually be dropped.
func (h *Heap) Strengthen(wr *WeakRef) (Ref, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	addr := wr.Target()
	if addr == NilAddr {
		return Ref{}, false
	}
	obj := h.arena.Load(addr)
	if obj == nil || obj.header.Poisoned() {
		return Ref{}, false
	}
	if err := h.strategy.Retain(obj); err != nil {
		return Ref{}, false
	}
	return Ref{heapID: h.id, addr: addr, typ: obj.box.Payload()}, true
}

// ---------------------------------------------------------------------------
// Collection
// ---------------------------------------------------------------------------

// AddRoot pins a handle into the tracing root set. Errors under the
// counting strategies, which have no root set.
func (h *Heap) AddRoot(r Ref) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	ts, ok := h.strategy.(*tracingStrategy)
	if !ok {
		return fmt.Errorf("heap: root set requires the tracing strategy, heap uses %s", h.strategy.Kind())
	}
	if _, err := h.resolve(r); err != nil {
		return err
	}
	ts.addRoot(r.addr)
	return nil
}

// RemoveRoot unpins a handle from the tracing root set.
func (h *Heap) RemoveRoot(r Ref) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	ts, ok := h.strategy.(*tracingStrategy)
	if !ok {
		return fmt.Errorf("heap: root set requires the tracing strategy, heap uses %s", h.strategy.Kind())
	}
	if r.heapID != h.id {
		return &StrategyMismatchError{Want: h.id.String(), Got: r.heapID.String()}
	}
	ts.removeRoot(r.addr)
	return nil
}

// Collect runs a full collection pass. The heap lock is held for the whole
// pass, so the mutator is stopped relative to the mark phase. Returns
// ErrCollectUnsupported under the counting strategies.
func (h *Heap) Collect() (*CollectStats, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.collectLocked()
}

func (h *Heap) collectLocked() (*CollectStats, error) {
	stats, err := h.strategy.Collect()
	if err != nil {
		return nil, err
	}
	h.collections++
	h.log.Debugf("heap %s: collect #%d: marked=%d swept=%d weak-cleared=%d in %s",
		h.id, h.collections, stats.Marked, stats.Swept, stats.WeakCleared, stats.Duration)
	return stats, nil
}

// Close tears the heap down. Under the external-root strategy this runs the
// designated root's destruction protocol, draining every pending object
// with a single visitor pass each. Close is idempotent.
func (h *Heap) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	if s, ok := h.strategy.(*externalRootStrategy); ok {
		reclaimed := s.drainRoot()
		h.log.Infof("heap %s: external root teardown reclaimed %d objects", h.id, reclaimed)
	}
	return nil
}

// Stats returns a snapshot of the heap's counters.
func (h *Heap) Stats() HeapStats {
	h.mu.Lock()
	defer h.mu.Unlock()
	return HeapStats{
		Strategy:    h.strategy.Kind(),
		Live:        h.arena.Live(),
		BytesLive:   h.arena.BytesLive(),
		MaxObjects:  h.arena.MaxObjects(),
		TotalAllocs: h.arena.TotalAllocs(),
		TotalFrees:  h.arena.TotalFrees(),
		Collections: h.collections,
		WeakRefs:    h.weak.Count(),
	}
}
