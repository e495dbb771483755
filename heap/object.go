package heap

// Object is a heap-allocated managed object: the mandatory ObjectLayout
// prefix (GcHeader + dynamic type pointer) followed by the payload slots of
// its storage shape. Every object, regardless of declared type, begins with
// exactly this prefix, which is what lets strategy code operate generically.
type Object struct {
	header GcHeader
	typ    *TypeDescriptor // dynamic/reported type; nil only after reclaim

	// box is the storage shape actually materialized. It is always a boxed
	// descriptor and may differ from typ when the object was allocated with
	// a dynamic-type override.
	box *TypeDescriptor

	addr   Addr
	slots  []Value // fixed payload slots followed by varLen flexible elements
	varLen int
}

// newObject creates an object of the given boxed storage shape with all
// slots initialized to Nil. The dynamic type is stamped by the allocator.
func newObject(box *TypeDescriptor, addr Addr, varLen int) *Object {
	obj := &Object{
		box:    box,
		addr:   addr,
		varLen: varLen,
		slots:  make([]Value, box.slotCount+varLen),
	}
	for i := range obj.slots {
		obj.slots[i] = Nil
	}
	return obj
}

// Header returns the object's GC header.
func (obj *Object) Header() *GcHeader { return &obj.header }

// Type returns the object's dynamic type: the descriptor stamped into the
// header at allocation time, possibly more specific than the storage shape.
func (obj *Object) Type() *TypeDescriptor { return obj.typ }

// StorageShape returns the boxed storage shape the object was allocated as.
func (obj *Object) StorageShape() *TypeDescriptor { return obj.box }

// Addr returns the object's arena address.
func (obj *Object) Addr() Addr { return obj.addr }

// SizeBytes returns the storage footprint: fixed instance size plus one
// word per flexible array element.
func (obj *Object) SizeBytes() int {
	return obj.box.InstanceSize() + obj.varLen*wordBytes
}

// ---------------------------------------------------------------------------
// Slot access
// ---------------------------------------------------------------------------

// NumSlots returns the number of fixed payload slots.
func (obj *Object) NumSlots() int { return obj.box.slotCount }

// GetSlot returns the value at the given fixed slot index.
// Panics if index is out of range.
func (obj *Object) GetSlot(index int) Value {
	if index < 0 || index >= obj.box.slotCount {
		panic("Object.GetSlot: index out of range")
	}
	return obj.slots[index]
}

// SetSlot sets the value at the given fixed slot index.
// Panics if index is out of range.
func (obj *Object) SetSlot(index int, value Value) {
	if index < 0 || index >= obj.box.slotCount {
		panic("Object.SetSlot: index out of range")
	}
	obj.slots[index] = value
}

// ---------------------------------------------------------------------------
// Flexible array access
// ---------------------------------------------------------------------------

// VarLen returns the number of flexible array elements, 0 if the storage
// shape has no flexible array member.
func (obj *Object) VarLen() int { return obj.varLen }

// VarGet returns the flexible array element at index i.
// Panics if the index is out of range.
func (obj *Object) VarGet(i int) Value {
	if i < 0 || i >= obj.varLen {
		panic("Object.VarGet: index out of range")
	}
	return obj.slots[obj.box.slotCount+i]
}

// VarSet sets the flexible array element at index i.
// Panics if the index is out of range.
func (obj *Object) VarSet(i int, value Value) {
	if i < 0 || i >= obj.varLen {
		panic("Object.VarSet: index out of range")
	}
	obj.slots[obj.box.slotCount+i] = value
}

// ---------------------------------------------------------------------------
// Visitation
// ---------------------------------------------------------------------------

// VisitRefs enumerates the object's outgoing strong references in field
// declaration order, using the type's custom visitor if one was registered.
// Weak fields and plain value slots are skipped. Enumeration stops early
// when fn returns false.
//
// Each call re-enumerates from current state; there is no iteration state
// shared across calls.
func (obj *Object) VisitRefs(fn func(Addr) bool) {
	if obj.box.visit != nil {
		obj.box.visit(obj, fn)
		return
	}
	for i, f := range obj.box.payloadFields() {
		if f.Kind != FieldRef {
			continue
		}
		if v := obj.slots[i]; v.IsRef() {
			if !fn(v.RefAddr()) {
				return
			}
		}
	}
}

// ---------------------------------------------------------------------------
// Debugging
// ---------------------------------------------------------------------------

// TypeName returns the name of the object's dynamic type, or "?" if the
// object has been reclaimed.
func (obj *Object) TypeName() string {
	if obj.typ == nil {
		return "?"
	}
	return obj.typ.name
}

// reclaim poisons the object. The header stays behind so late handle
// operations are detectable until the arena reuses the cell.
func (obj *Object) reclaim() {
	obj.header.poison()
	obj.typ = nil
	obj.slots = nil
}
