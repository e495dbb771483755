package heap

import (
	"testing"
	"unsafe"
)

// ---------------------------------------------------------------------------
// Layout invariant
// ---------------------------------------------------------------------------

// Every managed object begins with exactly the ObjectLayout prefix: a
// GcHeader at offset 0 followed immediately by the type pointer. Generic
// strategy code depends on this holding for all object types.
func TestObjectLayoutPrefix(t *testing.T) {
	var obj Object
	if unsafe.Offsetof(obj.header) != 0 {
		t.Errorf("GcHeader at offset %d, want 0", unsafe.Offsetof(obj.header))
	}
	if unsafe.Sizeof(obj.header) != 8 {
		t.Errorf("GcHeader is %d bytes, want 8", unsafe.Sizeof(obj.header))
	}
	if unsafe.Offsetof(obj.typ) != 8 {
		t.Errorf("type pointer at offset %d, want 8", unsafe.Offsetof(obj.typ))
	}
	if uintptr(prefixBytes) != unsafe.Offsetof(obj.typ)+unsafe.Sizeof(obj.typ) {
		t.Errorf("prefixBytes = %d does not match the real prefix", prefixBytes)
	}
}

func TestAllocatedObjectPrefixValid(t *testing.T) {
	reg := NewRegistry()
	point := declarePoint(t, reg)
	h := New(reg, Options{Strategy: Refcount})

	r, err := h.Alloc(point)
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}
	td, err := h.DynamicType(r)
	if err != nil {
		t.Fatalf("DynamicType: %v", err)
	}
	if td == nil {
		t.Fatal("type pointer must be non-nil for a live object")
	}
	rc, err := h.Refcount(r)
	if err != nil {
		t.Fatalf("Refcount: %v", err)
	}
	if rc != 1 {
		t.Errorf("fresh object refcount = %d, want 1", rc)
	}
}

// ---------------------------------------------------------------------------
// Slot access
// ---------------------------------------------------------------------------

func TestSlotAccess(t *testing.T) {
	reg := NewRegistry()
	point := declarePoint(t, reg)
	boxed, _ := reg.Box(point)

	obj := newObject(boxed, 1, 0)
	if obj.NumSlots() != 2 {
		t.Fatalf("NumSlots() = %d, want 2", obj.NumSlots())
	}
	for i := 0; i < 2; i++ {
		if obj.GetSlot(i) != Nil {
			t.Errorf("slot %d should start out Nil", i)
		}
	}
	obj.SetSlot(0, FromInt(10))
	obj.SetSlot(1, FromInt(20))
	if obj.GetSlot(0).Int() != 10 || obj.GetSlot(1).Int() != 20 {
		t.Error("slot round-trip broken")
	}
}

func TestSlotOutOfRangePanics(t *testing.T) {
	reg := NewRegistry()
	point := declarePoint(t, reg)
	boxed, _ := reg.Box(point)
	obj := newObject(boxed, 1, 0)

	defer func() {
		if recover() == nil {
			t.Error("GetSlot out of range should panic")
		}
	}()
	obj.GetSlot(2)
}

// ---------------------------------------------------------------------------
// Visitation
// ---------------------------------------------------------------------------

// A type with two strong reference fields and one weak field: the visitor
// must yield exactly the two strong references, in declaration order, and
// skip the weak one.
func TestVisitRefsDeclarationOrder(t *testing.T) {
	reg := NewRegistry()
	obj := reg.ObjectShape()
	node, err := reg.Declare("TreeNode", []FieldSpec{
		{Name: "left", Kind: FieldRef, Elem: obj},
		{Name: "parent", Kind: FieldWeak, Elem: obj},
		{Name: "right", Kind: FieldRef, Elem: obj},
	})
	if err != nil {
		t.Fatalf("Declare: %v", err)
	}
	boxed, _ := reg.Box(node)

	o := newObject(boxed, 1, 0)
	o.SetSlot(0, FromRefAddr(11)) // left
	o.SetSlot(1, FromWeakID(99))  // parent (weak)
	o.SetSlot(2, FromRefAddr(22)) // right

	var got []Addr
	o.VisitRefs(func(a Addr) bool {
		got = append(got, a)
		return true
	})
	if len(got) != 2 || got[0] != 11 || got[1] != 22 {
		t.Errorf("VisitRefs yielded %v, want [11 22]", got)
	}
}

func TestVisitRefsSkipsNilAndStopsEarly(t *testing.T) {
	reg := NewRegistry()
	obj := reg.ObjectShape()
	node, _ := reg.Declare("Pair", []FieldSpec{
		{Name: "a", Kind: FieldRef, Elem: obj},
		{Name: "b", Kind: FieldRef, Elem: obj},
	})
	boxed, _ := reg.Box(node)

	o := newObject(boxed, 1, 0)
	o.SetSlot(1, FromRefAddr(5)) // a stays Nil

	var got []Addr
	o.VisitRefs(func(a Addr) bool {
		got = append(got, a)
		return true
	})
	if len(got) != 1 || got[0] != 5 {
		t.Errorf("VisitRefs yielded %v, want [5]", got)
	}

	// Early stop
	o.SetSlot(0, FromRefAddr(3))
	count := 0
	o.VisitRefs(func(Addr) bool {
		count++
		return false
	})
	if count != 1 {
		t.Errorf("early stop visited %d refs, want 1", count)
	}
}

// Visitation is restartable: repeated calls re-enumerate from current state
// with no shared iteration state.
func TestVisitRefsRestartable(t *testing.T) {
	reg := NewRegistry()
	obj := reg.ObjectShape()
	node, _ := reg.Declare("Cell", []FieldSpec{
		{Name: "next", Kind: FieldRef, Elem: obj},
	})
	boxed, _ := reg.Box(node)
	o := newObject(boxed, 1, 0)
	o.SetSlot(0, FromRefAddr(7))

	for pass := 0; pass < 3; pass++ {
		var got []Addr
		o.VisitRefs(func(a Addr) bool {
			got = append(got, a)
			return true
		})
		if len(got) != 1 || got[0] != 7 {
			t.Fatalf("pass %d yielded %v, want [7]", pass, got)
		}
	}
}

func TestCustomVisitor(t *testing.T) {
	reg := NewRegistry()
	obj := reg.ObjectShape()
	// The custom visitor exposes only the second field, regardless of the
	// declared kinds.
	node, err := reg.DeclareVisitor("Custom", []FieldSpec{
		{Name: "a", Kind: FieldRef, Elem: obj},
		{Name: "b", Kind: FieldRef, Elem: obj},
	}, func(o *Object, fn func(Addr) bool) {
		if v := o.GetSlot(1); v.IsRef() {
			fn(v.RefAddr())
		}
	})
	if err != nil {
		t.Fatalf("DeclareVisitor: %v", err)
	}
	boxed, _ := reg.Box(node)
	o := newObject(boxed, 1, 0)
	o.SetSlot(0, FromRefAddr(1))
	o.SetSlot(1, FromRefAddr(2))

	var got []Addr
	o.VisitRefs(func(a Addr) bool {
		got = append(got, a)
		return true
	})
	if len(got) != 1 || got[0] != 2 {
		t.Errorf("custom visitor yielded %v, want [2]", got)
	}
}

// ---------------------------------------------------------------------------
// Flexible array
// ---------------------------------------------------------------------------

func TestVarArraySlots(t *testing.T) {
	reg := NewRegistry()
	str, _ := reg.Declare("StringData", []FieldSpec{
		{Name: "length", Kind: FieldValue},
		{Name: "data", Kind: FieldVarArray},
	})
	boxed, _ := reg.Box(str)

	o := newObject(boxed, 1, 3)
	if o.VarLen() != 3 {
		t.Fatalf("VarLen() = %d, want 3", o.VarLen())
	}
	for i := 0; i < 3; i++ {
		o.VarSet(i, FromInt(int64('a'+i)))
	}
	for i := 0; i < 3; i++ {
		if o.VarGet(i).Int() != int64('a'+i) {
			t.Errorf("element %d round-trip broken", i)
		}
	}
	// Fixed slots are untouched by element writes.
	if o.GetSlot(0) != Nil {
		t.Error("fixed slot clobbered by element write")
	}
	if o.SizeBytes() != boxed.InstanceSize()+3*wordBytes {
		t.Errorf("SizeBytes() = %d, want %d", o.SizeBytes(), boxed.InstanceSize()+3*wordBytes)
	}
}
