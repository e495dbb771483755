package heap

import (
	"fmt"
	"strings"
	"sync"
)

// ---------------------------------------------------------------------------
// Field specifications
// ---------------------------------------------------------------------------

// FieldKind classifies a declared field for layout and visitation purposes.
// The distinction between FieldRef and FieldWeak is what lets collector code
// statically tell "must visit" from "must not visit" instead of relying on
// convention.
type FieldKind uint8

const (
	// FieldValue is a plain value slot (int, float, bool). Never visited.
	FieldValue FieldKind = iota

	// FieldRef is a strong reference to another managed object. Always
	// enumerated by the type's visitor.
	FieldRef

	// FieldWeak is a non-owning reference (e.g. a parent back-pointer).
	// Excluded from visitation; cleared when the target is reclaimed.
	FieldWeak

	// FieldBase marks the mandatory ObjectLayout prefix (GcHeader + type
	// pointer). It may only appear as the first field of a declaration and
	// does not occupy a payload slot.
	FieldBase

	// FieldVarArray is a flexible array member. It must be the last field;
	// its element count is fixed per instance at allocation time. Elements
	// are plain values and are not visited.
	FieldVarArray
)

func (k FieldKind) String() string {
	switch k {
	case FieldValue:
		return "value"
	case FieldRef:
		return "ref"
	case FieldWeak:
		return "weak"
	case FieldBase:
		return "base"
	case FieldVarArray:
		return "vararray"
	default:
		return "?"
	}
}

// FieldSpec describes one declared field of a type.
type FieldSpec struct {
	Name string
	Kind FieldKind

	// Elem is the static referent type for FieldRef and FieldWeak fields.
	Elem *TypeDescriptor
}

// VisitFunc enumerates the outgoing strong references of an object. Each
// invocation independently re-enumerates children from current state, so a
// collector may call it repeatedly on the same object. Enumeration stops
// early when fn returns false.
type VisitFunc func(obj *Object, fn func(Addr) bool)

// ---------------------------------------------------------------------------
// TypeDescriptor
// ---------------------------------------------------------------------------

// Word and prefix sizes, in bytes. Every payload slot is one word; the
// ObjectLayout prefix is a GcHeader word followed by the type pointer word.
const (
	wordBytes   = 8
	prefixBytes = 16
)

// TypeDescriptor is the static, one-per-type metadata record: layout, size
// and the visitor capability. Descriptors are created once via a Registry,
// are immutable afterwards, and are shared by all instances of the type.
type TypeDescriptor struct {
	name   string
	fields []FieldSpec

	// boxed is true when instances begin with the ObjectLayout prefix.
	// It is computed at registration time, not inferred from runtime bytes.
	boxed bool

	// boxOf is the payload type when this descriptor was synthesized by
	// Box, nil otherwise.
	boxOf *TypeDescriptor

	// refTo is the storage type this descriptor refers to when it was
	// declared as a reference shape (a high-level type whose instances are
	// handles to some concrete storage shape), nil otherwise.
	refTo *TypeDescriptor

	visit VisitFunc // nil means the default field-driven visitor

	slotCount int // fixed payload slots, flexible array member excluded
	varIndex  int // payload slot index of the flexible array member, -1 if none
}

// Name returns the declared type name. Synthesized boxes are named
// "Box[T]" after their payload type.
func (td *TypeDescriptor) Name() string { return td.name }

// IsBoxed reports whether instances of this type begin with the
// ObjectLayout prefix.
func (td *TypeDescriptor) IsBoxed() bool { return td.boxed }

// IsBox reports whether this descriptor was synthesized by Box.
func (td *TypeDescriptor) IsBox() bool { return td.boxOf != nil }

// IsRefShape reports whether this descriptor was declared as a reference
// shape, i.e. a high-level type usable as a dynamic-type override.
func (td *TypeDescriptor) IsRefShape() bool { return td.refTo != nil }

// RefTo returns the storage type a reference shape refers to, or nil.
func (td *TypeDescriptor) RefTo() *TypeDescriptor { return td.refTo }

// Payload returns the payload type of a synthesized box, or td itself when
// td is not a box.
func (td *TypeDescriptor) Payload() *TypeDescriptor {
	if td.boxOf != nil {
		return td.boxOf
	}
	return td
}

// NumSlots returns the number of fixed payload slots.
func (td *TypeDescriptor) NumSlots() int { return td.slotCount }

// HasVarArray reports whether the type declares a flexible array member.
func (td *TypeDescriptor) HasVarArray() bool { return td.varIndex >= 0 }

// InstanceSize returns the fixed instance size in bytes: the ObjectLayout
// prefix (for boxed types) plus one word per payload slot. Flexible array
// elements are not included; they are sized per instance.
func (td *TypeDescriptor) InstanceSize() int {
	size := td.slotCount * wordBytes
	if td.boxed {
		size += prefixBytes
	}
	return size
}

// Fields returns the declared field specifications, base prefix included.
// The returned slice must not be mutated.
func (td *TypeDescriptor) Fields() []FieldSpec { return td.fields }

// payloadFields returns the fields that occupy payload slots, i.e. the
// declared fields minus the leading base prefix.
func (td *TypeDescriptor) payloadFields() []FieldSpec {
	if len(td.fields) > 0 && td.fields[0].Kind == FieldBase {
		return td.fields[1:]
	}
	return td.fields
}

// fieldIndex resolves a payload field name to its slot index.
func (td *TypeDescriptor) fieldIndex(name string) (int, FieldSpec, bool) {
	for i, f := range td.payloadFields() {
		if f.Name == name {
			return i, f, true
		}
	}
	return 0, FieldSpec{}, false
}

func (td *TypeDescriptor) String() string {
	return fmt.Sprintf("<type %s>", td.name)
}

// ---------------------------------------------------------------------------
// Registry
// ---------------------------------------------------------------------------

// ObjectTypeName is the name of the pre-registered bare object shape: an
// ObjectLayout prefix and nothing else. High-level types with no payload of
// their own allocate this shape and override the dynamic type.
const ObjectTypeName = "object"

// Registry holds every declared TypeDescriptor for one runtime. It is
// created at startup and injected into heaps rather than accessed as a
// global. Descriptors outlive all instances of their types.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]*TypeDescriptor
	boxes  map[*TypeDescriptor]*TypeDescriptor
	object *TypeDescriptor
}

// NewRegistry creates a registry with the builtin bare object shape
// pre-registered.
func NewRegistry() *Registry {
	r := &Registry{
		byName: make(map[string]*TypeDescriptor),
		boxes:  make(map[*TypeDescriptor]*TypeDescriptor),
	}
	r.object = &TypeDescriptor{
		name:     ObjectTypeName,
		fields:   []FieldSpec{{Name: "base", Kind: FieldBase}},
		boxed:    true,
		varIndex: -1,
	}
	r.byName[ObjectTypeName] = r.object
	return r
}

// ObjectShape returns the builtin bare object shape.
func (r *Registry) ObjectShape() *TypeDescriptor { return r.object }

// Lookup returns the descriptor registered under name, or nil.
func (r *Registry) Lookup(name string) *TypeDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byName[name]
}

// Declare registers a new type with the given fields and the default
// field-driven visitor. It must be called once per distinct type, before
// any allocation of that type.
func (r *Registry) Declare(name string, fields []FieldSpec) (*TypeDescriptor, error) {
	return r.DeclareVisitor(name, fields, nil)
}

// DeclareVisitor registers a new type with a custom visitor. The visitor
// must enumerate every strong outgoing reference an instance holds;
// omission is a correctness bug that no runtime check can catch.
func (r *Registry) DeclareVisitor(name string, fields []FieldSpec, visit VisitFunc) (*TypeDescriptor, error) {
	td, err := buildDescriptor(name, fields)
	if err != nil {
		return nil, err
	}
	td.visit = visit

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byName[name]; exists {
		return nil, fmt.Errorf("heap: type %s already declared", name)
	}
	r.byName[name] = td
	return td, nil
}

// DeclareRef registers a high-level reference shape: a type whose only
// field is a strong reference to the given storage type. Reference shapes
// exist to be stamped as the dynamic type of objects allocated with
// AllocAs; they are never allocated themselves.
func (r *Registry) DeclareRef(name string, storage *TypeDescriptor) (*TypeDescriptor, error) {
	if storage == nil {
		return nil, &LayoutError{Type: name, Reason: "reference shape needs a storage type"}
	}
	td, err := buildDescriptor(name, []FieldSpec{
		{Name: "ref", Kind: FieldRef, Elem: storage},
	})
	if err != nil {
		return nil, err
	}
	td.refTo = storage

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byName[name]; exists {
		return nil, fmt.Errorf("heap: type %s already declared", name)
	}
	r.byName[name] = td
	return td, nil
}

// buildDescriptor validates a field list and computes the layout.
func buildDescriptor(name string, fields []FieldSpec) (*TypeDescriptor, error) {
	if name == "" {
		return nil, &LayoutError{Type: "?", Reason: "empty type name"}
	}
	if strings.HasPrefix(name, "Box[") {
		return nil, &LayoutError{Type: name, Reason: "Box[...] names are reserved for synthesized boxes"}
	}

	td := &TypeDescriptor{name: name, fields: fields, varIndex: -1}
	seen := make(map[string]bool, len(fields))
	for i, f := range fields {
		if f.Name == "" {
			return nil, &LayoutError{Type: name, Reason: fmt.Sprintf("field %d has no name", i)}
		}
		if seen[f.Name] {
			return nil, &LayoutError{Type: name, Reason: fmt.Sprintf("duplicate field %s", f.Name)}
		}
		seen[f.Name] = true

		switch f.Kind {
		case FieldBase:
			// The ObjectLayout prefix must be at offset 0, otherwise
			// generic collector code cannot locate the header.
			if i != 0 {
				return nil, &LayoutError{Type: name, Reason: fmt.Sprintf("object base %s is not the first field", f.Name)}
			}
			td.boxed = true
		case FieldRef, FieldWeak:
			if f.Elem == nil {
				return nil, &LayoutError{Type: name, Reason: fmt.Sprintf("field %s has no referent type", f.Name)}
			}
			td.slotCount++
		case FieldVarArray:
			if i != len(fields)-1 {
				return nil, &LayoutError{Type: name, Reason: fmt.Sprintf("flexible array member %s must be the last field", f.Name)}
			}
			if td.varIndex >= 0 {
				return nil, &LayoutError{Type: name, Reason: "only one flexible array member allowed"}
			}
			td.varIndex = td.slotCount
		case FieldValue:
			td.slotCount++
		default:
			return nil, &LayoutError{Type: name, Reason: fmt.Sprintf("field %s has unknown kind", f.Name)}
		}
	}
	return td, nil
}
