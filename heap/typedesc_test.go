package heap

import (
	"errors"
	"testing"
)

// ---------------------------------------------------------------------------
// Declaration tests
// ---------------------------------------------------------------------------

func TestDeclare(t *testing.T) {
	reg := NewRegistry()
	point, err := reg.Declare("Point", []FieldSpec{
		{Name: "x", Kind: FieldValue},
		{Name: "y", Kind: FieldValue},
	})
	if err != nil {
		t.Fatalf("Declare: %v", err)
	}
	if point.Name() != "Point" {
		t.Errorf("Name() = %s, want Point", point.Name())
	}
	if point.IsBoxed() {
		t.Error("Point should not be boxed")
	}
	if point.NumSlots() != 2 {
		t.Errorf("NumSlots() = %d, want 2", point.NumSlots())
	}
	if point.InstanceSize() != 2*wordBytes {
		t.Errorf("InstanceSize() = %d, want %d", point.InstanceSize(), 2*wordBytes)
	}
	if reg.Lookup("Point") != point {
		t.Error("Lookup should return the declared descriptor")
	}
}

func TestDeclareBoxedType(t *testing.T) {
	reg := NewRegistry()
	td, err := reg.Declare("Thing", []FieldSpec{
		{Name: "base", Kind: FieldBase},
		{Name: "n", Kind: FieldValue},
	})
	if err != nil {
		t.Fatalf("Declare: %v", err)
	}
	if !td.IsBoxed() {
		t.Error("Thing should be boxed")
	}
	if td.NumSlots() != 1 {
		t.Errorf("NumSlots() = %d, want 1 (base takes no slot)", td.NumSlots())
	}
	if td.InstanceSize() != prefixBytes+wordBytes {
		t.Errorf("InstanceSize() = %d, want %d", td.InstanceSize(), prefixBytes+wordBytes)
	}
}

func TestDeclareDuplicate(t *testing.T) {
	reg := NewRegistry()
	if _, err := reg.Declare("T", nil); err != nil {
		t.Fatalf("Declare: %v", err)
	}
	if _, err := reg.Declare("T", nil); err == nil {
		t.Error("duplicate declaration should fail")
	}
}

func TestDeclareLayoutErrors(t *testing.T) {
	reg := NewRegistry()
	cases := []struct {
		name   string
		fields []FieldSpec
	}{
		{"BaseNotFirst", []FieldSpec{
			{Name: "n", Kind: FieldValue},
			{Name: "base", Kind: FieldBase},
		}},
		{"DuplicateField", []FieldSpec{
			{Name: "n", Kind: FieldValue},
			{Name: "n", Kind: FieldValue},
		}},
		{"RefWithoutElem", []FieldSpec{
			{Name: "next", Kind: FieldRef},
		}},
		{"WeakWithoutElem", []FieldSpec{
			{Name: "parent", Kind: FieldWeak},
		}},
		{"VarArrayNotLast", []FieldSpec{
			{Name: "data", Kind: FieldVarArray},
			{Name: "n", Kind: FieldValue},
		}},
		{"UnnamedField", []FieldSpec{
			{Kind: FieldValue},
		}},
	}
	for _, c := range cases {
		_, err := reg.Declare(c.name, c.fields)
		var le *LayoutError
		if !errors.As(err, &le) {
			t.Errorf("%s: want LayoutError, got %v", c.name, err)
		}
	}
}

func TestDeclareReservedBoxName(t *testing.T) {
	reg := NewRegistry()
	_, err := reg.Declare("Box[Point]", nil)
	var le *LayoutError
	if !errors.As(err, &le) {
		t.Errorf("want LayoutError for reserved name, got %v", err)
	}
}

func TestDeclareVarArray(t *testing.T) {
	reg := NewRegistry()
	str, err := reg.Declare("StringData", []FieldSpec{
		{Name: "length", Kind: FieldValue},
		{Name: "data", Kind: FieldVarArray},
	})
	if err != nil {
		t.Fatalf("Declare: %v", err)
	}
	if !str.HasVarArray() {
		t.Error("StringData should have a flexible array member")
	}
	if str.NumSlots() != 1 {
		t.Errorf("NumSlots() = %d, want 1 (vararray takes no fixed slot)", str.NumSlots())
	}
}

func TestDeclareRef(t *testing.T) {
	reg := NewRegistry()
	str, err := reg.DeclareRef("spy_str", reg.ObjectShape())
	if err != nil {
		t.Fatalf("DeclareRef: %v", err)
	}
	if !str.IsRefShape() {
		t.Error("spy_str should be a reference shape")
	}
	if str.RefTo() != reg.ObjectShape() {
		t.Error("RefTo() should be the storage type")
	}
}

func TestObjectShapeBuiltin(t *testing.T) {
	reg := NewRegistry()
	obj := reg.ObjectShape()
	if obj == nil {
		t.Fatal("ObjectShape() returned nil")
	}
	if !obj.IsBoxed() {
		t.Error("the bare object shape is boxed by definition")
	}
	if obj.NumSlots() != 0 {
		t.Errorf("bare object shape has %d slots, want 0", obj.NumSlots())
	}
	if obj.InstanceSize() != prefixBytes {
		t.Errorf("InstanceSize() = %d, want %d", obj.InstanceSize(), prefixBytes)
	}
	if reg.Lookup(ObjectTypeName) != obj {
		t.Error("builtin shape should be registered under its name")
	}
}
