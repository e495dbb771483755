package heap

// ---------------------------------------------------------------------------
// Boxing layer
// ---------------------------------------------------------------------------

// Box returns the boxed counterpart of td: a type whose instances begin
// with the ObjectLayout prefix followed by exactly td's fields, in order.
//
// Boxing is idempotent: if td is already boxed (either declared with a base
// field or itself a synthesized box), Box returns td unchanged. Results are
// memoized per type, so repeated requests resolve to the same descriptor.
func (r *Registry) Box(td *TypeDescriptor) (*TypeDescriptor, error) {
	if td == nil {
		return nil, &LayoutError{Type: "?", Reason: "cannot box nil type"}
	}
	if td.boxed {
		// Box[Box[T]] == Box[T]: identity, not a new wrapper.
		return td, nil
	}
	if td.refTo != nil {
		// A reference shape describes a handle, not storage. Wrapping one
		// in a box would produce a type that looks allocatable but isn't.
		return nil, &LayoutError{Type: td.name, Reason: "cannot box a reference shape"}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if boxed, ok := r.boxes[td]; ok {
		return boxed, nil
	}

	fields := make([]FieldSpec, 0, len(td.fields)+1)
	fields = append(fields, FieldSpec{Name: "base", Kind: FieldBase})
	fields = append(fields, td.fields...)

	boxed := &TypeDescriptor{
		name:      "Box[" + td.name + "]",
		fields:    fields,
		boxed:     true,
		boxOf:     td,
		visit:     td.visit,
		slotCount: td.slotCount,
		varIndex:  td.varIndex,
	}
	r.boxes[td] = boxed
	r.byName[boxed.name] = boxed
	return boxed, nil
}
