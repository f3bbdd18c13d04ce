package mxf

import "fmt"

// TypeRegistry is the fixed-size value type table of a DataModel. Ids below
// ExtensionTypeBoundary are reserved for built-ins; registering with id 0
// allocates one at or above the boundary.
type TypeRegistry struct {
	types         [MaxTypes]*Type
	byName        map[string]TypeID
	lastAllocated TypeID
}

// RegisterBasicType registers a fixed-size type of size bytes.
func (r *TypeRegistry) RegisterBasicType(name string, id TypeID, size uint32) (TypeID, error) {
	return r.register(Type{ID: id, Name: name, Category: CategoryBasic, Size: size})
}

// RegisterArrayType registers an array of elementType. fixedSize is the
// element count, or 0 for a variable length array.
func (r *TypeRegistry) RegisterArrayType(name string, id, elementType TypeID, fixedSize uint32) (TypeID, error) {
	return r.register(Type{ID: id, Name: name, Category: CategoryArray, ElementType: elementType, FixedSize: fixedSize})
}

// RegisterCompoundType registers a compound type. Member order is wire order.
func (r *TypeRegistry) RegisterCompoundType(name string, id TypeID, members []CompoundMember) (TypeID, error) {
	if len(members) > MaxCompoundMembers {
		return TypeUnknown, fmt.Errorf("%w: %w: %q has %d members, maximum is %d",
			ErrRegistration, ErrTooManyMembers, name, len(members), MaxCompoundMembers)
	}
	for i, m := range members {
		if m.TypeID == TypeUnknown {
			return TypeUnknown, fmt.Errorf("%w: %q member %d has no type", ErrRegistration, name, i)
		}
	}
	return r.register(Type{ID: id, Name: name, Category: CategoryCompound, Members: append([]CompoundMember(nil), members...)})
}

// RegisterInterpretedType registers an alias of underlying, optionally fixing
// its array size.
func (r *TypeRegistry) RegisterInterpretedType(name string, id, underlying TypeID, fixedArraySize uint32) (TypeID, error) {
	return r.register(Type{ID: id, Name: name, Category: CategoryInterpreted, Underlying: underlying, FixedSize: fixedArraySize})
}

func (r *TypeRegistry) register(t Type) (TypeID, error) {
	if t.ID == TypeUnknown {
		id, ok := r.allocate()
		if !ok {
			return TypeUnknown, fmt.Errorf("%w: %w: no free id for %q", ErrRegistration, ErrTypeTableFull, t.Name)
		}
		t.ID = id
	} else {
		if int(t.ID) >= MaxTypes {
			return TypeUnknown, fmt.Errorf("%w: type id %d out of range for %q", ErrRegistration, t.ID, t.Name)
		}
		if r.types[t.ID] != nil {
			return TypeUnknown, fmt.Errorf("%w: %w: %d (%q) wanted by %q",
				ErrRegistration, ErrTypeIDInUse, t.ID, r.types[t.ID].Name, t.Name)
		}
	}
	r.types[t.ID] = &t
	if t.Name != "" {
		if r.byName == nil {
			r.byName = make(map[string]TypeID)
		}
		if _, ok := r.byName[t.Name]; !ok {
			r.byName[t.Name] = t.ID
		}
	}
	return t.ID, nil
}

// allocate scans from the slot after the last allocation to the end of the
// table, then wraps to the extension boundary and scans up to the last
// allocation.
func (r *TypeRegistry) allocate() (TypeID, bool) {
	start := int(ExtensionTypeBoundary)
	if r.lastAllocated >= ExtensionTypeBoundary {
		start = int(r.lastAllocated) + 1
	}
	for i := start; i < MaxTypes; i++ {
		if r.types[i] == nil {
			r.lastAllocated = TypeID(i)
			return r.lastAllocated, true
		}
	}
	for i := int(ExtensionTypeBoundary); i < int(r.lastAllocated); i++ {
		if r.types[i] == nil {
			r.lastAllocated = TypeID(i)
			return r.lastAllocated, true
		}
	}
	return TypeUnknown, false
}

// Type returns the type registered under id.
func (r *TypeRegistry) Type(id TypeID) (*Type, bool) {
	if id == TypeUnknown || int(id) >= MaxTypes || r.types[id] == nil {
		return nil, false
	}
	return r.types[id], true
}

// TypeByName returns the first type registered under name.
func (r *TypeRegistry) TypeByName(name string) (*Type, bool) {
	id, ok := r.byName[name]
	if !ok {
		return nil, false
	}
	return r.Type(id)
}

// derivesFrom reports whether id is target or reaches target through
// interpreted types.
func (r *TypeRegistry) derivesFrom(id, target TypeID) bool {
	for hops := 0; hops < MaxTypes; hops++ {
		if id == target {
			return true
		}
		t, ok := r.Type(id)
		if !ok || t.Category != CategoryInterpreted {
			return false
		}
		id = t.Underlying
	}
	return false
}

// base follows interpreted types down to the first non-interpreted type.
func (r *TypeRegistry) base(id TypeID) (*Type, bool) {
	for hops := 0; hops < MaxTypes; hops++ {
		t, ok := r.Type(id)
		if !ok {
			return nil, false
		}
		if t.Category != CategoryInterpreted {
			return t, true
		}
		id = t.Underlying
	}
	return nil, false
}

// arrayElement returns the element type of id when id resolves to an array.
func (r *TypeRegistry) arrayElement(id TypeID) (TypeID, bool) {
	t, ok := r.base(id)
	if !ok || t.Category != CategoryArray {
		return TypeUnknown, false
	}
	return t.ElementType, true
}

// isString reports whether id is an array of characters, which is encoded
// without an array header.
func (r *TypeRegistry) isString(id TypeID) bool {
	elem, ok := r.arrayElement(id)
	if !ok {
		return false
	}
	return r.derivesFrom(elem, TypeUTF16) || r.derivesFrom(elem, TypeISO7)
}

// isOpaque reports whether id is an interpreted alias of a byte array, such
// as Identifier, UUID or DataValue. Those are stored as plain bytes.
func (r *TypeRegistry) isOpaque(id TypeID) bool {
	for hops := 0; hops < MaxTypes; hops++ {
		t, ok := r.Type(id)
		if !ok || t.Category != CategoryInterpreted {
			return false
		}
		if u, ok := r.Type(t.Underlying); ok && u.Category == CategoryArray && r.derivesFrom(u.ElementType, TypeUInt8) {
			return true
		}
		id = t.Underlying
	}
	return false
}

// isArray reports whether id is an array encoded with a count/stride header.
// Strings, opaque byte arrays and fixed-size arrays carry no header.
func (r *TypeRegistry) isArray(id TypeID) bool {
	t, ok := r.base(id)
	if !ok || t.Category != CategoryArray || t.FixedSize > 0 {
		return false
	}
	return !r.isString(id) && !r.isOpaque(id)
}

// FixedSize returns the encoded byte size of id when it does not vary.
func (r *TypeRegistry) FixedSize(id TypeID) (uint32, bool) {
	return r.fixedSize(id, 0)
}

func (r *TypeRegistry) fixedSize(id TypeID, depth int) (uint32, bool) {
	if depth > MaxTypes {
		return 0, false
	}
	t, ok := r.Type(id)
	if !ok {
		return 0, false
	}
	switch t.Category {
	case CategoryBasic:
		return t.Size, t.Size > 0
	case CategoryArray:
		if t.FixedSize == 0 {
			return 0, false
		}
		es, ok := r.fixedSize(t.ElementType, depth+1)
		return t.FixedSize * es, ok
	case CategoryCompound:
		var total uint32
		for _, m := range t.Members {
			ms, ok := r.fixedSize(m.TypeID, depth+1)
			if !ok {
				return 0, false
			}
			total += ms
		}
		return total, true
	case CategoryInterpreted:
		if t.FixedSize == 0 {
			return r.fixedSize(t.Underlying, depth+1)
		}
		elem, ok := r.arrayElement(t.Underlying)
		if !ok {
			return 0, false
		}
		es, ok := r.fixedSize(elem, depth+1)
		return t.FixedSize * es, ok
	}
	return 0, false
}

// refKind reports which reference kind, if any, values of id hold. Arrays of
// references report the element's kind.
func (r *TypeRegistry) refKind(id TypeID) RefKind {
	if r.isArray(id) {
		id, _ = r.arrayElement(id)
	}
	switch {
	case r.derivesFrom(id, TypeStrongRef):
		return RefStrong
	case r.derivesFrom(id, TypeWeakRef):
		return RefWeak
	}
	return RefNone
}

func (r *TypeRegistry) registerBuiltins() error {
	for _, t := range builtinTypes {
		var err error
		switch t.Category {
		case CategoryBasic:
			_, err = r.RegisterBasicType(t.Name, t.ID, t.Size)
		case CategoryArray:
			_, err = r.RegisterArrayType(t.Name, t.ID, t.ElementType, t.FixedSize)
		case CategoryCompound:
			_, err = r.RegisterCompoundType(t.Name, t.ID, t.Members)
		case CategoryInterpreted:
			_, err = r.RegisterInterpretedType(t.Name, t.ID, t.Underlying, t.FixedSize)
		default:
			err = fmt.Errorf("%w: unknown type category %d", ErrRegistration, t.Category)
		}
		if err != nil {
			return err
		}
	}
	return nil
}
