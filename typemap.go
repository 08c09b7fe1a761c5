package bootimage

// TypeMapKind distinguishes the trailing-mask layout a TypeMap's object carries
// once emitted.
type TypeMapKind uint8

const (
	// KindNormal objects have no trailing mask; TargetSize is just the
	// fixed prefix (plus any array tail).
	KindNormal TypeMapKind = iota
	// KindSingleton objects are opaque fixed-size records — static-field
	// tables, compiled code — that carry a trailing object/primitive mask.
	KindSingleton
	// KindPool objects are constant pools: a singleton with an additional
	// floating-point mask.
	KindPool
)

func (k TypeMapKind) String() string {
	switch k {
	case KindNormal:
		return "normal"
	case KindSingleton:
		return "singleton"
	case KindPool:
		return "pool"
	default:
		return "kind(?)"
	}
}

// Field is one explicitly mapped field within a TypeMap's fixed prefix.
type Field struct {
	Tag          Tag
	BuildOffset  int
	TargetOffset int
}

// TypeMap fully specifies the build→target layout of one entity: a class
// instance, a static-field table, a constant pool, or one of the VM's own
// internal object types.
type TypeMap struct {
	BuildFixedWords  int
	TargetFixedWords int
	FieldCount       int
	Fields           []Field

	// TargetFixedOffsets is a direct lookup from build-byte-offset to
	// target-byte-offset, sized BuildFixedWords*hostWordSize. Non-field
	// bytes are unused and read 0 (the zero value of int32).
	TargetFixedOffsets []int32

	BuildArrayElemBytes  int
	TargetArrayElemBytes int
	ArrayElemType        Tag

	Kind TypeMapKind
}

// NewTypeMap allocates a TypeMap with its TargetFixedOffsets table sized
// for buildFixedWords under the given host word size.
func NewTypeMap(kind TypeMapKind, buildFixedWords, targetFixedWords, hostWordSize int) *TypeMap {
	return &TypeMap{
		BuildFixedWords:    buildFixedWords,
		TargetFixedWords:   targetFixedWords,
		Kind:               kind,
		ArrayElemType:      TagNone,
		TargetFixedOffsets: make([]int32, buildFixedWords*hostWordSize),
	}
}

// AddField appends a field to the map's fixed prefix and records its
// build-offset -> target-offset lookup entry, keeping the two views of
// the layout consistent by construction.
func (m *TypeMap) AddField(tag Tag, buildOffset, targetOffset int) {
	m.Fields = append(m.Fields, Field{Tag: tag, BuildOffset: buildOffset, TargetOffset: targetOffset})
	m.FieldCount = len(m.Fields)
	if buildOffset >= 0 && buildOffset < len(m.TargetFixedOffsets) {
		m.TargetFixedOffsets[buildOffset] = int32(targetOffset)
	}
}

// SetArrayTail records the trailing array element type and per-element
// sizes on both sides of the copy.
func (m *TypeMap) SetArrayTail(elemType Tag, buildElemBytes, targetElemBytes int) {
	m.ArrayElemType = elemType
	m.BuildArrayElemBytes = buildElemBytes
	m.TargetArrayElemBytes = targetElemBytes
}

// HasArrayTail reports whether the map declares a trailing array.
func (m *TypeMap) HasArrayTail() bool { return m.ArrayElemType != TagNone }

// Validate checks the invariants a TypeMap must hold: every field's build
// offset falls inside the declared fixed prefix, every field's target
// offset is aligned to its own natural target size, and a Pool-kind map
// opens with (object, iword).
func (m *TypeMap) Validate(abi ABI) error {
	limit := m.BuildFixedWords * abi.HostWordSize
	for _, f := range m.Fields {
		if f.BuildOffset < 0 || f.BuildOffset >= limit {
			return newErr(InvariantViolation, "field build offset %d outside fixed prefix (limit %d)", f.BuildOffset, limit)
		}
		size := f.Tag.TargetSize(abi)
		if size > 0 && f.TargetOffset%size != 0 {
			return newErr(InvariantViolation, "field target offset %d not aligned to %s size %d", f.TargetOffset, f.Tag, size)
		}
		if int(m.TargetFixedOffsets[f.BuildOffset]) != f.TargetOffset {
			return newErr(InvariantViolation, "target_fixed_offsets[%d] = %d, want %d", f.BuildOffset, m.TargetFixedOffsets[f.BuildOffset], f.TargetOffset)
		}
	}
	if m.Kind == KindPool {
		if len(m.Fields) < 2 || m.Fields[0].Tag != TagObject || m.Fields[1].Tag != TagIWord {
			return newErr(InvariantViolation, "pool TypeMap must open with (object, iword), got %v", m.Fields)
		}
	}
	return nil
}

// TypeMapRegistry binds handles to TypeMaps as built by the three
// construction paths (constant pool, field table, hard-coded descriptor).
// A single flat map suffices: a Pool or Singleton object is looked up by
// its own handle (it is registered directly against the object that
// carries the layout), while a Normal instance is looked up indirectly
// through the handle of the class it belongs to (registered once per
// class, not once per instance).
type TypeMapRegistry struct {
	byHandle map[Handle]*TypeMap
}

// NewTypeMapRegistry creates an empty registry.
func NewTypeMapRegistry() *TypeMapRegistry {
	return &TypeMapRegistry{byHandle: make(map[Handle]*TypeMap)}
}

// Bind installs m under h, replacing any pre-existing entry — this is how
// builder path (c) (hard-coded VM descriptors) is specified to behave
// when it re-emits a TypeMap for a key already bound by an earlier pass.
func (r *TypeMapRegistry) Bind(h Handle, m *TypeMap) {
	r.byHandle[h] = m
}

// Lookup returns the TypeMap bound directly to h, if any.
func (r *TypeMapRegistry) Lookup(h Handle) (*TypeMap, bool) {
	m, ok := r.byHandle[h]
	return m, ok
}

// Resolve finds the TypeMap that applies to obj: first by obj's own
// handle (covers Pool and Singleton objects, and hard-coded VM objects
// registered directly), falling back to the handle of obj's class (covers
// ordinary instances, whose layout is keyed by their class object).
func (r *TypeMapRegistry) Resolve(obj Object) (*TypeMap, bool) {
	if obj == nil {
		return nil, false
	}
	if m, ok := r.byHandle[obj.Handle()]; ok {
		return m, true
	}
	if cls := obj.ClassOf(); cls != nil {
		if m, ok := r.byHandle[cls.Handle()]; ok {
			return m, true
		}
	}
	return nil, false
}
