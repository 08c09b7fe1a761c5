package bootimage

import "testing"

func TestTypeMapOffsetLookupConsistency(t *testing.T) {
	abi := Host64
	m := NewTypeMap(KindNormal, 2, 2, abi.HostWordSize)
	m.AddField(TagObject, 0, 0)
	m.AddField(TagI32, 8, 8)

	for _, f := range m.Fields {
		if int(m.TargetFixedOffsets[f.BuildOffset]) != f.TargetOffset {
			t.Errorf("target_fixed_offsets[%d] = %d, want %d", f.BuildOffset, m.TargetFixedOffsets[f.BuildOffset], f.TargetOffset)
		}
	}
	if err := m.Validate(abi); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestTypeMapValidateRejectsOutOfRangeOffset(t *testing.T) {
	abi := Host64
	m := NewTypeMap(KindNormal, 1, 1, abi.HostWordSize)
	m.Fields = append(m.Fields, Field{Tag: TagI32, BuildOffset: 64, TargetOffset: 0})
	m.TargetFixedOffsets = append(m.TargetFixedOffsets, 0) // keep index math simple
	if err := m.Validate(abi); err == nil {
		t.Fatal("expected error for out-of-range build offset")
	}
}

func TestTypeMapValidatePoolMustOpenWithObjectIWord(t *testing.T) {
	abi := Host64
	m := NewTypeMap(KindPool, 2, 2, abi.HostWordSize)
	m.AddField(TagI32, 0, 0)
	if err := m.Validate(abi); err == nil {
		t.Fatal("expected error: pool TypeMap must open with (object, iword)")
	}
}

func TestTypeMapRegistryResolveByOwnHandleThenByClass(t *testing.T) {
	r := NewTypeMapRegistry()
	classHandle := Handle(1)
	poolMap := NewTypeMap(KindPool, 2, 2, 8)
	instMap := NewTypeMap(KindNormal, 1, 1, 8)
	r.Bind(classHandle, instMap)

	inst := &fakeObject{handle: 2, class: &fakeObject{handle: classHandle}}
	got, ok := r.Resolve(inst)
	if !ok || got != instMap {
		t.Fatalf("Resolve(instance) = (%v, %v), want (instMap, true)", got, ok)
	}

	pool := &fakeObject{handle: 3}
	r.Bind(pool.handle, poolMap)
	got, ok = r.Resolve(pool)
	if !ok || got != poolMap {
		t.Fatalf("Resolve(pool) = (%v, %v), want (poolMap, true)", got, ok)
	}
}

type fakeObject struct {
	handle Handle
	class  *fakeObject
	isCls  bool
	bytes  []byte
}

func (f *fakeObject) Handle() Handle { return f.handle }
func (f *fakeObject) Bytes() []byte  { return f.bytes }
func (f *fakeObject) ClassOf() Object {
	if f.class == nil {
		return nil
	}
	return f.class
}
func (f *fakeObject) IsClassObject() bool { return f.isCls }
