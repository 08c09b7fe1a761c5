package bootimage

import "testing"

func TestBuildInstanceTypeMapsSingleIntField(t *testing.T) {
	abi := Host64
	fields := simpleFieldTable{{Name: "x", Code: FieldCodeInt, Access: FieldInstance}}
	inst, static, err := BuildInstanceTypeMaps(abi, fields)
	if err != nil {
		t.Fatalf("BuildInstanceTypeMaps: %v", err)
	}
	if static != nil {
		t.Fatalf("static = %v, want nil (no static fields)", static)
	}
	// Every instance layout opens with the implicit class-pointer header
	// field, so a class with one declared int field has two Fields: the
	// header, then the field itself at one word in.
	if len(inst.Fields) != 2 || inst.Fields[0].Tag != TagObject || inst.Fields[1].Tag != TagI32 {
		t.Fatalf("inst.Fields = %+v", inst.Fields)
	}
	if inst.Fields[0].TargetOffset != 0 {
		t.Errorf("header field target offset = %d, want 0", inst.Fields[0].TargetOffset)
	}
	if inst.Fields[1].TargetOffset != abi.TargetWordSize {
		t.Errorf("first declared field target offset = %d, want %d (one target word in)", inst.Fields[1].TargetOffset, abi.TargetWordSize)
	}
}

func TestBuildInstanceTypeMapsLongFieldPadding(t *testing.T) {
	abi32to64 := ABI{HostWordSize: 4, TargetWordSize: 8, TargetBitsPerWord: 64}
	fields := simpleFieldTable{
		{Name: "a", Code: FieldCodeInt, Access: FieldInstance},
		{Name: "b", Code: FieldCodeLong, Access: FieldInstance},
	}
	inst, _, err := BuildInstanceTypeMaps(abi32to64, fields)
	if err != nil {
		t.Fatalf("BuildInstanceTypeMaps: %v", err)
	}
	if inst.Fields[0].TargetOffset != 0 {
		t.Errorf("header field target offset = %d, want 0", inst.Fields[0].TargetOffset)
	}
	if inst.Fields[1].TargetOffset != 8 {
		t.Errorf("a target offset = %d, want 8 (right after the one-target-word header)", inst.Fields[1].TargetOffset)
	}
	if inst.Fields[2].TargetOffset != 16 {
		t.Errorf("b target offset = %d, want 16 (aligned to its own size)", inst.Fields[2].TargetOffset)
	}
	if inst.TargetFixedWords != 3 {
		t.Errorf("TargetFixedWords = %d, want 3 (header + a + b)", inst.TargetFixedWords)
	}
}

func TestBuildInstanceTypeMapsProducesSingletonForStatics(t *testing.T) {
	abi := Host64
	fields := simpleFieldTable{
		{Name: "x", Code: FieldCodeInt, Access: FieldInstance},
		{Name: "s", Code: FieldCodeObject, Access: FieldStatic},
	}
	inst, static, err := BuildInstanceTypeMaps(abi, fields)
	if err != nil {
		t.Fatalf("BuildInstanceTypeMaps: %v", err)
	}
	if len(inst.Fields) != 2 {
		t.Fatalf("instance fields = %+v, want the header plus the one instance field", inst.Fields)
	}
	if static == nil || static.Kind != KindSingleton {
		t.Fatalf("static = %+v, want a Singleton-kind TypeMap", static)
	}
	// A static table opens with (object, iword) before any declared static
	// field, mirroring BuildPoolTypeMap's own two-field header.
	if len(static.Fields) != 3 || static.Fields[0].Tag != TagObject || static.Fields[1].Tag != TagIWord {
		t.Fatalf("static.Fields = %+v, want (object, iword, ...declared fields)", static.Fields)
	}
	if static.Fields[2].TargetOffset != 2*abi.TargetWordSize {
		t.Errorf("declared static field target offset = %d, want %d (two target words in)", static.Fields[2].TargetOffset, 2*abi.TargetWordSize)
	}
}

func TestBuildDescriptorTypeMapWithArrayTail(t *testing.T) {
	abi := Host64
	descs := []TypeDescriptor{
		{Tag: TagI32},
		{Tag: TagArrayMarker},
		{Tag: TagI8},
	}
	m, err := BuildDescriptorTypeMap(abi, descs)
	if err != nil {
		t.Fatalf("BuildDescriptorTypeMap: %v", err)
	}
	if !m.HasArrayTail() || m.ArrayElemType != TagI8 {
		t.Fatalf("array tail = %v/%v, want present/i8", m.HasArrayTail(), m.ArrayElemType)
	}
	if len(m.Fields) != 1 {
		t.Fatalf("fixed fields = %+v, want exactly the one before the marker", m.Fields)
	}
}

func TestBuildPoolTypeMapEmptyPoolHasHeaderOnly(t *testing.T) {
	abi := Host64
	data := minimalClassFile(1) // pool_count=1 means no entries beyond the unused slot 0
	m, err := BuildPoolTypeMap(abi, data)
	if err != nil {
		t.Fatalf("BuildPoolTypeMap: %v", err)
	}
	if len(m.Fields) != 2 {
		t.Fatalf("Fields = %+v, want exactly the (object, iword) header", m.Fields)
	}
	if m.Kind != KindPool {
		t.Errorf("Kind = %v, want Pool", m.Kind)
	}
}

func TestBuildPoolTypeMapRejectsBadMagic(t *testing.T) {
	_, err := BuildPoolTypeMap(Host64, []byte{0, 0, 0, 0})
	be, ok := err.(*Error)
	if !ok || be.Kind != MalformedClass {
		t.Fatalf("BuildPoolTypeMap error = %v, want *Error{Kind: MalformedClass}", err)
	}
}

// --- helpers ---

type simpleFieldTable []FieldDescriptor

func (s simpleFieldTable) Fields() []FieldDescriptor { return s }

func minimalClassFile(poolCount uint16) []byte {
	buf := make([]byte, 10)
	buf[0], buf[1], buf[2], buf[3] = 0xCA, 0xFE, 0xBA, 0xBE
	buf[8] = byte(poolCount >> 8)
	buf[9] = byte(poolCount)
	return buf
}
