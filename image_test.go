package bootimage_test

import (
	"bytes"
	"testing"

	"github.com/chazu/bootimage"
	"github.com/chazu/bootimage/code"
	"github.com/chazu/bootimage/demo"
)

func TestEndToEndSerializeSmallGraph(t *testing.T) {
	abi := bootimage.Host64
	m := demo.NewMachine(abi.HostWordSize)

	leaf := m.DefineClass("Leaf", nil, false)
	node := m.DefineClass("Node", []bootimage.FieldDescriptor{
		{Name: "next", Code: bootimage.FieldCodeObject, Access: bootimage.FieldInstance, BuildOffset: abi.HostWordSize},
	}, false)

	registry := bootimage.NewTypeMapRegistry()
	for _, cls := range m.BootClasses() {
		inst, _, err := bootimage.BuildInstanceTypeMaps(abi, m.FieldsOf(cls))
		if err != nil {
			t.Fatalf("BuildInstanceTypeMaps: %v", err)
		}
		registry.Bind(cls.Handle(), inst)
	}
	// The two class loaders and the type array are walked as roots too, so
	// each needs a layout bound before the walk starts.
	for _, o := range []bootimage.Object{m.BootClassLoader(), m.AppClassLoader(), m.TypeArray()} {
		words := len(o.Bytes()) / abi.HostWordSize
		registry.Bind(o.Handle(), bootimage.NewTypeMap(bootimage.KindNormal, words, words, abi.HostWordSize))
	}

	leafInst := m.NewInstance(leaf, 0)
	// One word for the implicit class-pointer header, one for "next".
	nodeInst := m.NewInstance(node, 2*abi.HostWordSize)
	m.SetObjectField(nodeInst, leafInst, abi.HostWordSize)

	info := bootimage.RuntimeInfo{PointerMask: ^uint64(0), ClassStaticTableOffset: -1}
	walker := bootimage.NewWalker(abi, registry, m, info, 4096)

	roots := bootimage.EnumerateRoots(m, nil, []bootimage.CompilerConstant{{Object: nodeInst}})
	if err := roots.Walk(m, walker); err != nil {
		t.Fatalf("Walk: %v", err)
	}
	if _, ok := walker.NumberOf(leafInst.Handle()); !ok {
		t.Error("leaf instance should have been numbered by the walk")
	}

	codeBits := bootimage.NewBitmap(0)
	writer := &bootimage.Writer{ABI: abi, Walker: walker, CodeBase: 0, Code: nil, CodeBits: codeBits}
	resolver := writer.NewResolver(code.TagBits{})
	if err := resolver.ResolveAll(nil, nil, nil); err != nil {
		t.Fatalf("ResolveAll: %v", err)
	}

	var out bytes.Buffer
	n, err := writer.Serialize(&out, roots, nil, m.InternedStrings(), 0)
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	if n == 0 || out.Len() != int(n) {
		t.Fatalf("Serialize wrote %d bytes, buffer has %d", n, out.Len())
	}

	// The header opens with the magic word, in target endianness.
	got := abi.Word(out.Bytes()[:abi.TargetWordSize])
	if got != bootimage.Magic {
		t.Errorf("header magic = %#x, want %#x", got, bootimage.Magic)
	}
}
