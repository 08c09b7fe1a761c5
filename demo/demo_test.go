package demo

import (
	"testing"

	"github.com/chazu/bootimage"
)

func TestMachineWalkNumbersEachObjectOnce(t *testing.T) {
	abi := bootimage.Host64
	m := NewMachine(abi.HostWordSize)

	leaf := m.DefineClass("Leaf", nil, false)
	node := m.DefineClass("Node", []bootimage.FieldDescriptor{
		{Name: "next", Code: bootimage.FieldCodeObject, Access: bootimage.FieldInstance, BuildOffset: abi.HostWordSize},
	}, false)

	leafInst := m.NewInstance(leaf, 0)
	// One word for the implicit class-pointer header, one for "next".
	nodeInst := m.NewInstance(node, 2*abi.HostWordSize)
	m.SetObjectField(nodeInst, leafInst, abi.HostWordSize)

	registry := bootimage.NewTypeMapRegistry()
	for _, cls := range m.BootClasses() {
		inst, _, err := bootimage.BuildInstanceTypeMaps(abi, m.FieldsOf(cls))
		if err != nil {
			t.Fatalf("BuildInstanceTypeMaps: %v", err)
		}
		registry.Bind(cls.Handle(), inst)
	}

	info := bootimage.RuntimeInfo{PointerMask: ^uint64(0), ClassStaticTableOffset: -1}
	walker := bootimage.NewWalker(abi, registry, m, info, 4096)

	visited := 0
	countingVisitor := &countingWrapper{Walker: walker, count: &visited}
	if err := m.Walk(nodeInst, countingVisitor); err != nil {
		t.Fatalf("Walk: %v", err)
	}
	if visited != 2 {
		t.Errorf("visited %d objects, want 2 (node and leaf)", visited)
	}
}

type countingWrapper struct {
	*bootimage.Walker
	count *int
}

func (c *countingWrapper) VisitNew(p bootimage.Object) (int, error) {
	*c.count++
	return c.Walker.VisitNew(p)
}

func TestMachineClassifiesClassLoaderInstances(t *testing.T) {
	m := NewMachine(8)
	if !m.IsClassLoader(m.BootClassLoader()) {
		t.Error("boot class loader should be classified as a class loader instance")
	}
	if m.IsClassLoader(m.TypeArray()) {
		t.Error("type array should not be classified as a class loader instance")
	}
}
