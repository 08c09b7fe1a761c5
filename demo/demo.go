// Package demo is a toy stand-in for a real managed-language runtime: a
// handful of hand-built classes and instances wired together as an
// object graph, used to exercise the writer end to end without a real
// VM attached. It implements every collaborator interface the writer
// consumes.
package demo

import (
	"fmt"
	"sort"

	"github.com/chazu/bootimage"
)

// object is the demo's concrete heap object: raw host bytes plus enough
// bookkeeping for the demo's own walker to find pointer fields without
// needing a real field-table interpreter.
type object struct {
	handle      bootimage.Handle
	class       *object
	isClass     bool
	name        string
	bytes       []byte
	ptrOffsets  []int // byte offsets, within bytes, of host-word slots holding a *object
	pointsTo    map[int]*object
	fields      []bootimage.FieldDescriptor
	methods     []bootimage.MethodDescriptor
	staticTable *object
}

func (o *object) Handle() bootimage.Handle { return o.handle }
func (o *object) Bytes() []byte            { return o.bytes }
func (o *object) IsClassObject() bool      { return o.isClass }
func (o *object) ClassOf() bootimage.Object {
	if o.class == nil {
		return nil
	}
	return o.class
}

func (o *object) Fields() []bootimage.FieldDescriptor   { return o.fields }
func (o *object) Methods() []bootimage.MethodDescriptor { return o.methods }

// Machine is a small, self-contained object graph plus the class,
// loader, and string-pool bookkeeping ClassSource exposes.
type Machine struct {
	hostWordSize int
	nextHandle   bootimage.Handle
	classes      map[string]*object
	bootOrder    []string
	appOrder     []string
	strings      []*object
	bootLoader   *object
	appLoader    *object
	typeArray    *object
	classLoaderType *object
	walked          map[bootimage.Handle]int // numbers from every Walk so far
}

// NewMachine builds an empty machine for the given host pointer width.
func NewMachine(hostWordSize int) *Machine {
	m := &Machine{
		hostWordSize: hostWordSize,
		classes:      make(map[string]*object),
		walked:       make(map[bootimage.Handle]int),
	}
	m.classLoaderType = m.newObject(nil, true, "ClassLoader", make([]byte, hostWordSize), nil)
	m.bootLoader = m.newObject(m.classLoaderType, false, "", make([]byte, hostWordSize), nil)
	m.appLoader = m.newObject(m.classLoaderType, false, "", make([]byte, hostWordSize), nil)
	m.typeArray = m.newObject(nil, false, "", make([]byte, hostWordSize*8), nil)
	return m
}

func (m *Machine) newObject(class *object, isClass bool, name string, raw []byte, ptrOffsets []int) *object {
	m.nextHandle++
	return &object{
		handle:     m.nextHandle,
		class:      class,
		isClass:    isClass,
		name:       name,
		bytes:      raw,
		ptrOffsets: ptrOffsets,
		pointsTo:   make(map[int]*object),
	}
}

// DefineClass registers a class with the given instance fields, marking
// it a boot class unless app is true. It returns the class object, ready
// to have instances created against it.
func (m *Machine) DefineClass(name string, fields []bootimage.FieldDescriptor, app bool) bootimage.Object {
	cls := m.newObject(nil, true, name, make([]byte, m.hostWordSize*2), nil)
	m.classes[name] = cls
	if app {
		m.appOrder = append(m.appOrder, name)
	} else {
		m.bootOrder = append(m.bootOrder, name)
	}
	cls.fields = fields
	return cls
}

// AddStaticField gives class a static table containing a single object
// field, wired via the ClassStaticTable edge classify() looks for.
// staticTableOffset is a byte offset within the class object; the caller
// is responsible for passing the same position, counted in host words, to
// bootimage.RuntimeInfo.ClassStaticTableOffset.
func (m *Machine) AddStaticField(class bootimage.Object, staticTableOffset int) bootimage.Object {
	c := class.(*object)
	st := m.newObject(c, false, "", make([]byte, m.hostWordSize), []int{0})
	c.staticTable = st
	// The class object's own bytes carry a pointer to its static table at
	// staticTableOffset, exactly like an instance field would.
	needed := staticTableOffset + m.hostWordSize
	if len(c.bytes) < needed {
		grown := make([]byte, needed)
		copy(grown, c.bytes)
		c.bytes = grown
	}
	c.ptrOffsets = append(c.ptrOffsets, staticTableOffset)
	c.pointsTo[staticTableOffset] = st
	return st
}

// NewInstance allocates an instance of class with hostSize bytes of
// storage (the class's fixed instance layout, pre-sized by the caller to
// match its FieldTable).
func (m *Machine) NewInstance(class bootimage.Object, hostSize int) bootimage.Object {
	c := class.(*object)
	return m.newObject(c, false, "", make([]byte, hostSize), nil)
}

// SetObjectField records that inst's object-typed field at hostOffset
// points at target, and writes a non-zero placeholder into its raw bytes
// so a real transcoder pass would see a live (non-null) reference there.
func (m *Machine) SetObjectField(inst, target bootimage.Object, hostOffset int) {
	o := inst.(*object)
	t := target.(*object)
	o.ptrOffsets = append(o.ptrOffsets, hostOffset)
	o.pointsTo[hostOffset] = t
	if hostOffset+m.hostWordSize <= len(o.bytes) {
		o.bytes[hostOffset] = 1
	}
}

// Intern adds a string to the machine's intern pool and returns its
// object.
func (m *Machine) Intern(s string) bootimage.Object {
	raw := []byte(s)
	obj := m.newObject(nil, false, s, raw, nil)
	m.strings = append(m.strings, obj)
	return obj
}

// --- bootimage.ClassSource ---

func (m *Machine) ClasspathEntries() ([]bootimage.ClasspathEntry, error) { return nil, nil }

func (m *Machine) ResolveClass(name string) (bootimage.Object, error) {
	c, ok := m.classes[name]
	if !ok {
		return nil, fmt.Errorf("demo: no such class %q", name)
	}
	return c, nil
}

func (m *Machine) FieldsOf(class bootimage.Object) bootimage.FieldTable {
	return class.(*object)
}

func (m *Machine) MethodsOf(class bootimage.Object) bootimage.MethodTable {
	return class.(*object)
}

func (m *Machine) StaticTableOf(class bootimage.Object) (bootimage.Object, bool) {
	c := class.(*object)
	if c.staticTable == nil {
		return nil, false
	}
	return c.staticTable, true
}

func (m *Machine) IsClassLoader(obj bootimage.Object) bool {
	o, ok := obj.(*object)
	return ok && o.class == m.classLoaderType
}

func (m *Machine) BootClassLoader() bootimage.Object { return m.bootLoader }
func (m *Machine) AppClassLoader() bootimage.Object  { return m.appLoader }
func (m *Machine) TypeArray() bootimage.Object       { return m.typeArray }

func (m *Machine) InternedStrings() []bootimage.Object {
	out := make([]bootimage.Object, len(m.strings))
	for i, s := range m.strings {
		out[i] = s
	}
	return out
}

func (m *Machine) classesInOrder(order []string) []bootimage.Object {
	sorted := append([]string(nil), order...)
	sort.Strings(sorted)
	out := make([]bootimage.Object, len(sorted))
	for i, name := range sorted {
		out[i] = m.classes[name]
	}
	return out
}

func (m *Machine) BootClasses() []bootimage.Object { return m.classesInOrder(m.bootOrder) }
func (m *Machine) AppClasses() []bootimage.Object  { return m.classesInOrder(m.appOrder) }

// --- bootimage.HeapWalker ---

// Walk performs a depth-first traversal of root's pointer fields,
// calling back into visitor exactly as a real VM's heap scanner would:
// pre-assigning numbers before recursing so cycles resolve to VisitOld.
func (m *Machine) Walk(root bootimage.Object, visitor bootimage.HeapVisitor) error {
	seen := m.walked
	var walk func(o *object) error
	walk = func(o *object) error {
		if n, ok := seen[o.handle]; ok {
			return visitor.VisitOld(o, n)
		}
		n, err := visitor.VisitNew(o)
		if err != nil {
			return err
		}
		seen[o.handle] = n

		offsets := append([]int(nil), o.ptrOffsets...)
		sort.Ints(offsets)
		for _, off := range offsets {
			child, ok := o.pointsTo[off]
			if !ok || child == nil {
				continue
			}
			if err := visitor.Push(o, n, off/m.hostWordSize); err != nil {
				return err
			}
			if err := walk(child); err != nil {
				visitor.Pop()
				return err
			}
			visitor.Pop()
		}
		return nil
	}
	return walk(root.(*object))
}
