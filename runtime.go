package bootimage

import "github.com/chazu/bootimage/code"

// Handle is an opaque, stable identity for one live heap object, stable
// only for the duration of a single writer run. The runtime is free to
// implement it as a host pointer cast to an integer, an arena index, or
// anything else with pointer-equality semantics.
type Handle uint64

// Object is a live heap object as the writer sees it: enough to find its
// class, read its raw bytes for transcoding, and tell whether it is
// itself a class.
type Object interface {
	Handle() Handle
	// Bytes returns the object's raw host-layout bytes, fixed prefix
	// first, trailing array (if any) after.
	Bytes() []byte
	// ClassOf returns the class this object is an instance of, or nil for
	// objects with no associated class (such as the type array).
	ClassOf() Object
	// IsClassObject reports whether this object is itself a class,
	// rather than an instance of one.
	IsClassObject() bool
}

// FieldAccess distinguishes an instance field from a static one.
type FieldAccess uint8

const (
	FieldInstance FieldAccess = iota
	FieldStatic
)

// FieldDescriptor is one entry in a class's field table.
type FieldDescriptor struct {
	Name        string
	Code        FieldCode
	Access      FieldAccess
	BuildOffset int
}

// FieldTable enumerates the ordered fields of one class.
type FieldTable interface {
	Fields() []FieldDescriptor
}

// MethodDescriptor is one entry in a class's method table.
type MethodDescriptor struct {
	Name    string
	Native  bool
	HasCode bool
}

// MethodTable enumerates the ordered methods of one class.
type MethodTable interface {
	Methods() []MethodDescriptor
}

// ClasspathEntry is one .class resource discovered on the classpath: its
// name and the mapped bytes of the file itself.
type ClasspathEntry struct {
	Name string
	Data []byte
}

// ClassSource is the subset of the running VM the writer consumes to
// discover classes, their layouts, and their static tables. Everything
// about class loading, verification, and linking happens on the other
// side of this interface. The VM is expected to have already named its
// primitive classes and force-resolved the primitive array classes
// ("[B", "[Z", "[S", "[C", "[I", "[J", "[F", "[D") before handing a
// ClassSource to the writer, so that no immutable class-name or
// class-table reference needs patching partway through a walk.
type ClassSource interface {
	ClasspathEntries() ([]ClasspathEntry, error)
	ResolveClass(name string) (Object, error)
	FieldsOf(class Object) FieldTable
	MethodsOf(class Object) MethodTable
	// StaticTableOf returns the object holding a class's static fields,
	// if the class has any statics at all.
	StaticTableOf(class Object) (Object, bool)
	// IsClassLoader reports whether obj is an instance of the system
	// class-loader type, one of the two fixed-object triggers.
	IsClassLoader(obj Object) bool
	// BootClassLoader and AppClassLoader return the two well-known
	// class-loader root objects.
	BootClassLoader() Object
	AppClassLoader() Object
	// TypeArray returns the VM's own array of internal type descriptors.
	TypeArray() Object
	// InternedStrings returns every string currently in the intern pool.
	InternedStrings() []Object
	// BootClasses and AppClasses return, in enumeration order, the
	// classes loaded by each loader.
	BootClasses() []Object
	AppClasses() []Object
}

// HeapVisitor is what the writer hands to the VM's own heap-walking
// driver. The VM calls back into it as it discovers each object; the
// visitor is responsible for numbering, emission, and back-patching.
type HeapVisitor interface {
	// Root begins a walk from a root slot: it clears the current-object
	// context so that the edge into the root object is never patched.
	Root()
	// VisitNew emits a not-yet-seen object into the heap and returns its
	// assigned number.
	VisitNew(p Object) (int, error)
	// VisitOld patches a back-edge into an already-numbered object.
	VisitOld(p Object, number int) error
	// Push records that subsequent VisitNew/VisitOld calls are reached by
	// following the field at edgeWordOffset (in host words) of parent,
	// itself numbered parentNumber.
	Push(parent Object, parentNumber int, edgeWordOffset int) error
	// Pop undoes the effect of the matching Push.
	Pop()
}

// HeapWalker is the VM-side driver the writer invokes once per root: it
// performs the actual depth-first traversal of one root object's
// reachable subgraph, calling back into a HeapVisitor as it goes.
type HeapWalker interface {
	Walk(root Object, visitor HeapVisitor) error
}

// Runtime bundles the collaborator interfaces the writer needs from one
// live VM instance.
type Runtime struct {
	Classes ClassSource
	Walker  HeapWalker
}

// CompiledMethod is the result of compiling one method: an opaque code
// blob plus every deferred fixup the code resolver still has to apply
// once the heap has been walked and every object numbered.
type CompiledMethod struct {
	Code          []byte
	Calls         []code.DeferredCall
	Addresses     []code.DeferredAddress
	HeapConstants []code.DeferredHeapConstant
}

// Compiler produces one method's compiled code and its deferred fixups.
// The writer never inspects the bytes it gets back beyond patching them
// through a Resolver; how a method gets compiled is entirely the VM's
// business. Resolving symbolic entries in a method's exception table
// (each caught type is looked up and replaced with the resolved class,
// the same way any other constant a compiled method references gets
// resolved) is also the VM's responsibility inside Compile, not
// something the writer does afterward.
type Compiler interface {
	Compile(method MethodDescriptor) (CompiledMethod, error)
}
