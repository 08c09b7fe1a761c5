package bootimage

// CompilerRoots is the subset of a compiled processor's own state that
// the writer must keep reachable in the image: its method table, native
// thunk table, and anything else the compiler pins for its own use.
type CompilerRoots interface {
	// Roots returns every object the compiler itself keeps alive.
	Roots() []Object
}

// CompilerConstant is one entry the compiler recorded while emitting
// code: the heap object a constant load ultimately refers to, alongside
// whatever else the compiler bundled with it. Only the referenced object
// is a walk root; the rest travels with the code-constant resolver.
type CompilerConstant struct {
	Object Object
}

// RootSet is the fixed, ordered enumeration of every entry point into
// the live object graph the image must preserve.
type RootSet struct {
	BootClasses       []Object // each (name -> class) pair's class, in dictionary order
	AppClasses        []Object // the app class loader's own dictionary, walked the same way
	BootClassLoader   Object
	AppClassLoader    Object
	TypeArray         Object
	CompilerRoots     []Object
	CompilerConstants []Object // each constant triple's referenced object
	InternedStrings   []Object
}

// EnumerateRoots collects every root in the fixed order the image format
// requires: boot classes, then app classes, then the two class loaders, then the type
// array, then the compiler's own roots, then the referenced object of
// each compiler constant, then the interned string table.
func EnumerateRoots(classes ClassSource, compiler CompilerRoots, constants []CompilerConstant) RootSet {
	rs := RootSet{
		BootClasses:     classes.BootClasses(),
		AppClasses:      classes.AppClasses(),
		BootClassLoader: classes.BootClassLoader(),
		AppClassLoader:  classes.AppClassLoader(),
		TypeArray:       classes.TypeArray(),
		InternedStrings: classes.InternedStrings(),
	}
	if compiler != nil {
		rs.CompilerRoots = compiler.Roots()
	}
	for _, c := range constants {
		if c.Object != nil {
			rs.CompilerConstants = append(rs.CompilerConstants, c.Object)
		}
	}
	return rs
}

// Walk drives visitor over every root in rs, in enumeration order, using
// walker to perform the actual per-root subgraph traversal. Each root
// visit is preceded by a call to visitor.Root so its incoming edge is
// never treated as a back-patchable field.
func (rs RootSet) Walk(walker HeapWalker, visitor HeapVisitor) error {
	visitEach := func(objs []Object) error {
		for _, o := range objs {
			if o == nil {
				continue
			}
			visitor.Root()
			if err := walker.Walk(o, visitor); err != nil {
				return err
			}
		}
		return nil
	}

	if err := visitEach(rs.BootClasses); err != nil {
		return err
	}
	if err := visitEach(rs.AppClasses); err != nil {
		return err
	}
	if err := visitEach([]Object{rs.BootClassLoader, rs.AppClassLoader, rs.TypeArray}); err != nil {
		return err
	}
	if err := visitEach(rs.CompilerRoots); err != nil {
		return err
	}
	if err := visitEach(rs.CompilerConstants); err != nil {
		return err
	}
	return visitEach(rs.InternedStrings)
}
