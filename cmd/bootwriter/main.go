// Command bootwriter drives the boot-image writer end to end. Without a
// real VM attached it exercises the pipeline against the demo package's
// toy object graph, which is enough to validate the header, index
// tables, bitmaps, and heap/code layout a real embedder would see.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/chazu/bootimage"
	"github.com/chazu/bootimage/code"
	"github.com/chazu/bootimage/config"
	"github.com/chazu/bootimage/demo"
)

func usage() {
	fmt.Fprintf(os.Stderr, "usage: %s <classpath> <output-file> [<class-name> [<method-name> [<method-spec>]]]\n", os.Args[0])
	flag.PrintDefaults()
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("bootwriter", flag.ContinueOnError)
	fs.Usage = usage
	profileFile := fs.String("profile-file", "", "TOML file of named ABI profiles")
	profileName := fs.String("profile", "", "ABI profile name to select from -profile-file")
	if err := fs.Parse(args); err != nil {
		return -1
	}

	pos := fs.Args()
	if len(pos) < 2 || len(pos) > 5 {
		usage()
		return -1
	}
	classpath, outputFile := pos[0], pos[1]

	abi := bootimage.Host64
	if *profileFile != "" {
		f, err := config.Load(*profileFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "bootwriter: %v\n", err)
			return -1
		}
		p, err := f.Resolve(*profileName)
		if err != nil {
			fmt.Fprintf(os.Stderr, "bootwriter: %v\n", err)
			return -1
		}
		abi = bootimage.ABI{
			HostWordSize:      bootimage.Host64.HostWordSize,
			TargetWordSize:    p.TargetWordSize,
			TargetBitsPerWord: p.TargetBitsPerWord,
			BigEndian:         p.BigEndian,
		}
	}

	out, err := os.Create(outputFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "bootwriter: %v\n", err)
		return -1
	}
	defer out.Close()

	if err := writeImage(abi, classpath, out); err != nil {
		fmt.Fprintf(os.Stderr, "bootwriter: %v\n", err)
		if be, ok := err.(*bootimage.Error); ok && be.Fatal() {
			// Every kind but IO is fatal: the output is undefined and the
			// process aborts outright rather than unwinding through the
			// deferred file close.
			os.Exit(-1)
		}
		return -1
	}
	return 0
}

// writeImage runs the full pipeline: build type maps, walk the roots,
// resolve code constants (none, in demo mode), and serialize. classpath
// is accepted for signature compatibility with a real VM's front end;
// the demo machine ignores it and builds its own fixed object graph.
func writeImage(abi bootimage.ABI, classpath string, out *os.File) error {
	_ = classpath

	m := demo.NewMachine(abi.HostWordSize)
	pointField := []bootimage.FieldDescriptor{{Name: "next", Code: bootimage.FieldCodeObject, Access: bootimage.FieldInstance, BuildOffset: abi.HostWordSize}}
	leaf := m.DefineClass("Leaf", nil, false)
	node := m.DefineClass("Node", pointField, false)
	m.AddStaticField(node, abi.HostWordSize) // static table pointer sits right after the class header word

	registry := bootimage.NewTypeMapRegistry()
	for _, cls := range append(m.BootClasses(), m.AppClasses()...) {
		instMap, staticMap, err := bootimage.BuildInstanceTypeMaps(abi, m.FieldsOf(cls))
		if err != nil {
			return err
		}
		registry.Bind(cls.Handle(), instMap)
		if staticMap != nil {
			if st, ok := m.StaticTableOf(cls); ok {
				registry.Bind(st.Handle(), staticMap)
			}
		}
	}
	// The class loaders and the type array are roots as well and need a
	// layout of their own; the demo gives them no fields to map.
	for _, o := range []bootimage.Object{m.BootClassLoader(), m.AppClassLoader(), m.TypeArray()} {
		words := len(o.Bytes()) / abi.HostWordSize
		registry.Bind(o.Handle(), bootimage.NewTypeMap(bootimage.KindNormal, words, words, abi.HostWordSize))
	}

	leafInst := m.NewInstance(leaf, 0)
	// One word for the implicit class-pointer header, one for "next".
	nodeInst := m.NewInstance(node, 2*abi.HostWordSize)
	m.SetObjectField(nodeInst, leafInst, abi.HostWordSize)

	info := bootimage.RuntimeInfo{
		FixieTenureThreshold:   3,
		FixedMark:              1,
		PointerMask:            ^uint64(0),
		BootShift:              0,
		ObjectMask:             1,
		ClassStaticTableOffset: 1,
	}

	walker := bootimage.NewWalker(abi, registry, m, info, 4096)
	constants := []bootimage.CompilerConstant{{Object: nodeInst}, {Object: leafInst}}
	roots := bootimage.EnumerateRoots(m, nil, constants)
	if err := roots.Walk(m, walker); err != nil {
		return err
	}

	codeBits := bootimage.NewBitmap(0)
	writer := &bootimage.Writer{ABI: abi, Walker: walker, CodeBase: 0, Code: nil, CodeBits: codeBits}
	resolver := writer.NewResolver(code.TagBits{})
	if err := resolver.ResolveAll(nil, nil, nil); err != nil {
		return err
	}

	_, err := writer.Serialize(out, roots, nil, m.InternedStrings(), 0)
	return err
}
