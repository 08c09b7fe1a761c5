package bootimage

import "testing"

func TestWalkerPlainObjectBackPatch(t *testing.T) {
	abi := Host64
	registry := NewTypeMapRegistry()

	leafClass := &fakeObject{handle: 10, isCls: true}
	leafMap := NewTypeMap(KindNormal, 0, 0, abi.HostWordSize)
	registry.Bind(leafClass.handle, leafMap)

	nodeClass := &fakeObject{handle: 20, isCls: true}
	nodeMap := NewTypeMap(KindNormal, 1, 1, abi.HostWordSize)
	nodeMap.AddField(TagObject, 0, 0)
	registry.Bind(nodeClass.handle, nodeMap)

	nodeInst := &fakeObject{handle: 30, class: nodeClass, bytes: make([]byte, abi.HostWordSize)}
	leafInst := &fakeObject{handle: 40, class: leafClass, bytes: nil}

	info := RuntimeInfo{PointerMask: ^uint64(0), ClassStaticTableOffset: -1}
	w := NewWalker(abi, registry, nil, info, 64)

	w.Root()
	nodeNum, err := w.VisitNew(nodeInst)
	if err != nil {
		t.Fatalf("VisitNew(node): %v", err)
	}
	if nodeNum != 1 {
		t.Fatalf("nodeNum = %d, want 1", nodeNum)
	}

	if err := w.Push(nodeInst, nodeNum, 0); err != nil {
		t.Fatalf("Push: %v", err)
	}
	leafNum, err := w.VisitNew(leafInst)
	w.Pop()
	if err != nil {
		t.Fatalf("VisitNew(leaf): %v", err)
	}

	slot := nodeNum - 1
	off := slot * abi.TargetWordSize
	got := abi.Word(w.HeapBytes()[off : off+abi.TargetWordSize])
	if got != uint64(leafNum) {
		t.Errorf("back-patched slot = %d, want %d", got, leafNum)
	}
	if !w.Bitmap().Test(slot) {
		t.Error("heap bitmap bit for patched slot should be set")
	}
}

func TestWalkerVisitOldReusesNumber(t *testing.T) {
	abi := Host64
	registry := NewTypeMapRegistry()
	class := &fakeObject{handle: 1, isCls: true}
	m := NewTypeMap(KindNormal, 1, 1, abi.HostWordSize)
	m.AddField(TagObject, 0, 0)
	registry.Bind(class.handle, m)

	a := &fakeObject{handle: 2, class: class, bytes: make([]byte, 8)}
	b := &fakeObject{handle: 3, class: class, bytes: make([]byte, 8)}

	info := RuntimeInfo{PointerMask: ^uint64(0), ClassStaticTableOffset: -1}
	w := NewWalker(abi, registry, nil, info, 64)

	w.Root()
	aNum, _ := w.VisitNew(a)
	w.Push(a, aNum, 0)
	bNum, err := w.VisitNew(b)
	w.Pop()
	if err != nil {
		t.Fatalf("VisitNew(b): %v", err)
	}

	w.Push(b, bNum, 0)
	if err := w.VisitOld(a, aNum); err != nil {
		t.Fatalf("VisitOld: %v", err)
	}
	w.Pop()

	if n, ok := w.NumberOf(a.handle); !ok || n != aNum {
		t.Errorf("NumberOf(a) = (%d, %v), want (%d, true)", n, ok, aNum)
	}
}

func TestWalkerRootEdgeIsNeverPatched(t *testing.T) {
	abi := Host64
	registry := NewTypeMapRegistry()
	class := &fakeObject{handle: 1, isCls: true}
	m := NewTypeMap(KindNormal, 0, 0, abi.HostWordSize)
	registry.Bind(class.handle, m)
	obj := &fakeObject{handle: 2, class: class}

	info := RuntimeInfo{PointerMask: ^uint64(0), ClassStaticTableOffset: -1}
	w := NewWalker(abi, registry, nil, info, 8)

	w.Root()
	if _, err := w.VisitNew(obj); err != nil {
		t.Fatalf("VisitNew: %v", err)
	}
	// No panic and no bitmap bits set: the root edge was never patched.
	if w.Bitmap().Len() > 0 {
		for i := 0; i < w.Bitmap().Len(); i++ {
			if w.Bitmap().Test(i) {
				t.Errorf("bit %d unexpectedly set after a root-only visit", i)
			}
		}
	}
}

type fixedClassLoaderSource struct{ loader Object }

func (s *fixedClassLoaderSource) ClasspathEntries() ([]ClasspathEntry, error) { return nil, nil }
func (s *fixedClassLoaderSource) ResolveClass(string) (Object, error)         { return nil, nil }
func (s *fixedClassLoaderSource) FieldsOf(Object) FieldTable                  { return nil }
func (s *fixedClassLoaderSource) MethodsOf(Object) MethodTable                { return nil }
func (s *fixedClassLoaderSource) StaticTableOf(Object) (Object, bool)         { return nil, false }
func (s *fixedClassLoaderSource) IsClassLoader(o Object) bool                 { return o == s.loader }
func (s *fixedClassLoaderSource) BootClassLoader() Object                     { return s.loader }
func (s *fixedClassLoaderSource) AppClassLoader() Object                     { return nil }
func (s *fixedClassLoaderSource) TypeArray() Object                          { return nil }
func (s *fixedClassLoaderSource) InternedStrings() []Object                  { return nil }
func (s *fixedClassLoaderSource) BootClasses() []Object                      { return nil }
func (s *fixedClassLoaderSource) AppClasses() []Object                       { return nil }

func TestWalkerFixedObjectHeaderAndMaskSizing(t *testing.T) {
	abi := Host64 // TargetWordSize = 8, TargetBitsPerWord = 64
	registry := NewTypeMapRegistry()

	// 10 fixed target words of body: ceiling(10, TargetWordSize=8) = 2
	// trailing mask words is the correct sizing. The bug this guards
	// against used TargetBitsPerWord (64) as the divisor instead, which
	// would compute ceiling(10, 64) = 1 and under-allocate the object.
	loaderClass := &fakeObject{handle: 1, isCls: true}
	loaderMap := NewTypeMap(KindNormal, 10, 10, abi.HostWordSize)
	registry.Bind(loaderClass.handle, loaderMap)
	loader := &fakeObject{handle: 2, class: loaderClass, bytes: make([]byte, 10*abi.HostWordSize)}

	src := &fixedClassLoaderSource{loader: loader}
	info := RuntimeInfo{PointerMask: ^uint64(0), FixedMark: 1, ClassStaticTableOffset: -1}
	w := NewWalker(abi, registry, src, info, 64)

	w.Root()
	if _, err := w.VisitNew(loader); err != nil {
		t.Fatalf("VisitNew(loader): %v", err)
	}

	headerWords := Ceiling(8, abi.TargetWordSize) + 2 // = 3 on a 64-bit target
	bodyWords := 10
	wantMaskWords := Ceiling(bodyWords, abi.TargetWordSize) // = 2, not 1
	wantTotal := headerWords + bodyWords + wantMaskWords

	if w.HeapWords() != wantTotal {
		t.Fatalf("heap words used = %d, want %d (header %d + body %d + mask %d)",
			w.HeapWords(), wantTotal, headerWords, bodyWords, wantMaskWords)
	}

	// The 32-bit size field sits at byte offset 4 of the header, per the
	// age(0)/has-mask(1)/pad(2-3)/size(4-7) layout, not offset 2.
	header := w.HeapBytes()[:headerWords*abi.TargetWordSize]
	if header[2] != 0 || header[3] != 0 {
		t.Errorf("bytes 2-3 of the fixed-object header should be untouched padding, got % x", header[2:4])
	}
	gotSize := abi.U32(header[4:8])
	wantSize := uint32(bodyWords * abi.TargetWordSize)
	if gotSize != wantSize {
		t.Errorf("header size field = %d, want %d", gotSize, wantSize)
	}
}

func TestWalkerDebugNativeTargetCatchesOffsetMismatch(t *testing.T) {
	abi := Host64
	registry := NewTypeMapRegistry()

	nodeClass := &fakeObject{handle: 20, isCls: true}

	// A field whose build offset (0) maps to a different target offset (one
	// word later) than the identity mapping DebugNativeTarget assumes, so
	// the native-target check must fail loudly instead of silently
	// patching the wrong slot.
	skewedMap := NewTypeMap(KindNormal, 2, 2, abi.HostWordSize)
	skewedMap.AddField(TagObject, 0, abi.HostWordSize) // target offset shifted by one word
	registry.Bind(nodeClass.handle, skewedMap)

	nodeInst := &fakeObject{handle: 30, class: nodeClass, bytes: make([]byte, 2*abi.HostWordSize)}
	leafClass := &fakeObject{handle: 10, isCls: true}
	registry.Bind(leafClass.handle, NewTypeMap(KindNormal, 0, 0, abi.HostWordSize))
	leafInst := &fakeObject{handle: 40, class: leafClass}

	info := RuntimeInfo{PointerMask: ^uint64(0), ClassStaticTableOffset: -1, DebugNativeTarget: true}
	w := NewWalker(abi, registry, nil, info, 64)

	w.Root()
	nodeNum, err := w.VisitNew(nodeInst)
	if err != nil {
		t.Fatalf("VisitNew(node): %v", err)
	}
	if err := w.Push(nodeInst, nodeNum, 0); err != nil {
		t.Fatalf("Push: %v", err)
	}
	_, err = w.VisitNew(leafInst)
	w.Pop()
	if err == nil {
		t.Fatal("expected a native-target offset mismatch error, got nil")
	}
	if !IsFatal(err) {
		t.Error("a native-target check failure should be fatal (InvariantViolation)")
	}
}

func TestWalkerClassifiesClassLoaderAsFixed(t *testing.T) {
	abi := Host64
	registry := NewTypeMapRegistry()
	loaderClass := &fakeObject{handle: 1, isCls: true}
	loaderMap := NewTypeMap(KindSingleton, 4, 4, abi.HostWordSize)
	registry.Bind(loaderClass.handle, loaderMap)
	loader := &fakeObject{handle: 2, class: loaderClass, bytes: make([]byte, 32)}

	src := &fixedClassLoaderSource{loader: loader}
	info := RuntimeInfo{PointerMask: ^uint64(0), FixedMark: 1, ClassStaticTableOffset: -1}
	w := NewWalker(abi, registry, src, info, 64)

	w.Root()
	num, err := w.VisitNew(loader)
	if err != nil {
		t.Fatalf("VisitNew(loader): %v", err)
	}

	headerWords := Ceiling(8, abi.TargetWordSize) + 2
	bodyOff := (headerWords) * abi.TargetWordSize
	first := abi.Word(w.HeapBytes()[bodyOff : bodyOff+abi.TargetWordSize])
	if first&info.FixedMark == 0 {
		t.Error("fixed object's first body word should carry FixedMark")
	}
	if num != headerWords+1 {
		t.Errorf("fixed object number = %d, want %d (body word index + 1)", num, headerWords+1)
	}
}
