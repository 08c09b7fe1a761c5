package bootimage

// RuntimeInfo carries the architecture-wide bit patterns the writer
// treats as opaque: it never interprets them beyond ORing, masking, and
// shifting them into place exactly as instructed.
type RuntimeInfo struct {
	// FixieTenureThreshold is the age value one past which a fixed
	// object's age byte is stamped.
	FixieTenureThreshold uint8
	// FixedMark is ORed into a fixed object's first body word.
	FixedMark uint64
	// PointerMask isolates the pointer-value bits of a heap slot from
	// any pre-seeded low tag bits.
	PointerMask uint64
	// BootShift is how far the preserved non-pointer bits of a slot are
	// shifted left when combined with a freshly patched number.
	BootShift uint
	// ObjectMask isolates the bits of a heap slot that indicate it holds
	// an object reference, independent of PointerMask.
	ObjectMask uint64
	// ClassStaticTableOffset is the build-word offset, within a class
	// object, of the field that points at its static table. An edge
	// crossing this exact offset from a class object triggers fixed-object
	// classification for whatever it points to.
	ClassStaticTableOffset int
	// DebugNativeTarget, when set, turns on a self-consistency check that
	// only holds when the target ABI matches the host: every computed
	// target offset must equal the corresponding build offset, and every
	// object's target size must equal its host byte length. Meant for
	// exercising the writer against its own host architecture during
	// development, not for cross-compiling a real target image.
	DebugNativeTarget bool
}

// frame records one level of the heap-walk's edge-context stack. An
// invalid frame (the initial state, and whatever Root() resets to) means
// the object about to be visited was reached from a root, not a field,
// and so no back-patch should occur for it.
type frame struct {
	valid          bool
	parentObj      Object
	parentNumber   int
	edgeWordOffset int
	parentTypeMap  *TypeMap
}

// Walker implements HeapVisitor: it is handed to the VM's own
// depth-first heap-walking driver and does the actual work of numbering,
// emitting, and back-patching objects into a contiguous target-format
// heap buffer.
type Walker struct {
	abi      ABI
	registry *TypeMapRegistry
	classes  ClassSource
	info     RuntimeInfo

	capacity int // in target words
	heap     []byte
	bitmap   *Bitmap
	position int // next free target word index

	numbers map[Handle]int
	stack   []frame
}

// NewWalker allocates a Walker with a heap buffer sized for capacity
// target words.
func NewWalker(abi ABI, registry *TypeMapRegistry, classes ClassSource, info RuntimeInfo, capacity int) *Walker {
	return &Walker{
		abi:      abi,
		registry: registry,
		classes:  classes,
		info:     info,
		capacity: capacity,
		heap:     make([]byte, capacity*abi.TargetWordSize),
		bitmap:   NewBitmap(capacity),
		numbers:  make(map[Handle]int),
	}
}

// HeapBytes returns the emitted heap buffer, trimmed to the words
// actually used.
func (w *Walker) HeapBytes() []byte { return w.heap[:w.position*w.abi.TargetWordSize] }

// HeapWords returns the number of target words emitted so far.
func (w *Walker) HeapWords() int { return w.position }

// Bitmap returns the walker's heap pointer bitmap.
func (w *Walker) Bitmap() *Bitmap { return w.bitmap }

// NumberOf returns the object number already assigned to h, if any.
func (w *Walker) NumberOf(h Handle) (int, bool) {
	n, ok := w.numbers[h]
	return n, ok
}

func (w *Walker) current() frame {
	if len(w.stack) == 0 {
		return frame{valid: false}
	}
	return w.stack[len(w.stack)-1]
}

// Root clears the walker's edge context: the object visited immediately
// after this call is a root and its incoming edge is never patched.
func (w *Walker) Root() {
	w.stack = w.stack[:0]
}

// Push records that the next VisitNew/VisitOld calls (until the matching
// Pop) are reached through field edgeWordOffset of parent, itself already
// numbered parentNumber.
func (w *Walker) Push(parent Object, parentNumber int, edgeWordOffset int) error {
	tm, ok := w.registry.Resolve(parent)
	if !ok {
		return newErr(InvariantViolation, "no TypeMap bound for parent object (handle %d)", parent.Handle())
	}
	w.stack = append(w.stack, frame{
		valid:          true,
		parentObj:      parent,
		parentNumber:   parentNumber,
		edgeWordOffset: edgeWordOffset,
		parentTypeMap:  tm,
	})
	return nil
}

// Pop undoes the effect of the matching Push.
func (w *Walker) Pop() {
	if len(w.stack) > 0 {
		w.stack = w.stack[:len(w.stack)-1]
	}
}

// classify decides whether p must be emitted as a fixed object: either
// the edge into it is a class's static-table field, or p is itself an
// instance of the system class-loader type. This is a pure function of
// the current edge and p's class, independent of anything already
// emitted.
func (w *Walker) classify(p Object, cur frame) bool {
	if cur.valid && cur.parentObj != nil && cur.parentObj.IsClassObject() &&
		cur.edgeWordOffset == w.info.ClassStaticTableOffset {
		return true
	}
	if w.classes != nil && w.classes.IsClassLoader(p) {
		return true
	}
	return false
}

// VisitNew emits p, choosing between the plain copy-collected path and
// the fixed-object path per classify, and returns its freshly assigned
// number.
func (w *Walker) VisitNew(p Object) (int, error) {
	tm, ok := w.registry.Resolve(p)
	if !ok {
		return 0, newErr(InvariantViolation, "no TypeMap bound for object (handle %d)", p.Handle())
	}

	var number int
	var err error
	if w.classify(p, w.current()) {
		number, err = w.emitFixed(p, tm)
	} else {
		number, err = w.emitPlain(p, tm)
	}
	if err != nil {
		return 0, err
	}

	w.numbers[p.Handle()] = number
	if err := w.patchCurrent(number); err != nil {
		return 0, err
	}
	return number, nil
}

// VisitOld patches the edge into an already-numbered object; it performs
// no emission.
func (w *Walker) VisitOld(p Object, number int) error {
	return w.patchCurrent(number)
}

func (w *Walker) emitPlain(p Object, tm *TypeMap) (int, error) {
	size, err := TargetSize(w.abi, tm, p.Bytes())
	if err != nil {
		return 0, err
	}
	if err := w.verifyNativeSize(size, p); err != nil {
		return 0, err
	}
	if w.position+size > w.capacity {
		return 0, newErr(CapacityExceeded, "heap buffer overflow emitting plain object: need %d words, have %d of %d", size, w.capacity-w.position, w.capacity)
	}
	off := w.position * w.abi.TargetWordSize
	dst := w.heap[off : off+size*w.abi.TargetWordSize]
	if err := transcodeInto(w.abi, dst, p, tm); err != nil {
		return 0, err
	}
	number := w.position + 1
	w.position += size
	return number, nil
}

func (w *Walker) emitFixed(p Object, tm *TypeMap) (int, error) {
	bodySize, err := TargetSize(w.abi, tm, p.Bytes())
	if err != nil {
		return 0, err
	}
	if err := w.verifyNativeSize(bodySize, p); err != nil {
		return 0, err
	}
	headerWords := Ceiling(8, w.abi.TargetWordSize) + 2
	maskWords := Ceiling(bodySize, w.abi.TargetWordSize)
	total := headerWords + bodySize + maskWords

	if w.position+total > w.capacity {
		return 0, newErr(CapacityExceeded, "heap buffer overflow emitting fixed object: need %d words, have %d of %d", total, w.capacity-w.position, w.capacity)
	}

	headerOff := w.position * w.abi.TargetWordSize
	header := w.heap[headerOff : headerOff+headerWords*w.abi.TargetWordSize]
	header[0] = w.info.FixieTenureThreshold + 1
	header[1] = 1 // has-mask
	w.abi.PutU32(header[4:8], uint32(bodySize*w.abi.TargetWordSize))

	bodyOff := headerOff + headerWords*w.abi.TargetWordSize
	dst := w.heap[bodyOff : bodyOff+bodySize*w.abi.TargetWordSize]
	if err := transcodeInto(w.abi, dst, p, tm); err != nil {
		return 0, err
	}

	first := w.abi.Word(dst[:w.abi.TargetWordSize])
	w.abi.PutWord(dst[:w.abi.TargetWordSize], first|w.info.FixedMark)

	// Trailing mask words are left zero: the heap buffer starts zeroed
	// and nothing above wrote into them.

	number := bodyOff/w.abi.TargetWordSize + 1
	w.position += total
	return number, nil
}

// transcodeInto copies every fixed field of p described by tm into dst,
// followed by any trailing array elements.
func transcodeInto(abi ABI, dst []byte, p Object, tm *TypeMap) error {
	src := p.Bytes()
	for _, f := range tm.Fields {
		hsize := f.Tag.hostSize(abi.HostWordSize)
		tsize := f.Tag.TargetSize(abi)
		var srcBytes []byte
		if f.BuildOffset+hsize <= len(src) {
			srcBytes = src[f.BuildOffset : f.BuildOffset+hsize]
		}
		if f.TargetOffset+tsize > len(dst) {
			return newErr(CapacityExceeded, "field at target offset %d overruns object body of %d bytes", f.TargetOffset, len(dst))
		}
		if err := CopyField(abi, dst[f.TargetOffset:f.TargetOffset+tsize], srcBytes, f.Tag); err != nil {
			return err
		}
	}

	if !tm.HasArrayTail() {
		return nil
	}
	length, err := ArrayLength(abi, tm, src)
	if err != nil {
		return err
	}
	buildPrefix := tm.BuildFixedWords * abi.HostWordSize
	targetPrefix := tm.TargetFixedWords * abi.TargetWordSize
	for i := 0; i < length; i++ {
		bo := buildPrefix + i*tm.BuildArrayElemBytes
		to := targetPrefix + i*tm.TargetArrayElemBytes
		if to+tm.TargetArrayElemBytes > len(dst) {
			return newErr(CapacityExceeded, "array element %d overruns object body", i)
		}
		var srcBytes []byte
		if bo+tm.BuildArrayElemBytes <= len(src) {
			srcBytes = src[bo : bo+tm.BuildArrayElemBytes]
		}
		if err := CopyField(abi, dst[to:to+tm.TargetArrayElemBytes], srcBytes, tm.ArrayElemType); err != nil {
			return err
		}
	}
	return nil
}

// patchCurrent applies the back-pointer patch for the just-resolved
// object number against whatever edge is on top of the stack. It is a
// no-op when the top of the stack is invalid, i.e. the object was reached
// from a root rather than a field.
func (w *Walker) patchCurrent(number int) error {
	cur := w.current()
	if !cur.valid {
		return nil
	}
	return w.patchSlot(cur, number)
}

// verifyNativeSize checks, when RuntimeInfo.DebugNativeTarget is set, that
// an object's computed target size (in target words) matches its host byte
// length exactly. Only meaningful when target and host share a word size;
// callers only ever set the flag in that configuration.
func (w *Walker) verifyNativeSize(targetWords int, p Object) error {
	if !w.info.DebugNativeTarget {
		return nil
	}
	if targetWords*w.abi.TargetWordSize != len(p.Bytes()) {
		return newErr(InvariantViolation, "native target size check failed: target size %d bytes, host object is %d bytes", targetWords*w.abi.TargetWordSize, len(p.Bytes()))
	}
	return nil
}

func (w *Walker) patchSlot(cur frame, number int) error {
	targetOff, err := TargetOffset(w.abi, cur.parentTypeMap, cur.edgeWordOffset*w.abi.HostWordSize)
	if err != nil {
		return err
	}
	if w.info.DebugNativeTarget && targetOff != cur.edgeWordOffset*w.abi.HostWordSize {
		return newErr(InvariantViolation, "native target offset check failed: target offset %d, build offset %d", targetOff, cur.edgeWordOffset*w.abi.HostWordSize)
	}
	slot := (cur.parentNumber - 1) + targetOff/w.abi.TargetWordSize
	byteOff := slot * w.abi.TargetWordSize
	if byteOff < 0 || byteOff+w.abi.TargetWordSize > len(w.heap) {
		return newErr(InvariantViolation, "back-patch slot %d out of heap bounds", slot)
	}
	old := w.abi.Word(w.heap[byteOff : byteOff+w.abi.TargetWordSize])
	combined := uint64(number) | ((old &^ w.info.PointerMask) << w.info.BootShift)
	w.abi.PutWord(w.heap[byteOff:byteOff+w.abi.TargetWordSize], combined)
	if combined != 0 {
		w.bitmap.Set(slot)
	}
	return nil
}
