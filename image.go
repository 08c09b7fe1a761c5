package bootimage

import (
	"io"

	"github.com/chazu/bootimage/code"
)

// Magic identifies an emitted boot image. It has no meaning beyond being
// a fixed sentinel a reader checks before trusting the rest of the file.
const Magic uint64 = 0x424f4f544d475542 // "BOOTMGUB"

// Header is the fixed-size record that opens every image, in emission
// order. Every field occupies one target word, target-endian, even the
// counts — the reader always knows exactly where the index tables begin
// without first decoding a variable-width prefix.
type Header struct {
	Magic            uint64
	CodeBase         uint64
	HeapSize         uint64 // heap bytes, after word-alignment padding
	CodeSize         uint64 // code bytes, after word-alignment padding
	BootClassCount   uint64
	AppClassCount    uint64
	StringCount      uint64
	CallCount        uint64
	ThunksDescriptor uint64
}

func (h Header) words() []uint64 {
	return []uint64{
		h.Magic, h.CodeBase, h.HeapSize, h.CodeSize,
		h.BootClassCount, h.AppClassCount, h.StringCount, h.CallCount,
		h.ThunksDescriptor,
	}
}

func (h Header) encode(abi ABI) []byte {
	words := h.words()
	buf := make([]byte, len(words)*abi.TargetWordSize)
	for i, w := range words {
		off := i * abi.TargetWordSize
		abi.PutWord(buf[off:off+abi.TargetWordSize], w)
	}
	return buf
}

// CallTableEntry is one method-call site recorded for the image's call
// table: a pair of u32 values whose meaning is opaque to the writer
// beyond "emit them verbatim".
type CallTableEntry struct {
	A, B uint32
}

// Writer assembles a completed heap walk and code resolution pass into
// the final image byte stream.
type Writer struct {
	ABI      ABI
	Walker   *Walker
	CodeBase uint64
	Code     []byte
	CodeBits *Bitmap
}

func numberOrZero(w *Walker, obj Object) uint32 {
	if obj == nil {
		return 0
	}
	n, ok := w.NumberOf(obj.Handle())
	if !ok {
		return 0
	}
	return uint32(n)
}

func indexTable(w *Walker, objs []Object) []uint32 {
	out := make([]uint32, len(objs))
	for i, o := range objs {
		out[i] = numberOrZero(w, o)
	}
	return out
}

func encodeU32Table(abi ABI, table []uint32) []byte {
	buf := make([]byte, len(table)*4)
	for i, v := range table {
		abi.PutU32(buf[i*4:i*4+4], v)
	}
	return buf
}

func encodeCallTable(abi ABI, calls []CallTableEntry) []byte {
	buf := make([]byte, len(calls)*8)
	for i, c := range calls {
		off := i * 8
		abi.PutU32(buf[off:off+4], c.A)
		abi.PutU32(buf[off+4:off+8], c.B)
	}
	return buf
}

func padToWord(buf []byte, wordSize int) []byte {
	rem := len(buf) % wordSize
	if rem == 0 {
		return buf
	}
	return append(buf, make([]byte, wordSize-rem)...)
}

// Serialize concatenates the header, the u32 index tables and the call
// table (zero-padded together to a target word), then the heap bitmap and
// bytes and the code bitmap and bytes, each padded to a target word, into
// dst, and returns the number of bytes written.
func (wr *Writer) Serialize(dst io.Writer, roots RootSet, calls []CallTableEntry, strings []Object, thunksDescriptor uint64) (int64, error) {
	abi := wr.ABI
	bootIdx := indexTable(wr.Walker, roots.BootClasses)
	appIdx := indexTable(wr.Walker, roots.AppClasses)
	stringIdx := indexTable(wr.Walker, strings)

	heapBytes := padToWord(append([]byte(nil), wr.Walker.HeapBytes()...), abi.TargetWordSize)
	codeBytes := padToWord(append([]byte(nil), wr.Code...), abi.TargetWordSize)

	heapBitmapBytes := padToWord(wr.Walker.Bitmap().Bytes(abi, abi.TargetBitsPerWord), abi.TargetWordSize)
	codeBitmapBytes := padToWord(wr.CodeBits.Bytes(abi, abi.TargetBitsPerWord), abi.TargetWordSize)

	header := Header{
		Magic:            Magic,
		CodeBase:         wr.CodeBase,
		HeapSize:         uint64(len(heapBytes)),
		CodeSize:         uint64(len(codeBytes)),
		BootClassCount:   uint64(len(bootIdx)),
		AppClassCount:    uint64(len(appIdx)),
		StringCount:      uint64(len(stringIdx)),
		CallCount:        uint64(len(calls)),
		ThunksDescriptor: thunksDescriptor,
	}

	sections := [][]byte{
		header.encode(abi),
		encodeU32Table(abi, bootIdx),
		encodeU32Table(abi, appIdx),
		encodeU32Table(abi, stringIdx),
		encodeCallTable(abi, calls),
	}

	var body []byte
	for _, s := range sections {
		body = append(body, s...)
	}
	body = padToWord(body, abi.TargetWordSize)
	body = append(body, heapBitmapBytes...)
	body = append(body, heapBytes...)
	body = append(body, codeBitmapBytes...)
	body = append(body, codeBytes...)

	n, err := dst.Write(body)
	if err != nil {
		return int64(n), wrapErr(IO, err, "writing image")
	}
	return int64(n), nil
}

// NewResolver builds a code.Resolver bound to wr's code buffer, code
// bitmap, and the walker's number map, ready to run the three
// code-constant resolution passes.
func (wr *Writer) NewResolver(tags code.TagBits) *code.Resolver {
	return &code.Resolver{
		Code:     wr.Code,
		Order:    code.Order{WordSize: wr.ABI.TargetWordSize, BigEndian: wr.ABI.BigEndian},
		CodeBase: wr.CodeBase,
		Bitmap:   wr.CodeBits,
		Tags:     tags,
		NumberOf: func(handle uint64) (int, bool) { return wr.Walker.NumberOf(Handle(handle)) },
	}
}
