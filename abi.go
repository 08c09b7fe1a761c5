// Package bootimage transcribes a live managed-language heap and its
// compiled code into a self-contained image a target VM can memory-map
// on startup.
package bootimage

import "encoding/binary"

// ABI describes the target machine's word size and byte order, which may
// differ from the host machine running the writer. Field transcoding
// (CopyField) uses only the primitives on this type; nothing else in the
// package writes target bytes directly.
type ABI struct {
	// HostWordSize is the pointer width, in bytes, of the machine running
	// the writer (4 or 8).
	HostWordSize int
	// TargetWordSize is the pointer width, in bytes, of the machine that
	// will load the emitted image (4 or 8).
	TargetWordSize int
	// TargetBitsPerWord is the number of bits packed into one bitmap word
	// on the target (ordinarily TargetWordSize*8).
	TargetBitsPerWord int
	// BigEndian selects the target's byte order. False means little-endian.
	BigEndian bool
}

// Host32 is the conventional profile for a 32-bit little-endian host
// building for an identical target (used by DebugNativeTarget checks).
var Host32 = ABI{HostWordSize: 4, TargetWordSize: 4, TargetBitsPerWord: 32, BigEndian: false}

// Host64 is the conventional profile for a 64-bit little-endian host
// building for an identical target.
var Host64 = ABI{HostWordSize: 8, TargetWordSize: 8, TargetBitsPerWord: 64, BigEndian: false}

func (a ABI) order() binary.ByteOrder {
	if a.BigEndian {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

// PutU16 writes v to dst in target byte order.
func (a ABI) PutU16(dst []byte, v uint16) { a.order().PutUint16(dst, v) }

// PutU32 writes v to dst in target byte order.
func (a ABI) PutU32(dst []byte, v uint32) { a.order().PutUint32(dst, v) }

// PutU64 writes v to dst in target byte order.
func (a ABI) PutU64(dst []byte, v uint64) { a.order().PutUint64(dst, v) }

// U16 reads a uint16 from src in target byte order.
func (a ABI) U16(src []byte) uint16 { return a.order().Uint16(src) }

// U32 reads a uint32 from src in target byte order.
func (a ABI) U32(src []byte) uint32 { return a.order().Uint32(src) }

// U64 reads a uint64 from src in target byte order.
func (a ABI) U64(src []byte) uint64 { return a.order().Uint64(src) }

// PutWord writes v to dst as a target-word-sized value (4 or 8 bytes) in
// target byte order. v is truncated if TargetWordSize is 4.
func (a ABI) PutWord(dst []byte, v uint64) {
	switch a.TargetWordSize {
	case 4:
		a.PutU32(dst, uint32(v))
	case 8:
		a.PutU64(dst, v)
	default:
		panic("bootimage: unsupported target word size")
	}
}

// Word reads a target-word-sized value from src in target byte order.
func (a ABI) Word(src []byte) uint64 {
	switch a.TargetWordSize {
	case 4:
		return uint64(a.U32(src))
	case 8:
		return a.U64(src)
	default:
		panic("bootimage: unsupported target word size")
	}
}

// hostWord reads a host-word-sized value from src using the host's native
// byte order. The writer never byte-swaps its own memory, only what it
// emits into the target image.
func hostWord(src []byte, hostWordSize int) uint64 {
	switch hostWordSize {
	case 4:
		return uint64(binary.NativeEndian.Uint32(src))
	case 8:
		return binary.NativeEndian.Uint64(src)
	default:
		panic("bootimage: unsupported host word size")
	}
}

// hostU16, hostU32, hostU64 read a scalar from src using the host's
// native byte order, mirroring hostWord for the fixed-width primitive
// sizes CopyField handles directly.
func hostU16(src []byte) uint16 { return binary.NativeEndian.Uint16(src) }
func hostU32(src []byte) uint32 { return binary.NativeEndian.Uint32(src) }
func hostU64(src []byte) uint64 { return binary.NativeEndian.Uint64(src) }

// Ceiling computes ⌈x/n⌉ for a positive divisor n.
func Ceiling(x, n int) int {
	if n <= 0 {
		panic("bootimage: Ceiling with non-positive divisor")
	}
	return (x + n - 1) / n
}
