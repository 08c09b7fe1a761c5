// Package code rewrites the immediates embedded in an already-assembled
// code segment once the heap layout is final: method-call targets become
// absolute addresses (code base plus offset), intra-code addresses become
// code-segment offsets, and heap references become the object numbers the
// heap walk assigned. It has no notion of a live VM or object graph —
// everything it needs arrives as plain offsets, handles, and callbacks.
package code

import (
	"encoding/binary"
	"fmt"
)

// BitSetter is the one method a Resolver needs from a bitmap: setting the
// bit for a target-word index that now holds a rewritten immediate.
type BitSetter interface {
	Set(i int)
}

// Order picks the byte order code immediates are written in.
type Order struct {
	WordSize  int // 4 or 8
	BigEndian bool
}

func (o Order) byteOrder() binary.ByteOrder {
	if o.BigEndian {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

func (o Order) putWord(dst []byte, v uint64) {
	switch o.WordSize {
	case 4:
		o.byteOrder().PutUint32(dst, uint32(v))
	case 8:
		o.byteOrder().PutUint64(dst, v)
	default:
		panic("code: unsupported word size")
	}
}

func (o Order) word(src []byte) uint64 {
	switch o.WordSize {
	case 4:
		return uint64(o.byteOrder().Uint32(src))
	case 8:
		return o.byteOrder().Uint64(src)
	default:
		panic("code: unsupported word size")
	}
}

// MethodAddress is the resolved location of one compiled or native
// method, as the compiler's method table already recorded it.
type MethodAddress struct {
	Native           bool
	NativeThunkStart uint64 // relative to codeBase, valid iff Native
	CompiledOffset   uint64 // relative to codeBase, valid iff !Native
}

// PatchLocation names one immediate to overwrite: its byte offset within
// the code buffer, and whether the "flat constant" tag bit applies to it.
type PatchLocation struct {
	Offset int
	Flat   bool
}

// DeferredCall is one unresolved call site the compiler recorded while
// emitting a method body.
type DeferredCall struct {
	Method    MethodAddress
	Locations []PatchLocation
}

// DeferredAddress is one unresolved intra-code address. Basis resolves to
// the already-final address the immediate should encode; Resolve, called
// only after Basis succeeds, reports where to patch and how.
type DeferredAddress struct {
	Basis   func() (uint64, error)
	Resolve func() (offset int, flat bool)
}

// DeferredHeapConstant is one unresolved reference to a heap object
// embedded in code, at one or more patch sites.
type DeferredHeapConstant struct {
	Handle    uint64
	Locations []PatchLocation
}

// TagBits are the architecture-wide bit patterns a Resolver ORs into a
// patched value; treated as opaque.
type TagBits struct {
	BootHeapOffset   uint64
	BootFlatConstant uint64
}

// Resolver rewrites a code buffer's deferred immediates in the three
// fixed passes: method calls, intra-code addresses, then heap constants.
type Resolver struct {
	Code     []byte
	Order    Order
	CodeBase uint64
	Bitmap   BitSetter
	Tags     TagBits
	// NumberOf resolves a heap handle to its assigned object number, as
	// produced by the heap walk. It must return ok=false for handles the
	// walk never numbered.
	NumberOf func(handle uint64) (number int, ok bool)
}

func (r *Resolver) wordAt(offset int) []byte {
	return r.Code[offset : offset+r.Order.WordSize]
}

func (r *Resolver) markBit(offset int) {
	r.Bitmap.Set(offset / r.Order.WordSize)
}

// ResolveCalls implements the method-call pass: every deferred call is
// patched to the absolute address of its target, native thunk or
// compiled body alike.
func (r *Resolver) ResolveCalls(calls []DeferredCall) error {
	for _, c := range calls {
		var value uint64
		if c.Method.Native {
			value = r.CodeBase + c.Method.NativeThunkStart
		} else {
			value = r.CodeBase + c.Method.CompiledOffset
		}
		for _, loc := range c.Locations {
			if loc.Offset < 0 || loc.Offset+r.Order.WordSize > len(r.Code) {
				return fmt.Errorf("code: call patch offset %d out of bounds", loc.Offset)
			}
			r.Order.putWord(r.wordAt(loc.Offset), value)
		}
	}
	return nil
}

// ResolveAddresses implements the intra-code address pass: each deferred
// address's basis must resolve to a value at or above the code base, and is
// then rewritten as a code-base-relative offset with the flat-constant
// tag applied where the listener asks for it.
func (r *Resolver) ResolveAddresses(addrs []DeferredAddress) error {
	for _, a := range addrs {
		value, err := a.Basis()
		if err != nil {
			return err
		}
		if value < r.CodeBase {
			return fmt.Errorf("code: resolved address %#x below code base %#x", value, r.CodeBase)
		}
		offset, flat := a.Resolve()
		if offset < 0 || offset+r.Order.WordSize > len(r.Code) {
			return fmt.Errorf("code: address patch offset %d out of bounds", offset)
		}
		patched := value - r.CodeBase
		if flat {
			patched |= r.Tags.BootFlatConstant
		}
		r.Order.putWord(r.wordAt(offset), patched)
		r.markBit(offset)
	}
	return nil
}

// ResolveHeapConstants implements the heap-constant pass: every deferred
// heap reference must already have an object number from the completed
// heap walk (a zero or missing number is an invariant violation, since a
// dangling code reference to un-numbered heap memory can never be valid).
func (r *Resolver) ResolveHeapConstants(consts []DeferredHeapConstant) error {
	for _, c := range consts {
		number, ok := r.NumberOf(c.Handle)
		if !ok || number == 0 {
			return fmt.Errorf("code: heap constant for handle %d resolved to no object", c.Handle)
		}
		for _, loc := range c.Locations {
			if loc.Offset < 0 || loc.Offset+r.Order.WordSize > len(r.Code) {
				return fmt.Errorf("code: heap-constant patch offset %d out of bounds", loc.Offset)
			}
			patched := uint64(number) | r.Tags.BootHeapOffset
			if loc.Flat {
				patched |= r.Tags.BootFlatConstant
			}
			r.Order.putWord(r.wordAt(loc.Offset), patched)
			r.markBit(loc.Offset)
		}
	}
	return nil
}

// ResolveAll runs the three passes in the required order: calls, then
// addresses, then heap constants.
func (r *Resolver) ResolveAll(calls []DeferredCall, addrs []DeferredAddress, consts []DeferredHeapConstant) error {
	if err := r.ResolveCalls(calls); err != nil {
		return err
	}
	if err := r.ResolveAddresses(addrs); err != nil {
		return err
	}
	return r.ResolveHeapConstants(consts)
}
