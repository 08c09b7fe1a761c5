package bootimage

// Tag is a primitive field type as it appears in an emitted TypeMap. The
// *-pad tags model the trailing half of a double-wide slot in the source
// layout and emit nothing. Word is aliased to host/target pointer width.
// ArrayMarker ends a type-descriptor list and switches subsequent tags to
// describe a tail array's element type.
type Tag uint8

const (
	TagObject Tag = iota
	TagI8
	TagU8
	TagI16
	TagU16
	TagI32
	TagU32
	TagIWord
	TagUWord
	TagI64
	TagI64Pad
	TagU64
	TagF32
	TagF64
	TagF64Pad
	TagWord
	TagArrayMarker
	TagNone
)

func (t Tag) String() string {
	switch t {
	case TagObject:
		return "object"
	case TagI8:
		return "i8"
	case TagU8:
		return "u8"
	case TagI16:
		return "i16"
	case TagU16:
		return "u16"
	case TagI32:
		return "i32"
	case TagU32:
		return "u32"
	case TagIWord:
		return "iword"
	case TagUWord:
		return "uword"
	case TagI64:
		return "i64"
	case TagI64Pad:
		return "i64-pad"
	case TagU64:
		return "u64"
	case TagF32:
		return "f32"
	case TagF64:
		return "f64"
	case TagF64Pad:
		return "f64-pad"
	case TagWord:
		return "word"
	case TagArrayMarker:
		return "array-marker"
	case TagNone:
		return "none"
	default:
		return "tag(?)"
	}
}

// IsPad reports whether the tag emits nothing on either side of a copy:
// the two *-pad tags (the trailing half of a double-wide slot), None, and
// ArrayMarker.
func (t Tag) IsPad() bool {
	return t == TagI64Pad || t == TagF64Pad || t == TagNone || t == TagArrayMarker
}

// TargetSize returns the number of bytes the tag occupies in the target
// layout, given the target ABI. Pad and marker tags occupy zero bytes.
func (t Tag) TargetSize(abi ABI) int {
	switch t {
	case TagObject, TagWord, TagIWord, TagUWord:
		return abi.TargetWordSize
	case TagI8, TagU8:
		return 1
	case TagI16, TagU16:
		return 2
	case TagI32, TagU32, TagF32:
		return 4
	case TagI64, TagU64, TagF64:
		return 8
	default:
		return 0
	}
}

// hostSize returns the number of bytes the tag occupies in the host
// (build) layout, given the host word size. Object references are always
// a host word wide on the build side, regardless of what they become on
// the target side.
func (t Tag) hostSize(hostWordSize int) int {
	switch t {
	case TagObject, TagWord, TagIWord, TagUWord:
		return hostWordSize
	case TagI8, TagU8:
		return 1
	case TagI16, TagU16:
		return 2
	case TagI32, TagU32, TagF32:
		return 4
	case TagI64, TagU64, TagF64:
		return 8
	default:
		return 0
	}
}

// FieldCode is a class file / field table's own primitive coding for a
// field, prior to translation into a Tag. Distinct from Tag because the
// class-file format narrows some field widths on the way in (see the
// FieldCodeTag doc comment).
type FieldCode uint8

const (
	FieldCodeObject FieldCode = iota
	FieldCodeByte
	FieldCodeBool
	FieldCodeChar
	FieldCodeShort
	FieldCodeInt
	FieldCodeFloat
	FieldCodeLong
	FieldCodeDouble
)

// FieldCodeTag applies this format's field-size policy table:
//
//	object       -> object,  host word  / target word
//	byte, bool   -> i8,      1 / 1
//	char, short  -> i8,      1 / 1   (see note below)
//	int, float   -> i32/f32, 4 / 4
//	long, double -> i64/f64, 8 / 8
//
// char and short both narrow to a one-byte i8 field rather than a two-byte
// i16 one. That may be a latent bug in whatever runtime this class format
// came from, or an intentional quirk of a specific target's char
// representation; either way, real class files already encode fields this
// way, so this reproduces the narrowing verbatim instead of silently
// widening it.
func FieldCodeTag(code FieldCode) (tag Tag, buildSize, targetSize int) {
	switch code {
	case FieldCodeObject:
		return TagObject, -1, -1 // resolved via ABI word sizes by the caller
	case FieldCodeByte, FieldCodeBool:
		return TagI8, 1, 1
	case FieldCodeChar, FieldCodeShort:
		return TagI8, 1, 1
	case FieldCodeInt:
		return TagI32, 4, 4
	case FieldCodeFloat:
		return TagF32, 4, 4
	case FieldCodeLong:
		return TagI64, 8, 8
	case FieldCodeDouble:
		return TagF64, 8, 8
	default:
		return TagNone, 0, 0
	}
}
