package bootimage

// CopyField writes the target-endian representation of one field from src
// (host bytes) into dst (target bytes). Object slots are left zeroed here:
// the heap walker fills them in later via back-pointer patching against the
// heap bitmap, not through this call. Pad tags write nothing at all.
//
// dst and src need not be aligned to the field's natural size; all access
// goes through ABI's unaligned byte-order primitives.
func CopyField(abi ABI, dst, src []byte, tag Tag) error {
	switch tag {
	case TagI64Pad, TagF64Pad, TagNone, TagArrayMarker:
		return nil
	case TagObject:
		size := abi.TargetWordSize
		if len(dst) < size {
			return newErr(CapacityExceeded, "object field needs %d target bytes, dst has %d", size, len(dst))
		}
		for i := 0; i < size; i++ {
			dst[i] = 0
		}
		return nil
	case TagWord, TagIWord, TagUWord:
		return copyWord(abi, dst, src, abi.TargetWordSize, abi.HostWordSize)
	case TagI8, TagU8:
		if len(dst) < 1 || len(src) < 1 {
			return newErr(CapacityExceeded, "i8 field needs 1 byte on both sides")
		}
		dst[0] = src[0]
		return nil
	case TagI16, TagU16:
		if len(dst) < 2 || len(src) < 2 {
			return newErr(CapacityExceeded, "i16 field needs 2 bytes on both sides")
		}
		abi.PutU16(dst, hostU16(src))
		return nil
	case TagI32, TagU32, TagF32:
		if len(dst) < 4 || len(src) < 4 {
			return newErr(CapacityExceeded, "i32/f32 field needs 4 bytes on both sides")
		}
		abi.PutU32(dst, hostU32(src))
		return nil
	case TagI64, TagU64, TagF64:
		if len(dst) < 8 || len(src) < 8 {
			return newErr(CapacityExceeded, "i64/f64 field needs 8 bytes on both sides")
		}
		abi.PutU64(dst, hostU64(src))
		return nil
	default:
		return newErr(UnsupportedLayout, "no transcoding rule for tag %s", tag)
	}
}

func copyWord(abi ABI, dst, src []byte, targetSize, hostSize int) error {
	if len(dst) < targetSize {
		return newErr(CapacityExceeded, "word field needs %d target bytes, dst has %d", targetSize, len(dst))
	}
	if len(src) < hostSize {
		return newErr(CapacityExceeded, "word field needs %d host bytes, src has %d", hostSize, len(src))
	}
	abi.PutWord(dst, hostWord(src, hostSize))
	return nil
}
