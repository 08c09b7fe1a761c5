package bootimage

// TargetOffset computes the target-byte-offset a build-byte-offset maps
// to under m. It reads no object bytes: whether buildOff falls in the
// trailing array region follows from m alone. For an offset inside the
// array tail, the corresponding target
// index is computed directly from the two element sizes rather than
// looked up, since target_fixed_offsets only covers the fixed prefix.
func TargetOffset(abi ABI, m *TypeMap, buildOff int) (int, error) {
	prefix := m.BuildFixedWords * abi.HostWordSize
	if m.HasArrayTail() && buildOff >= prefix {
		if m.BuildArrayElemBytes <= 0 {
			return 0, newErr(InvariantViolation, "array TypeMap has zero build element size")
		}
		index := (buildOff - prefix) / m.BuildArrayElemBytes
		targetPrefix := m.TargetFixedWords * abi.TargetWordSize
		return targetPrefix + index*m.TargetArrayElemBytes, nil
	}
	if buildOff < 0 || buildOff >= len(m.TargetFixedOffsets) {
		return 0, newErr(InvariantViolation, "build offset %d outside TypeMap's fixed prefix (limit %d)", buildOff, prefix)
	}
	return int(m.TargetFixedOffsets[buildOff]), nil
}

// ArrayLength reads an object's array element count from the canonical
// length slot: the last host word of the fixed prefix.
func ArrayLength(abi ABI, m *TypeMap, obj []byte) (int, error) {
	if m.BuildFixedWords <= 0 {
		return 0, newErr(InvariantViolation, "array TypeMap has zero-word fixed prefix, no length slot")
	}
	off := (m.BuildFixedWords - 1) * abi.HostWordSize
	if off < 0 || off+abi.HostWordSize > len(obj) {
		return 0, newErr(InvariantViolation, "length slot at build offset %d out of object bounds", off)
	}
	return int(hostWord(obj[off:off+abi.HostWordSize], abi.HostWordSize)), nil
}

// singletonMaskSize returns the number of target words needed to hold a
// one-bit-per-word mask over n target words, packed bitsPerWord bits to
// a word.
func singletonMaskSize(n, bitsPerWord int) int {
	if n <= 0 {
		return 0
	}
	return Ceiling(n, bitsPerWord)
}

// TargetSize computes an object's total emitted size in target words,
// given its live bytes obj (used only to read the array length slot when
// m declares a trailing array) and its TypeMap m.
func TargetSize(abi ABI, m *TypeMap, obj []byte) (int, error) {
	if m.HasArrayTail() {
		length, err := ArrayLength(abi, m, obj)
		if err != nil {
			return 0, err
		}
		if length < 0 {
			return 0, newErr(InvariantViolation, "negative array length %d", length)
		}
		return m.TargetFixedWords + Ceiling(m.TargetArrayElemBytes*length, abi.TargetWordSize), nil
	}
	switch m.Kind {
	case KindNormal:
		return m.TargetFixedWords, nil
	case KindSingleton:
		maskSize := singletonMaskSize(m.TargetFixedWords-2, abi.TargetBitsPerWord)
		return m.TargetFixedWords + maskSize, nil
	case KindPool:
		poolMaskSize := singletonMaskSize(m.TargetFixedWords-2, abi.TargetBitsPerWord)
		objMaskSize := singletonMaskSize(m.TargetFixedWords-2+poolMaskSize, abi.TargetBitsPerWord)
		return m.TargetFixedWords + poolMaskSize + objMaskSize, nil
	default:
		return 0, newErr(InvariantViolation, "unknown TypeMap kind %v", m.Kind)
	}
}
