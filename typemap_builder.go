package bootimage

import "github.com/chazu/bootimage/classfile"

// BuildPoolTypeMap implements the constant-pool construction path: it
// parses a class file's bytes, reads its magic and pool, and produces a
// Pool-kind TypeMap describing how the runtime's own representation of
// that pool transcribes to the target. The two leading fields are always
// (object, iword) for the pool's own header, ahead of one field per
// constant-pool entry.
func BuildPoolTypeMap(abi ABI, classData []byte) (*TypeMap, error) {
	cf, err := classfile.Parse(classData)
	if err != nil {
		if _, ok := err.(*classfile.ErrBadMagic); ok {
			return nil, wrapErr(MalformedClass, err, "parsing class file header")
		}
		if _, ok := err.(*classfile.ErrUnknownTag); ok {
			return nil, wrapErr(MalformedClass, err, "parsing constant pool")
		}
		return nil, wrapErr(IO, err, "reading class file")
	}

	m := NewTypeMap(KindPool, 0, 0, abi.HostWordSize)

	buildOff, targetOff := 0, 0
	addField := func(tag Tag) {
		size := tag.hostSize(abi.HostWordSize)
		tsize := tag.TargetSize(abi)
		if tsize > 0 {
			targetOff = align(targetOff, tsize)
		}
		m.AddField(tag, buildOff, targetOff)
		buildOff += size
		targetOff += tsize
	}

	// Two leading header slots: (object, iword).
	addField(TagObject)
	addField(TagIWord)

	for i := 1; i < len(cf.ConstantPool); i++ {
		entry := cf.ConstantPool[i]
		switch entry.Tag {
		case 0:
			// second slot of a preceding wide (Long/Double) entry
			continue
		case classfile.TagClass, classfile.TagString, classfile.TagNameAndType,
			classfile.TagFieldref, classfile.TagMethodref, classfile.TagInterfaceMethodref,
			classfile.TagUtf8:
			addField(TagObject)
		case classfile.TagInteger, classfile.TagFloat:
			addField(TagI32)
		case classfile.TagLong:
			addField(TagI64)
			addField(TagI64Pad)
		case classfile.TagDouble:
			addField(TagF64)
			addField(TagF64Pad)
		default:
			return nil, newErr(MalformedClass, "unmapped constant-pool tag %d at index %d", entry.Tag, i)
		}
	}

	finishFixedPrefix(abi, m, buildOff, targetOff)
	return m, nil
}

// BuildInstanceTypeMaps implements the field-table construction path: it
// partitions a class's fields into instance and static partitions and
// emits a Normal-kind TypeMap for the instance layout plus, only if the
// class has any static fields, a Singleton-kind TypeMap for the static
// table.
func BuildInstanceTypeMaps(abi ABI, fields FieldTable) (instance, static *TypeMap, err error) {
	var instFields, staticFields []FieldDescriptor
	for _, f := range fields.Fields() {
		if f.Access == FieldStatic {
			staticFields = append(staticFields, f)
		} else {
			instFields = append(instFields, f)
		}
	}

	instance, err = buildFieldPartition(abi, KindNormal, instFields)
	if err != nil {
		return nil, nil, err
	}
	if len(staticFields) == 0 {
		return instance, nil, nil
	}
	static, err = buildFieldPartition(abi, KindSingleton, staticFields)
	if err != nil {
		return nil, nil, err
	}
	return instance, static, nil
}

// buildFieldPartition lays out one instance or static field partition
// behind its mandatory implicit header: every heap object's first word
// is its class pointer, so a Normal (instance) partition always opens
// with a leading (object, 0, 0) field and a Singleton (static table)
// partition always opens with (object, 0, 0) followed by (iword,
// HostWordSize, TargetWordSize) before any of the caller's declared
// fields — mirroring BuildPoolTypeMap's own (object, iword) header.
func buildFieldPartition(abi ABI, kind TypeMapKind, fields []FieldDescriptor) (*TypeMap, error) {
	m := NewTypeMap(kind, 0, 0, abi.HostWordSize)
	m.AddField(TagObject, 0, 0)
	buildOff, targetOff := abi.HostWordSize, abi.TargetWordSize
	if kind == KindSingleton {
		m.AddField(TagIWord, buildOff, targetOff)
		buildOff += abi.HostWordSize
		targetOff += abi.TargetWordSize
	}
	for _, f := range fields {
		tag, buildSize, targetSize := FieldCodeTag(f.Code)
		if tag == TagNone {
			return nil, newErr(UnsupportedLayout, "field %q has unrecognized code %v", f.Name, f.Code)
		}
		if tag == TagObject {
			buildSize, targetSize = abi.HostWordSize, abi.TargetWordSize
		}
		targetOff = align(targetOff, targetSize)
		m.AddField(tag, buildOff, targetOff)
		buildOff += buildSize
		targetOff += targetSize
	}
	finishFixedPrefix(abi, m, buildOff, targetOff)
	return m, nil
}

// TypeDescriptor is one entry in a hard-coded VM type's descriptor list:
// either a fixed-prefix field, or the ArrayMarker tag that ends the fixed
// prefix and introduces a trailing array's element type.
type TypeDescriptor struct {
	Tag Tag
}

// BuildDescriptorTypeMap implements the hard-coded-descriptor construction
// path: it walks descs looking for an ArrayMarker that splits fixed fields
// from a tail array element type, and always produces a Normal-kind
// TypeMap.
func BuildDescriptorTypeMap(abi ABI, descs []TypeDescriptor) (*TypeMap, error) {
	m := NewTypeMap(KindNormal, 0, 0, abi.HostWordSize)
	buildOff, targetOff := 0, 0
	arrayIdx := -1
	for i, d := range descs {
		if d.Tag == TagArrayMarker {
			arrayIdx = i
			break
		}
		size := d.Tag.hostSize(abi.HostWordSize)
		tsize := d.Tag.TargetSize(abi)
		buildSize, targetSize := size, tsize
		if d.Tag == TagObject {
			buildSize, targetSize = abi.HostWordSize, abi.TargetWordSize
		}
		if targetSize > 0 {
			targetOff = align(targetOff, targetSize)
		}
		m.AddField(d.Tag, buildOff, targetOff)
		buildOff += buildSize
		targetOff += targetSize
	}
	finishFixedPrefix(abi, m, buildOff, targetOff)

	if arrayIdx >= 0 && arrayIdx+1 < len(descs) {
		elem := descs[arrayIdx+1].Tag
		buildElem := elem.hostSize(abi.HostWordSize)
		targetElem := elem.TargetSize(abi)
		if elem == TagObject {
			buildElem, targetElem = abi.HostWordSize, abi.TargetWordSize
		}
		m.SetArrayTail(elem, buildElem, targetElem)
	}
	return m, nil
}

// finishFixedPrefix sets m's fixed-prefix sizes from the final build and
// target offsets and sizes TargetFixedOffsets to match, refilling it from
// m.Fields: the builders start from a zero-word map, whose table has no
// room for the entries AddField records.
func finishFixedPrefix(abi ABI, m *TypeMap, buildOff, targetOff int) {
	m.BuildFixedWords = Ceiling(buildOff, abi.HostWordSize)
	m.TargetFixedWords = Ceiling(targetOff, abi.TargetWordSize)
	m.TargetFixedOffsets = make([]int32, m.BuildFixedWords*abi.HostWordSize)
	for _, f := range m.Fields {
		if f.BuildOffset >= 0 && f.BuildOffset < len(m.TargetFixedOffsets) {
			m.TargetFixedOffsets[f.BuildOffset] = int32(f.TargetOffset)
		}
	}
}

// align rounds off up to the next multiple of size, per the field-layout
// rule that every field's target offset is aligned to its own natural
// size. A zero or negative size (pad tags) leaves off unchanged.
func align(off, size int) int {
	if size <= 0 {
		return off
	}
	return Ceiling(off, size) * size
}
