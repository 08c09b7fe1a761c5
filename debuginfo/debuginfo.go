// Package debuginfo appends an optional, ignorable sidecar section after
// a boot image recording, for each annotated object number, the name of
// its class and a kind label, for post-mortem debugging of a target image without
// needing to keep the original classpath around. A target VM that does
// not understand the section simply never reads past the image's own
// declared size.
package debuginfo

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
)

var sectionMagic = [4]byte{'D', 'B', 'G', '1'}

// ObjectRecord names the source of one numbered heap object.
type ObjectRecord struct {
	Number    int    `cbor:"number"`
	ClassName string `cbor:"class"`
	Kind      string `cbor:"kind"`
}

// Section is the full sidecar payload: a run identifier (so a debugger
// can tell two images built from the same classpath apart) plus one
// record per object worth annotating.
type Section struct {
	RunID   uuid.UUID      `cbor:"run_id"`
	Objects []ObjectRecord `cbor:"objects"`
}

// NewSection creates an empty section with a fresh run identifier.
func NewSection(runID uuid.UUID) *Section {
	return &Section{RunID: runID}
}

// Add appends one object's debug record.
func (s *Section) Add(number int, className, kind string) {
	s.Objects = append(s.Objects, ObjectRecord{Number: number, ClassName: className, Kind: kind})
}

// Write CBOR-encodes and zstd-compresses s, then appends it to dst behind
// a magic marker and a little-endian length prefix, mirroring the
// image-writer's own append-a-tagged-section convention.
func Write(dst io.Writer, s *Section) error {
	encoded, err := cbor.Marshal(s)
	if err != nil {
		return fmt.Errorf("debuginfo: encoding section: %w", err)
	}

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return fmt.Errorf("debuginfo: creating compressor: %w", err)
	}
	defer enc.Close()
	compressed := enc.EncodeAll(encoded, nil)

	if _, err := dst.Write(sectionMagic[:]); err != nil {
		return fmt.Errorf("debuginfo: writing magic: %w", err)
	}
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(compressed)))
	if _, err := dst.Write(lenBuf[:]); err != nil {
		return fmt.Errorf("debuginfo: writing length: %w", err)
	}
	if _, err := dst.Write(compressed); err != nil {
		return fmt.Errorf("debuginfo: writing payload: %w", err)
	}
	return nil
}

// Read locates and decodes a Section previously appended to data. It
// scans from the end, since the section always follows the fixed-size
// image and its length is only known once the magic is found.
func Read(data []byte) (*Section, error) {
	idx := bytes.LastIndex(data, sectionMagic[:])
	if idx < 0 {
		return nil, fmt.Errorf("debuginfo: no section magic found")
	}
	rest := data[idx+len(sectionMagic):]
	if len(rest) < 4 {
		return nil, fmt.Errorf("debuginfo: truncated length prefix")
	}
	n := binary.LittleEndian.Uint32(rest[:4])
	payload := rest[4:]
	if uint32(len(payload)) < n {
		return nil, fmt.Errorf("debuginfo: truncated payload: want %d bytes, have %d", n, len(payload))
	}
	payload = payload[:n]

	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("debuginfo: creating decompressor: %w", err)
	}
	defer dec.Close()
	decoded, err := dec.DecodeAll(payload, nil)
	if err != nil {
		return nil, fmt.Errorf("debuginfo: decompressing section: %w", err)
	}

	var s Section
	if err := cbor.Unmarshal(decoded, &s); err != nil {
		return nil, fmt.Errorf("debuginfo: decoding section: %w", err)
	}
	return &s, nil
}
