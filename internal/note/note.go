// Package note builds the synthesized NOTE segment (C3): vendor identity,
// segment-to-core map, per-core entry points, and an optional custom or
// run-status note, each packed via internal/codec's note-record codec.
// Grounded on the teacher's internal/elfcore/notes.go (note header layout,
// concatenation order) and the original modules/note.py (the exact note
// names/types and the "trailing space as terminator" convention).
package note

import (
	"encoding/binary"

	"github.com/tiops/genimage/internal/codec"
)

// Type constants for the four note kinds, per spec §4.3.
const (
	TypeVendor      uint32 = 0xAAAA5555
	TypeSegmentMap  uint32 = 0xBBBB7777
	TypeEntryPoints uint32 = 0xCCCC9999
	TypeCustom      uint32 = 0xDEADC0DE
)

// Name literals. The trailing space is deliberate: it is the one-byte
// terminator counted in namesz, not a stray typo (§4.3, §9).
const (
	NameVendor      = "Texas Instruments "
	NameSegmentMap  = "Segment Map "
	NameEntryPoints = "Entry Points "
)

// EntryPoint is one (core-id, entry-address) pair for the entry-points note.
type EntryPoint struct {
	CoreID uint32
	Entry  uint64
}

// Custom is a caller-supplied note: either the orchestrator's custom note
// or its run-status note, both built the same way (§4.3).
type Custom struct {
	Name string
	Data []byte
}

// Builder accumulates note records in the order its Add methods are called.
// The pipeline calls them in the fixed concatenation order: vendor,
// segment-map, entry-points, then any custom/run-status notes.
type Builder struct {
	endian codec.Endian
	buf    []byte
}

// NewBuilder creates a note Builder for the given output endianness.
func NewBuilder(endian codec.Endian) *Builder {
	return &Builder{endian: endian}
}

// AddVendor appends the vendor-identity note. Its descriptor is empty.
func (b *Builder) AddVendor() *Builder {
	b.buf = append(b.buf, codec.EncodeNoteRecord(b.endian, NameVendor, TypeVendor, nil)...)
	return b
}

// AddSegmentMap appends the segment-map note: one byte per loadable segment
// in final order, holding the numeric core-id that produced it (the
// merger's core-id, for merged segments).
func (b *Builder) AddSegmentMap(contexts []uint8) *Builder {
	b.buf = append(b.buf, codec.EncodeNoteRecord(b.endian, NameSegmentMap, TypeSegmentMap, contexts)...)
	return b
}

// AddEntryPoints appends the entry-points note: a packed array of
// (core_id uint32, entry address-sized) pairs, address width set by class.
func (b *Builder) AddEntryPoints(class codec.Class, entries []EntryPoint) *Builder {
	ord := byteOrder(b.endian)
	itemSize := 4 + addrSize(class)
	desc := make([]byte, 0, itemSize*len(entries))
	for _, ep := range entries {
		item := make([]byte, itemSize)
		ord.PutUint32(item[0:4], ep.CoreID)
		if class == codec.Class64 {
			ord.PutUint64(item[4:12], ep.Entry)
		} else {
			ord.PutUint32(item[4:8], uint32(ep.Entry))
		}
		desc = append(desc, item...)
	}
	b.buf = append(b.buf, codec.EncodeNoteRecord(b.endian, NameEntryPoints, TypeEntryPoints, desc)...)
	return b
}

// AddCustom appends a caller-supplied note (custom note or run-status
// note — same wire shape, different caller-agreed semantics per §4.3).
// A trailing space is appended to name, matching get_note_custom's
// f'{name} ' in the original.
func (b *Builder) AddCustom(c Custom) *Builder {
	b.buf = append(b.buf, codec.EncodeNoteRecord(b.endian, c.Name+" ", TypeCustom, c.Data)...)
	return b
}

// Bytes returns the concatenated note payload built so far. This becomes
// the data of the single PT_NOTE segment (vaddr=paddr=0, filesz=memsz=
// len(data), align=0, flags=0).
func (b *Builder) Bytes() []byte {
	return b.buf
}

func addrSize(class codec.Class) int {
	if class == codec.Class64 {
		return 8
	}
	return 4
}

func byteOrder(e codec.Endian) binary.ByteOrder {
	if e == codec.BigEndian {
		return binary.BigEndian
	}
	return binary.LittleEndian
}
