// Package codec packs and unpacks the raw ELF structures this tool emits:
// the ELF file header, program-header entries, and note records. It knows
// nothing about segments, merging, or notes content — only bit-exact byte
// layout for 32/64-bit, little/big-endian variants.
package codec

import (
	"encoding/binary"
	"fmt"
)

// Class is the ELF word-size variant.
type Class int

const (
	Class32 Class = 1
	Class64 Class = 2
)

// Endian is the ELF byte-order variant.
type Endian int

const (
	LittleEndian Endian = 1
	BigEndian    Endian = 2
)

func (e Endian) order() binary.ByteOrder {
	if e == BigEndian {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

// Sizes of the structures this package packs, per class.
const (
	ELFHeaderSize32 = 52
	ELFHeaderSize64 = 64
	ProgHeaderSize32 = 32
	ProgHeaderSize64 = 56
	NoteHeaderSize   = 12 // namesz + descsz + type, three u32 fields.
)

// ELFHeaderSize returns the packed size of the ELF header for class.
func ELFHeaderSize(class Class) int {
	if class == Class64 {
		return ELFHeaderSize64
	}
	return ELFHeaderSize32
}

// ProgHeaderSize returns the packed size of one program-header entry for class.
func ProgHeaderSize(class Class) int {
	if class == Class64 {
		return ProgHeaderSize64
	}
	return ProgHeaderSize32
}

// BadHeaderError is returned when a donor file is too short or carries an
// unrecognized ELF class byte.
type BadHeaderError struct {
	Path   string
	Reason string
}

func (e *BadHeaderError) Error() string {
	return fmt.Sprintf("bad ELF header in %q: %s", e.Path, e.Reason)
}

// ClassFromIdent inspects e_ident[EI_CLASS] (byte 4) and returns the class,
// failing if it isn't 1 (class32) or 2 (class64).
func ClassFromIdent(ident []byte, path string) (Class, error) {
	if len(ident) < 16 {
		return 0, &BadHeaderError{Path: path, Reason: "e_ident shorter than 16 bytes"}
	}
	switch ident[4] {
	case 1:
		return Class32, nil
	case 2:
		return Class64, nil
	default:
		return 0, &BadHeaderError{Path: path, Reason: fmt.Sprintf("unrecognized EI_CLASS byte %d", ident[4])}
	}
}

// EndianFromIdent inspects e_ident[EI_DATA] (byte 5).
func EndianFromIdent(ident []byte, path string) (Endian, error) {
	if len(ident) < 16 {
		return 0, &BadHeaderError{Path: path, Reason: "e_ident shorter than 16 bytes"}
	}
	switch ident[5] {
	case 1:
		return LittleEndian, nil
	case 2:
		return BigEndian, nil
	default:
		return 0, &BadHeaderError{Path: path, Reason: fmt.Sprintf("unrecognized EI_DATA byte %d", ident[5])}
	}
}

// ELFHeaderFields is the set of ELF header fields this tool reads or writes.
// e_ident is carried verbatim from the donor input and is not reinterpreted
// here beyond the class/endian bytes above.
type ELFHeaderFields struct {
	Ident     [16]byte
	Type      uint16
	Machine   uint16
	Version   uint32
	Entry     uint64
	PHOff     uint64
	SHOff     uint64
	Flags     uint32
	EHSize    uint16
	PHEntSize uint16
	PHNum     uint16
	SHEntSize uint16
	SHNum     uint16
	SHStrNdx  uint16
}

// EncodeELFHeader packs fields into class/endian-appropriate bytes.
func EncodeELFHeader(class Class, endian Endian, f ELFHeaderFields) []byte {
	ord := endian.order()
	size := ELFHeaderSize(class)
	b := make([]byte, size)

	copy(b[0:16], f.Ident[:])
	ord.PutUint16(b[16:18], f.Type)
	ord.PutUint16(b[18:20], f.Machine)
	ord.PutUint32(b[20:24], f.Version)

	if class == Class64 {
		ord.PutUint64(b[24:32], f.Entry)
		ord.PutUint64(b[32:40], f.PHOff)
		ord.PutUint64(b[40:48], f.SHOff)
		ord.PutUint32(b[48:52], f.Flags)
		ord.PutUint16(b[52:54], f.EHSize)
		ord.PutUint16(b[54:56], f.PHEntSize)
		ord.PutUint16(b[56:58], f.PHNum)
		ord.PutUint16(b[58:60], f.SHEntSize)
		ord.PutUint16(b[60:62], f.SHNum)
		ord.PutUint16(b[62:64], f.SHStrNdx)
	} else {
		ord.PutUint32(b[24:28], uint32(f.Entry))
		ord.PutUint32(b[28:32], uint32(f.PHOff))
		ord.PutUint32(b[32:36], uint32(f.SHOff))
		ord.PutUint32(b[36:40], f.Flags)
		ord.PutUint16(b[40:42], f.EHSize)
		ord.PutUint16(b[42:44], f.PHEntSize)
		ord.PutUint16(b[44:46], f.PHNum)
		ord.PutUint16(b[46:48], f.SHEntSize)
		ord.PutUint16(b[48:50], f.SHNum)
		ord.PutUint16(b[50:52], f.SHStrNdx)
	}

	return b
}

// DecodeELFHeader unpacks an ELF header. Class and endian must already be
// known (e.g. via ClassFromIdent/EndianFromIdent on the same bytes).
func DecodeELFHeader(class Class, endian Endian, b []byte, path string) (ELFHeaderFields, error) {
	var f ELFHeaderFields
	size := ELFHeaderSize(class)
	if len(b) < size {
		return f, &BadHeaderError{Path: path, Reason: fmt.Sprintf("have %d bytes, need %d", len(b), size)}
	}
	ord := endian.order()

	copy(f.Ident[:], b[0:16])
	f.Type = ord.Uint16(b[16:18])
	f.Machine = ord.Uint16(b[18:20])
	f.Version = ord.Uint32(b[20:24])

	if class == Class64 {
		f.Entry = ord.Uint64(b[24:32])
		f.PHOff = ord.Uint64(b[32:40])
		f.SHOff = ord.Uint64(b[40:48])
		f.Flags = ord.Uint32(b[48:52])
		f.EHSize = ord.Uint16(b[52:54])
		f.PHEntSize = ord.Uint16(b[54:56])
		f.PHNum = ord.Uint16(b[56:58])
		f.SHEntSize = ord.Uint16(b[58:60])
		f.SHNum = ord.Uint16(b[60:62])
		f.SHStrNdx = ord.Uint16(b[62:64])
	} else {
		f.Entry = uint64(ord.Uint32(b[24:28]))
		f.PHOff = uint64(ord.Uint32(b[28:32]))
		f.SHOff = uint64(ord.Uint32(b[32:36]))
		f.Flags = ord.Uint32(b[36:40])
		f.EHSize = ord.Uint16(b[40:42])
		f.PHEntSize = ord.Uint16(b[42:44])
		f.PHNum = ord.Uint16(b[44:46])
		f.SHEntSize = ord.Uint16(b[46:48])
		f.SHNum = ord.Uint16(b[48:50])
		f.SHStrNdx = ord.Uint16(b[50:52])
	}

	return f, nil
}

// ProgHeaderFields is the set of program-header fields this tool reads or
// writes, address-sized fields carried as uint64 regardless of class (they
// are narrowed to uint32 on encode for Class32).
type ProgHeaderFields struct {
	Type   uint32
	Flags  uint32
	Offset uint64
	VAddr  uint64
	PAddr  uint64
	FileSz uint64
	MemSz  uint64
	Align  uint64
}

// EncodeProgHeader packs one program-header entry. Class32 places Flags
// after MemSz; Class64 places Flags immediately after Type.
func EncodeProgHeader(class Class, endian Endian, f ProgHeaderFields) []byte {
	ord := endian.order()
	size := ProgHeaderSize(class)
	b := make([]byte, size)

	if class == Class64 {
		ord.PutUint32(b[0:4], f.Type)
		ord.PutUint32(b[4:8], f.Flags)
		ord.PutUint64(b[8:16], f.Offset)
		ord.PutUint64(b[16:24], f.VAddr)
		ord.PutUint64(b[24:32], f.PAddr)
		ord.PutUint64(b[32:40], f.FileSz)
		ord.PutUint64(b[40:48], f.MemSz)
		ord.PutUint64(b[48:56], f.Align)
	} else {
		ord.PutUint32(b[0:4], f.Type)
		ord.PutUint32(b[4:8], uint32(f.Offset))
		ord.PutUint32(b[8:12], uint32(f.VAddr))
		ord.PutUint32(b[12:16], uint32(f.PAddr))
		ord.PutUint32(b[16:20], uint32(f.FileSz))
		ord.PutUint32(b[20:24], uint32(f.MemSz))
		ord.PutUint32(b[24:28], f.Flags)
		ord.PutUint32(b[28:32], uint32(f.Align))
	}

	return b
}

// DecodeProgHeader unpacks one program-header entry.
func DecodeProgHeader(class Class, endian Endian, b []byte, path string) (ProgHeaderFields, error) {
	var f ProgHeaderFields
	size := ProgHeaderSize(class)
	if len(b) < size {
		return f, &BadHeaderError{Path: path, Reason: fmt.Sprintf("program header has %d bytes, need %d", len(b), size)}
	}
	ord := endian.order()

	if class == Class64 {
		f.Type = ord.Uint32(b[0:4])
		f.Flags = ord.Uint32(b[4:8])
		f.Offset = ord.Uint64(b[8:16])
		f.VAddr = ord.Uint64(b[16:24])
		f.PAddr = ord.Uint64(b[24:32])
		f.FileSz = ord.Uint64(b[32:40])
		f.MemSz = ord.Uint64(b[40:48])
		f.Align = ord.Uint64(b[48:56])
	} else {
		f.Type = ord.Uint32(b[0:4])
		f.Offset = uint64(ord.Uint32(b[4:8]))
		f.VAddr = uint64(ord.Uint32(b[8:12]))
		f.PAddr = uint64(ord.Uint32(b[12:16]))
		f.FileSz = uint64(ord.Uint32(b[16:20]))
		f.MemSz = uint64(ord.Uint32(b[20:24]))
		f.Flags = ord.Uint32(b[24:28])
		f.Align = uint64(ord.Uint32(b[28:32]))
	}

	return f, nil
}

// EncodeNoteRecord packs a single ELF note record: namesz|descsz|type,
// followed by name bytes (4-byte padded) then desc bytes (4-byte padded).
// namesz is len(name) exactly as given — callers that want a terminator
// byte include it in name themselves (see internal/note).
func EncodeNoteRecord(endian Endian, name string, typ uint32, desc []byte) []byte {
	ord := endian.order()
	namePad := padTo4(len(name))
	descPad := padTo4(len(desc))

	b := make([]byte, NoteHeaderSize+namePad+descPad)
	ord.PutUint32(b[0:4], uint32(len(name)))
	ord.PutUint32(b[4:8], uint32(len(desc)))
	ord.PutUint32(b[8:12], typ)
	copy(b[NoteHeaderSize:NoteHeaderSize+len(name)], name)
	copy(b[NoteHeaderSize+namePad:NoteHeaderSize+namePad+len(desc)], desc)

	return b
}

// DecodeNoteRecord unpacks one note record starting at the front of b,
// returning the record's name, type, descriptor, and the number of bytes
// consumed.
func DecodeNoteRecord(endian Endian, b []byte) (name string, typ uint32, desc []byte, consumed int, err error) {
	ord := endian.order()
	if len(b) < NoteHeaderSize {
		return "", 0, nil, 0, fmt.Errorf("note record shorter than header (%d bytes)", len(b))
	}
	namesz := int(ord.Uint32(b[0:4]))
	descsz := int(ord.Uint32(b[4:8]))
	typ = ord.Uint32(b[8:12])

	namePad := padTo4(namesz)
	descPad := padTo4(descsz)
	total := NoteHeaderSize + namePad + descPad
	if len(b) < total {
		return "", 0, nil, 0, fmt.Errorf("note record truncated: have %d bytes, need %d", len(b), total)
	}

	name = string(b[NoteHeaderSize : NoteHeaderSize+namesz])
	desc = append([]byte(nil), b[NoteHeaderSize+namePad:NoteHeaderSize+namePad+descsz]...)

	return name, typ, desc, total, nil
}

func padTo4(n int) int {
	return (n + 3) &^ 3
}
