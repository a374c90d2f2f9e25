// Package reader adapts the stdlib debug/elf parser into the shape this
// tool's pipeline needs: iteration over PT_LOAD program headers plus the
// whole-file entry address, for both 32/64-bit and either endianness.
// spec.md §1 treats this as an external collaborator ("an existing ELF
// reader is assumed available"); debug/elf is the idiomatic choice here,
// the same one several retrieval-pack files use to read donor ELF inputs
// (e.g. zboralski-galago's emulator, google-pprof's elfexec).
package reader

import (
	"bytes"
	"debug/elf"
	"fmt"
	"os"

	"github.com/tiops/genimage/internal/codec"
)

// LoadSegment is one PT_LOAD program header plus its raw file data, in the
// field set spec.md §1 requires from the reader collaborator.
type LoadSegment struct {
	Type   uint32
	Offset uint64
	VAddr  uint64
	PAddr  uint64
	FileSz uint64
	MemSz  uint64
	Flags  uint32
	Align  uint64
	Data   []byte
}

// Input is everything this tool's pipeline extracts from one donor ELF
// file: its class/endianness, raw e_ident, entry address, and the set of
// non-empty PT_LOAD segments.
type Input struct {
	Class    codec.Class
	Endian   codec.Endian
	Ident    [16]byte
	Entry    uint64
	Segments []LoadSegment
}

// Load opens path, parses it as ELF32/64 LE/BE, and extracts load segments
// with p_filesz != 0 (§3 "this tool discards zero-filesz input segments
// before insertion"). All other program-header types and all section
// headers are ignored (§6).
func Load(path string) (*Input, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("bad input %q: %w", path, err)
	}

	class, err := codec.ClassFromIdent(raw, path)
	if err != nil {
		return nil, err
	}
	endian, err := codec.EndianFromIdent(raw, path)
	if err != nil {
		return nil, err
	}

	f, err := elf.NewFile(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("bad input %q: %w", path, err)
	}
	defer f.Close()

	in := &Input{Class: class, Endian: endian, Entry: f.Entry}
	copy(in.Ident[:], raw[:16])

	for _, prog := range f.Progs {
		if prog.Type != elf.PT_LOAD || prog.Filesz == 0 {
			continue
		}
		data := make([]byte, prog.Filesz)
		if _, err := prog.ReadAt(data, 0); err != nil {
			return nil, fmt.Errorf("bad input %q: read segment at vaddr 0x%x: %w", path, prog.Vaddr, err)
		}
		in.Segments = append(in.Segments, LoadSegment{
			Type:   uint32(prog.Type),
			Offset: prog.Off,
			VAddr:  prog.Vaddr,
			PAddr:  prog.Paddr,
			FileSz: prog.Filesz,
			MemSz:  prog.Memsz,
			Flags:  uint32(prog.Flags),
			Align:  prog.Align,
			Data:   data,
		})
	}

	return in, nil
}

// HeaderFields returns the decoded donor ELF header fields, used by the
// writer to copy e_ident and seed header fields verbatim.
func (in *Input) HeaderFields(path string) (codec.ELFHeaderFields, error) {
	size := codec.ELFHeaderSize(in.Class)
	raw, err := os.ReadFile(path)
	if err != nil {
		return codec.ELFHeaderFields{}, fmt.Errorf("bad input %q: %w", path, err)
	}
	if len(raw) < size {
		return codec.ELFHeaderFields{}, &codec.BadHeaderError{Path: path, Reason: "file shorter than ELF header"}
	}
	return codec.DecodeELFHeader(in.Class, in.Endian, raw[:size], path)
}
