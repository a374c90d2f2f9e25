// Package writer assembles the final ELF byte stream (C5): ELF header,
// then program-header table, then segment payloads, computing file offsets
// as it goes. Grounded on the teacher's internal/elfcore/writer.go
// (WriteCore's header -> PHT -> note -> loads ordering) and the original
// modules/elf.py's __generate_pht/__update_elfh offset bookkeeping.
package writer

import (
	"fmt"
	"os"

	"github.com/tiops/genimage/internal/codec"
	"github.com/tiops/genimage/internal/segment"
)

// Assemble builds the complete output byte stream for segs (index 0 must
// be the synthesized NOTE segment; see §4.4 "final assembly order").
// donor supplies e_ident, machine, type, version, and entry; PHOff/PHNum/
// SHOff/SHNum/SHStrNdx are recomputed here per §4.1/§4.5.
func Assemble(class codec.Class, endian codec.Endian, donor codec.ELFHeaderFields, segs []segment.Segment) ([]byte, error) {
	ehSize := codec.ELFHeaderSize(class)
	phSize := codec.ProgHeaderSize(class)
	phnum := len(segs)

	header := donor
	header.PHOff = uint64(ehSize)
	header.PHNum = uint16(phnum)
	header.SHOff = 0
	header.SHNum = 0
	header.SHStrNdx = 0
	header.EHSize = uint16(ehSize)
	header.PHEntSize = uint16(phSize)

	total := ehSize + phnum*phSize
	for _, s := range segs {
		total += int(s.Header.FileSz)
	}

	out := make([]byte, 0, total)
	out = append(out, codec.EncodeELFHeader(class, endian, header)...)

	offset := uint64(ehSize) + uint64(phnum)*uint64(phSize)
	phts := make([]byte, 0, phnum*phSize)
	payloads := make([]byte, 0, total-ehSize-phnum*phSize)

	for _, s := range segs {
		h := s.Header
		h.Offset = offset
		phts = append(phts, codec.EncodeProgHeader(class, endian, h)...)
		payloads = append(payloads, s.Data...)
		offset += h.FileSz
	}

	out = append(out, phts...)
	out = append(out, payloads...)

	if len(out) != total {
		return nil, fmt.Errorf("internal error: assembled %d bytes, expected %d", len(out), total)
	}

	return out, nil
}

// WriteFile truncates (or creates) path and writes data in one call, the
// "atomic at file-level" write §4.5/§5 calls for.
func WriteFile(path string, data []byte) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("write output %q: %w", path, err)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("write output %q: %w", path, err)
	}

	return nil
}
