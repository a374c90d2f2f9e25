package pipeline

import (
	"debug/elf"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/tiops/genimage/internal/codec"
	"github.com/tiops/genimage/internal/segment"
)

// writeFixtureELF builds a minimal valid class32 LE ELF file with one
// PT_LOAD segment, for use as pipeline input.
func writeFixtureELF(t *testing.T, path string, vaddr uint64, data []byte, entry uint64) {
	t.Helper()

	const ehSize = codec.ELFHeaderSize32
	const phSize = codec.ProgHeaderSize32

	var donor codec.ELFHeaderFields
	donor.Ident[0], donor.Ident[1], donor.Ident[2], donor.Ident[3] = 0x7f, 'E', 'L', 'F'
	donor.Ident[4] = 1 // ELFCLASS32
	donor.Ident[5] = 1 // ELFDATA2LSB
	donor.Ident[6] = 1
	donor.Type = uint16(elf.ET_EXEC)
	donor.Machine = uint16(elf.EM_ARM)
	donor.Version = 1
	donor.Entry = entry
	donor.PHOff = ehSize
	donor.PHNum = 1
	donor.EHSize = ehSize
	donor.PHEntSize = phSize

	ph := codec.ProgHeaderFields{
		Type:   uint32(elf.PT_LOAD),
		Flags:  uint32(elf.PF_R | elf.PF_W),
		Offset: uint64(ehSize + phSize),
		VAddr:  vaddr,
		PAddr:  vaddr,
		FileSz: uint64(len(data)),
		MemSz:  uint64(len(data)),
		Align:  0x1000,
	}

	var out []byte
	out = append(out, codec.EncodeELFHeader(codec.Class32, codec.LittleEndian, donor)...)
	out = append(out, codec.EncodeProgHeader(codec.Class32, codec.LittleEndian, ph)...)
	out = append(out, data...)

	require.NoError(t, os.WriteFile(path, out, 0o644))
}

type fixtureSeg struct {
	vaddr uint64
	data  []byte
}

// writeFixtureELFMulti is writeFixtureELF generalized to several PT_LOAD
// segments in one donor file, for exercising intra-core merging.
func writeFixtureELFMulti(t *testing.T, path string, segs []fixtureSeg, entry uint64) {
	t.Helper()

	const ehSize = codec.ELFHeaderSize32
	const phSize = codec.ProgHeaderSize32

	var donor codec.ELFHeaderFields
	donor.Ident[0], donor.Ident[1], donor.Ident[2], donor.Ident[3] = 0x7f, 'E', 'L', 'F'
	donor.Ident[4] = 1
	donor.Ident[5] = 1
	donor.Ident[6] = 1
	donor.Type = uint16(elf.ET_EXEC)
	donor.Machine = uint16(elf.EM_ARM)
	donor.Version = 1
	donor.Entry = entry
	donor.PHOff = ehSize
	donor.PHNum = uint16(len(segs))
	donor.EHSize = ehSize
	donor.PHEntSize = phSize

	headerSize := ehSize + len(segs)*phSize
	offset := headerSize

	var phts []byte
	var payload []byte
	for _, s := range segs {
		ph := codec.ProgHeaderFields{
			Type:   uint32(elf.PT_LOAD),
			Flags:  uint32(elf.PF_R | elf.PF_W),
			Offset: uint64(offset),
			VAddr:  s.vaddr,
			PAddr:  s.vaddr,
			FileSz: uint64(len(s.data)),
			MemSz:  uint64(len(s.data)),
			Align:  0x1000,
		}
		phts = append(phts, codec.EncodeProgHeader(codec.Class32, codec.LittleEndian, ph)...)
		payload = append(payload, s.data...)
		offset += len(s.data)
	}

	var out []byte
	out = append(out, codec.EncodeELFHeader(codec.Class32, codec.LittleEndian, donor)...)
	out = append(out, phts...)
	out = append(out, payload...)

	require.NoError(t, os.WriteFile(path, out, 0o644))
}

func TestGenerateTwoCoresNoMerge(t *testing.T) {
	dir := t.TempDir()
	core0 := filepath.Join(dir, "core0.elf")
	core1 := filepath.Join(dir, "core1.elf")
	out := filepath.Join(dir, "out.elf")

	writeFixtureELF(t, core0, 0x1000, make([]byte, 0x100), 0x1000)
	writeFixtureELF(t, core1, 0x1100, make([]byte, 0x100), 0x1100)

	p := New(zerolog.Nop())
	require.NoError(t, p.AddCoreImage("0", core0))
	require.NoError(t, p.AddCoreImage("1", core1))

	require.NoError(t, p.Generate(Config{OutputPath: out}))

	f, err := elf.Open(out)
	require.NoError(t, err)
	defer f.Close()

	require.Len(t, f.Progs, 3) // NOTE + 2 LOAD, Segmerge is off so no merge.
	require.Equal(t, elf.PT_NOTE, f.Progs[0].Type)
}

func TestGenerateMergesAdjacentSameContext(t *testing.T) {
	dir := t.TempDir()
	core0 := filepath.Join(dir, "core0.elf")
	out := filepath.Join(dir, "out.elf")

	// Two adjacent PT_LOAD segments from the same core; Segmerge should
	// fold them into one before the note's segment map is built.
	writeFixtureELFMulti(t, core0, []fixtureSeg{
		{vaddr: 0x1000, data: make([]byte, 0x100)},
		{vaddr: 0x1100, data: make([]byte, 0x100)},
	}, 0x1000)

	p := New(zerolog.Nop())
	require.NoError(t, p.AddCoreImage("0", core0))

	require.NoError(t, p.Generate(Config{OutputPath: out, Segmerge: true}))

	f, err := elf.Open(out)
	require.NoError(t, err)
	defer f.Close()
	require.Len(t, f.Progs, 2) // NOTE + the merged LOAD.
	require.EqualValues(t, 0x200, f.Progs[1].Filesz)
}

func TestGenerateRejectsNonNumericCoreID(t *testing.T) {
	p := New(zerolog.Nop())
	err := p.AddCoreImage("core-a", "/nonexistent")
	require.Error(t, err)
	var pe *Error
	require.ErrorAs(t, err, &pe)
	require.Equal(t, KindBadInput, pe.Kind)
}

func TestGenerateXIPProducesTwoFiles(t *testing.T) {
	dir := t.TempDir()
	core0 := filepath.Join(dir, "core0.elf")
	out := filepath.Join(dir, "out.elf")

	// The one segment sits outside [0x60100000,0x60200000]: it belongs in
	// the base output, and the xip output should end up with NOTE only.
	writeFixtureELF(t, core0, 0x1000, make([]byte, 0x100), 0x1000)

	p := New(zerolog.Nop())
	require.NoError(t, p.AddCoreImage("0", core0))

	xipRange := segment.Range{Start: 0x60100000, End: 0x60200000}
	require.NoError(t, p.GenerateXIP(Config{OutputPath: out}, xipRange))

	_, err := os.Stat(out)
	require.NoError(t, err)
	_, err = os.Stat(out + "_xip")
	require.NoError(t, err)

	base, err := elf.Open(out)
	require.NoError(t, err)
	defer base.Close()
	require.Len(t, base.Progs, 2) // NOTE + the one out-of-range LOAD.

	xip, err := elf.Open(out + "_xip")
	require.NoError(t, err)
	defer xip.Close()
	require.Len(t, xip.Progs, 1) // NOTE only: no segment falls inside the range.
}
