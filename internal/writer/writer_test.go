package writer

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tiops/genimage/internal/codec"
	"github.com/tiops/genimage/internal/note"
	"github.com/tiops/genimage/internal/segment"
)

// Boundary scenario 1: single class32 LE input, one PT_LOAD at vaddr 0x1000
// size 0x100, no merge, no xlat, no xip.
func TestAssembleSingleLoadSegment(t *testing.T) {
	class := codec.Class32
	endian := codec.LittleEndian

	nb := note.NewBuilder(endian).
		AddVendor().
		AddSegmentMap([]uint8{0}).
		AddEntryPoints(class, []note.EntryPoint{{CoreID: 0, Entry: 0x1000}})
	notePayload := nb.Bytes()

	noteSeg := segment.Segment{
		Header: codec.ProgHeaderFields{Type: 4, FileSz: uint64(len(notePayload)), MemSz: uint64(len(notePayload))},
		Data:   notePayload,
	}
	loadSeg := segment.Segment{
		Header: codec.ProgHeaderFields{Type: 1, VAddr: 0x1000, PAddr: 0x1000, FileSz: 0x100, MemSz: 0x100, Align: 0x1000},
		Data:   make([]byte, 0x100),
	}

	var donor codec.ELFHeaderFields
	donor.Ident[0] = 0x7f
	donor.Ident[1] = 'E'
	donor.Ident[2] = 'L'
	donor.Ident[3] = 'F'
	donor.Ident[4] = 1
	donor.Ident[5] = 1
	donor.Type = 2
	donor.Machine = 0x28
	donor.Version = 1
	donor.Entry = 0x1000

	out, err := Assemble(class, endian, donor, []segment.Segment{noteSeg, loadSeg})
	require.NoError(t, err)

	wantLoadOffset := codec.ELFHeaderSize32 + 2*codec.ProgHeaderSize32 + len(notePayload)
	gotHeader, err := codec.DecodeELFHeader(class, endian, out[:codec.ELFHeaderSize32], "out")
	require.NoError(t, err)
	require.Equal(t, uint16(2), gotHeader.PHNum)
	require.EqualValues(t, codec.ELFHeaderSize32, gotHeader.PHOff)
	require.Zero(t, gotHeader.SHOff)

	phtOff := codec.ELFHeaderSize32
	notePH, err := codec.DecodeProgHeader(class, endian, out[phtOff:phtOff+codec.ProgHeaderSize32], "out")
	require.NoError(t, err)
	require.EqualValues(t, codec.ELFHeaderSize32+2*codec.ProgHeaderSize32, notePH.Offset)

	loadPH, err := codec.DecodeProgHeader(class, endian, out[phtOff+codec.ProgHeaderSize32:phtOff+2*codec.ProgHeaderSize32], "out")
	require.NoError(t, err)
	require.EqualValues(t, wantLoadOffset, loadPH.Offset)
	require.EqualValues(t, 0x1000, loadPH.VAddr)
	require.EqualValues(t, 0x100, loadPH.FileSz)
	require.Equal(t, loadPH.FileSz, loadPH.MemSz)
}

func TestAssembleOffsetsAreCumulative(t *testing.T) {
	class := codec.Class64
	endian := codec.LittleEndian

	segs := []segment.Segment{
		{Header: codec.ProgHeaderFields{Type: 4, FileSz: 40, MemSz: 40}, Data: make([]byte, 40)},
		{Header: codec.ProgHeaderFields{Type: 1, VAddr: 0x1000, FileSz: 16, MemSz: 16}, Data: make([]byte, 16)},
		{Header: codec.ProgHeaderFields{Type: 1, VAddr: 0x2000, FileSz: 32, MemSz: 32}, Data: make([]byte, 32)},
	}

	out, err := Assemble(class, endian, codec.ELFHeaderFields{}, segs)
	require.NoError(t, err)

	base := codec.ELFHeaderSize64 + len(segs)*codec.ProgHeaderSize64
	wantOffsets := []uint64{uint64(base), uint64(base) + 40, uint64(base) + 40 + 16}

	for i, want := range wantOffsets {
		phOff := codec.ELFHeaderSize64 + i*codec.ProgHeaderSize64
		ph, err := codec.DecodeProgHeader(class, endian, out[phOff:phOff+codec.ProgHeaderSize64], "out")
		require.NoError(t, err)
		require.Equal(t, want, ph.Offset)
	}

	require.Equal(t, base+40+16+32, len(out))
}
