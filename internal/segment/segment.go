// Package segment implements the segment engine (C4): splitting oversize
// segments, sorting by address, merging adjacent segments under tolerance
// and context rules, and address translation. Grounded on the original
// modules/multicoreelf.py and modules/elf.py merge/sort logic, generalized
// to the split and range-filter behavior spec.md adds.
package segment

import (
	"fmt"
	"sort"

	"github.com/tiops/genimage/internal/codec"
	"github.com/tiops/genimage/internal/xlat"
)

// SSOCoreID is the reserved core-id sentinel for static shared objects,
// distinct from any real numeric core id (§3 "Input descriptor").
const SSOCoreID uint32 = 0xFFFFFFFF

// Range is a closed interval [Start, End] with End > Start.
type Range struct {
	Start uint64
	End   uint64
}

// Contains reports whether addr lies within the closed range, per the
// original's fully-closed start <= addr <= end (§9 "range filter
// inclusivity").
func (r Range) Contains(addr uint64) bool {
	return addr >= r.Start && addr <= r.End
}

// Segment is one loadable segment plus its originating core-id.
type Segment struct {
	Header  codec.ProgHeaderFields
	Data    []byte
	Context uint32
}

// OverlappingSegmentsError reports a merge candidate whose vaddr lies
// strictly below the end of its predecessor — a negative gap, fatal per
// §9's resolution of the source's unsigned-subtraction bug.
type OverlappingSegmentsError struct {
	AVAddr, AEnd uint64
	BVAddr       uint64
}

func (e *OverlappingSegmentsError) Error() string {
	return fmt.Sprintf("overlapping segments: predecessor ends at 0x%x but next segment starts at 0x%x (vaddr 0x%x)",
		e.AEnd, e.BVAddr, e.BVAddr)
}

// Filter reports whether vaddr passes the range filter: accept (if set)
// must contain it, and ignore (if set) must not.
func Filter(vaddr uint64, accept, ignore *Range) bool {
	if accept != nil && !accept.Contains(vaddr) {
		return false
	}
	if ignore != nil && ignore.Contains(vaddr) {
		return false
	}
	return true
}

// Split breaks each segment larger than maxSize into ceil(N/maxSize)
// chunks of at most maxSize bytes, per §4.4. Chunk 0 keeps the original
// align; chunks after it get align=1. A maxSize of 0 disables splitting.
func Split(segs []Segment, maxSize uint64) []Segment {
	if maxSize == 0 {
		return segs
	}

	var out []Segment
	for _, s := range segs {
		n := s.Header.FileSz
		if n <= maxSize {
			out = append(out, s)
			continue
		}

		var off uint64
		chunk := 0
		for off < n {
			size := maxSize
			if n-off < size {
				size = n - off
			}

			align := s.Header.Align
			if chunk > 0 {
				align = 1
			}

			h := s.Header
			h.VAddr = s.Header.VAddr + off
			h.PAddr = s.Header.PAddr + off
			h.FileSz = size
			h.MemSz = size
			h.Align = align

			out = append(out, Segment{
				Header:  h,
				Data:    s.Data[off : off+size],
				Context: s.Context,
			})

			off += size
			chunk++
		}
	}
	return out
}

// Sort stably orders segs by ascending vaddr.
func Sort(segs []Segment) {
	sort.SliceStable(segs, func(i, j int) bool {
		return segs[i].Header.VAddr < segs[j].Header.VAddr
	})
}

// Merge runs the left-to-right, greedy, single-pass merge described in
// §4.4. segs must already be sorted by vaddr. If segmerge is false, segs
// is returned unchanged (matching get_merged_list's segmerge/len(>1)
// short-circuit in the original).
func Merge(segs []Segment, segmerge bool, tolLimit uint64, ignoreContext bool) ([]Segment, error) {
	if !segmerge || len(segs) < 2 {
		return segs, nil
	}

	merged := []Segment{segs[0]}
	for _, next := range segs[1:] {
		last := &merged[len(merged)-1]

		end := last.Header.VAddr + last.Header.FileSz
		if next.Header.VAddr < end {
			return nil, &OverlappingSegmentsError{
				AVAddr: last.Header.VAddr,
				AEnd:   end,
				BVAddr: next.Header.VAddr,
			}
		}
		gap := next.Header.VAddr - end

		eligible := gap <= tolLimit &&
			next.Header.VAddr != last.Header.VAddr &&
			(ignoreContext || next.Context == last.Context)

		if eligible {
			mergeInto(last, next, gap)
			continue
		}

		merged = append(merged, next)
	}

	return merged, nil
}

// mergeInto extends merger (A) with mergee (B), A being the earlier
// segment in sorted order: pad zero bytes for the gap, append B's data,
// widen align/filesz/memsz. Context stays A's.
func mergeInto(a *Segment, b Segment, gap uint64) {
	padded := make([]byte, 0, len(a.Data)+int(gap)+len(b.Data))
	padded = append(padded, a.Data...)
	padded = append(padded, make([]byte, gap)...)
	padded = append(padded, b.Data...)
	a.Data = padded

	if b.Header.Align > a.Header.Align {
		a.Header.Align = b.Header.Align
	}
	a.Header.FileSz = a.Header.FileSz + gap + b.Header.FileSz
	a.Header.MemSz = a.Header.FileSz
}

// Translate rewrites each segment's vaddr/paddr through table using its own
// context core-id, per §4.4 ("after merging... the NOTE segment is
// synthesized after translation and keeps zero addresses" — callers
// translate load segments only, before prepending the note).
func Translate(segs []Segment, table *xlat.Table) {
	if table == nil {
		return
	}
	for i := range segs {
		segs[i].Header.VAddr = xlat.Translate(table, segs[i].Context, segs[i].Header.VAddr)
		segs[i].Header.PAddr = xlat.Translate(table, segs[i].Context, segs[i].Header.PAddr)
	}
}

// Contexts returns the per-segment context core-ids truncated to uint8, in
// list order, for the segment-map note (§4.3 — "one per loadable segment
// in final order after merge").
func Contexts(segs []Segment) []uint8 {
	out := make([]uint8, len(segs))
	for i, s := range segs {
		out[i] = uint8(s.Context)
	}
	return out
}
