// Package pipeline implements the multicore orchestrator (C6): it accepts
// input ELF/SSO descriptors, picks the output class/endianness, drives the
// segment engine, note builder, and ELF writer in the fixed state-machine
// order spec.md §4.6 describes, and emits one or two output files.
//
// Grounded on the teacher's cmd/livecore/main.go (Config struct, phase-by-
// phase narration of a linear pipeline) and the original genimage.py /
// modules/multicoreelf.py (add_elf / add_metadata / generate_multicoreelf
// driving the same stages in the same order).
package pipeline

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/tiops/genimage/internal/codec"
	"github.com/tiops/genimage/internal/note"
	"github.com/tiops/genimage/internal/reader"
	"github.com/tiops/genimage/internal/segment"
	"github.com/tiops/genimage/internal/writer"
	"github.com/tiops/genimage/internal/xlat"
)

// State is one stage of the single linear pipeline (§4.6 "State machine").
// Each state runs to completion before the next; no state is re-entered.
type State int

const (
	StateCollecting State = iota
	StateClassified
	StateSplitting
	StateSorting
	StateMerging
	StateTranslating
	StateNoting
	StateWriting
	StateDone
)

func (s State) String() string {
	return [...]string{
		"Collecting", "Classified", "Splitting", "Sorting",
		"Merging", "Translating", "Noting", "Writing", "Done",
	}[s]
}

// InputKind distinguishes a per-core ELF image from a static shared object.
type InputKind int

const (
	KindELF InputKind = iota
	KindSSO
)

type inputDescriptor struct {
	coreID uint32
	path   string
	kind   InputKind
}

// Config enumerates everything Generate needs beyond the input list, per
// spec.md §4.6.
type Config struct {
	MaxSegmentSize   uint64 // 0 means no splitting.
	Segmerge         bool
	TolLimit         uint64
	IgnoreContext    bool
	XlatPath         string // empty means no translation.
	CustomNote       *note.Custom
	RunStatusNote    *note.Custom // nil unless the caller requests one (§4.3).
	IgnoreRange      *segment.Range
	AcceptRange      *segment.Range
	OutputPath       string
	DumpSegments     bool // supplemented feature, §SUPPLEMENTED FEATURES.
}

// Pipeline is the multicore orchestrator. Its zero value is ready to use.
type Pipeline struct {
	inputs []inputDescriptor
	log    zerolog.Logger
}

// New creates a Pipeline that logs to log. A discarding logger is fine for
// non-verbose runs; the teacher's Verbose flag becomes the logger's level.
func New(log zerolog.Logger) *Pipeline {
	return &Pipeline{log: log}
}

// AddCoreImage registers a per-core ELF input. coreID must parse as an
// unsigned integer — the source stores core-id as a string but casts it to
// an integer at use-site; we reject non-numeric ids here instead (§9
// "Context core-id typing").
func (p *Pipeline) AddCoreImage(coreID, path string) error {
	id, err := strconv.ParseUint(coreID, 10, 32)
	if err != nil {
		return &Error{Kind: KindBadInput, Path: path, Field: "core-id", Err: fmt.Errorf("non-numeric core-id %q", coreID)}
	}
	p.inputs = append(p.inputs, inputDescriptor{coreID: uint32(id), path: path, kind: KindELF})
	return nil
}

// AddSSO registers a static shared object input. It carries the reserved
// SSO core-id sentinel rather than a caller-supplied id (§3).
func (p *Pipeline) AddSSO(path string) {
	p.inputs = append(p.inputs, inputDescriptor{coreID: segment.SSOCoreID, path: path, kind: KindSSO})
}

// Generate drives the full pipeline and writes the configured output
// file(s). If cfg.IgnoreRange or cfg.AcceptRange names an XIP split, call
// Generate twice (once per §4.4's "XIP mode produces two runs") — see
// GenerateXIP for the convenience wrapper that does this for you.
func (p *Pipeline) Generate(cfg Config) error {
	state := StateCollecting
	log := p.log.With().Str("output", cfg.OutputPath).Logger()
	log.Info().Str("state", state.String()).Int("inputs", len(p.inputs)).Msg("collecting inputs")

	if len(p.inputs) == 0 {
		return &Error{Kind: KindBadInput, Err: fmt.Errorf("no inputs registered")}
	}
	if cfg.AcceptRange != nil && cfg.AcceptRange.End <= cfg.AcceptRange.Start {
		return &Error{Kind: KindBadRange, Field: "accept_range", Err: fmt.Errorf("end <= start")}
	}
	if cfg.IgnoreRange != nil && cfg.IgnoreRange.End <= cfg.IgnoreRange.Start {
		return &Error{Kind: KindBadRange, Field: "ignore_range", Err: fmt.Errorf("end <= start")}
	}

	loaded := make([]*reader.Input, len(p.inputs))
	for i, in := range p.inputs {
		li, err := reader.Load(in.path)
		if err != nil {
			var bh *codec.BadHeaderError
			if errors.As(err, &bh) {
				return &Error{Kind: KindBadHeader, Path: in.path, Err: err}
			}
			return &Error{Kind: KindBadInput, Path: in.path, Err: err}
		}
		loaded[i] = li
	}

	state = StateClassified
	class, endian, donorIdx := classify(loaded)
	donorFields, err := loaded[donorIdx].HeaderFields(p.inputs[donorIdx].path)
	if err != nil {
		return &Error{Kind: KindBadHeader, Path: p.inputs[donorIdx].path, Err: err}
	}
	log.Info().Str("state", state.String()).
		Str("class", classLabel(class)).Str("endian", endianLabel(endian)).
		Str("donor", p.inputs[donorIdx].path).Msg("picked output class/endianness")

	var segs []segment.Segment
	entries := make([]note.EntryPoint, 0, len(p.inputs))
	for i, in := range p.inputs {
		entries = append(entries, note.EntryPoint{CoreID: in.coreID, Entry: loaded[i].Entry})
		for _, ls := range loaded[i].Segments {
			if !segment.Filter(ls.VAddr, cfg.AcceptRange, cfg.IgnoreRange) {
				continue
			}
			segs = append(segs, segment.Segment{
				Header: codec.ProgHeaderFields{
					Type:   ls.Type,
					Flags:  ls.Flags,
					Offset: ls.Offset,
					VAddr:  ls.VAddr,
					PAddr:  ls.PAddr,
					FileSz: ls.FileSz,
					MemSz:  ls.MemSz,
					Align:  ls.Align,
				},
				Data:    ls.Data,
				Context: in.coreID,
			})
		}
	}

	state = StateSplitting
	segs = segment.Split(segs, cfg.MaxSegmentSize)
	log.Info().Str("state", state.String()).Int("segments", len(segs)).Msg("split oversize segments")

	state = StateSorting
	segment.Sort(segs)
	log.Info().Str("state", state.String()).Msg("sorted segments by vaddr")

	state = StateMerging
	segs, err = segment.Merge(segs, cfg.Segmerge, cfg.TolLimit, cfg.IgnoreContext)
	if err != nil {
		var oe *segment.OverlappingSegmentsError
		if ok := asOverlap(err, &oe); ok {
			return &Error{Kind: KindOverlappingSegments, Segment: fmt.Sprintf("vaddr=0x%x", oe.BVAddr), Err: err}
		}
		return &Error{Kind: KindOverlappingSegments, Err: err}
	}
	log.Info().Str("state", state.String()).Int("segments", len(segs)).Msg("merged adjacent segments")

	if cfg.DumpSegments {
		for _, s := range segs {
			log.Debug().
				Uint64("vaddr", s.Header.VAddr).
				Uint64("filesz", s.Header.FileSz).
				Uint32("context", s.Context).
				Msg("segment")
		}
	}

	state = StateTranslating
	var table *xlat.Table
	if cfg.XlatPath != "" {
		table, err = xlat.Load(cfg.XlatPath)
		if err != nil {
			return &Error{Kind: KindBadTranslation, Path: cfg.XlatPath, Err: err}
		}
		segment.Translate(segs, table)
	}
	log.Info().Str("state", state.String()).Bool("translated", table != nil).Msg("translated addresses")

	state = StateNoting
	nb := note.NewBuilder(endian).
		AddVendor().
		AddSegmentMap(segment.Contexts(segs)).
		AddEntryPoints(class, entries)
	if cfg.CustomNote != nil {
		nb = nb.AddCustom(*cfg.CustomNote)
	}
	if cfg.RunStatusNote != nil {
		nb = nb.AddCustom(*cfg.RunStatusNote)
	}
	notePayload := nb.Bytes()

	noteSeg := segment.Segment{
		Header: codec.ProgHeaderFields{
			Type:   4, // PT_NOTE
			Flags:  0,
			VAddr:  0,
			PAddr:  0,
			FileSz: uint64(len(notePayload)),
			MemSz:  uint64(len(notePayload)),
			Align:  0,
		},
		Data: notePayload,
	}
	final := append([]segment.Segment{noteSeg}, segs...)
	log.Info().Str("state", state.String()).Int("note_bytes", len(notePayload)).Msg("synthesized note segment")

	state = StateWriting
	out, err := writer.Assemble(class, endian, donorFields, final)
	if err != nil {
		return &Error{Kind: KindWriteError, Path: cfg.OutputPath, Err: err}
	}
	if err := writer.WriteFile(cfg.OutputPath, out); err != nil {
		return &Error{Kind: KindWriteError, Path: cfg.OutputPath, Err: err}
	}
	log.Info().Str("state", state.String()).Int("bytes", len(out)).Msg("wrote output")

	state = StateDone
	log.Info().Str("state", state.String()).Msg("pipeline complete")
	return nil
}

// GenerateXIP runs the pipeline twice with complementary range filters,
// producing baseOutput (segments outside xipRange) and baseOutput+"_xip"
// (segments inside it), per §4.4/§6. No state leaks between the two runs:
// each gets its own Config derived from base.
func (p *Pipeline) GenerateXIP(base Config, xipRange segment.Range) error {
	if xipRange.End <= xipRange.Start {
		return &Error{Kind: KindBadRange, Field: "xip", Err: fmt.Errorf("end <= start")}
	}

	outCfg := base
	outCfg.IgnoreRange = &xipRange
	outCfg.AcceptRange = nil
	if err := p.Generate(outCfg); err != nil {
		return err
	}

	xipCfg := base
	xipCfg.AcceptRange = &xipRange
	xipCfg.IgnoreRange = nil
	xipCfg.OutputPath = base.OutputPath + "_xip"
	return p.Generate(xipCfg)
}

// classify picks the output class per §4.6: the first class64 input wins,
// with that input as donor; otherwise class32 with the first input as
// donor. Endianness follows the donor.
func classify(loaded []*reader.Input) (codec.Class, codec.Endian, int) {
	for i, in := range loaded {
		if in.Class == codec.Class64 {
			return codec.Class64, in.Endian, i
		}
	}
	return codec.Class32, loaded[0].Endian, 0
}

func classLabel(c codec.Class) string {
	if c == codec.Class64 {
		return "class64"
	}
	return "class32"
}

func endianLabel(e codec.Endian) string {
	if e == codec.BigEndian {
		return "big"
	}
	return "little"
}

func asOverlap(err error, target **segment.OverlappingSegmentsError) bool {
	oe, ok := err.(*segment.OverlappingSegmentsError)
	if ok {
		*target = oe
	}
	return ok
}
