// Command genimage composes one multi-core ELF image from several
// per-core ELF inputs and optional static-shared-object inputs, per
// spec.md §6. Flag surface and narration style are grounded on the
// teacher's cmd/livecore/main.go (Config struct, phase-by-phase
// reporting), upgraded to cobra/pflag and zerolog per SPEC_FULL.md's
// AMBIENT STACK section.
package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/tiops/genimage/internal/note"
	"github.com/tiops/genimage/internal/pipeline"
	"github.com/tiops/genimage/internal/segment"
)

type cliConfig struct {
	coreImgs        []string
	ssos            []string
	mergeSegments   bool
	tolerance       uint64
	ignoreContext   bool
	xip             string
	xlatPath        string
	maxSegmentSize  uint64
	output          string
	customNoteName  string
	customNoteFile  string
	runStatusNote   bool
	offsetAlign     uint64 // reserved, carried from the original's unused -a flag.
	sizeAlign       uint64 // reserved, carried from the original's unused -z flag.
	dumpSegments    bool
	verbose         bool
}

func main() {
	cfg := &cliConfig{}

	root := &cobra.Command{
		Use:   "genimage",
		Short: "Compose a multi-core ELF image from per-core inputs",
		Long: "genimage takes ELF files destined for different CPUs of a\n" +
			"heterogeneous SoC and combines their loadable segments into a\n" +
			"single ELF image, with a synthesized NOTE segment recording\n" +
			"vendor identity, segment-to-core mapping, and per-core entry points.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cfg)
		},
	}

	flags := root.Flags()
	flags.StringArrayVarP(&cfg.coreImgs, "core-img", "i", nil, "per-core ELF input as <coreid>:<path> (repeatable)")
	flags.StringArrayVar(&cfg.ssos, "sso", nil, "static shared object input path (repeatable)")
	flags.BoolVar(&cfg.mergeSegments, "merge-segments", false, "merge adjacent segments under tolerance")
	flags.Uint64VarP(&cfg.tolerance, "tolerance", "t", 0, "merge tolerance limit in bytes")
	flags.BoolVar(&cfg.ignoreContext, "ignore-context", false, "ignore originating core-id when merging")
	flags.StringVar(&cfg.xip, "xip", "", "XIP address range as <start>:<end> (hex)")
	flags.StringVar(&cfg.xlatPath, "xlat", "", "address-translation JSON path")
	flags.Uint64Var(&cfg.maxSegmentSize, "max-segment-size", 0, "split segments larger than this many bytes")
	flags.StringVarP(&cfg.output, "output", "o", "multicoreelf.out", "output file path")
	flags.StringVar(&cfg.customNoteName, "custom-note-name", "", "name for an optional custom note")
	flags.StringVar(&cfg.customNoteFile, "custom-note-file", "", "file whose contents become the custom note's descriptor")
	flags.BoolVar(&cfg.runStatusNote, "run-status-note", false, "include an empty run-status note for the caller to fill in later")
	flags.Uint64VarP(&cfg.offsetAlign, "offset-align", "a", 0, "reserved; carried from the original tool's unused knob")
	flags.Uint64VarP(&cfg.sizeAlign, "size-align", "z", 0, "reserved; carried from the original tool's unused knob")
	flags.BoolVar(&cfg.dumpSegments, "dump-segments", false, "log each final segment after merge")
	flags.BoolVarP(&cfg.verbose, "verbose", "v", false, "verbose logging")

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "genimage: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg *cliConfig) error {
	level := zerolog.InfoLevel
	if cfg.verbose {
		level = zerolog.DebugLevel
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()

	if len(cfg.coreImgs) == 0 {
		return fmt.Errorf("at least one --core-img is required")
	}

	p := pipeline.New(log)
	for _, spec := range cfg.coreImgs {
		coreID, path, ok := strings.Cut(spec, ":")
		if !ok {
			return fmt.Errorf("invalid --core-img %q: expected <coreid>:<path>", spec)
		}
		if err := p.AddCoreImage(coreID, path); err != nil {
			return err
		}
	}
	for _, path := range cfg.ssos {
		p.AddSSO(path)
	}

	pcfg := pipeline.Config{
		MaxSegmentSize: cfg.maxSegmentSize,
		Segmerge:       cfg.mergeSegments,
		TolLimit:       cfg.tolerance,
		IgnoreContext:  cfg.ignoreContext,
		XlatPath:       cfg.xlatPath,
		OutputPath:     cfg.output,
		DumpSegments:   cfg.dumpSegments,
	}

	if cfg.customNoteName != "" {
		data, err := os.ReadFile(cfg.customNoteFile)
		if err != nil && cfg.customNoteFile != "" {
			return fmt.Errorf("read custom note file: %w", err)
		}
		pcfg.CustomNote = &note.Custom{Name: cfg.customNoteName, Data: data}
	}
	if cfg.runStatusNote {
		pcfg.RunStatusNote = &note.Custom{Name: "Run Status", Data: nil}
	}

	if cfg.xip != "" {
		r, err := parseRange(cfg.xip)
		if err != nil {
			return err
		}
		return p.GenerateXIP(pcfg, r)
	}

	return p.Generate(pcfg)
}

func parseRange(s string) (segment.Range, error) {
	startStr, endStr, ok := strings.Cut(s, ":")
	if !ok {
		return segment.Range{}, fmt.Errorf("invalid range %q: expected <start>:<end>", s)
	}
	start, err := strconv.ParseUint(strings.TrimPrefix(startStr, "0x"), 16, 64)
	if err != nil {
		return segment.Range{}, fmt.Errorf("invalid range start %q: %w", startStr, err)
	}
	end, err := strconv.ParseUint(strings.TrimPrefix(endStr, "0x"), 16, 64)
	if err != nil {
		return segment.Range{}, fmt.Errorf("invalid range end %q: %w", endStr, err)
	}
	if end <= start {
		return segment.Range{}, fmt.Errorf("invalid range %q: end must be greater than start", s)
	}
	return segment.Range{Start: start, End: end}, nil
}
