// Package xlat implements the address translator (C2): mapping a
// (core-id, cpu-local-address) pair to an SoC-global address via a
// JSON-described region table, grounded on the original
// modules/addtranslate.py's positional, first-match-wins lookup.
package xlat

import (
	"fmt"
	"os"
	"strconv"

	json "github.com/goccy/go-json"
)

// Region is one entry in a core's region list: addresses in
// [CPULocalAddr, CPULocalAddr+RegionSize) map to SoCAddr+offset.
type Region struct {
	CPULocalAddr uint64
	SoCAddr      uint64
	RegionSize   uint64
}

// Table is the full translation table, keyed positionally: core-id N
// indexes the N-th entry of the JSON "cores" object in declaration order,
// exactly as modules/addtranslate.py does with list(data['cores'].values()).
type Table struct {
	byCoreIndex [][]Region
}

// rawRegion mirrors the hex-string fields of the translation JSON.
type rawRegion struct {
	CPULocalAddr string `json:"cpulocaladdr"`
	SoCAddr      string `json:"socaddr"`
	RegionSize   string `json:"regionsize"`
}

type rawCore struct {
	Info []rawRegion `json:"info"`
}

type rawDoc struct {
	Cores map[string]rawCore `json:"cores"`
}

// Load reads and parses the translation JSON at path. JSON parse errors are
// fatal to the run, per spec §4.2/§6.
//
//	{ "cores": { "<label>": { "info": [ {"cpulocaladdr": "0x...", ...} ] } } }
//
// The labels are decorative; only declaration order matters, because the
// original indexes list(data['cores'].values()) by integer core-id.
func Load(path string) (*Table, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read translation table %q: %w", path, err)
	}

	var doc rawDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse translation table %q: %w", path, err)
	}

	// Go map iteration order is randomized; the JSON decoder does not
	// preserve key order for a map[string]rawCore, so the declaration order
	// of the "cores" keys is recovered by a separate token walk and the map
	// is read in that order, the way list(dict.values()) would in the
	// source language.
	order, err := orderedCoreKeys(raw)
	if err != nil {
		return nil, fmt.Errorf("parse translation table %q: %w", path, err)
	}

	t := &Table{byCoreIndex: make([][]Region, 0, len(order))}
	for _, key := range order {
		core, ok := doc.Cores[key]
		if !ok {
			continue
		}
		regions := make([]Region, 0, len(core.Info))
		for _, ri := range core.Info {
			local, err := parseHex(ri.CPULocalAddr)
			if err != nil {
				return nil, fmt.Errorf("parse translation table %q: cpulocaladdr: %w", path, err)
			}
			soc, err := parseHex(ri.SoCAddr)
			if err != nil {
				return nil, fmt.Errorf("parse translation table %q: socaddr: %w", path, err)
			}
			size, err := parseHex(ri.RegionSize)
			if err != nil {
				return nil, fmt.Errorf("parse translation table %q: regionsize: %w", path, err)
			}
			regions = append(regions, Region{CPULocalAddr: local, SoCAddr: soc, RegionSize: size})
		}
		t.byCoreIndex = append(t.byCoreIndex, regions)
	}

	return t, nil
}

func parseHex(s string) (uint64, error) {
	return strconv.ParseUint(trimHexPrefix(s), 16, 64)
}

func trimHexPrefix(s string) string {
	if len(s) > 2 && (s[0:2] == "0x" || s[0:2] == "0X") {
		return s[2:]
	}
	return s
}

// NewTableForTest builds a Table directly from a list of per-core-index
// region lists, bypassing JSON parsing. Exported for use by other
// packages' tests (e.g. internal/segment) that need a translation table
// without a fixture file on disk.
func NewTableForTest(byCoreIndex [][]Region) *Table {
	return &Table{byCoreIndex: byCoreIndex}
}

// Translate maps addr for coreID through table. If coreID has no entry, or
// no region in its list matches, addr passes through unchanged.
func Translate(table *Table, coreID uint32, addr uint64) uint64 {
	if table == nil || int(coreID) >= len(table.byCoreIndex) {
		return addr
	}
	for _, r := range table.byCoreIndex[coreID] {
		if addr >= r.CPULocalAddr && addr < r.CPULocalAddr+r.RegionSize {
			return r.SoCAddr + (addr - r.CPULocalAddr)
		}
	}
	return addr
}
