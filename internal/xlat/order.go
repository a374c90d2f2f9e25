package xlat

import (
	"bytes"
	"fmt"

	json "github.com/goccy/go-json"
)

// orderedCoreKeys walks the raw JSON token stream to recover the
// declaration order of the "cores" object's keys. encoding/json-compatible
// decoders (goccy/go-json included) unmarshal objects into Go maps in
// randomized order, but the translation table's positional lookup
// (core-id N -> N-th declared core) depends on that order surviving.
func orderedCoreKeys(raw []byte) ([]string, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))

	if err := expectDelim(dec, '{'); err != nil {
		return nil, err
	}

	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected top-level token %v", tok)
		}
		if key == "cores" {
			return readObjectKeys(dec)
		}
		if err := skipValue(dec); err != nil {
			return nil, err
		}
	}

	return nil, fmt.Errorf(`missing top-level "cores" object`)
}

func readObjectKeys(dec *json.Decoder) ([]string, error) {
	if err := expectDelim(dec, '{'); err != nil {
		return nil, err
	}

	var keys []string
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected key token %v", tok)
		}
		keys = append(keys, key)
		if err := skipValue(dec); err != nil {
			return nil, err
		}
	}

	// consume closing '}'
	if _, err := dec.Token(); err != nil {
		return nil, err
	}

	return keys, nil
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	d, ok := tok.(json.Delim)
	if !ok || d != want {
		return fmt.Errorf("expected delimiter %q, got %v", want, tok)
	}
	return nil
}

// skipValue consumes exactly one JSON value (scalar, array, or object)
// from dec, leaving the cursor after it.
func skipValue(dec *json.Decoder) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	d, ok := tok.(json.Delim)
	if !ok {
		return nil // scalar already consumed
	}
	depth := 1
	for depth > 0 {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		if dd, ok := tok.(json.Delim); ok {
			switch dd {
			case '{', '[':
				depth++
			case '}', ']':
				depth--
			}
		}
	}
	_ = d
	return nil
}
