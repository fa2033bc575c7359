package plansync

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/tidwall/jsonc"

	"github.com/starford/gtmkit/internal/schema"
)

// decodeStep reads a step JSON object. Comments and trailing commas left by
// hand edits are tolerated.
func decodeStep(data []byte) (map[string]any, error) {
	var out map[string]any
	if err := json.Unmarshal(jsonc.ToJSON(data), &out); err != nil {
		return nil, err
	}
	if out == nil {
		return nil, fmt.Errorf("top-level value is not an object")
	}
	return out, nil
}

// fieldOrder returns the keys of data with schema fields first, in schema
// order, and any other keys sorted after them.
func fieldOrder(st *schema.Step, data map[string]any) []string {
	out := make([]string, 0, len(data))
	for _, name := range st.FieldNames() {
		if _, ok := data[name]; ok {
			out = append(out, name)
		}
	}
	var extra []string
	for k := range data {
		if !st.Known(k) {
			extra = append(extra, k)
		}
	}
	slices.Sort(extra)
	return append(out, extra...)
}

// encodeStep writes data as an indented JSON object with keys in the given
// order. encoding/json would sort them.
func encodeStep(data map[string]any, order []string) ([]byte, error) {
	var raw bytes.Buffer
	raw.WriteByte('{')
	for i, k := range order {
		if i > 0 {
			raw.WriteByte(',')
		}
		kb, err := marshal(k)
		if err != nil {
			return nil, err
		}
		vb, err := marshal(data[k])
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", k, err)
		}
		raw.Write(kb)
		raw.WriteByte(':')
		raw.Write(vb)
	}
	raw.WriteByte('}')

	var out bytes.Buffer
	if err := json.Indent(&out, raw.Bytes(), "", "  "); err != nil {
		return nil, err
	}
	out.WriteByte('\n')
	return out.Bytes(), nil
}

func marshal(v any) ([]byte, error) {
	var b bytes.Buffer
	enc := json.NewEncoder(&b)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(b.Bytes(), "\n"), nil
}
