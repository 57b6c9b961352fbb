package attribute

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// MarshalJSON renders the snapshots as a single object whose members keep
// iteration order: {"Cycle 1": {...}, "Cycle 2": {...}}.
func (c Cycles) MarshalJSON() ([]byte, error) {
	if c == nil {
		return []byte("null"), nil
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, s := range c {
		if i > 0 {
			buf.WriteByte(',')
		}
		label, err := json.Marshal(s.Label)
		if err != nil {
			return nil, err
		}
		values, err := json.Marshal(s.Values)
		if err != nil {
			return nil, fmt.Errorf("marshal %s: %w", s.Label, err)
		}
		buf.Write(label)
		buf.WriteByte(':')
		buf.Write(values)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads the object form written by MarshalJSON, preserving
// member order.
func (c *Cycles) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*c = nil
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("cycles: expected object, got %v", tok)
	}
	out := Cycles{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		label, ok := tok.(string)
		if !ok {
			return fmt.Errorf("cycles: expected label, got %v", tok)
		}
		var values Mapping
		if err := dec.Decode(&values); err != nil {
			return fmt.Errorf("cycles: decode %s: %w", label, err)
		}
		out = append(out, Snapshot{Label: label, Values: values})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*c = out
	return nil
}

// DecodeRecord parses a JSON payload of the given kind.
func DecodeRecord(kind Kind, data []byte) (Record, error) {
	switch kind {
	case KindMapping:
		var m Mapping
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("decode mapping: %w", err)
		}
		return m, nil
	case KindCycles:
		var c Cycles
		if err := json.Unmarshal(data, &c); err != nil {
			return nil, fmt.Errorf("decode cycles: %w", err)
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown record kind %q", kind)
	}
}
