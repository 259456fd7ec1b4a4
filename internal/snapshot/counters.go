package snapshot

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/edgard/chatkeeper/internal/kvstore"
)

// Counters is one day's {userId: count} table. It encodes as a JSON object
// and keeps field order in both directions, since ranking ties are broken by
// the order senders first appeared.
type Counters []kvstore.Counter

// Get returns the count for field, or 0.
func (c Counters) Get(field string) int64 {
	for _, e := range c {
		if e.Field == field {
			return e.Value
		}
	}
	return 0
}

// MarshalJSON writes the table as an object in field order.
func (c Counters) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range c {
		if i > 0 {
			buf.WriteByte(',')
		}
		name, err := json.Marshal(e.Field)
		if err != nil {
			return nil, err
		}
		buf.Write(name)
		buf.WriteByte(':')
		buf.WriteString(strconv.FormatInt(e.Value, 10))
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads an object, keeping the order fields appear in. A field
// repeated in the input keeps its first position and its last value.
func (c *Counters) UnmarshalJSON(raw []byte) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*c = nil
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("counter table must be an object, got %v", tok)
	}

	out := Counters{}
	index := map[string]int{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		field, ok := tok.(string)
		if !ok {
			return fmt.Errorf("counter table key must be a string, got %v", tok)
		}
		var n json.Number
		if err := dec.Decode(&n); err != nil {
			return fmt.Errorf("counter %q: %w", field, err)
		}
		value, err := n.Int64()
		if err != nil {
			return fmt.Errorf("counter %q: %w", field, err)
		}
		if i, seen := index[field]; seen {
			out[i].Value = value
			continue
		}
		index[field] = len(out)
		out = append(out, kvstore.Counter{Field: field, Value: value})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*c = out
	return nil
}
