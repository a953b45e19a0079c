package markov

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// field is one member of a JSON object, kept in document order.
type field struct {
	key   string
	value json.RawMessage
}

// MarshalJSON writes the table as {"order": k, "states": {...}} with states
// and successors in table order.
func (t *Table) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, `{"order":%d,"states":`, t.order)
	if err := t.writeStates(&buf); err != nil {
		return nil, err
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// MarshalLegacyJSON writes the bare {state: {token: count}} mapping, without
// the order, as older tools expect.
func (t *Table) MarshalLegacyJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := t.writeStates(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (t *Table) writeStates(buf *bytes.Buffer) error {
	buf.WriteByte('{')
	for i, key := range t.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeString(buf, key); err != nil {
			return err
		}
		buf.WriteString(":{")
		for j, tr := range t.states[key].next {
			if j > 0 {
				buf.WriteByte(',')
			}
			if err := writeString(buf, tr.Token); err != nil {
				return err
			}
			fmt.Fprintf(buf, ":%d", tr.Count)
		}
		buf.WriteByte('}')
	}
	buf.WriteByte('}')
	return nil
}

func writeString(buf *bytes.Buffer, s string) error {
	b, err := json.Marshal(s)
	if err != nil {
		return err
	}
	buf.Write(b)
	return nil
}

// UnmarshalJSON reads either the versioned format written by MarshalJSON or
// the legacy bare mapping. A document is versioned when it has a top-level
// "order" member holding a number. Legacy tables take their order from the
// word count of the first state in the document.
func (t *Table) UnmarshalJSON(data []byte) error {
	fields, err := decodeObject(data)
	if err != nil {
		return err
	}

	order := 0
	statesData := json.RawMessage(nil)
	versioned := false
	for _, f := range fields {
		if f.key == "order" && isNumber(f.value) {
			versioned = true
			if err := json.Unmarshal(f.value, &order); err != nil {
				return fmt.Errorf("%w: order: %v", ErrInvalidTable, err)
			}
		}
	}

	var states []field
	if versioned {
		if order < 0 {
			return fmt.Errorf("%w: negative order %d", ErrInvalidTable, order)
		}
		for _, f := range fields {
			if f.key == "states" {
				statesData = f.value
			}
		}
		if statesData != nil {
			if states, err = decodeObject(statesData); err != nil {
				return err
			}
		}
	} else {
		states = fields
		if len(states) > 0 {
			order = len(strings.Split(states[0].key, " "))
		}
	}

	table := NewTable(order)
	for _, s := range states {
		if err := table.AddState(s.key); err != nil {
			return err
		}
		next, err := decodeObject(s.value)
		if err != nil {
			return fmt.Errorf("state %q: %w", s.key, err)
		}
		for _, n := range next {
			var count int
			if err := json.Unmarshal(n.value, &count); err != nil {
				return fmt.Errorf("%w: count for %q -> %q: %v", ErrInvalidTable, s.key, n.key, err)
			}
			if err := table.Observe(s.key, n.key, count); err != nil {
				return err
			}
		}
	}

	*t = *table
	return nil
}

// decodeObject reads a JSON object and returns its members in document order.
func decodeObject(data []byte) ([]field, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTable, err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("%w: expected an object", ErrInvalidTable)
	}

	var fields []field
	for dec.More() {
		tok, err = dec.Token()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidTable, err)
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("%w: expected a string key", ErrInvalidTable)
		}
		var value json.RawMessage
		if err = dec.Decode(&value); err != nil {
			return nil, fmt.Errorf("%w: value of %q: %v", ErrInvalidTable, key, err)
		}
		fields = append(fields, field{key: key, value: value})
	}
	if _, err = dec.Token(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTable, err)
	}
	return fields, nil
}

func isNumber(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return false
	}
	c := trimmed[0]
	return c == '-' || (c >= '0' && c <= '9')
}
