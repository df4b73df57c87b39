package scoring

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Record is one structured row with its match score. Values are in Columns
// order.
type Record struct {
	Columns    []string
	Values     []any
	MatchScore float64
}

// Get returns the value of column name, matched case-insensitively.
func (r Record) Get(name string) (any, bool) {
	for i, c := range r.Columns {
		if strings.EqualFold(c, name) {
			return r.Values[i], true
		}
	}
	return nil, false
}

// Text renders the row as "column: value" pairs joined with " | ".
func (r Record) Text() string {
	return RowText(r.Columns, r.Values)
}

// MarshalJSON encodes the record as an object whose keys keep column order,
// followed by match_score.
func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, c := range r.Columns {
		if err := writeField(&buf, c, r.Values[i]); err != nil {
			return nil, err
		}
		buf.WriteByte(',')
	}
	if err := writeField(&buf, "match_score", r.MatchScore); err != nil {
		return nil, err
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func writeField(buf *bytes.Buffer, key string, v any) error {
	k, err := json.Marshal(key)
	if err != nil {
		return err
	}
	val, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding column %q: %w", key, err)
	}
	buf.Write(k)
	buf.WriteByte(':')
	buf.Write(val)
	return nil
}

// RowText renders one row as "column: value" pairs in column order, joined
// with " | ". NULL values render as "NULL".
func RowText(columns []string, values []any) string {
	parts := make([]string, len(columns))
	for i, c := range columns {
		var v any
		if i < len(values) {
			v = values[i]
		}
		if v == nil {
			parts[i] = c + ": NULL"
			continue
		}
		parts[i] = fmt.Sprintf("%s: %v", c, v)
	}
	return strings.Join(parts, " | ")
}
