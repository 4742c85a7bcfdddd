package dataset

import (
	"bytes"
	"encoding/json"
	"strconv"

	"github.com/pkg/errors"
)

// Kind is the type tag of a cell value.
type Kind int

const (
	KindMissing Kind = iota
	KindNumeric
	KindCategorical
)

func (k Kind) String() string {
	switch k {
	case KindNumeric:
		return "numeric"
	case KindCategorical:
		return "categorical"
	default:
		return "missing"
	}
}

// Value is a single cell: a number, a text label, or nothing.
type Value struct {
	Kind Kind
	Num  float64
	Str  string
}

// Numeric returns a numeric value.
func Numeric(v float64) Value { return Value{Kind: KindNumeric, Num: v} }

// Categorical returns a text label value.
func Categorical(s string) Value { return Value{Kind: KindCategorical, Str: s} }

// Missing returns the empty value.
func Missing() Value { return Value{} }

func (v Value) IsMissing() bool { return v.Kind == KindMissing }

// String renders the value the way it would appear in a spreadsheet cell.
func (v Value) String() string {
	switch v.Kind {
	case KindNumeric:
		return strconv.FormatFloat(v.Num, 'f', -1, 64)
	case KindCategorical:
		return v.Str
	default:
		return ""
	}
}

// MarshalJSON encodes numbers as JSON numbers, labels as strings and missing values as null.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case KindNumeric:
		return json.Marshal(v.Num)
	case KindCategorical:
		return json.Marshal(v.Str)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON accepts a number, a string or null.
func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*v = Missing()
		return nil
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return errors.WithStack(err)
		}
		*v = Categorical(s)
		return nil
	default:
		var f float64
		if err := json.Unmarshal(data, &f); err != nil {
			return errors.Errorf("value must be a number, a string or null, got %s", string(data))
		}
		*v = Numeric(f)
		return nil
	}
}

// Record maps column names to values. Training rows and query records share this shape.
type Record map[string]Value

// Clone returns a shallow copy of the record.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}
