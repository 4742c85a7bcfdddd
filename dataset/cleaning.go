package dataset

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/samber/lo"
)

// naTokens are the cell texts read as missing, matching the defaults of common spreadsheet readers.
var naTokens = map[string]struct{}{
	"":         {},
	"#N/A":     {},
	"#N/A N/A": {},
	"#NA":      {},
	"-1.#IND":  {},
	"-1.#QNAN": {},
	"-NaN":     {},
	"-nan":     {},
	"1.#IND":   {},
	"1.#QNAN":  {},
	"<NA>":     {},
	"N/A":      {},
	"NA":       {},
	"NULL":     {},
	"NaN":      {},
	"None":     {},
	"n/a":      {},
	"nan":      {},
	"null":     {},
}

// IsNA reports whether a raw cell should be treated as missing.
func IsNA(cell string) bool {
	_, ok := naTokens[strings.TrimSpace(cell)]
	return ok
}

// Profile summarizes one column after loading.
type Profile struct {
	Name     string `json:"name"`
	Kind     string `json:"kind"`
	Missing  int    `json:"missing"`
	Distinct int    `json:"distinct"`
}

// column is the raw text of one column while it is being classified.
type column struct {
	name  string
	cells []string
}

// classify decides the kind of a column from all of its non-missing cells:
// numeric if every one of them parses as a float, categorical otherwise.
func (c column) classify() (Kind, error) {
	seen := false
	for _, cell := range c.cells {
		if IsNA(cell) {
			continue
		}
		seen = true
		if _, err := strconv.ParseFloat(strings.TrimSpace(cell), 64); err != nil {
			return KindCategorical, nil
		}
	}
	if !seen {
		return KindMissing, errors.Wrapf(ErrDataUnavailable, "column %q has no values to infer a type from", c.name)
	}
	return KindNumeric, nil
}

// values converts the raw cells into typed values of the given kind.
func (c column) values(kind Kind) []Value {
	out := make([]Value, len(c.cells))
	for i, cell := range c.cells {
		cell = strings.TrimSpace(cell)
		if IsNA(cell) {
			out[i] = Missing()
			continue
		}
		if kind == KindNumeric {
			f, _ := strconv.ParseFloat(cell, 64)
			out[i] = Numeric(f)
			continue
		}
		out[i] = Categorical(cell)
	}
	return out
}

func profile(name string, kind Kind, values []Value) Profile {
	missing := lo.CountBy(values, func(v Value) bool { return v.IsMissing() })
	distinct := lo.Uniq(lo.FilterMap(values, func(v Value, _ int) (string, bool) {
		return v.String(), !v.IsMissing()
	}))
	return Profile{Name: name, Kind: kind.String(), Missing: missing, Distinct: len(distinct)}
}
