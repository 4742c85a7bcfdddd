package dataset

import (
	"github.com/pkg/errors"
	"github.com/samber/lo"
)

// Schema splits feature columns into numeric and categorical sets, in file order.
type Schema struct {
	Numeric     []string `json:"numeric"`
	Categorical []string `json:"categorical"`
}

// Columns returns numeric columns followed by categorical columns.
func (s Schema) Columns() []string {
	out := make([]string, 0, len(s.Numeric)+len(s.Categorical))
	out = append(out, s.Numeric...)
	return append(out, s.Categorical...)
}

// Validate checks that the two sets are disjoint and free of duplicates.
func (s Schema) Validate() error {
	if dup := lo.FindDuplicates(s.Numeric); len(dup) > 0 {
		return errors.Errorf("numeric columns listed twice: %v", dup)
	}
	if dup := lo.FindDuplicates(s.Categorical); len(dup) > 0 {
		return errors.Errorf("categorical columns listed twice: %v", dup)
	}
	if both := lo.Intersect(s.Numeric, s.Categorical); len(both) > 0 {
		return errors.Errorf("columns both numeric and categorical: %v", both)
	}
	return nil
}
