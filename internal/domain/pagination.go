package domain

import (
	"fmt"
	"time"
)

const (
	// MaxPageLimit is the largest page a caller may request directly
	MaxPageLimit = 250

	// DefaultPageLimit is used when the caller gives no limit
	DefaultPageLimit = 10

	OperatorIn      = "in"
	OperatorBetween = "between"

	SortAsc  = "ASC"
	SortDesc = "DESC"
)

// ConstituentFields lists the columns a caller may filter or sort on
var ConstituentFields = map[string]bool{
	"email":      true,
	"first_name": true,
	"last_name":  true,
	"address":    true,
	"address_2":  true,
	"city":       true,
	"state":      true,
	"zip":        true,
	"country":    true,
	"created_at": true,
	"updated_at": true,
}

// Filter restricts the record set on one column
type Filter struct {
	Field    string   `json:"field"`
	Operator string   `json:"operator"`
	Values   []string `json:"values"`
}

// Sort orders the record set
type Sort struct {
	Key   string `json:"key"`
	Order string `json:"order"`
}

// PaginationSpec describes a filtered, searched, sorted page of constituents
type PaginationSpec struct {
	Filters []Filter `json:"filters"`
	Search  string   `json:"search,omitempty"`
	Sort    Sort     `json:"sort"`
	Limit   int      `json:"limit"`
	Page    int      `json:"page"`
}

// Validate checks a caller supplied spec
func (p PaginationSpec) Validate() error {
	if p.Limit < 0 || p.Limit > MaxPageLimit {
		return fmt.Errorf("%w: limit must be between 0 and %d", ErrValidation, MaxPageLimit)
	}
	if p.Page < 0 {
		return fmt.Errorf("%w: page must not be negative", ErrValidation)
	}
	if !ConstituentFields[p.Sort.Key] {
		return fmt.Errorf("%w: unknown sort key %q", ErrValidation, p.Sort.Key)
	}
	if p.Sort.Order != SortAsc && p.Sort.Order != SortDesc {
		return fmt.Errorf("%w: sort order must be ASC or DESC", ErrValidation)
	}

	for _, f := range p.Filters {
		if !ConstituentFields[f.Field] {
			return fmt.Errorf("%w: unknown filter field %q", ErrValidation, f.Field)
		}
		switch f.Operator {
		case OperatorIn:
			if len(f.Values) == 0 {
				return fmt.Errorf("%w: filter %q needs at least one value", ErrValidation, f.Field)
			}
		case OperatorBetween:
			if len(f.Values) != 2 {
				return fmt.Errorf("%w: filter %q needs exactly two values", ErrValidation, f.Field)
			}
		default:
			return fmt.Errorf("%w: unknown filter operator %q", ErrValidation, f.Operator)
		}
		if IsTimeField(f.Field) {
			if _, err := FilterTimes(f.Values); err != nil {
				return err
			}
		}
	}

	return nil
}

// Clone returns a deep copy so later changes to the caller's spec never leak in
func (p PaginationSpec) Clone() PaginationSpec {
	out := p
	if p.Filters != nil {
		out.Filters = make([]Filter, len(p.Filters))
		for i, f := range p.Filters {
			out.Filters[i] = Filter{
				Field:    f.Field,
				Operator: f.Operator,
				Values:   append([]string(nil), f.Values...),
			}
		}
	}
	return out
}

// WithPage returns a copy of the spec addressing one page
func (p PaginationSpec) WithPage(limit, page int) PaginationSpec {
	out := p.Clone()
	out.Limit = limit
	out.Page = page
	return out
}

// Offset is the number of rows skipped before this page
func (p PaginationSpec) Offset() int {
	return p.Limit * p.Page
}

// IsTimeField reports whether the column holds timestamps
func IsTimeField(field string) bool {
	return field == "created_at" || field == "updated_at"
}

// FilterTime parses a filter value on a timestamp column
func FilterTime(value string) (time.Time, error) {
	return ParseCreatedAt(value)
}

// FilterTimes parses every value of a timestamp filter
func FilterTimes(values []string) ([]time.Time, error) {
	out := make([]time.Time, len(values))
	for i, v := range values {
		t, err := FilterTime(v)
		if err != nil {
			return nil, err
		}
		out[i] = t
	}
	return out, nil
}
