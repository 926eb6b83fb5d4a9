package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Constituent is a contact record owned by a user
type Constituent struct {
	ID        string
	OwnerID   string
	Email     string
	FirstName string
	LastName  string
	Address   string
	Address2  string
	City      string
	State     string
	Zip       string
	Country   string
	CreatedAt time.Time
	UpdatedAt *time.Time
}

// ConstituentInput is one upload row after header mapping. OwnerID is always
// injected by the server, never read from the row.
type ConstituentInput struct {
	OwnerID   string     `validate:"required"`
	Email     string     `validate:"required,email,max=255"`
	FirstName string     `validate:"required,max=255"`
	LastName  string     `validate:"required,max=255"`
	Address   string     `validate:"required,max=255"`
	Address2  string     `validate:"max=255"`
	City      string     `validate:"required,max=255"`
	State     string     `validate:"required,max=255"`
	Zip       string     `validate:"required,max=32"`
	Country   string     `validate:"required,max=255"`
	CreatedAt *time.Time `validate:"-"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the row against the upload schema
func (in *ConstituentInput) Validate() error {
	if err := validate.Struct(in); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return nil
}

var createdAtLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseCreatedAt accepts the timestamp formats produced by exports and common spreadsheet tools
func ParseCreatedAt(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	for _, layout := range createdAtLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: invalid created_at %q", ErrValidation, value)
}
