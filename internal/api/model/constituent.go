package model

import (
	"time"

	"github.com/cuongbtq/constituent-transfer/internal/domain"
)

// Constituent is a row of the constituents table
type Constituent struct {
	ID        string     `db:"id"`
	UserID    string     `db:"user_id"`
	Email     string     `db:"email"`
	FirstName string     `db:"first_name"`
	LastName  string     `db:"last_name"`
	Address   string     `db:"address"`
	Address2  *string    `db:"address_2"`
	City      string     `db:"city"`
	State     string     `db:"state"`
	Zip       string     `db:"zip"`
	Country   string     `db:"country"`
	CreatedAt time.Time  `db:"created_at"`
	UpdatedAt *time.Time `db:"updated_at"`
}

// ToDomain converts the row to a domain record
func (c Constituent) ToDomain() domain.Constituent {
	out := domain.Constituent{
		ID:        c.ID,
		OwnerID:   c.UserID,
		Email:     c.Email,
		FirstName: c.FirstName,
		LastName:  c.LastName,
		Address:   c.Address,
		City:      c.City,
		State:     c.State,
		Zip:       c.Zip,
		Country:   c.Country,
		CreatedAt: c.CreatedAt.UTC(),
		UpdatedAt: c.UpdatedAt,
	}
	if c.Address2 != nil {
		out.Address2 = *c.Address2
	}
	return out
}

// FromDomain converts a domain record to a row. An empty address_2 is stored as NULL.
func FromDomain(c domain.Constituent) Constituent {
	row := Constituent{
		ID:        c.ID,
		UserID:    c.OwnerID,
		Email:     c.Email,
		FirstName: c.FirstName,
		LastName:  c.LastName,
		Address:   c.Address,
		City:      c.City,
		State:     c.State,
		Zip:       c.Zip,
		Country:   c.Country,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
	if c.Address2 != "" {
		address2 := c.Address2
		row.Address2 = &address2
	}
	return row
}
