package transfer

import (
	"context"

	"github.com/cuongbtq/constituent-transfer/internal/domain"
)

// ConstituentStore is the relational query layer the processors read from and
// write to. Every method is scoped to one owner.
type ConstituentStore interface {
	// Count returns how many records spec matches, ignoring limit and page
	Count(ctx context.Context, ownerID string, spec domain.PaginationSpec) (int, error)

	// List returns one page of records in a stable order
	List(ctx context.Context, ownerID string, spec domain.PaginationSpec) ([]domain.Constituent, error)

	// GetByEmails returns the owner's records whose email is in emails
	GetByEmails(ctx context.Context, ownerID string, emails []string) ([]domain.Constituent, error)

	// CreateMany inserts records in one transaction
	CreateMany(ctx context.Context, constituents []domain.Constituent) error

	// UpdateMany updates records by id in one transaction
	UpdateMany(ctx context.Context, constituents []domain.Constituent) error
}
