package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cuongbtq/constituent-transfer/internal/api/model"
	"github.com/cuongbtq/constituent-transfer/internal/domain"
	"github.com/cuongbtq/constituent-transfer/shared/postgresql"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const constituentColumns = `
	c.id, c.user_id, c.email, c.first_name, c.last_name,
	c.address, c.address_2, c.city, c.state, c.zip, c.country,
	c.created_at, c.updated_at
`

// Storage is the Postgres implementation of the constituent query layer
type Storage struct {
	db *sqlx.DB
}

func NewStorage(pg *postgresql.Client) *Storage {
	return &Storage{
		db: pg.GetDB(),
	}
}

// NewStorageFromDB wraps an open handle
func NewStorageFromDB(db *sqlx.DB) *Storage {
	return &Storage{db: db}
}

// buildWhere renders the owner scope plus the spec's search and filters.
// Column names come from the domain whitelist, values are always bound.
func buildWhere(ownerID string, spec domain.PaginationSpec) (string, []interface{}, error) {
	query := `
		FROM constituents c
		JOIN users u ON u.id = c.user_id
		WHERE u.deleted_at IS NULL
	`
	args := []interface{}{}
	argIdx := 1

	query += fmt.Sprintf(" AND c.user_id = $%d", argIdx)
	args = append(args, ownerID)
	argIdx++

	if spec.Search != "" {
		query += fmt.Sprintf(" AND (c.email ILIKE $%d OR c.first_name ILIKE $%d OR c.last_name ILIKE $%d)", argIdx, argIdx, argIdx)
		args = append(args, "%"+escapeLike(spec.Search)+"%")
		argIdx++
	}

	for _, f := range spec.Filters {
		if !domain.ConstituentFields[f.Field] {
			return "", nil, fmt.Errorf("%w: unknown filter field %q", domain.ErrValidation, f.Field)
		}
		column := "c." + f.Field

		switch f.Operator {
		case domain.OperatorIn:
			if domain.IsTimeField(f.Field) {
				times, err := domain.FilterTimes(f.Values)
				if err != nil {
					return "", nil, err
				}
				formatted := make([]string, len(times))
				for i, t := range times {
					formatted[i] = t.Format(time.RFC3339Nano)
				}
				query += fmt.Sprintf(" AND %s = ANY($%d::timestamptz[])", column, argIdx)
				args = append(args, pq.Array(formatted))
			} else {
				query += fmt.Sprintf(" AND %s = ANY($%d)", column, argIdx)
				args = append(args, pq.Array(f.Values))
			}
			argIdx++

		case domain.OperatorBetween:
			if len(f.Values) != 2 {
				return "", nil, fmt.Errorf("%w: filter %q needs exactly two values", domain.ErrValidation, f.Field)
			}
			query += fmt.Sprintf(" AND %s >= $%d AND %s <= $%d", column, argIdx, column, argIdx+1)
			if domain.IsTimeField(f.Field) {
				from, err := domain.FilterTime(f.Values[0])
				if err != nil {
					return "", nil, err
				}
				to, err := domain.FilterTime(f.Values[1])
				if err != nil {
					return "", nil, err
				}
				args = append(args, from, to)
			} else {
				args = append(args, f.Values[0], f.Values[1])
			}
			argIdx += 2

		default:
			return "", nil, fmt.Errorf("%w: unknown filter operator %q", domain.ErrValidation, f.Operator)
		}
	}

	return query, args, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// Count returns how many records match the spec, ignoring limit and page
func (s *Storage) Count(ctx context.Context, ownerID string, spec domain.PaginationSpec) (int, error) {
	where, args, err := buildWhere(ownerID, spec)
	if err != nil {
		return 0, err
	}

	var count int
	if err := s.db.GetContext(ctx, &count, "SELECT COUNT(*) "+where, args...); err != nil {
		return 0, domain.NewTransientError(fmt.Errorf("failed to count constituents: %w", err))
	}

	return count, nil
}

// List returns one page ordered by the spec's sort key, id breaking ties so
// consecutive pages never overlap
func (s *Storage) List(ctx context.Context, ownerID string, spec domain.PaginationSpec) ([]domain.Constituent, error) {
	where, args, err := buildWhere(ownerID, spec)
	if err != nil {
		return nil, err
	}

	if !domain.ConstituentFields[spec.Sort.Key] {
		return nil, fmt.Errorf("%w: unknown sort key %q", domain.ErrValidation, spec.Sort.Key)
	}
	order := domain.SortDesc
	if spec.Sort.Order == domain.SortAsc {
		order = domain.SortAsc
	}

	query := "SELECT " + constituentColumns + where
	query += fmt.Sprintf(" ORDER BY c.%s %s, c.id %s", spec.Sort.Key, order, order)
	query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, spec.Limit, spec.Offset())

	var rows []model.Constituent
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, domain.NewTransientError(fmt.Errorf("failed to list constituents: %w", err))
	}

	out := make([]domain.Constituent, len(rows))
	for i, row := range rows {
		out[i] = row.ToDomain()
	}
	return out, nil
}

// GetByEmails returns the owner's records whose email is in emails
func (s *Storage) GetByEmails(ctx context.Context, ownerID string, emails []string) ([]domain.Constituent, error) {
	if len(emails) == 0 {
		return nil, nil
	}

	query := "SELECT " + constituentColumns + `
		FROM constituents c
		WHERE c.user_id = $1 AND c.email = ANY($2)
	`

	var rows []model.Constituent
	if err := s.db.SelectContext(ctx, &rows, query, ownerID, pq.Array(emails)); err != nil {
		return nil, domain.NewTransientError(fmt.Errorf("failed to get constituents by email: %w", err))
	}

	out := make([]domain.Constituent, len(rows))
	for i, row := range rows {
		out[i] = row.ToDomain()
	}
	return out, nil
}

// CreateMany inserts every record in one statement inside a transaction
func (s *Storage) CreateMany(ctx context.Context, constituents []domain.Constituent) error {
	if len(constituents) == 0 {
		return nil
	}

	rows := make([]model.Constituent, len(constituents))
	for i, c := range constituents {
		rows[i] = model.FromDomain(c)
	}

	query := `
		INSERT INTO constituents (
			id, user_id, email, first_name, last_name,
			address, address_2, city, state, zip, country,
			created_at, updated_at
		) VALUES (
			:id, :user_id, :email, :first_name, :last_name,
			:address, :address_2, :city, :state, :zip, :country,
			:created_at, :updated_at
		)
	`

	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.NamedExecContext(ctx, query, rows); err != nil {
			return fmt.Errorf("failed to insert constituents: %w", err)
		}
		return nil
	})
}

// UpdateMany rewrites the business fields of every record, matched by id and owner
func (s *Storage) UpdateMany(ctx context.Context, constituents []domain.Constituent) error {
	if len(constituents) == 0 {
		return nil
	}

	query := `
		UPDATE constituents SET
			first_name = :first_name,
			last_name = :last_name,
			address = :address,
			address_2 = :address_2,
			city = :city,
			state = :state,
			zip = :zip,
			country = :country,
			created_at = :created_at,
			updated_at = :updated_at
		WHERE id = :id AND user_id = :user_id
	`

	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		stmt, err := tx.PrepareNamedContext(ctx, query)
		if err != nil {
			return fmt.Errorf("failed to prepare update: %w", err)
		}
		defer stmt.Close()

		for _, c := range constituents {
			if _, err := stmt.ExecContext(ctx, model.FromDomain(c)); err != nil {
				return fmt.Errorf("failed to update constituent %s: %w", c.ID, err)
			}
		}
		return nil
	})
}

func (s *Storage) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return domain.NewTransientError(fmt.Errorf("failed to begin transaction: %w", err))
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return domain.NewTransientError(err)
	}

	if err := tx.Commit(); err != nil {
		return domain.NewTransientError(fmt.Errorf("failed to commit transaction: %w", err))
	}

	return nil
}
