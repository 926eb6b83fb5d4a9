package transfer

import (
	"context"
	"fmt"
	"time"

	"github.com/cuongbtq/constituent-transfer/internal/domain"
)

// dedupeByEmail keeps the last occurrence of every email, in order of first appearance
func dedupeByEmail(rows []domain.ConstituentInput) []domain.ConstituentInput {
	index := make(map[string]int, len(rows))
	out := make([]domain.ConstituentInput, 0, len(rows))

	for _, row := range rows {
		if i, ok := index[row.Email]; ok {
			out[i] = row
			continue
		}
		index[row.Email] = len(out)
		out = append(out, row)
	}

	return out
}

// partition splits rows into records to insert and existing records merged
// with the row values
func partition(rows []domain.ConstituentInput, existing []domain.Constituent, now time.Time, newID func() string) (creates, updates []domain.Constituent) {
	byEmail := make(map[string]domain.Constituent, len(existing))
	for _, c := range existing {
		byEmail[c.Email] = c
	}

	for _, row := range rows {
		current, ok := byEmail[row.Email]
		if !ok {
			createdAt := now
			if row.CreatedAt != nil {
				createdAt = *row.CreatedAt
			}
			creates = append(creates, domain.Constituent{
				ID:        newID(),
				OwnerID:   row.OwnerID,
				Email:     row.Email,
				FirstName: row.FirstName,
				LastName:  row.LastName,
				Address:   row.Address,
				Address2:  row.Address2,
				City:      row.City,
				State:     row.State,
				Zip:       row.Zip,
				Country:   row.Country,
				CreatedAt: createdAt,
			})
			continue
		}

		updates = append(updates, merge(current, row, now))
	}

	return creates, updates
}

// merge replaces the record's fields with the row's. Required fields are
// never empty on a valid row, so only address_2 can be cleared.
func merge(current domain.Constituent, row domain.ConstituentInput, now time.Time) domain.Constituent {
	current.FirstName = row.FirstName
	current.LastName = row.LastName
	current.Address = row.Address
	current.Address2 = row.Address2
	current.City = row.City
	current.State = row.State
	current.Zip = row.Zip
	current.Country = row.Country
	if row.CreatedAt != nil {
		current.CreatedAt = *row.CreatedAt
	}

	updatedAt := now
	current.UpdatedAt = &updatedAt

	return current
}

// reconcile writes one batch of valid rows: duplicates collapse to the last
// row, unknown emails are inserted and known ones updated
func (m *Manager) reconcile(ctx context.Context, ownerID string, batch []domain.ConstituentInput) error {
	rows := dedupeByEmail(batch)

	emails := make([]string, len(rows))
	for i, row := range rows {
		emails[i] = row.Email
	}

	existing, err := m.store.GetByEmails(ctx, ownerID, emails)
	if err != nil {
		return fmt.Errorf("failed to look up existing constituents: %w", err)
	}

	creates, updates := partition(rows, existing, m.now().UTC(), m.newID)

	if len(creates) > 0 {
		if err := m.store.CreateMany(ctx, creates); err != nil {
			return fmt.Errorf("failed to insert constituents: %w", err)
		}
	}
	if len(updates) > 0 {
		if err := m.store.UpdateMany(ctx, updates); err != nil {
			return fmt.Errorf("failed to update constituents: %w", err)
		}
	}

	return nil
}
