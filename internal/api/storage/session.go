package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/cuongbtq/constituent-transfer/internal/domain"
)

// UserIDForSession resolves a live session to its user
func (s *Storage) UserIDForSession(ctx context.Context, sessionID string) (string, error) {
	query := `
		SELECT s.user_id
		FROM sessions s
		JOIN users u ON u.id = s.user_id
		WHERE s.id = $1
			AND s.expires_at > NOW()
			AND u.deleted_at IS NULL
	`

	var userID string
	err := s.db.GetContext(ctx, &userID, query, sessionID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: unknown or expired session", domain.ErrUnauthorized)
	}
	if err != nil {
		return "", domain.NewTransientError(fmt.Errorf("failed to look up session: %w", err))
	}

	return userID, nil
}
