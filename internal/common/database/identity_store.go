package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"group-notifier/internal/models"
)

const (
	queryIdentity   = `SELECT id, COALESCE(fcm_token, '') FROM users WHERE id = $1`
	queryInvalidate = `UPDATE users SET fcm_token = NULL WHERE fcm_token = $1`
)

// IdentityStore reads user records and clears stale delivery tokens.
type IdentityStore struct {
	db *sql.DB
}

func NewIdentityStore(client *PostgresClient) *IdentityStore {
	return &IdentityStore{db: client.DB}
}

// GetIdentity returns models.ErrNotFound for an unknown id.
func (s *IdentityStore) GetIdentity(ctx context.Context, id string) (*models.Identity, error) {
	var identity models.Identity
	err := s.db.QueryRowContext(ctx, queryIdentity, id).Scan(&identity.ID, &identity.DeliveryToken)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query user %s: %w", id, err)
	}
	return &identity, nil
}

// InvalidateToken clears token wherever it is stored. A token that is no
// longer stored affects zero rows.
func (s *IdentityStore) InvalidateToken(ctx context.Context, token string) (int64, error) {
	res, err := s.db.ExecContext(ctx, queryInvalidate, token)
	if err != nil {
		return 0, fmt.Errorf("invalidate token: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("invalidate token: %w", err)
	}
	return n, nil
}
