package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"group-notifier/internal/models"

	"github.com/lib/pq"
)

const queryGroup = `SELECT id, COALESCE(name, ''), member_ids FROM groups WHERE id = $1`

// GroupStore reads group records with their member list.
type GroupStore struct {
	db *sql.DB
}

func NewGroupStore(client *PostgresClient) *GroupStore {
	return &GroupStore{db: client.DB}
}

// GetGroup returns models.ErrNotFound for an unknown id.
func (s *GroupStore) GetGroup(ctx context.Context, id string) (*models.Group, error) {
	var (
		group   models.Group
		members pq.StringArray
	)
	err := s.db.QueryRowContext(ctx, queryGroup, id).Scan(&group.ID, &group.Name, &members)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("group %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query group %s: %w", id, err)
	}
	group.MemberIDs = []string(members)
	return &group, nil
}
