package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// QuestStoreImpl tracks per-user quest status in the quest_states table.
//
// Obtain one via [Store.Quests] rather than constructing directly.
// All methods are safe for concurrent use.
type QuestStoreImpl struct {
	pool *pgxpool.Pool
}

// CurrentStatus implements [memory.QuestStore]. A user with no recorded
// quest state yields "" without error.
func (s *QuestStoreImpl) CurrentStatus(ctx context.Context, userID string) (string, error) {
	const q = `SELECT status FROM quest_states WHERE user_id = $1`

	var status string
	err := s.pool.QueryRow(ctx, q, userID).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("quest store: current status: %w", err)
	}
	return status, nil
}

// SetStatus implements [memory.QuestStore].
func (s *QuestStoreImpl) SetStatus(ctx context.Context, userID, status string) error {
	const q = `
		INSERT INTO quest_states (user_id, status, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (user_id)
		DO UPDATE SET status = EXCLUDED.status, updated_at = now()`

	if _, err := s.pool.Exec(ctx, q, userID, status); err != nil {
		return fmt.Errorf("quest store: set status: %w", err)
	}
	return nil
}
