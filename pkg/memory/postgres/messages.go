package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/emberforge/loreweave/pkg/memory"
)

// MessageStoreImpl is the chat message log backed by the chat_messages table.
//
// Obtain one via [Store.Messages] rather than constructing directly.
// All methods are safe for concurrent use.
type MessageStoreImpl struct {
	pool *pgxpool.Pool
}

// Append implements [memory.MessageStore]. The role whitelist is enforced
// here, before any SQL is issued, so an invalid role writes nothing.
func (s *MessageStoreImpl) Append(ctx context.Context, userID string, role memory.Role, content string) (memory.MessageRecord, error) {
	if !role.IsValid() {
		return memory.MessageRecord{}, fmt.Errorf("message store: role %q: %w", role, memory.ErrInvalidRole)
	}

	const q = `
		INSERT INTO chat_messages (user_id, role, content)
		VALUES ($1, $2, $3)
		RETURNING id, user_id, npc_id, role, content, created_at`

	rec, err := scanMessage(s.pool.QueryRow(ctx, q, userID, string(role), content))
	if err != nil {
		return memory.MessageRecord{}, fmt.Errorf("message store: append: %w", err)
	}
	return rec, nil
}

// Recent implements [memory.MessageStore]. It returns the limit most recent
// messages for userID in chronological order (oldest first).
func (s *MessageStoreImpl) Recent(ctx context.Context, userID string, limit int) ([]memory.MessageRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	const q = `
		SELECT id, user_id, npc_id, role, content, created_at
		FROM   (
		    SELECT id, user_id, npc_id, role, content, created_at
		    FROM   chat_messages
		    WHERE  user_id = $1
		    ORDER  BY created_at DESC, id DESC
		    LIMIT  $2
		) latest
		ORDER BY created_at, id`

	rows, err := s.pool.Query(ctx, q, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("message store: recent: %w", err)
	}

	records, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (memory.MessageRecord, error) {
		return scanMessage(row)
	})
	if err != nil {
		return nil, fmt.Errorf("message store: recent: %w", err)
	}
	if records == nil {
		records = []memory.MessageRecord{}
	}
	return records, nil
}

// scanMessage scans one chat_messages row into a MessageRecord.
func scanMessage(row pgx.Row) (memory.MessageRecord, error) {
	var (
		rec  memory.MessageRecord
		role string
	)
	if err := row.Scan(&rec.ID, &rec.UserID, &rec.NPCID, &role, &rec.Content, &rec.CreatedAt); err != nil {
		return memory.MessageRecord{}, err
	}
	rec.Role = memory.Role(role)
	return rec, nil
}
