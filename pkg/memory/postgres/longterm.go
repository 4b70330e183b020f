package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/emberforge/loreweave/pkg/memory"
)

// LongTermStoreImpl is the long-term memory layer backed by the
// long_term_memories table with a pgvector embedding column.
//
// Obtain one via [Store.Memories] rather than constructing directly.
// All methods are safe for concurrent use.
type LongTermStoreImpl struct {
	pool *pgxpool.Pool
}

// Append implements [memory.LongTermStore]. A nil embedding is stored as SQL
// NULL, which excludes the record from similarity search.
func (s *LongTermStoreImpl) Append(ctx context.Context, entry memory.Entry) (memory.MemoryRecord, error) {
	if !entry.SourceRole.IsValid() {
		return memory.MemoryRecord{}, fmt.Errorf("long-term store: source role %q: %w", entry.SourceRole, memory.ErrInvalidRole)
	}

	tags := entry.Tags
	if tags == nil {
		tags = map[string]string{}
	}

	var embedding any
	if entry.Embedding != nil {
		embedding = pgvector.NewVector(entry.Embedding)
	}

	const q = `
		INSERT INTO long_term_memories (user_id, npc_id, text, tags, source_role, embedding)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, user_id, npc_id, text, tags, source_role, created_at`

	rec, err := scanMemory(s.pool.QueryRow(ctx, q,
		entry.UserID,
		entry.NPCID,
		entry.Text,
		tags,
		string(entry.SourceRole),
		embedding,
	))
	if err != nil {
		return memory.MemoryRecord{}, fmt.Errorf("long-term store: append: %w", err)
	}
	return rec, nil
}

// Search implements [memory.LongTermStore]. It ranks by cosine distance to
// the query embedding, most similar first.
func (s *LongTermStoreImpl) Search(ctx context.Context, userID string, embedding []float32, topK int) ([]memory.MemoryRecord, error) {
	if topK <= 0 {
		topK = 5
	}

	const q = `
		SELECT id, user_id, npc_id, text, tags, source_role, created_at
		FROM   long_term_memories
		WHERE  user_id = $1
		  AND  embedding IS NOT NULL
		ORDER  BY embedding <=> $2
		LIMIT  $3`

	rows, err := s.pool.Query(ctx, q, userID, pgvector.NewVector(embedding), topK)
	if err != nil {
		return nil, fmt.Errorf("long-term store: search: %w", err)
	}
	return collectMemories(rows)
}

// RecentByTag implements [memory.LongTermStore]. It filters on a single
// key/value pair inside the JSONB tags column, newest first.
func (s *LongTermStoreImpl) RecentByTag(ctx context.Context, userID, tagKey, tagValue string, limit int) ([]memory.MemoryRecord, error) {
	if limit <= 0 {
		limit = 10
	}

	const q = `
		SELECT id, user_id, npc_id, text, tags, source_role, created_at
		FROM   long_term_memories
		WHERE  user_id = $1
		  AND  tags ->> $2 = $3
		ORDER  BY created_at DESC, id DESC
		LIMIT  $4`

	rows, err := s.pool.Query(ctx, q, userID, tagKey, tagValue, limit)
	if err != nil {
		return nil, fmt.Errorf("long-term store: recent by tag: %w", err)
	}
	return collectMemories(rows)
}

// collectMemories scans pgx rows into a slice of MemoryRecord values.
func collectMemories(rows pgx.Rows) ([]memory.MemoryRecord, error) {
	records, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (memory.MemoryRecord, error) {
		return scanMemory(row)
	})
	if err != nil {
		return nil, fmt.Errorf("long-term store: scan: %w", err)
	}
	if records == nil {
		records = []memory.MemoryRecord{}
	}
	return records, nil
}

// scanMemory scans one long_term_memories row into a MemoryRecord.
func scanMemory(row pgx.Row) (memory.MemoryRecord, error) {
	var (
		rec  memory.MemoryRecord
		role string
	)
	if err := row.Scan(&rec.ID, &rec.UserID, &rec.NPCID, &rec.Text, &rec.Tags, &role, &rec.CreatedAt); err != nil {
		return memory.MemoryRecord{}, err
	}
	rec.SourceRole = memory.Role(role)
	return rec, nil
}
