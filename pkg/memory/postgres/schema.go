// Package postgres provides a PostgreSQL-backed implementation of the
// loreweave memory interfaces (chat message log, long-term memory, quest
// state).
//
// All three stores share a single [pgxpool.Pool] connection pool. The
// pgvector extension must be available in the target database; [Migrate]
// installs it automatically via CREATE EXTENSION IF NOT EXISTS.
//
// Usage:
//
//	store, err := postgres.NewStore(ctx, dsn, 1536)
//	if err != nil { … }
//
//	_, _ = store.Messages().Append(ctx, userID, memory.RoleUser, "Hello Elara!")
//	_, _ = store.Memories().Append(ctx, memory.Entry{…})
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlExtensions = `
CREATE EXTENSION IF NOT EXISTS vector;
`

const ddlChatMessages = `
CREATE TABLE IF NOT EXISTS chat_messages (
    id          BIGSERIAL    PRIMARY KEY,
    user_id     TEXT         NOT NULL,
    npc_id      TEXT         NOT NULL DEFAULT '',
    role        TEXT         NOT NULL CHECK (role IN ('user', 'gm')),
    content     TEXT         NOT NULL,
    created_at  TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_chat_messages_user_created
    ON chat_messages (user_id, created_at);
`

// ddlLongTermMemories uses a %d placeholder for the embedding dimensions.
const ddlLongTermMemories = `
CREATE TABLE IF NOT EXISTS long_term_memories (
    id           BIGSERIAL    PRIMARY KEY,
    user_id      TEXT         NOT NULL,
    npc_id       TEXT         NOT NULL DEFAULT '',
    text         TEXT         NOT NULL,
    tags         JSONB        NOT NULL DEFAULT '{}',
    source_role  TEXT         NOT NULL CHECK (source_role IN ('user', 'gm')),
    embedding    vector(%d),
    created_at   TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_ltm_user_created
    ON long_term_memories (user_id, created_at DESC);

CREATE INDEX IF NOT EXISTS idx_ltm_tags
    ON long_term_memories USING GIN (tags);
`

// ddlLongTermEmbeddingIndex is created separately because ivfflat indexes
// require at least one row class setting and fail on some older pgvector
// versions; a failure here is non-fatal.
const ddlLongTermEmbeddingIndex = `
CREATE INDEX IF NOT EXISTS idx_ltm_embedding
    ON long_term_memories USING ivfflat (embedding vector_cosine_ops)
    WITH (lists = 100);
`

const ddlQuestStates = `
CREATE TABLE IF NOT EXISTS quest_states (
    user_id     TEXT         PRIMARY KEY,
    status      TEXT         NOT NULL,
    updated_at  TIMESTAMPTZ  NOT NULL DEFAULT now()
);
`

// Migrate ensures all required extensions, tables, and indexes exist.
// It is idempotent and safe to run on every startup.
//
// embeddingDimensions fixes the width of the long_term_memories.embedding
// column; changing it after the first migration requires a manual schema
// change.
func Migrate(ctx context.Context, pool *pgxpool.Pool, embeddingDimensions int) error {
	if embeddingDimensions <= 0 {
		embeddingDimensions = 1536
	}

	statements := []string{
		ddlExtensions,
		ddlChatMessages,
		fmt.Sprintf(ddlLongTermMemories, embeddingDimensions),
		ddlQuestStates,
	}
	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	// Best effort: the ivfflat index needs pgvector >= 0.5 and populated
	// statistics to be useful. Sequential scan remains correct without it.
	_, _ = pool.Exec(ctx, ddlLongTermEmbeddingIndex)

	return nil
}
