package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/emberforge/loreweave/pkg/memory"
)

// Compile-time interface checks.
var (
	_ memory.MessageStore  = (*MessageStoreImpl)(nil)
	_ memory.LongTermStore = (*LongTermStoreImpl)(nil)
	_ memory.QuestStore    = (*QuestStoreImpl)(nil)
)

// Store is the central PostgreSQL-backed store for loreweave. It holds a
// single [pgxpool.Pool] and exposes the three persistence layers:
//
//   - [Store.Messages] returns a [MessageStoreImpl] implementing [memory.MessageStore]
//   - [Store.Memories] returns a [LongTermStoreImpl] implementing [memory.LongTermStore]
//   - [Store.Quests] returns a [QuestStoreImpl] implementing [memory.QuestStore]
//
// All operations are safe for concurrent use.
type Store struct {
	pool     *pgxpool.Pool
	messages *MessageStoreImpl
	memories *LongTermStoreImpl
	quests   *QuestStoreImpl
}

// NewStore creates a new Store, establishes a connection pool to the
// PostgreSQL database at dsn, registers pgvector types on every connection,
// and runs [Migrate] to ensure all required tables and extensions exist.
//
// embeddingDimensions must match the output dimension of the embedding model
// used to produce [memory.Entry.Embedding] values (e.g., 1536 for OpenAI
// text-embedding-3-small).
func NewStore(ctx context.Context, dsn string, embeddingDimensions int) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: parse dsn: %w", err)
	}

	// Register pgvector types on every new connection so that vector columns
	// can be scanned into and inserted from pgvector.Vector values.
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres store: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: ping: %w", err)
	}

	if err := Migrate(ctx, pool, embeddingDimensions); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: migrate: %w", err)
	}

	return &Store{
		pool:     pool,
		messages: &MessageStoreImpl{pool: pool},
		memories: &LongTermStoreImpl{pool: pool},
		quests:   &QuestStoreImpl{pool: pool},
	}, nil
}

// Messages returns the chat message log implementation.
func (s *Store) Messages() *MessageStoreImpl { return s.messages }

// Memories returns the long-term memory implementation.
func (s *Store) Memories() *LongTermStoreImpl { return s.memories }

// Quests returns the quest state implementation.
func (s *Store) Quests() *QuestStoreImpl { return s.quests }

// Ping verifies database connectivity. Used by the readiness probe.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases all connections held by the underlying connection pool.
// It should be called when the Store is no longer needed, typically via defer.
func (s *Store) Close() {
	s.pool.Close()
}
