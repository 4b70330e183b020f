// Package memory defines the durable storage interfaces behind the
// game-master backend:
//
//   - [MessageStore]: append-only log of chat turns keyed by user.
//   - [LongTermStore]: summarised session records keyed by user/tag, with
//     optional embedding vectors for semantic retrieval.
//   - [QuestStore]: per-user quest status read when assembling a GM prompt.
//
// All interfaces are public so that external packages can supply alternative
// storage backends (Postgres/pgvector, in-memory, …) without depending on
// loreweave internals.
//
// Every implementation must be safe for concurrent use.
package memory

import (
	"context"
	"errors"
	"time"
)

// Role identifies who authored a chat message. Roles are assigned by the
// orchestrator only, never by caller input.
type Role string

const (
	// RoleUser marks a message typed by the player.
	RoleUser Role = "user"

	// RoleGM marks a message produced by the game master.
	RoleGM Role = "gm"
)

// IsValid reports whether r is one of the allowed chat roles.
func (r Role) IsValid() bool {
	return r == RoleUser || r == RoleGM
}

// ErrInvalidRole is returned by [MessageStore.Append] and
// [LongTermStore.Append] when the supplied role is outside {user, gm}.
// Nothing is written in that case.
var ErrInvalidRole = errors.New("memory: invalid message role")

// MessageRecord is one persisted chat turn.
type MessageRecord struct {
	// ID is the store-assigned record identifier.
	ID int64

	// UserID is the player this message belongs to.
	UserID string

	// NPCID identifies the NPC involved in the exchange, when known.
	NPCID string

	// Role is who authored the message (user or gm).
	Role Role

	// Content is the message text.
	Content string

	// CreatedAt is when the record was persisted.
	CreatedAt time.Time
}

// Entry is a long-term memory record to be appended. The store assigns the
// identifier and timestamp.
type Entry struct {
	// UserID is the player this memory belongs to.
	UserID string

	// NPCID optionally scopes the memory to a specific NPC. Empty means the
	// memory is not NPC-scoped (e.g., a whole-session summary).
	NPCID string

	// Text is the memory content (typically a session summary).
	Text string

	// Tags classify the memory (e.g., {"type": "session_summary"}).
	Tags map[string]string

	// SourceRole records which side of the conversation produced the memory.
	SourceRole Role

	// Embedding is the optional vector representation of Text. When nil,
	// the record is excluded from similarity search.
	Embedding []float32
}

// MemoryRecord is one persisted long-term memory entry.
type MemoryRecord struct {
	// ID is the store-assigned record identifier.
	ID int64

	// UserID is the player this memory belongs to.
	UserID string

	// NPCID is the NPC scope, empty when not NPC-scoped.
	NPCID string

	// Text is the memory content.
	Text string

	// Tags classify the memory.
	Tags map[string]string

	// SourceRole is which side of the conversation produced the memory.
	SourceRole Role

	// CreatedAt is when the record was persisted.
	CreatedAt time.Time
}

// MessageStore is the durable, append-only log of chat turns.
//
// Implementations must be safe for concurrent use.
type MessageStore interface {
	// Append persists one chat turn and returns the stored record.
	// Returns [ErrInvalidRole] (wrapped) when role is outside {user, gm};
	// nothing is written in that case.
	Append(ctx context.Context, userID string, role Role, content string) (MessageRecord, error)

	// Recent returns up to limit most recent messages for userID, ordered
	// chronologically (oldest first). Returns an empty (non-nil) slice when
	// no messages exist.
	Recent(ctx context.Context, userID string, limit int) ([]MessageRecord, error)
}

// LongTermStore is the durable store of summarised session memories.
//
// Implementations must be safe for concurrent use.
type LongTermStore interface {
	// Append persists a long-term memory entry and returns the stored record.
	// Returns [ErrInvalidRole] (wrapped) when entry.SourceRole is invalid.
	Append(ctx context.Context, entry Entry) (MemoryRecord, error)

	// Search returns up to topK memories for userID whose embeddings are
	// closest to the query embedding, most similar first. Records without an
	// embedding are not returned. Returns an empty (non-nil) slice when no
	// memories match.
	Search(ctx context.Context, userID string, embedding []float32, topK int) ([]MemoryRecord, error)

	// RecentByTag returns up to limit most recent memories for userID whose
	// Tags contain the given key/value pair, newest first. Returns an empty
	// (non-nil) slice when none match.
	RecentByTag(ctx context.Context, userID, tagKey, tagValue string, limit int) ([]MemoryRecord, error)
}

// QuestStore tracks the current main-quest status per user. The status string
// is interpolated into the GM system prompt.
//
// Implementations must be safe for concurrent use.
type QuestStore interface {
	// CurrentStatus returns the user's quest status, or "" when none has
	// been recorded yet.
	CurrentStatus(ctx context.Context, userID string) (string, error)

	// SetStatus upserts the user's quest status.
	SetStatus(ctx context.Context, userID, status string) error
}
