// Package mock provides in-memory test doubles for the memory store
// interfaces. All types record their calls and support error injection so
// that orchestrator tests can exercise persistence failure paths without a
// database.
package mock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/emberforge/loreweave/pkg/memory"
)

// Compile-time interface assertions.
var (
	_ memory.MessageStore  = (*MessageStore)(nil)
	_ memory.LongTermStore = (*LongTermStore)(nil)
	_ memory.QuestStore    = (*QuestStore)(nil)
)

// MessageStore is an in-memory implementation of memory.MessageStore.
type MessageStore struct {
	mu      sync.Mutex
	nextID  int64
	records []memory.MessageRecord

	// AppendErr, if non-nil, is returned from Append instead of writing.
	AppendErr error
}

// Append validates the role and stores the message in memory.
func (s *MessageStore) Append(_ context.Context, userID string, role memory.Role, content string) (memory.MessageRecord, error) {
	if !role.IsValid() {
		return memory.MessageRecord{}, fmt.Errorf("mock message store: role %q: %w", role, memory.ErrInvalidRole)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.AppendErr != nil {
		return memory.MessageRecord{}, s.AppendErr
	}

	s.nextID++
	rec := memory.MessageRecord{
		ID:        s.nextID,
		UserID:    userID,
		Role:      role,
		Content:   content,
		CreatedAt: time.Now(),
	}
	s.records = append(s.records, rec)
	return rec, nil
}

// Recent returns up to limit stored messages for userID, oldest first.
func (s *MessageStore) Recent(_ context.Context, userID string, limit int) ([]memory.MessageRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []memory.MessageRecord{}
	for _, rec := range s.records {
		if rec.UserID == userID {
			out = append(out, rec)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

// All returns a snapshot of every stored message.
func (s *MessageStore) All() []memory.MessageRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]memory.MessageRecord, len(s.records))
	copy(out, s.records)
	return out
}

// LongTermStore is an in-memory implementation of memory.LongTermStore.
// Search ignores vector distance and returns the user's embedded records in
// insertion order, which is deterministic enough for unit tests.
type LongTermStore struct {
	mu      sync.Mutex
	nextID  int64
	entries []memory.Entry
	records []memory.MemoryRecord

	// AppendErr, if non-nil, is returned from Append instead of writing.
	AppendErr error
}

// Append validates the source role and stores the entry in memory.
func (s *LongTermStore) Append(_ context.Context, entry memory.Entry) (memory.MemoryRecord, error) {
	if !entry.SourceRole.IsValid() {
		return memory.MemoryRecord{}, fmt.Errorf("mock long-term store: source role %q: %w", entry.SourceRole, memory.ErrInvalidRole)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.AppendErr != nil {
		return memory.MemoryRecord{}, s.AppendErr
	}

	s.nextID++
	rec := memory.MemoryRecord{
		ID:         s.nextID,
		UserID:     entry.UserID,
		NPCID:      entry.NPCID,
		Text:       entry.Text,
		Tags:       entry.Tags,
		SourceRole: entry.SourceRole,
		CreatedAt:  time.Now(),
	}
	s.entries = append(s.entries, entry)
	s.records = append(s.records, rec)
	return rec, nil
}

// Search returns up to topK of the user's records that carry an embedding.
func (s *LongTermStore) Search(_ context.Context, userID string, _ []float32, topK int) ([]memory.MemoryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []memory.MemoryRecord{}
	for i, rec := range s.records {
		if rec.UserID == userID && s.entries[i].Embedding != nil {
			out = append(out, rec)
		}
	}
	if topK > 0 && len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}

// RecentByTag returns up to limit of the user's records matching the tag,
// newest first.
func (s *LongTermStore) RecentByTag(_ context.Context, userID, tagKey, tagValue string, limit int) ([]memory.MemoryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []memory.MemoryRecord{}
	for i := len(s.records) - 1; i >= 0; i-- {
		rec := s.records[i]
		if rec.UserID == userID && rec.Tags[tagKey] == tagValue {
			out = append(out, rec)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// All returns a snapshot of every stored memory record.
func (s *LongTermStore) All() []memory.MemoryRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]memory.MemoryRecord, len(s.records))
	copy(out, s.records)
	return out
}

// QuestStore is an in-memory implementation of memory.QuestStore.
type QuestStore struct {
	mu       sync.Mutex
	statuses map[string]string
}

// CurrentStatus returns the stored status or "" when none exists.
func (s *QuestStore) CurrentStatus(_ context.Context, userID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statuses[userID], nil
}

// SetStatus upserts the user's quest status.
func (s *QuestStore) SetStatus(_ context.Context, userID, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.statuses == nil {
		s.statuses = make(map[string]string)
	}
	s.statuses[userID] = status
	return nil
}
