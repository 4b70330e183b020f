package gm

import (
	"context"
	"fmt"

	"github.com/emberforge/loreweave/pkg/memory"
	"github.com/emberforge/loreweave/pkg/provider/embeddings"
	"github.com/emberforge/loreweave/pkg/provider/llm"
)

// defaultHistoryLimit bounds how many recent chat turns are replayed into a
// fresh agent's conversation history.
const defaultHistoryLimit = 20

// defaultMemoryTopK bounds how many long-term memories are injected into the
// system prompt.
const defaultMemoryTopK = 5

// Factory builds a fresh [Agent] bound to a user. Construction is itself a
// collaborator operation: it reads persisted state and may fail.
type Factory interface {
	Build(ctx context.Context, userID string) (Agent, error)
}

// GMFactory is the production [Factory]. Each Build loads the user's quest
// status and recent chat history so the resulting agent starts with current
// world state.
type GMFactory struct {
	provider llm.Provider
	embedder embeddings.Provider // nil disables semantic memory recall
	messages memory.MessageStore
	memories memory.LongTermStore
	quests   memory.QuestStore

	historyLimit int
	memoryTopK   int
}

// Compile-time interface assertion.
var _ Factory = (*GMFactory)(nil)

// FactoryOption configures a [GMFactory].
type FactoryOption func(*GMFactory)

// WithHistoryLimit overrides how many recent chat turns are replayed into
// each agent. Values <= 0 keep the default.
func WithHistoryLimit(n int) FactoryOption {
	return func(f *GMFactory) {
		if n > 0 {
			f.historyLimit = n
		}
	}
}

// WithMemoryTopK overrides how many long-term memories are retrieved per
// invocation. Values <= 0 keep the default.
func WithMemoryTopK(n int) FactoryOption {
	return func(f *GMFactory) {
		if n > 0 {
			f.memoryTopK = n
		}
	}
}

// WithEmbedder enables semantic memory recall using the given provider.
func WithEmbedder(e embeddings.Provider) FactoryOption {
	return func(f *GMFactory) {
		f.embedder = e
	}
}

// NewFactory creates a [GMFactory]. provider, messages, memories, and quests
// must be non-nil.
func NewFactory(provider llm.Provider, messages memory.MessageStore, memories memory.LongTermStore, quests memory.QuestStore, opts ...FactoryOption) (*GMFactory, error) {
	if provider == nil {
		return nil, fmt.Errorf("gm factory: llm provider must not be nil")
	}
	if messages == nil || memories == nil || quests == nil {
		return nil, fmt.Errorf("gm factory: all stores must be non-nil")
	}

	f := &GMFactory{
		provider:     provider,
		messages:     messages,
		memories:     memories,
		quests:       quests,
		historyLimit: defaultHistoryLimit,
		memoryTopK:   defaultMemoryTopK,
	}
	for _, o := range opts {
		o(f)
	}
	return f, nil
}

// Build implements [Factory]. It reads the user's quest status and recent
// chat history; a failure in either read fails the build, since an agent
// without world state would contradict established continuity.
func (f *GMFactory) Build(ctx context.Context, userID string) (Agent, error) {
	questStatus, err := f.quests.CurrentStatus(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("gm factory: load quest status for %q: %w", userID, err)
	}

	history, err := f.messages.Recent(ctx, userID, f.historyLimit)
	if err != nil {
		return nil, fmt.Errorf("gm factory: load chat history for %q: %w", userID, err)
	}

	return &GMAgent{
		userID:      userID,
		provider:    f.provider,
		embedder:    f.embedder,
		memories:    f.memories,
		questStatus: questStatus,
		history:     history,
		memoryTopK:  f.memoryTopK,
	}, nil
}
