// Package gm implements the conversational game-master agent.
//
// The two primary abstractions are:
//
//   - [Agent] — an opaque request/response collaborator: it receives a prompt
//     input mapping and returns a result that may be a structured mapping
//     with an "output" key or any stringifiable value.
//   - [Factory] — builds a fresh per-user Agent, loading prior long-term
//     memory and quest state from the stores.
//
// This package lives under internal/ because it encapsulates
// application-private prompt-assembly logic and is not intended to be
// imported by external code.
package gm

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/emberforge/loreweave/pkg/memory"
	"github.com/emberforge/loreweave/pkg/provider/embeddings"
	"github.com/emberforge/loreweave/pkg/provider/llm"
)

// InputKey is the prompt-input mapping key carrying the user's text.
const InputKey = "input"

// OutputKey is the key under which a structured agent response carries its
// reply text.
const OutputKey = "output"

// completionTemperature balances narrative variety against coherence.
const completionTemperature = 0.7

// Input wraps text in the prompt-input mapping shape agents accept.
func Input(text string) map[string]any {
	return map[string]any{InputKey: text}
}

// Agent is the opaque conversational collaborator invoked per turn and per
// summarisation. The returned value is either a mapping containing an
// "output" key or an arbitrary stringifiable value; callers must normalise
// it rather than assuming a shape.
//
// Implementations must be safe for concurrent use.
type Agent interface {
	Invoke(ctx context.Context, input map[string]any) (any, error)
}

// GMAgent is an [Agent] bound to a single user. It assembles the cinematic
// GM system prompt from the user's quest status and long-term memories, adds
// recent chat history, and completes via the configured LLM provider.
type GMAgent struct {
	userID      string
	provider    llm.Provider
	embedder    embeddings.Provider // may be nil
	memories    memory.LongTermStore
	questStatus string
	history     []memory.MessageRecord
	memoryTopK  int
}

// Compile-time interface assertion.
var _ Agent = (*GMAgent)(nil)

// Invoke implements [Agent]. It retrieves semantically relevant long-term
// memories for the input (when an embeddings provider is configured),
// renders the GM system prompt, replays recent chat history, and returns a
// structured mapping {"output": <gm text>}.
//
// Memory retrieval failures degrade to a prompt without memories; only the
// completion itself can fail the invocation.
func (a *GMAgent) Invoke(ctx context.Context, input map[string]any) (any, error) {
	text, _ := input[InputKey].(string)
	if text == "" {
		return nil, fmt.Errorf("gm agent: empty %q field in prompt input", InputKey)
	}

	recalled := a.recallMemories(ctx, text)

	req := llm.CompletionRequest{
		SystemPrompt: renderSystemPrompt(a.questStatus, recalled),
		Temperature:  completionTemperature,
	}
	for _, m := range a.history {
		role := "user"
		if m.Role == memory.RoleGM {
			role = "assistant"
		}
		req.Messages = append(req.Messages, llm.Message{Role: role, Content: m.Content})
	}
	req.Messages = append(req.Messages, llm.Message{Role: "user", Content: text})

	resp, err := a.provider.Complete(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("gm agent: complete: %w", err)
	}

	return map[string]any{OutputKey: resp.Content}, nil
}

// recallMemories returns long-term memories relevant to text. With an
// embeddings provider it performs a vector similarity search; without one it
// falls back to the most recent session summaries. Failures are logged and
// yield no memories.
func (a *GMAgent) recallMemories(ctx context.Context, text string) []memory.MemoryRecord {
	if a.memories == nil {
		return nil
	}

	if a.embedder != nil {
		vec, err := a.embedder.Embed(ctx, text)
		if err == nil {
			recs, serr := a.memories.Search(ctx, a.userID, vec, a.memoryTopK)
			if serr == nil {
				return recs
			}
			err = serr
		}
		slog.Warn("memory recall degraded to recency",
			"user_id", a.userID, "err", err)
	}

	recs, err := a.memories.RecentByTag(ctx, a.userID, "type", "session_summary", a.memoryTopK)
	if err != nil {
		slog.Warn("memory recall failed; continuing without memories",
			"user_id", a.userID, "err", err)
		return nil
	}
	return recs
}
