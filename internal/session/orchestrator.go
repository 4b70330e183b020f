package session

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/emberforge/loreweave/internal/gm"
	"github.com/emberforge/loreweave/internal/observe"
	"github.com/emberforge/loreweave/pkg/memory"
	"github.com/emberforge/loreweave/pkg/provider/embeddings"
)

// DefaultAgentTimeout bounds a single agent invocation (model latency plus
// network). A timeout is classified as an AgentError.
const DefaultAgentTimeout = 30 * time.Second

// User-facing fallback and sentinel strings. These are part of the API
// contract: players never see raw internal errors, only these.
const (
	// FallbackAgentTrouble replaces the GM reply when the agent invocation
	// itself fails.
	FallbackAgentTrouble = "I'm having trouble processing that right now."

	// FallbackInteraction replaces the GM reply when anything after the
	// first persisted write fails unrecoverably.
	FallbackInteraction = "Something went wrong during the interaction."

	// FallbackSummarise replaces the summary when summarisation fails.
	FallbackSummarise = "Failed to summarize session."

	// PlaceholderEmptySummary is stored and returned when the agent produces
	// a blank summary.
	PlaceholderEmptySummary = "[Session Summary Unavailable]"

	// ResultNoActiveSession is returned when closing a user with no live
	// session. This is a normal result, not an error.
	ResultNoActiveSession = "No active session to summarize."

	// ResultNoMessages is returned when closing a session with zero recorded
	// turns.
	ResultNoMessages = "No messages to summarize."
)

// summaryTagKey/Value tag every session summary written to long-term memory.
const (
	summaryTagKey   = "type"
	summaryTagValue = "session_summary"
)

// summaryInstruction is the fixed summarisation prompt. The %s placeholder
// receives the rendered session transcript.
const summaryInstruction = "Summarize the following conversation between USER and GM " +
	"in 3-4 sentences. Focus on main events, player actions, and " +
	"important narrative developments.\n\n%s\n\n" +
	"Produce a concise summary of what happened during this session."

// Orchestrator coordinates the message store, the agent factory, the
// long-term memory store, and the session [Registry] to implement the two
// player-facing operations: the interactive turn and session close/summarise.
//
// The orchestrator holds references to its collaborators but does not own
// their lifetime. It is safe for concurrent use.
type Orchestrator struct {
	registry *Registry
	messages memory.MessageStore
	longterm memory.LongTermStore
	factory  gm.Factory
	embedder embeddings.Provider // nil: summaries stored without embedding
	metrics  *observe.Metrics

	agentTimeout time.Duration
}

// OrchestratorOption configures an [Orchestrator].
type OrchestratorOption func(*Orchestrator)

// WithAgentTimeout overrides the per-invocation agent timeout. Values <= 0
// keep the default.
func WithAgentTimeout(d time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		if d > 0 {
			o.agentTimeout = d
		}
	}
}

// WithSummaryEmbedder makes the orchestrator embed session summaries before
// storing them, enabling semantic recall in later sessions.
func WithSummaryEmbedder(e embeddings.Provider) OrchestratorOption {
	return func(o *Orchestrator) {
		o.embedder = e
	}
}

// WithMetrics overrides the metrics instance (tests use a private meter
// provider to avoid cross-test pollution).
func WithMetrics(m *observe.Metrics) OrchestratorOption {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// NewOrchestrator creates an [Orchestrator]. registry, messages, longterm,
// and factory must be non-nil.
func NewOrchestrator(registry *Registry, messages memory.MessageStore, longterm memory.LongTermStore, factory gm.Factory, opts ...OrchestratorOption) (*Orchestrator, error) {
	if registry == nil {
		return nil, fmt.Errorf("orchestrator: registry must not be nil")
	}
	if messages == nil || longterm == nil {
		return nil, fmt.Errorf("orchestrator: stores must be non-nil")
	}
	if factory == nil {
		return nil, fmt.Errorf("orchestrator: agent factory must not be nil")
	}

	o := &Orchestrator{
		registry:     registry,
		messages:     messages,
		longterm:     longterm,
		factory:      factory,
		agentTimeout: DefaultAgentTimeout,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.metrics == nil {
		o.metrics = observe.DefaultMetrics()
	}
	return o, nil
}

// HandleInteraction runs one interactive turn for userID:
//
//  1. Persist the user's message (role=user). A failure here aborts the turn
//     before the agent is ever invoked and escalates as a PersistenceError.
//  2. Build a fresh agent bound to the user and invoke it with the input,
//     bounded by the agent timeout.
//  3. Normalise the agent result; an invocation failure degrades to
//     [FallbackAgentTrouble] instead of propagating.
//  4. Persist the GM's reply (role=gm) and record the turn in the user's
//     live session.
//
// The returned text is always safe to show the player. An error return
// means the turn was aborted before the agent ran (validation or first-write
// persistence failure).
func (o *Orchestrator) HandleInteraction(ctx context.Context, userID, userInput string) (string, error) {
	start := time.Now()
	sess, created := o.registry.GetOrCreate(userID)
	if created {
		slog.Info("session started", "user_id", userID, "session_id", sess.ID)
	}

	if _, err := o.messages.Append(ctx, userID, memory.RoleUser, userInput); err != nil {
		if IsValidation(err) {
			return "", err
		}
		perr := &PersistenceError{Op: "append user message", UserID: userID, Err: err}
		slog.Error("interaction aborted", "user_id", userID, "op", perr.Op, "err", err)
		o.recordTurnMetrics(ctx, start, "persistence_error")
		return "", perr
	}

	gmText, err := o.invokeAgent(ctx, userID, userInput)
	status := "ok"
	if err != nil {
		slog.Error("agent invocation failed", "user_id", userID, "op", "interaction", "err", err)
		o.metrics.AgentErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("operation", "interaction")))
		gmText = FallbackAgentTrouble
		status = "agent_error"
	}

	if _, err := o.messages.Append(ctx, userID, memory.RoleGM, gmText); err != nil {
		slog.Error("failed to persist gm reply", "user_id", userID, "op", "append gm message", "err", err)
		o.recordTurnMetrics(ctx, start, "persistence_error")
		return FallbackInteraction, nil
	}

	sess.RecordTurn(userInput, gmText)
	o.recordTurnMetrics(ctx, start, status)
	return gmText, nil
}

// EndSession closes the user's session and summarises it into long-term
// memory. The session is removed from the registry before the agent is
// invoked, so a concurrent EndSession for the same user observes "no active
// session" — at most one summarisation attempt and one long-term write can
// happen per session.
//
// Returns a sentinel result when there is nothing to summarise. All
// failures during summarisation are recovered into [FallbackSummarise]; the
// error return is always nil today but kept for contract symmetry with
// HandleInteraction.
func (o *Orchestrator) EndSession(ctx context.Context, userID string) (string, error) {
	sess, ok := o.registry.Remove(userID)
	if !ok {
		return ResultNoActiveSession, nil
	}

	start := time.Now()
	turns := sess.Turns()
	if len(turns) == 0 {
		slog.Info("session closed with no turns", "user_id", userID, "session_id", sess.ID)
		return ResultNoMessages, nil
	}

	instruction := fmt.Sprintf(summaryInstruction, renderTranscript(turns))

	summary, err := o.invokeAgent(ctx, userID, instruction)
	if err != nil {
		slog.Error("summarisation failed", "user_id", userID, "op", "summarise", "err", err)
		o.metrics.AgentErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("operation", "summarise")))
		o.recordSummaryMetrics(ctx, start, "agent_error")
		return FallbackSummarise, nil
	}

	summary = strings.TrimSpace(summary)
	if summary == "" {
		summary = PlaceholderEmptySummary
	}

	entry := memory.Entry{
		UserID:     userID,
		Text:       summary,
		Tags:       map[string]string{summaryTagKey: summaryTagValue},
		SourceRole: memory.RoleGM,
	}
	if o.embedder != nil {
		vec, err := o.embedder.Embed(ctx, summary)
		if err != nil {
			slog.Warn("summary embedding failed; storing without vector",
				"user_id", userID, "err", err)
		} else {
			entry.Embedding = vec
		}
	}

	if _, err := o.longterm.Append(ctx, entry); err != nil {
		slog.Error("failed to persist session summary",
			"user_id", userID, "op", "append long-term memory", "err", err)
		o.recordSummaryMetrics(ctx, start, "persistence_error")
		return FallbackSummarise, nil
	}

	slog.Info("session summary stored",
		"user_id", userID,
		"session_id", sess.ID,
		"turns", len(turns),
	)
	o.recordSummaryMetrics(ctx, start, "ok")
	return summary, nil
}

// invokeAgent builds a fresh agent for userID and invokes it with input,
// bounded by the agent timeout. The result is normalised to text. Both
// construction and invocation failures are returned as AgentErrors.
func (o *Orchestrator) invokeAgent(ctx context.Context, userID, input string) (string, error) {
	agent, err := o.factory.Build(ctx, userID)
	if err != nil {
		return "", &AgentError{Op: "build", UserID: userID, Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, o.agentTimeout)
	defer cancel()

	result, err := agent.Invoke(ctx, gm.Input(input))
	if err != nil {
		return "", &AgentError{Op: "invoke", UserID: userID, Err: err}
	}
	return normalizeResult(result), nil
}

// normalizeResult converts an agent result to text: a structured mapping
// yields its "output" field (or "" when absent or non-string), nil yields "",
// and anything else is stringified.
func normalizeResult(result any) string {
	switch v := result.(type) {
	case map[string]any:
		out, _ := v[gm.OutputKey].(string)
		return out
	case string:
		return v
	case nil:
		return ""
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

// renderTranscript formats turns as alternating USER/GM lines in insertion
// order, the shape the summarisation instruction expects.
func renderTranscript(turns []Turn) string {
	lines := make([]string, len(turns))
	for i, t := range turns {
		lines[i] = fmt.Sprintf("USER: %s\nGM: %s", t.User, t.GM)
	}
	return strings.Join(lines, "\n")
}

func (o *Orchestrator) recordTurnMetrics(ctx context.Context, start time.Time, status string) {
	o.metrics.TurnDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(attribute.String("status", status)))
	o.metrics.Interactions.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", status)))
}

func (o *Orchestrator) recordSummaryMetrics(ctx context.Context, start time.Time, status string) {
	o.metrics.SummariseDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(attribute.String("status", status)))
	o.metrics.Summaries.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", status)))
}
