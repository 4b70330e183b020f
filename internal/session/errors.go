package session

import (
	"errors"
	"fmt"

	"github.com/emberforge/loreweave/pkg/memory"
)

// The orchestrator classifies internal failures into a small taxonomy so
// that callers and tests can distinguish them, while end users only ever see
// the fixed fallback strings defined in orchestrator.go.

// PersistenceError wraps a store write failure. A PersistenceError on the
// first write of an interaction escalates to the HTTP boundary; all later
// ones are recovered into fallback text.
type PersistenceError struct {
	// Op names the failing operation (e.g., "append user message").
	Op string

	// UserID is the player the operation was for.
	UserID string

	// Err is the underlying store error.
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence: %s for user %s: %v", e.Op, e.UserID, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// AgentError wraps an agent construction or invocation failure, including
// timeouts.
type AgentError struct {
	// Op names the failing operation (e.g., "invoke", "build").
	Op string

	// UserID is the player the agent was bound to.
	UserID string

	// Err is the underlying failure.
	Err error
}

func (e *AgentError) Error() string {
	return fmt.Sprintf("agent: %s for user %s: %v", e.Op, e.UserID, e.Err)
}

func (e *AgentError) Unwrap() error { return e.Err }

// IsValidation reports whether err is a contract violation (currently only an
// invalid chat role reaching a store).
func IsValidation(err error) bool {
	return errors.Is(err, memory.ErrInvalidRole)
}

// IsPersistence reports whether err is (or wraps) a PersistenceError.
func IsPersistence(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe)
}

// IsAgent reports whether err is (or wraps) an AgentError.
func IsAgent(err error) bool {
	var ae *AgentError
	return errors.As(err, &ae)
}
