package observe

import (
	"context"
	"time"

	"github.com/emberforge/loreweave/pkg/provider/llm"
)

// InstrumentLLM wraps p so that every Complete call records its latency to
// [Metrics.CompletionDuration], tagged with the backend name and outcome.
// A nil metrics instance returns p unwrapped, which keeps test wiring cheap.
func InstrumentLLM(p llm.Provider, name string, m *Metrics) llm.Provider {
	if m == nil {
		return p
	}
	return &timedLLM{next: p, name: name, metrics: m}
}

var _ llm.Provider = (*timedLLM)(nil)

type timedLLM struct {
	next    llm.Provider
	name    string
	metrics *Metrics
}

func (t *timedLLM) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	started := time.Now()
	resp, err := t.next.Complete(ctx, req)

	status := "ok"
	if err != nil {
		status = "error"
	}
	t.metrics.RecordCompletion(ctx, t.name, status, time.Since(started).Seconds())

	return resp, err
}

func (t *timedLLM) ModelID() string { return t.next.ModelID() }
