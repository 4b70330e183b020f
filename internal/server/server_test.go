package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/emberforge/loreweave/internal/auth"
	"github.com/emberforge/loreweave/internal/gm"
	"github.com/emberforge/loreweave/internal/health"
	"github.com/emberforge/loreweave/internal/observe"
	"github.com/emberforge/loreweave/internal/session"
	"github.com/emberforge/loreweave/pkg/memory"
	memmock "github.com/emberforge/loreweave/pkg/memory/mock"
)

var testSecret = []byte("server-test-secret")

// agentFunc adapts a function to the gm.Agent interface.
type agentFunc func(ctx context.Context, input map[string]any) (any, error)

func (f agentFunc) Invoke(ctx context.Context, input map[string]any) (any, error) {
	return f(ctx, input)
}

type stubFactory struct {
	agent gm.Agent
}

func (f *stubFactory) Build(context.Context, string) (gm.Agent, error) {
	return f.agent, nil
}

// echoAgent answers chat turns with a fixed reply and summarisation prompts
// with a fixed summary, so lifecycle tests can tell the two apart.
func echoAgent(reply, summary string) gm.Agent {
	return agentFunc(func(_ context.Context, input map[string]any) (any, error) {
		text, _ := input[gm.InputKey].(string)
		if strings.Contains(text, "Summarize the following conversation") {
			return summary, nil
		}
		return map[string]any{gm.OutputKey: reply}, nil
	})
}

type testEnv struct {
	handler  http.Handler
	messages *memmock.MessageStore
	longterm *memmock.LongTermStore
}

func newTestEnv(t *testing.T, agent gm.Agent) *testEnv {
	t.Helper()

	messages := &memmock.MessageStore{}
	longterm := &memmock.LongTermStore{}

	orch, err := session.NewOrchestrator(
		session.NewRegistry(), messages, longterm, &stubFactory{agent: agent},
	)
	if err != nil {
		t.Fatalf("NewOrchestrator: %v", err)
	}

	verifier, err := auth.NewVerifier(auth.VerifierConfig{Secret: testSecret})
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}

	mp := sdkmetric.NewMeterProvider()
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	metrics, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	srv := New(Config{ListenAddr: ":0"}, orch, verifier, health.New("test"), metrics)
	return &testEnv{handler: srv.routes(), messages: messages, longterm: longterm}
}

func signToken(t *testing.T, sub string) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": sub,
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := tok.SignedString(testSecret)
	if err != nil {
		t.Fatalf("signing token: %v", err)
	}
	return signed
}

func doRequest(t *testing.T, h http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encoding body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decoding response %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestChat_Success(t *testing.T) {
	env := newTestEnv(t, echoAgent("Welcome to the tavern.", ""))
	token := signToken(t, "player-1")

	rec := doRequest(t, env.handler, "POST", "/chat", token, chatRequest{Message: "hello"})

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	resp := decodeBody[chatResponse](t, rec)
	if resp.NPCID != "elara" {
		t.Errorf("npc_id = %q, want %q", resp.NPCID, "elara")
	}
	if resp.Response != "Welcome to the tavern." {
		t.Errorf("response = %q", resp.Response)
	}

	msgs := env.messages.All()
	if len(msgs) != 2 {
		t.Fatalf("persisted %d messages, want 2", len(msgs))
	}
	if msgs[0].Content != "hello" || msgs[1].Content != "Welcome to the tavern." {
		t.Errorf("persisted exchange = %q / %q", msgs[0].Content, msgs[1].Content)
	}
}

func TestChat_Unauthenticated(t *testing.T) {
	env := newTestEnv(t, echoAgent("hi", ""))

	rec := doRequest(t, env.handler, "POST", "/chat", "", chatRequest{Message: "hello"})

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if len(env.messages.All()) != 0 {
		t.Error("unauthenticated request reached the orchestrator")
	}
}

func TestChat_BadRequests(t *testing.T) {
	env := newTestEnv(t, echoAgent("hi", ""))
	token := signToken(t, "player-1")

	tests := []struct {
		name string
		body string
	}{
		{"empty message", `{"message": "   "}`},
		{"missing message", `{}`},
		{"unknown field", `{"message": "hi", "npc": "elara"}`},
		{"malformed json", `{"message": `},
		{"trailing data", `{"message": "hi"}{"message": "again"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/chat", strings.NewReader(tt.body))
			req.Header.Set("Authorization", "Bearer "+token)
			rec := httptest.NewRecorder()
			env.handler.ServeHTTP(rec, req)

			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400 (body %s)", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestChat_FirstWriteFailureIs500(t *testing.T) {
	env := newTestEnv(t, echoAgent("hi", ""))
	env.messages.AppendErr = errors.New("connection refused")
	token := signToken(t, "player-1")

	rec := doRequest(t, env.handler, "POST", "/chat", token, chatRequest{Message: "hello"})

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	resp := decodeBody[errorResponse](t, rec)
	if resp.Error != "internal error" {
		t.Errorf("error = %q, leaked internals?", resp.Error)
	}
}

// A role-invariant violation can only come from the orchestrator itself, so
// it must surface as an internal fault, never as client-caused 400 carrying
// store internals.
func TestChat_RoleViolationIs500(t *testing.T) {
	env := newTestEnv(t, echoAgent("hi", ""))
	env.messages.AppendErr = memory.ErrInvalidRole
	token := signToken(t, "player-1")

	rec := doRequest(t, env.handler, "POST", "/chat", token, chatRequest{Message: "hello"})

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	resp := decodeBody[errorResponse](t, rec)
	if resp.Error != "internal error" {
		t.Errorf("error = %q, leaked internals?", resp.Error)
	}
}

func TestChat_AgentFailureStaysPlayerSafe(t *testing.T) {
	agent := agentFunc(func(context.Context, map[string]any) (any, error) {
		return nil, errors.New("model overloaded")
	})
	env := newTestEnv(t, agent)
	token := signToken(t, "player-1")

	rec := doRequest(t, env.handler, "POST", "/chat", token, chatRequest{Message: "hello"})

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	resp := decodeBody[chatResponse](t, rec)
	if resp.Response != session.FallbackAgentTrouble {
		t.Errorf("response = %q, want fallback text", resp.Response)
	}
}

func TestEndSession_WithoutSession(t *testing.T) {
	env := newTestEnv(t, echoAgent("hi", ""))
	token := signToken(t, "player-1")

	rec := doRequest(t, env.handler, "POST", "/end-session", token, nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	resp := decodeBody[endSessionResponse](t, rec)
	if resp.Message != "Session ended and summarized successfully." {
		t.Errorf("message = %q", resp.Message)
	}
	if resp.Summary != session.ResultNoActiveSession {
		t.Errorf("summary = %q", resp.Summary)
	}
}

func TestSessionLifecycle(t *testing.T) {
	env := newTestEnv(t, echoAgent("You see a dragon.", "The party met a dragon."))
	token := signToken(t, "player-1")

	rec := doRequest(t, env.handler, "POST", "/chat", token, chatRequest{Message: "look around"})
	if rec.Code != http.StatusOK {
		t.Fatalf("chat status = %d", rec.Code)
	}

	rec = doRequest(t, env.handler, "POST", "/end-session", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("end-session status = %d, body %s", rec.Code, rec.Body.String())
	}
	resp := decodeBody[endSessionResponse](t, rec)
	if resp.Summary != "The party met a dragon." {
		t.Errorf("summary = %q", resp.Summary)
	}

	stored := env.longterm.All()
	if len(stored) != 1 {
		t.Fatalf("stored %d long-term memories, want 1", len(stored))
	}
	if stored[0].Text != "The party met a dragon." {
		t.Errorf("stored text = %q", stored[0].Text)
	}
	if stored[0].Tags["type"] != "session_summary" {
		t.Errorf("stored tags = %v", stored[0].Tags)
	}
	if stored[0].UserID != "player-1" {
		t.Errorf("stored user = %q", stored[0].UserID)
	}

	// Closing again finds no session.
	rec = doRequest(t, env.handler, "POST", "/end-session", token, nil)
	resp = decodeBody[endSessionResponse](t, rec)
	if resp.Summary != session.ResultNoActiveSession {
		t.Errorf("second close summary = %q", resp.Summary)
	}
	if got := len(env.longterm.All()); got != 1 {
		t.Errorf("second close stored another summary (%d total)", got)
	}
}

func TestUnauthenticatedEndpoints(t *testing.T) {
	env := newTestEnv(t, echoAgent("hi", ""))

	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		t.Run(path, func(t *testing.T) {
			rec := doRequest(t, env.handler, "GET", path, "", nil)
			if rec.Code != http.StatusOK {
				t.Errorf("GET %s = %d, want 200 without auth", path, rec.Code)
			}
		})
	}
}

func TestChat_UsersAreIsolated(t *testing.T) {
	env := newTestEnv(t, echoAgent("reply", "summary"))

	rec := doRequest(t, env.handler, "POST", "/chat", signToken(t, "alice"), chatRequest{Message: "one"})
	if rec.Code != http.StatusOK {
		t.Fatalf("alice chat = %d", rec.Code)
	}
	rec = doRequest(t, env.handler, "POST", "/chat", signToken(t, "bob"), chatRequest{Message: "two"})
	if rec.Code != http.StatusOK {
		t.Fatalf("bob chat = %d", rec.Code)
	}

	// Ending alice's session must not touch bob's.
	rec = doRequest(t, env.handler, "POST", "/end-session", signToken(t, "alice"), nil)
	if got := decodeBody[endSessionResponse](t, rec).Summary; got != "summary" {
		t.Fatalf("alice summary = %q", got)
	}
	rec = doRequest(t, env.handler, "POST", "/end-session", signToken(t, "bob"), nil)
	if got := decodeBody[endSessionResponse](t, rec).Summary; got != "summary" {
		t.Fatalf("bob summary = %q", got)
	}

	stored := env.longterm.All()
	if len(stored) != 2 {
		t.Fatalf("stored %d summaries, want 2", len(stored))
	}
	users := map[string]bool{stored[0].UserID: true, stored[1].UserID: true}
	if !users["alice"] || !users["bob"] {
		t.Errorf("summary owners = %v", users)
	}
}
