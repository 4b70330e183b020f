package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/emberforge/loreweave/internal/auth"
)

// defaultNPCID identifies the narrator persona in chat responses. There is a
// single game-master voice today; the field exists so clients are ready for
// multiple NPCs.
const defaultNPCID = "elara"

// maxBodyBytes caps request bodies to keep a hostile client from streaming
// an unbounded message.
const maxBodyBytes = 64 << 10

// chatRequest is the body of POST /chat.
type chatRequest struct {
	Message string `json:"message"`
}

// chatResponse is the body of a successful POST /chat.
type chatResponse struct {
	NPCID    string `json:"npc_id"`
	Response string `json:"response"`
}

// endSessionResponse is the body of a successful POST /end-session.
type endSessionResponse struct {
	Message string `json:"message"`
	Summary string `json:"summary"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// handleChat runs one interactive turn for the authenticated player.
// Recovered agent and late persistence failures still return 200 with
// player-safe fallback text. Any error escaping the orchestrator — an
// escalated persistence failure, or a role-invariant violation, which only
// the orchestrator itself can cause — is an internal fault: 500 with a
// generic body, details go to the log.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	var req chatRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "message must not be empty")
		return
	}

	reply, err := s.orchestrator.HandleInteraction(r.Context(), userID, req.Message)
	if err != nil {
		slog.Error("interaction failed", "user_id", userID, "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, chatResponse{NPCID: defaultNPCID, Response: reply})
}

// handleEndSession closes the player's session and returns the stored
// summary. Closing a user without a live session is a normal 200.
func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	summary, err := s.orchestrator.EndSession(r.Context(), userID)
	if err != nil {
		slog.Error("end session failed", "user_id", userID, "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, endSessionResponse{
		Message: "Session ended and summarized successfully.",
		Summary: summary,
	})
}

// decodeJSON decodes a single JSON object from the request body, rejecting
// unknown fields and trailing data.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return errTrailingBody
	}
	return nil
}

var errTrailingBody = errors.New("unexpected trailing data in request body")

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "err", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
