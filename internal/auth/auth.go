// Package auth provides bearer-token authentication for the HTTP API.
//
// Tokens are JWTs signed with HMAC-SHA256 using a shared secret. The token's
// "sub" claim identifies the player; handlers read it back from the request
// context via [UserID].
package auth

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// ctxKey is the private context key type for values stored by this package.
type ctxKey int

const userIDKey ctxKey = iota

// UserID returns the authenticated user ID stored in ctx by [Middleware].
// Returns the empty string when the request was not authenticated.
func UserID(ctx context.Context) string {
	id, _ := ctx.Value(userIDKey).(string)
	return id
}

// WithUserID returns a context carrying userID. Exposed for tests that
// exercise handlers without the middleware.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// Verifier validates bearer tokens and extracts the subject.
type Verifier struct {
	secret []byte
	issuer string
}

// VerifierConfig configures a [Verifier].
type VerifierConfig struct {
	// Secret is the HMAC key used to verify token signatures. Required.
	Secret []byte

	// Issuer, when non-empty, must match the token's "iss" claim.
	Issuer string
}

// NewVerifier creates a [Verifier]. The secret must be non-empty.
func NewVerifier(cfg VerifierConfig) (*Verifier, error) {
	if len(cfg.Secret) == 0 {
		return nil, fmt.Errorf("auth: signing secret must not be empty")
	}
	return &Verifier{secret: cfg.Secret, issuer: cfg.Issuer}, nil
}

// Verify parses and validates tokenString and returns the subject claim.
func (v *Verifier) Verify(tokenString string) (string, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return "", fmt.Errorf("parsing token: %w", err)
	}
	if !token.Valid {
		return "", fmt.Errorf("invalid token")
	}

	sub, err := token.Claims.GetSubject()
	if err != nil || sub == "" {
		return "", fmt.Errorf("missing sub claim")
	}
	return sub, nil
}

// Middleware returns middleware that rejects requests without a valid
// "Authorization: Bearer <token>" header with 401 and stores the token's
// subject in the request context for downstream handlers.
func (v *Verifier) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString, ok := bearerToken(r)
		if !ok {
			unauthorized(w, "missing bearer token")
			return
		}

		userID, err := v.Verify(tokenString)
		if err != nil {
			slog.Debug("rejected request", "path", r.URL.Path, "err", err)
			unauthorized(w, "invalid token")
			return
		}

		next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
	})
}

// bearerToken extracts the token from the Authorization header.
func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(h) <= len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return "", false
	}
	return h[len(prefix):], true
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("WWW-Authenticate", `Bearer realm="loreweave"`)
	w.WriteHeader(http.StatusUnauthorized)
	fmt.Fprintf(w, `{"error":%q}`+"\n", msg)
}
