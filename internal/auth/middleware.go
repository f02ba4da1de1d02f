package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/yourorg/evidencelog/internal/audit"
)

// ErrorBody is the JSON body of every auth failure.
type ErrorBody struct {
	Code              string `json:"code"`
	Message           string `json:"message"`
	CorrID            string `json:"corrId"`
	Retryable         bool   `json:"retryable"`
	RetryAfterSeconds int    `json:"retryAfterSeconds,omitempty"`
}

// CorrelationID returns the request's X-Correlation-Id, or a new one.
func CorrelationID(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get("X-Correlation-Id")); id != "" {
		return id
	}
	if id := audit.CorrelationID(r.Context()); id != "" {
		return id
	}
	return uuid.NewString()
}

// Middleware authenticates bearer access keys, applies the per-key rate
// limit and attaches the Actor to the request context.
func Middleware(keys KeyStore, limiter *RateLimiter, trail *audit.Trail, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			corrID := CorrelationID(r)
			ctx := audit.WithCorrelationID(r.Context(), corrID)

			raw := extractKey(r)
			if raw == "" {
				writeError(w, http.StatusUnauthorized, ErrorBody{Code: "AUTH_REQUIRED", Message: "access key required", CorrID: corrID})
				return
			}
			key, err := keys.Validate(ctx, raw)
			if err != nil {
				status, body := failure(err, corrID)
				if key.ID != "" {
					_, _ = trail.Record(ctx, key.ProfileID, "auth.rejected", key.ID, body.Code)
				}
				logger.WarnContext(ctx, "access key rejected", "corrId", corrID, "code", body.Code, "keyPrefix", ExtractKeyPrefix(raw))
				writeError(w, status, body)
				return
			}
			if ok, retry := limiter.Allow(key.ID); !ok {
				secs := retrySeconds(retry)
				w.Header().Set("Retry-After", strconv.Itoa(secs))
				writeError(w, http.StatusTooManyRequests, ErrorBody{Code: "RATE_LIMITED", Message: "too many requests", CorrID: corrID, Retryable: true, RetryAfterSeconds: secs})
				return
			}
			if err := keys.Touch(ctx, key.ID); err != nil {
				logger.WarnContext(ctx, "access key touch failed", "keyId", key.ID, "error", err)
			}

			actor := &Actor{ProfileID: key.ProfileID, KeyID: key.ID, KeyName: key.Name, Scopes: key.Scopes}
			ctx = ContextWithActor(ctx, actor)
			ctx = audit.WithActor(ctx, "key:"+key.ID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireScope rejects requests whose actor lacks scope. Requests without
// an actor pass through untouched; that is the auth-disabled mode.
func RequireScope(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if actor, ok := ActorFromContext(r.Context()); ok && !actor.HasScope(scope) {
				writeError(w, http.StatusForbidden, ErrorBody{
					Code:    "INSUFFICIENT_SCOPE",
					Message: fmt.Sprintf("required scope: %s", scope),
					CorrID:  CorrelationID(r),
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Authorize reports whether the request may act on profileID.
func Authorize(ctx context.Context, profileID string) bool {
	actor, ok := ActorFromContext(ctx)
	return !ok || actor.CanAccess(profileID)
}

func failure(err error, corrID string) (int, ErrorBody) {
	switch {
	case errors.Is(err, ErrMalformedKey):
		return http.StatusUnauthorized, ErrorBody{Code: "INVALID_KEY", Message: "malformed access key", CorrID: corrID}
	case errors.Is(err, ErrInvalidAccessKey):
		return http.StatusUnauthorized, ErrorBody{Code: "INVALID_KEY", Message: "invalid access key", CorrID: corrID}
	case errors.Is(err, ErrKeyExpired):
		return http.StatusUnauthorized, ErrorBody{Code: "KEY_EXPIRED", Message: "access key has expired", CorrID: corrID}
	case errors.Is(err, ErrKeyRevoked):
		return http.StatusUnauthorized, ErrorBody{Code: "KEY_REVOKED", Message: "access key has been revoked", CorrID: corrID}
	}
	return http.StatusInternalServerError, ErrorBody{Code: "AUTH_FAILED", Message: "authentication failed", CorrID: corrID, Retryable: true}
}

// extractKey accepts "Bearer <key>", "ApiKey <key>" or X-API-Key.
func extractKey(r *http.Request) string {
	h := r.Header.Get("Authorization")
	for _, scheme := range []string{"Bearer ", "ApiKey "} {
		if strings.HasPrefix(h, scheme) {
			return strings.TrimSpace(strings.TrimPrefix(h, scheme))
		}
	}
	return strings.TrimSpace(r.Header.Get("X-API-Key"))
}

func retrySeconds(d time.Duration) int {
	return int(math.Max(1, math.Ceil(d.Seconds())))
}

func writeError(w http.ResponseWriter, status int, body ErrorBody) {
	w.Header().Set("Content-Type", "application/json")
	if body.CorrID != "" {
		w.Header().Set("X-Correlation-Id", body.CorrID)
	}
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
