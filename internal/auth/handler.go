package auth

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/yourorg/evidencelog/internal/audit"
	"github.com/yourorg/evidencelog/internal/faults"
)

// Handler serves access-key management.
type Handler struct {
	keys   KeyStore
	trail  *audit.Trail
	logger *slog.Logger
}

func NewHandler(keys KeyStore, trail *audit.Trail, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{keys: keys, trail: trail, logger: logger}
}

type CreateKeyRequest struct {
	Name      string     `json:"name"`
	Scopes    []string   `json:"scopes"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

type CreateKeyResponse struct {
	Key    KeyInfo `json:"key"`
	RawKey string  `json:"rawKey"`
}

type ListKeysResponse struct {
	Keys []KeyInfo `json:"keys"`
}

// Routes mounts the key endpoints. The caller is expected to have applied
// Middleware when auth is enabled.
func (h *Handler) Routes(r chi.Router) {
	r.With(RequireScope(ScopeKeysWrite)).Post("/profiles/{profileID}/keys", h.CreateKey)
	r.With(RequireScope(ScopeKeysWrite)).Get("/profiles/{profileID}/keys", h.ListKeys)
	r.With(RequireScope(ScopeKeysWrite)).Post("/keys/{keyID}/rotate", h.RotateKey)
	r.With(RequireScope(ScopeKeysWrite)).Delete("/keys/{keyID}", h.RevokeKey)
}

func (h *Handler) CreateKey(w http.ResponseWriter, r *http.Request) {
	corrID := CorrelationID(r)
	profileID := chi.URLParam(r, "profileID")
	if !Authorize(r.Context(), profileID) {
		writeError(w, http.StatusForbidden, ErrorBody{Code: "FORBIDDEN", Message: "key does not belong to this profile", CorrID: corrID})
		return
	}
	var req CreateKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrorBody{Code: "BAD_JSON", Message: "invalid JSON body", CorrID: corrID})
		return
	}
	key, raw, err := h.keys.Create(r.Context(), profileID, req.Name, req.Scopes, req.ExpiresAt)
	if err != nil {
		h.fail(w, corrID, err)
		return
	}
	_, _ = h.trail.Record(r.Context(), profileID, "key.create", key.ID, key.KeyPrefix)
	h.logger.InfoContext(r.Context(), "access key created", "corrId", corrID, "profileId", profileID, "keyId", key.ID)
	writeJSON(w, http.StatusCreated, corrID, CreateKeyResponse{Key: key.Public(), RawKey: raw})
}

func (h *Handler) ListKeys(w http.ResponseWriter, r *http.Request) {
	corrID := CorrelationID(r)
	profileID := chi.URLParam(r, "profileID")
	if !Authorize(r.Context(), profileID) {
		writeError(w, http.StatusForbidden, ErrorBody{Code: "FORBIDDEN", Message: "key does not belong to this profile", CorrID: corrID})
		return
	}
	keys, err := h.keys.List(r.Context(), profileID)
	if err != nil {
		h.fail(w, corrID, err)
		return
	}
	resp := ListKeysResponse{Keys: make([]KeyInfo, 0, len(keys))}
	for _, k := range keys {
		resp.Keys = append(resp.Keys, k.Public())
	}
	writeJSON(w, http.StatusOK, corrID, resp)
}

func (h *Handler) RotateKey(w http.ResponseWriter, r *http.Request) {
	corrID := CorrelationID(r)
	existing, ok := h.owned(w, r, corrID)
	if !ok {
		return
	}
	key, raw, err := h.keys.Rotate(r.Context(), existing.ID)
	if err != nil {
		h.fail(w, corrID, err)
		return
	}
	_, _ = h.trail.Record(r.Context(), key.ProfileID, "key.rotate", key.ID, existing.ID)
	writeJSON(w, http.StatusCreated, corrID, CreateKeyResponse{Key: key.Public(), RawKey: raw})
}

func (h *Handler) RevokeKey(w http.ResponseWriter, r *http.Request) {
	corrID := CorrelationID(r)
	existing, ok := h.owned(w, r, corrID)
	if !ok {
		return
	}
	if err := h.keys.Revoke(r.Context(), existing.ID); err != nil {
		h.fail(w, corrID, err)
		return
	}
	_, _ = h.trail.Record(r.Context(), existing.ProfileID, "key.revoke", existing.ID, "")
	w.Header().Set("X-Correlation-Id", corrID)
	w.WriteHeader(http.StatusNoContent)
}

// owned loads the key named in the URL and checks the caller may manage it.
func (h *Handler) owned(w http.ResponseWriter, r *http.Request, corrID string) (AccessKey, bool) {
	key, err := h.keys.Get(r.Context(), chi.URLParam(r, "keyID"))
	if err != nil {
		h.fail(w, corrID, err)
		return AccessKey{}, false
	}
	if !Authorize(r.Context(), key.ProfileID) {
		writeError(w, http.StatusNotFound, ErrorBody{Code: "NOT_FOUND", Message: "access key not found", CorrID: corrID})
		return AccessKey{}, false
	}
	return key, true
}

func (h *Handler) fail(w http.ResponseWriter, corrID string, err error) {
	switch {
	case errors.Is(err, faults.ErrValidation):
		writeError(w, http.StatusBadRequest, ErrorBody{Code: string(faults.CodeValidation), Message: err.Error(), CorrID: corrID})
	case errors.Is(err, ErrKeyNotFound):
		writeError(w, http.StatusNotFound, ErrorBody{Code: "NOT_FOUND", Message: "access key not found", CorrID: corrID})
	case errors.Is(err, ErrKeyRevoked):
		writeError(w, http.StatusConflict, ErrorBody{Code: "KEY_REVOKED", Message: "access key has been revoked", CorrID: corrID})
	default:
		h.logger.Error("access key operation failed", "corrId", corrID, "error", err)
		writeError(w, http.StatusInternalServerError, ErrorBody{Code: "INTERNAL_ERROR", Message: "access key operation failed", CorrID: corrID, Retryable: true})
	}
}

func writeJSON(w http.ResponseWriter, status int, corrID string, v any) {
	w.Header().Set("Content-Type", "application/json")
	if corrID != "" {
		w.Header().Set("X-Correlation-Id", corrID)
	}
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
