package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/yourorg/evidencelog/internal/auth"
	"github.com/yourorg/evidencelog/internal/export"
	"github.com/yourorg/evidencelog/internal/faults"
	"github.com/yourorg/evidencelog/internal/ledger"
)

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Code      string                  `json:"code"`
	Message   string                  `json:"message"`
	CorrID    string                  `json:"corrId"`
	Retryable bool                    `json:"retryable"`
	Errors    []faults.ValidationItem `json:"errors,omitempty"`
	Metadata  map[string]string       `json:"metadata,omitempty"`
}

// PartialRevisionBody reports a revision batch that stopped part way.
type PartialRevisionBody struct {
	ErrorBody
	LogID          string   `json:"logId"`
	Attempted      int      `json:"attempted"`
	Appended       int      `json:"appended"`
	AppendedFields []string `json:"appendedFields"`
	FailedField    string   `json:"failedField"`
}

// statusFor maps an error to its HTTP status and body.
func statusFor(err error, corrID string) (int, any) {
	var partial *ledger.PartialRevisionError
	if errors.As(err, &partial) {
		return http.StatusInternalServerError, PartialRevisionBody{
			ErrorBody:      ErrorBody{Code: "PARTIAL_REVISION", Message: "revision batch stopped part way", CorrID: corrID, Retryable: true},
			LogID:          partial.LogID,
			Attempted:      partial.Attempted,
			Appended:       partial.Appended,
			AppendedFields: append([]string{}, partial.AppendedFields...),
			FailedField:    partial.FailedField,
		}
	}
	var conflict export.ConflictError
	if errors.As(err, &conflict) {
		return http.StatusConflict, ErrorBody{
			Code: "CONFLICT", Message: conflict.Error(), CorrID: corrID,
			Metadata: map[string]string{"bundleId": conflict.BundleID},
		}
	}
	var fe *faults.Error
	if errors.As(err, &fe) {
		body := ErrorBody{Code: string(fe.Code), Message: fe.Message, CorrID: corrID, Errors: fe.Items, Metadata: fe.Metadata}
		switch fe.Code {
		case faults.CodeValidation:
			return http.StatusBadRequest, body
		case faults.CodeInsufficientData:
			return http.StatusUnprocessableEntity, body
		case faults.CodeIntegrity:
			return http.StatusConflict, body
		case faults.CodeNotFound:
			return http.StatusNotFound, body
		case faults.CodeStorage:
			body.Message = "storage unavailable"
			body.Retryable = true
			return http.StatusInternalServerError, body
		}
	}
	if errors.Is(err, auth.ErrInsufficientScope) {
		return http.StatusForbidden, ErrorBody{Code: "INSUFFICIENT_SCOPE", Message: err.Error(), CorrID: corrID}
	}
	return http.StatusInternalServerError, ErrorBody{Code: "INTERNAL_ERROR", Message: "internal error", CorrID: corrID, Retryable: true}
}

func writeJSON(w http.ResponseWriter, status int, corrID string, v any, extra map[string]string) {
	w.Header().Set("Content-Type", "application/json")
	if corrID != "" {
		w.Header().Set("X-Correlation-Id", corrID)
	}
	for k, val := range extra {
		w.Header().Set(k, val)
	}
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeBytes(w http.ResponseWriter, status int, corrID, contentType string, body []byte, extra map[string]string) {
	w.Header().Set("Content-Type", contentType)
	if corrID != "" {
		w.Header().Set("X-Correlation-Id", corrID)
	}
	for k, val := range extra {
		w.Header().Set(k, val)
	}
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
