// Package httpapi exposes the evidence core over HTTP.
package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/yourorg/evidencelog/internal/audit"
	"github.com/yourorg/evidencelog/internal/auth"
	"github.com/yourorg/evidencelog/internal/export"
	"github.com/yourorg/evidencelog/internal/faults"
	"github.com/yourorg/evidencelog/internal/logbook"
)

// DefaultMaxBodyBytes caps request bodies.
const DefaultMaxBodyBytes = 1 << 20

type Options struct {
	// Keys enables access-key auth. Nil serves every profile unauthenticated.
	Keys       auth.KeyStore
	KeyLimiter *auth.RateLimiter
	// ExportLimiter throttles exports per profile.
	ExportLimiter *auth.RateLimiter
	PDF           export.PDFRenderer
	MaxBodyBytes  int64
}

type Server struct {
	book     *logbook.Service
	exporter *export.Exporter
	opts     Options
	logger   *slog.Logger
}

func New(book *logbook.Service, exporter *export.Exporter, opts Options, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = DefaultMaxBodyBytes
	}
	return &Server{book: book, exporter: exporter, opts: opts, logger: logger}
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(s.correlate)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, auth.CorrelationID(r), map[string]string{"status": "ok"}, nil)
	})

	r.Group(func(api chi.Router) {
		api.Use(s.limitBody)
		if s.opts.Keys != nil {
			api.Use(auth.Middleware(s.opts.Keys, s.opts.KeyLimiter, s.book.Trail(), s.logger))
			auth.NewHandler(s.opts.Keys, s.book.Trail(), s.logger).Routes(api)
		}

		api.Get("/evidence-mode", s.modeStatus)
		api.With(auth.RequireScope(auth.ScopeModeWrite)).Post("/evidence-mode/activate", s.activateMode)
		api.With(auth.RequireScope(auth.ScopeModeWrite)).Post("/evidence-mode/deactivate", s.deactivateMode)

		api.Route("/profiles/{profileID}", func(p chi.Router) {
			p.Use(s.authorizeProfile)
			read := p.With(auth.RequireScope(auth.ScopeLogsRead))
			write := p.With(auth.RequireScope(auth.ScopeLogsWrite))
			reports := p.With(auth.RequireScope(auth.ScopeReportsRead))

			write.Post("/logs/{kind}", s.createLog)
			read.Get("/logs/{kind}", s.listLogs)
			read.Get("/logs/{kind}/{logID}", s.getLog)
			write.Put("/logs/{kind}/{logID}", s.updateLog)
			write.Delete("/logs/{kind}/{logID}", s.deleteLog)
			write.Post("/logs/{kind}/{logID}/finalize", s.finalizeLog)
			read.Get("/logs/{kind}/{logID}/can-modify", s.canModify)
			read.Get("/logs/{kind}/{logID}/revisions", s.listRevisions)
			read.Get("/revisions/verify", s.verifyRevisions)

			write.Post("/limitations", s.addLimitation)
			read.Get("/limitations", s.listLimitations)
			write.Post("/limitations/{limitationID}/deactivate", s.deactivateLimitation)
			write.Post("/gap-explanations", s.explainGap)
			read.Get("/gap-explanations", s.listGapExplanations)
			write.Post("/medications", s.addMedication)
			read.Get("/medications", s.listMedications)
			write.Post("/appointments", s.addAppointment)
			read.Get("/appointments", s.listAppointments)

			reports.Get("/gaps", s.gaps)
			reports.Get("/derivation", s.derivation)
			reports.Get("/report", s.report)
			reports.Get("/audit", s.auditLog)
			p.With(auth.RequireScope(auth.ScopeExport)).Post("/exports", s.createExport)
		})
	})
	return r
}

// correlate tags every request with a correlation id.
func (s *Server) correlate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		corrID := auth.CorrelationID(r)
		r.Header.Set("X-Correlation-Id", corrID)
		ctx := audit.WithCorrelationID(r.Context(), corrID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) limitBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxBodyBytes)
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) authorizeProfile(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !auth.Authorize(r.Context(), chi.URLParam(r, "profileID")) {
			writeJSON(w, http.StatusForbidden, corrID(r), ErrorBody{Code: "FORBIDDEN", Message: "access key does not belong to this profile", CorrID: corrID(r)}, nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func corrID(r *http.Request) string {
	return audit.CorrelationID(r.Context())
}

// requestLogger returns the per-request logger.
func (s *Server) requestLogger(r *http.Request) *slog.Logger {
	return audit.CorrelationLogger(s.logger, corrID(r), chi.URLParam(r, "profileID"))
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, body := statusFor(err, corrID(r))
	log := s.requestLogger(r)
	if status >= http.StatusInternalServerError {
		log.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "status", status, "error", err)
	} else {
		log.InfoContext(r.Context(), "request rejected", "path", r.URL.Path, "status", status, "error", err)
	}
	writeJSON(w, status, corrID(r), body, nil)
}

// decode reads a JSON body into v. Unknown fields are rejected.
func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return faults.Validation("request body too large", faults.ValidationItem{Code: "BODY_TOO_LARGE", Path: "body", Message: err.Error()})
		}
		if errors.Is(err, io.EOF) {
			return faults.Validation("request body is empty", faults.ValidationItem{Code: "BAD_JSON", Path: "body", Message: "empty body"})
		}
		return faults.Validation("invalid JSON", faults.ValidationItem{Code: "BAD_JSON", Path: "body", Message: err.Error()})
	}
	return nil
}

func retryAfter(d time.Duration) string {
	secs := int(d.Round(time.Second) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}
