package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/yourorg/evidencelog/internal/audit"
	"github.com/yourorg/evidencelog/internal/auth"
	"github.com/yourorg/evidencelog/internal/export"
	"github.com/yourorg/evidencelog/internal/faults"
	"github.com/yourorg/evidencelog/internal/ledger"
	"github.com/yourorg/evidencelog/internal/logbook"
	"github.com/yourorg/evidencelog/internal/records"
	"github.com/yourorg/evidencelog/internal/report"
	"github.com/yourorg/evidencelog/internal/store"
)

type modeRequest struct {
	ProfileID string `json:"profileId"`
}

func (s *Server) modeStatus(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.book.Modes().Current(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, corrID(r), cfg, nil)
}

// modeProfile resolves who toggles the mode. An authenticated key always
// acts as its own profile; a different profileId in the body is rejected.
func (s *Server) modeProfile(r *http.Request, requested string) (string, bool) {
	requested = strings.TrimSpace(requested)
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		return requested, true
	}
	if requested != "" && requested != actor.ProfileID {
		return "", false
	}
	return actor.ProfileID, true
}

func (s *Server) readModeRequest(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req modeRequest
	if r.ContentLength != 0 {
		if err := decode(r, &req); err != nil {
			s.fail(w, r, err)
			return "", false
		}
	}
	profileID, ok := s.modeProfile(r, req.ProfileID)
	if !ok {
		writeJSON(w, http.StatusForbidden, corrID(r), ErrorBody{Code: "FORBIDDEN", Message: "access key does not belong to this profile", CorrID: corrID(r)}, nil)
		return "", false
	}
	return profileID, true
}

func (s *Server) activateMode(w http.ResponseWriter, r *http.Request) {
	profileID, ok := s.readModeRequest(w, r)
	if !ok {
		return
	}
	cfg, err := s.book.Modes().Activate(r.Context(), profileID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.recordMode(r, profileID, "evidence_mode.activate")
	writeJSON(w, http.StatusOK, corrID(r), cfg, nil)
}

func (s *Server) deactivateMode(w http.ResponseWriter, r *http.Request) {
	profileID, ok := s.readModeRequest(w, r)
	if !ok {
		return
	}
	cfg, err := s.book.Modes().Deactivate(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if profileID == "" {
		profileID = store.GlobalProfile
	}
	s.recordMode(r, profileID, "evidence_mode.deactivate")
	writeJSON(w, http.StatusOK, corrID(r), cfg, nil)
}

// recordMode appends an entry for a mode change. Failures are logged; the change
// itself is already stored.
func (s *Server) recordMode(r *http.Request, profileID, action string) {
	if _, err := s.book.Trail().Record(r.Context(), profileID, action, "evidence_mode", ""); err != nil {
		s.requestLogger(r).WarnContext(r.Context(), "audit entry dropped", "action", action, "error", err)
	}
}

func kindParam(r *http.Request) records.Kind {
	return records.Kind(chi.URLParam(r, "kind"))
}

func (s *Server) createLog(w http.ResponseWriter, r *http.Request) {
	profileID := chi.URLParam(r, "profileID")
	var (
		out any
		err error
	)
	switch kind := kindParam(r); kind {
	case records.KindDaily:
		var in records.DailyLogInput
		if err = decode(r, &in); err == nil {
			out, err = s.book.CreateDailyLog(r.Context(), profileID, in)
		}
	case records.KindActivity:
		var in records.ActivityLogInput
		if err = decode(r, &in); err == nil {
			out, err = s.book.CreateActivityLog(r.Context(), profileID, in)
		}
	default:
		err = badKind(kind)
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, corrID(r), out, nil)
}

func (s *Server) listLogs(w http.ResponseWriter, r *http.Request) {
	profileID := chi.URLParam(r, "profileID")
	var (
		out any
		err error
	)
	switch kind := kindParam(r); kind {
	case records.KindDaily:
		out, err = s.book.DailyLogs(r.Context(), profileID)
	case records.KindActivity:
		out, err = s.book.ActivityLogs(r.Context(), profileID)
	default:
		err = badKind(kind)
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, corrID(r), out, nil)
}

func (s *Server) getLog(w http.ResponseWriter, r *http.Request) {
	rec, err := s.book.Get(r.Context(), chi.URLParam(r, "profileID"), kindParam(r), chi.URLParam(r, "logID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, corrID(r), rec, nil)
}

type updateResponse struct {
	NeedsRevision  bool              `json:"needsRevision"`
	Record         records.Record    `json:"record"`
	Revisions      []ledger.Revision `json:"revisions"`
	Attempted      int               `json:"attempted"`
	Appended       int               `json:"appended"`
	AppendedFields []string          `json:"appendedFields"`
}

func (s *Server) updateLog(w http.ResponseWriter, r *http.Request) {
	profileID := chi.URLParam(r, "profileID")
	logID := chi.URLParam(r, "logID")
	var body struct {
		Log    json.RawMessage `json:"log"`
		Reason string          `json:"reason"`
	}
	if err := decode(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	var (
		res ledger.UpdateResult
		err error
	)
	switch kind := kindParam(r); kind {
	case records.KindDaily:
		var in records.DailyLogInput
		if err = decodeRaw(body.Log, &in); err == nil {
			res, err = s.book.UpdateDailyLog(r.Context(), profileID, logID, in, body.Reason)
		}
	case records.KindActivity:
		var in records.ActivityLogInput
		if err = decodeRaw(body.Log, &in); err == nil {
			res, err = s.book.UpdateActivityLog(r.Context(), profileID, logID, in, body.Reason)
		}
	default:
		err = badKind(kind)
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, corrID(r), updateResponse{
		NeedsRevision:  res.NeedsRevision,
		Record:         res.Record,
		Revisions:      orEmpty(res.Revisions),
		Attempted:      res.Attempted,
		Appended:       res.Appended,
		AppendedFields: orEmpty(res.AppendedFields),
	}, nil)
}

func (s *Server) deleteLog(w http.ResponseWriter, r *http.Request) {
	n, err := s.book.Delete(r.Context(), chi.URLParam(r, "profileID"), kindParam(r), chi.URLParam(r, "logID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, corrID(r), map[string]any{"deleted": true, "revisionsDeleted": n}, nil)
}

func (s *Server) finalizeLog(w http.ResponseWriter, r *http.Request) {
	rec, err := s.book.Finalize(r.Context(), chi.URLParam(r, "profileID"), kindParam(r), chi.URLParam(r, "logID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, corrID(r), rec, nil)
}

func (s *Server) canModify(w http.ResponseWriter, r *http.Request) {
	p, err := s.book.CanModify(r.Context(), chi.URLParam(r, "profileID"), kindParam(r), chi.URLParam(r, "logID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, corrID(r), p, nil)
}

func (s *Server) listRevisions(w http.ResponseWriter, r *http.Request) {
	profileID := chi.URLParam(r, "profileID")
	logID := chi.URLParam(r, "logID")
	if _, err := s.book.Get(r.Context(), profileID, kindParam(r), logID); err != nil {
		s.fail(w, r, err)
		return
	}
	revs, err := s.book.Revisions(r.Context(), profileID, logID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, corrID(r), orEmpty(revs), nil)
}

func (s *Server) verifyRevisions(w http.ResponseWriter, r *http.Request) {
	if err := s.book.VerifyRevisions(r.Context(), chi.URLParam(r, "profileID")); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, corrID(r), map[string]bool{"verified": true}, nil)
}

func (s *Server) addLimitation(w http.ResponseWriter, r *http.Request) {
	var in records.LimitationInput
	if err := decode(r, &in); err != nil {
		s.fail(w, r, err)
		return
	}
	l, err := s.book.AddLimitation(r.Context(), chi.URLParam(r, "profileID"), in)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, corrID(r), l, nil)
}

func (s *Server) listLimitations(w http.ResponseWriter, r *http.Request) {
	items, err := s.book.Limitations(r.Context(), chi.URLParam(r, "profileID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, corrID(r), orEmpty(items), nil)
}

func (s *Server) deactivateLimitation(w http.ResponseWriter, r *http.Request) {
	l, err := s.book.DeactivateLimitation(r.Context(), chi.URLParam(r, "profileID"), chi.URLParam(r, "limitationID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, corrID(r), l, nil)
}

func (s *Server) explainGap(w http.ResponseWriter, r *http.Request) {
	var in records.GapExplanationInput
	if err := decode(r, &in); err != nil {
		s.fail(w, r, err)
		return
	}
	g, err := s.book.ExplainGap(r.Context(), chi.URLParam(r, "profileID"), in)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, corrID(r), g, nil)
}

func (s *Server) listGapExplanations(w http.ResponseWriter, r *http.Request) {
	items, err := s.book.GapExplanations(r.Context(), chi.URLParam(r, "profileID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, corrID(r), orEmpty(items), nil)
}

func (s *Server) addMedication(w http.ResponseWriter, r *http.Request) {
	var in records.MedicationInput
	if err := decode(r, &in); err != nil {
		s.fail(w, r, err)
		return
	}
	m, err := s.book.AddMedication(r.Context(), chi.URLParam(r, "profileID"), in)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, corrID(r), m, nil)
}

func (s *Server) listMedications(w http.ResponseWriter, r *http.Request) {
	items, err := s.book.Medications(r.Context(), chi.URLParam(r, "profileID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, corrID(r), orEmpty(items), nil)
}

func (s *Server) addAppointment(w http.ResponseWriter, r *http.Request) {
	var in records.AppointmentInput
	if err := decode(r, &in); err != nil {
		s.fail(w, r, err)
		return
	}
	a, err := s.book.AddAppointment(r.Context(), chi.URLParam(r, "profileID"), in)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, corrID(r), a, nil)
}

func (s *Server) listAppointments(w http.ResponseWriter, r *http.Request) {
	items, err := s.book.Appointments(r.Context(), chi.URLParam(r, "profileID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, corrID(r), orEmpty(items), nil)
}

func window(r *http.Request) (logbook.Window, error) {
	q := r.URL.Query()
	return logbook.ParseWindow(q.Get("from"), q.Get("to"))
}

func (s *Server) gaps(w http.ResponseWriter, r *http.Request) {
	win, err := window(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	gaps, err := s.book.Gaps(r.Context(), chi.URLParam(r, "profileID"), win)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, corrID(r), orEmpty(gaps), nil)
}

func (s *Server) derivation(w http.ResponseWriter, r *http.Request) {
	win, err := window(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	res, err := s.book.Derive(r.Context(), chi.URLParam(r, "profileID"), win)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, corrID(r), res, nil)
}

func (s *Server) report(w http.ResponseWriter, r *http.Request) {
	profileID := chi.URLParam(r, "profileID")
	win, err := window(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	rep, err := s.book.Report(r.Context(), profileID, win)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	format := strings.ToLower(r.URL.Query().Get("format"))
	name := "evidence-report-" + profileID
	switch format {
	case "", "json":
		writeJSON(w, http.StatusOK, corrID(r), rep, nil)
	case "text", "txt":
		writeBytes(w, http.StatusOK, corrID(r), "text/plain; charset=utf-8", []byte(report.Text(rep)), nil)
	case "html":
		html, err := report.HTML(rep)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeBytes(w, http.StatusOK, corrID(r), "text/html; charset=utf-8", []byte(html), nil)
	case "xlsx":
		var buf bytes.Buffer
		if err := report.WriteXLSX(&buf, rep); err != nil {
			s.fail(w, r, err)
			return
		}
		writeBytes(w, http.StatusOK, corrID(r), "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", buf.Bytes(),
			map[string]string{"Content-Disposition": attachment(name + ".xlsx")})
	case "pdf":
		if s.opts.PDF == nil {
			s.fail(w, r, faults.Validation("pdf rendering is disabled", faults.ValidationItem{Code: "API-PDF-001", Path: "format", Message: "pdf output is not enabled on this server"}))
			return
		}
		pdf, err := s.opts.PDF.Render(r.Context(), rep)
		if err != nil {
			s.fail(w, r, fmt.Errorf("render pdf: %w", err))
			return
		}
		writeBytes(w, http.StatusOK, corrID(r), "application/pdf", pdf,
			map[string]string{"Content-Disposition": attachment(name + ".pdf")})
	default:
		s.fail(w, r, faults.Validation("unknown report format", faults.ValidationItem{Code: "API-FMT-001", Path: "format", Message: "format must be json, text, html, xlsx or pdf"}))
	}
}

func (s *Server) createExport(w http.ResponseWriter, r *http.Request) {
	profileID := chi.URLParam(r, "profileID")
	if ok, wait := s.opts.ExportLimiter.Allow(profileID); !ok {
		writeJSON(w, http.StatusTooManyRequests, corrID(r),
			ErrorBody{Code: "RATE_LIMITED", Message: "too many exports", CorrID: corrID(r), Retryable: true},
			map[string]string{"Retry-After": retryAfter(wait)})
		return
	}
	var req export.Request
	if r.ContentLength != 0 {
		if err := decode(r, &req); err != nil {
			s.fail(w, r, err)
			return
		}
	}
	b, err := s.exporter.Export(r.Context(), profileID, strings.TrimSpace(r.Header.Get("Idempotency-Key")), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeBytes(w, http.StatusOK, corrID(r), "application/zip", b.Archive, map[string]string{
		"X-Bundle-Id":         b.ID,
		"X-Criteria-Hash":     b.CriteriaHash,
		"Content-Disposition": attachment("evidence-" + b.ID + ".zip"),
	})
}

type auditResponse struct {
	Entries  []audit.Entry `json:"entries"`
	Verified bool          `json:"verified"`
	Problem  string        `json:"problem,omitempty"`
}

func (s *Server) auditLog(w http.ResponseWriter, r *http.Request) {
	entries, err := s.book.Trail().Entries(r.Context(), chi.URLParam(r, "profileID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	resp := auditResponse{Entries: orEmpty(entries), Verified: true}
	if err := audit.Verify(entries); err != nil {
		resp.Verified = false
		resp.Problem = err.Error()
	}
	writeJSON(w, http.StatusOK, corrID(r), resp, nil)
}

func badKind(kind records.Kind) error {
	return faults.Validation("unknown log kind", faults.ValidationItem{
		Code: "LOG-KIND-001", Path: "kind", Message: "kind must be daily or activity, got " + string(kind),
	})
}

func decodeRaw(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return faults.Validation("log is required", faults.ValidationItem{Code: "API-UPD-001", Path: "log", Message: "log is required"})
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return faults.Validation("invalid JSON", faults.ValidationItem{Code: "BAD_JSON", Path: "log", Message: err.Error()})
	}
	return nil
}

func attachment(name string) string {
	return fmt.Sprintf("attachment; filename=%q", name)
}

func orEmpty[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
