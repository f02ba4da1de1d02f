package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/yourorg/evidencelog/internal/audit"
	"github.com/yourorg/evidencelog/internal/auth"
	"github.com/yourorg/evidencelog/internal/clock"
	"github.com/yourorg/evidencelog/internal/export"
	"github.com/yourorg/evidencelog/internal/logbook"
	"github.com/yourorg/evidencelog/internal/store"
)

type fixture struct {
	handler http.Handler
	keys    *auth.StoreKeys
}

func newFixture(t *testing.T, withAuth bool) fixture {
	t.Helper()
	s := store.NewMemory()
	c := clock.NewFixed(time.Date(2024, 1, 12, 10, 0, 0, 0, time.UTC))
	trail := audit.NewTrail(audit.NewStoreRecorder(s), c, nil)
	book := logbook.New(s, c, trail, logbook.Options{}, nil)
	exp := export.New(book, c, trail, export.Options{}, nil)
	opts := Options{}
	var keys *auth.StoreKeys
	if withAuth {
		cfg := auth.DefaultConfig()
		cfg.HashAlgorithm = string(auth.AlgorithmBcrypt)
		cfg.BcryptCost = bcrypt.MinCost
		keys = auth.NewStoreKeys(s, cfg, c)
		opts.Keys = keys
	}
	return fixture{handler: New(book, exp, opts, nil).Handler(), keys: keys}
}

func (f fixture) do(t *testing.T, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("json.Unmarshal() error = %v, body = %s", err, rec.Body.String())
	}
}

const dailyBody = `{"eventDate":"2024-01-10","overallSeverity":6,"symptoms":[{"symptom":"back_pain","severity":8}]}`

func createDaily(t *testing.T, f fixture, body string) string {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/profiles/p1/logs/daily", body, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var out struct {
		ID string `json:"id"`
	}
	decodeBody(t, rec, &out)
	if out.ID == "" {
		t.Fatalf("created log has no id: %s", rec.Body.String())
	}
	return out.ID
}

func TestHealthz(t *testing.T) {
	f := newFixture(t, false)
	rec := f.do(t, http.MethodGet, "/healthz", "", map[string]string{"X-Correlation-Id": "corr-1"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := rec.Header().Get("X-Correlation-Id"); got != "corr-1" {
		t.Fatalf("X-Correlation-Id = %q, want corr-1", got)
	}
}

func TestFinalizedLogUpdateBecomesRevisions(t *testing.T) {
	f := newFixture(t, false)
	id := createDaily(t, f, dailyBody)

	rec := f.do(t, http.MethodGet, "/profiles/p1/logs/daily/"+id+"/can-modify", "", nil)
	var perm struct {
		Allowed bool `json:"allowed"`
	}
	decodeBody(t, rec, &perm)
	if !perm.Allowed {
		t.Fatalf("draft should be modifiable")
	}

	rec = f.do(t, http.MethodPost, "/profiles/p1/logs/daily/"+id+"/finalize", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("finalize status = %d, body = %s", rec.Code, rec.Body.String())
	}

	update := `{"log":{"eventDate":"2024-01-10","overallSeverity":7,"symptoms":[{"symptom":"back_pain","severity":8}]},"reason":"misread scale"}`
	rec = f.do(t, http.MethodPut, "/profiles/p1/logs/daily/"+id, update, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("update status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var res struct {
		NeedsRevision bool `json:"needsRevision"`
		Appended      int  `json:"appended"`
	}
	decodeBody(t, rec, &res)
	if !res.NeedsRevision || res.Appended != 1 {
		t.Fatalf("update result = %+v, want one revision", res)
	}

	rec = f.do(t, http.MethodGet, "/profiles/p1/logs/daily/"+id, "", nil)
	var stored struct {
		OverallSeverity int `json:"overallSeverity"`
	}
	decodeBody(t, rec, &stored)
	if stored.OverallSeverity != 6 {
		t.Fatalf("finalized record changed: overallSeverity = %d", stored.OverallSeverity)
	}

	rec = f.do(t, http.MethodGet, "/profiles/p1/logs/daily/"+id+"/revisions", "", nil)
	var revs []struct {
		FieldPath string `json:"fieldPath"`
		Reason    string `json:"reason"`
	}
	decodeBody(t, rec, &revs)
	if len(revs) != 1 || revs[0].FieldPath != "overallSeverity" || revs[0].Reason != "misread scale" {
		t.Fatalf("revisions = %+v", revs)
	}

	rec = f.do(t, http.MethodGet, "/profiles/p1/revisions/verify", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("verify status = %d, body = %s", rec.Code, rec.Body.String())
	}
}

func TestErrorStatuses(t *testing.T) {
	f := newFixture(t, false)
	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
		code   string
	}{
		{"invalid input", http.MethodPost, "/profiles/p1/logs/daily", `{"eventDate":"01/02/2024","overallSeverity":11}`, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"bad json", http.MethodPost, "/profiles/p1/logs/daily", `{"eventDate":`, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"unknown field", http.MethodPost, "/profiles/p1/logs/daily", `{"eventDate":"2024-01-01","mood":"ok"}`, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"unknown kind", http.MethodGet, "/profiles/p1/logs/weekly", "", http.StatusBadRequest, "VALIDATION_ERROR"},
		{"missing log", http.MethodGet, "/profiles/p1/logs/daily/nope", "", http.StatusNotFound, "NOT_FOUND"},
		{"empty derivation", http.MethodGet, "/profiles/p1/derivation", "", http.StatusUnprocessableEntity, "INSUFFICIENT_DATA"},
		{"bad window", http.MethodGet, "/profiles/p1/gaps?from=2024-02-01&to=2024-01-01", "", http.StatusBadRequest, "VALIDATION_ERROR"},
		{"bad format", http.MethodGet, "/profiles/p1/report?format=docx", "", http.StatusBadRequest, "VALIDATION_ERROR"},
		{"pdf disabled", http.MethodGet, "/profiles/p1/report?format=pdf", "", http.StatusBadRequest, "VALIDATION_ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, tt.method, tt.path, tt.body, nil)
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d, body = %s", rec.Code, tt.status, rec.Body.String())
			}
			var body ErrorBody
			decodeBody(t, rec, &body)
			if body.Code != tt.code {
				t.Fatalf("code = %s, want %s", body.Code, tt.code)
			}
			if body.CorrID == "" {
				t.Fatalf("error body missing corrId")
			}
		})
	}
}

func TestValidationErrorsListFields(t *testing.T) {
	f := newFixture(t, false)
	rec := f.do(t, http.MethodPost, "/profiles/p1/logs/activity", `{"eventDate":"2024-01-01","posture":"lying","durationMinutes":30}`, nil)
	var body ErrorBody
	decodeBody(t, rec, &body)
	if len(body.Errors) == 0 || body.Errors[0].Path != "posture" {
		t.Fatalf("errors = %+v, want posture", body.Errors)
	}
}

func TestBodyTooLarge(t *testing.T) {
	f := newFixture(t, false)
	big := `{"eventDate":"2024-01-01","notes":"` + strings.Repeat("x", DefaultMaxBodyBytes) + `"}`
	rec := f.do(t, http.MethodPost, "/profiles/p1/logs/daily", big, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	var body ErrorBody
	decodeBody(t, rec, &body)
	if len(body.Errors) != 1 || body.Errors[0].Code != "BODY_TOO_LARGE" {
		t.Fatalf("errors = %+v", body.Errors)
	}
}

func TestReportFormats(t *testing.T) {
	f := newFixture(t, false)
	createDaily(t, f, dailyBody)

	rec := f.do(t, http.MethodGet, "/profiles/p1/report?format=text", "", nil)
	if rec.Code != http.StatusOK || !strings.HasPrefix(rec.Header().Get("Content-Type"), "text/plain") {
		t.Fatalf("text report status = %d, type = %s", rec.Code, rec.Header().Get("Content-Type"))
	}
	rec = f.do(t, http.MethodGet, "/profiles/p1/report?format=html", "", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "<html") {
		t.Fatalf("html report status = %d", rec.Code)
	}
	rec = f.do(t, http.MethodGet, "/profiles/p1/report?format=xlsx", "", nil)
	if rec.Code != http.StatusOK || !bytes.HasPrefix(rec.Body.Bytes(), []byte("PK")) {
		t.Fatalf("xlsx report status = %d", rec.Code)
	}
	rec = f.do(t, http.MethodGet, "/profiles/p1/derivation?from=2024-01-01&to=2024-01-31", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("derivation status = %d, body = %s", rec.Code, rec.Body.String())
	}
}

func TestExportIdempotency(t *testing.T) {
	f := newFixture(t, false)
	createDaily(t, f, dailyBody)
	key := map[string]string{"Idempotency-Key": "k1"}

	first := f.do(t, http.MethodPost, "/profiles/p1/exports", `{"from":"2024-01-01"}`, key)
	if first.Code != http.StatusOK || first.Header().Get("Content-Type") != "application/zip" {
		t.Fatalf("export status = %d, body = %s", first.Code, first.Body.String())
	}
	bundleID := first.Header().Get("X-Bundle-Id")
	if bundleID == "" {
		t.Fatalf("missing X-Bundle-Id")
	}

	replay := f.do(t, http.MethodPost, "/profiles/p1/exports", `{"from":"2024-01-01"}`, key)
	if replay.Header().Get("X-Bundle-Id") != bundleID {
		t.Fatalf("replay bundle = %s, want %s", replay.Header().Get("X-Bundle-Id"), bundleID)
	}

	conflict := f.do(t, http.MethodPost, "/profiles/p1/exports", `{"from":"2024-01-05"}`, key)
	if conflict.Code != http.StatusConflict {
		t.Fatalf("conflict status = %d", conflict.Code)
	}
	var body ErrorBody
	decodeBody(t, conflict, &body)
	if body.Metadata["bundleId"] != bundleID {
		t.Fatalf("conflict metadata = %+v", body.Metadata)
	}

	rec := f.do(t, http.MethodGet, "/profiles/p1/audit", "", nil)
	var trail auditResponse
	decodeBody(t, rec, &trail)
	if !trail.Verified {
		t.Fatalf("audit chain not verified: %s", trail.Problem)
	}
	exports := 0
	for _, e := range trail.Entries {
		if e.Action == "export.create" {
			exports++
		}
	}
	if exports != 1 {
		t.Fatalf("export.create entries = %d, want 1", exports)
	}
}

func TestEvidenceModeStampsNewLogs(t *testing.T) {
	f := newFixture(t, false)
	rec := f.do(t, http.MethodPost, "/evidence-mode/activate", `{"profileId":"p1"}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("activate status = %d, body = %s", rec.Code, rec.Body.String())
	}
	rec = f.do(t, http.MethodPost, "/profiles/p1/logs/daily", dailyBody, nil)
	var out struct {
		EvidenceTimestamp *time.Time `json:"evidenceTimestamp"`
	}
	decodeBody(t, rec, &out)
	if out.EvidenceTimestamp == nil {
		t.Fatalf("log created in evidence mode has no evidence timestamp")
	}

	rec = f.do(t, http.MethodPost, "/evidence-mode/deactivate", "", nil)
	var cfg struct {
		Enabled bool `json:"enabled"`
	}
	decodeBody(t, rec, &cfg)
	if cfg.Enabled {
		t.Fatalf("mode still enabled after deactivate")
	}
}

func TestAuthenticatedRoutes(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	_, readOnly, err := f.keys.Create(ctx, "p1", "reader", []string{auth.ScopeLogsRead}, nil)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	_, full, err := f.keys.Create(ctx, "p1", "owner", []string{auth.ScopeAll}, nil)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	bearer := func(raw string) map[string]string {
		return map[string]string{"Authorization": "Bearer " + raw}
	}

	if rec := f.do(t, http.MethodGet, "/profiles/p1/logs/daily", "", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("no key status = %d, want 401", rec.Code)
	}
	if rec := f.do(t, http.MethodGet, "/profiles/p1/logs/daily", "", bearer(readOnly)); rec.Code != http.StatusOK {
		t.Fatalf("read status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if rec := f.do(t, http.MethodPost, "/profiles/p1/logs/daily", dailyBody, bearer(readOnly)); rec.Code != http.StatusForbidden {
		t.Fatalf("write with read key status = %d, want 403", rec.Code)
	}
	if rec := f.do(t, http.MethodGet, "/profiles/p2/logs/daily", "", bearer(full)); rec.Code != http.StatusForbidden {
		t.Fatalf("other profile status = %d, want 403", rec.Code)
	}
	rec := f.do(t, http.MethodPost, "/profiles/p1/logs/daily", dailyBody, bearer(full))
	if rec.Code != http.StatusCreated {
		t.Fatalf("write status = %d, body = %s", rec.Code, rec.Body.String())
	}

	rec = f.do(t, http.MethodGet, "/profiles/p1/audit", "", bearer(full))
	var trail auditResponse
	decodeBody(t, rec, &trail)
	if len(trail.Entries) == 0 || !strings.HasPrefix(trail.Entries[len(trail.Entries)-1].Actor, "key:") {
		t.Fatalf("audit entries = %+v, want key actor", trail.Entries)
	}

	rec = f.do(t, http.MethodGet, "/profiles/p1/keys", "", bearer(full))
	if rec.Code != http.StatusOK {
		t.Fatalf("list keys status = %d, body = %s", rec.Code, rec.Body.String())
	}
}

func TestEvidenceModeActsAsKeyProfile(t *testing.T) {
	f := newFixture(t, true)
	_, raw, err := f.keys.Create(context.Background(), "p1", "toggle", []string{auth.ScopeModeWrite, auth.ScopeReportsRead}, nil)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	key := map[string]string{"Authorization": "Bearer " + raw}

	if rec := f.do(t, http.MethodPost, "/evidence-mode/activate", `{"profileId":"p2"}`, key); rec.Code != http.StatusForbidden {
		t.Fatalf("activate as other profile status = %d, want 403", rec.Code)
	}

	rec := f.do(t, http.MethodPost, "/evidence-mode/activate", "", key)
	if rec.Code != http.StatusOK {
		t.Fatalf("activate status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var cfg struct {
		Enabled   bool   `json:"enabled"`
		EnabledBy string `json:"enabledBy"`
	}
	decodeBody(t, rec, &cfg)
	if !cfg.Enabled || cfg.EnabledBy != "p1" {
		t.Fatalf("mode = %+v, want enabled by p1", cfg)
	}

	if rec := f.do(t, http.MethodPost, "/evidence-mode/deactivate", "", key); rec.Code != http.StatusOK {
		t.Fatalf("deactivate status = %d, body = %s", rec.Code, rec.Body.String())
	}
	rec = f.do(t, http.MethodGet, "/profiles/p1/audit", "", key)
	var trail auditResponse
	decodeBody(t, rec, &trail)
	var actions []string
	for _, e := range trail.Entries {
		actions = append(actions, e.Action)
	}
	if strings.Join(actions, ",") != "evidence_mode.activate,evidence_mode.deactivate" {
		t.Fatalf("audit actions = %v", actions)
	}
}
