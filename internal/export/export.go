// Package export packages a profile's evidence into a zip bundle with a
// SHA-256 manifest and records each export in the audit trail.
package export

import (
	"archive/zip"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yourorg/evidencelog/internal/audit"
	"github.com/yourorg/evidencelog/internal/clock"
	"github.com/yourorg/evidencelog/internal/faults"
	"github.com/yourorg/evidencelog/internal/logbook"
	"github.com/yourorg/evidencelog/internal/records"
	"github.com/yourorg/evidencelog/internal/report"
)

// ManifestName is the bundle member listing every other member's digest.
const ManifestName = "hashes.txt"

// Request selects what goes into a bundle.
type Request struct {
	From       string `json:"from" validate:"omitempty,datetime=2006-01-02"`
	To         string `json:"to" validate:"omitempty,datetime=2006-01-02"`
	IncludePDF bool   `json:"includePdf"`
}

// File is one bundle member.
type File struct {
	Name   string `json:"name"`
	SHA256 string `json:"sha256"`
	Size   int    `json:"size"`
}

// Bundle is a finished export.
type Bundle struct {
	ID           string    `json:"id"`
	ProfileID    string    `json:"profileId"`
	CriteriaHash string    `json:"criteriaHash"`
	CreatedAt    time.Time `json:"createdAt"`
	Files        []File    `json:"files"`
	Archive      []byte    `json:"-"`
}

// ConflictError reports an idempotency key reused with different criteria.
type ConflictError struct {
	Key      string
	BundleID string
}

func (e ConflictError) Error() string {
	return fmt.Sprintf("idempotency key %s already used for bundle %s with different criteria", e.Key, e.BundleID)
}

// PDFRenderer prints a report. report.PDFRenderer satisfies it.
type PDFRenderer interface {
	Render(ctx context.Context, r report.Report) ([]byte, error)
}

type Options struct {
	PDF PDFRenderer
	// MaxCached bounds how many bundles are kept for idempotent replays.
	MaxCached int
}

type Exporter struct {
	book   *logbook.Service
	clock  clock.Clock
	trail  *audit.Trail
	opts   Options
	logger *slog.Logger

	mu    sync.Mutex
	byKey map[string]Bundle
	order []string
}

func New(book *logbook.Service, c clock.Clock, trail *audit.Trail, opts Options, logger *slog.Logger) *Exporter {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.MaxCached <= 0 {
		opts.MaxCached = 32
	}
	return &Exporter{book: book, clock: c, trail: trail, opts: opts, logger: logger, byKey: map[string]Bundle{}}
}

// Export builds a bundle. A non-empty idempotencyKey replays the earlier
// bundle for the same criteria and conflicts for different ones.
func (e *Exporter) Export(ctx context.Context, profileID, idempotencyKey string, req Request) (Bundle, error) {
	if err := records.Validate(req); err != nil {
		return Bundle{}, err
	}
	w, err := logbook.ParseWindow(req.From, req.To)
	if err != nil {
		return Bundle{}, err
	}
	criteria := CriteriaHash(profileID, req)
	cacheKey := profileID + ":" + idempotencyKey
	if idempotencyKey != "" {
		if b, ok := e.cached(cacheKey); ok {
			if b.CriteriaHash != criteria {
				return Bundle{}, ConflictError{Key: idempotencyKey, BundleID: b.ID}
			}
			return b, nil
		}
	}

	snap, err := e.book.Snapshot(ctx, profileID, w)
	if err != nil {
		return Bundle{}, err
	}
	if err := e.book.VerifyRevisions(ctx, profileID); err != nil {
		return Bundle{}, err
	}
	rep, err := e.book.ReportFrom(ctx, snap)
	if err != nil {
		return Bundle{}, err
	}
	now, err := e.clock.Now()
	if err != nil {
		return Bundle{}, fmt.Errorf("read clock: %w", err)
	}

	members, err := e.members(ctx, snap, rep, req.IncludePDF)
	if err != nil {
		return Bundle{}, err
	}
	archive, files, err := pack(members, now)
	if err != nil {
		return Bundle{}, err
	}
	b := Bundle{
		ID:           uuid.NewString(),
		ProfileID:    snap.ProfileID,
		CriteriaHash: criteria,
		CreatedAt:    now,
		Files:        files,
		Archive:      archive,
	}
	if _, err := e.trail.Record(ctx, snap.ProfileID, "export.create", b.ID, hashBytes(archive)); err != nil {
		return Bundle{}, err
	}
	if idempotencyKey != "" {
		e.remember(cacheKey, b)
	}
	audit.CorrelationLogger(e.logger, audit.CorrelationID(ctx), snap.ProfileID).
		InfoContext(ctx, "evidence bundle exported", "bundle_id", b.ID, "files", len(files), "size", len(archive))
	return b, nil
}

type member struct {
	name string
	body []byte
}

func (e *Exporter) members(ctx context.Context, snap logbook.Snapshot, rep report.Report, includePDF bool) ([]member, error) {
	html, err := report.HTML(rep)
	if err != nil {
		return nil, fmt.Errorf("render html: %w", err)
	}
	var xlsx bytes.Buffer
	if err := report.WriteXLSX(&xlsx, rep); err != nil {
		return nil, fmt.Errorf("render xlsx: %w", err)
	}
	recs, err := json.MarshalIndent(recordsDocument{
		ProfileID:    snap.ProfileID,
		Daily:        orEmpty(snap.Daily),
		Activities:   orEmpty(snap.Activities),
		Limitations:  orEmpty(snap.Limitations),
		Explanations: orEmpty(snap.Explanations),
		Medications:  orEmpty(snap.Medications),
		Appointments: orEmpty(snap.Appointments),
	}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode records: %w", err)
	}
	revs, err := json.MarshalIndent(orEmpty(snap.Revisions), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode revisions: %w", err)
	}
	out := []member{
		{"report.txt", []byte(report.Text(rep))},
		{"report.html", []byte(html)},
		{"logs.xlsx", xlsx.Bytes()},
		{"records.json", recs},
		{"revisions.json", revs},
	}
	if includePDF {
		if e.opts.PDF == nil {
			return nil, faults.Validation("pdf export is not enabled", faults.ValidationItem{
				Code: "EXPORT-PDF-001", Path: "includePdf", Message: "pdf rendering is disabled on this server",
			})
		}
		pdf, err := e.opts.PDF.Render(ctx, rep)
		if err != nil {
			return nil, fmt.Errorf("render pdf: %w", err)
		}
		out = append(out, member{"report.pdf", pdf})
	}
	return out, nil
}

type recordsDocument struct {
	ProfileID    string                   `json:"profileId"`
	Daily        []*records.DailyLog      `json:"dailyLogs"`
	Activities   []*records.ActivityLog   `json:"activityLogs"`
	Limitations  []records.Limitation     `json:"limitations"`
	Explanations []records.GapExplanation `json:"gapExplanations"`
	Medications  []records.Medication     `json:"medications"`
	Appointments []records.Appointment    `json:"appointments"`
}

func orEmpty[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}

// pack zips the members in name order followed by the manifest.
func pack(members []member, modified time.Time) ([]byte, []File, error) {
	sort.Slice(members, func(i, j int) bool { return members[i].name < members[j].name })
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	files := make([]File, 0, len(members)+1)
	var manifest strings.Builder
	write := func(name string, body []byte) error {
		fw, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate, Modified: modified})
		if err != nil {
			return err
		}
		_, err = fw.Write(body)
		return err
	}
	for _, m := range members {
		if err := write(m.name, m.body); err != nil {
			return nil, nil, fmt.Errorf("zip %s: %w", m.name, err)
		}
		sum := hashBytes(m.body)
		files = append(files, File{Name: m.name, SHA256: sum, Size: len(m.body)})
		fmt.Fprintf(&manifest, "%s  %s\n", sum, m.name)
	}
	if err := write(ManifestName, []byte(manifest.String())); err != nil {
		return nil, nil, fmt.Errorf("zip %s: %w", ManifestName, err)
	}
	files = append(files, File{Name: ManifestName, SHA256: hashBytes([]byte(manifest.String())), Size: manifest.Len()})
	if err := zw.Close(); err != nil {
		return nil, nil, fmt.Errorf("close zip: %w", err)
	}
	return buf.Bytes(), files, nil
}

// CriteriaHash fingerprints a request for idempotency checks.
func CriteriaHash(profileID string, req Request) string {
	payload := struct {
		Profile    string `json:"profile"`
		From       string `json:"from"`
		To         string `json:"to"`
		IncludePDF bool   `json:"includePdf"`
	}{profileID, req.From, req.To, req.IncludePDF}
	b, _ := json.Marshal(payload)
	return hashBytes(b)
}

func (e *Exporter) cached(key string) (Bundle, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	b, ok := e.byKey[key]
	return b, ok
}

func (e *Exporter) remember(key string, b Bundle) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.byKey[key]; !ok {
		e.order = append(e.order, key)
	}
	e.byKey[key] = b
	for len(e.order) > e.opts.MaxCached {
		delete(e.byKey, e.order[0])
		e.order = e.order[1:]
	}
}

func hashBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
