package export

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/yourorg/evidencelog/internal/audit"
	"github.com/yourorg/evidencelog/internal/clock"
	"github.com/yourorg/evidencelog/internal/faults"
	"github.com/yourorg/evidencelog/internal/logbook"
	"github.com/yourorg/evidencelog/internal/records"
	"github.com/yourorg/evidencelog/internal/report"
	"github.com/yourorg/evidencelog/internal/store"
)

type stubPDF struct{}

func (stubPDF) Render(context.Context, report.Report) ([]byte, error) {
	return []byte("%PDF-1.4 stub"), nil
}

func setup(t *testing.T, opts Options) (*Exporter, *audit.Trail) {
	t.Helper()
	ctx := context.Background()
	s := store.NewMemory()
	c := clock.NewFixed(time.Date(2024, 1, 12, 10, 0, 0, 0, time.UTC))
	trail := audit.NewTrail(audit.NewStoreRecorder(s), c, nil)
	book := logbook.New(s, c, trail, logbook.Options{}, nil)
	for _, d := range []string{"2024-01-01", "2024-01-10"} {
		_, err := book.CreateDailyLog(ctx, "p1", records.DailyLogInput{
			EventDate:       d,
			OverallSeverity: 6,
			Symptoms:        []records.SymptomInput{{Symptom: "back_pain", Severity: 8}},
		})
		if err != nil {
			t.Fatalf("CreateDailyLog() error = %v", err)
		}
	}
	return New(book, c, trail, opts, nil), trail
}

func readZip(t *testing.T, archive []byte) map[string]string {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	if err != nil {
		t.Fatalf("zip.NewReader() error = %v", err)
	}
	out := map[string]string{}
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("Open(%s) error = %v", f.Name, err)
		}
		body, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			t.Fatalf("ReadAll(%s) error = %v", f.Name, err)
		}
		out[f.Name] = string(body)
	}
	return out
}

func TestExportBundleContents(t *testing.T) {
	exp, trail := setup(t, Options{})
	b, err := exp.Export(context.Background(), "p1", "", Request{})
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	files := readZip(t, b.Archive)
	for _, name := range []string{"report.txt", "report.html", "logs.xlsx", "records.json", "revisions.json", ManifestName} {
		if _, ok := files[name]; !ok {
			t.Fatalf("bundle missing %s", name)
		}
	}
	if !strings.Contains(files["report.txt"], "== Raw Logs ==") {
		t.Fatalf("report.txt = %s", files["report.txt"])
	}
	manifest := files[ManifestName]
	for _, f := range b.Files {
		if f.Name == ManifestName {
			continue
		}
		if f.SHA256 != hashBytes([]byte(files[f.Name])) {
			t.Fatalf("digest mismatch for %s", f.Name)
		}
		if !strings.Contains(manifest, f.SHA256+"  "+f.Name) {
			t.Fatalf("manifest missing %s: %s", f.Name, manifest)
		}
	}

	entries, _ := trail.Entries(context.Background(), "p1")
	last := entries[len(entries)-1]
	if last.Action != "export.create" || last.Subject != b.ID || last.Digest != hashBytes(b.Archive) {
		t.Fatalf("audit entry = %+v", last)
	}
}

func TestExportIdempotency(t *testing.T) {
	exp, _ := setup(t, Options{})
	ctx := context.Background()
	first, err := exp.Export(ctx, "p1", "key-1", Request{From: "2024-01-01", To: "2024-01-31"})
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	again, err := exp.Export(ctx, "p1", "key-1", Request{From: "2024-01-01", To: "2024-01-31"})
	if err != nil || again.ID != first.ID {
		t.Fatalf("replay = %s, %v; want %s", again.ID, err, first.ID)
	}
	_, err = exp.Export(ctx, "p1", "key-1", Request{From: "2024-01-01", To: "2024-01-15"})
	var conflict ConflictError
	if !errors.As(err, &conflict) || conflict.BundleID != first.ID {
		t.Fatalf("Export() error = %v, want conflict", err)
	}
}

func TestExportPDF(t *testing.T) {
	exp, _ := setup(t, Options{})
	if _, err := exp.Export(context.Background(), "p1", "", Request{IncludePDF: true}); !errors.Is(err, faults.ErrValidation) {
		t.Fatalf("Export() error = %v, want validation", err)
	}

	exp, _ = setup(t, Options{PDF: stubPDF{}})
	b, err := exp.Export(context.Background(), "p1", "", Request{IncludePDF: true})
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if files := readZip(t, b.Archive); !strings.HasPrefix(files["report.pdf"], "%PDF") {
		t.Fatalf("report.pdf missing")
	}
}

func TestExportRejectsBadWindow(t *testing.T) {
	exp, _ := setup(t, Options{})
	if _, err := exp.Export(context.Background(), "p1", "", Request{From: "Jan 1"}); !errors.Is(err, faults.ErrValidation) {
		t.Fatalf("Export() error = %v, want validation", err)
	}
}

func TestCriteriaHashStable(t *testing.T) {
	a := CriteriaHash("p1", Request{From: "2024-01-01"})
	if a != CriteriaHash("p1", Request{From: "2024-01-01"}) || a == CriteriaHash("p2", Request{From: "2024-01-01"}) {
		t.Fatalf("CriteriaHash() not stable per profile")
	}
}
