package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
)

const (
	sheetLogs   = "Logs"
	sheetGaps   = "Gaps"
	sheetClaims = "Claims"
)

// Workbook builds a spreadsheet with one sheet each for raw logs, gaps and
// narrative drafts.
func Workbook(r Report) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", sheetLogs); err != nil {
		return nil, err
	}
	for _, name := range []string{sheetGaps, sheetClaims} {
		if _, err := f.NewSheet(name); err != nil {
			return nil, err
		}
	}

	logHeaders := []any{"Event date", "Kind", "ID", "Status", "Created", "Updated", "Evidence timestamp", "Delay", "Retrospective", "Details", "Revisions"}
	if err := f.SetSheetRow(sheetLogs, "A1", &logHeaders); err != nil {
		return nil, err
	}
	gapHeaders := []any{"Start", "End", "Length (days)", "Explanation"}
	if err := f.SetSheetRow(sheetGaps, "A1", &gapHeaders); err != nil {
		return nil, err
	}
	claimHeaders := []any{"Dimension", "Statement", "Evidence"}
	if err := f.SetSheetRow(sheetClaims, "A1", &claimHeaders); err != nil {
		return nil, err
	}

	logRow, gapRow := 2, 2
	for _, e := range r.Entries {
		if e.Gap != nil {
			row := []any{e.Gap.StartDate, e.Gap.EndDate, e.Gap.LengthDays, e.Gap.Explanation}
			if err := f.SetSheetRow(sheetGaps, fmt.Sprintf("A%d", gapRow), &row); err != nil {
				return nil, err
			}
			gapRow++
			continue
		}
		revs := make([]string, 0, len(e.Revisions))
		for _, rev := range e.Revisions {
			revs = append(revs, fmt.Sprintf("%s %s: %s -> %s (%s)", rev.CreatedAt, rev.FieldPath, rev.Original, rev.New, rev.Reason))
		}
		row := []any{
			e.EventDate, string(e.Kind), e.ID, e.Status, e.CreatedAt, e.UpdatedAt,
			e.EvidenceTimestamp, e.DelayLabel, e.Retrospective,
			strings.Join(e.Details, "; "), strings.Join(revs, "\n"),
		}
		if err := f.SetSheetRow(sheetLogs, fmt.Sprintf("A%d", logRow), &row); err != nil {
			return nil, err
		}
		logRow++
	}
	for i, n := range r.Narratives {
		row := []any{n.Dimension, n.Text, strings.Join(n.Evidence, ", ")}
		if err := f.SetSheetRow(sheetClaims, fmt.Sprintf("A%d", i+2), &row); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// WriteXLSX writes the workbook to w.
func WriteXLSX(w io.Writer, r Report) error {
	f, err := Workbook(r)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Write(w)
}
