// Package export writes an exam's submissions as JSON, CSV or an XLSX workbook.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/pavelanni/autograde/internal/model"
)

// Format names an export encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// ParseFormat accepts a format name case-insensitively. Empty means JSON.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatJSON, nil
	case FormatJSON, FormatCSV, FormatXLSX:
		return f, nil
	default:
		return "", model.NewValidationError("unknown export format %q (want json, csv or xlsx)", s)
	}
}

// ContentType returns the MIME type served for the format.
func (f Format) ContentType() string {
	switch f {
	case FormatCSV:
		return "text/csv; charset=utf-8"
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return "application/json"
	}
}

// Filename builds a download name such as "biology-chapter-5-quiz-2026-10-15.csv".
func Filename(e *model.ExamExport, f Format) string {
	slug := slugify(e.Title)
	if slug == "" {
		slug = "exam"
	}
	return fmt.Sprintf("%s-%s.%s", slug, e.ExportedAt.Format("2006-01-02"), f)
}

// Write encodes e to w in the given format.
func Write(w io.Writer, f Format, e *model.ExamExport) error {
	switch f {
	case FormatJSON:
		return writeJSON(w, e)
	case FormatCSV:
		return writeCSV(w, e)
	case FormatXLSX:
		return writeXLSX(w, e)
	default:
		return model.NewValidationError("unknown export format %q", f)
	}
}

func writeJSON(w io.Writer, e *model.ExamExport) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(e)
}

var summaryHeader = []string{
	"submission_id", "username", "display_name", "status", "submitted_at",
	"time_taken_seconds", "score", "max_score", "percentage", "grade",
}

var questionHeader = []string{
	"submission_id", "username", "question", "type", "text", "student_answer",
	"correct_answer", "is_correct", "score", "max_score", "feedback",
}

func summaryRow(r model.StudentResult) []string {
	return []string{
		r.SubmissionID,
		r.Username,
		r.DisplayName,
		string(r.Status),
		r.SubmittedAt.UTC().Format(time.RFC3339),
		strconv.Itoa(r.TimeTaken),
		formatScore(r.Score),
		formatScore(r.MaxScore),
		strconv.Itoa(r.Percentage),
		r.Grade,
	}
}

func questionRows(r model.StudentResult) [][]string {
	rows := make([][]string, 0, len(r.Questions))
	for i, q := range r.Questions {
		rows = append(rows, []string{
			r.SubmissionID,
			r.Username,
			strconv.Itoa(i + 1),
			string(q.Type),
			q.Text,
			q.StudentAnswer,
			q.CorrectAnswer,
			strconv.FormatBool(q.IsCorrect),
			formatScore(q.Score),
			formatScore(q.MaxScore),
			q.Feedback,
		})
	}
	return rows
}

// writeCSV emits one row per submission.
func writeCSV(w io.Writer, e *model.ExamExport) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(summaryHeader); err != nil {
		return err
	}
	for _, r := range e.Submissions {
		if err := cw.Write(summaryRow(r)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

const (
	resultsSheet   = "Results"
	questionsSheet = "Questions"
)

// writeXLSX emits a workbook with a Results sheet of submission totals and a
// Questions sheet with every graded answer.
func writeXLSX(w io.Writer, e *model.ExamExport) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", resultsSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if _, err := f.NewSheet(questionsSheet); err != nil {
		return fmt.Errorf("add sheet: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("header style: %w", err)
	}

	results := [][]string{summaryHeader}
	questions := [][]string{questionHeader}
	for _, r := range e.Submissions {
		results = append(results, summaryRow(r))
		questions = append(questions, questionRows(r)...)
	}
	if err := fillSheet(f, resultsSheet, results, bold); err != nil {
		return err
	}
	if err := fillSheet(f, questionsSheet, questions, bold); err != nil {
		return err
	}

	f.SetActiveSheet(0)
	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func fillSheet(f *excelize.File, sheet string, rows [][]string, headerStyle int) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		values := make([]any, len(row))
		for j, v := range row {
			values[j] = v
		}
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return fmt.Errorf("%s row %d: %w", sheet, i+1, err)
		}
	}
	if err := f.SetRowStyle(sheet, 1, 1, headerStyle); err != nil {
		return fmt.Errorf("%s header style: %w", sheet, err)
	}
	return nil
}

func formatScore(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func slugify(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		case !dash && b.Len() > 0:
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
