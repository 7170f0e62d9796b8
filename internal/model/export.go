package model

import "time"

// ExamExport is the top-level structure for exporting one exam's results.
type ExamExport struct {
	ExamID      string          `json:"exam_id"`
	Title       string          `json:"title"`
	Subject     string          `json:"subject"`
	ExportedAt  time.Time       `json:"exported_at"`
	MaxScore    int             `json:"max_score"`
	Submissions []StudentResult `json:"submissions"`
}

// StudentResult holds one student's submission data for export.
type StudentResult struct {
	SubmissionID string           `json:"submission_id"`
	Username     string           `json:"username"`
	DisplayName  string           `json:"display_name"`
	Status       SubmissionStatus `json:"status"`
	SubmittedAt  time.Time        `json:"submitted_at"`
	TimeTaken    int              `json:"time_taken_seconds"`
	Score        float64          `json:"score"`
	MaxScore     float64          `json:"max_score"`
	Percentage   int              `json:"percentage"`
	Grade        string           `json:"grade"`
	Questions    []QuestionResult `json:"questions"`
}
