// Package review builds the student and teacher dashboards and applies
// teacher score edits.
package review

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pavelanni/autograde/internal/metrics"
	"github.com/pavelanni/autograde/internal/model"
	"github.com/pavelanni/autograde/internal/scoring"
	"github.com/pavelanni/autograde/internal/store"
)

// Store is the persistence the review surfaces read and write.
type Store interface {
	GetExam(ctx context.Context, examID string) (*model.Exam, error)
	ListPublishedExams(ctx context.Context) ([]store.ExamSummary, error)
	ListExamsByOwner(ctx context.Context, ownerID int64) ([]store.ExamSummary, error)
	GetResult(ctx context.Context, resultID string) (*model.ExamResult, error)
	ListResultsForStudent(ctx context.Context, studentID int64) ([]model.ExamResult, error)
	ListSubmissions(ctx context.Context, examID string) ([]model.Submission, error)
	GetSubmission(ctx context.Context, submissionID string) (*model.Submission, error)
	UpdateSubmissionScore(ctx context.Context, sub model.Submission) error
	ExportExam(ctx context.Context, examID string) (*model.ExamExport, error)
}

// Service serves dashboards and submission review.
type Service struct {
	store Store
	log   *slog.Logger
}

// New creates a review Service.
func New(s Store, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{store: s, log: log}
}

// StudentDashboard summarises a student's history.
type StudentDashboard struct {
	ExamsTaken   int                 `json:"exams_taken"`
	AverageScore int                 `json:"average_score"`
	BestScore    int                 `json:"best_score"`
	Results      []model.ExamResult  `json:"results"`
	Available    []store.ExamSummary `json:"available"`
}

// StudentDashboard returns the student's results and the open exams.
func (s *Service) StudentDashboard(ctx context.Context, student *model.User) (*StudentDashboard, error) {
	results, err := s.store.ListResultsForStudent(ctx, student.ID)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	available, err := s.store.ListPublishedExams(ctx)
	if err != nil {
		return nil, fmt.Errorf("list exams: %w", err)
	}

	pcts := make([]float64, 0, len(results))
	for _, r := range results {
		pcts = append(pcts, scoring.ExamPercentage(r.FinalScore(), r.MaxScore))
	}
	return &StudentDashboard{
		ExamsTaken:   len(results),
		AverageScore: scoring.AverageScore(pcts),
		BestScore:    scoring.BestScore(pcts),
		Results:      nonNil(results),
		Available:    nonNil(available),
	}, nil
}

// PublishedExams lists the exams open to students.
func (s *Service) PublishedExams(ctx context.Context) ([]store.ExamSummary, error) {
	return s.store.ListPublishedExams(ctx)
}

// ExamStats is one row of the teacher dashboard.
type ExamStats struct {
	store.ExamSummary
	Submissions  int `json:"submissions"`
	Pending      int `json:"pending"`
	AverageScore int `json:"average_score"`
}

// TeacherDashboard summarises a teacher's exams.
type TeacherDashboard struct {
	TotalExams       int         `json:"total_exams"`
	PublishedExams   int         `json:"published_exams"`
	TotalSubmissions int         `json:"total_submissions"`
	PendingReviews   int         `json:"pending_reviews"`
	Exams            []ExamStats `json:"exams"`
}

// TeacherDashboard returns per-exam submission counts and averages.
func (s *Service) TeacherDashboard(ctx context.Context, teacher *model.User) (*TeacherDashboard, error) {
	exams, err := s.store.ListExamsByOwner(ctx, teacher.ID)
	if err != nil {
		return nil, fmt.Errorf("list exams: %w", err)
	}
	d := &TeacherDashboard{TotalExams: len(exams), Exams: make([]ExamStats, 0, len(exams))}
	for _, e := range exams {
		if e.Status == model.ExamPublished {
			d.PublishedExams++
		}
		subs, err := s.store.ListSubmissions(ctx, e.ID)
		if err != nil {
			return nil, fmt.Errorf("list submissions for %s: %w", e.ID, err)
		}
		_, pending := scoring.Partition(subs)
		d.Exams = append(d.Exams, ExamStats{
			ExamSummary:  e,
			Submissions:  len(subs),
			Pending:      len(pending),
			AverageScore: scoring.AverageScore(scoring.SubmissionPercentages(subs)),
		})
		d.TotalSubmissions += len(subs)
		d.PendingReviews += len(pending)
	}
	return d, nil
}

// SubmissionList is the review surface of one exam.
type SubmissionList struct {
	ExamID       string             `json:"exam_id"`
	Title        string             `json:"title"`
	AverageScore int                `json:"average_score"`
	BestScore    int                `json:"best_score"`
	Graded       []model.Submission `json:"graded"`
	Pending      []model.Submission `json:"pending"`
}

// Submissions lists an exam's submissions split by review state.
func (s *Service) Submissions(ctx context.Context, teacher *model.User, examID string) (*SubmissionList, error) {
	exam, err := s.ownedExam(ctx, teacher, examID)
	if err != nil {
		return nil, err
	}
	subs, err := s.store.ListSubmissions(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	graded, pending := scoring.Partition(subs)
	pcts := scoring.SubmissionPercentages(subs)
	return &SubmissionList{
		ExamID:       exam.ID,
		Title:        exam.Title,
		AverageScore: scoring.AverageScore(pcts),
		BestScore:    scoring.BestScore(pcts),
		Graded:       nonNil(graded),
		Pending:      nonNil(pending),
	}, nil
}

// EditScore records a teacher's manual score for a submission.
func (s *Service) EditScore(ctx context.Context, teacher *model.User, submissionID string, score float64) (*model.Submission, error) {
	sub, err := s.store.GetSubmission(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	if _, err := s.ownedExam(ctx, teacher, sub.ExamID); err != nil {
		return nil, &model.NotFoundError{Kind: "submission", ID: submissionID}
	}

	edited, err := scoring.EditScore(*sub, score)
	if err != nil {
		metrics.ScoreEdits().WithLabelValues("rejected").Inc()
		return nil, err
	}
	if err := s.store.UpdateSubmissionScore(ctx, edited); err != nil {
		return nil, fmt.Errorf("update submission: %w", err)
	}
	metrics.ScoreEdits().WithLabelValues("accepted").Inc()
	s.log.Info("submission score edited",
		"submission_id", submissionID,
		"teacher_id", teacher.ID,
		"old_score", sub.Score,
		"new_score", edited.Score,
	)
	return &edited, nil
}

// Export collects an exam's submissions for download.
func (s *Service) Export(ctx context.Context, teacher *model.User, examID string) (*model.ExamExport, error) {
	if _, err := s.ownedExam(ctx, teacher, examID); err != nil {
		return nil, err
	}
	return s.store.ExportExam(ctx, examID)
}

// Result returns a stored result to its student or to the exam's teacher.
func (s *Service) Result(ctx context.Context, viewer *model.User, resultID string) (*model.ExamResult, error) {
	r, err := s.store.GetResult(ctx, resultID)
	if err != nil {
		return nil, err
	}
	switch {
	case r.StudentID == viewer.ID:
		return r, nil
	case viewer.Role == model.UserRoleAdmin:
		return r, nil
	case viewer.Role == model.UserRoleTeacher:
		if _, err := s.ownedExam(ctx, viewer, r.ExamID); err == nil {
			return r, nil
		}
	}
	return nil, &model.NotFoundError{Kind: "result", ID: resultID}
}

func (s *Service) ownedExam(ctx context.Context, teacher *model.User, examID string) (*model.Exam, error) {
	exam, err := s.store.GetExam(ctx, examID)
	if err != nil {
		return nil, err
	}
	if !teacher.CanView(exam.OwnerID) {
		return nil, &model.NotFoundError{Kind: "exam", ID: examID}
	}
	return exam, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
