// Package grading turns a submitted answer set into a scored exam result.
package grading

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/pavelanni/autograde/internal/model"
	"github.com/pavelanni/autograde/internal/scoring"
)

// maxConcurrentShort bounds parallel short-answer grading calls per exam.
const maxConcurrentShort = 4

// ExamLoader loads the exam definition being graded.
type ExamLoader interface {
	LoadExam(ctx context.Context, examID string) (*model.Exam, error)
}

// ShortAnswerGrader scores free-text answers.
type ShortAnswerGrader interface {
	GradeShortAnswer(ctx context.Context, question model.Question, answer string) (model.ShortAnswerGrade, error)
}

// Grader grades whole exams. Choice and blank questions are graded by rule;
// short answers go to the ShortAnswerGrader.
type Grader struct {
	exams ExamLoader
	short ShortAnswerGrader
	log   *slog.Logger
	newID func() string
}

// Option configures a Grader.
type Option func(*Grader)

// WithLogger sets the grader logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Grader) { g.log = l }
}

// WithIDFunc overrides result id generation.
func WithIDFunc(f func() string) Option {
	return func(g *Grader) { g.newID = f }
}

// New creates a Grader.
func New(exams ExamLoader, short ShortAnswerGrader, opts ...Option) *Grader {
	g := &Grader{
		exams: exams,
		short: short,
		log:   slog.Default(),
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Grade scores answers (question id -> text) against the exam. Questions
// missing from answers are graded as blank. Any short-answer failure fails
// the whole exam.
func (g *Grader) Grade(ctx context.Context, examID string, answers map[string]string) (*model.ExamResult, error) {
	exam, err := g.exams.LoadExam(ctx, examID)
	if err != nil {
		return nil, err
	}

	for _, q := range exam.Questions {
		switch q.Type {
		case model.QuestionMultipleChoice, model.QuestionFillInBlank, model.QuestionShortAnswer:
		default:
			return nil, &model.GradingError{ExamID: examID, Err: fmt.Errorf("question %s: unknown type %q", q.ID, q.Type)}
		}
	}

	results := make([]model.QuestionResult, len(exam.Questions))
	needsReview := make([]bool, len(exam.Questions))

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(maxConcurrentShort)

	for i, q := range exam.Questions {
		answer := answers[q.ID]
		switch q.Type {
		case model.QuestionMultipleChoice:
			results[i] = scoring.GradeChoice(q, answer)
		case model.QuestionFillInBlank:
			results[i] = scoring.GradeBlank(q, answer)
		case model.QuestionShortAnswer:
			if strings.TrimSpace(answer) == "" {
				results[i] = shortResult(q, answer, model.ShortAnswerGrade{Feedback: "No answer provided."})
				continue
			}
			eg.Go(func() error {
				grade, err := g.short.GradeShortAnswer(egCtx, q, answer)
				if err != nil {
					return fmt.Errorf("question %s: %w", q.ID, err)
				}
				results[i] = shortResult(q, answer, grade)
				needsReview[i] = grade.NeedsReview
				return nil
			})
		}
	}
	if err := eg.Wait(); err != nil {
		return nil, &model.GradingError{ExamID: examID, Err: err}
	}

	result := &model.ExamResult{
		ID:        g.newID(),
		ExamID:    exam.ID,
		Title:     exam.Title,
		Subject:   exam.Subject,
		Questions: results,
	}
	for _, r := range needsReview {
		result.NeedsReview = result.NeedsReview || r
	}
	scoring.Aggregate(result)
	result.OverallFeedback = scoring.OverallFeedback(result.Percentage)

	g.log.Debug("exam graded",
		"exam_id", exam.ID,
		"score", result.TotalScore,
		"max", result.MaxScore,
		"percentage", result.Percentage,
		"needs_review", result.NeedsReview,
	)
	return result, nil
}

func shortResult(q model.Question, answer string, grade model.ShortAnswerGrade) model.QuestionResult {
	return model.QuestionResult{
		QuestionID:    q.ID,
		Type:          q.Type,
		Text:          q.Text,
		StudentAnswer: answer,
		CorrectAnswer: q.CorrectAnswer,
		IsCorrect:     grade.IsCorrect,
		Score:         grade.Score,
		MaxScore:      float64(q.MaxPoints),
		Feedback:      grade.Feedback,
	}
}
