package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/pavelanni/autograde/internal/model"
	"github.com/pavelanni/autograde/internal/scoring"
)

// SaveResult stores a graded exam result together with the submission the
// teacher reviews. Results that need review are filed as pending.
func (s *Store) SaveResult(ctx context.Context, r *model.ExamResult) (*model.Submission, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO exam_results (id, exam_id, student_id, total_score, max_score, percentage, grade,
		                           completed_at, time_taken, overall_feedback, needs_review)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.ExamID, r.StudentID, r.TotalScore, r.MaxScore, r.Percentage, r.Grade,
		r.CompletedAt, r.TimeTaken, r.OverallFeedback, r.NeedsReview,
	)
	if err != nil {
		return nil, fmt.Errorf("insert result: %w", err)
	}

	for i, q := range r.Questions {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO question_results (result_id, position, question_id, type, text, student_answer,
			                               correct_answer, is_correct, score, max_score, feedback)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.ID, i, q.QuestionID, q.Type, q.Text, q.StudentAnswer, q.CorrectAnswer, q.IsCorrect, q.Score, q.MaxScore, q.Feedback,
		)
		if err != nil {
			return nil, fmt.Errorf("insert question result %d: %w", i+1, err)
		}
	}

	sub := model.Submission{
		ID:          uuid.NewString(),
		ExamID:      r.ExamID,
		ResultID:    r.ID,
		StudentID:   r.StudentID,
		SubmittedAt: r.CompletedAt,
		Score:       r.TotalScore,
		MaxScore:    r.MaxScore,
		Percentage:  r.Percentage,
		Status:      model.SubmissionGraded,
		TimeTaken:   r.TimeTaken,
	}
	if r.NeedsReview {
		sub.Status = model.SubmissionPending
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO submissions (id, exam_id, result_id, student_id, submitted_at, score, max_score, percentage, status, time_taken)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sub.ID, sub.ExamID, sub.ResultID, sub.StudentID, sub.SubmittedAt, sub.Score, sub.MaxScore, sub.Percentage, sub.Status, sub.TimeTaken,
	)
	if err != nil {
		return nil, fmt.Errorf("insert submission: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &sub, nil
}

const resultQuery = `
	SELECT r.id, r.exam_id, r.student_id, e.title, e.subject, r.total_score, r.max_score, r.percentage, r.grade,
	       r.completed_at, r.time_taken, r.overall_feedback, r.needs_review, r.reviewed_score
	FROM exam_results r JOIN exams e ON e.id = r.exam_id`

type rowScanner interface {
	Scan(dest ...any) error
}

// scanResult reads one resultQuery row. A reviewed score becomes the
// result's Review with percentage and grade derived from it.
func scanResult(row rowScanner) (model.ExamResult, error) {
	var (
		r        model.ExamResult
		reviewed sql.NullFloat64
	)
	err := row.Scan(&r.ID, &r.ExamID, &r.StudentID, &r.Title, &r.Subject, &r.TotalScore, &r.MaxScore,
		&r.Percentage, &r.Grade, &r.CompletedAt, &r.TimeTaken, &r.OverallFeedback, &r.NeedsReview, &reviewed)
	if err != nil {
		return r, err
	}
	if reviewed.Valid {
		pct := scoring.Percentage(reviewed.Float64, r.MaxScore)
		r.Review = &model.ScoreReview{
			Score:      reviewed.Float64,
			Percentage: pct,
			Grade:      scoring.GradeLabel(pct),
		}
	}
	return r, nil
}

// GetResult returns a stored result with its question results.
func (s *Store) GetResult(ctx context.Context, resultID string) (*model.ExamResult, error) {
	r, err := scanResult(s.db.QueryRowContext(ctx, resultQuery+` WHERE r.id = ?`, resultID))
	if err != nil {
		return nil, notFound(err, "result", resultID)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT question_id, type, text, student_answer, correct_answer, is_correct, score, max_score, feedback
		 FROM question_results WHERE result_id = ? ORDER BY position`, resultID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var q model.QuestionResult
		if err := rows.Scan(&q.QuestionID, &q.Type, &q.Text, &q.StudentAnswer, &q.CorrectAnswer, &q.IsCorrect,
			&q.Score, &q.MaxScore, &q.Feedback); err != nil {
			return nil, err
		}
		r.Questions = append(r.Questions, q)
	}
	return &r, rows.Err()
}

// ListResultsForStudent returns the student's results, newest first,
// without per-question detail.
func (s *Store) ListResultsForStudent(ctx context.Context, studentID int64) ([]model.ExamResult, error) {
	rows, err := s.db.QueryContext(ctx, resultQuery+` WHERE r.student_id = ? ORDER BY r.completed_at DESC`, studentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.ExamResult
	for rows.Next() {
		r, err := scanResult(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

const submissionQuery = `
	SELECT s.id, s.exam_id, s.result_id, s.student_id, COALESCE(NULLIF(u.display_name, ''), u.username, ''),
	       s.submitted_at, s.score, s.max_score, s.percentage, s.status, s.time_taken
	FROM submissions s LEFT JOIN users u ON u.id = s.student_id`

// ListSubmissions returns every submission for an exam, newest first.
func (s *Store) ListSubmissions(ctx context.Context, examID string) ([]model.Submission, error) {
	rows, err := s.db.QueryContext(ctx, submissionQuery+` WHERE s.exam_id = ? ORDER BY s.submitted_at DESC`, examID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Submission
	for rows.Next() {
		var sub model.Submission
		if err := rows.Scan(&sub.ID, &sub.ExamID, &sub.ResultID, &sub.StudentID, &sub.StudentName,
			&sub.SubmittedAt, &sub.Score, &sub.MaxScore, &sub.Percentage, &sub.Status, &sub.TimeTaken); err != nil {
			return nil, err
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}

// GetSubmission returns one submission.
func (s *Store) GetSubmission(ctx context.Context, submissionID string) (*model.Submission, error) {
	var sub model.Submission
	err := s.db.QueryRowContext(ctx, submissionQuery+` WHERE s.id = ?`, submissionID).Scan(
		&sub.ID, &sub.ExamID, &sub.ResultID, &sub.StudentID, &sub.StudentName,
		&sub.SubmittedAt, &sub.Score, &sub.MaxScore, &sub.Percentage, &sub.Status, &sub.TimeTaken)
	if err != nil {
		return nil, notFound(err, "submission", submissionID)
	}
	return &sub, nil
}

// UpdateSubmissionScore persists an edited submission score and records it
// as the result's reviewed score. The graded total and question results are
// left untouched.
func (s *Store) UpdateSubmissionScore(ctx context.Context, sub model.Submission) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE submissions SET score = ?, percentage = ?, status = ? WHERE id = ?`,
		sub.Score, sub.Percentage, sub.Status, sub.ID,
	)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return &model.NotFoundError{Kind: "submission", ID: sub.ID}
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE exam_results SET reviewed_score = ?, needs_review = 0 WHERE id = ?`,
		sub.Score, sub.ResultID,
	)
	if err != nil {
		return err
	}
	return tx.Commit()
}
