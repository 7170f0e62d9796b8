package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pavelanni/autograde/internal/model"
)

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// CreateExam stores a new draft exam with its questions. Missing exam and
// question ids are generated; the stored ids are written back into e.
func (s *Store) CreateExam(ctx context.Context, e *model.Exam) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	e.Status = model.ExamDraft
	e.CreatedAt = time.Now()
	e.PublishedAt = nil

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO exams (id, owner_id, title, subject, description, difficulty, time_limit, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.OwnerID, e.Title, e.Subject, e.Description, e.Difficulty, e.TimeLimit, e.Status, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert exam: %w", err)
	}
	if err := insertQuestions(ctx, tx, e); err != nil {
		return err
	}
	return tx.Commit()
}

// UpdateExam replaces the fields and questions of a draft exam owned by
// e.OwnerID. Published exams are immutable.
func (s *Store) UpdateExam(ctx context.Context, e *model.Exam) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var status model.ExamStatus
	var created time.Time
	err = tx.QueryRowContext(ctx,
		`SELECT status, created_at FROM exams WHERE id = ? AND owner_id = ?`, e.ID, e.OwnerID,
	).Scan(&status, &created)
	if err != nil {
		return notFound(err, "exam", e.ID)
	}
	if status != model.ExamDraft {
		return model.NewValidationError("exam %s is already published", e.ID)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE exams SET title = ?, subject = ?, description = ?, difficulty = ?, time_limit = ? WHERE id = ?`,
		e.Title, e.Subject, e.Description, e.Difficulty, e.TimeLimit, e.ID,
	)
	if err != nil {
		return fmt.Errorf("update exam: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM questions WHERE exam_id = ?`, e.ID); err != nil {
		return fmt.Errorf("clear questions: %w", err)
	}
	if err := insertQuestions(ctx, tx, e); err != nil {
		return err
	}
	e.Status = status
	e.CreatedAt = created
	return tx.Commit()
}

func insertQuestions(ctx context.Context, tx *sql.Tx, e *model.Exam) error {
	for i := range e.Questions {
		q := &e.Questions[i]
		if q.ID == "" {
			q.ID = uuid.NewString()
		}
		options, err := json.Marshal(nonNil(q.Options))
		if err != nil {
			return err
		}
		keywords, err := json.Marshal(nonNil(q.Keywords))
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO questions (id, exam_id, position, type, text, options, correct_answer, rubric, keywords, max_points)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			q.ID, e.ID, i, q.Type, q.Text, string(options), q.CorrectAnswer, q.Rubric, string(keywords), q.MaxPoints,
		)
		if err != nil {
			return fmt.Errorf("insert question %d: %w", i+1, err)
		}
	}
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// PublishExam makes a draft exam available to students.
func (s *Store) PublishExam(ctx context.Context, examID string, ownerID int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE exams SET status = ?, published_at = ? WHERE id = ? AND owner_id = ? AND status = ?`,
		model.ExamPublished, time.Now(), examID, ownerID, model.ExamDraft,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		e, err := s.GetExam(ctx, examID)
		if err != nil {
			return err
		}
		if e.OwnerID != ownerID {
			return &model.NotFoundError{Kind: "exam", ID: examID}
		}
		return model.NewValidationError("exam %s is already published", examID)
	}
	return nil
}

// GetExam returns an exam with its questions in any status.
func (s *Store) GetExam(ctx context.Context, examID string) (*model.Exam, error) {
	var e model.Exam
	var published sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT id, owner_id, title, subject, description, difficulty, time_limit, status, created_at, published_at
		 FROM exams WHERE id = ?`, examID,
	).Scan(&e.ID, &e.OwnerID, &e.Title, &e.Subject, &e.Description, &e.Difficulty, &e.TimeLimit, &e.Status, &e.CreatedAt, &published)
	if err != nil {
		return nil, notFound(err, "exam", examID)
	}
	if published.Valid {
		e.PublishedAt = &published.Time
	}
	e.Questions, err = s.listQuestions(ctx, s.db, examID)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// LoadExam returns a published exam. Drafts are reported as not found.
func (s *Store) LoadExam(ctx context.Context, examID string) (*model.Exam, error) {
	e, err := s.GetExam(ctx, examID)
	if err != nil {
		return nil, err
	}
	if e.Status != model.ExamPublished {
		return nil, &model.NotFoundError{Kind: "exam", ID: examID}
	}
	return e, nil
}

func (s *Store) listQuestions(ctx context.Context, q queryer, examID string) ([]model.Question, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, type, text, options, correct_answer, rubric, keywords, max_points
		 FROM questions WHERE exam_id = ? ORDER BY position`, examID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var questions []model.Question
	for rows.Next() {
		var qu model.Question
		var options, keywords string
		if err := rows.Scan(&qu.ID, &qu.Type, &qu.Text, &options, &qu.CorrectAnswer, &qu.Rubric, &keywords, &qu.MaxPoints); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(options), &qu.Options); err != nil {
			return nil, fmt.Errorf("question %s options: %w", qu.ID, err)
		}
		if err := json.Unmarshal([]byte(keywords), &qu.Keywords); err != nil {
			return nil, fmt.Errorf("question %s keywords: %w", qu.ID, err)
		}
		if len(qu.Options) == 0 {
			qu.Options = nil
		}
		if len(qu.Keywords) == 0 {
			qu.Keywords = nil
		}
		questions = append(questions, qu)
	}
	return questions, rows.Err()
}

// ExamSummary is an exam listing row without questions.
type ExamSummary struct {
	ID            string           `json:"id"`
	OwnerID       int64            `json:"owner_id"`
	Title         string           `json:"title"`
	Subject       string           `json:"subject"`
	Difficulty    model.Difficulty `json:"difficulty"`
	TimeLimit     int              `json:"time_limit"`
	Status        model.ExamStatus `json:"status"`
	QuestionCount int              `json:"question_count"`
	MaxPoints     int              `json:"max_points"`
	CreatedAt     time.Time        `json:"created_at"`
}

const examSummaryQuery = `
	SELECT e.id, e.owner_id, e.title, e.subject, e.difficulty, e.time_limit, e.status, e.created_at,
	       COUNT(q.id), COALESCE(SUM(q.max_points), 0)
	FROM exams e LEFT JOIN questions q ON q.exam_id = e.id`

// ListExamsByOwner returns the exams authored by a teacher, newest first.
func (s *Store) ListExamsByOwner(ctx context.Context, ownerID int64) ([]ExamSummary, error) {
	return s.listExamSummaries(ctx,
		examSummaryQuery+` WHERE e.owner_id = ? GROUP BY e.id ORDER BY e.created_at DESC`, ownerID)
}

// ListPublishedExams returns every exam open to students, newest first.
func (s *Store) ListPublishedExams(ctx context.Context) ([]ExamSummary, error) {
	return s.listExamSummaries(ctx,
		examSummaryQuery+` WHERE e.status = ? GROUP BY e.id ORDER BY e.created_at DESC`, model.ExamPublished)
}

func (s *Store) listExamSummaries(ctx context.Context, query string, args ...any) ([]ExamSummary, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ExamSummary
	for rows.Next() {
		var e ExamSummary
		if err := rows.Scan(&e.ID, &e.OwnerID, &e.Title, &e.Subject, &e.Difficulty, &e.TimeLimit, &e.Status, &e.CreatedAt,
			&e.QuestionCount, &e.MaxPoints); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// DeleteExam removes a draft exam owned by ownerID.
func (s *Store) DeleteExam(ctx context.Context, examID string, ownerID int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var status model.ExamStatus
	err = tx.QueryRowContext(ctx,
		`SELECT status FROM exams WHERE id = ? AND owner_id = ?`, examID, ownerID,
	).Scan(&status)
	if err != nil {
		return notFound(err, "exam", examID)
	}
	if status != model.ExamDraft {
		return model.NewValidationError("exam %s is published and cannot be deleted", examID)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM questions WHERE exam_id = ?`, examID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM exams WHERE id = ?`, examID); err != nil {
		return err
	}
	return tx.Commit()
}
