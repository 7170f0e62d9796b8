package store

import (
	"context"
	"fmt"
	"time"

	"github.com/pavelanni/autograde/internal/model"
	"github.com/pavelanni/autograde/internal/scoring"
)

// ExportExam builds export-ready results for every submission of an exam.
func (s *Store) ExportExam(ctx context.Context, examID string) (*model.ExamExport, error) {
	exam, err := s.GetExam(ctx, examID)
	if err != nil {
		return nil, err
	}

	subs, err := s.ListSubmissions(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}

	out := &model.ExamExport{
		ExamID:      exam.ID,
		Title:       exam.Title,
		Subject:     exam.Subject,
		ExportedAt:  time.Now().UTC(),
		MaxScore:    exam.MaxPoints(),
		Submissions: make([]model.StudentResult, 0, len(subs)),
	}

	users := make(map[int64]*model.User)
	for _, sub := range subs {
		u, ok := users[sub.StudentID]
		if !ok {
			u, err = s.GetUserByID(ctx, sub.StudentID)
			if err != nil && !model.IsNotFound(err) {
				return nil, fmt.Errorf("get user %d: %w", sub.StudentID, err)
			}
			users[sub.StudentID] = u
		}

		res, err := s.GetResult(ctx, sub.ResultID)
		if err != nil {
			return nil, fmt.Errorf("get result %s: %w", sub.ResultID, err)
		}

		sr := model.StudentResult{
			SubmissionID: sub.ID,
			DisplayName:  sub.StudentName,
			Status:       sub.Status,
			SubmittedAt:  sub.SubmittedAt,
			TimeTaken:    sub.TimeTaken,
			Score:        sub.Score,
			MaxScore:     sub.MaxScore,
			Percentage:   sub.Percentage,
			Grade:        scoring.GradeLabel(sub.Percentage),
			Questions:    res.Questions,
		}
		if u != nil {
			sr.Username = u.Username
			sr.DisplayName = u.DisplayName
		}
		out.Submissions = append(out.Submissions, sr)
	}

	return out, nil
}
