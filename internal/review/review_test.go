package review

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavelanni/autograde/internal/model"
	"github.com/pavelanni/autograde/internal/store"
)

type fixture struct {
	store   *store.Store
	svc     *Service
	teacher *model.User
	student *model.User
	exam    *model.Exam
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	s, err := store.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	tid, err := s.CreateUser(ctx, model.User{Username: "tina", PasswordHash: "x", Role: model.UserRoleTeacher, Active: true})
	require.NoError(t, err)
	sid, err := s.CreateUser(ctx, model.User{Username: "sam", DisplayName: "Sam", PasswordHash: "x", Role: model.UserRoleStudent, Active: true})
	require.NoError(t, err)

	exam := &model.Exam{
		OwnerID: tid, Title: "Biology Chapter 5 Quiz", Subject: "Biology", TimeLimit: 30,
		Questions: []model.Question{
			{Type: model.QuestionShortAnswer, Text: "Explain respiration.", MaxPoints: 50},
			{Type: model.QuestionShortAnswer, Text: "Explain photosynthesis.", MaxPoints: 50},
		},
	}
	require.NoError(t, s.CreateExam(ctx, exam))
	require.NoError(t, s.PublishExam(ctx, exam.ID, tid))

	return &fixture{
		store:   s,
		svc:     New(s, nil),
		teacher: &model.User{ID: tid, Role: model.UserRoleTeacher},
		student: &model.User{ID: sid, Role: model.UserRoleStudent},
		exam:    exam,
	}
}

func (f *fixture) submit(t *testing.T, score float64, needsReview bool) *model.Submission {
	t.Helper()
	pct := int(score)
	sub, err := f.store.SaveResult(context.Background(), &model.ExamResult{
		ExamID: f.exam.ID, StudentID: f.student.ID,
		TotalScore: score, MaxScore: 100, Percentage: pct, Grade: "X",
		CompletedAt: time.Now(), NeedsReview: needsReview,
	})
	require.NoError(t, err)
	return sub
}

func TestStudentDashboard(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	d, err := f.svc.StudentDashboard(ctx, f.student)
	require.NoError(t, err)
	assert.Zero(t, d.ExamsTaken)
	assert.Zero(t, d.AverageScore)
	assert.Zero(t, d.BestScore)
	assert.Len(t, d.Available, 1)

	f.submit(t, 85, false)
	f.submit(t, 92, false)

	d, err = f.svc.StudentDashboard(ctx, f.student)
	require.NoError(t, err)
	assert.Equal(t, 2, d.ExamsTaken)
	assert.Equal(t, 89, d.AverageScore)
	assert.Equal(t, 92, d.BestScore)
}

func TestTeacherDashboardAndSubmissions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.submit(t, 80, false)
	f.submit(t, 60, true)

	d, err := f.svc.TeacherDashboard(ctx, f.teacher)
	require.NoError(t, err)
	assert.Equal(t, 1, d.TotalExams)
	assert.Equal(t, 1, d.PublishedExams)
	assert.Equal(t, 2, d.TotalSubmissions)
	assert.Equal(t, 1, d.PendingReviews)
	require.Len(t, d.Exams, 1)
	assert.Equal(t, 70, d.Exams[0].AverageScore)

	list, err := f.svc.Submissions(ctx, f.teacher, f.exam.ID)
	require.NoError(t, err)
	assert.Len(t, list.Graded, 1)
	assert.Len(t, list.Pending, 1)
	assert.Equal(t, "Sam", list.Pending[0].StudentName)
	assert.Equal(t, 80, list.BestScore)

	other := &model.User{ID: f.teacher.ID + 99, Role: model.UserRoleTeacher}
	_, err = f.svc.Submissions(ctx, other, f.exam.ID)
	assert.True(t, model.IsNotFound(err))
}

func TestEditScore(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sub := f.submit(t, 60, true)

	_, err := f.svc.EditScore(ctx, f.teacher, sub.ID, 105)
	assert.True(t, model.IsValidation(err))
	unchanged, err := f.store.GetSubmission(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, 60.0, unchanged.Score)
	assert.Equal(t, model.SubmissionPending, unchanged.Status)

	edited, err := f.svc.EditScore(ctx, f.teacher, sub.ID, 90)
	require.NoError(t, err)
	assert.Equal(t, 90.0, edited.Score)
	assert.Equal(t, 90, edited.Percentage)
	assert.Equal(t, model.SubmissionReviewed, edited.Status)

	res, err := f.svc.Result(ctx, f.student, sub.ResultID)
	require.NoError(t, err)
	require.NotNil(t, res.Review)
	assert.Equal(t, 90.0, res.Review.Score)
	assert.Equal(t, "A", res.FinalGrade())
	assert.Equal(t, 60.0, res.TotalScore, "graded total is kept")

	d, err := f.svc.StudentDashboard(ctx, f.student)
	require.NoError(t, err)
	assert.Equal(t, 90, d.BestScore)

	other := &model.User{ID: f.teacher.ID + 99, Role: model.UserRoleTeacher}
	_, err = f.svc.EditScore(ctx, other, sub.ID, 50)
	assert.True(t, model.IsNotFound(err))
}

func TestResultVisibility(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sub := f.submit(t, 70, false)

	_, err := f.svc.Result(ctx, f.teacher, sub.ResultID)
	assert.NoError(t, err)

	stranger := &model.User{ID: f.student.ID + 50, Role: model.UserRoleStudent}
	_, err = f.svc.Result(ctx, stranger, sub.ResultID)
	assert.True(t, model.IsNotFound(err))
}

func TestExportChecksOwner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.submit(t, 70, false)

	e, err := f.svc.Export(ctx, f.teacher, f.exam.ID)
	require.NoError(t, err)
	require.Len(t, e.Submissions, 1)
	assert.Equal(t, "sam", e.Submissions[0].Username)

	other := &model.User{ID: f.teacher.ID + 99, Role: model.UserRoleTeacher}
	_, err = f.svc.Export(ctx, other, f.exam.ID)
	assert.True(t, model.IsNotFound(err))
}
