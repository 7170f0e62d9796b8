package store

import (
	"context"
	"testing"
	"time"

	"github.com/pavelanni/autograde/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("newTestStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func createTestUser(t *testing.T, s *Store, username string, role model.UserRole) int64 {
	t.Helper()
	id, err := s.CreateUser(context.Background(), model.User{
		Username:     username,
		DisplayName:  "Name of " + username,
		PasswordHash: "hash",
		Role:         role,
		Active:       true,
	})
	if err != nil {
		t.Fatalf("createTestUser: %v", err)
	}
	return id
}

func testExam(ownerID int64) *model.Exam {
	return &model.Exam{
		OwnerID:    ownerID,
		Title:      "Biology Chapter 5 Quiz",
		Subject:    "Biology",
		Difficulty: model.DifficultyMedium,
		TimeLimit:  30,
		Questions: []model.Question{
			{Type: model.QuestionMultipleChoice, Text: "What is the powerhouse of the cell?",
				Options: []string{"Nucleus", "Mitochondria"}, CorrectAnswer: "Mitochondria", MaxPoints: 10},
			{Type: model.QuestionFillInBlank, Text: "Photosynthesis occurs in the ___.",
				CorrectAnswer: "chloroplasts", MaxPoints: 10},
			{Type: model.QuestionShortAnswer, Text: "Explain cellular respiration.",
				Keywords: []string{"glucose", "ATP"}, Rubric: "Mention ATP", MaxPoints: 10},
		},
	}
}

func createPublishedExam(t *testing.T, s *Store, ownerID int64) *model.Exam {
	t.Helper()
	ctx := context.Background()
	e := testExam(ownerID)
	if err := s.CreateExam(ctx, e); err != nil {
		t.Fatalf("CreateExam: %v", err)
	}
	if err := s.PublishExam(ctx, e.ID, ownerID); err != nil {
		t.Fatalf("PublishExam: %v", err)
	}
	return e
}

func TestExamCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	teacher := createTestUser(t, s, "tina", model.UserRoleTeacher)

	e := testExam(teacher)
	if err := s.CreateExam(ctx, e); err != nil {
		t.Fatalf("CreateExam: %v", err)
	}
	if e.ID == "" {
		t.Fatal("expected generated exam id")
	}
	for i, q := range e.Questions {
		if q.ID == "" {
			t.Errorf("question %d: expected generated id", i)
		}
	}

	got, err := s.GetExam(ctx, e.ID)
	if err != nil {
		t.Fatalf("GetExam: %v", err)
	}
	if got.Status != model.ExamDraft {
		t.Errorf("expected draft, got %q", got.Status)
	}
	if len(got.Questions) != 3 {
		t.Fatalf("expected 3 questions, got %d", len(got.Questions))
	}
	if got.Questions[0].Options[1] != "Mitochondria" {
		t.Errorf("options not round-tripped: %v", got.Questions[0].Options)
	}
	if got.Questions[1].Options != nil {
		t.Errorf("expected nil options for blank question, got %v", got.Questions[1].Options)
	}
	if got.Questions[2].Keywords[1] != "ATP" {
		t.Errorf("keywords not round-tripped: %v", got.Questions[2].Keywords)
	}
	if got.MaxPoints() != 30 {
		t.Errorf("expected 30 max points, got %d", got.MaxPoints())
	}

	// Drafts are invisible to students.
	if _, err := s.LoadExam(ctx, e.ID); !model.IsNotFound(err) {
		t.Errorf("expected not found for draft, got %v", err)
	}

	// Update replaces questions.
	e.Title = "Biology Chapter 5 Quiz (revised)"
	e.Questions = e.Questions[:2]
	if err := s.UpdateExam(ctx, e); err != nil {
		t.Fatalf("UpdateExam: %v", err)
	}
	got, _ = s.GetExam(ctx, e.ID)
	if got.Title != "Biology Chapter 5 Quiz (revised)" || len(got.Questions) != 2 {
		t.Errorf("update not applied: %q with %d questions", got.Title, len(got.Questions))
	}

	// Another teacher cannot touch it.
	other := createTestUser(t, s, "otto", model.UserRoleTeacher)
	if err := s.PublishExam(ctx, e.ID, other); !model.IsNotFound(err) {
		t.Errorf("expected not found for foreign publish, got %v", err)
	}

	if err := s.PublishExam(ctx, e.ID, teacher); err != nil {
		t.Fatalf("PublishExam: %v", err)
	}
	loaded, err := s.LoadExam(ctx, e.ID)
	if err != nil {
		t.Fatalf("LoadExam: %v", err)
	}
	if loaded.PublishedAt == nil {
		t.Error("expected published_at to be set")
	}

	// Published exams are immutable.
	if err := s.PublishExam(ctx, e.ID, teacher); !model.IsValidation(err) {
		t.Errorf("expected validation error on republish, got %v", err)
	}
	if err := s.UpdateExam(ctx, e); !model.IsValidation(err) {
		t.Errorf("expected validation error on update, got %v", err)
	}
	if err := s.DeleteExam(ctx, e.ID, teacher); !model.IsValidation(err) {
		t.Errorf("expected validation error on delete, got %v", err)
	}

	if _, err := s.GetExam(ctx, "missing"); !model.IsNotFound(err) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestListExams(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	teacher := createTestUser(t, s, "tina", model.UserRoleTeacher)

	createPublishedExam(t, s, teacher)
	draft := testExam(teacher)
	if err := s.CreateExam(ctx, draft); err != nil {
		t.Fatalf("CreateExam: %v", err)
	}

	mine, err := s.ListExamsByOwner(ctx, teacher)
	if err != nil {
		t.Fatalf("ListExamsByOwner: %v", err)
	}
	if len(mine) != 2 {
		t.Fatalf("expected 2 exams, got %d", len(mine))
	}
	for _, e := range mine {
		if e.QuestionCount != 3 || e.MaxPoints != 30 {
			t.Errorf("exam %s: expected 3 questions / 30 points, got %d / %d", e.ID, e.QuestionCount, e.MaxPoints)
		}
	}

	published, err := s.ListPublishedExams(ctx)
	if err != nil {
		t.Fatalf("ListPublishedExams: %v", err)
	}
	if len(published) != 1 {
		t.Errorf("expected 1 published exam, got %d", len(published))
	}

	if err := s.DeleteExam(ctx, draft.ID, teacher); err != nil {
		t.Fatalf("DeleteExam: %v", err)
	}
	mine, _ = s.ListExamsByOwner(ctx, teacher)
	if len(mine) != 1 {
		t.Errorf("expected 1 exam after delete, got %d", len(mine))
	}
}

func sampleResult(examID string, studentID int64, needsReview bool) *model.ExamResult {
	return &model.ExamResult{
		ExamID:      examID,
		StudentID:   studentID,
		TotalScore:  25,
		MaxScore:    30,
		Percentage:  83,
		Grade:       "B",
		CompletedAt: time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC),
		TimeTaken:   1200,
		Questions: []model.QuestionResult{
			{QuestionID: "q1", Type: model.QuestionMultipleChoice, Text: "Q1", StudentAnswer: "Mitochondria",
				CorrectAnswer: "Mitochondria", IsCorrect: true, Score: 10, MaxScore: 10, Feedback: "Correct."},
			{QuestionID: "q2", Type: model.QuestionFillInBlank, Text: "Q2", StudentAnswer: "chloroplasts",
				CorrectAnswer: "chloroplasts", IsCorrect: true, Score: 10, MaxScore: 10, Feedback: "Correct."},
			{QuestionID: "q3", Type: model.QuestionShortAnswer, Text: "Q3", StudentAnswer: "glucose",
				Score: 5, MaxScore: 10, Feedback: "Partial."},
		},
		OverallFeedback: "Good understanding overall.",
		NeedsReview:     needsReview,
	}
}

func TestSaveAndGetResult(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	teacher := createTestUser(t, s, "tina", model.UserRoleTeacher)
	student := createTestUser(t, s, "sam", model.UserRoleStudent)
	exam := createPublishedExam(t, s, teacher)

	sub, err := s.SaveResult(ctx, sampleResult(exam.ID, student, false))
	if err != nil {
		t.Fatalf("SaveResult: %v", err)
	}
	if sub.Status != model.SubmissionGraded {
		t.Errorf("expected graded submission, got %q", sub.Status)
	}

	res, err := s.GetResult(ctx, sub.ResultID)
	if err != nil {
		t.Fatalf("GetResult: %v", err)
	}
	if res.Title != exam.Title || res.Subject != "Biology" {
		t.Errorf("expected exam title/subject, got %q/%q", res.Title, res.Subject)
	}
	if len(res.Questions) != 3 || res.Questions[2].Score != 5 {
		t.Errorf("question results not round-tripped: %+v", res.Questions)
	}
	if res.CorrectCount() != 2 {
		t.Errorf("expected 2 correct, got %d", res.CorrectCount())
	}

	pending, err := s.SaveResult(ctx, sampleResult(exam.ID, student, true))
	if err != nil {
		t.Fatalf("SaveResult: %v", err)
	}
	if pending.Status != model.SubmissionPending {
		t.Errorf("expected pending submission, got %q", pending.Status)
	}

	results, err := s.ListResultsForStudent(ctx, student)
	if err != nil {
		t.Fatalf("ListResultsForStudent: %v", err)
	}
	if len(results) != 2 {
		t.Errorf("expected 2 results, got %d", len(results))
	}

	subs, err := s.ListSubmissions(ctx, exam.ID)
	if err != nil {
		t.Fatalf("ListSubmissions: %v", err)
	}
	if len(subs) != 2 {
		t.Fatalf("expected 2 submissions, got %d", len(subs))
	}
	if subs[0].StudentName != "Name of sam" {
		t.Errorf("expected student display name, got %q", subs[0].StudentName)
	}

	if _, err := s.GetResult(ctx, "missing"); !model.IsNotFound(err) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestUpdateSubmissionScore(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	teacher := createTestUser(t, s, "tina", model.UserRoleTeacher)
	student := createTestUser(t, s, "sam", model.UserRoleStudent)
	exam := createPublishedExam(t, s, teacher)

	sub, err := s.SaveResult(ctx, sampleResult(exam.ID, student, true))
	if err != nil {
		t.Fatalf("SaveResult: %v", err)
	}

	sub.Score = 28
	sub.Percentage = 93
	sub.Status = model.SubmissionReviewed
	if err := s.UpdateSubmissionScore(ctx, *sub); err != nil {
		t.Fatalf("UpdateSubmissionScore: %v", err)
	}

	got, err := s.GetSubmission(ctx, sub.ID)
	if err != nil {
		t.Fatalf("GetSubmission: %v", err)
	}
	if got.Score != 28 || got.Status != model.SubmissionReviewed {
		t.Errorf("submission not updated: %+v", got)
	}

	res, err := s.GetResult(ctx, sub.ResultID)
	if err != nil {
		t.Fatalf("GetResult: %v", err)
	}
	if res.Review == nil || res.Review.Score != 28 || res.Review.Percentage != 93 || res.Review.Grade != "A" {
		t.Errorf("reviewed score not recorded: %+v", res.Review)
	}
	if res.NeedsReview {
		t.Error("expected needs_review cleared")
	}

	var sum float64
	for _, q := range res.Questions {
		sum += q.Score
	}
	if res.TotalScore != sum {
		t.Errorf("total score %v no longer matches question scores %v", res.TotalScore, sum)
	}
	if res.FinalScore() != 28 {
		t.Errorf("FinalScore = %v, want 28", res.FinalScore())
	}

	listed, err := s.ListResultsForStudent(ctx, student)
	if err != nil {
		t.Fatalf("ListResultsForStudent: %v", err)
	}
	if len(listed) != 1 || listed[0].Review == nil || listed[0].Review.Score != 28 {
		t.Errorf("listed result missing review: %+v", listed)
	}

	missing := *sub
	missing.ID = "nope"
	if err := s.UpdateSubmissionScore(ctx, missing); !model.IsNotFound(err) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestExportExam(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	teacher := createTestUser(t, s, "tina", model.UserRoleTeacher)
	student := createTestUser(t, s, "sam", model.UserRoleStudent)
	exam := createPublishedExam(t, s, teacher)

	if _, err := s.SaveResult(ctx, sampleResult(exam.ID, student, false)); err != nil {
		t.Fatalf("SaveResult: %v", err)
	}

	out, err := s.ExportExam(ctx, exam.ID)
	if err != nil {
		t.Fatalf("ExportExam: %v", err)
	}
	if out.MaxScore != 30 || len(out.Submissions) != 1 {
		t.Fatalf("unexpected export: max=%d subs=%d", out.MaxScore, len(out.Submissions))
	}
	sr := out.Submissions[0]
	if sr.Username != "sam" || sr.Grade != "B" || len(sr.Questions) != 3 {
		t.Errorf("unexpected student result: %+v", sr)
	}
}

func TestUsers(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	count, err := s.UserCount(ctx)
	if err != nil || count != 0 {
		t.Fatalf("UserCount = %d, %v", count, err)
	}

	id := createTestUser(t, s, "sam", model.UserRoleStudent)
	createTestUser(t, s, "tina", model.UserRoleTeacher)

	if _, err := s.CreateUser(ctx, model.User{Username: "sam", PasswordHash: "x", Role: model.UserRoleStudent}); !model.IsValidation(err) {
		t.Errorf("expected validation error for duplicate username, got %v", err)
	}

	u, err := s.GetUserByUsername(ctx, "sam")
	if err != nil {
		t.Fatalf("GetUserByUsername: %v", err)
	}
	if u.ID != id || !u.Active {
		t.Errorf("unexpected user: %+v", u)
	}
	if _, err := s.GetUserByUsername(ctx, "nobody"); !model.IsNotFound(err) {
		t.Errorf("expected not found, got %v", err)
	}

	students, err := s.ListUsers(ctx, model.UserRoleStudent)
	if err != nil {
		t.Fatalf("ListUsers: %v", err)
	}
	if len(students) != 1 {
		t.Errorf("expected 1 student, got %d", len(students))
	}
	all, _ := s.ListUsers(ctx, "")
	if len(all) != 2 {
		t.Errorf("expected 2 users, got %d", len(all))
	}

	token, err := s.CreateAuthSession(ctx, id)
	if err != nil {
		t.Fatalf("CreateAuthSession: %v", err)
	}
	if err := s.ToggleUserActive(ctx, id); err != nil {
		t.Fatalf("ToggleUserActive: %v", err)
	}
	u, _ = s.GetUserByID(ctx, id)
	if u.Active {
		t.Error("expected user to be inactive")
	}
	sess, err := s.GetAuthSession(ctx, token)
	if err != nil {
		t.Fatalf("GetAuthSession: %v", err)
	}
	if sess != nil {
		t.Error("deactivating a user should end their sessions")
	}

	if err := s.ToggleUserActive(ctx, 9999); !model.IsNotFound(err) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestAuthSessions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	id := createTestUser(t, s, "sam", model.UserRoleStudent)

	token, err := s.CreateAuthSession(ctx, id)
	if err != nil {
		t.Fatalf("CreateAuthSession: %v", err)
	}
	if len(token) != 64 {
		t.Errorf("expected 64-char token, got %d", len(token))
	}

	sess, err := s.GetAuthSession(ctx, token)
	if err != nil || sess == nil {
		t.Fatalf("GetAuthSession = %v, %v", sess, err)
	}
	if sess.UserID != id {
		t.Errorf("expected user %d, got %d", id, sess.UserID)
	}

	// Expire it by hand.
	if _, err := s.db.Exec(`UPDATE auth_sessions SET expires_at = ? WHERE id = ?`, time.Now().Add(-time.Hour), token); err != nil {
		t.Fatalf("expire: %v", err)
	}
	sess, err = s.GetAuthSession(ctx, token)
	if err != nil {
		t.Fatalf("GetAuthSession: %v", err)
	}
	if sess != nil {
		t.Error("expected expired session to be nil")
	}

	other, _ := s.CreateAuthSession(ctx, id)
	if _, err := s.db.Exec(`UPDATE auth_sessions SET expires_at = ? WHERE id = ?`, time.Now().Add(-time.Hour), other); err != nil {
		t.Fatalf("expire: %v", err)
	}
	n, err := s.CleanupExpiredSessions(ctx)
	if err != nil {
		t.Fatalf("CleanupExpiredSessions: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 cleaned session, got %d", n)
	}

	if err := s.DeleteAuthSession(ctx, "unknown"); err != nil {
		t.Errorf("DeleteAuthSession: %v", err)
	}
}

func TestImportedFileHash(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	hash, err := s.GetImportedFileHash(ctx, "/exams/bio.json")
	if err != nil {
		t.Fatalf("GetImportedFileHash: %v", err)
	}
	if hash != "" {
		t.Errorf("expected empty hash, got %q", hash)
	}

	if err := s.SetImportedFileHash(ctx, "/exams/bio.json", "abc123"); err != nil {
		t.Fatalf("SetImportedFileHash: %v", err)
	}
	if err := s.SetImportedFileHash(ctx, "/exams/bio.json", "def456"); err != nil {
		t.Fatalf("SetImportedFileHash update: %v", err)
	}
	hash, _ = s.GetImportedFileHash(ctx, "/exams/bio.json")
	if hash != "def456" {
		t.Errorf("expected 'def456', got %q", hash)
	}

	// Import hashes live alongside other metadata without clashing.
	if err := s.SetMetadata(ctx, "/exams/bio.json", "other"); err != nil {
		t.Fatalf("SetMetadata: %v", err)
	}
	hash, _ = s.GetImportedFileHash(ctx, "/exams/bio.json")
	if hash != "def456" {
		t.Errorf("metadata key clashed with import hash: %q", hash)
	}
}
