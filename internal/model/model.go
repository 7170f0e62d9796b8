package model

import (
	"context"
	"time"
)

// UserRole represents a user's access level.
type UserRole string

const (
	// UserRoleStudent is a student user role.
	UserRoleStudent UserRole = "student"
	// UserRoleTeacher is a teacher user role.
	UserRoleTeacher UserRole = "teacher"
	// UserRoleAdmin is an admin user role.
	UserRoleAdmin UserRole = "admin"
)

// User represents a system user.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	DisplayName  string    `json:"display_name"`
	PasswordHash string    `json:"-"`
	Role         UserRole  `json:"role"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
}

// CanView reports whether u may read an exam owned by ownerID and its
// submissions. Admins can read every exam.
func (u *User) CanView(ownerID int64) bool {
	return u.ID == ownerID || u.Role == UserRoleAdmin
}

// AuthSession represents an authentication session.
type AuthSession struct {
	ID        string
	UserID    int64
	CreatedAt time.Time
	ExpiresAt time.Time
}

type userCtxKey struct{}

// ContextWithUser stores a user in the request context.
func ContextWithUser(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, userCtxKey{}, u)
}

// UserFromContext retrieves the authenticated user from context, or nil.
func UserFromContext(ctx context.Context) *User {
	u, _ := ctx.Value(userCtxKey{}).(*User)
	return u
}

type basePathCtxKey struct{}

// ContextWithBasePath stores the base path prefix in context.
func ContextWithBasePath(ctx context.Context, basePath string) context.Context {
	return context.WithValue(ctx, basePathCtxKey{}, basePath)
}

// BasePathFromContext retrieves the base path from context (empty string if not set).
func BasePathFromContext(ctx context.Context) string {
	bp, _ := ctx.Value(basePathCtxKey{}).(string)
	return bp
}

type csrfCtxKey struct{}

// ContextWithCSRFToken stores the CSRF token in context.
func ContextWithCSRFToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, csrfCtxKey{}, token)
}

// CSRFTokenFromContext retrieves the CSRF token from context.
func CSRFTokenFromContext(ctx context.Context) string {
	t, _ := ctx.Value(csrfCtxKey{}).(string)
	return t
}

// QuestionType identifies how a question is answered and graded.
type QuestionType string

const (
	QuestionMultipleChoice QuestionType = "mcq"
	QuestionFillInBlank    QuestionType = "fib"
	QuestionShortAnswer    QuestionType = "short"
)

// Label returns the human-readable name of the question type.
func (t QuestionType) Label() string {
	switch t {
	case QuestionMultipleChoice:
		return "Multiple Choice"
	case QuestionFillInBlank:
		return "Fill in the Blank"
	case QuestionShortAnswer:
		return "Short Answer"
	}
	return string(t)
}

// Difficulty represents exam difficulty level.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// ExamStatus is the authoring lifecycle state of an exam.
type ExamStatus string

const (
	ExamDraft     ExamStatus = "draft"
	ExamPublished ExamStatus = "published"
)

// DefaultMaxPoints is used for questions authored without explicit points.
const DefaultMaxPoints = 10

// Question represents an exam question.
type Question struct {
	ID            string       `json:"id"`
	Type          QuestionType `json:"type"`
	Text          string       `json:"text"`
	Options       []string     `json:"options,omitempty"`
	CorrectAnswer string       `json:"correct_answer,omitempty"`
	Rubric        string       `json:"rubric,omitempty"`
	Keywords      []string     `json:"keywords,omitempty"`
	MaxPoints     int          `json:"max_points"`
}

// Exam is an ordered set of questions authored by a teacher.
type Exam struct {
	ID          string     `json:"id"`
	OwnerID     int64      `json:"owner_id"`
	Title       string     `json:"title"`
	Subject     string     `json:"subject"`
	Description string     `json:"description"`
	Difficulty  Difficulty `json:"difficulty"`
	TimeLimit   int        `json:"time_limit"` // minutes
	Status      ExamStatus `json:"status"`
	Questions   []Question `json:"questions"`
	CreatedAt   time.Time  `json:"created_at"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
}

// MaxPoints returns the sum of the exam's question points.
func (e Exam) MaxPoints() int {
	total := 0
	for _, q := range e.Questions {
		total += q.MaxPoints
	}
	return total
}

// Answer is a student's current answer to one question.
type Answer struct {
	QuestionID string `json:"question_id"`
	Text       string `json:"text"`
	Flagged    bool   `json:"flagged"`
}

// QuestionResult is the graded outcome of a single question.
type QuestionResult struct {
	QuestionID    string       `json:"question_id"`
	Type          QuestionType `json:"type"`
	Text          string       `json:"text"`
	StudentAnswer string       `json:"student_answer"`
	CorrectAnswer string       `json:"correct_answer"`
	IsCorrect     bool         `json:"is_correct"`
	Score         float64      `json:"score"`
	MaxScore      float64      `json:"max_score"`
	Feedback      string       `json:"feedback"`
}

// ShortAnswerGrade is a grader's assessment of one free-text answer.
// NeedsReview is set when no automatic assessment was possible.
type ShortAnswerGrade struct {
	Score       float64
	Feedback    string
	IsCorrect   bool
	NeedsReview bool
}

// ExamResult aggregates the question results of one completed attempt.
type ExamResult struct {
	ID              string           `json:"id"`
	ExamID          string           `json:"exam_id"`
	StudentID       int64            `json:"student_id"`
	Title           string           `json:"title"`
	Subject         string           `json:"subject"`
	TotalScore      float64          `json:"total_score"`
	MaxScore        float64          `json:"max_score"`
	Percentage      int              `json:"percentage"`
	Grade           string           `json:"grade"`
	CompletedAt     time.Time        `json:"completed_at"`
	TimeTaken       int              `json:"time_taken_seconds"`
	Questions       []QuestionResult `json:"questions"`
	OverallFeedback string           `json:"overall_feedback"`
	NeedsReview     bool             `json:"needs_review"`
	Review          *ScoreReview     `json:"review,omitempty"`
}

// ScoreReview is a teacher's replacement for the graded total. The graded
// totals and question results are kept as they were.
type ScoreReview struct {
	Score      float64 `json:"score"`
	Percentage int     `json:"percentage"`
	Grade      string  `json:"grade"`
}

// FinalScore returns the reviewed score when there is one.
func (r ExamResult) FinalScore() float64 {
	if r.Review != nil {
		return r.Review.Score
	}
	return r.TotalScore
}

// FinalGrade returns the reviewed grade when there is one.
func (r ExamResult) FinalGrade() string {
	if r.Review != nil {
		return r.Review.Grade
	}
	return r.Grade
}

// CorrectCount returns the number of questions answered correctly.
func (r ExamResult) CorrectCount() int {
	n := 0
	for _, q := range r.Questions {
		if q.IsCorrect {
			n++
		}
	}
	return n
}

// SubmissionStatus is the review state of a submission.
type SubmissionStatus string

const (
	SubmissionPending  SubmissionStatus = "pending"
	SubmissionGraded   SubmissionStatus = "graded"
	SubmissionReviewed SubmissionStatus = "reviewed"
)

// Submission is a completed attempt as seen from the teacher's review surface.
type Submission struct {
	ID          string           `json:"id"`
	ExamID      string           `json:"exam_id"`
	ResultID    string           `json:"result_id"`
	StudentID   int64            `json:"student_id"`
	StudentName string           `json:"student_name"`
	SubmittedAt time.Time        `json:"submitted_at"`
	Score       float64          `json:"score"`
	MaxScore    float64          `json:"max_score"`
	Percentage  int              `json:"percentage"`
	Status      SubmissionStatus `json:"status"`
	TimeTaken   int              `json:"time_taken_seconds"`
}

// DefaultSubmitWait is how long a submit request waits for grading before
// answering 202 Accepted.
const DefaultSubmitWait = 30 * time.Second

// ServerConfig holds runtime parameters set via CLI flags.
type ServerConfig struct {
	BasePath      string        // URL prefix for sub-path deployments (e.g. "/ru")
	SecureCookies bool          // Set Secure flag on cookies (disable for local dev)
	SubmitWait    time.Duration // How long POST .../submit blocks on grading
}
