// Package session implements one student's exam attempt: navigation,
// answers, flags, and the single grading hand-off on submit or timeout.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pavelanni/autograde/internal/clock"
	"github.com/pavelanni/autograde/internal/model"
)

// State is the lifecycle state of a session.
type State string

const (
	StateInProgress State = "in_progress"
	StateSubmitting State = "submitting"
	StateSubmitted  State = "submitted"
)

// Trigger records what started a submission.
type Trigger string

const (
	TriggerManual  Trigger = "manual"
	TriggerTimeout Trigger = "timeout"
)

var (
	// ErrNotInProgress is returned for mutations after submission has started.
	ErrNotInProgress = errors.New("session is not in progress")
	// ErrIndexOutOfRange is returned by GoTo for an index outside the exam.
	ErrIndexOutOfRange = errors.New("question index out of range")
	// ErrTimeExpired is returned for mutations once the time limit has run
	// out. Only Submit is accepted after that.
	ErrTimeExpired = errors.New("time limit has expired")
)

// Grader is the grading collaborator.
type Grader interface {
	Grade(ctx context.Context, examID string, answers map[string]string) (*model.ExamResult, error)
}

// Finalizer runs after successful grading and before the session is marked
// submitted. An error rolls the session back like a grading failure.
type Finalizer func(ctx context.Context, result *model.ExamResult) error

// SettledFunc is called once per hand-off after the session state is final
// for that attempt. err is nil on success.
type SettledFunc func(s *Session, trigger Trigger, result *model.ExamResult, err error)

// Session is the state of one student attempt. All methods are safe for
// concurrent use.
type Session struct {
	id        string
	exam      model.Exam
	studentID int64
	grader    Grader
	finalize  Finalizer
	settled   SettledFunc
	log       *slog.Logger
	now       func() time.Time

	mu          sync.Mutex
	state       State
	current     int
	answers     *AnswerStore
	remaining   int
	expired     bool
	startedAt   time.Time
	submittedAt time.Time
	lastErr     error
	result      *model.ExamResult
}

// Option configures a Session.
type Option func(*Session)

// WithFinalizer sets the hook that persists a graded result.
func WithFinalizer(f Finalizer) Option {
	return func(s *Session) { s.finalize = f }
}

// WithSettled sets the callback invoked after each hand-off.
func WithSettled(f SettledFunc) Option {
	return func(s *Session) { s.settled = f }
}

// WithLogger sets the session logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.log = l }
}

// WithNow overrides the time source.
func WithNow(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// New starts a session at the first question with every answer empty.
func New(id string, exam model.Exam, studentID int64, grader Grader, opts ...Option) (*Session, error) {
	if len(exam.Questions) == 0 {
		return nil, model.NewValidationError("exam %s has no questions", exam.ID)
	}
	if exam.TimeLimit <= 0 {
		return nil, model.NewValidationError("exam %s has no time limit", exam.ID)
	}
	s := &Session{
		id:        id,
		exam:      exam,
		studentID: studentID,
		grader:    grader,
		log:       slog.Default(),
		now:       time.Now,
		state:     StateInProgress,
		answers:   NewAnswerStore(exam.Questions),
		remaining: exam.TimeLimit * 60,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.startedAt = s.now()
	s.log = s.log.With("session_id", id, "exam_id", exam.ID, "student_id", studentID)
	return s, nil
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// StudentID returns the id of the student taking the exam.
func (s *Session) StudentID() int64 { return s.studentID }

// Exam returns the exam being taken.
func (s *Session) Exam() model.Exam { return s.exam }

// QuestionCount returns the number of questions in the exam.
func (s *Session) QuestionCount() int { return len(s.exam.Questions) }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// CurrentIndex returns the zero-based index of the displayed question.
func (s *Session) CurrentIndex() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Remaining returns the seconds left on the clock.
func (s *Session) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remaining
}

// Answer returns the current answer for a question.
func (s *Session) Answer(questionID string) (model.Answer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.answers.Get(questionID)
}

// AnsweredCount returns how many questions have a non-blank answer.
func (s *Session) AnsweredCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.answers.AnsweredCount()
}

// Result returns the graded result once the session is submitted.
func (s *Session) Result() *model.ExamResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result
}

// Expired reports whether the time limit has run out.
func (s *Session) Expired() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.expired
}

// LastError returns the error of the most recent failed hand-off, if any.
func (s *Session) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

func (s *Session) editableLocked() error {
	if s.state != StateInProgress {
		return ErrNotInProgress
	}
	if s.expired {
		return ErrTimeExpired
	}
	return nil
}

// GoTo moves to the question at index. Out-of-range requests leave the
// session unchanged.
func (s *Session) GoTo(index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.editableLocked(); err != nil {
		return err
	}
	if index < 0 || index >= len(s.exam.Questions) {
		return fmt.Errorf("%w: %d not in [0, %d)", ErrIndexOutOfRange, index, len(s.exam.Questions))
	}
	s.current = index
	return nil
}

// Next moves forward one question; it does nothing at the last question.
func (s *Session) Next() error {
	return s.step(1)
}

// Previous moves back one question; it does nothing at the first question.
func (s *Session) Previous() error {
	return s.step(-1)
}

func (s *Session) step(delta int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.editableLocked(); err != nil {
		return err
	}
	next := s.current + delta
	if next < 0 || next >= len(s.exam.Questions) {
		return nil
	}
	s.current = next
	return nil
}

// SetAnswer overwrites the answer text for a question.
func (s *Session) SetAnswer(questionID, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.editableLocked(); err != nil {
		return err
	}
	return s.answers.SetText(questionID, text)
}

// ToggleFlagCurrent flips the flag on the displayed question.
func (s *Session) ToggleFlagCurrent() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.editableLocked(); err != nil {
		return err
	}
	id := s.exam.Questions[s.current].ID
	if err := s.answers.ToggleFlag(id); err != nil {
		panic(fmt.Sprintf("session %s: answer store out of sync: %v", s.id, err))
	}
	return nil
}

// HandleClock consumes one countdown event. The expiry event freezes the
// answers and submits the session; the lock is released before submitting
// so tick delivery never re-enters a mutation.
func (s *Session) HandleClock(ctx context.Context, ev clock.Event) {
	s.mu.Lock()
	s.remaining = ev.Remaining
	if ev.Expired {
		s.expired = true
	}
	s.mu.Unlock()

	if ev.Expired {
		if _, started := s.Submit(ctx, TriggerTimeout); started {
			s.log.Info("time limit reached, submitting")
		}
	}
}

// Submit starts the grading hand-off. It returns started=false without
// doing anything when a submission is already in flight or complete. The
// returned channel yields the hand-off outcome once and is then closed.
// The hand-off is detached from ctx cancellation.
func (s *Session) Submit(ctx context.Context, trigger Trigger) (<-chan error, bool) {
	s.mu.Lock()
	if s.state != StateInProgress {
		s.mu.Unlock()
		return nil, false
	}
	s.state = StateSubmitting
	s.lastErr = nil
	s.submittedAt = s.now()
	answers := s.answers.Texts()
	s.mu.Unlock()

	s.log.Info("submitting exam", "trigger", trigger)

	done := make(chan error, 1)
	go s.handOff(context.WithoutCancel(ctx), trigger, answers, done)
	return done, true
}

func (s *Session) handOff(ctx context.Context, trigger Trigger, answers map[string]string, done chan<- error) {
	defer close(done)

	result, err := s.grader.Grade(ctx, s.exam.ID, answers)
	if err == nil && result == nil {
		err = errors.New("grader returned no result")
	}
	if err == nil {
		s.mu.Lock()
		result.StudentID = s.studentID
		result.CompletedAt = s.submittedAt
		result.TimeTaken = s.timeTakenLocked()
		s.mu.Unlock()
		if s.finalize != nil {
			err = s.finalize(ctx, result)
		}
	}
	if err != nil {
		var ge *model.GradingError
		if !errors.As(err, &ge) {
			err = &model.GradingError{ExamID: s.exam.ID, Err: err}
		}
	}

	s.mu.Lock()
	if err != nil {
		s.state = StateInProgress
		s.lastErr = err
		result = nil
	} else {
		s.state = StateSubmitted
		s.result = result
	}
	s.mu.Unlock()

	if err != nil {
		s.log.Warn("submission failed, session reopened", "trigger", trigger, "error", err)
	} else {
		s.log.Info("exam graded", "trigger", trigger, "percentage", result.Percentage)
	}

	if s.settled != nil {
		s.settled(s, trigger, result, err)
	}
	done <- err
}

func (s *Session) timeTakenLocked() int {
	taken := int(s.submittedAt.Sub(s.startedAt).Seconds())
	if limit := s.exam.TimeLimit * 60; taken > limit {
		taken = limit
	}
	if taken < 0 {
		taken = 0
	}
	return taken
}

// QuestionView is a question as shown to the student, without answer keys.
type QuestionView struct {
	ID      string             `json:"id"`
	Type    model.QuestionType `json:"type"`
	Label   string             `json:"label"`
	Text    string             `json:"text"`
	Options []string           `json:"options,omitempty"`
	Points  int                `json:"points"`
}

// View is a consistent snapshot of the session for display.
type View struct {
	ID            string         `json:"id"`
	ExamID        string         `json:"exam_id"`
	Title         string         `json:"title"`
	Subject       string         `json:"subject"`
	State         State          `json:"state"`
	CurrentIndex  int            `json:"current_index"`
	QuestionCount int            `json:"question_count"`
	Question      QuestionView   `json:"question"`
	Answers       []model.Answer `json:"answers"`
	AnsweredCount int            `json:"answered_count"`
	Progress      float64        `json:"progress"`
	Completion    float64        `json:"completion"`
	Remaining     int            `json:"remaining_seconds"`
	RemainingText string         `json:"remaining"`
	LowTime       bool           `json:"low_time"`
	Expired       bool           `json:"expired"`
	CanPrevious   bool           `json:"can_previous"`
	CanNext       bool           `json:"can_next"`
	Error         string         `json:"error,omitempty"`
	ResultID      string         `json:"result_id,omitempty"`
}

// Snapshot returns the current view of the session.
func (s *Session) Snapshot() View {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.exam.Questions)
	q := s.exam.Questions[s.current]
	answered := s.answers.AnsweredCount()
	editable := s.editableLocked() == nil
	v := View{
		ID:            s.id,
		ExamID:        s.exam.ID,
		Title:         s.exam.Title,
		Subject:       s.exam.Subject,
		State:         s.state,
		CurrentIndex:  s.current,
		QuestionCount: n,
		Question: QuestionView{
			ID:      q.ID,
			Type:    q.Type,
			Label:   q.Type.Label(),
			Text:    q.Text,
			Options: q.Options,
			Points:  q.MaxPoints,
		},
		Answers:       s.answers.All(),
		AnsweredCount: answered,
		Progress:      float64(s.current+1) / float64(n),
		Completion:    float64(answered) / float64(n),
		Remaining:     s.remaining,
		RemainingText: clock.Format(s.remaining),
		LowTime:       clock.LowTime(s.remaining),
		Expired:       s.expired,
		CanPrevious:   editable && s.current > 0,
		CanNext:       editable && s.current < n-1,
	}
	if s.lastErr != nil {
		v.Error = s.lastErr.Error()
	}
	if s.result != nil {
		v.ResultID = s.result.ID
	}
	return v
}
