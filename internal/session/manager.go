package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pavelanni/autograde/internal/clock"
	"github.com/pavelanni/autograde/internal/metrics"
	"github.com/pavelanni/autograde/internal/model"
)

// ExamSource loads published exams.
type ExamSource interface {
	LoadExam(ctx context.Context, examID string) (*model.Exam, error)
}

// ResultSink persists a graded result and the teacher-facing submission.
type ResultSink interface {
	SaveResult(ctx context.Context, result *model.ExamResult) (*model.Submission, error)
}

// DefaultExpiredGrace is how long a timed-out session whose submission
// failed stays open for a manual retry.
const DefaultExpiredGrace = 15 * time.Minute

type activeKey struct {
	studentID int64
	examID    string
}

type entry struct {
	sess   *Session
	cancel context.CancelFunc
}

// Manager owns the live sessions of the process and wires each one to its
// countdown and to the grading and persistence collaborators.
type Manager struct {
	source ExamSource
	grader Grader
	sink   ResultSink
	ticks  clock.TickSource
	log    *slog.Logger
	grace  time.Duration

	mu       sync.Mutex
	sessions map[string]*entry
	active   map[activeKey]string
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithTickSource overrides the countdown tick source.
func WithTickSource(src clock.TickSource) ManagerOption {
	return func(m *Manager) { m.ticks = src }
}

// WithExpiredGrace sets how long a timed-out session is kept after a
// failed submission.
func WithExpiredGrace(d time.Duration) ManagerOption {
	return func(m *Manager) { m.grace = d }
}

// WithManagerLogger sets the manager logger.
func WithManagerLogger(l *slog.Logger) ManagerOption {
	return func(m *Manager) { m.log = l }
}

// NewManager creates a Manager.
func NewManager(source ExamSource, grader Grader, sink ResultSink, opts ...ManagerOption) *Manager {
	m := &Manager{
		source:   source,
		grader:   grader,
		sink:     sink,
		ticks:    clock.SecondTicker,
		log:      slog.Default(),
		grace:    DefaultExpiredGrace,
		sessions: make(map[string]*entry),
		active:   make(map[activeKey]string),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start opens a session for the student on a published exam. A live session
// for the same student and exam is returned as is.
func (m *Manager) Start(ctx context.Context, student *model.User, examID string) (*Session, error) {
	key := activeKey{studentID: student.ID, examID: examID}

	m.mu.Lock()
	if id, ok := m.active[key]; ok {
		if e, ok := m.sessions[id]; ok {
			m.mu.Unlock()
			return e.sess, nil
		}
	}
	m.mu.Unlock()

	exam, err := m.source.LoadExam(ctx, examID)
	if err != nil {
		return nil, err
	}

	countdown, err := clock.NewCountdown(exam.TimeLimit*60, m.ticks)
	if err != nil {
		return nil, model.NewValidationError("exam %s: %v", examID, err)
	}

	sess, err := New(uuid.NewString(), *exam, student.ID, timedGrader{m.grader},
		WithLogger(m.log),
		WithFinalizer(m.persist),
		WithSettled(m.settled),
	)
	if err != nil {
		return nil, err
	}

	clockCtx, cancel := context.WithCancel(context.Background())

	m.mu.Lock()
	if id, ok := m.active[key]; ok {
		// Lost a race with a concurrent Start for the same exam.
		if e, ok := m.sessions[id]; ok {
			m.mu.Unlock()
			cancel()
			return e.sess, nil
		}
	}
	m.sessions[sess.ID()] = &entry{sess: sess, cancel: cancel}
	m.active[key] = sess.ID()
	m.mu.Unlock()

	go countdown.Run(clockCtx)
	go func() {
		for ev := range countdown.Events() {
			sess.HandleClock(clockCtx, ev)
		}
	}()

	metrics.SessionsStarted().Inc()
	m.log.Info("exam session started",
		"session_id", sess.ID(),
		"exam_id", examID,
		"student_id", student.ID,
		"time_limit", exam.TimeLimit,
	)
	return sess, nil
}

// Get returns a live session owned by the student.
func (m *Manager) Get(sessionID string, studentID int64) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[sessionID]
	if !ok || e.sess.StudentID() != studentID {
		return nil, &model.NotFoundError{Kind: "session", ID: sessionID}
	}
	return e.sess, nil
}

// Discard stops the session's clock and forgets it. A submission already in
// flight still completes and is persisted.
func (m *Manager) Discard(sessionID string, studentID int64) error {
	if _, err := m.Get(sessionID, studentID); err != nil {
		return err
	}
	m.remove(sessionID)
	m.log.Info("exam session discarded", "session_id", sessionID)
	return nil
}

// Active returns the number of live sessions.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Close stops every clock. Live sessions are dropped without submitting.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, e := range m.sessions {
		e.cancel()
		delete(m.sessions, id)
	}
	clear(m.active)
}

func (m *Manager) remove(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[sessionID]
	if !ok {
		return
	}
	e.cancel()
	delete(m.sessions, sessionID)
	key := activeKey{studentID: e.sess.StudentID(), examID: e.sess.Exam().ID}
	if m.active[key] == sessionID {
		delete(m.active, key)
	}
}

func (m *Manager) persist(ctx context.Context, result *model.ExamResult) error {
	if m.sink == nil {
		return nil
	}
	sub, err := m.sink.SaveResult(ctx, result)
	if err != nil {
		return err
	}
	m.log.Info("submission recorded", "submission_id", sub.ID, "status", sub.Status)
	return nil
}

func (m *Manager) settled(s *Session, trigger Trigger, _ *model.ExamResult, err error) {
	outcome := "graded"
	if err != nil {
		outcome = "failed"
	}
	metrics.Submissions().WithLabelValues(string(trigger), outcome).Inc()
	switch {
	case err == nil:
		m.remove(s.ID())
	case s.Expired():
		time.AfterFunc(m.grace, func() { m.evictExpired(s) })
	}
}

// evictExpired drops a timed-out session that is still waiting for a
// successful retry. A retry in flight is left to settle on its own.
func (m *Manager) evictExpired(s *Session) {
	if s.State() != StateInProgress {
		return
	}
	m.remove(s.ID())
	m.log.Warn("expired session evicted without a result",
		"session_id", s.ID(),
		"exam_id", s.Exam().ID,
		"student_id", s.StudentID(),
	)
}

type timedGrader struct {
	next Grader
}

func (g timedGrader) Grade(ctx context.Context, examID string, answers map[string]string) (*model.ExamResult, error) {
	start := time.Now()
	defer func() { metrics.GradingDuration().Observe(time.Since(start).Seconds()) }()
	return g.next.Grade(ctx, examID, answers)
}
