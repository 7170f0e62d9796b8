// Package authoring lets teachers create, edit and publish exams.
package authoring

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"slices"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"github.com/pavelanni/autograde/internal/model"
	"github.com/pavelanni/autograde/internal/store"
	"github.com/pavelanni/autograde/internal/validate"
)

// DefaultTimeLimit is used when an exam is authored without a time limit.
const DefaultTimeLimit = 60

// QuestionInput is one authored question.
type QuestionInput struct {
	Type          model.QuestionType `json:"type" validate:"required,oneof=mcq fib short"`
	Text          string             `json:"text" validate:"required,max=4000"`
	Options       []string           `json:"options" validate:"omitempty,max=10,dive,required,max=500"`
	CorrectAnswer string             `json:"correct_answer" validate:"max=4000"`
	Rubric        string             `json:"rubric" validate:"max=4000"`
	Keywords      []string           `json:"keywords" validate:"omitempty,max=20,dive,required,max=100"`
	MaxPoints     int                `json:"max_points" validate:"gte=0,lte=100"`
}

// ExamInput is the authored content of an exam.
type ExamInput struct {
	Title       string           `json:"title" validate:"required,max=200"`
	Subject     string           `json:"subject" validate:"required,max=100"`
	Description string           `json:"description" validate:"max=4000"`
	Difficulty  model.Difficulty `json:"difficulty" validate:"omitempty,oneof=easy medium hard"`
	TimeLimit   int              `json:"time_limit" validate:"gte=0,lte=600"`
	Questions   []QuestionInput  `json:"questions" validate:"required,min=1,max=200,dive"`
}

// ExamStore persists exams.
type ExamStore interface {
	CreateExam(ctx context.Context, e *model.Exam) error
	UpdateExam(ctx context.Context, e *model.Exam) error
	PublishExam(ctx context.Context, examID string, ownerID int64) error
	DeleteExam(ctx context.Context, examID string, ownerID int64) error
	GetExam(ctx context.Context, examID string) (*model.Exam, error)
	ListExamsByOwner(ctx context.Context, ownerID int64) ([]store.ExamSummary, error)
}

// Service validates and sanitises authored exams before storing them.
type Service struct {
	store    ExamStore
	validate *validate.Validator
	plain    *bluemonday.Policy
	rich     *bluemonday.Policy
}

// New creates an authoring Service.
func New(s ExamStore, v *validate.Validator) *Service {
	return &Service{
		store:    s,
		validate: v,
		plain:    bluemonday.StrictPolicy(),
		rich:     bluemonday.UGCPolicy(),
	}
}

// Create stores a new draft exam owned by the teacher.
func (s *Service) Create(ctx context.Context, owner *model.User, in ExamInput) (*model.Exam, error) {
	exam, err := s.build(in)
	if err != nil {
		return nil, err
	}
	exam.OwnerID = owner.ID
	if err := s.store.CreateExam(ctx, exam); err != nil {
		return nil, fmt.Errorf("create exam: %w", err)
	}
	slog.Info("exam created", "exam_id", exam.ID, "owner_id", owner.ID, "questions", len(exam.Questions))
	return exam, nil
}

// Update replaces the content of a draft exam.
func (s *Service) Update(ctx context.Context, owner *model.User, examID string, in ExamInput) (*model.Exam, error) {
	exam, err := s.build(in)
	if err != nil {
		return nil, err
	}
	exam.ID = examID
	exam.OwnerID = owner.ID
	if err := s.store.UpdateExam(ctx, exam); err != nil {
		return nil, err
	}
	slog.Info("exam updated", "exam_id", examID, "owner_id", owner.ID)
	return exam, nil
}

// Publish opens a draft exam to students.
func (s *Service) Publish(ctx context.Context, owner *model.User, examID string) error {
	if err := s.store.PublishExam(ctx, examID, owner.ID); err != nil {
		return err
	}
	slog.Info("exam published", "exam_id", examID, "owner_id", owner.ID)
	return nil
}

// Delete removes a draft exam.
func (s *Service) Delete(ctx context.Context, owner *model.User, examID string) error {
	return s.store.DeleteExam(ctx, examID, owner.ID)
}

// Get returns an exam with its answer keys to its owner or an admin.
func (s *Service) Get(ctx context.Context, owner *model.User, examID string) (*model.Exam, error) {
	e, err := s.store.GetExam(ctx, examID)
	if err != nil {
		return nil, err
	}
	if !owner.CanView(e.OwnerID) {
		return nil, &model.NotFoundError{Kind: "exam", ID: examID}
	}
	return e, nil
}

// List returns the teacher's exams.
func (s *Service) List(ctx context.Context, owner *model.User) ([]store.ExamSummary, error) {
	return s.store.ListExamsByOwner(ctx, owner.ID)
}

// build validates in and converts it into a sanitised exam.
func (s *Service) build(in ExamInput) (*model.Exam, error) {
	in = s.sanitize(in)
	if err := s.validate.Struct(in); err != nil {
		return nil, err
	}
	if err := checkQuestions(in.Questions); err != nil {
		return nil, err
	}

	exam := &model.Exam{
		Title:       in.Title,
		Subject:     in.Subject,
		Description: in.Description,
		Difficulty:  in.Difficulty,
		TimeLimit:   in.TimeLimit,
		Questions:   make([]model.Question, 0, len(in.Questions)),
	}
	if exam.Difficulty == "" {
		exam.Difficulty = model.DifficultyMedium
	}
	if exam.TimeLimit == 0 {
		exam.TimeLimit = DefaultTimeLimit
	}
	for _, q := range in.Questions {
		mq := model.Question{
			Type:          q.Type,
			Text:          q.Text,
			Options:       q.Options,
			CorrectAnswer: q.CorrectAnswer,
			Rubric:        q.Rubric,
			Keywords:      q.Keywords,
			MaxPoints:     q.MaxPoints,
		}
		if mq.MaxPoints == 0 {
			mq.MaxPoints = model.DefaultMaxPoints
		}
		if mq.Type != model.QuestionMultipleChoice {
			mq.Options = nil
		}
		exam.Questions = append(exam.Questions, mq)
	}
	return exam, nil
}

// checkQuestions enforces the per-type rules the struct tags cannot express.
func checkQuestions(qs []QuestionInput) error {
	fields := make(map[string]string)
	for i, q := range qs {
		key := fmt.Sprintf("questions[%d]", i)
		switch q.Type {
		case model.QuestionMultipleChoice:
			if len(q.Options) < 2 {
				fields[key+".options"] = "multiple choice needs at least two options"
			} else if !slices.Contains(q.Options, q.CorrectAnswer) {
				fields[key+".correct_answer"] = "must be one of the options"
			}
		case model.QuestionFillInBlank:
			if q.CorrectAnswer == "" {
				fields[key+".correct_answer"] = "fill in the blank needs a correct answer"
			}
		}
	}
	if len(fields) > 0 {
		return &model.ValidationError{Fields: fields, Message: "invalid questions"}
	}
	return nil
}

// sanitize strips markup from plain fields and unsafe markup from the
// description. Plain fields are unescaped again so answer keys keep
// characters like "&" verbatim.
func (s *Service) sanitize(in ExamInput) ExamInput {
	in.Title = s.text(in.Title)
	in.Subject = s.text(in.Subject)
	in.Description = strings.TrimSpace(s.rich.Sanitize(in.Description))
	in.Difficulty = model.Difficulty(strings.ToLower(strings.TrimSpace(string(in.Difficulty))))

	qs := make([]QuestionInput, len(in.Questions))
	for i, q := range in.Questions {
		q.Type = model.QuestionType(strings.ToLower(strings.TrimSpace(string(q.Type))))
		q.Text = s.text(q.Text)
		q.CorrectAnswer = s.text(q.CorrectAnswer)
		q.Rubric = s.text(q.Rubric)
		q.Options = s.texts(q.Options)
		q.Keywords = s.keywords(q.Keywords)
		qs[i] = q
	}
	in.Questions = qs
	return in
}

func (s *Service) text(v string) string {
	return strings.TrimSpace(html.UnescapeString(s.plain.Sanitize(v)))
}

func (s *Service) texts(vs []string) []string {
	if vs == nil {
		return nil
	}
	out := make([]string, len(vs))
	for i, v := range vs {
		out[i] = s.text(v)
	}
	return out
}

// keywords drops blank and repeated keywords, comparing case-insensitively.
func (s *Service) keywords(vs []string) []string {
	if vs == nil {
		return nil
	}
	seen := make(map[string]bool, len(vs))
	out := make([]string, 0, len(vs))
	for _, v := range s.texts(vs) {
		k := strings.ToLower(v)
		if v == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, v)
	}
	return out
}
