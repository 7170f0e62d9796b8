package session

import (
	"strings"

	"github.com/pavelanni/autograde/internal/model"
)

// AnswerStore maps question ids to the student's current answers.
// It is not safe for concurrent use; Session serialises access.
type AnswerStore struct {
	order   []string
	answers map[string]*model.Answer
}

// NewAnswerStore returns a store initialized for questions.
func NewAnswerStore(questions []model.Question) *AnswerStore {
	s := &AnswerStore{}
	s.Initialize(questions)
	return s
}

// Initialize replaces all answers with one empty, unflagged answer per question.
func (s *AnswerStore) Initialize(questions []model.Question) {
	s.order = make([]string, 0, len(questions))
	s.answers = make(map[string]*model.Answer, len(questions))
	for _, q := range questions {
		s.order = append(s.order, q.ID)
		s.answers[q.ID] = &model.Answer{QuestionID: q.ID}
	}
}

// Get returns the current answer for a question.
func (s *AnswerStore) Get(questionID string) (model.Answer, error) {
	a, ok := s.answers[questionID]
	if !ok {
		return model.Answer{}, &model.NotFoundError{Kind: "answer", ID: questionID}
	}
	return *a, nil
}

// SetText overwrites the answer text. Any text, including empty, is accepted.
func (s *AnswerStore) SetText(questionID, text string) error {
	a, ok := s.answers[questionID]
	if !ok {
		return &model.NotFoundError{Kind: "answer", ID: questionID}
	}
	a.Text = text
	return nil
}

// ToggleFlag inverts the flagged bit of an answer.
func (s *AnswerStore) ToggleFlag(questionID string) error {
	a, ok := s.answers[questionID]
	if !ok {
		return &model.NotFoundError{Kind: "answer", ID: questionID}
	}
	a.Flagged = !a.Flagged
	return nil
}

// AnsweredCount counts answers with non-blank text.
func (s *AnswerStore) AnsweredCount() int {
	n := 0
	for _, a := range s.answers {
		if strings.TrimSpace(a.Text) != "" {
			n++
		}
	}
	return n
}

// All returns a copy of the answers in question order.
func (s *AnswerStore) All() []model.Answer {
	out := make([]model.Answer, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, *s.answers[id])
	}
	return out
}

// Texts returns question id -> answer text for the grading hand-off.
func (s *AnswerStore) Texts() map[string]string {
	out := make(map[string]string, len(s.answers))
	for id, a := range s.answers {
		out[id] = a.Text
	}
	return out
}
