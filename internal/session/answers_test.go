package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavelanni/autograde/internal/model"
)

func TestAnswerStoreInitialize(t *testing.T) {
	qs := biologyExam().Questions
	s := NewAnswerStore(qs)

	all := s.All()
	require.Len(t, all, len(qs))
	for i, a := range all {
		assert.Equal(t, qs[i].ID, a.QuestionID)
		assert.Empty(t, a.Text)
		assert.False(t, a.Flagged)
	}

	require.NoError(t, s.SetText("q1", "Nucleus"))
	s.Initialize(qs[:1])
	assert.Len(t, s.All(), 1)
	a, err := s.Get("q1")
	require.NoError(t, err)
	assert.Empty(t, a.Text, "initialize resets previous answers")
}

func TestAnswerStoreSetTextKeepsFlag(t *testing.T) {
	s := NewAnswerStore(biologyExam().Questions)
	require.NoError(t, s.ToggleFlag("q3"))
	require.NoError(t, s.SetText("q3", "Glucose is broken down to release ATP."))

	a, err := s.Get("q3")
	require.NoError(t, err)
	assert.True(t, a.Flagged)
	assert.Equal(t, "Glucose is broken down to release ATP.", a.Text)
}

func TestAnswerStoreUnknownQuestion(t *testing.T) {
	s := NewAnswerStore(biologyExam().Questions)

	_, err := s.Get("nope")
	assert.True(t, model.IsNotFound(err))
	assert.True(t, model.IsNotFound(s.SetText("nope", "x")))
	assert.True(t, model.IsNotFound(s.ToggleFlag("nope")))
}

func TestAnswerStoreReturnsCopies(t *testing.T) {
	s := NewAnswerStore(biologyExam().Questions)
	require.NoError(t, s.SetText("q1", "Mitochondria"))

	a, _ := s.Get("q1")
	a.Text = "changed"
	all := s.All()
	all[0].Text = "changed"
	texts := s.Texts()
	texts["q1"] = "changed"

	got, _ := s.Get("q1")
	assert.Equal(t, "Mitochondria", got.Text)
}

func TestAnswerStoreTexts(t *testing.T) {
	s := NewAnswerStore(biologyExam().Questions)
	require.NoError(t, s.SetText("q2", "chloroplasts"))

	assert.Equal(t, map[string]string{"q1": "", "q2": "chloroplasts", "q3": ""}, s.Texts())
}
