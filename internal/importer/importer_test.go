package importer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavelanni/autograde/internal/authoring"
	"github.com/pavelanni/autograde/internal/model"
	"github.com/pavelanni/autograde/internal/store"
	"github.com/pavelanni/autograde/internal/validate"
)

const biologyFile = `[
  {
    "title": "Biology Chapter 5 Quiz",
    "subject": "Biology",
    "time_limit": 30,
    "questions": [
      {"type": "mcq", "text": "What is the powerhouse of the cell?",
       "options": ["Nucleus", "Mitochondria"], "correct_answer": "Mitochondria"},
      {"type": "fib", "text": "Photosynthesis occurs in the ___.", "correct_answer": "chloroplasts"},
      {"type": "short", "text": "Explain cellular respiration.", "keywords": ["glucose", "ATP"]}
    ]
  }
]`

func newTestImporter(t *testing.T) (*Importer, *store.Store, *model.User) {
	t.Helper()
	s, err := store.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	id, err := s.CreateUser(context.Background(), model.User{
		Username: "tina", PasswordHash: "x", Role: model.UserRoleTeacher, Active: true,
	})
	require.NoError(t, err)

	im, err := New(authoring.New(s, validate.New()), s, nil)
	require.NoError(t, err)
	return im, s, &model.User{ID: id, Role: model.UserRoleTeacher}
}

func TestImportPublishesAndSkipsUnchanged(t *testing.T) {
	im, s, owner := newTestImporter(t)
	ctx := context.Background()

	report, err := im.Import(ctx, owner, "biology.json", []byte(biologyFile), true)
	require.NoError(t, err)
	assert.False(t, report.Skipped)
	require.Len(t, report.ExamIDs, 1)

	exam, err := s.LoadExam(ctx, report.ExamIDs[0])
	require.NoError(t, err)
	assert.Equal(t, 30, exam.TimeLimit)
	assert.Len(t, exam.Questions, 3)

	again, err := im.Import(ctx, owner, "biology.json", []byte(biologyFile), true)
	require.NoError(t, err)
	assert.True(t, again.Skipped)
	assert.Empty(t, again.ExamIDs)

	list, err := s.ListExamsByOwner(ctx, owner.ID)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestImportDraft(t *testing.T) {
	im, s, owner := newTestImporter(t)
	ctx := context.Background()

	report, err := im.Import(ctx, owner, "draft.json", []byte(biologyFile), false)
	require.NoError(t, err)

	_, err = s.LoadExam(ctx, report.ExamIDs[0])
	assert.True(t, model.IsNotFound(err), "drafts are not loadable by students")
}

func TestValidateRejectsSchemaViolations(t *testing.T) {
	im, _, _ := newTestImporter(t)

	tests := []struct {
		name string
		data string
	}{
		{"not json", `{`},
		{"object instead of array", `{"title": "x"}`},
		{"empty array", `[]`},
		{"missing subject", `[{"title": "x", "questions": [{"type": "short", "text": "q"}]}]`},
		{"unknown type", `[{"title": "x", "subject": "y", "questions": [{"type": "essay", "text": "q"}]}]`},
		{"mcq without options", `[{"title": "x", "subject": "y", "questions": [{"type": "mcq", "text": "q", "correct_answer": "a"}]}]`},
		{"fib without answer", `[{"title": "x", "subject": "y", "questions": [{"type": "fib", "text": "q"}]}]`},
		{"unknown field", `[{"title": "x", "subject": "y", "shuffle": true, "questions": [{"type": "short", "text": "q"}]}]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := im.Validate([]byte(tt.data))
			var ve *model.ValidationError
			require.True(t, errors.As(err, &ve), "got %v", err)
		})
	}
}

func TestValidateReportsLocation(t *testing.T) {
	im, _, _ := newTestImporter(t)

	_, err := im.Validate([]byte(`[{"title": "x", "subject": "y", "questions": [{"type": "essay", "text": "q"}]}]`))
	var ve *model.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Contains(t, ve.Fields, "/0/questions/0/type")
}

func TestImportRejectsInvalidContent(t *testing.T) {
	im, s, owner := newTestImporter(t)
	ctx := context.Background()

	bad := `[{"title": "x", "subject": "y", "questions": [
	  {"type": "mcq", "text": "q", "options": ["a", "b"], "correct_answer": "c"}]}]`
	_, err := im.Import(ctx, owner, "bad.json", []byte(bad), true)
	assert.True(t, model.IsValidation(err))

	hash, err := s.GetImportedFileHash(ctx, "bad.json")
	require.NoError(t, err)
	assert.Empty(t, hash, "failed imports are not recorded")
}
