package validate

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavelanni/autograde/internal/model"
)

type item struct {
	Name string `json:"name" validate:"required"`
}

type payload struct {
	Title string `json:"title" validate:"required,max=5"`
	Kind  string `json:"kind" validate:"omitempty,oneof=a b"`
	Items []item `json:"items" validate:"required,min=1,dive"`
}

func TestStructValid(t *testing.T) {
	v := New()
	assert.NoError(t, v.Struct(payload{Title: "ok", Items: []item{{Name: "x"}}}))
}

func TestStructReportsJSONFieldPaths(t *testing.T) {
	v := New()
	err := v.Struct(payload{Title: "far too long", Kind: "c", Items: []item{{Name: "x"}, {}}})

	var ve *model.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Contains(t, ve.Fields, "title")
	assert.Contains(t, ve.Fields, "kind")
	assert.Contains(t, ve.Fields, "items[1].name")
	assert.Equal(t, "name is a required field", ve.Fields["items[1].name"])
}

func TestStructEmptySlice(t *testing.T) {
	err := New().Struct(payload{Title: "ok"})
	var ve *model.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Contains(t, ve.Fields, "items")
}
