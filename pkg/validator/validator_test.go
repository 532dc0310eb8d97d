package validator_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifyhub/pkg/validator"
)

func TestApply(t *testing.T) {
	t.Run("all rules pass", func(t *testing.T) {
		err := validator.Apply(
			validator.RequiredString("name", "ops"),
			validator.MaxLenString("name", "ops", 10),
		)
		assert.NoError(t, err)
	})

	t.Run("collects every failure", func(t *testing.T) {
		err := validator.Apply(
			validator.RequiredString("title", " "),
			validator.MinLenString("title", " ", 2),
			validator.OneOf("priority", "urgent", []string{"low", "high"}),
		)
		require.Error(t, err)

		errs := validator.ExtractValidationErrors(err)
		require.Len(t, errs, 3)
		assert.Equal(t, []string{"title", "priority"}, errs.Fields())
		assert.True(t, errs.Has("priority"))
		assert.False(t, errs.Has("body"))
		assert.Len(t, errs.Get("title"), 2)
		assert.Contains(t, err.Error(), "priority: must be one of")
	})

	t.Run("when skips rule", func(t *testing.T) {
		err := validator.Apply(validator.When(false, validator.RequiredString("email", "")))
		assert.NoError(t, err)

		err = validator.Apply(validator.When(true, validator.RequiredString("email", "")))
		assert.Error(t, err)
	})
}

func TestIsValidationError(t *testing.T) {
	err := validator.Apply(validator.RequiredString("a", ""))
	wrapped := fmt.Errorf("outer: %w", err)

	assert.True(t, validator.IsValidationError(wrapped))
	assert.False(t, validator.IsValidationError(errors.New("plain")))
	assert.False(t, validator.IsValidationError(nil))
	assert.Nil(t, validator.ExtractValidationErrors(errors.New("plain")))
}

func TestValidationErrorsMap(t *testing.T) {
	errs := validator.ValidationErrors{
		{Field: "a", Message: "one"},
		{Field: "a", Message: "two"},
		{Field: "b", Message: "three"},
	}
	assert.Equal(t, map[string][]string{"a": {"one", "two"}, "b": {"three"}}, errs.Map())
}

func TestStringLengthCountsRunes(t *testing.T) {
	value := "ünïcödé"
	assert.NoError(t, validator.Apply(validator.MaxLenString("f", value, 7)))
	assert.Error(t, validator.Apply(validator.MaxLenString("f", value, 6)))
	assert.NoError(t, validator.Apply(validator.MinLenString("f", value, 7)))
}

func TestEachOneOf(t *testing.T) {
	allowed := []string{"dev", "ops"}
	assert.NoError(t, validator.Apply(validator.EachOneOf("roles", []string{"dev"}, allowed)))
	assert.NoError(t, validator.Apply(validator.EachOneOf("roles", nil, allowed)))
	assert.Error(t, validator.Apply(validator.EachOneOf("roles", []string{"dev", "qa"}, allowed)))
}
