package core_test

import (
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wtlassist/backend/core"
)

func TestValidationError(t *testing.T) {
	errGone := errors.New("user not found")

	err := core.NewValidationError(errors.Wrap(errGone, "getting assignee"), core.FieldError{Field: "assignee_id", Error: "user not found"})
	assert.Equal(t, "getting assignee: user not found", err.Error())
	assert.ErrorIs(t, err, errGone)

	var vErr *core.ValidationError
	require.True(t, errors.As(errors.Wrap(err, "updating task"), &vErr))
	assert.Equal(t, map[string]string{"assignee_id": "user not found"}, vErr.FieldMap())

	err = core.NewFieldError("item_ids", "unknown checklist item: x")
	assert.Equal(t, "item_ids: unknown checklist item: x", err.Error())
	assert.Nil(t, errors.Unwrap(err))

	assert.Nil(t, core.ValidationError{}.FieldMap())
	assert.Empty(t, core.ValidationError{}.Error())
}

func TestIsShutdown(t *testing.T) {
	err := core.NewShutdownError("database is gone")
	assert.True(t, core.IsShutdown(err))
	assert.True(t, core.IsShutdown(errors.Wrap(err, "querying threads")))
	assert.False(t, core.IsShutdown(errors.New("database is gone")))
}

func TestInitValidators(t *testing.T) {
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	require.NoError(t, validate.RegisterValidation("palette", core.OneOf([]string{"red", "blue"})))
	core.RegisterCustomTranslation(validate, translator, "palette", "invalid palette")

	type payload struct {
		Username string `json:"username" validate:"required,alphanum_"`
		ThreadID string `json:"thread_id" validate:"omitempty,uuid"`
		Palette  string `json:"palette" validate:"omitempty,palette"`
	}

	tests := []struct {
		name string
		data payload
		want map[string]string
	}{
		{name: "valid", data: payload{Username: "jdoe_1", ThreadID: "7c1b7a4e-8f3a-4c4e-9a57-1d6f0e0b2d11", Palette: "red"}},
		{name: "required", data: payload{}, want: map[string]string{"username": "this field is required"}},
		{name: "alphanum_", data: payload{Username: "j.doe"}, want: map[string]string{"username": "only alphanumeric characters and underscores are allowed"}},
		{name: "uuid", data: payload{Username: "jdoe", ThreadID: "42"}, want: map[string]string{"thread_id": "thread_id must be a valid id"}},
		{name: "one of", data: payload{Username: "jdoe", Palette: "green"}, want: map[string]string{"palette": "invalid palette"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validate.Struct(tt.data)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			var vErrs validator.ValidationErrors
			require.True(t, errors.As(err, &vErrs))
			got := make(map[string]string, len(vErrs))
			for _, fe := range vErrs {
				got[fe.Field()] = fe.Translate(translator)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}
