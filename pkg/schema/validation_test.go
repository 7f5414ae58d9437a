package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidationResult_EmptyIsValid(t *testing.T) {
	r := &ValidationResult{}
	assert.True(t, r.Valid())
}

func TestValidationResult_AddError(t *testing.T) {
	r := &ValidationResult{}
	r.AddError("history.events[0].eventType", ErrCodeValidation, "missing property")

	assert.False(t, r.Valid())
	require.Len(t, r.Errors, 1)
	assert.Equal(t, "history.events[0].eventType", r.Errors[0].Path)
	assert.Equal(t, ErrCodeValidation, r.Errors[0].Code)
	assert.Equal(t, SeverityError, r.Errors[0].Severity)
}

func TestValidationResult_AddEventWarning(t *testing.T) {
	r := &ValidationResult{}
	r.AddEventWarning("history.events[4]", "5", ErrCodeValidation, "timer id read from fired attributes")

	assert.True(t, r.Valid(), "warnings alone should not make result invalid")
	require.Len(t, r.Warnings, 1)
	assert.Equal(t, SeverityWarning, r.Warnings[0].Severity)
	assert.Equal(t, EventID("5"), r.Warnings[0].EventID)
}

func TestValidationResult_ToError_Valid(t *testing.T) {
	r := &ValidationResult{}
	r.AddEventWarning("/", "3", ErrCodeValidation, "just a warning")
	assert.Nil(t, r.ToError())
}

func TestValidationResult_ToError_SingleError(t *testing.T) {
	r := &ValidationResult{}
	r.AddError("history.events[2]", ErrCodeValidation, "eventType must be a string")

	err := r.ToError()
	require.NotNil(t, err)

	vErr, ok := err.(*Error)
	require.True(t, ok)
	assert.Equal(t, ErrCodeValidation, vErr.Code)
	assert.Equal(t, "history.events[2]: eventType must be a string", vErr.Message)
	assert.Equal(t, 1, vErr.Details["error_count"])
}

func TestValidationResult_ToError_MultipleErrors(t *testing.T) {
	r := &ValidationResult{}
	r.AddError("/", ErrCodeValidation, "err1")
	r.AddError("/", ErrCodeValidation, "err2")
	r.AddEventWarning("/", "1", ErrCodeValidation, "warn1")

	err := r.ToError()
	require.NotNil(t, err)

	vErr, ok := err.(*Error)
	require.True(t, ok)
	assert.Contains(t, vErr.Message, "2 errors")
	assert.Equal(t, 2, vErr.Details["error_count"])
	assert.Equal(t, 1, vErr.Details["warning_count"])
}
