package domain

import (
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPMIDKey(t *testing.T) {
	assert.Equal(t, "unknown", PMIDKey(0))
	assert.Equal(t, "unknown", PMIDKey(-1))
	assert.Equal(t, "123", PMIDKey(123))
}

func TestFatalParseError(t *testing.T) {
	err := NewFatalParseError(42, io.ErrUnexpectedEOF)

	assert.ErrorIs(t, err, ErrFatalParse)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.Contains(t, err.Error(), "offset 42")
}

func TestStructuralFailure(t *testing.T) {
	err := NewStructuralFailure(0, "article")

	assert.ErrorIs(t, err, ErrStructural)
	assert.Equal(t, "citation unknown: required article is missing", err.Error())

	var sf *StructuralFailure
	assert.True(t, errors.As(error(err), &sf))
	assert.Equal(t, "article", sf.Path)
}

func TestSinkError(t *testing.T) {
	cause := errors.New("duplicate key")
	err := NewSinkError("postgres", 7, cause)

	assert.ErrorIs(t, err, ErrSink)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "postgres sink rejected citation 7: duplicate key", err.Error())
}

func TestValidationError(t *testing.T) {
	err := NewValidationError("sink", "unknown kind")

	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Equal(t, "validation error: sink: unknown kind", err.Error())
}

func TestNotFoundError(t *testing.T) {
	err := NewNotFoundError("citation", "12345")

	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, "citation not found: 12345", err.Error())
}
