package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_DerivesCategoryAndSeverity(t *testing.T) {
	tests := []struct {
		code     string
		category Category
		severity Severity
	}{
		{ErrCodeInvalidInput, CategoryValidation, SeverityError},
		{ErrCodeNotFound, CategoryNotFound, SeverityError},
		{ErrCodeAlreadyExists, CategoryExists, SeverityError},
		{ErrCodeMediaTool, CategoryMedia, SeverityError},
		{ErrCodeTranscription, CategoryTranscribe, SeverityWarning},
		{ErrCodeQuotaExceeded, CategoryPlatform, SeverityError},
		{ErrCodeStore, CategoryStore, SeverityError},
		{ErrCodeTimeout, CategoryTimeout, SeverityError},
		{ErrCodeCancelled, CategoryCancelled, SeverityError},
		{ErrCodeInternal, CategorySystem, SeverityFatal},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := New(tt.code, "test")
			assert.Equal(t, tt.category, err.Category)
			assert.Equal(t, tt.severity, err.Severity)
		})
	}
}

func TestWrap_NilReturnsNil(t *testing.T) {
	assert.Nil(t, Wrap(nil, ErrCodeStore, "write failed"))
}

func TestError_Unwrap(t *testing.T) {
	cause := fmt.Errorf("disk full")
	err := Wrap(cause, ErrCodeStore, "write failed")

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, cause, errors.Unwrap(err))
}

func TestError_IsMatchesByCode(t *testing.T) {
	a := New(ErrCodeNotFound, "memory not found")
	b := New(ErrCodeNotFound, "different message")
	c := New(ErrCodeStore, "store failed")

	assert.True(t, errors.Is(a, b))
	assert.False(t, errors.Is(a, c))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(New(ErrCodeTimeout, "timed out")))
	assert.False(t, IsRetryable(New(ErrCodeInvalidInput, "bad input")))
	assert.False(t, IsRetryable(fmt.Errorf("plain error")))
	assert.False(t, IsRetryable(nil))
}

func TestIsWarning_TranscriptionIsWarning(t *testing.T) {
	assert.True(t, IsWarning(New(ErrCodeTranscription, "whisper failed")))
	assert.False(t, IsWarning(New(ErrCodeMediaTool, "ffmpeg failed")))
}

func TestIsWarning_WrappedChain(t *testing.T) {
	inner := New(ErrCodeEmbeddingFailed, "ollama unreachable")
	wrapped := fmt.Errorf("content processing: %w", inner)

	assert.True(t, IsWarning(wrapped))
	assert.Equal(t, ErrCodeEmbeddingFailed, GetCode(wrapped))
}

func TestWithDetailAndSuggestion(t *testing.T) {
	err := New(ErrCodeMediaTool, "ffmpeg exited 1").
		WithDetail("tool", "ffmpeg").
		WithDetail("exit_code", "1").
		WithSuggestion("check that the input file has an audio stream")

	require.NotNil(t, err.Details)
	assert.Equal(t, "ffmpeg", err.Details["tool"])
	assert.Equal(t, "1", err.Details["exit_code"])
	assert.NotEmpty(t, err.Suggestion)
}

func TestNotFoundAndAlreadyExists(t *testing.T) {
	nf := NotFound("memory", "abc123")
	assert.Equal(t, ErrCodeNotFound, nf.Code)
	assert.Contains(t, nf.Error(), "memory not found")

	ae := AlreadyExists("space", "work")
	assert.Equal(t, ErrCodeAlreadyExists, ae.Code)
	assert.Equal(t, CategoryExists, ae.Category)
}
