package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_DerivesCategoryAndRetryable(t *testing.T) {
	tests := []struct {
		code      string
		category  Category
		retryable bool
	}{
		{ErrCodeConfigInvalid, CategoryConfig, false},
		{ErrCodeDiscoveryFailed, CategoryDiscovery, false},
		{ErrCodeEmbedFailed, CategoryEmbed, true},
		{ErrCodeEmbedTimeout, CategoryEmbed, true},
		{ErrCodeInvalidPath, CategoryValidation, false},
		{ErrCodeUnknownID, CategoryNotFound, false},
		{ErrCodeStoreFlush, CategoryStore, false},
		{"ERR_999_WHATEVER", CategoryInternal, false},
	}

	for _, tt := range tests {
		err := New(tt.code, "boom", nil)
		assert.Equal(t, tt.category, err.Category, tt.code)
		assert.Equal(t, tt.retryable, err.Retryable, tt.code)
	}
}

func TestIndexError_ErrorAndUnwrap(t *testing.T) {
	cause := stderrors.New("disk full")
	err := New(ErrCodeStoreFlush, "flush failed", cause)

	assert.Equal(t, "[ERR_501_STORE_FLUSH] flush failed", err.Error())
	assert.ErrorIs(t, err, cause)
}

func TestIndexError_IsMatchesByCode(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", New(ErrCodeUnknownID, "no such file", nil))

	assert.True(t, stderrors.Is(err, New(ErrCodeUnknownID, "different message", nil)))
	assert.False(t, stderrors.Is(err, New(ErrCodeStoreFlush, "no such file", nil)))
}

func TestWrap(t *testing.T) {
	assert.Nil(t, Wrap(ErrCodeInternal, nil))

	cause := stderrors.New("it broke")
	err := Wrap(ErrCodeInternal, cause)
	require.NotNil(t, err)
	assert.Equal(t, "it broke", err.Message)
	assert.ErrorIs(t, err, cause)
}

func TestWithDetail(t *testing.T) {
	err := New(ErrCodeFileNotFound, "missing", nil).
		WithDetail("path", "a.py").
		WithDetail("op", "read")

	assert.Equal(t, "a.py", err.Details["path"])
	assert.Equal(t, "read", err.Details["op"])
}

func TestHelpers(t *testing.T) {
	embedErr := EmbedError("provider down", nil)
	assert.True(t, IsRetryable(embedErr))
	assert.Equal(t, CategoryEmbed, GetCategory(embedErr))

	plain := stderrors.New("plain")
	assert.False(t, IsRetryable(plain))
	assert.Equal(t, CategoryInternal, GetCategory(plain))
	assert.Empty(t, GetCode(plain))

	assert.Equal(t, CategoryNotFound, GetCategory(NotFoundError("nope")))
	assert.Equal(t, CategoryValidation, GetCategory(ValidationError("bad", nil)))
	assert.Equal(t, CategoryDiscovery, GetCategory(DiscoveryError("walk failed", nil)))
}
