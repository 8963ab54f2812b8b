package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSentinelMatching(t *testing.T) {
	assert.ErrorIs(t, NotFound("file"), ErrNotFound)
	assert.ErrorIs(t, Conflict("dup"), ErrConflict)
	assert.ErrorIs(t, NotEmpty("has children"), ErrNotEmpty)
	assert.ErrorIs(t, QuotaExceeded(10, 5), ErrQuotaExceeded)
	assert.ErrorIs(t, UnsupportedType("a/b", "c/d"), ErrUnsupportedType)
	assert.ErrorIs(t, StorageUnavailable("read", errors.New("x")), ErrStorageUnavailable)
	assert.ErrorIs(t, Validation("bad"), ErrValidation)

	assert.NotErrorIs(t, NotFound("file"), ErrConflict)
}

func TestMatchingThroughWrapping(t *testing.T) {
	err := fmt.Errorf("upload failed: %w", QuotaExceeded(100, 90))
	assert.ErrorIs(t, err, ErrQuotaExceeded)

	kind, ok := KindOf(err)
	require.True(t, ok)
	assert.Equal(t, KindQuotaExceeded, kind)
}

func TestQuotaExceededPayload(t *testing.T) {
	err := QuotaExceeded(1000, 600)
	assert.Equal(t, int64(1000), err.Quota)
	assert.Equal(t, int64(600), err.Used)
	assert.Equal(t, int64(400), err.Available)
	assert.Contains(t, err.Error(), "600")
	assert.Contains(t, err.Error(), "1000")

	// Overshoot never reports negative headroom.
	err = QuotaExceeded(1000, 1200)
	assert.Zero(t, err.Available)
}

func TestStorageUnavailableKeepsCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := StorageUnavailable("write", cause)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestKindOfForeignError(t *testing.T) {
	_, ok := KindOf(errors.New("plain"))
	assert.False(t, ok)
}
