package errors

import (
	stderrors "errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodeOfWalksWrappedChain(t *testing.T) {
	err := fmt.Errorf("append: %w", ErrMediaRequired)

	assert.Equal(t, CodeInvalidArgument, CodeOf(err))
	assert.True(t, stderrors.Is(err, ErrMediaRequired))
	assert.False(t, stderrors.Is(err, ErrEmptyText))
	assert.Equal(t, CodeUnknown, CodeOf(stderrors.New("plain")))
}

func TestRateLimitedRoundsUp(t *testing.T) {
	err := RateLimited(1500 * time.Millisecond)
	require.True(t, HasCode(err, CodeResourceExhausted))
	assert.Equal(t, 2*time.Second, RetryAfterOf(err))

	assert.Equal(t, time.Second, RetryAfterOf(RateLimited(0)))
}

func TestWrapKeepsCause(t *testing.T) {
	cause := stderrors.New("connection reset")
	err := Upload(cause)

	assert.True(t, stderrors.Is(err, cause))
	assert.Equal(t, CodeUnavailable, CodeOf(err))
	assert.Equal(t, "upload failed: connection reset", err.Error())
}
