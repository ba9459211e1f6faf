package devserver

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoginLimiter_AllowsBeforeThreshold(t *testing.T) {
	rl := newLoginLimiter()
	for i := 0; i < maxFailures-1; i++ {
		rl.recordFailure("admin")
		blocked, _ := rl.check("admin")
		assert.False(t, blocked)
	}
}

func TestLoginLimiter_ExponentialBackoff(t *testing.T) {
	rl := newLoginLimiter()
	for i := 0; i < maxFailures; i++ {
		rl.recordFailure("admin")
	}
	blocked, first := rl.check("admin")
	require.True(t, blocked)

	rl.recordFailure("admin")
	_, second := rl.check("admin")
	assert.Greater(t, second, first)
}

func TestLoginLimiter_CapsAtMaxLockout(t *testing.T) {
	rl := newLoginLimiter()
	for i := 0; i < maxFailures+20; i++ {
		rl.recordFailure("admin")
	}
	_, retryAfter := rl.check("admin")
	assert.LessOrEqual(t, retryAfter, maxLockout)
}

func TestLoginLimiter_SuccessResets(t *testing.T) {
	rl := newLoginLimiter()
	for i := 0; i < maxFailures; i++ {
		rl.recordFailure("admin")
	}
	rl.recordSuccess("admin")
	blocked, _ := rl.check("admin")
	assert.False(t, blocked)
}

func TestLoginLimiter_ExpiresStaleRecords(t *testing.T) {
	rl := newLoginLimiter()
	now := time.Now()
	rl.now = func() time.Time { return now }
	for i := 0; i < maxFailures; i++ {
		rl.recordFailure("admin")
	}
	rl.now = func() time.Time { return now.Add(attemptExpiry + time.Minute) }
	blocked, _ := rl.check("admin")
	assert.False(t, blocked)
	assert.Empty(t, rl.attempts)
}
