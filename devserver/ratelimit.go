package devserver

import (
	"net/http"
	"strconv"
	"sync"
	"time"
)

// loginLimiter tracks failed login attempts per username and locks the
// account out with exponential backoff.
type loginLimiter struct {
	mu       sync.Mutex
	attempts map[string]*attemptRecord
	now      func() time.Time
}

type attemptRecord struct {
	failures    int
	lastFailure time.Time
	lockedUntil time.Time
}

const (
	// maxFailures is the number of consecutive failures before lockout begins.
	maxFailures   = 5
	baseLockout   = 1 * time.Minute
	maxLockout    = 15 * time.Minute
	attemptExpiry = 1 * time.Hour
)

func newLoginLimiter() *loginLimiter {
	return &loginLimiter{
		attempts: make(map[string]*attemptRecord),
		now:      time.Now,
	}
}

// check reports whether username is locked out and for how long.
func (rl *loginLimiter) check(username string) (bool, time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rec, ok := rl.attempts[username]
	if !ok {
		return false, 0
	}
	now := rl.now()
	if now.Sub(rec.lastFailure) > attemptExpiry {
		delete(rl.attempts, username)
		return false, 0
	}
	if now.Before(rec.lockedUntil) {
		return true, rec.lockedUntil.Sub(now)
	}
	return false, 0
}

func (rl *loginLimiter) recordFailure(username string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rec, ok := rl.attempts[username]
	if !ok {
		rec = &attemptRecord{}
		rl.attempts[username] = rec
	}
	now := rl.now()
	rec.failures++
	rec.lastFailure = now

	if rec.failures >= maxFailures {
		lockout := baseLockout
		for i := 0; i < rec.failures-maxFailures; i++ {
			lockout *= 2
			if lockout > maxLockout {
				lockout = maxLockout
				break
			}
		}
		rec.lockedUntil = now.Add(lockout)
	}
}

func (rl *loginLimiter) recordSuccess(username string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.attempts, username)
}

func writeRateLimited(w http.ResponseWriter, retryAfter time.Duration) {
	secs := int(retryAfter.Seconds())
	if secs < 1 {
		secs = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(secs))
	writeError(w, http.StatusTooManyRequests, "too many failed login attempts; try again later")
}
