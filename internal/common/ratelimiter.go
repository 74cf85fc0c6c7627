package common

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Vital requests never spin faster than this while waiting
const minimumWait = 10 * time.Millisecond

// Back-off applied after a rate limit response without a usable Retry-After header
const defaultBackoff = time.Minute

type Analysis struct {
	allowed bool          // If the request is allowed
	wait    time.Duration // The minimal time to wait before the request is allowed
}

type RateLimiter struct {
	mu                   sync.Mutex
	restrictions         []Restriction          // Restrictions to consider
	history              []time.Time            // History of requests
	duration             time.Duration          // Min duration to wait for all restrictions to be lifted
	pendingVitalRequests map[uuid.UUID]struct{} // Set of pending vital requests
	backoff              Stopwatch              // Started when the server tells us to slow down
}

func NewRateLimiter(restrictions []Restriction) *RateLimiter {
	rl := &RateLimiter{
		restrictions:         make([]Restriction, len(restrictions)),
		pendingVitalRequests: make(map[uuid.UUID]struct{}),
	}
	copy(rl.restrictions, restrictions)
	for _, restriction := range restrictions {
		if restriction.Duration > rl.duration {
			rl.duration = restriction.Duration
		}
	}
	rl.backoff = NewStopwatch(defaultBackoff)
	return rl
}

// Decide if a request is allowed.
// If the request is not allowed but vital, execution
// blocks here until it is allowed or the context is done
func (rl *RateLimiter) Allowed(ctx context.Context, vital bool) bool {

	// Give this request a unique identifier
	thisuuid := uuid.New()
	defer rl.forget(thisuuid)

	for {
		rl.mu.Lock()
		now := time.Now()
		rl.trim(now)
		analysis := rl.analyse(now)

		if analysis.allowed && (vital || len(rl.pendingVitalRequests) == 0) {
			rl.history = append(rl.history, now)
			rl.mu.Unlock()
			return true
		}
		if !vital {
			rl.mu.Unlock()
			if analysis.allowed {
				log.Warn().Msg("Rejecting non vital request because there are vital requests waiting")
			} else {
				log.Warn().Msg("Rejecting non vital request because restrictions do not allow it")
			}
			return false
		}

		// Vital and not allowed: queue it and wait
		rl.pendingVitalRequests[thisuuid] = struct{}{}
		rl.mu.Unlock()
		wait := max(analysis.wait, minimumWait)
		log.Warn().Str("request", thisuuid.String()).Dur("wait", wait).Msg("Vital request delayed")

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return false
		case <-timer.C:
		}
	}
}

// The server answered with a rate limit. Nothing gets through
// until retryAfter has passed
func (rl *RateLimiter) ReceivedRateLimit(retryAfter time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if retryAfter <= 0 {
		retryAfter = defaultBackoff
	}
	rl.backoff.Timeout = retryAfter
	rl.backoff.Start()
	log.Warn().Dur("retry_after", retryAfter).Msg("Rate limit received, backing off")
}

// Number of vital requests currently waiting
func (rl *RateLimiter) Pending() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.pendingVitalRequests)
}

func (rl *RateLimiter) forget(id uuid.UUID) {
	rl.mu.Lock()
	delete(rl.pendingVitalRequests, id)
	rl.mu.Unlock()
}

// Trim the current history, leaving only the requests
// that are young enough to be affected by at least one restriction.
// Times are stored in chronological order
func (rl *RateLimiter) trim(now time.Time) {
	index := 0
	for i := len(rl.history) - 1; i >= 0; i-- {
		if now.Sub(rl.history[i]) >= rl.duration {
			index = i + 1
			break
		}
	}
	rl.history = rl.history[index:]
}

func (rl *RateLimiter) analyse(now time.Time) Analysis {

	// The server back-off overrides everything else
	if rl.backoff.Running {
		if stopped, left := rl.backoff.Stopped(); !stopped {
			return Analysis{allowed: false, wait: left}
		}
		rl.backoff.Stop()
		log.Info().Msg("Back-off over, resuming requests")
	}

	// Merge the analysis of each restriction
	result := Analysis{allowed: true}
	for _, restriction := range rl.restrictions {
		analysis := restriction.Analyse(rl.history, now)
		result.allowed = result.allowed && analysis.allowed
		if analysis.wait > result.wait {
			result.wait = analysis.wait
		}
	}
	return result
}
