package common

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Cooldown keeps one token bucket per key, so that a single user
// cannot flood the bot (and the API behind it) with commands
type Cooldown struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	limiters map[string]*cooldownEntry
}

type cooldownEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// perSecond is the sustained rate of commands per key; burst the
// number of commands that can be issued back to back
func NewCooldown(perSecond float64, burst int) *Cooldown {
	return &Cooldown{
		limit:    rate.Limit(perSecond),
		burst:    burst,
		limiters: make(map[string]*cooldownEntry),
	}
}

func (c *Cooldown) Allow(key string) bool {
	c.mu.Lock()
	entry, ok := c.limiters[key]
	if !ok {
		entry = &cooldownEntry{limiter: rate.NewLimiter(c.limit, c.burst)}
		c.limiters[key] = entry
	}
	entry.lastSeen = time.Now()
	c.mu.Unlock()

	return entry.limiter.Allow()
}

// Prune forgets keys not seen for longer than idle. A forgotten
// key starts again with a full bucket, which is what an idle key has anyway
func (c *Cooldown) Prune(idle time.Duration) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for key, entry := range c.limiters {
		if time.Since(entry.lastSeen) > idle {
			delete(c.limiters, key)
			removed++
		}
	}
	return removed
}

func (c *Cooldown) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.limiters)
}
