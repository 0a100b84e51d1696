package server

import (
	"sync"
	"time"
)

const (
	DefaultMessageLimit  = 5
	DefaultMessageWindow = 10 * time.Second
)

type rateKey struct {
	userId string
	roomId string
}

// RateLimiter is a sliding-window log keyed by (user, room). A key admits at
// most limit sends within any trailing window.
type RateLimiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	now     func() time.Time
	windows map[rateKey][]time.Time
}

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	if limit < 1 {
		limit = DefaultMessageLimit
	}
	if window <= 0 {
		window = DefaultMessageWindow
	}

	return &RateLimiter{
		limit:   limit,
		window:  window,
		now:     time.Now,
		windows: make(map[rateKey][]time.Time),
	}
}

// TryConsume records a send for the key and reports whether it was admitted.
// A denied call records nothing.
func (rl *RateLimiter) TryConsume(userId, roomId string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	key := rateKey{userId: userId, roomId: roomId}
	stamps := rl.prune(rl.windows[key], now)

	if len(stamps) >= rl.limit {
		rl.windows[key] = stamps
		return false
	}

	rl.windows[key] = append(stamps, now)
	return true
}

// prune drops stamps that have aged out of the window. Stamps are appended in
// order so the live ones are always a suffix.
func (rl *RateLimiter) prune(stamps []time.Time, now time.Time) []time.Time {
	i := 0
	for i < len(stamps) && now.Sub(stamps[i]) >= rl.window {
		i++
	}
	if i == 0 {
		return stamps
	}

	// copy so the backing array does not pin expired entries
	return append(stamps[:0:0], stamps[i:]...)
}

// Sweep deletes keys with no send inside the window and returns how many
// were removed.
func (rl *RateLimiter) Sweep() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	removed := 0
	for key, stamps := range rl.windows {
		if len(stamps) == 0 || now.Sub(stamps[len(stamps)-1]) >= rl.window {
			delete(rl.windows, key)
			removed++
		}
	}

	return removed
}

// Len is the number of tracked keys.
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.windows)
}
