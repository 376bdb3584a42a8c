package api

import (
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ipLimiters holds one token bucket per client IP and path class. Idle
// entries are evicted so the map stays bounded.
type ipLimiters struct {
	mu      sync.Mutex
	entries map[string]*limiterEntry
}

type limiterEntry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

const limiterIdleTTL = 10 * time.Minute

func newIPLimiters() *ipLimiters {
	l := &ipLimiters{entries: make(map[string]*limiterEntry)}
	go l.evictLoop()
	return l
}

func (l *ipLimiters) allow(ip, path string) bool {
	perMinute := 60
	switch {
	case strings.Contains(path, "/media"):
		// galleries fire many image requests at once
		perMinute = 240
	case strings.Contains(path, "/search-users"):
		perMinute = 20
	}

	key := ip + "|" + pathClass(path)

	l.mu.Lock()
	entry, ok := l.entries[key]
	if !ok {
		entry = &limiterEntry{
			lim: rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), perMinute),
		}
		l.entries[key] = entry
	}
	entry.lastSeen = time.Now()
	l.mu.Unlock()

	return entry.lim.Allow()
}

func pathClass(path string) string {
	switch {
	case strings.Contains(path, "/media"):
		return "media"
	case strings.Contains(path, "/search-users"):
		return "search"
	default:
		return "default"
	}
}

func (l *ipLimiters) evictLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		cutoff := time.Now().Add(-limiterIdleTTL)
		l.mu.Lock()
		for key, entry := range l.entries {
			if entry.lastSeen.Before(cutoff) {
				delete(l.entries, key)
			}
		}
		l.mu.Unlock()
	}
}
