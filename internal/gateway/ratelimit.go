package gateway

import (
	"context"
	"net"
	"sync"
	"time"
)

const rateLimitMaxIPs = 10000 // max tracked IPs to prevent memory exhaustion

// rateLimiter is a per-IP sliding window over chat requests.
type rateLimiter struct {
	limit  int
	window time.Duration
	now    func() time.Time

	mu   sync.Mutex
	hits map[string][]time.Time
}

func newRateLimiter(limit int, window time.Duration) *rateLimiter {
	if limit <= 0 {
		limit = 30
	}
	if window <= 0 {
		window = time.Minute
	}
	return &rateLimiter{
		limit:  limit,
		window: window,
		now:    time.Now,
		hits:   make(map[string][]time.Time),
	}
}

// run removes stale entries every minute until ctx is done.
func (l *rateLimiter) run(ctx context.Context) {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.cleanup()
		}
	}
}

func (l *rateLimiter) cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-l.window)
	for ip, times := range l.hits {
		filtered := recentSince(times, cutoff)
		if len(filtered) == 0 {
			delete(l.hits, ip)
		} else {
			l.hits[ip] = filtered
		}
	}
}

// allow records a request from remoteAddr and reports whether it fits in
// the window. Rejected requests are not counted.
func (l *rateLimiter) allow(remoteAddr string) bool {
	host := clientHost(remoteAddr)

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	recent := recentSince(l.hits[host], now.Add(-l.window))
	if len(recent) >= l.limit {
		l.hits[host] = recent
		return false
	}

	if _, exists := l.hits[host]; !exists && len(l.hits) >= rateLimitMaxIPs {
		l.evictOldest()
	}
	l.hits[host] = append(recent, now)
	return true
}

// evictOldest drops the IP whose oldest request is the earliest.
func (l *rateLimiter) evictOldest() {
	var oldestIP string
	var oldestTime time.Time
	for ip, times := range l.hits {
		if len(times) > 0 && (oldestIP == "" || times[0].Before(oldestTime)) {
			oldestIP = ip
			oldestTime = times[0]
		}
	}
	if oldestIP != "" {
		delete(l.hits, oldestIP)
	}
}

func recentSince(times []time.Time, cutoff time.Time) []time.Time {
	filtered := times[:0]
	for _, t := range times {
		if t.After(cutoff) {
			filtered = append(filtered, t)
		}
	}
	return filtered
}

func clientHost(remoteAddr string) string {
	host, _, _ := net.SplitHostPort(remoteAddr)
	if host == "" {
		host = remoteAddr
	}
	return host
}
