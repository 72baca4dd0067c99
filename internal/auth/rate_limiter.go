package auth

import (
	"sync"
	"time"
)

// RateLimitAttempt tracks failed logins from one client address
type RateLimitAttempt struct {
	Count    int
	FirstTry time.Time
	LastTry  time.Time
}

// LoginRateLimiter blocks a client address after too many failed logins
// within a window. Successful logins clear the address.
type LoginRateLimiter struct {
	attempts map[string]*RateLimitAttempt
	mu       sync.Mutex

	maxAttempts int
	window      time.Duration
	now         func() time.Time

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewLoginRateLimiter creates a rate limiter and starts its cleanup loop
func NewLoginRateLimiter(maxAttempts int, window time.Duration) *LoginRateLimiter {
	limiter := &LoginRateLimiter{
		attempts:    make(map[string]*RateLimitAttempt),
		maxAttempts: maxAttempts,
		window:      window,
		now:         time.Now,
		stopCh:      make(chan struct{}),
	}

	go limiter.cleanupLoop()

	return limiter
}

// AllowLogin reports whether ip may attempt a login now
func (l *LoginRateLimiter) AllowLogin(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	attempt, ok := l.attempts[ip]
	if !ok || l.expired(attempt) {
		return true
	}
	return attempt.Count < l.maxAttempts
}

// RecordFailedAttempt records a failed login attempt
func (l *LoginRateLimiter) RecordFailedAttempt(ip string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	attempt, ok := l.attempts[ip]
	if !ok || l.expired(attempt) {
		l.attempts[ip] = &RateLimitAttempt{
			Count:    1,
			FirstTry: now,
			LastTry:  now,
		}
		return
	}

	attempt.Count++
	attempt.LastTry = now
}

// ResetIP removes rate limit for an IP address
func (l *LoginRateLimiter) ResetIP(ip string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.attempts, ip)
}

// GetAttempts returns the failed attempts of ip in the current window
func (l *LoginRateLimiter) GetAttempts(ip string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	attempt, ok := l.attempts[ip]
	if !ok || l.expired(attempt) {
		return 0
	}
	return attempt.Count
}

// Close stops the cleanup loop
func (l *LoginRateLimiter) Close() {
	l.stopOnce.Do(func() { close(l.stopCh) })
}

func (l *LoginRateLimiter) expired(a *RateLimitAttempt) bool {
	return l.now().Sub(a.FirstTry) > l.window
}

func (l *LoginRateLimiter) cleanupLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-l.stopCh:
			return
		case <-ticker.C:
			l.cleanup()
		}
	}
}

// cleanup removes expired entries from the map
func (l *LoginRateLimiter) cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()

	for ip, attempt := range l.attempts {
		if l.expired(attempt) {
			delete(l.attempts, ip)
		}
	}
}
