package logging

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Throttle gates log lines by key so a repeating condition (a lookup miss,
// a failing background refresh) is reported at most once per interval.
type Throttle struct {
	mu       sync.Mutex
	interval time.Duration
	last     map[string]time.Time
	now      func() time.Time
}

// NewThrottle creates a throttle. A non-positive interval disables throttling.
func NewThrottle(interval time.Duration) *Throttle {
	return &Throttle{
		interval: interval,
		last:     make(map[string]time.Time),
		now:      time.Now,
	}
}

// Allow reports whether a line for key may be emitted now, and records it if so.
func (t *Throttle) Allow(key string) bool {
	if t == nil || t.interval <= 0 {
		return true
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	if at, ok := t.last[key]; ok && now.Sub(at) < t.interval {
		return false
	}
	t.last[key] = now

	// Keep the map bounded to keys seen within the window.
	if len(t.last) > 4096 {
		for k, at := range t.last {
			if now.Sub(at) >= t.interval {
				delete(t.last, k)
			}
		}
	}
	return true
}

// Reset forgets every key
func (t *Throttle) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.last = make(map[string]time.Time)
}

// Debug logs at debug level when the key is allowed
func (t *Throttle) Debug(l *zap.Logger, key, msg string, fields ...zap.Field) {
	if t.Allow(key) {
		l.Debug(msg, fields...)
	}
}

// Warn logs at warn level when the key is allowed
func (t *Throttle) Warn(l *zap.Logger, key, msg string, fields ...zap.Field) {
	if t.Allow(key) {
		l.Warn(msg, fields...)
	}
}
