// Package ratelimit enforces the remote catalog's two request budgets: a
// minimum spacing between consecutive requests and a cap per hourly window.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Window is the length of the hourly quota window.
const Window = time.Hour

// resetBuffer is added to an hourly stall so the first request of the new
// window lands safely after the remote side has reset.
const resetBuffer = time.Second

// Clock abstracts time retrieval so the limiter is deterministic in tests.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Logger receives a warning whenever the hourly quota forces a stall.
type Logger interface {
	Warn(msg string, args ...any)
}

// Status is a point-in-time view of the hourly window.
type Status struct {
	RequestsThisHour  int
	RequestsRemaining int
	ResetsIn          time.Duration
}

// Limiter is a dual-window rate limiter. Wait blocks until one more request
// may be sent and then counts it. Reaching the hourly quota stalls the
// caller until the window resets; it is never reported as an error.
type Limiter struct {
	mu          sync.Mutex
	minInterval time.Duration
	perHour     int

	clock  Clock
	sleep  func(ctx context.Context, d time.Duration) error
	logger Logger

	lastRequest time.Time
	windowStart time.Time
	count       int
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock replaces the time source.
func WithClock(c Clock) Option {
	return func(l *Limiter) { l.clock = c }
}

// WithSleeper replaces the blocking sleep. Tests use it to observe waits
// and advance a fake clock instead of sleeping.
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(l *Limiter) { l.sleep = sleep }
}

// WithLogger reports hourly stalls.
func WithLogger(logger Logger) Option {
	return func(l *Limiter) { l.logger = logger }
}

// New creates a Limiter allowing perSecond requests per second and perHour
// requests per hourly window. A non-positive value disables that budget.
func New(perSecond float64, perHour int, opts ...Option) *Limiter {
	l := &Limiter{
		perHour: perHour,
		clock:   realClock{},
		sleep:   Sleep,
	}
	if perSecond > 0 {
		l.minInterval = time.Duration(float64(time.Second) / perSecond)
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Wait blocks until a request is allowed and records it. Every successful
// call increments the hourly counter exactly once. The only error is the
// context's, when it is done during a sleep; the request is then not counted.
func (l *Limiter) Wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	if l.windowStart.IsZero() {
		l.windowStart = now
	}
	if now.Sub(l.windowStart) >= Window {
		l.windowStart = now
		l.count = 0
	}

	if l.perHour > 0 && l.count >= l.perHour {
		stall := Window - now.Sub(l.windowStart) + resetBuffer
		if l.logger != nil {
			l.logger.Warn("hourly request limit reached, waiting for window reset",
				"limit", l.perHour, "wait", stall.Round(time.Second).String())
		}
		if err := l.sleep(ctx, stall); err != nil {
			return err
		}
		now = l.clock.Now()
		l.windowStart = now
		l.count = 0
	}

	if !l.lastRequest.IsZero() && l.minInterval > 0 {
		if elapsed := now.Sub(l.lastRequest); elapsed < l.minInterval {
			if err := l.sleep(ctx, l.minInterval-elapsed); err != nil {
				return err
			}
			now = l.clock.Now()
		}
	}

	l.lastRequest = now
	l.count++
	return nil
}

// Status reports usage of the current hourly window without blocking on
// the quota. Before the first request everything is zero except the
// remaining budget.
func (l *Limiter) Status() Status {
	l.mu.Lock()
	defer l.mu.Unlock()

	s := Status{RequestsThisHour: l.count}
	if l.perHour > 0 {
		s.RequestsRemaining = max(l.perHour-l.count, 0)
	}
	if l.windowStart.IsZero() {
		return s
	}

	elapsed := l.clock.Now().Sub(l.windowStart)
	if elapsed >= Window {
		// The window has lapsed; the next Wait starts a fresh one.
		s.RequestsThisHour = 0
		if l.perHour > 0 {
			s.RequestsRemaining = l.perHour
		}
		return s
	}
	s.ResetsIn = Window - elapsed
	return s
}

// Sleep waits for d or until ctx is done, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
