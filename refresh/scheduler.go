package refresh

import (
	"context"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/soundcheck-labs/backline/observe"
)

// RefreshFunc renews the credential and reports the new lifetime.
// It is called outside any scheduler lock.
type RefreshFunc func(ctx context.Context) (time.Duration, error)

// Config configures a Scheduler.
type Config struct {
	// Buffer is how long before expiry the refresh fires.
	// Default: 5 minutes
	Buffer time.Duration

	// MaxAttempts bounds the refresh retry loop.
	// Default: 3
	MaxAttempts int

	// RetryDelay is the linear backoff unit between attempts: the
	// n-th retry waits n*RetryDelay.
	// Default: 5 seconds
	RetryDelay time.Duration

	// Refresh renews the credential. Required.
	Refresh RefreshFunc

	// OnReauthRequired is invoked once when every attempt has failed.
	OnReauthRequired func()

	// Logger receives refresh lifecycle events.
	// Default: a nop logger
	Logger observe.Logger
}

func (c *Config) applyDefaults() {
	if c.Buffer <= 0 {
		c.Buffer = 5 * time.Minute
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 5 * time.Second
	}
	if c.Logger == nil {
		c.Logger = observe.NopLogger()
	}
}

// Scheduler arms at most one live timer for proactive credential
// refresh. Safe for concurrent use.
type Scheduler struct {
	cfg Config

	mu        sync.Mutex
	timer     *time.Timer
	gen       uint64
	expiresAt time.Time
	closed    bool
}

// New creates a Scheduler. No timer is armed until Schedule is called.
func New(cfg Config) (*Scheduler, error) {
	if cfg.Refresh == nil {
		return nil, ErrMissingRefreshFunc
	}
	cfg.applyDefaults()
	return &Scheduler{cfg: cfg}, nil
}

// Schedule arms the timer to fire Buffer before the credential expires.
// Any previously armed timer is cancelled first; at most one timer is
// live at a time. A lifetime shorter than the buffer fires immediately.
func (s *Scheduler) Schedule(expiresIn time.Duration) {
	delay := expiresIn - s.cfg.Buffer
	if delay < 0 {
		delay = 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	if s.timer != nil {
		s.timer.Stop()
	}
	s.gen++
	g := s.gen
	s.expiresAt = time.Now().Add(expiresIn)
	s.timer = time.AfterFunc(delay, func() { s.fire(g) })

	s.cfg.Logger.Debug(context.Background(), "refresh scheduled",
		observe.Field{Key: "fire_in_ms", Value: delay.Milliseconds()},
		observe.Field{Key: "expires_in_ms", Value: expiresIn.Milliseconds()},
	)
}

// ScheduleFromToken reads the exp claim of a JWT, without verifying its
// signature, and schedules a refresh for it.
func (s *Scheduler) ScheduleFromToken(tokenString string) error {
	token, _, err := jwt.NewParser().ParseUnverified(tokenString, jwt.MapClaims{})
	if err != nil {
		return err
	}

	exp, err := token.Claims.GetExpirationTime()
	if err != nil {
		return err
	}
	if exp == nil {
		return ErrNoExpiry
	}

	expiresIn := time.Until(exp.Time)
	if expiresIn <= 0 {
		return ErrCredentialExpired
	}

	s.Schedule(expiresIn)
	return nil
}

// Cancel stops the live timer, if any. An in-flight refresh cycle is
// abandoned at its next checkpoint.
func (s *Scheduler) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelLocked()
}

func (s *Scheduler) cancelLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.gen++
	s.expiresAt = time.Time{}
}

// Close cancels the schedule and rejects further arming.
func (s *Scheduler) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.cancelLocked()
	s.closed = true
}

// NextExpiry reports the expiry the scheduler is tracking. ok is false
// when no timer is armed.
func (s *Scheduler) NextExpiry() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer == nil || s.expiresAt.IsZero() {
		return time.Time{}, false
	}
	return s.expiresAt, true
}

// stale reports whether generation g has been superseded by a re-arm,
// a cancel, or a close.
func (s *Scheduler) stale(g uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed || g != s.gen
}

func (s *Scheduler) fire(g uint64) {
	s.mu.Lock()
	if s.closed || g != s.gen {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	s.mu.Unlock()

	ctx := context.Background()
	log := s.cfg.Logger
	var lastErr error

	for attempt := 1; attempt <= s.cfg.MaxAttempts; attempt++ {
		expiresIn, err := s.cfg.Refresh(ctx)
		if err == nil {
			log.Info(ctx, "credential refreshed",
				observe.Field{Key: "attempt", Value: attempt},
				observe.Field{Key: "expires_in_ms", Value: expiresIn.Milliseconds()},
			)
			if !s.stale(g) {
				s.Schedule(expiresIn)
			}
			return
		}
		lastErr = err
		log.Warn(ctx, "credential refresh attempt failed",
			observe.Field{Key: "attempt", Value: attempt},
			observe.Field{Key: "error", Value: err.Error()},
		)

		if attempt < s.cfg.MaxAttempts {
			time.Sleep(time.Duration(attempt) * s.cfg.RetryDelay)
		}
		if s.stale(g) {
			return
		}
	}

	s.mu.Lock()
	if s.closed || g != s.gen {
		s.mu.Unlock()
		return
	}
	s.expiresAt = time.Time{}
	s.mu.Unlock()

	log.Error(ctx, "credential refresh failed, re-authentication required",
		observe.Field{Key: "attempts", Value: s.cfg.MaxAttempts},
		observe.Field{Key: "error", Value: lastErr.Error()},
	)
	if s.cfg.OnReauthRequired != nil {
		s.cfg.OnReauthRequired()
	}
}
