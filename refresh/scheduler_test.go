package refresh

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestNew_RequiresRefreshFunc(t *testing.T) {
	_, err := New(Config{})
	if !errors.Is(err, ErrMissingRefreshFunc) {
		t.Errorf("error = %v, want ErrMissingRefreshFunc", err)
	}
}

func TestScheduler_FiresBeforeExpiry(t *testing.T) {
	var calls int32
	s, err := New(Config{
		Buffer: 50 * time.Millisecond,
		Refresh: func(context.Context) (time.Duration, error) {
			atomic.AddInt32(&calls, 1)
			return time.Hour, nil
		},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()

	// Expiry in 80ms with a 50ms buffer: the refresh fires around 30ms.
	s.Schedule(80 * time.Millisecond)

	time.Sleep(60 * time.Millisecond)
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("refresh calls = %d, want 1", got)
	}

	// Success re-arms for the new lifetime.
	if _, ok := s.NextExpiry(); !ok {
		t.Error("scheduler should be re-armed after a successful refresh")
	}
}

func TestScheduler_ShortLifetimeFiresImmediately(t *testing.T) {
	var calls int32
	s, err := New(Config{
		Buffer: time.Minute,
		Refresh: func(context.Context) (time.Duration, error) {
			atomic.AddInt32(&calls, 1)
			return time.Hour, nil
		},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()

	s.Schedule(time.Second)

	deadline := time.Now().Add(time.Second)
	for atomic.LoadInt32(&calls) == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("refresh calls = %d, want 1", got)
	}
}

func TestScheduler_RearmCancelsPriorTimer(t *testing.T) {
	var calls int32
	s, err := New(Config{
		Buffer: 10 * time.Millisecond,
		Refresh: func(context.Context) (time.Duration, error) {
			atomic.AddInt32(&calls, 1)
			return time.Hour, nil
		},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()

	// Arm repeatedly; only the last schedule may fire.
	for i := 0; i < 10; i++ {
		s.Schedule(time.Hour)
	}
	s.Schedule(30 * time.Millisecond)

	time.Sleep(60 * time.Millisecond)
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("refresh calls = %d, want exactly 1", got)
	}
}

func TestScheduler_Cancel(t *testing.T) {
	var calls int32
	s, err := New(Config{
		Buffer: 10 * time.Millisecond,
		Refresh: func(context.Context) (time.Duration, error) {
			atomic.AddInt32(&calls, 1)
			return time.Hour, nil
		},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()

	s.Schedule(30 * time.Millisecond)
	s.Cancel()

	if _, ok := s.NextExpiry(); ok {
		t.Error("NextExpiry should report unarmed after Cancel")
	}

	time.Sleep(50 * time.Millisecond)
	if got := atomic.LoadInt32(&calls); got != 0 {
		t.Errorf("refresh calls = %d, want 0 after Cancel", got)
	}
}

func TestScheduler_RetriesThenSucceeds(t *testing.T) {
	var calls int32
	s, err := New(Config{
		Buffer:      time.Minute,
		MaxAttempts: 3,
		RetryDelay:  time.Millisecond,
		Refresh: func(context.Context) (time.Duration, error) {
			if atomic.AddInt32(&calls, 1) < 3 {
				return 0, errors.New("upstream unavailable")
			}
			return time.Hour, nil
		},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()

	s.Schedule(time.Second)

	deadline := time.Now().Add(time.Second)
	for atomic.LoadInt32(&calls) < 3 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Fatalf("refresh calls = %d, want 3", got)
	}

	waitDeadline := time.Now().Add(time.Second)
	for time.Now().Before(waitDeadline) {
		if _, ok := s.NextExpiry(); ok {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Error("scheduler should re-arm after the retry eventually succeeds")
}

func TestScheduler_TerminalFailureSignalsReauth(t *testing.T) {
	var calls, reauth int32
	s, err := New(Config{
		Buffer:      time.Minute,
		MaxAttempts: 2,
		RetryDelay:  time.Millisecond,
		Refresh: func(context.Context) (time.Duration, error) {
			atomic.AddInt32(&calls, 1)
			return 0, errors.New("refresh endpoint gone")
		},
		OnReauthRequired: func() {
			atomic.AddInt32(&reauth, 1)
		},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()

	s.Schedule(time.Second)

	deadline := time.Now().Add(time.Second)
	for atomic.LoadInt32(&reauth) == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Errorf("refresh calls = %d, want exactly MaxAttempts", got)
	}
	if got := atomic.LoadInt32(&reauth); got != 1 {
		t.Errorf("reauth signals = %d, want 1", got)
	}
	if _, ok := s.NextExpiry(); ok {
		t.Error("scheduler state should be cleared on terminal failure")
	}
}

func signedToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-key"))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return tok
}

func TestScheduler_ScheduleFromToken(t *testing.T) {
	s, err := New(Config{
		Buffer:  time.Minute,
		Refresh: func(context.Context) (time.Duration, error) { return time.Hour, nil },
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()

	exp := time.Now().Add(2 * time.Hour)
	tok := signedToken(t, jwt.MapClaims{"exp": exp.Unix(), "sub": "svc-playlists"})

	if err := s.ScheduleFromToken(tok); err != nil {
		t.Fatalf("ScheduleFromToken: %v", err)
	}

	got, ok := s.NextExpiry()
	if !ok {
		t.Fatal("scheduler should be armed")
	}
	if diff := got.Sub(exp); diff < -2*time.Second || diff > 2*time.Second {
		t.Errorf("tracked expiry = %v, want about %v", got, exp)
	}
}

func TestScheduler_ScheduleFromToken_Errors(t *testing.T) {
	s, err := New(Config{
		Refresh: func(context.Context) (time.Duration, error) { return time.Hour, nil },
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()

	tests := []struct {
		name    string
		token   string
		wantErr error
	}{
		{
			name:    "no expiry claim",
			token:   signedToken(t, jwt.MapClaims{"sub": "svc-playlists"}),
			wantErr: ErrNoExpiry,
		},
		{
			name:    "already expired",
			token:   signedToken(t, jwt.MapClaims{"exp": time.Now().Add(-time.Hour).Unix()}),
			wantErr: ErrCredentialExpired,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := s.ScheduleFromToken(tt.token); !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	if err := s.ScheduleFromToken("not-a-jwt"); err == nil {
		t.Error("malformed token should return a parse error")
	}
}

func TestScheduler_CloseRejectsArming(t *testing.T) {
	var calls int32
	s, err := New(Config{
		Buffer: time.Millisecond,
		Refresh: func(context.Context) (time.Duration, error) {
			atomic.AddInt32(&calls, 1)
			return time.Hour, nil
		},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	s.Close()
	s.Schedule(10 * time.Millisecond)

	time.Sleep(30 * time.Millisecond)
	if got := atomic.LoadInt32(&calls); got != 0 {
		t.Errorf("refresh calls = %d, want 0 after Close", got)
	}
	if _, ok := s.NextExpiry(); ok {
		t.Error("closed scheduler should never report an armed timer")
	}
}
