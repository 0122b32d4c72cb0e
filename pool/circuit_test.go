package pool

import (
	"testing"
	"time"
)

func TestBreaker_OpensAtThreshold(t *testing.T) {
	b := NewBreaker(BreakerConfig{Threshold: 2, Cooldown: time.Minute})

	if ok, _ := b.Allow(); !ok {
		t.Fatal("new breaker should allow")
	}

	b.RecordFailure()
	if ok, _ := b.Allow(); !ok {
		t.Fatal("one failure below threshold should still allow")
	}

	b.RecordFailure()
	ok, wait := b.Allow()
	if ok {
		t.Fatal("breaker should be open after threshold failures")
	}
	if wait <= 0 || wait > time.Minute {
		t.Errorf("wait = %v, want in (0, 1m]", wait)
	}
}

func TestBreaker_SuccessResetsFailures(t *testing.T) {
	b := NewBreaker(BreakerConfig{Threshold: 2, Cooldown: time.Minute})

	b.RecordFailure()
	b.RecordSuccess()
	b.RecordFailure()

	if ok, _ := b.Allow(); !ok {
		t.Fatal("success between failures should prevent opening")
	}
}

func TestBreaker_ProbeAfterCooldown(t *testing.T) {
	b := NewBreaker(BreakerConfig{Threshold: 2, Cooldown: 30 * time.Millisecond})

	b.RecordFailure()
	b.RecordFailure()
	if ok, _ := b.Allow(); ok {
		t.Fatal("breaker should be open")
	}

	time.Sleep(50 * time.Millisecond)

	if ok, _ := b.Allow(); !ok {
		t.Fatal("breaker should admit a probe after cooldown")
	}

	// A single probe failure re-opens immediately.
	b.RecordFailure()
	if ok, _ := b.Allow(); ok {
		t.Fatal("breaker should re-open on probe failure")
	}
}

func TestBreaker_ProbeSuccessCloses(t *testing.T) {
	b := NewBreaker(BreakerConfig{Threshold: 2, Cooldown: 30 * time.Millisecond})

	b.RecordFailure()
	b.RecordFailure()
	time.Sleep(50 * time.Millisecond)

	if ok, _ := b.Allow(); !ok {
		t.Fatal("breaker should admit a probe after cooldown")
	}
	b.RecordSuccess()

	st := b.State()
	if st.Open {
		t.Error("breaker should be closed after probe success")
	}
	if st.ConsecutiveFailures != 0 {
		t.Errorf("failures = %d, want 0", st.ConsecutiveFailures)
	}
}

func TestBreaker_CooldownMultiplierGrows(t *testing.T) {
	b := NewBreaker(BreakerConfig{Threshold: 2, Cooldown: 30 * time.Millisecond, MaxMultiplier: 8})

	b.RecordFailure()
	b.RecordFailure()
	if got := b.State().Multiplier; got != 2 {
		t.Fatalf("multiplier after first open = %v, want 2", got)
	}

	time.Sleep(50 * time.Millisecond)
	if ok, _ := b.Allow(); !ok {
		t.Fatal("probe should be admitted")
	}
	b.RecordFailure()
	if got := b.State().Multiplier; got != 4 {
		t.Fatalf("multiplier after second open = %v, want 4", got)
	}

	// Cooldown for the second open is scaled by the prior multiplier.
	if _, wait := b.Allow(); wait <= 30*time.Millisecond {
		t.Errorf("scaled cooldown wait = %v, want > base cooldown", wait)
	}
}

func TestBreaker_SuccessHalvesMultiplier(t *testing.T) {
	b := NewBreaker(BreakerConfig{Threshold: 2, Cooldown: 10 * time.Millisecond, MaxMultiplier: 8})

	b.RecordFailure()
	b.RecordFailure()
	time.Sleep(20 * time.Millisecond)
	b.Allow()
	b.RecordFailure()
	time.Sleep(50 * time.Millisecond)
	b.Allow()

	b.RecordSuccess()
	if got := b.State().Multiplier; got != 2 {
		t.Errorf("multiplier after success = %v, want 2", got)
	}
	b.RecordSuccess()
	if got := b.State().Multiplier; got != 1 {
		t.Errorf("multiplier after second success = %v, want 1", got)
	}
}

func TestBreaker_MultiplierCapped(t *testing.T) {
	b := NewBreaker(BreakerConfig{Threshold: 1, Cooldown: time.Millisecond, MaxMultiplier: 4})

	for i := 0; i < 6; i++ {
		b.RecordFailure()
		time.Sleep(10 * time.Millisecond)
		b.Allow()
	}
	if got := b.State().Multiplier; got > 4 {
		t.Errorf("multiplier = %v, want <= 4", got)
	}
}

func TestBreaker_OnStateChange(t *testing.T) {
	var transitions []bool
	b := NewBreaker(BreakerConfig{
		Threshold: 2,
		Cooldown:  20 * time.Millisecond,
		OnStateChange: func(open bool) {
			transitions = append(transitions, open)
		},
	})

	b.RecordFailure()
	b.RecordFailure()
	time.Sleep(40 * time.Millisecond)
	b.Allow()

	if len(transitions) != 2 || !transitions[0] || transitions[1] {
		t.Errorf("transitions = %v, want [true false]", transitions)
	}
}
