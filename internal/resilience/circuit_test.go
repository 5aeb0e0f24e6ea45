package resilience

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

var errUnavailable = NewTransientError(errors.New("service unavailable"), 503)

func failing(_ context.Context) (int, error) { return 0, errUnavailable }
func succeeding(_ context.Context) (int, error) { return 1, nil }

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	b := NewBreaker(BreakerConfig{FailureThreshold: 3, Cooldown: time.Hour})

	for range 3 {
		_, _ = Call(context.Background(), b, failing)
	}
	if b.State() != CircuitOpen {
		t.Fatalf("expected open, got %s", b.State())
	}

	var called bool
	_, err := Call(context.Background(), b, func(_ context.Context) (int, error) {
		called = true
		return 0, nil
	})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("expected ErrCircuitOpen, got %v", err)
	}
	if called {
		t.Error("fn must not run while open")
	}
}

func TestBreaker_PermanentErrorsDoNotTrip(t *testing.T) {
	b := NewBreaker(BreakerConfig{FailureThreshold: 2, Cooldown: time.Hour})

	for range 5 {
		_, _ = Call(context.Background(), b, func(_ context.Context) (int, error) {
			return 0, errors.New("status 401: unauthorized")
		})
	}
	if b.State() != CircuitClosed {
		t.Errorf("expected closed, got %s", b.State())
	}
}

func TestBreaker_SuccessResetsCount(t *testing.T) {
	b := NewBreaker(BreakerConfig{FailureThreshold: 3, Cooldown: time.Hour})

	_, _ = Call(context.Background(), b, failing)
	_, _ = Call(context.Background(), b, failing)
	_, _ = Call(context.Background(), b, succeeding)
	_, _ = Call(context.Background(), b, failing)
	_, _ = Call(context.Background(), b, failing)

	if b.State() != CircuitClosed {
		t.Errorf("expected closed, got %s", b.State())
	}
}

func TestBreaker_HalfOpenProbe(t *testing.T) {
	now := time.Now()
	b := NewBreaker(BreakerConfig{FailureThreshold: 1, Cooldown: time.Minute})
	b.now = func() time.Time { return now }

	_, _ = Call(context.Background(), b, failing)
	if b.State() != CircuitOpen {
		t.Fatalf("expected open, got %s", b.State())
	}

	now = now.Add(2 * time.Minute)
	if b.State() != CircuitHalfOpen {
		t.Fatalf("expected half-open, got %s", b.State())
	}

	if _, err := Call(context.Background(), b, succeeding); err != nil {
		t.Fatalf("probe should pass: %v", err)
	}
	if b.State() != CircuitClosed {
		t.Errorf("expected closed after probe, got %s", b.State())
	}
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	now := time.Now()
	b := NewBreaker(BreakerConfig{FailureThreshold: 1, Cooldown: time.Minute})
	b.now = func() time.Time { return now }

	_, _ = Call(context.Background(), b, failing)
	now = now.Add(2 * time.Minute)
	_, _ = Call(context.Background(), b, failing)

	if got := b.State(); got != CircuitOpen {
		t.Errorf("expected open, got %s", got)
	}
}

func TestBreaker_OnStateChangeAndReset(t *testing.T) {
	var transitions []string
	b := NewBreaker(BreakerConfig{
		FailureThreshold: 1,
		Cooldown:         time.Hour,
		OnStateChange: func(from, to CircuitState) {
			transitions = append(transitions, from.String()+"->"+to.String())
		},
	})

	_, _ = Call(context.Background(), b, failing)
	b.Reset()

	want := []string{"closed->open", "open->closed"}
	if len(transitions) != len(want) {
		t.Fatalf("expected %v, got %v", want, transitions)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Errorf("transition %d: expected %s, got %s", i, want[i], transitions[i])
		}
	}
}

func TestBreaker_ConcurrentCalls(t *testing.T) {
	b := NewBreaker(BreakerConfig{FailureThreshold: 1000, Cooldown: time.Hour})

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if i%2 == 0 {
				_, _ = Call(context.Background(), b, failing)
			} else {
				_, _ = Call(context.Background(), b, succeeding)
			}
		}()
	}
	wg.Wait()
	_ = b.State()
}

func TestCircuitState_String(t *testing.T) {
	cases := map[CircuitState]string{
		CircuitClosed:    "closed",
		CircuitOpen:      "open",
		CircuitHalfOpen:  "half-open",
		CircuitState(42): "unknown",
	}
	for s, want := range cases {
		if s.String() != want {
			t.Errorf("expected %s, got %s", want, s.String())
		}
	}
}

func TestBreakerFromConfig(t *testing.T) {
	cfg := BreakerFromConfig(7, 10)
	if cfg.FailureThreshold != 7 || cfg.Cooldown != 10*time.Second {
		t.Errorf("unexpected config: %+v", cfg)
	}
	d := BreakerFromConfig(0, 0)
	if d.FailureThreshold != 5 || d.Cooldown != 30*time.Second {
		t.Errorf("zero values should keep defaults: %+v", d)
	}
}
