package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func failing(_ context.Context) error { return errors.New("provider down") }

func succeeding(_ context.Context) error { return nil }

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	b := NewBreaker("kalshi", 3, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := b.Execute(ctx, failing); err == nil {
			t.Fatal("expected failure")
		}
	}
	if b.State() != StateOpen {
		t.Fatalf("expected open, got %v", b.State())
	}

	var called bool
	err := b.Execute(ctx, func(_ context.Context) error {
		called = true
		return nil
	})
	if !errors.Is(err, ErrOpen) {
		t.Fatalf("expected ErrOpen, got %v", err)
	}
	if called {
		t.Error("open breaker must not invoke the function")
	}
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	b := NewBreaker("polymarket", 3, time.Minute)
	ctx := context.Background()

	_ = b.Execute(ctx, failing)
	_ = b.Execute(ctx, failing)
	_ = b.Execute(ctx, succeeding)
	_ = b.Execute(ctx, failing)
	_ = b.Execute(ctx, failing)

	if b.State() != StateClosed {
		t.Fatalf("expected closed after interleaved success, got %v", b.State())
	}
}

func TestBreaker_ProbeClosesAfterCooldown(t *testing.T) {
	b := NewBreaker("kalshi", 1, 30*time.Second)
	current := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return current }
	ctx := context.Background()

	_ = b.Execute(ctx, failing)
	if b.State() != StateOpen {
		t.Fatalf("expected open, got %v", b.State())
	}

	current = current.Add(31 * time.Second)
	if b.State() != StateHalfOpen {
		t.Fatalf("expected half-open after cooldown, got %v", b.State())
	}

	if err := b.Execute(ctx, succeeding); err != nil {
		t.Fatalf("probe should pass: %v", err)
	}
	if b.State() != StateClosed {
		t.Fatalf("expected closed after successful probe, got %v", b.State())
	}
}

func TestBreaker_FailedProbeReopens(t *testing.T) {
	b := NewBreaker("kalshi", 1, 30*time.Second)
	current := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return current }
	ctx := context.Background()

	_ = b.Execute(ctx, failing)
	current = current.Add(31 * time.Second)
	_ = b.Execute(ctx, failing)

	if b.State() != StateOpen {
		t.Fatalf("expected reopened, got %v", b.State())
	}
	if err := b.Execute(ctx, succeeding); !errors.Is(err, ErrOpen) {
		t.Fatalf("expected ErrOpen during second cooldown, got %v", err)
	}
}

func TestBreaker_Reset(t *testing.T) {
	b := NewBreaker("kalshi", 1, time.Minute)
	_ = b.Execute(context.Background(), failing)
	b.Reset()
	if b.State() != StateClosed {
		t.Fatalf("expected closed after reset, got %v", b.State())
	}
}

func TestBreakerVal_PassesValueThrough(t *testing.T) {
	b := NewBreaker("kalshi", 3, time.Minute)
	val, err := BreakerVal(context.Background(), b, func(_ context.Context) ([]string, error) {
		return []string{"a"}, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(val) != 1 || val[0] != "a" {
		t.Errorf("unexpected value: %v", val)
	}
}

func TestBreakerSet_ForReturnsSameInstance(t *testing.T) {
	s := NewBreakerSet(3, time.Minute)
	a := s.For("kalshi")
	b := s.For("kalshi")
	if a != b {
		t.Error("expected the same breaker instance per provider")
	}
	if s.For("polymarket") == a {
		t.Error("expected distinct breakers per provider")
	}
}

func TestBreakerSet_States(t *testing.T) {
	s := NewBreakerSet(1, time.Minute)
	_ = s.For("kalshi").Execute(context.Background(), failing)
	s.For("polymarket")

	states := s.States()
	if states["kalshi"] != "open" {
		t.Errorf("kalshi: expected open, got %s", states["kalshi"])
	}
	if states["polymarket"] != "closed" {
		t.Errorf("polymarket: expected closed, got %s", states["polymarket"])
	}
}
