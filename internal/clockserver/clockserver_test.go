package clockserver

import (
	"context"
	"testing"
	"time"
)

func TestTimeAdvances(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	t0, err := s.Time(ctx)
	if err != nil {
		t.Fatal(err)
	}
	time.Sleep(5 * TickDuration)
	t1, err := s.Time(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if t1 <= t0 {
		t.Fatalf("expected tick to advance: t0=%d t1=%d", t0, t1)
	}
}

func TestDelayBlocksApproximately(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	start := time.Now()
	if err := s.Delay(ctx, 5); err != nil {
		t.Fatal(err)
	}
	elapsed := time.Since(start)
	if elapsed < 3*TickDuration {
		t.Fatalf("Delay(5) returned too early: %v", elapsed)
	}
}

func TestWaitersWakeInTickOrder(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	now, _ := s.Time(ctx)
	order := make(chan int, 3)
	// Register out of wake order (+6, +2, +4); order should still resolve by
	// wake tick, not by registration order once wake ticks differ.
	go func() { _ = s.DelayUntil(ctx, now+6); order <- 3 }()
	time.Sleep(2 * time.Millisecond)
	go func() { _ = s.DelayUntil(ctx, now+2); order <- 1 }()
	time.Sleep(2 * time.Millisecond)
	go func() { _ = s.DelayUntil(ctx, now+4); order <- 2 }()

	first := <-order
	second := <-order
	third := <-order
	if first != 1 || second != 2 || third != 3 {
		t.Fatalf("expected wake order 1,2,3 got %d,%d,%d", first, second, third)
	}
}
