package cmdscheduler

import (
	"context"
	"testing"
	"time"

	"trainctl-go/internal/ioserver"
)

func newTestScheduler(t *testing.T) (*Server, context.Context, context.CancelFunc) {
	t.Helper()
	console, _ := ioserver.OpenPort(ioserver.PortConfig{Type: "loopback"})
	marklin, _ := ioserver.OpenPort(ioserver.PortConfig{Type: "loopback"})
	ios := ioserver.New(console, marklin)
	ctx, cancel := context.WithCancel(context.Background())
	go ios.Run(ctx)
	s := New(ios)
	go s.Run(ctx)
	return s, ctx, cancel
}

func TestEnqueueBlockingTransmits(t *testing.T) {
	s, ctx, cancel := newTestScheduler(t)
	defer cancel()

	err := s.Enqueue(ctx, &Command{
		Bytes:    []byte{OpSwitchStraight, 3},
		GapTicks: SwitchGapTicks,
		Priority: High,
		TrainID:  -1,
		Blocking: true,
	})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
}

func TestSolenoidOffDeduplicated(t *testing.T) {
	s, ctx, cancel := newTestScheduler(t)
	defer cancel()

	// Enqueue two blocking SolenoidOff commands 5ms apart; both must report
	// success, the second one being folded into the first by deduplication.
	errCh1 := make(chan error, 1)
	errCh2 := make(chan error, 1)
	go func() {
		errCh1 <- s.Enqueue(ctx, &Command{Bytes: []byte{OpSolenoidOff}, Priority: Low, TrainID: -1, Blocking: true})
	}()
	time.Sleep(5 * time.Millisecond)
	go func() {
		errCh2 <- s.Enqueue(ctx, &Command{Bytes: []byte{OpSolenoidOff}, Priority: Low, TrainID: -1, Blocking: true})
	}()

	select {
	case err := <-errCh1:
		if err != nil {
			t.Fatalf("first enqueue failed: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("first SolenoidOff never completed")
	}
	select {
	case err := <-errCh2:
		if err != nil {
			t.Fatalf("deduplicated enqueue should report success, got: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("second SolenoidOff never completed")
	}
}

func TestPriorityOrdering(t *testing.T) {
	h := cmdHeap{}
	h = append(h, &Command{Priority: Low, timestamp: 1})
	h = append(h, &Command{Priority: Critical, timestamp: 2})
	h = append(h, &Command{Priority: Medium, timestamp: 0})
	if !h.Less(1, 0) {
		t.Fatal("Critical should sort before Low regardless of timestamp")
	}
}

func TestHeapTieBreakOnTimestamp(t *testing.T) {
	h := cmdHeap{
		{Priority: High, timestamp: 5},
		{Priority: High, timestamp: 2},
	}
	if !h.Less(1, 0) {
		t.Fatal("lower timestamp should win ties at the same priority")
	}
}
