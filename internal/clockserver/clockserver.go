// Package clockserver is the tick-driven clock service (spec.md §4.2):
// Time, Delay(ticks), DelayUntil(tick). It owns an ordered wait-list of
// (wake_tick, tid) pairs and a notifier goroutine that turns a ticker into
// tick events, the same single-goroutine-owns-state shape used throughout
// this system (see cmdscheduler and ioserver).
package clockserver

import (
	"container/heap"
	"context"
	"time"

	"trainctl-go/x/timex"
)

// TickHz is the clock's granularity expressed as a frequency: 100Hz, i.e.
// 10ms per tick (spec.md §4.2). TickDuration is derived from it with the
// same Hz-to-period conversion the MCU bootstrap path uses to size its
// hardware timer.
const TickHz = 100

var TickDuration = time.Duration(timex.PeriodFromHz(TickHz))

type waiter struct {
	wakeTick int64
	seq      uint64
	reply    chan struct{}
}

type waiterHeap []*waiter

func (h waiterHeap) Len() int { return len(h) }
func (h waiterHeap) Less(i, j int) bool {
	if h[i].wakeTick != h[j].wakeTick {
		return h[i].wakeTick < h[j].wakeTick
	}
	return h[i].seq < h[j].seq
}
func (h waiterHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *waiterHeap) Push(x any)        { *h = append(*h, x.(*waiter)) }
func (h *waiterHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

type delayRequest struct {
	untilTick int64
	reply     chan struct{}
}

// Server is the clock service.
type Server struct {
	tickReqCh  chan chan int64
	delayReqCh chan *delayRequest

	// single-goroutine-owned state
	tick    int64
	waiters waiterHeap
	nextSeq uint64
}

func New() *Server {
	return &Server{
		tickReqCh:  make(chan chan int64, 8),
		delayReqCh: make(chan *delayRequest, 64),
	}
}

// Run advances the tick once per TickDuration and services Time/Delay
// requests. Blocks until ctx is cancelled.
func (s *Server) Run(ctx context.Context) {
	ticker := time.NewTicker(TickDuration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case reply := <-s.tickReqCh:
			reply <- s.tick

		case req := <-s.delayReqCh:
			if req.untilTick <= s.tick {
				req.reply <- struct{}{}
				continue
			}
			s.nextSeq++
			heap.Push(&s.waiters, &waiter{wakeTick: req.untilTick, seq: s.nextSeq, reply: req.reply})

		case <-ticker.C:
			s.tick++
			// Wake every waiter whose wake_tick <= now, in tick order,
			// ties broken by insertion order (spec.md §4.2's ordering
			// guarantee) — the heap already gives us exactly that order.
			for s.waiters.Len() > 0 && s.waiters[0].wakeTick <= s.tick {
				w := heap.Pop(&s.waiters).(*waiter)
				w.reply <- struct{}{}
			}
		}
	}
}

// Time returns the current tick count.
func (s *Server) Time(ctx context.Context) (int64, error) {
	reply := make(chan int64, 1)
	select {
	case s.tickReqCh <- reply:
	case <-ctx.Done():
		return 0, ctx.Err()
	}
	select {
	case t := <-reply:
		return t, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// Delay blocks the caller for the given number of ticks.
func (s *Server) Delay(ctx context.Context, ticks int64) error {
	now, err := s.Time(ctx)
	if err != nil {
		return err
	}
	return s.DelayUntil(ctx, now+ticks)
}

// DelayUntil blocks the caller until the clock reaches tick.
func (s *Server) DelayUntil(ctx context.Context, tick int64) error {
	req := &delayRequest{untilTick: tick, reply: make(chan struct{}, 1)}
	select {
	case s.delayReqCh <- req:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-req.reply:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
