// Package cmdscheduler fronts the Märklin UART with a priority-ordered,
// byte-paced command queue (spec.md §4.4). It is a single-goroutine event
// loop, matching the teacher's core-loop convention: all mutable state (the
// heap, the dedup index, the monotonic timestamp counter) lives on one
// goroutine, reached only through Server.Run's select statement.
package cmdscheduler

import (
	"container/heap"
	"context"
	"log"
	"time"

	"golang.org/x/time/rate"

	"trainctl-go/errcode"
	"trainctl-go/internal/ioserver"
	"trainctl-go/internal/kinematic"
	"trainctl-go/x/conv"
)

// Priority orders commands within the heap; lower numeric value sorts
// first (Critical wins ties against everything else).
type Priority int

const (
	Critical Priority = iota
	High
	Medium
	Low
)

// Märklin wire opcodes (spec.md §4.6 "Märklin UART wire format").
const (
	OpSwitchStraight byte = 0x21
	OpSwitchCurved   byte = 0x22
	OpSolenoidOff    byte = 0x20
	OpSensorResetOff byte = 0x80
	OpReportAllBanks byte = 0x85
	OpReverse        byte = 15
	HeadlightBit     byte = 16
)

// DefaultGapTicks is the scheduler's idle/fallback gap.
const DefaultGapTicks = 1

// Gap durations derived from kinematic.MSToTicks rather than hand-computed
// tick counts, so they stay correct if kinematic.TimeScaleMS ever changes.
var (
	SwitchGapTicks         = kinematic.MSToTicks(150) // spec.md §6's "≥150ms"
	SwitchSolenoidGapTicks = kinematic.MSToTicks(250) // "≥250ms if solenoid will be disengaged"
	TrainCmdGapTicks       = kinematic.MSToTicks(150)
)

// SolenoidOffDelay is how long after a switch throw the follow-up
// SolenoidOff command is scheduled (spec.md §4.6), at Low priority.
const SolenoidOffDelay = 250 * time.Millisecond

// Command is one pending Märklin transmission.
type Command struct {
	Bytes    []byte
	GapTicks int64
	Priority Priority
	TrainID  int32 // -1 if not train-specific
	Blocking bool

	timestamp uint64
	replyCh   chan error // non-nil iff Blocking
}

// IsSolenoidOff reports whether this command is the single-byte
// SolenoidOff opcode, the one command type that gets deduplicated.
func (c *Command) IsSolenoidOff() bool {
	return len(c.Bytes) == 1 && c.Bytes[0] == OpSolenoidOff
}

// MaxQueueDepth is the scheduler's fixed heap capacity (spec.md §4.4's
// "fixed-capacity binary min-heap"); Enqueue reports QueueFull beyond it.
const MaxQueueDepth = 256

// Server is the command scheduler. Construct with New and run with Run.
type Server struct {
	io *ioserver.Server

	enqueueCh chan *Command
	readyCh   chan struct{}

	pq        cmdHeap
	nextTS    uint64
	limiter   *rate.Limiter
}

// New builds a scheduler fronting the given UART I/O server's Marklin
// channel. The rate limiter paces the "ready" loop as a courtesy burst
// guard on top of the explicit per-command gap, mirroring the bridge's
// general approach of layering a library-provided pacer under hand-rolled
// protocol timing.
func New(io *ioserver.Server) *Server {
	return &Server{
		io:        io,
		enqueueCh: make(chan *Command, 64),
		readyCh:   make(chan struct{}, 1),
		limiter:   rate.NewLimiter(rate.Limit(1000), 1),
	}
}

// Enqueue submits a command. If cmd.Blocking, Enqueue blocks until the
// command has been transmitted (or ctx is done) and returns any
// transmission error; otherwise it returns once the command is queued.
func (s *Server) Enqueue(ctx context.Context, cmd *Command) error {
	if cmd.Blocking {
		cmd.replyCh = make(chan error, 1)
	}
	select {
	case s.enqueueCh <- cmd:
	case <-ctx.Done():
		return ctx.Err()
	}
	if !cmd.Blocking {
		return nil
	}
	select {
	case err := <-cmd.replyCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run is the scheduler's event loop: a paced timer task feeding "ready"
// ticks, serviced by popping the highest-priority command and writing it
// to the UART.
func (s *Server) Run(ctx context.Context) {
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.drainErrors(ctx.Err())
			return

		case cmd := <-s.enqueueCh:
			if cmd.IsSolenoidOff() && s.dedupSolenoidOff(cmd) {
				continue
			}
			if s.pq.Len() >= MaxQueueDepth {
				if cmd.replyCh != nil {
					cmd.replyCh <- errcode.Wrap(errcode.QueueFull, "cmdscheduler.Enqueue", nil)
				}
				continue
			}
			cmd.timestamp = s.nextTS
			s.nextTS++
			heap.Push(&s.pq, cmd)

		case <-timer.C:
			gap := s.fireOne(ctx)
			timer.Reset(time.Duration(gap) * 10 * time.Millisecond)
		}
	}
}

// dedupSolenoidOff reports whether an identical SolenoidOff command is
// already queued; if so the enqueue becomes a no-op that reports success
// (spec.md §4.4).
func (s *Server) dedupSolenoidOff(cmd *Command) bool {
	for _, existing := range s.pq {
		if existing.IsSolenoidOff() && bytesEqual(existing.Bytes, cmd.Bytes) {
			if cmd.replyCh != nil {
				cmd.replyCh <- nil
			}
			return true
		}
	}
	return false
}

// packBytes packs up to 4 command bytes big-endian into a uint32 for
// conv.U32Hex's fixed-width hex formatting; Märklin commands are never
// more than 2 bytes (spec.md §4.6), so this never truncates in practice.
func packBytes(b []byte) uint32 {
	var v uint32
	for _, x := range b {
		v = v<<8 | uint32(x)
	}
	return v
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// fireOne pops and transmits the highest-priority command, replying to its
// blocking sender if any, and returns the gap (in ticks) the timer should
// wait before the next ready.
func (s *Server) fireOne(ctx context.Context) int64 {
	if s.pq.Len() == 0 {
		return DefaultGapTicks
	}
	_ = s.limiter.Wait(ctx)
	cmd := heap.Pop(&s.pq).(*Command)
	_, err := s.io.Putn(ctx, ioserver.Marklin, cmd.Bytes)
	if err != nil {
		err = errcode.Wrap(errcode.Communication, "cmdscheduler.fireOne", err)
		var hexBuf [8]byte
		log.Printf("[cmdscheduler] tx 0x%s failed: %v", conv.U32Hex(hexBuf[:], packBytes(cmd.Bytes)), err)
	}
	if cmd.replyCh != nil {
		cmd.replyCh <- err
	}
	if cmd.GapTicks > 0 {
		return cmd.GapTicks
	}
	return DefaultGapTicks
}

func (s *Server) drainErrors(err error) {
	for s.pq.Len() > 0 {
		cmd := heap.Pop(&s.pq).(*Command)
		if cmd.replyCh != nil {
			cmd.replyCh <- err
		}
	}
}
