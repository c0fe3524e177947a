// Package ioserver is the UART I/O service fronting the Console and Marklin
// channels (spec.md §4.3). It is modeled as a single-goroutine event loop
// that owns all of its mutable state, the same pattern the teacher's HAL
// uses for its core loop (services/hal/internal/core/loop.go): one select
// statement, no locks, every state mutation happens on that one goroutine.
// Notifier goroutines (an RX reader per port, plus a TX drainer for the
// Console ring) stand in for the RX/TX interrupt-driven AwaitEvent tasks
// the original kernel would run.
package ioserver

import (
	"context"
	"io"
	"sync"

	"trainctl-go/errcode"
	"trainctl-go/x/shmring"
)

// Channel selects which physical UART link a request targets.
type Channel int

const (
	Console Channel = iota
	Marklin
)

func (c Channel) String() string {
	if c == Marklin {
		return "marklin"
	}
	return "console"
}

// ConsoleTXRingSize is the console transmit ring capacity: spec.md §4.3
// calls for "≈10 KB"; rounded up to the nearest power of two since
// x/shmring.Ring requires one.
const ConsoleTXRingSize = 16384

type reqKind int

const (
	reqGetc reqKind = iota
	reqTryGetc
	reqPutc
	reqPutn
)

type request struct {
	kind    reqKind
	channel Channel
	data    []byte
	reply   chan response
}

type response struct {
	b   byte
	n   int
	ok  bool
	err error
}

type rxEvent struct {
	channel Channel
	b       byte
}

// Server is the UART I/O service. Construct with New, then run it with Run
// in its own goroutine.
type Server struct {
	ports map[Channel]io.ReadWriteCloser

	reqCh chan *request
	rxCh  chan rxEvent

	// Single-goroutine-owned state below; never touched outside Run.
	rxQueue map[Channel][]byte
	waiters map[Channel][]chan response

	consoleTX *shmring.Ring
}

// New constructs a Server. console and marklin are the already-open
// transports (see transport.go for how those are dialed); passing a nil
// port for a channel disables it.
func New(console, marklin io.ReadWriteCloser) *Server {
	s := &Server{
		ports:     map[Channel]io.ReadWriteCloser{Console: console, Marklin: marklin},
		reqCh:     make(chan *request, 16),
		rxCh:      make(chan rxEvent, 64),
		rxQueue:   map[Channel][]byte{Console: nil, Marklin: nil},
		waiters:   map[Channel][]chan response{Console: nil, Marklin: nil},
		consoleTX: shmring.New(ConsoleTXRingSize),
	}
	return s
}

// Run starts the RX reader notifiers, the console TX drainer, and the
// server's own event loop. Blocks until ctx is cancelled.
func (s *Server) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for ch, port := range s.ports {
		if port == nil {
			continue
		}
		wg.Add(1)
		go func(ch Channel, port io.ReadWriteCloser) {
			defer wg.Done()
			s.rxNotifier(ctx, ch, port)
		}(ch, port)
	}
	if s.ports[Console] != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.txDrainer(ctx, s.ports[Console])
		}()
	}

	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			return
		case ev := <-s.rxCh:
			s.deliverByte(ev.channel, ev.b)
		case req := <-s.reqCh:
			s.handle(req)
		}
	}
}

// rxNotifier is the RX-interrupt-class notifier task: it blocks reading one
// byte at a time from the port and forwards each to the server loop.
func (s *Server) rxNotifier(ctx context.Context, ch Channel, port io.Reader) {
	buf := make([]byte, 1)
	for {
		n, err := port.Read(buf)
		if err != nil {
			return
		}
		if n == 0 {
			continue
		}
		select {
		case s.rxCh <- rxEvent{channel: ch, b: buf[0]}:
		case <-ctx.Done():
			return
		}
	}
}

// txDrainer is the TX-interrupt-class notifier task for Console: it keeps
// the TX-interrupt mask effectively "enabled" by draining the ring to the
// port whenever bytes remain.
func (s *Server) txDrainer(ctx context.Context, port io.Writer) {
	buf := make([]byte, 512)
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.consoleTX.Readable():
		}
		for {
			p1, p2 := s.consoleTX.ReadAcquire()
			if len(p1) == 0 {
				break
			}
			n := copy(buf, p1)
			if len(p2) > 0 && n < len(buf) {
				n += copy(buf[n:], p2)
			}
			if _, err := port.Write(buf[:n]); err != nil {
				return
			}
			s.consoleTX.ReadRelease(n)
		}
	}
}

// deliverByte runs on the server goroutine: it either satisfies the oldest
// blocked Getc waiter for ch (FIFO, spec.md §4.3) or enqueues the byte.
func (s *Server) deliverByte(ch Channel, b byte) {
	if ws := s.waiters[ch]; len(ws) > 0 {
		w := ws[0]
		s.waiters[ch] = ws[1:]
		w <- response{b: b, ok: true}
		return
	}
	s.rxQueue[ch] = append(s.rxQueue[ch], b)
}

func (s *Server) handle(req *request) {
	switch req.kind {
	case reqGetc:
		if q := s.rxQueue[req.channel]; len(q) > 0 {
			b := q[0]
			s.rxQueue[req.channel] = q[1:]
			req.reply <- response{b: b, ok: true}
			return
		}
		s.waiters[req.channel] = append(s.waiters[req.channel], req.reply)
	case reqTryGetc:
		if q := s.rxQueue[req.channel]; len(q) > 0 {
			b := q[0]
			s.rxQueue[req.channel] = q[1:]
			req.reply <- response{b: b, ok: true}
			return
		}
		req.reply <- response{ok: false}
	case reqPutc:
		s.handlePut(req)
	case reqPutn:
		s.handlePut(req)
	}
}

func (s *Server) handlePut(req *request) {
	if req.channel == Marklin {
		port := s.ports[Marklin]
		if port == nil {
			req.reply <- response{err: errcode.Wrap(errcode.NotInitialized, "ioserver.Putc", nil)}
			return
		}
		n, err := port.Write(req.data)
		if err != nil {
			req.reply <- response{n: n, err: errcode.Wrap(errcode.Communication, "ioserver.Putc", err)}
			return
		}
		req.reply <- response{n: n, ok: true}
		return
	}
	// Console: buffered. Putn is the only multi-byte op allowed here
	// (spec.md §4.3); a full ring reports QueueFull rather than blocking
	// the server loop, since blocking here would stall every other client.
	n := s.consoleTX.TryWriteFrom(req.data)
	if n < len(req.data) {
		req.reply <- response{n: n, err: errcode.Wrap(errcode.QueueFull, "ioserver.Putn", nil)}
		return
	}
	req.reply <- response{n: n, ok: true}
}

// ---- client API ----

// Getc blocks until a byte is available on ch or ctx is done.
func (s *Server) Getc(ctx context.Context, ch Channel) (byte, error) {
	reply := make(chan response, 1)
	select {
	case s.reqCh <- &request{kind: reqGetc, channel: ch, reply: reply}:
	case <-ctx.Done():
		return 0, ctx.Err()
	}
	select {
	case r := <-reply:
		return r.b, r.err
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// TryGetc returns immediately with ok=false if no byte is queued.
func (s *Server) TryGetc(ch Channel) (b byte, ok bool) {
	reply := make(chan response, 1)
	s.reqCh <- &request{kind: reqTryGetc, channel: ch, reply: reply}
	r := <-reply
	return r.b, r.ok
}

// Putc writes a single byte. For Marklin this blocks until the byte is
// physically transmitted (direct, unbuffered, byte-paced); for Console it
// only blocks until the byte is enqueued in the TX ring.
func (s *Server) Putc(ctx context.Context, ch Channel, b byte) error {
	_, err := s.Putn(ctx, ch, []byte{b})
	return err
}

// Putn writes len(p) bytes and returns the count actually written. Only
// valid for Console per spec.md §4.3 (a Marklin Putn still works here, the
// whole slice going to the port in one write, but callers should prefer
// Putc for that channel). A
// zero-length p returns (0, nil) without side effects.
func (s *Server) Putn(ctx context.Context, ch Channel, p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	reply := make(chan response, 1)
	select {
	case s.reqCh <- &request{kind: reqPutn, channel: ch, data: p, reply: reply}:
	case <-ctx.Done():
		return 0, ctx.Err()
	}
	select {
	case r := <-reply:
		return r.n, r.err
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// ConsoleTXUtilization reports the console transmit ring's fill level,
// 0-100, for the HTTP status surface. Safe to call from any goroutine:
// the ring's counters are atomics, not server-loop-owned state.
func (s *Server) ConsoleTXUtilization() int {
	return s.consoleTX.UtilizationPct()
}
