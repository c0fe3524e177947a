package ioserver

import (
	"context"
	"testing"
	"time"
)

func TestGetcPutcRoundTrip(t *testing.T) {
	console, err := OpenPort(PortConfig{Type: "loopback"})
	if err != nil {
		t.Fatal(err)
	}
	marklin, err := OpenPort(PortConfig{Type: "loopback"})
	if err != nil {
		t.Fatal(err)
	}
	s := New(console, marklin)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	if err := s.Putc(ctx, Console, 'x'); err != nil {
		t.Fatalf("Putc: %v", err)
	}
	b, err := s.Getc(ctx, Console)
	if err != nil {
		t.Fatalf("Getc: %v", err)
	}
	if b != 'x' {
		t.Fatalf("got %q want 'x'", b)
	}
}

func TestTryGetcEmpty(t *testing.T) {
	console, _ := OpenPort(PortConfig{Type: "loopback"})
	marklin, _ := OpenPort(PortConfig{Type: "loopback"})
	s := New(console, marklin)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	if _, ok := s.TryGetc(Console); ok {
		t.Fatal("expected TryGetc to report no data on an empty channel")
	}
}

func TestPutnZeroLength(t *testing.T) {
	console, _ := OpenPort(PortConfig{Type: "loopback"})
	marklin, _ := OpenPort(PortConfig{Type: "loopback"})
	s := New(console, marklin)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	n, err := s.Putn(ctx, Console, nil)
	if n != 0 || err != nil {
		t.Fatalf("got n=%d err=%v, want 0,nil", n, err)
	}
}

func TestGetcBlocksUntilByteArrives(t *testing.T) {
	console, _ := OpenPort(PortConfig{Type: "loopback"})
	marklin, _ := OpenPort(PortConfig{Type: "loopback"})
	s := New(console, marklin)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	done := make(chan byte, 1)
	go func() {
		b, err := s.Getc(ctx, Marklin)
		if err == nil {
			done <- b
		}
	}()

	time.Sleep(20 * time.Millisecond)
	if err := s.Putc(ctx, Marklin, 'm'); err != nil {
		t.Fatalf("Putc: %v", err)
	}

	select {
	case b := <-done:
		if b != 'm' {
			t.Fatalf("got %q want 'm'", b)
		}
	case <-time.After(time.Second):
		t.Fatal("Getc never unblocked")
	}
}

func TestFIFOOrderingOfWaiters(t *testing.T) {
	console, _ := OpenPort(PortConfig{Type: "loopback"})
	marklin, _ := OpenPort(PortConfig{Type: "loopback"})
	s := New(console, marklin)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	results := make(chan int, 2)
	for i := 0; i < 2; i++ {
		i := i
		go func() {
			if _, err := s.Getc(ctx, Console); err == nil {
				results <- i
			}
		}()
		time.Sleep(10 * time.Millisecond) // ensure registration order
	}

	if err := s.Putc(ctx, Console, 'a'); err != nil {
		t.Fatal(err)
	}
	first := <-results
	if first != 0 {
		t.Fatalf("expected the first-registered waiter to be served first, got %d", first)
	}
	if err := s.Putc(ctx, Console, 'b'); err != nil {
		t.Fatal(err)
	}
	<-results
}
