package heartbeat

import (
	"context"
	"testing"
	"time"

	"trainctl-go/bus"
)

func TestServicePublishesBeats(t *testing.T) {
	b := bus.NewBus(8)
	pub := b.NewConnection("pub")
	sub := b.NewConnection("sub").Subscribe(Topic)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svc := &Service{}
	if err := svc.Start(ctx, pub); err != nil {
		t.Fatalf("Start: %v", err)
	}

	select {
	case m := <-sub.Channel():
		beat, ok := m.Payload.(Beat)
		if !ok || beat.Tick < 1 {
			t.Fatalf("expected a Beat with Tick >= 1, got %+v", m.Payload)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no heartbeat received within 3s")
	}
}

func TestServiceRespondsToConfigInterval(t *testing.T) {
	b := bus.NewBus(8)
	pub := b.NewConnection("pub")
	cfgConn := b.NewConnection("cfg")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svc := &Service{}
	if err := svc.Start(ctx, pub); err != nil {
		t.Fatalf("Start: %v", err)
	}

	// Give the service a moment to subscribe before publishing.
	time.Sleep(20 * time.Millisecond)
	cfgConn.Publish(cfgConn.NewMessage(topicConfigHeartbeat, map[string]any{"interval": float64(1)}, true))

	sub := b.NewConnection("sub2").Subscribe(Topic)
	select {
	case <-sub.Channel():
	case <-time.After(3 * time.Second):
		t.Fatal("no heartbeat received after config interval change")
	}
}
