package msgqueue

import (
	"context"
	"testing"
	"time"

	"trainctl-go/bus"
)

func newTestBroker() *Broker {
	b := bus.NewBus(8)
	return NewBroker(b.NewConnection("test"))
}

func TestPublishSubscribeOrdering(t *testing.T) {
	b := newTestBroker()
	sub := b.Subscribe(SensorUpdate)
	defer sub.Close()

	for i := int32(0); i < 5; i++ {
		b.Publish(SensorUpdate, SensorUpdateEvent{Bank: 0, SensorID: i, Triggered: true})
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	var lastSeq uint64
	for i := int32(0); i < 5; i++ {
		seq, payload, err := sub.Receive(ctx)
		if err != nil {
			t.Fatalf("Receive: %v", err)
		}
		if seq <= lastSeq {
			t.Fatalf("sequence numbers must be strictly increasing, got %d after %d", seq, lastSeq)
		}
		lastSeq = seq
		ev := payload.(SensorUpdateEvent)
		if ev.SensorID != i {
			t.Fatalf("out of order delivery: got sensor %d want %d", ev.SensorID, i)
		}
	}
}

func TestReceiveNonBlockEmpty(t *testing.T) {
	b := newTestBroker()
	sub := b.Subscribe(SwitchState)
	defer sub.Close()
	if _, _, ok := sub.ReceiveNonBlock(); ok {
		t.Fatal("expected no data on a fresh subscription")
	}
}

func TestDropNewestWhenFull(t *testing.T) {
	b := newTestBroker()
	sub := b.Subscribe(BlockReservation)
	defer sub.Close()

	for i := 0; i < SubscriptionDepth+10; i++ {
		b.Publish(BlockReservation, BlockReservationEvent{BlockID: int32(i)})
	}
	time.Sleep(50 * time.Millisecond) // let the forwarder drain the bus channel

	if sub.Dropped() == 0 {
		t.Fatal("expected some messages to be dropped once the ring filled")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, payload, err := sub.Receive(ctx)
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	ev := payload.(BlockReservationEvent)
	if ev.BlockID != 0 {
		t.Fatalf("expected the oldest surviving message (block 0) first, got block %d", ev.BlockID)
	}
}
