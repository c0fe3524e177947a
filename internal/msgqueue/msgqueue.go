// Package msgqueue is the typed pub/sub broker fronting spec.md §4.5's four
// event types. It is built on top of trainctl-go/bus's topic trie rather
// than reimplementing fan-out, but layers its own bounded, drop-newest ring
// per subscription on top: the teacher's bus.tryDeliver drops the oldest
// queued message to make room (appropriate for a retained-state bus), while
// this broker's rings drop the newest message instead. Drops are counted per
// subscription (Subscription.Dropped); the publisher is not told about them.
// That difference is the entire reason this package
// exists rather than callers using trainctl-go/bus directly.
package msgqueue

import (
	"context"
	"sync"
	"sync/atomic"

	"trainctl-go/bus"
	"trainctl-go/errcode"
)

// EventType enumerates the four pub/sub event kinds (spec.md §4.5/§6).
type EventType string

const (
	SensorUpdate     EventType = "sensor_update"
	SwitchState      EventType = "switch_state"
	TrainPosition    EventType = "train_position"
	BlockReservation EventType = "block_reservation"
)

func topicFor(evt EventType) bus.Topic { return bus.T("mq", string(evt)) }

// SubscriptionDepth is the fixed per-subscriber ring capacity (spec.md §4.5).
const SubscriptionDepth = 128

// SensorUpdateEvent mirrors spec.md §6's SensorUpdate payload.
type SensorUpdateEvent struct {
	Bank              int32
	SensorID          int32
	Triggered         bool
	LastTriggeredTick int64
}

// SwitchStateEvent mirrors spec.md §6's SwitchState payload.
type SwitchStateEvent struct {
	SwitchID        int32
	Direction       int32 // 0=straight, 1=curved
	LastChangedTick int64
}

// BlockStatus enumerates BlockReservationEvent.Status.
type BlockStatus int32

const (
	BlockFree BlockStatus = iota
	BlockReserved
	BlockOccupied
)

// TrainPositionEvent mirrors spec.md §6's TrainPosition payload.
type TrainPositionEvent struct {
	TrainID            int32
	CurrentLocation    string
	Direction          int32
	Headlight          bool
	Speed              uint8
	Destination        string
	DestinationName    string
	Mode                string
	LocationOffsetMM    int32
	DestinationOffsetMM int32
	Status              string
	NextSensor1         string
	NextSensor2         string
}

// BlockReservationEvent mirrors spec.md §6's BlockReservation payload.
type BlockReservationEvent struct {
	BlockID        int32
	OwnerTrainID   int32
	Status         BlockStatus
	Timestamp      int64
	EntrySensorName string
}

// envelope carries a monotonic per-subscription sequence number alongside
// the typed payload (spec.md §4.5's ordering guarantee).
type envelope struct {
	Seq     uint64
	Payload any
}

// Broker is the message queue server. One Broker should be shared by every
// publisher/subscriber in the process (it wraps a single bus.Connection).
type Broker struct {
	conn *bus.Connection
}

func NewBroker(conn *bus.Connection) *Broker {
	return &Broker{conn: conn}
}

// Publish fans a typed event out to every subscriber of evt. Never blocks:
// if a subscriber's ring is full the message is dropped for that
// subscriber and counted in its Dropped(), but delivery to other
// subscribers still proceeds (spec.md §5's "the publisher itself never
// blocks"). Publish returns no error: a drop is not reported back to the
// publisher.
func (b *Broker) Publish(evt EventType, payload any) {
	msg := b.conn.NewMessage(topicFor(evt), payload, false)
	b.conn.Publish(msg)
}

// Subscription is a bounded, ordered, drop-newest view onto one event type.
type Subscription struct {
	evt     EventType
	busSub  *bus.Subscription
	ring    chan envelope
	seq     atomic.Uint64
	dropped atomic.Uint64

	closeOnce sync.Once
	done      chan struct{}
}

// Subscribe opens a new subscription to evt. Internally this runs a small
// forwarding goroutine that performs the drop-newest admission policy; the
// underlying bus subscription channel is only ever drained by that
// goroutine, never touched by callers.
func (b *Broker) Subscribe(evt EventType) *Subscription {
	s := &Subscription{
		evt:    evt,
		busSub: b.conn.Subscribe(topicFor(evt)),
		ring:   make(chan envelope, SubscriptionDepth),
		done:   make(chan struct{}),
	}
	go s.forward()
	return s
}

func (s *Subscription) forward() {
	for {
		select {
		case msg, ok := <-s.busSub.Channel():
			if !ok {
				return
			}
			env := envelope{Seq: s.seq.Add(1), Payload: msg.Payload}
			select {
			case s.ring <- env:
			default:
				// Ring full: drop the newest message (spec.md §4.5/§5),
				// not the oldest.
				s.dropped.Add(1)
			}
		case <-s.done:
			return
		}
	}
}

// Receive blocks until a message arrives, ctx is done, or the subscription
// is closed.
func (s *Subscription) Receive(ctx context.Context) (seq uint64, payload any, err error) {
	select {
	case env, ok := <-s.ring:
		if !ok {
			return 0, nil, errcode.Wrap(errcode.NotFound, "msgqueue.Receive", nil)
		}
		return env.Seq, env.Payload, nil
	case <-ctx.Done():
		return 0, nil, ctx.Err()
	case <-s.done:
		return 0, nil, errcode.Wrap(errcode.NotFound, "msgqueue.Receive", nil)
	}
}

// ReceiveNonBlock returns immediately with ok=false if no message is queued.
func (s *Subscription) ReceiveNonBlock() (seq uint64, payload any, ok bool) {
	select {
	case env := <-s.ring:
		return env.Seq, env.Payload, true
	default:
		return 0, nil, false
	}
}

// Dropped returns the number of messages dropped for this subscription due
// to a full ring since it was opened.
func (s *Subscription) Dropped() uint64 { return s.dropped.Load() }

// Close releases the subscription's resources.
func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.busSub.Unsubscribe()
	})
}
