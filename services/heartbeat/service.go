// Package heartbeat publishes a retained liveness beacon for the main
// controller: a running uptime counter any subscriber (the HTTP snapshot
// endpoint, a future watchdog) can read without polling a process list.
package heartbeat

import (
	"context"
	"log"
	"time"

	"trainctl-go/bus"
	"trainctl-go/x/timex"
)

var topicConfigHeartbeat = bus.Topic{"config", "heartbeat"}

// Topic is the retained beacon topic.
var Topic = bus.Topic{"railctl", "heartbeat"}

// Beat is the payload published on every tick. WallMs is a Unix
// millisecond timestamp (trainctl-go/x/timex.NowMs) alongside the
// process-relative Uptime, so a subscriber can correlate a beat against
// external logs without assuming its own clock started at the same
// moment as railctl's process.
type Beat struct {
	Tick   int64
	Uptime time.Duration
	WallMs int64
}

// DefaultInterval is used until services/config publishes a "heartbeat"
// config with an overriding "interval" (seconds), matching
// services/config/defaultconfigs.go's embedded `{"heartbeat":{"interval":2}}`.
const DefaultInterval = 2 * time.Second

type Service struct{}

func (s *Service) serviceLoop(ctx context.Context, conn *bus.Connection) {
	cfgSub := conn.Subscribe(topicConfigHeartbeat)
	defer conn.Unsubscribe(cfgSub)

	tick := time.NewTicker(DefaultInterval)
	defer tick.Stop()

	start := time.Now()
	var n int64

	for {
		select {
		case <-ctx.Done():
			log.Println("heartbeat: stopping")
			return
		case now := <-tick.C:
			n++
			conn.Publish(conn.NewMessage(Topic, Beat{Tick: n, Uptime: now.Sub(start), WallMs: timex.NowMs()}, true))
		case msg := <-cfgSub.Channel():
			if m, ok := msg.Payload.(map[string]any); ok {
				if iv, ok := m["interval"]; ok {
					if interval, ok := iv.(float64); ok && interval > 0 {
						tick.Reset(time.Duration(interval) * time.Second)
						log.Printf("heartbeat: interval set to %gs (from %s)", interval, msg.From)
					}
				}
			}
		}
	}
}

// Start launches the heartbeat publisher in its own goroutine.
func (s *Service) Start(ctx context.Context, conn *bus.Connection) error {
	go s.serviceLoop(ctx, conn)
	return nil
}
