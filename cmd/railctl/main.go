// Command railctl is the main train controller (spec.md §2): it wires up
// every server (name service, clock, UART I/O, command scheduler, message
// broker, track authority) and one goroutine per configured train, then
// offers both an HTTP snapshot endpoint and a reference-only interactive
// command surface over stdin. Grounded on the teacher's root main.go: one
// bootstrap sequence, a readiness wait before spawning dependents, and a
// single aggregator loop driving everything else.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"trainctl-go/bus"
	"trainctl-go/internal/clockserver"
	"trainctl-go/internal/cmdscheduler"
	"trainctl-go/internal/conductor"
	"trainctl-go/internal/ioserver"
	"trainctl-go/internal/msgqueue"
	"trainctl-go/internal/nameserver"
	"trainctl-go/internal/topology"
	"trainctl-go/internal/train"
	"trainctl-go/services/config"
	"trainctl-go/services/heartbeat"
	"trainctl-go/x/strx"
)

func main() {
	configPath := flag.String("config", "", "path to a JSON config file layered over the built-in defaults")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("railctl: config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	names := nameserver.New()
	_ = names.RegisterAs("railctl", 0)

	b := bus.NewBus(64)
	conn := b.NewConnection("railctl")
	cfgCtx := context.WithValue(ctx, config.CtxDeviceKey, "pico")
	config.NewConfigService().Start(cfgCtx, conn) // retained per-service config, teacher's pattern

	hbConn := b.NewConnection("heartbeat")
	(&heartbeat.Service{}).Start(ctx, hbConn) // liveness beacon, config-tunable via config/heartbeat

	clock := clockserver.New()
	go clock.Run(ctx)

	console, err := ioserver.OpenPort(ioserver.PortConfig{Type: cfg.ConsolePort})
	if err != nil {
		log.Fatalf("railctl: console port: %v", err)
	}
	marklin, err := ioserver.OpenPort(ioserver.PortConfig{Type: cfg.MarklinPort, Serial: &ioserver.SerialConfig{Baud: cfg.Baud}})
	if err != nil {
		log.Fatalf("railctl: marklin port: %v", err)
	}
	ios := ioserver.New(console, marklin)
	go ios.Run(ctx)

	sched := cmdscheduler.New(ios)
	go sched.Run(ctx)

	mq := msgqueue.NewBroker(conn)

	graph := topology.LayoutA()
	if err := graph.Validate(); err != nil {
		log.Fatalf("railctl: track layout invalid: %v", err)
	}

	cond := conductor.New(graph, mq, sched, clock)
	go cond.Run(ctx)
	go cond.RunSensorPoller(ctx, ios)

	if !waitControllerReady(ctx, clock, startupTimeout) {
		log.Println("railctl: clock service not ready within timeout; continuing anyway")
	}

	trains := map[int32]*train.Train{}
	for _, tc := range cfg.Trains {
		startIdx := graph.Index(tc.StartNode)
		if startIdx < 0 {
			log.Fatalf("railctl: train %d: unknown start node %q", tc.ID, tc.StartNode)
		}
		heading := train.Forward
		if strx.Coalesce(tc.Heading, "forward") == "reverse" {
			heading = train.Reverse
		}
		tr := train.New(tc.ID, graph, cond, sched, clock, mq, startIdx, heading)
		_ = names.RegisterAs(fmt.Sprintf("train.%d", tc.ID), tc.ID)
		go tr.Run(ctx)
		trains[tc.ID] = tr
	}

	ctrl := &controller{cond: cond, trains: trains, io: ios}
	go forwardHeartbeat(ctx, conn, ctrl)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: ctrl.newRouter()}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("railctl: http server: %v", err)
		}
	}()
	log.Printf("railctl: snapshot endpoint on %s", cfg.HTTPAddr)

	go runREPL(ctx, os.Stdin, graph, ctrl)

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	_ = cond.Close()
}

// waitControllerReady blocks until the clock service answers Time, the
// stand-in for the teacher's waitHALReady: a bounded wait for the one
// dependency (the tick source) every train needs before its first pass.
func waitControllerReady(ctx context.Context, clock *clockserver.Server, d time.Duration) bool {
	ctx2, cancel := context.WithTimeout(ctx, d)
	defer cancel()
	_, err := clock.Time(ctx2)
	return err == nil
}

// forwardHeartbeat mirrors the retained heartbeat beacon into ctrl so the
// HTTP /health handler can read it without its own bus subscription.
func forwardHeartbeat(ctx context.Context, conn *bus.Connection, ctrl *controller) {
	sub := conn.Subscribe(heartbeat.Topic)
	defer conn.Unsubscribe(sub)
	for {
		select {
		case <-ctx.Done():
			return
		case m := <-sub.Channel():
			if b, ok := m.Payload.(heartbeat.Beat); ok {
				ctrl.storeBeat(b)
			}
		}
	}
}
