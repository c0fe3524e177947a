package main

import (
	"net/http"
	"sync/atomic"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	jsoniter "github.com/json-iterator/go"

	"trainctl-go/internal/conductor"
	"trainctl-go/internal/ioserver"
	"trainctl-go/internal/train"
	"trainctl-go/services/heartbeat"
)

var snapshotJSON = jsoniter.ConfigCompatibleWithStandardLibrary

// controller bundles the pieces the HTTP and REPL surfaces both need to
// read: the conductor's read-model and the live set of trains.
type controller struct {
	cond   *conductor.Conductor
	trains map[int32]*train.Train
	io     *ioserver.Server

	lastBeat atomic.Value // holds heartbeat.Beat
}

func (c *controller) storeBeat(b heartbeat.Beat) { c.lastBeat.Store(b) }

// newRouter builds the reference HTTP surface (spec.md §2 "aggregates
// snapshots for UI"): one JSON endpoint per concern rather than a single
// do-everything blob, matching chi's usual "one handler per resource"
// layout in the rest of the corpus.
func (c *controller) newRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/trains", c.handleTrains)
	r.Get("/blocks", c.handleSnapshot("block:"))
	r.Get("/switches", c.handleSnapshot("switch:"))
	r.Get("/sensors", c.handleSnapshot("sensor:"))
	r.Get("/health", c.handleHealth)
	r.Get("/io", c.handleIO)
	return r
}

// ioStatus is the /io response shape: console TX ring fill level, the one
// piece of UART internals worth exposing to an operator (a climbing
// utilization means the Console link can't keep up with Putn traffic).
type ioStatus struct {
	ConsoleTXUtilizationPct int `json:"console_tx_utilization_pct"`
}

func (c *controller) handleIO(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, ioStatus{ConsoleTXUtilizationPct: c.io.ConsoleTXUtilization()})
}

func (c *controller) handleHealth(w http.ResponseWriter, r *http.Request) {
	if v := c.lastBeat.Load(); v != nil {
		writeJSON(w, v.(heartbeat.Beat))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
}

func (c *controller) handleTrains(w http.ResponseWriter, r *http.Request) {
	snaps := make([]train.Snapshot, 0, len(c.trains))
	for _, tr := range c.trains {
		snaps = append(snaps, tr.Snapshot())
	}
	writeJSON(w, snaps)
}

func (c *controller) handleSnapshot(prefix string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, c.cond.Snapshot(prefix))
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = snapshotJSON.NewEncoder(w).Encode(v)
}
