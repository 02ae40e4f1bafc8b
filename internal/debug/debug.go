// Package debug exposes the live calibration engine's state over a
// tsweb-style debug mux, for operators driving a long calibration run from
// a browser rather than tailing logs.
package debug

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"tailscale.com/tsweb"

	"github.com/tessw/photocal/internal/photometer/calibration"
)

// Status is a point-in-time snapshot of a running calibration session,
// published by the caller after each completed round.
type Status struct {
	SessionID    string              `json:"session_id"`
	StartedAt    time.Time           `json:"started_at"`
	RoundsDone   int                 `json:"rounds_done"`
	RoundsWanted int                 `json:"rounds_wanted"`
	LastRound    *calibration.Result `json:"last_round,omitempty"`
	Done         bool                `json:"done"`
	Err          string              `json:"error,omitempty"`
}

// Tracker holds the latest Status for AttachRoutes' handlers to read.
type Tracker struct {
	mu     sync.Mutex
	status Status
}

// NewTracker creates a Tracker seeded with the given session identity.
func NewTracker(sessionID string, roundsWanted int) *Tracker {
	return &Tracker{status: Status{
		SessionID:    sessionID,
		StartedAt:    time.Now(),
		RoundsWanted: roundsWanted,
	}}
}

// RecordRound updates the tracker after a round completes.
func (t *Tracker) RecordRound(r calibration.Result) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status.RoundsDone++
	t.status.LastRound = &r
}

// Finish marks the session complete, recording err's message if non-nil.
func (t *Tracker) Finish(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status.Done = true
	if err != nil {
		t.status.Err = err.Error()
	}
}

// Snapshot returns a copy of the current status.
func (t *Tracker) Snapshot() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// statusHandler serves tracker's current Status as JSON.
func statusHandler(tracker *Tracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(tracker.Snapshot()); err != nil {
			http.Error(w, fmt.Sprintf("encode status: %v", err), http.StatusInternalServerError)
		}
	}
}

// AttachRoutes registers the status handler on mux's tsweb debugger, under
// /debug/photocal-status.
func AttachRoutes(mux *http.ServeMux, tracker *Tracker) {
	dbg := tsweb.Debugger(mux)
	dbg.HandleFunc("photocal-status", "current calibration session status", statusHandler(tracker))
}
