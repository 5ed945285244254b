package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// keepAliveInterval is how often an idle stream gets an SSE comment line.
const keepAliveInterval = 30 * time.Second

// ProgressEvent is one SSE payload: a snapshot of a job's progress.
type ProgressEvent struct {
	JobID      string    `json:"jobId"`
	State      JobState  `json:"state"`
	Iterations int       `json:"iterations"`
	Change     float64   `json:"change"`
	Restarts   int       `json:"restarts"`
	Converged  bool      `json:"converged"`
	Timestamp  time.Time `json:"timestamp"`
}

func newProgressEvent(job *Job) ProgressEvent {
	return ProgressEvent{
		JobID:      job.ID,
		State:      job.State,
		Iterations: job.Iterations,
		Change:     job.Change,
		Restarts:   job.Restarts,
		Converged:  job.Converged,
		Timestamp:  time.Now(),
	}
}

// progressHub fans job events out to stream handlers. Slow readers lose
// intermediate events rather than blocking the worker.
type progressHub struct {
	mu   sync.Mutex
	subs map[string]map[chan ProgressEvent]struct{}
}

func newProgressHub() *progressHub {
	return &progressHub{subs: make(map[string]map[chan ProgressEvent]struct{})}
}

// subscribe registers a listener for jobID. The returned func removes it.
func (h *progressHub) subscribe(jobID string) (<-chan ProgressEvent, func()) {
	ch := make(chan ProgressEvent, 8)

	h.mu.Lock()
	if h.subs[jobID] == nil {
		h.subs[jobID] = make(map[chan ProgressEvent]struct{})
	}
	h.subs[jobID][ch] = struct{}{}
	h.mu.Unlock()

	return ch, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.subs[jobID], ch)
		if len(h.subs[jobID]) == 0 {
			delete(h.subs, jobID)
		}
	}
}

func (h *progressHub) publish(event ProgressEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs[event.JobID] {
		select {
		case ch <- event:
		default:
			slog.Debug("Dropping progress event for slow client", "job_id", event.JobID, "iterations", event.Iterations)
		}
	}
}

func (h *progressHub) listeners(jobID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[jobID])
}

// handleJobStream sends the job's current state, then every update, and
// returns once the job has finished or the client goes away.
func (s *Server) handleJobStream(w http.ResponseWriter, r *http.Request, jobID string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	// Subscribe before the snapshot so no update falls between the two.
	events, unsubscribe := s.jobManager.hub.subscribe(jobID)
	defer unsubscribe()

	job, exists := s.jobManager.GetJob(jobID)
	if !exists {
		http.Error(w, "Job not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	// send reports whether the stream should stay open.
	send := func(event ProgressEvent) bool {
		if err := writeSSEEvent(w, event); err != nil {
			slog.Debug("SSE write failed", "job_id", jobID, "error", err)
			return false
		}
		flusher.Flush()
		return !event.State.Finished()
	}
	if !send(newProgressEvent(job)) {
		return
	}

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-keepAlive.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case event := <-events:
			if !send(event) {
				return
			}
		}
	}
}

func writeSSEEvent(w http.ResponseWriter, event ProgressEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}
