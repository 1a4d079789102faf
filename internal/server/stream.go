package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// sseKeepAlive is the interval of comment lines sent on idle streams.
const sseKeepAlive = 30 * time.Second

// ProgressEvent is one progress message of a job stream.
type ProgressEvent struct {
	JobID      string    `json:"jobId"`
	State      JobState  `json:"state"`
	Percent    float64   `json:"percent"`
	TotalEvals int       `json:"totalEvals"`
	Generation int       `json:"generation"`
	BestEnergy *float64  `json:"bestEnergy,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

func newProgressEvent(job Job) ProgressEvent {
	return ProgressEvent{
		JobID:      job.ID,
		State:      job.State,
		Percent:    job.Progress.Percent,
		TotalEvals: job.Progress.TotalEvals,
		Generation: job.Generation,
		BestEnergy: job.BestEnergy,
		Timestamp:  time.Now(),
	}
}

// subscriberBuffer is the number of events queued per SSE client before
// further events are dropped for it.
const subscriberBuffer = 16

// EventBroadcaster fans progress events out to the SSE clients of each job
// and remembers the latest event so late subscribers start from it.
type EventBroadcaster struct {
	mu     sync.Mutex
	subs   map[string]map[chan ProgressEvent]struct{}
	latest map[string]ProgressEvent
}

// NewEventBroadcaster creates a new event broadcaster
func NewEventBroadcaster() *EventBroadcaster {
	return &EventBroadcaster{
		subs:   make(map[string]map[chan ProgressEvent]struct{}),
		latest: make(map[string]ProgressEvent),
	}
}

// Subscribe registers a client for the events of jobID. The returned channel
// is closed by Unsubscribe or CleanupJob.
func (eb *EventBroadcaster) Subscribe(jobID string) chan ProgressEvent {
	ch := make(chan ProgressEvent, subscriberBuffer)

	eb.mu.Lock()
	defer eb.mu.Unlock()

	set, ok := eb.subs[jobID]
	if !ok {
		set = make(map[chan ProgressEvent]struct{})
		eb.subs[jobID] = set
	}
	set[ch] = struct{}{}
	if ev, ok := eb.latest[jobID]; ok {
		ch <- ev
	}

	slog.Debug("SSE client subscribed", "job_id", jobID, "clients", len(set))
	return ch
}

// Unsubscribe removes and closes ch. Channels already closed by CleanupJob
// are ignored.
func (eb *EventBroadcaster) Unsubscribe(jobID string, ch chan ProgressEvent) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	set := eb.subs[jobID]
	if _, ok := set[ch]; !ok {
		return
	}
	delete(set, ch)
	close(ch)
	if len(set) == 0 {
		delete(eb.subs, jobID)
	}
	slog.Debug("SSE client unsubscribed", "job_id", jobID)
}

// Broadcast records event as the latest of its job and offers it to every
// subscriber without blocking.
func (eb *EventBroadcaster) Broadcast(event ProgressEvent) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.latest[event.JobID] = event
	dropped := 0
	for ch := range eb.subs[event.JobID] {
		select {
		case ch <- event:
		default:
			dropped++
		}
	}
	if dropped > 0 {
		slog.Warn("SSE clients lagging, event dropped", "job_id", event.JobID, "clients", dropped)
	}
}

// CleanupJob closes all subscriptions of a job and forgets its latest event.
func (eb *EventBroadcaster) CleanupJob(jobID string) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	for ch := range eb.subs[jobID] {
		close(ch)
	}
	delete(eb.subs, jobID)
	delete(eb.latest, jobID)
}

// handleJobStream handles SSE connections for job progress. The stream ends
// after the event announcing a terminal state.
func (s *Server) handleJobStream(w http.ResponseWriter, r *http.Request, jobID string) {
	job, exists := s.jobManager.GetJob(jobID)
	if !exists {
		http.Error(w, "Job not found", http.StatusNotFound)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	eventChan := s.jobManager.broadcaster.Subscribe(jobID)
	defer s.jobManager.broadcaster.Unsubscribe(jobID, eventChan)

	if err := writeSSEEvent(w, newProgressEvent(job)); err != nil {
		slog.Error("Failed to write initial SSE event", "error", err)
		return
	}
	flusher.Flush()
	if job.State.Terminal() {
		return
	}

	keepAlive := time.NewTicker(sseKeepAlive)
	defer keepAlive.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			slog.Debug("SSE client disconnected", "job_id", jobID)
			return

		case event, ok := <-eventChan:
			if !ok {
				return
			}
			if err := writeSSEEvent(w, event); err != nil {
				slog.Error("Failed to write SSE event", "error", err)
				return
			}
			flusher.Flush()
			if event.State.Terminal() {
				return
			}

		case <-keepAlive.C:
			fmt.Fprintf(w, ": ping\n\n")
			flusher.Flush()
		}
	}
}

// writeSSEEvent writes event as a "progress" message, or "done" once the
// job is in a terminal state. The evaluation count serves as event id.
func writeSSEEvent(w http.ResponseWriter, event ProgressEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	name := "progress"
	if event.State.Terminal() {
		name = "done"
	}
	_, err = fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", event.TotalEvals, name, data)
	return err
}
