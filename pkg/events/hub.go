package events

import (
	"context"
	"sync"
	"time"
)

// DefaultPollInterval is how long a drained subscriber sleeps before
// re-checking its queue.
const DefaultPollInterval = 100 * time.Millisecond

// Source answers state questions about a job during streaming. The hub
// never inspects job internals itself; engines implement Source over
// their own state maps.
type Source interface {
	// Snapshot returns the job's full-state envelope. terminal reports
	// whether the job has finished; ok is false when the job is unknown.
	Snapshot(jobID string) (snap Event, terminal bool, ok bool)
}

// EmitFunc receives each envelope on a stream. Returning an error stops
// the stream; the hub propagates the error to the Stream caller.
type EmitFunc func(Event) error

type subscriber struct {
	queue []Event
}

// Hub is the per-job fan-out point. One mutex guards every queue; publish
// is O(subscribers) map-append work and never blocks on a slow consumer.
type Hub struct {
	mu   sync.Mutex
	subs map[string]map[*subscriber]struct{}

	interval time.Duration
}

// NewHub returns a hub polling at DefaultPollInterval.
func NewHub() *Hub {
	return &Hub{
		subs:     make(map[string]map[*subscriber]struct{}),
		interval: DefaultPollInterval,
	}
}

// SetPollInterval overrides the drain interval. Tests use this to keep
// streaming assertions fast.
func (h *Hub) SetPollInterval(d time.Duration) {
	if d > 0 {
		h.interval = d
	}
}

// Publish appends a copy of the envelope to every queue subscribed to the
// job. Publishing to a job with no subscribers is a no-op.
func (h *Hub) Publish(jobID string, ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs[jobID] {
		sub.queue = append(sub.queue, ev.copyPayload())
	}
}

// HasSubscribers reports whether anyone is streaming the job. Engines use
// this to skip building progress envelopes nobody would receive.
func (h *Hub) HasSubscribers(jobID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[jobID]) > 0
}

func (h *Hub) register(jobID string) *subscriber {
	sub := &subscriber{}
	h.mu.Lock()
	if h.subs[jobID] == nil {
		h.subs[jobID] = make(map[*subscriber]struct{})
	}
	h.subs[jobID][sub] = struct{}{}
	h.mu.Unlock()
	return sub
}

func (h *Hub) deregister(jobID string, sub *subscriber) {
	h.mu.Lock()
	delete(h.subs[jobID], sub)
	if len(h.subs[jobID]) == 0 {
		delete(h.subs, jobID)
	}
	h.mu.Unlock()
}

func (h *Hub) drain(sub *subscriber) []Event {
	h.mu.Lock()
	queued := sub.queue
	sub.queue = nil
	h.mu.Unlock()
	return queued
}

// Stream delivers a job's envelopes to emit until the job reaches a
// terminal state, the job disappears, emit fails, or ctx is cancelled.
//
// The stream opens with a full-state snapshot from src. If the job already
// finished before the subscriber attached, the snapshot doubles as the
// terminal envelope and the stream ends immediately. An unknown job id
// yields a single error envelope.
//
// Queued envelopes are always flushed before the terminal check, so a
// subscriber never loses progress published in the job's final moments.
//
// Parameters:
//   - ctx: Cancels the stream; client disconnects arrive this way
//   - jobID: Job to follow
//   - src: State source for the snapshot and terminal detection
//   - emit: Sink for each envelope
//
// Returns:
//   - error: emit failure or ctx.Err(); normal termination returns nil
func (h *Hub) Stream(ctx context.Context, jobID string, src Source, emit EmitFunc) error {
	snap, terminal, ok := src.Snapshot(jobID)
	if !ok {
		return emit(New(TypeError).With("error", "Job not found"))
	}

	sub := h.register(jobID)
	defer h.deregister(jobID, sub)

	if err := emit(snap); err != nil {
		return err
	}
	if terminal {
		return nil
	}

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		for _, ev := range h.drain(sub) {
			if err := emit(ev); err != nil {
				return err
			}
			if ev.Terminal {
				return nil
			}
		}

		snap, terminal, ok = src.Snapshot(jobID)
		if !ok {
			return emit(New(TypeError).With("error", "Job not found"))
		}
		if terminal {
			// The engine finished without a terminal envelope reaching
			// this queue (it may have attached mid-transition). Flush
			// anything published since the drain, then close with the
			// full snapshot.
			for _, ev := range h.drain(sub) {
				if err := emit(ev); err != nil {
					return err
				}
				if ev.Terminal {
					return nil
				}
			}
			return emit(snap)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
