package retrieval

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/kozaktomas/sketch-match/internal/constants"
	"github.com/kozaktomas/sketch-match/internal/logging"
	"github.com/kozaktomas/sketch-match/internal/metrics"
)

// State is the tracker's view of the current invocation.
type State string

const (
	StateIdle      State = "idle"
	StateLoading   State = "loading"
	StateSuccess   State = "success"
	StateNoMatches State = "no_matches"
	StateError     State = "error"
)

// Terminal reports whether no further transition follows without a new invocation.
func (s State) Terminal() bool {
	return s == StateSuccess || s == StateNoMatches || s == StateError
}

// Snapshot is the committed state of a tracker.
type Snapshot struct {
	Invocation uint64             `json:"invocation"`
	State      State              `json:"state"`
	Result     *AggregationResult `json:"result,omitempty"`
}

// Tracker runs aggregations for one caller and keeps only the newest outcome.
// Each Start takes a new invocation token and cancels the previous run; a run
// commits its result only while its token is still current.
type Tracker struct {
	runner Runner

	mu        sync.RWMutex
	token     uint64
	state     State
	result    *AggregationResult
	cancel    context.CancelFunc
	listeners []chan Snapshot

	inflight sync.WaitGroup
}

// NewTracker creates an idle tracker.
func NewTracker(runner Runner) *Tracker {
	return &Tracker{runner: runner, state: StateIdle}
}

// Start begins a new invocation and returns its token. The run is detached
// from ctx cancellation but keeps its values (logger).
func (t *Tracker) Start(ctx context.Context, in Inputs) uint64 {
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	t.mu.Lock()
	if t.cancel != nil {
		t.cancel()
	}
	t.token++
	token := t.token
	t.cancel = cancel
	t.state = StateLoading
	t.result = nil
	t.broadcastLocked()
	t.inflight.Add(1)
	t.mu.Unlock()

	go func() {
		defer t.inflight.Done()
		defer cancel()
		res, err := t.runner.Run(runCtx, in)
		if !t.commit(token, res, err) {
			metrics.RetrievalStaleTotal.Inc()
			logging.FromContext(runCtx).Debug("discarded stale retrieval", zap.Uint64("invocation", token))
		}
	}()

	return token
}

// commit stores the outcome if token is still the newest invocation.
func (t *Tracker) commit(token uint64, res AggregationResult, err error) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if token != t.token {
		return false
	}

	if err != nil {
		res = errorResult(err)
	}
	switch res.Status {
	case StatusSuccess:
		t.state = StateSuccess
	case StatusNoMatches:
		t.state = StateNoMatches
	default:
		t.state = StateError
	}
	t.result = &res
	t.cancel = nil
	t.broadcastLocked()
	return true
}

// Snapshot returns the committed state.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.snapshotLocked()
}

func (t *Tracker) snapshotLocked() Snapshot {
	return Snapshot{Invocation: t.token, State: t.state, Result: t.result}
}

// Subscribe registers a listener for state transitions and returns it with
// the state at the time of subscription.
func (t *Tracker) Subscribe() (<-chan Snapshot, Snapshot) {
	t.mu.Lock()
	defer t.mu.Unlock()
	ch := make(chan Snapshot, constants.EventChannelBuffer)
	t.listeners = append(t.listeners, ch)
	return ch, t.snapshotLocked()
}

// Unsubscribe removes and closes a listener.
func (t *Tracker) Unsubscribe(ch <-chan Snapshot) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, listener := range t.listeners {
		if listener == ch {
			t.listeners = append(t.listeners[:i], t.listeners[i+1:]...)
			close(listener)
			return
		}
	}
}

func (t *Tracker) broadcastLocked() {
	snap := t.snapshotLocked()
	for _, listener := range t.listeners {
		select {
		case listener <- snap:
			continue
		default:
		}
		// Buffer full: drop the oldest pending snapshot so the newest,
		// possibly terminal, one is always delivered. Senders hold t.mu,
		// so the slot freed here stays free.
		select {
		case <-listener:
		default:
		}
		listener <- snap
	}
}

// Cancel aborts the current invocation, if any. Its result will be discarded.
func (t *Tracker) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
	t.token++
	t.state = StateIdle
	t.result = nil
	t.broadcastLocked()
}

// Wait blocks until every started invocation has returned.
func (t *Tracker) Wait() {
	t.inflight.Wait()
}

// Registry holds one tracker per key (a session or user id).
type Registry struct {
	runner   Runner
	mu       sync.Mutex
	trackers map[string]*Tracker
}

// NewRegistry creates an empty registry whose trackers share runner.
func NewRegistry(runner Runner) *Registry {
	return &Registry{runner: runner, trackers: make(map[string]*Tracker)}
}

// Get returns the tracker for key, creating it on first use.
func (r *Registry) Get(key string) *Tracker {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.trackers[key]
	if !ok {
		t = NewTracker(r.runner)
		r.trackers[key] = t
	}
	return t
}

// Lookup returns the tracker for key or nil.
func (r *Registry) Lookup(key string) *Tracker {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.trackers[key]
}

// Remove cancels and forgets the tracker for key.
func (r *Registry) Remove(key string) {
	r.mu.Lock()
	t := r.trackers[key]
	delete(r.trackers, key)
	r.mu.Unlock()
	if t != nil {
		t.Cancel()
	}
}

// Shutdown cancels every tracker and waits for their runs to return.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	trackers := make([]*Tracker, 0, len(r.trackers))
	for _, t := range r.trackers {
		trackers = append(trackers, t)
	}
	r.mu.Unlock()

	for _, t := range trackers {
		t.Cancel()
	}
	for _, t := range trackers {
		t.Wait()
	}
}
