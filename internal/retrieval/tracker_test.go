package retrieval

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/kozaktomas/sketch-match/internal/constants"
	"github.com/kozaktomas/sketch-match/internal/database"
	"github.com/kozaktomas/sketch-match/internal/faceapi"
	"github.com/kozaktomas/sketch-match/internal/metrics"
)

// gatedRunner returns a result per digital image name once that name's gate is closed.
// It ignores cancellation to simulate a response arriving late.
type gatedRunner struct {
	mu      sync.Mutex
	gates   map[string]chan struct{}
	results map[string]AggregationResult
	errs    map[string]error
}

func (r *gatedRunner) Run(_ context.Context, in Inputs) (AggregationResult, error) {
	name := in.Digital.Name
	r.mu.Lock()
	gate := r.gates[name]
	r.mu.Unlock()
	if gate != nil {
		<-gate
	}
	if err := r.errs[name]; err != nil {
		return errorResult(err), err
	}
	return r.results[name], nil
}

func named(name string) Inputs {
	in := inputs("digital", "actual")
	in.Digital.Name = name
	return in
}

func waitForState(t *testing.T, ch <-chan Snapshot, want State) Snapshot {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case snap, ok := <-ch:
			if !ok {
				t.Fatalf("listener closed before state %s", want)
			}
			if snap.State == want {
				return snap
			}
		case <-timeout:
			t.Fatalf("timed out waiting for state %s", want)
		}
	}
}

func successWith(id string) AggregationResult {
	return AggregationResult{Status: StatusSuccess, Matches: []RankedResult{
		{DetailRecord: database.DetailRecord{ImageID: id}, Similarity: 0.9, Source: SourceDigital},
	}}
}

func TestTracker_Transitions(t *testing.T) {
	runner := &gatedRunner{
		gates:   map[string]chan struct{}{"a": make(chan struct{})},
		results: map[string]AggregationResult{"a": successWith("id1")},
	}
	tr := NewTracker(runner)

	ch, initial := tr.Subscribe()
	defer tr.Unsubscribe(ch)
	if initial.State != StateIdle {
		t.Fatalf("expected idle, got %s", initial.State)
	}

	token := tr.Start(context.Background(), named("a"))
	loading := waitForState(t, ch, StateLoading)
	if loading.Invocation != token || loading.Result != nil {
		t.Errorf("unexpected loading snapshot %+v", loading)
	}

	close(runner.gates["a"])
	done := waitForState(t, ch, StateSuccess)
	if done.Result == nil || done.Result.Matches[0].ImageID != "id1" {
		t.Errorf("unexpected result %+v", done.Result)
	}
	if !done.State.Terminal() {
		t.Error("success should be terminal")
	}
}

func TestTracker_StaleInvocationIsDiscarded(t *testing.T) {
	before := testutil.ToFloat64(metrics.RetrievalStaleTotal)

	runner := &gatedRunner{
		gates: map[string]chan struct{}{
			"a": make(chan struct{}),
			"b": make(chan struct{}),
		},
		results: map[string]AggregationResult{
			"a": successWith("from-a"),
			"b": successWith("from-b"),
		},
	}
	tr := NewTracker(runner)
	ch, _ := tr.Subscribe()
	defer tr.Unsubscribe(ch)

	tr.Start(context.Background(), named("a"))
	tokenB := tr.Start(context.Background(), named("b"))

	close(runner.gates["b"])
	waitForState(t, ch, StateSuccess)

	close(runner.gates["a"])
	tr.Wait()

	snap := tr.Snapshot()
	if snap.Invocation != tokenB {
		t.Errorf("expected invocation %d, got %d", tokenB, snap.Invocation)
	}
	if snap.Result == nil || snap.Result.Matches[0].ImageID != "from-b" {
		t.Errorf("stale result overwrote the newer one: %+v", snap.Result)
	}
	if got := testutil.ToFloat64(metrics.RetrievalStaleTotal) - before; got != 1 {
		t.Errorf("expected 1 stale discard, got %v", got)
	}
}

func TestTracker_StaleDetailFetchThroughPipeline(t *testing.T) {
	sim := &stubSimilarity{results: map[string][]faceapi.Match{
		"digital-a": {{ImageID: "old", Similarity: 0.9}},
		"digital-b": {{ImageID: "new", Similarity: 0.8}},
	}}
	det := &stubDetails{
		results: map[string][]database.DetailRecord{
			"old": {{ImageID: "old", Offense: "stale"}},
			"new": {{ImageID: "new", Offense: "fresh"}},
		},
		gates: map[string]chan struct{}{"old": make(chan struct{})},
	}
	tr := NewTracker(NewPipeline(&countingNormalizer{}, sim, det, nil))
	ch, _ := tr.Subscribe()
	defer tr.Unsubscribe(ch)

	tr.Start(context.Background(), inputs("digital-a", "actual"))
	waitForDetailCall(t, det, "old")
	tr.Start(context.Background(), inputs("digital-b", "actual"))

	snap := waitForState(t, ch, StateSuccess)
	close(det.gates["old"])
	tr.Wait()

	final := tr.Snapshot()
	if final.Invocation != snap.Invocation {
		t.Fatalf("expected invocation %d to stay current, got %d", snap.Invocation, final.Invocation)
	}
	if final.Result == nil || len(final.Result.Matches) != 1 || final.Result.Matches[0].Offense != "fresh" {
		t.Errorf("expected fresh result, got %+v", final.Result)
	}
}

func waitForDetailCall(t *testing.T, det *stubDetails, id string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		det.mu.Lock()
		for _, ids := range det.requested {
			if len(ids) == 1 && ids[0] == id {
				det.mu.Unlock()
				return
			}
		}
		det.mu.Unlock()
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("detail fetch for %s never started", id)
}

func TestTracker_ErrorState(t *testing.T) {
	runner := &gatedRunner{errs: map[string]error{"a": ErrDetailServiceUnavailable}}
	tr := NewTracker(runner)
	ch, _ := tr.Subscribe()
	defer tr.Unsubscribe(ch)

	tr.Start(context.Background(), named("a"))
	snap := waitForState(t, ch, StateError)
	if snap.Result == nil || snap.Result.Error == "" || snap.Result.Status != StatusError {
		t.Errorf("expected error result, got %+v", snap.Result)
	}
}

func TestTracker_CancelResetsToIdle(t *testing.T) {
	runner := &gatedRunner{
		gates:   map[string]chan struct{}{"a": make(chan struct{})},
		results: map[string]AggregationResult{"a": successWith("id1")},
	}
	tr := NewTracker(runner)
	tr.Start(context.Background(), named("a"))
	tr.Cancel()

	close(runner.gates["a"])
	tr.Wait()

	if snap := tr.Snapshot(); snap.State != StateIdle || snap.Result != nil {
		t.Errorf("expected idle after cancel, got %+v", snap)
	}
}

func TestTracker_UnsubscribeClosesChannel(t *testing.T) {
	tr := NewTracker(&gatedRunner{})
	ch, _ := tr.Subscribe()
	tr.Unsubscribe(ch)

	if _, ok := <-ch; ok {
		t.Error("expected closed channel")
	}
}

func TestTracker_FullListenerStillGetsTerminalSnapshot(t *testing.T) {
	runner := &gatedRunner{results: map[string]AggregationResult{"a": successWith("id1")}}
	tr := NewTracker(runner)
	ch, _ := tr.Subscribe()
	defer tr.Unsubscribe(ch)

	for range constants.EventChannelBuffer + 5 {
		tr.Cancel()
	}
	tr.Start(context.Background(), named("a"))
	tr.Wait()

	var last Snapshot
	n := 0
	for drained := false; !drained; {
		select {
		case snap := <-ch:
			last = snap
			n++
		default:
			drained = true
		}
	}
	if n != constants.EventChannelBuffer {
		t.Errorf("expected a full buffer of %d snapshots, got %d", constants.EventChannelBuffer, n)
	}
	if last.State != StateSuccess {
		t.Errorf("expected the newest snapshot to be success, got %s", last.State)
	}
}

func TestRegistry(t *testing.T) {
	runner := &gatedRunner{
		gates:   map[string]chan struct{}{"a": make(chan struct{})},
		results: map[string]AggregationResult{"a": successWith("id1")},
	}
	reg := NewRegistry(runner)

	first := reg.Get("session-1")
	if reg.Get("session-1") != first {
		t.Error("expected the same tracker for the same key")
	}
	if reg.Get("session-2") == first {
		t.Error("expected separate trackers per key")
	}
	if reg.Lookup("missing") != nil {
		t.Error("Lookup should not create trackers")
	}

	first.Start(context.Background(), named("a"))
	close(runner.gates["a"])
	reg.Shutdown()

	if snap := first.Snapshot(); snap.State != StateIdle {
		t.Errorf("expected idle after shutdown, got %s", snap.State)
	}

	reg.Remove("session-1")
	if reg.Lookup("session-1") != nil {
		t.Error("expected tracker removed")
	}
}

func TestState_Terminal(t *testing.T) {
	tests := []struct {
		state State
		want  bool
	}{
		{StateIdle, false},
		{StateLoading, false},
		{StateSuccess, true},
		{StateNoMatches, true},
		{StateError, true},
	}
	for _, tt := range tests {
		if got := tt.state.Terminal(); got != tt.want {
			t.Errorf("%s.Terminal() = %v, want %v", tt.state, got, tt.want)
		}
	}
}
