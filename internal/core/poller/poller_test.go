package poller

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/kirillkom/docsync/internal/core/domain"
)

type probeResult struct {
	status domain.SubjectStatus
	err    error
}

type scriptedSource struct {
	mu      sync.Mutex
	results []probeResult
	calls   int
}

func (s *scriptedSource) GetStatus(context.Context, string) (domain.SubjectStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.calls
	s.calls++
	if idx >= len(s.results) {
		idx = len(s.results) - 1
	}
	r := s.results[idx]
	return r.status, r.err
}

func (s *scriptedSource) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// harness replaces real time: sleep records each delay and advances the fake
// clock by it, so budgets are exercised without waiting.
type harness struct {
	pl *Poller

	mu     sync.Mutex
	clock  time.Time
	delays []time.Duration
	events chan domain.PollEvent
}

func newHarness(source *scriptedSource) *harness {
	h := &harness{
		pl:     New(source),
		clock:  time.Unix(1_700_000_000, 0),
		events: make(chan domain.PollEvent, 256),
	}
	h.pl.now = func() time.Time {
		h.mu.Lock()
		defer h.mu.Unlock()
		return h.clock
	}
	h.pl.sleep = func(ctx context.Context, d time.Duration) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		h.mu.Lock()
		h.delays = append(h.delays, d)
		h.clock = h.clock.Add(d)
		h.mu.Unlock()
		return nil
	}
	return h
}

func (h *harness) start(subjectID string) {
	h.pl.Start(context.Background(), subjectID, func(e domain.PollEvent) {
		h.events <- e
	})
}

func (h *harness) waitTerminal(t *testing.T) domain.PollEvent {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case e := <-h.events:
			if e.Phase.Terminal() {
				return e
			}
		case <-deadline:
			t.Fatalf("no terminal event")
		}
	}
}

func (h *harness) recordedDelays() []time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]time.Duration, len(h.delays))
	copy(out, h.delays)
	return out
}

func pending() probeResult {
	return probeResult{status: domain.SubjectStatus{State: domain.StatePending}}
}

func transient() probeResult {
	return probeResult{err: domain.WrapError(domain.ErrTransient, "probe", errors.New("502"))}
}

func TestBackoffTable(t *testing.T) {
	want := []time.Duration{
		1000 * time.Millisecond,
		2000 * time.Millisecond,
		4000 * time.Millisecond,
		8000 * time.Millisecond,
		10000 * time.Millisecond,
		10000 * time.Millisecond,
	}
	for attempt, expected := range want {
		if got := probeDelay(attempt); got != expected {
			t.Fatalf("probeDelay(%d) = %v, want %v", attempt, got, expected)
		}
	}
}

func TestPendingThenReady(t *testing.T) {
	source := &scriptedSource{results: []probeResult{
		pending(), pending(), pending(), pending(),
		{status: domain.SubjectStatus{State: domain.StateReady, GenerationCounter: 3}},
	}}
	h := newHarness(source)

	h.start("doc7")
	final := h.waitTerminal(t)

	if final.Phase != domain.PollReady {
		t.Fatalf("phase = %s, want ready", final.Phase)
	}
	if final.Status.GenerationCounter != 3 {
		t.Fatalf("generation = %d, want 3", final.Status.GenerationCounter)
	}
	if got := source.callCount(); got != 5 {
		t.Fatalf("probes = %d, want 5", got)
	}

	wantDelays := []time.Duration{
		1000 * time.Millisecond,
		2000 * time.Millisecond,
		4000 * time.Millisecond,
		8000 * time.Millisecond,
	}
	delays := h.recordedDelays()
	if len(delays) != len(wantDelays) {
		t.Fatalf("delays = %v, want %v", delays, wantDelays)
	}
	for i := range wantDelays {
		if delays[i] != wantDelays[i] {
			t.Fatalf("delay[%d] = %v, want %v", i, delays[i], wantDelays[i])
		}
	}
}

func TestTransientOnlyFailsAtEleventhCall(t *testing.T) {
	source := &scriptedSource{results: []probeResult{transient()}}
	h := newHarness(source)

	h.start("doc1")
	final := h.waitTerminal(t)

	if final.Phase != domain.PollFailed {
		t.Fatalf("phase = %s, want failed", final.Phase)
	}
	if got := source.callCount(); got != 11 {
		t.Fatalf("probes = %d, want 11", got)
	}
	if final.Attempt != 10 {
		t.Fatalf("final attempt = %d, want 10", final.Attempt)
	}
	if !domain.IsKind(final.Err, domain.ErrTransient) {
		t.Fatalf("final err = %v, want transient kind", final.Err)
	}
}

func TestFatalProbeErrorStopsImmediately(t *testing.T) {
	source := &scriptedSource{results: []probeResult{
		{err: domain.WrapError(domain.ErrFatal, "probe", errors.New("410 gone"))},
	}}
	h := newHarness(source)

	h.start("doc1")
	final := h.waitTerminal(t)

	if final.Phase != domain.PollFailed {
		t.Fatalf("phase = %s, want failed", final.Phase)
	}
	if got := source.callCount(); got != 1 {
		t.Fatalf("probes = %d, want 1 (no retry on fatal)", got)
	}
}

func TestExplicitFailedStateStopsImmediately(t *testing.T) {
	source := &scriptedSource{results: []probeResult{
		{status: domain.SubjectStatus{State: domain.StateFailed}},
	}}
	h := newHarness(source)

	h.start("doc1")
	final := h.waitTerminal(t)

	if final.Phase != domain.PollFailed {
		t.Fatalf("phase = %s, want failed", final.Phase)
	}
	if got := source.callCount(); got != 1 {
		t.Fatalf("probes = %d, want 1", got)
	}
}

func TestReadyWithZeroCounterKeepsPolling(t *testing.T) {
	source := &scriptedSource{results: []probeResult{
		{status: domain.SubjectStatus{State: domain.StateReady, GenerationCounter: 0}},
		{status: domain.SubjectStatus{State: domain.StateReady, GenerationCounter: 2}},
	}}
	h := newHarness(source)

	h.start("doc1")
	final := h.waitTerminal(t)

	if final.Phase != domain.PollReady {
		t.Fatalf("phase = %s, want ready", final.Phase)
	}
	if got := source.callCount(); got != 2 {
		t.Fatalf("probes = %d, want 2 (ready with zero counter is not success)", got)
	}
}

func TestWallClockBudgetForcesFailed(t *testing.T) {
	source := &scriptedSource{results: []probeResult{pending()}}
	h := newHarness(source)

	h.start("doc1")
	final := h.waitTerminal(t)

	if final.Phase != domain.PollFailed {
		t.Fatalf("phase = %s, want failed", final.Phase)
	}
	// Delays sum 1+2+4+8 = 15s, then 10s each: the 63rd sleep crosses
	// 600s, so the probe at attempt 63 observes the exhausted budget.
	if got := source.callCount(); got != 64 {
		t.Fatalf("probes = %d, want 64", got)
	}
	if !domain.IsKind(final.Err, domain.ErrTransient) {
		t.Fatalf("final err = %v, want transient kind", final.Err)
	}
}

func TestCancelDuringBackoffSuppressesCallbacks(t *testing.T) {
	source := &scriptedSource{results: []probeResult{pending()}}
	h := newHarness(source)

	sleeping := make(chan struct{}, 1)
	release := make(chan struct{})
	h.pl.sleep = func(ctx context.Context, d time.Duration) error {
		sleeping <- struct{}{}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-release:
			return nil
		}
	}

	h.start("doc1")

	select {
	case <-sleeping:
	case <-time.After(2 * time.Second):
		t.Fatalf("poll never reached backoff")
	}
	// Drain the first progress event.
	<-h.events

	h.pl.Cancel("doc1")
	close(release)

	select {
	case e := <-h.events:
		t.Fatalf("callback after cancel: %+v", e)
	case <-time.After(100 * time.Millisecond):
	}

	state, found := h.pl.StateOf("doc1")
	if !found || !state.Cancelled {
		t.Fatalf("state = %+v, found = %v, want cancelled snapshot", state, found)
	}
}

func TestStartSupersedesExistingPoll(t *testing.T) {
	source := &scriptedSource{results: []probeResult{pending()}}
	h := newHarness(source)

	blocked := make(chan struct{}, 1)
	release := make(chan struct{})
	h.pl.sleep = func(ctx context.Context, d time.Duration) error {
		select {
		case blocked <- struct{}{}:
		default:
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-release:
			return nil
		}
	}

	h.start("doc1")
	select {
	case <-blocked:
	case <-time.After(2 * time.Second):
		t.Fatalf("first poll never reached backoff")
	}
	<-h.events

	// Second Start for the same subject cancels the first poll; only the
	// second one's callbacks may fire afterwards.
	readySource := &scriptedSource{results: []probeResult{
		{status: domain.SubjectStatus{State: domain.StateReady, GenerationCounter: 1}},
	}}
	h.pl.source = readySource
	h.start("doc1")

	final := h.waitTerminal(t)
	if final.Phase != domain.PollReady {
		t.Fatalf("phase = %s, want ready from superseding poll", final.Phase)
	}
	close(release)

	select {
	case e := <-h.events:
		t.Fatalf("event from superseded poll: %+v", e)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestStateOfTerminalSnapshot(t *testing.T) {
	source := &scriptedSource{results: []probeResult{
		{status: domain.SubjectStatus{State: domain.StateReady, GenerationCounter: 4}},
	}}
	h := newHarness(source)

	h.start("doc1")
	h.waitTerminal(t)

	state, found := h.pl.StateOf("doc1")
	if !found {
		t.Fatalf("no state after terminal")
	}
	if state.Phase != domain.PollReady {
		t.Fatalf("phase = %s, want ready", state.Phase)
	}
}
