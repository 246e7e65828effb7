// Package poller tracks remote processing of a subject until it reaches a
// terminal state, probing the status source under capped exponential backoff.
package poller

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/kirillkom/docsync/internal/core/domain"
	"github.com/kirillkom/docsync/internal/core/ports"
)

const (
	// maxTransientRetries bounds consecutive-or-not transient probe
	// failures; exceeding it forces Failed.
	maxTransientRetries = 10

	// pollBudget is the wall-clock ceiling per poll; elapsing forces Failed
	// regardless of the attempt count. Whichever budget fires first wins.
	pollBudget = 600 * time.Second
)

var (
	errRetryBudget     = errors.New("transient retry budget exhausted")
	errWallClockBudget = errors.New("wall-clock budget exhausted")
)

// Capped exponential backoff, no jitter.
var probeDelays = []time.Duration{
	1000 * time.Millisecond,
	2000 * time.Millisecond,
	4000 * time.Millisecond,
	8000 * time.Millisecond,
	10000 * time.Millisecond,
}

func probeDelay(attempt int) time.Duration {
	if attempt >= len(probeDelays) {
		attempt = len(probeDelays) - 1
	}
	if attempt < 0 {
		attempt = 0
	}
	return probeDelays[attempt]
}

type poll struct {
	state             domain.PollState
	transientFailures int
	active            bool
	cancel            context.CancelFunc
}

// Poller runs at most one active poll per subject. Probes within a poll are
// strictly sequential; different subjects interleave freely.
type Poller struct {
	source ports.StatusSource

	mu    sync.Mutex
	polls map[string]*poll

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// New builds a poller over the given status source.
func New(source ports.StatusSource) *Poller {
	return &Poller{
		source: source,
		polls:  make(map[string]*poll),
		now:    time.Now,
		sleep:  sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Start begins polling the subject. Any existing poll for the same subject
// is cancelled first, so no two timers or in-flight probes overlap for one
// subject. The callback fires on every transition; Ready and Failed are
// terminal and fire exactly once.
func (pl *Poller) Start(ctx context.Context, subjectID string, callback func(domain.PollEvent)) {
	if callback == nil {
		callback = func(domain.PollEvent) {}
	}

	pl.mu.Lock()
	if existing, found := pl.polls[subjectID]; found {
		pl.cancelLocked(existing)
	}

	pollCtx, cancel := context.WithCancel(ctx)
	p := &poll{
		state: domain.PollState{
			SubjectID: subjectID,
			Phase:     domain.PollPolling,
			StartedAt: pl.now(),
		},
		active: true,
		cancel: cancel,
	}
	pl.polls[subjectID] = p
	pl.mu.Unlock()

	go pl.run(pollCtx, p, callback)
}

// Cancel stops the subject's poll. After Cancel returns, no further callback
// fires for that poll, including from a probe already in flight.
func (pl *Poller) Cancel(subjectID string) {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	if p, found := pl.polls[subjectID]; found {
		pl.cancelLocked(p)
	}
}

func (pl *Poller) cancelLocked(p *poll) {
	if p.state.Phase.Terminal() || p.state.Cancelled {
		p.cancel()
		return
	}
	p.active = false
	p.state.Cancelled = true
	p.cancel()
}

// StateOf returns a snapshot of the subject's last known poll state.
func (pl *Poller) StateOf(subjectID string) (domain.PollState, bool) {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	p, found := pl.polls[subjectID]
	if !found {
		return domain.PollState{}, false
	}
	return p.state, true
}

func (pl *Poller) run(ctx context.Context, p *poll, callback func(domain.PollEvent)) {
	subjectID := p.state.SubjectID
	started := p.state.StartedAt

	for attempt := 0; ; attempt++ {
		pl.setAttempt(p, attempt)

		status, err := pl.source.GetStatus(ctx, subjectID)

		// A response landing after cancellation causes no transition.
		if !pl.stillActive(p) {
			return
		}

		switch {
		case err != nil && domain.IsKind(err, domain.ErrFatal):
			pl.finish(p, domain.PollFailed, status, err, callback)
			return
		case err == nil && status.State == domain.StateFailed:
			pl.finish(p, domain.PollFailed, status,
				domain.WrapError(domain.ErrFatal, "poll", errors.New("remote processing failed")), callback)
			return
		case err == nil && status.State == domain.StateReady && status.GenerationCounter > 0:
			pl.finish(p, domain.PollReady, status, nil, callback)
			return
		}

		// Still pending, or a transient transport error: keep polling
		// under the two budgets.
		if err != nil {
			slog.Debug("status_probe_transient", "subject_id", subjectID, "attempt", attempt, "error", err)
			if pl.bumpTransient(p) > maxTransientRetries {
				pl.finish(p, domain.PollFailed, status,
					domain.WrapError(domain.ErrTransient, "poll", errRetryBudget), callback)
				return
			}
		}

		callback(domain.PollEvent{
			SubjectID: subjectID,
			Attempt:   attempt,
			Phase:     domain.PollPolling,
			Status:    status,
			Err:       err,
		})

		if pl.now().Sub(started) >= pollBudget {
			pl.finish(p, domain.PollFailed, status,
				domain.WrapError(domain.ErrTransient, "poll", errWallClockBudget), callback)
			return
		}

		if err := pl.sleep(ctx, probeDelay(attempt)); err != nil {
			return
		}
		if !pl.stillActive(p) {
			return
		}
	}
}

func (pl *Poller) setAttempt(p *poll, attempt int) {
	pl.mu.Lock()
	p.state.Attempt = attempt
	pl.mu.Unlock()
}

func (pl *Poller) bumpTransient(p *poll) int {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	p.transientFailures++
	return p.transientFailures
}

func (pl *Poller) stillActive(p *poll) bool {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	return p.active
}

func (pl *Poller) finish(p *poll, phase domain.PollPhase, status domain.SubjectStatus, err error, callback func(domain.PollEvent)) {
	pl.mu.Lock()
	if !p.active {
		pl.mu.Unlock()
		return
	}
	p.active = false
	p.state.Phase = phase
	attempt := p.state.Attempt
	subjectID := p.state.SubjectID
	p.cancel()
	pl.mu.Unlock()

	if phase == domain.PollFailed {
		slog.Info("poll_failed", "subject_id", subjectID, "attempt", attempt, "error", err)
	} else {
		slog.Info("poll_ready", "subject_id", subjectID, "attempt", attempt, "generation", status.GenerationCounter)
	}

	callback(domain.PollEvent{
		SubjectID: subjectID,
		Attempt:   attempt,
		Phase:     phase,
		Status:    status,
		Err:       err,
	})
}
