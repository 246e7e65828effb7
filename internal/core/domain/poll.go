package domain

import "time"

// PollPhase is the lifecycle of one status poll.
type PollPhase string

const (
	PollIdle    PollPhase = "idle"
	PollPolling PollPhase = "polling"
	PollReady   PollPhase = "ready"
	PollFailed  PollPhase = "failed"
)

// Terminal reports whether no further transitions occur for this phase.
func (p PollPhase) Terminal() bool {
	return p == PollReady || p == PollFailed
}

// PollState is a snapshot of one subject's poll. At most one active
// (non-cancelled) PollState exists per subject.
type PollState struct {
	SubjectID string    `json:"subject_id"`
	Attempt   int       `json:"attempt"`
	Phase     PollPhase `json:"phase"`
	Cancelled bool      `json:"cancelled"`
	StartedAt time.Time `json:"started_at"`
}

// PollEvent is delivered to the watcher's callback on every transition.
// Events for a terminal phase are delivered exactly once; nothing follows.
type PollEvent struct {
	SubjectID string
	Attempt   int
	Phase     PollPhase
	Status    SubjectStatus
	Err       error
}
