package domain

// SubjectEventKind classifies upstream subject-lifecycle notifications.
type SubjectEventKind string

const (
	// EventSubjectDeleted: the subject is gone upstream; every cached
	// artifact for it must be dropped.
	EventSubjectDeleted SubjectEventKind = "deleted"
	// EventSubjectUpdated: the subject's content changed; cached artifacts
	// become generation-stale and are evicted lazily on the next read.
	EventSubjectUpdated SubjectEventKind = "updated"
)

// SubjectEvent is one message on the invalidation feed.
type SubjectEvent struct {
	Kind      SubjectEventKind `json:"event"`
	SubjectID string           `json:"subject_id"`
}
