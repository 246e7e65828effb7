package ports

import (
	"context"
	"time"

	"github.com/kirillkom/docsync/internal/core/domain"
)

// StatusSource reports the remote pipeline's progress for a subject.
// Probe failures are classified with domain.ErrTransient / domain.ErrFatal.
type StatusSource interface {
	GetStatus(ctx context.Context, subjectID string) (domain.SubjectStatus, error)
}

// ArtifactGenerator produces a derived artifact on the remote service.
// Errors propagate to the caller uncached; the orchestrator never retries.
type ArtifactGenerator interface {
	Generate(ctx context.Context, subjectID, scope string) (string, error)
}

// PersistentKV abstracts the single-blob persistence medium behind the cache.
// ReadBlob returns ok=false when no blob has been written yet. A nil
// PersistentKV is legal: the cache degrades to memory-only, never fatal.
type PersistentKV interface {
	ReadBlob() (blob string, ok bool, err error)
	WriteBlob(blob string) error
}

// IdentityResolver derives the cache-isolation key from an opaque credential.
// A resolution failure yields "", collapsing that caller into the shared
// (non-isolated) namespace.
type IdentityResolver interface {
	CurrentOwnerID() string
}

// InvalidationFeed delivers upstream subject-lifecycle events so the client
// can drop cache entries for deleted or rewritten subjects.
type InvalidationFeed interface {
	PublishInvalidated(ctx context.Context, subjectID string) error
	Subscribe(ctx context.Context, handler func(context.Context, domain.SubjectEvent) error) error
}

// ArtifactCache is the owner-isolated, generation- and TTL-validated store
// for derived artifacts. Reads fail closed: every miss reason (absent,
// expired, owner mismatch, stale generation) yields ok=false, never an error.
type ArtifactCache interface {
	Get(subjectID, scope, ownerID string, currentGeneration int) (payload string, ok bool)
	Set(subjectID, scope, payload, ownerID string, ttl time.Duration, generation int)
	Remove(subjectID, scope, ownerID string)
	RemoveAllForSubject(subjectID, ownerID string)
	PurgeSubject(subjectID string)
	ClearAll()
	ClearForOwner(ownerID string)
	Stats(ownerID string) domain.CacheStats
}
