package ports

import (
	"context"

	"github.com/kirillkom/docsync/internal/core/domain"
)

// ArtifactService is the inbound contract for cache-or-generate retrieval.
type ArtifactService interface {
	RequestArtifact(ctx context.Context, subjectID, scope string) (domain.ArtifactResult, error)
	InvalidateSubject(ctx context.Context, subjectID string) error
	ClearCache(ctx context.Context) error
	CacheStats(ctx context.Context) (domain.CacheStats, error)
}

// StatusWatcher is the inbound contract for tracking a subject until it
// reaches a terminal state.
type StatusWatcher interface {
	Start(ctx context.Context, subjectID string, callback func(domain.PollEvent))
	Cancel(subjectID string)
	StateOf(subjectID string) (domain.PollState, bool)
}
