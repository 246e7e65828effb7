package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/docsync/internal/core/domain"
	"github.com/kirillkom/docsync/internal/core/ports"
)

// SyncArtifactUseCase decides whether a derived artifact is served from the
// cache or regenerated on the remote service.
//
// Concurrent calls for the same key before the first generation resolves are
// not deduplicated: each proceeds independently and each populates the cache,
// last writer wins. The cache is advisory, so the duplicate work is wasted
// but never wrong.
type SyncArtifactUseCase struct {
	status    ports.StatusSource
	cache     ports.ArtifactCache
	generator ports.ArtifactGenerator
	identity  ports.IdentityResolver
	feed      ports.InvalidationFeed
	ttl       time.Duration
}

// NewSyncArtifactUseCase wires the orchestrator. identity and feed may be
// nil: without identity every caller shares one namespace, without feed
// invalidations are local-only. ttl <= 0 uses the default artifact TTL.
func NewSyncArtifactUseCase(
	status ports.StatusSource,
	cache ports.ArtifactCache,
	generator ports.ArtifactGenerator,
	identity ports.IdentityResolver,
	feed ports.InvalidationFeed,
	ttl time.Duration,
) *SyncArtifactUseCase {
	if ttl <= 0 {
		ttl = domain.DefaultArtifactTTL
	}
	return &SyncArtifactUseCase{
		status:    status,
		cache:     cache,
		generator: generator,
		identity:  identity,
		feed:      feed,
		ttl:       ttl,
	}
}

// RequestArtifact resolves the subject's current generation, consults the
// cache and falls back to remote generation on a miss. Generator errors
// propagate uncached; nothing is retried here.
func (uc *SyncArtifactUseCase) RequestArtifact(ctx context.Context, subjectID, scope string) (domain.ArtifactResult, error) {
	if subjectID == "" || scope == "" {
		return domain.ArtifactResult{}, domain.WrapError(domain.ErrInvalidInput, "request artifact",
			fmt.Errorf("subject %q scope %q", subjectID, scope))
	}

	ownerID := uc.ownerID()

	status, err := uc.status.GetStatus(ctx, subjectID)
	if err != nil {
		return domain.ArtifactResult{}, fmt.Errorf("resolve generation: %w", err)
	}
	generation := status.GenerationCounter

	if payload, ok := uc.cache.Get(subjectID, scope, ownerID, generation); ok {
		return domain.ArtifactResult{Payload: payload, Source: domain.SourceCache}, nil
	}

	payload, err := uc.generator.Generate(ctx, subjectID, scope)
	if err != nil {
		return domain.ArtifactResult{}, fmt.Errorf("generate artifact: %w", err)
	}

	uc.cache.Set(subjectID, scope, payload, ownerID, uc.ttl, generation)
	return domain.ArtifactResult{Payload: payload, Source: domain.SourceGenerated}, nil
}

// InvalidateSubject drops every cached artifact of a subject across all
// owner namespaces, then announces the invalidation best-effort.
func (uc *SyncArtifactUseCase) InvalidateSubject(ctx context.Context, subjectID string) error {
	if subjectID == "" {
		return domain.WrapError(domain.ErrInvalidInput, "invalidate subject", fmt.Errorf("empty subject id"))
	}

	uc.cache.PurgeSubject(subjectID)

	if uc.feed != nil {
		if err := uc.feed.PublishInvalidated(ctx, subjectID); err != nil {
			slog.Warn("invalidation_publish_failed", "subject_id", subjectID, "error", err)
		}
	}
	return nil
}

// ClearCache empties the caller's namespace, or the whole store for callers
// without a resolved owner.
func (uc *SyncArtifactUseCase) ClearCache(_ context.Context) error {
	ownerID := uc.ownerID()
	if ownerID == "" {
		uc.cache.ClearAll()
		return nil
	}
	uc.cache.ClearForOwner(ownerID)
	return nil
}

// CacheStats reports the store summary scoped to the caller's owner.
func (uc *SyncArtifactUseCase) CacheStats(_ context.Context) (domain.CacheStats, error) {
	return uc.cache.Stats(uc.ownerID()), nil
}

func (uc *SyncArtifactUseCase) ownerID() string {
	if uc.identity == nil {
		return ""
	}
	return uc.identity.CurrentOwnerID()
}
