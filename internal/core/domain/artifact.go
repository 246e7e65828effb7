package domain

import "time"

// SubjectState mirrors the remote processing pipeline's view of a document.
type SubjectState string

const (
	StatePending SubjectState = "pending"
	StateReady   SubjectState = "ready"
	StateFailed  SubjectState = "failed"
)

// SubjectStatus is one probe's worth of remote truth about a subject.
// GenerationCounter is the authoritative mutation counter (processed-chunk
// count); it invalidates cached artifacts when the underlying content changes.
type SubjectStatus struct {
	State             SubjectState `json:"state"`
	GenerationCounter int          `json:"generation_counter"`
}

// GenerationUnknown disables the generation check on a cache read.
const GenerationUnknown = -1

// DefaultArtifactTTL bounds how long a cached artifact is served without
// regeneration even when its generation still matches.
const DefaultArtifactTTL = 24 * time.Hour

// CacheEntry is one persisted derived artifact. Timestamps are unix
// milliseconds to match the persisted blob layout.
type CacheEntry struct {
	Payload    string `json:"payload"`
	OwnerID    string `json:"ownerId,omitempty"`
	CreatedAt  int64  `json:"createdAt"`
	ExpiresAt  int64  `json:"expiresAt"`
	Generation int    `json:"generation"`
}

// Expired reports whether the entry's TTL has elapsed at the given instant.
func (e CacheEntry) Expired(now time.Time) bool {
	return now.UnixMilli() >= e.ExpiresAt
}

// ArtifactSource records whether a request was served from cache or by
// calling the remote generator.
type ArtifactSource string

const (
	SourceCache     ArtifactSource = "cache"
	SourceGenerated ArtifactSource = "generated"
)

// ArtifactResult is the outcome of a RequestArtifact call.
type ArtifactResult struct {
	Payload string         `json:"payload"`
	Source  ArtifactSource `json:"source"`
}

// CacheStats is a point-in-time summary of the persisted store.
type CacheStats struct {
	TotalEntries    int `json:"total_entries"`
	OwnerEntries    int `json:"owner_entries"`
	ExpiredEntries  int `json:"expired_entries"`
	ValidEntries    int `json:"valid_entries"`
	ApproxSizeBytes int `json:"approx_size_bytes"`
}
