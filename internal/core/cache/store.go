// Package cache implements the persisted artifact cache: one JSON blob of
// entries keyed by subject, scope and owner, validated on read against TTL,
// owner and the subject's current generation counter.
package cache

import (
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/kirillkom/docsync/internal/core/domain"
	"github.com/kirillkom/docsync/internal/core/ports"
)

// Store owns the persisted blob exclusively; callers never mutate entries
// directly. Every mutating call performs read-whole, mutate, write-whole.
// Writes are not atomic across concurrent processes: the cache is advisory,
// a lost write only costs a regeneration, never correctness.
type Store struct {
	mu  sync.Mutex
	kv  ports.PersistentKV
	mem map[string]domain.CacheEntry

	now func() time.Time
}

// New builds a store over the given persistence medium. kv may be nil, in
// which case the store is memory-only for the life of the process.
func New(kv ports.PersistentKV) *Store {
	return &Store{
		kv:  kv,
		mem: make(map[string]domain.CacheEntry),
		now: time.Now,
	}
}

func entryKey(subjectID, scope, ownerID string) string {
	return subjectID + "|" + scope + "|" + ownerID
}

func keySubject(key string) string {
	if i := strings.Index(key, "|"); i >= 0 {
		return key[:i]
	}
	return key
}

func keyOwner(key string) string {
	if i := strings.LastIndex(key, "|"); i >= 0 {
		return key[i+1:]
	}
	return ""
}

// load deserializes the whole store. A missing or unparseable blob is an
// empty store; corruption is logged and never surfaced.
func (s *Store) load() map[string]domain.CacheEntry {
	if s.kv == nil {
		return s.mem
	}
	blob, ok, err := s.kv.ReadBlob()
	if err != nil {
		slog.Warn("artifact_cache_read_failed", "error", err)
		return make(map[string]domain.CacheEntry)
	}
	if !ok || strings.TrimSpace(blob) == "" {
		return make(map[string]domain.CacheEntry)
	}
	entries := make(map[string]domain.CacheEntry)
	if err := json.Unmarshal([]byte(blob), &entries); err != nil {
		slog.Warn("artifact_cache_corrupt_blob", "error", err, "blob_bytes", len(blob))
		return make(map[string]domain.CacheEntry)
	}
	return entries
}

func (s *Store) persist(entries map[string]domain.CacheEntry) {
	if s.kv == nil {
		s.mem = entries
		return
	}
	blob, err := json.Marshal(entries)
	if err != nil {
		slog.Warn("artifact_cache_encode_failed", "error", err)
		return
	}
	if err := s.kv.WriteBlob(string(blob)); err != nil {
		slog.Warn("artifact_cache_write_failed", "error", err)
	}
}

// sweep drops every expired entry store-wide. Returns how many were evicted.
func (s *Store) sweep(entries map[string]domain.CacheEntry, now time.Time) int {
	evicted := 0
	for key, entry := range entries {
		if entry.Expired(now) {
			delete(entries, key)
			evicted++
		}
	}
	return evicted
}

// Get returns the cached payload for the key, or ok=false on any miss.
// Every read sweeps expired entries store-wide before evaluating the key.
// Pass domain.GenerationUnknown to skip the generation check; a generation
// mismatch removes the stale entry, not just the read.
func (s *Store) Get(subjectID, scope, ownerID string, currentGeneration int) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	entries := s.load()
	changed := s.sweep(entries, now) > 0

	key := entryKey(subjectID, scope, ownerID)
	entry, found := entries[key]

	payload := ""
	hit := false
	switch {
	case !found:
	case entry.OwnerID != "" && entry.OwnerID != ownerID:
	case currentGeneration != domain.GenerationUnknown && entry.Generation != currentGeneration:
		delete(entries, key)
		changed = true
	default:
		payload = entry.Payload
		hit = true
	}

	if changed {
		s.persist(entries)
	}
	return payload, hit
}

// Set unconditionally overwrites the entry for the key. A non-positive ttl
// falls back to domain.DefaultArtifactTTL.
func (s *Store) Set(subjectID, scope, payload, ownerID string, ttl time.Duration, generation int) {
	if ttl <= 0 {
		ttl = domain.DefaultArtifactTTL
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	entries := s.load()
	entries[entryKey(subjectID, scope, ownerID)] = domain.CacheEntry{
		Payload:    payload,
		OwnerID:    ownerID,
		CreatedAt:  now.UnixMilli(),
		ExpiresAt:  now.Add(ttl).UnixMilli(),
		Generation: generation,
	}
	s.persist(entries)
}

// Remove drops a single entry if present.
func (s *Store) Remove(subjectID, scope, ownerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.load()
	key := entryKey(subjectID, scope, ownerID)
	if _, found := entries[key]; !found {
		return
	}
	delete(entries, key)
	s.persist(entries)
}

// RemoveAllForSubject drops every scope of the subject within one owner
// namespace ("" is the shared namespace).
func (s *Store) RemoveAllForSubject(subjectID, ownerID string) {
	s.removeWhere(func(key string) bool {
		return keySubject(key) == subjectID && keyOwner(key) == ownerID
	})
}

// PurgeSubject drops every entry for the subject across all owners. Used
// when the subject is deleted upstream.
func (s *Store) PurgeSubject(subjectID string) {
	s.removeWhere(func(key string) bool {
		return keySubject(key) == subjectID
	})
}

// ClearAll empties the store.
func (s *Store) ClearAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.persist(make(map[string]domain.CacheEntry))
}

// ClearForOwner drops every entry in one owner namespace.
func (s *Store) ClearForOwner(ownerID string) {
	s.removeWhere(func(key string) bool {
		return keyOwner(key) == ownerID
	})
}

func (s *Store) removeWhere(match func(key string) bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.load()
	changed := false
	for key := range entries {
		if match(key) {
			delete(entries, key)
			changed = true
		}
	}
	if changed {
		s.persist(entries)
	}
}

// Stats summarizes the persisted store without evicting anything.
func (s *Store) Stats(ownerID string) domain.CacheStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	entries := s.load()

	stats := domain.CacheStats{TotalEntries: len(entries)}
	for key, entry := range entries {
		if keyOwner(key) == ownerID && ownerID != "" {
			stats.OwnerEntries++
		}
		if entry.Expired(now) {
			stats.ExpiredEntries++
		} else {
			stats.ValidEntries++
		}
	}
	if blob, err := json.Marshal(entries); err == nil {
		stats.ApproxSizeBytes = len(blob)
	}
	return stats
}
