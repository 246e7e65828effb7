package cache

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/kirillkom/docsync/internal/core/domain"
)

type kvFake struct {
	blob     string
	hasBlob  bool
	readErr  error
	writeErr error
	writes   int
}

func (f *kvFake) ReadBlob() (string, bool, error) {
	if f.readErr != nil {
		return "", false, f.readErr
	}
	return f.blob, f.hasBlob, nil
}

func (f *kvFake) WriteBlob(blob string) error {
	if f.writeErr != nil {
		return f.writeErr
	}
	f.blob = blob
	f.hasBlob = true
	f.writes++
	return nil
}

func newTestStore(kv *kvFake) (*Store, *time.Time) {
	var s *Store
	if kv == nil {
		s = New(nil)
	} else {
		s = New(kv)
	}
	now := time.Unix(1_700_000_000, 0)
	s.now = func() time.Time { return now }
	return s, &now
}

func TestGetHitWithMatchingGeneration(t *testing.T) {
	s, _ := newTestStore(&kvFake{})

	s.Set("doc42", "full", "Executive summary text", "u1", 24*time.Hour, 5)

	payload, ok := s.Get("doc42", "full", "u1", 5)
	if !ok {
		t.Fatalf("expected hit")
	}
	if payload != "Executive summary text" {
		t.Fatalf("payload = %q", payload)
	}
}

func TestGetGenerationMismatchRemovesEntry(t *testing.T) {
	s, _ := newTestStore(&kvFake{})

	s.Set("doc42", "full", "Executive summary text", "u1", 24*time.Hour, 5)

	if _, ok := s.Get("doc42", "full", "u1", 6); ok {
		t.Fatalf("expected miss on generation mismatch")
	}
	if stats := s.Stats("u1"); stats.TotalEntries != 0 {
		t.Fatalf("stale entry not removed, total=%d", stats.TotalEntries)
	}
}

func TestGetExpiredEntryMissesEvenWhenGenerationMatches(t *testing.T) {
	s, now := newTestStore(&kvFake{})

	s.Set("doc1", "full", "payload", "u1", time.Hour, 3)
	*now = now.Add(time.Hour)

	if _, ok := s.Get("doc1", "full", "u1", 3); ok {
		t.Fatalf("expected miss after ttl elapsed")
	}
}

func TestGetUnknownGenerationSkipsGenerationCheck(t *testing.T) {
	s, _ := newTestStore(&kvFake{})

	s.Set("doc1", "full", "payload", "u1", time.Hour, 7)

	if _, ok := s.Get("doc1", "full", "u1", domain.GenerationUnknown); !ok {
		t.Fatalf("expected hit when generation check disabled")
	}
}

func TestOwnerIsolation(t *testing.T) {
	s, _ := newTestStore(&kvFake{})

	s.Set("doc", "full", "text", "ownerA", time.Hour, 1)

	if _, ok := s.Get("doc", "full", "ownerB", 1); ok {
		t.Fatalf("ownerA entry visible to ownerB")
	}
	if _, ok := s.Get("doc", "full", "ownerA", 1); !ok {
		t.Fatalf("ownerA entry invisible to its own owner")
	}
}

func TestSweepOnAccessEvictsUnrelatedExpiredEntries(t *testing.T) {
	s, now := newTestStore(&kvFake{})

	s.Set("short", "full", "a", "", time.Minute, 1)
	s.Set("long", "full", "b", "", time.Hour, 1)
	*now = now.Add(10 * time.Minute)

	// Reading a different key still sweeps the whole store.
	if _, ok := s.Get("long", "full", "", 1); !ok {
		t.Fatalf("expected hit on unexpired key")
	}
	stats := s.Stats("")
	if stats.TotalEntries != 1 {
		t.Fatalf("expired entry survived sweep, total=%d", stats.TotalEntries)
	}
}

func TestSetOverwritesExistingEntry(t *testing.T) {
	s, _ := newTestStore(&kvFake{})

	s.Set("doc", "full", "old", "u1", time.Hour, 1)
	s.Set("doc", "full", "new", "u1", time.Hour, 2)

	payload, ok := s.Get("doc", "full", "u1", 2)
	if !ok || payload != "new" {
		t.Fatalf("got (%q, %v), want overwritten payload", payload, ok)
	}
	if stats := s.Stats("u1"); stats.TotalEntries != 1 {
		t.Fatalf("overwrite duplicated entry, total=%d", stats.TotalEntries)
	}
}

func TestCorruptBlobTreatedAsEmptyStore(t *testing.T) {
	kv := &kvFake{blob: "{not json", hasBlob: true}
	s, _ := newTestStore(kv)

	if _, ok := s.Get("doc", "full", "", domain.GenerationUnknown); ok {
		t.Fatalf("expected miss on corrupt blob")
	}

	// The store must remain usable after corruption.
	s.Set("doc", "full", "payload", "", time.Hour, 0)
	if _, ok := s.Get("doc", "full", "", 0); !ok {
		t.Fatalf("store unusable after corrupt blob")
	}
}

func TestNilKVDegradesToMemoryOnly(t *testing.T) {
	s, _ := newTestStore(nil)

	s.Set("doc", "full", "payload", "", time.Hour, 1)
	if _, ok := s.Get("doc", "full", "", 1); !ok {
		t.Fatalf("memory-only store lost entry")
	}
}

func TestReadErrorFailsClosed(t *testing.T) {
	kv := &kvFake{readErr: errors.New("medium gone")}
	s, _ := newTestStore(kv)

	if _, ok := s.Get("doc", "full", "", domain.GenerationUnknown); ok {
		t.Fatalf("expected miss when medium is unreadable")
	}
}

func TestRemoveAllForSubjectIsOwnerScoped(t *testing.T) {
	s, _ := newTestStore(&kvFake{})

	s.Set("doc", "full", "a", "u1", time.Hour, 1)
	s.Set("doc", "short", "b", "u1", time.Hour, 1)
	s.Set("doc", "full", "c", "u2", time.Hour, 1)

	s.RemoveAllForSubject("doc", "u1")

	if _, ok := s.Get("doc", "full", "u1", 1); ok {
		t.Fatalf("u1 entry survived subject removal")
	}
	if _, ok := s.Get("doc", "full", "u2", 1); !ok {
		t.Fatalf("u2 entry dropped by u1-scoped removal")
	}
}

func TestPurgeSubjectDropsAllOwners(t *testing.T) {
	s, _ := newTestStore(&kvFake{})

	s.Set("doc", "full", "a", "u1", time.Hour, 1)
	s.Set("doc", "full", "b", "u2", time.Hour, 1)
	s.Set("other", "full", "c", "u1", time.Hour, 1)

	s.PurgeSubject("doc")

	if stats := s.Stats(""); stats.TotalEntries != 1 {
		t.Fatalf("purge left total=%d, want 1", stats.TotalEntries)
	}
	if _, ok := s.Get("other", "full", "u1", 1); !ok {
		t.Fatalf("unrelated subject purged")
	}
}

func TestClearForOwner(t *testing.T) {
	s, _ := newTestStore(&kvFake{})

	s.Set("doc1", "full", "a", "u1", time.Hour, 1)
	s.Set("doc2", "full", "b", "u1", time.Hour, 1)
	s.Set("doc1", "full", "c", "", time.Hour, 1)

	s.ClearForOwner("u1")

	if _, ok := s.Get("doc1", "full", "", 1); !ok {
		t.Fatalf("shared-namespace entry dropped")
	}
	if stats := s.Stats("u1"); stats.OwnerEntries != 0 {
		t.Fatalf("owner entries survived clear, got %d", stats.OwnerEntries)
	}
}

func TestStatsCountsExpiredAndValid(t *testing.T) {
	s, now := newTestStore(&kvFake{})

	s.Set("doc1", "full", "a", "u1", time.Minute, 1)
	s.Set("doc2", "full", "bb", "u1", time.Hour, 1)
	s.Set("doc3", "full", "ccc", "", time.Hour, 1)
	*now = now.Add(10 * time.Minute)

	stats := s.Stats("u1")
	if stats.TotalEntries != 3 {
		t.Fatalf("total = %d, want 3", stats.TotalEntries)
	}
	if stats.OwnerEntries != 2 {
		t.Fatalf("owner = %d, want 2", stats.OwnerEntries)
	}
	if stats.ExpiredEntries != 1 {
		t.Fatalf("expired = %d, want 1", stats.ExpiredEntries)
	}
	if stats.ValidEntries != 2 {
		t.Fatalf("valid = %d, want 2", stats.ValidEntries)
	}
	if stats.ApproxSizeBytes == 0 {
		t.Fatalf("approx size not reported")
	}
}

func TestPersistedLayoutUsesCompositeKeys(t *testing.T) {
	kv := &kvFake{}
	s, _ := newTestStore(kv)

	s.Set("doc42", "full", "payload", "u1", time.Hour, 5)

	if !strings.Contains(kv.blob, `"doc42|full|u1"`) {
		t.Fatalf("blob missing composite key: %s", kv.blob)
	}
	for _, field := range []string{`"payload"`, `"createdAt"`, `"expiresAt"`, `"generation"`, `"ownerId"`} {
		if !strings.Contains(kv.blob, field) {
			t.Fatalf("blob missing field %s: %s", field, kv.blob)
		}
	}
}
