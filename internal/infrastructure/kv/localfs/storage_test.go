package localfs

import (
	"path/filepath"
	"testing"
)

func TestReadBlobBeforeFirstWrite(t *testing.T) {
	store, err := New(filepath.Join(t.TempDir(), "cache.json"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	_, ok, err := store.ReadBlob()
	if err != nil {
		t.Fatalf("ReadBlob() error = %v", err)
	}
	if ok {
		t.Fatalf("expected no blob before first write")
	}
}

func TestWriteThenReadRoundTrip(t *testing.T) {
	store, err := New(filepath.Join(t.TempDir(), "nested", "cache.json"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if err := store.WriteBlob(`{"doc|full|":{"payload":"s"}}`); err != nil {
		t.Fatalf("WriteBlob() error = %v", err)
	}

	blob, ok, err := store.ReadBlob()
	if err != nil {
		t.Fatalf("ReadBlob() error = %v", err)
	}
	if !ok || blob != `{"doc|full|":{"payload":"s"}}` {
		t.Fatalf("got (%q, %v)", blob, ok)
	}
}

func TestWriteBlobOverwritesWhole(t *testing.T) {
	store, err := New(filepath.Join(t.TempDir(), "cache.json"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if err := store.WriteBlob("first version with more bytes"); err != nil {
		t.Fatalf("WriteBlob() error = %v", err)
	}
	if err := store.WriteBlob("second"); err != nil {
		t.Fatalf("WriteBlob() error = %v", err)
	}

	blob, _, err := store.ReadBlob()
	if err != nil {
		t.Fatalf("ReadBlob() error = %v", err)
	}
	if blob != "second" {
		t.Fatalf("blob = %q, want full overwrite", blob)
	}
}
