// Package postgres persists the cache blob in a single-row table, for
// deployments where the client cache should survive host reprovisioning.
// The whole-blob read-modify-write semantics match the file-backed store.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

const blobRowID = 1

type BlobStore struct {
	db      *sql.DB
	timeout time.Duration
}

func NewBlobStore(db *sql.DB) *BlobStore {
	return &BlobStore{db: db, timeout: 5 * time.Second}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (s *BlobStore) EnsureSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across client instances.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026052801)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS artifact_cache_blob (
	id INT PRIMARY KEY,
	blob TEXT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

// ReadBlob returns the stored blob, or ok=false when none has been written.
func (s *BlobStore) ReadBlob() (string, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	var blob string
	err := s.db.QueryRowContext(ctx, `SELECT blob FROM artifact_cache_blob WHERE id = $1`, blobRowID).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("select cache blob: %w", err)
	}
	return blob, true, nil
}

// WriteBlob replaces the stored blob in full.
func (s *BlobStore) WriteBlob(blob string) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `
INSERT INTO artifact_cache_blob (id, blob, updated_at) VALUES ($1, $2, $3)
ON CONFLICT (id) DO UPDATE SET blob = EXCLUDED.blob, updated_at = EXCLUDED.updated_at
`, blobRowID, blob, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("upsert cache blob: %w", err)
	}
	return nil
}
