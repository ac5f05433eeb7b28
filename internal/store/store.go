// Package store persists firmware/bytecode images in SQLite, one active
// image per named storage slot.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Sentinel errors
var (
	ErrNotFound = errors.New("not found")
)

// isBusyLock reports whether err indicates SQLite database lock (SQLITE_BUSY).
// Handles wrapped errors from database/sql.
func isBusyLock(err error) bool {
	if err == nil {
		return false
	}
	s := err.Error()
	return strings.Contains(s, "database is locked") || strings.Contains(s, "SQLITE_BUSY")
}

// retryOnBusy runs fn and retries on SQLITE_BUSY with exponential backoff.
func retryOnBusy(fn func() error) error {
	const maxAttempts = 4
	backoff := 25 * time.Millisecond
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		lastErr = fn()
		if lastErr == nil || !isBusyLock(lastErr) {
			return lastErr
		}
		if attempt < maxAttempts-1 {
			time.Sleep(backoff)
			backoff *= 2
		}
	}
	return lastErr
}

// ImageInfo describes one provisioned image without its payload.
type ImageInfo struct {
	Slot      string    `json:"slot"`
	Size      int       `json:"size"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Store struct {
	db *sql.DB
}

const createTableSQL = `
CREATE TABLE IF NOT EXISTS images (
	slot       TEXT PRIMARY KEY,
	data       BLOB NOT NULL,
	updated_at DATETIME NOT NULL
);
`

// DefaultMaxOpenConns is the default connection pool size for concurrent reads.
// WAL mode allows multiple readers + 1 writer; more conns improve read throughput.
const DefaultMaxOpenConns = 4

// dsnWithPragmas returns a connection string with WAL, busy_timeout, and perf
// pragmas applied to every new connection. PRAGMAs in the DSN are applied
// per-connection by the driver.
func dsnWithPragmas(dbPath string) string {
	return dbPath + "?_pragma=busy_timeout(15000)" +
		"&_pragma=journal_mode(WAL)" +
		"&_pragma=synchronous(NORMAL)" +
		"&_pragma=temp_store(MEMORY)"
}

// New opens the store. An update fetch may write one slot while the gateway
// pages in another, so the connection pool allows concurrent readers.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dsnWithPragmas(dbPath))
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxOpenConns)

	if _, err := db.Exec(createTableSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// SaveImage stores data as the image for slot, replacing any previous one.
func (s *Store) SaveImage(ctx context.Context, slot string, data []byte) error {
	err := retryOnBusy(func() error {
		_, e := s.db.ExecContext(ctx,
			`INSERT INTO images (slot, data, updated_at) VALUES (?, ?, ?)
			 ON CONFLICT(slot) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
			slot, data, time.Now().UTC(),
		)
		return e
	})
	if err != nil {
		return fmt.Errorf("saving image for slot %s: %w", slot, err)
	}
	return nil
}

// LoadImage returns the image stored for slot, or ErrNotFound when the slot
// has never been provisioned.
func (s *Store) LoadImage(ctx context.Context, slot string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM images WHERE slot = ?`, slot,
	).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: slot %s", ErrNotFound, slot)
	}
	if err != nil {
		return nil, fmt.Errorf("loading image for slot %s: %w", slot, err)
	}
	return data, nil
}

// ListImages returns metadata for every provisioned slot, ordered by slot id.
func (s *Store) ListImages(ctx context.Context) ([]ImageInfo, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT slot, length(data), updated_at FROM images ORDER BY slot`,
	)
	if err != nil {
		return nil, fmt.Errorf("listing images: %w", err)
	}
	defer rows.Close()

	var infos []ImageInfo
	for rows.Next() {
		var info ImageInfo
		if err := rows.Scan(&info.Slot, &info.Size, &info.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning image row: %w", err)
		}
		infos = append(infos, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating images: %w", err)
	}
	return infos, nil
}
