// Package persist flushes the controller tables to SQLite and rebuilds them
// at startup. It only ever sees whole tables: a flush replaces every stored
// row of a kind in one transaction.
package persist

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Record is one stored row.
type Record struct {
	UID     int
	Payload []byte
}

// Store provides JSON row storage keyed by (kind, uid).
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewStore creates a new row store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Replace atomically swaps every row of kind for records, keeping their order.
func (s *Store) Replace(kind string, records []Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin flush of %s: %w", kind, err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM table_rows WHERE kind = ?`, kind); err != nil {
		return fmt.Errorf("failed to clear %s rows: %w", kind, err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO table_rows (kind, uid, seq, payload, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare %s insert: %w", kind, err)
	}
	defer stmt.Close()

	now := time.Now().UTC().Unix()
	for seq, rec := range records {
		if _, err := stmt.Exec(kind, rec.UID, seq, string(rec.Payload), now); err != nil {
			return fmt.Errorf("failed to store %s %d: %w", kind, rec.UID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit flush of %s: %w", kind, err)
	}

	log.Debug().
		Str("kind", kind).
		Int("rows", len(records)).
		Msg("Store.Replace completed")
	return nil
}

// All returns the rows of kind in stored order.
func (s *Store) All(kind string) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT uid, payload FROM table_rows WHERE kind = ? ORDER BY seq
	`, kind)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		var payload string
		if err := rows.Scan(&rec.UID, &payload); err != nil {
			return nil, err
		}
		rec.Payload = []byte(payload)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Clear removes all rows for a kind. If kind is empty, clears everything.
func (s *Store) Clear(kind string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var err error
	if kind == "" {
		_, err = s.db.Exec(`DELETE FROM table_rows`)
	} else {
		_, err = s.db.Exec(`DELETE FROM table_rows WHERE kind = ?`, kind)
	}
	return err
}
