// Package archive keeps finished conversation transcripts in a local bbolt
// file, separate from the bookings database.
package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/kalambet/tablevoice/internal/dialogue"
)

var bucketTranscripts = []byte("transcripts")

var _ dialogue.Archive = (*Store)(nil)

// Store is a transcript archive. Keys sort by end time, so a reverse cursor
// walks newest first.
type Store struct {
	db *bolt.DB
}

// Open opens or creates the archive at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating archive directory: %w", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening archive: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketTranscripts)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating archive bucket: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func key(t dialogue.Transcript) []byte {
	return []byte(fmt.Sprintf("%020d/%s", t.EndedAt.UTC().UnixNano(), t.SessionID))
}

// SaveTranscript stores t. Saving the same session and end time twice
// overwrites the earlier copy.
func (s *Store) SaveTranscript(ctx context.Context, t dialogue.Transcript) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if t.SessionID == "" {
		return fmt.Errorf("archiving transcript: missing session id")
	}
	enc, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("encoding transcript: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketTranscripts).Put(key(t), enc)
	})
}

// List returns up to limit transcripts, newest first. limit <= 0 means all.
func (s *Store) List(ctx context.Context, limit int) ([]dialogue.Transcript, error) {
	return s.collect(ctx, limit, func(dialogue.Transcript) bool { return true })
}

// ForSession returns every archived transcript of one session, newest first.
func (s *Store) ForSession(ctx context.Context, sessionID string) ([]dialogue.Transcript, error) {
	return s.collect(ctx, 0, func(t dialogue.Transcript) bool { return t.SessionID == sessionID })
}

func (s *Store) collect(ctx context.Context, limit int, keep func(dialogue.Transcript) bool) ([]dialogue.Transcript, error) {
	out := []dialogue.Transcript{}
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketTranscripts).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var t dialogue.Transcript
			if err := json.Unmarshal(v, &t); err != nil {
				// skip malformed
				continue
			}
			if !keep(t) {
				continue
			}
			out = append(out, t)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reading archive: %w", err)
	}
	return out, nil
}

// Count returns the number of archived transcripts.
func (s *Store) Count() (int, error) {
	var n int
	err := s.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(bucketTranscripts).Stats().KeyN
		return nil
	})
	return n, err
}
