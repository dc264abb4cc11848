// Package storage keeps the optional on-disk activity journal.
package storage

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"

	"pearcron/internal/ui"
)

const activityBucket = "activity"

// ErrClosed is returned by a journal that has been closed.
var ErrClosed = errors.New("journal closed")

// Journal appends activity records to a BoltDB file. It is a log for the
// user to read back, never a source of job state.
type Journal struct {
	db         *bbolt.DB
	maxEntries int
}

// OpenJournal opens or creates the journal at path. maxEntries bounds the
// number of records kept; zero keeps everything.
func OpenJournal(path string, maxEntries int) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(activityBucket))
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Journal{db: db, maxEntries: maxEntries}, nil
}

func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	err := j.db.Close()
	j.db = nil
	return err
}

// Append stores one activity under the next sequence number and trims the
// oldest records past maxEntries.
func (j *Journal) Append(a ui.Activity) error {
	if j == nil || j.db == nil {
		return ErrClosed
	}
	data, err := json.Marshal(a)
	if err != nil {
		return err
	}
	return j.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(activityBucket))
		seq, err := bucket.NextSequence()
		if err != nil {
			return err
		}
		key := make([]byte, 8)
		binary.BigEndian.PutUint64(key, seq)
		if err := bucket.Put(key, data); err != nil {
			return err
		}
		if j.maxEntries <= 0 || seq <= uint64(j.maxEntries) {
			return nil
		}
		cutoff := seq - uint64(j.maxEntries)
		cursor := bucket.Cursor()
		for k, _ := cursor.First(); k != nil && binary.BigEndian.Uint64(k) <= cutoff; k, _ = cursor.First() {
			if err := cursor.Delete(); err != nil {
				return err
			}
		}
		return nil
	})
}

// Recent returns up to limit records, newest first.
func (j *Journal) Recent(limit int) ([]ui.Activity, error) {
	if j == nil || j.db == nil {
		return nil, ErrClosed
	}
	if limit <= 0 {
		return nil, nil
	}
	var out []ui.Activity
	err := j.db.View(func(tx *bbolt.Tx) error {
		cursor := tx.Bucket([]byte(activityBucket)).Cursor()
		for k, v := cursor.Last(); k != nil && len(out) < limit; k, v = cursor.Prev() {
			var a ui.Activity
			if err := json.Unmarshal(v, &a); err == nil {
				out = append(out, a)
			}
		}
		return nil
	})
	return out, err
}
