package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"

	"github.com/Brownbull/gmni-boletapp-sub000/internal/common"
	"github.com/Brownbull/gmni-boletapp-sub000/internal/scan"
)

const snapshotBucket = "inflight"

// SnapshotStore persists in-flight scan requests in a small bbolt file,
// separate from the expense database. Snapshots are written on every scan
// mutation, so this store trades SQL queryability for cheap single-key
// writes.
type SnapshotStore struct {
	db *bbolt.DB
}

// NewSnapshotStore opens (creating if necessary) the snapshot database.
func NewSnapshotStore(path string) (*SnapshotStore, error) {
	if err := validateString(path, "path"); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot store: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(snapshotBucket))
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create snapshot bucket: %w", err)
	}

	return &SnapshotStore{db: db}, nil
}

// Put stores the user's current in-flight scan state, replacing any
// previous snapshot.
func (s *SnapshotStore) Put(ctx context.Context, userID string, snap scan.Snapshot) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(userID, "userID"); err != nil {
		return err
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(snap)
		if err != nil {
			return fmt.Errorf("failed to marshal snapshot: %w", err)
		}
		return tx.Bucket([]byte(snapshotBucket)).Put([]byte(userID), data)
	})
}

// Get retrieves the user's snapshot, or common.ErrNotFound when none exists.
func (s *SnapshotStore) Get(ctx context.Context, userID string) (*scan.Snapshot, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(userID, "userID"); err != nil {
		return nil, err
	}

	var snap *scan.Snapshot
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(snapshotBucket)).Get([]byte(userID))
		if data == nil {
			return fmt.Errorf("%w: snapshot for %s", common.ErrNotFound, userID)
		}
		return json.Unmarshal(data, &snap)
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// Delete removes the user's snapshot. Deleting a missing snapshot is not an
// error.
func (s *SnapshotStore) Delete(ctx context.Context, userID string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(userID, "userID"); err != nil {
		return err
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(snapshotBucket)).Delete([]byte(userID))
	})
}

// Close closes the snapshot store.
func (s *SnapshotStore) Close() error {
	return s.db.Close()
}
