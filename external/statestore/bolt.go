package statestore

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/foxseedlab/azkar-bot/internal/state"
	bolt "go.etcd.io/bbolt"
)

var (
	snapshotBucket = []byte("snapshot")
	keyCurrent     = []byte(rowCurrent)
	keyBackup      = []byte(rowBackup)
)

// BoltBackend keeps the snapshot and its backup under two keys of one bucket.
type BoltBackend struct {
	db *bolt.DB
}

func NewBoltBackend(path string) (*BoltBackend, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt database: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(snapshotBucket)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create snapshot bucket: %w", err)
	}
	return &BoltBackend{db: db}, nil
}

func (b *BoltBackend) Read(_ context.Context) ([]byte, error) {
	var data []byte
	err := b.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(snapshotBucket)
		if bucket == nil {
			return state.ErrSnapshotNotFound
		}
		v := bucket.Get(keyCurrent)
		if v == nil {
			return state.ErrSnapshotNotFound
		}
		data = append([]byte(nil), v...)
		return nil
	})
	return data, err
}

func (b *BoltBackend) Backup(_ context.Context) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(snapshotBucket)
		if bucket == nil {
			return nil
		}
		cur := bucket.Get(keyCurrent)
		if cur == nil {
			return nil
		}
		if err := bucket.Put(keyBackup, append([]byte(nil), cur...)); err != nil {
			return fmt.Errorf("back up snapshot: %w", err)
		}
		return nil
	})
}

func (b *BoltBackend) Write(_ context.Context, data []byte) error {
	err := b.db.Update(func(tx *bolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists(snapshotBucket)
		if err != nil {
			return err
		}
		return bucket.Put(keyCurrent, data)
	})
	if err != nil {
		return err
	}

	stored, err := b.Read(context.Background())
	if err != nil {
		return fmt.Errorf("read back snapshot: %w", err)
	}
	if !bytes.Equal(stored, data) {
		return errVerifyMismatch
	}
	return nil
}

func (b *BoltBackend) RestoreBackup(_ context.Context) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(snapshotBucket)
		if bucket == nil {
			return state.ErrSnapshotNotFound
		}
		backup := bucket.Get(keyBackup)
		if backup == nil {
			return state.ErrSnapshotNotFound
		}
		return bucket.Put(keyCurrent, append([]byte(nil), backup...))
	})
}

func (b *BoltBackend) Clear(_ context.Context) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(snapshotBucket)
		if bucket == nil {
			return nil
		}
		if err := bucket.Delete(keyCurrent); err != nil {
			return err
		}
		return bucket.Delete(keyBackup)
	})
}

func (b *BoltBackend) Close() error {
	return b.db.Close()
}
