package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

const (
	// boltDirPerm is the permission mode for the database directory.
	boltDirPerm = fs.FileMode(0o700)

	// boltFilePerm is the permission mode for the database file. Token
	// records live here, so group/world access is withheld.
	boltFilePerm = fs.FileMode(0o600)

	// boltOpenTimeout is the maximum time to wait for the bolt file lock.
	boltOpenTimeout = 5 * time.Second
)

var connectionsBucket = []byte("connections")

// BoltStore implements Store on a local bbolt file. Suitable for
// single-instance deployments that want persistence without a Redis.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (creating if needed) the database file at path.
func NewBoltStore(path string) (*BoltStore, error) {
	if path == "" {
		return nil, errors.New("bolt database path is required")
	}

	if err := os.MkdirAll(filepath.Dir(path), boltDirPerm); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}

	db, err := bolt.Open(path, boltFilePerm, &bolt.Options{Timeout: boltOpenTimeout})
	if err != nil {
		return nil, fmt.Errorf("open bolt database %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(connectionsBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create bucket: %w", err)
	}

	return &BoltStore{db: db}, nil
}

// Get returns the value stored at key, or ErrNotFound.
func (s *BoltStore) Get(_ context.Context, key string) (string, error) {
	var value []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(connectionsBucket).Get([]byte(key))
		if v == nil {
			return ErrNotFound
		}
		value = append(value, v...)
		return nil
	})
	if err != nil {
		return "", err
	}
	return string(value), nil
}

// Set stores value at key.
func (s *BoltStore) Set(_ context.Context, key string, value string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(connectionsBucket).Put([]byte(key), []byte(value))
	})
}

// Delete removes key.
func (s *BoltStore) Delete(_ context.Context, key string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(connectionsBucket).Delete([]byte(key))
	})
}

// Close closes the database file.
func (s *BoltStore) Close() error {
	return s.db.Close()
}
