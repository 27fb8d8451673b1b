package credential

import (
	"context"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

const bucketName = "credentials"

// BoltStore implements Store using a bbolt file. The credential lives
// in a single bucket under a configurable key so multiple accounts
// could share one file without colliding.
type BoltStore struct {
	db  *bbolt.DB
	key []byte
}

// NewBoltStore opens (or creates) the credential database at path and
// binds the store to the given key name.
func NewBoltStore(path string, key string) (*BoltStore, error) {
	if key == "" {
		return nil, fmt.Errorf("credential key name is required")
	}

	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening credential db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating credential bucket: %w", err)
	}

	return &BoltStore{db: db, key: []byte(key)}, nil
}

// Get returns the stored credential
func (b *BoltStore) Get(ctx context.Context) (string, error) {
	var token string
	err := b.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(bucketName)).Get(b.key)
		if data == nil {
			return ErrNotFound
		}
		token = string(data)
		return nil
	})
	if err != nil {
		return "", err
	}
	return token, nil
}

// Set replaces the stored credential
func (b *BoltStore) Set(ctx context.Context, token string) error {
	err := b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucketName)).Put(b.key, []byte(token))
	})
	if err != nil {
		return fmt.Errorf("writing credential: %w", err)
	}
	return nil
}

// Remove deletes the stored credential
func (b *BoltStore) Remove(ctx context.Context) error {
	err := b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucketName)).Delete(b.key)
	})
	if err != nil {
		return fmt.Errorf("removing credential: %w", err)
	}
	return nil
}

// Close closes the underlying database
func (b *BoltStore) Close() error {
	return b.db.Close()
}
