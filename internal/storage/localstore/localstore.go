// Package localstore provides durable key/value persistence for the
// federated learning client. Values are JSON-encoded and wrapped in a
// schema-versioned envelope so future releases can change persisted shapes
// without corrupting older installs.
package localstore

import (
	"encoding/json"
	"time"

	"go.etcd.io/bbolt"

	"github.com/pathlearn/fedclient/internal/core/errs"
	"github.com/pathlearn/fedclient/pkg/logger"
)

// SchemaVersion tags every persisted value. Values with an unknown schema
// are treated as absent on load and overwritten on the next write.
const SchemaVersion = 1

var bucketName = []byte("federatedLearning")

// Well-known slots used by the client.
const (
	KeyModelMetadata = "modelMetadata"
	KeyTrainingData  = "trainingData"
)

type envelope struct {
	Schema int             `json:"schema"`
	Value  json.RawMessage `json:"value"`
}

// Store is a bbolt-backed key/value store scoped to one on-disk file.
type Store struct {
	db *bbolt.DB
}

// Open opens or creates the store at path.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, &errs.StorageError{Op: "open", Key: path, Err: err}
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		db.Close()
		return nil, &errs.StorageError{Op: "open", Key: path, Err: err}
	}

	return &Store{db: db}, nil
}

// Get unmarshals the value stored under key into out. It returns
// (false, nil) when the key is absent or holds an unknown schema version.
func (s *Store) Get(key string, out interface{}) (bool, error) {
	log := logger.WithComponent("localstore")

	var raw []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		if data := tx.Bucket(bucketName).Get([]byte(key)); data != nil {
			raw = append([]byte(nil), data...)
		}
		return nil
	})
	if err != nil {
		return false, &errs.StorageError{Op: "get", Key: key, Err: err}
	}
	if raw == nil {
		return false, nil
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return false, &errs.StorageError{Op: "get", Key: key, Err: err}
	}
	if env.Schema != SchemaVersion {
		log.Warn().
			Str("key", key).
			Int("schema", env.Schema).
			Int("expected", SchemaVersion).
			Msg("Ignoring value with unknown schema version")
		return false, nil
	}

	if err := json.Unmarshal(env.Value, out); err != nil {
		return false, &errs.StorageError{Op: "get", Key: key, Err: err}
	}
	return true, nil
}

// Set overwrites the value stored under key.
func (s *Store) Set(key string, value interface{}) error {
	inner, err := json.Marshal(value)
	if err != nil {
		return &errs.StorageError{Op: "set", Key: key, Err: err}
	}
	data, err := json.Marshal(envelope{Schema: SchemaVersion, Value: inner})
	if err != nil {
		return &errs.StorageError{Op: "set", Key: key, Err: err}
	}

	err = s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketName).Put([]byte(key), data)
	})
	if err != nil {
		return &errs.StorageError{Op: "set", Key: key, Err: err}
	}
	return nil
}

// Remove deletes the value stored under key. Removing an absent key is not
// an error.
func (s *Store) Remove(key string) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketName).Delete([]byte(key))
	})
	if err != nil {
		return &errs.StorageError{Op: "remove", Key: key, Err: err}
	}
	return nil
}

// Close releases the underlying database file.
func (s *Store) Close() error {
	return s.db.Close()
}
