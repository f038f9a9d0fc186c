// Package bbolt provides a BBolt-backed implementation of
// repository.Repository. A single file on disk; every mutation runs inside
// one bbolt update transaction, which gives Rotate its atomicity.
package bbolt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"sessiongate/internal/session/domain"
	"sessiongate/internal/session/repository"
)

var (
	bucketRecords   = []byte("records")    // token_id -> record JSON
	bucketByFamily  = []byte("by_family")  // family_id/token_id -> nil
	bucketBySubject = []byte("by_subject") // subject_id/token_id -> nil
)

// Store implements repository.Repository backed by a BBolt database.
type Store struct {
	db *bbolt.DB
}

var _ repository.Repository = (*Store)(nil)

// NewStore returns a Store backed by the given BBolt database, creating the
// buckets if needed.
func NewStore(db *bbolt.DB) (*Store, error) {
	err := db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketRecords, bucketByFamily, bucketBySubject} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// NewStoreFromFile opens a BBolt database at path and returns a new Store.
func NewStoreFromFile(path string, options *bbolt.Options) (*Store, error) {
	db, err := bbolt.Open(path, 0600, options)
	if err != nil {
		return nil, fmt.Errorf("opening bbolt db: %w", err)
	}
	return NewStore(db)
}

// Close closes the underlying BBolt database.
func (s *Store) Close() error {
	return s.db.Close()
}

func indexKey(prefix, tokenID string) []byte {
	return []byte(prefix + "/" + tokenID)
}

func putRecord(tx *bbolt.Tx, rec *domain.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if err := tx.Bucket(bucketRecords).Put([]byte(rec.TokenID), data); err != nil {
		return err
	}
	if err := tx.Bucket(bucketByFamily).Put(indexKey(rec.FamilyID, rec.TokenID), nil); err != nil {
		return err
	}
	return tx.Bucket(bucketBySubject).Put(indexKey(rec.SubjectID, rec.TokenID), nil)
}

func getRecord(tx *bbolt.Tx, tokenID string) (*domain.Record, error) {
	data := tx.Bucket(bucketRecords).Get([]byte(tokenID))
	if data == nil {
		return nil, nil
	}
	var rec domain.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *Store) Get(ctx context.Context, tokenID string) (*domain.Record, error) {
	var rec *domain.Record
	err := s.db.View(func(tx *bbolt.Tx) error {
		var err error
		rec, err = getRecord(tx, tokenID)
		return err
	})
	return rec, err
}

func (s *Store) Create(ctx context.Context, rec *domain.Record) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if tx.Bucket(bucketRecords).Get([]byte(rec.TokenID)) != nil {
			return repository.ErrDuplicateToken
		}
		return putRecord(tx, rec)
	})
}

func (s *Store) Rotate(ctx context.Context, tokenID string, successor *domain.Record) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		prev, err := getRecord(tx, tokenID)
		if err != nil {
			return err
		}
		if prev == nil || prev.State != domain.StateActive {
			return repository.ErrNotActive
		}
		if tx.Bucket(bucketRecords).Get([]byte(successor.TokenID)) != nil {
			return repository.ErrDuplicateToken
		}
		prev.State = domain.StateRotated
		prev.SuccessorTokenID = successor.TokenID
		if err := putRecord(tx, prev); err != nil {
			return err
		}
		return putRecord(tx, successor)
	})
}

func (s *Store) RevokeToken(ctx context.Context, tokenID string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		rec, err := getRecord(tx, tokenID)
		if err != nil || rec == nil {
			return err
		}
		rec.State = domain.StateRevoked
		return putRecord(tx, rec)
	})
}

func (s *Store) RevokeFamily(ctx context.Context, familyID string) error {
	return s.revokeByIndex(bucketByFamily, familyID)
}

func (s *Store) RevokeAllBySubject(ctx context.Context, subjectID string) error {
	return s.revokeByIndex(bucketBySubject, subjectID)
}

func (s *Store) revokeByIndex(indexBucket []byte, indexValue string) error {
	prefix := []byte(indexValue + "/")
	return s.db.Update(func(tx *bbolt.Tx) error {
		c := tx.Bucket(indexBucket).Cursor()
		for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
			tokenID := string(k[len(prefix):])
			rec, err := getRecord(tx, tokenID)
			if err != nil {
				return err
			}
			if rec == nil {
				continue
			}
			rec.State = domain.StateRevoked
			if err := putRecord(tx, rec); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	var n int64
	err := s.db.Update(func(tx *bbolt.Tx) error {
		records := tx.Bucket(bucketRecords)
		c := records.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var rec domain.Record
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			if !rec.ExpiresAt.Before(before) {
				continue
			}
			if err := c.Delete(); err != nil {
				return err
			}
			if err := tx.Bucket(bucketByFamily).Delete(indexKey(rec.FamilyID, rec.TokenID)); err != nil {
				return err
			}
			if err := tx.Bucket(bucketBySubject).Delete(indexKey(rec.SubjectID, rec.TokenID)); err != nil {
				return err
			}
			n++
		}
		return nil
	})
	return n, err
}
