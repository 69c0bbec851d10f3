package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var bucketIdempotency = []byte("idempotency")

// ErrIdempotencyMismatch is returned when a key is reused with a different payload.
var ErrIdempotencyMismatch = errors.New("idempotency key reuse with different request body")

// CachedResponse is the stored outcome of a request.
type CachedResponse struct {
	RequestHash string    `json:"requestHash"`
	Status      int       `json:"status"`
	Body        []byte    `json:"body"`
	StoredAt    time.Time `json:"storedAt"`
}

// IdempotencyStore remembers responses per (caller, Idempotency-Key) in
// BoltDB so retried mutations are answered without re-executing them.
type IdempotencyStore struct {
	db    *bolt.DB
	ttl   time.Duration
	nowFn func() time.Time
}

// OpenIdempotency initialises (and migrates) the BoltDB-backed store.
func OpenIdempotency(path string, ttl time.Duration) (*IdempotencyStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketIdempotency)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &IdempotencyStore{db: db, ttl: ttl, nowFn: time.Now}, nil
}

// Close releases the underlying Bolt database handle.
func (s *IdempotencyStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func compositeKey(caller, key string) []byte {
	return []byte(caller + "|" + key)
}

// Lookup returns the cached response for key, nil when none is stored or the
// entry expired, and ErrIdempotencyMismatch when the key was used for a
// different request.
func (s *IdempotencyStore) Lookup(caller, key, requestHash string) (*CachedResponse, error) {
	var cached *CachedResponse
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketIdempotency).Get(compositeKey(caller, key))
		if raw == nil {
			return nil
		}
		var rec CachedResponse
		if err := json.Unmarshal(raw, &rec); err != nil {
			return fmt.Errorf("decode idempotency record: %w", err)
		}
		if s.nowFn().Sub(rec.StoredAt) > s.ttl {
			return nil
		}
		if rec.RequestHash != requestHash {
			return ErrIdempotencyMismatch
		}
		cached = &rec
		return nil
	})
	return cached, err
}

// Save stores the response for key. An existing unexpired record for a
// different request is left untouched.
func (s *IdempotencyStore) Save(caller, key, requestHash string, status int, body []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketIdempotency)
		id := compositeKey(caller, key)
		if raw := bucket.Get(id); raw != nil {
			var existing CachedResponse
			if err := json.Unmarshal(raw, &existing); err == nil &&
				s.nowFn().Sub(existing.StoredAt) <= s.ttl && existing.RequestHash != requestHash {
				return ErrIdempotencyMismatch
			}
		}
		encoded, err := json.Marshal(CachedResponse{
			RequestHash: requestHash,
			Status:      status,
			Body:        append([]byte(nil), body...),
			StoredAt:    s.nowFn().UTC(),
		})
		if err != nil {
			return err
		}
		return bucket.Put(id, encoded)
	})
}

// Prune deletes expired records and reports how many were removed.
func (s *IdempotencyStore) Prune() (int, error) {
	removed := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketIdempotency)
		var stale [][]byte
		if err := bucket.ForEach(func(k, v []byte) error {
			var rec CachedResponse
			if err := json.Unmarshal(v, &rec); err != nil || s.nowFn().Sub(rec.StoredAt) > s.ttl {
				stale = append(stale, append([]byte(nil), k...))
			}
			return nil
		}); err != nil {
			return err
		}
		for _, k := range stale {
			if err := bucket.Delete(k); err != nil {
				return err
			}
		}
		removed = len(stale)
		return nil
	})
	return removed, err
}
