package repository

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

const idempotencyBucket = "idempotency"

var (
	// ErrIdempotencyInFlight is returned when a key is reserved but has no stored response yet.
	ErrIdempotencyInFlight = errors.New("idempotency key in flight")
	// ErrIdempotencyMismatch is returned when a key is reused with a different request body.
	ErrIdempotencyMismatch = errors.New("idempotency key reused with a different request")
)

// StoredResponse is the replayable outcome of a request.
type StoredResponse struct {
	Status      int       `json:"status"`
	ContentType string    `json:"content_type"`
	Body        []byte    `json:"body"`
	BodyHash    string    `json:"body_hash,omitempty"`
	Completed   bool      `json:"completed"`
	CreatedAt   time.Time `json:"created_at"`
}

// IdempotencyRepository keeps request outcomes in an embedded bolt database.
type IdempotencyRepository struct {
	db  *bolt.DB
	ttl time.Duration
	now func() time.Time
}

// NewIdempotencyRepository opens (or creates) the bolt file at path.
func NewIdempotencyRepository(path string, ttl time.Duration) (*IdempotencyRepository, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create idempotency dir: %w", err)
		}
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open idempotency store: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(idempotencyBucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init idempotency bucket: %w", err)
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &IdempotencyRepository{db: db, ttl: ttl, now: time.Now}, nil
}

// Reserve claims key for a new request whose body hashes to bodyHash. It
// returns the stored response when the key already completed,
// ErrIdempotencyMismatch when the key was first used with another body,
// ErrIdempotencyInFlight when another request holds it, and (nil, nil) when
// the caller now owns the key. Expired entries are replaced.
func (r *IdempotencyRepository) Reserve(key, bodyHash string) (*StoredResponse, error) {
	var existing *StoredResponse
	err := r.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(idempotencyBucket))
		if raw := b.Get([]byte(key)); raw != nil {
			var stored StoredResponse
			if err := json.Unmarshal(raw, &stored); err != nil {
				return err
			}
			if r.now().Sub(stored.CreatedAt) < r.ttl {
				if stored.BodyHash != "" && stored.BodyHash != bodyHash {
					return ErrIdempotencyMismatch
				}
				if !stored.Completed {
					return ErrIdempotencyInFlight
				}
				existing = &stored
				return nil
			}
		}
		data, err := json.Marshal(StoredResponse{BodyHash: bodyHash, CreatedAt: r.now().UTC()})
		if err != nil {
			return err
		}
		return b.Put([]byte(key), data)
	})
	if err != nil {
		return nil, err
	}
	return existing, nil
}

// Complete stores the final response for a reserved key.
func (r *IdempotencyRepository) Complete(key string, resp StoredResponse) error {
	resp.Completed = true
	if resp.CreatedAt.IsZero() {
		resp.CreatedAt = r.now().UTC()
	}
	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return r.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(idempotencyBucket)).Put([]byte(key), data)
	})
}

// Release drops a reservation so the client can retry, e.g. after a server error.
func (r *IdempotencyRepository) Release(key string) error {
	return r.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(idempotencyBucket)).Delete([]byte(key))
	})
}

// Purge removes entries older than the TTL and reports how many were deleted.
func (r *IdempotencyRepository) Purge() (int, error) {
	removed := 0
	err := r.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(idempotencyBucket))
		var stale [][]byte
		err := b.ForEach(func(k, v []byte) error {
			var stored StoredResponse
			if err := json.Unmarshal(v, &stored); err != nil || r.now().Sub(stored.CreatedAt) >= r.ttl {
				stale = append(stale, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range stale {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		removed = len(stale)
		return nil
	})
	return removed, err
}

// Close releases the database file lock.
func (r *IdempotencyRepository) Close() error {
	return r.db.Close()
}
