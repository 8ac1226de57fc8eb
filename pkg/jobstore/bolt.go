package jobstore

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/certmint/certmint/pkg/types"
)

var (
	// Bucket names
	bucketJobs   = []byte("jobs")
	bucketIndex  = []byte("index")
	bucketQueues = []byte("queues")
	bucketLocks  = []byte("locks")
)

const (
	boltSweepInterval = time.Minute
	boltPollInterval  = 100 * time.Millisecond
)

// record wraps a stored value with its expiry deadline. BoltDB has no
// native TTL; expiry is checked on read and enforced by the sweeper.
type record struct {
	ExpiresAt time.Time       `json:"expires_at"`
	Data      json.RawMessage `json:"data"`
}

// BoltStore implements Store on an embedded BoltDB file. It serves
// single-binary development setups and tests; production deployments use
// RedisStore.
type BoltStore struct {
	db     *bolt.DB
	ttl    time.Duration
	notify chan struct{}
	stopCh chan struct{}
}

// NewBoltStore opens (creating if needed) the database file and starts the
// expiry sweeper.
func NewBoltStore(path string, ttl time.Duration) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Create buckets
	err = db.Update(func(tx *bolt.Tx) error {
		buckets := [][]byte{bucketJobs, bucketIndex, bucketQueues, bucketLocks}
		for _, bucket := range buckets {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	s := &BoltStore{
		db:     db,
		ttl:    ttl,
		notify: make(chan struct{}, 1),
		stopCh: make(chan struct{}),
	}
	go s.sweepLoop()
	return s, nil
}

func (s *BoltStore) SaveJob(ctx context.Context, job *types.BatchJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}
	rec, err := json.Marshal(record{ExpiresAt: time.Now().Add(s.ttl), Data: data})
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(bucketJobs).Put([]byte(job.InternalID), rec); err != nil {
			return err
		}
		if job.ExternalID != "" {
			idx, err := json.Marshal(record{
				ExpiresAt: time.Now().Add(s.ttl),
				Data:      json.RawMessage(fmt.Sprintf("%q", job.InternalID)),
			})
			if err != nil {
				return err
			}
			return tx.Bucket(bucketIndex).Put([]byte(job.ExternalID), idx)
		}
		return nil
	})
}

func (s *BoltStore) GetJob(ctx context.Context, internalID string) (*types.BatchJob, error) {
	var job types.BatchJob
	err := s.db.View(func(tx *bolt.Tx) error {
		data, err := liveValue(tx.Bucket(bucketJobs), []byte(internalID))
		if err != nil {
			return err
		}
		return json.Unmarshal(data, &job)
	})
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (s *BoltStore) Exists(ctx context.Context, internalID string) (bool, error) {
	exists := false
	err := s.db.View(func(tx *bolt.Tx) error {
		_, err := liveValue(tx.Bucket(bucketJobs), []byte(internalID))
		if err == ErrNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		exists = true
		return nil
	})
	return exists, err
}

func (s *BoltStore) UpdateStatus(ctx context.Context, internalID string, status types.JobStatus) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketJobs)
		raw := b.Get([]byte(internalID))
		if raw == nil {
			return nil
		}
		var rec record
		if err := json.Unmarshal(raw, &rec); err != nil {
			return err
		}
		if time.Now().After(rec.ExpiresAt) {
			return nil
		}
		var job types.BatchJob
		if err := json.Unmarshal(rec.Data, &job); err != nil {
			return err
		}
		job.Status = status
		data, err := json.Marshal(&job)
		if err != nil {
			return err
		}
		rec.Data = data
		updated, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		return b.Put([]byte(internalID), updated)
	})
}

func (s *BoltStore) LookupExternal(ctx context.Context, externalID string) (string, error) {
	var internalID string
	err := s.db.View(func(tx *bolt.Tx) error {
		data, err := liveValue(tx.Bucket(bucketIndex), []byte(externalID))
		if err != nil {
			return err
		}
		return json.Unmarshal(data, &internalID)
	})
	return internalID, err
}

func (s *BoltStore) Enqueue(ctx context.Context, queue string, entry []byte) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.Bucket(bucketQueues).CreateBucketIfNotExists([]byte(queue))
		if err != nil {
			return err
		}
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		key := make([]byte, 8)
		binary.BigEndian.PutUint64(key, seq)
		return b.Put(key, entry)
	})
	if err != nil {
		return err
	}
	// Wake one blocked dequeuer.
	select {
	case s.notify <- struct{}{}:
	default:
	}
	return nil
}

func (s *BoltStore) DequeueBlocking(ctx context.Context, queue string, timeout time.Duration) ([]byte, bool, error) {
	deadline := time.Now().Add(timeout)
	for {
		entry, ok, err := s.tryDequeue(queue)
		if err != nil || ok {
			return entry, ok, err
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, false, nil
		}
		wait := boltPollInterval
		if remaining < wait {
			wait = remaining
		}

		select {
		case <-ctx.Done():
			return nil, false, ctx.Err()
		case <-s.notify:
		case <-time.After(wait):
		}
	}
}

func (s *BoltStore) tryDequeue(queue string) ([]byte, bool, error) {
	var entry []byte
	found := false
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketQueues).Bucket([]byte(queue))
		if b == nil {
			return nil
		}
		k, v := b.Cursor().First()
		if k == nil {
			return nil
		}
		// Copy: bolt memory is only valid inside the transaction.
		entry = bytes.Clone(v)
		found = true
		return b.Delete(k)
	})
	return entry, found, err
}

func (s *BoltStore) QueueLen(ctx context.Context, queue string) (int64, error) {
	var n int64
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketQueues).Bucket([]byte(queue))
		if b == nil {
			return nil
		}
		n = int64(b.Stats().KeyN)
		return nil
	})
	return n, err
}

func (s *BoltStore) AcquireLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	acquired := false
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketLocks)
		k := []byte(key)
		if raw := b.Get(k); raw != nil {
			var expires time.Time
			if err := expires.UnmarshalText(raw); err == nil && time.Now().Before(expires) {
				return nil
			}
		}
		val, err := time.Now().Add(ttl).MarshalText()
		if err != nil {
			return err
		}
		if err := b.Put(k, val); err != nil {
			return err
		}
		acquired = true
		return nil
	})
	return acquired, err
}

func (s *BoltStore) ReleaseLock(ctx context.Context, key string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketLocks).Delete([]byte(key))
	})
}

func (s *BoltStore) Ping(ctx context.Context) error {
	return s.db.View(func(tx *bolt.Tx) error {
		if tx.Bucket(bucketJobs) == nil {
			return fmt.Errorf("jobs bucket missing")
		}
		return nil
	})
}

// Close stops the sweeper and closes the database.
func (s *BoltStore) Close() error {
	close(s.stopCh)
	return s.db.Close()
}

// sweepLoop removes expired jobs, index entries, and locks.
func (s *BoltStore) sweepLoop() {
	ticker := time.NewTicker(boltSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			_ = s.sweep()
		case <-s.stopCh:
			return
		}
	}
}

func (s *BoltStore) sweep() error {
	now := time.Now()
	return s.db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketJobs, bucketIndex} {
			b := tx.Bucket(name)
			var expired [][]byte
			err := b.ForEach(func(k, v []byte) error {
				var rec record
				if err := json.Unmarshal(v, &rec); err != nil {
					expired = append(expired, bytes.Clone(k))
					return nil
				}
				if now.After(rec.ExpiresAt) {
					expired = append(expired, bytes.Clone(k))
				}
				return nil
			})
			if err != nil {
				return err
			}
			for _, k := range expired {
				if err := b.Delete(k); err != nil {
					return err
				}
			}
		}

		locks := tx.Bucket(bucketLocks)
		var stale [][]byte
		err := locks.ForEach(func(k, v []byte) error {
			var expires time.Time
			if err := expires.UnmarshalText(v); err != nil || now.After(expires) {
				stale = append(stale, bytes.Clone(k))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range stale {
			if err := locks.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

// liveValue returns the record payload for key, or ErrNotFound when the key
// is absent or expired.
func liveValue(b *bolt.Bucket, key []byte) (json.RawMessage, error) {
	raw := b.Get(key)
	if raw == nil {
		return nil, ErrNotFound
	}
	var rec record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, err
	}
	if time.Now().After(rec.ExpiresAt) {
		return nil, ErrNotFound
	}
	return rec.Data, nil
}
