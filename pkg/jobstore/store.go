package jobstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/certmint/certmint/pkg/config"
	"github.com/certmint/certmint/pkg/types"
)

// ErrNotFound is returned when a job or index entry does not exist or its
// TTL has elapsed.
var ErrNotFound = errors.New("jobstore: not found")

// Store persists batch jobs with a bounded lifetime and provides the queue
// and lock primitives the staged worker layout runs on.
type Store interface {
	// SaveJob upserts the whole job document and refreshes its TTL. The
	// external id index entry is written in the same call.
	SaveJob(ctx context.Context, job *types.BatchJob) error

	// GetJob returns the job for the given internal id, or ErrNotFound.
	GetJob(ctx context.Context, internalID string) (*types.BatchJob, error)

	// Exists reports whether a live job record exists for the internal id.
	Exists(ctx context.Context, internalID string) (bool, error)

	// UpdateStatus rewrites only the job status, preserving the remaining
	// TTL. Updating a missing job is a no-op.
	UpdateStatus(ctx context.Context, internalID string, status types.JobStatus) error

	// LookupExternal resolves an external id to the internal id of the job
	// it was accepted under, or ErrNotFound.
	LookupExternal(ctx context.Context, externalID string) (string, error)

	// Enqueue appends an entry to the named FIFO queue.
	Enqueue(ctx context.Context, queue string, entry []byte) error

	// DequeueBlocking pops the oldest entry from the named queue, waiting
	// up to timeout. ok is false when the wait expired with nothing queued.
	DequeueBlocking(ctx context.Context, queue string, timeout time.Duration) (entry []byte, ok bool, err error)

	// QueueLen returns the number of entries waiting in the named queue.
	QueueLen(ctx context.Context, queue string) (int64, error)

	// AcquireLock attempts an atomic test-and-set on the named lock with
	// the given expiry. It does not block and is not reentrant.
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// ReleaseLock drops the named lock. Releasing a lock that expired or
	// was never held is not an error.
	ReleaseLock(ctx context.Context, key string) error

	// Ping verifies the backing store is reachable.
	Ping(ctx context.Context) error

	// Close releases the store's resources.
	Close() error
}

// New builds the Store named by cfg.StoreBackend.
func New(cfg *config.Config) (Store, error) {
	switch cfg.StoreBackend {
	case config.BackendRedis:
		return NewRedisStore(RedisOptions{
			Addr:      cfg.StoreAddr,
			Password:  cfg.StorePassword,
			DB:        cfg.StoreDB,
			Namespace: cfg.StoreNamespace,
			JobTTL:    cfg.JobTTL(),
		})
	case config.BackendBolt:
		return NewBoltStore(cfg.BoltPath, cfg.JobTTL())
	default:
		return nil, fmt.Errorf("unknown store backend: %s", cfg.StoreBackend)
	}
}

// Key builders. All Redis keys live under a single namespace so several
// deployments can share one database.

func jobKey(ns, internalID string) string {
	return ns + ":job:" + internalID
}

func extKey(ns, externalID string) string {
	return ns + ":ext:" + externalID
}

func queueKey(ns, queue string) string {
	return ns + ":queue:" + queue
}

func lockKey(ns, key string) string {
	return ns + ":lock:" + key
}
