package jobstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/certmint/certmint/pkg/types"
)

// RedisOptions configures the Redis-backed store.
type RedisOptions struct {
	Addr      string
	Password  string
	DB        int
	Namespace string
	JobTTL    time.Duration
}

// RedisStore implements Store on a Redis database. Jobs and the external id
// index are plain keys with expiry, queues are lists, locks are SET NX EX
// keys.
type RedisStore struct {
	client *redis.Client
	ns     string
	ttl    time.Duration
}

// NewRedisStore connects to Redis and returns the store. The connection is
// not verified here; call Ping for that.
func NewRedisStore(opts RedisOptions) (*RedisStore, error) {
	if opts.Addr == "" {
		return nil, fmt.Errorf("redis address is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	return &RedisStore{
		client: client,
		ns:     opts.Namespace,
		ttl:    opts.JobTTL,
	}, nil
}

func (s *RedisStore) SaveJob(ctx context.Context, job *types.BatchJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}
	return withRetry(ctx, "save_job", func(ctx context.Context) error {
		pipe := s.client.TxPipeline()
		pipe.Set(ctx, jobKey(s.ns, job.InternalID), data, s.ttl)
		if job.ExternalID != "" {
			pipe.Set(ctx, extKey(s.ns, job.ExternalID), job.InternalID, s.ttl)
		}
		_, err := pipe.Exec(ctx)
		return err
	})
}

func (s *RedisStore) GetJob(ctx context.Context, internalID string) (*types.BatchJob, error) {
	var job types.BatchJob
	err := withRetry(ctx, "get_job", func(ctx context.Context) error {
		data, err := s.client.Get(ctx, jobKey(s.ns, internalID)).Bytes()
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
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

func (s *RedisStore) Exists(ctx context.Context, internalID string) (bool, error) {
	var n int64
	err := withRetry(ctx, "exists", func(ctx context.Context) error {
		var err error
		n, err = s.client.Exists(ctx, jobKey(s.ns, internalID)).Result()
		return err
	})
	return n > 0, err
}

func (s *RedisStore) UpdateStatus(ctx context.Context, internalID string, status types.JobStatus) error {
	return withRetry(ctx, "update_status", func(ctx context.Context) error {
		key := jobKey(s.ns, internalID)
		data, err := s.client.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return err
		}
		var job types.BatchJob
		if err := json.Unmarshal(data, &job); err != nil {
			return err
		}
		job.Status = status
		updated, err := json.Marshal(&job)
		if err != nil {
			return err
		}
		return s.client.Set(ctx, key, updated, redis.KeepTTL).Err()
	})
}

func (s *RedisStore) LookupExternal(ctx context.Context, externalID string) (string, error) {
	var internalID string
	err := withRetry(ctx, "lookup_external", func(ctx context.Context) error {
		v, err := s.client.Get(ctx, extKey(s.ns, externalID)).Result()
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		internalID = v
		return nil
	})
	return internalID, err
}

func (s *RedisStore) Enqueue(ctx context.Context, queue string, entry []byte) error {
	return withRetry(ctx, "enqueue", func(ctx context.Context) error {
		return s.client.LPush(ctx, queueKey(s.ns, queue), entry).Err()
	})
}

// DequeueBlocking issues BRPOP with the given timeout. It runs outside the
// retry wrapper: stage workers call it in a loop, so a transient failure
// surfaces on the next iteration.
func (s *RedisStore) DequeueBlocking(ctx context.Context, queue string, timeout time.Duration) ([]byte, bool, error) {
	res, err := s.client.BRPop(ctx, timeout, queueKey(s.ns, queue)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	// BRPOP returns [key, value].
	if len(res) != 2 {
		return nil, false, fmt.Errorf("unexpected BRPOP reply of length %d", len(res))
	}
	return []byte(res[1]), true, nil
}

func (s *RedisStore) QueueLen(ctx context.Context, queue string) (int64, error) {
	var n int64
	err := withRetry(ctx, "queue_len", func(ctx context.Context) error {
		var err error
		n, err = s.client.LLen(ctx, queueKey(s.ns, queue)).Result()
		return err
	})
	return n, err
}

func (s *RedisStore) AcquireLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	var acquired bool
	err := withRetry(ctx, "acquire_lock", func(ctx context.Context) error {
		var err error
		acquired, err = s.client.SetNX(ctx, lockKey(s.ns, key), "1", ttl).Result()
		return err
	})
	return acquired, err
}

func (s *RedisStore) ReleaseLock(ctx context.Context, key string) error {
	return withRetry(ctx, "release_lock", func(ctx context.Context) error {
		return s.client.Del(ctx, lockKey(s.ns, key)).Err()
	})
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
