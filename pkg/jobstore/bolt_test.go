package jobstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	bolt "go.etcd.io/bbolt"

	"github.com/certmint/certmint/pkg/types"
)

func newTestStore(t *testing.T, ttl time.Duration) *BoltStore {
	t.Helper()
	s, err := NewBoltStore(filepath.Join(t.TempDir(), "jobs.db"), ttl)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testJob() *types.BatchJob {
	job := types.NewBatchJob("7f9c1a3e-0000-4000-8000-000000000001")
	job.AddItem(types.NewBatchItem(types.BatchRequestItem{
		UserID:     "7f9c1a3e-0000-4000-8000-0000000000aa",
		TemplateID: "7f9c1a3e-0000-4000-8000-0000000000bb",
		SerialCode: "CERT-001",
	}))
	return job
}

func TestSaveAndGetJob(t *testing.T) {
	s := newTestStore(t, time.Minute)
	ctx := context.Background()

	job := testJob()
	require.NoError(t, s.SaveJob(ctx, job))

	got, err := s.GetJob(ctx, job.InternalID)
	require.NoError(t, err)
	assert.Equal(t, job.InternalID, got.InternalID)
	assert.Equal(t, job.ExternalID, got.ExternalID)
	assert.Len(t, got.Items, 1)
	assert.Equal(t, "CERT-001", got.Items[0].SerialCode)
}

func TestGetJobNotFound(t *testing.T) {
	s := newTestStore(t, time.Minute)

	_, err := s.GetJob(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestJobExpiry(t *testing.T) {
	s := newTestStore(t, 50*time.Millisecond)
	ctx := context.Background()

	job := testJob()
	require.NoError(t, s.SaveJob(ctx, job))

	// Fresh record is readable.
	_, err := s.GetJob(ctx, job.InternalID)
	require.NoError(t, err)

	time.Sleep(80 * time.Millisecond)

	_, err = s.GetJob(ctx, job.InternalID)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.LookupExternal(ctx, job.ExternalID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestExists(t *testing.T) {
	s := newTestStore(t, time.Minute)
	ctx := context.Background()

	job := testJob()
	require.NoError(t, s.SaveJob(ctx, job))

	ok, err := s.Exists(ctx, job.InternalID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Exists(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUpdateStatus(t *testing.T) {
	s := newTestStore(t, time.Minute)
	ctx := context.Background()

	job := testJob()
	require.NoError(t, s.SaveJob(ctx, job))

	require.NoError(t, s.UpdateStatus(ctx, job.InternalID, types.JobStatusProcessing))

	got, err := s.GetJob(ctx, job.InternalID)
	require.NoError(t, err)
	assert.Equal(t, types.JobStatusProcessing, got.Status)
	// The rest of the document is untouched.
	assert.Len(t, got.Items, 1)
}

func TestUpdateStatusMissingJobIsNoop(t *testing.T) {
	s := newTestStore(t, time.Minute)
	assert.NoError(t, s.UpdateStatus(context.Background(), "missing", types.JobStatusCompleted))
}

func TestLookupExternal(t *testing.T) {
	s := newTestStore(t, time.Minute)
	ctx := context.Background()

	job := testJob()
	require.NoError(t, s.SaveJob(ctx, job))

	internalID, err := s.LookupExternal(ctx, job.ExternalID)
	require.NoError(t, err)
	assert.Equal(t, job.InternalID, internalID)

	_, err = s.LookupExternal(ctx, "unknown-external")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestQueueFIFO(t *testing.T) {
	s := newTestStore(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, s.Enqueue(ctx, "work", []byte("first")))
	require.NoError(t, s.Enqueue(ctx, "work", []byte("second")))
	require.NoError(t, s.Enqueue(ctx, "work", []byte("third")))

	n, err := s.QueueLen(ctx, "work")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	for _, want := range []string{"first", "second", "third"} {
		entry, ok, err := s.DequeueBlocking(ctx, "work", time.Second)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, want, string(entry))
	}

	n, err = s.QueueLen(ctx, "work")
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestDequeueTimeout(t *testing.T) {
	s := newTestStore(t, time.Minute)

	start := time.Now()
	entry, ok, err := s.DequeueBlocking(context.Background(), "empty", 150*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, entry)
	assert.GreaterOrEqual(t, time.Since(start), 150*time.Millisecond)
}

func TestDequeueWakesOnEnqueue(t *testing.T) {
	s := newTestStore(t, time.Minute)
	ctx := context.Background()

	go func() {
		time.Sleep(50 * time.Millisecond)
		_ = s.Enqueue(ctx, "work", []byte("late"))
	}()

	entry, ok, err := s.DequeueBlocking(ctx, "work", 2*time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "late", string(entry))
}

func TestDequeueHonorsContext(t *testing.T) {
	s := newTestStore(t, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	_, ok, err := s.DequeueBlocking(ctx, "empty", 5*time.Second)
	assert.False(t, ok)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLocks(t *testing.T) {
	s := newTestStore(t, time.Minute)
	ctx := context.Background()

	ok, err := s.AcquireLock(ctx, "item:abc", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	// Held lock cannot be taken again.
	ok, err = s.AcquireLock(ctx, "item:abc", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.ReleaseLock(ctx, "item:abc"))

	ok, err = s.AcquireLock(ctx, "item:abc", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLockExpiry(t *testing.T) {
	s := newTestStore(t, time.Minute)
	ctx := context.Background()

	ok, err := s.AcquireLock(ctx, "item:xyz", 50*time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok)

	time.Sleep(80 * time.Millisecond)

	ok, err = s.AcquireLock(ctx, "item:xyz", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestReleaseUnheldLock(t *testing.T) {
	s := newTestStore(t, time.Minute)
	assert.NoError(t, s.ReleaseLock(context.Background(), "never-held"))
}

func TestSweepRemovesExpired(t *testing.T) {
	s := newTestStore(t, 10*time.Millisecond)
	ctx := context.Background()

	job := testJob()
	require.NoError(t, s.SaveJob(ctx, job))
	time.Sleep(30 * time.Millisecond)

	require.NoError(t, s.sweep())

	// The raw record is gone, not just hidden by the read path.
	var found bool
	require.NoError(t, s.db.View(func(tx *bolt.Tx) error {
		found = tx.Bucket(bucketJobs).Get([]byte(job.InternalID)) != nil
		return nil
	}))
	assert.False(t, found)
}

func TestPing(t *testing.T) {
	s := newTestStore(t, time.Minute)
	assert.NoError(t, s.Ping(context.Background()))
}
