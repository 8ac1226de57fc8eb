package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/certmint/certmint/pkg/metrics"
	"github.com/certmint/certmint/pkg/types"
)

// queueRef is one staged work entry: an item awaiting pipeline execution.
type queueRef struct {
	JobID  string `json:"job_id"`
	ItemID string `json:"item_id"`
}

// dispatchStaged enqueues one work entry per item. Items whose enqueue
// fails are committed as orchestration failures so the batch can still
// finalize instead of waiting out its TTL.
func (o *Orchestrator) dispatchStaged(ctx context.Context, job *types.BatchJob) {
	mu := o.jobLock(job.InternalID)
	failed := false

	for _, item := range job.Items {
		entry, err := json.Marshal(queueRef{JobID: job.InternalID, ItemID: item.ItemID})
		if err == nil {
			err = o.store.Enqueue(ctx, queueDownload, entry)
		}
		if err == nil {
			continue
		}

		o.logger.Error().Err(err).
			Str("job_id", job.InternalID).
			Str("item_id", item.ItemID).
			Msg("Failed to enqueue item")

		failed = true
		item.Fail(types.NewStageError(types.StageOrchestration, "failed to enqueue item: %v", err))
		mu.Lock()
		if perr := o.saveItem(ctx, job.InternalID, item); perr != nil {
			o.logger.Warn().Err(perr).Str("item_id", item.ItemID).Msg("Failed to persist enqueue failure")
		}
		o.publishItemEvent(job, item)
		mu.Unlock()
	}

	o.refreshQueueDepth(ctx)

	if failed {
		o.tryFinalizeStaged(ctx, job.InternalID, mu)
	}
}

// queueWorker is one member of the staged dequeue pool. It loops on the
// shared download queue until stopped; an in-flight item always finishes
// its current stage before the worker exits.
func (o *Orchestrator) queueWorker(ctx context.Context, id int) {
	defer o.wg.Done()
	logger := o.logger.With().Int("worker", id).Logger()

	for {
		select {
		case <-o.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		entry, ok, err := o.store.DequeueBlocking(ctx, queueDownload, dequeueWait)
		if err != nil {
			logger.Warn().Err(err).Msg("Dequeue failed")
			select {
			case <-o.stopCh:
				return
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		if !ok {
			continue
		}
		o.refreshQueueDepth(ctx)

		var ref queueRef
		if err := json.Unmarshal(entry, &ref); err != nil {
			logger.Warn().Err(err).Msg("Discarding malformed queue entry")
			continue
		}
		o.runQueued(ctx, ref, logger)
	}
}

// runQueued executes one dequeued item under its item lock. Redeliveries
// of finished items and entries whose job expired are skipped, which
// makes the queue safe for at-least-once delivery.
func (o *Orchestrator) runQueued(ctx context.Context, ref queueRef, logger zerolog.Logger) {
	lockName := "item:" + ref.ItemID
	locked, err := o.store.AcquireLock(ctx, lockName, itemLockTTL)
	if err != nil {
		logger.Warn().Err(err).Str("item_id", ref.ItemID).Msg("Item lock unavailable")
		return
	}
	if !locked {
		logger.Debug().Str("item_id", ref.ItemID).Msg("Item held by another worker, skipping")
		return
	}
	defer func() {
		if rerr := o.store.ReleaseLock(ctx, lockName); rerr != nil {
			logger.Warn().Err(rerr).Str("item_id", ref.ItemID).Msg("Failed to release item lock")
		}
	}()

	job, err := o.store.GetJob(ctx, ref.JobID)
	if err != nil {
		logger.Warn().Err(err).Str("job_id", ref.JobID).Msg("Queued item references missing job")
		return
	}
	item := job.Item(ref.ItemID)
	if item == nil {
		logger.Warn().Str("job_id", ref.JobID).Str("item_id", ref.ItemID).Msg("Queued item not present in job")
		return
	}
	if item.Status.Terminal() {
		logger.Debug().Str("item_id", ref.ItemID).Msg("Item already terminal, skipping redelivery")
		return
	}

	mu := o.jobLock(job.InternalID)
	persist := func(ctx context.Context) error {
		mu.Lock()
		defer mu.Unlock()
		return o.saveItem(ctx, job.InternalID, item)
	}

	o.runner.Run(ctx, job, item, persist)

	// Terminal commit and item event happen under the job mutex so a
	// sibling worker cannot finalize between them.
	mu.Lock()
	if perr := o.saveItem(ctx, job.InternalID, item); perr != nil {
		logger.Warn().Err(perr).
			Str("job_id", job.InternalID).
			Str("item_id", item.ItemID).
			Msg("Failed to persist item result")
	}
	o.publishItemEvent(job, item)
	mu.Unlock()

	o.tryFinalizeStaged(ctx, job.InternalID, mu)
}

// saveItem folds one item's current state into the stored job document.
// Rewriting the whole document from this worker's copy would clobber
// sibling items finished by other workers, so the job is re-read first.
func (o *Orchestrator) saveItem(ctx context.Context, internalID string, item *types.BatchItem) error {
	job, err := o.store.GetJob(ctx, internalID)
	if err != nil {
		return err
	}
	stored := job.Item(item.ItemID)
	if stored == nil {
		return fmt.Errorf("item %s not present in job %s", item.ItemID, internalID)
	}
	*stored = *item
	job.UpdateCounts()
	return o.store.SaveJob(ctx, job)
}

// tryFinalizeStaged finalizes the job if every item is terminal. The
// store-level finalize lock keeps workers in other processes from
// finalizing the same job twice.
func (o *Orchestrator) tryFinalizeStaged(ctx context.Context, internalID string, mu *sync.Mutex) {
	mu.Lock()
	defer mu.Unlock()

	job, err := o.store.GetJob(ctx, internalID)
	if err != nil {
		return
	}
	if job.Status.Terminal() {
		o.dropJobLock(internalID)
		return
	}
	if !job.AllTerminal() {
		return
	}

	lockName := "finalize:" + internalID
	locked, err := o.store.AcquireLock(ctx, lockName, finalizeLockTTL)
	if err != nil || !locked {
		return
	}
	defer func() {
		if rerr := o.store.ReleaseLock(ctx, lockName); rerr != nil {
			o.logger.Warn().Err(rerr).Str("job_id", internalID).Msg("Failed to release finalize lock")
		}
	}()

	// Re-read under the lock; another process may have finalized between
	// the check and the acquisition.
	job, err = o.store.GetJob(ctx, internalID)
	if err != nil || job.Status.Terminal() || !job.AllTerminal() {
		return
	}

	job.Finalize()
	if err := o.store.SaveJob(ctx, job); err != nil {
		o.logger.Error().Err(err).Str("job_id", internalID).Msg("Failed to persist finalized batch")
	}
	o.publish(types.SubjectBatchCompleted, types.NewBatchCompletedPayload(job))
	o.observeFinalized(job)
	o.dropJobLock(internalID)
}

func (o *Orchestrator) refreshQueueDepth(ctx context.Context) {
	if n, err := o.store.QueueLen(ctx, queueDownload); err == nil {
		metrics.QueueDepth.Set(float64(n))
	}
}
