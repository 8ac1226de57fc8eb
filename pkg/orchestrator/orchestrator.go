package orchestrator

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/certmint/certmint/pkg/config"
	"github.com/certmint/certmint/pkg/jobstore"
	"github.com/certmint/certmint/pkg/log"
	"github.com/certmint/certmint/pkg/metrics"
	"github.com/certmint/certmint/pkg/pipeline"
	"github.com/certmint/certmint/pkg/types"
)

const (
	// queueDownload is the staged layout's work queue. One entry per
	// accepted item.
	queueDownload = "download"

	// acceptLockTTL bounds how long a crashed accept can block duplicate
	// detection for the same external id.
	acceptLockTTL = 30 * time.Second

	// itemLockTTL covers a full pipeline run; an expired lock lets another
	// worker retry an item whose holder died.
	itemLockTTL = 10 * time.Minute

	finalizeLockTTL = 30 * time.Second

	// dequeueWait is the blocking pop timeout; workers re-check for
	// shutdown between waits.
	dequeueWait = 5 * time.Second
)

// Runner executes the per-item certificate pipeline. *pipeline.Pipeline
// satisfies it.
type Runner interface {
	Run(ctx context.Context, job *types.BatchJob, item *types.BatchItem, persist pipeline.PersistFunc) *types.StageError
}

// Publisher emits envelope-wrapped events on the bus. Publish failures
// are logged and never abort batch processing.
type Publisher interface {
	Publish(subject string, payload any) error
}

// Config tunes how accepted batches are dispatched.
type Config struct {
	// Layout selects the dispatch strategy: config.LayoutInline fans out
	// goroutines per batch, config.LayoutStaged feeds a shared work queue
	// consumed by a fixed worker pool.
	Layout string

	// Parallelism bounds concurrent items per batch (inline layout).
	Parallelism int

	// QueueWorkers is the dequeue pool size per process (staged layout).
	QueueWorkers int
}

// Orchestrator accepts batch requests, drives their items through the
// pipeline and finalizes the batch once every item is terminal.
type Orchestrator struct {
	cfg    Config
	store  jobstore.Store
	runner Runner
	pub    Publisher
	logger zerolog.Logger

	// jobLocks serializes store writes per job within this process.
	// Entries are dropped when the job is observed terminal.
	mu       sync.Mutex
	jobLocks map[string]*sync.Mutex

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New builds an orchestrator. Zero config values fall back to the inline
// layout with four workers.
func New(cfg Config, store jobstore.Store, runner Runner, pub Publisher) *Orchestrator {
	if cfg.Layout == "" {
		cfg.Layout = config.LayoutInline
	}
	if cfg.Parallelism < 1 {
		cfg.Parallelism = 4
	}
	if cfg.QueueWorkers < 1 {
		cfg.QueueWorkers = 4
	}
	return &Orchestrator{
		cfg:      cfg,
		store:    store,
		runner:   runner,
		pub:      pub,
		logger:   log.WithComponent("orchestrator"),
		jobLocks: make(map[string]*sync.Mutex),
		stopCh:   make(chan struct{}),
	}
}

// Start launches the staged layout's queue workers. The inline layout has
// no standing goroutines; it runs on the bus handler's goroutine.
func (o *Orchestrator) Start(ctx context.Context) {
	if o.cfg.Layout != config.LayoutStaged {
		return
	}
	for i := 0; i < o.cfg.QueueWorkers; i++ {
		o.wg.Add(1)
		go o.queueWorker(ctx, i)
	}
	o.logger.Info().Int("workers", o.cfg.QueueWorkers).Msg("Queue workers started")
}

// Stop halts the queue workers and waits for in-flight work to commit.
// The caller must stop the bus subscription first so no new batches
// arrive while draining.
func (o *Orchestrator) Stop() {
	close(o.stopCh)
	o.wg.Wait()
}

// HandleBatchRequest is the bus callback for pdf.batch.requested. It
// validates, deduplicates, persists and acknowledges the batch, then
// dispatches its items. In the inline layout the call returns only after
// the batch is finalized.
func (o *Orchestrator) HandleBatchRequest(ctx context.Context, req *types.BatchRequestPayload) {
	o.wg.Add(1)
	defer o.wg.Done()

	metrics.BatchesReceived.Inc()

	if err := req.Validate(); err != nil {
		metrics.BatchesRejected.WithLabelValues(types.CodeValidationError).Inc()
		o.logger.Warn().Err(err).Str("pdf_job_id", req.PDFJobID).Msg("Batch request rejected")
		internalID := o.recordRejection(ctx, req.PDFJobID)
		o.publish(types.SubjectBatchFailed,
			types.NewBatchFailedPayload(req.PDFJobID, internalID, types.CodeValidationError, err.Error()))
		return
	}

	job, ok := o.accept(ctx, req)
	if !ok {
		return
	}

	if o.cfg.Layout == config.LayoutStaged {
		o.dispatchStaged(ctx, job)
		return
	}
	o.dispatchInline(ctx, job)
}

// recordRejection persists a failed job for a rejected batch so later
// status queries resolve it instead of answering not_found. An absent
// external id or one that already indexes a live job leaves the store
// untouched.
func (o *Orchestrator) recordRejection(ctx context.Context, externalID string) string {
	if externalID == "" {
		return ""
	}
	if _, err := o.store.LookupExternal(ctx, externalID); err == nil {
		return ""
	}
	job := types.NewBatchJob(externalID)
	job.Reject()
	if err := o.store.SaveJob(ctx, job); err != nil {
		o.logger.Warn().Err(err).Str("pdf_job_id", externalID).Msg("Failed to persist rejected batch")
		return ""
	}
	return job.InternalID
}

// accept runs the duplicate check and persists the new job. It returns
// false when the request was a duplicate, contended or aborted; in every
// such case the corresponding event has already been published.
func (o *Orchestrator) accept(ctx context.Context, req *types.BatchRequestPayload) (*types.BatchJob, bool) {
	logger := o.logger.With().Str("pdf_job_id", req.PDFJobID).Logger()

	// The accept lock makes duplicate detection atomic: two workers
	// receiving the same external id cannot both mint a job for it.
	acceptKey := "accept:" + req.PDFJobID
	locked, err := o.store.AcquireLock(ctx, acceptKey, acceptLockTTL)
	if err != nil {
		logger.Error().Err(err).Msg("Accept lock unavailable")
		o.abort(req.PDFJobID, "", err.Error())
		return nil, false
	}
	if !locked {
		logger.Warn().Msg("Concurrent accept for the same external id, dropping duplicate")
		return nil, false
	}
	defer func() {
		if rerr := o.store.ReleaseLock(ctx, acceptKey); rerr != nil {
			logger.Warn().Err(rerr).Msg("Failed to release accept lock")
		}
	}()

	prior, err := o.store.LookupExternal(ctx, req.PDFJobID)
	switch {
	case err == nil:
		if job, gerr := o.store.GetJob(ctx, prior); gerr == nil {
			logger.Info().Str("job_id", prior).Msg("Duplicate batch request, re-publishing acceptance")
			o.publish(types.SubjectBatchAccepted, types.NewBatchAcceptedPayload(job))
			return nil, false
		}
		// The index outlived the job record. Accept as a fresh batch.
	case !errors.Is(err, jobstore.ErrNotFound):
		logger.Error().Err(err).Msg("External id lookup failed")
		o.abort(req.PDFJobID, "", err.Error())
		return nil, false
	}

	job := types.NewBatchJob(req.PDFJobID)
	for _, ri := range req.Items {
		job.AddItem(types.NewBatchItem(ri))
	}

	if err := o.store.SaveJob(ctx, job); err != nil {
		logger.Error().Err(err).Msg("Failed to persist accepted batch")
		o.abort(req.PDFJobID, job.InternalID, err.Error())
		return nil, false
	}
	job.StartProcessing()
	if err := o.store.SaveJob(ctx, job); err != nil {
		logger.Error().Err(err).Msg("Failed to persist processing transition")
		o.abort(req.PDFJobID, job.InternalID, err.Error())
		return nil, false
	}

	metrics.BatchesAccepted.Inc()

	// Acknowledged after the job is durably in processing, before any
	// item starts.
	o.publish(types.SubjectBatchAccepted, types.NewBatchAcceptedPayload(job))

	logger.Info().
		Str("job_id", job.InternalID).
		Int("items", job.TotalItems).
		Str("layout", o.cfg.Layout).
		Msg("Batch accepted")

	return job, true
}

// dispatchInline fans the job's items out to goroutines bounded by a
// channel semaphore, waits for all of them and finalizes.
func (o *Orchestrator) dispatchInline(ctx context.Context, job *types.BatchJob) {
	metrics.ActiveBatches.Inc()
	defer metrics.ActiveBatches.Dec()

	sem := make(chan struct{}, o.cfg.Parallelism)
	var wg sync.WaitGroup
	for _, item := range job.Items {
		wg.Add(1)
		sem <- struct{}{}
		go func(it *types.BatchItem) {
			defer wg.Done()
			defer func() { <-sem }()
			o.runInline(ctx, job, it)
		}(item)
	}
	wg.Wait()

	// Every item event has been published by its goroutine, so the
	// terminal batch event is ordered after all of them.
	o.finalizeInline(ctx, job)
}

// runInline executes one item and commits its terminal state together
// with the refreshed batch counters. The pipeline works on a private
// copy of the item; its state is folded into the shared job document
// only under the job mutex, so sibling goroutines never observe a
// half-written item while marshaling the job.
func (o *Orchestrator) runInline(ctx context.Context, job *types.BatchJob, item *types.BatchItem) {
	mu := o.jobLock(job.InternalID)
	clone := *item
	persist := func(ctx context.Context) error {
		mu.Lock()
		defer mu.Unlock()
		*item = clone
		return o.store.SaveJob(ctx, job)
	}

	o.runner.Run(ctx, job, &clone, persist)

	mu.Lock()
	*item = clone
	job.UpdateCounts()
	err := o.store.SaveJob(ctx, job)
	mu.Unlock()
	if err != nil {
		o.logger.Warn().Err(err).
			Str("job_id", job.InternalID).
			Str("item_id", item.ItemID).
			Msg("Failed to persist item result")
	}

	o.publishItemEvent(job, &clone)
}

func (o *Orchestrator) finalizeInline(ctx context.Context, job *types.BatchJob) {
	job.Finalize()
	if err := o.store.SaveJob(ctx, job); err != nil {
		o.logger.Error().Err(err).Str("job_id", job.InternalID).Msg("Failed to persist finalized batch")
	}
	o.publish(types.SubjectBatchCompleted, types.NewBatchCompletedPayload(job))
	o.observeFinalized(job)
	o.dropJobLock(job.InternalID)
}

// Status resolves a status query to a job snapshot. Unknown ids yield a
// not_found snapshot echoing whichever id the caller supplied.
func (o *Orchestrator) Status(ctx context.Context, req *types.StatusRequestPayload) types.StatusResponsePayload {
	notFound := types.StatusResponsePayload{
		PDFJobID: req.PDFJobID,
		JobID:    req.JobID,
		Status:   types.StatusNotFound,
	}

	internalID := req.JobID
	if internalID == "" {
		if req.PDFJobID == "" {
			return notFound
		}
		id, err := o.store.LookupExternal(ctx, req.PDFJobID)
		if err != nil {
			return notFound
		}
		internalID = id
	}

	job, err := o.store.GetJob(ctx, internalID)
	if err != nil {
		return notFound
	}
	return types.NewStatusResponsePayload(job)
}

// publishItemEvent emits the terminal event for one item, derived from
// the state the pipeline left on it.
func (o *Orchestrator) publishItemEvent(job *types.BatchJob, item *types.BatchItem) {
	if item.Status == types.ItemStatusCompleted {
		o.publish(types.SubjectItemCompleted, types.ItemCompletedPayload{
			PDFJobID:   job.ExternalID,
			JobID:      job.InternalID,
			ItemID:     item.ItemID,
			UserID:     item.UserID,
			SerialCode: item.SerialCode,
			Status:     item.Status,
			Data:       item.Data,
		})
		return
	}

	p := types.ItemFailedPayload{
		PDFJobID:   job.ExternalID,
		JobID:      job.InternalID,
		ItemID:     item.ItemID,
		UserID:     item.UserID,
		SerialCode: item.SerialCode,
		Status:     item.Status,
		Error:      item.Error,
	}
	if item.Error != nil {
		p.Message = item.Error.Message
		p.Stage = item.Error.Stage
		p.Code = item.Error.Code
	}
	o.publish(types.SubjectItemFailed, p)
}

// abort publishes a terminal batch.failed event for a batch that never
// reached item processing.
func (o *Orchestrator) abort(externalID, internalID, message string) {
	metrics.BatchesRejected.WithLabelValues(types.CodeStoreError).Inc()
	o.publish(types.SubjectBatchFailed,
		types.NewBatchFailedPayload(externalID, internalID, types.CodeStoreError, message))
}

func (o *Orchestrator) publish(subject string, payload any) {
	if err := o.pub.Publish(subject, payload); err != nil {
		o.logger.Error().Err(err).Str("subject", subject).Msg("Failed to publish event")
	}
}

func (o *Orchestrator) observeFinalized(job *types.BatchJob) {
	metrics.BatchesFinished.WithLabelValues(string(job.Status)).Inc()
	metrics.BatchDuration.Observe(float64(job.ProcessingTimeMS) / 1000.0)
	o.logger.Info().
		Str("job_id", job.InternalID).
		Str("pdf_job_id", job.ExternalID).
		Str("status", string(job.Status)).
		Int("success", job.SuccessCount).
		Int("failed", job.FailedCount).
		Int64("processing_ms", job.ProcessingTimeMS).
		Msg("Batch finalized")
}

func (o *Orchestrator) jobLock(internalID string) *sync.Mutex {
	o.mu.Lock()
	defer o.mu.Unlock()
	mu, ok := o.jobLocks[internalID]
	if !ok {
		mu = &sync.Mutex{}
		o.jobLocks[internalID] = mu
	}
	return mu
}

func (o *Orchestrator) dropJobLock(internalID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.jobLocks, internalID)
}
