package types

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// JobStatus represents the aggregate state of a batch job
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusPartial    JobStatus = "partial"
	JobStatusFailed     JobStatus = "failed"
)

// Terminal reports whether the job status admits no further transitions
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusPartial || s == JobStatusFailed
}

// ItemStatus represents the pipeline state of a single batch item
type ItemStatus string

const (
	ItemStatusPending      ItemStatus = "pending"
	ItemStatusDownloading  ItemStatus = "downloading"
	ItemStatusDownloaded   ItemStatus = "downloaded"
	ItemStatusRendering    ItemStatus = "rendering"
	ItemStatusRendered     ItemStatus = "rendered"
	ItemStatusGeneratingQR ItemStatus = "generating_qr"
	ItemStatusQRGenerated  ItemStatus = "qr_generated"
	ItemStatusInsertingQR  ItemStatus = "inserting_qr"
	ItemStatusQRInserted   ItemStatus = "qr_inserted"
	ItemStatusUploading    ItemStatus = "uploading"
	ItemStatusCompleted    ItemStatus = "completed"
	ItemStatusFailed       ItemStatus = "failed"
)

// Terminal reports whether the item status admits no further transitions
func (s ItemStatus) Terminal() bool {
	return s == ItemStatusCompleted || s == ItemStatusFailed
}

// statusProgress maps item statuses to their progress percentage.
// Failed has no entry: a failing item keeps the progress it last reached.
var statusProgress = map[ItemStatus]int{
	ItemStatusPending:      0,
	ItemStatusDownloading:  10,
	ItemStatusDownloaded:   20,
	ItemStatusRendering:    30,
	ItemStatusRendered:     50,
	ItemStatusGeneratingQR: 60,
	ItemStatusQRGenerated:  70,
	ItemStatusInsertingQR:  80,
	ItemStatusQRInserted:   85,
	ItemStatusUploading:    90,
	ItemStatusCompleted:    100,
}

// Progress returns the progress percentage associated with a status,
// or -1 when the status carries no fixed progress value
func (s ItemStatus) Progress() int {
	if p, ok := statusProgress[s]; ok {
		return p
	}
	return -1
}

// KeyValue is a single placeholder replacement: the literal token
// {{key}} in the template becomes value in the rendered document
type KeyValue struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// ItemData is the success result of one batch item
type ItemData struct {
	FileID           string    `json:"file_id"`
	OriginalName     string    `json:"original_name,omitempty"`
	FileName         string    `json:"file_name"`
	FileSize         int64     `json:"file_size"`
	FileHash         string    `json:"file_hash"`
	MimeType         string    `json:"mime_type"`
	IsPublic         bool      `json:"is_public"`
	DownloadURL      string    `json:"download_url,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	ProcessingTimeMS int64     `json:"processing_time_ms"`
}

// ItemError is the failure result of one batch item. UserID echoes the
// item's user so consumers can route failure notifications without
// rejoining against the item record.
type ItemError struct {
	UserID  string `json:"user_id"`
	Status  string `json:"status"`
	Message string `json:"message"`
	Stage   Stage  `json:"stage"`
	Code    string `json:"code,omitempty"`
}

// BatchItem is one certificate within a batch
type BatchItem struct {
	ItemID     string `json:"item_id"`
	UserID     string `json:"user_id"`
	TemplateID string `json:"template_id"`
	SerialCode string `json:"serial_code"`
	IsPublic   bool   `json:"is_public"`

	Placeholders []KeyValue `json:"pdf,omitempty"`
	QRConfig     FieldList  `json:"qr,omitempty"`
	QRPDFConfig  FieldList  `json:"qr_pdf,omitempty"`

	Status      ItemStatus `json:"status"`
	ProgressPct int        `json:"progress_pct"`
	Data        *ItemData  `json:"data,omitempty"`
	Error       *ItemError `json:"error,omitempty"`

	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// NewBatchItem builds a pending item from an inbound request item,
// minting a fresh item id
func NewBatchItem(req BatchRequestItem) *BatchItem {
	return &BatchItem{
		ItemID:       uuid.NewString(),
		UserID:       req.UserID,
		TemplateID:   req.TemplateID,
		SerialCode:   req.SerialCode,
		IsPublic:     req.IsPublic,
		Placeholders: req.PDF,
		QRConfig:     req.QR,
		QRPDFConfig:  req.QRPDF,
		Status:       ItemStatusPending,
	}
}

// ValidateIdentity checks the item's identity fields: user_id and
// template_id must parse as UUIDs
func (it *BatchItem) ValidateIdentity() error {
	return validateIdentity(it.UserID, it.TemplateID)
}

func validateIdentity(userID, templateID string) error {
	if _, err := uuid.Parse(userID); err != nil {
		return fmt.Errorf("invalid user_id %q: %w", userID, err)
	}
	if _, err := uuid.Parse(templateID); err != nil {
		return fmt.Errorf("invalid template_id %q: %w", templateID, err)
	}
	return nil
}

// UpdateStatus advances the item to a non-terminal pipeline status.
// Terminal items are never mutated; calls against them are a no-op.
func (it *BatchItem) UpdateStatus(status ItemStatus) {
	if it.Status.Terminal() {
		return
	}
	it.Status = status
	if p, ok := statusProgress[status]; ok {
		it.ProgressPct = p
	}
	now := time.Now().UTC()
	if status == ItemStatusDownloading && it.StartedAt == nil {
		it.StartedAt = &now
	}
	if status.Terminal() {
		it.CompletedAt = &now
	}
}

// SetCompleted marks the item completed with its result data.
// No-op when the item is already terminal.
func (it *BatchItem) SetCompleted(data *ItemData) {
	if it.Status.Terminal() {
		return
	}
	now := time.Now().UTC()
	it.Status = ItemStatusCompleted
	it.ProgressPct = 100
	it.Data = data
	it.Error = nil
	it.CompletedAt = &now
}

// SetFailed marks the item failed, attributing the failure to a stage.
// No-op when the item is already terminal.
func (it *BatchItem) SetFailed(stage Stage, code, message string) {
	if it.Status.Terminal() {
		return
	}
	now := time.Now().UTC()
	it.Status = ItemStatusFailed
	it.Error = &ItemError{
		UserID:  it.UserID,
		Status:  string(ItemStatusFailed),
		Message: message,
		Stage:   stage,
		Code:    code,
	}
	it.Data = nil
	it.CompletedAt = &now
}

// Fail records a stage error on the item
func (it *BatchItem) Fail(serr *StageError) {
	it.SetFailed(serr.Stage, serr.Code, serr.Message)
}

// Result converts the item to its roster entry for events and status
// snapshots. Data and Error are mutually exclusive by construction.
func (it *BatchItem) Result() ItemResult {
	return ItemResult{
		ItemID:     it.ItemID,
		UserID:     it.UserID,
		SerialCode: it.SerialCode,
		Status:     it.Status,
		Data:       it.Data,
		Error:      it.Error,
	}
}

// BatchJob is the outer unit of work: a client-submitted group of
// certificate items processed and finalized together
type BatchJob struct {
	// InternalID is minted on accept and keys the job in the store.
	InternalID string `json:"job_id"`
	// ExternalID is supplied by the caller and echoed in every event.
	ExternalID string `json:"pdf_job_id"`

	Items []*BatchItem `json:"items"`

	Status       JobStatus `json:"status"`
	TotalItems   int       `json:"total_items"`
	SuccessCount int       `json:"success_count"`
	FailedCount  int       `json:"failed_count"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	ProcessingTimeMS int64 `json:"processing_time_ms,omitempty"`
}

// NewBatchJob builds a pending job for the given external id, minting
// a fresh internal id
func NewBatchJob(externalID string) *BatchJob {
	return &BatchJob{
		InternalID: uuid.NewString(),
		ExternalID: externalID,
		Status:     JobStatusPending,
		CreatedAt:  time.Now().UTC(),
	}
}

// AddItem appends an item and keeps TotalItems consistent
func (j *BatchJob) AddItem(item *BatchItem) {
	j.Items = append(j.Items, item)
	j.TotalItems = len(j.Items)
}

// Item returns the item with the given id, or nil
func (j *BatchJob) Item(itemID string) *BatchItem {
	for _, it := range j.Items {
		if it.ItemID == itemID {
			return it
		}
	}
	return nil
}

// StartProcessing transitions the job from pending to processing
func (j *BatchJob) StartProcessing() {
	if j.Status.Terminal() {
		return
	}
	now := time.Now().UTC()
	j.Status = JobStatusProcessing
	j.StartedAt = &now
}

// Reject seals a job that was turned away at accept time in failed
// state, so later status queries resolve it instead of answering
// not_found
func (j *BatchJob) Reject() {
	if j.Status.Terminal() {
		return
	}
	now := time.Now().UTC()
	j.Status = JobStatusFailed
	j.CompletedAt = &now
}

// UpdateCounts recomputes success and failed counters from item states
func (j *BatchJob) UpdateCounts() {
	success, failed := 0, 0
	for _, it := range j.Items {
		switch it.Status {
		case ItemStatusCompleted:
			success++
		case ItemStatusFailed:
			failed++
		}
	}
	j.SuccessCount = success
	j.FailedCount = failed
}

// AllTerminal reports whether every item reached a terminal state
func (j *BatchJob) AllTerminal() bool {
	for _, it := range j.Items {
		if !it.Status.Terminal() {
			return false
		}
	}
	return true
}

// Finalize seals the job once all items are terminal: counters are
// recomputed, processing time measured from StartedAt, and the final
// status derived (no failures: completed; no successes: failed;
// otherwise partial). Terminal jobs are never re-finalized.
func (j *BatchJob) Finalize() {
	if j.Status.Terminal() {
		return
	}
	j.UpdateCounts()
	now := time.Now().UTC()
	j.CompletedAt = &now
	if j.StartedAt != nil {
		j.ProcessingTimeMS = now.Sub(*j.StartedAt).Milliseconds()
	}
	switch {
	case j.FailedCount == 0:
		j.Status = JobStatusCompleted
	case j.SuccessCount == 0:
		j.Status = JobStatusFailed
	default:
		j.Status = JobStatusPartial
	}
}

// Progress returns the mean item progress, 0..100
func (j *BatchJob) Progress() int {
	if len(j.Items) == 0 {
		return 0
	}
	sum := 0
	for _, it := range j.Items {
		sum += it.ProgressPct
	}
	return sum / len(j.Items)
}

// Results returns the item roster in submission order
func (j *BatchJob) Results() []ItemResult {
	out := make([]ItemResult, 0, len(j.Items))
	for _, it := range j.Items {
		out = append(out, it.Result())
	}
	return out
}
