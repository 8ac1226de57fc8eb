package types

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventSource identifies this service in every outbound envelope
const EventSource = "certmint"

// Bus subjects
const (
	SubjectBatchRequested  = "pdf.batch.requested"
	SubjectBatchAccepted   = "pdf.batch.accepted"
	SubjectBatchCompleted  = "pdf.batch.completed"
	SubjectBatchFailed     = "pdf.batch.failed"
	SubjectItemCompleted   = "pdf.item.completed"
	SubjectItemFailed      = "pdf.item.failed"
	SubjectStatusRequested = "pdf.job.status.requested"
	SubjectStatusResponse  = "pdf.job.status.response"
)

// Envelope is the common wrapper of every event on the bus. EventID is
// fresh per emission; Timestamp is UTC.
type Envelope struct {
	EventID   string          `json:"event_id"`
	EventType string          `json:"event_type"`
	Timestamp time.Time       `json:"timestamp"`
	Source    string          `json:"source"`
	Payload   json.RawMessage `json:"payload"`
}

// NewEnvelope wraps a payload for emission on the given subject
func NewEnvelope(eventType string, payload any) (*Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", eventType, err)
	}
	return &Envelope{
		EventID:   uuid.NewString(),
		EventType: eventType,
		Timestamp: time.Now().UTC(),
		Source:    EventSource,
		Payload:   raw,
	}, nil
}

// Decode unmarshals the envelope payload into v
func (e *Envelope) Decode(v any) error {
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("failed to decode %s payload: %w", e.EventType, err)
	}
	return nil
}

// BatchRequestItem is one certificate specification in an inbound batch
type BatchRequestItem struct {
	UserID     string     `json:"user_id"`
	TemplateID string     `json:"template_id"`
	SerialCode string     `json:"serial_code"`
	IsPublic   bool       `json:"is_public"`
	PDF        []KeyValue `json:"pdf"`
	QR         FieldList  `json:"qr"`
	QRPDF      FieldList  `json:"qr_pdf"`
}

// ValidateIdentity checks the request item's identity fields the same
// way the pipeline does, for callers that want to fail fast before
// submitting
func (i *BatchRequestItem) ValidateIdentity() error {
	return validateIdentity(i.UserID, i.TemplateID)
}

// BatchRequestPayload is the payload of pdf.batch.requested
type BatchRequestPayload struct {
	PDFJobID string             `json:"pdf_job_id"`
	Items    []BatchRequestItem `json:"items"`
}

// Validate checks the batch envelope: the external id must be a UUID
// and the item list non-empty. Item identities are checked per item by
// the pipeline, so one malformed item fails alone while its siblings
// run.
func (p *BatchRequestPayload) Validate() error {
	if p.PDFJobID == "" {
		return fmt.Errorf("pdf_job_id is required")
	}
	if _, err := uuid.Parse(p.PDFJobID); err != nil {
		return fmt.Errorf("invalid pdf_job_id %q: %w", p.PDFJobID, err)
	}
	if len(p.Items) == 0 {
		return fmt.Errorf("items must not be empty")
	}
	return nil
}

// ItemResult is one item's terminal envelope as carried by
// pdf.batch.completed and status snapshots. Exactly one of Data and
// Error is set for terminal items.
type ItemResult struct {
	ItemID     string     `json:"item_id"`
	UserID     string     `json:"user_id"`
	SerialCode string     `json:"serial_code"`
	Status     ItemStatus `json:"status"`
	Data       *ItemData  `json:"data,omitempty"`
	Error      *ItemError `json:"error,omitempty"`
}

// AcceptedItem is one roster entry of pdf.batch.accepted
type AcceptedItem struct {
	ItemID     string     `json:"item_id"`
	SerialCode string     `json:"serial_code"`
	Status     ItemStatus `json:"status"`
}

// BatchAcceptedPayload is the payload of pdf.batch.accepted. On a
// duplicate accept it re-carries the prior internal id and the current
// item statuses.
type BatchAcceptedPayload struct {
	PDFJobID   string         `json:"pdf_job_id"`
	JobID      string         `json:"job_id"`
	TotalItems int            `json:"total_items"`
	Items      []AcceptedItem `json:"items"`
}

// NewBatchAcceptedPayload builds the accept acknowledgement for a job
func NewBatchAcceptedPayload(job *BatchJob) BatchAcceptedPayload {
	items := make([]AcceptedItem, 0, len(job.Items))
	for _, it := range job.Items {
		items = append(items, AcceptedItem{
			ItemID:     it.ItemID,
			SerialCode: it.SerialCode,
			Status:     it.Status,
		})
	}
	return BatchAcceptedPayload{
		PDFJobID:   job.ExternalID,
		JobID:      job.InternalID,
		TotalItems: job.TotalItems,
		Items:      items,
	}
}

// ItemCompletedPayload is the payload of pdf.item.completed
type ItemCompletedPayload struct {
	PDFJobID   string     `json:"pdf_job_id"`
	JobID      string     `json:"job_id"`
	ItemID     string     `json:"item_id"`
	UserID     string     `json:"user_id"`
	SerialCode string     `json:"serial_code"`
	Status     ItemStatus `json:"status"`
	Data       *ItemData  `json:"data,omitempty"`
}

// ItemFailedPayload is the payload of pdf.item.failed. Message, stage
// and code are carried flat for log consumers alongside the full error
// envelope.
type ItemFailedPayload struct {
	PDFJobID   string     `json:"pdf_job_id"`
	JobID      string     `json:"job_id"`
	ItemID     string     `json:"item_id"`
	UserID     string     `json:"user_id"`
	SerialCode string     `json:"serial_code"`
	Status     ItemStatus `json:"status"`
	Message    string     `json:"message"`
	Stage      Stage      `json:"stage"`
	Code       string     `json:"code,omitempty"`
	Error      *ItemError `json:"error,omitempty"`
}

// BatchCompletedPayload is the payload of pdf.batch.completed. Items
// preserve request-submission order.
type BatchCompletedPayload struct {
	PDFJobID         string       `json:"pdf_job_id"`
	JobID            string       `json:"job_id"`
	Status           JobStatus    `json:"status"`
	TotalItems       int          `json:"total_items"`
	SuccessCount     int          `json:"success_count"`
	FailedCount      int          `json:"failed_count"`
	Items            []ItemResult `json:"items"`
	ProcessingTimeMS int64        `json:"processing_time_ms"`
}

// NewBatchCompletedPayload builds the terminal batch event from a
// finalized job
func NewBatchCompletedPayload(job *BatchJob) BatchCompletedPayload {
	return BatchCompletedPayload{
		PDFJobID:         job.ExternalID,
		JobID:            job.InternalID,
		Status:           job.Status,
		TotalItems:       job.TotalItems,
		SuccessCount:     job.SuccessCount,
		FailedCount:      job.FailedCount,
		Items:            job.Results(),
		ProcessingTimeMS: job.ProcessingTimeMS,
	}
}

// BatchFailedPayload is the payload of pdf.batch.failed, emitted only
// when a batch is rejected or aborted before item processing. PDFJobID
// is null when the inbound envelope carried none.
type BatchFailedPayload struct {
	PDFJobID *string `json:"pdf_job_id"`
	JobID    string  `json:"job_id,omitempty"`
	Status   string  `json:"status"`
	Message  string  `json:"message"`
	Code     string  `json:"code"`
}

// NewBatchFailedPayload builds an abort event. externalID may be empty
// when the inbound payload did not carry one.
func NewBatchFailedPayload(externalID, internalID, code, message string) BatchFailedPayload {
	p := BatchFailedPayload{
		JobID:   internalID,
		Status:  string(JobStatusFailed),
		Message: message,
		Code:    code,
	}
	if externalID != "" {
		p.PDFJobID = &externalID
	}
	return p
}

// StatusRequestPayload is the payload of pdf.job.status.requested,
// carrying either the external or the internal id
type StatusRequestPayload struct {
	PDFJobID string `json:"pdf_job_id,omitempty"`
	JobID    string `json:"job_id,omitempty"`
}

// StatusNotFound marks a status response for an unknown job id
const StatusNotFound = "not_found"

// StatusResponsePayload is the job snapshot answered to status queries
type StatusResponsePayload struct {
	PDFJobID         string       `json:"pdf_job_id,omitempty"`
	JobID            string       `json:"job_id,omitempty"`
	Status           string       `json:"status"`
	TotalItems       int          `json:"total_items,omitempty"`
	SuccessCount     int          `json:"success_count"`
	FailedCount      int          `json:"failed_count"`
	ProgressPct      int          `json:"progress_pct"`
	Items            []ItemResult `json:"items,omitempty"`
	CreatedAt        *time.Time   `json:"created_at,omitempty"`
	CompletedAt      *time.Time   `json:"completed_at,omitempty"`
	ProcessingTimeMS int64        `json:"processing_time_ms,omitempty"`
}

// NewStatusResponsePayload builds the snapshot for a stored job
func NewStatusResponsePayload(job *BatchJob) StatusResponsePayload {
	created := job.CreatedAt
	return StatusResponsePayload{
		PDFJobID:         job.ExternalID,
		JobID:            job.InternalID,
		Status:           string(job.Status),
		TotalItems:       job.TotalItems,
		SuccessCount:     job.SuccessCount,
		FailedCount:      job.FailedCount,
		ProgressPct:      job.Progress(),
		Items:            job.Results(),
		CreatedAt:        &created,
		CompletedAt:      job.CompletedAt,
		ProcessingTimeMS: job.ProcessingTimeMS,
	}
}
