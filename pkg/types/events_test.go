package types

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestBatchRequestValidate tests the accept validation rules
func TestBatchRequestValidate(t *testing.T) {
	valid := BatchRequestItem{
		UserID:     "7f3b7b3e-8f63-4a3a-9a56-3a6f7d1c2b10",
		TemplateID: "b3c1d7aa-12f4-4bd0-8a51-9e2f0c4d5e6f",
		SerialCode: "CERT-001",
	}

	tests := []struct {
		name    string
		payload BatchRequestPayload
		wantErr string
	}{
		{
			name: "valid payload",
			payload: BatchRequestPayload{
				PDFJobID: "0e8dd0a4-7b5c-4d4e-95da-fd2c6e0a5b3d",
				Items:    []BatchRequestItem{valid},
			},
		},
		{
			name:    "missing pdf_job_id",
			payload: BatchRequestPayload{Items: []BatchRequestItem{valid}},
			wantErr: "pdf_job_id is required",
		},
		{
			name: "malformed pdf_job_id",
			payload: BatchRequestPayload{
				PDFJobID: "not-a-uuid",
				Items:    []BatchRequestItem{valid},
			},
			wantErr: "invalid pdf_job_id",
		},
		{
			name:    "empty items",
			payload: BatchRequestPayload{PDFJobID: "0e8dd0a4-7b5c-4d4e-95da-fd2c6e0a5b3d"},
			wantErr: "items must not be empty",
		},
		{
			// Item identities are out of scope for the envelope gate; a
			// malformed item fails individually in the pipeline.
			name: "malformed item passes the envelope gate",
			payload: BatchRequestPayload{
				PDFJobID: "0e8dd0a4-7b5c-4d4e-95da-fd2c6e0a5b3d",
				Items:    []BatchRequestItem{{UserID: "nope", TemplateID: "nope"}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.payload.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

// TestBatchItemValidateIdentity tests the per-item identity rules
func TestBatchItemValidateIdentity(t *testing.T) {
	valid := BatchRequestItem{
		UserID:     "7f3b7b3e-8f63-4a3a-9a56-3a6f7d1c2b10",
		TemplateID: "b3c1d7aa-12f4-4bd0-8a51-9e2f0c4d5e6f",
		SerialCode: "CERT-001",
	}

	assert.NoError(t, NewBatchItem(valid).ValidateIdentity())

	badUser := valid
	badUser.UserID = "nope"
	err := NewBatchItem(badUser).ValidateIdentity()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid user_id")

	badTemplate := valid
	badTemplate.TemplateID = "nope"
	err = NewBatchItem(badTemplate).ValidateIdentity()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid template_id")
}

// TestNewEnvelope verifies the outbound envelope contract
func TestNewEnvelope(t *testing.T) {
	payload := BatchFailedPayload{Status: "failed", Code: CodeValidationError, Message: "items must not be empty"}

	env, err := NewEnvelope(SubjectBatchFailed, payload)
	require.NoError(t, err)

	assert.NotEmpty(t, env.EventID)
	assert.Equal(t, SubjectBatchFailed, env.EventType)
	assert.Equal(t, EventSource, env.Source)
	assert.Equal(t, time.UTC, env.Timestamp.Location())
	assert.WithinDuration(t, time.Now().UTC(), env.Timestamp, time.Minute)

	var back BatchFailedPayload
	require.NoError(t, env.Decode(&back))
	assert.Equal(t, payload, back)

	// Fresh id per emission.
	env2, err := NewEnvelope(SubjectBatchFailed, payload)
	require.NoError(t, err)
	assert.NotEqual(t, env.EventID, env2.EventID)
}

// TestBatchFailedPayloadNullEcho verifies the pdf_job_id null contract
// for unparseable inbound requests
func TestBatchFailedPayloadNullEcho(t *testing.T) {
	p := NewBatchFailedPayload("", "", CodeValidationError, "pdf_job_id is required")
	raw, err := json.Marshal(p)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"pdf_job_id":null`)

	withID := NewBatchFailedPayload("0e8dd0a4-7b5c-4d4e-95da-fd2c6e0a5b3d", "", CodeValidationError, "items must not be empty")
	raw, err = json.Marshal(withID)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"pdf_job_id":"0e8dd0a4-7b5c-4d4e-95da-fd2c6e0a5b3d"`)
}

// TestNewBatchCompletedPayload verifies the terminal batch event shape
func TestNewBatchCompletedPayload(t *testing.T) {
	job := NewBatchJob("0e8dd0a4-7b5c-4d4e-95da-fd2c6e0a5b3d")
	ok := NewBatchItem(BatchRequestItem{UserID: "u", TemplateID: "t", SerialCode: "CERT-001"})
	bad := NewBatchItem(BatchRequestItem{UserID: "u", TemplateID: "t", SerialCode: "CERT-002"})
	job.AddItem(ok)
	job.AddItem(bad)
	job.StartProcessing()
	ok.SetCompleted(&ItemData{FileID: "file-1", FileHash: "abc"})
	bad.SetFailed(StageDownload, CodeDownloadError, "gateway returned 404")
	job.Finalize()

	p := NewBatchCompletedPayload(job)
	assert.Equal(t, job.ExternalID, p.PDFJobID)
	assert.Equal(t, job.InternalID, p.JobID)
	assert.Equal(t, JobStatusPartial, p.Status)
	assert.Equal(t, 2, p.TotalItems)
	assert.Equal(t, 1, p.SuccessCount)
	assert.Equal(t, 1, p.FailedCount)
	require.Len(t, p.Items, 2)
	assert.Equal(t, "CERT-001", p.Items[0].SerialCode)
	assert.NotNil(t, p.Items[0].Data)
	assert.Nil(t, p.Items[0].Error)
	assert.Equal(t, "CERT-002", p.Items[1].SerialCode)
	assert.Nil(t, p.Items[1].Data)
	assert.NotNil(t, p.Items[1].Error)
}

// TestNewStatusResponsePayload verifies the status snapshot shape
func TestNewStatusResponsePayload(t *testing.T) {
	job := NewBatchJob("0e8dd0a4-7b5c-4d4e-95da-fd2c6e0a5b3d")
	item := NewBatchItem(BatchRequestItem{UserID: "u", TemplateID: "t", SerialCode: "CERT-001"})
	job.AddItem(item)
	job.StartProcessing()
	item.UpdateStatus(ItemStatusRendering)

	snap := NewStatusResponsePayload(job)
	assert.Equal(t, string(JobStatusProcessing), snap.Status)
	assert.Equal(t, 30, snap.ProgressPct)
	assert.Equal(t, 1, snap.TotalItems)
	require.NotNil(t, snap.CreatedAt)
	assert.Nil(t, snap.CompletedAt)
}
