package bus

import (
	"encoding/json"
	"fmt"

	"github.com/certmint/certmint/pkg/types"
)

// encode wraps a payload in a fresh event envelope and marshals it.
func encode(eventType string, payload any) ([]byte, error) {
	env, err := types.NewEnvelope(eventType, payload)
	if err != nil {
		return nil, fmt.Errorf("failed to build %s envelope: %w", eventType, err)
	}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s envelope: %w", eventType, err)
	}
	return data, nil
}

// decodeBatchRequest unwraps an enveloped batch request. Semantic
// validation (UUID shapes, non-empty items) is the orchestrator's job;
// only structural problems are errors here.
func decodeBatchRequest(data []byte) (*types.BatchRequestPayload, error) {
	var env types.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("invalid event envelope: %w", err)
	}
	if len(env.Payload) == 0 {
		return nil, fmt.Errorf("event envelope has no payload")
	}
	var req types.BatchRequestPayload
	if err := json.Unmarshal(env.Payload, &req); err != nil {
		return nil, fmt.Errorf("invalid batch request payload: %w", err)
	}
	return &req, nil
}

// decodeStatusRequest accepts both an enveloped status request and a
// bare payload, so ad-hoc queries do not need the full event wrapping.
func decodeStatusRequest(data []byte) (*types.StatusRequestPayload, error) {
	var env types.Envelope
	if err := json.Unmarshal(data, &env); err == nil && len(env.Payload) > 0 {
		data = env.Payload
	}
	var req types.StatusRequestPayload
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("invalid status request payload: %w", err)
	}
	return &req, nil
}

// extractExternalID digs the external job id out of a payload that
// failed full decoding, so rejection events can still name the job.
// Returns the empty string when nothing recognizable is found.
func extractExternalID(data []byte) string {
	var probe struct {
		Payload struct {
			PDFJobID string `json:"pdf_job_id"`
		} `json:"payload"`
		PDFJobID string `json:"pdf_job_id"`
	}
	// Best effort: fields that did decode survive a partial failure.
	_ = json.Unmarshal(data, &probe)
	if probe.Payload.PDFJobID != "" {
		return probe.Payload.PDFJobID
	}
	return probe.PDFJobID
}
