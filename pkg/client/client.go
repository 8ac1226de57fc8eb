package client

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/certmint/certmint/pkg/types"
)

const flushTimeout = 10 * time.Second

// Client submits certificate batches and queries job status over the bus.
// It is the CLI side of the event plane and keeps its own connection.
type Client struct {
	conn *nats.Conn
}

// New connects to the bus at url
func New(url string) (*Client, error) {
	conn, err := nats.Connect(url,
		nats.Name("certmint-cli"),
		nats.Timeout(10*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to bus at %s: %w", url, err)
	}
	return &Client{conn: conn}, nil
}

// Close closes the bus connection
func (c *Client) Close() {
	c.conn.Close()
}

// Submit publishes a batch request and returns its external id. A request
// without a pdf_job_id gets a freshly minted one.
func (c *Client) Submit(req *types.BatchRequestPayload) (string, error) {
	data, err := prepareSubmit(req)
	if err != nil {
		return "", err
	}
	if err := c.conn.Publish(types.SubjectBatchRequested, data); err != nil {
		return "", fmt.Errorf("failed to publish batch request: %w", err)
	}
	// Publish only buffers; the flush confirms the server took the message.
	if err := c.conn.FlushTimeout(flushTimeout); err != nil {
		return "", fmt.Errorf("failed to flush batch request: %w", err)
	}
	return req.PDFJobID, nil
}

// SubmitAndWait submits a batch and blocks until its terminal event. The
// external id is returned as soon as the submission succeeded, so a
// timeout while waiting still leaves the caller with a handle to poll.
func (c *Client) SubmitAndWait(ctx context.Context, req *types.BatchRequestPayload) (string, *types.BatchCompletedPayload, error) {
	// Subscriptions are armed before publishing so a batch that finishes
	// quickly cannot slip past the wait.
	events := make(chan *nats.Msg, 16)
	subCompleted, err := c.conn.ChanSubscribe(types.SubjectBatchCompleted, events)
	if err != nil {
		return "", nil, fmt.Errorf("failed to subscribe to %s: %w", types.SubjectBatchCompleted, err)
	}
	defer subCompleted.Unsubscribe()

	subFailed, err := c.conn.ChanSubscribe(types.SubjectBatchFailed, events)
	if err != nil {
		return "", nil, fmt.Errorf("failed to subscribe to %s: %w", types.SubjectBatchFailed, err)
	}
	defer subFailed.Unsubscribe()

	externalID, err := c.Submit(req)
	if err != nil {
		return "", nil, err
	}

	for {
		select {
		case <-ctx.Done():
			return externalID, nil, fmt.Errorf("waiting for batch %s: %w", externalID, ctx.Err())
		case msg := <-events:
			completed, failure, matched := matchTerminal(msg.Data, externalID)
			if !matched {
				continue
			}
			if failure != "" {
				return externalID, nil, fmt.Errorf("batch %s rejected: %s", externalID, failure)
			}
			return externalID, completed, nil
		}
	}
}

// Status queries the running service for a job snapshot by external or
// internal id.
func (c *Client) Status(ctx context.Context, req types.StatusRequestPayload) (*types.StatusResponsePayload, error) {
	env, err := types.NewEnvelope(types.SubjectStatusRequested, req)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("failed to encode status request: %w", err)
	}

	msg, err := c.conn.RequestWithContext(ctx, types.SubjectStatusRequested, data)
	if err != nil {
		return nil, fmt.Errorf("status request failed: %w", err)
	}

	var reply types.Envelope
	if err := json.Unmarshal(msg.Data, &reply); err != nil {
		return nil, fmt.Errorf("failed to decode status reply: %w", err)
	}
	var snapshot types.StatusResponsePayload
	if err := reply.Decode(&snapshot); err != nil {
		return nil, err
	}
	return &snapshot, nil
}

// prepareSubmit validates the request, minting an external id when none
// is set, and returns the enveloped wire bytes.
func prepareSubmit(req *types.BatchRequestPayload) ([]byte, error) {
	if req.PDFJobID == "" {
		req.PDFJobID = uuid.NewString()
	}
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid batch request: %w", err)
	}
	// Item identities fail individually on the server side; the CLI
	// checks them up front so a typo surfaces before anything is queued.
	for i := range req.Items {
		if err := req.Items[i].ValidateIdentity(); err != nil {
			return nil, fmt.Errorf("invalid batch request: item %d: %w", i, err)
		}
	}

	env, err := types.NewEnvelope(types.SubjectBatchRequested, req)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("failed to encode batch request: %w", err)
	}
	return data, nil
}

// matchTerminal inspects one bus message for the terminal event of the
// given batch. It returns the completion payload for pdf.batch.completed,
// a failure description for pdf.batch.failed, and whether the message
// belonged to the batch at all.
func matchTerminal(data []byte, externalID string) (*types.BatchCompletedPayload, string, bool) {
	var env types.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, "", false
	}

	switch env.EventType {
	case types.SubjectBatchCompleted:
		var payload types.BatchCompletedPayload
		if err := env.Decode(&payload); err != nil || payload.PDFJobID != externalID {
			return nil, "", false
		}
		return &payload, "", true

	case types.SubjectBatchFailed:
		var payload types.BatchFailedPayload
		if err := env.Decode(&payload); err != nil || payload.PDFJobID == nil || *payload.PDFJobID != externalID {
			return nil, "", false
		}
		return nil, fmt.Sprintf("%s (%s)", payload.Message, payload.Code), true
	}
	return nil, "", false
}
