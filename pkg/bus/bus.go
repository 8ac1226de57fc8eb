package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/certmint/certmint/pkg/log"
	"github.com/certmint/certmint/pkg/metrics"
	"github.com/certmint/certmint/pkg/types"
)

// BatchHandler accepts inbound batch requests. *orchestrator.Orchestrator
// satisfies it.
type BatchHandler interface {
	HandleBatchRequest(ctx context.Context, req *types.BatchRequestPayload)
}

// StatusResolver produces job snapshots for status queries.
type StatusResolver interface {
	Status(ctx context.Context, req *types.StatusRequestPayload) types.StatusResponsePayload
}

// Config holds the connection settings for the event plane.
type Config struct {
	// URL is the NATS server address.
	URL string

	// Name identifies this client on the server, visible in monitoring.
	Name string
}

// Bus is the NATS-backed event plane: it consumes request subjects and
// publishes every outbound event wrapped in the common envelope.
type Bus struct {
	conn   *nats.Conn
	logger zerolog.Logger

	mu   sync.Mutex
	subs []*nats.Subscription

	// handlers tracks in-flight message goroutines for draining.
	handlers sync.WaitGroup
}

// Connect establishes the NATS connection. The connection retries
// indefinitely; a worker with no bus has nothing else to do.
func Connect(cfg Config) (*Bus, error) {
	logger := log.WithComponent("bus")

	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.Timeout(10 * time.Second),
		nats.ReconnectWait(2 * time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				logger.Warn().Err(err).Msg("Bus disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info().Str("url", nc.ConnectedUrl()).Msg("Bus reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			logger.Error().Err(err).Msg("Bus error")
		}),
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to bus at %s: %w", cfg.URL, err)
	}
	logger.Info().Str("url", conn.ConnectedUrl()).Msg("Bus connected")

	return &Bus{conn: conn, logger: logger}, nil
}

// Publish wraps the payload in an event envelope and sends it. The
// envelope's event type is the subject itself.
func (b *Bus) Publish(subject string, payload any) error {
	data, err := encode(subject, payload)
	if err != nil {
		return err
	}
	if err := b.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish %s: %w", subject, err)
	}
	metrics.EventsPublished.WithLabelValues(subject).Inc()
	return nil
}

// Request performs a request/reply exchange with an enveloped payload
// and returns the enveloped response.
func (b *Bus) Request(ctx context.Context, subject string, payload any) (*types.Envelope, error) {
	data, err := encode(subject, payload)
	if err != nil {
		return nil, err
	}
	msg, err := b.conn.RequestWithContext(ctx, subject, data)
	if err != nil {
		return nil, fmt.Errorf("request on %s failed: %w", subject, err)
	}
	metrics.EventsPublished.WithLabelValues(subject).Inc()

	var env types.Envelope
	if err := json.Unmarshal(msg.Data, &env); err != nil {
		return nil, fmt.Errorf("failed to decode %s reply: %w", subject, err)
	}
	return &env, nil
}

// SubscribeBatchRequests consumes pdf.batch.requested. Every message is
// handled on its own goroutine; malformed payloads are answered with a
// validation failure event and never stop the subscription.
func (b *Bus) SubscribeBatchRequests(ctx context.Context, handler BatchHandler) error {
	sub, err := b.conn.Subscribe(types.SubjectBatchRequested, func(msg *nats.Msg) {
		metrics.EventsReceived.WithLabelValues(types.SubjectBatchRequested).Inc()
		b.handlers.Add(1)
		go func() {
			defer b.handlers.Done()
			b.handleBatchRequest(ctx, handler, msg.Data)
		}()
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", types.SubjectBatchRequested, err)
	}
	b.track(sub)
	b.logger.Info().Str("subject", types.SubjectBatchRequested).Msg("Subscribed")
	return nil
}

func (b *Bus) handleBatchRequest(ctx context.Context, handler BatchHandler, data []byte) {
	req, err := decodeBatchRequest(data)
	if err != nil {
		metrics.EventsMalformed.Inc()
		b.logger.Warn().Err(err).Msg("Discarding malformed batch request")

		// The failure event echoes the external id when one could still
		// be read out of the broken payload, and carries null otherwise.
		failed := types.NewBatchFailedPayload(
			extractExternalID(data), "", types.CodeValidationError, err.Error())
		if perr := b.Publish(types.SubjectBatchFailed, failed); perr != nil {
			b.logger.Error().Err(perr).Msg("Failed to publish rejection")
		}
		return
	}
	handler.HandleBatchRequest(ctx, req)
}

// SubscribeStatusRequests consumes pdf.job.status.requested and answers
// each query with a snapshot: on the reply inbox when the request set
// one, otherwise on pdf.job.status.response.
func (b *Bus) SubscribeStatusRequests(ctx context.Context, resolver StatusResolver) error {
	sub, err := b.conn.Subscribe(types.SubjectStatusRequested, func(msg *nats.Msg) {
		metrics.EventsReceived.WithLabelValues(types.SubjectStatusRequested).Inc()
		b.handlers.Add(1)
		go func() {
			defer b.handlers.Done()
			b.handleStatusRequest(ctx, resolver, msg)
		}()
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", types.SubjectStatusRequested, err)
	}
	b.track(sub)
	b.logger.Info().Str("subject", types.SubjectStatusRequested).Msg("Subscribed")
	return nil
}

func (b *Bus) handleStatusRequest(ctx context.Context, resolver StatusResolver, msg *nats.Msg) {
	req, err := decodeStatusRequest(msg.Data)
	if err != nil {
		metrics.EventsMalformed.Inc()
		b.logger.Warn().Err(err).Msg("Discarding malformed status request")
		return
	}

	snapshot := resolver.Status(ctx, req)

	if msg.Reply != "" {
		data, err := encode(types.SubjectStatusResponse, snapshot)
		if err != nil {
			b.logger.Error().Err(err).Msg("Failed to encode status reply")
			return
		}
		if err := b.conn.Publish(msg.Reply, data); err != nil {
			b.logger.Error().Err(err).Msg("Failed to send status reply")
			return
		}
		metrics.EventsPublished.WithLabelValues(types.SubjectStatusResponse).Inc()
		return
	}

	if err := b.Publish(types.SubjectStatusResponse, snapshot); err != nil {
		b.logger.Error().Err(err).Msg("Failed to publish status response")
	}
}

// Connected reports whether the underlying connection is currently up.
func (b *Bus) Connected() bool {
	return b.conn != nil && b.conn.IsConnected()
}

// Stop cancels all subscriptions and waits for in-flight handlers. The
// connection stays open so final events can still be published.
func (b *Bus) Stop() {
	b.mu.Lock()
	subs := b.subs
	b.subs = nil
	b.mu.Unlock()

	for _, sub := range subs {
		if err := sub.Unsubscribe(); err != nil {
			b.logger.Warn().Err(err).Str("subject", sub.Subject).Msg("Failed to unsubscribe")
		}
	}
	b.handlers.Wait()
	b.logger.Info().Msg("Bus subscriptions stopped")
}

// Close flushes buffered publishes and closes the connection.
func (b *Bus) Close() {
	if err := b.conn.Drain(); err != nil {
		b.logger.Warn().Err(err).Msg("Bus drain failed, closing hard")
		b.conn.Close()
	}
}

func (b *Bus) track(sub *nats.Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, sub)
}
