package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Batch metrics
	BatchesReceived = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "certmint_batches_received_total",
			Help: "Total number of batch requests received from the bus",
		},
	)

	BatchesAccepted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "certmint_batches_accepted_total",
			Help: "Total number of batch requests accepted for processing",
		},
	)

	BatchesRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "certmint_batches_rejected_total",
			Help: "Total number of batch requests rejected before processing, by error code",
		},
		[]string{"code"},
	)

	BatchesFinished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "certmint_batches_finished_total",
			Help: "Total number of batches finalized, by terminal status",
		},
		[]string{"status"},
	)

	BatchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "certmint_batch_duration_seconds",
			Help:    "Wall time from batch acceptance to finalization in seconds",
			Buckets: []float64{.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
		},
	)

	ActiveBatches = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "certmint_active_batches",
			Help: "Number of batches currently being processed",
		},
	)

	// Item metrics
	ItemsProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "certmint_items_processed_total",
			Help: "Total number of certificate items finished, by terminal status",
		},
		[]string{"status"},
	)

	ItemFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "certmint_item_failures_total",
			Help: "Total number of item failures, by pipeline stage",
		},
		[]string{"stage"},
	)

	StageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "certmint_stage_duration_seconds",
			Help:    "Duration of each pipeline stage in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"stage"},
	)

	// Template cache metrics
	TemplateCacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "certmint_template_cache_lookups_total",
			Help: "Total template cache lookups, by result (memory, disk, miss)",
		},
		[]string{"result"},
	)

	TemplateCacheEntries = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "certmint_template_cache_entries",
			Help: "Number of templates currently cached in memory",
		},
	)

	TemplateCacheBytes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "certmint_template_cache_bytes",
			Help: "Total size of templates currently cached in memory",
		},
	)

	// File gateway metrics
	GatewayRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "certmint_gateway_requests_total",
			Help: "Total file gateway requests, by operation and outcome",
		},
		[]string{"operation", "status"},
	)

	GatewayRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "certmint_gateway_request_duration_seconds",
			Help:    "File gateway request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// Bus metrics
	EventsPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "certmint_events_published_total",
			Help: "Total events published to the bus, by subject",
		},
		[]string{"subject"},
	)

	EventsReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "certmint_events_received_total",
			Help: "Total events received from the bus, by subject",
		},
		[]string{"subject"},
	)

	EventsMalformed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "certmint_events_malformed_total",
			Help: "Total received events dropped because they could not be decoded",
		},
	)

	// Job store metrics
	StoreOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "certmint_store_operations_total",
			Help: "Total job store operations, by operation and outcome",
		},
		[]string{"operation", "outcome"},
	)

	StoreRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "certmint_store_retries_total",
			Help: "Total job store operations retried after transient errors",
		},
	)

	QueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "certmint_queue_depth",
			Help: "Number of items waiting in the staged work queue",
		},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(BatchesReceived)
	prometheus.MustRegister(BatchesAccepted)
	prometheus.MustRegister(BatchesRejected)
	prometheus.MustRegister(BatchesFinished)
	prometheus.MustRegister(BatchDuration)
	prometheus.MustRegister(ActiveBatches)
	prometheus.MustRegister(ItemsProcessed)
	prometheus.MustRegister(ItemFailures)
	prometheus.MustRegister(StageDuration)
	prometheus.MustRegister(TemplateCacheLookups)
	prometheus.MustRegister(TemplateCacheEntries)
	prometheus.MustRegister(TemplateCacheBytes)
	prometheus.MustRegister(GatewayRequests)
	prometheus.MustRegister(GatewayRequestDuration)
	prometheus.MustRegister(EventsPublished)
	prometheus.MustRegister(EventsReceived)
	prometheus.MustRegister(EventsMalformed)
	prometheus.MustRegister(StoreOperations)
	prometheus.MustRegister(StoreRetries)
	prometheus.MustRegister(QueueDepth)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
