/*
Package metrics provides Prometheus metrics collection and exposition for certmint.

The metrics package defines and registers all certmint metrics using the
Prometheus client library, providing observability into batch throughput,
pipeline stage latency, template cache efficiency, gateway traffic, and bus
activity. Metrics are exposed via the ops HTTP server for scraping.

# Architecture

	┌──────────────────── METRICS SYSTEM ───────────────────┐
	│                                                         │
	│  ┌───────────────────────────────────────────┐         │
	│  │         Prometheus Registry               │         │
	│  │  - Global DefaultRegistry                 │         │
	│  │  - MustRegister at package init           │         │
	│  │  - Automatic Go runtime metrics           │         │
	│  └──────────────────┬────────────────────────┘         │
	│                     │                                   │
	│  ┌──────────────────▼────────────────────────┐         │
	│  │          Metric Categories                │         │
	│  │                                           │         │
	│  │  Batches: received, accepted, rejected,   │         │
	│  │           finished by status, duration    │         │
	│  │  Items: processed by status, failures     │         │
	│  │         by stage, stage latency           │         │
	│  │  Cache: lookups by tier, entries, bytes   │         │
	│  │  Gateway: requests, latency               │         │
	│  │  Bus: published, received, malformed      │         │
	│  │  Store: operations, retries, queue depth  │         │
	│  └──────────────────┬────────────────────────┘         │
	│                     │                                   │
	│  ┌──────────────────▼────────────────────────┐         │
	│  │         HTTP Metrics Endpoint             │         │
	│  │  - Path: /metrics on the ops server       │         │
	│  │  - Format: Prometheus text exposition     │         │
	│  │  - Handler: promhttp.Handler()            │         │
	│  └───────────────────────────────────────────┘         │
	└─────────────────────────────────────────────────────────┘

# Metrics Catalog

Batch metrics:

certmint_batches_received_total:
  - Type: Counter
  - Description: Batch requests received from the bus, valid or not

certmint_batches_accepted_total:
  - Type: Counter
  - Description: Batch requests that passed validation and were persisted

certmint_batches_rejected_total{code}:
  - Type: Counter
  - Description: Batch requests rejected before processing
  - Example: certmint_batches_rejected_total{code="VALIDATION_ERROR"} 3

certmint_batches_finished_total{status}:
  - Type: Counter
  - Description: Batches finalized, by terminal status (completed/partial/failed)

certmint_batch_duration_seconds:
  - Type: Histogram
  - Description: Wall time from acceptance to finalization

certmint_active_batches:
  - Type: Gauge
  - Description: Batches currently in flight

Item metrics:

certmint_items_processed_total{status}:
  - Type: Counter
  - Description: Certificate items finished, by terminal status

certmint_item_failures_total{stage}:
  - Type: Counter
  - Description: Item failures attributed to a pipeline stage
  - Example: certmint_item_failures_total{stage="download"} 12

certmint_stage_duration_seconds{stage}:
  - Type: Histogram
  - Description: Duration of each pipeline stage

Template cache metrics:

certmint_template_cache_lookups_total{result}:
  - Type: Counter
  - Description: Cache lookups by result tier (memory/disk/miss)

certmint_template_cache_entries, certmint_template_cache_bytes:
  - Type: Gauge
  - Description: Current memory cache population

Gateway metrics:

certmint_gateway_requests_total{operation, status}:
  - Type: Counter
  - Description: Download and upload calls by outcome (ok/error)

certmint_gateway_request_duration_seconds{operation}:
  - Type: Histogram
  - Description: Gateway round-trip latency

Bus metrics:

certmint_events_published_total{subject}:
  - Type: Counter
  - Description: Events published, by subject

certmint_events_received_total{subject}:
  - Type: Counter
  - Description: Events received, by subject

certmint_events_malformed_total:
  - Type: Counter
  - Description: Received messages dropped because decoding failed

Store metrics:

certmint_store_operations_total{operation, outcome}:
  - Type: Counter
  - Description: Job store calls by operation and outcome

certmint_store_retries_total:
  - Type: Counter
  - Description: Store operations retried after transient errors

certmint_queue_depth:
  - Type: Gauge
  - Description: Items waiting in the staged work queue

# Usage

Recording metrics:

	metrics.BatchesAccepted.Inc()
	metrics.ItemFailures.WithLabelValues("download").Inc()
	metrics.ActiveBatches.Dec()

Timing operations:

	timer := metrics.NewTimer()
	out := stage.Run(ctx, item)
	timer.ObserveDurationVec(metrics.StageDuration, "render")

Exposing metrics:

	mux.Handle("/metrics", metrics.Handler())

# Thread Safety

All Prometheus metric types are safe for concurrent use. The Timer type is
not; create one per measured operation.
*/
package metrics
