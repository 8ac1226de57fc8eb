/*
Package types defines the core data structures used throughout certmint.

This package contains the domain model for batch certificate generation:
batch jobs, batch items, their status machines, the stage-attributed error
taxonomy, the typed forms of the qr/qr_pdf wire sections, and the payloads
of every event the service consumes or emits. All other packages build on
these types for persistence, orchestration, and bus communication.

# Architecture

The types package is the foundation of certmint's data model. It defines:

  - Batch jobs (the outer unit of work) and their lifecycle
  - Batch items (one certificate each) and the pipeline status machine
  - Stage-attributed errors (download, render, qr_generation, qr_insertion,
    upload, validation, orchestration)
  - Wire codecs for the ordered single-key-object qr/qr_pdf sections
  - Event envelopes and payloads for every bus subject

All types are designed to be:
  - Serializable (JSON is both the store format and the wire format)
  - Monotonic (terminal jobs and items are never mutated again)
  - Self-describing (status values map to fixed progress percentages)

# Core Types

Batch lifecycle:
  - BatchJob: external/internal identity pair, item roster, counters,
    timestamps, aggregate status
  - JobStatus: pending, processing, completed, partial, failed
  - BatchItem: one certificate with inputs, status, progress, and exactly
    one of Data or Error in terminal states
  - ItemStatus: the eleven pipeline states plus failed

Results:
  - ItemData: success envelope (file descriptor, SHA-256 hash, timings)
  - ItemError: failure envelope echoing the item's user_id
  - ItemResult: roster entry carried by events and status snapshots

Failure attribution:
  - Stage: the granularity at which failures are attributed
  - StageError: tagged stage result; the first rejecting stage wins
  - Error codes: VALIDATION_ERROR, DOWNLOAD_ERROR, RENDER_ERROR, QR_ERROR,
    INSERT_ERROR, UPLOAD_ERROR, STORE_ERROR

Wire sections:
  - FieldList: ordered list of single-key objects, last-occurrence-wins
  - QRSpec: typed qr section (base_url, verify_code)
  - Placement: typed qr_pdf section (size, margin, page, optional rect)

Events:
  - Envelope: event_id, event_type, UTC timestamp, source, payload
  - BatchRequestPayload and its Validate rules
  - BatchAcceptedPayload, ItemCompletedPayload, ItemFailedPayload,
    BatchCompletedPayload, BatchFailedPayload
  - StatusRequestPayload, StatusResponsePayload

# Status Machines

Batch jobs move monotonically:

	pending → processing → completed | partial | failed

Items move through the pipeline, with failure possible at every stage:

	pending → downloading → downloaded → rendering → rendered
	        → generating_qr → qr_generated → inserting_qr → qr_inserted
	        → uploading → completed | failed

Progress percentages are derived from status:

	pending 0, downloading 10, downloaded 20, rendering 30, rendered 50,
	generating_qr 60, qr_generated 70, inserting_qr 80, qr_inserted 85,
	uploading 90, completed 100

A failing item keeps the progress of the last state it reached.

# Usage

Building a job from a request:

	job := types.NewBatchJob(payload.PDFJobID)
	for _, req := range payload.Items {
		job.AddItem(types.NewBatchItem(req))
	}
	job.StartProcessing()

Finalizing after all items are terminal:

	job.Finalize() // completed when failed==0, failed when success==0, else partial

Parsing the qr_pdf wire section:

	placement, err := types.ParsePlacement(item.QRPDFConfig)
	if err != nil {
		item.Fail(types.WrapStage(types.StageQRInsertion, err))
	}

# Invariants

  - success_count + failed_count ≤ total_items at all times, equal once
    finalized
  - terminal items carry exactly one of Data or Error
  - a failed item's error echoes the item's user_id
  - terminal jobs and items ignore further mutations

# See Also

  - pkg/orchestrator for the batch lifecycle driver
  - pkg/pipeline for the per-item state machine
  - pkg/bus for envelope emission
*/
package types
