// Package pipeline executes the per-item certificate rendering flow.
//
// Each item moves through five stages, with the item status persisted
// after every transition so status queries see live progress:
//
//	download          fetch the template PDF through the cache
//	render            substitute placeholders into a personalized copy
//	qr_generation     encode the verification URL as a PNG
//	qr_insertion      stamp the PNG onto the certificate page
//	upload            store the final PDF in the file gateway
//
//	┌──────────┐   ┌────────┐   ┌─────────┐   ┌──────────┐   ┌────────┐
//	│ download │──▶│ render │──▶│ gen QR  │──▶│ stamp QR │──▶│ upload │
//	└──────────┘   └────────┘   └─────────┘   └──────────┘   └────────┘
//	      │             │            │              │             │
//	      └─────────────┴─────── any failure ───────┴─────────────┘
//	                               │
//	                               ▼
//	                    item failed, stage recorded
//
// A stage failure stops the item and records which stage broke and why;
// it never aborts sibling items. Completed items carry the stored file's
// metadata, including a SHA-256 of the exact bytes that were uploaded.
//
// Intermediate artifacts are mirrored into a per-item scratch directory
// for inspection and removed when the item finishes either way. Scratch
// directories orphaned by a crash are reaped by SweepScratch.
package pipeline
