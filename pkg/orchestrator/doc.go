// Package orchestrator accepts certificate batches and drives them to a
// terminal state.
//
// Accepting a batch validates the request, deduplicates it by external
// id under a short store lock, persists the job roster and acknowledges
// with pdf.batch.accepted before any item starts. A repeated external id
// inside the job TTL is answered with the original acceptance instead of
// reprocessing.
//
// Two dispatch layouts satisfy the same contract:
//
//	inline (default)                staged (worker_layout: staged)
//
//	accept ──▶ goroutine per item   accept ──▶ queue "download"
//	           bounded by a                      │ one entry per item
//	           channel semaphore                 ▼
//	                │               fixed pool, DequeueBlocking loop
//	                ▼                            │ item lock, skip if
//	        wait for all items                   ▼ already terminal
//	                │                    run pipeline, commit
//	                ▼                            │
//	            finalize              all terminal? finalize under
//	                                  the finalize store lock
//
// The inline layout keeps the whole batch in one process and finalizes
// on the accepting goroutine once every item returns. The staged layout
// spreads items across processes sharing the store; item locks make the
// queue safe for at-least-once delivery and the finalize lock elects a
// single finalizer.
//
// Item failures never abort siblings. A finalized batch is completed
// when nothing failed, failed when nothing succeeded, and partial
// otherwise; pdf.batch.completed carries every item's terminal result
// in submission order and is published only after all item events.
package orchestrator
