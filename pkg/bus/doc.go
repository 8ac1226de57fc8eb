// Package bus is the NATS event plane of the certificate service.
//
// Two subjects are consumed and six are published:
//
//	pdf.batch.requested ──▶ orchestrator accept
//	pdf.job.status.requested ──▶ snapshot reply
//
//	pdf.batch.accepted ◀── batch durably recorded
//	pdf.item.completed / pdf.item.failed ◀── per-certificate outcome
//	pdf.batch.completed / pdf.batch.failed ◀── terminal batch state
//	pdf.job.status.response ◀── status queries without a reply inbox
//
// Every outbound message is wrapped in the common event envelope with a
// fresh event id, a UTC timestamp and this service as the source. Inbound
// batch requests must arrive enveloped; status requests may also be sent
// as a bare payload.
//
// Each inbound message is handled on its own goroutine. A structurally
// malformed batch request is answered with pdf.batch.failed carrying a
// validation code and whatever external id could still be read out of the
// broken bytes; the subscription itself never stops. Stop unsubscribes
// and waits for in-flight handlers, Close drains the connection, so the
// shutdown order is Stop, drain the orchestrator, then Close.
package bus
