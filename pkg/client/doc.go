/*
Package client is the Go client for the certificate service bus.

It submits certificate batches on pdf.batch.requested and resolves job
status over NATS request/reply. The daemon never sees the client directly;
everything goes through the bus subjects.

# Usage

Submitting a batch:

	c, err := client.New("nats://localhost:4222")
	if err != nil {
		log.Fatal(err)
	}
	defer c.Close()

	externalID, err := c.Submit(&types.BatchRequestPayload{
		Items: []types.BatchRequestItem{
			{
				UserID:     "6f9619ff-8b86-4d01-b42d-00cf4fc964ff",
				TemplateID: "a3bb189e-8bf9-4888-9912-ace4e6543002",
				SerialCode: "CERT-2026-0001",
			},
		},
	})

A request without a pdf_job_id gets one minted, and the id is returned
either way. SubmitAndWait additionally blocks until the batch's terminal
event arrives:

	externalID, result, err := c.SubmitAndWait(ctx, req)

Polling a job:

	snapshot, err := c.Status(ctx, types.StatusRequestPayload{
		PDFJobID: externalID,
	})

Unknown jobs come back with status "not_found" rather than an error.

The client is safe for concurrent use; the underlying NATS connection
multiplexes requests.
*/
package client
