package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/certmint/certmint/pkg/client"
	"github.com/certmint/certmint/pkg/types"
)

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit a certificate batch",
	Long: `Submit a batch of certificates from a JSON file.

The file carries a batch request payload: an optional pdf_job_id and the
items to render. A missing pdf_job_id is minted client-side.

Examples:
  # Fire and forget; prints the batch id to poll later
  certmint submit -f batch.json

  # Block until the batch reaches a terminal state
  certmint submit -f batch.json --wait`,
	RunE: runSubmit,
}

var statusCmd = &cobra.Command{
	Use:   "status JOB_ID",
	Short: "Show the status of a batch",
	Long: `Show the status of a submitted batch.

JOB_ID is the external pdf_job_id by default; pass --internal to look the
job up by its internal id instead.`,
	Args: cobra.ExactArgs(1),
	RunE: runStatus,
}

func init() {
	submitCmd.Flags().StringP("file", "f", "", "JSON batch file to submit (required)")
	submitCmd.Flags().String("bus", "nats://127.0.0.1:4222", "Bus address")
	submitCmd.Flags().Bool("wait", false, "Wait for the batch to finish")
	submitCmd.Flags().Duration("timeout", 5*time.Minute, "How long to wait with --wait")
	_ = submitCmd.MarkFlagRequired("file")

	statusCmd.Flags().String("bus", "nats://127.0.0.1:4222", "Bus address")
	statusCmd.Flags().Bool("internal", false, "Treat JOB_ID as the internal job id")
	statusCmd.Flags().Duration("timeout", 10*time.Second, "Request timeout")

	rootCmd.AddCommand(submitCmd)
	rootCmd.AddCommand(statusCmd)
}

func runSubmit(cmd *cobra.Command, args []string) error {
	filename, _ := cmd.Flags().GetString("file")
	busURL, _ := cmd.Flags().GetString("bus")
	wait, _ := cmd.Flags().GetBool("wait")
	timeout, _ := cmd.Flags().GetDuration("timeout")

	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read file: %v", err)
	}

	var req types.BatchRequestPayload
	if err := json.Unmarshal(data, &req); err != nil {
		return fmt.Errorf("failed to parse batch file: %v", err)
	}

	c, err := client.New(busURL)
	if err != nil {
		return fmt.Errorf("failed to connect to bus: %v", err)
	}
	defer c.Close()

	fmt.Printf("Submitting batch of %d items...\n", len(req.Items))

	if !wait {
		externalID, err := c.Submit(&req)
		if err != nil {
			return err
		}
		fmt.Printf("✓ Batch submitted: %s\n", externalID)
		fmt.Printf("  Poll it with: certmint status %s\n", externalID)
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	externalID, result, err := c.SubmitAndWait(ctx, &req)
	if externalID != "" {
		fmt.Printf("✓ Batch submitted: %s\n", externalID)
	}
	if err != nil {
		return err
	}

	fmt.Printf("✓ Batch %s: %d succeeded, %d failed (%d ms)\n",
		result.Status, result.SuccessCount, result.FailedCount, result.ProcessingTimeMS)
	printItems(result.Items)

	if result.Status == types.JobStatusFailed {
		return fmt.Errorf("all %d items failed", result.FailedCount)
	}
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	id := args[0]
	busURL, _ := cmd.Flags().GetString("bus")
	internal, _ := cmd.Flags().GetBool("internal")
	timeout, _ := cmd.Flags().GetDuration("timeout")

	c, err := client.New(busURL)
	if err != nil {
		return fmt.Errorf("failed to connect to bus: %v", err)
	}
	defer c.Close()

	req := types.StatusRequestPayload{PDFJobID: id}
	if internal {
		req = types.StatusRequestPayload{JobID: id}
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	snapshot, err := c.Status(ctx, req)
	if err != nil {
		return err
	}
	if snapshot.Status == types.StatusNotFound {
		return fmt.Errorf("job %s not found (jobs expire with their TTL)", id)
	}

	fmt.Printf("Job:      %s\n", snapshot.PDFJobID)
	fmt.Printf("Internal: %s\n", snapshot.JobID)
	fmt.Printf("Status:   %s (%d%%)\n", snapshot.Status, snapshot.ProgressPct)
	fmt.Printf("Items:    %d total, %d succeeded, %d failed\n",
		snapshot.TotalItems, snapshot.SuccessCount, snapshot.FailedCount)
	if snapshot.CreatedAt != nil {
		fmt.Printf("Created:  %s\n", snapshot.CreatedAt.Format(time.RFC3339))
	}
	if snapshot.CompletedAt != nil {
		fmt.Printf("Finished: %s (%d ms)\n",
			snapshot.CompletedAt.Format(time.RFC3339), snapshot.ProcessingTimeMS)
	}
	printItems(snapshot.Items)

	return nil
}

// printItems lists per-item outcomes, one line each
func printItems(items []types.ItemResult) {
	if len(items) == 0 {
		return
	}
	fmt.Println()
	for _, item := range items {
		detail := ""
		switch {
		case item.Data != nil:
			detail = item.Data.FileID
		case item.Error != nil:
			detail = fmt.Sprintf("%s: %s", item.Error.Stage, item.Error.Message)
		}
		fmt.Printf("  %-24s %-14s %s\n", item.SerialCode, item.Status, detail)
	}
}
