package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/dvloznov/ledger-ingest/internal/app"
	"github.com/dvloznov/ledger-ingest/internal/blob"
	"github.com/dvloznov/ledger-ingest/internal/jobs"
	"github.com/dvloznov/ledger-ingest/internal/logger"
	"github.com/dvloznov/ledger-ingest/internal/pipeline"
)

type jobFlags struct {
	bank        string
	tenantID    string
	userID      string
	accountType string
}

func (f *jobFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.bank, "bank", "", "Statement format (HDFC, ICICI, SBI, OFX); detected when empty")
	cmd.Flags().StringVar(&f.tenantID, "tenant", "", "Tenant ID (required)")
	cmd.Flags().StringVar(&f.userID, "user", "", "User ID (required)")
	cmd.Flags().StringVar(&f.accountType, "account-type", "", "Account type recorded on each transaction")
	_ = cmd.MarkFlagRequired("tenant")
	_ = cmd.MarkFlagRequired("user")
}

func newIngestCmd(c *cli) *cobra.Command {
	var (
		f          jobFlags
		categorize bool
	)
	cmd := &cobra.Command{
		Use:   "ingest FILE",
		Short: "Parse a local statement file and save it to the store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("reading %s: %w", args[0], err)
			}

			ctx := cmd.Context()
			a, err := c.open(ctx, app.Options{SkipBlobs: true, SkipAI: !categorize})
			if err != nil {
				return err
			}
			defer a.Close()
			ctx = logger.WithContext(ctx, c.log)

			var cat pipeline.Categorizer
			if categorize {
				cat = a.Categorizer
			}
			job := jobs.NewStatementJob(f.bank, args[0], f.tenantID, f.userID, f.accountType)
			state := pipeline.NewState(job)
			state.Data = data
			if err := pipeline.NewLocalPipeline(a.Transactions, cat).Execute(ctx, state); err != nil {
				return err
			}

			fmt.Fprintf(c.out, "%s: %s, %d parsed, %d skipped, %d inserted, %d duplicates",
				filepath.Base(args[0]), state.Format, len(state.Transactions), state.Result.Skipped,
				state.Summary.Inserted, state.Summary.Duplicates)
			if categorize {
				fmt.Fprintf(c.out, ", %d categorized", state.Categorized)
			}
			fmt.Fprintln(c.out)
			return nil
		},
	}
	f.register(cmd)
	cmd.Flags().BoolVar(&categorize, "categorize", true, "Categorize the saved transactions in-process")
	return cmd
}

func newUploadCmd(c *cli) *cobra.Command {
	var f jobFlags
	cmd := &cobra.Command{
		Use:   "upload FILE",
		Short: "Upload a statement to the bucket and enqueue an ingestion job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("reading %s: %w", args[0], err)
			}

			ctx := cmd.Context()
			a, err := c.open(ctx, app.Options{SkipAI: true})
			if err != nil {
				return err
			}
			defer a.Close()

			if a.Config.Blob.Bucket == "" {
				return fmt.Errorf("upload: blob.bucket is not configured")
			}
			if a.Config.Queue.Driver == "memory" {
				return fmt.Errorf("upload: queue.driver memory is not shared with the worker process")
			}

			key := fmt.Sprintf("uploads/%s/%s/%s-%s", f.tenantID, f.userID, uuid.NewString(), filepath.Base(args[0]))
			if err := a.Blobs.PutBlob(ctx, key, data, contentType(args[0])); err != nil {
				return err
			}
			job := jobs.NewStatementJob(f.bank, key, f.tenantID, f.userID, f.accountType)
			if err := a.Queue.Send(ctx, job); err != nil {
				return err
			}
			_ = a.Statuses.SaveRecord(ctx, &jobs.Record{
				JobID:     job.JobID,
				TenantID:  job.TenantID,
				BlobKey:   job.BlobKey,
				Status:    jobs.JobStatusPending,
				UpdatedAt: job.CreatedAt,
			})

			fmt.Fprintf(c.out, "Uploaded %s as gs://%s/%s\nJob %s queued\n",
				blob.Filename(key), a.Config.Blob.Bucket, key, job.JobID)
			return nil
		},
	}
	f.register(cmd)
	return cmd
}

func contentType(path string) string {
	switch filepath.Ext(path) {
	case ".csv":
		return "text/csv"
	case ".ofx", ".qfx":
		return "application/x-ofx"
	default:
		return "text/plain"
	}
}
