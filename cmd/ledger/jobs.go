package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dvloznov/ledger-ingest/internal/app"
	"github.com/dvloznov/ledger-ingest/internal/jobs"
)

func newJobsCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect ingestion jobs",
	}
	cmd.AddCommand(newJobsListCmd(c), newJobsStatusCmd(c))
	return cmd
}

func newJobsListCmd(c *cli) *cobra.Command {
	var (
		tenantID string
		status   string
		limit    int
		asJSON   bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent jobs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := c.open(ctx, app.Options{SkipBlobs: true, SkipAI: true})
			if err != nil {
				return err
			}
			defer a.Close()

			recs, err := a.Statuses.ListRecords(ctx, jobs.Filter{
				TenantID: tenantID,
				Status:   jobs.JobStatus(status),
				Limit:    limit,
			})
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(c.out, recs)
			}

			tw := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "JOB ID\tSTATUS\tATTEMPTS\tPARSED\tINSERTED\tDUPLICATES\tUPDATED\tERROR")
			for _, r := range recs {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%d\t%s\t%s\n",
					r.JobID, r.Status, r.Attempts, r.Parsed, r.Inserted, r.Duplicates,
					r.UpdatedAt.Format("2006-01-02 15:04:05"), r.Error)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&tenantID, "tenant", "", "Only jobs of this tenant")
	cmd.Flags().StringVar(&status, "status", "", "Only jobs in this status (pending, running, completed, failed)")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of jobs")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON instead of a table")
	return cmd
}

func newJobsStatusCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "status JOB_ID",
		Short: "Show one job's record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := c.open(ctx, app.Options{SkipBlobs: true, SkipAI: true})
			if err != nil {
				return err
			}
			defer a.Close()

			rec, err := a.Statuses.GetRecord(ctx, args[0])
			if err != nil {
				return err
			}
			return printJSON(c.out, rec)
		},
	}
}
