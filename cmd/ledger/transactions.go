package main

import (
	"fmt"
	"os"

	"cloud.google.com/go/civil"
	"github.com/spf13/cobra"

	"github.com/dvloznov/ledger-ingest/internal/app"
	"github.com/dvloznov/ledger-ingest/internal/domain"
	"github.com/dvloznov/ledger-ingest/internal/txstore"
)

func newTransactionsCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "transactions",
		Aliases: []string{"txns"},
		Short:   "Inspect stored transactions",
	}
	cmd.AddCommand(newTransactionsListCmd(c), newTransactionsDeleteCmd(c))
	return cmd
}

func newTransactionsListCmd(c *cli) *cobra.Command {
	var (
		tenantID string
		userID   string
		from     string
		to       string
		asJSON   bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List a user's transactions, or a tenant's within a date range",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if userID == "" && from == "" && to == "" {
				return fmt.Errorf("either --user or --from/--to is required")
			}

			ctx := cmd.Context()
			a, err := c.open(ctx, app.Options{SkipBlobs: true, SkipAI: true})
			if err != nil {
				return err
			}
			defer a.Close()

			var txns []domain.Transaction
			if userID != "" {
				txns, err = a.Transactions.GetUserTransactions(ctx, tenantID, userID)
			} else {
				var start, end civil.Date
				if start, err = civil.ParseDate(from); err != nil {
					return fmt.Errorf("--from: %w", err)
				}
				if end, err = civil.ParseDate(to); err != nil {
					return fmt.Errorf("--to: %w", err)
				}
				txns, err = a.Transactions.GetTransactionsByDateRange(ctx, tenantID, start, end)
			}
			if err != nil {
				return err
			}
			txstore.SortTransactions(txns)

			if asJSON {
				return printJSON(c.out, txns)
			}
			return printTransactions(c.out, txns)
		},
	}
	cmd.Flags().StringVar(&tenantID, "tenant", "", "Tenant ID (required)")
	cmd.Flags().StringVar(&userID, "user", "", "User ID")
	cmd.Flags().StringVar(&from, "from", "", "First date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&to, "to", "", "Last date (YYYY-MM-DD)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON instead of a table")
	_ = cmd.MarkFlagRequired("tenant")
	return cmd
}

func newTransactionsDeleteCmd(c *cli) *cobra.Command {
	var tenantID string
	cmd := &cobra.Command{
		Use:   "delete TRANSACTION_ID",
		Short: "Soft-delete a transaction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := c.open(ctx, app.Options{SkipBlobs: true, SkipAI: true})
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.Transactions.DeleteTransaction(ctx, tenantID, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(c.out, "Deleted %s\n", args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&tenantID, "tenant", "", "Tenant ID (required)")
	_ = cmd.MarkFlagRequired("tenant")
	return cmd
}

func newReclassifyCmd(c *cli) *cobra.Command {
	var (
		tenantID    string
		category    string
		subCategory string
		actor       string
	)
	cmd := &cobra.Command{
		Use:   "reclassify TRANSACTION_ID",
		Short: "Assign a category to a transaction by hand",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := c.open(ctx, app.Options{SkipBlobs: true, SkipAI: true})
			if err != nil {
				return err
			}
			defer a.Close()

			if actor == "" {
				actor = os.Getenv("USER")
			}
			upd, err := a.Categorizer.Reclassify(ctx, tenantID, args[0], category, subCategory, actor)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.out, "%s -> %s/%s (by %s)\n", args[0], upd.Category, upd.SubCategory, upd.TaggedBy)
			return nil
		},
	}
	cmd.Flags().StringVar(&tenantID, "tenant", "", "Tenant ID (required)")
	cmd.Flags().StringVar(&category, "category", "", "Base category (required)")
	cmd.Flags().StringVar(&subCategory, "sub-category", "", "Sub-category within the base category")
	cmd.Flags().StringVar(&actor, "actor", "", "Who made the change (defaults to $USER)")
	_ = cmd.MarkFlagRequired("tenant")
	_ = cmd.MarkFlagRequired("category")
	return cmd
}
