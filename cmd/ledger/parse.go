package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dvloznov/ledger-ingest/internal/parser"
)

func newParseCmd(c *cli) *cobra.Command {
	var (
		bank   string
		userID string
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "parse FILE",
		Short: "Parse a statement file and print the transactions without storing them",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("reading %s: %w", args[0], err)
			}

			var format parser.Format
			if strings.TrimSpace(bank) == "" {
				format, err = parser.Detect(data)
			} else {
				format, err = parser.ParseFormat(bank)
			}
			if err != nil {
				return err
			}
			p, err := parser.New(format)
			if err != nil {
				return err
			}
			res, err := p.ParseWithStats(data, userID)
			if err != nil {
				return err
			}

			if asJSON {
				return printJSON(c.out, res)
			}
			if err := printTransactions(c.out, res.Transactions); err != nil {
				return err
			}
			fmt.Fprintf(c.out, "\n%s: %d parsed, %d skipped\n", format, len(res.Transactions), res.Skipped)
			return nil
		},
	}
	cmd.Flags().StringVar(&bank, "bank", "", "Statement format (HDFC, ICICI, SBI, OFX); detected when empty")
	cmd.Flags().StringVar(&userID, "user", "local", "User ID used in transaction IDs")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON instead of a table")
	return cmd
}
