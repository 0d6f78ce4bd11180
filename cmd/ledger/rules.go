package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dvloznov/ledger-ingest/internal/app"
	"github.com/dvloznov/ledger-ingest/internal/domain"
)

func newRulesCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Manage categorization rules",
	}
	cmd.AddCommand(
		newRulesListCmd(c),
		newRulesAddCmd(c),
		newRulesRemoveCmd(c),
		newRulesCategoriesCmd(c),
		newRulesSeedCmd(c),
	)
	return cmd
}

func newRulesListCmd(c *cli) *cobra.Command {
	var (
		tenantID  string
		effective bool
		asJSON    bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the rules stored for a tenant",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := c.open(ctx, app.Options{SkipBlobs: true, SkipAI: true})
			if err != nil {
				return err
			}
			defer a.Close()

			if tenantID == "" {
				tenantID = a.Rules.GlobalTenant()
			}

			var rules []domain.Rule
			if effective {
				compiled, err := a.Rules.GetRulesByTenant(ctx, tenantID)
				if err != nil {
					return err
				}
				for _, r := range compiled {
					rules = append(rules, r.Rule)
				}
			} else {
				rules, err = a.Rules.ListRules(ctx, tenantID)
				if err != nil {
					return err
				}
			}

			if asJSON {
				return printJSON(c.out, rules)
			}
			return printRules(c.out, rules)
		},
	}
	cmd.Flags().StringVar(&tenantID, "tenant", "", "Tenant ID (defaults to the global tenant)")
	cmd.Flags().BoolVar(&effective, "effective", false, "Show the merged tenant and global rule set in evaluation order")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON instead of a table")
	return cmd
}

func newRulesAddCmd(c *cli) *cobra.Command {
	var (
		tenantID    string
		category    string
		subCategory string
		side        string
		reason      string
		confidence  float64
	)
	cmd := &cobra.Command{
		Use:   "add PATTERN",
		Short: "Add a rule; PATTERN is a regular expression or a /source/flags literal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := c.open(ctx, app.Options{SkipBlobs: true, SkipAI: true})
			if err != nil {
				return err
			}
			defer a.Close()

			base, ok := domain.ParseBaseCategory(category)
			if !ok {
				return fmt.Errorf("unknown category %q", category)
			}
			s, err := domain.ParseSide(side)
			if err != nil {
				return err
			}
			if tenantID == "" {
				tenantID = a.Rules.GlobalTenant()
			}

			rule := domain.Rule{
				TenantID:    tenantID,
				Pattern:     domain.ParsePatternLiteral(args[0]),
				Category:    base,
				SubCategory: subCategory,
				Side:        s,
				Reason:      reason,
			}
			if cmd.Flags().Changed("confidence") {
				rule.Confidence = domain.Float64(confidence)
			}

			added, err := a.Rules.AddRule(ctx, rule)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.out, "Added rule %s %s -> %s/%s\n", added.RuleID, added.Pattern, added.Category, added.SubCategory)
			return nil
		},
	}
	cmd.Flags().StringVar(&tenantID, "tenant", "", "Tenant ID (defaults to the global tenant)")
	cmd.Flags().StringVar(&category, "category", "", "Base category (required)")
	cmd.Flags().StringVar(&subCategory, "sub-category", "", "Sub-category within the base category")
	cmd.Flags().StringVar(&side, "side", "ANY", "CREDIT, DEBIT or ANY")
	cmd.Flags().StringVar(&reason, "reason", "", "Reason recorded on matched transactions")
	cmd.Flags().Float64Var(&confidence, "confidence", 0, "Confidence recorded on matched transactions")
	_ = cmd.MarkFlagRequired("category")
	return cmd
}

func newRulesRemoveCmd(c *cli) *cobra.Command {
	var tenantID string
	cmd := &cobra.Command{
		Use:   "remove RULE_ID",
		Short: "Remove a rule by ID",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := c.open(ctx, app.Options{SkipBlobs: true, SkipAI: true})
			if err != nil {
				return err
			}
			defer a.Close()

			if tenantID == "" {
				tenantID = a.Rules.GlobalTenant()
			}
			if err := a.Rules.RemoveRule(ctx, tenantID, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(c.out, "Removed rule %s\n", args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&tenantID, "tenant", "", "Tenant ID (defaults to the global tenant)")
	return cmd
}

func newRulesCategoriesCmd(c *cli) *cobra.Command {
	var (
		tenantID string
		asJSON   bool
	)
	cmd := &cobra.Command{
		Use:   "categories",
		Short: "List rule keywords grouped by base category",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := c.open(ctx, app.Options{SkipBlobs: true, SkipAI: true})
			if err != nil {
				return err
			}
			defer a.Close()

			if tenantID == "" {
				tenantID = a.Rules.GlobalTenant()
			}
			byBase, err := a.Rules.ListCategoriesByBase(ctx, tenantID)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(c.out, byBase)
			}

			bases := make([]string, 0, len(byBase))
			for base := range byBase {
				bases = append(bases, string(base))
			}
			sort.Strings(bases)
			for _, base := range bases {
				fmt.Fprintf(c.out, "%s\n", base)
				for _, kw := range byBase[domain.BaseCategory(base)] {
					fmt.Fprintf(c.out, "  %s\n", strings.TrimSpace(kw))
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&tenantID, "tenant", "", "Tenant ID (defaults to the global tenant)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}

func newRulesSeedCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Store the built-in default rules under the global tenant",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := c.open(ctx, app.Options{SkipBlobs: true, SkipAI: true})
			if err != nil {
				return err
			}
			defer a.Close()

			n, err := a.Rules.SeedDefaults(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.out, "Seeded %d rules for %s\n", n, a.Rules.GlobalTenant())
			return nil
		},
	}
}
