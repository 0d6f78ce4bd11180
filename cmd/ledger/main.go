// Command ledger is the operator CLI: it parses and ingests statements,
// manages categorization rules and inspects stored transactions and jobs.
package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dvloznov/ledger-ingest/internal/app"
	"github.com/dvloznov/ledger-ingest/internal/config"
	"github.com/dvloznov/ledger-ingest/internal/logger"
)

func main() {
	if err := newRootCmd(os.Stdout, os.Stderr).ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// cli carries what every subcommand needs: the viper instance flags are
// bound to and the writers commands print on.
type cli struct {
	v          *viper.Viper
	configPath string
	out        io.Writer
	errOut     io.Writer
	log        zerolog.Logger
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	c := &cli{v: viper.New(), out: out, errOut: errOut, log: logger.Nop()}

	root := &cobra.Command{
		Use:           "ledger",
		Short:         "Ingest bank statements and manage categorization",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)
	root.SetErr(errOut)

	pf := root.PersistentFlags()
	pf.StringVar(&c.configPath, "config", "", "Path to ledger.yaml (optional)")
	pf.String("log-level", "warn", "Log level (debug, info, warn, error)")
	pf.String("db", "", "SQLite database path (overrides storage.sqlite.path)")
	_ = c.v.BindPFlag("log.level", pf.Lookup("log-level"))
	_ = c.v.BindPFlag("storage.sqlite.path", pf.Lookup("db"))

	root.AddCommand(
		newParseCmd(c),
		newIngestCmd(c),
		newUploadCmd(c),
		newRulesCmd(c),
		newTransactionsCmd(c),
		newReclassifyCmd(c),
		newJobsCmd(c),
	)
	return root
}

// config resolves the configuration and sets up the logger on stderr.
func (c *cli) config() (*config.Config, error) {
	cfg, err := config.LoadWith(c.v, c.configPath)
	if err != nil {
		return nil, err
	}
	c.log = logger.NewWithWriter(c.errOut).Level(parseLevel(cfg.Log.Level))
	return cfg, nil
}

// open builds the application components for a command.
func (c *cli) open(ctx context.Context, opts app.Options) (*app.App, error) {
	cfg, err := c.config()
	if err != nil {
		return nil, err
	}
	return app.New(ctx, cfg, c.log, opts)
}

func parseLevel(s string) zerolog.Level {
	level, err := zerolog.ParseLevel(s)
	if err != nil || s == "" {
		return zerolog.WarnLevel
	}
	return level
}
