package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"csvsift/internal/config"
	"csvsift/internal/ledger"
	"csvsift/internal/logger"
)

func newHistoryCommand(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent runs from the ledger",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := a.cfg
			if err := reportIssues(cmd.ErrOrStderr(), config.Validate(cfg, false)); err != nil {
				return err
			}
			if cfg.Ledger.Engine == "none" {
				return fmt.Errorf("history needs a ledger; set --ledger-engine and --ledger-dsn")
			}

			log, err := logger.NewLogger(cfg.Log.Format, cfg.Log.Level)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			repo, err := openLedger(cmd.Context(), cfg.Ledger, log)
			if err != nil {
				return err
			}
			defer repo.Close()

			entries, err := repo.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			return printHistory(cmd.OutOrStdout(), entries)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of runs to show")
	return cmd
}

func printHistory(w io.Writer, entries []ledger.Entry) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN ID\tSTARTED\tSTATUS\tPROCESSED\tSKIPPED\tDURATION\tINPUT\tERROR")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\t%s\t%s\n",
			e.ID,
			e.StartedAt.UTC().Format(time.RFC3339),
			e.Status,
			e.Processed,
			e.Skipped,
			e.Duration.Round(time.Millisecond),
			e.Input,
			e.Error,
		)
	}
	return tw.Flush()
}
