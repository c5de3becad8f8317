package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"csvsift/internal/config"
	"csvsift/internal/ledger"
	_ "csvsift/internal/ledger/all"
	"csvsift/internal/logger"
	"csvsift/internal/metrics"
	"csvsift/internal/metrics/datadog"
	"csvsift/internal/metrics/prompush"
	"csvsift/internal/pipeline"
	"csvsift/internal/skiplog"
)

func newRunCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Process the input file",
		Example: `  csvsift run -i people.csv -o clean.csv
  csvsift run -i people.csv -o clean.csv --dispatch batch --batch-size 500 --rejects rejects.csv`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPipeline(cmd.Context(), a.cfg, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
}

func runPipeline(ctx context.Context, cfg config.Config, stdout, stderr io.Writer) (err error) {
	if err := reportIssues(stderr, config.Validate(cfg, true)); err != nil {
		return err
	}

	log, err := logger.NewLogger(cfg.Log.Format, cfg.Log.Level)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	backend, err := newMetricsBackend(cfg.Metrics)
	if err != nil {
		return err
	}
	rec := metrics.NewRecorder(cfg.Metrics.Job, backend)
	defer func() {
		if ferr := rec.Flush(); ferr != nil {
			log.Warn("flush metrics", zap.Error(ferr))
		}
	}()

	rejects, err := skiplog.New(cfg.Rejects)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, rejects.Close()) }()

	var repo ledger.Repository
	if cfg.Ledger.Engine != "none" {
		repo, err = openLedger(ctx, cfg.Ledger, log)
		if err != nil {
			return err
		}
		defer repo.Close()
	}

	dispatch, err := pipeline.ParseDispatch(cfg.Dispatch)
	if err != nil {
		return err
	}

	res, runErr := pipeline.RunDetailed(ctx, cfg.Input, cfg.Output,
		pipeline.WithBatchSize(cfg.BatchSize),
		pipeline.WithDispatch(dispatch),
		pipeline.WithLogger(log),
		pipeline.WithMetrics(rec),
		pipeline.WithRejects(rejects),
		pipeline.WithProgressEvery(cfg.ProgressEvery),
	)

	if repo != nil {
		// The caller's context may be the reason the run ended; the entry is
		// still worth keeping.
		if lerr := repo.Record(context.WithoutCancel(ctx), entryFor(cfg, res, runErr)); lerr != nil {
			log.Error("record run", zap.Error(lerr))
			runErr = errors.Join(runErr, lerr)
		}
	}

	fmt.Fprintf(stdout, "processed=%d skipped=%d total=%d state=%s fingerprint=%s run_id=%s\n",
		res.Stats.Processed, res.Stats.Skipped, res.Stats.Total(), res.State, res.Fingerprint, res.RunID)
	return runErr
}

func newMetricsBackend(cfg config.Metrics) (metrics.Backend, error) {
	switch cfg.Backend {
	case "pushgateway":
		b, err := prompush.NewBackend(cfg.Job, cfg.PushgatewayURL)
		if err != nil {
			return nil, err
		}
		return b, nil
	case "datadog":
		b, err := datadog.NewBackend(datadog.Config{
			Addr:       cfg.DatadogAddr,
			GlobalTags: []string{"service:csvsift"},
		})
		if err != nil {
			return nil, err
		}
		return b, nil
	default:
		return metrics.Nop{}, nil
	}
}

func openLedger(ctx context.Context, cfg config.Ledger, log logger.Logger) (ledger.Repository, error) {
	repo, err := ledger.New(ctx, ledger.Config{Engine: cfg.Engine, DSN: cfg.DSN, Logger: log})
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	if err := repo.EnsureSchema(ctx); err != nil {
		_ = repo.Close()
		return nil, err
	}
	return repo, nil
}

func entryFor(cfg config.Config, res pipeline.Result, runErr error) ledger.Entry {
	e := ledger.Entry{
		ID:          res.RunID,
		Input:       cfg.Input,
		Output:      cfg.Output,
		Processed:   res.Stats.Processed,
		Skipped:     res.Stats.Skipped,
		Status:      res.State.String(),
		Fingerprint: res.Fingerprint.String(),
		StartedAt:   res.StartedAt,
		Duration:    res.Duration,
	}
	if runErr != nil {
		e.Error = runErr.Error()
	}
	return e
}
