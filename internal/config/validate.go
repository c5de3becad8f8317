package config

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"slices"
	"strings"
)

// ErrInvalid wraps every validation failure that blocks a run.
var ErrInvalid = errors.New("invalid configuration")

// IssueSeverity represents the severity of a configuration issue.
type IssueSeverity string

const (
	// SeverityError blocks execution.
	SeverityError IssueSeverity = "error"
	// SeverityWarning is surfaced to the user but does not block execution.
	SeverityWarning IssueSeverity = "warning"
)

// Issue is one validation finding. Path is the config key it concerns.
type Issue struct {
	Severity IssueSeverity
	Path     string
	Message  string
}

func (i Issue) Error() string {
	return fmt.Sprintf("%s at %s: %s", i.Severity, i.Path, i.Message)
}

var (
	dispatches     = []string{"pool", "batch"}
	logFormats     = []string{"json", "text"}
	logLevels      = []string{"debug", "info", "warn", "error", "none"}
	metricBackends = []string{"none", "pushgateway", "datadog"}
	ledgerEngines  = []string{"none", "sqlite", "postgres", "mysql", "mssql"}
)

// Validate checks cfg for a run. needIO controls whether input and output
// are required; commands that never touch data files pass false.
func Validate(cfg Config, needIO bool) []Issue {
	var issues []Issue
	add := func(sev IssueSeverity, path, format string, args ...any) {
		issues = append(issues, Issue{Severity: sev, Path: path, Message: fmt.Sprintf(format, args...)})
	}

	if needIO {
		if cfg.Input == "" {
			add(SeverityError, KeyInput, "input path must not be empty")
		}
		if cfg.Output == "" {
			add(SeverityError, KeyOutput, "output path must not be empty")
		}
		if cfg.Input != "" && cfg.Output != "" && filepath.Clean(cfg.Input) == filepath.Clean(cfg.Output) {
			add(SeverityError, KeyOutput, "output must differ from input")
		}
	}
	if cfg.Rejects != "" && (cfg.Rejects == cfg.Output || cfg.Rejects == cfg.Input) {
		add(SeverityError, KeyRejects, "rejects file must differ from input and output")
	}

	if cfg.BatchSize <= 0 {
		add(SeverityError, KeyBatchSize, "batch size must be positive, got %d", cfg.BatchSize)
	} else if cfg.BatchSize > 100_000 {
		add(SeverityWarning, KeyBatchSize, "batch size %d starts that many goroutines", cfg.BatchSize)
	}
	if !slices.Contains(dispatches, cfg.Dispatch) {
		add(SeverityError, KeyDispatch, "unknown dispatch %q; want one of %s", cfg.Dispatch, strings.Join(dispatches, ", "))
	}
	if cfg.ProgressEvery < 0 {
		add(SeverityWarning, KeyProgressEvery, "negative interval disables progress logging")
	}

	if !slices.Contains(logFormats, cfg.Log.Format) {
		add(SeverityError, KeyLogFormat, "unknown log format %q", cfg.Log.Format)
	}
	if !slices.Contains(logLevels, cfg.Log.Level) {
		add(SeverityError, KeyLogLevel, "unknown log level %q", cfg.Log.Level)
	}

	switch cfg.Metrics.Backend {
	case "none":
	case "pushgateway":
		if u, err := url.Parse(cfg.Metrics.PushgatewayURL); cfg.Metrics.PushgatewayURL == "" || err != nil || u.Scheme == "" || u.Host == "" {
			add(SeverityError, KeyPushgatewayURL, "pushgateway backend requires an absolute URL, got %q", cfg.Metrics.PushgatewayURL)
		}
	case "datadog":
		if cfg.Metrics.DatadogAddr == "" {
			add(SeverityError, KeyDatadogAddr, "datadog backend requires an agent address")
		}
	default:
		add(SeverityError, KeyMetricsBackend, "unknown metrics backend %q; want one of %s",
			cfg.Metrics.Backend, strings.Join(metricBackends, ", "))
	}
	if cfg.Metrics.Backend != "none" && strings.TrimSpace(cfg.Metrics.Job) == "" {
		add(SeverityWarning, KeyMetricsJob, "empty job name; the backend default is used")
	}

	switch {
	case !slices.Contains(ledgerEngines, cfg.Ledger.Engine):
		add(SeverityError, KeyLedgerEngine, "unknown ledger engine %q; want one of %s",
			cfg.Ledger.Engine, strings.Join(ledgerEngines, ", "))
	case cfg.Ledger.Engine != "none" && cfg.Ledger.DSN == "":
		add(SeverityError, KeyLedgerDSN, "ledger engine %s requires a DSN", cfg.Ledger.Engine)
	case cfg.Ledger.Engine == "none" && cfg.Ledger.DSN != "":
		add(SeverityWarning, KeyLedgerDSN, "DSN is ignored while the ledger is disabled")
	}

	return issues
}

// Err folds the error-severity issues into one error wrapping ErrInvalid, or
// returns nil when there are none.
func Err(issues []Issue) error {
	var errs []error
	for _, iss := range issues {
		if iss.Severity == SeverityError {
			errs = append(errs, iss)
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
}
