package main

import (
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"csvsift/internal/config"
)

// flagKeys maps every persistent flag to its configuration key.
var flagKeys = map[string]string{
	"input":           config.KeyInput,
	"output":          config.KeyOutput,
	"batch-size":      config.KeyBatchSize,
	"dispatch":        config.KeyDispatch,
	"rejects":         config.KeyRejects,
	"progress-every":  config.KeyProgressEvery,
	"log-format":      config.KeyLogFormat,
	"log-level":       config.KeyLogLevel,
	"metrics-backend": config.KeyMetricsBackend,
	"pushgateway-url": config.KeyPushgatewayURL,
	"metrics-job":     config.KeyMetricsJob,
	"datadog-addr":    config.KeyDatadogAddr,
	"ledger-engine":   config.KeyLedgerEngine,
	"ledger-dsn":      config.KeyLedgerDSN,
}

// addConfigFlags registers the configuration flags. Defaults live in
// config.SetDefaults, so flags default to their zero value and only count
// when set.
func addConfigFlags(fs *pflag.FlagSet) {
	fs.StringP("input", "i", "", "input CSV file")
	fs.StringP("output", "o", "", "output CSV file")
	fs.Int("batch-size", 0, "concurrency bound and batch size (default 1000)")
	fs.String("dispatch", "", "dispatch strategy: pool or batch (default pool)")
	fs.String("rejects", "", "write skipped lines to this CSV file")
	fs.Int64("progress-every", 0, "log progress every N lines (default 100000)")
	fs.String("log-format", "", "log format: json or text (default text)")
	fs.String("log-level", "", "log level: debug, info, warn, error or none (default info)")
	fs.String("metrics-backend", "", "metrics backend: none, pushgateway or datadog (default none)")
	fs.String("pushgateway-url", "", "Prometheus Pushgateway base URL")
	fs.String("metrics-job", "", "metrics job name (default csvsift)")
	fs.String("datadog-addr", "", "DogStatsD address, e.g. 127.0.0.1:8125")
	fs.String("ledger-engine", "", "run ledger engine: none, sqlite, postgres, mysql or mssql (default none)")
	fs.String("ledger-dsn", "", "run ledger connection string")
}

func bindConfigFlags(v *viper.Viper, fs *pflag.FlagSet) {
	for name, key := range flagKeys {
		mustBindPFlag(v, key, fs.Lookup(name))
	}
}

// mustBindPFlag binds key to flag and panics if binding fails.
func mustBindPFlag(v *viper.Viper, key string, flag *pflag.Flag) {
	if err := v.BindPFlag(key, flag); err != nil {
		panic("failed to bind pflag: " + err.Error())
	}
}
