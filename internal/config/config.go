// Package config loads csvsift settings.
//
// Values are resolved with viper in increasing precedence: built-in defaults,
// an optional YAML file (csvsift.yaml), a .env file, CSVSIFT_-prefixed
// environment variables and finally command-line flags bound by the caller.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment variables: batch-size → CSVSIFT_BATCH_SIZE,
// log.level → CSVSIFT_LOG_LEVEL.
const EnvPrefix = "CSVSIFT"

// Keys.
const (
	KeyInput          = "input"
	KeyOutput         = "output"
	KeyBatchSize      = "batch-size"
	KeyDispatch       = "dispatch"
	KeyRejects        = "rejects"
	KeyProgressEvery  = "progress-every"
	KeyLogFormat      = "log.format"
	KeyLogLevel       = "log.level"
	KeyMetricsBackend = "metrics.backend"
	KeyPushgatewayURL = "metrics.pushgateway-url"
	KeyMetricsJob     = "metrics.job"
	KeyDatadogAddr    = "metrics.datadog-addr"
	KeyLedgerEngine   = "ledger.engine"
	KeyLedgerDSN      = "ledger.dsn"
)

// Config is the effective configuration of one invocation.
type Config struct {
	Input         string
	Output        string
	BatchSize     int
	Dispatch      string
	Rejects       string
	ProgressEvery int64

	Log     Log
	Metrics Metrics
	Ledger  Ledger
}

// Log configures the process logger.
type Log struct {
	Format string // json | text
	Level  string // debug | info | warn | error | none
}

// Metrics selects the metrics backend and its endpoint.
type Metrics struct {
	Backend        string // none | pushgateway | datadog
	PushgatewayURL string
	Job            string
	DatadogAddr    string
}

// Ledger selects the run ledger engine. Engine none disables it.
type Ledger struct {
	Engine string // none | sqlite | postgres | mysql | mssql
	DSN    string
}

// SetDefaults registers the built-in defaults on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyBatchSize, 1000)
	v.SetDefault(KeyDispatch, "pool")
	v.SetDefault(KeyProgressEvery, 100_000)
	v.SetDefault(KeyLogFormat, "text")
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyMetricsBackend, "none")
	v.SetDefault(KeyMetricsJob, "csvsift")
	v.SetDefault(KeyLedgerEngine, "none")
}

// NewViper prepares a viper instance with defaults, environment binding and,
// when present, the config file. configFile overrides the search for
// csvsift.yaml in the working directory and $HOME/.config/csvsift.
//
// The .env file in the working directory is loaded into the process
// environment first; variables already set are left untouched.
func NewViper(configFile string) (*viper.Viper, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("csvsift")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home + "/.config/csvsift")
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	return v, nil
}

// LoadFrom reads the effective configuration out of v.
func LoadFrom(v *viper.Viper) Config {
	return Config{
		Input:         strings.TrimSpace(v.GetString(KeyInput)),
		Output:        strings.TrimSpace(v.GetString(KeyOutput)),
		BatchSize:     v.GetInt(KeyBatchSize),
		Dispatch:      strings.ToLower(strings.TrimSpace(v.GetString(KeyDispatch))),
		Rejects:       strings.TrimSpace(v.GetString(KeyRejects)),
		ProgressEvery: v.GetInt64(KeyProgressEvery),
		Log: Log{
			Format: strings.ToLower(v.GetString(KeyLogFormat)),
			Level:  strings.ToLower(v.GetString(KeyLogLevel)),
		},
		Metrics: Metrics{
			Backend:        strings.ToLower(v.GetString(KeyMetricsBackend)),
			PushgatewayURL: v.GetString(KeyPushgatewayURL),
			Job:            v.GetString(KeyMetricsJob),
			DatadogAddr:    v.GetString(KeyDatadogAddr),
		},
		Ledger: Ledger{
			Engine: strings.ToLower(v.GetString(KeyLedgerEngine)),
			DSN:    v.GetString(KeyLedgerDSN),
		},
	}
}
