// Package prompush implements a Prometheus Pushgateway backend for the
// metrics package.
//
// Counters and summaries are kept in a private registry and pushed to the
// gateway on Flush; nothing is exposed for scraping. The job name is the
// Pushgateway grouping key, so it is not repeated as a label.
package prompush

import (
	"fmt"

	"csvsift/internal/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// DefaultJob is used when no job name is given.
const DefaultJob = "csvsift"

// Backend is a Prometheus Pushgateway metrics backend.
type Backend struct {
	gatewayURL string
	jobName    string
	reg        *prometheus.Registry

	recordCounter *prometheus.CounterVec // csvsift_records_total
	runCounter    *prometheus.CounterVec // csvsift_run_total
	runDuration   *prometheus.SummaryVec // csvsift_run_duration_seconds
}

var _ metrics.Backend = (*Backend)(nil)

// NewBackend constructs a Pushgateway backend. gatewayURL is the base URL of
// the gateway, e.g. http://pushgateway:9091.
func NewBackend(jobName, gatewayURL string) (*Backend, error) {
	if gatewayURL == "" {
		return nil, fmt.Errorf("prompush: gateway URL is required")
	}
	if jobName == "" {
		jobName = DefaultJob
	}

	reg := prometheus.NewRegistry()

	recordCounter := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: metrics.RecordsTotal,
			Help: "Data records classified by a run, partitioned by kind (processed, skipped).",
		},
		[]string{"kind"},
	)
	runCounter := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: metrics.RunTotal,
			Help: "Finished runs, partitioned by final status.",
		},
		[]string{"status"},
	)
	runDuration := prometheus.NewSummaryVec(
		prometheus.SummaryOpts{
			Name:       metrics.RunDurationSeconds,
			Help:       "Wall time of a run in seconds, partitioned by final status.",
			Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
		},
		[]string{"status"},
	)

	for name, c := range map[string]prometheus.Collector{
		"record counter": recordCounter,
		"run counter":    runCounter,
		"run summary":    runDuration,
	} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("prompush: register %s: %w", name, err)
		}
	}

	return &Backend{
		gatewayURL:    gatewayURL,
		jobName:       jobName,
		reg:           reg,
		recordCounter: recordCounter,
		runCounter:    runCounter,
		runDuration:   runDuration,
	}, nil
}

// Job returns the Pushgateway grouping job.
func (b *Backend) Job() string { return b.jobName }

func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	switch name {
	case metrics.RecordsTotal:
		if b.recordCounter == nil {
			return
		}
		b.recordCounter.WithLabelValues(labels["kind"]).Add(delta)
	case metrics.RunTotal:
		if b.runCounter == nil {
			return
		}
		b.runCounter.WithLabelValues(labels["status"]).Add(delta)
	default:
		// unknown metric name: ignore
	}
}

func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if name != metrics.RunDurationSeconds || b.runDuration == nil {
		return
	}
	b.runDuration.WithLabelValues(labels["status"]).Observe(value)
}

// Flush pushes the current registry to the Pushgateway.
func (b *Backend) Flush() error {
	if err := push.New(b.gatewayURL, b.jobName).Gatherer(b.reg).Push(); err != nil {
		return fmt.Errorf("prompush: push to %s: %w", b.gatewayURL, err)
	}
	return nil
}
