// Package metrics records pool and runner activity in a Prometheus registry
// that can be exported to a node-exporter textfile at the end of a run.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	MetricsNamespace = "testfleet"
)

// Metrics holds the collectors of one run
type Metrics struct {
	Registry *prometheus.Registry

	targetsProvisioned *prometheus.CounterVec
	targetsReused      *prometheus.CounterVec
	provisionFailures  *prometheus.CounterVec
	targetsDeleted     *prometheus.CounterVec
	provisionDuration  *prometheus.HistogramVec
	poolIdle           prometheus.Gauge
	poolCheckedOut     prometheus.Gauge
	casesTotal         *prometheus.CounterVec
	runnerFailures     *prometheus.GaugeVec
	runExitCode        prometheus.Gauge
}

// New creates collectors registered on a fresh registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		targetsProvisioned: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Name:      "targets_provisioned_total",
			Help:      "Targets deployed because no idle target matched",
		}, []string{"platform"}),
		targetsReused: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Name:      "targets_reused_total",
			Help:      "Acquisitions served by an idle target",
		}, []string{"platform"}),
		provisionFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Name:      "provision_failures_total",
			Help:      "Deploys that failed",
		}, []string{"platform"}),
		targetsDeleted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Name:      "targets_deleted_total",
			Help:      "Targets deleted at teardown",
		}, []string{"platform"}),
		provisionDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: MetricsNamespace,
			Name:      "provision_duration_seconds",
			Help:      "Time spent deploying targets",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"platform"}),
		poolIdle: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: MetricsNamespace,
			Name:      "pool_idle_targets",
			Help:      "Targets waiting in the pool",
		}),
		poolCheckedOut: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: MetricsNamespace,
			Name:      "pool_checked_out_targets",
			Help:      "Targets currently bound to a test scope",
		}),
		casesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Name:      "cases_total",
			Help:      "Executed test cases by result",
		}, []string{"runner", "status"}),
		runnerFailures: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: MetricsNamespace,
			Name:      "runner_failed_cases",
			Help:      "Failure count reported by each runner",
		}, []string{"runner"}),
		runExitCode: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: MetricsNamespace,
			Name:      "run_exit_code",
			Help:      "Aggregated exit code of the run",
		}),
	}
}

// RecordProvisioned counts a successful deploy and its duration
func (m *Metrics) RecordProvisioned(platform string, seconds float64) {
	m.targetsProvisioned.WithLabelValues(platform).Inc()
	m.provisionDuration.WithLabelValues(platform).Observe(seconds)
}

// RecordReused counts an acquisition served from the pool
func (m *Metrics) RecordReused(platform string) {
	m.targetsReused.WithLabelValues(platform).Inc()
}

// RecordProvisionFailure counts a failed deploy
func (m *Metrics) RecordProvisionFailure(platform string) {
	m.provisionFailures.WithLabelValues(platform).Inc()
}

// RecordDeleted counts a target deleted at teardown
func (m *Metrics) RecordDeleted(platform string) {
	m.targetsDeleted.WithLabelValues(platform).Inc()
}

// SetPoolSize publishes the idle and checked-out counts
func (m *Metrics) SetPoolSize(idle, checkedOut int) {
	m.poolIdle.Set(float64(idle))
	m.poolCheckedOut.Set(float64(checkedOut))
}

// RecordCase counts one executed test case
func (m *Metrics) RecordCase(runner, status string) {
	m.casesTotal.WithLabelValues(runner, status).Inc()
}

// SetRunnerFailures publishes a runner's final failure count
func (m *Metrics) SetRunnerFailures(runner string, failed int) {
	m.runnerFailures.WithLabelValues(runner).Set(float64(failed))
}

// SetExitCode publishes the aggregated exit code
func (m *Metrics) SetExitCode(code int) {
	m.runExitCode.Set(float64(code))
}

// WriteTextfile writes the registry in the text exposition format
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.Registry); err != nil {
		return fmt.Errorf("failed to write metrics to %s: %w", path, err)
	}
	return nil
}
