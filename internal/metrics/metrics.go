// Package metrics collects install and catalog counters with Prometheus.
//
// The CLI is short-lived, so instead of serving /metrics it writes the
// registry in the node_exporter textfile format after each command.
// Every method is safe to call on a nil *Metrics.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "rtpkg"

// Install results used as the "result" label.
const (
	ResultInstalled = "installed"
	ResultSkipped   = "skipped"
	ResultFailed    = "failed"
	ResultAborted   = "aborted"
)

// Metrics owns a private registry with the rtpkg collectors.
type Metrics struct {
	registry        *prometheus.Registry
	installs        *prometheus.CounterVec
	installDuration prometheus.Histogram
	downloadBytes   prometheus.Counter
	catalogReleases *prometheus.CounterVec
	catalogFailures *prometheus.CounterVec
}

// New creates and registers the collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		installs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "installs_total",
			Help:      "Install calls by result.",
		}, []string{"result"}),
		installDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "install_duration_seconds",
			Help:      "Wall time of install calls that reached the download step.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		}),
		downloadBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "download_bytes_total",
			Help:      "Archive bytes downloaded.",
		}),
		catalogReleases: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "catalog_releases_total",
			Help:      "Releases normalized per catalog family.",
		}, []string{"family"}),
		catalogFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "catalog_fetch_failures_total",
			Help:      "Catalog fetches skipped because of an error.",
		}, []string{"family"}),
	}

	m.registry.MustRegister(
		m.installs,
		m.installDuration,
		m.downloadBytes,
		m.catalogReleases,
		m.catalogFailures,
	)

	return m
}

// Registry exposes the underlying registry as a Gatherer.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveInstall counts an install call and, for calls that did work,
// records its duration.
func (m *Metrics) ObserveInstall(result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.installs.WithLabelValues(result).Inc()
	if result != ResultSkipped {
		m.installDuration.Observe(elapsed.Seconds())
	}
}

// AddDownloadBytes adds n downloaded bytes.
func (m *Metrics) AddDownloadBytes(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.downloadBytes.Add(float64(n))
}

// CatalogFetched records a successful catalog fetch.
func (m *Metrics) CatalogFetched(family string, releases int) {
	if m == nil {
		return
	}
	m.catalogReleases.WithLabelValues(family).Add(float64(releases))
}

// CatalogFailed records a skipped catalog.
func (m *Metrics) CatalogFailed(family string) {
	if m == nil {
		return
	}
	m.catalogFailures.WithLabelValues(family).Inc()
}

// WriteTextfile writes the registry to path in the text exposition format.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
