package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveInstall(t *testing.T) {
	m := New()

	m.ObserveInstall(ResultInstalled, 2*time.Second)
	m.ObserveInstall(ResultSkipped, 0)
	m.ObserveInstall(ResultInstalled, time.Second)

	if got := testutil.ToFloat64(m.installs.WithLabelValues(ResultInstalled)); got != 2 {
		t.Errorf("installed = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.installs.WithLabelValues(ResultSkipped)); got != 1 {
		t.Errorf("skipped = %v, want 1", got)
	}
	if got := testutil.CollectAndCount(m.installDuration); got != 1 {
		t.Errorf("histogram series = %d, want 1", got)
	}
}

func TestCatalogCounters(t *testing.T) {
	m := New()

	m.CatalogFetched("Wine-GE", 30)
	m.CatalogFetched("Wine-GE", 5)
	m.CatalogFailed("Proton-GE")
	m.AddDownloadBytes(1024)
	m.AddDownloadBytes(-5)

	if got := testutil.ToFloat64(m.catalogReleases.WithLabelValues("Wine-GE")); got != 35 {
		t.Errorf("releases = %v, want 35", got)
	}
	if got := testutil.ToFloat64(m.catalogFailures.WithLabelValues("Proton-GE")); got != 1 {
		t.Errorf("failures = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.downloadBytes); got != 1024 {
		t.Errorf("download bytes = %v, want 1024", got)
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics

	m.ObserveInstall(ResultFailed, time.Second)
	m.AddDownloadBytes(10)
	m.CatalogFetched("Wine-GE", 1)
	m.CatalogFailed("Wine-GE")

	if m.Registry() != nil {
		t.Error("nil metrics should have no registry")
	}
	if err := m.WriteTextfile(filepath.Join(t.TempDir(), "x.prom")); err != nil {
		t.Errorf("WriteTextfile on nil metrics: %v", err)
	}
}

func TestWriteTextfile(t *testing.T) {
	m := New()
	m.ObserveInstall(ResultAborted, time.Second)

	path := filepath.Join(t.TempDir(), "rtpkg.prom")
	if err := m.WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read textfile: %v", err)
	}
	if !strings.Contains(string(data), `rtpkg_installs_total{result="aborted"} 1`) {
		t.Errorf("textfile missing install counter:\n%s", data)
	}
}
