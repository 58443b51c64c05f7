package transfer

import (
	"io"
	"math"
	"time"

	"github.com/ZebulonRouseFrantzich/rtpkg/internal/release"
)

const (
	// maxPercent keeps in-flight percentages below 100
	maxPercent = 99.9
	// progressInterval throttles progress callbacks
	progressInterval = 100 * time.Millisecond
)

// tracker turns byte counts into monotonic progress records. It lives for a
// whole Download call so a retried attempt never reports a lower percentage.
type tracker struct {
	report   release.ProgressFunc
	expected int64
	total    int64
	start    time.Time
	lastEmit time.Time
	percent  float64
	now      func() time.Time
}

func newTracker(report release.ProgressFunc, expected int64) *tracker {
	return &tracker{
		report:   report,
		expected: expected,
		now:      time.Now,
	}
}

// begin resets the per-attempt state. contentLength wins over the catalog
// estimate when the server provides it.
func (t *tracker) begin(contentLength int64) {
	t.total = t.expected
	if contentLength > 0 {
		t.total = contentLength
	}
	t.start = t.now()
	t.lastEmit = time.Time{}
}

func (t *tracker) update(downloaded int64) {
	if t.report == nil {
		return
	}

	now := t.now()
	if !t.lastEmit.IsZero() && now.Sub(t.lastEmit) < progressInterval {
		return
	}
	t.lastEmit = now

	var avg float64
	if elapsed := now.Sub(t.start).Seconds(); elapsed > 0 {
		avg = float64(downloaded) / elapsed
	}

	var pct float64
	if t.total > 0 {
		pct = float64(downloaded) / float64(t.total) * 100
	}
	pct = math.Max(0, math.Min(pct, maxPercent))
	if pct < t.percent {
		pct = t.percent
	}
	t.percent = pct

	var eta int64
	if avg > 0 && t.total > downloaded {
		eta = int64(math.Ceil(float64(t.total-downloaded) / avg))
	}

	t.report(release.Progress{
		Phase:             release.PhaseDownloading,
		Percent:           pct,
		AvgBytesPerSecond: avg,
		ETASeconds:        eta,
		Bytes:             downloaded,
		TotalBytes:        t.total,
	})
}

type progressReader struct {
	r      io.Reader
	read   int64
	report func(int64)
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.read += int64(n)
		p.report(p.read)
	}
	return n, err
}
