package release

// Phase is the coarse state reported through progress callbacks.
type Phase string

const (
	PhaseIdle        Phase = "idle"
	PhaseDownloading Phase = "downloading"
	PhaseExtracting  Phase = "extracting"
)

// Progress is an ephemeral progress report. Percent, AvgBytesPerSecond and
// ETASeconds are only meaningful while downloading.
type Progress struct {
	Phase             Phase
	Percent           float64
	AvgBytesPerSecond float64
	ETASeconds        int64
	Bytes             int64
	TotalBytes        int64
}

// ProgressFunc receives progress reports on the calling goroutine.
// Implementations must not panic.
type ProgressFunc func(Progress)

// Report calls fn when it is set.
func (fn ProgressFunc) Report(p Progress) {
	if fn != nil {
		fn(p)
	}
}
