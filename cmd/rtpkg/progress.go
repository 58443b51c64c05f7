package main

import (
	"fmt"
	"io"
	"time"

	"github.com/ZebulonRouseFrantzich/rtpkg/internal/release"
)

// progressPrinter renders progress records on one line when attached to a
// terminal, and as occasional plain lines otherwise.
type progressPrinter struct {
	w         io.Writer
	tty       bool
	last      release.Phase
	lastPrint time.Time
	dirty     bool
}

func newProgressPrinter(w io.Writer, tty bool) *progressPrinter {
	return &progressPrinter{w: w, tty: tty, last: release.PhaseIdle}
}

// Report prints p.
func (pp *progressPrinter) Report(p release.Progress) {
	if p.Phase == release.PhaseIdle {
		pp.Done()
		pp.last = p.Phase
		return
	}

	// Plain output: one line per phase change and at most one every 5s
	if !pp.tty && p.Phase == pp.last && time.Since(pp.lastPrint) < 5*time.Second {
		return
	}
	pp.last = p.Phase
	pp.lastPrint = time.Now()

	line := formatProgress(p)
	if pp.tty {
		fmt.Fprintf(pp.w, "\r\033[K%s", line)
		pp.dirty = true
		return
	}
	fmt.Fprintln(pp.w, line)
}

// Done ends an in-place progress line.
func (pp *progressPrinter) Done() {
	if pp.dirty {
		fmt.Fprintln(pp.w)
		pp.dirty = false
	}
}

func formatProgress(p release.Progress) string {
	switch p.Phase {
	case release.PhaseDownloading:
		line := fmt.Sprintf("downloading %5.1f%% %s", p.Percent, humanBytes(p.Bytes))
		if p.TotalBytes > 0 {
			line += " / " + humanBytes(p.TotalBytes)
		}
		if p.AvgBytesPerSecond > 0 {
			line += fmt.Sprintf(" at %s/s", humanBytes(int64(p.AvgBytesPerSecond)))
		}
		if p.ETASeconds > 0 {
			line += fmt.Sprintf(", %s left", time.Duration(p.ETASeconds)*time.Second)
		}
		return line
	case release.PhaseExtracting:
		return fmt.Sprintf("extracting  %5.1f%%", p.Percent)
	default:
		return string(p.Phase)
	}
}

// humanBytes formats n with binary units.
func humanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
