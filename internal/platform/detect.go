package platform

import (
	"context"
	"fmt"
	"os"
	"runtime"

	"github.com/shirou/gopsutil/v4/host"
)

// flatpakInfoPath exists inside every Flatpak sandbox.
const flatpakInfoPath = "/.flatpak-info"

// RealDetector implements Detector using actual platform detection.
type RealDetector struct {
	goos        string
	goarch      string
	flatpakInfo string
}

// NewDetector creates a new platform detector.
func NewDetector() Detector {
	return &RealDetector{
		goos:        runtime.GOOS,
		goarch:      runtime.GOARCH,
		flatpakInfo: flatpakInfoPath,
	}
}

// Detect performs platform detection and returns platform information.
//
// On Linux, if gopsutil cannot read the distribution or kernel, those
// fields stay empty and detection continues. Only cancellation is fatal.
func (d *RealDetector) Detect(ctx context.Context) (*Info, error) {
	info := &Info{
		OS:      d.goos,
		Arch:    normalizeArch(d.goarch),
		ArchRaw: d.goarch,
	}

	if d.goos != "linux" {
		return info, nil
	}

	platform, family, version, err := host.PlatformInformationWithContext(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("platform detection cancelled: %w", ctx.Err())
		}
	} else if platform = normalizeID(platform); platform != "" {
		info.Distro = platform
		info.Family = mapFamily(family)
		if info.Family == FamilyUnknown {
			// Derivatives sometimes report themselves as their own family
			info.Family = mapFamily(platform)
		}
		info.DistroVersion = normalizeID(version)
	}

	if kernel, err := host.KernelVersionWithContext(ctx); err == nil {
		info.Kernel = kernel
	} else if ctx.Err() != nil {
		return nil, fmt.Errorf("platform detection cancelled: %w", ctx.Err())
	}

	if _, err := os.Stat(d.flatpakInfo); err == nil {
		info.Flatpak = true
	}

	return info, nil
}
