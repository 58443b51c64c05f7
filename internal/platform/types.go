// Package platform describes the host runtime packages are installed on and
// exposes it to the Lua configuration as a read-only table.
//
// Detection uses runtime.GOOS/GOARCH plus gopsutil for the Linux
// distribution and kernel. Distribution detection failures are not fatal:
// the distro fields are simply left empty.
package platform

import "context"

// Linux distribution family constants.
const (
	FamilyDebian  = "debian"  // Debian, Ubuntu, Linux Mint, Pop!_OS
	FamilyFedora  = "fedora"  // Fedora, Nobara, Bazzite
	FamilyRHEL    = "rhel"    // RHEL, CentOS, Rocky Linux
	FamilySUSE    = "suse"    // openSUSE, SLES
	FamilyArch    = "arch"    // Arch Linux, Manjaro, SteamOS 3
	FamilyUnknown = "unknown" // Unrecognized distributions
)

// Info contains platform detection information.
type Info struct {
	OS            string // "linux", "darwin", "windows"
	Arch          string // normalized ("amd64", "arm64", or GOARCH as is)
	ArchRaw       string // original GOARCH
	Distro        string // distro ID (Linux only, e.g. "ubuntu", "steamos")
	Family        string // canonical family (Linux only)
	DistroVersion string // distro version (Linux only)
	Kernel        string // kernel version, empty when unknown
	Flatpak       bool   // running inside a Flatpak sandbox
}

// IsLinux returns true if the platform is Linux.
func (i *Info) IsLinux() bool {
	return i.OS == "linux"
}

// IsAMD64 returns true if the architecture is amd64.
func (i *Info) IsAMD64() bool {
	return i.Arch == "amd64"
}

// CanRun reports whether the host can run the x86_64 Linux builds the
// catalogs publish.
func (i *Info) CanRun() bool {
	return i.IsLinux() && i.IsAMD64()
}

// IsSteamOS returns true on Valve's SteamOS.
func (i *Info) IsSteamOS() bool {
	return i.IsLinux() && i.Distro == "steamos"
}

// Detector is the interface for platform detection.
type Detector interface {
	Detect(ctx context.Context) (*Info, error)
}

// StaticDetector returns a fixed Info. It is used when the caller already
// knows the platform, and in tests.
type StaticDetector struct {
	Info Info
}

// Detect returns a copy of the configured Info.
func (s StaticDetector) Detect(ctx context.Context) (*Info, error) {
	info := s.Info
	return &info, nil
}
