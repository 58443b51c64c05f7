// Package release defines the records shared by the catalog fetcher and the
// installer: the normalized version record, progress reports, and the error
// kinds surfaced to callers.
package release

// Family identifies the upstream catalog a runtime package was published in.
type Family string

const (
	FamilyWineGE        Family = "Wine-GE"
	FamilyProtonGE      Family = "Proton-GE"
	FamilyWineLutris    Family = "Wine-Lutris"
	FamilyWineKron4ek   Family = "Wine-Kron4ek"
	FamilyWineCrossover Family = "Wine-Crossover"
)

// String returns the string representation of the family
func (f Family) String() string {
	return string(f)
}

// AllFamilies lists every family a catalog endpoint is known for.
func AllFamilies() []Family {
	return []Family{
		FamilyWineGE,
		FamilyProtonGE,
		FamilyWineLutris,
		FamilyWineKron4ek,
		FamilyWineCrossover,
	}
}

// VersionInfo identifies one installable runtime package.
type VersionInfo struct {
	// Version is used verbatim as the installed directory name,
	// conventionally "{prefix}-{tag}" (e.g. "Wine-6.16-GE-1").
	Version     string `yaml:"version" json:"version"`
	Family      Family `yaml:"family" json:"family"`
	ReleaseDate string `yaml:"release_date" json:"release_date"`
	// DownloadURL is empty when the release has no installable archive.
	DownloadURL string `yaml:"download_url" json:"download_url"`
	// ExpectedDownloadBytes is advisory and only feeds speed/ETA estimates.
	ExpectedDownloadBytes int64 `yaml:"expected_download_bytes" json:"expected_download_bytes"`
	// DiskBytes is zero until the installer fills it in.
	DiskBytes int64 `yaml:"disk_bytes" json:"disk_bytes"`
	// ChecksumURL points at a text resource containing the archive digest.
	ChecksumURL string `yaml:"checksum_url,omitempty" json:"checksum_url,omitempty"`
}

// Installable reports whether the record carries a download link.
func (v VersionInfo) Installable() bool {
	return v.DownloadURL != ""
}
