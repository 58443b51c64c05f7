package catalog

import "github.com/ZebulonRouseFrantzich/rtpkg/internal/release"

// source describes where a family publishes its releases and how its tags
// become version names.
type source struct {
	endpoint string
	prefix   string
}

var defaultSources = map[release.Family]source{
	release.FamilyWineGE: {
		endpoint: "https://api.github.com/repos/GloriousEggroll/wine-ge-custom/releases",
		prefix:   "Wine-",
	},
	release.FamilyProtonGE: {
		endpoint: "https://api.github.com/repos/GloriousEggroll/proton-ge-custom/releases",
		prefix:   "Proton-",
	},
	release.FamilyWineLutris: {
		endpoint: "https://api.github.com/repos/lutris/wine/releases",
		prefix:   "Wine-",
	},
	release.FamilyWineKron4ek: {
		endpoint: "https://api.github.com/repos/Kron4ek/Wine-Builds/releases",
		prefix:   "Wine-Kron4ek-",
	},
	release.FamilyWineCrossover: {
		endpoint: "https://api.github.com/repos/Heroic-Games-Launcher/winecrossover/releases",
		prefix:   "Wine-Crossover-",
	},
}

var (
	checksumSuffixes = []string{".sha512sum", ".sha256sum"}
	archiveSuffixes  = []string{".tar.gz", ".tar.xz"}
)

// Endpoint returns the release list URL for family.
func Endpoint(family release.Family) (string, bool) {
	src, ok := defaultSources[family]
	return src.endpoint, ok
}
