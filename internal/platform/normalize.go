package platform

import "strings"

// familyMap maps distribution names to their canonical family names.
// gopsutil reports either the family or the distro ID depending on
// /etc/os-release, so both are listed.
var familyMap = map[string]string{
	"debian":      FamilyDebian,
	"ubuntu":      FamilyDebian,
	"linuxmint":   FamilyDebian,
	"pop":         FamilyDebian,
	"fedora":      FamilyFedora,
	"nobara":      FamilyFedora,
	"bazzite":     FamilyFedora,
	"rhel":        FamilyRHEL,
	"centos":      FamilyRHEL,
	"rocky":       FamilyRHEL,
	"suse":        FamilySUSE,
	"opensuse":    FamilySUSE,
	"arch":        FamilyArch,
	"manjaro":     FamilyArch,
	"steamos":     FamilyArch,
	"endeavouros": FamilyArch,
}

// normalizeArch converts GOARCH spellings to the names used in configs.
// Unknown architectures are passed through.
func normalizeArch(arch string) string {
	switch arch {
	case "amd64", "x86_64":
		return "amd64"
	case "arm64", "aarch64":
		return "arm64"
	case "386", "i386", "i686":
		return "386"
	default:
		return arch
	}
}

// normalizeID lowercases and trims platform strings.
func normalizeID(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// mapFamily maps a distribution family or ID to its canonical family name.
func mapFamily(family string) string {
	if canonical, ok := familyMap[normalizeID(family)]; ok {
		return canonical
	}
	return FamilyUnknown
}
