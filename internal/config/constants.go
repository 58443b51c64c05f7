package config

// Lua schema field names and globals
const (
	luaGlobalRtpkg      = "rtpkg"
	luaFieldInstallRoot = "install_root"
	luaFieldCatalogs    = "catalogs"
	luaFieldPerPage     = "per_page"
	luaFieldLogLevel    = "log_level"
	luaFieldLogFile     = "log_file"
	luaFieldMetricsFile = "metrics_file"
	luaFieldToken       = "github_token"
	luaFieldCacheTTL    = "cache_ttl_seconds"
	luaFieldRetries     = "retries"
)

var knownFields = map[string]bool{
	luaFieldInstallRoot: true,
	luaFieldCatalogs:    true,
	luaFieldPerPage:     true,
	luaFieldLogLevel:    true,
	luaFieldLogFile:     true,
	luaFieldMetricsFile: true,
	luaFieldToken:       true,
	luaFieldCacheTTL:    true,
	luaFieldRetries:     true,
}

const (
	// DefaultPath is where the config file is looked up
	DefaultPath = "~/.config/rtpkg/config.lua"
	// DefaultInstallRoot is where runtime packages are installed
	DefaultInstallRoot = "~/.local/share/rtpkg/runtimes"
	// DefaultPerPage is the catalog page size
	DefaultPerPage = 100
	// MaxPerPage is the largest page GitHub serves
	MaxPerPage = 100
	// DefaultRetries is the number of retries for transient transfer failures
	DefaultRetries = 2
	// MaxRetries bounds the retries setting
	MaxRetries = 10
	// TokenEnv is consulted when the config sets no github_token
	TokenEnv = "GITHUB_TOKEN"
)
