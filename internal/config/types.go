// Package config loads the rtpkg configuration from a sandboxed Lua file.
//
// The file assigns a global table named rtpkg:
//
//	rtpkg = {
//	  install_root = "~/Games/runners",
//	  catalogs = { "Wine-GE", platform.when(platform.can_run, "Proton-GE") },
//	  per_page = 50,
//	  log_level = "debug",
//	}
//
// A read-only platform table describing the host is available while the
// file runs. Every field is optional; missing fields keep their defaults.
package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/mitchellh/go-homedir"

	"github.com/ZebulonRouseFrantzich/rtpkg/internal/catalog"
	"github.com/ZebulonRouseFrantzich/rtpkg/internal/logger"
	"github.com/ZebulonRouseFrantzich/rtpkg/internal/release"
)

// Config is the resolved rtpkg configuration.
type Config struct {
	// InstallRoot holds one directory per installed version
	InstallRoot string
	// Catalogs lists the release families queried by default
	Catalogs []release.Family
	// PerPage is the number of releases requested per family
	PerPage int
	// LogLevel is a zap level name
	LogLevel string
	// LogFile enables a rotating JSON log file when set
	LogFile string
	// MetricsFile enables the Prometheus textfile export when set
	MetricsFile string
	// GitHubToken authenticates catalog requests
	GitHubToken string
	// CacheTTL is how long catalog pages are reused
	CacheTTL time.Duration
	// Retries is the number of retries for transient download failures
	Retries int
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		InstallRoot: DefaultInstallRoot,
		Catalogs:    release.AllFamilies(),
		PerPage:     DefaultPerPage,
		LogLevel:    "info",
		CacheTTL:    catalog.DefaultCacheTTL,
		Retries:     DefaultRetries,
	}
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.InstallRoot == "" {
		return fmt.Errorf("%s: must not be empty", luaFieldInstallRoot)
	}
	if !filepath.IsAbs(c.InstallRoot) {
		return fmt.Errorf("%s: %q must be an absolute path", luaFieldInstallRoot, c.InstallRoot)
	}

	for _, family := range c.Catalogs {
		if _, ok := catalog.Endpoint(family); !ok {
			return fmt.Errorf("%s: unknown release family %q", luaFieldCatalogs, family)
		}
	}

	if c.PerPage < 1 || c.PerPage > MaxPerPage {
		return fmt.Errorf("%s: %d is outside 1..%d", luaFieldPerPage, c.PerPage, MaxPerPage)
	}

	if _, ok := logger.ParseLevel(c.LogLevel); !ok {
		return fmt.Errorf("%s: unknown level %q", luaFieldLogLevel, c.LogLevel)
	}

	if c.Retries < 0 || c.Retries > MaxRetries {
		return fmt.Errorf("%s: %d is outside 0..%d", luaFieldRetries, c.Retries, MaxRetries)
	}

	if c.CacheTTL < 0 {
		return fmt.Errorf("%s: must not be negative", luaFieldCacheTTL)
	}

	return nil
}

// expandPaths resolves a leading ~ in every path setting.
func (c *Config) expandPaths() error {
	for _, p := range []*string{&c.InstallRoot, &c.LogFile, &c.MetricsFile} {
		if *p == "" {
			continue
		}
		expanded, err := homedir.Expand(*p)
		if err != nil {
			return fmt.Errorf("expand %s: %w", *p, err)
		}
		*p = filepath.Clean(expanded)
	}
	return nil
}
