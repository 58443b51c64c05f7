package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/mitchellh/go-homedir"
	lua "github.com/yuin/gopher-lua"

	"github.com/ZebulonRouseFrantzich/rtpkg/internal/logger"
	"github.com/ZebulonRouseFrantzich/rtpkg/internal/platform"
	"github.com/ZebulonRouseFrantzich/rtpkg/internal/release"
)

// Parser evaluates Lua configuration with platform detection.
type Parser struct {
	detector platform.Detector
	log      logger.Logger
}

// NewParser creates a parser. A nil detector leaves the platform table
// undefined.
func NewParser(detector platform.Detector, log logger.Logger) *Parser {
	return &Parser{detector: detector, log: logger.OrNop(log)}
}

// ParseError represents a config parsing error with friendly message.
type ParseError struct {
	Message string // User-friendly message
	Detail  string // Technical details (raw Lua error)
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: %s", e.Message, e.Detail)
}

// Load reads the config at path. A missing file yields the defaults; an
// empty path means DefaultPath. GITHUB_TOKEN fills in a missing token.
func (p *Parser) Load(ctx context.Context, path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}
	expanded, err := homedir.Expand(path)
	if err != nil {
		return nil, fmt.Errorf("expand config path: %w", err)
	}

	var cfg *Config
	data, err := os.ReadFile(expanded)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		p.log.Debug("no config file, using defaults", "path", expanded)
		cfg = Default()
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	default:
		if cfg, err = p.evaluate(ctx, string(data)); err != nil {
			return nil, fmt.Errorf("parse %s: %w", expanded, err)
		}
	}

	if cfg.GitHubToken == "" {
		cfg.GitHubToken = os.Getenv(TokenEnv)
	}

	if err := cfg.expandPaths(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, &ParseError{Message: "config validation failed", Detail: err.Error()}
	}

	return cfg, nil
}

// ParseString evaluates luaCode and returns the validated configuration.
func (p *Parser) ParseString(ctx context.Context, luaCode string) (*Config, error) {
	cfg, err := p.evaluate(ctx, luaCode)
	if err != nil {
		return nil, err
	}

	if err := cfg.expandPaths(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, &ParseError{Message: "config validation failed", Detail: err.Error()}
	}

	return cfg, nil
}

// evaluate runs luaCode in a sandbox and reads the rtpkg table over the
// defaults. Paths are not expanded yet.
func (p *Parser) evaluate(ctx context.Context, luaCode string) (*Config, error) {
	L := newSandboxedVM()
	defer L.Close()
	L.SetContext(ctx)

	if p.detector != nil {
		info, err := p.detector.Detect(ctx)
		if err != nil {
			return nil, fmt.Errorf("platform detection failed: %w", err)
		}
		if err := platform.InjectPlatformTable(L, info); err != nil {
			return nil, fmt.Errorf("inject platform table: %w", err)
		}
	}

	if err := L.DoString(luaCode); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("evaluate config: %w", ctx.Err())
		}
		return nil, &ParseError{
			Message: "Lua error",
			Detail:  err.Error(),
		}
	}

	return p.extractConfig(L)
}

// extractConfig reads the global rtpkg table. A config without one keeps
// every default.
func (p *Parser) extractConfig(L *lua.LState) (*Config, error) {
	cfg := Default()

	global := L.GetGlobal(luaGlobalRtpkg)
	if global.Type() == lua.LTNil {
		p.log.Warn("config does not define the rtpkg table, using defaults")
		return cfg, nil
	}
	table, ok := global.(*lua.LTable)
	if !ok {
		return nil, &ParseError{
			Message: "invalid 'rtpkg' table",
			Detail:  fmt.Sprintf("expected table, got %s", global.Type()),
		}
	}

	table.ForEach(func(key, _ lua.LValue) {
		if name, ok := key.(lua.LString); !ok || !knownFields[string(name)] {
			p.log.Warn("ignoring unknown config field", "field", key.String())
		}
	})

	var err error
	set := func(e error) {
		if err == nil && e != nil {
			err = e
		}
	}

	set(stringField(table, luaFieldInstallRoot, &cfg.InstallRoot))
	set(stringField(table, luaFieldLogLevel, &cfg.LogLevel))
	set(stringField(table, luaFieldLogFile, &cfg.LogFile))
	set(stringField(table, luaFieldMetricsFile, &cfg.MetricsFile))
	set(stringField(table, luaFieldToken, &cfg.GitHubToken))
	set(intField(table, luaFieldPerPage, &cfg.PerPage))
	set(intField(table, luaFieldRetries, &cfg.Retries))

	var ttlSeconds int
	if v := table.RawGetString(luaFieldCacheTTL); v.Type() != lua.LTNil {
		set(intField(table, luaFieldCacheTTL, &ttlSeconds))
		cfg.CacheTTL = time.Duration(ttlSeconds) * time.Second
	}

	if v := table.RawGetString(luaFieldCatalogs); v.Type() != lua.LTNil {
		families, e := extractCatalogs(v)
		set(e)
		cfg.Catalogs = families
	}

	if err != nil {
		return nil, &ParseError{Message: "invalid config field", Detail: err.Error()}
	}

	return cfg, nil
}

// extractCatalogs reads an array of family names in order. Nil holes left
// by platform.when are skipped.
func extractCatalogs(v lua.LValue) ([]release.Family, error) {
	table, ok := v.(*lua.LTable)
	if !ok {
		return nil, fmt.Errorf("%s: expected table, got %s", luaFieldCatalogs, v.Type())
	}

	var families []release.Family
	for i := 1; i <= table.MaxN(); i++ {
		item := table.RawGetInt(i)
		switch item.Type() {
		case lua.LTNil:
			continue
		case lua.LTString:
			families = append(families, release.Family(item.String()))
		default:
			return nil, fmt.Errorf("%s[%d]: expected string, got %s", luaFieldCatalogs, i, item.Type())
		}
	}

	return families, nil
}

func stringField(table *lua.LTable, name string, dst *string) error {
	v := table.RawGetString(name)
	switch v.Type() {
	case lua.LTNil:
		return nil
	case lua.LTString:
		*dst = v.String()
		return nil
	default:
		return fmt.Errorf("%s: expected string, got %s", name, v.Type())
	}
}

func intField(table *lua.LTable, name string, dst *int) error {
	v := table.RawGetString(name)
	switch v.Type() {
	case lua.LTNil:
		return nil
	case lua.LTNumber:
		n := float64(v.(lua.LNumber))
		if n != float64(int(n)) {
			return fmt.Errorf("%s: expected integer, got %v", name, n)
		}
		*dst = int(n)
		return nil
	default:
		return fmt.Errorf("%s: expected number, got %s", name, v.Type())
	}
}
