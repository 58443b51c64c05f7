// Package service ties the catalog, the installer and the installed-versions
// registry together for the command line.
package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/ZebulonRouseFrantzich/rtpkg/internal/installer"
	"github.com/ZebulonRouseFrantzich/rtpkg/internal/logger"
	"github.com/ZebulonRouseFrantzich/rtpkg/internal/registry"
	"github.com/ZebulonRouseFrantzich/rtpkg/internal/release"
)

// ErrVersionNotFound is returned when no catalog lists the requested version.
var ErrVersionNotFound = errors.New("version not found in any catalog")

// Catalog lists available runtime packages.
type Catalog interface {
	ListAvailableVersions(ctx context.Context, families []release.Family, perPage int) []release.VersionInfo
}

// Installer installs and removes runtime packages.
type Installer interface {
	Install(ctx context.Context, info release.VersionInfo, installRoot string, opts installer.InstallOptions) (*installer.Result, error)
	Remove(ctx context.Context, installRoot, version string) error
}

// Config holds what the service needs from the resolved configuration.
type Config struct {
	InstallRoot string
	Families    []release.Family
	PerPage     int
}

// RuntimeService orchestrates the list, install, remove and installed
// operations.
type RuntimeService struct {
	catalog   Catalog
	installer Installer
	clock     Clock
	cfg       Config
	log       logger.Logger
}

// NewRuntimeService creates a new runtime service.
func NewRuntimeService(catalog Catalog, inst Installer, clock Clock, cfg Config, log logger.Logger) *RuntimeService {
	if clock == nil {
		clock = RealClock{}
	}
	return &RuntimeService{
		catalog:   catalog,
		installer: inst,
		clock:     clock,
		cfg:       cfg,
		log:       logger.OrNop(log),
	}
}

// ListRequest contains parameters for listing available versions.
type ListRequest struct {
	// Families overrides the configured families when set
	Families []release.Family
	// PerPage overrides the configured page size when positive
	PerPage int
}

// Available is a catalog entry annotated with its install state.
type Available struct {
	release.VersionInfo
	Installed bool
}

// List returns the catalog entries of the requested families.
func (s *RuntimeService) List(ctx context.Context, req ListRequest) ([]Available, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	reg, err := s.openRegistry()
	if err != nil {
		return nil, err
	}

	versions := s.catalog.ListAvailableVersions(ctx, s.families(req.Families), s.perPage(req.PerPage))

	list := make([]Available, 0, len(versions))
	for _, info := range versions {
		_, installed := reg.Get(info.Version)
		list = append(list, Available{VersionInfo: info, Installed: installed})
	}

	return list, nil
}

// InstallRequest contains parameters for installing a version.
type InstallRequest struct {
	Version    string
	Overwrite  bool
	Families   []release.Family
	OnProgress release.ProgressFunc
}

// InstallResult describes a finished install.
type InstallResult struct {
	Entry registry.Entry
	Path  string
}

// Install looks version up in the catalogs, installs it and records it in
// the registry.
func (s *RuntimeService) Install(ctx context.Context, req InstallRequest) (*InstallResult, error) {
	info, err := s.lookup(ctx, req.Version, req.Families)
	if err != nil {
		return nil, err
	}

	res, err := s.installer.Install(ctx, info, s.cfg.InstallRoot, installer.InstallOptions{
		Overwrite:  req.Overwrite,
		OnProgress: req.OnProgress,
	})
	if err != nil {
		return nil, err
	}

	reg, err := s.openRegistry()
	if err != nil {
		return nil, err
	}

	entry := registry.Entry{VersionInfo: res.Info, InstalledAt: s.clock.Now()}
	if previous, ok := reg.Get(info.Version); ok && !req.Overwrite {
		// Short-circuited installs keep their original timestamp
		entry.InstalledAt = previous.InstalledAt
	}
	reg.Put(entry)

	if err := reg.Save(); err != nil {
		return nil, fmt.Errorf("record install: %w", err)
	}

	return &InstallResult{Entry: entry, Path: res.Path}, nil
}

// Remove uninstalls version and drops it from the registry.
func (s *RuntimeService) Remove(ctx context.Context, version string) error {
	if err := s.installer.Remove(ctx, s.cfg.InstallRoot, version); err != nil {
		return err
	}

	reg, err := s.openRegistry()
	if err != nil {
		return err
	}
	if !reg.Remove(version) {
		s.log.Debug("removed version was not recorded", "version", version)
	}

	if err := reg.Save(); err != nil {
		return fmt.Errorf("record removal: %w", err)
	}
	return nil
}

// Installed returns the recorded installs, dropping any whose directory
// has disappeared.
func (s *RuntimeService) Installed(ctx context.Context) ([]registry.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	reg, err := s.openRegistry()
	if err != nil {
		return nil, err
	}

	if pruned := reg.Prune(s.cfg.InstallRoot); len(pruned) > 0 {
		s.log.Info("forgetting versions removed outside rtpkg", "versions", pruned)
		if err := reg.Save(); err != nil {
			return nil, fmt.Errorf("prune registry: %w", err)
		}
	}

	return reg.List(), nil
}

// lookup finds version in the catalogs.
func (s *RuntimeService) lookup(ctx context.Context, version string, families []release.Family) (release.VersionInfo, error) {
	if version == "" {
		return release.VersionInfo{}, release.Errorf(release.KindValidation, "", nil, "version is required")
	}

	for _, info := range s.catalog.ListAvailableVersions(ctx, s.families(families), s.cfg.PerPage) {
		if info.Version == version {
			return info, nil
		}
	}

	if err := ctx.Err(); err != nil {
		return release.VersionInfo{}, release.Errorf(release.KindAbort, version, err, "installation of %s was aborted", version)
	}
	return release.VersionInfo{}, fmt.Errorf("%w: %s", ErrVersionNotFound, version)
}

func (s *RuntimeService) openRegistry() (*registry.Registry, error) {
	reg, err := registry.Open(registry.Path(s.cfg.InstallRoot))
	if err != nil {
		return nil, fmt.Errorf("open registry: %w", err)
	}
	return reg, nil
}

func (s *RuntimeService) families(override []release.Family) []release.Family {
	if len(override) > 0 {
		return override
	}
	return s.cfg.Families
}

func (s *RuntimeService) perPage(override int) int {
	if override > 0 {
		return override
	}
	return s.cfg.PerPage
}
