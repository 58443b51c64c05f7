package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ZebulonRouseFrantzich/rtpkg/internal/catalog"
	"github.com/ZebulonRouseFrantzich/rtpkg/internal/config"
	"github.com/ZebulonRouseFrantzich/rtpkg/internal/installer"
	"github.com/ZebulonRouseFrantzich/rtpkg/internal/logger"
	"github.com/ZebulonRouseFrantzich/rtpkg/internal/metrics"
	"github.com/ZebulonRouseFrantzich/rtpkg/internal/platform"
	"github.com/ZebulonRouseFrantzich/rtpkg/internal/release"
	"github.com/ZebulonRouseFrantzich/rtpkg/internal/service"
	"github.com/ZebulonRouseFrantzich/rtpkg/internal/transfer"
)

// app carries the global flags and the dependencies built from them.
type app struct {
	configPath string
	root       string
	logLevel   string

	cfg     *config.Config
	log     *zap.SugaredLogger
	metrics *metrics.Metrics
	svc     *service.RuntimeService
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "rtpkg",
		Short:         "Install Wine and Proton runtime packages",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", config.DefaultPath, "path to configuration file")
	root.PersistentFlags().StringVar(&a.root, "root", "", "install root (overrides the config file)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error")

	root.AddCommand(
		newListCmd(a),
		newInstallCmd(a),
		newRemoveCmd(a),
		newInstalledCmd(a),
	)

	return root
}

// run builds the dependencies, runs fn, and flushes logs and metrics.
func (a *app) run(cmd *cobra.Command, fn func(ctx context.Context) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if err := a.setup(ctx); err != nil {
		return err
	}
	defer a.teardown()

	return fn(ctx)
}

func (a *app) setup(ctx context.Context) error {
	// Bootstrap logger for config loading; replaced once the level is known
	bootLevel, ok := logger.ParseLevel(a.logLevel)
	if !ok {
		return fmt.Errorf("unknown log level %q", a.logLevel)
	}
	boot := logger.FromZap(logger.New(logger.Options{Level: bootLevel}))

	cfg, err := config.NewParser(platform.NewDetector(), boot).Load(ctx, a.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if a.root != "" {
		cfg.InstallRoot = a.root
	}
	if a.logLevel != "" {
		cfg.LogLevel = a.logLevel
	}
	a.cfg = cfg

	level, _ := logger.ParseLevel(cfg.LogLevel)
	a.log = logger.New(logger.Options{Level: level, File: cfg.LogFile})
	log := logger.FromZap(a.log)

	a.metrics = metrics.New()

	fetcher := catalog.NewFetcher(
		catalog.WithLogger(log),
		catalog.WithMetrics(a.metrics),
		catalog.WithToken(cfg.GitHubToken),
		catalog.WithCache(catalog.NewCache(cfg.CacheTTL)),
	)

	inst := installer.New(
		installer.WithLogger(log),
		installer.WithMetrics(a.metrics),
		installer.WithDownloader(transfer.NewDownloader(
			transfer.WithLogger(log),
			transfer.WithRetries(cfg.Retries),
			transfer.WithUserAgent("rtpkg/"+Version),
		)),
	)

	a.svc = service.NewRuntimeService(fetcher, inst, service.RealClock{}, service.Config{
		InstallRoot: cfg.InstallRoot,
		Families:    cfg.Catalogs,
		PerPage:     cfg.PerPage,
	}, log)

	return nil
}

func (a *app) teardown() {
	if a.cfg != nil && a.cfg.MetricsFile != "" {
		if err := a.metrics.WriteTextfile(a.cfg.MetricsFile); err != nil {
			a.log.Warnw("failed to write metrics", "path", a.cfg.MetricsFile, "error", err)
		}
	}
	if a.log != nil {
		_ = a.log.Sync()
	}
}

// parseFamilies converts --family values, rejecting unknown names.
func parseFamilies(names []string) ([]release.Family, error) {
	families := make([]release.Family, 0, len(names))
	for _, name := range names {
		family := release.Family(name)
		if _, ok := catalog.Endpoint(family); !ok {
			return nil, fmt.Errorf("unknown family %q (known: %v)", name, release.AllFamilies())
		}
		families = append(families, family)
	}
	return families, nil
}

// isTerminal reports whether f is a character device.
func isTerminal(f *os.File) bool {
	fi, err := f.Stat()
	return err == nil && fi.Mode()&os.ModeCharDevice != 0
}
