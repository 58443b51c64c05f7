// Package installer sequences the install of one runtime package:
// download, checksum verification, extraction into a fresh directory, and
// the commit or rollback of an overwrite.
//
// An install either leaves R/{version} fully extracted or leaves the
// install root as it found it. The transient archive R/{file} and backup
// R/{version}_backup never outlive a call.
package installer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/ZebulonRouseFrantzich/rtpkg/internal/archive"
	"github.com/ZebulonRouseFrantzich/rtpkg/internal/fsutil"
	"github.com/ZebulonRouseFrantzich/rtpkg/internal/logger"
	"github.com/ZebulonRouseFrantzich/rtpkg/internal/metrics"
	"github.com/ZebulonRouseFrantzich/rtpkg/internal/release"
	"github.com/ZebulonRouseFrantzich/rtpkg/internal/transaction"
	"github.com/ZebulonRouseFrantzich/rtpkg/internal/transfer"
)

// Downloader fetches archives and checksum files.
type Downloader interface {
	Download(ctx context.Context, rawURL, destDir string, expectedBytes int64, onProgress release.ProgressFunc) (string, error)
	FetchText(ctx context.Context, rawURL string) (string, error)
}

// Extractor unpacks an archive into an existing directory.
type Extractor interface {
	Extract(ctx context.Context, archivePath, targetDir string, opts archive.Options, onProgress release.ProgressFunc) error
}

// Installer installs and removes runtime packages below an install root.
type Installer struct {
	downloader Downloader
	extractor  Extractor
	metrics    *metrics.Metrics
	log        logger.Logger

	mkdir func(name string, perm os.FileMode) error
}

// Option configures an Installer.
type Option func(*Installer)

// WithDownloader replaces the default transfer.Downloader.
func WithDownloader(d Downloader) Option {
	return func(i *Installer) {
		i.downloader = d
	}
}

// WithExtractor replaces the default archive.Extractor.
func WithExtractor(e Extractor) Option {
	return func(i *Installer) {
		i.extractor = e
	}
}

// WithMetrics records install outcomes in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(i *Installer) {
		i.metrics = m
	}
}

// WithLogger sets the logger.
func WithLogger(log logger.Logger) Option {
	return func(i *Installer) {
		i.log = logger.OrNop(log)
	}
}

// New creates an installer.
func New(opts ...Option) *Installer {
	i := &Installer{log: logger.Nop(), mkdir: os.Mkdir}

	for _, opt := range opts {
		opt(i)
	}

	if i.downloader == nil {
		i.downloader = transfer.NewDownloader(transfer.WithLogger(i.log))
	}
	if i.extractor == nil {
		i.extractor = archive.NewExtractor(i.log)
	}

	return i
}

// InstallOptions controls a single Install call.
type InstallOptions struct {
	// Overwrite replaces an existing install of the same version
	Overwrite bool
	// OnProgress receives download and extraction progress
	OnProgress release.ProgressFunc
}

// Result describes a finished install.
type Result struct {
	// Info is the input record with DiskBytes filled in
	Info release.VersionInfo
	// Path is the installed directory, installRoot/{version}
	Path string
}

// Install installs info below installRoot.
//
// An existing install is kept as is unless opts.Overwrite is set, which
// makes repeated calls idempotent. Failures are *release.Error values;
// cancelling ctx yields one of kind release.KindAbort.
func (i *Installer) Install(ctx context.Context, info release.VersionInfo, installRoot string, opts InstallOptions) (res *Result, err error) {
	start := time.Now()
	outcome := metrics.ResultFailed
	defer func() {
		if err != nil && release.IsAbort(err) {
			outcome = metrics.ResultAborted
		}
		i.metrics.ObserveInstall(outcome, time.Since(start))
	}()

	version := info.Version

	// Validate
	if err := prepareRoot(installRoot); err != nil {
		return nil, err
	}
	if !info.Installable() {
		return nil, release.Errorf(release.KindValidation, version, nil, "no download link provided for %s", version)
	}
	if err := validateVersion(version); err != nil {
		return nil, err
	}
	archiveName, err := transfer.FileName(info.DownloadURL)
	if err != nil {
		return nil, release.Errorf(release.KindValidation, version, err, "invalid download link for %s", version)
	}
	if !archive.IsSupported(archiveName) {
		return nil, release.Errorf(release.KindValidation, version, nil, "unsupported archive format for %s: %s", version, archiveName)
	}

	lock, err := acquire(ctx, installRoot, version)
	if err != nil {
		return nil, err
	}
	defer lock.Release()

	if restored, err := transaction.Recover(installRoot, version); err != nil {
		i.log.Warn("failed to recover interrupted install", "version", version, "error", err)
	} else if restored {
		i.log.Warn("restored backup left by an interrupted install", "version", version)
	}

	target := filepath.Join(installRoot, version)

	// Short-circuit
	existing := fsutil.Exists(target)
	if existing && !opts.Overwrite {
		i.log.Info("version already installed", "version", version, "path", target)
		outcome = metrics.ResultSkipped
		return i.finalize(info, target), nil
	}

	// Pre-clean
	archivePath := filepath.Join(installRoot, archiveName)
	if err := fsutil.SafeDelete(archivePath); err != nil {
		return nil, release.Errorf(release.KindValidation, version, err, "remove stale archive for %s", version)
	}

	// Download
	i.log.Info("downloading runtime package", "version", version, "url", info.DownloadURL)
	downloaded, err := i.downloader.Download(ctx, info.DownloadURL, installRoot, info.ExpectedDownloadBytes, opts.OnProgress)
	if err != nil {
		i.cleanup(archivePath)
		if release.IsAbort(err) || ctx.Err() != nil {
			if !existing {
				i.cleanup(target)
			}
			return nil, aborted(version, err)
		}
		return nil, release.Errorf(release.KindTransfer, version, err, "download %s", version)
	}
	archivePath = downloaded
	if size, ok := fileSize(archivePath); ok {
		i.metrics.AddDownloadBytes(size)
	}

	// Verify
	if err := i.verify(ctx, info, archivePath); err != nil {
		i.cleanup(archivePath)
		return nil, err
	}
	i.checkFreeSpace(ctx, installRoot, info)

	// Begin transaction
	txn := transaction.New(installRoot, version)
	if err := txn.Begin(opts.Overwrite); err != nil {
		i.cleanup(archivePath)
		return nil, release.Errorf(release.KindExtraction, version, err, "back up existing install of %s", version)
	}
	if txn.BackedUp() {
		i.log.Debug("moved existing install aside", "version", version, "backup", txn.Backup, "txn", txn.ID)
	}

	// Create target
	if err := i.mkdir(target, 0755); err != nil {
		i.cleanup(archivePath)
		i.rollback(txn)
		return nil, release.Errorf(release.KindExtraction, version, err, "create install directory for %s", version)
	}

	// Extract
	extractOpts := archive.Options{Overwrite: opts.Overwrite, StripComponents: 1}
	if err := i.extractor.Extract(ctx, archivePath, target, extractOpts, opts.OnProgress); err != nil {
		i.cleanup(archivePath)
		i.rollback(txn)
		if release.IsAbort(err) || ctx.Err() != nil {
			return nil, aborted(version, err)
		}
		return nil, release.Errorf(release.KindExtraction, version, err, "extract %s", version)
	}

	// Commit
	if err := txn.Commit(); err != nil {
		if txn.State != transaction.StateCommitted {
			i.cleanup(archivePath)
			i.rollback(txn)
			return nil, release.Errorf(release.KindExtraction, version, err, "commit install of %s", version)
		}
		i.log.Warn("failed to delete replaced install, it is removed on the next install", "version", version, "path", txn.Discard, "error", err)
	}
	i.cleanup(archivePath)
	opts.OnProgress.Report(release.Progress{Phase: release.PhaseIdle})

	// Finalize
	outcome = metrics.ResultInstalled
	res = i.finalize(info, target)
	i.log.Info("installed runtime package", "version", version, "path", target, "disk_bytes", res.Info.DiskBytes, "txn", txn.ID)

	return res, nil
}

// Remove deletes installRoot/{version} and any backup left next to it.
// Removing a version that is not installed is not an error.
func (i *Installer) Remove(ctx context.Context, installRoot, version string) error {
	if err := validateVersion(version); err != nil {
		return err
	}
	if !fsutil.IsDir(installRoot) {
		return release.Errorf(release.KindValidation, version, nil, "%s is not a directory", installRoot)
	}

	lock, err := acquire(ctx, installRoot, version)
	if err != nil {
		return err
	}
	defer lock.Release()

	target := filepath.Join(installRoot, version)
	for _, path := range []string{target, target + transaction.BackupSuffix, target + transaction.DiscardSuffix} {
		if err := fsutil.SafeDeleteAll(path); err != nil {
			return release.Errorf(release.KindValidation, version, err, "remove %s", version)
		}
	}

	i.log.Info("removed runtime package", "version", version, "path", target)
	return nil
}

func (i *Installer) verify(ctx context.Context, info release.VersionInfo, archivePath string) error {
	version := info.Version

	if info.ChecksumURL == "" {
		i.log.Warn("no checksum published, integrity of the download cannot be verified", "version", version)
		return nil
	}

	text, err := i.downloader.FetchText(ctx, info.ChecksumURL)
	if err != nil {
		if release.IsAbort(err) || ctx.Err() != nil {
			return aborted(version, err)
		}
		return release.Errorf(release.KindTransfer, version, err, "fetch checksum for %s", version)
	}

	algorithm, newHash := hashFor(info.ChecksumURL)
	digest, err := fileDigest(ctx, archivePath, newHash)
	if err != nil {
		if ctx.Err() != nil {
			return aborted(version, err)
		}
		return release.Errorf(release.KindIntegrity, version, err, "checksum verification failed")
	}

	if !checksumMatches(text, digest) {
		return release.Errorf(release.KindIntegrity, version, nil, "checksum verification failed")
	}

	i.log.Debug("checksum verified", "version", version, "algorithm", algorithm)
	return nil
}

// checkFreeSpace warns when the filesystem cannot even hold the archive's
// size again. Extracted packages are larger, so this is a lower bound.
func (i *Installer) checkFreeSpace(ctx context.Context, installRoot string, info release.VersionInfo) {
	if info.ExpectedDownloadBytes <= 0 {
		return
	}

	free, err := fsutil.FreeBytes(ctx, installRoot)
	if err != nil {
		i.log.Debug("could not determine free space", "path", installRoot, "error", err)
		return
	}

	if free < uint64(info.ExpectedDownloadBytes) {
		i.log.Warn("install root is low on free space", "version", info.Version, "free_bytes", free, "archive_bytes", info.ExpectedDownloadBytes)
	}
}

func (i *Installer) rollback(txn *transaction.Txn) {
	if err := txn.Rollback(); err != nil {
		i.log.Error("failed to roll back install", "target", txn.Target, "backup", txn.Backup, "txn", txn.ID, "error", err)
		return
	}
	if txn.BackedUp() {
		i.log.Info("restored previous install", "path", txn.Target, "txn", txn.ID)
	}
}

func (i *Installer) cleanup(path string) {
	if err := fsutil.SafeDeleteAll(path); err != nil {
		i.log.Warn("failed to clean up", "path", path, "error", err)
	}
}

func (i *Installer) finalize(info release.VersionInfo, target string) *Result {
	if size, ok := fsutil.DirectorySizeBytes(target); ok {
		info.DiskBytes = size
	}
	return &Result{Info: info, Path: target}
}

// prepareRoot creates installRoot when missing and requires a directory.
func prepareRoot(installRoot string) error {
	if installRoot == "" {
		return release.Errorf(release.KindValidation, "", nil, "install root is required")
	}

	if fsutil.Exists(installRoot) {
		if !fsutil.IsDir(installRoot) {
			return release.Errorf(release.KindValidation, "", nil, "%s is not a directory", installRoot)
		}
		return nil
	}

	if err := os.MkdirAll(installRoot, 0755); err != nil {
		return release.Errorf(release.KindValidation, "", err, "create install root %s", installRoot)
	}
	return nil
}

// validateVersion requires a version usable as a single directory name.
func validateVersion(version string) error {
	if version == "" || version == "." || version == ".." || filepath.Base(version) != version {
		return release.Errorf(release.KindValidation, version, nil, "invalid version name %q", version)
	}
	return nil
}

func acquire(ctx context.Context, installRoot, version string) (*transaction.Lock, error) {
	lock, err := transaction.AcquireLock(ctx, installRoot, version)
	if err == nil {
		return lock, nil
	}
	if errors.Is(err, transaction.ErrLockExists) {
		return nil, release.Errorf(release.KindValidation, version, err, "another operation on %s is in progress", version)
	}
	if ctx.Err() != nil {
		return nil, aborted(version, err)
	}
	return nil, release.Errorf(release.KindValidation, version, err, "lock %s", version)
}

func aborted(version string, cause error) error {
	return release.Errorf(release.KindAbort, version, cause, "installation of %s was aborted", version)
}

func fileSize(path string) (int64, bool) {
	fi, err := os.Stat(path)
	if err != nil {
		return 0, false
	}
	return fi.Size(), true
}
