// Package archive unpacks compressed tarballs into an existing directory.
package archive

import (
	"archive/tar"
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/ulikunitz/xz"

	"github.com/ZebulonRouseFrantzich/rtpkg/internal/fsutil"
	"github.com/ZebulonRouseFrantzich/rtpkg/internal/logger"
	"github.com/ZebulonRouseFrantzich/rtpkg/internal/release"
)

const (
	// tickEntries and tickInterval bound how often progress is reported
	tickEntries  = 64
	tickInterval = 250 * time.Millisecond
	maxPercent   = 99.9
)

// Format is a supported archive format.
type Format int

const (
	FormatTarGz Format = iota + 1
	FormatTarXz
)

// String returns the string representation of the format
func (f Format) String() string {
	switch f {
	case FormatTarGz:
		return "tar.gz"
	case FormatTarXz:
		return "tar.xz"
	default:
		return "unknown"
	}
}

var suffixes = []struct {
	suffix string
	format Format
}{
	{".tar.gz", FormatTarGz},
	{".tgz", FormatTarGz},
	{".tar.xz", FormatTarXz},
	{".txz", FormatTarXz},
}

// DetectFormat picks the format from the file name suffix.
func DetectFormat(name string) (Format, error) {
	lower := strings.ToLower(name)
	for _, s := range suffixes {
		if strings.HasSuffix(lower, s.suffix) {
			return s.format, nil
		}
	}

	ext := filepath.Ext(name)
	if ext == "" {
		ext = filepath.Base(name)
	}
	return 0, fmt.Errorf("unsupported archive format: %s", ext)
}

// IsSupported reports whether name carries a supported archive suffix.
func IsSupported(name string) bool {
	_, err := DetectFormat(name)
	return err == nil
}

// Options controls extraction.
type Options struct {
	// Overwrite allows replacing paths that already exist in the target.
	Overwrite bool
	// StripComponents drops that many leading path elements from each entry,
	// like tar --strip-components. Entries with no remaining path are skipped.
	StripComponents int
}

// Extractor handles archive extraction
type Extractor struct {
	log logger.Logger
	now func() time.Time
}

// NewExtractor creates a new extractor
func NewExtractor(log logger.Logger) *Extractor {
	return &Extractor{
		log: logger.OrNop(log),
		now: time.Now,
	}
}

// Extract unpacks archivePath into targetDir, which must already exist.
// Progress is reported as coarse PhaseExtracting ticks. Cancelling ctx stops
// extraction with an error of kind release.KindAbort and leaves whatever was
// already written in place; cleaning up is the caller's job.
func (e *Extractor) Extract(ctx context.Context, archivePath, targetDir string, opts Options, onProgress release.ProgressFunc) error {
	if !fsutil.IsRegularFile(archivePath) {
		return release.Errorf(release.KindExtraction, "", nil, "archive %s does not exist or is not a regular file", archivePath)
	}
	if !fsutil.IsDir(targetDir) {
		return release.Errorf(release.KindExtraction, "", nil, "extraction target %s is not a directory", targetDir)
	}
	format, err := DetectFormat(archivePath)
	if err != nil {
		return release.Errorf(release.KindExtraction, "", err, "extract %s", archivePath)
	}

	entries, err := e.extract(ctx, archivePath, targetDir, format, opts, onProgress)
	if err != nil {
		if ctx.Err() != nil {
			return release.Errorf(release.KindAbort, "", ctx.Err(), "extraction of %s was aborted", archivePath)
		}
		return release.Errorf(release.KindExtraction, "", err, "extract %s", archivePath)
	}

	e.log.Debug("extraction complete", "archive", archivePath, "target", targetDir, "entries", entries)
	return nil
}

func (e *Extractor) extract(ctx context.Context, archivePath, targetDir string, format Format, opts Options, onProgress release.ProgressFunc) (int, error) {
	archiveFile, err := os.Open(archivePath)
	if err != nil {
		return 0, fmt.Errorf("open archive: %w", err)
	}
	defer archiveFile.Close()

	stat, err := archiveFile.Stat()
	if err != nil {
		return 0, fmt.Errorf("stat archive: %w", err)
	}

	counter := &countingReader{r: archiveFile}
	decompressed, err := decompress(format, bufio.NewReader(counter))
	if err != nil {
		return 0, err
	}
	defer decompressed.Close()

	root, err := filepath.EvalSymlinks(filepath.Clean(targetDir))
	if err != nil {
		return 0, fmt.Errorf("resolve target: %w", err)
	}

	tarReader := tar.NewReader(&ctxReader{ctx: ctx, r: decompressed})
	ticks := &ticker{report: onProgress, total: stat.Size(), now: e.now}

	entries := 0
	for {
		if err := ctx.Err(); err != nil {
			return entries, err
		}

		header, err := tarReader.Next()
		if err == io.EOF {
			break // End of archive
		}
		if err != nil {
			return entries, fmt.Errorf("read tar header: %w", err)
		}

		if err := extractEntry(root, header, tarReader, opts); err != nil {
			return entries, err
		}

		entries++
		ticks.tick(entries, counter.n)
	}

	return entries, nil
}

// extractEntry writes a single tar entry below root.
func extractEntry(root string, header *tar.Header, r io.Reader, opts Options) error {
	name, ok := stripComponents(header.Name, opts.StripComponents)
	if !ok {
		return nil
	}

	target, err := securePath(root, name)
	if err != nil {
		return err
	}

	switch header.Typeflag {
	case tar.TypeDir:
		if err := ensureParent(root, target); err != nil {
			return err
		}
		if info, err := os.Lstat(target); err == nil {
			if info.IsDir() {
				return nil
			}
			if err := replaceExisting(target, opts.Overwrite); err != nil {
				return err
			}
		}
		if err := os.MkdirAll(target, 0755); err != nil {
			return fmt.Errorf("create directory %s: %w", target, err)
		}

	case tar.TypeReg:
		if err := prepare(root, target, opts.Overwrite); err != nil {
			return err
		}

		outFile, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_EXCL, header.FileInfo().Mode().Perm())
		if err != nil {
			return fmt.Errorf("create file %s: %w", target, err)
		}

		if _, err := io.Copy(outFile, r); err != nil {
			outFile.Close()
			return fmt.Errorf("write file %s: %w", target, err)
		}

		if err := outFile.Close(); err != nil {
			return fmt.Errorf("close file %s: %w", target, err)
		}

	case tar.TypeSymlink:
		if err := prepare(root, target, opts.Overwrite); err != nil {
			return err
		}
		if err := os.Symlink(header.Linkname, target); err != nil {
			return fmt.Errorf("create symlink %s: %w", target, err)
		}

	case tar.TypeLink:
		linkName, ok := stripComponents(header.Linkname, opts.StripComponents)
		if !ok {
			return fmt.Errorf("hard link %s points outside the archive root", header.Name)
		}
		source, err := securePath(root, linkName)
		if err != nil {
			return err
		}
		if err := prepare(root, target, opts.Overwrite); err != nil {
			return err
		}
		if err := os.Link(source, target); err != nil {
			return fmt.Errorf("create hard link %s: %w", target, err)
		}

	default:
		// Skip other types (char devices, block devices, etc.)
	}

	return nil
}

// prepare makes room for a non-directory entry at target.
func prepare(root, target string, overwrite bool) error {
	if err := ensureParent(root, target); err != nil {
		return err
	}

	if _, err := os.Lstat(target); err == nil {
		return replaceExisting(target, overwrite)
	}
	return nil
}

// ensureParent creates target's parent directory and checks that it still
// resolves below root, so a symlink extracted earlier cannot redirect writes.
func ensureParent(root, target string) error {
	parent := filepath.Dir(target)
	if err := os.MkdirAll(parent, 0755); err != nil {
		return fmt.Errorf("create parent dir for %s: %w", target, err)
	}

	resolved, err := filepath.EvalSymlinks(parent)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", parent, err)
	}
	if resolved != root && !strings.HasPrefix(resolved, root+string(os.PathSeparator)) {
		return fmt.Errorf("illegal file path: %s escapes %s", target, root)
	}
	return nil
}

func replaceExisting(target string, overwrite bool) error {
	if !overwrite {
		return fmt.Errorf("%s already exists", target)
	}
	if err := os.RemoveAll(target); err != nil {
		return fmt.Errorf("replace %s: %w", target, err)
	}
	return nil
}

// stripComponents drops the first n slash-separated elements of name.
func stripComponents(name string, n int) (string, bool) {
	parts := make([]string, 0, 8)
	for _, p := range strings.Split(name, "/") {
		if p == "" || p == "." {
			continue
		}
		parts = append(parts, p)
	}

	if n < 0 {
		n = 0
	}
	if len(parts) <= n {
		return "", false
	}

	return filepath.FromSlash(strings.Join(parts[n:], "/")), true
}

// securePath joins name to root and rejects results outside root.
func securePath(root, name string) (string, error) {
	target := filepath.Join(root, name)
	if !strings.HasPrefix(target, root+string(os.PathSeparator)) {
		return "", fmt.Errorf("illegal file path: %s", name)
	}
	return target, nil
}

func decompress(format Format, r io.Reader) (io.ReadCloser, error) {
	switch format {
	case FormatTarGz:
		gzipReader, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("create gzip reader: %w", err)
		}
		return gzipReader, nil

	case FormatTarXz:
		xzReader, err := xz.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("create xz reader: %w", err)
		}
		return io.NopCloser(xzReader), nil

	default:
		return nil, errors.New("unknown archive format")
	}
}

// ctxReader fails reads once ctx is done so large entries stop promptly.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// ticker emits PhaseExtracting records based on how much of the compressed
// archive has been consumed.
type ticker struct {
	report   release.ProgressFunc
	total    int64
	lastEmit time.Time
	now      func() time.Time
}

func (t *ticker) tick(entries int, consumed int64) {
	if t.report == nil {
		return
	}

	now := t.now()
	if entries != 1 && entries%tickEntries != 0 && now.Sub(t.lastEmit) < tickInterval {
		return
	}
	t.lastEmit = now

	var pct float64
	if t.total > 0 {
		pct = math.Min(float64(consumed)/float64(t.total)*100, maxPercent)
	}

	t.report(release.Progress{
		Phase:      release.PhaseExtracting,
		Percent:    pct,
		Bytes:      consumed,
		TotalBytes: t.total,
	})
}
