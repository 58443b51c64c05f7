// Package catalog lists the runtime packages published by each release
// family and normalizes them into release.VersionInfo records.
package catalog

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"golang.org/x/sync/errgroup"

	"github.com/ZebulonRouseFrantzich/rtpkg/internal/logger"
	"github.com/ZebulonRouseFrantzich/rtpkg/internal/metrics"
	"github.com/ZebulonRouseFrantzich/rtpkg/internal/release"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	// DefaultPerPage is the page size used when the caller passes none
	DefaultPerPage = 100
	// DefaultTimeout bounds a single catalog request
	DefaultTimeout = 30 * time.Second
	// maxConcurrentFetches limits parallel requests to the catalog host
	maxConcurrentFetches = 4
)

// githubRelease is the subset of the GitHub release payload we read.
type githubRelease struct {
	TagName     string        `json:"tag_name"`
	PublishedAt string        `json:"published_at"`
	Assets      []githubAsset `json:"assets"`
}

type githubAsset struct {
	Name               string `json:"name"`
	ContentType        string `json:"content_type"`
	BrowserDownloadURL string `json:"browser_download_url"`
	Size               int64  `json:"size"`
}

// Fetcher queries release catalogs.
type Fetcher struct {
	client    *http.Client
	sources   map[release.Family]source
	token     string
	userAgent string
	cache     *Cache
	metrics   *metrics.Metrics
	log       logger.Logger
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(f *Fetcher) {
		if client != nil {
			f.client = client
		}
	}
}

// WithEndpoint points family at a different release list URL.
func WithEndpoint(family release.Family, endpoint string) Option {
	return func(f *Fetcher) {
		src := f.sources[family]
		src.endpoint = endpoint
		if src.prefix == "" {
			src.prefix = string(family) + "-"
		}
		f.sources[family] = src
	}
}

// WithToken sends token as a bearer credential, which raises the GitHub
// rate limit.
func WithToken(token string) Option {
	return func(f *Fetcher) {
		f.token = token
	}
}

// WithCache serves repeated queries from cache until its entries expire.
func WithCache(cache *Cache) Option {
	return func(f *Fetcher) {
		f.cache = cache
	}
}

// WithMetrics records fetch counts in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(f *Fetcher) {
		f.metrics = m
	}
}

// WithLogger sets the logger.
func WithLogger(log logger.Logger) Option {
	return func(f *Fetcher) {
		f.log = logger.OrNop(log)
	}
}

// NewFetcher creates a fetcher for the built-in family endpoints.
func NewFetcher(opts ...Option) *Fetcher {
	f := &Fetcher{
		client:    &http.Client{Timeout: DefaultTimeout},
		sources:   make(map[release.Family]source, len(defaultSources)),
		userAgent: "rtpkg/1.0",
		log:       logger.Nop(),
	}
	for family, src := range defaultSources {
		f.sources[family] = src
	}

	for _, opt := range opts {
		opt(f)
	}

	return f
}

// ListAvailableVersions returns the releases of every requested family, in
// the order the families were given. Unknown families and families whose
// catalog cannot be fetched are logged and skipped; the call itself never
// fails. perPage <= 0 selects DefaultPerPage.
func (f *Fetcher) ListAvailableVersions(ctx context.Context, families []release.Family, perPage int) []release.VersionInfo {
	if perPage <= 0 {
		perPage = DefaultPerPage
	}

	pages := make([][]release.VersionInfo, len(families))

	var g errgroup.Group
	g.SetLimit(maxConcurrentFetches)

	for i, family := range families {
		i, family := i, family
		src, ok := f.sources[family]
		if !ok {
			f.log.Warn("unknown release family, skipping", "family", family)
			continue
		}

		g.Go(func() error {
			versions, err := f.fetchFamily(ctx, family, src, perPage)
			if err != nil {
				f.log.Error("failed to fetch release catalog", "family", family, "error", err)
				f.metrics.CatalogFailed(string(family))
				return nil
			}
			pages[i] = versions
			return nil
		})
	}

	// Goroutines never return an error; failures are isolated per family
	_ = g.Wait()

	var all []release.VersionInfo
	for _, page := range pages {
		all = append(all, page...)
	}

	return all
}

// fetchFamily returns the normalized releases of one family, using the
// cache when one is configured.
func (f *Fetcher) fetchFamily(ctx context.Context, family release.Family, src source, perPage int) ([]release.VersionInfo, error) {
	if cached, ok := f.cache.Get(family, perPage); ok {
		f.log.Debug("release catalog served from cache", "family", family, "releases", len(cached))
		return cached, nil
	}

	releases, err := f.fetchReleases(ctx, src.endpoint, perPage)
	if err != nil {
		return nil, release.Errorf(release.KindCatalogFetch, "", err, "fetch %s releases", family)
	}

	versions := make([]release.VersionInfo, 0, len(releases))
	for _, rel := range releases {
		versions = append(versions, normalize(family, src.prefix, rel))
	}

	f.log.Debug("release catalog fetched", "family", family, "releases", len(versions))
	f.metrics.CatalogFetched(string(family), len(versions))
	f.cache.Put(family, perPage, versions)

	return versions, nil
}

// fetchReleases performs the catalog request and decodes the payload.
func (f *Fetcher) fetchReleases(ctx context.Context, endpoint string, perPage int) ([]githubRelease, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint: %w", err)
	}
	q := u.Query()
	q.Set("per_page", strconv.Itoa(perPage))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("User-Agent", f.userAgent)
	if f.token != "" {
		req.Header.Set("Authorization", "Bearer "+f.token)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var releases []githubRelease
	if err := json.NewDecoder(resp.Body).Decode(&releases); err != nil {
		return nil, fmt.Errorf("decode releases: %w", err)
	}

	return releases, nil
}

// normalize turns one GitHub release into a VersionInfo. The first asset
// with a checksum suffix and the first with an archive suffix win.
func normalize(family release.Family, prefix string, rel githubRelease) release.VersionInfo {
	info := release.VersionInfo{
		Version:     prefix + rel.TagName,
		Family:      family,
		ReleaseDate: releaseDate(rel.PublishedAt),
	}

	for _, asset := range rel.Assets {
		switch {
		case info.ChecksumURL == "" && hasAnySuffix(asset.Name, checksumSuffixes):
			info.ChecksumURL = asset.BrowserDownloadURL
		case info.DownloadURL == "" && hasAnySuffix(asset.Name, archiveSuffixes):
			info.DownloadURL = asset.BrowserDownloadURL
			info.ExpectedDownloadBytes = asset.Size
		}
	}

	return info
}

// releaseDate keeps the calendar date of an RFC 3339 timestamp.
func releaseDate(publishedAt string) string {
	t, err := time.Parse(time.RFC3339, publishedAt)
	if err != nil {
		return publishedAt
	}
	return t.UTC().Format(time.DateOnly)
}

func hasAnySuffix(name string, suffixes []string) bool {
	for _, suffix := range suffixes {
		if strings.HasSuffix(name, suffix) {
			return true
		}
	}
	return false
}
