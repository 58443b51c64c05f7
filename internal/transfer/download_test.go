package transfer

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ZebulonRouseFrantzich/rtpkg/internal/release"
)

func newTestDownloader(opts ...Option) *Downloader {
	d := NewDownloader(opts...)
	d.backoff = func(int) time.Duration { return time.Millisecond }
	return d
}

func TestDownloaderDownload(t *testing.T) {
	body := strings.Repeat("wine", 64*1024)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") != DefaultUserAgent {
			t.Errorf("unexpected User-Agent: %s", r.Header.Get("User-Agent"))
		}
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte(body)); err != nil {
			t.Errorf("failed to write response: %v", err)
		}
	}))
	defer server.Close()

	destDir := t.TempDir()
	var records []release.Progress

	path, err := newTestDownloader().Download(context.Background(), server.URL+"/wine-lutris-7.2-x86_64.tar.xz", destDir, 0, func(p release.Progress) {
		records = append(records, p)
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if path != filepath.Join(destDir, "wine-lutris-7.2-x86_64.tar.xz") {
		t.Errorf("path = %s", path)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read downloaded file: %v", err)
	}
	if string(content) != body {
		t.Error("content mismatch")
	}

	if _, err := os.Stat(path + partSuffix); !os.IsNotExist(err) {
		t.Error("temporary file should be gone")
	}

	if len(records) < 2 {
		t.Fatalf("expected downloading and idle records, got %d", len(records))
	}
	if records[len(records)-1].Phase != release.PhaseIdle {
		t.Errorf("last phase = %s, want idle", records[len(records)-1].Phase)
	}

	last := -1.0
	for _, rec := range records[:len(records)-1] {
		if rec.Phase != release.PhaseDownloading {
			t.Errorf("phase = %s, want downloading", rec.Phase)
		}
		if rec.Percent < last {
			t.Errorf("percent regressed: %v after %v", rec.Percent, last)
		}
		if rec.Percent < 0 || rec.Percent >= 100 {
			t.Errorf("percent %v out of range", rec.Percent)
		}
		last = rec.Percent
	}
}

func TestDownloaderRejectsBadDestination(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	}))
	defer server.Close()

	tmpDir := t.TempDir()
	plainFile := filepath.Join(tmpDir, "file")
	if err := os.WriteFile(plainFile, []byte("x"), 0644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	tests := []struct {
		name    string
		destDir string
	}{
		{name: "missing_directory", destDir: filepath.Join(tmpDir, "missing")},
		{name: "plain_file", destDir: plainFile},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newTestDownloader().Download(context.Background(), server.URL+"/a.tar.gz", tt.destDir, 0, nil)
			if !errors.Is(err, release.ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if !strings.Contains(err.Error(), "is not a directory") {
				t.Errorf("unexpected message: %v", err)
			}
		})
	}

	if atomic.LoadInt32(&hits) != 0 {
		t.Errorf("server received %d requests, want 0", hits)
	}
}

func TestDownloaderHTTPErrors(t *testing.T) {
	tests := []struct {
		name         string
		statusCode   int
		wantAttempts int32
	}{
		{name: "404_not_retried", statusCode: http.StatusNotFound, wantAttempts: 1},
		{name: "500_retried", statusCode: http.StatusInternalServerError, wantAttempts: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var attempts int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&attempts, 1)
				w.WriteHeader(tt.statusCode)
			}))
			defer server.Close()

			destDir := t.TempDir()
			url := server.URL + "/proton.tar.gz"
			_, err := newTestDownloader(WithRetries(2)).Download(context.Background(), url, destDir, 0, nil)

			if !errors.Is(err, release.ErrTransfer) {
				t.Fatalf("expected transfer error, got %v", err)
			}
			if !strings.Contains(err.Error(), url) {
				t.Errorf("error should name the url: %v", err)
			}
			if got := atomic.LoadInt32(&attempts); got != tt.wantAttempts {
				t.Errorf("attempts = %d, want %d", got, tt.wantAttempts)
			}

			entries, _ := os.ReadDir(destDir)
			if len(entries) != 0 {
				t.Errorf("destination should be empty, found %d entries", len(entries))
			}
		})
	}
}

func TestDownloaderRetrySucceeds(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("success")); err != nil {
			t.Errorf("failed to write response: %v", err)
		}
	}))
	defer server.Close()

	path, err := newTestDownloader(WithRetries(3)).Download(context.Background(), server.URL+"/x.tar.gz", t.TempDir(), 0, nil)
	if err != nil {
		t.Fatalf("expected success after retries, got error: %v", err)
	}

	content, _ := os.ReadFile(path)
	if string(content) != "success" {
		t.Errorf("unexpected content: %s", string(content))
	}
}

func TestDownloaderCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "1048576")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write(make([]byte, 4096)); err != nil {
			return
		}
		w.(http.Flusher).Flush()
		// Stall until the client goes away
		<-r.Context().Done()
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	destDir := t.TempDir()
	_, err := newTestDownloader().Download(ctx, server.URL+"/big.tar.gz", destDir, 0, func(p release.Progress) {
		if p.Phase == release.PhaseDownloading {
			cancel()
		}
	})

	if !release.IsAbort(err) {
		t.Fatalf("expected abort, got %v", err)
	}
	if errors.Is(err, release.ErrTransfer) {
		t.Error("abort must not look like a transfer failure")
	}

	entries, _ := os.ReadDir(destDir)
	if len(entries) != 0 {
		t.Errorf("destination should be empty after abort, found %d entries", len(entries))
	}
}

func TestDownloaderCancelledBeforeStart(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestDownloader().Download(ctx, server.URL+"/a.tar.gz", t.TempDir(), 0, nil)
	if !release.IsAbort(err) {
		t.Fatalf("expected abort, got %v", err)
	}
	if atomic.LoadInt32(&hits) != 0 {
		t.Error("no request should be made after cancellation")
	}
}

func TestFetchText(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok.sha512sum":
			_, _ = w.Write([]byte("abc123  wine.tar.xz\n"))
		case "/huge":
			_, _ = w.Write(make([]byte, maxTextBytes+10))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	d := newTestDownloader()

	text, err := d.FetchText(context.Background(), server.URL+"/ok.sha512sum")
	if err != nil {
		t.Fatalf("FetchText failed: %v", err)
	}
	if text != "abc123  wine.tar.xz\n" {
		t.Errorf("text = %q", text)
	}

	if _, err := d.FetchText(context.Background(), server.URL+"/huge"); !errors.Is(err, release.ErrTransfer) {
		t.Errorf("expected transfer error for oversized body, got %v", err)
	}

	if _, err := d.FetchText(context.Background(), server.URL+"/missing"); !errors.Is(err, release.ErrTransfer) {
		t.Errorf("expected transfer error for 404, got %v", err)
	}
}

func TestFetchTextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cancel()
		<-r.Context().Done()
	}))
	defer server.Close()

	_, err := newTestDownloader().FetchText(ctx, server.URL+"/wine.sha512sum")
	if !release.IsAbort(err) {
		t.Fatalf("expected abort, got %v", err)
	}
	if !strings.Contains(err.Error(), "fetch of") || strings.Contains(err.Error(), "download of") {
		t.Errorf("unexpected message: %v", err)
	}
}

func TestFileName(t *testing.T) {
	tests := []struct {
		url     string
		want    string
		wantErr bool
	}{
		{url: "https://github.com/o/r/releases/download/GE-Proton9-1/GE-Proton9-1.tar.gz", want: "GE-Proton9-1.tar.gz"},
		{url: "https://example.com/a%20b.tar.xz?token=1", want: "a b.tar.xz"},
		{url: "https://example.com/", wantErr: true},
		{url: "https://example.com", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			got, err := FileName(tt.url)
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error, got %q", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("FileName = %q, want %q", got, tt.want)
			}
		})
	}
}
