package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in     string
		want   zapcore.Level
		wantOK bool
	}{
		{in: "debug", want: zapcore.DebugLevel, wantOK: true},
		{in: " INFO ", want: zapcore.InfoLevel, wantOK: true},
		{in: "", want: zapcore.InfoLevel, wantOK: true},
		{in: "warning", want: zapcore.WarnLevel, wantOK: true},
		{in: "error", want: zapcore.ErrorLevel, wantOK: true},
		{in: "verbose", want: zapcore.InfoLevel, wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseLevel(tt.in)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("ParseLevel(%q) = %v, %v; want %v, %v", tt.in, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestFromZapForwardsFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := FromZap(zap.New(core).Sugar())

	log.Warn("checksum unavailable", "version", "Wine-6.16-GE-1")

	entries := logs.FilterMessage("checksum unavailable").All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].Level != zapcore.WarnLevel {
		t.Errorf("level = %v, want warn", entries[0].Level)
	}
	if got := entries[0].ContextMap()["version"]; got != "Wine-6.16-GE-1" {
		t.Errorf("version field = %v", got)
	}
}

func TestNewRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{Level: zapcore.WarnLevel, Output: &buf})

	log.Infow("hidden")
	log.Warnw("shown", "k", "v")
	_ = log.Sync()

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info message leaked at warn level: %q", out)
	}
	if !strings.Contains(out, "shown") {
		t.Errorf("warn message missing: %q", out)
	}
}

func TestNewWritesLogFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rtpkg.log")
	var buf bytes.Buffer

	log := New(Options{Level: zapcore.InfoLevel, Output: &buf, File: path})
	log.Infow("installed", "version", "Proton-GE-Proton9-1")
	_ = log.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	if !strings.Contains(string(data), `"version":"Proton-GE-Proton9-1"`) {
		t.Errorf("log file missing structured field: %s", data)
	}
}

func TestNopAndOrNop(t *testing.T) {
	Nop().Error("ignored")
	if OrNop(nil) == nil {
		t.Fatal("OrNop(nil) returned nil")
	}
	if FromZap(nil) == nil {
		t.Fatal("FromZap(nil) returned nil")
	}
}
