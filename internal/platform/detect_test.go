package platform

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func TestRealDetector_Detect(t *testing.T) {
	info, err := NewDetector().Detect(context.Background())
	if err != nil {
		t.Fatalf("Detect() error = %v", err)
	}

	if info.OS != runtime.GOOS {
		t.Errorf("OS = %v, want %v", info.OS, runtime.GOOS)
	}
	if info.ArchRaw != runtime.GOARCH {
		t.Errorf("ArchRaw = %v, want %v", info.ArchRaw, runtime.GOARCH)
	}
	if info.Arch == "" {
		t.Error("Arch should not be empty")
	}
	if runtime.GOOS == "linux" && info.Distro != "" && info.Family == "" {
		t.Error("Family should be set when Distro is")
	}
}

func TestRealDetector_NonLinux(t *testing.T) {
	d := &RealDetector{goos: "darwin", goarch: "arm64", flatpakInfo: filepath.Join(t.TempDir(), "missing")}

	info, err := d.Detect(context.Background())
	if err != nil {
		t.Fatalf("Detect() error = %v", err)
	}

	if info.Distro != "" || info.Kernel != "" {
		t.Errorf("non-Linux hosts carry no distro details: %+v", info)
	}
	if info.CanRun() {
		t.Error("darwin/arm64 cannot run the published builds")
	}
}

func TestRealDetector_Flatpak(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("flatpak detection only runs on linux")
	}

	marker := filepath.Join(t.TempDir(), ".flatpak-info")
	if err := os.WriteFile(marker, []byte("[Application]\n"), 0644); err != nil {
		t.Fatal(err)
	}

	d := &RealDetector{goos: "linux", goarch: "amd64", flatpakInfo: marker}
	info, err := d.Detect(context.Background())
	if err != nil {
		t.Fatalf("Detect() error = %v", err)
	}
	if !info.Flatpak {
		t.Error("expected Flatpak to be detected")
	}
}

func TestRealDetector_Cancelled(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("only linux detection consults the context")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d := &RealDetector{goos: "linux", goarch: "amd64", flatpakInfo: flatpakInfoPath}
	if _, err := d.Detect(ctx); err == nil {
		t.Error("expected error for cancelled context")
	}
}

func TestStaticDetector(t *testing.T) {
	d := StaticDetector{Info: Info{OS: "linux", Arch: "amd64"}}

	info, err := d.Detect(context.Background())
	if err != nil {
		t.Fatalf("Detect() error = %v", err)
	}
	info.OS = "changed"

	again, _ := d.Detect(context.Background())
	if again.OS != "linux" {
		t.Error("Detect should return a copy")
	}
}

func TestInfoPredicates(t *testing.T) {
	tests := []struct {
		name    string
		info    Info
		canRun  bool
		steamOS bool
	}{
		{name: "linux amd64", info: Info{OS: "linux", Arch: "amd64"}, canRun: true},
		{name: "steam deck", info: Info{OS: "linux", Arch: "amd64", Distro: "steamos"}, canRun: true, steamOS: true},
		{name: "linux arm64", info: Info{OS: "linux", Arch: "arm64"}},
		{name: "windows", info: Info{OS: "windows", Arch: "amd64"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.info.CanRun(); got != tt.canRun {
				t.Errorf("CanRun() = %v, want %v", got, tt.canRun)
			}
			if got := tt.info.IsSteamOS(); got != tt.steamOS {
				t.Errorf("IsSteamOS() = %v, want %v", got, tt.steamOS)
			}
		})
	}
}
