package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ZebulonRouseFrantzich/rtpkg/internal/installer"
	"github.com/ZebulonRouseFrantzich/rtpkg/internal/registry"
	"github.com/ZebulonRouseFrantzich/rtpkg/internal/release"
)

type fakeCatalog struct {
	versions []release.VersionInfo
	families []release.Family
	perPage  int
}

func (f *fakeCatalog) ListAvailableVersions(ctx context.Context, families []release.Family, perPage int) []release.VersionInfo {
	f.families = families
	f.perPage = perPage
	return f.versions
}

// fakeInstaller creates the version directory with a single file.
type fakeInstaller struct {
	installs int
	err      error
}

func (f *fakeInstaller) Install(ctx context.Context, info release.VersionInfo, root string, opts installer.InstallOptions) (*installer.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.installs++
	path := filepath.Join(root, info.Version)
	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, err
	}
	if err := os.WriteFile(filepath.Join(path, "version"), []byte(info.Version), 0644); err != nil {
		return nil, err
	}
	info.DiskBytes = int64(len(info.Version))
	return &installer.Result{Info: info, Path: path}, nil
}

func (f *fakeInstaller) Remove(ctx context.Context, root, version string) error {
	return os.RemoveAll(filepath.Join(root, version))
}

var catalogVersions = []release.VersionInfo{
	{Version: "Wine-6.16-GE-1", Family: release.FamilyWineGE, DownloadURL: "https://example.test/w.tar.xz"},
	{Version: "Proton-GE-Proton9-1", Family: release.FamilyProtonGE, DownloadURL: "https://example.test/p.tar.gz"},
}

func newTestService(t *testing.T, cat *fakeCatalog, inst *fakeInstaller, now time.Time) (*RuntimeService, string) {
	t.Helper()
	root := t.TempDir()
	cfg := Config{
		InstallRoot: root,
		Families:    []release.Family{release.FamilyWineGE, release.FamilyProtonGE},
		PerPage:     50,
	}
	return NewRuntimeService(cat, inst, TestClock{FixedTime: now}, cfg, nil), root
}

func TestRuntimeService_Install(t *testing.T) {
	now := time.Date(2024, 3, 2, 10, 0, 0, 0, time.UTC)
	inst := &fakeInstaller{}
	svc, root := newTestService(t, &fakeCatalog{versions: catalogVersions}, inst, now)

	res, err := svc.Install(context.Background(), InstallRequest{Version: "Proton-GE-Proton9-1"})
	if err != nil {
		t.Fatalf("Install() error = %v", err)
	}

	if res.Path != filepath.Join(root, "Proton-GE-Proton9-1") {
		t.Errorf("Path = %s", res.Path)
	}
	if !res.Entry.InstalledAt.Equal(now) {
		t.Errorf("InstalledAt = %v, want %v", res.Entry.InstalledAt, now)
	}

	reg, err := registry.Open(registry.Path(root))
	if err != nil {
		t.Fatalf("registry.Open() error = %v", err)
	}
	entry, ok := reg.Get("Proton-GE-Proton9-1")
	if !ok {
		t.Fatal("install not recorded")
	}
	if entry.DiskBytes == 0 {
		t.Error("recorded entry should carry DiskBytes")
	}
}

func TestRuntimeService_InstallKeepsTimestampOnRepeat(t *testing.T) {
	first := time.Date(2024, 3, 2, 10, 0, 0, 0, time.UTC)
	inst := &fakeInstaller{}
	svc, _ := newTestService(t, &fakeCatalog{versions: catalogVersions}, inst, first)

	if _, err := svc.Install(context.Background(), InstallRequest{Version: "Wine-6.16-GE-1"}); err != nil {
		t.Fatalf("Install() error = %v", err)
	}

	svc.clock = TestClock{FixedTime: first.Add(time.Hour)}
	res, err := svc.Install(context.Background(), InstallRequest{Version: "Wine-6.16-GE-1"})
	if err != nil {
		t.Fatalf("second Install() error = %v", err)
	}
	if !res.Entry.InstalledAt.Equal(first) {
		t.Errorf("InstalledAt = %v, want %v", res.Entry.InstalledAt, first)
	}

	res, err = svc.Install(context.Background(), InstallRequest{Version: "Wine-6.16-GE-1", Overwrite: true})
	if err != nil {
		t.Fatalf("overwrite Install() error = %v", err)
	}
	if !res.Entry.InstalledAt.Equal(first.Add(time.Hour)) {
		t.Errorf("overwrite should refresh InstalledAt, got %v", res.Entry.InstalledAt)
	}

	installed, err := svc.Installed(context.Background())
	if err != nil {
		t.Fatalf("Installed() error = %v", err)
	}
	if len(installed) != 1 {
		t.Errorf("Installed() = %d entries, want 1", len(installed))
	}
}

func TestRuntimeService_InstallErrors(t *testing.T) {
	t.Run("unknown version", func(t *testing.T) {
		svc, _ := newTestService(t, &fakeCatalog{versions: catalogVersions}, &fakeInstaller{}, time.Now())

		_, err := svc.Install(context.Background(), InstallRequest{Version: "Wine-0.0"})
		if !errors.Is(err, ErrVersionNotFound) {
			t.Errorf("expected ErrVersionNotFound, got %v", err)
		}
	})

	t.Run("empty version", func(t *testing.T) {
		svc, _ := newTestService(t, &fakeCatalog{versions: catalogVersions}, &fakeInstaller{}, time.Now())

		_, err := svc.Install(context.Background(), InstallRequest{})
		if !errors.Is(err, release.ErrValidation) {
			t.Errorf("expected validation error, got %v", err)
		}
	})

	t.Run("installer failure is not recorded", func(t *testing.T) {
		boom := release.Errorf(release.KindIntegrity, "Wine-6.16-GE-1", nil, "checksum verification failed")
		svc, root := newTestService(t, &fakeCatalog{versions: catalogVersions}, &fakeInstaller{err: boom}, time.Now())

		_, err := svc.Install(context.Background(), InstallRequest{Version: "Wine-6.16-GE-1"})
		if !errors.Is(err, release.ErrIntegrity) {
			t.Fatalf("expected integrity error, got %v", err)
		}
		if _, err := os.Stat(registry.Path(root)); !os.IsNotExist(err) {
			t.Error("registry should not be written")
		}
	})

	t.Run("cancelled lookup", func(t *testing.T) {
		svc, _ := newTestService(t, &fakeCatalog{}, &fakeInstaller{}, time.Now())
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := svc.Install(ctx, InstallRequest{Version: "Wine-6.16-GE-1"})
		if !release.IsAbort(err) {
			t.Errorf("expected abort, got %v", err)
		}
	})
}

func TestRuntimeService_List(t *testing.T) {
	cat := &fakeCatalog{versions: catalogVersions}
	svc, _ := newTestService(t, cat, &fakeInstaller{}, time.Now())

	if _, err := svc.Install(context.Background(), InstallRequest{Version: "Wine-6.16-GE-1"}); err != nil {
		t.Fatalf("Install() error = %v", err)
	}

	list, err := svc.List(context.Background(), ListRequest{Families: []release.Family{release.FamilyWineGE}, PerPage: 5})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}

	if len(cat.families) != 1 || cat.families[0] != release.FamilyWineGE || cat.perPage != 5 {
		t.Errorf("catalog queried with %v/%d", cat.families, cat.perPage)
	}
	if len(list) != 2 || !list[0].Installed || list[1].Installed {
		t.Errorf("unexpected list: %+v", list)
	}

	if _, err := svc.List(context.Background(), ListRequest{}); err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(cat.families) != 2 || cat.perPage != 50 {
		t.Errorf("defaults not applied: %v/%d", cat.families, cat.perPage)
	}
}

func TestRuntimeService_RemoveAndPrune(t *testing.T) {
	svc, root := newTestService(t, &fakeCatalog{versions: catalogVersions}, &fakeInstaller{}, time.Now())

	for _, v := range []string{"Wine-6.16-GE-1", "Proton-GE-Proton9-1"} {
		if _, err := svc.Install(context.Background(), InstallRequest{Version: v}); err != nil {
			t.Fatalf("Install(%s) error = %v", v, err)
		}
	}

	if err := svc.Remove(context.Background(), "Wine-6.16-GE-1"); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}

	// Deleted behind our back
	if err := os.RemoveAll(filepath.Join(root, "Proton-GE-Proton9-1")); err != nil {
		t.Fatal(err)
	}

	installed, err := svc.Installed(context.Background())
	if err != nil {
		t.Fatalf("Installed() error = %v", err)
	}
	if len(installed) != 0 {
		t.Errorf("Installed() = %+v, want empty", installed)
	}
}
