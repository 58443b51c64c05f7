// Package testutil provides utilities for testing rtpkg in isolation.
package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/mitchellh/go-homedir"
)

// SetupTestEnv points HOME and the XDG directories at a fresh temporary
// directory and returns it. This keeps tests away from:
// - the user's real rtpkg config file
// - installed runtime packages
// - a GITHUB_TOKEN exported in the developer's shell
//
// The temporary directory is removed by t.TempDir().
func SetupTestEnv(t *testing.T) string {
	t.Helper()

	home := t.TempDir()

	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, ".config"))
	t.Setenv("XDG_DATA_HOME", filepath.Join(home, ".local", "share"))
	t.Setenv("GITHUB_TOKEN", "")

	// go-homedir caches the first lookup
	homedir.Reset()
	t.Cleanup(homedir.Reset)

	for _, dir := range []string{
		filepath.Join(home, ".config", "rtpkg"),
		filepath.Join(home, ".local", "share"),
	} {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			t.Fatalf("failed to create test directory %s: %v", dir, err)
		}
	}

	return home
}
