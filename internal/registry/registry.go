// Package registry keeps the list of installed runtime packages in a YAML
// file next to them. The installer itself never reads it; the command line
// updates it after each install or removal.
package registry

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ZebulonRouseFrantzich/rtpkg/internal/release"
)

// FileName is the registry file kept in the install root.
const FileName = ".rtpkg-installed.yaml"

// Entry is one installed version.
type Entry struct {
	release.VersionInfo `yaml:",inline"`
	InstalledAt         time.Time `yaml:"installed_at"`
}

type document struct {
	Versions []Entry `yaml:"versions"`
}

// Registry is an in-memory view of the registry file. It is safe for
// concurrent use; changes reach disk on Save.
type Registry struct {
	path    string
	mu      sync.Mutex
	entries map[string]Entry
}

// Path returns the registry file for installRoot.
func Path(installRoot string) string {
	return filepath.Join(installRoot, FileName)
}

// Open loads the registry at path. A missing file is an empty registry.
func Open(path string) (*Registry, error) {
	r := &Registry{path: path, entries: make(map[string]Entry)}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return r, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read registry: %w", err)
	}

	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse registry %s: %w", path, err)
	}

	for _, entry := range doc.Versions {
		if entry.Version != "" {
			r.entries[entry.Version] = entry
		}
	}

	return r, nil
}

// Put records entry, replacing any entry for the same version.
func (r *Registry) Put(entry Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[entry.Version] = entry
}

// Remove forgets version and reports whether it was recorded.
func (r *Registry) Remove(version string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.entries[version]
	delete(r.entries, version)
	return ok
}

// Get returns the entry for version.
func (r *Registry) Get(version string) (Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[version]
	return entry, ok
}

// List returns every entry sorted by version.
func (r *Registry) List() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	list := make([]Entry, 0, len(r.entries))
	for _, entry := range r.entries {
		list = append(list, entry)
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].Version < list[j].Version
	})
	return list
}

// Prune drops entries whose directory below installRoot no longer exists
// and returns their versions.
func (r *Registry) Prune(installRoot string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var pruned []string
	for version := range r.entries {
		fi, err := os.Stat(filepath.Join(installRoot, version))
		if err == nil && fi.IsDir() {
			continue
		}
		delete(r.entries, version)
		pruned = append(pruned, version)
	}
	sort.Strings(pruned)
	return pruned
}

// Save writes the registry through a temporary file and a rename.
func (r *Registry) Save() error {
	doc := document{Versions: r.List()}

	data, err := yaml.Marshal(&doc)
	if err != nil {
		return fmt.Errorf("encode registry: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(r.path), 0755); err != nil {
		return fmt.Errorf("create registry directory: %w", err)
	}

	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write registry: %w", err)
	}
	if err := os.Rename(tmp, r.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace registry: %w", err)
	}

	return nil
}
