// Package fsutil holds the small filesystem helpers shared by the transfer,
// archive, and installer packages.
package fsutil

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/shirou/gopsutil/v4/disk"
)

// SafeDelete removes a file if it exists. A missing path is not an error.
func SafeDelete(path string) error {
	err := os.Remove(path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("delete %s: %w", path, err)
}

// SafeDeleteAll removes a path and everything below it. A missing path is
// not an error.
func SafeDeleteAll(path string) error {
	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("delete %s: %w", path, err)
	}
	return nil
}

// DirectorySizeBytes returns the total size of the regular files below path.
// Like du, a file reached through several hard links is counted once.
// ok is false when path does not exist or cannot be walked; disk usage is
// advisory, so callers treat that as "unknown" rather than a failure.
func DirectorySizeBytes(path string) (size int64, ok bool) {
	if _, err := os.Lstat(path); err != nil {
		return 0, false
	}

	seen := make(map[fileID]struct{})

	err := filepath.WalkDir(path, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if id, linked := hardLinkID(info); linked {
			if _, dup := seen[id]; dup {
				return nil
			}
			seen[id] = struct{}{}
		}
		size += info.Size()
		return nil
	})
	if err != nil {
		return 0, false
	}

	return size, true
}

// FreeBytes returns the free space on the filesystem holding path.
func FreeBytes(ctx context.Context, path string) (uint64, error) {
	usage, err := disk.UsageWithContext(ctx, path)
	if err != nil {
		return 0, fmt.Errorf("disk usage %s: %w", path, err)
	}
	return usage.Free, nil
}

// IsDir reports whether path exists and is a directory.
func IsDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// Exists reports whether anything exists at path, without following a
// final symlink.
func Exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}

// IsRegularFile reports whether path exists and is a regular file.
func IsRegularFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
