// Package transaction implements the overwrite transaction used when a
// runtime package is reinstalled over an existing copy, plus the lock that
// keeps two installs of the same version from racing on it.
//
// An overwrite moves R/{version} aside to R/{version}_backup before new files
// are written. Commit renames the backup to R/{version}_discard and deletes
// it; Rollback deletes whatever was written and moves the backup back.
// Outside an in-flight transaction at most one of R/{version} and
// R/{version}_backup exists, and a leftover discard directory is garbage.
package transaction

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// BackupSuffix is appended to the version directory while a transaction is
// in flight.
const BackupSuffix = "_backup"

// DiscardSuffix names a committed backup that is only waiting to be deleted.
const DiscardSuffix = "_discard"

// State represents the current state of a transaction.
type State string

const (
	StatePending    State = "pending"
	StateInProgress State = "in_progress"
	StateCommitted  State = "committed"
	StateRolledBack State = "rolled_back"
)

// Txn is a single install transaction for one version below one root.
type Txn struct {
	ID       string
	Target   string
	Backup   string
	Discard  string
	State    State
	backedUp bool
}

// New creates a pending transaction for root/version.
func New(root, version string) *Txn {
	target := filepath.Join(root, version)
	return &Txn{
		ID:      uuid.New().String(),
		Target:  target,
		Backup:  target + BackupSuffix,
		Discard: target + DiscardSuffix,
		State:   StatePending,
	}
}

// Begin starts the transaction. When overwrite is set and the target
// exists, the target is renamed to the backup path.
func (t *Txn) Begin(overwrite bool) error {
	if t.State != StatePending {
		return fmt.Errorf("transaction %s already %s", t.ID, t.State)
	}

	if overwrite && exists(t.Target) {
		if exists(t.Backup) {
			return fmt.Errorf("backup %s already exists", t.Backup)
		}
		if err := os.Rename(t.Target, t.Backup); err != nil {
			return fmt.Errorf("move %s aside: %w", t.Target, err)
		}
		t.backedUp = true
	}

	t.State = StateInProgress
	return nil
}

// BackedUp reports whether Begin moved an existing install aside.
func (t *Txn) BackedUp() bool {
	return t.backedUp
}

// Commit makes the new target permanent. The backup is renamed to the
// discard path, which is the commit point, and then deleted.
//
// If the rename fails the transaction stays in progress and the caller
// should roll back. Once the rename succeeds the transaction is committed;
// a failure to delete the discarded files is still returned, and Recover
// deletes them later.
func (t *Txn) Commit() error {
	if t.State != StateInProgress {
		return fmt.Errorf("commit transaction %s: state is %s", t.ID, t.State)
	}

	if t.backedUp {
		if exists(t.Discard) {
			if err := os.RemoveAll(t.Discard); err != nil {
				return fmt.Errorf("remove stale %s: %w", t.Discard, err)
			}
		}
		if err := os.Rename(t.Backup, t.Discard); err != nil {
			return fmt.Errorf("discard backup %s: %w", t.Backup, err)
		}
	}

	t.State = StateCommitted

	if t.backedUp {
		if err := os.RemoveAll(t.Discard); err != nil {
			return fmt.Errorf("remove discarded %s: %w", t.Discard, err)
		}
	}
	return nil
}

// Rollback removes the target and restores the backup, if one was made.
// Both steps are attempted; the first error is returned.
func (t *Txn) Rollback() error {
	if t.State != StateInProgress {
		return fmt.Errorf("roll back transaction %s: state is %s", t.ID, t.State)
	}

	var errs []error
	if err := os.RemoveAll(t.Target); err != nil {
		errs = append(errs, fmt.Errorf("remove %s: %w", t.Target, err))
	}

	if t.backedUp {
		if err := os.Rename(t.Backup, t.Target); err != nil {
			errs = append(errs, fmt.Errorf("restore %s: %w", t.Backup, err))
		}
	}

	t.State = StateRolledBack
	return errors.Join(errs...)
}

// Recover finishes a transaction interrupted by a crash. A leftover discard
// directory belongs to a committed install and is deleted. A leftover backup
// means the new files were never committed, so the backup wins. It reports
// whether anything was restored.
func Recover(root, version string) (bool, error) {
	target := filepath.Join(root, version)
	backup := target + BackupSuffix
	discard := target + DiscardSuffix

	restored := false
	if exists(backup) {
		if err := os.RemoveAll(target); err != nil {
			return false, fmt.Errorf("remove uncommitted %s: %w", target, err)
		}
		if err := os.Rename(backup, target); err != nil {
			return false, fmt.Errorf("restore %s: %w", backup, err)
		}
		restored = true
	}

	if exists(discard) {
		if err := os.RemoveAll(discard); err != nil {
			return restored, fmt.Errorf("remove discarded %s: %w", discard, err)
		}
	}

	return restored, nil
}

func exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil || !errors.Is(err, fs.ErrNotExist)
}
