package transaction

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shirou/gopsutil/v4/process"
)

const (
	// StaleLockThreshold is the maximum age of a lock whose owner cannot be
	// identified on this host before it's considered stale.
	StaleLockThreshold = 10 * time.Minute
)

var (
	ErrLockExists = errors.New("install lock exists: another install of this version may be in progress")
)

// Lock represents an install lock for one version below one root.
type Lock struct {
	path  string
	token string
	file  *os.File
}

// lockOwner is the metadata written into a lock file.
type lockOwner struct {
	pid     int
	started int64
	host    string
	token   string
}

// LockPath returns the lock file path for root/version.
func LockPath(root, version string) string {
	return filepath.Join(root, "."+version+".lock")
}

// AcquireLock attempts to acquire an exclusive lock for installing version
// below root. Uses O_CREATE|O_EXCL for atomic lock creation. root must exist.
//
// An existing lock is taken over only when it is stale: its owner process on
// this host is gone (or its pid now belongs to another process), or the owner
// cannot be identified and the file is older than StaleLockThreshold.
func AcquireLock(ctx context.Context, root, version string) (*Lock, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}

	lockPath := LockPath(root, version)

	// Try to create lock file exclusively
	file, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0600)
	if err != nil {
		if !os.IsExist(err) {
			return nil, fmt.Errorf("create lock file: %w", err)
		}

		// Lock exists - check if it's stale
		data, isStale := isLockStale(ctx, lockPath)
		if !isStale || !removeStaleLock(lockPath, data) {
			return nil, ErrLockExists
		}

		file, err = os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0600)
		if err != nil {
			return nil, ErrLockExists
		}
	}

	owner := currentOwner(ctx)
	if _, err := file.WriteString(owner.String()); err != nil {
		file.Close()
		os.Remove(lockPath)
		return nil, fmt.Errorf("write lock data: %w", err)
	}

	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(lockPath)
		return nil, fmt.Errorf("sync lock file: %w", err)
	}

	return &Lock{
		path:  lockPath,
		token: owner.token,
		file:  file,
	}, nil
}

// Release releases the lock. The lock file is removed only while it still
// carries this lock's token.
func (l *Lock) Release() error {
	if l.file != nil {
		l.file.Close()
		l.file = nil
	}

	if l.path == "" {
		return nil
	}
	defer func() { l.path = "" }()

	data, err := os.ReadFile(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read lock file: %w", err)
	}
	if parseOwner(data).token != l.token {
		return nil
	}

	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove lock file: %w", err)
	}
	return nil
}

// isLockStale reads the lock at lockPath and reports whether it may be taken
// over. The content it judged is returned for removeStaleLock.
func isLockStale(ctx context.Context, lockPath string) ([]byte, bool) {
	info, err := os.Stat(lockPath)
	if err != nil {
		return nil, false
	}
	data, err := os.ReadFile(lockPath)
	if err != nil {
		return nil, false
	}

	owner := parseOwner(data)
	host, _ := os.Hostname()
	if owner.pid > 0 && owner.host != "" && owner.host == host {
		if alive, err := ownerAlive(ctx, owner); err == nil {
			return data, !alive
		}
	}

	return data, time.Since(info.ModTime()) > StaleLockThreshold
}

// removeStaleLock moves the lock aside and deletes it if it still holds the
// content judged stale. A lock re-taken in between is put back.
func removeStaleLock(lockPath string, judged []byte) bool {
	aside := lockPath + "." + uuid.NewString() + ".stale"
	if err := os.Rename(lockPath, aside); err != nil {
		return false
	}
	defer os.Remove(aside)

	data, err := os.ReadFile(aside)
	if err != nil || !bytes.Equal(data, judged) {
		os.Link(aside, lockPath)
		return false
	}
	return true
}

func ownerAlive(ctx context.Context, owner lockOwner) (bool, error) {
	exists, err := process.PidExistsWithContext(ctx, int32(owner.pid))
	if err != nil {
		return false, err
	}
	if !exists {
		return false, nil
	}
	if owner.started == 0 {
		return true, nil
	}

	started := processStartTime(ctx, owner.pid)
	// A different start time means the pid was reused
	return started == 0 || started == owner.started, nil
}

func processStartTime(ctx context.Context, pid int) int64 {
	p, err := process.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		return 0
	}
	started, err := p.CreateTimeWithContext(ctx)
	if err != nil {
		return 0
	}
	return started
}

func currentOwner(ctx context.Context) lockOwner {
	host, _ := os.Hostname()
	return lockOwner{
		pid:     os.Getpid(),
		started: processStartTime(ctx, os.Getpid()),
		host:    host,
		token:   uuid.NewString(),
	}
}

func (o lockOwner) String() string {
	return fmt.Sprintf("pid=%d\nstarted=%d\nhost=%s\ntoken=%s\ntimestamp=%s\n",
		o.pid, o.started, o.host, o.token, time.Now().UTC().Format(time.RFC3339))
}

func parseOwner(data []byte) lockOwner {
	var owner lockOwner
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		key, value, ok := strings.Cut(scanner.Text(), "=")
		if !ok {
			continue
		}
		switch key {
		case "pid":
			owner.pid, _ = strconv.Atoi(value)
		case "started":
			owner.started, _ = strconv.ParseInt(value, 10, 64)
		case "host":
			owner.host = value
		case "token":
			owner.token = value
		}
	}
	return owner
}
