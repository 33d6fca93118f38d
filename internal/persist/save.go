// Package persist writes a finished run's output to disk.
package persist

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

const lockTimeout = 5 * time.Second

var (
	// ErrNotOverwritten is returned when the file exists and the gate
	// refused to replace it.
	ErrNotOverwritten = errors.New("output file exists and was not overwritten")

	// ErrEmptyPath is returned when no destination was given.
	ErrEmptyPath = errors.New("output path is empty")
)

// OverwriteGate decides whether an existing file at path may be replaced.
type OverwriteGate func(path string) (bool, error)

// Save writes text to path. An existing file is only replaced when gate
// allows it. The write goes to a temporary file in the same directory
// and is renamed into place, so readers never see a partial file.
// Concurrent saves to the same path are serialized with a lock file.
func Save(ctx context.Context, path, text string, gate OverwriteGate) error {
	if path == "" {
		return ErrEmptyPath
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	lock := flock.New(path + ".lock")
	lockCtx, cancel := context.WithTimeout(ctx, lockTimeout)
	defer cancel()

	locked, err := lock.TryLockContext(lockCtx, 50*time.Millisecond)
	if err != nil {
		return fmt.Errorf("lock acquisition failed: %w", err)
	}
	if !locked {
		return fmt.Errorf("another save is in progress (lock held: %s.lock)", path)
	}
	// The lock file is never removed; unlinking it races waiters.
	defer func() { _ = lock.Unlock() }()

	if info, err := os.Stat(path); err == nil {
		if info.IsDir() {
			return fmt.Errorf("output path %s is a directory", path)
		}
		if gate == nil {
			return ErrNotOverwritten
		}
		ok, err := gate(path)
		if err != nil {
			return fmt.Errorf("overwrite check: %w", err)
		}
		if !ok {
			return ErrNotOverwritten
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat output: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.WriteString(text); err != nil {
		tmp.Close()
		return fmt.Errorf("write output: %w", err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod output: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close output: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename output: %w", err)
	}
	return nil
}
