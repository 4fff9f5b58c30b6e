// SPDX-License-Identifier: GPL-3.0-or-later

// Package pidfile writes the daemon's pid file and holds an exclusive lock on it while
// the daemon runs.
package pidfile

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/gofrs/flock"
)

var ErrLocked = errors.New("pid file is locked by another process")

type File struct {
	path string
	lock *flock.Flock
}

// Create locks path and writes the current pid into it.
func Create(path string) (*File, error) {
	lock := flock.New(path)

	ok, err := lock.TryLock()
	if err != nil {
		_ = lock.Close()
		return nil, fmt.Errorf("lock pid file '%s': %w", path, err)
	}
	if !ok {
		_ = lock.Close()
		return nil, fmt.Errorf("'%s': %w", path, ErrLocked)
	}

	pid := strconv.Itoa(os.Getpid()) + "\n"
	if err := os.WriteFile(path, []byte(pid), 0644); err != nil {
		_ = lock.Close()
		return nil, fmt.Errorf("write pid file '%s': %w", path, err)
	}

	return &File{path: path, lock: lock}, nil
}

func (f *File) Path() string { return f.path }

// Remove deletes the pid file and releases the lock.
func (f *File) Remove() error {
	if f == nil || f.lock == nil {
		return nil
	}
	err := os.Remove(f.path)
	_ = f.lock.Close()
	f.lock = nil
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
