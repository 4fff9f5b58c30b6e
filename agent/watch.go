// SPDX-License-Identifier: GPL-3.0-or-later

package agent

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/mitchellh/go-homedir"
)

// watchConfig signals on the returned channel when the config file was written, created
// or replaced. Bursts of events within WatchDelay are coalesced.
func (a *Agent) watchConfig(ctx context.Context) (<-chan struct{}, error) {
	path, err := homedir.Expand(a.ConfigFile)
	if err != nil {
		return nil, err
	}
	if path, err = filepath.Abs(path); err != nil {
		return nil, err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	// the directory is watched, editors replace files instead of writing them
	if err := w.Add(filepath.Dir(path)); err != nil {
		_ = w.Close()
		return nil, err
	}

	ch := make(chan struct{}, 1)

	go func() {
		defer func() { _ = w.Close() }()

		delay := time.NewTimer(a.WatchDelay)
		delay.Stop()
		defer delay.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != path {
					continue
				}
				if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) {
					a.Debugf("config file event: %s", ev)
					delay.Reset(a.WatchDelay)
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				a.Warningf("config watcher: %v", err)
			case <-delay.C:
				select {
				case ch <- struct{}{}:
				default:
				}
			}
		}
	}()

	return ch, nil
}
