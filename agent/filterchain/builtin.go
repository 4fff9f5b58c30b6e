// SPDX-License-Identifier: GPL-3.0-or-later

package filterchain

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/collectd/collectd-sub006/logger"
	"github.com/collectd/collectd-sub006/pkg/conftree"
	"github.com/collectd/collectd-sub006/pkg/metric"
)

// ErrNoWriters is returned by a Writer when no write callback is registered.
var ErrNoWriters = errors.New("no write callbacks registered")

// Writer hands a value list to write callbacks, to all of them when plugins is empty.
type Writer interface {
	Write(ds *metric.DataSet, vl *metric.ValueList, plugins []string) error
}

type (
	MatchFactory  func(ci *conftree.Item) (Match, error)
	TargetFactory func(ci *conftree.Item) (Target, error)
)

// Factories holds the matches and targets plugins make available to the configuration.
type Factories struct {
	mu      sync.RWMutex
	matches map[string]MatchFactory
	targets map[string]TargetFactory
}

func NewFactories() *Factories {
	return &Factories{
		matches: make(map[string]MatchFactory),
		targets: make(map[string]TargetFactory),
	}
}

func (f *Factories) RegisterMatch(name string, mf MatchFactory) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := strings.ToLower(name)
	if _, ok := f.matches[key]; ok {
		return fmt.Errorf("match '%s' is already registered", name)
	}
	f.matches[key] = mf
	return nil
}

func (f *Factories) RegisterTarget(name string, tf TargetFactory) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := strings.ToLower(name)
	if _, ok := f.targets[key]; ok || isBuiltinTarget(key) {
		return fmt.Errorf("target '%s' is already registered", name)
	}
	f.targets[key] = tf
	return nil
}

func (f *Factories) match(name string) (MatchFactory, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	mf, ok := f.matches[strings.ToLower(name)]
	return mf, ok
}

func (f *Factories) target(name string) (TargetFactory, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	tf, ok := f.targets[strings.ToLower(name)]
	return tf, ok
}

func isBuiltinTarget(name string) bool {
	switch name {
	case "stop", "return", "write", "jump":
		return true
	}
	return false
}

var (
	stopTarget   = TargetFunc(func(*metric.DataSet, *metric.ValueList) (Status, error) { return Stop, nil })
	returnTarget = TargetFunc(func(*metric.DataSet, *metric.ValueList) (Status, error) { return Return, nil })
)

// WriteTarget passes the value list to the listed write callbacks, or to all of them.
// Write errors are logged with a complaint limit and never stop processing.
type WriteTarget struct {
	*logger.Logger

	writer    Writer
	plugins   []string
	complaint *logger.Complainer
}

func NewWriteTarget(l *logger.Logger, w Writer, plugins []string) *WriteTarget {
	return &WriteTarget{Logger: l, writer: w, plugins: plugins, complaint: logger.NewComplainer(time.Minute)}
}

func (t *WriteTarget) Invoke(ds *metric.DataSet, vl *metric.ValueList) (Status, error) {
	err := t.writer.Write(ds, vl, t.plugins)
	switch {
	case err == nil:
		t.ReleaseComplaint(t.complaint, "built-in target 'write': dispatching values succeeded again")
	case errors.Is(err, ErrNoWriters):
		t.Complain(t.complaint, "built-in target 'write': %v, most likely no write plugin is loaded", err)
	default:
		t.Complain(t.complaint, "built-in target 'write': dispatching values failed: %v", err)
	}
	return Continue, nil
}

type jumpTarget struct {
	set   *Set
	chain string
}

func (t *jumpTarget) Invoke(ds *metric.DataSet, vl *metric.ValueList) (Status, error) {
	c := t.set.Get(t.chain)
	if c == nil {
		return Continue, fmt.Errorf("built-in target 'jump': there is no chain named '%s'", t.chain)
	}
	if c.Process(ds, vl) == Stop {
		return Stop, nil
	}
	return Continue, nil
}
