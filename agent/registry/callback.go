// SPDX-License-Identifier: GPL-3.0-or-later

package registry

import (
	"context"
	"sync"
	"time"

	"github.com/collectd/collectd-sub006/pkg/conftree"
	"github.com/collectd/collectd-sub006/pkg/metric"
)

type Kind int

const (
	KindConfig Kind = iota
	KindComplexConfig
	KindInit
	KindRead
	KindWrite
	KindFlush
	KindNotification
	KindShutdown
	KindMissing
)

var kindNames = [...]string{
	KindConfig:        "config",
	KindComplexConfig: "complex_config",
	KindInit:          "init",
	KindRead:          "read",
	KindWrite:         "write",
	KindFlush:         "flush",
	KindNotification:  "notification",
	KindShutdown:      "shutdown",
	KindMissing:       "missing",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "unknown"
	}
	return kindNames[k]
}

type (
	ConfigFunc        func(key, value string) error
	ComplexConfigFunc func(ci *conftree.Item) error
	InitFunc          func() error
	ReadFunc          func(ctx context.Context, ud *UserData) error
	WriteFunc         func(ds *metric.DataSet, vl *metric.ValueList, ud *UserData) error
	FlushFunc         func(timeout time.Duration, identifier string, ud *UserData) error
	NotificationFunc  func(n *metric.Notification, ud *UserData) error
	ShutdownFunc      func() error
	// MissingFunc reports whether it handled the expired value; later callbacks are skipped then.
	MissingFunc func(vl *metric.ValueList, ud *UserData) (bool, error)
)

// UserData is owned by the registry once registered. Free is called exactly once, when
// the callback is unregistered, replaced or the registry is destroyed.
type UserData struct {
	Data any
	Free func(data any)

	once sync.Once
}

func (ud *UserData) free() {
	if ud == nil || ud.Free == nil {
		return
	}
	ud.once.Do(func() { ud.Free(ud.Data) })
}

// Entry is a registered callback.
type Entry struct {
	Kind     Kind
	Name     string
	Group    string
	Func     any
	UserData *UserData
	// Interval is the read interval, zero means the global interval.
	Interval time.Duration
	// Keys are the options accepted by a config callback.
	Keys []string

	seq uint64

	mu      sync.Mutex
	running int
	removed bool
}

// Seq is the registration sequence number, it orders callbacks registered at the same time.
func (e *Entry) Seq() uint64 { return e.seq }

// Begin marks the callback as running. It returns false if the entry was removed.
func (e *Entry) Begin() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed {
		return false
	}
	e.running++
	return true
}

// End marks the callback as finished and releases the user data if the entry was
// removed while running.
func (e *Entry) End() {
	e.mu.Lock()
	e.running--
	release := e.removed && e.running == 0
	e.mu.Unlock()

	if release {
		e.UserData.free()
	}
}

// Removed reports whether the entry was unregistered.
func (e *Entry) Removed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.removed
}

// release frees the user data now, or when the running callback returns.
func (e *Entry) release() {
	e.mu.Lock()
	e.removed = true
	running := e.running > 0
	e.mu.Unlock()

	if !running {
		e.UserData.free()
	}
}
