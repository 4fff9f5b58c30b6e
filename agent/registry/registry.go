// SPDX-License-Identifier: GPL-3.0-or-later

// Package registry is the catalog of named plugin callbacks, one ordered list per kind.
package registry

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/collectd/collectd-sub006/logger"
)

var (
	ErrNotFound    = errors.New("callback is not registered")
	ErrInvalidName = errors.New("invalid callback name")
	ErrNilFunc     = errors.New("callback function is nil")
)

type Registry struct {
	*logger.Logger

	// regMu serializes Register so a replaced entry is released before its successor
	// becomes visible. Destructors must not register callbacks.
	regMu sync.Mutex
	mu    sync.RWMutex
	lists map[Kind][]*Entry
	seq   uint64

	gen     atomic.Uint64
	changed chan struct{}
}

func New() *Registry {
	return &Registry{
		Logger:  logger.New().With(slog.String("component", "registry")),
		lists:   make(map[Kind][]*Entry),
		changed: make(chan struct{}, 1),
	}
}

// Register adds e. An entry of the same kind and name is replaced in place after its
// user data was released.
func (r *Registry) Register(e *Entry) error {
	if e.Name == "" {
		return ErrInvalidName
	}
	if e.Func == nil {
		return fmt.Errorf("%s callback '%s': %w", e.Kind, e.Name, ErrNilFunc)
	}

	r.regMu.Lock()
	defer r.regMu.Unlock()

	if old, ok := r.Get(e.Kind, e.Name); ok {
		r.Debugf("replacing %s callback '%s'", e.Kind, e.Name)
		old.release()
	}

	r.mu.Lock()
	r.seq++
	e.seq = r.seq

	list := r.lists[e.Kind]
	if idx := slices.IndexFunc(list, func(x *Entry) bool { return x.Name == e.Name }); idx >= 0 {
		list[idx] = e
	} else {
		r.lists[e.Kind] = append(list, e)
	}
	r.mu.Unlock()

	r.notify()
	return nil
}

// Unregister removes the named callback of the given kind.
func (r *Registry) Unregister(kind Kind, name string) error {
	r.mu.Lock()
	list := r.lists[kind]
	idx := slices.IndexFunc(list, func(x *Entry) bool { return x.Name == name })
	if idx < 0 {
		r.mu.Unlock()
		return fmt.Errorf("%s callback '%s': %w", kind, name, ErrNotFound)
	}
	old := list[idx]
	r.lists[kind] = slices.Delete(list, idx, idx+1)
	r.mu.Unlock()

	old.release()
	r.notify()
	return nil
}

// UnregisterReadGroup removes every read callback of group and returns their number.
func (r *Registry) UnregisterReadGroup(group string) int {
	if group == "" {
		return 0
	}

	r.mu.Lock()
	var removed []*Entry
	r.lists[KindRead] = slices.DeleteFunc(r.lists[KindRead], func(e *Entry) bool {
		if e.Group == group {
			removed = append(removed, e)
			return true
		}
		return false
	})
	r.mu.Unlock()

	for _, e := range removed {
		e.release()
	}
	if len(removed) > 0 {
		r.notify()
	}
	return len(removed)
}

func (r *Registry) Get(kind Kind, name string) (*Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, e := range r.lists[kind] {
		if e.Name == name {
			return e, true
		}
	}
	return nil, false
}

// List returns a snapshot of the callbacks of kind in registration order.
func (r *Registry) List(kind Kind) []*Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.lists[kind])
}

// Shutdowns returns the shutdown callbacks in reverse registration order.
func (r *Registry) Shutdowns() []*Entry {
	list := r.List(KindShutdown)
	slices.Reverse(list)
	return list
}

func (r *Registry) Len(kind Kind) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.lists[kind])
}

// Generation is incremented on every change.
func (r *Registry) Generation() uint64 { return r.gen.Load() }

// Changed is signalled (without blocking, coalescing) on every change.
func (r *Registry) Changed() <-chan struct{} { return r.changed }

func (r *Registry) notify() {
	r.gen.Add(1)
	select {
	case r.changed <- struct{}{}:
	default:
	}
}

// Destroy removes every callback and releases all user data.
func (r *Registry) Destroy() {
	r.mu.Lock()
	lists := r.lists
	r.lists = make(map[Kind][]*Entry)
	r.mu.Unlock()

	for _, list := range lists {
		for _, e := range list {
			e.release()
		}
	}
	r.notify()
}

// AcceptsKey reports whether a config callback declared key (case-insensitive).
func (e *Entry) AcceptsKey(key string) bool {
	return slices.ContainsFunc(e.Keys, func(k string) bool { return strings.EqualFold(k, key) })
}

func (r *Registry) RegisterConfig(name string, fn ConfigFunc, keys []string) error {
	if fn == nil {
		return ErrNilFunc
	}
	return r.Register(&Entry{Kind: KindConfig, Name: name, Func: fn, Keys: keys})
}

func (r *Registry) RegisterComplexConfig(name string, fn ComplexConfigFunc) error {
	if fn == nil {
		return ErrNilFunc
	}
	return r.Register(&Entry{Kind: KindComplexConfig, Name: name, Func: fn})
}

func (r *Registry) RegisterInit(name string, fn InitFunc) error {
	if fn == nil {
		return ErrNilFunc
	}
	return r.Register(&Entry{Kind: KindInit, Name: name, Func: fn})
}

// RegisterRead registers a read callback using the global interval.
func (r *Registry) RegisterRead(name string, fn ReadFunc) error {
	if fn == nil {
		return ErrNilFunc
	}
	return r.Register(&Entry{Kind: KindRead, Name: name, Func: fn})
}

// RegisterComplexRead registers a read callback with its own interval (zero means the
// global interval) and user data.
func (r *Registry) RegisterComplexRead(group, name string, fn ReadFunc, interval time.Duration, ud *UserData) error {
	if fn == nil {
		return ErrNilFunc
	}
	return r.Register(&Entry{Kind: KindRead, Group: group, Name: name, Func: fn, Interval: interval, UserData: ud})
}

func (r *Registry) RegisterWrite(name string, fn WriteFunc, ud *UserData) error {
	if fn == nil {
		return ErrNilFunc
	}
	return r.Register(&Entry{Kind: KindWrite, Name: name, Func: fn, UserData: ud})
}

func (r *Registry) RegisterFlush(name string, fn FlushFunc, ud *UserData) error {
	if fn == nil {
		return ErrNilFunc
	}
	return r.Register(&Entry{Kind: KindFlush, Name: name, Func: fn, UserData: ud})
}

func (r *Registry) RegisterNotification(name string, fn NotificationFunc, ud *UserData) error {
	if fn == nil {
		return ErrNilFunc
	}
	return r.Register(&Entry{Kind: KindNotification, Name: name, Func: fn, UserData: ud})
}

func (r *Registry) RegisterShutdown(name string, fn ShutdownFunc) error {
	if fn == nil {
		return ErrNilFunc
	}
	return r.Register(&Entry{Kind: KindShutdown, Name: name, Func: fn})
}

func (r *Registry) RegisterMissing(name string, fn MissingFunc, ud *UserData) error {
	if fn == nil {
		return ErrNilFunc
	}
	return r.Register(&Entry{Kind: KindMissing, Name: name, Func: fn, UserData: ud})
}
