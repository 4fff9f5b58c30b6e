// SPDX-License-Identifier: GPL-3.0-or-later

// Package ignorelist implements the select/ignore filter plugins use to pick
// which named objects (interfaces, disks, mount points) they report.
package ignorelist

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/collectd/collectd-sub006/pkg/matcher"
)

var ErrEmptyPattern = errors.New("empty pattern")

type entry struct {
	pattern string
	m       matcher.Matcher
}

// List is an ordered set of patterns. A pattern enclosed in slashes ("/^eth[0-9]+$/")
// is a regular expression, any other pattern is a glob (which is an exact match when
// it contains no meta characters).
//
// With invert unset ("IgnoreSelected false") only matching entries are included,
// with invert set matching entries are ignored and everything else is included.
type List struct {
	mu      sync.RWMutex
	invert  bool
	entries []entry
}

// New creates a list. invert corresponds to the "IgnoreSelected" option.
func New(invert bool) *List {
	return &List{invert: invert}
}

func (l *List) SetInvert(invert bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.invert = invert
}

func (l *List) Invert() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.invert
}

// Add appends a pattern.
func (l *List) Add(pattern string) error {
	if pattern == "" {
		return ErrEmptyPattern
	}

	m, err := compile(pattern)
	if err != nil {
		return fmt.Errorf("ignorelist: pattern %q: %w", pattern, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, entry{pattern: pattern, m: m})
	return nil
}

func (l *List) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

func (l *List) Patterns() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]string, 0, len(l.entries))
	for _, e := range l.entries {
		out = append(out, e.pattern)
	}
	return out
}

// Match reports whether s should be included: it is true iff s matches one of
// the patterns XOR the list is inverted. An empty list and an empty s are always included.
func (l *List) Match(s string) bool {
	if l == nil || s == "" {
		return true
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	if len(l.entries) == 0 {
		return true
	}

	var matched bool
	for _, e := range l.entries {
		if e.m.MatchString(s) {
			matched = true
			break
		}
	}
	return matched != l.invert
}

// Ignored is the negation of Match.
func (l *List) Ignored(s string) bool { return !l.Match(s) }

func compile(pattern string) (matcher.Matcher, error) {
	if len(pattern) > 2 && strings.HasPrefix(pattern, "/") && strings.HasSuffix(pattern, "/") {
		re, err := regexp.Compile(pattern[1 : len(pattern)-1])
		if err != nil {
			return nil, err
		}
		return re, nil
	}
	return matcher.NewGlobMatcher(pattern)
}
