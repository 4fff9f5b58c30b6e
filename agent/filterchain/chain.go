// SPDX-License-Identifier: GPL-3.0-or-later

// Package filterchain routes value lists through named chains of rules. A rule runs its
// targets when all of its matches match; targets may modify the value list, stop its
// processing or return from the chain.
package filterchain

import (
	"log/slog"
	"strings"

	"github.com/collectd/collectd-sub006/logger"
	"github.com/collectd/collectd-sub006/pkg/metric"
)

type Status int

const (
	Continue Status = iota
	Stop
	Return
)

func (s Status) String() string {
	switch s {
	case Continue:
		return "continue"
	case Stop:
		return "stop"
	case Return:
		return "return"
	default:
		return "unknown"
	}
}

type (
	Match interface {
		Match(ds *metric.DataSet, vl *metric.ValueList) (bool, error)
	}
	Target interface {
		Invoke(ds *metric.DataSet, vl *metric.ValueList) (Status, error)
	}
	// Destroyer is implemented by matches and targets holding resources.
	Destroyer interface {
		Destroy()
	}

	MatchFunc  func(ds *metric.DataSet, vl *metric.ValueList) (bool, error)
	TargetFunc func(ds *metric.DataSet, vl *metric.ValueList) (Status, error)
)

func (f MatchFunc) Match(ds *metric.DataSet, vl *metric.ValueList) (bool, error) { return f(ds, vl) }
func (f TargetFunc) Invoke(ds *metric.DataSet, vl *metric.ValueList) (Status, error) {
	return f(ds, vl)
}

type namedMatch struct {
	name  string
	match Match
}

type namedTarget struct {
	name   string
	target Target
}

type Rule struct {
	Name    string
	matches []namedMatch
	targets []namedTarget
}

func (r *Rule) AddMatch(name string, m Match)   { r.matches = append(r.matches, namedMatch{name, m}) }
func (r *Rule) AddTarget(name string, t Target) { r.targets = append(r.targets, namedTarget{name, t}) }

func (r *Rule) destroy() {
	for _, m := range r.matches {
		if d, ok := m.match.(Destroyer); ok {
			d.Destroy()
		}
	}
	for _, t := range r.targets {
		if d, ok := t.target.(Destroyer); ok {
			d.Destroy()
		}
	}
}

type Chain struct {
	*logger.Logger

	Name     string
	rules    []*Rule
	defaults []namedTarget
}

func NewChain(name string) *Chain {
	return &Chain{
		Logger: logger.New().With(slog.String("component", "filter chain"), slog.String("chain", name)),
		Name:   name,
	}
}

func (c *Chain) AddRule(r *Rule) { c.rules = append(c.rules, r) }
func (c *Chain) AddDefaultTarget(name string, t Target) {
	c.defaults = append(c.defaults, namedTarget{name, t})
}

// Process runs vl through the rules. The first rule target signalling Stop or Return ends
// processing and its status is returned. Otherwise the default targets run, where Return
// only ends the chain and Continue is returned.
func (c *Chain) Process(ds *metric.DataSet, vl *metric.ValueList) Status {
	for _, rule := range c.rules {
		if !c.matches(rule, ds, vl) {
			continue
		}

		status := Continue
		for _, t := range rule.targets {
			st, err := t.target.Invoke(ds, vl)
			if err != nil {
				c.Warningf("rule '%s': target '%s' failed: %v", rule.Name, t.name, err)
				continue
			}
			if st == Stop || st == Return {
				status = st
				break
			}
		}
		if status != Continue {
			return status
		}
	}

	for _, t := range c.defaults {
		st, err := t.target.Invoke(ds, vl)
		if err != nil {
			c.Warningf("default target '%s' failed: %v", t.name, err)
			continue
		}
		switch st {
		case Stop:
			return Stop
		case Return:
			return Continue
		}
	}
	return Continue
}

func (c *Chain) matches(rule *Rule, ds *metric.DataSet, vl *metric.ValueList) bool {
	for _, m := range rule.matches {
		ok, err := m.match.Match(ds, vl)
		if err != nil {
			c.Warningf("rule '%s': match '%s' failed: %v", rule.Name, m.name, err)
			return false
		}
		if !ok {
			return false
		}
	}
	return true
}

// Destroy releases the resources of all matches and targets.
func (c *Chain) Destroy() {
	for _, r := range c.rules {
		r.destroy()
	}
	for _, t := range c.defaults {
		if d, ok := t.target.(Destroyer); ok {
			d.Destroy()
		}
	}
}

// Set is an immutable collection of chains looked up by name (case-insensitive).
type Set struct {
	chains map[string]*Chain
	order  []*Chain
}

func NewSet() *Set {
	return &Set{chains: make(map[string]*Chain)}
}

func (s *Set) Get(name string) *Chain {
	if s == nil {
		return nil
	}
	return s.chains[strings.ToLower(name)]
}

func (s *Set) Names() []string {
	names := make([]string, 0, len(s.order))
	for _, c := range s.order {
		names = append(names, c.Name)
	}
	return names
}

func (s *Set) add(c *Chain) bool {
	key := strings.ToLower(c.Name)
	if _, ok := s.chains[key]; ok {
		return false
	}
	s.chains[key] = c
	s.order = append(s.order, c)
	return true
}

func (s *Set) Destroy() {
	if s == nil {
		return
	}
	for _, c := range s.order {
		c.Destroy()
	}
}
