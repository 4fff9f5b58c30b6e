// SPDX-License-Identifier: GPL-3.0-or-later

package filterchain

import (
	"errors"
	"log/slog"
	"strings"

	"github.com/collectd/collectd-sub006/logger"
	"github.com/collectd/collectd-sub006/pkg/conftree"
)

// Builder turns <Chain> blocks into a Set:
//
//	<Chain "PostCache">
//	  <Rule "ignore_mysql_show">
//	    <Match "regex">
//	      Plugin "^mysql$"
//	    </Match>
//	    Target "stop"
//	  </Rule>
//	  <Target "write">
//	    Plugin "rrdtool"
//	  </Target>
//	</Chain>
type Builder struct {
	*logger.Logger

	factories *Factories
	writer    Writer
	set       *Set
}

func NewBuilder(factories *Factories, writer Writer) *Builder {
	return &Builder{
		Logger:    logger.New().With(slog.String("component", "filter chain builder")),
		factories: factories,
		writer:    writer,
		set:       NewSet(),
	}
}

// Set returns the chains built so far.
func (b *Builder) Set() *Set { return b.set }

// Add builds one <Chain> block.
func (b *Builder) Add(ci *conftree.Item) error {
	if !strings.EqualFold(ci.Key, "Chain") {
		return conftree.Errorf(ci, "unknown filter chain option")
	}
	name, err := conftree.GetString(ci)
	if err != nil {
		return err
	}

	chain := NewChain(name)
	var errs []error

	for _, child := range ci.Children {
		switch {
		case strings.EqualFold(child.Key, "Rule"):
			rule, err := b.rule(child)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			chain.AddRule(rule)
		case strings.EqualFold(child.Key, "Target"):
			tname, t, err := b.target(child)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			chain.AddDefaultTarget(tname, t)
		default:
			b.Warningf("%s: chain '%s': ignoring unknown option '%s'", child.Position(), name, child.Key)
		}
	}

	if err := errors.Join(errs...); err != nil {
		chain.Destroy()
		return err
	}
	if !b.set.add(chain) {
		chain.Destroy()
		return conftree.Errorf(ci, "chain '%s' is defined more than once", name)
	}
	return nil
}

func (b *Builder) rule(ci *conftree.Item) (_ *Rule, err error) {
	rule := &Rule{}
	defer func() {
		if err != nil {
			rule.destroy()
		}
	}()

	if len(ci.Values) > 0 {
		name, err := conftree.GetString(ci)
		if err != nil {
			return nil, err
		}
		rule.Name = name
	}

	for _, child := range ci.Children {
		switch {
		case strings.EqualFold(child.Key, "Match"):
			var mname string
			if mname, err = conftree.GetString(child); err != nil {
				return nil, err
			}
			mf, ok := b.factories.match(mname)
			if !ok {
				return nil, conftree.Errorf(child, "no match named '%s' is registered", mname)
			}
			var m Match
			if m, err = mf(child); err != nil {
				return nil, conftree.Errorf(child, "creating match '%s': %v", mname, err)
			}
			rule.AddMatch(mname, m)
		case strings.EqualFold(child.Key, "Target"):
			var tname string
			var t Target
			if tname, t, err = b.target(child); err != nil {
				return nil, err
			}
			rule.AddTarget(tname, t)
		default:
			b.Warningf("%s: rule '%s': ignoring unknown option '%s'", child.Position(), rule.Name, child.Key)
		}
	}

	if len(rule.targets) == 0 {
		b.Warningf("%s: rule '%s' has no targets", ci.Position(), rule.Name)
	}
	return rule, nil
}

func (b *Builder) target(ci *conftree.Item) (string, Target, error) {
	name, err := conftree.GetString(ci)
	if err != nil {
		return "", nil, err
	}

	switch strings.ToLower(name) {
	case "stop":
		return name, stopTarget, nil
	case "return":
		return name, returnTarget, nil
	case "write":
		var plugins []string
		for _, child := range ci.Children {
			if !strings.EqualFold(child.Key, "Plugin") {
				return "", nil, conftree.Errorf(child, "built-in target 'write' does not support this option")
			}
			ps, err := conftree.GetStrings(child)
			if err != nil {
				return "", nil, err
			}
			plugins = append(plugins, ps...)
		}
		return name, NewWriteTarget(b.Logger, b.writer, plugins), nil
	case "jump":
		var chain string
		for _, child := range ci.Children {
			if !strings.EqualFold(child.Key, "Chain") {
				return "", nil, conftree.Errorf(child, "built-in target 'jump' does not support this option")
			}
			if chain, err = conftree.GetString(child); err != nil {
				return "", nil, err
			}
		}
		if chain == "" {
			return "", nil, conftree.Errorf(ci, "built-in target 'jump' needs a 'Chain' option")
		}
		return name, &jumpTarget{set: b.set, chain: chain}, nil
	}

	tf, ok := b.factories.target(name)
	if !ok {
		return "", nil, conftree.Errorf(ci, "no target named '%s' is registered", name)
	}
	t, err := tf(ci)
	if err != nil {
		return "", nil, conftree.Errorf(ci, "creating target '%s': %v", name, err)
	}
	return name, t, nil
}
