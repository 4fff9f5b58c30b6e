// SPDX-License-Identifier: GPL-3.0-or-later

// Package global holds the process wide options of the daemon.
package global

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/collectd/collectd-sub006/pkg/conftree"
)

const (
	DefaultInterval        = 10 * time.Second
	DefaultMaxReadInterval = 86400 * time.Second
	DefaultReadThreads     = 5
	DefaultTimeout         = 2
	DefaultPreCacheChain   = "PreCache"
	DefaultPostCacheChain  = "PostCache"
)

type Options struct {
	BaseDir              string
	PIDFile              string
	Hostname             string
	FQDNLookup           bool
	Interval             time.Duration
	MaxReadInterval      time.Duration
	ReadThreads          int
	WriteQueueLimitHigh  int64
	WriteQueueLimitLow   int64
	Timeout              int
	TypesDB              []string
	PluginDir            string
	PreCacheChain        string
	PostCacheChain       string
	AutoLoadPlugin       bool
	CollectInternalStats bool
	LogLevel             string
}

func Default() *Options {
	return &Options{
		BaseDir:         "/var/lib/collectd",
		PIDFile:         "/var/run/collectd.pid",
		FQDNLookup:      true,
		Interval:        DefaultInterval,
		MaxReadInterval: DefaultMaxReadInterval,
		ReadThreads:     DefaultReadThreads,
		Timeout:         DefaultTimeout,
		PreCacheChain:   DefaultPreCacheChain,
		PostCacheChain:  DefaultPostCacheChain,
	}
}

func (o *Options) Clone() *Options {
	c := *o
	c.TypesDB = append([]string(nil), o.TypesDB...)
	return &c
}

// Apply sets the global option named by ci.Key. It reports false for keys that are not
// global options.
func (o *Options) Apply(ci *conftree.Item) (bool, error) {
	var err error

	switch strings.ToLower(ci.Key) {
	case "basedir":
		o.BaseDir, err = conftree.GetString(ci)
	case "pidfile":
		o.PIDFile, err = conftree.GetString(ci)
	case "hostname":
		o.Hostname, err = conftree.GetString(ci)
	case "fqdnlookup":
		o.FQDNLookup, err = conftree.GetBoolean(ci)
	case "interval":
		err = positiveDuration(ci, &o.Interval)
	case "maxreadinterval":
		err = positiveDuration(ci, &o.MaxReadInterval)
	case "readthreads":
		err = positiveInt(ci, &o.ReadThreads)
	case "writethreads":
		// writers run on the dispatching goroutine
		_, err = conftree.GetInt(ci)
	case "writequeuelimithigh":
		err = queueLimit(ci, &o.WriteQueueLimitHigh)
	case "writequeuelimitlow":
		err = queueLimit(ci, &o.WriteQueueLimitLow)
	case "timeout":
		err = positiveInt(ci, &o.Timeout)
	case "typesdb":
		var paths []string
		if paths, err = conftree.GetStrings(ci); err == nil {
			o.TypesDB = append(o.TypesDB, paths...)
		}
	case "plugindir":
		o.PluginDir, err = conftree.GetString(ci)
	case "precachechain":
		o.PreCacheChain, err = conftree.GetString(ci)
	case "postcachechain":
		o.PostCacheChain, err = conftree.GetString(ci)
	case "autoloadplugin":
		o.AutoLoadPlugin, err = conftree.GetBoolean(ci)
	case "collectinternalstats":
		o.CollectInternalStats, err = conftree.GetBoolean(ci)
	case "loglevel":
		o.LogLevel, err = conftree.GetString(ci)
	default:
		return false, nil
	}
	return true, err
}

func positiveDuration(ci *conftree.Item, d *time.Duration) error {
	v, err := conftree.GetDuration(ci)
	if err != nil {
		return err
	}
	if v <= 0 {
		return conftree.Errorf(ci, "must be a positive number of seconds")
	}
	*d = v
	return nil
}

func positiveInt(ci *conftree.Item, n *int) error {
	v, err := conftree.GetInt(ci)
	if err != nil {
		return err
	}
	if v < 1 {
		return conftree.Errorf(ci, "must be a positive integer")
	}
	*n = v
	return nil
}

func queueLimit(ci *conftree.Item, n *int64) error {
	v, err := conftree.GetInt(ci)
	if err != nil {
		return err
	}
	if v < 0 {
		return conftree.Errorf(ci, "must not be negative")
	}
	*n = int64(v)
	return nil
}

// ApplyEnv applies COLLECTD_HOSTNAME and COLLECTD_INTERVAL, which take precedence
// over the config file.
func (o *Options) ApplyEnv(lookup func(string) (string, bool)) error {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	if v, ok := lookup("COLLECTD_HOSTNAME"); ok && v != "" {
		o.Hostname = v
		o.FQDNLookup = false
	}
	if v, ok := lookup("COLLECTD_INTERVAL"); ok && v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f <= 0 {
			return fmt.Errorf("COLLECTD_INTERVAL: invalid interval '%s'", v)
		}
		o.Interval = time.Duration(f * float64(time.Second))
	}
	return nil
}

// Finalize fills in the hostname and fixes inconsistent limits.
func (o *Options) Finalize() error {
	if o.Hostname == "" {
		h, err := os.Hostname()
		if err != nil {
			return fmt.Errorf("unable to determine the hostname: %w", err)
		}
		o.Hostname = h
		if o.FQDNLookup {
			if cname, err := net.LookupCNAME(h); err == nil && cname != "" {
				o.Hostname = strings.TrimSuffix(cname, ".")
			}
		}
	}
	if o.MaxReadInterval < o.Interval {
		o.MaxReadInterval = o.Interval
	}
	if o.WriteQueueLimitLow > o.WriteQueueLimitHigh {
		o.WriteQueueLimitLow = o.WriteQueueLimitHigh
	}
	return nil
}

var (
	mu      sync.RWMutex
	current = Default()
)

// Get returns the active options. The result must not be modified.
func Get() *Options {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

// Set replaces the active options. It is only called while the daemon is (re)starting.
func Set(o *Options) {
	mu.Lock()
	defer mu.Unlock()
	current = o
}

func Hostname() string               { return Get().Hostname }
func Interval() time.Duration        { return Get().Interval }
func MaxReadInterval() time.Duration { return Get().MaxReadInterval }
