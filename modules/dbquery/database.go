// SPDX-License-Identifier: GPL-3.0-or-later

package dbquery

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/collectd/collectd-sub006/logger"
	"github.com/collectd/collectd-sub006/pkg/cdtime"
	"github.com/collectd/collectd-sub006/pkg/latency"
	"github.com/collectd/collectd-sub006/pkg/metric"
	"github.com/collectd/collectd-sub006/pkg/sqlquery"

	"github.com/blang/semver/v4"
	"github.com/go-sql-driver/mysql"
)

type database struct {
	*logger.Logger

	name         string
	driver       string
	dsn          string
	safeDSN      string
	host         string
	interval     time.Duration
	timeout      time.Duration
	versionQuery string

	queries []*sqlquery.Query
	areas   []*sqlquery.PreparationArea
	engine  *sqlquery.Engine
	openDB  func(driver, dsn string) (*sql.DB, error)

	// query latency aggregates, dispatched and reset after every read
	latencyCfg latency.Config
	latency    *latency.Counter

	mu      sync.Mutex
	conn    *sql.DB
	version uint32
	known   bool
}

func (db *database) connect(ctx context.Context) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.conn != nil {
		return nil
	}

	conn, err := db.openDB(db.driver, db.dsn)
	if err != nil {
		return fmt.Errorf("error on opening a connection with the database '%s' [%s]: %v", db.name, db.safeDSN, err)
	}
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(10 * time.Minute)

	ctx, cancel := context.WithTimeout(ctx, db.timeout)
	defer cancel()

	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return fmt.Errorf("error on pinging the database '%s' [%s]: %v", db.name, db.safeDSN, err)
	}

	db.Infof("connected to database '%s' [%s]", db.name, db.safeDSN)
	db.conn = conn
	db.known = false
	return nil
}

func (db *database) ping(ctx context.Context) error {
	db.mu.Lock()
	conn := db.conn
	db.mu.Unlock()
	if conn == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, db.timeout)
	defer cancel()
	return conn.PingContext(ctx)
}

func (db *database) close() {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.conn == nil {
		return
	}
	if err := db.conn.Close(); err != nil {
		db.Warningf("error on closing the database '%s': %v", db.name, err)
	}
	db.conn = nil
	db.known = false
}

// serverVersion runs the version query once per connection. Without a version query
// the version is 0, which every query without MinVersion accepts.
func (db *database) serverVersion(ctx context.Context) (uint32, error) {
	if db.versionQuery == "" {
		return 0, nil
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	if db.known {
		return db.version, nil
	}

	ctx, cancel := context.WithTimeout(ctx, db.timeout)
	defer cancel()

	var s string
	if err := db.conn.QueryRowContext(ctx, db.versionQuery).Scan(&s); err != nil {
		return 0, fmt.Errorf("database '%s': error on querying the version: %v", db.name, err)
	}

	v, err := parseVersion(s)
	if err != nil {
		return 0, fmt.Errorf("database '%s': %v", db.name, err)
	}

	db.Infof("database '%s': server version '%s' (%d)", db.name, s, v)
	db.version, db.known = v, true
	return v, nil
}

var reVersionCore = regexp.MustCompile(`\d+\.\d+(\.\d+)?`)

// parseVersion converts a server version string to major*10000 + minor*100 + patch,
// the encoding of PostgreSQL's server_version_num.
func parseVersion(s string) (uint32, error) {
	// version strings are not always valid semver (ex.: 8.0.22-0ubuntu0.20.04.2)
	core := reVersionCore.FindString(s)
	if core == "" {
		return 0, fmt.Errorf("couldn't parse version string '%s'", s)
	}

	ver, err := semver.ParseTolerant(core)
	if err != nil {
		return 0, fmt.Errorf("couldn't parse version string '%s': %v", core, err)
	}
	if ver.Minor > 99 || ver.Patch > 99 {
		return 0, fmt.Errorf("version '%s' out of range", core)
	}
	return uint32(ver.Major*10000 + ver.Minor*100 + ver.Patch), nil
}

// safeDSN masks the password of a DSN for logging.
func safeDSN(driver, dsn string) string {
	if driver == "mysql" {
		cfg, err := mysql.ParseDSN(dsn)
		if err != nil {
			return "<unparsable>"
		}
		cfg.Passwd = strings.Repeat("x", len(cfg.Passwd))
		return cfg.FormatDSN()
	}

	i := strings.Index(dsn, "://")
	at := strings.LastIndexByte(dsn, '@')
	if i < 0 || at < i {
		return dsn
	}
	userinfo := dsn[i+3 : at]
	if c := strings.IndexByte(userinfo, ':'); c >= 0 {
		return dsn[:i+3] + userinfo[:c+1] + strings.Repeat("x", len(userinfo)-c-1) + dsn[at:]
	}
	return dsn
}

// dispatchLatency sends the query latency aggregates as "latency" (seconds), "count"
// and "gauge" (bucket rates) values with type instances like "query-percentile-99".
func (db *database) dispatchLatency(ctx context.Context) error {
	now := cdtime.Now()
	rv := make(map[string]float64)
	db.latency.WriteTo(rv, "query", db.latencyCfg, now)
	db.latency.Reset()

	keys := make([]string, 0, len(rv))
	for k := range rv {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var errs []error
	for _, k := range keys {
		typ := "latency"
		switch {
		case strings.HasSuffix(k, "_count"):
			typ = "count"
		case strings.Contains(k, "_bucket_"):
			typ = "gauge"
		}
		vl := &metric.ValueList{
			Host:           db.host,
			Plugin:         pluginName,
			PluginInstance: db.name,
			Type:           typ,
			TypeInstance:   strings.ReplaceAll(k, "_", "-"),
			Time:           now,
			Interval:       cdtime.FromDuration(db.interval),
			Values:         []metric.Value{metric.Gauge(rv[k])},
		}
		if err := db.engine.Emitter.DispatchValues(ctx, vl); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
