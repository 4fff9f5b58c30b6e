// SPDX-License-Identifier: GPL-3.0-or-later

// Package dbquery reads metrics from SQL databases with user-defined queries.
//
//	<Plugin "dbquery">
//	  <Query "connections">
//	    Statement "SELECT state, count(*) AS n FROM pg_stat_activity GROUP BY state"
//	    MinVersion 90200
//	    <Result>
//	      Type "gauge"
//	      InstancePrefix "connections"
//	      InstancesFrom "state"
//	      ValuesFrom "n"
//	    </Result>
//	  </Query>
//	  <Database "main">
//	    Driver "postgres"
//	    DSN "postgres://collectd@localhost/main"
//	    VersionQuery "SHOW server_version"
//	    Interval 30
//	    Query "connections"
//	  </Database>
//	</Plugin>
package dbquery

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/collectd/collectd-sub006/agent/module"
	"github.com/collectd/collectd-sub006/agent/registry"
	"github.com/collectd/collectd-sub006/logger"
	"github.com/collectd/collectd-sub006/pkg/cdtime"
	"github.com/collectd/collectd-sub006/pkg/conftree"
	"github.com/collectd/collectd-sub006/pkg/latency"
	"github.com/collectd/collectd-sub006/pkg/sqlquery"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/sijms/go-ora/v2"
)

const pluginName = "dbquery"

const defaultTimeout = 5 * time.Second

func init() {
	module.Register(pluginName, module.Creator{
		Register:    func(h *module.Host) error { return newPlugin(h).register() },
		Description: "user-defined SQL queries against mysql, postgres and oracle databases",
	})
}

// driverNames maps the Driver option to a database/sql driver.
var driverNames = map[string]string{
	"mysql":      "mysql",
	"mariadb":    "mysql",
	"pgx":        "pgx",
	"postgres":   "pgx",
	"postgresql": "pgx",
	"oracle":     "oracle",
}

type plugin struct {
	*logger.Logger

	host      *module.Host
	engine    *sqlquery.Engine
	queries   []*sqlquery.Query
	databases []*database

	openDB func(driver, dsn string) (*sql.DB, error)
}

func newPlugin(h *module.Host) *plugin {
	return &plugin{
		Logger: h.NewLogger(),
		host:   h,
		engine: sqlquery.NewEngine(h.Types, h),
		openDB: sql.Open,
	}
}

func (p *plugin) register() error {
	return errors.Join(
		p.host.RegisterComplexConfig(pluginName, p.config),
		p.host.RegisterInit(pluginName, p.init),
		p.host.RegisterShutdown(pluginName, p.shutdown),
	)
}

func (p *plugin) config(ci *conftree.Item) error {
	var errs []error
	for _, child := range ci.Children {
		switch strings.ToLower(child.Key) {
		case "query":
			q, err := sqlquery.ParseQuery(child, nil)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			p.queries = append(p.queries, q)
		case "database":
			db, err := p.parseDatabase(child)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			p.databases = append(p.databases, db)
		default:
			errs = append(errs, conftree.Errorf(child, "unknown %s option", pluginName))
		}
	}
	return errors.Join(errs...)
}

func (p *plugin) parseDatabase(ci *conftree.Item) (*database, error) {
	name, err := conftree.GetString(ci)
	if err != nil {
		return nil, err
	}

	db := &database{
		Logger:  p.Logger,
		name:    name,
		timeout: defaultTimeout,
		engine:  p.engine,
		openDB:  func(driver, dsn string) (*sql.DB, error) { return p.openDB(driver, dsn) },
	}

	var errs []error
	for _, child := range ci.Children {
		var err error
		switch strings.ToLower(child.Key) {
		case "driver":
			var driver string
			if driver, err = conftree.GetString(child); err == nil {
				var ok bool
				if db.driver, ok = driverNames[strings.ToLower(driver)]; !ok {
					err = conftree.Errorf(child, "unsupported driver '%s'", driver)
				}
			}
		case "dsn":
			db.dsn, err = conftree.GetString(child)
		case "host":
			db.host, err = conftree.GetString(child)
		case "interval":
			db.interval, err = conftree.GetDuration(child)
		case "timeout":
			db.timeout, err = conftree.GetDuration(child)
		case "versionquery":
			db.versionQuery, err = conftree.GetString(child)
		case "query":
			var qs []*sqlquery.Query
			if qs, err = sqlquery.PickFromList(child, p.queries); err == nil {
				db.queries = append(db.queries, qs...)
			} else {
				err = conftree.Errorf(child, "%v", err)
			}
		default:
			var ok bool
			if ok, err = db.latencyCfg.Apply(child); !ok {
				err = conftree.Errorf(child, "unknown Database option")
			}
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	switch {
	case db.driver == "":
		return nil, conftree.Errorf(ci, "database '%s': no Driver", name)
	case db.dsn == "":
		return nil, conftree.Errorf(ci, "database '%s': no DSN", name)
	case len(db.queries) == 0:
		return nil, conftree.Errorf(ci, "database '%s': no queries", name)
	}

	if err := db.latencyCfg.Validate(); err != nil {
		return nil, conftree.Errorf(ci, "database '%s': %v", name, err)
	}
	if len(db.latencyCfg.Percentiles) > 0 || len(db.latencyCfg.Buckets) > 0 {
		db.latency = latency.NewCounter()
	}

	db.areas = make([]*sqlquery.PreparationArea, len(db.queries))
	for i, q := range db.queries {
		db.areas[i] = sqlquery.NewPreparationArea(q)
	}
	db.safeDSN = safeDSN(db.driver, db.dsn)
	return db, nil
}

// init registers one read callback per database.
func (p *plugin) init() error {
	if len(p.databases) == 0 {
		p.Warning("no databases configured")
		return nil
	}

	var errs []error
	for _, db := range p.databases {
		ud := &registry.UserData{Data: db, Free: func(any) { db.close() }}
		name := pluginName + "-" + db.name
		if err := p.host.RegisterComplexRead(pluginName, name, db.read, db.interval, ud); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (p *plugin) shutdown() error {
	p.host.UnregisterReadGroup(pluginName)
	p.databases = nil
	return nil
}

// read is the read callback of one database.
func (db *database) read(ctx context.Context, _ *registry.UserData) error {
	if err := db.connect(ctx); err != nil {
		return err
	}

	version, err := db.serverVersion(ctx)
	if err != nil {
		db.close()
		return err
	}

	start := time.Now()
	if err := db.engine.ExecuteAll(ctx, db.conn, db.queries, db.areas, version, db.host, pluginName, db.name, db.interval); err != nil {
		if pingErr := db.ping(ctx); pingErr != nil {
			db.Warningf("database '%s' [%s]: connection lost: %v", db.name, db.safeDSN, pingErr)
			db.close()
		}
		return fmt.Errorf("database '%s': %w", db.name, err)
	}
	if db.latency == nil {
		return nil
	}
	db.latency.Add(cdtime.FromDuration(time.Since(start)))
	return db.dispatchLatency(ctx)
}
