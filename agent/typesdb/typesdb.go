// SPDX-License-Identifier: GPL-3.0-or-later

// Package typesdb is the process-wide registry of data sets.
package typesdb

import (
	"bufio"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/collectd/collectd-sub006/pkg/metric"
)

//go:embed types.db
var defaultTypesDB string

var (
	ErrConflict = errors.New("data set conflicts with a registered one")
	ErrNotFound = errors.New("unknown type")
)

// Registry maps type names to data sets. Registration of an identical data set is a no-op.
type Registry struct {
	mu   sync.RWMutex
	sets map[string]*metric.DataSet
}

func New() *Registry {
	return &Registry{sets: make(map[string]*metric.DataSet)}
}

// NewDefault returns a registry populated with the built-in types.
func NewDefault() *Registry {
	r := New()
	if err := r.Parse(strings.NewReader(defaultTypesDB), "types.db"); err != nil {
		panic(fmt.Sprintf("typesdb: built-in types.db: %v", err))
	}
	return r
}

func (r *Registry) Register(ds *metric.DataSet) error {
	if err := ds.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.sets[ds.Type]; ok {
		if old.Equal(ds) {
			return nil
		}
		return fmt.Errorf("%w: %s (registered %s)", ErrConflict, ds, old)
	}
	r.sets[ds.Type] = cloneDataSet(ds)
	return nil
}

// Replace registers ds, overwriting an existing definition. Used when loading
// a types.db file, where later files take precedence.
func (r *Registry) Replace(ds *metric.DataSet) error {
	if err := ds.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sets[ds.Type] = cloneDataSet(ds)
	return nil
}

func (r *Registry) Get(typ string) (*metric.DataSet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ds, ok := r.sets[typ]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, typ)
	}
	return ds, nil
}

// Types returns the registered type names, sorted.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.sets))
	for name := range r.sets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	return r.Parse(f, path)
}

// Parse reads lines of the form
//
//	name  ds_name:KIND:min:max[, ds_name:KIND:min:max...]
//
// where min and max are numbers or "U".
func (r *Registry) Parse(rd io.Reader, name string) error {
	sc := bufio.NewScanner(rd)
	var lineNum int
	for sc.Scan() {
		lineNum++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		ds, err := parseLine(line)
		if err != nil {
			return fmt.Errorf("%s:%d: %w", name, lineNum, err)
		}
		if err := r.Replace(ds); err != nil {
			return fmt.Errorf("%s:%d: %w", name, lineNum, err)
		}
	}
	return sc.Err()
}

func parseLine(line string) (*metric.DataSet, error) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return nil, fmt.Errorf("no data sources in %q", line)
	}

	ds := &metric.DataSet{Type: fields[0]}
	for _, def := range strings.Split(strings.Join(fields[1:], ""), ",") {
		if def == "" {
			continue
		}
		src, err := parseSource(def)
		if err != nil {
			return nil, err
		}
		ds.Sources = append(ds.Sources, src)
	}
	if len(ds.Sources) == 0 {
		return nil, fmt.Errorf("no data sources in %q", line)
	}
	return ds, nil
}

func parseSource(def string) (metric.DataSource, error) {
	parts := strings.Split(def, ":")
	if len(parts) != 4 {
		return metric.DataSource{}, fmt.Errorf("invalid data source %q", def)
	}
	typ, err := metric.ParseDSType(parts[1])
	if err != nil {
		return metric.DataSource{}, fmt.Errorf("data source %q: %w", def, err)
	}
	src := metric.NewDataSource(parts[0], typ)
	if src.Min, err = parseBound(parts[2]); err != nil {
		return metric.DataSource{}, fmt.Errorf("data source %q: %w", def, err)
	}
	if src.Max, err = parseBound(parts[3]); err != nil {
		return metric.DataSource{}, fmt.Errorf("data source %q: %w", def, err)
	}
	return src, nil
}

func parseBound(s string) (float64, error) {
	if s == "U" || s == "u" {
		return math.NaN(), nil
	}
	return strconv.ParseFloat(s, 64)
}

func cloneDataSet(ds *metric.DataSet) *metric.DataSet {
	return &metric.DataSet{Type: ds.Type, Sources: append([]metric.DataSource(nil), ds.Sources...)}
}
