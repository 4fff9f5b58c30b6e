// SPDX-License-Identifier: GPL-3.0-or-later

package sqlquery

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/collectd/collectd-sub006/pkg/conftree"
	"github.com/collectd/collectd-sub006/pkg/metric"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type dataSets map[string]*metric.DataSet

func (d dataSets) Get(typ string) (*metric.DataSet, error) {
	ds, ok := d[typ]
	if !ok {
		return nil, errors.New("unknown type")
	}
	return ds, nil
}

var testTypes = dataSets{
	"gauge":  {Type: "gauge", Sources: []metric.DataSource{metric.NewDataSource("value", metric.DSTypeGauge)}},
	"derive": {Type: "derive", Sources: []metric.DataSource{metric.NewDataSource("value", metric.DSTypeDerive)}},
	"if_octets": {Type: "if_octets", Sources: []metric.DataSource{
		metric.NewDataSource("rx", metric.DSTypeDerive),
		metric.NewDataSource("tx", metric.DSTypeDerive),
	}},
}

type collector struct {
	vls []*metric.ValueList
}

func (c *collector) DispatchValues(_ context.Context, vl *metric.ValueList) error {
	c.vls = append(c.vls, vl)
	return nil
}

func newTestEngine() (*Engine, *collector) {
	c := &collector{}
	return NewEngine(testTypes, c), c
}

func parseQuery(t *testing.T, text string, cb ConfigCallback) (*Query, error) {
	t.Helper()
	root, err := conftree.Parse(strings.NewReader(text), "query.conf")
	require.NoError(t, err)
	require.Len(t, root.Children, 1)
	return ParseQuery(root.Children[0], cb)
}

func mustParseQuery(t *testing.T, text string) *Query {
	t.Helper()
	q, err := parseQuery(t, text, nil)
	require.NoError(t, err)
	return q
}

const demoQuery = `
<Query "q">
  Statement "SELECT name, value FROM t"
  <Result>
    Type "gauge"
    InstancesFrom "name"
    ValuesFrom "value"
  </Result>
</Query>
`

func TestEngine_Execute_MapsRows(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectQuery("SELECT name, value FROM t").
		WillReturnRows(sqlmock.NewRows([]string{"name", "value"}).
			AddRow("a", "1.5").
			AddRow("b", "2.0"))

	e, c := newTestEngine()
	q := mustParseQuery(t, demoQuery)
	area := NewPreparationArea(q)

	n, err := e.Execute(context.Background(), db, q, area, "h", "demo", "d", 0)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.False(t, area.Prepared(), "the area is finished after execution")
	assert.NoError(t, mock.ExpectationsWereMet())

	require.Len(t, c.vls, 2)
	for i, want := range []struct {
		instance string
		value    float64
	}{{"a", 1.5}, {"b", 2.0}} {
		vl := c.vls[i]
		assert.Equal(t, "h", vl.Host)
		assert.Equal(t, "demo", vl.Plugin)
		assert.Equal(t, "d", vl.PluginInstance)
		assert.Equal(t, "gauge", vl.Type)
		assert.Equal(t, want.instance, vl.TypeInstance)
		assert.Equal(t, []metric.Value{metric.Gauge(want.value)}, vl.Values)
	}
}

func TestParseQuery(t *testing.T) {
	const text = `
<Query "traffic">
  Query "SELECT * FROM traffic"
  MinVersion 80000
  MaxVersion 90000
  Database "ignored by the engine"
  <Result>
    Type "if_octets"
    InstancePrefix "eth"
    InstancesFrom "dev" "dir"
    ValuesFrom "rx"
    ValuesFrom "tx"
    MetadataFrom "comment"
  </Result>
  <Result>
    Type "gauge"
    ValuesFrom "errors"
  </Result>
</Query>
`
	var handled []string
	q, err := parseQuery(t, text, func(q *Query, ci *conftree.Item) error {
		handled = append(handled, ci.Key)
		q.UserData = "custom"
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, "traffic", q.Name)
	assert.Equal(t, "SELECT * FROM traffic", q.Statement)
	assert.EqualValues(t, 80000, q.MinVersion)
	assert.EqualValues(t, 90000, q.MaxVersion)
	assert.Equal(t, []string{"Database"}, handled)
	assert.Equal(t, "custom", q.UserData)
	require.Len(t, q.Results, 2)
	assert.Equal(t, &Result{
		Type:           "if_octets",
		InstancePrefix: "eth",
		InstancesFrom:  []string{"dev", "dir"},
		ValuesFrom:     []string{"rx", "tx"},
		MetadataFrom:   []string{"comment"},
	}, q.Results[0])

	q = mustParseQuery(t, demoQuery)
	assert.EqualValues(t, 0, q.MinVersion)
	assert.EqualValues(t, math.MaxUint32, q.MaxVersion)
}

func TestParseQuery_Errors(t *testing.T) {
	tests := map[string]string{
		"no name":          "<Query>\nStatement \"x\"\n<Result>\nType \"gauge\"\nValuesFrom \"v\"\n</Result>\n</Query>",
		"no statement":     "<Query q>\n<Result>\nType \"gauge\"\nValuesFrom \"v\"\n</Result>\n</Query>",
		"no result":        "<Query q>\nStatement \"x\"\n</Query>",
		"result no type":   "<Query q>\nStatement \"x\"\n<Result>\nValuesFrom \"v\"\n</Result>\n</Query>",
		"result no values": "<Query q>\nStatement \"x\"\n<Result>\nType \"gauge\"\n</Result>\n</Query>",
		"unknown option":   "<Query q>\nStatement \"x\"\nColour \"red\"\n<Result>\nType \"gauge\"\nValuesFrom \"v\"\n</Result>\n</Query>",
		"bad result opt":   "<Query q>\nStatement \"x\"\n<Result>\nType \"gauge\"\nValuesFrom \"v\"\nFoo 1\n</Result>\n</Query>",
		"negative version": "<Query q>\nStatement \"x\"\nMinVersion -1\n<Result>\nType \"gauge\"\nValuesFrom \"v\"\n</Result>\n</Query>",
		"numeric values":   "<Query q>\nStatement \"x\"\n<Result>\nType \"gauge\"\nValuesFrom 1\n</Result>\n</Query>",
	}

	for name, text := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := parseQuery(t, text, nil)
			assert.ErrorIs(t, err, conftree.ErrConfig)
		})
	}

	t.Run("callback error", func(t *testing.T) {
		_, err := parseQuery(t, "<Query q>\nStatement \"x\"\nColour \"red\"\n</Query>",
			func(*Query, *conftree.Item) error { return errors.New("no colours") })
		assert.ErrorContains(t, err, "no colours")
	})
}

func TestPickFromList(t *testing.T) {
	all := []*Query{{Name: "a"}, {Name: "B", MinVersion: 1}, {Name: "b", MinVersion: 2}}

	picked, err := PickFromListByName("b", all)
	require.NoError(t, err)
	assert.Equal(t, []*Query{all[1], all[2]}, picked)

	_, err = PickFromListByName("c", all)
	assert.ErrorIs(t, err, ErrNotFound)

	root, err := conftree.Parse(strings.NewReader(`Query "A"`), "db.conf")
	require.NoError(t, err)
	picked, err = PickFromList(root.Children[0], all)
	require.NoError(t, err)
	assert.Equal(t, []*Query{all[0]}, picked)
}

func TestCheckVersion(t *testing.T) {
	q := &Query{MinVersion: 10, MaxVersion: 20}

	tests := map[string]struct {
		version uint32
		want    bool
	}{
		"below":     {version: 9},
		"lower end": {version: 10, want: true},
		"inside":    {version: 15, want: true},
		"upper end": {version: 20, want: true},
		"above":     {version: 21},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, test.want, CheckVersion(q, test.version))
		})
	}
	assert.False(t, CheckVersion(nil, 1))
}

func TestEngine_TypeInstance(t *testing.T) {
	tests := map[string]struct {
		prefix    string
		instances []string
		want      string
	}{
		"nothing":              {want: ""},
		"prefix only":          {prefix: "p", want: "p"},
		"one column":           {instances: []string{"name"}, want: "a"},
		"two columns":          {instances: []string{"name", "zone"}, want: "a-z1"},
		"prefix and columns":   {prefix: "p", instances: []string{"name", "zone"}, want: "p-a-z1"},
		"case-insensitive col": {instances: []string{"NAME"}, want: "a"},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			e, c := newTestEngine()
			q := &Query{Name: "q", Results: []*Result{{
				Type:           "gauge",
				InstancePrefix: test.prefix,
				InstancesFrom:  test.instances,
				ValuesFrom:     []string{"value"},
			}}}
			area := NewPreparationArea(q)

			require.NoError(t, e.Prepare(q, area, "", "p", "db", []string{"name", "zone", "value"}, time.Second))
			require.NoError(t, e.Handle(context.Background(), q, area, []string{"a", "z1", "3"}))
			require.Len(t, c.vls, 1)
			assert.Equal(t, test.want, c.vls[0].TypeInstance)
		})
	}
}

func TestEngine_Prepare(t *testing.T) {
	tests := map[string]struct {
		result  Result
		wantErr bool
	}{
		"ok":             {result: Result{Type: "if_octets", ValuesFrom: []string{"rx", "tx"}}},
		"unknown type":   {result: Result{Type: "nope", ValuesFrom: []string{"rx"}}, wantErr: true},
		"value count":    {result: Result{Type: "if_octets", ValuesFrom: []string{"rx"}}, wantErr: true},
		"missing value":  {result: Result{Type: "gauge", ValuesFrom: []string{"nope"}}, wantErr: true},
		"missing inst":   {result: Result{Type: "gauge", InstancesFrom: []string{"nope"}, ValuesFrom: []string{"rx"}}, wantErr: true},
		"missing meta":   {result: Result{Type: "gauge", ValuesFrom: []string{"rx"}, MetadataFrom: []string{"nope"}}, wantErr: true},
		"upper case col": {result: Result{Type: "gauge", ValuesFrom: []string{"RX"}}},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			e, _ := newTestEngine()
			r := test.result
			q := &Query{Name: "q", Results: []*Result{&r}}
			area := NewPreparationArea(q)

			err := e.Prepare(q, area, "h", "p", "db", []string{"dev", "rx", "tx"}, 0)
			if test.wantErr {
				assert.Error(t, err)
				assert.False(t, area.Prepared())
			} else {
				assert.NoError(t, err)
				assert.True(t, area.Prepared())
			}
		})
	}
}

func TestEngine_Handle(t *testing.T) {
	e, c := newTestEngine()
	q := &Query{Name: "q", Results: []*Result{
		{Type: "derive", InstancePrefix: "count", ValuesFrom: []string{"n"}},
		{Type: "gauge", InstancePrefix: "ratio", ValuesFrom: []string{"r"}, MetadataFrom: []string{"comment"}},
	}}
	area := NewPreparationArea(q)

	err := e.Handle(context.Background(), q, area, []string{"1", "0.5", "c"})
	assert.ErrorIs(t, err, ErrNotPrepared)

	require.NoError(t, e.Prepare(q, area, "h", "p", "db", []string{"n", "r", "comment"}, 5*time.Second))

	// the derive result fails, the gauge result still succeeds
	require.NoError(t, e.Handle(context.Background(), q, area, []string{"1.5", "0.5", "hello"}))
	require.Len(t, c.vls, 1)
	vl := c.vls[0]
	assert.Equal(t, "ratio", vl.TypeInstance)
	assert.Equal(t, 5*time.Second, vl.Interval.Duration())
	s, err := vl.Meta.GetString("comment")
	require.NoError(t, err)
	assert.Equal(t, "hello", s)

	// NULL values arrive as empty strings and fail parsing
	err = e.Handle(context.Background(), q, area, []string{"", "", "x"})
	assert.ErrorIs(t, err, ErrAllFailed)

	assert.Error(t, e.Handle(context.Background(), q, area, []string{"1"}), "wrong column count")

	e.Finish(q, area)
	assert.ErrorIs(t, e.Handle(context.Background(), q, area, []string{"1", "2", "3"}), ErrNotPrepared)
}

func TestEngine_ExecuteAll(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	bad := &Query{Name: "bad", Statement: "SELECT broken", MaxVersion: math.MaxUint32,
		Results: []*Result{{Type: "gauge", ValuesFrom: []string{"v"}}}}
	good := &Query{Name: "good", Statement: "SELECT v", MaxVersion: math.MaxUint32,
		Results: []*Result{{Type: "gauge", ValuesFrom: []string{"v"}}}}
	old := &Query{Name: "old", Statement: "SELECT old", MaxVersion: 5,
		Results: []*Result{{Type: "gauge", ValuesFrom: []string{"v"}}}}
	queries := []*Query{bad, good, old}
	areas := []*PreparationArea{NewPreparationArea(bad), NewPreparationArea(good), NewPreparationArea(old)}

	mock.ExpectQuery("SELECT broken").WillReturnError(errors.New("syntax error"))
	mock.ExpectQuery("SELECT v").WillReturnRows(sqlmock.NewRows([]string{"v"}).AddRow("7"))

	e, c := newTestEngine()
	require.NoError(t, e.ExecuteAll(context.Background(), db, queries, areas, 10, "", "demo", "d", 0))
	require.Len(t, c.vls, 1)
	assert.Equal(t, []metric.Value{metric.Gauge(7)}, c.vls[0].Values)
	assert.NoError(t, mock.ExpectationsWereMet())

	mock.ExpectQuery("SELECT broken").WillReturnError(errors.New("syntax error"))
	err = e.ExecuteAll(context.Background(), db, queries[:1], areas[:1], 10, "", "demo", "d", 0)
	assert.ErrorContains(t, err, "syntax error")

	err = e.ExecuteAll(context.Background(), db, queries[2:], areas[2:], 10, "", "demo", "d", 0)
	assert.ErrorIs(t, err, ErrNoQuery)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEngine_ExecuteAllUnknownVersion(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	q := &Query{Name: "new", Statement: "SELECT v", MinVersion: 1, MaxVersion: math.MaxUint32,
		Results: []*Result{{Type: "gauge", ValuesFrom: []string{"v"}}}}

	mock.ExpectQuery("SELECT v").WillReturnRows(sqlmock.NewRows([]string{"v"}).AddRow("3"))

	e, c := newTestEngine()
	require.NoError(t, e.ExecuteAll(context.Background(), db, []*Query{q}, []*PreparationArea{NewPreparationArea(q)}, 0, "", "demo", "d", 0))
	require.Len(t, c.vls, 1)
	assert.Equal(t, []metric.Value{metric.Gauge(3)}, c.vls[0].Values)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryRows(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectQuery("SELECT a, b").
		WillReturnRows(sqlmock.NewRows([]string{"a", "b"}).
			AddRow("x", nil).
			AddRow("y", "2"))

	var cols []string
	var rows [][]string
	_, err = QueryRows(context.Background(), db, "SELECT a, b", func(columns []string) (func([]string) error, error) {
		cols = columns
		return func(values []string) error {
			rows = append(rows, append([]string(nil), values...))
			return nil
		}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, cols)
	assert.Equal(t, [][]string{{"x", ""}, {"y", "2"}}, rows)
	assert.NoError(t, mock.ExpectationsWereMet())
}
