// SPDX-License-Identifier: GPL-3.0-or-later

// Package sqlquery maps the rows of configured SQL queries to value lists.
//
//	<Query "out_of_stock">
//	  Statement "SELECT category, COUNT(*) AS value FROM products WHERE in_stock = 0 GROUP BY category"
//	  MinVersion 50000
//	  <Result>
//	    Type "gauge"
//	    InstancePrefix "out_of_stock"
//	    InstancesFrom "category"
//	    ValuesFrom "value"
//	  </Result>
//	</Query>
package sqlquery

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/collectd/collectd-sub006/pkg/conftree"
)

var ErrNotFound = errors.New("query not found")

type (
	Query struct {
		Name       string
		Statement  string
		MinVersion uint32
		MaxVersion uint32
		Results    []*Result
		// UserData is owned by the plugin that parsed the query.
		UserData any
	}

	Result struct {
		Type           string
		InstancePrefix string
		InstancesFrom  []string
		ValuesFrom     []string
		MetadataFrom   []string
	}

	// ConfigCallback handles plugin specific options inside a <Query> block.
	ConfigCallback func(q *Query, ci *conftree.Item) error
)

// ParseQuery builds a query from a <Query "name"> block. Options other than Statement,
// MinVersion, MaxVersion and Result are passed to cb, or rejected when cb is nil.
func ParseQuery(ci *conftree.Item, cb ConfigCallback) (*Query, error) {
	name, err := conftree.GetString(ci)
	if err != nil {
		return nil, err
	}

	q := &Query{Name: name, MaxVersion: math.MaxUint32}

	for _, child := range ci.Children {
		switch strings.ToLower(child.Key) {
		case "statement", "query":
			q.Statement, err = conftree.GetString(child)
		case "result":
			var r *Result
			if r, err = parseResult(q.Name, child); err == nil {
				q.Results = append(q.Results, r)
			}
		case "minversion":
			q.MinVersion, err = getVersion(child)
		case "maxversion":
			q.MaxVersion, err = getVersion(child)
		default:
			if cb == nil {
				return nil, conftree.Errorf(child, "query '%s': option not allowed here", q.Name)
			}
			if err = cb(q, child); err != nil {
				err = fmt.Errorf("query '%s': handling '%s': %w", q.Name, child.Key, err)
			}
		}
		if err != nil {
			return nil, err
		}
	}

	if q.Statement == "" {
		return nil, conftree.Errorf(ci, "query '%s': no 'Statement' given", q.Name)
	}
	if len(q.Results) == 0 {
		return nil, conftree.Errorf(ci, "query '%s': no (valid) 'Result' block given", q.Name)
	}
	return q, nil
}

func parseResult(query string, ci *conftree.Item) (*Result, error) {
	r := &Result{}

	for _, child := range ci.Children {
		var err error
		var vs []string

		switch strings.ToLower(child.Key) {
		case "type":
			r.Type, err = conftree.GetString(child)
		case "instanceprefix":
			r.InstancePrefix, err = conftree.GetString(child)
		case "instancesfrom":
			vs, err = conftree.GetStrings(child)
			r.InstancesFrom = append(r.InstancesFrom, vs...)
		case "valuesfrom":
			vs, err = conftree.GetStrings(child)
			r.ValuesFrom = append(r.ValuesFrom, vs...)
		case "metadatafrom":
			vs, err = conftree.GetStrings(child)
			r.MetadataFrom = append(r.MetadataFrom, vs...)
		default:
			err = conftree.Errorf(child, "query '%s': option not allowed in a 'Result' block", query)
		}
		if err != nil {
			return nil, err
		}
	}

	if r.Type == "" {
		return nil, conftree.Errorf(ci, "query '%s': 'Type' not given for result", query)
	}
	if len(r.ValuesFrom) == 0 {
		return nil, conftree.Errorf(ci, "query '%s': 'ValuesFrom' not given for result", query)
	}
	return r, nil
}

func getVersion(ci *conftree.Item) (uint32, error) {
	v, err := conftree.GetDouble(ci)
	if err != nil {
		return 0, err
	}
	if v < 0 || v > math.MaxUint32 {
		return 0, conftree.Errorf(ci, "version %v is out of range", v)
	}
	return uint32(math.Min(math.Round(v), math.MaxUint32)), nil
}

// CheckVersion reports whether q applies to a server of the given version.
func CheckVersion(q *Query, version uint32) bool {
	return q != nil && version >= q.MinVersion && version <= q.MaxVersion
}

// PickFromListByName returns every query (all versions) named name, case-insensitive.
func PickFromListByName(name string, all []*Query) ([]*Query, error) {
	var picked []*Query
	for _, q := range all {
		if strings.EqualFold(q.Name, name) {
			picked = append(picked, q)
		}
	}
	if len(picked) == 0 {
		return nil, fmt.Errorf("%w: '%s' (make sure the <Query> block is above the database definition)", ErrNotFound, name)
	}
	return picked, nil
}

// PickFromList picks the queries named by a `Query "name"` option.
func PickFromList(ci *conftree.Item, all []*Query) ([]*Query, error) {
	name, err := conftree.GetString(ci)
	if err != nil {
		return nil, err
	}
	return PickFromListByName(name, all)
}
