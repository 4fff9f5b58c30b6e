// SPDX-License-Identifier: GPL-3.0-or-later

package writelog

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/collectd/collectd-sub006/pkg/metric"
)

func graphiteLines(prefix string, ds *metric.DataSet, vl *metric.ValueList, rates []float64) []string {
	var base strings.Builder
	base.WriteString(prefix)
	base.WriteString(graphiteEscape(vl.Host))
	base.WriteByte('.')
	base.WriteString(graphiteEscape(vl.Plugin))
	if vl.PluginInstance != "" {
		base.WriteByte('-')
		base.WriteString(graphiteEscape(vl.PluginInstance))
	}
	base.WriteByte('.')
	base.WriteString(graphiteEscape(vl.Type))
	if vl.TypeInstance != "" {
		base.WriteByte('-')
		base.WriteString(graphiteEscape(vl.TypeInstance))
	}

	ts := strconv.FormatInt(int64(vl.Time.Seconds()), 10)
	lines := make([]string, 0, len(vl.Values))
	for i, v := range vl.Values {
		name := base.String()
		if len(vl.Values) > 1 && i < len(ds.Sources) {
			name += "." + graphiteEscape(ds.Sources[i].Name)
		}
		lines = append(lines, name+" "+valueString(v, rates, i)+" "+ts)
	}
	return lines
}

func graphiteEscape(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', ' ', '/', '\\':
			return '_'
		}
		return r
	}, s)
}

func valueString(v metric.Value, rates []float64, i int) string {
	if rates != nil && v.Kind != metric.DSTypeGauge && i < len(rates) {
		return formatFloat(rates[i])
	}
	if v.Kind == metric.DSTypeGauge {
		return formatFloat(v.Gauge)
	}
	return v.String()
}

func formatFloat(f float64) string {
	if math.IsNaN(f) {
		return "nan"
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

type jsonValueList struct {
	Values         []json.RawMessage `json:"values"`
	DSTypes        []string          `json:"dstypes"`
	DSNames        []string          `json:"dsnames"`
	Time           float64           `json:"time"`
	Interval       float64           `json:"interval"`
	Host           string            `json:"host"`
	Plugin         string            `json:"plugin"`
	PluginInstance string            `json:"plugin_instance"`
	Type           string            `json:"type"`
	TypeInstance   string            `json:"type_instance"`
	Meta           map[string]string `json:"meta,omitempty"`
}

func formatValueListJSON(ds *metric.DataSet, vl *metric.ValueList, rates []float64) (string, error) {
	jv := jsonValueList{
		Time:           vl.Time.Seconds(),
		Interval:       vl.Interval.Seconds(),
		Host:           vl.Host,
		Plugin:         vl.Plugin,
		PluginInstance: vl.PluginInstance,
		Type:           vl.Type,
		TypeInstance:   vl.TypeInstance,
		Meta:           metaMap(vl),
	}
	for i, v := range vl.Values {
		s := valueString(v, rates, i)
		if s == "nan" || strings.HasSuffix(s, "Inf") {
			s = "null"
		}
		jv.Values = append(jv.Values, json.RawMessage(s))

		typ := v.Kind.String()
		if rates != nil && v.Kind != metric.DSTypeGauge {
			typ = metric.DSTypeGauge.String()
		}
		jv.DSTypes = append(jv.DSTypes, strings.ToLower(typ))

		name := "value"
		if i < len(ds.Sources) {
			name = ds.Sources[i].Name
		}
		jv.DSNames = append(jv.DSNames, name)
	}

	bs, err := json.Marshal([]jsonValueList{jv})
	return string(bs), err
}

func metaMap(vl *metric.ValueList) map[string]string {
	if vl.Meta == nil || vl.Meta.Len() == 0 {
		return nil
	}
	m := make(map[string]string)
	for _, k := range vl.Meta.Keys() {
		if s, err := vl.Meta.AsString(k); err == nil {
			m[k] = s
		}
	}
	return m
}

type jsonNotification struct {
	Time           float64 `json:"time"`
	Severity       string  `json:"severity"`
	Message        string  `json:"message"`
	Host           string  `json:"host,omitempty"`
	Plugin         string  `json:"plugin,omitempty"`
	PluginInstance string  `json:"plugin_instance,omitempty"`
	Type           string  `json:"type,omitempty"`
	TypeInstance   string  `json:"type_instance,omitempty"`
}

func formatNotificationJSON(n *metric.Notification) (string, error) {
	bs, err := json.Marshal(jsonNotification{
		Time:           n.Time.Seconds(),
		Severity:       strings.ToLower(n.Severity.String()),
		Message:        n.Message,
		Host:           n.Host,
		Plugin:         n.Plugin,
		PluginInstance: n.PluginInstance,
		Type:           n.Type,
		TypeInstance:   n.TypeInstance,
	})
	return string(bs), err
}
