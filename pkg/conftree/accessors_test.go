// SPDX-License-Identifier: GPL-3.0-or-later

package conftree

import (
	"testing"
	"time"

	"github.com/collectd/collectd-sub006/pkg/cdtime"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetString(t *testing.T) {
	s, err := GetString(New("Host", StringValue("localhost")))
	require.NoError(t, err)
	assert.Equal(t, "localhost", s)

	_, err = GetString(New("Host", NumberValue(1)))
	assert.ErrorIs(t, err, ErrConfig)
	assert.Contains(t, err.Error(), `"Host"`)

	_, err = GetString(New("Host", StringValue("a"), StringValue("b")))
	assert.Error(t, err)

	_, err = GetStringBuffer(New("Host", StringValue("abcdef")), 3)
	assert.Error(t, err)
}

func TestGetInt(t *testing.T) {
	tests := map[string]struct {
		item    *Item
		want    int
		wantErr bool
	}{
		"integer":  {item: New("N", NumberValue(5)), want: 5},
		"negative": {item: New("N", NumberValue(-5)), want: -5},
		"fraction": {item: New("N", NumberValue(1.5)), wantErr: true},
		"string":   {item: New("N", StringValue("5")), wantErr: true},
		"none":     {item: New("N"), wantErr: true},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			v, err := GetInt(test.item)
			if test.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, test.want, v)
		})
	}
}

func TestGetBoolean(t *testing.T) {
	tests := map[string]struct {
		item    *Item
		want    bool
		wantErr bool
	}{
		"boolean":      {item: New("B", BooleanValue(true)), want: true},
		"string true":  {item: New("B", StringValue("True")), want: true},
		"string false": {item: New("B", StringValue("false"))},
		"string junk":  {item: New("B", StringValue("maybe")), wantErr: true},
		"number":       {item: New("B", NumberValue(1)), wantErr: true},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			v, err := GetBoolean(test.item)
			if test.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, test.want, v)
		})
	}
}

func TestGetPort(t *testing.T) {
	tests := map[string]struct {
		item    *Item
		want    int
		wantErr bool
	}{
		"number":       {item: New("Port", NumberValue(11211)), want: 11211},
		"zero":         {item: New("Port", NumberValue(0)), wantErr: true},
		"too big":      {item: New("Port", NumberValue(65536)), wantErr: true},
		"numeric text": {item: New("Port", StringValue("8080")), want: 8080},
		"boolean":      {item: New("Port", BooleanValue(true)), wantErr: true},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			v, err := GetPort(test.item)
			if test.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, test.want, v)
		})
	}
}

func TestGetService(t *testing.T) {
	s, err := GetService(New("Port", NumberValue(443)))
	require.NoError(t, err)
	assert.Equal(t, "443", s)

	s, err = GetService(New("Port", StringValue("https")))
	require.NoError(t, err)
	assert.Equal(t, "https", s)

	_, err = GetService(New("Port", NumberValue(70000)))
	assert.Error(t, err)
}

func TestGetCdtime(t *testing.T) {
	v, err := GetCdtime(New("Interval", NumberValue(1.5)))
	require.NoError(t, err)
	assert.Equal(t, cdtime.FromSeconds(1.5), v)

	d, err := GetDuration(New("Interval", NumberValue(10)))
	require.NoError(t, err)
	assert.Equal(t, 10*time.Second, d)

	_, err = GetCdtime(New("Interval", NumberValue(-1)))
	assert.Error(t, err)
}

func TestGetFlag(t *testing.T) {
	var mask uint = 0b100

	require.NoError(t, GetFlag(New("F", BooleanValue(true)), &mask, 0b001))
	assert.Equal(t, uint(0b101), mask)

	require.NoError(t, GetFlag(New("F", BooleanValue(false)), &mask, 0b100))
	assert.Equal(t, uint(0b001), mask)

	assert.Error(t, GetFlag(New("F", NumberValue(1)), &mask, 0b1))
}
