// Copyright (c) 2023 The Grafana Zabbix Datasource Authors.
// SPDX-License-Identifier: Apache-2.0

package timeseries

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexanderzobnin/grafana-zabbix/internal/metadata"
)

var testItems = []metadata.Item{
	{ID: "1000", Name: "CPU load", Key: "system.cpu.load", Hosts: []metadata.ItemHost{{ID: "10", Name: "web-01"}}},
	{ID: "1001", Name: "CPU load", Key: "system.cpu.load", Hosts: []metadata.ItemHost{{ID: "11", Name: "web-02"}}},
}

func TestNormalizeHistory(t *testing.T) {
	points := []HistoryPoint{
		{ItemID: "1000", Clock: 20, Value: "2.5"},
		{ItemID: "1000", Clock: 10, Value: "1.5"},
		{ItemID: "1001", Clock: 10, Value: "4"},
	}

	series := NormalizeHistory(points, testItems, LabelOptions{})
	require.Len(t, series, 2)

	assert.Equal(t, "CPU load", series[0].Name)
	require.Len(t, series[0].Points, 2)
	// sorted ascending, clock converted to millisecond epoch
	assert.Equal(t, Point{Value: 1.5, Timestamp: 10000}, series[0].Points[0])
	assert.Equal(t, Point{Value: 2.5, Timestamp: 20000}, series[0].Points[1])
}

func TestNormalizeHistoryHostPrefix(t *testing.T) {
	points := []HistoryPoint{
		{ItemID: "1000", Clock: 10, Value: "1"},
		{ItemID: "1001", Clock: 10, Value: "2"},
	}

	series := NormalizeHistory(points, testItems, LabelOptions{HostPrefix: true})
	require.Len(t, series, 2)
	assert.Equal(t, "web-01: CPU load", series[0].Name)
	assert.Equal(t, "web-02: CPU load", series[1].Name)
}

func TestNormalizeHistorySkipsNonNumeric(t *testing.T) {
	points := []HistoryPoint{
		{ItemID: "1000", Clock: 10, Value: "up"},
		{ItemID: "1000", Clock: 20, Value: "3"},
	}

	series := NormalizeHistory(points, testItems, LabelOptions{})
	require.Len(t, series, 1)
	require.Len(t, series[0].Points, 1)
	assert.Equal(t, 3.0, series[0].Points[0].Value)
}

func TestNormalizeTextHistory(t *testing.T) {
	points := []HistoryPoint{
		{ItemID: "1000", Clock: 10, Value: "OK"},
	}

	series := NormalizeTextHistory(points, testItems, LabelOptions{})
	require.Len(t, series, 1)
	assert.Equal(t, TextValue{Text: "OK", Timestamp: 10000}, series[0].Values[0])
}

func TestNormalizeTrends(t *testing.T) {
	points := []TrendPoint{
		{ItemID: "1000", Clock: 3600, Num: "60", ValueAvg: "2.0", ValueMin: "1.0", ValueMax: "5.0"},
	}

	for _, tc := range []struct {
		field AggregateField
		want  float64
	}{
		{AggAvg, 2.0},
		{AggMin, 1.0},
		{AggMax, 5.0},
		{AggCount, 60},
		{"", 2.0}, // default is avg
	} {
		series := NormalizeTrends(points, testItems, tc.field, LabelOptions{})
		require.Len(t, series, 1, "field %q", tc.field)
		assert.Equal(t, tc.want, series[0].Points[0].Value, "field %q", tc.field)
		assert.EqualValues(t, 3600000, series[0].Points[0].Timestamp)
	}
}

func TestExpandItemName(t *testing.T) {
	assert.Equal(t, "CPU user time", ExpandItemName("CPU user time", "system.cpu.util[,user]"))
	assert.Equal(t, "CPU user time (avg1)",
		ExpandItemName("CPU $2 time ($3)", "system.cpu.util[,user,avg1]"))
	assert.Equal(t, "Free disk space on /var/log",
		ExpandItemName("Free disk space on $1", `vfs.fs.size[/var/log,free]`))
	// quoted parameter with comma
	assert.Equal(t, "Value of a,b",
		ExpandItemName("Value of $1", `key["a,b",second]`))
	// missing parameter is left as-is
	assert.Equal(t, "Value $3", ExpandItemName("Value $3", "key[one]"))
}

func TestPointJSONRoundTrip(t *testing.T) {
	p := Point{Value: 1.5, Timestamp: 1500000000000}
	data, err := p.MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `[1.5, 1500000000000]`, string(data))

	var back Point
	require.NoError(t, back.UnmarshalJSON(data))
	assert.Equal(t, p, back)
}
