// Copyright (c) 2023 The Grafana Zabbix Datasource Authors.
// SPDX-License-Identifier: Apache-2.0

package timeseries

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/alexanderzobnin/grafana-zabbix/internal/metadata"
)

// HistoryPoint is one raw history.get sample.
type HistoryPoint struct {
	ItemID string `json:"itemid"`
	Clock  int64  `json:"clock,string"`
	Value  string `json:"value"`
}

// TrendPoint is one raw trend.get row carrying the precomputed
// per-interval aggregates.
type TrendPoint struct {
	ItemID   string `json:"itemid"`
	Clock    int64  `json:"clock,string"`
	Num      string `json:"num"`
	ValueAvg string `json:"value_avg"`
	ValueMin string `json:"value_min"`
	ValueMax string `json:"value_max"`
}

// AggregateField selects which trend column becomes the series value.
type AggregateField string

const (
	AggAvg   AggregateField = "avg"
	AggMin   AggregateField = "min"
	AggMax   AggregateField = "max"
	AggCount AggregateField = "count"
)

func (t TrendPoint) value(field AggregateField) string {
	switch field {
	case AggMin:
		return t.ValueMin
	case AggMax:
		return t.ValueMax
	case AggCount:
		return t.Num
	default:
		return t.ValueAvg
	}
}

// LabelOptions control how series labels are built.
type LabelOptions struct {
	// HostPrefix prepends the host name to the item name, used when
	// the host filter was a pattern matching more than one host.
	HostPrefix bool
}

// NormalizeHistory converts raw history points into one numeric series
// per item, sorted ascending with clocks converted to millisecond
// epoch. Points for unknown items are dropped.
func NormalizeHistory(points []HistoryPoint, items []metadata.Item, opts LabelOptions) []Series {
	byItem := make(map[string][]Point, len(items))
	for _, p := range points {
		value, err := strconv.ParseFloat(p.Value, 64)
		if err != nil {
			continue
		}
		byItem[p.ItemID] = append(byItem[p.ItemID], Point{Value: value, Timestamp: p.Clock * 1000})
	}
	return assemble(byItem, items, opts)
}

// NormalizeTextHistory converts raw history points of text items,
// leaving values as text.
func NormalizeTextHistory(points []HistoryPoint, items []metadata.Item, opts LabelOptions) []TextSeries {
	byItem := make(map[string][]TextValue, len(items))
	for _, p := range points {
		byItem[p.ItemID] = append(byItem[p.ItemID], TextValue{Text: p.Value, Timestamp: p.Clock * 1000})
	}

	var out []TextSeries
	for _, item := range items {
		values, ok := byItem[item.ID]
		if !ok {
			continue
		}
		out = append(out, TextSeries{Name: seriesName(item, opts), Values: values})
	}
	return out
}

// NormalizeTrends converts raw trend rows into one series per item,
// selecting the aggregate column named by field (default avg).
func NormalizeTrends(points []TrendPoint, items []metadata.Item, field AggregateField, opts LabelOptions) []Series {
	byItem := make(map[string][]Point, len(items))
	for _, p := range points {
		value, err := strconv.ParseFloat(p.value(field), 64)
		if err != nil {
			continue
		}
		byItem[p.ItemID] = append(byItem[p.ItemID], Point{Value: value, Timestamp: p.Clock * 1000})
	}
	return assemble(byItem, items, opts)
}

func assemble(byItem map[string][]Point, items []metadata.Item, opts LabelOptions) []Series {
	var out []Series
	for _, item := range items {
		points, ok := byItem[item.ID]
		if !ok {
			continue
		}
		s := Series{Name: seriesName(item, opts), Points: points}
		s.Sort()
		out = append(out, s)
	}
	return out
}

func seriesName(item metadata.Item, opts LabelOptions) string {
	name := ExpandItemName(item.Name, item.Key)
	if opts.HostPrefix && len(item.Hosts) > 0 {
		name = item.Hosts[0].Name + ": " + name
	}
	return name
}

var itemNameParam = regexp.MustCompile(`\$[1-9]`)

// ExpandItemName interpolates the $1..$9 placeholders in an item name
// with the corresponding parameters of its key.
func ExpandItemName(name, key string) string {
	if !strings.Contains(name, "$") {
		return name
	}
	params := parseItemKeyParams(key)
	return itemNameParam.ReplaceAllStringFunc(name, func(m string) string {
		index := int(m[1] - '1')
		if index >= len(params) {
			return m
		}
		return params[index]
	})
}

// parseItemKeyParams extracts the parameter list of an item key such
// as system.cpu.util[,user,avg1]. Quoted parameters and nested
// brackets are honored.
func parseItemKeyParams(key string) []string {
	open := strings.Index(key, "[")
	if open < 0 || !strings.HasSuffix(key, "]") {
		return nil
	}
	inner := key[open+1 : len(key)-1]

	var params []string
	var current strings.Builder
	depth := 0
	quoted := false
	for i := 0; i < len(inner); i++ {
		ch := inner[i]
		switch {
		case ch == '"' && depth == 0:
			quoted = !quoted
		case ch == '[' && !quoted:
			depth++
			current.WriteByte(ch)
		case ch == ']' && !quoted:
			depth--
			current.WriteByte(ch)
		case ch == ',' && depth == 0 && !quoted:
			params = append(params, current.String())
			current.Reset()
		default:
			current.WriteByte(ch)
		}
	}
	params = append(params, current.String())
	return params
}
