// Copyright (c) 2023 The Grafana Zabbix Datasource Authors.
// SPDX-License-Identifier: Apache-2.0

// Package timeseries holds the canonical panel-ready representation of
// metric data and the conversions from raw Zabbix payloads into it.
package timeseries

import (
	"encoding/json"
	"sort"
)

// Point is one sample: a value at a millisecond epoch timestamp.
type Point struct {
	Value     float64
	Timestamp int64
}

// MarshalJSON renders the point as the [value, timestampMillis] pair
// consumed by panels.
func (p Point) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]float64{p.Value, float64(p.Timestamp)})
}

// UnmarshalJSON accepts the [value, timestampMillis] pair form.
func (p *Point) UnmarshalJSON(data []byte) error {
	var pair [2]float64
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	p.Value = pair[0]
	p.Timestamp = int64(pair[1])
	return nil
}

// Series is a labeled, time-ascending sequence of points. Duplicate
// timestamps are preserved as-is.
type Series struct {
	Name   string  `json:"target"`
	Points []Point `json:"datapoints"`
}

// Sort orders the points ascending by timestamp, keeping the relative
// order of duplicates.
func (s *Series) Sort() {
	sort.SliceStable(s.Points, func(i, j int) bool {
		return s.Points[i].Timestamp < s.Points[j].Timestamp
	})
}

// Shift moves every timestamp by delta milliseconds.
func (s *Series) Shift(deltaMillis int64) {
	for i := range s.Points {
		s.Points[i].Timestamp += deltaMillis
	}
}

// TextValue is one sample of a text-valued item.
type TextValue struct {
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
}

// TextSeries is the text counterpart of Series.
type TextSeries struct {
	Name   string      `json:"target"`
	Values []TextValue `json:"values"`
}
