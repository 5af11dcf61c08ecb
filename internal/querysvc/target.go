// Copyright (c) 2023 The Grafana Zabbix Datasource Authors.
// SPDX-License-Identifier: Apache-2.0

package querysvc

import (
	"time"

	"github.com/alexanderzobnin/grafana-zabbix/internal/functions"
	"github.com/alexanderzobnin/grafana-zabbix/internal/timeseries"
)

// QueryMode selects what kind of values a target retrieves.
type QueryMode string

const (
	ModeNumeric QueryMode = "numeric"
	ModeText    QueryMode = "text"
	ModeService QueryMode = "service"
)

// Target is one user-authored query within a panel: four hierarchy
// filters, a query mode, and an ordered function list.
type Target struct {
	Group       string           `json:"group"`
	Host        string           `json:"host"`
	Application string           `json:"application"`
	Item        string           `json:"item"`
	Mode        QueryMode        `json:"mode"`
	// SLAProperty selects the service.getsla column in service mode:
	// sla, okTime, problemTime or downtimeTime.
	SLAProperty string           `json:"slaProperty,omitempty"`
	// AggregateField selects the trend column when the range is served
	// from trends (default avg).
	AggregateField timeseries.AggregateField `json:"aggregateField,omitempty"`
	Functions      []functions.Call          `json:"functions"`
}

// Request is a panel query: targets plus a shared time range and a
// maximum-points hint.
type Request struct {
	Targets        []Target  `json:"targets"`
	From           time.Time `json:"from"`
	To             time.Time `json:"to"`
	MaxPoints      int       `json:"maxDataPoints"`
	IntervalMillis int64     `json:"intervalMs"`
}

// TargetResult carries the outcome of one target's pipeline. Failures
// are isolated per target: a failing target never corrupts or blocks
// its siblings.
type TargetResult struct {
	Series []timeseries.Series     `json:"series,omitempty"`
	Text   []timeseries.TextSeries `json:"text,omitempty"`
	Err    error                   `json:"-"`
}

// Response aggregates per-target results in target order.
type Response struct {
	Results []TargetResult
}

// Series flattens every successful target's series.
func (r Response) Series() []timeseries.Series {
	var out []timeseries.Series
	for _, result := range r.Results {
		out = append(out, result.Series...)
	}
	return out
}

// FirstError returns the first per-target error, if any. The caller
// decides whether one failing target fails the whole response.
func (r Response) FirstError() error {
	for _, result := range r.Results {
		if result.Err != nil {
			return result.Err
		}
	}
	return nil
}
