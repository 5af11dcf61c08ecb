// Copyright (c) 2023 The Grafana Zabbix Datasource Authors.
// SPDX-License-Identifier: Apache-2.0

package querysvc

import (
	"context"
	"encoding/json"
	"time"

	"github.com/alexanderzobnin/grafana-zabbix/internal/metadata"
	"github.com/alexanderzobnin/grafana-zabbix/internal/timeseries"
)

type itService struct {
	ID   string `json:"serviceid"`
	Name string `json:"name"`
}

type slaInterval struct {
	From         int64   `json:"from"`
	To           int64   `json:"to"`
	SLA          float64 `json:"sla"`
	OKTime       float64 `json:"okTime"`
	ProblemTime  float64 `json:"problemTime"`
	DowntimeTime float64 `json:"downtimeTime"`
}

type slaReply struct {
	SLA []slaInterval `json:"sla"`
}

func (i slaInterval) value(property string) float64 {
	switch property {
	case "okTime":
		return i.OKTime
	case "problemTime":
		return i.ProblemTime
	case "downtimeTime":
		return i.DowntimeTime
	default:
		return i.SLA
	}
}

// querySLA serves service-mode targets: the item filter selects IT
// services by name and the SLA property picks the reported figure.
func (s *QueryService) querySLA(ctx context.Context, target Target, from, to time.Time) ([]timeseries.Series, error) {
	nameFilter, err := metadata.ParseFilter(target.Item)
	if err != nil {
		return nil, err
	}

	result, err := s.session.Call(ctx, "service.get", map[string]any{"output": "extend"})
	if err != nil {
		return nil, err
	}
	var services []itService
	if err := json.Unmarshal(result, &services); err != nil {
		return nil, err
	}

	var matched []itService
	for _, svc := range services {
		if nameFilter.Match(svc.Name) {
			matched = append(matched, svc)
		}
	}
	if len(matched) == 0 {
		return nil, nil
	}

	serviceIDs := make([]string, len(matched))
	for i, svc := range matched {
		serviceIDs[i] = svc.ID
	}
	result, err = s.session.Call(ctx, "service.getsla", map[string]any{
		"serviceids": serviceIDs,
		"intervals":  []map[string]int64{{"from": from.Unix(), "to": to.Unix()}},
	})
	if err != nil {
		return nil, err
	}
	var replies map[string]slaReply
	if err := json.Unmarshal(result, &replies); err != nil {
		return nil, err
	}

	property := target.SLAProperty
	if property == "" {
		property = "sla"
	}
	var out []timeseries.Series
	for _, svc := range matched {
		reply, ok := replies[svc.ID]
		if !ok {
			continue
		}
		series := timeseries.Series{Name: svc.Name + " " + property}
		for _, interval := range reply.SLA {
			series.Points = append(series.Points, timeseries.Point{
				Value:     interval.value(property),
				Timestamp: interval.To * 1000,
			})
		}
		series.Sort()
		out = append(out, series)
	}
	return out, nil
}
