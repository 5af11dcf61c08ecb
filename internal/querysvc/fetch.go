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

// fetchHistory retrieves raw history for the given items. Zabbix
// requires one history.get per value type, so items are grouped by
// type first.
func (s *QueryService) fetchHistory(ctx context.Context, items []metadata.Item, from, to time.Time) ([]timeseries.HistoryPoint, error) {
	byType := map[int][]string{}
	for _, item := range items {
		byType[item.ValueType] = append(byType[item.ValueType], item.ID)
	}

	var points []timeseries.HistoryPoint
	for valueType, itemIDs := range byType {
		params := map[string]any{
			"output":    "extend",
			"history":   valueType,
			"itemids":   itemIDs,
			"sortfield": "clock",
			"sortorder": "ASC",
			"time_from": from.Unix(),
			"time_till": to.Unix(),
		}
		result, err := s.session.Call(ctx, "history.get", params)
		if err != nil {
			return nil, err
		}
		var batch []timeseries.HistoryPoint
		if err := json.Unmarshal(result, &batch); err != nil {
			return nil, err
		}
		points = append(points, batch...)
	}
	return points, nil
}

// fetchTrends retrieves the precomputed per-interval aggregates kept
// beyond the history retention window.
func (s *QueryService) fetchTrends(ctx context.Context, items []metadata.Item, from, to time.Time) ([]timeseries.TrendPoint, error) {
	itemIDs := make([]string, 0, len(items))
	for _, item := range items {
		itemIDs = append(itemIDs, item.ID)
	}
	params := map[string]any{
		"output":    []string{"itemid", "clock", "num", "value_avg", "value_min", "value_max"},
		"itemids":   itemIDs,
		"time_from": from.Unix(),
		"time_till": to.Unix(),
	}
	result, err := s.session.Call(ctx, "trend.get", params)
	if err != nil {
		return nil, err
	}
	var points []timeseries.TrendPoint
	err = json.Unmarshal(result, &points)
	return points, err
}
