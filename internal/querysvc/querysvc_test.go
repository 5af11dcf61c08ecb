// Copyright (c) 2023 The Grafana Zabbix Datasource Authors.
// SPDX-License-Identifier: Apache-2.0

package querysvc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/alexanderzobnin/grafana-zabbix/internal/client"
	"github.com/alexanderzobnin/grafana-zabbix/internal/functions"
	"github.com/alexanderzobnin/grafana-zabbix/internal/metadata"
	"github.com/alexanderzobnin/grafana-zabbix/internal/timeseries"
)

// mockZabbix is a scripted Zabbix API endpoint serving a fixed
// hierarchy:
//
//	Linux servers: web-01, web-02, db-01, all carrying "CPU load"
type mockZabbix struct {
	mu      sync.Mutex
	calls   map[string]int
	lastReq map[string]map[string]any
}

func newMockZabbix() *mockZabbix {
	return &mockZabbix{
		calls:   map[string]int{},
		lastReq: map[string]map[string]any{},
	}
}

func (m *mockZabbix) count(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[method]
}

func (m *mockZabbix) params(method string) map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastReq[method]
}

func (m *mockZabbix) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Method string         `json:"method"`
			Params map[string]any `json:"params"`
			Auth   string         `json:"auth"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		m.mu.Lock()
		m.calls[req.Method]++
		m.lastReq[req.Method] = req.Params
		m.mu.Unlock()

		if req.Method != "user.login" && req.Method != "apiinfo.version" {
			assert.Equal(t, "a0b1c2", req.Auth, "method %s must carry the auth token", req.Method)
		}
		w.Write([]byte(m.result(req.Method, req.Params)))
	}
}

func stringSlice(v any) []string {
	items, _ := v.([]any)
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func contains(values []string, v string) bool {
	for _, value := range values {
		if value == v {
			return true
		}
	}
	return false
}

func (m *mockZabbix) result(method string, params map[string]any) string {
	switch method {
	case "user.login":
		return `{"result": "a0b1c2"}`
	case "apiinfo.version":
		return `{"result": "5.0.1"}`
	case "hostgroup.get":
		return `{"result": [{"groupid": "1", "name": "Linux servers"}]}`
	case "host.get":
		return `{"result": [
			{"hostid": "10", "name": "web-01", "host": "web-01"},
			{"hostid": "11", "name": "web-02", "host": "web-02"},
			{"hostid": "12", "name": "db-01", "host": "db-01"}]}`
	case "application.get":
		return `{"result": []}`
	case "item.get":
		hostIDs := stringSlice(params["hostids"])
		valueTypes := map[string]bool{}
		if filter, ok := params["filter"].(map[string]any); ok {
			if types, ok := filter["value_type"].([]any); ok {
				for _, vt := range types {
					valueTypes[fmt.Sprintf("%v", vt)] = true
				}
			}
		}
		type itemRow struct {
			ItemID    string              `json:"itemid"`
			Name      string              `json:"name"`
			Key       string              `json:"key_"`
			ValueType string              `json:"value_type"`
			HostID    string              `json:"hostid"`
			Hosts     []map[string]string `json:"hosts"`
		}
		all := []itemRow{
			{"1000", "CPU load", "system.cpu.load", "0", "10", []map[string]string{{"hostid": "10", "name": "web-01"}}},
			{"1001", "CPU load", "system.cpu.load", "0", "11", []map[string]string{{"hostid": "11", "name": "web-02"}}},
			{"1002", "CPU load", "system.cpu.load", "0", "12", []map[string]string{{"hostid": "12", "name": "db-01"}}},
			{"1003", "Agent status", "agent.ping", "1", "10", []map[string]string{{"hostid": "10", "name": "web-01"}}},
		}
		var scoped []itemRow
		for _, item := range all {
			if !contains(hostIDs, item.HostID) {
				continue
			}
			if len(valueTypes) > 0 && !valueTypes[item.ValueType] {
				continue
			}
			scoped = append(scoped, item)
		}
		out, _ := json.Marshal(map[string]any{"result": scoped})
		return string(out)
	case "history.get":
		itemIDs := stringSlice(params["itemids"])
		type point struct {
			ItemID string `json:"itemid"`
			Clock  string `json:"clock"`
			Value  string `json:"value"`
		}
		all := []point{
			{"1000", "10", "1"},
			{"1000", "20", "3"},
			{"1001", "10", "3"},
			{"1001", "20", "5"},
			{"1002", "10", "100"},
			{"1003", "10", "up"},
		}
		var scoped []point
		for _, p := range all {
			if contains(itemIDs, p.ItemID) {
				scoped = append(scoped, p)
			}
		}
		out, _ := json.Marshal(map[string]any{"result": scoped})
		return string(out)
	case "trend.get":
		return `{"result": [
			{"itemid": "1000", "clock": "3600", "num": "60", "value_avg": "2", "value_min": "1", "value_max": "4"},
			{"itemid": "1001", "clock": "3600", "num": "60", "value_avg": "6", "value_min": "3", "value_max": "9"}]}`
	}
	return `{"result": []}`
}

func newTestService(t *testing.T, mock *mockZabbix, cfg client.Configuration) *QueryService {
	server := httptest.NewServer(mock.handler(t))
	t.Cleanup(server.Close)

	transport := &client.Transport{
		Client:   server.Client(),
		Endpoint: server.URL,
	}
	session := client.NewSession(transport, "zabbix", "zabbix", zap.NewNop())
	cache := metadata.NewCache(session, time.Hour, zap.NewNop(), nil)
	resolver := metadata.NewResolver(cache, zap.NewNop())
	return NewQueryService(session, resolver, cfg, zap.NewNop())
}

func numericTarget() Target {
	return Target{
		Group: "Linux servers",
		Host:  "/web-.*/",
		Item:  "CPU load",
		Mode:  ModeNumeric,
	}
}

func TestQueryResolvesPatternHosts(t *testing.T) {
	mock := newMockZabbix()
	svc := newTestService(t, mock, client.Configuration{})

	now := time.Unix(1000, 0)
	svc.timeNow = func() time.Time { return now }

	resp := svc.Query(context.Background(), Request{
		Targets: []Target{numericTarget()},
		From:    time.Unix(0, 0),
		To:      now,
	})
	require.Len(t, resp.Results, 1)
	require.NoError(t, resp.Results[0].Err)

	series := resp.Results[0].Series
	require.Len(t, series, 2)
	// host filter is a pattern matching web-01 and web-02, so labels
	// are disambiguated with the host name; db-01 is excluded
	assert.Equal(t, "web-01: CPU load", series[0].Name)
	assert.Equal(t, "web-02: CPU load", series[1].Name)
	require.Len(t, series[0].Points, 2)
	assert.EqualValues(t, 10000, series[0].Points[0].Timestamp)
}

func TestQueryAggregateAndAlias(t *testing.T) {
	mock := newMockZabbix()
	svc := newTestService(t, mock, client.Configuration{})
	now := time.Unix(1000, 0)
	svc.timeNow = func() time.Time { return now }

	target := numericTarget()
	target.Functions = []functions.Call{
		{Name: "avg"},
		{Name: "alias", Params: []string{"CPU avg"}},
	}

	resp := svc.Query(context.Background(), Request{
		Targets: []Target{target},
		From:    time.Unix(0, 0),
		To:      now,
	})
	require.NoError(t, resp.Results[0].Err)
	series := resp.Results[0].Series
	require.Len(t, series, 1)
	assert.Equal(t, "CPU avg", series[0].Name)
	// per-timestamp arithmetic mean of web-01 (1,3) and web-02 (3,5)
	require.Len(t, series[0].Points, 2)
	assert.Equal(t, 2.0, series[0].Points[0].Value)
	assert.Equal(t, 4.0, series[0].Points[1].Value)
}

func TestQueryTargetIsolation(t *testing.T) {
	mock := newMockZabbix()
	svc := newTestService(t, mock, client.Configuration{})
	now := time.Unix(1000, 0)
	svc.timeNow = func() time.Time { return now }

	bad := numericTarget()
	bad.Functions = []functions.Call{{Name: "frobnicate"}}

	resp := svc.Query(context.Background(), Request{
		Targets: []Target{bad, numericTarget()},
		From:    time.Unix(0, 0),
		To:      now,
	})
	require.Len(t, resp.Results, 2)
	require.Error(t, resp.Results[0].Err)
	require.NoError(t, resp.Results[1].Err)
	assert.Len(t, resp.Results[1].Series, 2)
	assert.Error(t, resp.FirstError())
}

func TestQueryMalformedFilterFailsTargetOnly(t *testing.T) {
	mock := newMockZabbix()
	svc := newTestService(t, mock, client.Configuration{})
	now := time.Unix(1000, 0)
	svc.timeNow = func() time.Time { return now }

	bad := numericTarget()
	bad.Host = "/[unclosed/"

	resp := svc.Query(context.Background(), Request{
		Targets: []Target{bad},
		From:    time.Unix(0, 0),
		To:      now,
	})
	require.Error(t, resp.Results[0].Err)
	assert.Zero(t, mock.count("history.get"))
}

func TestQueryUsesTrendsBeyondLookback(t *testing.T) {
	mock := newMockZabbix()
	svc := newTestService(t, mock, client.Configuration{
		Trends:        true,
		TrendLookback: 7 * 24 * time.Hour,
	})
	now := time.Unix(30*24*3600, 0)
	svc.timeNow = func() time.Time { return now }

	target := numericTarget()
	target.AggregateField = timeseries.AggMax

	resp := svc.Query(context.Background(), Request{
		Targets: []Target{target},
		From:    time.Unix(0, 0), // 30 days back, well past the window
		To:      now,
	})
	require.NoError(t, resp.Results[0].Err)
	assert.Equal(t, 1, mock.count("trend.get"))
	assert.Zero(t, mock.count("history.get"))

	series := resp.Results[0].Series
	require.Len(t, series, 2)
	assert.Equal(t, 4.0, series[0].Points[0].Value)
}

func TestQueryHistoryWithinLookback(t *testing.T) {
	mock := newMockZabbix()
	svc := newTestService(t, mock, client.Configuration{
		Trends:        true,
		TrendLookback: 7 * 24 * time.Hour,
	})
	now := time.Unix(30*24*3600, 0)
	svc.timeNow = func() time.Time { return now }

	resp := svc.Query(context.Background(), Request{
		Targets: []Target{numericTarget()},
		From:    now.Add(-time.Hour),
		To:      now,
	})
	require.NoError(t, resp.Results[0].Err)
	assert.Zero(t, mock.count("trend.get"))
	assert.Equal(t, 1, mock.count("history.get"))
}

func TestQueryTimeShift(t *testing.T) {
	mock := newMockZabbix()
	svc := newTestService(t, mock, client.Configuration{})
	now := time.Unix(100000, 0)
	svc.timeNow = func() time.Time { return now }

	target := numericTarget()
	target.Functions = []functions.Call{{Name: "timeShift", Params: []string{"1d"}}}

	from, to := time.Unix(90000, 0), now
	resp := svc.Query(context.Background(), Request{
		Targets: []Target{target},
		From:    from,
		To:      to,
	})
	require.NoError(t, resp.Results[0].Err)

	// the fetch window moved one day into the past
	params := mock.params("history.get")
	assert.EqualValues(t, from.Add(-24*time.Hour).Unix(), params["time_from"])
	assert.EqualValues(t, to.Add(-24*time.Hour).Unix(), params["time_till"])

	// the inverse shift lands points back in the original window
	series := resp.Results[0].Series
	require.NotEmpty(t, series)
	assert.EqualValues(t, 10000+24*3600*1000, series[0].Points[0].Timestamp)
}

func TestQueryTextMode(t *testing.T) {
	mock := newMockZabbix()
	svc := newTestService(t, mock, client.Configuration{})
	now := time.Unix(1000, 0)
	svc.timeNow = func() time.Time { return now }

	target := Target{
		Group: "Linux servers",
		Host:  "web-01",
		Item:  "Agent status",
		Mode:  ModeText,
	}
	resp := svc.Query(context.Background(), Request{
		Targets: []Target{target},
		From:    time.Unix(0, 0),
		To:      now,
	})
	require.NoError(t, resp.Results[0].Err)
	require.Len(t, resp.Results[0].Text, 1)
	assert.Equal(t, "up", resp.Results[0].Text[0].Values[0].Text)
}

func TestQueryDownsamples(t *testing.T) {
	mock := newMockZabbix()
	svc := newTestService(t, mock, client.Configuration{})
	now := time.Unix(1000, 0)
	svc.timeNow = func() time.Time { return now }

	resp := svc.Query(context.Background(), Request{
		Targets:        []Target{numericTarget()},
		From:           time.Unix(0, 0),
		To:             now,
		MaxPoints:      1,
		IntervalMillis: 60000,
	})
	require.NoError(t, resp.Results[0].Err)
	for _, s := range resp.Results[0].Series {
		assert.LessOrEqual(t, len(s.Points), 1)
	}
}
