// Copyright (c) 2023 The Grafana Zabbix Datasource Authors.
// SPDX-License-Identifier: Apache-2.0

// Package querysvc orchestrates panel queries end to end: filter
// resolution, history/trend retrieval, normalization, the function
// pipeline, and downsampling.
package querysvc

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/alexanderzobnin/grafana-zabbix/internal/client"
	"github.com/alexanderzobnin/grafana-zabbix/internal/functions"
	"github.com/alexanderzobnin/grafana-zabbix/internal/metadata"
	"github.com/alexanderzobnin/grafana-zabbix/internal/timeseries"
)

// QueryService ties one datasource instance together. The session and
// metadata cache are explicit dependencies scoped to one endpoint,
// never ambient state.
type QueryService struct {
	session  *client.Session
	resolver *metadata.Resolver
	cfg      client.Configuration
	logger   *zap.Logger
	timeNow  func() time.Time
}

// NewQueryService wires a query service from its collaborators.
func NewQueryService(session *client.Session, resolver *metadata.Resolver, cfg client.Configuration, logger *zap.Logger) *QueryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QueryService{
		session:  session,
		resolver: resolver,
		cfg:      cfg,
		logger:   logger,
		timeNow:  time.Now,
	}
}

// Query runs every target's pipeline concurrently and joins the
// results. A failing target surfaces its error in its own slot only.
func (s *QueryService) Query(ctx context.Context, req Request) Response {
	results := make([]TargetResult, len(req.Targets))

	g, ctx := errgroup.WithContext(ctx)
	for i, target := range req.Targets {
		i, target := i, target
		g.Go(func() error {
			results[i] = s.queryTarget(ctx, target, req)
			if results[i].Err != nil {
				s.logger.Warn("target query failed",
					zap.String("item", target.Item), zap.Error(results[i].Err))
			}
			return nil
		})
	}
	// closures never return an error, Wait is a pure join
	_ = g.Wait()

	return Response{Results: results}
}

func (s *QueryService) queryTarget(ctx context.Context, target Target, req Request) TargetResult {
	if err := functions.Validate(target.Functions); err != nil {
		return TargetResult{Err: err}
	}

	switch target.Mode {
	case ModeService:
		series, err := s.querySLA(ctx, target, req.From, req.To)
		return TargetResult{Series: series, Err: err}
	case ModeText:
		text, err := s.queryText(ctx, target, req.From, req.To)
		return TargetResult{Text: text, Err: err}
	default:
		series, err := s.queryNumeric(ctx, target, req)
		return TargetResult{Series: series, Err: err}
	}
}

func (s *QueryService) queryNumeric(ctx context.Context, target Target, req Request) ([]timeseries.Series, error) {
	query, err := metadata.ParseQuery(target.Group, target.Host, target.Application, target.Item, metadata.KindNumeric)
	if err != nil {
		return nil, err
	}
	items, err := s.resolver.Items(ctx, query)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}

	// a timeShift function moves the fetched window into the past and
	// is undone on the resulting timestamps
	shift, err := functions.TimeShift(target.Functions)
	if err != nil {
		return nil, err
	}
	from, to := req.From.Add(-shift), req.To.Add(-shift)

	var series []timeseries.Series
	labels := timeseries.LabelOptions{HostPrefix: s.disambiguateHosts(query.Host, items)}
	if s.useTrends(from) {
		points, err := s.fetchTrends(ctx, items, from, to)
		if err != nil {
			return nil, err
		}
		series = timeseries.NormalizeTrends(points, items, target.AggregateField, labels)
	} else {
		points, err := s.fetchHistory(ctx, items, from, to)
		if err != nil {
			return nil, err
		}
		series = timeseries.NormalizeHistory(points, items, labels)
	}

	if shift != 0 {
		for i := range series {
			series[i].Shift(shift.Milliseconds())
		}
	}

	series, err = functions.Apply(series, target.Functions)
	if err != nil {
		return nil, err
	}

	// downsampling runs last so user transforms see full resolution
	for i := range series {
		series[i] = timeseries.Downsample(series[i], req.MaxPoints, req.IntervalMillis)
	}
	return series, nil
}

func (s *QueryService) queryText(ctx context.Context, target Target, from, to time.Time) ([]timeseries.TextSeries, error) {
	query, err := metadata.ParseQuery(target.Group, target.Host, target.Application, target.Item, metadata.KindText)
	if err != nil {
		return nil, err
	}
	items, err := s.resolver.Items(ctx, query)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	points, err := s.fetchHistory(ctx, items, from, to)
	if err != nil {
		return nil, err
	}
	labels := timeseries.LabelOptions{HostPrefix: s.disambiguateHosts(query.Host, items)}
	return timeseries.NormalizeTextHistory(points, items, labels), nil
}

// disambiguateHosts enables the host-name label prefix when the host
// filter was a pattern matching more than one host.
func (*QueryService) disambiguateHosts(host metadata.Filter, items []metadata.Item) bool {
	if !host.IsPattern() {
		return false
	}
	hosts := map[string]struct{}{}
	for _, item := range items {
		for _, h := range item.Hosts {
			hosts[h.ID] = struct{}{}
		}
	}
	return len(hosts) > 1
}

// useTrends reports whether the range start falls outside the history
// retention window and should be served from trends.
func (s *QueryService) useTrends(from time.Time) bool {
	if !s.cfg.Trends {
		return false
	}
	lookback := s.cfg.TrendLookback
	if lookback <= 0 {
		lookback = 7 * 24 * time.Hour
	}
	return from.Before(s.timeNow().Add(-lookback))
}
