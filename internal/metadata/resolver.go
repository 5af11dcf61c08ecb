// Copyright (c) 2023 The Grafana Zabbix Datasource Authors.
// SPDX-License-Identifier: Apache-2.0

package metadata

import (
	"context"

	"go.uber.org/zap"

	"github.com/alexanderzobnin/grafana-zabbix/internal/client"
)

// Query addresses items through the four-level hierarchy. Each filter
// is classified once, independent of level.
type Query struct {
	Group Filter
	Host  Filter
	App   Filter
	Item  Filter
	Kind  ValueKind
}

// ParseQuery classifies the four filter strings of a target.
func ParseQuery(group, host, app, item string, kind ValueKind) (Query, error) {
	var q Query
	var err error
	if q.Group, err = ParseFilter(group); err != nil {
		return Query{}, err
	}
	if q.Host, err = ParseFilter(host); err != nil {
		return Query{}, err
	}
	if q.App, err = ParseFilter(app); err != nil {
		return Query{}, err
	}
	if q.Item, err = ParseFilter(item); err != nil {
		return Query{}, err
	}
	q.Kind = kind
	return q, nil
}

// Resolver walks the group → host → application → item hierarchy
// top-down, using the metadata cache as its data source.
type Resolver struct {
	cache  *Cache
	logger *zap.Logger
}

// NewResolver returns a resolver reading through the given cache.
func NewResolver(cache *Cache, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{cache: cache, logger: logger}
}

// Groups returns the groups matching the filter.
func (r *Resolver) Groups(ctx context.Context, group Filter) ([]Group, error) {
	all, err := r.cache.AllGroups(ctx)
	if err != nil {
		return nil, err
	}
	var matched []Group
	for _, g := range all {
		if group.Match(g.Name) {
			matched = append(matched, g)
		}
	}
	return matched, nil
}

// Hosts returns the hosts matching the host filter, fetched scoped to
// the groups matching the group filter.
func (r *Resolver) Hosts(ctx context.Context, group, host Filter) ([]Host, error) {
	groups, err := r.Groups(ctx, group)
	if err != nil {
		return nil, err
	}
	groupIDs := make([]string, 0, len(groups))
	for _, g := range groups {
		groupIDs = append(groupIDs, g.ID)
	}
	all, err := r.cache.AllHosts(ctx, groupIDs)
	if err != nil {
		return nil, err
	}
	var matched []Host
	for _, h := range all {
		if host.Match(h.Name) {
			matched = append(matched, h)
		}
	}
	return matched, nil
}

// Apps returns the applications matching the app filter on the
// resolved hosts.
func (r *Resolver) Apps(ctx context.Context, group, host, app Filter) ([]Application, error) {
	hosts, err := r.Hosts(ctx, group, host)
	if err != nil {
		return nil, err
	}
	hostIDs := make([]string, 0, len(hosts))
	for _, h := range hosts {
		hostIDs = append(hostIDs, h.ID)
	}
	all, err := r.cache.AllApps(ctx, hostIDs)
	if err != nil {
		return nil, err
	}
	var matched []Application
	for _, a := range all {
		if app.Match(a.Name) {
			matched = append(matched, a)
		}
	}
	return matched, nil
}

// Items resolves a full query to its matching items. The application
// level degrades to an empty set when the API no longer supports the
// application concept (Zabbix 5.4 and higher).
func (r *Resolver) Items(ctx context.Context, q Query) ([]Item, error) {
	hosts, err := r.Hosts(ctx, q.Group, q.Host)
	if err != nil {
		return nil, err
	}
	hostIDs := make([]string, 0, len(hosts))
	for _, h := range hosts {
		hostIDs = append(hostIDs, h.ID)
	}

	var appIDs []string
	if !q.App.Empty() {
		apps, err := r.Apps(ctx, q.Group, q.Host, q.App)
		if client.IsMethodNotFound(err, "application") {
			r.logger.Debug("application API not supported, skipping application filter")
			apps = nil
		} else if err != nil {
			return nil, err
		}
		for _, a := range apps {
			appIDs = append(appIDs, a.ID)
		}
	}

	var all []Item
	switch {
	case len(hostIDs) > 0:
		all, err = r.cache.AllItems(ctx, hostIDs, nil, q.Kind)
	case len(appIDs) > 0:
		all, err = r.cache.AllItems(ctx, nil, appIDs, q.Kind)
	}
	if err != nil {
		return nil, err
	}

	var matched []Item
	for _, i := range all {
		if q.Item.Match(i.Name) {
			matched = append(matched, i)
		}
	}
	return matched, nil
}
