// Copyright (c) 2023 The Grafana Zabbix Datasource Authors.
// SPDX-License-Identifier: Apache-2.0

package querysvc

import (
	"context"
	"fmt"
	"strings"

	"github.com/alexanderzobnin/grafana-zabbix/internal/client"
	"github.com/alexanderzobnin/grafana-zabbix/internal/metadata"
)

// Suggest resolves a dot-delimited metadata pattern
// "group.host.application.item" (1-4 segments) to matching entity
// names for autocompletion and templating. Each segment accepts the
// /regex/ form, "*" wildcards, and the legacy {a,b,c} literal sets.
// The number of supplied segments decides which entity level is
// returned.
func (s *QueryService) Suggest(ctx context.Context, pattern string) ([]string, error) {
	segments := strings.Split(pattern, ".")
	if len(segments) > 4 {
		return nil, fmt.Errorf("invalid metadata pattern %q: at most 4 segments", pattern)
	}

	filters := make([]metadata.Filter, len(segments))
	for i, segment := range segments {
		f, err := metadata.ParseLegacyFilter(segment)
		if err != nil {
			return nil, err
		}
		filters[i] = f
	}

	switch len(filters) {
	case 1:
		groups, err := s.resolver.Groups(ctx, filters[0])
		if err != nil {
			return nil, err
		}
		return names(len(groups), func(i int) string { return groups[i].Name }), nil
	case 2:
		hosts, err := s.resolver.Hosts(ctx, filters[0], filters[1])
		if err != nil {
			return nil, err
		}
		return names(len(hosts), func(i int) string { return hosts[i].Name }), nil
	case 3:
		apps, err := s.resolver.Apps(ctx, filters[0], filters[1], filters[2])
		if client.IsMethodNotFound(err, "application") {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		return names(len(apps), func(i int) string { return apps[i].Name }), nil
	default:
		q := metadata.Query{
			Group: filters[0], Host: filters[1], App: filters[2], Item: filters[3],
			Kind: metadata.KindNumeric,
		}
		items, err := s.resolver.Items(ctx, q)
		if err != nil {
			return nil, err
		}
		return names(len(items), func(i int) string { return items[i].Name }), nil
	}
}

func names(n int, name func(int) string) []string {
	seen := make(map[string]struct{}, n)
	var out []string
	for i := 0; i < n; i++ {
		v := name(i)
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
