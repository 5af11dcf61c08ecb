// Copyright (c) 2023 The Grafana Zabbix Datasource Authors.
// SPDX-License-Identifier: Apache-2.0

package functions

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/alexanderzobnin/grafana-zabbix/internal/timeseries"
)

// Apply runs the post-fetch pipeline over a series collection. The
// category order is fixed (Transform, Filter, Aggregate, Alias) and
// independent of the order functions appear on the target; within a
// category, calls chain left-to-right in declaration order. Time
// functions are handled around the fetch (see TimeShift) and skipped
// here. When aggregates are present, the single output series is
// labeled with the text of the last aggregate call in declaration
// order.
func Apply(in []timeseries.Series, calls []Call) ([]timeseries.Series, error) {
	if err := Validate(calls); err != nil {
		return nil, err
	}

	byCategory := map[Category][]Call{}
	for _, c := range calls {
		cat := registry[c.Name].category
		byCategory[cat] = append(byCategory[cat], c)
	}

	out := in
	var err error
	for _, cat := range []Category{CategoryTransform, CategoryFilter, CategoryAggregate} {
		for _, c := range byCategory[cat] {
			out, err = registry[c.Name].apply(out, c.Params)
			if err != nil {
				return nil, fmt.Errorf("applying %s: %w", c.Text(), err)
			}
		}
	}

	if aggregates := byCategory[CategoryAggregate]; len(aggregates) > 0 && len(out) == 1 {
		out[0].Name = aggregates[len(aggregates)-1].Text()
	}

	for _, c := range byCategory[CategoryAlias] {
		out, err = registry[c.Name].apply(out, c.Params)
		if err != nil {
			return nil, fmt.Errorf("applying %s: %w", c.Text(), err)
		}
	}
	return out, nil
}

// TimeShift returns the window shift requested by a timeShift call,
// or zero when none is present. The returned duration is how far the
// effective from/to move into the past before fetching; the inverse
// shift must be re-applied to resulting timestamps after fetch.
func TimeShift(calls []Call) (time.Duration, error) {
	var shift time.Duration
	for _, c := range calls {
		if c.Name != "timeShift" {
			continue
		}
		if len(c.Params) < 1 {
			return 0, fmt.Errorf("timeShift requires an interval parameter")
		}
		d, err := ParseInterval(c.Params[0])
		if err != nil {
			return 0, err
		}
		shift += d
	}
	return shift, nil
}

// ParseInterval parses interval strings like "30s", "10m", "24h",
// "7d", "2w". A leading "-" shifts forward instead of into the past.
func ParseInterval(text string) (time.Duration, error) {
	s := strings.TrimSpace(text)
	negative := false
	switch {
	case strings.HasPrefix(s, "-"):
		negative = true
		s = s[1:]
	case strings.HasPrefix(s, "+"):
		s = s[1:]
	}
	if len(s) < 2 {
		return 0, fmt.Errorf("invalid interval %q", text)
	}

	unit := s[len(s)-1]
	value, err := strconv.ParseFloat(s[:len(s)-1], 64)
	if err != nil {
		return 0, fmt.Errorf("invalid interval %q: %w", text, err)
	}

	var base time.Duration
	switch unit {
	case 's':
		base = time.Second
	case 'm':
		base = time.Minute
	case 'h':
		base = time.Hour
	case 'd':
		base = 24 * time.Hour
	case 'w':
		base = 7 * 24 * time.Hour
	default:
		return 0, fmt.Errorf("invalid interval unit in %q", text)
	}

	d := time.Duration(value * float64(base))
	if negative {
		d = -d
	}
	return d, nil
}
