// Copyright (c) 2023 The Grafana Zabbix Datasource Authors.
// SPDX-License-Identifier: Apache-2.0

package functions

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/alexanderzobnin/grafana-zabbix/internal/timeseries"
)

type pointsFunc func(points []timeseries.Point, params []string) ([]timeseries.Point, error)

// eachSeries lifts a pure point-array map into a whole-collection
// function.
func eachSeries(f pointsFunc) applyFunc {
	return func(in []timeseries.Series, params []string) ([]timeseries.Series, error) {
		out := make([]timeseries.Series, len(in))
		for i, s := range in {
			points, err := f(s.Points, params)
			if err != nil {
				return nil, err
			}
			out[i] = timeseries.Series{Name: s.Name, Points: points}
		}
		return out, nil
	}
}

func paramFloat(params []string, index int, fallback float64) (float64, error) {
	if index >= len(params) || params[index] == "" {
		return fallback, nil
	}
	v, err := strconv.ParseFloat(params[index], 64)
	if err != nil {
		return 0, fmt.Errorf("invalid numeric parameter %q: %w", params[index], err)
	}
	return v, nil
}

func applyScale(points []timeseries.Point, params []string) ([]timeseries.Point, error) {
	factor, err := paramFloat(params, 0, 1)
	if err != nil {
		return nil, err
	}
	out := make([]timeseries.Point, len(points))
	for i, p := range points {
		out[i] = timeseries.Point{Value: p.Value * factor, Timestamp: p.Timestamp}
	}
	return out, nil
}

func applyOffset(points []timeseries.Point, params []string) ([]timeseries.Point, error) {
	delta, err := paramFloat(params, 0, 0)
	if err != nil {
		return nil, err
	}
	out := make([]timeseries.Point, len(points))
	for i, p := range points {
		out[i] = timeseries.Point{Value: p.Value + delta, Timestamp: p.Timestamp}
	}
	return out, nil
}

func applyDelta(points []timeseries.Point, _ []string) ([]timeseries.Point, error) {
	var out []timeseries.Point
	for i := 1; i < len(points); i++ {
		out = append(out, timeseries.Point{
			Value:     points[i].Value - points[i-1].Value,
			Timestamp: points[i].Timestamp,
		})
	}
	return out, nil
}

// applyRate is a per-second derivative that ignores counter resets.
func applyRate(points []timeseries.Point, _ []string) ([]timeseries.Point, error) {
	var out []timeseries.Point
	for i := 1; i < len(points); i++ {
		seconds := float64(points[i].Timestamp-points[i-1].Timestamp) / 1000
		if seconds <= 0 {
			continue
		}
		delta := points[i].Value - points[i-1].Value
		if delta < 0 {
			continue
		}
		out = append(out, timeseries.Point{Value: delta / seconds, Timestamp: points[i].Timestamp})
	}
	return out, nil
}

func applyMovingAverage(points []timeseries.Point, params []string) ([]timeseries.Point, error) {
	window, err := paramFloat(params, 0, 1)
	if err != nil {
		return nil, err
	}
	n := int(window)
	if n < 1 {
		n = 1
	}
	out := make([]timeseries.Point, len(points))
	var sum float64
	for i, p := range points {
		sum += p.Value
		if i >= n {
			sum -= points[i-n].Value
		}
		count := i + 1
		if count > n {
			count = n
		}
		out[i] = timeseries.Point{Value: sum / float64(count), Timestamp: p.Timestamp}
	}
	return out, nil
}

func seriesMean(s timeseries.Series) float64 {
	if len(s.Points) == 0 {
		return math.NaN()
	}
	var sum float64
	for _, p := range s.Points {
		sum += p.Value
	}
	return sum / float64(len(s.Points))
}

func rankSeries(in []timeseries.Series, params []string, top bool) ([]timeseries.Series, error) {
	n, err := paramFloat(params, 0, 1)
	if err != nil {
		return nil, err
	}
	limit := int(n)
	if limit >= len(in) {
		return in, nil
	}

	ranked := make([]timeseries.Series, len(in))
	copy(ranked, in)
	sort.SliceStable(ranked, func(i, j int) bool {
		if top {
			return seriesMean(ranked[i]) > seriesMean(ranked[j])
		}
		return seriesMean(ranked[i]) < seriesMean(ranked[j])
	})
	return ranked[:limit], nil
}

func applyTop(in []timeseries.Series, params []string) ([]timeseries.Series, error) {
	return rankSeries(in, params, true)
}

func applyBottom(in []timeseries.Series, params []string) ([]timeseries.Series, error) {
	return rankSeries(in, params, false)
}

// applyExclude drops series whose label matches the given pattern.
func applyExclude(in []timeseries.Series, params []string) ([]timeseries.Series, error) {
	if len(params) < 1 {
		return in, nil
	}
	re, err := regexp.Compile(params[0])
	if err != nil {
		return nil, fmt.Errorf("invalid exclude pattern %q: %w", params[0], err)
	}
	var out []timeseries.Series
	for _, s := range in {
		if !re.MatchString(s.Name) {
			out = append(out, s)
		}
	}
	return out, nil
}

type reduceFunc func(values []float64) float64

func aggAvg(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func aggSum(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum
}

func aggMin(values []float64) float64 {
	min := values[0]
	for _, v := range values[1:] {
		if v < min {
			min = v
		}
	}
	return min
}

func aggMax(values []float64) float64 {
	max := values[0]
	for _, v := range values[1:] {
		if v > max {
			max = v
		}
	}
	return max
}

// aggregator collapses all series into a single one, reducing the
// values present at each timestamp. The engine labels the result.
func aggregator(reduce reduceFunc) applyFunc {
	return func(in []timeseries.Series, _ []string) ([]timeseries.Series, error) {
		if len(in) == 0 {
			return in, nil
		}
		byTimestamp := map[int64][]float64{}
		for _, s := range in {
			for _, p := range s.Points {
				byTimestamp[p.Timestamp] = append(byTimestamp[p.Timestamp], p.Value)
			}
		}
		out := timeseries.Series{}
		for ts, values := range byTimestamp {
			out.Points = append(out.Points, timeseries.Point{Value: reduce(values), Timestamp: ts})
		}
		out.Sort()
		return []timeseries.Series{out}, nil
	}
}

func applyAlias(in []timeseries.Series, params []string) ([]timeseries.Series, error) {
	if len(params) < 1 {
		return in, nil
	}
	// labels are not load-bearing data, mutating in place is fine
	for i := range in {
		in[i].Name = params[0]
	}
	return in, nil
}

// applyAliasByRegex replaces each label with the part matched by the
// pattern, preferring the first capture group when one is present.
func applyAliasByRegex(in []timeseries.Series, params []string) ([]timeseries.Series, error) {
	if len(params) < 1 {
		return in, nil
	}
	re, err := regexp.Compile(params[0])
	if err != nil {
		return nil, fmt.Errorf("invalid alias pattern %q: %w", params[0], err)
	}
	for i := range in {
		m := re.FindStringSubmatch(in[i].Name)
		switch {
		case len(m) > 1:
			in[i].Name = strings.Join(m[1:], " ")
		case len(m) == 1:
			in[i].Name = m[0]
		}
	}
	return in, nil
}
