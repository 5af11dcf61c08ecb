// Copyright (c) 2023 The Grafana Zabbix Datasource Authors.
// SPDX-License-Identifier: Apache-2.0

package timeseries

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDownsamplePassThrough(t *testing.T) {
	s := Series{Name: "s", Points: []Point{
		{Value: 1, Timestamp: 1000},
		{Value: 2, Timestamp: 2000},
	}}
	out := Downsample(s, 10, 1000)
	assert.Equal(t, s, out)
}

func TestDownsampleBucketMean(t *testing.T) {
	s := Series{Name: "s"}
	// 6 points, 2 per second
	for i := 0; i < 6; i++ {
		s.Points = append(s.Points, Point{Value: float64(i), Timestamp: int64(i) * 500})
	}

	out := Downsample(s, 3, 1000)
	require.Len(t, out.Points, 3)
	assert.Equal(t, Point{Value: 0.5, Timestamp: 0}, out.Points[0])
	assert.Equal(t, Point{Value: 2.5, Timestamp: 1000}, out.Points[1])
	assert.Equal(t, Point{Value: 4.5, Timestamp: 2000}, out.Points[2])
	assert.Equal(t, "s", out.Name)
}

func TestDownsampleWithoutIntervalHint(t *testing.T) {
	s := Series{Name: "s"}
	for i := 0; i < 100; i++ {
		s.Points = append(s.Points, Point{Value: 1, Timestamp: int64(i) * 1000})
	}

	out := Downsample(s, 10, 0)
	assert.LessOrEqual(t, len(out.Points), 11)
	for _, p := range out.Points {
		assert.Equal(t, 1.0, p.Value)
	}
}

func TestDownsampleMeanEqualsSourceBucketMean(t *testing.T) {
	s := Series{Name: "s", Points: []Point{
		{Value: 10, Timestamp: 0},
		{Value: 20, Timestamp: 100},
		{Value: 60, Timestamp: 900},
		{Value: 5, Timestamp: 1000},
	}}

	out := Downsample(s, 2, 1000)
	require.Len(t, out.Points, 2)
	assert.Equal(t, 30.0, out.Points[0].Value)
	assert.Equal(t, 5.0, out.Points[1].Value)
}
