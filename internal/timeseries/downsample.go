// Copyright (c) 2023 The Grafana Zabbix Datasource Authors.
// SPDX-License-Identifier: Apache-2.0

package timeseries

// Downsample reduces a series to at most maxPoints points by grouping
// them into fixed-width time buckets and replacing each bucket with
// its arithmetic mean at the bucket start. Series at or under the
// threshold pass through unchanged. This runs after the function
// pipeline so user transforms see full-resolution data.
func Downsample(s Series, maxPoints int, intervalMillis int64) Series {
	if maxPoints <= 0 || len(s.Points) <= maxPoints {
		return s
	}

	width := intervalMillis
	if width <= 0 {
		span := s.Points[len(s.Points)-1].Timestamp - s.Points[0].Timestamp
		width = span/int64(maxPoints) + 1
	}

	out := Series{Name: s.Name}
	bucketStart := s.Points[0].Timestamp / width * width
	var sum float64
	var count int
	flush := func() {
		if count > 0 {
			out.Points = append(out.Points, Point{Value: sum / float64(count), Timestamp: bucketStart})
		}
		sum, count = 0, 0
	}

	for _, p := range s.Points {
		start := p.Timestamp / width * width
		if start != bucketStart {
			flush()
			bucketStart = start
		}
		sum += p.Value
		count++
	}
	flush()
	return out
}
