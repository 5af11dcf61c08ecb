// Copyright (c) 2023 The Grafana Zabbix Datasource Authors.
// SPDX-License-Identifier: Apache-2.0

// Package healthcheck tracks whether the service is ready to serve and
// exposes the state over HTTP.
package healthcheck

import (
	"encoding/json"
	"net/http"
	"sync/atomic"

	"go.uber.org/zap"
)

// Status is the service readiness state.
type Status int32

const (
	// Unavailable means the service cannot serve queries yet or anymore.
	Unavailable Status = iota
	// Ready means the service is accepting queries.
	Ready
)

func (s Status) String() string {
	switch s {
	case Ready:
		return "ready"
	default:
		return "unavailable"
	}
}

// HealthCheck holds the readiness state. Set and Get are safe for
// concurrent use.
type HealthCheck struct {
	state  atomic.Int32
	logger *zap.Logger
}

// New returns a HealthCheck in the Unavailable state.
func New(logger *zap.Logger) *HealthCheck {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HealthCheck{logger: logger}
}

// Set transitions the state, logging the change.
func (hc *HealthCheck) Set(status Status) {
	hc.state.Store(int32(status))
	hc.logger.Info("health check state change", zap.Stringer("status", status))
}

// Ready marks the service as ready to serve.
func (hc *HealthCheck) Ready() {
	hc.Set(Ready)
}

// Get returns the current state.
func (hc *HealthCheck) Get() Status {
	return Status(hc.state.Load())
}

// Handler serves the state as JSON: 200 when ready, 503 otherwise.
func (hc *HealthCheck) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		status := hc.Get()
		code := http.StatusServiceUnavailable
		if status == Ready {
			code = http.StatusOK
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		json.NewEncoder(w).Encode(map[string]string{"status": status.String()})
	})
}
