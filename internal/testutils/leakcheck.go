// Copyright (c) 2023 The Grafana Zabbix Datasource Authors.
// SPDX-License-Identifier: Apache-2.0

// Package testutils holds shared test helpers.
package testutils

import (
	"testing"

	"go.uber.org/goleak"
)

// VerifyGoLeaks fails the test binary if goroutines are still running
// when it finishes. Keep-alive connection goroutines are ignored
// because httptest servers share transport idle connections across
// tests.
func VerifyGoLeaks(m *testing.M) {
	goleak.VerifyTestMain(m, IgnoreHTTPKeepAliveLeaks()...)
}

// IgnoreHTTPKeepAliveLeaks ignores the net/http idle-connection
// goroutines.
func IgnoreHTTPKeepAliveLeaks() []goleak.Option {
	return []goleak.Option{
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
	}
}
