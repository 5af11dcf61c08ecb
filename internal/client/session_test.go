// Copyright (c) 2023 The Grafana Zabbix Datasource Authors.
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// mockAPI is a scripted Zabbix endpoint that counts login calls and
// records the auth token attached to every other call.
type mockAPI struct {
	logins     atomic.Int64
	lastAuth   string
	mu         sync.Mutex
	rejectNext atomic.Int64
}

func (m *mockAPI) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req apiRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if req.Method == "user.login" {
			m.logins.Add(1)
			w.Write([]byte(`{"result": "a0b1c2"}`))
			return
		}
		m.mu.Lock()
		m.lastAuth = req.Auth
		m.mu.Unlock()
		if m.rejectNext.Load() > 0 {
			m.rejectNext.Add(-1)
			w.Write([]byte(`{"error": {"code": -32602, "message": "Not authorised."}}`))
			return
		}
		w.Write([]byte(`{"result": []}`))
	}
}

func newTestSession(t *testing.T, api *mockAPI) *Session {
	server := httptest.NewServer(api.handler())
	t.Cleanup(server.Close)
	transport := &Transport{
		Client:   server.Client(),
		Endpoint: server.URL,
	}
	return NewSession(transport, "zabbix", "zabbix", zap.NewNop())
}

func TestSessionLoginOnFirstCall(t *testing.T) {
	api := &mockAPI{}
	session := newTestSession(t, api)

	_, err := session.Call(context.Background(), "host.get", nil)
	require.NoError(t, err)
	assert.EqualValues(t, 1, api.logins.Load())
	assert.Equal(t, "a0b1c2", api.lastAuth)

	// token is reused on the next call
	_, err = session.Call(context.Background(), "host.get", nil)
	require.NoError(t, err)
	assert.EqualValues(t, 1, api.logins.Load())
}

func TestSessionReloginOnExpiredToken(t *testing.T) {
	api := &mockAPI{}
	session := newTestSession(t, api)

	_, err := session.Call(context.Background(), "host.get", nil)
	require.NoError(t, err)

	// next call is rejected once, exactly one re-login must happen
	api.rejectNext.Store(1)
	_, err = session.Call(context.Background(), "host.get", nil)
	require.NoError(t, err)
	assert.EqualValues(t, 2, api.logins.Load())
}

func TestSessionReloginBounded(t *testing.T) {
	api := &mockAPI{}
	api.rejectNext.Store(100)
	session := newTestSession(t, api)

	_, err := session.Call(context.Background(), "host.get", nil)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "Not authorised.", apiErr.Message)
	assert.EqualValues(t, maxAuthAttempts, api.logins.Load())
}

func TestSessionOtherErrorsNotRetried(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req apiRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if req.Method == "user.login" {
			w.Write([]byte(`{"result": "tok"}`))
			return
		}
		calls.Add(1)
		w.Write([]byte(`{"error": {"code": -32602, "message": "Invalid params."}}`))
	}))
	t.Cleanup(server.Close)

	session := NewSession(&Transport{Client: server.Client(), Endpoint: server.URL}, "u", "p", zap.NewNop())
	_, err := session.Call(context.Background(), "item.get", nil)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.EqualValues(t, 1, calls.Load())
}

func TestSessionConcurrentLoginCollapses(t *testing.T) {
	api := &mockAPI{}
	session := newTestSession(t, api)

	const workers = 16
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := session.Call(context.Background(), "host.get", nil)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, api.logins.Load())
}

func TestSessionVersion(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req apiRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "apiinfo.version", req.Method)
		assert.Empty(t, req.Auth)
		w.Write([]byte(`{"result": "6.0.4"}`))
	}))
	t.Cleanup(server.Close)

	session := NewSession(&Transport{Client: server.Client(), Endpoint: server.URL}, "u", "p", zap.NewNop())
	version, err := session.Version(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "6.0.4", version)
}
