// Copyright (c) 2023 The Grafana Zabbix Datasource Authors.
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Transport performs a single JSON-RPC call against the Zabbix API
// endpoint. It holds no session state.
type Transport struct {
	// Client is the underlying HTTP client. Required.
	Client *http.Client
	// Endpoint is the full URL of api_jsonrpc.php.
	Endpoint string
	// BasicAuth, when non-empty, is the base64 user:password pair sent
	// as a proxy-level Authorization header in front of the API's own
	// token auth.
	BasicAuth string
	// Logger defaults to a no-op logger.
	Logger *zap.Logger

	requestID atomic.Int64
}

// NewHTTPClient builds an HTTP client with the timeouts used for all
// API calls. Timeouts surface as NetworkError, there is no separate
// cancellation path.
func NewHTTPClient(timeout time.Duration, tlsSkipVerify bool) *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				Renegotiation:      tls.RenegotiateFreelyAsClient,
				InsecureSkipVerify: tlsSkipVerify,
			},
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   30 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
			MaxIdleConns:          100,
			IdleConnTimeout:       90 * time.Second,
		},
		Timeout: timeout,
	}
}

// Send issues one JSON-RPC request. The auth token is omitted from the
// body when empty, as required for user.login and apiinfo.version.
// A response carrying an error object is returned as *APIError even on
// HTTP 200; any HTTP-level failure is returned as *NetworkError.
func (t *Transport) Send(ctx context.Context, method string, params any, auth string) (json.RawMessage, error) {
	if params == nil {
		params = map[string]any{}
	}
	body, err := json.Marshal(apiRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      t.requestID.Add(1),
		Auth:    auth,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if t.BasicAuth != "" {
		req.Header.Set("Authorization", "Basic "+t.BasicAuth)
	}

	res, err := t.Client.Do(req)
	if err != nil {
		return nil, &NetworkError{Err: fmt.Errorf("request to %s failed: %w", t.Endpoint, err)}
	}
	defer res.Body.Close()

	resBody, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, &NetworkError{Err: fmt.Errorf("reading response body: %w", err), StatusCode: res.StatusCode}
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return nil, &NetworkError{
			Err:        fmt.Errorf("request failed, status: %s", res.Status),
			StatusCode: res.StatusCode,
			Body:       resBody,
		}
	}

	var resp apiResponse
	if err := json.Unmarshal(resBody, &resp); err != nil {
		return nil, &NetworkError{Err: fmt.Errorf("malformed API response: %w", err), StatusCode: res.StatusCode, Body: resBody}
	}
	if resp.Error != nil {
		return nil, resp.Error
	}

	t.logger().Debug("API request", zap.String("method", method), zap.Int("status", res.StatusCode))
	return resp.Result, nil
}

func (t *Transport) logger() *zap.Logger {
	if t.Logger == nil {
		return zap.NewNop()
	}
	return t.Logger
}
