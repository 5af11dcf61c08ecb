// Copyright (c) 2023 The Grafana Zabbix Datasource Authors.
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"encoding/json"
	"errors"
	"fmt"
)

// apiRequest is the JSON-RPC 2.0 envelope the Zabbix API expects.
type apiRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
	ID      int64  `json:"id"`
	Auth    string `json:"auth,omitempty"`
}

type apiResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *APIError       `json:"error"`
}

// APIError is a well-formed JSON-RPC error returned by the Zabbix API.
// It takes precedence over a successful HTTP status.
type APIError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    string `json:"data"`
}

func (e *APIError) Error() string {
	if e.Data == "" {
		return e.Message
	}
	return fmt.Sprintf("%s %s", e.Message, e.Data)
}

// NetworkError covers an unreachable endpoint, a timeout, or a non-2xx
// HTTP status. It is never retried automatically.
type NetworkError struct {
	Err        error
	StatusCode int
	Body       []byte
}

func (e *NetworkError) Error() string {
	return e.Err.Error()
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

const codeMethodNotFound = -32601

// IsMethodNotFound reports whether err is the API complaining about an
// unsupported method, e.g. application.get on Zabbix 5.4 and higher.
func IsMethodNotFound(err error, api string) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	if apiErr.Code == codeMethodNotFound {
		return true
	}
	return apiErr.Message == fmt.Sprintf("Method not found. Incorrect API %q.", api)
}

func isNotAuthorized(message string) bool {
	return message == "Session terminated, re-login, please." ||
		message == "Not authorised." ||
		message == "Not authorized."
}
