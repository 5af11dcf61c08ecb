// Copyright (c) 2023 The Grafana Zabbix Datasource Authors.
// SPDX-License-Identifier: Apache-2.0

package querysvc

import (
	"context"
	"errors"
	"fmt"

	"github.com/alexanderzobnin/grafana-zabbix/internal/client"
)

// ConnectionState classifies a connection test outcome.
type ConnectionState string

const (
	ConnectionOK          ConnectionState = "ok"
	ConnectionAuthFailed  ConnectionState = "auth_failed"
	ConnectionUnreachable ConnectionState = "unreachable"
)

// ConnectionStatus is the reportable result of a connection test.
type ConnectionStatus struct {
	State   ConnectionState `json:"state"`
	Version string          `json:"version,omitempty"`
	Message string          `json:"message"`
}

// TestConnection checks reachability and credentials in one pass:
// apiinfo.version distinguishes an unreachable endpoint, then
// user.login distinguishes bad credentials.
func (s *QueryService) TestConnection(ctx context.Context) ConnectionStatus {
	version, err := s.session.Version(ctx)
	if err != nil {
		var netErr *client.NetworkError
		if errors.As(err, &netErr) {
			return ConnectionStatus{
				State:   ConnectionUnreachable,
				Message: fmt.Sprintf("could not reach Zabbix API: %v", err),
			}
		}
		return ConnectionStatus{
			State:   ConnectionUnreachable,
			Message: fmt.Sprintf("version check failed: %v", err),
		}
	}

	if err := s.session.Login(ctx); err != nil {
		return ConnectionStatus{
			State:   ConnectionAuthFailed,
			Version: version,
			Message: fmt.Sprintf("authentication failed: %v", err),
		}
	}

	return ConnectionStatus{
		State:   ConnectionOK,
		Version: version,
		Message: fmt.Sprintf("connected to Zabbix API version %s", version),
	}
}
