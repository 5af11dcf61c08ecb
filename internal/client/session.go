// Copyright (c) 2023 The Grafana Zabbix Datasource Authors.
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// maxAuthAttempts bounds the re-login loop so a permanently bad
// credential cannot spin forever.
const maxAuthAttempts = 3

// Session owns the API auth token. Every authenticated operation goes
// through Call, which logs in on demand and retries once the API
// reports the token as invalid. One Session per configured endpoint.
type Session struct {
	transport *Transport
	username  string
	password  string
	logger    *zap.Logger

	mu    sync.RWMutex
	token string
	// login collapses concurrent re-login attempts into a single
	// user.login call.
	login singleflight.Group
}

// NewSession returns a Session wrapping the given transport.
func NewSession(transport *Transport, username, password string, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{
		transport: transport,
		username:  username,
		password:  password,
		logger:    logger,
	}
}

// Call issues an authenticated API request, logging in first if no
// token is held. When the API answers with one of the fixed
// "not authorized" messages the token is discarded and the call is
// retried from login, at most maxAuthAttempts times. Any other error
// propagates immediately.
func (s *Session) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	var lastErr error
	for attempt := 0; attempt < maxAuthAttempts; attempt++ {
		token, err := s.activeToken(ctx)
		if err != nil {
			return nil, err
		}

		result, err := s.transport.Send(ctx, method, params, token)
		if err == nil {
			return result, nil
		}
		var apiErr *APIError
		if errors.As(err, &apiErr) && isNotAuthorized(apiErr.Message) {
			s.logger.Debug("auth token rejected, re-login",
				zap.String("method", method), zap.Int("attempt", attempt+1))
			s.invalidate(token)
			lastErr = err
			continue
		}
		return nil, err
	}
	return nil, lastErr
}

// activeToken returns the held token, performing user.login when none
// is held. Concurrent callers share a single login request.
func (s *Session) activeToken(ctx context.Context) (string, error) {
	s.mu.RLock()
	token := s.token
	s.mu.RUnlock()
	if token != "" {
		return token, nil
	}

	v, err, _ := s.login.Do("login", func() (any, error) {
		token, err := s.authenticate(ctx)
		if err != nil {
			return "", err
		}
		s.mu.Lock()
		s.token = token
		s.mu.Unlock()
		return token, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// authenticate performs user.login outside the retry wrapper: it is
// the recovery action, not a protected call.
func (s *Session) authenticate(ctx context.Context) (string, error) {
	params := map[string]any{
		"user":     s.username,
		"password": s.password,
	}
	result, err := s.transport.Send(ctx, "user.login", params, "")
	if err != nil {
		s.logger.Error("login failed", zap.Error(err))
		return "", err
	}
	var token string
	if err := json.Unmarshal(result, &token); err != nil {
		return "", err
	}
	s.logger.Debug("logged in to Zabbix API", zap.String("endpoint", s.transport.Endpoint))
	return token, nil
}

// invalidate discards the token only if it is still the one that
// failed, so a fresh token obtained by a concurrent caller survives.
func (s *Session) invalidate(failed string) {
	s.mu.Lock()
	if s.token == failed {
		s.token = ""
	}
	s.mu.Unlock()
}

// Login forces a fresh authentication, replacing any held token. Used
// by connection tests to verify credentials explicitly.
func (s *Session) Login(ctx context.Context) error {
	token, err := s.authenticate(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
	return nil
}

// Version performs the unauthenticated apiinfo.version call.
func (s *Session) Version(ctx context.Context) (string, error) {
	result, err := s.transport.Send(ctx, "apiinfo.version", map[string]any{}, "")
	if err != nil {
		return "", err
	}
	var version string
	if err := json.Unmarshal(result, &version); err != nil {
		return "", err
	}
	return version, nil
}
