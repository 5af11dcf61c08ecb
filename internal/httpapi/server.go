// Copyright (c) 2023 The Grafana Zabbix Datasource Authors.
// SPDX-License-Identifier: Apache-2.0

package httpapi

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapio"

	"github.com/alexanderzobnin/grafana-zabbix/internal/healthcheck"
)

// Server runs the HTTP API: the JSON query endpoints, the health check
// and Prometheus metrics, behind recovery and compression middleware.
type Server struct {
	logger      *zap.Logger
	healthCheck *healthcheck.HealthCheck
	httpServer  *http.Server
	conn        net.Listener
}

// NewServer assembles the router and middleware around the query
// service.
func NewServer(hostPort string, queryService QueryService, hc *healthcheck.HealthCheck, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	router := mux.NewRouter()
	NewAPIHandler(queryService, logger).RegisterRoutes(router)
	router.Handle(apiPrefix+"/health", hc.Handler()).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	recovery := NewRecoveryHandler(logger, true)
	accessLog := &zapio.Writer{Log: logger, Level: zap.DebugLevel}
	handler := recovery(handlers.CombinedLoggingHandler(accessLog, handlers.CompressHandler(router)))

	return &Server{
		logger:      logger,
		healthCheck: hc,
		httpServer:  &http.Server{Addr: hostPort, Handler: handler},
	}
}

// Start listens and serves in the background, marking the health check
// ready once the listener is bound.
func (s *Server) Start() error {
	conn, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	s.conn = conn
	s.healthCheck.Ready()
	s.logger.Info("starting HTTP server", zap.String("addr", conn.Addr().String()))

	go func() {
		if err := s.httpServer.Serve(conn); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server stopped", zap.Error(err))
		}
	}()
	return nil
}

// Addr returns the bound listener address, valid after Start.
func (s *Server) Addr() string {
	if s.conn == nil {
		return s.httpServer.Addr
	}
	return s.conn.Addr().String()
}

// Close drains in-flight requests and shuts the server down.
func (s *Server) Close() error {
	s.healthCheck.Set(healthcheck.Unavailable)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}
