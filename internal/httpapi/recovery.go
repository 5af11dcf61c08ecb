// Copyright (c) 2023 The Grafana Zabbix Datasource Authors.
// SPDX-License-Identifier: Apache-2.0

package httpapi

import (
	"fmt"
	"net/http"

	"github.com/gorilla/handlers"
	"go.uber.org/zap"
)

// zapRecoveryWrapper adapts a zap logger to the gorilla RecoveryLogger
// interface.
type zapRecoveryWrapper struct {
	logger *zap.Logger
}

func (z zapRecoveryWrapper) Println(fields ...any) {
	z.logger.Error(fmt.Sprintln(fields...))
}

// NewRecoveryHandler returns middleware that turns handler panics into
// 500 responses instead of dropped connections.
func NewRecoveryHandler(logger *zap.Logger, printStack bool) func(h http.Handler) http.Handler {
	wrapper := zapRecoveryWrapper{logger}
	return handlers.RecoveryHandler(handlers.RecoveryLogger(wrapper), handlers.PrintRecoveryStack(printStack))
}
