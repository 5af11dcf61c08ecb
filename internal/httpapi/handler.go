// Copyright (c) 2023 The Grafana Zabbix Datasource Authors.
// SPDX-License-Identifier: Apache-2.0

// Package httpapi exposes the query service over HTTP as a small JSON
// API consumed by panels.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/alexanderzobnin/grafana-zabbix/internal/querysvc"
)

const apiPrefix = "/api"

// QueryService is the surface of the query layer the HTTP handlers
// need, satisfied by *querysvc.QueryService.
type QueryService interface {
	Query(ctx context.Context, req querysvc.Request) querysvc.Response
	Annotations(ctx context.Context, req querysvc.AnnotationRequest) ([]querysvc.Annotation, error)
	Suggest(ctx context.Context, pattern string) ([]string, error)
	TestConnection(ctx context.Context) querysvc.ConnectionStatus
}

type structuredResponse struct {
	Data   any               `json:"data"`
	Errors []structuredError `json:"errors,omitempty"`
}

type structuredError struct {
	Code int    `json:"code,omitempty"`
	Msg  string `json:"msg"`
}

// APIHandler registers the public JSON API routes.
type APIHandler struct {
	queryService QueryService
	logger       *zap.Logger
}

// NewAPIHandler returns an APIHandler backed by the given service.
func NewAPIHandler(queryService QueryService, logger *zap.Logger) *APIHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &APIHandler{queryService: queryService, logger: logger}
}

// RegisterRoutes registers routes for this handler on the given router.
func (aH *APIHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc(apiPrefix+"/query", aH.query).Methods(http.MethodPost)
	router.HandleFunc(apiPrefix+"/annotations", aH.annotations).Methods(http.MethodPost)
	router.HandleFunc(apiPrefix+"/suggest", aH.suggest).Methods(http.MethodGet)
	router.HandleFunc(apiPrefix+"/test", aH.testConnection).Methods(http.MethodGet)
}

func (aH *APIHandler) query(w http.ResponseWriter, r *http.Request) {
	var req querysvc.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		aH.handleError(w, err, http.StatusBadRequest)
		return
	}

	resp := aH.queryService.Query(r.Context(), req)

	// failed targets surface as structured errors next to the data of
	// the targets that succeeded
	structuredResp := structuredResponse{Data: resp.Results}
	for _, result := range resp.Results {
		if result.Err != nil {
			structuredResp.Errors = append(structuredResp.Errors, structuredError{Msg: result.Err.Error()})
		}
	}
	aH.writeJSON(w, &structuredResp)
}

func (aH *APIHandler) annotations(w http.ResponseWriter, r *http.Request) {
	var req querysvc.AnnotationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		aH.handleError(w, err, http.StatusBadRequest)
		return
	}
	annotations, err := aH.queryService.Annotations(r.Context(), req)
	if err != nil {
		aH.handleError(w, err, http.StatusInternalServerError)
		return
	}
	aH.writeJSON(w, &structuredResponse{Data: annotations})
}

func (aH *APIHandler) suggest(w http.ResponseWriter, r *http.Request) {
	pattern := r.FormValue("query")
	names, err := aH.queryService.Suggest(r.Context(), pattern)
	if err != nil {
		aH.handleError(w, err, http.StatusBadRequest)
		return
	}
	aH.writeJSON(w, &structuredResponse{Data: names})
}

func (aH *APIHandler) testConnection(w http.ResponseWriter, r *http.Request) {
	status := aH.queryService.TestConnection(r.Context())
	aH.writeJSON(w, &structuredResponse{Data: status})
}

func (aH *APIHandler) handleError(w http.ResponseWriter, err error, statusCode int) {
	if statusCode == http.StatusInternalServerError {
		aH.logger.Error("HTTP handler, Internal Server Error", zap.Error(err))
	}
	structuredResp := structuredResponse{
		Errors: []structuredError{
			{
				Code: statusCode,
				Msg:  err.Error(),
			},
		},
	}
	resp, _ := json.Marshal(&structuredResp)
	http.Error(w, string(resp), statusCode)
}

func (aH *APIHandler) writeJSON(w http.ResponseWriter, response any) {
	resp, _ := json.Marshal(response)
	w.Header().Set("Content-Type", "application/json")
	w.Write(resp)
}
