// Copyright 2026 The Docforge Authors
// SPDX-License-Identifier: Apache-2.0

// Package httpapi is the service's intake surface: it accepts
// generation requests over HTTP, validates the format before the
// pipeline ever sees the request, and maps every terminal pipeline
// status to a stable HTTP status code.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/docforge-foundation/docforge/lib/pipeline"
	"github.com/docforge-foundation/docforge/lib/schema"
)

// maxRequestBytes bounds the request body. Intent text is prose, not
// payload; a megabyte is already generous.
const maxRequestBytes = 1 << 20

// Generator runs one request to its terminal result. Satisfied by
// *pipeline.Pipeline.
type Generator interface {
	Generate(ctx context.Context, format schema.Format, intent string) (*schema.Result, error)
}

// ServerConfig configures a Server.
type ServerConfig struct {
	// Addr is the listen address (":8000").
	Addr string

	// Pipeline executes admitted requests. Required.
	Pipeline Generator

	// Logger for request events. Defaults to slog.Default().
	Logger *slog.Logger
}

// Server is the intake HTTP server.
type Server struct {
	pipeline Generator
	logger   *slog.Logger
	httpSrv  *http.Server
}

// NewServer builds the server and its routes.
func NewServer(config ServerConfig) (*Server, error) {
	if config.Pipeline == nil {
		return nil, fmt.Errorf("pipeline is required")
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	server := &Server{pipeline: config.Pipeline, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/generate", server.handleGenerate)
	mux.HandleFunc("GET /healthz", server.handleHealth)

	server.httpSrv = &http.Server{
		Addr:              config.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return server, nil
}

// Handler exposes the route table for tests.
func (s *Server) Handler() http.Handler { return s.httpSrv.Handler }

// ListenAndServe blocks until Shutdown or a listener error.
func (s *Server) ListenAndServe() error {
	listener, err := net.Listen("tcp", s.httpSrv.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.httpSrv.Addr, err)
	}
	s.logger.Info("intake listening", "addr", listener.Addr().String())
	if err := s.httpSrv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests. Requests already executing run
// to their terminal state within the context's deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

// generateRequest is the intake body shape.
type generateRequest struct {
	Format string `json:"format"`
	Intent string `json:"intent"`
}

// errorResponse is the failure body shape.
type errorResponse struct {
	ErrorKind   string `json:"error_kind"`
	ErrorDetail string `json:"error_detail"`
	RequestID   string `json:"request_id,omitempty"`
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, errorResponse{ErrorKind: "bad_request", ErrorDetail: "reading request body"})
		return
	}

	var request generateRequest
	if err := json.Unmarshal(body, &request); err != nil {
		writeError(w, http.StatusBadRequest, errorResponse{ErrorKind: "bad_request", ErrorDetail: "request body is not valid JSON"})
		return
	}
	if strings.TrimSpace(request.Intent) == "" {
		writeError(w, http.StatusBadRequest, errorResponse{ErrorKind: "bad_request", ErrorDetail: "intent is required"})
		return
	}
	format, err := schema.ParseFormat(request.Format)
	if err != nil {
		writeError(w, http.StatusBadRequest, errorResponse{ErrorKind: "unknown_format", ErrorDetail: err.Error()})
		return
	}

	result, err := s.pipeline.Generate(r.Context(), format, request.Intent)
	if err != nil {
		if errors.Is(err, pipeline.ErrCapacity) {
			writeError(w, http.StatusTooManyRequests, errorResponse{ErrorKind: "capacity", ErrorDetail: err.Error()})
			return
		}
		if errors.Is(err, context.Canceled) {
			// The client went away while queued; there is no one left
			// to answer.
			s.logger.Debug("request cancelled before admission")
			return
		}
		s.logger.Error("pipeline error", "error", err)
		writeError(w, http.StatusInternalServerError, errorResponse{ErrorKind: "internal", ErrorDetail: "internal error"})
		return
	}

	writeJSON(w, statusCode(result.Status), result)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// statusCode maps terminal pipeline statuses to HTTP codes. Capability
// denial is a policy refusal, execution and verification failures are
// template defects, upload failure is an upstream fault.
func statusCode(status schema.Status) int {
	switch status {
	case schema.StatusOK:
		return http.StatusOK
	case schema.StatusCapabilityDenied:
		return http.StatusForbidden
	case schema.StatusExecutionFailed, schema.StatusTimeout, schema.StatusVerificationFailed:
		return http.StatusUnprocessableEntity
	case schema.StatusUploadFailed:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, code int, response errorResponse) {
	writeJSON(w, code, response)
}
