// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package server exposes the HTTP API: job submission and status, the
// backend callback endpoint, poll triggers, workflow runs, health and
// metrics.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kadirpekel/mediaforge/pkg/backend"
	"github.com/kadirpekel/mediaforge/pkg/config"
	"github.com/kadirpekel/mediaforge/pkg/job"
	"github.com/kadirpekel/mediaforge/pkg/logger"
	"github.com/kadirpekel/mediaforge/pkg/observability"
	"github.com/kadirpekel/mediaforge/pkg/workflow"
)

// Server is the HTTP front of a mediaforge instance.
type Server struct {
	cfg           config.ServerConfig
	reconciler    *job.Reconciler
	orchestrators map[string]*workflow.Orchestrator
	metrics       observability.Recorder
	logger        *slog.Logger
	httpServer    *http.Server
}

// New creates a server. orchestrators maps workflow names to runners.
func New(cfg config.ServerConfig, reconciler *job.Reconciler, orchestrators map[string]*workflow.Orchestrator, metrics observability.Recorder) *Server {
	if metrics == nil {
		metrics = observability.NoopMetrics{}
	}
	if orchestrators == nil {
		orchestrators = make(map[string]*workflow.Orchestrator)
	}

	return &Server{
		cfg:           cfg,
		reconciler:    reconciler,
		orchestrators: orchestrators,
		metrics:       metrics,
		logger:        logger.GetLogger(),
	}
}

// Router builds the chi router with all routes and middleware.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(s.loggingMiddleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/metrics", s.metrics.Handler().ServeHTTP)

	r.Route("/v1/jobs", func(r chi.Router) {
		r.Post("/", s.handleSubmit)
		r.Route("/{job}", func(r chi.Router) {
			r.Get("/", s.handleGet)
			r.Post("/callback", s.handleCallback)
			r.Post("/poll", s.handlePoll)
			r.Post("/cancel", s.handleCancel)
		})
	})

	r.Post("/v1/workflows/{workflow}/run", s.handleRunWorkflow)

	return r
}

// Start serves until the context is cancelled, then drains.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req job.SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	j, err := s.reconciler.Submit(r.Context(), &req)
	if err != nil {
		if errors.Is(err, job.ErrAlreadyExists) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, j)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	j, err := s.reconciler.Get(r.Context(), chi.URLParam(r, "job"))
	if err != nil {
		writeJobError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, j)
}

// handleCallback receives backend push notifications. Events against an
// already-terminal record answer 202: the backend did its part, the
// record simply had nothing to learn.
func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	var payload backend.CallbackPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid callback body")
		return
	}

	event, err := payload.ToStatusEvent()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	j, outcome, err := s.reconciler.ReconcileEvent(r.Context(), chi.URLParam(r, "job"), event)
	if err != nil {
		writeJobError(w, err)
		return
	}

	status := http.StatusOK
	if outcome == job.OutcomeIdempotent || outcome == job.OutcomeDiscarded {
		status = http.StatusAccepted
	}
	writeJSON(w, status, j)
}

func (s *Server) handlePoll(w http.ResponseWriter, r *http.Request) {
	j, err := s.reconciler.Poll(r.Context(), chi.URLParam(r, "job"))
	if err != nil {
		writeJobError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, j)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	j, err := s.reconciler.Cancel(r.Context(), chi.URLParam(r, "job"))
	if err != nil {
		writeJobError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, j)
}

type runWorkflowRequest struct {
	Topic string `json:"topic"`
}

func (s *Server) handleRunWorkflow(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "workflow")
	orchestrator, ok := s.orchestrators[name]
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("workflow %q not found", name))
		return
	}

	var req runWorkflowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Topic == "" {
		writeError(w, http.StatusBadRequest, "topic is required")
		return
	}

	result, err := orchestrator.Execute(r.Context(), req.Topic)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJobError(w http.ResponseWriter, err error) {
	if errors.Is(err, job.ErrNotFound) {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}
