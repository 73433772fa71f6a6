// Package server exposes stored assessments, tool runs and reports over a
// local JSON API, with run output streamed over WebSocket.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/jamesruggles/carbonara/internal/badge"
	"github.com/jamesruggles/carbonara/internal/config"
	"github.com/jamesruggles/carbonara/internal/database"
	"github.com/jamesruggles/carbonara/internal/display"
	"github.com/jamesruggles/carbonara/internal/registry"
	"github.com/jamesruggles/carbonara/internal/report"
	"github.com/jamesruggles/carbonara/internal/scanner"
)

const shutdownTimeout = 10 * time.Second

type Server struct {
	cfg       *config.Config
	db        *database.DB
	tools     *registry.Registry
	hub       *Hub
	executor  *scanner.Executor
	display   *display.Service
	reportGen *report.Generator
	log       *zap.Logger
	mux       *http.ServeMux
}

func New(cfg *config.Config, db *database.DB, reg *registry.Registry, log *zap.Logger) (*Server, error) {
	if log == nil {
		log = zap.NewNop()
	}
	builder, err := display.NewBuilder(reg, badge.NewService(nil), display.DefaultCacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating display builder: %w", err)
	}
	hub := NewHub(log.Named("ws"))

	s := &Server{
		cfg:       cfg,
		db:        db,
		tools:     reg,
		hub:       hub,
		executor:  scanner.NewExecutor(db, reg, hub, log.Named("runs"), scanner.Options{DefaultTimeout: cfg.Tools.Timeout}),
		display:   display.NewService(db, builder, log.Named("display")),
		reportGen: report.NewGenerator(db, builder, reg, cfg.Reports.Directory),
		log:       log,
		mux:       http.NewServeMux(),
	}

	s.registerRoutes()
	return s, nil
}

// Handler returns the API with middleware applied.
func (s *Server) Handler() http.Handler {
	return recoveryMiddleware(s.log, securityHeaders(loggingMiddleware(s.log, s.mux)))
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully
// and cancels in-flight runs.
func (s *Server) ListenAndServe(ctx context.Context) error {
	addr := s.cfg.Server.Addr()
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("starting server", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	s.executor.CancelAll()
	s.executor.Wait()
	return err
}

func (s *Server) registerRoutes() {
	// Projects
	s.mux.HandleFunc("/api/projects", s.handleAPIProjects)
	s.mux.HandleFunc("/api/projects/{id}", s.handleAPIProject)

	// Assessment data
	s.mux.HandleFunc("/api/assessments", s.handleAPIAssessments)
	s.mux.HandleFunc("/api/assessments/{id}", s.handleAPIAssessment)
	s.mux.HandleFunc("/api/assessments/{id}/details", s.handleAPIAssessmentDetails)
	s.mux.HandleFunc("/api/groups", s.handleAPIGroups)
	s.mux.HandleFunc("/api/stats", s.handleAPIStats)

	// Tools and runs
	s.mux.HandleFunc("/api/tools", s.handleAPITools)
	s.mux.HandleFunc("/api/runs", s.handleAPIRuns)
	s.mux.HandleFunc("/api/runs/{id}", s.handleAPIRun)

	// Reports
	s.mux.HandleFunc("/api/reports", s.handleAPIReports)

	// WebSocket
	s.mux.HandleFunc("/ws", s.handleWebSocket)
}
