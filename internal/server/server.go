// Package server provides the operational HTTP endpoint for dreamerd:
// health, Prometheus metrics, and operator actions. The agent-facing
// surface is MCP on stdio, not HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/dreamerd/internal/dreamer"
	"github.com/fyrsmithlabs/dreamerd/internal/retrieval"
	"github.com/fyrsmithlabs/dreamerd/internal/store"
)

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
}

// Server provides the operational HTTP endpoints.
type Server struct {
	echo      *echo.Echo
	store     *store.Store
	dreamer   *dreamer.Dreamer
	retrieval *retrieval.Service
	logger    *zap.Logger
	config    *Config
}

// NewServer creates the operational HTTP server.
func NewServer(st *store.Store, d *dreamer.Dreamer, ret *retrieval.Service, logger *zap.Logger, cfg *Config) (*Server, error) {
	if st == nil {
		return nil, fmt.Errorf("store is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{Host: "localhost", Port: 9620}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			duration := time.Since(start)

			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", duration),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)

			return err
		}
	})

	s := &Server{
		echo:      e,
		store:     st,
		dreamer:   d,
		retrieval: ret,
		logger:    logger,
		config:    cfg,
	}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1")
	v1.GET("/namespaces", s.handleNamespaces)
	v1.POST("/triplets/:id/requeue", s.handleRequeue)
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status   string `json:"status"`
	Triplets int    `json:"triplets"`
}

func (s *Server) handleHealth(c echo.Context) error {
	counts, err := s.store.CountByNamespace(c.Request().Context())
	if err != nil {
		s.logger.Warn("health check store probe failed", zap.Error(err))
		return c.JSON(http.StatusServiceUnavailable, HealthResponse{Status: "degraded"})
	}
	total := 0
	for _, n := range counts {
		total += n
	}
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok", Triplets: total})
}

func (s *Server) handleNamespaces(c echo.Context) error {
	infos, err := s.retrieval.ListNamespaces(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "namespace listing failed")
	}
	return c.JSON(http.StatusOK, infos)
}

// RequeueResponse is the response body for POST /api/v1/triplets/:id/requeue.
type RequeueResponse struct {
	TripletID string `json:"triplet_id"`
	Status    string `json:"status"`
}

// handleRequeue resets a parked triplet back to raw and wakes the
// consolidation worker. Operator action; no MCP tool maps to it.
func (s *Server) handleRequeue(c echo.Context) error {
	id := c.Param("id")
	if err := s.dreamer.Requeue(c.Request().Context(), id); err != nil {
		if errors.Is(err, store.ErrTripletNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "triplet not found")
		}
		s.logger.Warn("requeue failed", zap.String("triplet_id", id), zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "requeue failed")
	}
	return c.JSON(http.StatusOK, RequeueResponse{TripletID: id, Status: "raw"})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
