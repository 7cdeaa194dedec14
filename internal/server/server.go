// Package server exposes the daemon's HTTP API: webhook ingress for failure
// reports and read-only audit endpoints over the classifier and session
// history.
package server

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/fyrsmithlabs/healerd/internal/classifier"
	"github.com/fyrsmithlabs/healerd/internal/healer"
	"github.com/fyrsmithlabs/healerd/internal/monitor"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Server provides the HTTP API for healerd.
type Server struct {
	echo       *echo.Echo
	monitor    *monitor.Monitor
	classifier *classifier.Classifier
	store      *healer.Store
	logger     *zap.Logger
	config     *Config
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
}

// NewServer creates the HTTP server. The monitor, classifier, store and
// logger are required; the classifier must be the same instance the monitor
// classifies with, or the audit endpoints will miss records. A nil gatherer
// falls back to the default Prometheus registry.
func NewServer(m *monitor.Monitor, cls *classifier.Classifier, store *healer.Store,
	gatherer prometheus.Gatherer, logger *zap.Logger, cfg *Config) (*Server, error) {

	if m == nil {
		return nil, fmt.Errorf("monitor cannot be nil")
	}
	if cls == nil {
		return nil, fmt.Errorf("classifier cannot be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("session store cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	if cfg == nil {
		cfg = &Config{
			Host: "localhost",
			Port: 8844,
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middleware
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
		echo:       e,
		monitor:    m,
		classifier: cls,
		store:      store,
		logger:     logger,
		config:     cfg,
	}

	s.registerRoutes(gatherer)

	return s, nil
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes(gatherer prometheus.Gatherer) {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(
		promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	v1 := s.echo.Group("/api/v1")
	v1.POST("/webhook", s.handleWebhook)
	v1.GET("/errors", s.handleErrors)
	v1.GET("/errors/summary", s.handleErrorsSummary)
	v1.GET("/sessions", s.handleSessions)
	v1.GET("/stats", s.handleStats)
}

// WebhookRequest is the request body for POST /api/v1/webhook.
type WebhookRequest struct {
	Source      string   `json:"source"`
	Job         string   `json:"job"`
	BuildNumber int      `json:"build_number,omitempty"`
	Stage       string   `json:"stage,omitempty"`
	Error       string   `json:"error"`
	Console     string   `json:"console,omitempty"`
	Hosts       []string `json:"hosts,omitempty"`
}

// WebhookResponse is the response body for POST /api/v1/webhook.
type WebhookResponse struct {
	Success     bool                    `json:"success"`
	ErrorRecord *classifier.ErrorRecord `json:"error_record"`
	Session     *healer.HealingSession  `json:"session,omitempty"`
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// StatsResponse is the response body for GET /api/v1/stats.
type StatsResponse struct {
	Total       int     `json:"total"`
	Successes   int     `json:"successes"`
	SuccessRate float64 `json:"success_rate"`
}

// handleHealth returns a simple health check response.
func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// handleWebhook ingests a failure report and runs the full handling chain
// synchronously; the response carries the classified record and, when
// healing was attempted, its terminal session.
func (s *Server) handleWebhook(c echo.Context) error {
	var req WebhookRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid webhook request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Error == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "error field is required")
	}

	source := classifier.Source(req.Source)
	if req.Source == "" {
		source = classifier.SourceWebhook
	}

	task := req.Job
	if req.Stage != "" {
		task = req.Job + "/" + req.Stage
	}

	host := ""
	if len(req.Hosts) > 0 {
		host = req.Hosts[0]
	}

	record, session := s.monitor.HandleFailure(c.Request().Context(), monitor.FailureEvent{
		PipelineID:  req.Job,
		Source:      source,
		RawError:    req.Error,
		Stdout:      req.Console,
		Host:        host,
		TaskName:    task,
		TargetHosts: req.Hosts,
	})

	return c.JSON(http.StatusOK, WebhookResponse{
		Success:     session != nil && session.Success,
		ErrorRecord: record,
		Session:     session,
	})
}

// handleErrors returns recent classified error records.
func (s *Server) handleErrors(c echo.Context) error {
	return c.JSON(http.StatusOK, s.classifier.Recent(queryLimit(c)))
}

// handleErrorsSummary returns one audit line per retained error record.
func (s *Server) handleErrorsSummary(c echo.Context) error {
	return c.JSON(http.StatusOK, s.classifier.Summary())
}

// handleSessions returns recent healing sessions.
func (s *Server) handleSessions(c echo.Context) error {
	return c.JSON(http.StatusOK, s.store.Recent(queryLimit(c)))
}

// handleStats returns aggregate healing statistics.
func (s *Server) handleStats(c echo.Context) error {
	total, successes := s.store.Stats()
	return c.JSON(http.StatusOK, StatsResponse{
		Total:       total,
		Successes:   successes,
		SuccessRate: s.store.SuccessRate(),
	})
}

// queryLimit parses the optional ?limit=n parameter; absent or malformed
// values mean "all".
func queryLimit(c echo.Context) int {
	raw := c.QueryParam("limit")
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0
	}
	return n
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

// Handler exposes the underlying handler for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}
