// Package server provides the HTTP API for foliod.
//
// Handlers are thin readers over the cache store; the only side effect
// is scheduling background summary generation when a detail view finds
// none. A failed external call never surfaces as a server error here.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/folio/internal/cache"
)

var requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "folio_http_requests_total",
	Help: "HTTP requests labeled by method, path and status code.",
}, []string{"method", "path", "status"})

// Enqueuer schedules background summary generation.
type Enqueuer interface {
	Enqueue(names []string)
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
}

// Server serves the cached repository data and site content.
type Server struct {
	echo    *echo.Echo
	store   *cache.Store
	enqueue Enqueuer
	profile map[string]any
	thesis  map[string]any
	logger  *zap.Logger
	config  *Config
}

// NewServer creates the HTTP server and registers all routes.
func NewServer(store *cache.Store, enqueue Enqueuer, profile, thesis map[string]any, logger *zap.Logger, cfg *Config) (*Server, error) {
	if store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if enqueue == nil {
		return nil, fmt.Errorf("enqueuer cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{Host: "0.0.0.0", Port: 8000}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet},
	}))
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			duration := time.Since(start)

			requestsTotal.WithLabelValues(
				c.Request().Method,
				c.Path(),
				strconv.Itoa(c.Response().Status),
			).Inc()

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

	mediaDir := filepath.Join(store.Dir(), "media")
	if err := os.MkdirAll(mediaDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create media dir: %w", err)
	}

	s := &Server{
		echo:    e,
		store:   store,
		enqueue: enqueue,
		profile: profile,
		thesis:  thesis,
		logger:  logger,
		config:  cfg,
	}

	e.GET("/health", s.handleHealth)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	e.Static("/media", mediaDir)

	api := e.Group("/api")
	api.GET("/repos", s.handleListRepos)
	api.GET("/repos/:name", s.handleGetRepo)
	api.GET("/thesis", s.handleThesis)
	api.GET("/profile", s.handleProfile)

	return s, nil
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *Server) handleListRepos(c echo.Context) error {
	return c.JSON(http.StatusOK, s.store.Repos())
}

// handleGetRepo returns the full repository metadata plus README HTML
// and summary. A missing summary is returned empty immediately and
// generation is scheduled in the background rather than blocked on.
func (s *Server) handleGetRepo(c echo.Context) error {
	name := c.Param("name")

	detail, ok := s.store.Detail(name)
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "Repository not found")
	}

	readme, _ := s.store.Readme(name)
	summary, haveSummary := s.store.Summary(name)
	if !haveSummary && readme != "" {
		s.enqueue.Enqueue([]string{name})
	}

	// Merge the raw metadata object with the readme fields, keeping the
	// response shape a flat superset of the repository document.
	raw, err := json.Marshal(detail)
	if err != nil {
		s.logger.Error("failed to marshal repo detail", zap.String("repo", name), zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
	body["readme_summary"] = summary
	body["readme_html"] = readme

	return c.JSON(http.StatusOK, body)
}

func (s *Server) handleThesis(c echo.Context) error {
	return c.JSON(http.StatusOK, s.thesis)
}

func (s *Server) handleProfile(c echo.Context) error {
	return c.JSON(http.StatusOK, s.profile)
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
