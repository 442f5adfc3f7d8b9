// Package status provides the read-only HTTP view of the hive. It serves
// published snapshots and archives and never touches engine state.
package status

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pthm-cable/slimehive/config"
	"github.com/pthm-cable/slimehive/telemetry"
)

// SnapshotSource returns the last published state, or nil before the
// first publish.
type SnapshotSource interface {
	Latest() []byte
}

// Options configures the server.
type Options struct {
	Addr           string
	ArchiveDir     string
	LiveConfigPath string
	LiveBase       config.Live // Served when the live file does not exist yet
	Gatherer       prometheus.Gatherer
}

// Server provides HTTP endpoints for dashboards.
type Server struct {
	echo   *echo.Echo
	source SnapshotSource
	opts   Options
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// NewServer creates the server. A nil source always serves the empty state.
func NewServer(source SnapshotSource, opts Options) *Server {
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middleware
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			slog.Debug("http request",
				"method", c.Request().Method,
				"uri", c.Request().RequestURI,
				"status", c.Response().Status,
				"duration", time.Since(start),
			)
			return err
		}
	})

	s := &Server{echo: e, source: source, opts: opts}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/data", s.handleData)
	s.echo.GET("/config", s.handleGetConfig)
	s.echo.POST("/config", s.handlePostConfig)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{})))

	api := s.echo.Group("/api")
	api.GET("/archives", s.handleListArchives)
	api.GET("/archives/:name", s.handleGetArchive)
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.echo }

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *Server) handleData(c echo.Context) error {
	if s.source != nil {
		if data := s.source.Latest(); data != nil {
			return c.JSONBlob(http.StatusOK, data)
		}
	}
	return c.JSON(http.StatusOK, telemetry.EmptyState())
}

func (s *Server) handleListArchives(c echo.Context) error {
	list, err := telemetry.ListArchives(s.opts.ArchiveDir)
	if err != nil {
		slog.Error("failed to list archives", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "cannot list archives")
	}
	return c.JSON(http.StatusOK, list)
}

func (s *Server) handleGetArchive(c echo.Context) error {
	data, err := telemetry.ReadArchive(s.opts.ArchiveDir, c.Param("name"))
	switch {
	case errors.Is(err, telemetry.ErrBadArchiveName):
		return echo.NewHTTPError(http.StatusBadRequest, "invalid archive name")
	case errors.Is(err, os.ErrNotExist):
		return echo.NewHTTPError(http.StatusNotFound, "archive not found")
	case err != nil:
		slog.Error("failed to read archive", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "cannot read archive")
	}
	return c.JSONBlob(http.StatusOK, data)
}

// currentLive reads the live file, falling back to the base tunables.
func (s *Server) currentLive() (config.Live, error) {
	l, err := config.LoadLive(s.opts.LiveConfigPath, s.opts.LiveBase)
	if errors.Is(err, os.ErrNotExist) {
		return s.opts.LiveBase.Clamp(), nil
	}
	return l, err
}

func (s *Server) handleGetConfig(c echo.Context) error {
	l, err := s.currentLive()
	if err != nil {
		slog.Warn("invalid live config", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "cannot read live config")
	}
	return c.JSON(http.StatusOK, l)
}

// handlePostConfig merges the body over the current tunables and writes
// the live file. The engine picks the change up through its watcher.
func (s *Server) handlePostConfig(c echo.Context) error {
	l, err := s.currentLive()
	if err != nil {
		l = s.opts.LiveBase
	}
	if err := c.Bind(&l); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	l = l.Clamp()
	if err := config.WriteLive(s.opts.LiveConfigPath, l); err != nil {
		slog.Error("failed to write live config", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "cannot write live config")
	}
	slog.Info("live config updated", "path", s.opts.LiveConfigPath)
	return c.JSON(http.StatusOK, l)
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting status server", "addr", s.opts.Addr)
		if err := s.echo.Start(s.opts.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	slog.Info("shutting down status server")
	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
