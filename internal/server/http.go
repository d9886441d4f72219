// Package server exposes the daemon's local HTTP API for editor plugins.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"gomotion/internal/motion"
)

// Config holds server options.
type Config struct {
	// MetricsEnabled exposes Prometheus metrics on /metrics.
	MetricsEnabled bool
}

// Server wraps the Echo server.
type Server struct {
	echo    *echo.Echo
	handler *Handler
}

// New creates the HTTP server for the given motion service.
func New(svc *motion.Service, cfg *Config) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	handler := NewHandler(svc)

	e.Use(middleware.Recover())
	e.Use(requestID())
	e.Use(requestLogger())

	e.GET("/healthz", handler.Health)
	if cfg != nil && cfg.MetricsEnabled {
		e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	}

	e.POST("/v1/motion", handler.ComputeMotion)
	e.GET("/v1/cache/stats", handler.CacheStats)
	e.GET("/v1/cache/export", handler.CacheExport)
	e.DELETE("/v1/cache", handler.ClearCache)
	e.DELETE("/v1/cache/providers/:name", handler.ClearCacheByProvider)
	e.PATCH("/v1/cache/config", handler.ReconfigureCache)
	e.GET("/v1/providers", handler.ListProviders)
	e.GET("/v1/providers/:type", handler.ProviderInfo)
	e.GET("/v1/registry/stats", handler.RegistryStats)

	return &Server{echo: e, handler: handler}
}

// Start starts the HTTP server on the given address.
func (s *Server) Start(addr string) error {
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// ServeHTTP implements http.Handler so the server works with httptest.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

// requestID assigns a UUID to every request lacking an X-Request-ID header.
func requestID() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id := c.Request().Header.Get(echo.HeaderXRequestID)
			if id == "" {
				id = uuid.NewString()
			}
			c.Response().Header().Set(echo.HeaderXRequestID, id)
			return next(c)
		}
	}
}

// requestLogger logs one structured line per request.
func requestLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			slog.Info("http request",
				"method", c.Request().Method,
				"path", c.Request().URL.Path,
				"status", c.Response().Status,
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", c.Response().Header().Get(echo.HeaderXRequestID),
			)
			return err
		}
	}
}
