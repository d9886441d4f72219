package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"gomotion/internal/core"
	"gomotion/internal/motion"
)

// Handler implements the HTTP endpoints.
type Handler struct {
	svc *motion.Service
}

// NewHandler creates a Handler for the given service.
func NewHandler(svc *motion.Service) *Handler {
	return &Handler{svc: svc}
}

// Health reports liveness.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// motionResponse wraps a computed result with cache provenance.
type motionResponse struct {
	Result *core.MotionResult `json:"result"`
	Cached bool               `json:"cached"`
}

// ComputeMotion answers a motion request, from cache when possible.
func (h *Handler) ComputeMotion(c echo.Context) error {
	var req core.MotionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Excerpt == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "excerpt is required")
	}

	result, cached, err := h.svc.Compute(c.Request().Context(), &req)
	if err != nil {
		return motionError(err)
	}
	return c.JSON(http.StatusOK, motionResponse{Result: result, Cached: cached})
}

// CacheStats returns the derived cache statistics view.
func (h *Handler) CacheStats(c echo.Context) error {
	return c.JSON(http.StatusOK, h.svc.Cache().Stats())
}

// CacheExport returns the diagnostic entry listing, oldest first.
func (h *Handler) CacheExport(c echo.Context) error {
	return c.JSON(http.StatusOK, h.svc.Cache().Export())
}

// ClearCache empties the cache and resets its counters.
func (h *Handler) ClearCache(c echo.Context) error {
	h.svc.Cache().Clear()
	return c.NoContent(http.StatusNoContent)
}

// ClearCacheByProvider removes every entry produced by one provider.
func (h *Handler) ClearCacheByProvider(c echo.Context) error {
	removed := h.svc.Cache().ClearByProvider(c.Param("name"))
	return c.JSON(http.StatusOK, map[string]int{"removed": removed})
}

type reconfigureRequest struct {
	TTLSeconds int `json:"ttl_seconds"`
	MaxSize    int `json:"max_size"`
}

// ReconfigureCache updates the cache TTL and/or maximum size.
func (h *Handler) ReconfigureCache(c echo.Context) error {
	var req reconfigureRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	err := h.svc.Cache().Reconfigure(time.Duration(req.TTLSeconds)*time.Second, req.MaxSize)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

// ListProviders returns the registered provider types.
func (h *Handler) ListProviders(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"types": h.svc.Registry().RegisteredTypes(),
	})
}

// ProviderInfo returns a provider type's static metadata and config schema.
func (h *Handler) ProviderInfo(c echo.Context) error {
	info, err := h.svc.Registry().Info(c.Param("type"))
	if err != nil {
		if errors.Is(err, core.ErrUnknownProviderType) {
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, info)
}

// RegistryStats returns live provider instance counts.
func (h *Handler) RegistryStats(c echo.Context) error {
	return c.JSON(http.StatusOK, h.svc.Registry().Stats())
}

// motionError maps service errors onto HTTP status codes.
func motionError(err error) error {
	var cfgErr *core.ConfigurationError
	if errors.As(err, &cfgErr) {
		return echo.NewHTTPError(http.StatusBadRequest, cfgErr.Error())
	}
	if errors.Is(err, core.ErrUnknownProviderType) {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	var provErr *core.ProviderError
	if errors.As(err, &provErr) {
		return echo.NewHTTPError(http.StatusBadGateway, provErr.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}
