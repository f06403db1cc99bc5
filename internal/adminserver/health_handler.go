package adminserver

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/atomic"
)

// HealthHandler serves the liveness and readiness probes orchestrators
// poll against.
type HealthHandler struct {
	readiness *atomic.Bool
}

// NewHealthHandler constructs a HealthHandler bound to the app's shared
// readiness flag.
func NewHealthHandler(readiness *atomic.Bool) *HealthHandler {
	return &HealthHandler{readiness: readiness}
}

// HandleLiveness handles GET /healthz. It always returns 200; it answers
// "is the process alive", not "is the pool healthy".
func (h *HealthHandler) HandleLiveness(c echo.Context) error {
	return c.NoContent(http.StatusOK)
}

// HandleReadiness handles GET /readyz. It returns 503 once the app has
// begun its shutdown drain window, per spec.md's ambient lifecycle.
func (h *HealthHandler) HandleReadiness(c echo.Context) error {
	if h.readiness.Load() {
		return c.NoContent(http.StatusOK)
	}
	return c.NoContent(http.StatusServiceUnavailable)
}

// SetupRoutes registers the probe endpoints.
func (h *HealthHandler) SetupRoutes(e *echo.Echo) {
	e.GET("/healthz", h.HandleLiveness)
	e.GET("/readyz", h.HandleReadiness)
}
