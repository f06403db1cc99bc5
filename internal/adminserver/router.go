// Package adminserver implements the HTTP admin surface described in
// spec.md §4.10: the request/batch/status/metrics routes callers use to
// drive the pool, plus liveness/readiness probes for orchestrators.
package adminserver

import "github.com/labstack/echo/v4"

// Router registers one group of HTTP routes with the Echo instance. Every
// handler in this package implements it, mirroring the teacher's
// route-registration-separate-from-handler-logic convention.
type Router interface {
	SetupRoutes(e *echo.Echo)
}
