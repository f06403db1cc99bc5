package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/atomic"
	"go.uber.org/multierr"

	"github.com/zepwave/inferlb/internal/adminserver"
	"github.com/zepwave/inferlb/internal/config"
	"github.com/zepwave/inferlb/internal/pool"
	"github.com/zepwave/inferlb/pkg/logger"
)

// App owns the Echo server, the core Pool, and the graceful lifecycle that
// ties them together.
type App struct {
	config    *config.Config
	echo      *echo.Echo
	readiness *atomic.Bool
	routers   []adminserver.Router
	pool      *pool.Pool
	cancel    context.CancelFunc
}

// NewApp constructs an App. The Pool and its workers are not started until
// Run is called.
func NewApp(cfg *config.Config) *App {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	return &App{
		config:    cfg,
		echo:      e,
		readiness: atomic.NewBool(false),
	}
}

// injectDependency opens the core Pool and wires every HTTP router.
func (a *App) injectDependency() error {
	p, err := pool.Open(a.config)
	if err != nil {
		return fmt.Errorf("failed to open pool: %w", err)
	}
	a.pool = p

	a.routers = []adminserver.Router{
		adminserver.NewHealthHandler(a.readiness),
		adminserver.NewCoreHandler(a.pool),
	}
	return nil
}

// preProcess runs before the server starts accepting traffic.
func (a *App) preProcess() {
	logger.Info("Preparing to start server...")
}

// postProcess runs once a shutdown signal has been received.
func (a *App) postProcess() {
	logger.Info("Shutting down gracefully...")
}

// Run starts the Echo server and blocks until a shutdown signal arrives,
// then drains and tears the pool down.
func (a *App) Run() error {
	_, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	if err := a.injectDependency(); err != nil {
		return err
	}
	a.preProcess()

	go func() {
		e := a.echo
		addr := fmt.Sprintf(":%d", a.config.ServerPort)

		// 1. CORS must run before anything else so preflights short-circuit.
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins:     a.config.AllowedOrigins,
			AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowHeaders:     []string{"Content-Type", "Authorization", "Accept", "Origin", "User-Agent", "X-Requested-With"},
			AllowCredentials: true,
		}))

		// 2. Body size limit guards against oversized batch payloads.
		limit := fmt.Sprintf("%dM", a.config.MaxRequestSizeMB)
		e.Use(middleware.BodyLimit(limit))

		// 3. Logging
		e.Use(middleware.Logger())

		// 4. Panic recovery
		e.Use(middleware.Recover())

		// 5. Readiness gate: reject new work once shutdown has begun, except
		// for the probe and metrics endpoints.
		e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
			return func(c echo.Context) error {
				if !a.readiness.Load() {
					p := c.Request().URL.Path
					if p != "/healthz" && p != "/readyz" && p != "/metrics" {
						logger.Info("readiness=false: reject new request path=%s", p)
						return c.NoContent(http.StatusServiceUnavailable)
					}
				}
				return next(c)
			}
		})

		// 6. Prometheus exposition
		e.Use(echoprometheus.NewMiddleware("inferlb"))
		e.GET("/metrics", echoprometheus.NewHandler())

		// 7. Route registration
		for _, router := range a.routers {
			router.SetupRoutes(e)
		}

		logger.Info("Starting inferlb server on %s", addr)
		a.readiness.Store(true)

		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Error("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	logger.Info("Server ready. Waiting for interrupt signal...")
	<-quit

	a.postProcess()

	a.readiness.Store(false)
	drainDuration := time.Duration(a.config.ShutdownDrainSeconds) * time.Second
	logger.Info("readiness=false: start drain window duration=%v", drainDuration)
	time.Sleep(drainDuration)

	logger.Info("Stopping pool...")
	a.pool.Close()

	shutdownTimeout := time.Duration(a.config.ShutdownTimeoutSeconds) * time.Second
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	logger.Info("Shutting down Echo server...")
	shutdownErr := a.echo.Shutdown(shutdownCtx)

	a.cancel()

	if shutdownErr != nil {
		logger.Error("Shutdown error: %v", shutdownErr)
		return multierr.Append(nil, shutdownErr)
	}

	logger.Info("Server stopped gracefully")
	return nil
}
