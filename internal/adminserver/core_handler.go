package adminserver

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/labstack/echo/v4"

	"github.com/zepwave/inferlb/internal/errs"
	"github.com/zepwave/inferlb/internal/pool"
	"github.com/zepwave/inferlb/internal/worker"
	"github.com/zepwave/inferlb/pkg/logger"
)

// CoreHandler exposes the pool's ProcessRequest/ProcessBatch/GetMetrics/
// GetWorkerStatus surface over HTTP, per spec.md §4.10.
type CoreHandler struct {
	pool *pool.Pool
}

// NewCoreHandler constructs a CoreHandler bound to a running Pool.
func NewCoreHandler(p *pool.Pool) *CoreHandler {
	return &CoreHandler{pool: p}
}

type completeRequest struct {
	Prompt           string   `json:"prompt"`
	MaxTokens        int      `json:"max_tokens"`
	Temperature      float64  `json:"temperature"`
	TopP             float64  `json:"top_p"`
	Stop             []string `json:"stop"`
	FrequencyPenalty float64  `json:"frequency_penalty"`
}

type completeResponse struct {
	WorkerID string  `json:"worker_id"`
	Model    string  `json:"model"`
	Text     string  `json:"text"`
	Attempts int     `json:"attempts"`
	Seconds  float64 `json:"duration_seconds"`
}

func paramsFromRequest(r completeRequest) worker.Params {
	return worker.Params{
		MaxTokens:        r.MaxTokens,
		Temperature:      r.Temperature,
		TopP:             r.TopP,
		Stop:             r.Stop,
		FrequencyPenalty: r.FrequencyPenalty,
	}
}

// HandleComplete handles POST /v1/complete.
func (h *CoreHandler) HandleComplete(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.NoContent(http.StatusBadRequest)
	}

	var req completeRequest
	if err := json.Unmarshal(body, &req); err != nil || req.Prompt == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "prompt is required"})
	}

	result, err := h.pool.ProcessRequest(c.Request().Context(), req.Prompt, paramsFromRequest(req))
	if err != nil {
		logger.Warn("complete request failed: %v", err)
		return c.JSON(errorStatus(err), map[string]interface{}{"success": false, "error_kind": errs.Kind(err), "message": err.Error()})
	}

	return c.JSON(http.StatusOK, completeResponse{
		WorkerID: result.WorkerID,
		Model:    result.Model,
		Text:     result.Text,
		Attempts: result.Attempts,
		Seconds:  result.Duration.Seconds(),
	})
}

type batchRequest struct {
	Prompts       []string `json:"prompts"`
	MaxTokens     int      `json:"max_tokens"`
	Temperature   float64  `json:"temperature"`
	TopP          float64  `json:"top_p"`
	MaxConcurrent int      `json:"max_concurrent"`
}

type batchItemResponse struct {
	Index int    `json:"index"`
	completeResponse
	Error string `json:"error,omitempty"`
}

// HandleBatch handles POST /v1/batch. Progress is logged, not streamed;
// spec.md's batch surface is request/response, not server-sent events.
func (h *CoreHandler) HandleBatch(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.NoContent(http.StatusBadRequest)
	}

	var req batchRequest
	if err := json.Unmarshal(body, &req); err != nil || len(req.Prompts) == 0 {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "prompts must be non-empty"})
	}

	params := worker.Params{MaxTokens: req.MaxTokens, Temperature: req.Temperature, TopP: req.TopP}

	items := h.pool.ProcessBatch(c.Request().Context(), req.Prompts, params, req.MaxConcurrent, func(completed, total int, elapsed time.Duration) {
		logger.Info("batch progress: %d/%d (%.2fs elapsed)", completed, total, elapsed.Seconds())
	})

	resp := make([]batchItemResponse, len(items))
	for i, item := range items {
		r := batchItemResponse{Index: item.Index}
		if item.Err != nil {
			r.Error = item.Err.Error()
		} else {
			r.completeResponse = completeResponse{
				WorkerID: item.Result.WorkerID,
				Model:    item.Result.Model,
				Text:     item.Result.Text,
				Attempts: item.Result.Attempts,
				Seconds:  item.Result.Duration.Seconds(),
			}
		}
		resp[i] = r
	}

	return c.JSON(http.StatusOK, resp)
}

type workerStatusResponse struct {
	ID        string  `json:"id"`
	Healthy   bool    `json:"healthy"`
	InFlight  int     `json:"in_flight"`
	Ceiling   int     `json:"ceiling"`
	Total     uint64  `json:"total_requests"`
	Successes uint64  `json:"successes"`
	Failures  uint64  `json:"failures"`
	Score     float64 `json:"score"`
}

// HandleStatus handles GET /v1/status.
func (h *CoreHandler) HandleStatus(c echo.Context) error {
	statuses := h.pool.GetWorkerStatus()
	resp := make([]workerStatusResponse, len(statuses))
	for i, s := range statuses {
		resp[i] = workerStatusResponse{
			ID:        s.ID,
			Healthy:   s.Healthy,
			InFlight:  s.InFlight,
			Ceiling:   s.Ceiling,
			Total:     s.Counters.Total,
			Successes: s.Counters.Successes,
			Failures:  s.Counters.Failures,
			Score:     s.Score,
		}
	}
	return c.JSON(http.StatusOK, resp)
}

// HandleMetrics handles GET /v1/metrics, the registry's own JSON snapshot
// (distinct from /metrics, which is the Prometheus exposition).
func (h *CoreHandler) HandleMetrics(c echo.Context) error {
	return c.JSON(http.StatusOK, h.pool.GetMetrics())
}

// SetupRoutes registers the core dispatch and observability routes.
func (h *CoreHandler) SetupRoutes(e *echo.Echo) {
	e.POST("/v1/complete", h.HandleComplete)
	e.POST("/v1/batch", h.HandleBatch)
	e.GET("/v1/status", h.HandleStatus)
	e.GET("/v1/metrics", h.HandleMetrics)
}

func errorStatus(err error) int {
	var noWorkers *errs.NoWorkersAvailable
	var starved *errs.SelectionStarvation
	if errors.As(err, &noWorkers) || errors.As(err, &starved) {
		return http.StatusServiceUnavailable
	}
	return http.StatusBadGateway
}
