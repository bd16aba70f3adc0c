package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/slw-proton/litellm-adpter-dify/internal/storage"
)

const defaultRunListLimit = 50

// RunHandler 运行归档查询
type RunHandler struct {
	store storage.RunStore
}

func NewRunHandler(store storage.RunStore) *RunHandler {
	return &RunHandler{store: store}
}

func (h *RunHandler) List(c *gin.Context) {
	limit := defaultRunListLimit
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}

	runs, err := h.store.ListRuns(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs, "total": len(runs)})
}

func (h *RunHandler) Get(c *gin.Context) {
	runID := c.Param("run_id")

	run, err := h.store.GetRun(runID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, storage.ErrRunNotFound) || errors.Is(err, storage.ErrInvalidData) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, run)
}

// HealthChecker 工作流引擎的连通性探测
type HealthChecker interface {
	Health(ctx context.Context) bool
}

// HealthHandler ?deep=1 时额外探测工作流引擎
type HealthHandler struct {
	probe   HealthChecker
	backend string
}

func NewHealthHandler(probe HealthChecker, backend string) *HealthHandler {
	return &HealthHandler{probe: probe, backend: backend}
}

func (h *HealthHandler) Health(c *gin.Context) {
	body := gin.H{
		"status":    "ok",
		"backend":   h.backend,
		"timestamp": time.Now().Unix(),
	}
	if c.Query("deep") == "" || h.probe == nil {
		c.JSON(http.StatusOK, body)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()
	if !h.probe.Health(ctx) {
		body["status"] = "degraded"
		body["workflow_engine"] = "unreachable"
		c.JSON(http.StatusServiceUnavailable, body)
		return
	}
	body["workflow_engine"] = "ok"
	c.JSON(http.StatusOK, body)
}
