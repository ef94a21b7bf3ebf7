package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yourorg/backtest-service/internal/model"
	"github.com/yourorg/backtest-service/internal/service"
)

// BacktestHandler handles backtest HTTP requests
type BacktestHandler struct {
	backtestService *service.BacktestService
	logger          *zap.Logger
}

// NewBacktestHandler creates a new backtest handler
func NewBacktestHandler(backtestService *service.BacktestService, logger *zap.Logger) *BacktestHandler {
	return &BacktestHandler{
		backtestService: backtestService,
		logger:          logger,
	}
}

// CreateBacktest validates the configuration and queues it
// POST /api/v1/backtests
func (h *BacktestHandler) CreateBacktest(c *gin.Context) {
	var cfg model.BacktestConfig
	if err := c.ShouldBindJSON(&cfg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	exec, err := h.backtestService.Submit(c.Request.Context(), cfg)
	if err != nil {
		h.logger.Debug("Rejected backtest", zap.Error(err), zap.Strings("symbols", cfg.Symbols))
		respondError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"execution_id": exec.ID,
		"status":       exec.Status,
		"message":      "Backtest created and queued for processing",
	})
}

// ListBacktests lists executions, newest first
// GET /api/v1/backtests?status=&kind=&limit=
func (h *BacktestHandler) ListBacktests(c *gin.Context) {
	var filter model.ExecutionFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if filter.Limit <= 0 || filter.Limit > 500 {
		filter.Limit = 50
	}

	summaries, err := h.backtestService.List(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	if summaries == nil {
		summaries = []model.BacktestSummary{}
	}

	c.JSON(http.StatusOK, gin.H{"data": summaries, "count": len(summaries)})
}

// GetBacktest returns the execution with its status and failures
// GET /api/v1/backtests/:id
func (h *BacktestHandler) GetBacktest(c *gin.Context) {
	exec, err := h.backtestService.GetExecution(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, exec)
}

// GetBacktestResult returns the aggregated result of a completed execution
// GET /api/v1/backtests/:id/result
func (h *BacktestHandler) GetBacktestResult(c *gin.Context) {
	result, err := h.backtestService.GetResult(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// CancelBacktest stops a pending or running execution
// POST /api/v1/backtests/:id/cancel
func (h *BacktestHandler) CancelBacktest(c *gin.Context) {
	exec, err := h.backtestService.Cancel(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, exec)
}

// RunOptimization runs a parameter sweep and returns the ranked combinations
// POST /api/v1/optimizations
func (h *BacktestHandler) RunOptimization(c *gin.Context) {
	var req model.OptimizationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.backtestService.Optimize(c.Request.Context(), req)
	if err != nil {
		h.logger.Info("Optimization failed", zap.Error(err), zap.String("strategy", req.Base.Strategy.Name))
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// ListStrategies lists the registered strategies and their parameters
// GET /api/v1/strategies
func (h *BacktestHandler) ListStrategies(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"data": h.backtestService.Strategies()})
}

// RegisterRoutes mounts the backtest API on group
func (h *BacktestHandler) RegisterRoutes(group *gin.RouterGroup) {
	backtests := group.Group("/backtests")
	{
		backtests.POST("", h.CreateBacktest)
		backtests.GET("", h.ListBacktests)
		backtests.GET("/:id", h.GetBacktest)
		backtests.GET("/:id/result", h.GetBacktestResult)
		backtests.POST("/:id/cancel", h.CancelBacktest)
	}

	group.POST("/optimizations", h.RunOptimization)
	group.GET("/strategies", h.ListStrategies)
}
