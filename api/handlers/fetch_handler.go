package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yourusername/dl-progress/internal/app"
	"github.com/yourusername/dl-progress/internal/domain"
)

// FetchHandler handles fetch job HTTP requests
type FetchHandler struct {
	queueMgr *app.QueueManager
	fetchMgr *app.FetchManager
	logger   *zap.Logger
}

// NewFetchHandler creates a new fetch handler
func NewFetchHandler(queueMgr *app.QueueManager, fetchMgr *app.FetchManager, logger *zap.Logger) *FetchHandler {
	return &FetchHandler{
		queueMgr: queueMgr,
		fetchMgr: fetchMgr,
		logger:   logger,
	}
}

// AddFetchRequest represents a request to add a fetch job
type AddFetchRequest struct {
	URL         string `json:"url" binding:"required"`
	Title       string `json:"title,omitempty"`
	Destination string `json:"destination,omitempty"`
}

// AddFetch handles POST /api/v1/fetches
func (h *FetchHandler) AddFetch(c *gin.Context) {
	var req AddFetchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	job, err := h.queueMgr.AddJob(req.URL, req.Destination, req.Title)
	if err != nil {
		h.logger.Warn("Failed to add fetch", zap.String("url", req.URL), zap.Error(err))
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, job)
}

// GetFetch handles GET /api/v1/fetches/:id
func (h *FetchHandler) GetFetch(c *gin.Context) {
	job, err := h.queueMgr.GetJob(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, job)
}

// ListFetches handles GET /api/v1/fetches
func (h *FetchHandler) ListFetches(c *gin.Context) {
	filters := make(map[string]interface{})
	if status := c.Query("status"); status != "" {
		filters["status"] = status
	}

	jobs, err := h.queueMgr.ListJobs(filters)
	if err != nil {
		h.logger.Error("Failed to list fetches", zap.Error(err))
		respondError(c, err)
		return
	}
	if jobs == nil {
		jobs = []*domain.FetchJob{}
	}

	c.JSON(http.StatusOK, jobs)
}

// GetStats handles GET /api/v1/fetches/stats
func (h *FetchHandler) GetStats(c *gin.Context) {
	stats, err := h.queueMgr.GetStats()
	if err != nil {
		h.logger.Error("Failed to get stats", zap.Error(err))
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, stats)
}

// CancelFetch handles POST /api/v1/fetches/:id/cancel
func (h *FetchHandler) CancelFetch(c *gin.Context) {
	id := c.Param("id")

	if err := h.fetchMgr.CancelJob(id); err != nil {
		h.logger.Warn("Failed to cancel fetch", zap.String("id", id), zap.Error(err))
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "fetch cancelled"})
}

// RetryFetch handles POST /api/v1/fetches/:id/retry
func (h *FetchHandler) RetryFetch(c *gin.Context) {
	id := c.Param("id")

	if err := h.fetchMgr.RetryJob(id); err != nil {
		h.logger.Warn("Failed to retry fetch", zap.String("id", id), zap.Error(err))
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "fetch queued for retry"})
}

// DeleteFetch handles DELETE /api/v1/fetches/:id
func (h *FetchHandler) DeleteFetch(c *gin.Context) {
	id := c.Param("id")

	if err := h.queueMgr.DeleteJob(id); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "fetch deleted"})
}
