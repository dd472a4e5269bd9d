package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/dl-progress/internal/app"
	"github.com/yourusername/dl-progress/internal/infrastructure"
)

// Version is reported by the health endpoint
const Version = "1.0.0"

// HealthHandler handles health check requests
type HealthHandler struct {
	queueMgr    *app.QueueManager
	dispatcher  *app.Dispatcher
	downloadDir string
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(queueMgr *app.QueueManager, dispatcher *app.Dispatcher, downloadDir string) *HealthHandler {
	return &HealthHandler{
		queueMgr:    queueMgr,
		dispatcher:  dispatcher,
		downloadDir: downloadDir,
	}
}

// HealthResponse represents a health check response
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Queue   struct {
		Running bool `json:"running"`
	} `json:"queue"`
	Dispatch struct {
		Running bool `json:"running"`
		Pending int  `json:"pending"`
	} `json:"dispatch"`
	Host *infrastructure.HostResources `json:"host,omitempty"`
}

// Health handles GET /health
func (h *HealthHandler) Health(c *gin.Context) {
	response := HealthResponse{
		Status:  "ok",
		Version: Version,
	}
	response.Queue.Running = h.queueMgr.IsRunning()
	response.Dispatch.Running = h.dispatcher.IsRunning()
	response.Dispatch.Pending = h.dispatcher.Pending()

	if host, err := infrastructure.ReadHostResources(h.downloadDir); err == nil {
		response.Host = host
	}

	c.JSON(http.StatusOK, response)
}

// Ready handles GET /ready
func (h *HealthHandler) Ready(c *gin.Context) {
	if !h.dispatcher.IsRunning() {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"reason": "dispatcher not running",
		})
		return
	}
	if !h.queueMgr.IsRunning() {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"reason": "queue manager not running",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}
