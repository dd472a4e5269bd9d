package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yourusername/dl-progress/internal/app"
	"github.com/yourusername/dl-progress/internal/domain"
)

// ProgressHandler serves progress snapshots from the registry
type ProgressHandler struct {
	registry   *app.Registry
	dispatcher *app.Dispatcher
	snapshots  domain.SnapshotRepository
	logger     *zap.Logger
}

// NewProgressHandler creates a new progress handler. snapshots may be nil
// when persistence is disabled.
func NewProgressHandler(registry *app.Registry, dispatcher *app.Dispatcher, snapshots domain.SnapshotRepository, logger *zap.Logger) *ProgressHandler {
	return &ProgressHandler{
		registry:   registry,
		dispatcher: dispatcher,
		snapshots:  snapshots,
		logger:     logger,
	}
}

// ProgressView is a snapshot together with its terminal outcome, if any
type ProgressView struct {
	domain.DownloadRequest
	Outcome *domain.FetcherResponse `json:"outcome,omitempty"`
}

// MarshalJSON keeps the snapshot's derived fields alongside the outcome
func (v ProgressView) MarshalJSON() ([]byte, error) {
	return marshalWithOutcome(v.DownloadRequest, v.Outcome)
}

func (h *ProgressHandler) view(snap domain.DownloadRequest) ProgressView {
	view := ProgressView{DownloadRequest: snap}
	if outcome, ok := h.registry.Outcome(snap.ID); ok {
		view.Outcome = &outcome
	}
	return view
}

// ListProgress handles GET /api/v1/progress
func (h *ProgressHandler) ListProgress(c *gin.Context) {
	snaps := h.registry.List()
	views := make([]ProgressView, 0, len(snaps))
	for _, snap := range snaps {
		views = append(views, h.view(snap))
	}
	c.JSON(http.StatusOK, views)
}

// GetProgress handles GET /api/v1/progress/:id
func (h *ProgressHandler) GetProgress(c *gin.Context) {
	snap, ok := h.registry.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "progress not found"})
		return
	}
	c.JSON(http.StatusOK, h.view(snap))
}

// DeleteProgress handles DELETE /api/v1/progress/:id
func (h *ProgressHandler) DeleteProgress(c *gin.Context) {
	id := c.Param("id")
	if !h.registry.Remove(id) {
		c.JSON(http.StatusNotFound, gin.H{"error": "progress not found"})
		return
	}

	if h.snapshots != nil {
		if err := h.deleteSnapshot(c.Request.Context(), id); err != nil {
			h.logger.Error("Failed to delete persisted snapshot", zap.String("id", id), zap.Error(err))
			respondError(c, err)
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{"message": "progress removed"})
}

// deleteSnapshot runs the delete on the dispatch goroutine so it lands after
// any snapshot writes still queued for the same download.
func (h *ProgressHandler) deleteSnapshot(ctx context.Context, id string) error {
	result := make(chan error, 1)
	err := h.dispatcher.Dispatch(func() {
		result <- h.snapshots.DeleteSnapshot(id)
	})
	if errors.Is(err, app.ErrDispatcherStopped) {
		// Nothing can write the snapshot back any more.
		return h.snapshots.DeleteSnapshot(id)
	}
	if err != nil {
		return err
	}

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
