package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"livesale-backend/internal/ingest"
)

type startPollerRequest struct {
	URL     string            `json:"url" validate:"required,url"`
	Headers map[string]string `json:"headers"`
}

// StartPoller handles PUT /api/sessions/:id/poller.
func (h *Handler) StartPoller(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req startPollerRequest
	if !h.bindAndValidate(c, &req) {
		return
	}

	if _, err := h.store.GetSession(c.Request.Context(), id); err != nil {
		fail(c, err)
		return
	}

	src := ingest.NewHTTPSource(req.URL, req.Headers, h.ingestCfg)
	// The poller outlives this request.
	err := h.pollers.Start(context.WithoutCancel(c.Request.Context()), id, src)
	if errors.Is(err, ingest.ErrAlreadyActive) {
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"active": true})
}

// StopPoller handles DELETE /api/sessions/:id/poller.
func (h *Handler) StopPoller(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if !h.pollers.Stop(id) {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "no active poller"})
		return
	}
	c.Status(http.StatusNoContent)
}

// GetPoller handles GET /api/sessions/:id/poller.
func (h *Handler) GetPoller(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"active": h.pollers.IsActive(id)})
}
