package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"livesale-backend/internal/allocator"
)

// PostComment handles POST /api/sessions/:id/comments, the webhook entry point for one
// comment envelope. The allocator outcome is returned verbatim.
func (h *Handler) PostComment(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var env allocator.CommentEnvelope
	if err := c.ShouldBindJSON(&env); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid_request_body", "msg": err.Error()})
		return
	}

	res, err := h.alloc.ProcessComment(c.Request.Context(), id, env)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// ListComments handles GET /api/sessions/:id/comments?limit=N, newest first.
func (h *Handler) ListComments(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if err != nil || limit <= 0 || limit > 1000 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 1000"})
		return
	}

	comments, err := h.store.ListComments(c.Request.Context(), id, limit)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, comments)
}
