package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"livesale-backend/internal/allocator"
)

// ListSlots handles GET /api/sessions/:id/slots.
func (h *Handler) ListSlots(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	slots, err := h.store.ListSlots(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, slots)
}

// RegisterSlot handles POST /api/sessions/:id/slots. Claims that named the slot before it
// existed are resolved in the same call.
func (h *Handler) RegisterSlot(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req allocator.RegisterSlotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid_request_body", "msg": err.Error()})
		return
	}
	req.SessionID = id

	res, err := h.alloc.RegisterSlot(c.Request.Context(), req)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

// ResolveSlot handles POST /api/sessions/:id/slots/:number/resolve.
func (h *Handler) ResolveSlot(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	res, err := h.alloc.ResolveUnmatched(c.Request.Context(), id, c.Param("number"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// AwardSlot handles POST /api/sessions/:id/slots/:number/award.
func (h *Handler) AwardSlot(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req allocator.AwardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid_request_body", "msg": err.Error()})
		return
	}
	req.SessionID = id
	req.SlotNumber = c.Param("number")

	res, err := h.alloc.ManualAward(c.Request.Context(), req)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// ListSlotClaims handles GET /api/sessions/:id/slots/:number/claims.
func (h *Handler) ListSlotClaims(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	claims, err := h.store.ListClaims(c.Request.Context(), id, c.Param("number"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, claims)
}

type releaseRequest struct {
	Note string `json:"note"`
}

// ReleaseClaim handles POST /api/claims/:id/release.
func (h *Handler) ReleaseClaim(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req releaseRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid_request_body", "msg": err.Error()})
			return
		}
	}

	res, err := h.alloc.Release(c.Request.Context(), allocator.ReleaseRequest{ClaimID: id, Note: req.Note})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
