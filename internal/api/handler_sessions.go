package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"livesale-backend/internal/model"
	"livesale-backend/internal/parse"
)

// keywordError explains why a claim/pass word pair can never be matched, or returns "".
// Comments are compared after normalization, so the words are too.
func keywordError(claimWord, passWord string) string {
	claim, pass := parse.Normalize(claimWord), parse.Normalize(passWord)
	switch {
	case claim == "":
		return "claimWord must contain letters or digits"
	case pass == "":
		return "passWord must contain letters or digits"
	case claim == pass:
		return "claimWord and passWord must differ"
	}
	return ""
}

type createSessionRequest struct {
	Title     string              `json:"title" validate:"required,max=256"`
	Platform  string              `json:"platform" validate:"required,max=32"`
	ClaimWord string              `json:"claimWord" validate:"required,max=32"`
	PassWord  string              `json:"passWord" validate:"required,max=32,nefield=ClaimWord"`
	Status    model.SessionStatus `json:"status" validate:"omitempty,oneof=draft active paused ended"`
}

// CreateSession handles POST /api/sessions.
func (h *Handler) CreateSession(c *gin.Context) {
	var req createSessionRequest
	if !h.bindAndValidate(c, &req) {
		return
	}

	if msg := keywordError(req.ClaimWord, req.PassWord); msg != "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": msg})
		return
	}

	sess := &model.Session{
		Title:     req.Title,
		Platform:  req.Platform,
		ClaimWord: req.ClaimWord,
		PassWord:  req.PassWord,
		Status:    req.Status,
	}
	if sess.Status == "" {
		sess.Status = model.SessionStatusDraft
	}

	if err := h.store.CreateSession(c.Request.Context(), sess); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, sess)
}

// GetSession handles GET /api/sessions/:id.
func (h *Handler) GetSession(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	sess, err := h.store.GetSession(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

type updateSessionRequest struct {
	Title     *string              `json:"title" validate:"omitempty,min=1,max=256"`
	ClaimWord *string              `json:"claimWord" validate:"omitempty,min=1,max=32"`
	PassWord  *string              `json:"passWord" validate:"omitempty,min=1,max=32"`
	Status    *model.SessionStatus `json:"status" validate:"omitempty,oneof=draft active paused ended"`
}

// UpdateSession handles PATCH /api/sessions/:id. Ending a session stops its poller.
func (h *Handler) UpdateSession(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req updateSessionRequest
	if !h.bindAndValidate(c, &req) {
		return
	}

	ctx := c.Request.Context()
	sess, err := h.store.GetSession(ctx, id)
	if err != nil {
		fail(c, err)
		return
	}

	if req.Title != nil {
		sess.Title = *req.Title
	}
	if req.ClaimWord != nil {
		sess.ClaimWord = *req.ClaimWord
	}
	if req.PassWord != nil {
		sess.PassWord = *req.PassWord
	}
	if req.Status != nil {
		sess.Status = *req.Status
	}
	if msg := keywordError(sess.ClaimWord, sess.PassWord); msg != "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": msg})
		return
	}

	if err := h.store.UpdateSession(ctx, sess); err != nil {
		fail(c, err)
		return
	}
	h.alloc.InvalidateSession(id)

	if sess.Status == model.SessionStatusEnded && h.pollers != nil {
		h.pollers.Stop(id)
	}
	c.JSON(http.StatusOK, sess)
}
