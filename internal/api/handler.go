package api

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"livesale-backend/config"
	"livesale-backend/internal/allocator"
	"livesale-backend/internal/ingest"
	"livesale-backend/internal/store"
)

// Allocator is the core the handlers call into.
type Allocator interface {
	ProcessComment(ctx context.Context, sessionID int64, env allocator.CommentEnvelope) (allocator.Result, error)
	Release(ctx context.Context, req allocator.ReleaseRequest) (allocator.Result, error)
	ManualAward(ctx context.Context, req allocator.AwardRequest) (allocator.Result, error)
	RegisterSlot(ctx context.Context, req allocator.RegisterSlotRequest) (allocator.BackfillResult, error)
	ResolveUnmatched(ctx context.Context, sessionID int64, number string) (allocator.BackfillResult, error)
	InvalidateSession(sessionID int64)
}

// Pollers controls per-session comment polling.
type Pollers interface {
	Start(ctx context.Context, sessionID int64, src ingest.Source) error
	Stop(sessionID int64) bool
	IsActive(sessionID int64) bool
}

// Handler holds shared dependencies for API handlers.
type Handler struct {
	store     store.Store
	alloc     Allocator
	pollers   Pollers
	ingestCfg config.IngestConfig
	webpush   *webpush.Options
	validate  *validator.Validate
}

// NewHandler creates a new API handler.
func NewHandler(s store.Store, alloc Allocator, pollers Pollers, ingestCfg config.IngestConfig, webpushOptions *webpush.Options) *Handler {
	return &Handler{
		store:     s,
		alloc:     alloc,
		pollers:   pollers,
		ingestCfg: ingestCfg,
		webpush:   webpushOptions,
		validate:  validator.New(),
	}
}

// pathID parses an int64 path parameter, answering 400 when it is malformed.
func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return id, true
}

// fail maps an error from the allocator or store to a response. Business outcomes never
// reach here; they are returned as 200 results.
func fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, allocator.ErrInvalidInput):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, allocator.ErrSessionNotFound), errors.Is(err, store.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, allocator.ErrSlotExists):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "slot already exists"})
	default:
		log.Printf("Request %s %s failed: %v", c.Request.Method, c.FullPath(), err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
