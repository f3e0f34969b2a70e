package api

import (
	"time"

	"github.com/gin-gonic/gin"

	"livesale-backend/internal/mw"
)

// NewRouter creates and configures a new Gin router.
func NewRouter(h *Handler, requestTimeout time.Duration) *gin.Engine {
	r := gin.Default()

	api := r.Group("/api")
	api.Use(mw.Trace("livesale-backend/internal/api"), mw.Timeout(requestTimeout))
	{
		api.POST("/sessions", h.CreateSession)
		api.GET("/sessions/:id", h.GetSession)
		api.PATCH("/sessions/:id", h.UpdateSession)

		api.GET("/sessions/:id/slots", h.ListSlots)
		api.POST("/sessions/:id/slots", h.RegisterSlot)
		api.POST("/sessions/:id/slots/:number/resolve", h.ResolveSlot)
		api.POST("/sessions/:id/slots/:number/award", h.AwardSlot)
		api.GET("/sessions/:id/slots/:number/claims", h.ListSlotClaims)

		api.POST("/sessions/:id/comments", h.PostComment)
		api.GET("/sessions/:id/comments", h.ListComments)

		api.POST("/claims/:id/release", h.ReleaseClaim)

		api.PUT("/sessions/:id/poller", h.StartPoller)
		api.DELETE("/sessions/:id/poller", h.StopPoller)
		api.GET("/sessions/:id/poller", h.GetPoller)

		api.GET("/subscriptions", h.GetSubscription)
		api.PUT("/subscriptions", h.PutSubscription)
		api.DELETE("/subscriptions", h.DeleteSubscription)
		api.GET("/vapid_public_key", h.GetVAPIDPublicKey)
	}

	return r
}
