package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stwalsh4118/marquee/internal/ads"
	"github.com/stwalsh4118/marquee/internal/refresh"
)

// VisibilityRequest reports whether the page is in the foreground
type VisibilityRequest struct {
	Visible *bool `json:"visible" binding:"required"`
}

// VisibilityResponse reports the scheduler state after a visibility change
type VisibilityResponse struct {
	Visible bool `json:"visible"`
	Running bool `json:"running"`
}

// AdsResponse lists the slot currently shown per placement
type AdsResponse struct {
	Slots map[string]ads.Slot `json:"slots"`
}

// RefreshHandler handles visibility changes and exposes the rotated ad slots
type RefreshHandler struct {
	scheduler *refresh.Scheduler
	rotator   *ads.Rotator
}

// NewRefreshHandler creates a new refresh handler instance
func NewRefreshHandler(scheduler *refresh.Scheduler, rotator *ads.Rotator) *RefreshHandler {
	return &RefreshHandler{scheduler: scheduler, rotator: rotator}
}

// SetVisibility handles PUT /api/visibility
func (h *RefreshHandler) SetVisibility(c *gin.Context) {
	var req VisibilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request body: " + err.Error(),
		})
		return
	}

	h.scheduler.SetVisible(*req.Visible)
	c.JSON(http.StatusOK, VisibilityResponse{
		Visible: h.scheduler.Visible(),
		Running: h.scheduler.Running(),
	})
}

// CurrentAds handles GET /api/ads
func (h *RefreshHandler) CurrentAds(c *gin.Context) {
	c.JSON(http.StatusOK, AdsResponse{Slots: h.rotator.Current()})
}

// SetupRefreshRoutes registers visibility and ad routes
func SetupRefreshRoutes(apiGroup *gin.RouterGroup, scheduler *refresh.Scheduler, rotator *ads.Rotator) {
	handler := NewRefreshHandler(scheduler, rotator)
	apiGroup.PUT("/visibility", handler.SetVisibility)
	apiGroup.GET("/ads", handler.CurrentAds)
}
