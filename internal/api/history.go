package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/stwalsh4118/marquee/internal/history"
	"github.com/stwalsh4118/marquee/internal/logger"
)

// HistoryResponse represents the play history, most recent first
type HistoryResponse struct {
	Items []history.Item `json:"items"`
	Total int            `json:"total"`
}

// HistoryHandler handles play history requests
type HistoryHandler struct {
	history *history.Store
}

// NewHistoryHandler creates a new history handler instance
func NewHistoryHandler(store *history.Store) *HistoryHandler {
	return &HistoryHandler{history: store}
}

// List handles GET /api/history
func (h *HistoryHandler) List(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error:   "invalid_limit",
				Message: "Limit must be a non-negative integer",
			})
			return
		}
		limit = n
	}

	c.JSON(http.StatusOK, HistoryResponse{
		Items: h.history.List(limit),
		Total: h.history.Len(),
	})
}

// Clear handles DELETE /api/history. The caller must pass confirm=true.
func (h *HistoryHandler) Clear(c *gin.Context) {
	if c.Query("confirm") != "true" {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "confirmation_required",
			Message: "Clearing history requires confirm=true",
		})
		return
	}

	h.history.Clear()
	logger.Log.Info().Msg("Play history cleared")
	c.Status(http.StatusNoContent)
}

// SetupHistoryRoutes registers history routes
func SetupHistoryRoutes(apiGroup *gin.RouterGroup, store *history.Store) {
	handler := NewHistoryHandler(store)
	apiGroup.GET("/history", handler.List)
	apiGroup.DELETE("/history", handler.Clear)
}
