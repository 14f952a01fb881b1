package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stwalsh4118/marquee/internal/logger"
	"github.com/stwalsh4118/marquee/internal/metadata"
	"github.com/stwalsh4118/marquee/internal/source"
)

// MetadataResponse wraps a payload with its cache provenance
type MetadataResponse struct {
	ID       string           `json:"id"`
	Cached   bool             `json:"cached"`
	Metadata metadata.Payload `json:"metadata"`
}

// MetadataHandler handles metadata lookups
type MetadataHandler struct {
	resolver *metadata.Resolver
}

// NewMetadataHandler creates a new metadata handler instance
func NewMetadataHandler(resolver *metadata.Resolver) *MetadataHandler {
	return &MetadataHandler{resolver: resolver}
}

// Get handles GET /api/metadata/:id
func (h *MetadataHandler) Get(c *gin.Context) {
	id := c.Param("id")
	if !source.IsPlatformID(id) {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_id",
			Message: "Not a valid platform content id",
		})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	payload, cached, err := h.resolver.Lookup(ctx, id)
	if err != nil {
		logger.Log.Warn().Err(err).Str("content_id", id).Msg("Metadata lookup failed")

		if errors.Is(err, metadata.ErrBreakerOpen) {
			c.JSON(http.StatusServiceUnavailable, ErrorResponse{
				Error:   "lookups_suspended",
				Message: "Metadata lookups are temporarily suspended",
			})
			return
		}
		c.JSON(http.StatusBadGateway, ErrorResponse{
			Error:   "lookup_failed",
			Message: "Failed to fetch metadata",
		})
		return
	}

	c.JSON(http.StatusOK, MetadataResponse{ID: id, Cached: cached, Metadata: payload})
}

// SetupMetadataRoutes registers metadata routes
func SetupMetadataRoutes(apiGroup *gin.RouterGroup, resolver *metadata.Resolver) {
	handler := NewMetadataHandler(resolver)
	apiGroup.GET("/metadata/:id", handler.Get)
}
