package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stwalsh4118/marquee/internal/db"
	"github.com/stwalsh4118/marquee/internal/metadata"
)

// HealthResponse represents the response from the health check endpoint
type HealthResponse struct {
	Status   string                 `json:"status"`
	Database string                 `json:"database"`
	Time     string                 `json:"time"`
	Details  map[string]interface{} `json:"details,omitempty"`
}

// HealthHandler handles health check requests
type HealthHandler struct {
	db    *db.DB
	cache *metadata.Cache
}

// NewHealthHandler creates a new health check handler. cache may be nil.
func NewHealthHandler(database *db.DB, cache *metadata.Cache) *HealthHandler {
	return &HealthHandler{db: database, cache: cache}
}

// Check handles GET /api/health
func (h *HealthHandler) Check(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	response := HealthResponse{
		Status:  "ok",
		Time:    time.Now().UTC().Format(time.RFC3339),
		Details: make(map[string]interface{}),
	}

	if h.cache != nil {
		stats := h.cache.Stats()
		response.Details["metadata_cache_entries"] = stats.CurrentSize
	}

	if err := h.db.Health(ctx); err != nil {
		response.Status = "degraded"
		response.Database = "unhealthy"
		response.Details["database_error"] = err.Error()
		c.JSON(http.StatusServiceUnavailable, response)
		return
	}

	response.Database = "healthy"
	c.JSON(http.StatusOK, response)
}

// SetupHealthRoutes registers health check routes
func SetupHealthRoutes(apiGroup *gin.RouterGroup, database *db.DB, cache *metadata.Cache) {
	handler := NewHealthHandler(database, cache)
	apiGroup.GET("/health", handler.Check)
}
