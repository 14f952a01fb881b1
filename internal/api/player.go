package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/stwalsh4118/marquee/internal/logger"
	"github.com/stwalsh4118/marquee/internal/metadata"
	"github.com/stwalsh4118/marquee/internal/player"
	"github.com/stwalsh4118/marquee/internal/source"
)

// LoadRequest represents a request to load a link
type LoadRequest struct {
	URL string `json:"url"`
}

// QualityRequest selects a quality level. Level is "auto" or a level index.
type QualityRequest struct {
	Level string `json:"level" binding:"required"`
}

// SeekRequest moves the playback position by Delta seconds
type SeekRequest struct {
	Delta float64 `json:"delta"`
}

// EventRequest injects a backend event from an external renderer
type EventRequest struct {
	Attempt         uint64                `json:"attempt" binding:"required"`
	Type            string                `json:"type" binding:"required"`
	Kind            string                `json:"kind,omitempty"`
	Message         string                `json:"message,omitempty"`
	Levels          []player.QualityLevel `json:"levels,omitempty"`
	Metadata        *metadata.Payload     `json:"metadata,omitempty"`
	DurationSeconds int64                 `json:"duration_seconds,omitempty"`
	EmbedURL        string                `json:"embed_url,omitempty"`
}

// ToggleResponse reports the state after a play/pause toggle
type ToggleResponse struct {
	State player.State `json:"state"`
}

// PlayerHandler handles playback requests
type PlayerHandler struct {
	controller *player.Controller
}

// NewPlayerHandler creates a new player handler instance
func NewPlayerHandler(controller *player.Controller) *PlayerHandler {
	return &PlayerHandler{controller: controller}
}

// Load handles POST /api/player/load
func (h *PlayerHandler) Load(c *gin.Context) {
	var req LoadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request body: " + err.Error(),
		})
		return
	}
	h.submit(c, req.URL)
}

// LoadFromQuery handles GET /api/player/load, the deep link form
func (h *PlayerHandler) LoadFromQuery(c *gin.Context) {
	link := source.FromQuery(c.Request.URL.Query())
	if link == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "missing_link",
			Message: player.MsgEmptyInput,
		})
		return
	}
	h.submit(c, link)
}

func (h *PlayerHandler) submit(c *gin.Context, link string) {
	err := h.controller.Submit(c.Request.Context(), link)
	if err != nil {
		snap := h.controller.Snapshot()
		message := err.Error()
		if snap.LastStatus != nil {
			message = snap.LastStatus.Message
		}

		if isClassificationError(err) {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error:   "invalid_link",
				Message: message,
			})
			return
		}

		logger.Log.Error().Err(err).Str("link", link).Msg("Failed to start playback")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "load_failed",
			Message: message,
		})
		return
	}

	c.JSON(http.StatusAccepted, h.controller.Snapshot())
}

// GetState handles GET /api/player
func (h *PlayerHandler) GetState(c *gin.Context) {
	c.JSON(http.StatusOK, h.controller.Snapshot())
}

// Toggle handles POST /api/player/toggle
func (h *PlayerHandler) Toggle(c *gin.Context) {
	state, err := h.controller.TogglePlayPause()
	if err != nil {
		if errors.Is(err, player.ErrInvalidTransition) {
			c.JSON(http.StatusConflict, ErrorResponse{
				Error:   "invalid_state",
				Message: err.Error(),
			})
			return
		}
		c.JSON(http.StatusBadGateway, ErrorResponse{
			Error:   "backend_error",
			Message: err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, ToggleResponse{State: state})
}

// Reset handles POST /api/player/reset
func (h *PlayerHandler) Reset(c *gin.Context) {
	h.controller.Reset()
	c.JSON(http.StatusOK, h.controller.Snapshot())
}

// SelectQuality handles PUT /api/player/quality
func (h *PlayerHandler) SelectQuality(c *gin.Context) {
	var req QualityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request body: " + err.Error(),
		})
		return
	}

	index := -1
	if !strings.EqualFold(req.Level, "auto") {
		n, err := strconv.Atoi(req.Level)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error:   "invalid_level",
				Message: "Level must be \"auto\" or a level index",
			})
			return
		}
		index = n
	}

	if err := h.controller.SelectLevel(index); err != nil {
		switch {
		case errors.Is(err, player.ErrNoManifest):
			c.JSON(http.StatusConflict, ErrorResponse{
				Error:   "no_manifest",
				Message: "Quality selection needs a loaded adaptive stream",
			})
		case errors.Is(err, player.ErrInvalidQualityLevel):
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error:   "invalid_level",
				Message: err.Error(),
			})
		default:
			c.JSON(http.StatusBadGateway, ErrorResponse{
				Error:   "backend_error",
				Message: err.Error(),
			})
		}
		return
	}

	c.JSON(http.StatusOK, h.controller.Snapshot())
}

// CycleSpeed handles POST /api/player/speed
func (h *PlayerHandler) CycleSpeed(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"speed": h.controller.CycleSpeed()})
}

// ToggleMute handles POST /api/player/mute
func (h *PlayerHandler) ToggleMute(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"muted": h.controller.ToggleMute()})
}

// Seek handles POST /api/player/seek
func (h *PlayerHandler) Seek(c *gin.Context) {
	var req SeekRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request body: " + err.Error(),
		})
		return
	}
	position := h.controller.Seek(req.Delta)
	c.JSON(http.StatusOK, gin.H{
		"position":  position,
		"formatted": player.FormatDuration(position),
	})
}

// InjectEvent handles POST /api/player/events
func (h *PlayerHandler) InjectEvent(c *gin.Context) {
	var req EventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request body: " + err.Error(),
		})
		return
	}

	ev := player.Event{
		Type:            player.EventType(req.Type),
		Levels:          req.Levels,
		Metadata:        req.Metadata,
		DurationSeconds: req.DurationSeconds,
		EmbedURL:        req.EmbedURL,
	}
	if !ev.Type.IsValid() {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_event",
			Message: "Unknown event type: " + req.Type,
		})
		return
	}
	if ev.Type == player.EventFatalError || ev.Type == player.EventNonFatalWarning {
		ev.Kind = player.ParseErrorKind(req.Kind)
		message := req.Message
		if message == "" {
			message = string(ev.Type)
		}
		ev.Err = errors.New(message)
	}

	if err := h.controller.HandleEvent(req.Attempt, ev); err != nil {
		if errors.Is(err, player.ErrStaleAttempt) {
			c.JSON(http.StatusConflict, ErrorResponse{
				Error:   "stale_attempt",
				Message: "Event belongs to a superseded load attempt",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "event_failed",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, h.controller.Snapshot())
}

func isClassificationError(err error) bool {
	return errors.Is(err, source.ErrEmptyInput) ||
		errors.Is(err, source.ErrUnsupportedScheme) ||
		errors.Is(err, source.ErrUnrecognizedPlatformURL) ||
		errors.Is(err, source.ErrUnsupportedMediaType)
}

// SetupPlayerRoutes registers playback routes
func SetupPlayerRoutes(apiGroup *gin.RouterGroup, controller *player.Controller) {
	handler := NewPlayerHandler(controller)

	playerGroup := apiGroup.Group("/player")
	{
		playerGroup.GET("", handler.GetState)
		playerGroup.POST("/load", handler.Load)
		playerGroup.GET("/load", handler.LoadFromQuery)
		playerGroup.POST("/toggle", handler.Toggle)
		playerGroup.POST("/reset", handler.Reset)
		playerGroup.PUT("/quality", handler.SelectQuality)
		playerGroup.POST("/speed", handler.CycleSpeed)
		playerGroup.POST("/mute", handler.ToggleMute)
		playerGroup.POST("/seek", handler.Seek)
		playerGroup.POST("/events", handler.InjectEvent)
	}
}
