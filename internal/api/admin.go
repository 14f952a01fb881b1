package api

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stwalsh4118/marquee/internal/access"
	"github.com/stwalsh4118/marquee/internal/config"
	"github.com/stwalsh4118/marquee/internal/logger"
	"golang.org/x/time/rate"
)

// SessionHeader carries the admin session token
const SessionHeader = "X-Admin-Session"

// Login outcomes reported to the LoginObserver
const (
	LoginOK        = "ok"
	LoginRejected  = "rejected"
	LoginThrottled = "throttled"
)

// LoginObserver is told the outcome of every login attempt
type LoginObserver func(result string)

// LoginRequest represents an admin login
type LoginRequest struct {
	Passphrase string `json:"passphrase" binding:"required"`
}

// EnabledRequest sets the global flag
type EnabledRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

// PassphraseRequest replaces the admin passphrase
type PassphraseRequest struct {
	Passphrase string `json:"passphrase" binding:"required"`
}

// StatusResponse reports this device's authorization
type StatusResponse struct {
	Identity     string `json:"identity"`
	IsAuthorized bool   `json:"is_authorized"`
}

// AllowListResponse reports the outcome of an allow-list change
type AllowListResponse struct {
	Identity string           `json:"identity"`
	Result   access.AddResult `json:"result,omitempty"`
}

// Idle per-IP limiters are pruned on this cadence once they have refilled
const (
	limiterCleanupInterval = time.Minute
	limiterIdleTTL         = 10 * time.Minute
)

type ipLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// loginLimiter throttles login attempts per client IP
type loginLimiter struct {
	rate  rate.Limit
	burst int
	now   func() time.Time

	mu          sync.Mutex
	limiters    map[string]*ipLimiter
	lastCleanup time.Time
}

func newLoginLimiter(cfg config.AccessConfig) *loginLimiter {
	r, burst := rate.Limit(cfg.LoginRate), cfg.LoginBurst
	if r <= 0 {
		r = 1
	}
	if burst < 1 {
		burst = 5
	}
	return &loginLimiter{
		rate:        r,
		burst:       burst,
		now:         time.Now,
		limiters:    make(map[string]*ipLimiter),
		lastCleanup: time.Now(),
	}
}

func (l *loginLimiter) allow(clientIP string) bool {
	now := l.now()

	l.mu.Lock()
	if now.Sub(l.lastCleanup) >= limiterCleanupInterval {
		l.pruneLocked(now)
	}
	entry, ok := l.limiters[clientIP]
	if !ok {
		entry = &ipLimiter{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.limiters[clientIP] = entry
	}
	entry.lastSeen = now
	l.mu.Unlock()

	return entry.limiter.AllowN(now, 1)
}

// pruneLocked drops limiters that have been idle for limiterIdleTTL and
// whose bucket is full again, so a throttled IP keeps its state.
func (l *loginLimiter) pruneLocked(now time.Time) {
	for ip, entry := range l.limiters {
		if now.Sub(entry.lastSeen) < limiterIdleTTL {
			continue
		}
		if entry.limiter.TokensAt(now) < float64(l.burst) {
			continue
		}
		delete(l.limiters, ip)
	}
	l.lastCleanup = now
}

// AdminHandler handles admin gate requests
type AdminHandler struct {
	gate    *access.Gate
	limiter *loginLimiter
	onLogin LoginObserver
}

// NewAdminHandler creates a new admin handler instance. onLogin may be nil.
func NewAdminHandler(gate *access.Gate, cfg config.AccessConfig, onLogin LoginObserver) *AdminHandler {
	return &AdminHandler{
		gate:    gate,
		limiter: newLoginLimiter(cfg),
		onLogin: onLogin,
	}
}

func (h *AdminHandler) observe(result string) {
	if h.onLogin != nil {
		h.onLogin(result)
	}
}

func sessionFrom(c *gin.Context) access.Session {
	return access.Session{Token: c.GetHeader(SessionHeader)}
}

// requireSession rejects requests without a valid admin session
func (h *AdminHandler) requireSession(c *gin.Context) {
	if !h.gate.ValidSession(sessionFrom(c)) {
		c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "unauthorized",
			Message: "Admin session required",
		})
		return
	}
	c.Next()
}

// Login handles POST /api/admin/login
func (h *AdminHandler) Login(c *gin.Context) {
	if !h.limiter.allow(c.ClientIP()) {
		h.observe(LoginThrottled)
		c.JSON(http.StatusTooManyRequests, ErrorResponse{
			Error:   "too_many_attempts",
			Message: "Too many login attempts, try again later",
		})
		return
	}

	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request body: " + err.Error(),
		})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	session, err := h.gate.AuthenticateAdmin(ctx, req.Passphrase)
	if err != nil {
		if errors.Is(err, access.ErrRejected) {
			h.observe(LoginRejected)
			logger.Log.Warn().Str("client_ip", c.ClientIP()).Msg("Admin login rejected")
			c.JSON(http.StatusUnauthorized, ErrorResponse{
				Error:   "rejected",
				Message: "Incorrect passphrase",
			})
			return
		}
		logger.Log.Error().Err(err).Msg("Admin login failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "login_failed",
			Message: "Failed to check passphrase",
		})
		return
	}

	h.observe(LoginOK)
	c.JSON(http.StatusOK, session)
}

// Logout handles POST /api/admin/logout
func (h *AdminHandler) Logout(c *gin.Context) {
	h.gate.Logout(sessionFrom(c))
	c.Status(http.StatusNoContent)
}

// Status handles GET /api/admin/status
func (h *AdminHandler) Status(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	identity := h.gate.Identity(ctx)
	c.JSON(http.StatusOK, StatusResponse{
		Identity:     identity,
		IsAuthorized: h.gate.IsAuthorized(ctx, identity),
	})
}

// SetEnabled handles PUT /api/admin/enabled
func (h *AdminHandler) SetEnabled(c *gin.Context) {
	var req EnabledRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request body: " + err.Error(),
		})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	if err := h.gate.SetGlobalEnabled(ctx, sessionFrom(c), *req.Enabled); err != nil {
		h.gateError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"enabled": *req.Enabled})
}

// AddToAllowList handles POST /api/admin/allowlist/:identity
func (h *AdminHandler) AddToAllowList(c *gin.Context) {
	identity := c.Param("identity")

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	result, err := h.gate.AddToAllowList(ctx, sessionFrom(c), identity)
	if err != nil {
		h.gateError(c, err)
		return
	}

	status := http.StatusCreated
	if result == access.AddAlreadyPresent {
		status = http.StatusOK
	}
	c.JSON(status, AllowListResponse{Identity: identity, Result: result})
}

// RemoveFromAllowList handles DELETE /api/admin/allowlist/:identity
func (h *AdminHandler) RemoveFromAllowList(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	if err := h.gate.RemoveFromAllowList(ctx, sessionFrom(c), c.Param("identity")); err != nil {
		h.gateError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// SetPassphrase handles PUT /api/admin/passphrase
func (h *AdminHandler) SetPassphrase(c *gin.Context) {
	var req PassphraseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request body: " + err.Error(),
		})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	if err := h.gate.SetPassphrase(ctx, sessionFrom(c), req.Passphrase); err != nil {
		h.gateError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Export handles GET /api/admin/export
func (h *AdminHandler) Export(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	snap, err := h.gate.ExportSnapshot(ctx, sessionFrom(c))
	if err != nil {
		h.gateError(c, err)
		return
	}
	c.Header("Content-Disposition", "attachment; filename=\"marquee-access-export.json\"")
	c.JSON(http.StatusOK, snap)
}

// Reset handles POST /api/admin/reset
func (h *AdminHandler) Reset(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	if err := h.gate.ResetAll(ctx, sessionFrom(c)); err != nil {
		h.gateError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *AdminHandler) gateError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, access.ErrNotAuthorized):
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "unauthorized",
			Message: "Admin session required",
		})
	case errors.Is(err, access.ErrPassphraseTooShort):
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "passphrase_too_short",
			Message: err.Error(),
		})
	case errors.Is(err, access.ErrEmptyIdentity):
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_identity",
			Message: err.Error(),
		})
	default:
		logger.Log.Error().Err(err).Str("path", c.FullPath()).Msg("Admin operation failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "admin_failed",
			Message: "Failed to update access settings",
		})
	}
}

// SetupAdminRoutes registers admin routes
func SetupAdminRoutes(apiGroup *gin.RouterGroup, gate *access.Gate, cfg config.AccessConfig, onLogin LoginObserver) {
	handler := NewAdminHandler(gate, cfg, onLogin)

	adminGroup := apiGroup.Group("/admin")
	{
		adminGroup.POST("/login", handler.Login)
		adminGroup.POST("/logout", handler.Logout)
		adminGroup.GET("/status", handler.Status)
	}

	protected := adminGroup.Group("", handler.requireSession)
	{
		protected.PUT("/enabled", handler.SetEnabled)
		protected.POST("/allowlist/:identity", handler.AddToAllowList)
		protected.DELETE("/allowlist/:identity", handler.RemoveFromAllowList)
		protected.PUT("/passphrase", handler.SetPassphrase)
		protected.GET("/export", handler.Export)
		protected.POST("/reset", handler.Reset)
	}
}
