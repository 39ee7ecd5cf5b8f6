package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"voice-agent-platform/internal/auth"
	"voice-agent-platform/internal/callsession"
	"voice-agent-platform/internal/rbac"
	"voice-agent-platform/pkg/logger"
)

// Handlers groups the read-side HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.

type Handlers struct {
	Auth  *auth.Manager
	Store callsession.Store
}

// --- Auth ---

type loginRequest struct {
	UserID   string `json:"user_id"`
	TenantID string `json:"tenant_id"`
	Role     string `json:"role"`
}

// Login issues a JWT token pair.
//
// NOTE: Credential validation is delegated to an upstream identity provider;
// this endpoint only mints tokens for already-verified identities.
func (h Handlers) Login(c *gin.Context) {
	if h.Auth == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "auth not configured"})
		return
	}
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.UserID == "" || req.TenantID == "" || req.Role == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "user_id, tenant_id, role required"})
		return
	}
	pair, err := h.Auth.IssuePair(time.Now(), req.UserID, req.TenantID, req.Role)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": pair.AccessToken, "refresh_token": pair.RefreshToken})
}

// --- Sessions ---

// ListSessions returns the caller's call sessions, newest first.
func (h Handlers) ListSessions(c *gin.Context) {
	ctx := c.Request.Context()
	tenantID, err := auth.TenantID(ctx)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}
	userID, _ := auth.UserID(ctx)

	limit := intQuery(c, "limit", 50)
	if limit < 1 || limit > 100 {
		limit = 50
	}
	f := callsession.ListFilter{
		TenantID: tenantID,
		UserID:   userID,
		AgentID:  c.Query("agent_id"),
		Status:   callsession.Status(c.Query("status")),
		Limit:    limit,
		Offset:   intQuery(c, "offset", 0),
	}

	sessions, total, err := h.Store.List(ctx, f)
	if err != nil {
		logger.FromGin(c).Error("session list failed", "error", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "listing failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"sessions": sessions,
		"total":    total,
		"limit":    f.Limit,
		"offset":   f.Offset,
	})
}

// GetSession returns one session. Unknown ids are 404; sessions owned by a
// different tenant or user are 403.
func (h Handlers) GetSession(c *gin.Context) {
	sess, ok := h.loadOwnedSession(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, sess)
}

// GetSessionStats returns derived conversation statistics for one session.
func (h Handlers) GetSessionStats(c *gin.Context) {
	sess, ok := h.loadOwnedSession(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, callsession.ComputeStats(sess))
}

func (h Handlers) loadOwnedSession(c *gin.Context) (callsession.CallSession, bool) {
	ctx := c.Request.Context()
	tenantID, err := auth.TenantID(ctx)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return callsession.CallSession{}, false
	}
	userID, _ := auth.UserID(ctx)
	role, _ := auth.Role(ctx)

	sess, err := h.Store.GetByID(ctx, c.Param("session_id"))
	if err != nil {
		if errors.Is(err, callsession.ErrNotFound) {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return callsession.CallSession{}, false
		}
		logger.FromGin(c).Error("session load failed", "error", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
		return callsession.CallSession{}, false
	}

	if sess.TenantID != tenantID {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return callsession.CallSession{}, false
	}
	// Owners see all tenant sessions; everyone else only their own.
	if sess.UserID != userID && role != rbac.RoleOwner && role != rbac.RoleSuperAdmin {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return callsession.CallSession{}, false
	}
	return sess, true
}

func intQuery(c *gin.Context, key string, def int) int {
	raw := c.Query(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return def
	}
	return n
}
