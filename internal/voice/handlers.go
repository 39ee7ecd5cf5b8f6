package voice

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"voice-agent-platform/internal/auth"
	"voice-agent-platform/internal/config"
	"voice-agent-platform/internal/telephony"
	"voice-agent-platform/pkg/logger"
)

const signatureHeader = "X-Twilio-Signature"
const contentTypeXML = "application/xml"

// Handlers exposes the webhook and call-initiation HTTP surface.
type Handlers struct {
	Dispatcher *Dispatcher
	Initiator  *Initiator
	Auth       *auth.Manager

	authToken     string
	allowUnsigned bool
	publicBaseURL string
}

func NewHandlers(d *Dispatcher, i *Initiator, authMgr *auth.Manager, cfg config.TwilioConfig, publicBaseURL string) *Handlers {
	return &Handlers{
		Dispatcher:    d,
		Initiator:     i,
		Auth:          authMgr,
		authToken:     cfg.AuthToken,
		allowUnsigned: cfg.AllowUnsigned,
		publicBaseURL: publicBaseURL,
	}
}

// authorized checks the provider signature over the delivered form, or a
// bearer access token for browser-originated (WebRTC) callers.
func (h *Handlers) authorized(c *gin.Context) bool {
	if h.allowUnsigned {
		return true
	}

	if raw := strings.TrimSpace(c.GetHeader("Authorization")); strings.HasPrefix(raw, "Bearer ") && h.Auth != nil {
		tok := strings.TrimPrefix(raw, "Bearer ")
		if _, err := h.Auth.Verify(tok, auth.TokenTypeAccess, time.Now()); err == nil {
			return true
		}
	}

	sig := c.GetHeader(signatureHeader)
	requestURL := h.publicBaseURL + c.Request.URL.RequestURI()
	return telephony.ValidateSignature(h.authToken, requestURL, c.Request.PostForm, sig)
}

func callbackParams(c *gin.Context) CallbackParams {
	return CallbackParams{
		AgentID:   c.Query("agentId"),
		SessionID: c.Query("sessionId"),
		TenantID:  c.Query("tenantId"),
		UserID:    c.Query("userId"),
	}
}

// webhook wraps a dispatcher entry point with form parsing and auth.
func (h *Handlers) webhook(dispatch func(c *gin.Context, ev telephony.WebhookEvent, p CallbackParams) string) gin.HandlerFunc {
	return func(c *gin.Context) {
		// A body that cannot be parsed cannot be signature-checked either,
		// so it fails the authentication boundary rather than getting markup.
		if err := c.Request.ParseForm(); err != nil {
			logger.FromGin(c).Warn("webhook form unparseable", "error", err)
			c.String(http.StatusForbidden, "invalid request")
			return
		}
		if !h.authorized(c) {
			logger.FromGin(c).Warn("webhook signature rejected", "path", c.Request.URL.Path)
			c.String(http.StatusForbidden, "invalid signature")
			return
		}

		ev := telephony.ParseWebhookEvent(c.Request.PostForm)
		body := dispatch(c, ev, callbackParams(c))
		c.Data(http.StatusOK, contentTypeXML, []byte(body))
	}
}

func (h *Handlers) Events() gin.HandlerFunc {
	return h.webhook(func(c *gin.Context, ev telephony.WebhookEvent, p CallbackParams) string {
		return h.Dispatcher.HandleEvent(c.Request.Context(), ev, p)
	})
}

func (h *Handlers) Answer() gin.HandlerFunc {
	return h.webhook(func(c *gin.Context, ev telephony.WebhookEvent, p CallbackParams) string {
		return h.Dispatcher.HandleAnswer(c.Request.Context(), ev, p)
	})
}

func (h *Handlers) Process() gin.HandlerFunc {
	return h.webhook(func(c *gin.Context, ev telephony.WebhookEvent, p CallbackParams) string {
		return h.Dispatcher.HandleProcess(c.Request.Context(), ev, p)
	})
}

func (h *Handlers) End() gin.HandlerFunc {
	return h.webhook(func(c *gin.Context, ev telephony.WebhookEvent, p CallbackParams) string {
		return h.Dispatcher.HandleEnd(c.Request.Context(), ev, p)
	})
}

func (h *Handlers) Transfer() gin.HandlerFunc {
	return h.webhook(func(c *gin.Context, ev telephony.WebhookEvent, p CallbackParams) string {
		return h.Dispatcher.HandleTransfer(c.Request.Context(), ev, p)
	})
}

type initiateRequest struct {
	AgentID  string `json:"agent_id"`
	ToNumber string `json:"to_number"`
}

// Initiate places an outbound call for the authenticated user.
func (h *Handlers) Initiate(c *gin.Context) {
	var req initiateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	ctx := c.Request.Context()
	tenantID, err := auth.TenantID(ctx)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}
	userID, _ := auth.UserID(ctx)
	role, _ := auth.Role(ctx)

	res, err := h.Initiator.InitiateCall(ctx, tenantID, userID, role, InitiateParams{
		AgentID:  req.AgentID,
		ToNumber: req.ToNumber,
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidNumber):
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "to_number must be E.164 with leading +"})
		case errors.Is(err, ErrAgentNotFound):
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "agent not found"})
		default:
			logger.FromGin(c).Error("call initiation failed", "error", err)
			c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": "call initiation failed"})
		}
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"call_id":          res.CallID,
		"provider_call_id": res.ProviderCallSID,
		"session_id":       res.SessionID,
		"status":           res.Status,
		"to_number":        res.ToNumber,
	})
}
