package voice

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"voice-agent-platform/internal/agents"
	"voice-agent-platform/internal/audit"
	"voice-agent-platform/internal/auth"
	"voice-agent-platform/internal/callsession"
	"voice-agent-platform/internal/config"
	"voice-agent-platform/internal/conversation"
	"voice-agent-platform/internal/telephony"
)

const testAuthToken = "twilio-auth-token"
const testBaseURL = "https://voice.example.com"

func newAuthManager(t *testing.T) *auth.Manager {
	t.Helper()
	m, err := auth.NewManager(config.AuthConfig{
		JWTSecret:       "0123456789abcdef0123456789abcdef",
		JWTIssuer:       "voice-agent-platform",
		JWTAudience:     "voice-agent-api",
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 24 * time.Hour,
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return m
}

func newTestHandlers(t *testing.T, allowUnsigned bool) (*Handlers, *gin.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := callsession.NewMemoryStore()
	adapter := &stubAdapter{reply: "Happy to help."}
	processor := conversation.NewProcessor(store, adapter, config.VoiceConfig{ConfidenceThreshold: 0.5, ContextWindow: 6})
	auditSvc := audit.NewService(audit.NewMemoryRepo())
	agentRepo := agents.NewMemoryRepo(seedAgent())

	d := NewDispatcher(store, agentRepo, processor, telephony.NewBuilder(10), NewMemorySessionLocker(), auditSvc, testBaseURL)
	provider := &fakeProvider{placed: telephony.PlacedCall{ProviderCallSID: "CA0123456789abcdef", Status: "queued"}}
	init := NewInitiator(provider, agentRepo, store, auditSvc, "+15550009999", testBaseURL)

	authMgr := newAuthManager(t)
	h := NewHandlers(d, init, authMgr, config.TwilioConfig{
		AccountSID:    "AC123",
		AuthToken:     testAuthToken,
		PhoneNumber:   "+15550009999",
		AllowUnsigned: allowUnsigned,
	}, testBaseURL)

	r := gin.New()
	r.POST("/webhooks/voice/events", h.Events())
	r.POST("/webhooks/voice/process", h.Process())
	r.POST("/v1/voice/call/initiate", auth.RequireAccessToken(authMgr), h.Initiate)
	return h, r
}

func signedWebhookRequest(path string, form url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-Twilio-Signature", telephony.ComputeSignature(testAuthToken, testBaseURL+path, form))
	return req
}

func TestWebhookRejectsMissingSignature(t *testing.T) {
	_, r := newTestHandlers(t, false)

	form := url.Values{"CallSid": {"CA1"}, "CallStatus": {"initiated"}}
	req := httptest.NewRequest(http.MethodPost, "/webhooks/voice/events", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", w.Code)
	}
}

func TestWebhookAcceptsValidSignature(t *testing.T) {
	_, r := newTestHandlers(t, false)

	form := url.Values{"CallSid": {"CA1"}, "CallStatus": {"initiated"}}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, signedWebhookRequest("/webhooks/voice/events", form))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body=%s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/xml") {
		t.Fatalf("content type = %q", ct)
	}
	if !strings.Contains(w.Body.String(), "<Response></Response>") {
		t.Fatalf("expected empty ack, got:\n%s", w.Body.String())
	}
}

func TestWebhookAcceptsBearerToken(t *testing.T) {
	h, r := newTestHandlers(t, false)

	pair, err := h.Auth.IssuePair(time.Now(), "user-1", "tenant-1", "member")
	if err != nil {
		t.Fatalf("IssuePair: %v", err)
	}

	form := url.Values{"CallSid": {"CA1"}, "CallStatus": {"initiated"}}
	req := httptest.NewRequest(http.MethodPost, "/webhooks/voice/events", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer "+pair.AccessToken)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestWebhookSignatureCoversQueryString(t *testing.T) {
	_, r := newTestHandlers(t, false)

	path := "/webhooks/voice/process?agentId=agent-1&tenantId=tenant-1"
	form := url.Values{"CallSid": {"CA2"}, "SpeechResult": {"hello"}, "Confidence": {"0.9"}}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, signedWebhookRequest(path, form))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body=%s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), "Happy to help.") {
		t.Fatalf("expected model reply, got:\n%s", w.Body.String())
	}

	// Same body signed for a different query string must fail.
	req := signedWebhookRequest(path, form)
	req.URL.RawQuery = "agentId=agent-2"
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Fatalf("tampered query accepted: status = %d", w.Code)
	}
}

func TestWebhookAllowUnsignedSkipsValidation(t *testing.T) {
	_, r := newTestHandlers(t, true)

	form := url.Values{"CallSid": {"CA3"}, "CallStatus": {"initiated"}}
	req := httptest.NewRequest(http.MethodPost, "/webhooks/voice/events", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestInitiateEndpoint(t *testing.T) {
	h, r := newTestHandlers(t, true)

	pair, err := h.Auth.IssuePair(time.Now(), "user-1", "tenant-1", "member")
	if err != nil {
		t.Fatalf("IssuePair: %v", err)
	}

	body, _ := json.Marshal(map[string]string{"agent_id": "agent-1", "to_number": "+15550001111"})
	req := httptest.NewRequest(http.MethodPost, "/v1/voice/call/initiate", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+pair.AccessToken)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body=%s", w.Code, w.Body.String())
	}

	var resp map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["call_id"] != "call_89abcdef" {
		t.Fatalf("call_id = %q", resp["call_id"])
	}
	if resp["session_id"] == "" {
		t.Fatalf("session_id missing: %v", resp)
	}
}

func TestInitiateEndpointErrors(t *testing.T) {
	h, r := newTestHandlers(t, true)
	pair, _ := h.Auth.IssuePair(time.Now(), "user-1", "tenant-1", "member")

	send := func(payload map[string]string) *httptest.ResponseRecorder {
		body, _ := json.Marshal(payload)
		req := httptest.NewRequest(http.MethodPost, "/v1/voice/call/initiate", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+pair.AccessToken)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	if w := send(map[string]string{"agent_id": "agent-1", "to_number": "15550001111"}); w.Code != http.StatusBadRequest {
		t.Fatalf("bad number: status = %d", w.Code)
	}
	if w := send(map[string]string{"agent_id": "nope", "to_number": "+15550001111"}); w.Code != http.StatusNotFound {
		t.Fatalf("unknown agent: status = %d", w.Code)
	}

	// No token at all.
	body, _ := json.Marshal(map[string]string{"agent_id": "agent-1", "to_number": "+15550001111"})
	req := httptest.NewRequest(http.MethodPost, "/v1/voice/call/initiate", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("missing token: status = %d", w.Code)
	}
}

func TestWebhookUnparseableBodyIsRejected(t *testing.T) {
	_, r := newTestHandlers(t, false)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/voice/events", strings.NewReader("CallSid=%zz"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Fatalf("unparseable body: status = %d, want 403", w.Code)
	}
}
