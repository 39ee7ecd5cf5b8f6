package config

import (
	"testing"
	"time"
)

func validConfig() Config {
	return Config{
		App:    AppConfig{Env: "local", Port: 8080},
		DB:     DBConfig{Host: "localhost", Port: 5432, User: "postgres", Password: "x", Name: "voiceagent", SSLMode: ""},
		Redis:  RedisConfig{Host: "localhost", Port: 6379},
		Auth:   AuthConfig{JWTSecret: "secret"},
		Twilio: TwilioConfig{AccountSID: "AC123", AuthToken: "token", PhoneNumber: "+15550001111"},
		OpenAI: OpenAIConfig{APIKey: "sk-test"},
	}
}

func TestValidate_ReportsMissingRequired(t *testing.T) {
	c := Config{}
	if err := c.Validate(); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestValidate_ProductionRequiresSSLMode(t *testing.T) {
	c := validConfig()
	c.App.Env = "production"
	c.App.PublicBaseURL = "https://voice.example.com"
	c.Auth.JWTIssuer = "issuer"
	c.Auth.JWTAudience = "aud"
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for production without DB_SSLMODE")
	}
}

func TestValidate_LocalDefaults(t *testing.T) {
	c := validConfig()
	if err := c.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if c.DB.SSLMode != "disable" {
		t.Fatalf("expected sslmode disable default, got %q", c.DB.SSLMode)
	}
	if c.Voice.ConfidenceThreshold != 0.5 {
		t.Fatalf("expected confidence threshold 0.5, got %v", c.Voice.ConfidenceThreshold)
	}
	if c.Voice.ContextWindow != 6 {
		t.Fatalf("expected context window 6, got %d", c.Voice.ContextWindow)
	}
	if c.Voice.ModelTimeout != 10*time.Second {
		t.Fatalf("expected model timeout 10s, got %s", c.Voice.ModelTimeout)
	}
	if c.App.PublicBaseURL == "" {
		t.Fatalf("expected local base url default")
	}
}

func TestValidate_ModelTimeoutHardCap(t *testing.T) {
	c := validConfig()
	c.Voice.ModelTimeout = 30 * time.Second
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for model timeout above cap")
	}
}

func TestValidate_AllowUnsignedRejectedInProduction(t *testing.T) {
	c := validConfig()
	c.App.Env = "production"
	c.App.PublicBaseURL = "https://voice.example.com"
	c.DB.SSLMode = "require"
	c.Auth.JWTIssuer = "issuer"
	c.Auth.JWTAudience = "aud"
	c.Twilio.AllowUnsigned = true
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for unsigned webhooks in production")
	}
}
