package config

import "testing"

func validBase() Config {
	return Config{
		App:   AppConfig{Env: "local", Port: 8080},
		DB:    DBConfig{Host: "localhost", Port: 5432, User: "postgres", Password: "x", Name: "voiceline", SSLMode: ""},
		Redis: RedisConfig{Host: "localhost", Port: 6379},
		Auth:  AuthConfig{JWTSecret: "secret"},
		Telnyx: TelnyxConfig{
			APIKey: "KEY",
		},
		LiveKit: LiveKitConfig{
			URL:       "https://livekit.example.com",
			APIKey:    "lk-key",
			APISecret: "lk-secret",
		},
	}
}

func TestValidate_ReportsMissingRequired(t *testing.T) {
	c := Config{}
	if err := c.Validate(); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestValidate_ProductionRequiresSSLMode(t *testing.T) {
	c := validBase()
	c.App.Env = "production"
	c.Auth.JWTIssuer = "issuer"
	c.Auth.JWTAudience = "aud"
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for production without DB_SSLMODE")
	}
}

func TestValidate_LocalDefaults(t *testing.T) {
	c := validBase()
	if err := c.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if c.DB.SSLMode != "disable" {
		t.Fatalf("expected sslmode disable default, got %q", c.DB.SSLMode)
	}
	if c.Telnyx.BaseURL == "" || c.Telnyx.SIPHost != "sip.telnyx.com" {
		t.Fatalf("expected telnyx defaults, got %+v", c.Telnyx)
	}
	if c.Telnyx.RequestTimeout <= 0 || c.LiveKit.RequestTimeout <= 0 {
		t.Fatalf("expected request timeout defaults")
	}
	if c.LiveKit.AgentName == "" {
		t.Fatalf("expected default agent name")
	}
}

func TestValidate_MediaPlatformCredentialsRequired(t *testing.T) {
	c := validBase()
	c.LiveKit.APISecret = ""
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for missing LIVEKIT_API_SECRET")
	}
}
