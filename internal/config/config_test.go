package config

import (
	"os"
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	// Verify defaults
	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("Server.Host = %q, want %q", cfg.Server.Host, "0.0.0.0")
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want %d", cfg.Server.Port, 8080)
	}
	if cfg.API.URL != "https://app-staging.plant-for-the-planet.org/treemapper/interventions" {
		t.Errorf("API.URL = %q", cfg.API.URL)
	}
	if cfg.API.TenantKey != "ten_NxJq55pm" {
		t.Errorf("API.TenantKey = %q", cfg.API.TenantKey)
	}
	if cfg.Upload.RequestDelay != time.Second {
		t.Errorf("Upload.RequestDelay = %v, want 1s", cfg.Upload.RequestDelay)
	}
	if cfg.Upload.MaxFileSize != 52428800 {
		t.Errorf("Upload.MaxFileSize = %d, want %d", cfg.Upload.MaxFileSize, 52428800)
	}
	// Bearer token has no default: runs require explicit credentials
	if cfg.API.BearerToken != "" {
		t.Errorf("API.BearerToken = %q, want empty", cfg.API.BearerToken)
	}
}

func TestLoad_OverrideDefaults(t *testing.T) {
	os.Setenv("SERVER_PORT", "9090")
	os.Setenv("API_URL", "https://example.test/interventions")
	os.Setenv("UPLOAD_REQUEST_DELAY", "250ms")
	os.Setenv("LOG_LEVEL", "debug")
	defer func() {
		os.Unsetenv("SERVER_PORT")
		os.Unsetenv("API_URL")
		os.Unsetenv("UPLOAD_REQUEST_DELAY")
		os.Unsetenv("LOG_LEVEL")
	}()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want %d", cfg.Server.Port, 9090)
	}
	if cfg.API.URL != "https://example.test/interventions" {
		t.Errorf("API.URL = %q", cfg.API.URL)
	}
	if cfg.Upload.RequestDelay != 250*time.Millisecond {
		t.Errorf("Upload.RequestDelay = %v, want 250ms", cfg.Upload.RequestDelay)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "debug")
	}
}

func TestLoad_CommaSeparatedSlice(t *testing.T) {
	os.Setenv("TRUSTED_PROXIES", "10.0.0.0/8, 172.16.0.0/12 , 192.168.0.0/16")
	defer os.Unsetenv("TRUSTED_PROXIES")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	expected := []string{"10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16"}
	if len(cfg.Security.TrustedProxies) != len(expected) {
		t.Fatalf("TrustedProxies length = %d, want %d", len(cfg.Security.TrustedProxies), len(expected))
	}
	for i, v := range expected {
		if cfg.Security.TrustedProxies[i] != v {
			t.Errorf("TrustedProxies[%d] = %q, want %q", i, cfg.Security.TrustedProxies[i], v)
		}
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		env   string
		value string
	}{
		{"bad port", "SERVER_PORT", "not-a-port"},
		{"bad duration", "UPLOAD_REQUEST_DELAY", "fast"},
		{"bad bool", "REQUIRE_API_KEY", "definitely"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Setenv(tt.env, tt.value)
			defer os.Unsetenv(tt.env)

			if _, err := Load(); err == nil {
				t.Errorf("Load() with %s=%q should fail", tt.env, tt.value)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		return cfg
	}

	t.Run("invalid port", func(t *testing.T) {
		cfg := base()
		cfg.Server.Port = 0
		if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "SERVER_PORT") {
			t.Errorf("Validate() = %v, want SERVER_PORT failure", err)
		}
	})

	t.Run("non-http api url", func(t *testing.T) {
		cfg := base()
		cfg.API.URL = "ftp://example.test"
		if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "API_URL") {
			t.Errorf("Validate() = %v, want API_URL failure", err)
		}
	})

	t.Run("auth enabled without keys", func(t *testing.T) {
		cfg := base()
		cfg.Security.RequireAPIKey = true
		cfg.Security.APIKeys = nil
		if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "API_KEYS") {
			t.Errorf("Validate() = %v, want API_KEYS failure", err)
		}
	})

	t.Run("bad log level", func(t *testing.T) {
		cfg := base()
		cfg.Logging.Level = "loud"
		if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "LOG_LEVEL") {
			t.Errorf("Validate() = %v, want LOG_LEVEL failure", err)
		}
	})
}

func TestConfig_String_MasksSecrets(t *testing.T) {
	os.Setenv("API_BEARER_TOKEN", "very-secret-token")
	defer os.Unsetenv("API_BEARER_TOKEN")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	s := cfg.String()
	if strings.Contains(s, "very-secret-token") {
		t.Error("String() leaks the bearer token")
	}
	if !strings.Contains(s, "[MASKED]") {
		t.Errorf("String() = %s, want masked marker", s)
	}
}

func TestServerConfig_Addr(t *testing.T) {
	tests := []struct {
		host string
		port int
		want string
	}{
		{"0.0.0.0", 8080, "0.0.0.0:8080"},
		{"", 9090, ":9090"},
		{"127.0.0.1", 0, "127.0.0.1:0"},
	}

	for _, tt := range tests {
		cfg := &ServerConfig{Host: tt.host, Port: tt.port}
		if got := cfg.Addr(); got != tt.want {
			t.Errorf("Addr() = %q, want %q", got, tt.want)
		}
	}
}
