package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadFile_MissingUsesDefaults(t *testing.T) {
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Port != 8080 || cfg.SessionIdleTimeout != 10*time.Minute || cfg.CandidateCap != 256 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestLoadFile_OverridesAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.test.yaml")
	body := "port: 9090\nsession_idle_timeout: 2m\nreap_interval: 5s\ncandidate_cap: 16\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("RELAY_CANDIDATE_CAP", "32")

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Port != 9090 {
		t.Fatalf("port=%d, want 9090", cfg.Port)
	}
	if cfg.SessionIdleTimeout != 2*time.Minute || cfg.ReapInterval != 5*time.Second {
		t.Fatalf("durations=%s/%s", cfg.SessionIdleTimeout, cfg.ReapInterval)
	}
	if cfg.CandidateCap != 32 {
		t.Fatalf("candidate_cap=%d, want env override 32", cfg.CandidateCap)
	}
}

func TestValidate(t *testing.T) {
	base := Config{
		Port:               8080,
		SessionIdleTimeout: time.Minute,
		ReapInterval:       time.Second,
		ClientPollInterval: time.Second,
	}
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "ok", mutate: func(*Config) {}},
		{name: "bad port", mutate: func(c *Config) { c.Port = 0 }, wantErr: true},
		{name: "zero reap interval", mutate: func(c *Config) { c.ReapInterval = 0 }, wantErr: true},
		{name: "threshold too close to poll", mutate: func(c *Config) { c.SessionIdleTimeout = 2 * time.Second }, wantErr: true},
		{name: "rate limit without window", mutate: func(c *Config) { c.SubmitRateLimit = 5 }, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base
			tt.mutate(&c)
			err := c.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate()=%v, wantErr=%v", err, tt.wantErr)
			}
		})
	}
}
