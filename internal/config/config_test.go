package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_DefaultsAndOverrides(t *testing.T) {
	path := writeConfig(t, `
server:
  enabled: false
lights:
  name: desk
  points: 500
controller:
  plugin_dir: /opt/lightshow/plugins
`)
	t.Setenv("LIGHTSHOW_CONTROLLER_TICK_INTERVAL_MS", "40")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Lights.Points != 500 || cfg.Lights.Name != "desk" {
		t.Errorf("lights = %+v", cfg.Lights)
	}
	if cfg.Controller.TickInterval().Milliseconds() != 40 {
		t.Errorf("tick interval = %v, want 40ms from env", cfg.Controller.TickInterval())
	}
	if cfg.Controller.StaleFrame != "last" {
		t.Errorf("stale_frame default = %q", cfg.Controller.StaleFrame)
	}
	if cfg.EventBus.QueueCapacity != 64 {
		t.Errorf("queue capacity default = %d", cfg.EventBus.QueueCapacity)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"server needs secret", func(c *Config) { c.Auth.JWTSecret = "" }, "JWT_SECRET"},
		{"short secret", func(c *Config) { c.Auth.JWTSecret = "short" }, "32 characters"},
		{"zero points", func(c *Config) { c.Lights.Points = 0 }, "Points"},
		{"bad stale mode", func(c *Config) { c.Controller.StaleFrame = "grey" }, "StaleFrame"},
		{"websocket without url", func(c *Config) { c.LightClient.Type = "websocket" }, "light_client.url"},
		{"bad level", func(c *Config) { c.Logging.Level = "trace" }, "log level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Auth.JWTSecret = strings.Repeat("s", 32)
			cfg.Auth.AdminPasswordHash = "$2a$10$hash"
			if err := cfg.Validate(); err != nil {
				t.Fatalf("baseline Validate() error: %v", err)
			}
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestDumpExampleConfig_Loads(t *testing.T) {
	var buf bytes.Buffer
	if err := DumpExampleConfig(&buf); err != nil {
		t.Fatalf("DumpExampleConfig() error: %v", err)
	}
	cfg, err := Load(writeConfig(t, buf.String()))
	if err != nil {
		t.Fatalf("Load(example) error: %v", err)
	}
	if len(cfg.Audio.Command) == 0 {
		t.Error("example config lost audio.command")
	}
}

func TestLightsFromEnv(t *testing.T) {
	entry, err := LightsConfig{Name: "ring", Points: 24}.Env()
	if err != nil {
		t.Fatalf("Env() error: %v", err)
	}
	t.Setenv(EnvLights, strings.TrimPrefix(entry, EnvLights+"="))

	l, err := LightsFromEnv()
	if err != nil {
		t.Fatalf("LightsFromEnv() error: %v", err)
	}
	if l.Points != 24 || l.Name != "ring" {
		t.Errorf("LightsFromEnv() = %+v", l)
	}

	t.Setenv(EnvLights, `{"points":0}`)
	if _, err := LightsFromEnv(); err == nil {
		t.Error("expected error for zero points")
	}
}
