// Package config
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// EnvLights is the environment variable through which a plugin process
// receives its LightsConfig as JSON.
const EnvLights = "LIGHTSHOW_LIGHTS"

type Config struct {
	Server      ServerConfig      `yaml:"server"`
	CORS        CORSConfig        `yaml:"cors"`
	Auth        AuthConfig        `yaml:"auth"`
	Lights      LightsConfig      `yaml:"lights"`
	Controller  ControllerConfig  `yaml:"controller"`
	EventBus    EventBusConfig    `yaml:"eventbus"`
	Audio       AudioConfig       `yaml:"audio"`
	Generators  GeneratorsConfig  `yaml:"generators"`
	LightClient LightClientConfig `yaml:"light_client"`
	Logging     LoggingConfig     `yaml:"logging"`
}

type ServerConfig struct {
	Enabled        bool   `yaml:"enabled"`
	Host           string `yaml:"host"`
	Port           int    `yaml:"port" validate:"gte=0,lte=65535"`
	ReadTimeoutMS  int    `yaml:"read_timeout_ms" validate:"gte=0"`
	WriteTimeoutMS int    `yaml:"write_timeout_ms" validate:"gte=0"`
}

type CORSConfig struct {
	Enabled        bool     `yaml:"enabled"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
	MaxAgeSeconds  int      `yaml:"max_age_seconds"`
}

type AuthConfig struct {
	AdminUsername string `yaml:"admin_username"`
	// AdminPasswordHash is a bcrypt hash, see "lightshow config hash-password".
	AdminPasswordHash string `yaml:"admin_password_hash"`
	JWTSecret         string `yaml:"jwt_secret"`
	JWTExpiryHours    int    `yaml:"jwt_expiry_hours"`
}

// LightsConfig describes the physical light layout. It is shared with
// every plugin process and is immutable for the lifetime of the host.
type LightsConfig struct {
	Name   string `yaml:"name" json:"name"`
	Points int    `yaml:"points" json:"points" validate:"gt=0,lte=100000"`
}

type ControllerConfig struct {
	PluginDir        string `yaml:"plugin_dir" validate:"required"`
	DefaultAnimation string `yaml:"default_animation"`
	TickIntervalMS   int    `yaml:"tick_interval_ms" validate:"gt=0"`
	CallTimeoutMS    int    `yaml:"call_timeout_ms" validate:"gt=0"`
	SpawnTimeoutMS   int    `yaml:"spawn_timeout_ms" validate:"gt=0"`
	// StaleFrame selects what is displayed when a frame call fails:
	// "last" repeats the last good frame, "black" blanks the lights.
	StaleFrame   string `yaml:"stale_frame" validate:"oneof=last black"`
	WatchPlugins bool   `yaml:"watch_plugins"`
}

type EventBusConfig struct {
	QueueCapacity int `yaml:"queue_capacity" validate:"gt=0"`
}

type AudioConfig struct {
	// Command is run to capture mono float32 little-endian PCM on stdout.
	// Empty disables the audio generators.
	Command    []string `yaml:"command"`
	SampleRate int      `yaml:"sample_rate" validate:"gt=0"`
	BlockSize  int      `yaml:"block_size" validate:"gt=0"`
}

type GeneratorsConfig struct {
	Beat BeatConfig `yaml:"beat"`
	FFT  FFTConfig  `yaml:"fft"`
	MIDI MIDIConfig `yaml:"midi"`
}

type BeatConfig struct {
	Enabled bool `yaml:"enabled"`
}

type FFTConfig struct {
	Enabled bool `yaml:"enabled"`
	Bands   int  `yaml:"bands" validate:"gte=0,lte=64"`
}

type MIDIConfig struct {
	Enabled bool `yaml:"enabled"`
	// Device is a raw MIDI byte stream such as /dev/snd/midiC1D0.
	Device string `yaml:"device"`
}

type LightClientConfig struct {
	// Type is one of "terminal", "websocket" or "none".
	Type    string `yaml:"type" validate:"oneof=terminal websocket none"`
	URL     string `yaml:"url"`
	Columns int    `yaml:"columns"`
	Preview bool   `yaml:"preview"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

var validate = validator.New()

// Load reads configuration from file and applies environment variable overrides
func Load(configPath string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Default returns the configuration used for every key the file omits.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Enabled:        true,
			Host:           "127.0.0.1",
			Port:           8420,
			ReadTimeoutMS:  15000,
			WriteTimeoutMS: 15000,
		},
		CORS: CORSConfig{
			AllowedMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
			AllowedHeaders: []string{"Authorization", "Content-Type"},
			MaxAgeSeconds:  3600,
		},
		Auth: AuthConfig{
			AdminUsername:  "admin",
			JWTExpiryHours: 24,
		},
		Lights: LightsConfig{
			Name:   "strip",
			Points: 150,
		},
		Controller: ControllerConfig{
			PluginDir:        "./plugins",
			DefaultAnimation: "diagnostic",
			TickIntervalMS:   20,
			CallTimeoutMS:    1000,
			SpawnTimeoutMS:   5000,
			StaleFrame:       "last",
		},
		EventBus: EventBusConfig{
			QueueCapacity: 64,
		},
		Audio: AudioConfig{
			SampleRate: 44100,
			BlockSize:  1024,
		},
		Generators: GeneratorsConfig{
			Beat: BeatConfig{Enabled: true},
			FFT:  FFTConfig{Enabled: true, Bands: 16},
		},
		LightClient: LightClientConfig{
			Type:    "terminal",
			Columns: 100,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Validate ensures all required configuration values are set
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			e := verrs[0]
			return fmt.Errorf("%s: failed %s validation (value %v)", e.Namespace(), e.Tag(), e.Value())
		}
		return err
	}

	if c.Server.Enabled {
		if c.Auth.JWTSecret == "" {
			return fmt.Errorf("LIGHTSHOW_AUTH_JWT_SECRET is required when the control server is enabled (minimum 32 characters)")
		}
		if len(c.Auth.JWTSecret) < 32 {
			return fmt.Errorf("jwt_secret must be at least 32 characters")
		}
		if c.Auth.AdminPasswordHash == "" {
			return fmt.Errorf("admin_password_hash must be set when the control server is enabled")
		}
	}

	if c.LightClient.Type == "websocket" && c.LightClient.URL == "" {
		return fmt.Errorf("light_client.url is required for the websocket client")
	}

	if c.Generators.MIDI.Enabled && c.Generators.MIDI.Device == "" {
		return fmt.Errorf("generators.midi.device is required when midi is enabled")
	}

	if !c.Logging.IsLogLevelValid() {
		return fmt.Errorf("unknown log level %q", c.Logging.Level)
	}

	return nil
}

// applyEnvOverrides checks for environment variables with LIGHTSHOW_ prefix
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LIGHTSHOW_SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("LIGHTSHOW_SERVER_PORT"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Server.Port)
	}

	if v := os.Getenv("LIGHTSHOW_AUTH_JWT_SECRET"); v != "" {
		cfg.Auth.JWTSecret = v
	}
	if v := os.Getenv("LIGHTSHOW_AUTH_ADMIN_PASSWORD_HASH"); v != "" {
		cfg.Auth.AdminPasswordHash = v
	}

	if v := os.Getenv("LIGHTSHOW_LIGHTS_POINTS"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Lights.Points)
	}

	if v := os.Getenv("LIGHTSHOW_CONTROLLER_PLUGIN_DIR"); v != "" {
		cfg.Controller.PluginDir = v
	}
	if v := os.Getenv("LIGHTSHOW_CONTROLLER_DEFAULT_ANIMATION"); v != "" {
		cfg.Controller.DefaultAnimation = v
	}
	if v := os.Getenv("LIGHTSHOW_CONTROLLER_TICK_INTERVAL_MS"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Controller.TickIntervalMS)
	}

	if v := os.Getenv("LIGHTSHOW_EVENTBUS_QUEUE_CAPACITY"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.EventBus.QueueCapacity)
	}

	if v := os.Getenv("LIGHTSHOW_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// ReadTimeout returns the read timeout as a duration
func (s *ServerConfig) ReadTimeout() time.Duration {
	return time.Duration(s.ReadTimeoutMS) * time.Millisecond
}

// WriteTimeout returns the write timeout as a duration
func (s *ServerConfig) WriteTimeout() time.Duration {
	return time.Duration(s.WriteTimeoutMS) * time.Millisecond
}

// Addr returns host:port
func (s *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// JWTExpiry returns JWT expiry as duration
func (a *AuthConfig) JWTExpiry() time.Duration {
	return time.Duration(a.JWTExpiryHours) * time.Hour
}

// TickInterval returns the frame tick interval as a duration
func (c *ControllerConfig) TickInterval() time.Duration {
	return time.Duration(c.TickIntervalMS) * time.Millisecond
}

// CallTimeout returns the per-call plugin timeout as a duration
func (c *ControllerConfig) CallTimeout() time.Duration {
	return time.Duration(c.CallTimeoutMS) * time.Millisecond
}

// SpawnTimeout returns the plugin handshake timeout as a duration
func (c *ControllerConfig) SpawnTimeout() time.Duration {
	return time.Duration(c.SpawnTimeoutMS) * time.Millisecond
}

// Validate checks a LightsConfig received from outside the config file.
func (l LightsConfig) Validate() error {
	if err := validate.Struct(l); err != nil {
		return fmt.Errorf("lights config: %w", err)
	}
	return nil
}

// Env returns the NAME=VALUE entry passed to plugin processes.
func (l LightsConfig) Env() (string, error) {
	data, err := json.Marshal(l)
	if err != nil {
		return "", fmt.Errorf("encode lights config: %w", err)
	}
	return EnvLights + "=" + string(data), nil
}

// LightsFromEnv decodes the LightsConfig handed to a plugin process.
func LightsFromEnv() (LightsConfig, error) {
	raw, ok := os.LookupEnv(EnvLights)
	if !ok {
		return LightsConfig{}, fmt.Errorf("%s is not set", EnvLights)
	}
	var l LightsConfig
	if err := json.Unmarshal([]byte(raw), &l); err != nil {
		return LightsConfig{}, fmt.Errorf("decode %s: %w", EnvLights, err)
	}
	if err := l.Validate(); err != nil {
		return LightsConfig{}, err
	}
	return l, nil
}

// IsLogLevelValid checks if the log level is valid
func (l *LoggingConfig) IsLogLevelValid() bool {
	validLevels := []string{"debug", "info", "warn", "error"}
	return slices.Contains(validLevels, strings.ToLower(l.Level))
}

// InitLogger initializes the global logger based on configuration
func InitLogger(cfg LoggingConfig, w io.Writer) *slog.Logger {
	var handler slog.Handler

	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)

	return logger
}

// DumpExampleConfig writes an example configuration to the provided writer
func DumpExampleConfig(w io.Writer) error {
	example := Default()
	example.Auth.JWTSecret = "replace-with-a-random-secret-of-32-chars-or-more"
	example.Auth.AdminPasswordHash = "$2a$10$replace.with.output.of.hash-password.command"
	example.CORS.AllowedOrigins = []string{"http://localhost:3000"}
	example.Audio.Command = []string{"parec", "--format=float32le", "--channels=1", "--rate=44100", "--raw"}
	example.Generators.MIDI.Device = "/dev/snd/midiC1D0"
	example.LightClient.URL = "ws://127.0.0.1:7890/frames"

	var node yaml.Node
	if err := node.Encode(example); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	header := `# =============================================================================
# lightshow example configuration
# =============================================================================
# Copy this file to config.yaml and modify it according to your needs.
#
# Environment variable overrides follow the pattern: LIGHTSHOW_<SECTION>_<KEY>
# Example: LIGHTSHOW_AUTH_JWT_SECRET, LIGHTSHOW_CONTROLLER_PLUGIN_DIR
# =============================================================================

`
	if _, err := fmt.Fprint(w, header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	if err := encoder.Encode(&node); err != nil {
		return fmt.Errorf("failed to encode YAML: %w", err)
	}

	if err := encoder.Close(); err != nil {
		return fmt.Errorf("failed to close encoder: %w", err)
	}

	footer := `
# =============================================================================
# Notes:
# =============================================================================
#
# 1. Plugins:
#    - Each subdirectory of controller.plugin_dir holds a manifest.json
#    - The executable named in the manifest must be executable
#
# 2. Timing:
#    - tick_interval_ms sets the target frame rate (20ms = 50fps)
#    - Ticks that arrive while a frame is still being rendered are skipped
#
# 3. Audio:
#    - audio.command must write mono float32 little-endian samples to stdout
#    - Leave it empty to disable the beat and fft generators
# =============================================================================
`
	if _, err := fmt.Fprint(w, footer); err != nil {
		return fmt.Errorf("failed to write footer: %w", err)
	}

	return nil
}
