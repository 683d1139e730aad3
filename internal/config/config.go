// Package config loads mudra settings from defaults, a TOML file, .env and MUDRA_* variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Duration is a time.Duration written as a string such as "2.5s" in TOML.
type Duration struct {
	time.Duration
}

// UnmarshalText parses a Go duration string.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText formats the duration.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Detection backends
const (
	BackendHTTP   = "http"
	BackendGemini = "gemini"
)

// Config is the full application configuration.
type Config struct {
	Server    ServerConfig    `toml:"server"`
	Store     StoreConfig     `toml:"store"`
	Camera    CameraConfig    `toml:"camera"`
	Detection DetectionConfig `toml:"detection"`
	Practice  PracticeConfig  `toml:"practice"`
	Log       LogConfig       `toml:"log"`
	Plugins   PluginsConfig   `toml:"plugins"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr      string `toml:"addr"`
	StaticDir string `toml:"static-dir"`
}

// StoreConfig configures the SQLite database.
type StoreConfig struct {
	Path string `toml:"path"`
}

// CameraConfig maps to capture.Constraints.
type CameraConfig struct {
	Device int    `toml:"device"`
	Width  int    `toml:"width"`
	Height int    `toml:"height"`
	FPS    int    `toml:"fps"`
	Facing string `toml:"facing"`
}

// DetectionConfig configures the inference backend and sampling.
type DetectionConfig struct {
	Backend string `toml:"backend"`
	URL     string `toml:"url"`
	// Threshold is sent to the detector; Floor is what a correct match needs.
	Threshold       float64  `toml:"threshold"`
	Floor           float64  `toml:"floor"`
	Interval        Duration `toml:"interval"`
	Timeout         Duration `toml:"timeout"`
	StillQuality    float64  `toml:"still-quality"`
	StillMaxWidth   int      `toml:"still-max-width"`
	SkipStill       bool     `toml:"skip-still"`
	MotionThreshold float64  `toml:"motion-threshold"`
	GeminiAPIKey    string   `toml:"gemini-api-key"`
	GeminiModel     string   `toml:"gemini-model"`
}

// PracticeConfig configures the session feedback timing and render rate.
type PracticeConfig struct {
	CorrectDelay   Duration `toml:"correct-delay"`
	IncorrectDelay Duration `toml:"incorrect-delay"`
	RefreshHz      int      `toml:"refresh-hz"`
	Token          string   `toml:"token"`
}

// LogConfig configures zap and file rotation.
type LogConfig struct {
	Level      string `toml:"level"`
	File       string `toml:"file"`
	MaxSizeMB  int    `toml:"max-size-mb"`
	MaxBackups int    `toml:"max-backups"`
	MaxAgeDays int    `toml:"max-age-days"`
}

// PluginsConfig configures the practice event hooks.
type PluginsConfig struct {
	Dir     string   `toml:"dir"`
	Timeout Duration `toml:"timeout"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{Addr: ":8080"},
		Store:  StoreConfig{Path: DefaultDBPath()},
		Camera: CameraConfig{
			Device: 0,
			Width:  640,
			Height: 480,
			FPS:    30,
			Facing: "user",
		},
		Detection: DetectionConfig{
			Backend:         BackendHTTP,
			URL:             "http://localhost:8000",
			Threshold:       0.3,
			Floor:           0.3,
			Interval:        Duration{2500 * time.Millisecond},
			Timeout:         Duration{5 * time.Second},
			StillQuality:    0.4,
			StillMaxWidth:   320,
			MotionThreshold: 1.0,
			GeminiModel:     "gemini-2.0-flash",
		},
		Practice: PracticeConfig{
			CorrectDelay:   Duration{2 * time.Second},
			IncorrectDelay: Duration{1500 * time.Millisecond},
			RefreshHz:      30,
		},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		Plugins: PluginsConfig{
			Dir:     DefaultPluginDir(),
			Timeout: Duration{5 * time.Second},
		},
	}
}

// Load builds the configuration: defaults, then the TOML file at path (a
// missing file is not an error), then .env, then environment variables.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		if err := decodeFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	// .env is optional
	_ = godotenv.Load()
	ApplyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decodeFile(path string, cfg *Config) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to stat config: %w", err)
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return fmt.Errorf("failed to decode config: %w", err)
	}
	return nil
}

// ApplyEnv overrides cfg from MUDRA_* variables and GEMINI_API_KEY.
func ApplyEnv(cfg *Config) {
	cfg.Server.Addr = getEnv("MUDRA_ADDR", cfg.Server.Addr)
	cfg.Server.StaticDir = getEnv("MUDRA_STATIC_DIR", cfg.Server.StaticDir)
	cfg.Store.Path = getEnv("MUDRA_DB", cfg.Store.Path)

	cfg.Camera.Device = getEnvAsInt("MUDRA_CAMERA_DEVICE", cfg.Camera.Device)
	cfg.Camera.Facing = getEnv("MUDRA_CAMERA_FACING", cfg.Camera.Facing)

	cfg.Detection.Backend = getEnv("MUDRA_DETECT_BACKEND", cfg.Detection.Backend)
	cfg.Detection.URL = getEnv("MUDRA_DETECT_URL", cfg.Detection.URL)
	cfg.Detection.Threshold = getEnvAsFloat("MUDRA_THRESHOLD", cfg.Detection.Threshold)
	cfg.Detection.Floor = getEnvAsFloat("MUDRA_FLOOR", cfg.Detection.Floor)
	cfg.Detection.Interval.Duration = getEnvAsDuration("MUDRA_INTERVAL", cfg.Detection.Interval.Duration)
	cfg.Detection.Timeout.Duration = getEnvAsDuration("MUDRA_TIMEOUT", cfg.Detection.Timeout.Duration)
	cfg.Detection.SkipStill = getEnvAsBool("MUDRA_SKIP_STILL", cfg.Detection.SkipStill)
	cfg.Detection.GeminiAPIKey = getEnv("GEMINI_API_KEY", cfg.Detection.GeminiAPIKey)
	cfg.Detection.GeminiModel = getEnv("MUDRA_GEMINI_MODEL", cfg.Detection.GeminiModel)

	cfg.Practice.Token = getEnv("MUDRA_TOKEN", cfg.Practice.Token)

	cfg.Log.Level = getEnv("MUDRA_LOG_LEVEL", cfg.Log.Level)
	cfg.Log.File = getEnv("MUDRA_LOG_FILE", cfg.Log.File)

	cfg.Plugins.Dir = getEnv("MUDRA_PLUGIN_DIR", cfg.Plugins.Dir)
}

// Validate checks ranges and enumerations.
func (c Config) Validate() error {
	var errs []error

	if c.Detection.Threshold < 0 || c.Detection.Threshold > 1 {
		errs = append(errs, fmt.Errorf("detection.threshold must be between 0 and 1, got %v", c.Detection.Threshold))
	}
	if c.Detection.Floor < 0 || c.Detection.Floor > 1 {
		errs = append(errs, fmt.Errorf("detection.floor must be between 0 and 1, got %v", c.Detection.Floor))
	}
	if c.Detection.StillQuality <= 0 || c.Detection.StillQuality > 1 {
		errs = append(errs, fmt.Errorf("detection.still-quality must be in (0, 1], got %v", c.Detection.StillQuality))
	}
	if c.Detection.Interval.Duration <= 0 {
		errs = append(errs, errors.New("detection.interval must be positive"))
	}
	if c.Detection.Timeout.Duration <= 0 {
		errs = append(errs, errors.New("detection.timeout must be positive"))
	}
	switch c.Detection.Backend {
	case BackendHTTP:
		if c.Detection.URL == "" {
			errs = append(errs, errors.New("detection.url is required for the http backend"))
		}
	case BackendGemini:
	default:
		errs = append(errs, fmt.Errorf("unknown detection.backend %q", c.Detection.Backend))
	}
	switch c.Camera.Facing {
	case "user", "environment":
	default:
		errs = append(errs, fmt.Errorf("camera.facing must be user or environment, got %q", c.Camera.Facing))
	}
	if c.Practice.RefreshHz <= 0 {
		errs = append(errs, errors.New("practice.refresh-hz must be positive"))
	}
	if c.Plugins.Timeout.Duration <= 0 {
		errs = append(errs, errors.New("plugins.timeout must be positive"))
	}

	return errors.Join(errs...)
}

var sectionComments = map[string]string{
	"server":    "HTTP API and live view used by `mudra serve`.",
	"store":     "SQLite database holding users, vocabulary, progress and sessions.",
	"camera":    "Capture device constraints. facing is \"user\" or \"environment\".",
	"detection": "backend is \"http\" or \"gemini\". threshold is sent to the detector; floor is the confidence a correct sign needs.",
	"practice":  "Feedback delays and the token used by `mudra practice` and `mudra sessions`.",
	"log":       "Log level and optional rotated log file.",
	"plugins":   "Practice event plugins and their per-call timeout.",
}

// Template returns a config file with the default values and a comment
// above each section.
func Template() string {
	var enc strings.Builder
	if err := toml.NewEncoder(&enc).Encode(Default()); err != nil {
		return ""
	}

	var b strings.Builder
	b.WriteString("# mudra configuration\n")
	b.WriteString("# Values here override the defaults; MUDRA_* variables and flags override this file.\n\n")
	for _, line := range strings.SplitAfter(enc.String(), "\n") {
		if name, ok := sectionName(line); ok {
			if c := sectionComments[name]; c != "" {
				b.WriteString("# " + c + "\n")
			}
		}
		b.WriteString(line)
	}
	return b.String()
}

func sectionName(line string) (string, bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "[") || !strings.HasSuffix(line, "]") {
		return "", false
	}
	return strings.Trim(line, "[]"), true
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
