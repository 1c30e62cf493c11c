package tts

import (
	"fmt"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"golang.org/x/text/language"
)

// Completion detection modes.
const (
	DetectModeState = "state"
	DetectModeTimer = "timer"
)

// Config contains the whole daemon configuration.
type Config struct {
	// Control API address
	Listen string `mapstructure:"listen" yaml:"listen"`

	// Single-instance lock file (defaults next to the log file)
	LockFile string `mapstructure:"lock_file" yaml:"lock_file"`

	// Output backends
	HomeAssistant HomeAssistantConfig `mapstructure:"homeassistant" yaml:"homeassistant"`
	Local         LocalConfig         `mapstructure:"local" yaml:"local"`

	// One announcement queue per instance
	Instances []InstanceConfig `mapstructure:"instances" yaml:"instances"`
}

// HomeAssistantConfig configures the Home Assistant REST backend.
type HomeAssistantConfig struct {
	URL     string        `mapstructure:"url" yaml:"url"`
	Token   string        `mapstructure:"token" yaml:"token"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// Enabled reports whether the backend has enough configuration to be used.
func (c HomeAssistantConfig) Enabled() bool {
	return c.URL != ""
}

// LocalConfig configures the built-in speaker output.
type LocalConfig struct {
	Enabled    bool   `mapstructure:"enabled" yaml:"enabled"`
	Name       string `mapstructure:"name" yaml:"name"`
	Engine     string `mapstructure:"engine" yaml:"engine"`
	SampleRate int    `mapstructure:"sample_rate" yaml:"sample_rate"`

	Piper PiperConfig `mapstructure:"piper" yaml:"piper"`
	GTTS  GTTSConfig  `mapstructure:"gtts" yaml:"gtts"`
	Cache CacheConfig `mapstructure:"cache" yaml:"cache"`
}

// PiperConfig contains Piper TTS engine specific settings.
type PiperConfig struct {
	Binary     string        `mapstructure:"binary" yaml:"binary"`
	ModelPath  string        `mapstructure:"model_path" yaml:"model_path"`
	ConfigPath string        `mapstructure:"config_path" yaml:"config_path"`
	Timeout    time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// GTTSConfig contains gTTS engine specific settings.
type GTTSConfig struct {
	Slow              bool `mapstructure:"slow" yaml:"slow"`
	RequestsPerMinute int  `mapstructure:"requests_per_minute" yaml:"requests_per_minute"`
}

// CacheConfig sizes the synthesized audio cache.
type CacheConfig struct {
	Dir      string `mapstructure:"dir" yaml:"dir"`
	MemoryMB int    `mapstructure:"memory_mb" yaml:"memory_mb"`
	DiskMB   int    `mapstructure:"disk_mb" yaml:"disk_mb"`
}

// InstanceConfig configures one announcement queue bound to one output.
type InstanceConfig struct {
	Name   string `mapstructure:"name" yaml:"name"`
	Target string `mapstructure:"target" yaml:"target"`

	// Rendering
	TTSService      string         `mapstructure:"tts_service" yaml:"tts_service"`
	TTSEntity       string         `mapstructure:"tts_entity" yaml:"tts_entity"`
	DefaultLanguage string         `mapstructure:"default_language" yaml:"default_language"`
	DefaultOptions  map[string]any `mapstructure:"-" yaml:"default_options"`

	// Volume
	QuietHours  string  `mapstructure:"quiet_hours" yaml:"quiet_hours"`
	DayVolume   float64 `mapstructure:"day_volume" yaml:"day_volume"`
	NightVolume float64 `mapstructure:"night_volume" yaml:"night_volume"`

	// Timing
	PreRollMs    int    `mapstructure:"pre_roll_ms" yaml:"pre_roll_ms"`
	PreRollSound string `mapstructure:"pre_roll_sound" yaml:"pre_roll_sound"`
	PostGraceMs  int    `mapstructure:"post_grace_ms" yaml:"post_grace_ms"`

	// Ducking
	DuckEnable  bool     `mapstructure:"duck_enable" yaml:"duck_enable"`
	DuckTargets []string `mapstructure:"duck_targets" yaml:"duck_targets"`
	DuckVolume  float64  `mapstructure:"duck_volume" yaml:"duck_volume"`

	// Completion detection
	DetectDoneMode   string `mapstructure:"detect_done_mode" yaml:"detect_done_mode"`
	MaxSpeechSeconds int    `mapstructure:"max_speech_seconds" yaml:"max_speech_seconds"`
}

// DefaultConfig returns a Config with sensible defaults and no instances.
func DefaultConfig() Config {
	return Config{
		Listen: "127.0.0.1:8765",
		HomeAssistant: HomeAssistantConfig{
			Timeout: 10 * time.Second,
		},
		Local: DefaultLocalConfig(),
	}
}

// DefaultLocalConfig returns default local speaker configuration.
func DefaultLocalConfig() LocalConfig {
	cfg := LocalConfig{
		Enabled:    false,
		Name:       "local",
		Engine:     "piper",
		SampleRate: 44100,
		Piper: PiperConfig{
			Binary:  "piper",
			Timeout: 30 * time.Second,
		},
		GTTS: GTTSConfig{
			RequestsPerMinute: 50,
		},
		Cache: CacheConfig{
			MemoryMB: 32,
			DiskMB:   256,
		},
	}

	// Try to detect common Piper installation paths
	switch runtime.GOOS {
	case "linux":
		cfg.Piper.ModelPath = filepath.Join("/usr", "share", "piper", "en_US-lessac-medium.onnx")
	case "darwin":
		cfg.Piper.ModelPath = filepath.Join("/usr", "local", "share", "piper", "en_US-lessac-medium.onnx")
	}

	return cfg
}

// DefaultInstanceConfig returns the per-instance defaults. Target and Name
// must still be supplied.
func DefaultInstanceConfig() InstanceConfig {
	return InstanceConfig{
		TTSService:       "tts.speak",
		DefaultOptions:   map[string]any{},
		QuietHours:       "22:00-07:00",
		DayVolume:        0.45,
		NightVolume:      0.20,
		PreRollMs:        150,
		PostGraceMs:      250,
		DuckEnable:       true,
		DuckTargets:      []string{},
		DuckVolume:       0.15,
		DetectDoneMode:   DetectModeState,
		MaxSpeechSeconds: 45,
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if len(c.Instances) == 0 {
		return fmt.Errorf("%w: no instances configured", ErrMissingConfig)
	}

	seen := make(map[string]bool, len(c.Instances))
	for i := range c.Instances {
		inst := &c.Instances[i]
		if err := inst.Validate(); err != nil {
			return err
		}
		key := strings.ToLower(inst.Name)
		if seen[key] {
			return configErr(inst.Name, "name", inst.Name, "duplicate instance name")
		}
		seen[key] = true
	}

	if c.Local.Enabled {
		if err := c.Local.Validate(); err != nil {
			return err
		}
	}

	if c.HomeAssistant.Enabled() && c.HomeAssistant.Timeout < time.Second {
		return configErr("", "homeassistant.timeout", c.HomeAssistant.Timeout, "must be at least 1s")
	}

	return nil
}

// Validate checks if the local speaker configuration is valid.
func (c *LocalConfig) Validate() error {
	validEngines := []string{"piper", "gtts", "mock"}
	engineValid := false
	for _, e := range validEngines {
		if strings.EqualFold(c.Engine, e) {
			engineValid = true
			c.Engine = strings.ToLower(c.Engine)
			break
		}
	}
	if !engineValid {
		return configErr("", "local.engine", c.Engine, "must be one of %v", validEngines)
	}

	if c.Name == "" || strings.Contains(c.Name, ".") {
		return configErr("", "local.name", c.Name, "must be non-empty and contain no dots")
	}

	if c.SampleRate != 44100 && c.SampleRate != 48000 {
		return configErr("", "local.sample_rate", c.SampleRate, "must be 44100 or 48000")
	}

	if c.Engine == "piper" && c.Piper.Binary == "" {
		return configErr("", "local.piper.binary", c.Piper.Binary, "piper binary path cannot be empty")
	}

	if c.Cache.MemoryMB < 0 || c.Cache.DiskMB < 0 {
		return configErr("", "local.cache", c.Cache, "cache sizes cannot be negative")
	}

	return nil
}

// Validate checks if the instance configuration is valid and normalizes
// list values.
func (c *InstanceConfig) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return configErr("", "name", c.Name, "instance name cannot be empty")
	}
	if strings.TrimSpace(c.Target) == "" {
		return configErr(c.Name, "target", c.Target, "target output cannot be empty")
	}

	if c.TTSService != "" && !strings.Contains(c.TTSService, ".") {
		return configErr(c.Name, "tts_service", c.TTSService, "expected domain.service")
	}

	if c.DefaultLanguage != "" {
		if _, err := language.Parse(c.DefaultLanguage); err != nil {
			return configErr(c.Name, "default_language", c.DefaultLanguage, "%v", err)
		}
	}

	if c.QuietHours != "" {
		if _, err := ParseQuietWindow(c.QuietHours); err != nil {
			return configErr(c.Name, "quiet_hours", c.QuietHours, "%v", err)
		}
	}

	for field, v := range map[string]float64{
		"day_volume":   c.DayVolume,
		"night_volume": c.NightVolume,
		"duck_volume":  c.DuckVolume,
	} {
		if v < 0 || v > 1 {
			return configErr(c.Name, field, v, "volume must be between 0.0 and 1.0")
		}
	}

	if c.PreRollMs < 0 {
		return configErr(c.Name, "pre_roll_ms", c.PreRollMs, "cannot be negative")
	}
	if c.PostGraceMs < 0 {
		return configErr(c.Name, "post_grace_ms", c.PostGraceMs, "cannot be negative")
	}

	switch strings.ToLower(c.DetectDoneMode) {
	case DetectModeState, DetectModeTimer:
		c.DetectDoneMode = strings.ToLower(c.DetectDoneMode)
	case "":
		c.DetectDoneMode = DetectModeState
	default:
		return configErr(c.Name, "detect_done_mode", c.DetectDoneMode, "must be %q or %q", DetectModeState, DetectModeTimer)
	}

	if c.MaxSpeechSeconds <= 0 {
		return configErr(c.Name, "max_speech_seconds", c.MaxSpeechSeconds, "must be positive")
	}

	c.DuckTargets = normalizeTargets(c.DuckTargets)
	for _, t := range c.DuckTargets {
		if t == c.Target {
			return configErr(c.Name, "duck_targets", t, "cannot duck the announcement target")
		}
	}

	return nil
}

// PreRoll returns the configured pre-roll delay.
func (c InstanceConfig) PreRoll() time.Duration {
	return time.Duration(c.PreRollMs) * time.Millisecond
}

// PostGrace returns the configured settle delay before restoring volumes.
func (c InstanceConfig) PostGrace() time.Duration {
	return time.Duration(c.PostGraceMs) * time.Millisecond
}

// MaxSpeech returns the configured speech ceiling.
func (c InstanceConfig) MaxSpeech() time.Duration {
	return time.Duration(c.MaxSpeechSeconds) * time.Second
}

// ServiceParts splits TTSService into domain and service, falling back to
// tts.speak.
func (c InstanceConfig) ServiceParts() (domain, service string) {
	domain, service, ok := strings.Cut(c.TTSService, ".")
	if !ok || domain == "" || service == "" {
		return "tts", "speak"
	}
	return domain, service
}

// normalizeTargets splits comma separated entries, trims them and drops
// empties and duplicates.
func normalizeTargets(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, raw := range in {
		for _, part := range strings.Split(raw, ",") {
			t := strings.TrimSpace(part)
			if t == "" || seen[t] {
				continue
			}
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}
