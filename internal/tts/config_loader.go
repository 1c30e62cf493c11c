package tts

import (
	"fmt"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// SetDefaults registers the daemon-level defaults on v.
func SetDefaults(v *viper.Viper) {
	cfg := DefaultConfig()

	v.SetDefault("listen", cfg.Listen)
	v.SetDefault("homeassistant.timeout", cfg.HomeAssistant.Timeout)

	v.SetDefault("local.enabled", cfg.Local.Enabled)
	v.SetDefault("local.name", cfg.Local.Name)
	v.SetDefault("local.engine", cfg.Local.Engine)
	v.SetDefault("local.sample_rate", cfg.Local.SampleRate)
	v.SetDefault("local.piper.binary", cfg.Local.Piper.Binary)
	v.SetDefault("local.piper.model_path", cfg.Local.Piper.ModelPath)
	v.SetDefault("local.piper.timeout", cfg.Local.Piper.Timeout)
	v.SetDefault("local.gtts.requests_per_minute", cfg.Local.GTTS.RequestsPerMinute)
	v.SetDefault("local.cache.memory_mb", cfg.Local.Cache.MemoryMB)
	v.SetDefault("local.cache.disk_mb", cfg.Local.Cache.DiskMB)
}

// LoadConfig reads the daemon configuration from v and validates it.
func LoadConfig(v *viper.Viper) (Config, error) {
	cfg := DefaultConfig()

	if v.IsSet("listen") {
		cfg.Listen = v.GetString("listen")
	}
	if v.IsSet("lock_file") {
		cfg.LockFile = v.GetString("lock_file")
	}

	// Home Assistant
	if v.IsSet("homeassistant.url") {
		cfg.HomeAssistant.URL = strings.TrimRight(v.GetString("homeassistant.url"), "/")
	}
	if v.IsSet("homeassistant.token") {
		cfg.HomeAssistant.Token = v.GetString("homeassistant.token")
	}
	if v.IsSet("homeassistant.timeout") {
		cfg.HomeAssistant.Timeout = v.GetDuration("homeassistant.timeout")
	}

	cfg.Local = loadLocalConfig(v)

	if err := expandPaths(&cfg); err != nil {
		return cfg, err
	}

	instances, err := loadInstances(v)
	if err != nil {
		return cfg, err
	}
	cfg.Instances = instances

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// loadLocalConfig loads the local speaker configuration from v.
func loadLocalConfig(v *viper.Viper) LocalConfig {
	cfg := DefaultLocalConfig()

	if v.IsSet("local.enabled") {
		cfg.Enabled = v.GetBool("local.enabled")
	}
	if v.IsSet("local.name") {
		cfg.Name = v.GetString("local.name")
	}
	if v.IsSet("local.engine") {
		cfg.Engine = v.GetString("local.engine")
	}
	if v.IsSet("local.sample_rate") {
		cfg.SampleRate = v.GetInt("local.sample_rate")
	}

	// Piper
	if v.IsSet("local.piper.binary") {
		cfg.Piper.Binary = v.GetString("local.piper.binary")
	}
	if v.IsSet("local.piper.model_path") {
		cfg.Piper.ModelPath = v.GetString("local.piper.model_path")
	}
	if v.IsSet("local.piper.config_path") {
		cfg.Piper.ConfigPath = v.GetString("local.piper.config_path")
	}
	if v.IsSet("local.piper.timeout") {
		cfg.Piper.Timeout = v.GetDuration("local.piper.timeout")
	}

	// gTTS
	if v.IsSet("local.gtts.slow") {
		cfg.GTTS.Slow = v.GetBool("local.gtts.slow")
	}
	if v.IsSet("local.gtts.requests_per_minute") {
		cfg.GTTS.RequestsPerMinute = v.GetInt("local.gtts.requests_per_minute")
	}

	// Cache
	if v.IsSet("local.cache.dir") {
		cfg.Cache.Dir = v.GetString("local.cache.dir")
	}
	if v.IsSet("local.cache.memory_mb") {
		cfg.Cache.MemoryMB = v.GetInt("local.cache.memory_mb")
	}
	if v.IsSet("local.cache.disk_mb") {
		cfg.Cache.DiskMB = v.GetInt("local.cache.disk_mb")
	}

	return cfg
}

// expandPaths resolves a leading ~ in every file path setting.
func expandPaths(cfg *Config) error {
	paths := []struct {
		key string
		val *string
	}{
		{"lock_file", &cfg.LockFile},
		{"local.piper.binary", &cfg.Local.Piper.Binary},
		{"local.piper.model_path", &cfg.Local.Piper.ModelPath},
		{"local.piper.config_path", &cfg.Local.Piper.ConfigPath},
		{"local.cache.dir", &cfg.Local.Cache.Dir},
	}
	for _, p := range paths {
		expanded, err := homedir.Expand(*p.val)
		if err != nil {
			return configErr("", p.key, *p.val, "%w", err)
		}
		*p.val = expanded
	}
	return nil
}

// loadInstances decodes the instances list. Each entry starts from
// DefaultInstanceConfig so omitted keys keep their defaults.
func loadInstances(v *viper.Viper) ([]InstanceConfig, error) {
	raw := v.Get("instances")
	if raw == nil {
		return nil, nil
	}

	entries, ok := raw.([]any)
	if !ok {
		return nil, configErr("", "instances", raw, "expected a list")
	}

	instances := make([]InstanceConfig, 0, len(entries))
	for i, entry := range entries {
		m, ok := toStringMap(entry)
		if !ok {
			return nil, configErr("", fmt.Sprintf("instances[%d]", i), entry, "expected a mapping")
		}

		inst, err := DecodeInstance(m)
		if err != nil {
			return nil, fmt.Errorf("instances[%d]: %w", i, err)
		}
		instances = append(instances, inst)
	}

	return instances, nil
}

// DecodeInstance builds an InstanceConfig from a raw mapping, applying
// defaults for missing keys. It does not validate.
func DecodeInstance(m map[string]any) (InstanceConfig, error) {
	inst := DefaultInstanceConfig()

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
		WeaklyTypedInput: true,
		Result:           &inst,
		TagName:          "mapstructure",
	})
	if err != nil {
		return inst, err
	}

	lowered := make(map[string]any, len(m))
	for k, val := range m {
		lowered[strings.ToLower(k)] = val
	}

	if err := decoder.Decode(lowered); err != nil {
		return inst, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	if opts, ok := lowered["default_options"]; ok && opts != nil {
		switch o := opts.(type) {
		case string:
			parsed, err := ParseOptions(o)
			if err != nil {
				return inst, configErr(inst.Name, "default_options", o, "%v", err)
			}
			inst.DefaultOptions = parsed
		default:
			m, ok := toStringMap(o)
			if !ok {
				return inst, configErr(inst.Name, "default_options", o, "expected a mapping or a JSON/YAML string")
			}
			inst.DefaultOptions = m
		}
	}

	return inst, nil
}

// toStringMap converts the map shapes produced by viper and yaml.v3 into
// map[string]any.
func toStringMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, val := range m {
			out[fmt.Sprint(k)] = val
		}
		return out, true
	default:
		return nil, false
	}
}
