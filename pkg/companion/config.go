package companion

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config is the full server configuration, loaded from one YAML file with
// ${ENV} expansion in vendor settings.
type Config struct {
	Server      ServerConfig   `mapstructure:"server"`
	Session     SessionConfig  `mapstructure:"session"`
	Vendors     VendorsConfig  `mapstructure:"vendors"`
	Retry       RetryConfig    `mapstructure:"retry"`
	Memory      MemoryConfig   `mapstructure:"memory"`
	Dialogue    DialogueConfig `mapstructure:"dialogue"`
	Environment string         `mapstructure:"environment"`
	LogLevel    string         `mapstructure:"log_level"`
}

type ServerConfig struct {
	Addr                string `mapstructure:"addr"`
	WSPath              string `mapstructure:"ws_path"`
	MaxUtteranceBytes   int64  `mapstructure:"max_utterance_bytes"`
	HeartbeatIntervalMS int    `mapstructure:"heartbeat_interval_ms"`
	PongTimeoutMS       int    `mapstructure:"pong_timeout_ms"`
	WriteTimeoutMS      int    `mapstructure:"write_timeout_ms"`
	DrainTimeoutMS      int    `mapstructure:"drain_timeout_ms"`
}

type SessionConfig struct {
	IdleTimeoutMS   int `mapstructure:"idle_timeout_ms"`
	SweepIntervalMS int `mapstructure:"sweep_interval_ms"`
	CycleTimeoutMS  int `mapstructure:"cycle_timeout_ms"`
}

type VendorConfig struct {
	Provider string         `mapstructure:"provider"`
	Settings map[string]any `mapstructure:"settings"`
}

type VendorsConfig struct {
	STT VendorConfig `mapstructure:"stt"`
	TTS VendorConfig `mapstructure:"tts"`
	LLM VendorConfig `mapstructure:"llm"`
}

type RetryConfig struct {
	MaxAttempts       int `mapstructure:"max_attempts"`
	BaseDelayMS       int `mapstructure:"base_delay_ms"`
	MaxDelayMS        int `mapstructure:"max_delay_ms"`
	AttemptTimeoutMS  int `mapstructure:"attempt_timeout_ms"`
	BreakerThreshold  int `mapstructure:"breaker_threshold"`
	BreakerCooldownMS int `mapstructure:"breaker_cooldown_ms"`
}

type MemoryConfig struct {
	Path         string `mapstructure:"path"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

type DialogueConfig struct {
	BasePrompt    string `mapstructure:"base_prompt"`
	HistoryLimit  int    `mapstructure:"history_limit"`
	MaxSpeakChars int    `mapstructure:"max_speak_chars"`
	Modality      string `mapstructure:"modality"`
}

func LoadConfig(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.ws_path", "/ws")
	v.SetDefault("server.max_utterance_bytes", 10<<20)
	v.SetDefault("server.heartbeat_interval_ms", 30000)
	v.SetDefault("server.pong_timeout_ms", 75000)
	v.SetDefault("server.write_timeout_ms", 10000)
	v.SetDefault("server.drain_timeout_ms", 10000)
	v.SetDefault("session.idle_timeout_ms", 300000)
	v.SetDefault("session.sweep_interval_ms", 30000)
	v.SetDefault("session.cycle_timeout_ms", 60000)
	v.SetDefault("retry.max_attempts", 4)
	v.SetDefault("retry.base_delay_ms", 200)
	v.SetDefault("retry.max_delay_ms", 5000)
	v.SetDefault("retry.attempt_timeout_ms", 15000)
	v.SetDefault("retry.breaker_threshold", 3)
	v.SetDefault("retry.breaker_cooldown_ms", 30000)
	v.SetDefault("memory.path", "companion.db")
	v.SetDefault("memory.max_open_conns", 4)
	v.SetDefault("dialogue.history_limit", 12)
	v.SetDefault("dialogue.max_speak_chars", 600)
	v.SetDefault("dialogue.modality", "auto")
	v.SetDefault("environment", "development")
	v.SetDefault("log_level", "info")

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal: %w", err)
	}

	expandEnvStrings(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.Vendors.STT.Provider) == "" {
		return fmt.Errorf("vendors.stt.provider is required")
	}
	if strings.TrimSpace(c.Vendors.TTS.Provider) == "" {
		return fmt.Errorf("vendors.tts.provider is required")
	}
	if strings.TrimSpace(c.Vendors.LLM.Provider) == "" {
		return fmt.Errorf("vendors.llm.provider is required")
	}
	switch c.Dialogue.Modality {
	case "auto", "text":
	default:
		return fmt.Errorf("dialogue.modality must be auto or text, got %q", c.Dialogue.Modality)
	}
	return nil
}

func expandEnvStrings(cfg *Config) {
	cfg.Memory.Path = os.ExpandEnv(cfg.Memory.Path)
	cfg.Dialogue.BasePrompt = os.ExpandEnv(cfg.Dialogue.BasePrompt)
	cfg.Vendors.STT.Settings = expandSettings(cfg.Vendors.STT.Settings)
	cfg.Vendors.TTS.Settings = expandSettings(cfg.Vendors.TTS.Settings)
	cfg.Vendors.LLM.Settings = expandSettings(cfg.Vendors.LLM.Settings)
}

func expandSettings(settings map[string]any) map[string]any {
	if settings == nil {
		return nil
	}
	for k, v := range settings {
		settings[k] = expandAny(v)
	}
	return settings
}

func expandAny(v any) any {
	switch val := v.(type) {
	case string:
		return os.ExpandEnv(val)
	case []any:
		for i := range val {
			val[i] = expandAny(val[i])
		}
		return val
	case map[string]any:
		for k, v := range val {
			val[k] = expandAny(v)
		}
		return val
	default:
		return v
	}
}
