// Package config loads and validates gateway configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Auth     AuthConfig     `mapstructure:"auth"`
	DB       DBConfig       `mapstructure:"db"`
	Fallback FallbackConfig `mapstructure:"fallback"`
	Backend  BackendConfig  `mapstructure:"backend"`
	LLM      LLMConfig      `mapstructure:"llm"`
	Notify   NotifyConfig   `mapstructure:"notify"`
	Blob     BlobConfig     `mapstructure:"blob"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port           int `mapstructure:"port"`
	RequestTimeout int `mapstructure:"request_timeout_seconds"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// DBConfig controls access to the primary signup store. An empty DSN
// switches the service into fallback-only mode.
type DBConfig struct {
	DSN             string `mapstructure:"dsn"`
	Table           string `mapstructure:"table"`
	MaxConns        int32  `mapstructure:"max_conns"`
	MinConns        int32  `mapstructure:"min_conns"`
	ProbeTimeoutSec int    `mapstructure:"probe_timeout_seconds"`
}

// FallbackConfig sets the local append-only store location.
type FallbackConfig struct {
	Path string `mapstructure:"path"`
}

// BackendConfig points at the analysis backend deployment.
type BackendConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// LLMConfig configures the streaming completion endpoint.
type LLMConfig struct {
	CompletionURL string `mapstructure:"completion_url"`
	Model         string `mapstructure:"model"`
	SystemPrompt  string `mapstructure:"system_prompt"`
}

// NotifyConfig holds metadata for signup notifications.
type NotifyConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
	AckFrom   string `mapstructure:"ack_from"`
}

// BlobConfig selects the upload archive provider.
type BlobConfig struct {
	Provider  string `mapstructure:"provider"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	BaseDir   string `mapstructure:"base_dir"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("LEADGATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout_seconds", 60)
	v.SetDefault("db.table", "signups")
	v.SetDefault("db.max_conns", 8)
	v.SetDefault("db.probe_timeout_seconds", 2)
	v.SetDefault("fallback.path", "data/signups.json")
	v.SetDefault("backend.base_url", "https://carlist-backend.fly.dev")
	v.SetDefault("backend.timeout_seconds", 300)
	v.SetDefault("llm.completion_url", "https://api.openai.com/v1/chat/completions")
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("blob.provider", "noop")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Server.RequestTimeout <= 0 {
		return fmt.Errorf("server.request_timeout_seconds must be > 0")
	}
	if c.Fallback.Path == "" {
		return fmt.Errorf("fallback.path must be set")
	}
	if c.Backend.BaseURL == "" {
		return fmt.Errorf("backend.base_url must be set")
	}
	if c.Backend.TimeoutSeconds <= 0 {
		return fmt.Errorf("backend.timeout_seconds must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if c.Blob.Provider == "gcs" && c.Blob.GCSBucket == "" {
		return fmt.Errorf("blob.gcs_bucket must be set when blob.provider is gcs")
	}
	if c.Blob.Provider == "local" && c.Blob.BaseDir == "" {
		return fmt.Errorf("blob.base_dir must be set when blob.provider is local")
	}
	return nil
}

// BackendTimeout converts the analysis timeout config into a duration.
func (c Config) BackendTimeout() time.Duration {
	return time.Duration(c.Backend.TimeoutSeconds) * time.Second
}

// ProbeTimeout converts the capability probe budget into a duration.
func (c Config) ProbeTimeout() time.Duration {
	return time.Duration(c.DB.ProbeTimeoutSec) * time.Second
}
