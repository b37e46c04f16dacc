package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the complete service configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Broadcast BroadcastConfig `mapstructure:"broadcast"`
	Stages    StagesConfig    `mapstructure:"stages"`
	Artifacts ArtifactsConfig `mapstructure:"artifacts"`
	Auth      AuthConfig      `mapstructure:"auth"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
}

// ServerConfig controls the HTTP listener
type ServerConfig struct {
	// Port is the listen address, e.g. ":8080"
	Port string `mapstructure:"port"`
}

// DatabaseConfig locates the episode archive
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// PipelineConfig controls task execution and retention
type PipelineConfig struct {
	// DeadlineSeconds bounds one full pipeline run
	DeadlineSeconds int `mapstructure:"deadline_seconds"`
	// TaskTTLMinutes is how long terminal tasks stay queryable before eviction
	TaskTTLMinutes int `mapstructure:"task_ttl_minutes"`
	// SweepIntervalSeconds is how often the eviction ticker fires
	SweepIntervalSeconds int `mapstructure:"sweep_interval_seconds"`
	// MaxListLimit clamps completed-task page sizes
	MaxListLimit int `mapstructure:"max_list_limit"`
}

// BroadcastConfig controls observer delivery
type BroadcastConfig struct {
	// QueueSize bounds each observer's snapshot queue
	QueueSize int `mapstructure:"queue_size"`
	// PingSeconds is the liveness ping interval on the stream endpoint
	PingSeconds int `mapstructure:"ping_seconds"`
}

// StagesConfig locates the external stage services
type StagesConfig struct {
	TranscriptURL string `mapstructure:"transcript_url"`
	LLMURL        string `mapstructure:"llm_url"`
	LLMModel      string `mapstructure:"llm_model"`
	TTSURL        string `mapstructure:"tts_url"`
	VoiceA        string `mapstructure:"voice_a"`
	VoiceB        string `mapstructure:"voice_b"`
}

// ArtifactsConfig controls the ephemeral audio store
type ArtifactsConfig struct {
	Dir        string `mapstructure:"dir"`
	TTLMinutes int    `mapstructure:"ttl_minutes"`
}

// AuthConfig holds the admin bearer-token secret
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
}

// RateLimitConfig controls the per-IP request limiter
type RateLimitConfig struct {
	Requests      int `mapstructure:"requests"`
	WindowSeconds int `mapstructure:"window_seconds"`
}

// Load reads configuration from PODCAST_-prefixed environment variables
// with sensible defaults for local use.
func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("server.port", ":8080")
	v.SetDefault("database.path", "./data/podcast.db")
	v.SetDefault("pipeline.deadline_seconds", 300)
	v.SetDefault("pipeline.task_ttl_minutes", 60)
	v.SetDefault("pipeline.sweep_interval_seconds", 60)
	v.SetDefault("pipeline.max_list_limit", 100)
	v.SetDefault("broadcast.queue_size", 16)
	v.SetDefault("broadcast.ping_seconds", 15)
	v.SetDefault("stages.transcript_url", "http://localhost:9001")
	v.SetDefault("stages.llm_url", "http://localhost:9002")
	v.SetDefault("stages.llm_model", "gpt-4o-mini")
	v.SetDefault("stages.tts_url", "http://localhost:9003")
	v.SetDefault("stages.voice_a", "alloy")
	v.SetDefault("stages.voice_b", "verse")
	v.SetDefault("artifacts.dir", "./data/audio")
	v.SetDefault("artifacts.ttl_minutes", 120)
	v.SetDefault("auth.jwt_secret", "change-me-in-production")
	v.SetDefault("ratelimit.requests", 60)
	v.SetDefault("ratelimit.window_seconds", 60)

	v.SetEnvPrefix("PODCAST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Deadline returns the pipeline deadline as a duration.
func (c *Config) Deadline() time.Duration {
	return time.Duration(c.Pipeline.DeadlineSeconds) * time.Second
}

// TaskTTL returns terminal-task retention as a duration.
func (c *Config) TaskTTL() time.Duration {
	return time.Duration(c.Pipeline.TaskTTLMinutes) * time.Minute
}

// SweepInterval returns the eviction ticker period.
func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.Pipeline.SweepIntervalSeconds) * time.Second
}

// ArtifactTTL returns artifact retention as a duration.
func (c *Config) ArtifactTTL() time.Duration {
	return time.Duration(c.Artifacts.TTLMinutes) * time.Minute
}

// PingInterval returns the stream liveness ping period.
func (c *Config) PingInterval() time.Duration {
	return time.Duration(c.Broadcast.PingSeconds) * time.Second
}

// RateLimitWindow returns the limiter window as a duration.
func (c *Config) RateLimitWindow() time.Duration {
	return time.Duration(c.RateLimit.WindowSeconds) * time.Second
}
