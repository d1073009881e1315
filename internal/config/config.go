package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	v *viper.Viper
}

// New creates a new configuration instance
func New() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("/etc/clip-relay/")
	v.AddConfigPath("$HOME/.clip-relay")
	v.AddConfigPath("./configs")
	v.AddConfigPath(".")

	// Set defaults
	setDefaults(v)

	// Environment variables
	v.AutomaticEnv()
	v.SetEnvPrefix("CLIP_RELAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found, using defaults
	}

	return &Config{v: v}, nil
}

// NewFromViper creates a new configuration instance from an existing Viper instance
func NewFromViper(v *viper.Viper) *Config {
	return &Config{v: v}
}

// NewEmptyViper creates a new Viper instance with defaults
func NewEmptyViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	return v
}

// setDefaults sets the default configuration values
func setDefaults(v *viper.Viper) {
	// Tap defaults
	v.SetDefault("tap.mode", "proxy")
	v.SetDefault("tap.listen_address", "127.0.0.1:8787")
	v.SetDefault("tap.upstream", "")
	v.SetDefault("tap.capture_patterns", []string{"/api/feed", "/api/clips", "/api/project"})
	v.SetDefault("tap.blocked_domains", []string{
		"google-analytics.com",
		"segment.io",
		"sentry.io",
		"amplitude.com",
		"mixpanel.com",
		"doubleclick.net",
	})
	v.SetDefault("tap.max_capture_bytes", 1048576)

	// Webhook defaults
	v.SetDefault("webhook.endpoint", "")
	v.SetDefault("webhook.timeout", "30s")

	// Delivery defaults
	v.SetDefault("delivery.max_retries", 3)
	v.SetDefault("delivery.base_delay", "1s")

	// Failed queue defaults
	v.SetDefault("failed_queue.capacity", 50)
	v.SetDefault("failed_queue.trim_to", 20)

	// Sent cache defaults
	v.SetDefault("sent_cache.max_entries", 0)

	// Replay defaults
	v.SetDefault("replay.item_delay", "2s")
	v.SetDefault("replay.interval", "0s")

	// Health defaults
	v.SetDefault("health.interval", "5m")
	v.SetDefault("health.startup_delay", "10s")

	// State defaults
	v.SetDefault("state.backend", "sqlite")
	v.SetDefault("state.sqlite_path", "/data/clip-relay.db")
	v.SetDefault("state.mysql_dsn", "user:password@tcp(localhost:3306)/clip_relay")
	v.SetDefault("state.badger_dir", "/data/clip-relay-badger")

	// Control defaults
	v.SetDefault("control.listen_address", "127.0.0.1:8788")

	// Rescan defaults
	v.SetDefault("rescan.feed_url", "")

	// Inject defaults
	v.SetDefault("inject.audio_url_template", "https://cdn1.suno.ai/{id}.mp3")

	// Notify defaults
	v.SetDefault("notify.backend", "log")
	v.SetDefault("notify.smtp.address", "localhost:25")
	v.SetDefault("notify.smtp.from", "clip-relay@localhost")
	v.SetDefault("notify.smtp.to", "")
	v.SetDefault("notify.smtp.on_success", false)
	v.SetDefault("notify.smtp.subject_prefix", "[clip-relay]")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// GetString gets a string value from the configuration
func (c *Config) GetString(key string) string {
	return c.v.GetString(key)
}

// GetInt gets an integer value from the configuration
func (c *Config) GetInt(key string) int {
	return c.v.GetInt(key)
}

// GetFloat64 gets a float64 value from the configuration
func (c *Config) GetFloat64(key string) float64 {
	return c.v.GetFloat64(key)
}

// GetBool gets a boolean value from the configuration
func (c *Config) GetBool(key string) bool {
	return c.v.GetBool(key)
}

// GetStringSlice gets a string slice value from the configuration
func (c *Config) GetStringSlice(key string) []string {
	return c.v.GetStringSlice(key)
}

// GetDuration gets a duration value from the configuration
func (c *Config) GetDuration(key string) (time.Duration, error) {
	return time.ParseDuration(c.GetString(key))
}

// GetViper returns the underlying Viper instance
func (c *Config) GetViper() *viper.Viper {
	return c.v
}
