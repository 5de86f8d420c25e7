// Package config provides configuration management for the gateway using Viper.
// It supports configuration from files, environment variables, and defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Default configuration values.
const (
	defaultServerPort      = 8080
	defaultServerTimeout   = 30 * time.Second
	defaultShutdownTimeout = 10 * time.Second
	defaultRolling12MiB    = 12 * 1024 * 1024
	defaultGraceTimeout    = 30 * time.Second
	defaultGracePeriod     = 5 * time.Second
	defaultSessionIdleTTL  = 5 * time.Minute
	defaultRateLimitPeriod = 1000
	defaultRateLimitBurst  = 20
)

// Config holds all configuration for the application.
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Logging      LoggingConfig      `mapstructure:"logging"`
	ReverseProxy ReverseProxyConfig `mapstructure:"reverse_proxy"`
	Buffer       BufferConfig       `mapstructure:"buffer"`
	User         UserConfig         `mapstructure:"user"`

	// Providers lists the upstream inputs this instance relays, each with
	// its connection-slot policy. Catalogue/playlist ingestion that maps
	// channels onto these providers is an external collaborator; this
	// section only carries the slot accounting inputs.
	Providers []ProviderInputConfig `mapstructure:"providers"`

	// Accounts is the static credential/entitlement list used when no
	// external user store is wired in.
	Accounts []AccountConfig `mapstructure:"accounts"`

	// Channels is the static virtual-channel catalogue used when no
	// external catalogue ingestion is wired in.
	Channels []ChannelConfig `mapstructure:"channels"`

	// SleepTimerMins caps the lifetime of a client stream (0 = unlimited).
	SleepTimerMins int `mapstructure:"sleep_timer_mins"`

	// CustomStreamResponsePath is a directory holding the four fallback
	// .ts clips (channel_unavailable, user_connections_exhausted,
	// provider_connections_exhausted, user_account_expired).
	CustomStreamResponsePath string `mapstructure:"custom_stream_response_path"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	BaseURL         string        `mapstructure:"base_url"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
	// AdminToken, if set, is the bearer token required on /api/v1/* routes.
	AdminToken string `mapstructure:"admin_token"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`  // debug, info, warn, error
	Format     string `mapstructure:"format"` // json, text
	AddSource  bool   `mapstructure:"add_source"`
	TimeFormat string `mapstructure:"time_format"`
}

// ReverseProxyConfig controls how upstream requests and responses are handled.
type ReverseProxyConfig struct {
	// DisabledHeader lists header names for upstream requests. It is loaded
	// but not applied: the stream handler strips only its fixed set
	// (Connection, Host) whatever this list holds.
	DisabledHeader []string        `mapstructure:"disabled_header"`
	// RewriteSecret is the 128-bit key used for HLS URL obfuscation.
	RewriteSecret string          `mapstructure:"rewrite_secret"`
	RateLimit     RateLimitConfig `mapstructure:"rate_limit"`
}

// RateLimitConfig configures the per-IP token bucket on the API router.
type RateLimitConfig struct {
	Enabled  bool `mapstructure:"enabled"`
	PeriodMs int  `mapstructure:"period_ms"`
	Burst    int  `mapstructure:"burst"`
}

// BufferConfig holds the streaming data plane's buffer and timing budgets.
type BufferConfig struct {
	// RollingBudget bounds the shared-stream burst buffer (default 12MiB).
	// Supports human-readable values like "12MiB", "500KB".
	RollingBudget ByteSize `mapstructure:"rolling_budget"`
	// GraceTimeout is the window within which a slot's grace allocation is
	// considered already consumed.
	GraceTimeout time.Duration `mapstructure:"grace_timeout"`
	// GracePeriod is how long a grace-period client streams before the
	// deferred exhaustion check re-evaluates connection counts.
	GracePeriod time.Duration `mapstructure:"grace_period_ms"`
	// SessionIdleTTL is how long an idle user session survives before the
	// cleanup sweep removes it. Supports human-readable values like "30d".
	SessionIdleTTL Duration `mapstructure:"session_idle_ttl"`
}

// UserConfig holds default per-user policy applied when a user's static
// credentials do not override it.
type UserConfig struct {
	MaxConnections int    `mapstructure:"max_connections"`
	Proxy          string `mapstructure:"proxy"` // "reverse" or "redirect"
	Status         string `mapstructure:"status"`
}

// ProviderInputConfig describes one upstream input's connection-slot policy.
// Aliases are themselves full ProviderInputConfig entries, each with its own
// independent max_connections/priority/exp_date, so a failover alias can
// carry a different policy than its parent.
type ProviderInputConfig struct {
	Name           string                `mapstructure:"name"`
	MaxConnections int                   `mapstructure:"max_connections"` // 0 = unlimited
	Priority       int16                 `mapstructure:"priority"`
	ExpDate        *TimeUnix             `mapstructure:"exp_date"`
	Aliases        []ProviderInputConfig `mapstructure:"aliases"`
}

// AccountConfig is one static subscriber credential/entitlement entry.
type AccountConfig struct {
	Username       string `mapstructure:"username"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	Status         string `mapstructure:"status"` // Active, Expired, Disabled
	ExpDate        *TimeUnix `mapstructure:"exp_date"`
}

// ChannelConfig is one static virtual-channel catalogue entry mapping a
// virtual ID onto a provider's upstream URL.
type ChannelConfig struct {
	VirtualID  uint32 `mapstructure:"virtual_id"`
	TargetID   string `mapstructure:"target_id"`
	ProviderID string `mapstructure:"provider_id"`
	Cluster    string `mapstructure:"cluster"`   // live, video, series
	ItemType   string `mapstructure:"item_type"` // live_hls, live_dash, live, video, series
	Title      string `mapstructure:"title"`
	Group      string `mapstructure:"group"`
	URL        string `mapstructure:"url"`
	LogoURL    string `mapstructure:"logo_url"`
	Shared     bool   `mapstructure:"shared"`
}

// Load reads configuration from file and environment variables.
// Environment variables take precedence over file configuration.
// Environment variables are prefixed with GATEWAY_ and use underscores for
// nesting, e.g. GATEWAY_SERVER_PORT=8080.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	SetDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/streamgate")
		v.AddConfigPath("$HOME/.streamgate")
	}

	v.SetEnvPrefix("GATEWAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// SetDefaults configures default values for all configuration options.
// This should be called before reading the config file to ensure defaults
// are in place.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", defaultServerPort)
	v.SetDefault("server.base_url", "")
	v.SetDefault("server.read_timeout", defaultServerTimeout)
	v.SetDefault("server.write_timeout", defaultServerTimeout)
	v.SetDefault("server.shutdown_timeout", defaultShutdownTimeout)
	v.SetDefault("server.cors_origins", []string{"*"})

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	v.SetDefault("reverse_proxy.disabled_header", []string{"Connection", "Host"})
	v.SetDefault("reverse_proxy.rewrite_secret", "")
	v.SetDefault("reverse_proxy.rate_limit.enabled", true)
	v.SetDefault("reverse_proxy.rate_limit.period_ms", defaultRateLimitPeriod)
	v.SetDefault("reverse_proxy.rate_limit.burst", defaultRateLimitBurst)

	v.SetDefault("buffer.rolling_budget", defaultRolling12MiB)
	v.SetDefault("buffer.grace_timeout", defaultGraceTimeout)
	v.SetDefault("buffer.grace_period_ms", defaultGracePeriod)
	v.SetDefault("buffer.session_idle_ttl", defaultSessionIdleTTL.String())

	v.SetDefault("user.max_connections", 1)
	v.SetDefault("user.proxy", "reverse")
	v.SetDefault("user.status", "Active")

	v.SetDefault("sleep_timer_mins", 0)
	v.SetDefault("custom_stream_response_path", "")
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	const maxPort = 65535
	if c.Server.Port < 1 || c.Server.Port > maxPort {
		return fmt.Errorf("server.port must be between 1 and %d", maxPort)
	}

	validLevels := map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: trace, debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	if c.User.Proxy != "reverse" && c.User.Proxy != "redirect" {
		return fmt.Errorf("user.proxy must be one of: reverse, redirect")
	}

	return nil
}

// Address returns the server address in host:port format.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
