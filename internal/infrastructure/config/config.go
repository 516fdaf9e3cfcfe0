package config

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App      AppConfig
	Redis    RedisConfig
	Log      LogConfig
	HTTP     HTTPConfig
	Signing  SigningConfig
	Session  SessionConfig
	Webhook  WebhookConfig
	Upstream UpstreamConfig
	Cache    CacheConfig
	Click    ClickConfig
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
	Port string
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxBodySize       int64
	RateLimitEnabled  bool
	RateLimitRequests int
	RateLimitWindow   time.Duration
	CORSAllowOrigins  []string
	TrustedProxies    []string
}

// SigningConfig holds the symmetric signing key for session and state tokens.
// The key is configured as standard base64; anything else is a startup error.
type SigningConfig struct {
	Key    string // base64-encoded, >= 32 bytes decoded
	Issuer string
}

// DecodeKey decodes the configured signing key and enforces the minimum
// entropy length.
func (s SigningConfig) DecodeKey() ([]byte, error) {
	if s.Key == "" {
		return nil, fmt.Errorf("signing.key is required")
	}
	raw, err := base64.StdEncoding.DecodeString(s.Key)
	if err != nil {
		return nil, fmt.Errorf("signing.key must be standard base64: %w", err)
	}
	if len(raw) < 32 {
		return nil, fmt.Errorf("signing.key must decode to at least 32 bytes, got %d", len(raw))
	}
	return raw, nil
}

// SessionConfig holds session lifecycle settings
type SessionConfig struct {
	TTL             time.Duration // session record TTL, refreshed on update
	TokenTTL        time.Duration // signed session token lifetime
	StateTTL        time.Duration // CSRF state token lifetime
	AuthorizeURL    string        // third-party authorization endpoint
	CallbackBaseURL string        // our callback URL, receives ?state=
	PartnerClientID string        // client identifier sent to the third party
}

// WebhookConfig holds the shared secret for the partner conversion webhook
type WebhookConfig struct {
	Secret string
}

// UpstreamConfig holds settings for the third-party statistics API
type UpstreamConfig struct {
	BaseURL        string
	Token          string
	Timeout        time.Duration
	MaxRequests    int           // sliding-window capacity per endpoint
	Window         time.Duration // sliding-window length
	DefaultBackoff time.Duration // backoff applied on a 429 without Retry-After
	RetryBase      time.Duration // first retry delay, doubles per attempt
	MaxAttempts    int
}

// CacheConfig holds the two cache tiers' settings
type CacheConfig struct {
	TTL         time.Duration // logical freshness of a cached value
	StaleWindow time.Duration // how long past TTL a value may serve as stale fallback
	LocalTTL    time.Duration // local tier freshness
	LocalSize   int           // local tier entry bound
}

// ClickConfig holds click recording settings
type ClickConfig struct {
	QueueSize int // bounded buffer for fire-and-forget click writes
}

// Load loads configuration from TOML file and environment variables.
// Priority (highest to lowest):
// 1. Environment variables with ENERCOMPARE_ prefix (e.g. ENERCOMPARE_SIGNING_KEY)
// 2. config.toml
// 3. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("./backend")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults and env vars
	}

	v.SetEnvPrefix("ENERCOMPARE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:       v.GetDuration("http.read_timeout"),
			WriteTimeout:      v.GetDuration("http.write_timeout"),
			IdleTimeout:       v.GetDuration("http.idle_timeout"),
			MaxBodySize:       v.GetInt64("http.max_body_size"),
			RateLimitEnabled:  v.GetBool("http.rate_limit_enabled"),
			RateLimitRequests: v.GetInt("http.rate_limit_requests"),
			RateLimitWindow:   v.GetDuration("http.rate_limit_window"),
			CORSAllowOrigins:  v.GetStringSlice("http.cors_allow_origins"),
			TrustedProxies:    v.GetStringSlice("http.trusted_proxies"),
		},
		Signing: SigningConfig{
			Key:    v.GetString("signing.key"),
			Issuer: v.GetString("signing.issuer"),
		},
		Session: SessionConfig{
			TTL:             v.GetDuration("session.ttl"),
			TokenTTL:        v.GetDuration("session.token_ttl"),
			StateTTL:        v.GetDuration("session.state_ttl"),
			AuthorizeURL:    v.GetString("session.authorize_url"),
			CallbackBaseURL: v.GetString("session.callback_base_url"),
			PartnerClientID: v.GetString("session.partner_client_id"),
		},
		Webhook: WebhookConfig{
			Secret: v.GetString("webhook.secret"),
		},
		Upstream: UpstreamConfig{
			BaseURL:        v.GetString("upstream.base_url"),
			Token:          v.GetString("upstream.token"),
			Timeout:        v.GetDuration("upstream.timeout"),
			MaxRequests:    v.GetInt("upstream.max_requests"),
			Window:         v.GetDuration("upstream.window"),
			DefaultBackoff: v.GetDuration("upstream.default_backoff"),
			RetryBase:      v.GetDuration("upstream.retry_base"),
			MaxAttempts:    v.GetInt("upstream.max_attempts"),
		},
		Cache: CacheConfig{
			TTL:         v.GetDuration("cache.ttl"),
			StaleWindow: v.GetDuration("cache.stale_window"),
			LocalTTL:    v.GetDuration("cache.local_ttl"),
			LocalSize:   v.GetInt("cache.local_size"),
		},
		Click: ClickConfig{
			QueueSize: v.GetInt("click.queue_size"),
		},
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "enercompare-backend"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "8080"
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 15 * time.Second
	}
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 15 * time.Second
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.HTTP.MaxBodySize == 0 {
		cfg.HTTP.MaxBodySize = 1 << 20 // webhook payloads are small
	}
	if cfg.HTTP.RateLimitRequests == 0 {
		cfg.HTTP.RateLimitRequests = 100
	}
	if cfg.HTTP.RateLimitWindow == 0 {
		cfg.HTTP.RateLimitWindow = time.Minute
	}
	if cfg.Signing.Issuer == "" {
		cfg.Signing.Issuer = "enercompare-backend"
	}
	if cfg.Session.TTL == 0 {
		cfg.Session.TTL = 24 * time.Hour
	}
	if cfg.Session.TokenTTL == 0 {
		cfg.Session.TokenTTL = 24 * time.Hour
	}
	if cfg.Session.StateTTL == 0 {
		cfg.Session.StateTTL = 10 * time.Minute
	}
	if cfg.Upstream.Timeout == 0 {
		cfg.Upstream.Timeout = 10 * time.Second
	}
	if cfg.Upstream.MaxRequests == 0 {
		cfg.Upstream.MaxRequests = 30
	}
	if cfg.Upstream.Window == 0 {
		cfg.Upstream.Window = time.Minute
	}
	if cfg.Upstream.DefaultBackoff == 0 {
		cfg.Upstream.DefaultBackoff = 60 * time.Second
	}
	if cfg.Upstream.RetryBase == 0 {
		cfg.Upstream.RetryBase = time.Second
	}
	if cfg.Upstream.MaxAttempts == 0 {
		cfg.Upstream.MaxAttempts = 3
	}
	if cfg.Cache.TTL == 0 {
		cfg.Cache.TTL = time.Hour
	}
	if cfg.Cache.StaleWindow == 0 {
		cfg.Cache.StaleWindow = 24 * time.Hour
	}
	if cfg.Cache.LocalTTL == 0 {
		cfg.Cache.LocalTTL = 5 * time.Minute
	}
	if cfg.Cache.LocalSize == 0 {
		cfg.Cache.LocalSize = 256
	}
	if cfg.Click.QueueSize == 0 {
		cfg.Click.QueueSize = 1024
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	if c.Signing.Key != "" {
		if _, err := c.Signing.DecodeKey(); err != nil {
			return err
		}
	}

	// Production-specific validations
	if c.App.Env == "production" {
		if c.Signing.Key == "" {
			return fmt.Errorf("signing.key is required in production")
		}
		if c.Webhook.Secret == "" {
			return fmt.Errorf("webhook.secret is required in production")
		}
		if c.Upstream.BaseURL == "" {
			return fmt.Errorf("upstream.base_url is required in production")
		}
		if c.Upstream.Token == "" {
			return fmt.Errorf("upstream.token is required in production")
		}
		if c.Session.AuthorizeURL == "" {
			return fmt.Errorf("session.authorize_url is required in production")
		}
		if c.Session.CallbackBaseURL == "" {
			return fmt.Errorf("session.callback_base_url is required in production")
		}
		for _, origin := range c.HTTP.CORSAllowOrigins {
			if origin == "*" {
				return fmt.Errorf("cors_allow_origins cannot be '*' in production (use specific origins)")
			}
		}
	}

	if c.Upstream.MaxAttempts < 1 {
		return fmt.Errorf("upstream.max_attempts must be at least 1")
	}
	if c.Cache.LocalSize < 1 {
		return fmt.Errorf("cache.local_size must be positive")
	}

	return nil
}

// Addr returns the Redis address in host:port form
func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// IsProduction reports whether the app runs in the production environment
func (a *AppConfig) IsProduction() bool {
	return a.Env == "production"
}
