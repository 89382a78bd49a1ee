package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Whop     WhopConfig     `yaml:"whop"`
	Email    EmailConfig    `yaml:"email"`
	Billing  BillingConfig  `yaml:"billing"`
	Auth     AuthConfig     `yaml:"auth"`
	Sending  SendingConfig  `yaml:"sending"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host                string   `yaml:"host"`
	Port                int      `yaml:"port"`
	ReadTimeoutSeconds  int      `yaml:"read_timeout_seconds"`
	WriteTimeoutSeconds int      `yaml:"write_timeout_seconds"`
	AllowedOrigins      []string `yaml:"allowed_origins"`
}

// Addr returns host:port for http.Server.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DatabaseConfig holds Postgres settings
type DatabaseConfig struct {
	URL          string `yaml:"url"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
	AutoMigrate  bool   `yaml:"auto_migrate"`
}

// RedisConfig holds Redis settings. An empty URL disables Redis; locks then
// fall back to Postgres advisory locks and sessions to process memory.
type RedisConfig struct {
	URL            string `yaml:"url"`
	LockTTLMinutes int    `yaml:"lock_ttl_minutes"`
}

// LockTTL returns the send lock expiry.
func (c RedisConfig) LockTTL() time.Duration {
	return time.Duration(c.LockTTLMinutes) * time.Minute
}

// WhopConfig holds Whop API and OAuth credentials
type WhopConfig struct {
	AppID          string `yaml:"app_id"`
	APIKey         string `yaml:"api_key"`
	ClientSecret   string `yaml:"client_secret"`
	CompanyID      string `yaml:"company_id"`
	WebhookSecret  string `yaml:"webhook_secret"`
	BaseURL        string `yaml:"base_url"`
	AuthorizeURL   string `yaml:"authorize_url"`
	TokenURL       string `yaml:"token_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	MaxRetries     int    `yaml:"max_retries"`
}

// Timeout returns the Whop API timeout as a duration
func (c WhopConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// EmailConfig selects and configures the transactional email provider
type EmailConfig struct {
	Provider          string    `yaml:"provider"` // "resend", "ses" or "noop"
	ResendAPIKey      string    `yaml:"resend_api_key"`
	WebhookSecret     string    `yaml:"webhook_secret"`
	DefaultDomain     string    `yaml:"default_domain"`
	DefaultSenderName string    `yaml:"default_sender_name"`
	DefaultFromName   string    `yaml:"default_from_name"`
	SES               SESConfig `yaml:"ses"`
}

// SESConfig holds AWS SES credentials
type SESConfig struct {
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Region    string `yaml:"region"`
}

// PlanConfig maps a plan keyword to its Whop plan id and monthly allowance.
type PlanConfig struct {
	WhopPlanID   string `yaml:"whop_plan_id"`
	MonthlyLimit int    `yaml:"monthly_limit"`
}

// BillingConfig holds plan configuration
type BillingConfig struct {
	Plans       map[string]PlanConfig `yaml:"plans"`
	RedirectURL string                `yaml:"redirect_url"`
}

// AuthConfig holds Whop OAuth session configuration
type AuthConfig struct {
	Enabled       bool   `yaml:"enabled"`
	BaseURL       string `yaml:"base_url"`
	SessionSecret string `yaml:"session_secret"`
	CookieName    string `yaml:"cookie_name"`
	CookieMaxAge  int    `yaml:"cookie_max_age"`
	SecureCookies bool   `yaml:"secure_cookies"`
}

// SendingConfig tunes the campaign send loop
type SendingConfig struct {
	RatePerSecond         float64 `yaml:"rate_per_second"`
	Burst                 int     `yaml:"burst"`
	SenderNameMaxAttempts int     `yaml:"sender_name_max_attempts"`
}

// LogConfig holds logger settings
type LogConfig struct {
	Level     string `yaml:"level"`
	RedactPII *bool  `yaml:"redact_pii"`
}

// ShouldRedactPII defaults to true when unset.
func (c LogConfig) ShouldRedactPII() bool {
	return c.RedactPII == nil || *c.RedactPII
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// Default returns a configuration with only defaults applied.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

func (cfg *Config) applyDefaults() {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.ReadTimeoutSeconds == 0 {
		cfg.Server.ReadTimeoutSeconds = 30
	}
	// Sends run inside the request, so the write timeout is generous.
	if cfg.Server.WriteTimeoutSeconds == 0 {
		cfg.Server.WriteTimeoutSeconds = 600
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 20
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Redis.LockTTLMinutes == 0 {
		cfg.Redis.LockTTLMinutes = 30
	}
	if cfg.Whop.BaseURL == "" {
		cfg.Whop.BaseURL = "https://api.whop.com/api/v5"
	}
	if cfg.Whop.AuthorizeURL == "" {
		cfg.Whop.AuthorizeURL = "https://whop.com/oauth"
	}
	if cfg.Whop.TokenURL == "" {
		cfg.Whop.TokenURL = "https://api.whop.com/api/v5/oauth/token"
	}
	if cfg.Whop.TimeoutSeconds == 0 {
		cfg.Whop.TimeoutSeconds = 30
	}
	if cfg.Email.Provider == "" {
		cfg.Email.Provider = "resend"
	}
	if cfg.Email.DefaultDomain == "" {
		cfg.Email.DefaultDomain = "flowmail.app"
	}
	if cfg.Email.DefaultSenderName == "" {
		cfg.Email.DefaultSenderName = "noreply"
	}
	if cfg.Email.DefaultFromName == "" {
		cfg.Email.DefaultFromName = "FlowMail"
	}
	if cfg.Email.SES.Region == "" {
		cfg.Email.SES.Region = "us-east-1"
	}
	if cfg.Billing.Plans == nil {
		cfg.Billing.Plans = map[string]PlanConfig{}
	}
	for name, limit := range map[string]int{"free": 1000, "pro": 25000, "business": 100000} {
		p := cfg.Billing.Plans[name]
		if p.MonthlyLimit == 0 {
			p.MonthlyLimit = limit
		}
		cfg.Billing.Plans[name] = p
	}
	if cfg.Auth.CookieName == "" {
		cfg.Auth.CookieName = "flowmail_session"
	}
	if cfg.Auth.CookieMaxAge == 0 {
		cfg.Auth.CookieMaxAge = 7 * 24 * 3600
	}
	if cfg.Sending.RatePerSecond == 0 {
		cfg.Sending.RatePerSecond = 10
	}
	if cfg.Sending.Burst == 0 {
		cfg.Sending.Burst = 1
	}
	if cfg.Sending.SenderNameMaxAttempts == 0 {
		cfg.Sending.SenderNameMaxAttempts = 50
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}

// LoadFromEnv loads configuration with environment variable overrides.
// It automatically loads a .env file (if present) before reading env vars,
// so secrets can live in .env locally and in real env vars in production.
// A missing config file is tolerated; defaults plus env vars are used.
func LoadFromEnv(path string) (*Config, error) {
	// Load .env file if it exists (no error if missing)
	_ = godotenv.Load()

	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		cfg, err = Default(), nil
	}
	if err != nil {
		return nil, err
	}

	setString(&cfg.Database.URL, "DATABASE_URL")
	setString(&cfg.Redis.URL, "REDIS_URL")

	setString(&cfg.Whop.AppID, "WHOP_APP_ID")
	setString(&cfg.Whop.APIKey, "WHOP_API_KEY")
	setString(&cfg.Whop.ClientSecret, "WHOP_CLIENT_SECRET")
	setString(&cfg.Whop.CompanyID, "WHOP_COMPANY_ID")
	setString(&cfg.Whop.WebhookSecret, "WHOP_WEBHOOK_SECRET")
	setString(&cfg.Whop.BaseURL, "WHOP_BASE_URL")

	setString(&cfg.Email.Provider, "EMAIL_PROVIDER")
	setString(&cfg.Email.ResendAPIKey, "RESEND_API_KEY")
	setString(&cfg.Email.WebhookSecret, "RESEND_WEBHOOK_SECRET")
	setString(&cfg.Email.DefaultDomain, "EMAIL_DEFAULT_DOMAIN")
	setString(&cfg.Email.SES.AccessKey, "AWS_SES_ACCESS_KEY")
	setString(&cfg.Email.SES.SecretKey, "AWS_SES_SECRET_KEY")
	setString(&cfg.Email.SES.Region, "AWS_SES_REGION")

	if v := os.Getenv("WHOP_PLAN_PRO"); v != "" {
		p := cfg.Billing.Plans["pro"]
		p.WhopPlanID = v
		cfg.Billing.Plans["pro"] = p
	}
	if v := os.Getenv("WHOP_PLAN_BUSINESS"); v != "" {
		p := cfg.Billing.Plans["business"]
		p.WhopPlanID = v
		cfg.Billing.Plans["business"] = p
	}

	setString(&cfg.Auth.SessionSecret, "SESSION_SECRET")
	setString(&cfg.Auth.BaseURL, "AUTH_BASE_URL")
	if v := os.Getenv("AUTH_ENABLED"); v != "" {
		cfg.Auth.Enabled, _ = strconv.ParseBool(v)
	}

	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	setString(&cfg.Log.Level, "LOG_LEVEL")

	return cfg, nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// Validate reports settings the server cannot start without.
func (cfg *Config) Validate() error {
	var problems []string
	if cfg.Database.URL == "" {
		problems = append(problems, "database url is required (DATABASE_URL)")
	}
	switch cfg.Email.Provider {
	case "resend":
		if cfg.Email.ResendAPIKey == "" {
			problems = append(problems, "resend api key is required (RESEND_API_KEY)")
		}
	case "ses":
		if cfg.Email.SES.Region == "" {
			problems = append(problems, "ses region is required (AWS_SES_REGION)")
		}
	case "noop":
	default:
		problems = append(problems, fmt.Sprintf("unknown email provider %q", cfg.Email.Provider))
	}
	if cfg.Auth.Enabled {
		if cfg.Whop.AppID == "" || cfg.Whop.ClientSecret == "" {
			problems = append(problems, "whop app id and client secret are required when auth is enabled")
		}
		if cfg.Auth.BaseURL == "" {
			problems = append(problems, "auth base url is required when auth is enabled (AUTH_BASE_URL)")
		}
	}
	if cfg.Sending.RatePerSecond < 0 {
		problems = append(problems, "sending rate_per_second must not be negative")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}
