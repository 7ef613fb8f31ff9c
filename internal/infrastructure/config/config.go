package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App       AppConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	Log       LogConfig
	HTTP      HTTPConfig
	Stripe    StripeConfig
	Webhook   WebhookConfig
	Ledger    LedgerConfig
	Mail      MailConfig
	Scheduler SchedulerConfig
	Swagger   SwaggerConfig
	Telemetry TelemetryConfig
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
	Port string
}

// IsProduction reports whether the app runs with production safeguards
func (a AppConfig) IsProduction() bool {
	return a.Env == "production"
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // in minutes
	ConnMaxIdleTime int // in minutes
	// AutoMigrate applies the embedded schema at startup
	AutoMigrate bool
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
	// AllowInMemoryFallback keeps the server up with per-process stores when Redis is down
	AllowInMemoryFallback bool
}

// JWTConfig holds the settings for validating bearer tokens issued elsewhere
type JWTConfig struct {
	Secret string
	Issuer string
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout              time.Duration
	WriteTimeout             time.Duration
	IdleTimeout              time.Duration
	MaxHeaderBytes           int
	MaxBodySize              int64
	RateLimitEnabled         bool
	RateLimitRequests        int
	RateLimitWindow          time.Duration
	WebhookRateLimitRequests int
	WebhookRateLimitWindow   time.Duration
	CORSAllowOrigins         []string
	CORSAllowMethods         []string
	CORSAllowHeaders         []string
	TrustedProxies           []string
}

// StripeConfig holds payment gateway credentials and client behavior
type StripeConfig struct {
	SecretKey         string
	WebhookSecret     string
	Currency          string
	HTTPTimeout       time.Duration
	MaxNetworkRetries int
}

// WebhookConfig holds webhook ingestion settings
type WebhookConfig struct {
	// AllowInsecure processes unsigned events when no webhook secret is configured (development only)
	AllowInsecure   bool
	RetryAttempts   int
	RetryBaseDelay  time.Duration
	IdempotencyTTL  time.Duration
	MaxPayloadBytes int64
}

// LedgerConfig holds the business parameters of payment application and commissions
type LedgerConfig struct {
	LateFeeRate                 decimal.Decimal
	CommissionWeightDownPayment decimal.Decimal
	CommissionWeightContract    decimal.Decimal
	CommissionWeightSettlement  decimal.Decimal
}

// MailConfig holds SMTP settings for notification emails
type MailConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
	// OwnerAddress receives internal notifications such as refund requests
	OwnerAddress string
}

// SchedulerConfig holds background job configuration
type SchedulerConfig struct {
	OverdueSweepEnabled  bool
	OverdueSweepInterval time.Duration
	JobTimeout           time.Duration
}

// SwaggerConfig holds Swagger documentation endpoint configuration
type SwaggerConfig struct {
	Enabled     bool     // Whether to enable Swagger endpoint
	RequireAuth bool     // Require authentication to access Swagger
	AllowedIPs  []string // IP whitelist (empty = allow all)
}

// TelemetryConfig holds OpenTelemetry configuration
type TelemetryConfig struct {
	Enabled           bool    // Whether to enable OpenTelemetry
	CollectorEndpoint string  // OTEL Collector endpoint (e.g., "localhost:4317")
	SamplingRatio     float64 // Sampling ratio (0.0-1.0, 1.0 = 100%)
	ServiceName       string  // Service name for traces
	Insecure          bool    // Use insecure (non-TLS) connection (development only)
	DBTraceEnabled    bool
	DBSlowQueryThresh time.Duration
}

// Load loads configuration from TOML file and environment variables
// Priority (highest to lowest):
// 1. Environment variables with INMO_ prefix (e.g., INMO_STRIPE_WEBHOOK_SECRET)
// 2. config.toml
// 3. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix("INMO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	ledgerCfg, err := readLedger(v)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		Database: DatabaseConfig{
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			SSLMode:         v.GetString("database.sslmode"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetInt("database.conn_max_lifetime"),
			ConnMaxIdleTime: v.GetInt("database.conn_max_idle_time"),
			AutoMigrate:     v.GetBool("database.auto_migrate"),
		},
		Redis: RedisConfig{
			Enabled:               v.GetBool("redis.enabled"),
			Host:                  v.GetString("redis.host"),
			Port:                  v.GetInt("redis.port"),
			Password:              v.GetString("redis.password"),
			DB:                    v.GetInt("redis.db"),
			AllowInMemoryFallback: v.GetBool("redis.allow_in_memory_fallback"),
		},
		JWT: JWTConfig{
			Secret: v.GetString("jwt.secret"),
			Issuer: v.GetString("jwt.issuer"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:              v.GetDuration("http.read_timeout"),
			WriteTimeout:             v.GetDuration("http.write_timeout"),
			IdleTimeout:              v.GetDuration("http.idle_timeout"),
			MaxHeaderBytes:           v.GetInt("http.max_header_bytes"),
			MaxBodySize:              v.GetInt64("http.max_body_size"),
			RateLimitEnabled:         v.GetBool("http.rate_limit_enabled"),
			RateLimitRequests:        v.GetInt("http.rate_limit_requests"),
			RateLimitWindow:          v.GetDuration("http.rate_limit_window"),
			WebhookRateLimitRequests: v.GetInt("http.webhook_rate_limit_requests"),
			WebhookRateLimitWindow:   v.GetDuration("http.webhook_rate_limit_window"),
			CORSAllowOrigins:         v.GetStringSlice("http.cors_allow_origins"),
			CORSAllowMethods:         v.GetStringSlice("http.cors_allow_methods"),
			CORSAllowHeaders:         v.GetStringSlice("http.cors_allow_headers"),
			TrustedProxies:           v.GetStringSlice("http.trusted_proxies"),
		},
		Stripe: StripeConfig{
			SecretKey:         v.GetString("stripe.secret_key"),
			WebhookSecret:     v.GetString("stripe.webhook_secret"),
			Currency:          v.GetString("stripe.currency"),
			HTTPTimeout:       v.GetDuration("stripe.http_timeout"),
			MaxNetworkRetries: v.GetInt("stripe.max_network_retries"),
		},
		Webhook: WebhookConfig{
			AllowInsecure:   v.GetBool("webhook.allow_insecure"),
			RetryAttempts:   v.GetInt("webhook.retry_attempts"),
			RetryBaseDelay:  v.GetDuration("webhook.retry_base_delay"),
			IdempotencyTTL:  v.GetDuration("webhook.idempotency_ttl"),
			MaxPayloadBytes: v.GetInt64("webhook.max_payload_bytes"),
		},
		Ledger: ledgerCfg,
		Mail: MailConfig{
			Enabled:      v.GetBool("mail.enabled"),
			Host:         v.GetString("mail.host"),
			Port:         v.GetInt("mail.port"),
			Username:     v.GetString("mail.username"),
			Password:     v.GetString("mail.password"),
			From:         v.GetString("mail.from"),
			FromName:     v.GetString("mail.from_name"),
			OwnerAddress: v.GetString("mail.owner_address"),
		},
		Scheduler: SchedulerConfig{
			OverdueSweepEnabled:  v.GetBool("scheduler.overdue_sweep_enabled"),
			OverdueSweepInterval: v.GetDuration("scheduler.overdue_sweep_interval"),
			JobTimeout:           v.GetDuration("scheduler.job_timeout"),
		},
		Swagger: SwaggerConfig{
			Enabled:     v.GetBool("swagger.enabled"),
			RequireAuth: v.GetBool("swagger.require_auth"),
			AllowedIPs:  v.GetStringSlice("swagger.allowed_ips"),
		},
		Telemetry: TelemetryConfig{
			Enabled:           v.GetBool("telemetry.enabled"),
			CollectorEndpoint: v.GetString("telemetry.collector_endpoint"),
			SamplingRatio:     v.GetFloat64("telemetry.sampling_ratio"),
			ServiceName:       v.GetString("telemetry.service_name"),
			Insecure:          v.GetBool("telemetry.insecure"),
			DBTraceEnabled:    v.GetBool("telemetry.db_trace_enabled"),
			DBSlowQueryThresh: v.GetDuration("telemetry.db_slow_query_threshold"),
		},
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// readLedger parses the money settings as decimals so rates never pass through float64
func readLedger(v *viper.Viper) (LedgerConfig, error) {
	var cfg LedgerConfig
	fields := []struct {
		key string
		dst *decimal.Decimal
	}{
		{"ledger.late_fee_rate", &cfg.LateFeeRate},
		{"ledger.commission_weight_down_payment", &cfg.CommissionWeightDownPayment},
		{"ledger.commission_weight_contract", &cfg.CommissionWeightContract},
		{"ledger.commission_weight_settlement", &cfg.CommissionWeightSettlement},
	}
	for _, f := range fields {
		raw := strings.TrimSpace(v.GetString(f.key))
		if raw == "" {
			continue
		}
		d, err := decimal.NewFromString(raw)
		if err != nil {
			return cfg, fmt.Errorf("%s: invalid decimal %q: %w", f.key, raw, err)
		}
		*f.dst = d
	}
	return cfg, nil
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "inmobiliaria-backend"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "8080"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.User == "" {
		cfg.Database.User = "postgres"
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = "inmobiliaria"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 60
	}
	if cfg.Database.ConnMaxIdleTime == 0 {
		cfg.Database.ConnMaxIdleTime = 30
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.JWT.Issuer == "" {
		cfg.JWT.Issuer = "inmobiliaria-backend"
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
		// a webhook may spend 7s in retry backoff before answering
		cfg.HTTP.WriteTimeout = 30 * time.Second
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.HTTP.MaxHeaderBytes == 0 {
		cfg.HTTP.MaxHeaderBytes = 1 << 20 // 1MB
	}
	if cfg.HTTP.MaxBodySize == 0 {
		cfg.HTTP.MaxBodySize = 1 << 20 // 1MB
	}
	if cfg.HTTP.RateLimitRequests == 0 {
		cfg.HTTP.RateLimitRequests = 100
	}
	if cfg.HTTP.RateLimitWindow == 0 {
		cfg.HTTP.RateLimitWindow = time.Minute
	}
	if cfg.HTTP.WebhookRateLimitRequests == 0 {
		cfg.HTTP.WebhookRateLimitRequests = 100
	}
	if cfg.HTTP.WebhookRateLimitWindow == 0 {
		cfg.HTTP.WebhookRateLimitWindow = time.Minute
	}
	// An empty origin list means no cross-origin requests until configured.
	if len(cfg.HTTP.CORSAllowMethods) == 0 {
		cfg.HTTP.CORSAllowMethods = []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"}
	}
	if len(cfg.HTTP.CORSAllowHeaders) == 0 {
		cfg.HTTP.CORSAllowHeaders = []string{"Content-Type", "Authorization", "X-Request-ID"}
	}
	if cfg.Stripe.Currency == "" {
		cfg.Stripe.Currency = "mxn"
	}
	if cfg.Stripe.HTTPTimeout == 0 {
		cfg.Stripe.HTTPTimeout = 30 * time.Second
	}
	if cfg.Stripe.MaxNetworkRetries == 0 {
		cfg.Stripe.MaxNetworkRetries = 2
	}
	if cfg.Webhook.RetryAttempts == 0 {
		cfg.Webhook.RetryAttempts = 4
	}
	if cfg.Webhook.RetryBaseDelay == 0 {
		cfg.Webhook.RetryBaseDelay = time.Second
	}
	if cfg.Webhook.IdempotencyTTL == 0 {
		cfg.Webhook.IdempotencyTTL = 24 * time.Hour
	}
	if cfg.Webhook.MaxPayloadBytes == 0 {
		cfg.Webhook.MaxPayloadBytes = 64 << 10 // 64KiB
	}
	if cfg.Ledger.LateFeeRate.IsZero() {
		cfg.Ledger.LateFeeRate = decimal.RequireFromString("0.05")
	}
	if cfg.Ledger.CommissionWeightDownPayment.IsZero() &&
		cfg.Ledger.CommissionWeightContract.IsZero() &&
		cfg.Ledger.CommissionWeightSettlement.IsZero() {
		cfg.Ledger.CommissionWeightDownPayment = decimal.NewFromInt(30)
		cfg.Ledger.CommissionWeightContract = decimal.NewFromInt(30)
		cfg.Ledger.CommissionWeightSettlement = decimal.NewFromInt(40)
	}
	if cfg.Mail.Port == 0 {
		cfg.Mail.Port = 587
	}
	if cfg.Mail.FromName == "" {
		cfg.Mail.FromName = "Inmobiliaria"
	}
	if cfg.Scheduler.OverdueSweepInterval == 0 {
		cfg.Scheduler.OverdueSweepInterval = time.Hour
	}
	if cfg.Scheduler.JobTimeout == 0 {
		cfg.Scheduler.JobTimeout = 5 * time.Minute
	}
	if cfg.Telemetry.CollectorEndpoint == "" {
		cfg.Telemetry.CollectorEndpoint = "localhost:4317"
	}
	if cfg.Telemetry.SamplingRatio == 0 {
		cfg.Telemetry.SamplingRatio = 1.0
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "inmobiliaria-backend"
	}
	if cfg.Telemetry.DBSlowQueryThresh == 0 {
		cfg.Telemetry.DBSlowQueryThresh = 200 * time.Millisecond
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be positive")
	}
	if c.Database.MaxIdleConns < 0 {
		return fmt.Errorf("database.max_idle_conns cannot be negative")
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}

	if c.Webhook.RetryAttempts < 1 {
		return fmt.Errorf("webhook.retry_attempts must be at least 1")
	}
	if c.Webhook.MaxPayloadBytes <= 0 {
		return fmt.Errorf("webhook.max_payload_bytes must be positive")
	}
	if c.Ledger.LateFeeRate.IsNegative() || c.Ledger.LateFeeRate.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("ledger.late_fee_rate must be between 0 and 1, got %s", c.Ledger.LateFeeRate)
	}
	sum := c.Ledger.CommissionWeightDownPayment.
		Add(c.Ledger.CommissionWeightContract).
		Add(c.Ledger.CommissionWeightSettlement)
	if !sum.Equal(decimal.NewFromInt(100)) {
		return fmt.Errorf("ledger commission weights must sum to 100, got %s", sum)
	}
	if c.Mail.Enabled && (c.Mail.Host == "" || c.Mail.From == "") {
		return fmt.Errorf("mail.host and mail.from are required when mail is enabled")
	}

	if c.App.IsProduction() {
		if c.JWT.Secret == "" {
			return fmt.Errorf("jwt.secret is required in production")
		}
		if len(c.JWT.Secret) < 32 {
			return fmt.Errorf("jwt.secret must be at least 32 characters in production")
		}
		if c.Database.Password == "" {
			return fmt.Errorf("database.password is required in production")
		}
		if c.Database.SSLMode == "disable" {
			return fmt.Errorf("database.sslmode cannot be 'disable' in production")
		}
		if c.Stripe.WebhookSecret == "" {
			return fmt.Errorf("stripe.webhook_secret is required in production")
		}
		if c.Webhook.AllowInsecure {
			return fmt.Errorf("webhook.allow_insecure must be false in production")
		}
		for _, origin := range c.HTTP.CORSAllowOrigins {
			if origin == "*" {
				return fmt.Errorf("cors_allow_origins cannot be '*' in production (use specific origins)")
			}
		}
		if c.Swagger.Enabled && !c.Swagger.RequireAuth && len(c.Swagger.AllowedIPs) == 0 {
			return fmt.Errorf("swagger endpoint must be disabled, require authentication, or have IP restriction in production")
		}
	}

	if c.Telemetry.SamplingRatio < 0.0 || c.Telemetry.SamplingRatio > 1.0 {
		return fmt.Errorf("telemetry.sampling_ratio must be between 0.0 and 1.0, got %f", c.Telemetry.SamplingRatio)
	}
	return nil
}

// DSN returns the database connection string with properly escaped values
func (d *DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.DBName,
	}
	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}
