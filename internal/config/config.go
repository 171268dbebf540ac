package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/viper"
)

type Config struct {
	Port        string   `mapstructure:"PORT"`
	Env         string   `mapstructure:"ENV"`
	DatabaseURL string   `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32    `mapstructure:"DB_MIN_CONNS"`
	RedisURL    string   `mapstructure:"REDIS_URL"`
	CORSOrigins []string `mapstructure:"CORS_ORIGINS"`

	AMQPURL      string `mapstructure:"AMQP_URL"`
	AMQPExchange string `mapstructure:"AMQP_EXCHANGE"`

	WebhookURLs   []string `mapstructure:"WEBHOOK_URLS"`
	WebhookSecret string   `mapstructure:"WEBHOOK_SECRET"`
	WebhookEvents []string `mapstructure:"WEBHOOK_EVENTS"`

	MinioEndpoint  string `mapstructure:"MINIO_ENDPOINT"`
	MinioAccessKey string `mapstructure:"MINIO_ACCESS_KEY"`
	MinioSecretKey string `mapstructure:"MINIO_SECRET_KEY"`
	MinioBucket    string `mapstructure:"MINIO_BUCKET"`
	MinioUseSSL    bool   `mapstructure:"MINIO_USE_SSL"`

	AuthSigningKey    string `mapstructure:"AUTH_SIGNING_KEY"`
	AuthIssuer        string `mapstructure:"AUTH_ISSUER"`
	AuthAudience      string `mapstructure:"AUTH_AUDIENCE"`
	DevOrganizationID string `mapstructure:"DEV_ORGANIZATION_ID"`

	RateLimitRPS   float64 `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int     `mapstructure:"RATE_LIMIT_BURST"`

	ClearinghouseURL       string        `mapstructure:"CLEARINGHOUSE_URL"`
	ClearinghouseDefaultID string        `mapstructure:"CLEARINGHOUSE_DEFAULT_ID"`
	ClearinghouseRPS       float64       `mapstructure:"CLEARINGHOUSE_RPS"`
	BankFeedURL            string        `mapstructure:"BANK_FEED_URL"`
	PaymentGatewayURL      string        `mapstructure:"PAYMENT_GATEWAY_URL"`
	ExternalTimeout        time.Duration `mapstructure:"EXTERNAL_TIMEOUT"`

	AutoSubmitEnabled   bool    `mapstructure:"AUTO_SUBMIT_ENABLED"`
	AutoSubmitThreshold float64 `mapstructure:"AUTO_SUBMIT_THRESHOLD"`
	AutoPostEnabled     bool    `mapstructure:"AUTO_POST_ENABLED"`
	AutoAppealEnabled   bool    `mapstructure:"AUTO_APPEAL_ENABLED"`
	MaxBatchSize        int     `mapstructure:"MAX_BATCH_SIZE"`

	FraudReviewThreshold float64 `mapstructure:"FRAUD_REVIEW_THRESHOLD"`

	ReconcileDateTolerance    time.Duration `mapstructure:"RECONCILE_DATE_TOLERANCE"`
	ReconcileDiscrepancyRatio float64       `mapstructure:"RECONCILE_DISCREPANCY_RATIO"`

	KPIInterval     time.Duration `mapstructure:"KPI_INTERVAL"`
	KPIPeriodDays   int           `mapstructure:"KPI_PERIOD_DAYS"`
	KPICostPerClaim float64       `mapstructure:"KPI_COST_PER_CLAIM"`

	PostingLockTTL time.Duration `mapstructure:"POSTING_LOCK_TTL"`
}

var keys = []string{
	"PORT", "ENV", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS", "REDIS_URL", "CORS_ORIGINS",
	"AMQP_URL", "AMQP_EXCHANGE",
	"WEBHOOK_URLS", "WEBHOOK_SECRET", "WEBHOOK_EVENTS",
	"MINIO_ENDPOINT", "MINIO_ACCESS_KEY", "MINIO_SECRET_KEY", "MINIO_BUCKET", "MINIO_USE_SSL",
	"AUTH_SIGNING_KEY", "AUTH_ISSUER", "AUTH_AUDIENCE", "DEV_ORGANIZATION_ID",
	"RATE_LIMIT_RPS", "RATE_LIMIT_BURST",
	"CLEARINGHOUSE_URL", "CLEARINGHOUSE_DEFAULT_ID", "CLEARINGHOUSE_RPS",
	"BANK_FEED_URL", "PAYMENT_GATEWAY_URL", "EXTERNAL_TIMEOUT",
	"AUTO_SUBMIT_ENABLED", "AUTO_SUBMIT_THRESHOLD", "AUTO_POST_ENABLED", "AUTO_APPEAL_ENABLED",
	"MAX_BATCH_SIZE", "FRAUD_REVIEW_THRESHOLD",
	"RECONCILE_DATE_TOLERANCE", "RECONCILE_DISCREPANCY_RATIO",
	"KPI_INTERVAL", "KPI_PERIOD_DAYS", "KPI_COST_PER_CLAIM",
	"POSTING_LOCK_TTL",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("AMQP_EXCHANGE", "rcm.events")
	v.SetDefault("WEBHOOK_EVENTS", "kpi.*,denial.manual_review,fraud.review")
	v.SetDefault("MINIO_BUCKET", "rcm-archive")
	v.SetDefault("AUTH_ISSUER", "rcm-server")
	v.SetDefault("RATE_LIMIT_RPS", 50)
	v.SetDefault("RATE_LIMIT_BURST", 100)
	v.SetDefault("CLEARINGHOUSE_RPS", 5)
	v.SetDefault("EXTERNAL_TIMEOUT", "30s")
	v.SetDefault("AUTO_SUBMIT_ENABLED", true)
	v.SetDefault("AUTO_SUBMIT_THRESHOLD", 0.95)
	v.SetDefault("AUTO_POST_ENABLED", true)
	v.SetDefault("AUTO_APPEAL_ENABLED", true)
	v.SetDefault("MAX_BATCH_SIZE", 100)
	v.SetDefault("FRAUD_REVIEW_THRESHOLD", 0.75)
	v.SetDefault("RECONCILE_DATE_TOLERANCE", "72h")
	v.SetDefault("RECONCILE_DISCREPANCY_RATIO", 0.05)
	v.SetDefault("KPI_INTERVAL", "1h")
	v.SetDefault("KPI_PERIOD_DAYS", 90)
	v.SetDefault("KPI_COST_PER_CLAIM", 5.0)
	v.SetDefault("POSTING_LOCK_TTL", "2m")

	for _, k := range keys {
		v.BindEnv(k)
	}

	// .env is optional
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.CORSOrigins = splitList(cfg.CORSOrigins)
	cfg.WebhookURLs = splitList(cfg.WebhookURLs)
	cfg.WebhookEvents = splitList(cfg.WebhookEvents)

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	return cfg, nil
}

// splitList expands a single comma-separated env value into its items.
func splitList(in []string) []string {
	if len(in) != 1 || !strings.Contains(in[0], ",") {
		return in
	}
	var out []string
	for _, item := range strings.Split(in[0], ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// Validate rejects settings the engine cannot run safely with.
func (c *Config) Validate() error {
	if !c.IsDev() && len(c.AuthSigningKey) < 32 {
		return fmt.Errorf("AUTH_SIGNING_KEY must be at least 32 bytes outside development")
	}
	if c.IsDev() && c.DevOrganizationID != "" {
		if _, err := uuid.Parse(c.DevOrganizationID); err != nil {
			return fmt.Errorf("DEV_ORGANIZATION_ID is not a uuid: %w", err)
		}
	}
	if c.AutoSubmitThreshold < 0 || c.AutoSubmitThreshold > 1 {
		return fmt.Errorf("AUTO_SUBMIT_THRESHOLD must be within [0,1], got %v", c.AutoSubmitThreshold)
	}
	if c.FraudReviewThreshold <= 0 || c.FraudReviewThreshold > 1 {
		return fmt.Errorf("FRAUD_REVIEW_THRESHOLD must be within (0,1], got %v", c.FraudReviewThreshold)
	}
	if c.MaxBatchSize <= 0 {
		return fmt.Errorf("MAX_BATCH_SIZE must be positive, got %d", c.MaxBatchSize)
	}
	if c.ExternalTimeout <= 0 {
		return fmt.Errorf("EXTERNAL_TIMEOUT must be positive")
	}
	if c.ReconcileDiscrepancyRatio < 0 {
		return fmt.Errorf("RECONCILE_DISCREPANCY_RATIO must not be negative")
	}
	if len(c.WebhookURLs) > 0 && c.WebhookSecret == "" {
		return fmt.Errorf("WEBHOOK_SECRET is required when WEBHOOK_URLS is set")
	}
	if c.KPIInterval <= 0 || c.KPIPeriodDays <= 0 {
		return fmt.Errorf("KPI_INTERVAL and KPI_PERIOD_DAYS must be positive")
	}
	return nil
}

// DevOrganization returns the organization used by unauthenticated
// development requests.
func (c *Config) DevOrganization() uuid.UUID {
	id, err := uuid.Parse(c.DevOrganizationID)
	if err != nil {
		return uuid.Nil
	}
	return id
}
