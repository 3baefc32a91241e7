package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
)

type Config struct {
	Port        string
	Environment string
	LogLevel    string
	AppURL      string

	MongoURI  string
	MongoDB   string
	CRDBDSN   string
	RedisAddr string
	RabbitURL string

	AuthJWKSURL   string
	AuthJWTSecret string

	StripeSecretKey     string
	StripeWebhookSecret string
	Currency            string

	GCSBucket          string
	GCSCredentialsFile string
	GCSPublicBaseURL   string
	UploadMaxBytes     int64
	UploadURLTTL       time.Duration

	PendingOrderTTL    time.Duration
	ReconcileInterval  time.Duration
	OutboxInterval     time.Duration
	IdempotencyTTL     time.Duration
	RateLimitPerMinute int
	CORSAllowedOrigins []string

	MailProvider       string
	MailFrom           string
	MailFromName       string
	AWSRegion          string
	AWSAccessKeyID     string
	AWSSecretAccessKey string

	OTLPEndpoint string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENVIRONMENT", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		AppURL:      strings.TrimSuffix(getEnv("APP_URL", "http://localhost:3000"), "/"),

		MongoURI:  os.Getenv("MONGO_URI"),
		MongoDB:   getEnv("MONGO_DB", "eventsphere"),
		CRDBDSN:   os.Getenv("CRDB_DSN"),
		RedisAddr: os.Getenv("REDIS_ADDR"),
		RabbitURL: os.Getenv("RABBIT_URL"),

		AuthJWKSURL:   os.Getenv("AUTH_JWKS_URL"),
		AuthJWTSecret: os.Getenv("AUTH_JWT_SECRET"),

		StripeSecretKey:     os.Getenv("STRIPE_SECRET_KEY"),
		StripeWebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
		Currency:            strings.ToLower(getEnv("CURRENCY", "usd")),

		GCSBucket:          os.Getenv("GCS_BUCKET"),
		GCSCredentialsFile: os.Getenv("GCS_CREDENTIALS_FILE"),
		GCSPublicBaseURL:   os.Getenv("GCS_PUBLIC_BASE_URL"),

		MailProvider:       getEnv("MAIL_PROVIDER", "noop"),
		MailFrom:           os.Getenv("MAIL_FROM"),
		MailFromName:       getEnv("MAIL_FROM_NAME", "Event Sphere"),
		AWSRegion:          getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:     os.Getenv("AWS_ACCESS_KEY_ID"),
		AWSSecretAccessKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),

		OTLPEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	var err error
	if cfg.UploadURLTTL, err = getDuration("UPLOAD_URL_TTL", 15*time.Minute); err != nil {
		return nil, err
	}
	if cfg.PendingOrderTTL, err = getDuration("PENDING_ORDER_TTL", 30*time.Minute); err != nil {
		return nil, err
	}
	if cfg.ReconcileInterval, err = getDuration("RECONCILE_INTERVAL", time.Minute); err != nil {
		return nil, err
	}
	if cfg.OutboxInterval, err = getDuration("OUTBOX_INTERVAL", 5*time.Second); err != nil {
		return nil, err
	}
	if cfg.IdempotencyTTL, err = getDuration("IDEMPOTENCY_TTL", 24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.UploadMaxBytes, err = getInt64("UPLOAD_MAX_BYTES", 4<<20); err != nil {
		return nil, err
	}
	rate, err := getInt64("RATE_LIMIT_PER_MINUTE", 120)
	if err != nil {
		return nil, err
	}
	cfg.RateLimitPerMinute = int(rate)

	for _, o := range strings.Split(getEnv("CORS_ALLOWED_ORIGINS", cfg.AppURL), ",") {
		if o = strings.TrimSuffix(strings.TrimSpace(o), "/"); o != "" {
			cfg.CORSAllowedOrigins = append(cfg.CORSAllowedOrigins, o)
		}
	}

	return cfg, nil
}

// Require returns an error naming the first empty setting among keys.
// Each binary checks only what it connects to.
func (c *Config) Require(keys ...string) error {
	values := map[string]string{
		"MONGO_URI":             c.MongoURI,
		"CRDB_DSN":              c.CRDBDSN,
		"REDIS_ADDR":            c.RedisAddr,
		"RABBIT_URL":            c.RabbitURL,
		"STRIPE_SECRET_KEY":     c.StripeSecretKey,
		"STRIPE_WEBHOOK_SECRET": c.StripeWebhookSecret,
		"GCS_BUCKET":            c.GCSBucket,
	}
	for _, k := range keys {
		if k == "AUTH" {
			if c.AuthJWKSURL == "" && c.AuthJWTSecret == "" {
				return errors.New("one of AUTH_JWKS_URL or AUTH_JWT_SECRET is required")
			}
			continue
		}
		v, ok := values[k]
		if !ok {
			return errors.Newf("unknown setting %s", k)
		}
		if v == "" {
			return errors.Newf("%s is required", k)
		}
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, errors.Wrapf(err, "parse %s", key)
	}
	if d <= 0 {
		return 0, errors.Newf("%s must be positive", key)
	}
	return d, nil
}

func getInt64(key string, defaultValue int64) (int64, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "parse %s", key)
	}
	if n <= 0 {
		return 0, errors.Newf("%s must be positive", key)
	}
	return n, nil
}
