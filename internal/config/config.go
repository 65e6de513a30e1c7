package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type Config struct {
	Port           string
	PostgresURL    string
	RedisURL       string
	KafkaBrokers   []string
	OrderPaidTopic string

	JWTSecret   string
	IdentityURL string

	StripeSecretKey     string
	StripeWebhookSecret string
	StripeAPIURL        string
	Currency            string

	StorefrontURL         string
	ShippingFlatFee       decimal.Decimal
	FreeShippingThreshold decimal.Decimal
	OutboundTimeout       time.Duration
	CartTTL               time.Duration

	MailerURL      string
	SendGridAPIKey string
	MailFrom       string
}

// Load reads the storefront configuration from the environment. A .env file in
// the working directory is applied first when present; real environment
// variables win over it.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{
		Port:                getEnv("PORT", "8080"),
		PostgresURL:         os.Getenv("POSTGRES_URL"),
		RedisURL:            os.Getenv("REDIS_URL"),
		OrderPaidTopic:      getEnv("KAFKA_TOPIC_ORDER_PAID", "order.paid"),
		JWTSecret:           os.Getenv("JWT_SECRET"),
		IdentityURL:         os.Getenv("IDENTITY_URL"),
		StripeSecretKey:     os.Getenv("STRIPE_SECRET_KEY"),
		StripeWebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
		StripeAPIURL:        os.Getenv("STRIPE_API_URL"),
		Currency:            strings.ToLower(getEnv("CURRENCY", "brl")),
		StorefrontURL:       strings.TrimRight(getEnv("STOREFRONT_URL", "http://localhost:3000"), "/"),
		MailerURL:           os.Getenv("MAILER_URL"),
		SendGridAPIKey:      os.Getenv("SENDGRID_API_KEY"),
		MailFrom:            getEnv("MAIL_FROM", "pedidos@storefront.local"),
	}

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = strings.Split(brokers, ",")
	}

	var err error
	if cfg.ShippingFlatFee, err = getDecimal("SHIPPING_FLAT_FEE", "15.00"); err != nil {
		return nil, err
	}
	if cfg.FreeShippingThreshold, err = getDecimal("FREE_SHIPPING_THRESHOLD", "200.00"); err != nil {
		return nil, err
	}
	if cfg.OutboundTimeout, err = getDuration("OUTBOUND_TIMEOUT", "10s"); err != nil {
		return nil, err
	}
	if cfg.CartTTL, err = getDuration("CART_TTL", "720h"); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ValidateStorefront checks the variables the storefront API cannot start without.
func (c *Config) ValidateStorefront() error {
	var missing []string
	if c.PostgresURL == "" {
		missing = append(missing, "POSTGRES_URL")
	}
	if c.RedisURL == "" {
		missing = append(missing, "REDIS_URL")
	}
	if c.JWTSecret == "" && c.IdentityURL == "" {
		missing = append(missing, "JWT_SECRET or IDENTITY_URL")
	}
	if c.StripeSecretKey == "" {
		missing = append(missing, "STRIPE_SECRET_KEY")
	}
	if c.StripeWebhookSecret == "" {
		missing = append(missing, "STRIPE_WEBHOOK_SECRET")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}

	if c.JWTSecret != "" && len(c.JWTSecret) < 32 {
		return errors.New("JWT_SECRET must be at least 32 characters long")
	}
	if c.ShippingFlatFee.IsNegative() || c.FreeShippingThreshold.IsNegative() {
		return errors.New("shipping fee and free shipping threshold must not be negative")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDecimal(key, defaultValue string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(getEnv(key, defaultValue))
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("parse %s: %w", key, err)
	}
	return d, nil
}

func getDuration(key, defaultValue string) (time.Duration, error) {
	d, err := time.ParseDuration(getEnv(key, defaultValue))
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return d, nil
}
