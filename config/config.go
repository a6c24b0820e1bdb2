package config

import (
	"os"
	"strconv"
	"time"

	"genzstore/internal/gateway/bakong"
	"genzstore/internal/gateway/payway"
)

type Config struct {
	// Server configuration
	Environment string

	// Redis configuration
	RedisURL      string
	RedisPassword string
	RedisDB       int

	// Payment configuration
	PrimaryProvider string
	PaymentTimeout  time.Duration
	PollInterval    time.Duration

	// Gateway credentials. Nothing here has a baked-in secret: every
	// value comes from the environment.
	Bakong bakong.Config
	PayWay payway.Config

	// Webhook configuration
	WebhookSecret    string
	WebhookTokenHash string
	WebhookRateLimit int

	// PubNub configuration (merchant-side paid notifications)
	PubNubPublishKey   string
	PubNubSubscribeKey string
	PubNubSecretKey    string
	PubNubUUID         string
	PubNubOrderChannel string

	// Monitoring
	EnableMetrics bool
	MetricsPort   string
}

func LoadConfig() *Config {
	return &Config{
		// Server
		Environment: getEnv("ENVIRONMENT", "development"),

		// Redis
		RedisURL:      getEnv("REDIS_URL", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),

		// Payment
		PrimaryProvider: getEnv("PRIMARY_PROVIDER", "bakong"),
		PaymentTimeout:  getEnvAsDuration("PAYMENT_TIMEOUT", "10m"),
		PollInterval:    getEnvAsDuration("POLL_INTERVAL", "5s"),

		Bakong: bakong.Config{
			AccountID:  getEnv("BAKONG_ACCOUNT_ID", ""),
			SchemeGUID: getEnv("BAKONG_SCHEME_GUID", "bakong"),
			MName:      getEnv("MERCHANT_NAME", "GenZStore"),
			MCity:      getEnv("MERCHANT_CITY", "Phnom Penh"),
			CCy:        getEnv("BAKONG_CURRENCY", "840"),

			BaseURL:  getEnv("BAKONG_BASE_URL", "https://api-bakong.nbc.gov.kh"),
			Email:    getEnv("BAKONG_EMAIL", ""),
			APIToken: getEnv("BAKONG_API_TOKEN", ""),

			PNSubKey:    getEnv("BAKONG_PN_SUBSCRIBE_KEY", ""),
			PNSubSecret: getEnv("BAKONG_PN_SECRET_KEY", ""),
			PNUUID:      getEnv("BAKONG_PN_UUID", ""),
			PNChannel:   getEnv("BAKONG_PN_CHANNEL", ""),
			PNCipherKey: getEnv("BAKONG_PN_CIPHER_KEY", ""),
		},

		PayWay: payway.Config{
			BaseURL:    getEnv("PAYWAY_BASE_URL", "https://checkout-sandbox.payway.com.kh"),
			MerchantID: getEnv("PAYWAY_MERCHANT_ID", ""),
			APIKey:     getEnv("PAYWAY_API_KEY", ""),
			ReturnURL:  getEnv("PAYWAY_RETURN_URL", ""),
		},

		// Webhook
		WebhookSecret:    getEnv("WEBHOOK_SECRET", ""),
		WebhookTokenHash: getEnv("WEBHOOK_TOKEN_HASH", ""),
		WebhookRateLimit: getEnvAsInt("WEBHOOK_RATE_LIMIT", 60),

		// PubNub
		PubNubPublishKey:   getEnv("PUBNUB_PUBLISH_KEY", ""),
		PubNubSubscribeKey: getEnv("PUBNUB_SUBSCRIBE_KEY", ""),
		PubNubSecretKey:    getEnv("PUBNUB_SECRET_KEY", ""),
		PubNubUUID:         getEnv("PUBNUB_UUID", "genzstore-server"),
		PubNubOrderChannel: getEnv("PUBNUB_ORDER_CHANNEL", "orders.paid"),

		// Monitoring
		EnableMetrics: getEnvAsBool("ENABLE_METRICS", true),
		MetricsPort:   getEnv("METRICS_PORT", "9090"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := getEnv(key, defaultValue)
	if duration, err := time.ParseDuration(valueStr); err == nil {
		return duration
	}
	// If parsing fails, try to parse default value
	duration, _ := time.ParseDuration(defaultValue)
	return duration
}
