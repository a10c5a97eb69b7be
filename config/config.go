package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	// Server configuration
	Port        string
	Environment string

	// Redis configuration
	RedisURL      string
	RedisPassword string
	RedisDB       int

	// PubNub configuration
	PubNubPublishKey   string
	PubNubSubscribeKey string
	PubNubSecretKey    string

	// Payment processor configuration
	ProcessorBaseURL   string
	ProcessorAccountID string
	ProcessorClientID  string
	ProcessorClientKey string
	ProcessorHMACKey   string
	ProcessorPNSubKey  string
	ProcessorPNChannel string
	ProcessorPNUUID    string

	// Fee configuration. The balance path carries no processing fee; the
	// card path charges a fixed rate on top of the ticket price.
	BalanceFeeRate float64
	CardFeeRate    float64
	Currency       string

	// Timeout configuration
	ReservationTTL time.Duration
	PaymentTimeout time.Duration

	// Admin
	AdminAPIKeyHash string

	// Monitoring
	EnableMetrics bool
	MetricsPort   string
}

func LoadConfig() *Config {
	return &Config{
		// Server
		Port:        getEnv("PORT", "8090"),
		Environment: getEnv("ENVIRONMENT", "development"),

		// Redis
		RedisURL:      getEnv("REDIS_URL", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),

		// PubNub
		PubNubPublishKey:   getEnv("PUBNUB_PUBLISH_KEY", ""),
		PubNubSubscribeKey: getEnv("PUBNUB_SUBSCRIBE_KEY", ""),
		PubNubSecretKey:    getEnv("PUBNUB_SECRET_KEY", ""),

		// Processor
		ProcessorBaseURL:   getEnv("PROCESSOR_BASE_URL", "https://api.stripeish.test"),
		ProcessorAccountID: getEnv("PROCESSOR_ACCOUNT_ID", ""),
		ProcessorClientID:  getEnv("PROCESSOR_CLIENT_ID", ""),
		ProcessorClientKey: getEnv("PROCESSOR_CLIENT_KEY", ""),
		ProcessorHMACKey:   getEnv("PROCESSOR_HMAC_KEY", ""),
		ProcessorPNSubKey:  getEnv("PROCESSOR_PN_SUB_KEY", ""),
		ProcessorPNChannel: getEnv("PROCESSOR_PN_CHANNEL", "processor-payment-notifications"),
		ProcessorPNUUID:    getEnv("PROCESSOR_PN_UUID", "ticket-market"),

		// Fees
		BalanceFeeRate: getEnvAsFloat("BALANCE_FEE_RATE", 0),
		CardFeeRate:    getEnvAsFloat("CARD_FEE_RATE", 0.029),
		Currency:       getEnv("CURRENCY", "usd"),

		// Timeouts
		ReservationTTL: getEnvAsDuration("RESERVATION_TTL", "5m"),
		PaymentTimeout: getEnvAsDuration("PAYMENT_TIMEOUT", "10m"),

		// Admin
		AdminAPIKeyHash: getEnv("ADMIN_API_KEY_HASH", ""),

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

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
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
