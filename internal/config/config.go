package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Queue storage backends
const (
	QueueBackendSQLite = "sqlite"
	QueueBackendRedis  = "redis"
	QueueBackendMemory = "memory"
)

// Verification provider names
const (
	ProviderSlipOK   = "slipok"
	ProviderEasySlip = "easyslip"
)

type Config struct {
	Port         string
	Environment  string
	LogLevel     string
	Database     DatabaseConfig
	Queue        QueueConfig
	PromptPay    PromptPayConfig
	Verification VerificationConfig
	Notification NotificationConfig
	Connectivity ConnectivityConfig
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// QueueConfig selects where submissions are buffered while offline
type QueueConfig struct {
	Backend   string // QUEUE_BACKEND: sqlite | redis | memory
	Path      string // QUEUE_PATH: sqlite file
	RedisAddr string
	RedisKey  string
}

// PromptPayConfig holds the merchant's PromptPay identifier
type PromptPayConfig struct {
	MerchantTarget string // PROMPTPAY_TARGET: phone, tax id or e-wallet id
}

type VerificationConfig struct {
	Providers []string      // VERIFY_PROVIDERS: comma separated, tried in order
	Timeout   time.Duration // per provider call
	SlipOK    SlipOKConfig
	EasySlip  EasySlipConfig
	Breaker   BreakerConfig
}

type SlipOKConfig struct {
	BaseURL  string
	BranchID string
	APIKey   string
}

type EasySlipConfig struct {
	BaseURL string
	APIKey  string
}

// BreakerConfig configures the circuit breaker in front of each provider
type BreakerConfig struct {
	MaxFailures uint32
	OpenTimeout time.Duration
}

type NotificationConfig struct {
	WebhookURL   string   // empty disables the webhook sink
	KafkaBrokers []string // empty disables the kafka sink
	KafkaTopic   string
	BufferSize   int
}

type ConnectivityConfig struct {
	// ProbeURL switches the monitor from a database ping to an HTTP health check
	ProbeURL          string
	ProbeInterval     time.Duration
	QueuePollInterval time.Duration
}

// LoadDotEnv loads .env into the process environment if present
func LoadDotEnv() error {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("error loading .env: %w", err)
	}
	return nil
}

func Load() (*Config, error) {
	viper.SetConfigType("env")
	viper.SetConfigName(".env")
	viper.AddConfigPath(".")
	viper.AddConfigPath("..")
	viper.AddConfigPath("../..")

	// Set defaults
	viper.SetDefault("PORT", "8080")
	viper.SetDefault("ENVIRONMENT", "development")
	viper.SetDefault("DB_PORT", "5432")
	viper.SetDefault("DB_SSLMODE", "disable")
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("QUEUE_BACKEND", QueueBackendSQLite)

	viper.AutomaticEnv()

	// .env is optional
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	verifyTimeout, err := getDuration("VERIFY_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}
	breakerOpen, err := getDuration("VERIFY_BREAKER_OPEN_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, err
	}
	breakerFailures, err := getInt("VERIFY_BREAKER_MAX_FAILURES", 5)
	if err != nil {
		return nil, err
	}
	bufferSize, err := getInt("NOTIFY_BUFFER_SIZE", 100)
	if err != nil {
		return nil, err
	}
	probeInterval, err := getDuration("CONNECTIVITY_PROBE_INTERVAL", 10*time.Second)
	if err != nil {
		return nil, err
	}
	pollInterval, err := getDuration("QUEUE_POLL_INTERVAL", 5*time.Second)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Port:        getEnvOrViper("PORT", "8080"),
		Environment: getEnvOrViper("ENVIRONMENT", "development"),
		LogLevel:    getEnvOrViper("LOG_LEVEL", "info"),
		Database: DatabaseConfig{
			Host:     getEnvOrViper("DB_HOST", "localhost"),
			Port:     getEnvOrViper("DB_PORT", "5432"),
			User:     getEnvOrViper("DB_USER", "postgres"),
			Password: getEnvOrViper("DB_PASSWORD", "postgres"),
			DBName:   getEnvOrViper("DB_NAME", "tablepos"),
			SSLMode:  getEnvOrViper("DB_SSLMODE", "disable"),
		},
		Queue: QueueConfig{
			Backend:   strings.ToLower(getEnvOrViper("QUEUE_BACKEND", QueueBackendSQLite)),
			Path:      getEnvOrViper("QUEUE_PATH", "tablepos-queue.db"),
			RedisAddr: getEnvOrViper("QUEUE_REDIS_ADDR", "localhost:6379"),
			RedisKey:  getEnvOrViper("QUEUE_REDIS_KEY", "tablepos:offline"),
		},
		PromptPay: PromptPayConfig{
			MerchantTarget: strings.TrimSpace(getEnvOrViper("PROMPTPAY_TARGET", "")),
		},
		Verification: VerificationConfig{
			Providers: splitList(getEnvOrViper("VERIFY_PROVIDERS", ProviderSlipOK+","+ProviderEasySlip)),
			Timeout:   verifyTimeout,
			SlipOK: SlipOKConfig{
				BaseURL:  strings.TrimSpace(getEnvOrViper("SLIPOK_URL", "https://api.slipok.com/api/line/apikey")),
				BranchID: strings.TrimSpace(getEnvOrViper("SLIPOK_BRANCH_ID", "")),
				APIKey:   strings.TrimSpace(getEnvOrViper("SLIPOK_API_KEY", "")),
			},
			EasySlip: EasySlipConfig{
				BaseURL: strings.TrimSpace(getEnvOrViper("EASYSLIP_URL", "https://developer.easyslip.com/api/v1")),
				APIKey:  strings.TrimSpace(getEnvOrViper("EASYSLIP_API_KEY", "")),
			},
			Breaker: BreakerConfig{
				MaxFailures: uint32(breakerFailures),
				OpenTimeout: breakerOpen,
			},
		},
		Notification: NotificationConfig{
			WebhookURL:   strings.TrimSpace(getEnvOrViper("NOTIFY_WEBHOOK_URL", "")),
			KafkaBrokers: splitList(getEnvOrViper("NOTIFY_KAFKA_BROKERS", "")),
			KafkaTopic:   getEnvOrViper("NOTIFY_KAFKA_TOPIC", "orders.placed"),
			BufferSize:   bufferSize,
		},
		Connectivity: ConnectivityConfig{
			ProbeURL:          strings.TrimSpace(getEnvOrViper("CONNECTIVITY_PROBE_URL", "")),
			ProbeInterval:     probeInterval,
			QueuePollInterval: pollInterval,
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Queue.Backend {
	case QueueBackendSQLite, QueueBackendRedis, QueueBackendMemory:
	default:
		return fmt.Errorf("QUEUE_BACKEND must be one of sqlite, redis, memory (got %q)", c.Queue.Backend)
	}
	if c.Queue.Backend == QueueBackendSQLite && c.Queue.Path == "" {
		return fmt.Errorf("QUEUE_PATH is required for the sqlite queue backend")
	}
	for _, name := range c.Verification.Providers {
		if name != ProviderSlipOK && name != ProviderEasySlip {
			return fmt.Errorf("unknown verification provider %q", name)
		}
	}
	if c.Verification.Timeout <= 0 {
		return fmt.Errorf("VERIFY_TIMEOUT must be positive")
	}
	if c.Connectivity.ProbeInterval <= 0 {
		return fmt.Errorf("CONNECTIVITY_PROBE_INTERVAL must be positive")
	}
	if c.Connectivity.QueuePollInterval <= 0 {
		return fmt.Errorf("QUEUE_POLL_INTERVAL must be positive")
	}
	if c.Verification.Breaker.MaxFailures == 0 {
		return fmt.Errorf("VERIFY_BREAKER_MAX_FAILURES must be at least 1")
	}
	if c.Notification.BufferSize < 1 {
		return fmt.Errorf("NOTIFY_BUFFER_SIZE must be at least 1")
	}
	return nil
}

func getEnvOrViper(key, defaultValue string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	if viper.IsSet(key) {
		return viper.GetString(key)
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := getEnvOrViper(key, "")
	if raw == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func getInt(key string, defaultValue int) (int, error) {
	raw := getEnvOrViper(key, "")
	if raw == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if n < 0 {
		return 0, fmt.Errorf("invalid %s: must not be negative", key)
	}
	return n, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
