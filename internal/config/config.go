package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	HTTPPort int `env:"PAYMENTS_HTTP_PORT"`

	DBConfig struct {
		Host     string `env:"PAYMENTS_DB_HOST"`
		Port     int    `env:"PAYMENTS_DB_PORT"`
		User     string `env:"PAYMENTS_DB_USER"`
		Password string `env:"PAYMENTS_DB_PASSWORD"`
		Name     string `env:"PAYMENTS_DB_NAME"`
		SSLMode  string `env:"PAYMENTS_DB_SSLMODE"`
	}

	MigrationsPath string `env:"PAYMENTS_MIGRATIONS_PATH"`

	KafkaBrokerURL          string `env:"KAFKA_BROKER_URL"`
	KafkaPaymentStatusTopic string `env:"KAFKA_PAYMENT_STATUS_TOPIC"`

	OutboxPollInterval time.Duration `env:"OUTBOX_POLL_INTERVAL"`
	OutboxPollTimeout  time.Duration `env:"OUTBOX_POLL_TIMEOUT"`

	OrderServiceURL     string        `env:"ORDER_SERVICE_URL"`
	IdentityServiceURL  string        `env:"IDENTITY_SERVICE_URL"`
	CollaboratorTimeout time.Duration `env:"COLLABORATOR_TIMEOUT"`

	// GatewayTimeout bounds every outbound call to a payment provider; a
	// slow gateway must not hold a request worker indefinitely.
	GatewayTimeout time.Duration `env:"GATEWAY_TIMEOUT"`

	CardProcessor struct {
		BaseURL       string `env:"CARD_PROCESSOR_BASE_URL"`
		SecretKey     string `env:"CARD_PROCESSOR_SECRET_KEY"`
		WebhookSecret string `env:"CARD_PROCESSOR_WEBHOOK_SECRET"`
	}

	WalletProcessor struct {
		BaseURL      string `env:"WALLET_PROCESSOR_BASE_URL"`
		ClientID     string `env:"WALLET_PROCESSOR_CLIENT_ID"`
		ClientSecret string `env:"WALLET_PROCESSOR_CLIENT_SECRET"`
		WebhookID    string `env:"WALLET_PROCESSOR_WEBHOOK_ID"`
		ReturnURL    string `env:"WALLET_PROCESSOR_RETURN_URL"`
		CancelURL    string `env:"WALLET_PROCESSOR_CANCEL_URL"`
	}

	HashProcessor struct {
		ActionURL     string `env:"HASH_PROCESSOR_ACTION_URL"`
		MerchantLogin string `env:"HASH_PROCESSOR_MERCHANT_LOGIN"`
		RequestSecret string `env:"HASH_PROCESSOR_REQUEST_SECRET"`
		ResultSecret  string `env:"HASH_PROCESSOR_RESULT_SECRET"`
	}
}

func LoadConfig() (*Config, error) {
	cfg := &Config{}

	cfg.HTTPPort = getEnvAsInt("PAYMENTS_HTTP_PORT", 8082)

	cfg.DBConfig.Host = getEnvOrDefault("PAYMENTS_DB_HOST", "localhost")
	cfg.DBConfig.Port = getEnvAsInt("PAYMENTS_DB_PORT", 5432)
	cfg.DBConfig.User = getEnvOrDefault("PAYMENTS_DB_USER", "user")
	cfg.DBConfig.Password = getEnvOrDefault("PAYMENTS_DB_PASSWORD", "password")
	cfg.DBConfig.Name = getEnvOrDefault("PAYMENTS_DB_NAME", "payments_db")
	cfg.DBConfig.SSLMode = getEnvOrDefault("PAYMENTS_DB_SSLMODE", "disable")

	cfg.MigrationsPath = getEnvOrDefault("PAYMENTS_MIGRATIONS_PATH", "file://migrations")

	cfg.KafkaBrokerURL = getEnvOrDefault("KAFKA_BROKER_URL", "localhost:9092")
	cfg.KafkaPaymentStatusTopic = getEnvOrDefault("KAFKA_PAYMENT_STATUS_TOPIC", "payment_status_updates")

	cfg.OutboxPollInterval = getEnvAsDuration("OUTBOX_POLL_INTERVAL", 1*time.Second)
	cfg.OutboxPollTimeout = getEnvAsDuration("OUTBOX_POLL_TIMEOUT", 500*time.Millisecond)

	cfg.OrderServiceURL = getEnvOrDefault("ORDER_SERVICE_URL", "http://localhost:8081")
	cfg.IdentityServiceURL = getEnvOrDefault("IDENTITY_SERVICE_URL", "http://localhost:8080")
	cfg.CollaboratorTimeout = getEnvAsDuration("COLLABORATOR_TIMEOUT", 5*time.Second)

	cfg.GatewayTimeout = getEnvAsDuration("GATEWAY_TIMEOUT", 15*time.Second)

	cfg.CardProcessor.BaseURL = getEnvOrDefault("CARD_PROCESSOR_BASE_URL", "https://api.sandbox.cardproc.example")
	cfg.CardProcessor.SecretKey = getEnvOrDefault("CARD_PROCESSOR_SECRET_KEY", "")
	cfg.CardProcessor.WebhookSecret = getEnvOrDefault("CARD_PROCESSOR_WEBHOOK_SECRET", "")

	cfg.WalletProcessor.BaseURL = getEnvOrDefault("WALLET_PROCESSOR_BASE_URL", "https://api.sandbox.walletproc.example")
	cfg.WalletProcessor.ClientID = getEnvOrDefault("WALLET_PROCESSOR_CLIENT_ID", "")
	cfg.WalletProcessor.ClientSecret = getEnvOrDefault("WALLET_PROCESSOR_CLIENT_SECRET", "")
	cfg.WalletProcessor.WebhookID = getEnvOrDefault("WALLET_PROCESSOR_WEBHOOK_ID", "")
	cfg.WalletProcessor.ReturnURL = getEnvOrDefault("WALLET_PROCESSOR_RETURN_URL", "http://localhost:3000/payment/return")
	cfg.WalletProcessor.CancelURL = getEnvOrDefault("WALLET_PROCESSOR_CANCEL_URL", "http://localhost:3000/payment/cancel")

	cfg.HashProcessor.ActionURL = getEnvOrDefault("HASH_PROCESSOR_ACTION_URL", "https://pay.hashproc.example/invoice")
	cfg.HashProcessor.MerchantLogin = getEnvOrDefault("HASH_PROCESSOR_MERCHANT_LOGIN", "")
	cfg.HashProcessor.RequestSecret = getEnvOrDefault("HASH_PROCESSOR_REQUEST_SECRET", "")
	cfg.HashProcessor.ResultSecret = getEnvOrDefault("HASH_PROCESSOR_RESULT_SECRET", "")

	return cfg, nil
}

func (c *Config) GetDBConnectionString() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DBConfig.Host, c.DBConfig.Port, c.DBConfig.User, c.DBConfig.Password, c.DBConfig.Name, c.DBConfig.SSLMode)
}

func (c *Config) GetDBMigrationConnectionString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.DBConfig.User, c.DBConfig.Password, c.DBConfig.Host, c.DBConfig.Port, c.DBConfig.Name, c.DBConfig.SSLMode)
}

func (c *Config) GetKafkaBrokers() []string {
	return strings.Split(c.KafkaBrokerURL, ",")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnvOrDefault(key, strconv.Itoa(defaultValue))
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnvOrDefault(key, defaultValue.String())
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
