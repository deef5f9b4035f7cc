package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Настройки сервиса из переменных окружения, .env необязателен
type Config struct {
	DatabaseURL string `env:"REWARDS_DB_URL"`

	RedisAddr     string `env:"REWARDS_CACHE_URL"`
	RedisUser     string `env:"REWARDS_CACHE_USER"`
	RedisPassword string `env:"REWARDS_CACHE_PWD"`

	MongoURI        string `env:"REWARDS_MONGO_URL"`
	MongoDatabase   string `env:"REWARDS_MONGO_DB" envDefault:"rewards"`
	MongoCollection string `env:"REWARDS_MONGO_COLLECTION" envDefault:"flash_sale"`

	KafkaBrokers   []string      `env:"REWARDS_KAFKA_BROKERS" envSeparator:","`
	KafkaGroup     string        `env:"REWARDS_KAFKA_GROUP" envDefault:"rewards"`
	CompletedTopic string        `env:"REWARDS_TOPIC_COMPLETED" envDefault:"orders.completed"`
	ReturnedTopic  string        `env:"REWARDS_TOPIC_RETURNED" envDefault:"orders.returned"`
	RabbitURL      string        `env:"REWARDS_RABBIT_URL"`
	MintQueue      string        `env:"REWARDS_MINT_QUEUE" envDefault:"coupon_mints"`
	MintReplyQueue string        `env:"REWARDS_MINT_REPLY_QUEUE" envDefault:"coupon_confirms"`
	CatalogURL     string        `env:"REWARDS_CATALOG_URL"`
	CatalogTimeout time.Duration `env:"REWARDS_CATALOG_TIMEOUT" envDefault:"5s"`
	OtelEndpoint   string        `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	HTTPAddr       string        `env:"REWARDS_HTTP_ADDR" envDefault:":8080"`
	GRPCAddr       string        `env:"REWARDS_GRPC_ADDR" envDefault:":8081"`
	Workers        int           `env:"REWARDS_WORKERS" envDefault:"3"`

	FlashSaleRefresh time.Duration `env:"REWARDS_FLASH_SALE_REFRESH" envDefault:"1s"`
	SubmitAttempts   int           `env:"REWARDS_SUBMIT_ATTEMPTS" envDefault:"5"`
	SubmitWindow     time.Duration `env:"REWARDS_SUBMIT_WINDOW" envDefault:"1m"`
	RateLimitKeys    int           `env:"REWARDS_RATE_LIMIT_KEYS" envDefault:"10000"`
}

// Load читает .env (если есть) и окружение
func Load(files ...string) (Config, error) {
	if len(files) > 0 {
		if err := godotenv.Load(files...); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("load env file: %w", err)
		}
	}
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, err
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	return cfg, nil
}

// Require проверяет, что заданы нужные бинарнику переменные
func (c Config) Require(names ...string) error {
	values := map[string]bool{
		"REWARDS_DB_URL":        c.DatabaseURL != "",
		"REWARDS_CACHE_URL":     c.RedisAddr != "",
		"REWARDS_MONGO_URL":     c.MongoURI != "",
		"REWARDS_KAFKA_BROKERS": len(c.KafkaBrokers) > 0,
		"REWARDS_RABBIT_URL":    c.RabbitURL != "",
		"REWARDS_CATALOG_URL":   c.CatalogURL != "",
	}
	for _, n := range names {
		if !values[n] {
			return fmt.Errorf("env %s is not set", n)
		}
	}
	return nil
}
