package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/fjod/storefront/internal/repository"
)

const (
	PricePolicyLock          = "lock"
	PricePolicyRejectOnDrift = "reject_on_drift"

	StoreMemory   = "memory"
	StoreMongo    = "mongo"
	StorePostgres = "postgres"
	StoreDynamoDB = "dynamodb"
)

type Config struct {
	HTTPPort            string        `envconfig:"HTTP_PORT" default:"8080"`
	LogLevel            string        `envconfig:"LOG_LEVEL" default:"info"`
	RequestTimeout      time.Duration `envconfig:"REQUEST_TIMEOUT" default:"30s"`
	ShutdownTimeout     time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
	MaxRequestBodyBytes int64         `envconfig:"MAX_REQUEST_BODY_BYTES" default:"1048576"`
	SessionCookie       string        `envconfig:"SESSION_COOKIE" default:"sid"`

	CatalogBaseURL          string        `envconfig:"CATALOG_BASE_URL" default:"https://dummyjson.com"`
	CatalogTimeout          time.Duration `envconfig:"CATALOG_TIMEOUT" default:"10s"`
	CatalogBreakerThreshold int           `envconfig:"CATALOG_BREAKER_THRESHOLD" default:"5"`
	CatalogBreakerCooldown  time.Duration `envconfig:"CATALOG_BREAKER_COOLDOWN" default:"30s"`

	PricePolicy string `envconfig:"PRICE_POLICY" default:"lock"`

	CartStore    string        `envconfig:"CART_STORE" default:"memory"`
	MongoURI     string        `envconfig:"MONGO_URI" default:"mongodb://localhost:27017"`
	MongoDBName  string        `envconfig:"MONGO_DB_NAME" default:"storefront"`
	RedisAddr    string        `envconfig:"REDIS_ADDR" default:""`
	RedisPass    string        `envconfig:"REDIS_PASSWORD" default:""`
	CartCacheTTL time.Duration `envconfig:"CART_CACHE_TTL" default:"15m"`

	OrderStore     string `envconfig:"ORDER_STORE" default:"memory"`
	DBHost         string `envconfig:"DB_HOST" default:"localhost"`
	DBPort         int    `envconfig:"DB_PORT" default:"5432"`
	DBUser         string `envconfig:"DB_USER" default:"postgres"`
	DBPassword     string `envconfig:"DB_PASSWORD" default:"postgres"`
	DBName         string `envconfig:"DB_NAME" default:"storefront"`
	MigrationsPath string `envconfig:"MIGRATIONS_PATH" default:"./internal/repository/migrations"`

	AWSRegion        string `envconfig:"AWS_REGION" default:"us-east-1"`
	OrderTableName   string `envconfig:"ORDER_TABLE_NAME" default:"orders"`
	DynamoDBEndpoint string `envconfig:"DYNAMODB_ENDPOINT" default:""` // DynamoDB Local

	KafkaBrokers     string `envconfig:"KAFKA_BROKERS" default:""`
	KafkaOrdersTopic string `envconfig:"KAFKA_ORDERS_TOPIC" default:"orders-placed"`
}

// Load reads an optional .env file, then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.CatalogBaseURL) == "" {
		errs = append(errs, errors.New("CATALOG_BASE_URL is required"))
	}
	if c.CatalogTimeout <= 0 {
		errs = append(errs, errors.New("CATALOG_TIMEOUT must be positive"))
	}
	if c.CatalogBreakerThreshold < 1 {
		errs = append(errs, errors.New("CATALOG_BREAKER_THRESHOLD must be at least 1"))
	}
	if c.MaxRequestBodyBytes <= 0 {
		errs = append(errs, errors.New("MAX_REQUEST_BODY_BYTES must be positive"))
	}
	switch c.PricePolicy {
	case PricePolicyLock, PricePolicyRejectOnDrift:
	default:
		errs = append(errs, fmt.Errorf("unknown PRICE_POLICY %q", c.PricePolicy))
	}
	switch c.CartStore {
	case StoreMemory, StoreMongo:
	default:
		errs = append(errs, fmt.Errorf("unknown CART_STORE %q", c.CartStore))
	}
	switch c.OrderStore {
	case StoreMemory, StorePostgres, StoreDynamoDB:
	default:
		errs = append(errs, fmt.Errorf("unknown ORDER_STORE %q", c.OrderStore))
	}

	return errors.Join(errs...)
}

func (c *Config) PostgresCredentials() *repository.Credentials {
	return &repository.Credentials{
		Host:              c.DBHost,
		Port:              c.DBPort,
		User:              c.DBUser,
		Password:          c.DBPassword,
		DBName:            c.DBName,
		MigrationsDirPath: c.MigrationsPath,
	}
}

func (c *Config) Brokers() []string {
	if strings.TrimSpace(c.KafkaBrokers) == "" {
		return nil
	}
	var out []string
	for _, b := range strings.Split(c.KafkaBrokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}
