package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	defaultEnv             = "development"
	defaultHTTPHost        = "0.0.0.0"
	defaultHTTPPort        = 8080
	defaultRedisAddr       = "localhost:6379"
	defaultRedisDB         = 0
	defaultCacheTTLSeconds = 30

	defaultInvestEndpoint = "https://invest-public-api.tinkoff.ru:443"
	defaultAppName        = "quantfsa"
	defaultExchange       = "MOEX"

	defaultOrdersExchange = "portfolio.orders"

	defaultGroup       = "US_Stocks"
	defaultTickersFile = "configs/tickers.json"

	defaultOrderType     = "market"
	defaultTimeInForce   = "day"
	defaultInitialEquity = 100000
)

// Config keeps the runtime configuration for the service.
type Config struct {
	Env      string
	HTTP     HTTPConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Cache    CacheConfig
	Invest   InvestConfig
	Rabbit   RabbitConfig
	Data     DataConfig
	Trading  TradingConfig
}

// HTTPConfig holds HTTP server related settings.
type HTTPConfig struct {
	Host string
	Port int
}

// Addr renders the listen address in host:port form.
func (h HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", h.Host, h.Port)
}

// PostgresConfig stores database connection parameters.
type PostgresConfig struct {
	DSN string
}

// RedisConfig stores Redis connection parameters.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// CacheConfig stores cache behavior.
type CacheConfig struct {
	TTLSeconds int
}

// InvestConfig stores brokerage API access parameters.
type InvestConfig struct {
	Token         string
	Endpoint      string
	AppName       string
	AccountID     string
	Exchange      string
	SkipTLSVerify bool
}

// RabbitConfig stores the order event fanout settings. An empty URL
// disables publishing.
type RabbitConfig struct {
	URL            string
	OrdersExchange string
}

// DataConfig stores aggregation defaults.
type DataConfig struct {
	Group string
	// FilterLabel, when set, overrides the restrict-derived suffix on
	// secondary artifact names.
	FilterLabel string
	TickersFile string
}

// TradingConfig stores order submission defaults.
type TradingConfig struct {
	OrderTypeBuy  string
	OrderTypeSell string
	TimeInForce   string
	// StrictOpenOrderType makes opening shorts use the sell-side order
	// type instead of the historical buy-side one.
	StrictOpenOrderType bool
	InitialEquity       float64
}

// Load builds Config from environment variables. A .env file in the
// working directory is loaded first when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	host := getString("HTTP_HOST", defaultHTTPHost)
	port, err := getInt("HTTP_PORT", defaultHTTPPort)
	if err != nil {
		return nil, fmt.Errorf("parse HTTP_PORT: %w", err)
	}

	dsn := os.Getenv("DATABASE_DSN")
	if dsn == "" {
		return nil, errors.New("DATABASE_DSN is required")
	}

	redisDB, err := getInt("REDIS_DB", defaultRedisDB)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_DB: %w", err)
	}

	cacheTTL, err := getInt("CACHE_TTL_SECONDS", defaultCacheTTLSeconds)
	if err != nil {
		return nil, fmt.Errorf("parse CACHE_TTL_SECONDS: %w", err)
	}

	skipVerify, err := getBool("INVEST_INSECURE_SKIP_VERIFY", true)
	if err != nil {
		return nil, fmt.Errorf("parse INVEST_INSECURE_SKIP_VERIFY: %w", err)
	}

	strictOpen, err := getBool("TRADING_STRICT_OPEN_ORDER_TYPE", false)
	if err != nil {
		return nil, fmt.Errorf("parse TRADING_STRICT_OPEN_ORDER_TYPE: %w", err)
	}

	initialEquity, err := getFloat("TRADING_INITIAL_EQUITY", defaultInitialEquity)
	if err != nil {
		return nil, fmt.Errorf("parse TRADING_INITIAL_EQUITY: %w", err)
	}

	return &Config{
		Env:  getString("APP_ENV", defaultEnv),
		HTTP: HTTPConfig{Host: host, Port: port},
		Postgres: PostgresConfig{
			DSN: dsn,
		},
		Redis: RedisConfig{
			Addr:     getString("REDIS_ADDR", defaultRedisAddr),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Cache: CacheConfig{
			TTLSeconds: cacheTTL,
		},
		Invest: InvestConfig{
			Token:         strings.TrimSpace(os.Getenv("INVEST_TOKEN")),
			Endpoint:      getString("INVEST_ENDPOINT", defaultInvestEndpoint),
			AppName:       getString("INVEST_APP_NAME", defaultAppName),
			AccountID:     strings.TrimSpace(os.Getenv("INVEST_ACCOUNT_ID")),
			Exchange:      getString("INVEST_EXCHANGE", defaultExchange),
			SkipTLSVerify: skipVerify,
		},
		Rabbit: RabbitConfig{
			// no fallback: an unset or empty URL turns publishing off
			URL:            strings.TrimSpace(os.Getenv("RABBITMQ_URL")),
			OrdersExchange: getString("RABBITMQ_ORDERS_EXCHANGE", defaultOrdersExchange),
		},
		Data: DataConfig{
			Group:       getString("DATA_GROUP", defaultGroup),
			FilterLabel: os.Getenv("DATA_FILTER_LABEL"),
			TickersFile: getString("DATA_TICKERS_FILE", defaultTickersFile),
		},
		Trading: TradingConfig{
			OrderTypeBuy:        getString("TRADING_ORDER_TYPE_BUY", defaultOrderType),
			OrderTypeSell:       getString("TRADING_ORDER_TYPE_SELL", defaultOrderType),
			TimeInForce:         getString("TRADING_TIME_IN_FORCE", defaultTimeInForce),
			StrictOpenOrderType: strictOpen,
			InitialEquity:       initialEquity,
		},
	}, nil
}

// RequireInvest validates the fields trading and market data access need.
func (c *Config) RequireInvest() error {
	if c.Invest.Token == "" {
		return errors.New("INVEST_TOKEN is required")
	}
	return nil
}

func getString(key, fallback string) string {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback
	}
	return value
}

func getInt(key string, fallback int) (int, error) {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback, nil
	}

	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("convert %s value %q to int: %w", key, value, err)
	}
	return parsed, nil
}

func getBool(key string, fallback bool) (bool, error) {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback, nil
	}

	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("convert %s value %q to bool: %w", key, value, err)
	}
	return parsed, nil
}

func getFloat(key string, fallback float64) (float64, error) {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback, nil
	}

	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("convert %s value %q to float: %w", key, value, err)
	}
	return parsed, nil
}
