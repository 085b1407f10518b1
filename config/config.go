package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	toml "github.com/pelletier/go-toml/v2"
	"github.com/shopspring/decimal"
)

// Channels every deployment must bind a credential to.
var Channels = []string{"dashboard", "trending", "search", "details", "trading"}

// Config holds all configuration for the service.
type Config struct {
	Server    ServerConfig    `toml:"server"`
	Database  DatabaseConfig  `toml:"database"`
	Redis     RedisConfig     `toml:"redis"`
	Gateway   GatewayConfig   `toml:"gateway"`
	History   HistoryConfig   `toml:"history"`
	Portfolio PortfolioConfig `toml:"portfolio"`
	Scheduler SchedulerConfig `toml:"scheduler"`
	Auth      AuthConfig      `toml:"auth"`
	Logging   LoggingConfig   `toml:"logging"`
}

type ServerConfig struct {
	Port           string `toml:"port"`
	RequestTimeout string `toml:"request_timeout"`
}

type DatabaseConfig struct {
	Host     string `toml:"host"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	Name     string `toml:"name"`
	Port     string `toml:"port"`
	SSLMode  string `toml:"sslmode"`
	LogLevel string `toml:"log_level"` // silent, error, warn, info
}

// DSN returns the PostgreSQL connection string.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
		c.Host, c.User, c.Password, c.Name, c.Port, c.SSLMode)
}

type RedisConfig struct {
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
	PriceTTL string `toml:"price_ttl"` // how long a last-known quote stays usable
}

// GatewayConfig configures the rate-limited quote provider gateway.
type GatewayConfig struct {
	BaseURL           string            `toml:"base_url"`
	RequestsPerWindow int               `toml:"requests_per_window"`
	Window            string            `toml:"window"`
	Timeout           string            `toml:"timeout"`
	Channels          map[string]string `toml:"channels"` // channel name -> credential
}

type HistoryConfig struct {
	BaseURL   string `toml:"base_url"`
	APIKey    string `toml:"api_key"`
	RateLimit int    `toml:"rate_limit"` // requests per second
	Timeout   string `toml:"timeout"`
}

type PortfolioConfig struct {
	StartingCash string `toml:"starting_cash"`
}

type SchedulerConfig struct {
	SnapshotCron string `toml:"snapshot_cron"`
}

type AuthConfig struct {
	JWTSecret string `toml:"jwt_secret"`
}

type LoggingConfig struct {
	Level  string `toml:"level"`
	Pretty bool   `toml:"pretty"`
}

// Load reads an optional .env file, an optional TOML file at path and
// finally the environment, which wins over both.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := toml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyEnv() {
	setString(&c.Server.Port, "PORT")
	setString(&c.Database.Host, "DB_HOST")
	setString(&c.Database.User, "DB_USER")
	setString(&c.Database.Password, "DB_PASSWORD")
	setString(&c.Database.Name, "DB_NAME")
	setString(&c.Database.Port, "DB_PORT")
	setString(&c.Redis.Addr, "REDIS_ADDR")
	setString(&c.Redis.Password, "REDIS_PASSWORD")
	setString(&c.Gateway.BaseURL, "FINNHUB_BASE_URL")
	setString(&c.History.BaseURL, "HISTORY_BASE_URL")
	setString(&c.History.APIKey, "HISTORY_API_KEY")
	setString(&c.Portfolio.StartingCash, "STARTING_CASH")
	setString(&c.Auth.JWTSecret, "JWT_SECRET")
	setString(&c.Logging.Level, "LOG_LEVEL")

	if v := os.Getenv("REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Redis.DB = n
		}
	}
	if v := os.Getenv("GATEWAY_REQUESTS_PER_WINDOW"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Gateway.RequestsPerWindow = n
		}
	}

	for _, ch := range Channels {
		if v := os.Getenv("FINNHUB_KEY_" + strings.ToUpper(ch)); v != "" {
			if c.Gateway.Channels == nil {
				c.Gateway.Channels = make(map[string]string)
			}
			c.Gateway.Channels[ch] = v
		}
	}
}

func (c *Config) applyDefaults() {
	setDefault(&c.Server.Port, "8080")
	setDefault(&c.Server.RequestTimeout, "15s")
	setDefault(&c.Database.Host, "localhost")
	setDefault(&c.Database.Port, "5432")
	setDefault(&c.Database.SSLMode, "disable")
	setDefault(&c.Database.LogLevel, "warn")
	setDefault(&c.Redis.Addr, "127.0.0.1:6379")
	setDefault(&c.Redis.PriceTTL, "24h")
	setDefault(&c.Gateway.BaseURL, "https://finnhub.io/api/v1")
	setDefault(&c.Gateway.Window, "1m")
	setDefault(&c.Gateway.Timeout, "10s")
	setDefault(&c.History.Timeout, "10s")
	setDefault(&c.Portfolio.StartingCash, "100000")
	setDefault(&c.Scheduler.SnapshotCron, "0 5 21 * * MON-FRI")
	setDefault(&c.Logging.Level, "info")
	if c.Gateway.RequestsPerWindow <= 0 {
		c.Gateway.RequestsPerWindow = 60
	}
	if c.History.RateLimit <= 0 {
		c.History.RateLimit = 5
	}
}

// Validate reports configuration the service cannot start without.
func (c *Config) Validate() error {
	var problems []string
	if c.Auth.JWTSecret == "" {
		problems = append(problems, "auth.jwt_secret (JWT_SECRET) is required")
	}
	for _, ch := range Channels {
		if c.Gateway.Channels[ch] == "" {
			problems = append(problems, fmt.Sprintf("gateway.channels.%s (FINNHUB_KEY_%s) is required", ch, strings.ToUpper(ch)))
		}
	}
	if c.History.BaseURL == "" {
		problems = append(problems, "history.base_url (HISTORY_BASE_URL) is required")
	}
	if _, err := c.StartingCash(); err != nil {
		problems = append(problems, err.Error())
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// StartingCash parses the cash balance new portfolios are opened with.
func (c *Config) StartingCash() (decimal.Decimal, error) {
	d, err := decimal.NewFromString(c.Portfolio.StartingCash)
	if err != nil {
		return decimal.Zero, fmt.Errorf("portfolio.starting_cash %q: %w", c.Portfolio.StartingCash, err)
	}
	if !d.IsPositive() {
		return decimal.Zero, fmt.Errorf("portfolio.starting_cash must be positive, got %s", d)
	}
	return d, nil
}

func (c ServerConfig) GetRequestTimeout() time.Duration {
	return parseDuration(c.RequestTimeout, 15*time.Second)
}

func (c RedisConfig) GetPriceTTL() time.Duration {
	return parseDuration(c.PriceTTL, 24*time.Hour)
}

func (c GatewayConfig) GetWindow() time.Duration {
	return parseDuration(c.Window, time.Minute)
}

func (c GatewayConfig) GetTimeout() time.Duration {
	return parseDuration(c.Timeout, 10*time.Second)
}

func (c HistoryConfig) GetTimeout() time.Duration {
	return parseDuration(c.Timeout, 10*time.Second)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func setString(dst *string, env string) {
	if v := os.Getenv(env); v != "" {
		*dst = v
	}
}

func setDefault(dst *string, v string) {
	if *dst == "" {
		*dst = v
	}
}
