// Package config loads service settings: defaults, then an optional YAML
// file named by CONFIG_FILE, then environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

var ErrInvalidConfig = errors.New("config: invalid configuration")

const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
)

type Config struct {
	Service         string        `yaml:"service"`
	Env             string        `yaml:"env"`
	LogLevel        string        `yaml:"log_level"`
	LogFile         string        `yaml:"log_file"`
	HTTPAddr        string        `yaml:"http_addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	Store   StoreConfig   `yaml:"store"`
	Redis   RedisConfig   `yaml:"redis"`
	Kafka   KafkaConfig   `yaml:"kafka"`
	Tracing TracingConfig `yaml:"tracing"`
	Seed    Seed          `yaml:"seed"`
}

type StoreConfig struct {
	Driver      string `yaml:"driver"`
	DatabaseURL string `yaml:"database_url"`
	MaxConns    int32  `yaml:"max_conns"`
}

// RedisConfig enables the live notification broadcaster when Addr is set.
type RedisConfig struct {
	Addr    string `yaml:"addr"`
	Channel string `yaml:"channel"`
	Backlog int    `yaml:"backlog"`
}

// KafkaConfig enables the event stream sink when Brokers is non-empty.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type TracingConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Seed is demo data loaded into an empty in-memory store at startup.
type Seed struct {
	Customers []SeedCustomer `yaml:"customers"`
	Products  []SeedProduct  `yaml:"products"`
}

type SeedCustomer struct {
	ID      string `yaml:"id"`
	UserID  string `yaml:"user_id"`
	Balance string `yaml:"balance"`
}

type SeedProduct struct {
	ID         string `yaml:"id"`
	MerchantID string `yaml:"merchant_id"`
	Name       string `yaml:"name"`
	Price      string `yaml:"price"`
	Stock      int    `yaml:"stock"`
}

func Default() *Config {
	return &Config{
		Service:         "minishop",
		Env:             "dev",
		LogLevel:        "info",
		HTTPAddr:        ":8080",
		ShutdownTimeout: 10 * time.Second,
		Store:           StoreConfig{Driver: DriverMemory, MaxConns: 25},
		Redis:           RedisConfig{Channel: "minishop:notifications", Backlog: 100},
		Kafka:           KafkaConfig{Topic: "minishop.orders"},
	}
}

// Load builds the configuration and validates it.
func Load() (*Config, error) {
	cfg := Default()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.LoadEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) LoadFile(path string) error {
	ext := filepath.Ext(path)
	if ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("unsupported config file extension %q: %w", ext, ErrInvalidConfig)
	}
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) LoadEnv() error {
	if v := os.Getenv("SERVICE_NAME"); v != "" {
		c.Service = v
	}
	if v := os.Getenv("ENV"); v != "" {
		c.Env = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("LOG_FILE"); v != "" {
		c.LogFile = v
	}
	if v := os.Getenv("HTTP_ADDR"); v != "" {
		c.HTTPAddr = v
	}
	if v := os.Getenv("SHUTDOWN_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("SHUTDOWN_TIMEOUT: %w", err)
		}
		c.ShutdownTimeout = d
	}
	if v := os.Getenv("STORE_DRIVER"); v != "" {
		c.Store.Driver = strings.ToLower(v)
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Store.DatabaseURL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_CHANNEL"); v != "" {
		c.Redis.Channel = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = parseList(v)
	}
	if v := os.Getenv("KAFKA_TOPIC"); v != "" {
		c.Kafka.Topic = v
	}
	if v := os.Getenv("TRACING_ENABLED"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("TRACING_ENABLED: %w", err)
		}
		c.Tracing.Enabled = enabled
	}
	return nil
}

func (c *Config) Validate() error {
	if c.Service == "" {
		return fmt.Errorf("service name is required: %w", ErrInvalidConfig)
	}
	if c.HTTPAddr == "" {
		return fmt.Errorf("http address is required: %w", ErrInvalidConfig)
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdown timeout must be positive: %w", ErrInvalidConfig)
	}
	switch c.Store.Driver {
	case DriverMemory:
	case DriverPostgres:
		if c.Store.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres store: %w", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("unknown store driver %q: %w", c.Store.Driver, ErrInvalidConfig)
	}
	if c.Redis.Addr != "" && c.Redis.Channel == "" {
		return fmt.Errorf("redis channel is required: %w", ErrInvalidConfig)
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		return fmt.Errorf("kafka topic is required: %w", ErrInvalidConfig)
	}
	return c.Seed.validate()
}

func (s Seed) validate() error {
	seen := make(map[string]bool)
	for _, c := range s.Customers {
		if c.ID == "" || seen["c:"+c.ID] {
			return fmt.Errorf("seed customer %q: missing or duplicate id: %w", c.ID, ErrInvalidConfig)
		}
		seen["c:"+c.ID] = true
		if _, err := nonNegative(c.Balance); err != nil {
			return fmt.Errorf("seed customer %s balance: %w", c.ID, err)
		}
	}
	for _, p := range s.Products {
		if p.ID == "" || p.MerchantID == "" || seen["p:"+p.ID] {
			return fmt.Errorf("seed product %q: missing id, merchant or duplicate id: %w", p.ID, ErrInvalidConfig)
		}
		seen["p:"+p.ID] = true
		if _, err := nonNegative(p.Price); err != nil {
			return fmt.Errorf("seed product %s price: %w", p.ID, err)
		}
		if p.Stock < 0 {
			return fmt.Errorf("seed product %s stock must not be negative: %w", p.ID, ErrInvalidConfig)
		}
	}
	return nil
}

// Amount parses a seed money value. Empty means zero.
func Amount(s string) (decimal.Decimal, error) {
	return nonNegative(s)
}

func nonNegative(s string) (decimal.Decimal, error) {
	if strings.TrimSpace(s) == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%q: %w", s, ErrInvalidConfig)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("%q is negative: %w", s, ErrInvalidConfig)
	}
	return d, nil
}

func parseList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
