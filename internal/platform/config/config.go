// Package config loads service configuration from the environment (and an
// optional .env file) with viper. Every value has a development default so a
// bare `go run ./cmd/server` starts with in-memory stores and the simulated
// contract.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full service configuration.
type Config struct {
	Server         Server
	Log            Log
	Database       Database
	Redis          RedisConfig
	Kafka          Kafka
	AMQP           AMQP
	Contract       Contract
	Reconciliation Reconciliation
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string
	JWTSigningKey   string
	JWTIssuer       string
	ShutdownTimeout time.Duration
}

type Log struct {
	Level  string
	Format string
}

// Database configures PostgreSQL. An empty URL selects in-memory stores.
type Database struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig configures Redis. An empty URL selects in-process locks,
// cooldowns and caches.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	StateTTL     time.Duration
}

// Kafka configures the change-feed topic. No brokers disables the Kafka sink.
type Kafka struct {
	Brokers       []string
	Topic         string
	Partitions    int32
	Replication   int16
	ConsumerGroup string
}

// AMQP configures the alternative change-feed sink. An empty URL disables it.
type AMQP struct {
	URL      string
	Exchange string
}

// Contract selects the escrow adapter.
type Contract struct {
	Version    string
	GatewayURL string
	Address    string
}

// Reconciliation is passed to the reconciliation service at construction.
type Reconciliation struct {
	MaxAttempts      int
	InitialBackoff   time.Duration
	MaxBackoff       time.Duration
	SubmitTimeout    time.Duration
	RecoveryCooldown time.Duration
	RecentTxWindow   time.Duration
	LockTTL          time.Duration
	OutboxInterval   time.Duration
	OutboxBatchSize  int
}

var defaults = map[string]any{
	"SERVER_ADDR":             ":8080",
	"JWT_SIGNING_KEY":         "dev-secret-key-change-in-production",
	"JWT_ISSUER":              "trustrails",
	"SHUTDOWN_TIMEOUT":        "10s",
	"LOG_LEVEL":               "info",
	"LOG_FORMAT":              "json",
	"DATABASE_URL":            "",
	"DATABASE_MAX_OPEN_CONNS": 20,
	"DATABASE_MAX_IDLE_CONNS": 5,
	"DATABASE_CONN_LIFETIME":  "30m",
	"REDIS_URL":               "",
	"REDIS_POOL_SIZE":         10,
	"REDIS_MIN_IDLE_CONNS":    2,
	"REDIS_DIAL_TIMEOUT":      "5s",
	"REDIS_READ_TIMEOUT":      "3s",
	"REDIS_WRITE_TIMEOUT":     "3s",
	"REDIS_STATE_TTL":         "10m",
	"KAFKA_BROKERS":           "",
	"KAFKA_TOPIC":             "rollover.events",
	"KAFKA_PARTITIONS":        6,
	"KAFKA_REPLICATION":       1,
	"KAFKA_CONSUMER_GROUP":    "trustrails-state-cache",
	"AMQP_URL":                "",
	"AMQP_EXCHANGE":           "rollover.events",
	"CONTRACT_VERSION":        "simulated",
	"CONTRACT_GATEWAY_URL":    "",
	"CONTRACT_ADDRESS":        "",
	"RECON_MAX_ATTEMPTS":      3,
	"RECON_INITIAL_BACKOFF":   "500ms",
	"RECON_MAX_BACKOFF":       "8s",
	"RECON_SUBMIT_TIMEOUT":    "30s",
	"RECON_RECOVERY_COOLDOWN": "10s",
	"RECON_RECENT_TX_WINDOW":  "15m",
	"RECON_LOCK_TTL":          "60s",
	"OUTBOX_INTERVAL":         "1s",
	"OUTBOX_BATCH_SIZE":       100,
}

// Load reads configuration from the environment and an optional .env file in dir.
func Load(dir string) (Config, error) {
	v := viper.New()
	v.AddConfigPath(dir)
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for k, val := range defaults {
		v.SetDefault(k, val)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}
	return FromViper(v)
}

// FromViper builds a Config from an already populated viper instance.
func FromViper(v *viper.Viper) (Config, error) {
	cfg := Config{
		Server: Server{
			Addr:            v.GetString("SERVER_ADDR"),
			JWTSigningKey:   v.GetString("JWT_SIGNING_KEY"),
			JWTIssuer:       v.GetString("JWT_ISSUER"),
			ShutdownTimeout: v.GetDuration("SHUTDOWN_TIMEOUT"),
		},
		Log: Log{
			Level:  v.GetString("LOG_LEVEL"),
			Format: v.GetString("LOG_FORMAT"),
		},
		Database: Database{
			URL:             v.GetString("DATABASE_URL"),
			MaxOpenConns:    v.GetInt("DATABASE_MAX_OPEN_CONNS"),
			MaxIdleConns:    v.GetInt("DATABASE_MAX_IDLE_CONNS"),
			ConnMaxLifetime: v.GetDuration("DATABASE_CONN_LIFETIME"),
		},
		Redis: RedisConfig{
			URL:          v.GetString("REDIS_URL"),
			PoolSize:     v.GetInt("REDIS_POOL_SIZE"),
			MinIdleConns: v.GetInt("REDIS_MIN_IDLE_CONNS"),
			DialTimeout:  v.GetDuration("REDIS_DIAL_TIMEOUT"),
			ReadTimeout:  v.GetDuration("REDIS_READ_TIMEOUT"),
			WriteTimeout: v.GetDuration("REDIS_WRITE_TIMEOUT"),
			StateTTL:     v.GetDuration("REDIS_STATE_TTL"),
		},
		Kafka: Kafka{
			Brokers:       splitList(v.GetString("KAFKA_BROKERS")),
			Topic:         v.GetString("KAFKA_TOPIC"),
			Partitions:    v.GetInt32("KAFKA_PARTITIONS"),
			Replication:   int16(v.GetInt("KAFKA_REPLICATION")),
			ConsumerGroup: v.GetString("KAFKA_CONSUMER_GROUP"),
		},
		AMQP: AMQP{
			URL:      v.GetString("AMQP_URL"),
			Exchange: v.GetString("AMQP_EXCHANGE"),
		},
		Contract: Contract{
			Version:    v.GetString("CONTRACT_VERSION"),
			GatewayURL: v.GetString("CONTRACT_GATEWAY_URL"),
			Address:    v.GetString("CONTRACT_ADDRESS"),
		},
		Reconciliation: Reconciliation{
			MaxAttempts:      v.GetInt("RECON_MAX_ATTEMPTS"),
			InitialBackoff:   v.GetDuration("RECON_INITIAL_BACKOFF"),
			MaxBackoff:       v.GetDuration("RECON_MAX_BACKOFF"),
			SubmitTimeout:    v.GetDuration("RECON_SUBMIT_TIMEOUT"),
			RecoveryCooldown: v.GetDuration("RECON_RECOVERY_COOLDOWN"),
			RecentTxWindow:   v.GetDuration("RECON_RECENT_TX_WINDOW"),
			LockTTL:          v.GetDuration("RECON_LOCK_TTL"),
			OutboxInterval:   v.GetDuration("OUTBOX_INTERVAL"),
			OutboxBatchSize:  v.GetInt("OUTBOX_BATCH_SIZE"),
		},
	}
	return cfg, cfg.Validate()
}

// DefaultReconciliation returns the reconciliation defaults without reading
// the environment.
func DefaultReconciliation() Reconciliation {
	return Reconciliation{
		MaxAttempts:      3,
		InitialBackoff:   500 * time.Millisecond,
		MaxBackoff:       8 * time.Second,
		SubmitTimeout:    30 * time.Second,
		RecoveryCooldown: 10 * time.Second,
		RecentTxWindow:   15 * time.Minute,
		LockTTL:          60 * time.Second,
		OutboxInterval:   time.Second,
		OutboxBatchSize:  100,
	}
}

// Validate rejects configurations the service cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.Server.Addr == "" {
		errs = append(errs, errors.New("SERVER_ADDR is required"))
	}
	if c.Server.JWTSigningKey == "" {
		errs = append(errs, errors.New("JWT_SIGNING_KEY is required"))
	}
	if c.Reconciliation.MaxAttempts < 1 {
		errs = append(errs, errors.New("RECON_MAX_ATTEMPTS must be at least 1"))
	}
	if c.Reconciliation.SubmitTimeout <= 0 {
		errs = append(errs, errors.New("RECON_SUBMIT_TIMEOUT must be positive"))
	}
	if c.Reconciliation.LockTTL <= c.Reconciliation.SubmitTimeout {
		errs = append(errs, errors.New("RECON_LOCK_TTL must exceed RECON_SUBMIT_TIMEOUT"))
	}
	if c.Contract.Version != "simulated" && c.Contract.GatewayURL == "" {
		errs = append(errs, fmt.Errorf("CONTRACT_GATEWAY_URL is required for contract version %q", c.Contract.Version))
	}
	return errors.Join(errs...)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
