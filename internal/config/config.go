// Package config loads server settings from the environment, optionally
// seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/mmynk/grouporder/internal/calculator"
	"github.com/mmynk/grouporder/internal/grouporder"
)

// Config holds every setting of the server process.
type Config struct {
	Port      int
	DBPath    string
	JWTSecret string
	TokenTTL  time.Duration

	Engine grouporder.Config
	Sweep  grouporder.SweepConfig

	// CatalogPath is a JSON menu file. Empty disables price checks.
	CatalogPath string

	// AMQPURL enables phase-change publishing when set.
	AMQPURL      string
	AMQPExchange string

	// OrdersQueueURL enables the SQS order sink when set; otherwise
	// finalized orders are only logged.
	OrdersQueueURL string
	AWSRegion      string

	LogLevel  string
	LogFormat string
}

// Load reads the given .env files (or ./.env when none are named) and then
// the process environment. Variables already set in the environment win
// over the files. Missing files are ignored.
func Load(files ...string) (*Config, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load env file: %w", err)
	}

	var errs []error
	intVar := func(key string, fallback int) int {
		v, err := getEnvInt(key, fallback)
		if err != nil {
			errs = append(errs, err)
		}
		return v
	}
	durationVar := func(key string, fallback time.Duration) time.Duration {
		v, err := getEnvDuration(key, fallback)
		if err != nil {
			errs = append(errs, err)
		}
		return v
	}

	engine := grouporder.DefaultConfig()
	sweep := grouporder.DefaultSweepConfig()

	cfg := &Config{
		Port:      intVar("PORT", 8080),
		DBPath:    getEnv("DB_PATH", "./data/grouporder.db"),
		JWTSecret: getEnv("JWT_SECRET", ""),
		TokenTTL:  durationVar("TOKEN_TTL", 24*time.Hour),
		Engine: grouporder.Config{
			DefaultTTL:        time.Duration(intVar("DEFAULT_TTL_HOURS", int(engine.DefaultTTL/time.Hour))) * time.Hour,
			MinMembersToStart: intVar("MIN_MEMBERS_TO_START", engine.MinMembersToStart),
			Discount: calculator.DiscountPolicy{
				Percent:         intVar("GROUP_DISCOUNT_PERCENT", 0),
				MinParticipants: intVar("GROUP_DISCOUNT_MIN_PARTICIPANTS", 2),
			},
		},
		Sweep: grouporder.SweepConfig{
			Interval:            durationVar("SWEEP_INTERVAL", sweep.Interval),
			SelectionStaleAfter: durationVar("SELECTION_STALE_AFTER", sweep.SelectionStaleAfter),
			ClosingStaleAfter:   durationVar("CLOSING_STALE_AFTER", sweep.ClosingStaleAfter),
			ReapAfter:           durationVar("REAP_AFTER", sweep.ReapAfter),
		},
		CatalogPath:    getEnv("CATALOG_PATH", ""),
		AMQPURL:        getEnv("AMQP_URL", ""),
		AMQPExchange:   getEnv("AMQP_EXCHANGE", "grouporder.events"),
		OrdersQueueURL: getEnv("ORDERS_QUEUE_URL", ""),
		AWSRegion:      getEnv("AWS_REGION", "us-east-1"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogFormat:      getEnv("LOG_FORMAT", "text"),
	}

	if cfg.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if cfg.Engine.DefaultTTL <= 0 {
		errs = append(errs, errors.New("DEFAULT_TTL_HOURS must be positive"))
	}
	if cfg.Engine.MinMembersToStart < 0 {
		errs = append(errs, errors.New("MIN_MEMBERS_TO_START must not be negative"))
	}
	if p := cfg.Engine.Discount.Percent; p < 0 || p > 100 {
		errs = append(errs, errors.New("GROUP_DISCOUNT_PERCENT must be between 0 and 100"))
	}
	if cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("LOG_FORMAT must be text or json, got %q", cfg.LogFormat))
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return fallback, fmt.Errorf("%s: invalid integer %q", key, value)
	}
	return n, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return fallback, fmt.Errorf("%s: invalid duration %q", key, value)
	}
	return d, nil
}
