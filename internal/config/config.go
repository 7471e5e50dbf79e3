package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// maxAmountScale bounds AMOUNT_SCALE so that prices still fit in int64.
const maxAmountScale = 8

// Config holds all runtime configuration for the exchange.
type Config struct {
	Port     int
	LogLevel string
	// DatabaseURL selects the Postgres store; empty runs in memory.
	DatabaseURL string

	LockStaleAfter     time.Duration
	TradeAtDelay       time.Duration
	SweepInterval      time.Duration
	SweepConcurrency   int
	CancelRetryTimeout time.Duration
	AmountScale        int32

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// Load reads configuration from environment variables, applies defaults,
// and validates values. It returns an error for any invalid value.
func Load() (*Config, error) {
	port, err := getInt("PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("invalid PORT: %w", err)
	}
	if port < 1 || port > 65535 {
		return nil, fmt.Errorf("invalid PORT: %d is out of range", port)
	}

	logLevel := getStr("LOG_LEVEL", "info")
	if !isValidLogLevel(logLevel) {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %q, must be one of: debug, info, warn, error", logLevel)
	}

	staleAfter, err := getPositiveDuration("LOCK_STALE_AFTER", 2*time.Minute)
	if err != nil {
		return nil, err
	}

	tradeAtDelay, err := getDuration("TRADE_AT_DELAY", 0)
	if err != nil {
		return nil, fmt.Errorf("invalid TRADE_AT_DELAY: %w", err)
	}
	if tradeAtDelay < 0 {
		return nil, fmt.Errorf("invalid TRADE_AT_DELAY: %v must not be negative", tradeAtDelay)
	}

	sweepInterval, err := getPositiveDuration("SWEEP_INTERVAL", 5*time.Second)
	if err != nil {
		return nil, err
	}

	sweepConcurrency, err := getInt("SWEEP_CONCURRENCY", 4)
	if err != nil {
		return nil, fmt.Errorf("invalid SWEEP_CONCURRENCY: %w", err)
	}
	if sweepConcurrency < 1 {
		return nil, fmt.Errorf("invalid SWEEP_CONCURRENCY: %d must be at least 1", sweepConcurrency)
	}

	cancelRetryTimeout, err := getPositiveDuration("CANCEL_RETRY_TIMEOUT", 2*time.Second)
	if err != nil {
		return nil, err
	}

	amountScale, err := getInt("AMOUNT_SCALE", 2)
	if err != nil {
		return nil, fmt.Errorf("invalid AMOUNT_SCALE: %w", err)
	}
	if amountScale < 0 || amountScale > maxAmountScale {
		return nil, fmt.Errorf("invalid AMOUNT_SCALE: %d must be between 0 and %d", amountScale, maxAmountScale)
	}

	readTimeout, err := getPositiveDuration("READ_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, err
	}

	writeTimeout, err := getPositiveDuration("WRITE_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}

	idleTimeout, err := getPositiveDuration("IDLE_TIMEOUT", 60*time.Second)
	if err != nil {
		return nil, err
	}

	shutdownTimeout, err := getPositiveDuration("SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}

	return &Config{
		Port:               port,
		LogLevel:           logLevel,
		DatabaseURL:        getStr("DATABASE_URL", ""),
		LockStaleAfter:     staleAfter,
		TradeAtDelay:       tradeAtDelay,
		SweepInterval:      sweepInterval,
		SweepConcurrency:   sweepConcurrency,
		CancelRetryTimeout: cancelRetryTimeout,
		AmountScale:        int32(amountScale),
		ReadTimeout:        readTimeout,
		WriteTimeout:       writeTimeout,
		IdleTimeout:        idleTimeout,
		ShutdownTimeout:    shutdownTimeout,
	}, nil
}

func getStr(key, defaultVal string) string {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	return v
}

func getInt(key string, defaultVal int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	return strconv.Atoi(v)
}

func getDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	return time.ParseDuration(v)
}

func getPositiveDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	d, err := getDuration(key, defaultVal)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s: %v must be positive", key, d)
	}
	return d, nil
}

func isValidLogLevel(level string) bool {
	switch level {
	case "debug", "info", "warn", "error":
		return true
	}
	return false
}
