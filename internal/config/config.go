// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/jason-s-yu/bingo/internal/game"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Config is the process configuration, read once at startup.
type Config struct {
	Port        string
	DatabaseURL string

	RedisAddr      string
	RedisDB        int
	RoundQueueName string

	JWTSecret       string
	TokenExpireTime time.Duration // 0 => tokens never expire
	AdminToken      string        // empty disables POST /api/rules

	StakeAmount      decimal.Decimal
	HouseCut         decimal.Decimal
	MinPlayers       int
	SelectionSeconds int
	WinnerSeconds    int
	TickInterval     time.Duration
	DrawInterval     time.Duration
	AllCalledDelay   time.Duration

	CardCount    int
	CardsFile    string
	WelcomeBonus decimal.Decimal

	AllowedOrigins []string
	LogLevel       string
	LogFormat      string

	HistorianBatchSize     int
	HistorianFlushDelay    time.Duration
	RoundInactivityTimeout time.Duration
}

// Load reads the environment, falling back to defaults for unset or unparsable values.
func Load() Config {
	defaults := game.DefaultRules()
	return Config{
		Port:        getEnv("PORT", "8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),

		RedisAddr:      getEnv("REDIS_ADDR", "localhost:6379"),
		RedisDB:        getEnvInt("REDIS_DB", 0),
		RoundQueueName: getEnv("ROUND_QUEUE_NAME", "bingo_round_events"),

		JWTSecret:       os.Getenv("JWT_SECRET"),
		TokenExpireTime: getTokenExpireTime("TOKEN_EXPIRE_TIME", 168*time.Hour),
		AdminToken:      os.Getenv("ADMIN_TOKEN"),

		StakeAmount:      getEnvDecimal("STAKE_AMOUNT", defaults.StakeAmount),
		HouseCut:         getEnvDecimal("HOUSE_CUT", defaults.HouseCut),
		MinPlayers:       getEnvInt("MIN_PLAYERS", defaults.MinPlayers),
		SelectionSeconds: getEnvInt("SELECTION_SECONDS", defaults.SelectionSeconds),
		WinnerSeconds:    getEnvInt("WINNER_SECONDS", defaults.WinnerSeconds),
		TickInterval:     getEnvDuration("TICK_INTERVAL", defaults.TickInterval),
		DrawInterval:     getEnvDuration("DRAW_INTERVAL", defaults.DrawInterval),
		AllCalledDelay:   getEnvDuration("ALL_CALLED_DELAY", defaults.AllCalledDelay),

		CardCount:    getEnvInt("CARD_COUNT", 100),
		CardsFile:    os.Getenv("CARDS_FILE"),
		WelcomeBonus: getEnvDecimal("WELCOME_BONUS", decimal.NewFromInt(10)),

		AllowedOrigins: splitList(getEnv("ALLOWED_ORIGINS", "*")),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogFormat:      getEnv("LOG_FORMAT", "text"),

		HistorianBatchSize:     getEnvInt("HISTORIAN_BATCH_SIZE", 20),
		HistorianFlushDelay:    getEnvDuration("HISTORIAN_FLUSH_DELAY", 500*time.Millisecond),
		RoundInactivityTimeout: getEnvDuration("ROUND_INACTIVITY_TIMEOUT", 10*time.Minute),
	}
}

// Rules bundles the round settings.
func (c Config) Rules() game.Rules {
	return game.Rules{
		StakeAmount:      c.StakeAmount,
		HouseCut:         c.HouseCut,
		MinPlayers:       c.MinPlayers,
		SelectionSeconds: c.SelectionSeconds,
		WinnerSeconds:    c.WinnerSeconds,
		TickInterval:     c.TickInterval,
		DrawInterval:     c.DrawInterval,
		AllCalledDelay:   c.AllCalledDelay,
	}
}

// Validate reports settings the server cannot start with.
func (c Config) Validate() error {
	if c.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required")
	}
	if err := c.Rules().Validate(); err != nil {
		return fmt.Errorf("invalid game settings: %w", err)
	}
	if c.TickInterval <= 0 || c.DrawInterval <= 0 {
		return errors.New("TICK_INTERVAL and DRAW_INTERVAL must be positive")
	}
	if c.CardsFile == "" && c.CardCount < 1 {
		return errors.New("CARD_COUNT must be at least 1")
	}
	if c.WelcomeBonus.IsNegative() {
		return errors.New("WELCOME_BONUS must not be negative")
	}
	return nil
}

// NewLogger builds the process logger from LOG_LEVEL and LOG_FORMAT. An unknown level means info.
func (c Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	if strings.EqualFold(c.LogFormat, "json") {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logger
}

// getEnv is a helper to read an environment variable or return a default value.
func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

// getEnvInt is a helper to parse an environment variable as integer, else a default value.
func getEnvInt(key string, def int) int {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(os.Getenv(key))
	if err != nil {
		return def
	}
	return d
}

func getEnvDecimal(key string, def decimal.Decimal) decimal.Decimal {
	d, err := decimal.NewFromString(os.Getenv(key))
	if err != nil {
		return def
	}
	return d
}

// getTokenExpireTime accepts a duration, or "never"/"0" for tokens without expiry.
func getTokenExpireTime(key string, def time.Duration) time.Duration {
	switch v := os.Getenv(key); v {
	case "":
		return def
	case "never", "0":
		return 0
	default:
		d, err := time.ParseDuration(v)
		if err != nil {
			return def
		}
		return d
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
