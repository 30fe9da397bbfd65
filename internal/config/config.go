package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/shopspring/decimal"
)

type Config struct {
	Port           string
	AllowedOrigins string
	DatabaseURL    string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	OpenAIAPIKey string

	// PurchasePriceDeviationRatio in [0, 1); zero disables the check.
	PurchasePriceDeviationRatio decimal.Decimal
	// ProfitMargin and TaxRate are percentages in [0, 99).
	ProfitMargin decimal.Decimal
	TaxRate      decimal.Decimal

	DefaultPOSAccountID *int
}

func Load() Config {
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))

	cfg := Config{
		Port:           getEnv("SERVER_PORT", "8080"),
		AllowedOrigins: getEnv("ALLOWED_ORIGINS", "http://127.0.0.1:3000"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		RedisAddr:      os.Getenv("REDIS_ADDR"),
		RedisPassword:  os.Getenv("REDIS_PASSWORD"),
		RedisDB:        redisDB,
		OpenAIAPIKey:   os.Getenv("OPENAI_API_KEY"),

		PurchasePriceDeviationRatio: decimalEnv("PURCHASE_PRICE_DEVIATION_RATIO", "0.3", decimal.Zero, decimal.New(1, 0)),
		ProfitMargin:                decimalEnv("PROFIT_MARGIN", "40", decimal.Zero, decimal.New(99, 0)),
		TaxRate:                     decimalEnv("TAX_RATE", "0", decimal.Zero, decimal.New(99, 0)),
	}

	if raw := os.Getenv("DEFAULT_POS_ACCOUNT_ID"); raw != "" {
		if id, err := strconv.Atoi(raw); err == nil && id > 0 {
			cfg.DefaultPOSAccountID = &id
		}
	}

	return cfg
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

// decimalEnv parses key as a decimal in [min, max); out-of-range or garbage
// falls back to the default.
func decimalEnv(key, fallback string, min, max decimal.Decimal) decimal.Decimal {
	def, _ := decimal.NewFromString(fallback)
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	v, err := decimal.NewFromString(raw)
	if err != nil || v.LessThan(min) || v.GreaterThanOrEqual(max) {
		return def
	}
	return v
}
