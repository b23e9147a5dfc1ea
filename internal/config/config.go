package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	apporder "github.com/orderware/wholesale/internal/application/order"
)

// Config carries everything the process needs at startup. Values come from
// the environment, optionally seeded from a .env file for local runs.
type Config struct {
	ServiceName string
	Env         string
	Addr        string
	JWTSecret   string
	RedisAddr   string
	StockPolicy apporder.StockPolicy
	TxTimeout   time.Duration
}

func Load() (*Config, error) {
	// Missing .env is fine; the environment wins either way.
	_ = godotenv.Load()

	cfg := &Config{
		ServiceName: getenv("SERVICE_NAME", "wholesale"),
		Env:         getenv("ENV", "dev"),
		Addr:        getenv("ADDR", ":8080"),
		JWTSecret:   os.Getenv("JWT_SECRET"),
		RedisAddr:   os.Getenv("REDIS_ADDR"),
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("config: JWT_SECRET is required")
	}

	policy, ok := apporder.ParseStockPolicy(os.Getenv("STOCK_POLICY"))
	if !ok {
		return nil, fmt.Errorf("config: invalid STOCK_POLICY %q", os.Getenv("STOCK_POLICY"))
	}
	cfg.StockPolicy = policy

	cfg.TxTimeout = 3 * time.Second
	if raw := os.Getenv("TX_TIMEOUT"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("config: invalid TX_TIMEOUT %q", raw)
		}
		cfg.TxTimeout = d
	}

	return cfg, nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
