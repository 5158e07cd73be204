package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// Price sources the vault's liquidation check can consult. The delayed
// settlement feed exists either way; this only selects which feed the
// liquidation predicate reads.
const (
	PriceSourceSpot       = "spot"
	PriceSourceSettlement = "settlement"
)

// Config holds the runtime configuration for the service
type Config struct {
	Port         string
	DatabasePath string
	JWTSecret    string

	// Account that receives liquidation penalties and owns admin tokens
	AdminAccount string

	// Which price feed the liquidation check reads: "spot" or "settlement"
	LiquidationPriceSource string

	// Interval between background OSM poke rounds
	OSMPokeInterval time.Duration
}

// Load reads configuration from a .env file (if present) and the environment
func Load() Config {
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("no .env file loaded, using environment")
	}

	cfg := Config{
		Port:                   getEnv("PORT", "8080"),
		DatabasePath:           getEnv("DATABASE_PATH", "synth.db"),
		JWTSecret:              getEnv("JWT_SECRET", "synth-secret-key"),
		AdminAccount:           getEnv("ADMIN_ACCOUNT", "protocol-admin"),
		LiquidationPriceSource: getEnv("LIQUIDATION_PRICE_SOURCE", PriceSourceSpot),
		OSMPokeInterval:        getDurationEnv("OSM_POKE_INTERVAL_SECONDS", 60*time.Second),
	}

	if cfg.LiquidationPriceSource != PriceSourceSpot && cfg.LiquidationPriceSource != PriceSourceSettlement {
		log.Warn().
			Str("value", cfg.LiquidationPriceSource).
			Msg("unknown liquidation price source, falling back to spot")
		cfg.LiquidationPriceSource = PriceSourceSpot
	}

	return cfg
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDurationEnv(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	seconds, err := strconv.Atoi(v)
	if err != nil || seconds <= 0 {
		log.Warn().Str("key", key).Str("value", v).Msg("invalid duration setting, using default")
		return fallback
	}
	return time.Duration(seconds) * time.Second
}
