// Package config loads the trader's configuration from environment
// variables: venue credentials, strategy thresholds, and the ambient
// logging/HTTP settings.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config is the full process configuration.
type Config struct {
	Master VenueCredentials
	Slave  VenueCredentials

	Strategy StrategyConfig
	Matching MatchingConfig

	Logging LoggingConfig
	HTTP    HTTPConfig

	EncryptionPassphrase string
	WSAPIPoolSize        int
}

// VenueCredentials holds one venue's auth material. APIKey is plaintext;
// Secret and PrivateKey are AES-256-GCM ciphertext blobs produced by
// secretstore.Seal, decrypted at startup with the key derived from
// EncryptionPassphrase. PrivateKey/PublicKey are only populated for the
// ed25519 WS-API venue; the HMAC-only venue leaves them empty.
type VenueCredentials struct {
	APIKey     string
	Secret     string // ciphertext, see secretstore.Open
	PrivateKey string // ciphertext wrapping a base64 ed25519 seed, venue A only
	PublicKey  string // base64 ed25519 public key, venue A only (not secret)
}

// StrategyConfig holds the strategy thresholds and taker fee rate read from
// the environment (copied into bot.StrategyConfig by cmd/trader), plus the
// target Leverage, which goes to bot.TraderConfig instead.
type StrategyConfig struct {
	SpreadOpen    float64
	MaxDelayMs    int64
	PosRate       float64
	ReserveMargin float64
	BBOVolumeRate float64
	MinNominal    float64
	TakerFeeRate  float64
	Leverage      int
}

// MatchingConfig controls which symbols the trader trades: the quote
// asset suffix every tradable symbol must carry, an optional [start, end)
// slice of the sorted, matched symbol list, and a blacklist of canonical
// symbols to never trade.
type MatchingConfig struct {
	Quote      string
	RangeStart int
	RangeEnd   int
	Blacklist  map[string]struct{}
}

// LoggingConfig configures pkg/logging.
type LoggingConfig struct {
	Level  string
	Format string
}

// HTTPConfig configures internal/httpserver's /healthz and /metrics routes.
type HTTPConfig struct {
	Addr string
}

// Load reads Config from the environment. It fails closed: missing
// credentials or an invalid encryption passphrase abort startup rather
// than running half-configured.
func Load() (*Config, error) {
	cfg := &Config{
		Master: VenueCredentials{
			APIKey:     getEnv("MASTER_API_KEY", ""),
			Secret:     getEnv("MASTER_SECRET", ""),
			PrivateKey: getEnv("MASTER_PRIVATE_KEY", ""),
			PublicKey:  getEnv("MASTER_PUBLIC_KEY", ""),
		},
		Slave: VenueCredentials{
			APIKey: getEnv("SLAVE_API_KEY", ""),
			Secret: getEnv("SLAVE_SECRET", ""),
		},
		Strategy: StrategyConfig{
			SpreadOpen:    getEnvAsFloat("SPREAD", 0.005),
			MaxDelayMs:    getEnvAsInt64("MAX_DELAY_MS", 1000),
			PosRate:       getEnvAsFloat("POS_RATE", 0.3),
			ReserveMargin: getEnvAsFloat("RESERVE_MARGIN", 0.1),
			BBOVolumeRate: getEnvAsFloat("BBO_VOLUME_RATE", 0.1),
			MinNominal:    getEnvAsFloat("MIN_NOMINAL", 5),
			TakerFeeRate:  getEnvAsFloat("TAKER_FEE_RATE", 0.0005),
			Leverage:      getEnvAsInt("LEVERAGE", 10),
		},
		Matching: MatchingConfig{
			Quote:      getEnv("QUOTE", "USDT"),
			RangeStart: getEnvAsInt("SYMBOL_RANGE_START", 0),
			RangeEnd:   getEnvAsInt("SYMBOL_RANGE_END", 0),
			Blacklist:  getEnvAsSet("SYMBOLS_BLACKLIST"),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		HTTP: HTTPConfig{
			Addr: getEnv("HTTP_ADDR", ":8080"),
		},
		EncryptionPassphrase: getEnv("ENCRYPTION_PASSPHRASE", ""),
		WSAPIPoolSize:        getEnvAsInt("WSAPI_POOL_SIZE", 3),
	}

	if cfg.Master.APIKey == "" || cfg.Master.Secret == "" {
		return nil, fmt.Errorf("MASTER_API_KEY and MASTER_SECRET are required")
	}
	if cfg.Slave.APIKey == "" || cfg.Slave.Secret == "" {
		return nil, fmt.Errorf("SLAVE_API_KEY and SLAVE_SECRET are required")
	}
	if cfg.Master.PrivateKey == "" {
		return nil, fmt.Errorf("MASTER_PRIVATE_KEY is required for the ed25519 WS-API session logon")
	}
	if cfg.EncryptionPassphrase == "" {
		return nil, fmt.Errorf("ENCRYPTION_PASSPHRASE is required to derive the secret-store key")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsSet parses a comma-separated symbol list into a lookup set.
func getEnvAsSet(key string) map[string]struct{} {
	out := make(map[string]struct{})
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return out
	}
	for _, sym := range strings.Split(valueStr, ",") {
		sym = strings.TrimSpace(sym)
		if sym != "" {
			out[sym] = struct{}{}
		}
	}
	return out
}
