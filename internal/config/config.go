package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/holiman/uint256"

	"lottery-engine/internal/ledger"
)

type Config struct {
	// Server
	HTTPAddr   string
	LogVerbose bool

	// Database
	DBPath string

	// Ledger
	Owner           string
	FeeRecipient    string
	ContractAddress string
	TicketPrice     string
	FeeBps          int
	DrawInterval    time.Duration
	MaxPurchase     int
	MaxClaim        int

	// AutoDrawInterval is how often the server checks for an overdue draw.
	// Zero leaves draws to purchases and the admin endpoint.
	AutoDrawInterval time.Duration

	// Events
	RedisAddr    string
	RedisChannel string
}

func Load() *Config {
	return &Config{
		// Server
		HTTPAddr:   getEnv("LOTTERY_HTTP_ADDR", ":8080"),
		LogVerbose: getEnvBool("LOTTERY_LOG_VERBOSE", false),

		// Database
		DBPath: getEnv("LOTTERY_DB_PATH", "./lottery.db"),

		// Ledger
		Owner:           strings.TrimSpace(getEnv("LOTTERY_OWNER", "")),
		FeeRecipient:    strings.TrimSpace(getEnv("LOTTERY_FEE_RECIPIENT", "")),
		ContractAddress: getEnv("LOTTERY_CONTRACT_ADDRESS", "lottery"),
		TicketPrice:     getEnv("LOTTERY_TICKET_PRICE", strconv.FormatUint(ledger.DefaultTicketPrice, 10)),
		FeeBps:          getEnvInt("LOTTERY_FEE_BPS", ledger.DefaultFeeBps),
		DrawInterval:    getEnvDuration("LOTTERY_DRAW_INTERVAL", ledger.DefaultDrawInterval),
		MaxPurchase:     getEnvInt("LOTTERY_MAX_PURCHASE", ledger.DefaultMaxPurchase),
		MaxClaim:        getEnvInt("LOTTERY_MAX_CLAIM", ledger.DefaultMaxClaim),

		AutoDrawInterval: getEnvDuration("LOTTERY_AUTO_DRAW_INTERVAL", 0),

		// Events
		RedisAddr:    getEnv("LOTTERY_REDIS_ADDR", ""),
		RedisChannel: getEnv("LOTTERY_REDIS_CHANNEL", "lottery.events"),
	}
}

// Validate checks the values a server cannot start without.
func (c *Config) Validate() error {
	if c.Owner == "" {
		return errors.New("LOTTERY_OWNER is required")
	}
	if c.FeeBps < 0 {
		return fmt.Errorf("LOTTERY_FEE_BPS must not be negative, got %d", c.FeeBps)
	}
	if c.AutoDrawInterval < 0 {
		return fmt.Errorf("LOTTERY_AUTO_DRAW_INTERVAL must not be negative, got %s", c.AutoDrawInterval)
	}
	if _, err := c.LedgerConfig(); err != nil {
		return err
	}
	return nil
}

// LedgerConfig converts c into the ledger's parameters and validates them.
func (c *Config) LedgerConfig() (ledger.Config, error) {
	price, err := uint256.FromDecimal(c.TicketPrice)
	if err != nil {
		return ledger.Config{}, fmt.Errorf("LOTTERY_TICKET_PRICE %q: %w", c.TicketPrice, err)
	}

	cfg := ledger.DefaultConfig(c.Owner)
	if c.FeeRecipient != "" {
		cfg.FeeRecipient = c.FeeRecipient
	}
	cfg.ContractAddress = c.ContractAddress
	cfg.TicketPrice = *price
	cfg.FeeBps = uint64(c.FeeBps)
	cfg.DrawInterval = c.DrawInterval
	cfg.MaxPurchase = c.MaxPurchase
	cfg.MaxClaim = c.MaxClaim
	if err := cfg.Validate(); err != nil {
		return ledger.Config{}, err
	}
	return cfg, nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
