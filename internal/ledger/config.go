package ledger

import (
	"errors"
	"fmt"
	"time"

	"github.com/holiman/uint256"

	"lottery-engine/internal/chain"
	"lottery-engine/internal/draw"
	"lottery-engine/internal/entropy"
)

// Default configuration values.
const (
	DefaultFeeBps       = 500
	DefaultDrawInterval = 7 * 24 * time.Hour
	DefaultMaxPurchase  = 100
	DefaultMaxClaim     = 50
	DefaultTicketPrice  = 10_000_000_000_000_000 // 0.01 of an 18-decimal unit
	FirstDrawID         = 1
	InitialSchema       = 1
)

// Config holds the fixed parameters of a ledger.
type Config struct {
	Owner           string
	FeeRecipient    string
	ContractAddress string
	TicketPrice     uint256.Int
	FeeBps          uint64
	DrawInterval    time.Duration
	MaxPurchase     int
	MaxClaim        int
	Rules           draw.Rules
}

// DefaultConfig returns a config with every default filled in for owner.
func DefaultConfig(owner string) Config {
	return Config{
		Owner:        owner,
		FeeRecipient: owner,
		TicketPrice:  *uint256.NewInt(DefaultTicketPrice),
		FeeBps:       DefaultFeeBps,
		DrawInterval: DefaultDrawInterval,
		MaxPurchase:  DefaultMaxPurchase,
		MaxClaim:     DefaultMaxClaim,
		Rules:        draw.DefaultRules(),
	}
}

func (cfg *Config) Validate() error {
	if cfg.Owner == "" {
		return errors.New("owner is required")
	}
	if cfg.FeeRecipient == "" {
		cfg.FeeRecipient = cfg.Owner
	}
	if cfg.TicketPrice.IsZero() {
		return errors.New("ticket price must be greater than 0")
	}
	if cfg.FeeBps > draw.BasisPoints {
		return fmt.Errorf("fee of %d bps exceeds %d", cfg.FeeBps, draw.BasisPoints)
	}
	if cfg.DrawInterval <= 0 {
		return errors.New("draw interval must be greater than 0")
	}
	if cfg.MaxPurchase <= 0 {
		cfg.MaxPurchase = DefaultMaxPurchase
	}
	if cfg.MaxClaim <= 0 {
		cfg.MaxClaim = DefaultMaxClaim
	}
	return cfg.Rules.Validate()
}

// Deps are the collaborators a ledger calls out to.
type Deps struct {
	Host    chain.Host
	Entropy entropy.Source
	Bank    Bank
	// Authorizer is optional; without it only Config.Owner is privileged.
	Authorizer Authorizer
}

func (d *Deps) Validate() error {
	if d.Host == nil {
		return errors.New("host is required")
	}
	if d.Bank == nil {
		return errors.New("bank is required")
	}
	if d.Entropy == nil {
		d.Entropy = entropy.KeccakSource{}
	}
	return nil
}
