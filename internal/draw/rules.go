// Package draw holds the pure selection and settlement math of the lottery:
// number validation, winning-number generation, tier classification and
// prize allocation. Nothing in here keeps state.
package draw

import (
	"errors"
	"fmt"
)

const (
	// MainCount is the number of main numbers on a ticket and in a draw.
	MainCount = 5
	// TierCount is the number of prize tiers.
	TierCount = 8
	// BasisPoints is the denominator for fee and tier-share percentages.
	BasisPoints = 10000
)

// Default number ranges.
const (
	DefaultMainMin  = 1
	DefaultMainMax  = 35
	DefaultBonusMin = 1
	DefaultBonusMax = 10
)

// DefaultTierShares are the shares of the effective pool per tier, in bps.
var DefaultTierShares = [TierCount]uint64{5000, 2000, 1000, 800, 600, 400, 150, 50}

var ErrInvalidRules = errors.New("invalid draw rules")

// Rules are the number ranges and tier shares a lottery runs with.
type Rules struct {
	MainMin    int               `json:"mainMin"`
	MainMax    int               `json:"mainMax"`
	BonusMin   int               `json:"bonusMin"`
	BonusMax   int               `json:"bonusMax"`
	TierShares [TierCount]uint64 `json:"tierShares"`
}

// DefaultRules returns 5 of [1,35] plus a bonus of [1,10].
func DefaultRules() Rules {
	return Rules{
		MainMin:    DefaultMainMin,
		MainMax:    DefaultMainMax,
		BonusMin:   DefaultBonusMin,
		BonusMax:   DefaultBonusMax,
		TierShares: DefaultTierShares,
	}
}

// Validate checks the ranges can host a draw and that the tier shares do
// not exceed the whole pool.
func (r Rules) Validate() error {
	if r.MainMin < 1 || r.MainMax-r.MainMin+1 < MainCount {
		return fmt.Errorf("%w: main range [%d,%d] cannot hold %d distinct numbers", ErrInvalidRules, r.MainMin, r.MainMax, MainCount)
	}
	if r.BonusMin < 1 || r.BonusMax < r.BonusMin {
		return fmt.Errorf("%w: bonus range [%d,%d] is empty", ErrInvalidRules, r.BonusMin, r.BonusMax)
	}
	var total uint64
	for _, s := range r.TierShares {
		total += s
	}
	if total > BasisPoints {
		return fmt.Errorf("%w: tier shares sum to %d bps", ErrInvalidRules, total)
	}
	return nil
}

func (r Rules) mainSize() int {
	return r.MainMax - r.MainMin + 1
}

func (r Rules) bonusSize() int {
	return r.BonusMax - r.BonusMin + 1
}
