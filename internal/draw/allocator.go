package draw

import (
	"errors"

	"github.com/holiman/uint256"
)

var ErrOverflow = errors.New("amount overflows 256 bits")

// Allocation is the split of an effective pool across tiers.
type Allocation struct {
	// TierPools[t] is floor(pool * share[t] / 10000).
	TierPools [TierCount]uint256.Int
	// Prizes[t] is what each winner of tier t is owed.
	Prizes [TierCount]uint256.Int
	// Distributed is sum(Prizes[t] * winners[t]).
	Distributed uint256.Int
	// Rollover is pool - Distributed: unallocated bps, tiers nobody won and
	// per-winner rounding dust.
	Rollover uint256.Int
}

// Allocate computes per-winner prizes with floor division. A tier with no
// winners pays nothing and its tier pool stays in the rollover.
// Distributed never exceeds pool.
func Allocate(pool *uint256.Int, winners [TierCount]uint64, shares [TierCount]uint64) (Allocation, error) {
	var a Allocation
	var bps, count, paid uint256.Int

	denom := uint256.NewInt(BasisPoints)
	for t := 0; t < TierCount; t++ {
		bps.SetUint64(shares[t])
		if _, overflow := a.TierPools[t].MulOverflow(pool, &bps); overflow {
			return Allocation{}, ErrOverflow
		}
		a.TierPools[t].Div(&a.TierPools[t], denom)

		if winners[t] == 0 {
			continue
		}
		count.SetUint64(winners[t])
		a.Prizes[t].Div(&a.TierPools[t], &count)

		paid.Mul(&a.Prizes[t], &count)
		if _, overflow := a.Distributed.AddOverflow(&a.Distributed, &paid); overflow {
			return Allocation{}, ErrOverflow
		}
	}

	if a.Distributed.Gt(pool) {
		// Shares above 10000 bps are the only way here.
		return Allocation{}, ErrInvalidRules
	}
	a.Rollover.Sub(pool, &a.Distributed)
	return a, nil
}
