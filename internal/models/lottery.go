package models

import (
	"time"

	"github.com/holiman/uint256"

	"lottery-engine/internal/draw"
)

// Ticket represents one purchased entry.
// MatchCount and BonusMatch are frozen when the ticket's draw executes;
// Claimed and PrizeAmount are set once, by a claim.
type Ticket struct {
	ID           uint64              `json:"id"`
	Owner        string              `json:"owner"`
	MainNumbers  [draw.MainCount]int `json:"mainNumbers"`
	BonusNumber  int                 `json:"bonusNumber"`
	DrawID       uint64              `json:"drawId"`
	PurchaseTime time.Time           `json:"purchaseTime"`
	MatchCount   int                 `json:"matchCount"`
	BonusMatch   bool                `json:"bonusMatch"`
	Claimed      bool                `json:"claimed"`
	PrizeAmount  uint256.Int         `json:"prizeAmount"`
}

// Tier returns the prize tier the ticket landed in. It is only meaningful
// once the ticket's draw has executed.
func (t *Ticket) Tier() draw.Tier {
	return draw.TierFor(t.MatchCount, t.BonusMatch)
}

// Draw is one settlement round. A draw is Pending until Executed (or
// Skipped, when it closed with no tickets) flips to true.
type Draw struct {
	ID                       uint64                      `json:"id"`
	WinningMainNumbers       [draw.MainCount]int         `json:"winningMainNumbers"`
	WinningBonusNumber       int                         `json:"winningBonusNumber"`
	Timestamp                time.Time                   `json:"timestamp"`
	TotalPrizePoolBeforeFees uint256.Int                 `json:"totalPrizePoolBeforeFees"`
	EffectivePrizePool       uint256.Int                 `json:"effectivePrizePool"`
	Executed                 bool                        `json:"executed"`
	Skipped                  bool                        `json:"skipped"`
	TotalTickets             uint64                      `json:"totalTickets"`
	RandomSeed               uint256.Int                 `json:"randomSeed"`
	WinnerCounts             [draw.TierCount]uint64      `json:"winnerCounts"`
	PrizeAmounts             [draw.TierCount]uint256.Int `json:"prizeAmounts"`
}

// Closed reports whether the draw can no longer accept tickets.
func (d *Draw) Closed() bool {
	return d.Executed || d.Skipped
}

// Analytics holds the aggregate, monotonically non-decreasing counters.
type Analytics struct {
	TotalDraws             uint64      `json:"totalDraws"`
	TotalTicketsSold       uint64      `json:"totalTicketsSold"`
	TotalVolume            uint256.Int `json:"totalVolume"`
	TotalPrizesDistributed uint256.Int `json:"totalPrizesDistributed"`
	TotalFeesCollected     uint256.Int `json:"totalFeesCollected"`
	TotalUniquePlayers     uint64      `json:"totalUniquePlayers"`
}

// PlayerTotals summarizes what an owner has been paid and what is still
// claimable from executed draws.
type PlayerTotals struct {
	Owner     string      `json:"owner"`
	Claimed   uint256.Int `json:"claimed"`
	Unclaimed uint256.Int `json:"unclaimed"`
}
