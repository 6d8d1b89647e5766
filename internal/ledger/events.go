package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/holiman/uint256"

	"lottery-engine/internal/draw"
)

// EventType names a notification for observers and indexers.
type EventType string

const (
	EventTicketsPurchased  EventType = "tickets_purchased"
	EventDrawExecuted      EventType = "draw_executed"
	EventDrawSkipped       EventType = "draw_skipped"
	EventPrizesClaimed     EventType = "prizes_claimed"
	EventFeeDistributed    EventType = "fee_distributed"
	EventDonationReceived  EventType = "donation_received"
	EventExcessWithdrawn   EventType = "excess_withdrawn"
	EventPaused            EventType = "paused"
	EventUnpaused          EventType = "unpaused"
	EventUpgradeAuthorized EventType = "upgrade_authorized"
)

// Event is emitted once the operation that caused it has committed. Only
// the fields relevant to Type are set.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Time      time.Time `json:"time"`
	DrawID    uint64    `json:"drawId,omitempty"`
	Account   string    `json:"account,omitempty"`
	TicketIDs []uint64  `json:"ticketIds,omitempty"`

	Amount *uint256.Int `json:"amount,omitempty"`

	WinningMain    *[draw.MainCount]int `json:"winningMain,omitempty"`
	WinningBonus   int                  `json:"winningBonus,omitempty"`
	PoolBeforeFees *uint256.Int         `json:"poolBeforeFees,omitempty"`
	EffectivePool  *uint256.Int         `json:"effectivePool,omitempty"`
	Rollover       *uint256.Int         `json:"rollover,omitempty"`

	Version uint64 `json:"version,omitempty"`
}

func newEvent(typ EventType, at time.Time) Event {
	return Event{ID: uuid.New().String(), Type: typ, Time: at}
}

func amountOf(v *uint256.Int) *uint256.Int {
	return new(uint256.Int).Set(v)
}
