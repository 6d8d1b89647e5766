package ledger

import (
	"sort"
	"time"

	"github.com/holiman/uint256"

	"lottery-engine/internal/models"
)

// journal records what committed operations touched since the last
// TakeChanges.
type journal struct {
	tickets map[uint64]struct{}
	draws   map[uint64]struct{}
	players []string
	events  []Event
}

func (j *journal) reset() {
	j.tickets = make(map[uint64]struct{})
	j.draws = make(map[uint64]struct{})
	j.players = nil
	j.events = nil
}

func (j *journal) touchTicket(id uint64) { j.tickets[id] = struct{}{} }
func (j *journal) touchDraw(id uint64)   { j.draws[id] = struct{}{} }

// State is the scalar part of the ledger.
type State struct {
	CurrentDrawID uint64           `json:"currentDrawId"`
	NextDrawTime  time.Time        `json:"nextDrawTime"`
	SchemaVersion uint64           `json:"schemaVersion"`
	Paused        bool             `json:"paused"`
	Pool          uint256.Int      `json:"pool"`
	Reserved      uint256.Int      `json:"reserved"`
	Balance       uint256.Int      `json:"balance"`
	TicketCount   uint64           `json:"ticketCount"`
	Analytics     models.Analytics `json:"analytics"`
}

// Changes is everything written since the previous TakeChanges, ready to be
// persisted as one unit.
type Changes struct {
	State   State
	Tickets []models.Ticket
	Draws   []models.Draw
	Players []string
	Events  []Event
}

// Empty reports whether nothing but the state row would be written.
func (c Changes) Empty() bool {
	return len(c.Tickets) == 0 && len(c.Draws) == 0 && len(c.Players) == 0 && len(c.Events) == 0
}

// TakeChanges returns and clears the journal.
func (l *Ledger) TakeChanges() Changes {
	c := Changes{
		State:   l.state(),
		Players: l.journal.players,
		Events:  l.journal.events,
	}
	for _, id := range sortedKeys(l.journal.tickets) {
		c.Tickets = append(c.Tickets, *l.tickets[id-1])
	}
	for _, id := range sortedKeys(l.journal.draws) {
		c.Draws = append(c.Draws, *l.draws[id])
	}
	l.journal.reset()
	return c
}

func (l *Ledger) state() State {
	return State{
		CurrentDrawID: l.currentDrawID,
		NextDrawTime:  l.nextDrawTime,
		SchemaVersion: l.schemaVersion,
		Paused:        l.guard.paused,
		Pool:          l.pool,
		Reserved:      l.reserved,
		Balance:       l.balance,
		TicketCount:   uint64(len(l.tickets)),
		Analytics:     l.analytics,
	}
}

func sortedKeys(m map[uint64]struct{}) []uint64 {
	keys := make([]uint64, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
