package ledger

import (
	"fmt"
	"time"

	"github.com/holiman/uint256"

	"lottery-engine/internal/draw"
	"lottery-engine/internal/models"
)

func (l *Ledger) CurrentDrawID() uint64 { return l.currentDrawID }
func (l *Ledger) NextDrawTime() time.Time { return l.nextDrawTime }
func (l *Ledger) AccumulatedPool() uint256.Int { return l.pool }
func (l *Ledger) ReservedPrizes() uint256.Int { return l.reserved }
func (l *Ledger) Balance() uint256.Int { return l.balance }
func (l *Ledger) ExcessFunds() uint256.Int { return l.excess() }
func (l *Ledger) Analytics() models.Analytics { return l.analytics }
func (l *Ledger) Paused() bool { return l.guard.paused }
func (l *Ledger) Owner() string { return l.cfg.Owner }
func (l *Ledger) SchemaVersion() uint64 { return l.schemaVersion }

// IsPrivileged exposes the access guard's predicate.
func (l *Ledger) IsPrivileged(caller string) bool {
	return l.guard.IsPrivileged(caller)
}

// DrawDue reports whether the pending draw can be executed now.
func (l *Ledger) DrawDue() bool {
	return l.due(l.host.Now())
}

// Draw returns a copy of draw id.
func (l *Ledger) Draw(id uint64) (models.Draw, error) {
	d, ok := l.draws[id]
	if !ok {
		return models.Draw{}, fmt.Errorf("%w: %d", ErrDrawNotFound, id)
	}
	return *d, nil
}

// WinnerCounts returns the per-tier winner counts of draw id.
func (l *Ledger) WinnerCounts(id uint64) ([draw.TierCount]uint64, error) {
	d, err := l.Draw(id)
	if err != nil {
		return [draw.TierCount]uint64{}, err
	}
	return d.WinnerCounts, nil
}

// Ticket returns a copy of ticket id.
func (l *Ledger) Ticket(id uint64) (models.Ticket, error) {
	t, err := l.ticket(id)
	if err != nil {
		return models.Ticket{}, err
	}
	return *t, nil
}

// TicketsByOwner lists the ticket ids bought by owner, oldest first.
func (l *Ledger) TicketsByOwner(owner string) []uint64 {
	return append([]uint64(nil), l.ownerTickets[owner]...)
}

// TicketsByDraw lists the ticket ids attached to draw id.
func (l *Ledger) TicketsByDraw(id uint64) ([]uint64, error) {
	if _, ok := l.draws[id]; !ok {
		return nil, fmt.Errorf("%w: %d", ErrDrawNotFound, id)
	}
	return append([]uint64(nil), l.drawTickets[id]...), nil
}

// PlayerTotals sums what owner has claimed and what is still claimable.
func (l *Ledger) PlayerTotals(owner string) models.PlayerTotals {
	totals := models.PlayerTotals{Owner: owner}
	for _, id := range l.ownerTickets[owner] {
		t := l.tickets[id-1]
		if t.Claimed {
			totals.Claimed.Add(&totals.Claimed, &t.PrizeAmount)
			continue
		}
		d := l.draws[t.DrawID]
		if !d.Executed {
			continue
		}
		if tier := t.Tier(); tier.OK() {
			totals.Unclaimed.Add(&totals.Unclaimed, &d.PrizeAmounts[tier])
		}
	}
	return totals
}
