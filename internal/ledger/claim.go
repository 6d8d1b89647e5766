package ledger

import (
	"fmt"

	"github.com/holiman/uint256"

	"lottery-engine/internal/draw"
)

// ClaimResult describes a committed claim.
type ClaimResult struct {
	// TicketIDs are the tickets that paid out; zero-prize tickets in the
	// batch are left untouched.
	TicketIDs []uint64
	Total     uint256.Int
}

type payout struct {
	id     uint64
	amount uint256.Int
}

// Claim pays caller the prizes of ticketIDs from executed draws.
func (l *Ledger) Claim(caller string, ticketIDs []uint64) (ClaimResult, error) {
	if err := l.guard.whenNotPaused(); err != nil {
		return ClaimResult{}, err
	}
	if err := l.lock.enter(); err != nil {
		return ClaimResult{}, err
	}
	defer l.lock.exit()

	if len(ticketIDs) == 0 {
		return ClaimResult{}, ErrEmptyBatch
	}
	if len(ticketIDs) > l.cfg.MaxClaim {
		return ClaimResult{}, fmt.Errorf("%w: %d tickets, max %d", ErrBatchTooLarge, len(ticketIDs), l.cfg.MaxClaim)
	}

	var total uint256.Int
	payouts := make([]payout, 0, len(ticketIDs))
	seen := make(map[uint64]struct{}, len(ticketIDs))
	for _, id := range ticketIDs {
		t, err := l.ticket(id)
		if err != nil {
			return ClaimResult{}, err
		}
		if t.Owner != caller {
			return ClaimResult{}, fmt.Errorf("%w: ticket %d", ErrNotTicketOwner, id)
		}
		if _, dup := seen[id]; dup || t.Claimed {
			return ClaimResult{}, fmt.Errorf("%w: ticket %d", ErrAlreadyClaimed, id)
		}
		seen[id] = struct{}{}

		d := l.draws[t.DrawID]
		if !d.Executed {
			return ClaimResult{}, fmt.Errorf("%w: ticket %d is in draw %d", ErrDrawNotExecuted, id, t.DrawID)
		}

		tier := draw.TierFor(t.MatchCount, t.BonusMatch)
		if !tier.OK() || d.PrizeAmounts[tier].IsZero() {
			continue
		}
		payouts = append(payouts, payout{id: id, amount: d.PrizeAmounts[tier]})
		if _, overflow := total.AddOverflow(&total, &d.PrizeAmounts[tier]); overflow {
			return ClaimResult{}, ErrOverflow
		}
	}

	if total.IsZero() {
		return ClaimResult{}, ErrNothingToClaim
	}
	if total.Gt(&l.reserved) || total.Gt(&l.balance) {
		return ClaimResult{}, fmt.Errorf("%w: owed %s, reserved %s", ErrInsufficientPool, total.Dec(), l.reserved.Dec())
	}

	if err := l.bank.Transfer(Transfer{To: caller, Amount: total, Kind: TransferPrize}); err != nil {
		return ClaimResult{}, fmt.Errorf("%w: prize to %s: %v", ErrTransferFailed, caller, err)
	}

	res := ClaimResult{Total: total, TicketIDs: make([]uint64, 0, len(payouts))}
	for _, p := range payouts {
		t := l.tickets[p.id-1]
		t.Claimed = true
		t.PrizeAmount = p.amount
		l.journal.touchTicket(p.id)
		res.TicketIDs = append(res.TicketIDs, p.id)
	}
	l.reserved.Sub(&l.reserved, &total)
	l.balance.Sub(&l.balance, &total)
	l.analytics.TotalPrizesDistributed.Add(&l.analytics.TotalPrizesDistributed, &total)

	e := newEvent(EventPrizesClaimed, l.host.Now())
	e.Account = caller
	e.TicketIDs = append([]uint64(nil), res.TicketIDs...)
	e.Amount = amountOf(&total)
	l.emit(e)

	return res, nil
}
