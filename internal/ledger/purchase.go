package ledger

import (
	"fmt"

	"github.com/holiman/uint256"

	"lottery-engine/internal/draw"
	"lottery-engine/internal/models"
)

// TicketRequest is one entry of a purchase batch.
type TicketRequest struct {
	MainNumbers []int `json:"mainNumbers"`
	BonusNumber int   `json:"bonusNumber"`
}

// PurchaseResult describes a committed purchase.
type PurchaseResult struct {
	DrawID    uint64
	TicketIDs []uint64
	Fee       uint256.Int
	// Settled is the draw closed as a side effect of this purchase, if any.
	Settled *models.Draw
}

// Purchase buys len(reqs) tickets for caller, paying exactly
// TicketPrice * len(reqs). If the pending draw is overdue it is settled
// first and the tickets go into the next one.
func (l *Ledger) Purchase(caller string, reqs []TicketRequest, payment *uint256.Int) (PurchaseResult, error) {
	if err := l.guard.whenNotPaused(); err != nil {
		return PurchaseResult{}, err
	}
	if err := l.lock.enter(); err != nil {
		return PurchaseResult{}, err
	}
	defer l.lock.exit()

	if caller == "" {
		return PurchaseResult{}, ErrInvalidAccount
	}
	n := len(reqs)
	if n == 0 {
		return PurchaseResult{}, ErrEmptyBatch
	}
	if n > l.cfg.MaxPurchase {
		return PurchaseResult{}, fmt.Errorf("%w: %d tickets, max %d", ErrBatchTooLarge, n, l.cfg.MaxPurchase)
	}

	var cost uint256.Int
	if _, overflow := cost.MulOverflow(&l.cfg.TicketPrice, uint256.NewInt(uint64(n))); overflow {
		return PurchaseResult{}, ErrOverflow
	}
	if payment == nil || !cost.Eq(payment) {
		return PurchaseResult{}, fmt.Errorf("%w: want %s", ErrWrongPayment, cost.Dec())
	}

	selections := make([][draw.MainCount]int, n)
	for i, r := range reqs {
		sel, err := draw.Selection(r.MainNumbers, r.BonusNumber, l.cfg.Rules)
		if err != nil {
			return PurchaseResult{}, fmt.Errorf("ticket %d: %w", i, err)
		}
		selections[i] = sel
	}

	now := l.host.Now()
	var s *settlement
	if l.due(now) {
		var err error
		if s, err = l.prepareSettlement(now); err != nil {
			return PurchaseResult{}, err
		}
	}

	var fee, net uint256.Int
	if _, overflow := fee.MulOverflow(&cost, uint256.NewInt(l.cfg.FeeBps)); overflow {
		return PurchaseResult{}, ErrOverflow
	}
	fee.Div(&fee, uint256.NewInt(draw.BasisPoints))
	net.Sub(&cost, &fee)

	pool := l.pool
	if s != nil {
		pool = s.rollover
	}
	var newPool, newBalance, newVolume uint256.Int
	_, o1 := newPool.AddOverflow(&pool, &net)
	_, o2 := newBalance.AddOverflow(&l.balance, &net)
	_, o3 := newVolume.AddOverflow(&l.analytics.TotalVolume, &cost)
	if o1 || o2 || o3 {
		return PurchaseResult{}, ErrOverflow
	}

	drawID := l.currentDrawID
	if s != nil {
		drawID = s.draw.ID + 1
	}
	if !fee.IsZero() {
		err := l.bank.Transfer(Transfer{To: l.cfg.FeeRecipient, Amount: fee, Kind: TransferFee, DrawID: drawID})
		if err != nil {
			return PurchaseResult{}, fmt.Errorf("%w: fee to %s: %v", ErrTransferFailed, l.cfg.FeeRecipient, err)
		}
	}

	// Nothing below can fail.
	res := PurchaseResult{DrawID: drawID, Fee: fee}
	if s != nil {
		l.commitSettlement(s, now)
		settled := s.draw
		res.Settled = &settled
	}

	l.pool = newPool
	l.balance = newBalance

	res.TicketIDs = make([]uint64, 0, n)
	for i, sel := range selections {
		t := &models.Ticket{
			ID:           uint64(len(l.tickets) + 1),
			Owner:        caller,
			MainNumbers:  sel,
			BonusNumber:  reqs[i].BonusNumber,
			DrawID:       drawID,
			PurchaseTime: now,
		}
		l.tickets = append(l.tickets, t)
		l.drawTickets[drawID] = append(l.drawTickets[drawID], t.ID)
		l.ownerTickets[caller] = append(l.ownerTickets[caller], t.ID)
		l.journal.touchTicket(t.ID)
		res.TicketIDs = append(res.TicketIDs, t.ID)
	}

	if _, seen := l.players[caller]; !seen {
		l.players[caller] = struct{}{}
		l.journal.players = append(l.journal.players, caller)
		l.analytics.TotalUniquePlayers++
	}
	l.analytics.TotalTicketsSold += uint64(n)
	l.analytics.TotalVolume = newVolume
	l.analytics.TotalFeesCollected.Add(&l.analytics.TotalFeesCollected, &fee)

	if !fee.IsZero() {
		e := newEvent(EventFeeDistributed, now)
		e.DrawID = drawID
		e.Account = l.cfg.FeeRecipient
		e.Amount = amountOf(&fee)
		l.emit(e)
	}
	e := newEvent(EventTicketsPurchased, now)
	e.DrawID = drawID
	e.Account = caller
	e.TicketIDs = append([]uint64(nil), res.TicketIDs...)
	e.Amount = amountOf(&cost)
	l.emit(e)

	return res, nil
}
