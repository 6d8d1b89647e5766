package ledger

import (
	"fmt"
	"time"

	"github.com/holiman/uint256"

	"lottery-engine/internal/draw"
	"lottery-engine/internal/entropy"
	"lottery-engine/internal/models"
)

type ticketMatch struct {
	id         uint64
	matchCount int
	bonusMatch bool
}

// settlement is a fully computed draw execution that has not been applied.
type settlement struct {
	draw      models.Draw
	matches   []ticketMatch
	allocated uint256.Int
	rollover  uint256.Int
}

// due reports whether the pending draw's deadline has passed.
func (l *Ledger) due(now time.Time) bool {
	return !now.Before(l.nextDrawTime)
}

// prepareSettlement computes the execution of the pending draw without
// touching any state. A draw with no tickets comes back Skipped.
func (l *Ledger) prepareSettlement(now time.Time) (*settlement, error) {
	id := l.currentDrawID
	pending, ok := l.draws[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrDrawNotFound, id)
	}
	if pending.Closed() {
		return nil, fmt.Errorf("%w: %d", ErrDrawAlreadyExecuted, id)
	}

	s := &settlement{draw: *pending}
	s.draw.Timestamp = now

	ids := l.drawTickets[id]
	if len(ids) == 0 {
		s.draw.Skipped = true
		s.rollover = l.pool
		return s, nil
	}

	blk := l.host.Block()
	seed, err := l.entropy.Seed(entropy.Context{
		Timestamp: blk.Timestamp.Unix(),
		Height:    blk.Height,
		PrevHash:  blk.PrevHash,
		Contract:  l.cfg.ContractAddress,
		DrawID:    id,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: draw %d: %v", ErrEntropy, id, err)
	}
	result := draw.Generate(&seed, l.cfg.Rules)

	s.draw.WinningMainNumbers = result.Main
	s.draw.WinningBonusNumber = result.Bonus
	s.draw.RandomSeed = result.Seed
	s.draw.TotalTickets = uint64(len(ids))
	// The fee is taken at purchase, so the pool is already net of fees.
	s.draw.TotalPrizePoolBeforeFees = l.pool
	s.draw.EffectivePrizePool = l.pool

	s.matches = make([]ticketMatch, 0, len(ids))
	for _, tid := range ids {
		t := l.tickets[tid-1]
		c := draw.Classify(t.MainNumbers, t.BonusNumber, result.Main, result.Bonus)
		s.matches = append(s.matches, ticketMatch{id: tid, matchCount: c.MatchCount, bonusMatch: c.BonusMatch})
		if c.Tier.OK() {
			s.draw.WinnerCounts[c.Tier]++
		}
	}

	alloc, err := draw.Allocate(&s.draw.EffectivePrizePool, s.draw.WinnerCounts, l.cfg.Rules.TierShares)
	if err != nil {
		return nil, fmt.Errorf("allocate draw %d: %w", id, err)
	}
	s.draw.PrizeAmounts = alloc.Prizes
	s.draw.Executed = true
	s.allocated = alloc.Distributed
	s.rollover = alloc.Rollover
	return s, nil
}

// commitSettlement applies s and opens the next draw. It cannot fail.
func (l *Ledger) commitSettlement(s *settlement, now time.Time) {
	d := s.draw
	l.draws[d.ID] = &d
	l.journal.touchDraw(d.ID)

	if d.Skipped {
		e := newEvent(EventDrawSkipped, now)
		e.DrawID = d.ID
		l.emit(e)
	} else {
		for _, m := range s.matches {
			t := l.tickets[m.id-1]
			t.MatchCount = m.matchCount
			t.BonusMatch = m.bonusMatch
			l.journal.touchTicket(m.id)
		}
		l.pool = s.rollover
		l.reserved.Add(&l.reserved, &s.allocated)
		l.analytics.TotalDraws++

		e := newEvent(EventDrawExecuted, now)
		e.DrawID = d.ID
		winning := d.WinningMainNumbers
		e.WinningMain = &winning
		e.WinningBonus = d.WinningBonusNumber
		e.PoolBeforeFees = amountOf(&d.TotalPrizePoolBeforeFees)
		e.EffectivePool = amountOf(&d.EffectivePrizePool)
		e.Rollover = amountOf(&s.rollover)
		l.emit(e)
	}

	l.openDraw(d.ID+1, now)
}

// ExecuteDraw settles the pending draw on behalf of a privileged caller.
// The deadline must have passed.
func (l *Ledger) ExecuteDraw(caller string) (models.Draw, error) {
	if err := l.guard.whenNotPaused(); err != nil {
		return models.Draw{}, err
	}
	if err := l.guard.requirePrivileged(caller); err != nil {
		return models.Draw{}, err
	}
	if err := l.lock.enter(); err != nil {
		return models.Draw{}, err
	}
	defer l.lock.exit()

	now := l.host.Now()
	if !l.due(now) {
		return models.Draw{}, fmt.Errorf("%w: draw %d closes at %s", ErrDrawNotDue, l.currentDrawID, l.nextDrawTime.Format(time.RFC3339))
	}
	s, err := l.prepareSettlement(now)
	if err != nil {
		return models.Draw{}, err
	}
	l.commitSettlement(s, now)
	return s.draw, nil
}
