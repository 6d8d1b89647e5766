// Package ledger is the lottery's state aggregate. It owns every draw,
// ticket, balance and counter, and runs purchase, settlement and claim
// against them.
//
// A Ledger is not safe for concurrent use: the host is expected to run one
// operation at a time. Every mutating operation is all-or-nothing; all
// checks and the outgoing transfer happen before any state is written.
package ledger

import (
	"fmt"
	"time"

	"github.com/holiman/uint256"

	"lottery-engine/internal/chain"
	"lottery-engine/internal/entropy"
	"lottery-engine/internal/models"
)

// Ledger is the LedgerAccount aggregate.
type Ledger struct {
	cfg     Config
	host    chain.Host
	entropy entropy.Source
	bank    Bank

	guard AccessGuard
	lock  ReentrancyLock

	currentDrawID uint64
	nextDrawTime  time.Time
	schemaVersion uint64

	// pool funds the next draw. reserved holds prizes allocated by executed
	// draws and not yet claimed. balance is everything the ledger holds,
	// including donations; balance - pool - reserved is excess.
	pool     uint256.Int
	reserved uint256.Int
	balance  uint256.Int

	draws        map[uint64]*models.Draw
	tickets      []*models.Ticket
	drawTickets  map[uint64][]uint64
	ownerTickets map[string][]uint64
	players      map[string]struct{}
	analytics    models.Analytics

	journal journal
}

// New creates an empty ledger with draw FirstDrawID open for tickets.
func New(cfg Config, deps Deps) (*Ledger, error) {
	l, err := newLedger(cfg, deps)
	if err != nil {
		return nil, err
	}
	l.schemaVersion = InitialSchema
	l.openDraw(FirstDrawID, l.host.Now())
	return l, nil
}

func newLedger(cfg Config, deps Deps) (*Ledger, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("ledger config: %w", err)
	}
	if err := deps.Validate(); err != nil {
		return nil, fmt.Errorf("ledger deps: %w", err)
	}
	l := &Ledger{
		cfg:          cfg,
		host:         deps.Host,
		entropy:      deps.Entropy,
		bank:         deps.Bank,
		guard:        newAccessGuard(cfg.Owner, deps.Authorizer),
		draws:        make(map[uint64]*models.Draw),
		drawTickets:  make(map[uint64][]uint64),
		ownerTickets: make(map[string][]uint64),
		players:      make(map[string]struct{}),
	}
	l.journal.reset()
	return l, nil
}

// Config returns the ledger's configuration.
func (l *Ledger) Config() Config {
	return l.cfg
}

// openDraw allocates draw id as the pending draw and schedules its deadline.
func (l *Ledger) openDraw(id uint64, now time.Time) {
	l.currentDrawID = id
	l.nextDrawTime = now.Add(l.cfg.DrawInterval)
	l.draws[id] = &models.Draw{ID: id}
	l.journal.touchDraw(id)
}

func (l *Ledger) emit(e Event) {
	l.journal.events = append(l.journal.events, e)
}

func (l *Ledger) ticket(id uint64) (*models.Ticket, error) {
	if id == 0 || id > uint64(len(l.tickets)) {
		return nil, fmt.Errorf("%w: %d", ErrTicketNotFound, id)
	}
	return l.tickets[id-1], nil
}

// excess is balance - pool - reserved, clamped at zero.
func (l *Ledger) excess() uint256.Int {
	var tracked, out uint256.Int
	tracked.Add(&l.pool, &l.reserved)
	if l.balance.Gt(&tracked) {
		out.Sub(&l.balance, &tracked)
	}
	return out
}
