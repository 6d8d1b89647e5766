package services

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/logger"
	"github.com/holiman/uint256"
	"golang.org/x/crypto/sha3"

	"lottery-engine/internal/chain"
	"lottery-engine/internal/draw"
	"lottery-engine/internal/entropy"
	"lottery-engine/internal/events"
	"lottery-engine/internal/ledger"
	"lottery-engine/internal/metrics"
	"lottery-engine/internal/models"
	"lottery-engine/internal/storage"
)

// Store persists the ledger between operations.
type Store interface {
	Load(ctx context.Context) (ledger.Snapshot, chain.Block, bool, error)
	Save(ctx context.Context, ch ledger.Changes, payouts []ledger.Transfer, tip chain.Block) error
	Payouts(ctx context.Context, limit int) ([]storage.Payout, error)
	PendingPayouts(ctx context.Context, limit int) ([]storage.Payout, error)
	MarkDispatched(ctx context.Context, id int64, at time.Time) error
	Events(ctx context.Context, drawID uint64, limit int) ([]ledger.Event, error)
}

// Options are the collaborators of a LotteryService. Host and Store are
// required.
type Options struct {
	Host      *chain.SimulatedHost
	Store     Store
	Entropy   entropy.Source
	Publisher events.Publisher
	// Bank, if set, receives each stored payout after the operation that
	// made it has been saved. A payout the bank rejects stays pending
	// until the next dispatch.
	Bank ledger.Bank
}

// dispatchBatch bounds how many pending payouts one query fetches.
const dispatchBatch = 100

// outbox collects the transfers of the operation in flight so they are
// saved in the same transaction as the ledger changes. Nothing leaves the
// service until that transaction commits.
type outbox struct {
	pending []ledger.Transfer
}

func (o *outbox) Transfer(t ledger.Transfer) error {
	o.pending = append(o.pending, t)
	return nil
}

func (o *outbox) take() []ledger.Transfer {
	p := o.pending
	o.pending = nil
	return p
}

// LotteryService runs ledger operations one at a time and makes each one
// durable before reporting success.
type LotteryService struct {
	mu        sync.Mutex
	cfg       ledger.Config
	host      *chain.SimulatedHost
	store     Store
	entropy   entropy.Source
	publisher events.Publisher
	outbox    *outbox
	bank      ledger.Bank
	ledger    *ledger.Ledger
	picks     uint64

	// dispatchMu is held while payouts go to the bank; s.mu never is.
	dispatchMu     sync.Mutex
	dispatchWanted atomic.Bool
}

// NewLotteryService restores the ledger from the store, or starts a new one
// when the store is empty.
func NewLotteryService(ctx context.Context, cfg ledger.Config, opts Options) (*LotteryService, error) {
	if opts.Host == nil || opts.Store == nil {
		return nil, errors.New("host and store are required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("ledger config: %w", err)
	}
	if opts.Entropy == nil {
		opts.Entropy = entropy.KeccakSource{}
	}
	if opts.Publisher == nil {
		opts.Publisher = events.LogPublisher{}
	}
	s := &LotteryService{
		cfg:       cfg,
		host:      opts.Host,
		store:     opts.Store,
		entropy:   opts.Entropy,
		publisher: opts.Publisher,
		outbox:    &outbox{},
		bank:      opts.Bank,
	}

	restored, err := s.reload(ctx)
	if err != nil {
		return nil, err
	}
	if restored {
		logger.Infof("Restored ledger at draw %d, block %d", s.ledger.CurrentDrawID(), s.host.Block().Height)
		if err := s.DispatchPayouts(ctx); err != nil {
			logger.Warningf("Pending payouts left after restart: %v", err)
		}
		return s, nil
	}

	if s.ledger, err = ledger.New(cfg, s.deps()); err != nil {
		return nil, err
	}
	if err := s.store.Save(ctx, s.ledger.TakeChanges(), nil, s.host.Block()); err != nil {
		return nil, fmt.Errorf("save new ledger: %w", err)
	}
	logger.Infof("Started new ledger, draw %d closes at %s", s.ledger.CurrentDrawID(), s.ledger.NextDrawTime())
	return s, nil
}

func (s *LotteryService) deps() ledger.Deps {
	return ledger.Deps{Host: s.host, Entropy: s.entropy, Bank: s.outbox}
}

// reload replaces the in-memory ledger with the stored one. It reports
// false, leaving the ledger untouched, when nothing is stored.
func (s *LotteryService) reload(ctx context.Context) (bool, error) {
	snap, tip, ok, err := s.store.Load(ctx)
	if err != nil {
		return false, fmt.Errorf("load ledger: %w", err)
	}
	if !ok {
		return false, nil
	}
	s.host.Restore(tip)
	l, err := ledger.Restore(s.cfg, s.deps(), snap)
	if err != nil {
		return false, err
	}
	s.ledger = l
	s.outbox.take()
	return true, nil
}

// mutate commits op, then hands its payouts to the bank. A bank failure
// does not fail the committed operation; the payout stays pending.
func (s *LotteryService) mutate(ctx context.Context, name string, op func(l *ledger.Ledger) error) error {
	if err := s.commit(ctx, name, op); err != nil {
		return err
	}
	if err := s.DispatchPayouts(ctx); err != nil {
		logger.Warningf("%s: payout dispatch: %v", name, err)
	}
	return nil
}

// commit runs op against the ledger in a fresh block, then persists and
// publishes what it changed. A failed save rolls the ledger back to the
// stored state and fails the operation.
func (s *LotteryService) commit(ctx context.Context, name string, op func(l *ledger.Ledger) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.host.Mine()
	if err := op(s.ledger); err != nil {
		s.outbox.take()
		metrics.RecordOperation(name, ledger.KindOf(err).String())
		return err
	}

	ch := s.ledger.TakeChanges()
	if err := s.store.Save(ctx, ch, s.outbox.take(), s.host.Block()); err != nil {
		metrics.PersistFailuresTotal.Inc()
		metrics.RecordOperation(name, ledger.KindInternal.String())
		logger.Errorf("%s: save failed, rolling back: %v", name, err)
		if _, rerr := s.reload(ctx); rerr != nil {
			logger.Errorf("%s: reload after failed save: %v", name, rerr)
		}
		return fmt.Errorf("%s: %w", name, err)
	}

	metrics.RecordOperation(name, "ok")
	observe(ch.Events)
	metrics.RecordBalances(s.ledger.AccumulatedPool(), s.ledger.ReservedPrizes(), s.ledger.ExcessFunds())
	if err := s.publisher.Publish(ctx, ch.Events); err != nil {
		logger.Warningf("%s: publish events: %v", name, err)
	}
	return nil
}

// DispatchPayouts hands every pending payout to the bank, oldest first,
// and marks each one the bank accepts. It stops at the first rejection.
// A call made while another dispatch is running, including one from
// inside the bank, leaves the work to the running dispatch.
func (s *LotteryService) DispatchPayouts(ctx context.Context) error {
	if s.bank == nil {
		return nil
	}
	s.dispatchWanted.Store(true)
	for s.dispatchWanted.Load() {
		if !s.dispatchMu.TryLock() {
			return nil
		}
		s.dispatchWanted.Store(false)
		err := s.dispatchPending(ctx)
		s.dispatchMu.Unlock()
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *LotteryService) dispatchPending(ctx context.Context) error {
	for {
		pending, err := s.store.PendingPayouts(ctx, dispatchBatch)
		if err != nil {
			return fmt.Errorf("list pending payouts: %w", err)
		}
		if len(pending) == 0 {
			return nil
		}
		for _, p := range pending {
			if err := s.bank.Transfer(p.Transfer); err != nil {
				metrics.RecordOperation("dispatch", ledger.KindTransfer.String())
				return fmt.Errorf("payout %d: %w: %v", p.ID, ledger.ErrTransferFailed, err)
			}
			if err := s.store.MarkDispatched(ctx, p.ID, s.host.Now()); err != nil {
				// The bank has the transfer; a retry would send it again.
				logger.Errorf("Payout %d sent but not marked: %v", p.ID, err)
				return fmt.Errorf("mark payout %d: %w", p.ID, err)
			}
			metrics.RecordOperation("dispatch", "ok")
		}
	}
}

func observe(evs []ledger.Event) {
	for _, e := range evs {
		switch e.Type {
		case ledger.EventTicketsPurchased:
			metrics.TicketsSoldTotal.Add(float64(len(e.TicketIDs)))
		case ledger.EventDrawExecuted:
			metrics.DrawsTotal.WithLabelValues("executed").Inc()
		case ledger.EventDrawSkipped:
			metrics.DrawsTotal.WithLabelValues("skipped").Inc()
		case ledger.EventPrizesClaimed:
			metrics.PrizeClaimsTotal.Add(float64(len(e.TicketIDs)))
		}
	}
}

// Purchase buys tickets for caller.
func (s *LotteryService) Purchase(ctx context.Context, caller string, reqs []ledger.TicketRequest, payment *uint256.Int) (res ledger.PurchaseResult, err error) {
	err = s.mutate(ctx, "purchase", func(l *ledger.Ledger) error {
		res, err = l.Purchase(caller, reqs, payment)
		return err
	})
	if err == nil && res.Settled != nil {
		logger.Infof("Draw %d closed by purchase (executed=%t)", res.Settled.ID, res.Settled.Executed)
	}
	return res, err
}

// Claim pays caller's winning tickets.
func (s *LotteryService) Claim(ctx context.Context, caller string, ticketIDs []uint64) (res ledger.ClaimResult, err error) {
	err = s.mutate(ctx, "claim", func(l *ledger.Ledger) error {
		res, err = l.Claim(caller, ticketIDs)
		return err
	})
	return res, err
}

func (s *LotteryService) Donate(ctx context.Context, from string, amount *uint256.Int) error {
	return s.mutate(ctx, "donate", func(l *ledger.Ledger) error {
		return l.Donate(from, amount)
	})
}

// ExecuteDraw settles the pending draw for a privileged caller.
func (s *LotteryService) ExecuteDraw(ctx context.Context, caller string) (d models.Draw, err error) {
	err = s.mutate(ctx, "execute_draw", func(l *ledger.Ledger) error {
		d, err = l.ExecuteDraw(caller)
		return err
	})
	if err == nil {
		logger.Infof("Draw %d executed by %s", d.ID, caller)
	}
	return d, err
}

// AutoDraw settles the pending draw as the owner if it is overdue. It
// returns nil when there was nothing to do.
func (s *LotteryService) AutoDraw(ctx context.Context) (*models.Draw, error) {
	s.mu.Lock()
	idle := s.ledger.Paused() || !s.ledger.DrawDue()
	s.mu.Unlock()
	if idle {
		return nil, nil
	}

	d, err := s.ExecuteDraw(ctx, s.cfg.Owner)
	if errors.Is(err, ledger.ErrDrawNotDue) || errors.Is(err, ledger.ErrPaused) {
		// Raced with a purchase or a pause.
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *LotteryService) Pause(ctx context.Context, caller string) error {
	return s.mutate(ctx, "pause", func(l *ledger.Ledger) error {
		return l.Pause(caller)
	})
}

func (s *LotteryService) Unpause(ctx context.Context, caller string) error {
	return s.mutate(ctx, "unpause", func(l *ledger.Ledger) error {
		return l.Unpause(caller)
	})
}

func (s *LotteryService) WithdrawExcess(ctx context.Context, caller string, amount *uint256.Int) error {
	return s.mutate(ctx, "withdraw_excess", func(l *ledger.Ledger) error {
		return l.WithdrawExcess(caller, amount)
	})
}

func (s *LotteryService) AuthorizeUpgrade(ctx context.Context, caller string, version uint64) error {
	return s.mutate(ctx, "authorize_upgrade", func(l *ledger.Ledger) error {
		return l.AuthorizeUpgrade(caller, version)
	})
}

// QuickPick returns a valid random selection for caller. It is a
// convenience for clients and carries no state.
func (s *LotteryService) QuickPick(caller string) ([draw.MainCount]int, int, error) {
	s.mu.Lock()
	s.picks++
	blk := s.host.Block()
	nonce := s.picks
	drawID := s.ledger.CurrentDrawID()
	s.mu.Unlock()

	seed, err := s.entropy.Seed(entropy.Context{
		Timestamp: s.host.Now().Unix(),
		Height:    blk.Height,
		PrevHash:  blk.Hash,
		Contract:  s.cfg.ContractAddress,
		DrawID:    drawID,
	})
	if err != nil {
		return [draw.MainCount]int{}, 0, err
	}
	pick := pickSeed(&seed, caller, nonce)
	main, bonus := draw.QuickPick(&pick, s.cfg.Rules)
	return main, bonus, nil
}

// pickSeed personalizes a quick pick. The result never feeds a draw.
func pickSeed(seed *uint256.Int, caller string, nonce uint64) uint256.Int {
	kh := sha3.NewLegacyKeccak256()
	b := seed.Bytes32()
	kh.Write(b[:])
	kh.Write([]byte(caller))
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], nonce)
	kh.Write(n[:])

	var out uint256.Int
	out.SetBytes(kh.Sum(nil))
	return out
}

// --- Reads ---

// Summary is the public state of the ledger.
type Summary struct {
	CurrentDrawID   uint64           `json:"currentDrawId"`
	NextDrawTime    time.Time        `json:"nextDrawTime"`
	DrawDue         bool             `json:"drawDue"`
	Paused          bool             `json:"paused"`
	TicketPrice     *uint256.Int     `json:"ticketPrice"`
	FeeBps          uint64           `json:"feeBps"`
	AccumulatedPool *uint256.Int     `json:"accumulatedPool"`
	ReservedPrizes  *uint256.Int     `json:"reservedPrizes"`
	Balance         *uint256.Int     `json:"balance"`
	ExcessFunds     *uint256.Int     `json:"excessFunds"`
	SchemaVersion   uint64           `json:"schemaVersion"`
	Owner           string           `json:"owner"`
	Analytics       models.Analytics `json:"analytics"`
}

func (s *LotteryService) Summary() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()

	l := s.ledger
	pool, reserved, balance, excess := l.AccumulatedPool(), l.ReservedPrizes(), l.Balance(), l.ExcessFunds()
	price := s.cfg.TicketPrice
	return Summary{
		CurrentDrawID:   l.CurrentDrawID(),
		NextDrawTime:    l.NextDrawTime(),
		DrawDue:         l.DrawDue(),
		Paused:          l.Paused(),
		TicketPrice:     &price,
		FeeBps:          s.cfg.FeeBps,
		AccumulatedPool: &pool,
		ReservedPrizes:  &reserved,
		Balance:         &balance,
		ExcessFunds:     &excess,
		SchemaVersion:   l.SchemaVersion(),
		Owner:           l.Owner(),
		Analytics:       l.Analytics(),
	}
}

func (s *LotteryService) Draw(id uint64) (models.Draw, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.Draw(id)
}

func (s *LotteryService) CurrentDraw() models.Draw {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, _ := s.ledger.Draw(s.ledger.CurrentDrawID())
	return d
}

func (s *LotteryService) WinnerCounts(id uint64) ([draw.TierCount]uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.WinnerCounts(id)
}

func (s *LotteryService) Ticket(id uint64) (models.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.Ticket(id)
}

// TicketsByOwner returns every ticket bought by owner.
func (s *LotteryService) TicketsByOwner(owner string) []models.Ticket {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.collect(s.ledger.TicketsByOwner(owner))
}

func (s *LotteryService) TicketsByDraw(id uint64) ([]models.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids, err := s.ledger.TicketsByDraw(id)
	if err != nil {
		return nil, err
	}
	return s.collect(ids), nil
}

func (s *LotteryService) collect(ids []uint64) []models.Ticket {
	tickets := make([]models.Ticket, 0, len(ids))
	for _, id := range ids {
		t, err := s.ledger.Ticket(id)
		if err != nil {
			continue
		}
		tickets = append(tickets, t)
	}
	return tickets
}

func (s *LotteryService) PlayerTotals(owner string) models.PlayerTotals {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.PlayerTotals(owner)
}

func (s *LotteryService) IsPrivileged(caller string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.IsPrivileged(caller)
}

// Payouts lists recent outgoing transfers from the store.
func (s *LotteryService) Payouts(ctx context.Context, limit int) ([]storage.Payout, error) {
	return s.store.Payouts(ctx, limit)
}

// Events lists recent events from the store, optionally for one draw.
func (s *LotteryService) Events(ctx context.Context, drawID uint64, limit int) ([]ledger.Event, error) {
	return s.store.Events(ctx, drawID, limit)
}
