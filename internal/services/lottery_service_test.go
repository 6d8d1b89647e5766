package services

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/logger"
	"github.com/holiman/uint256"
	"github.com/jonboulle/clockwork"

	"lottery-engine/internal/chain"
	"lottery-engine/internal/draw"
	"lottery-engine/internal/entropy"
	"lottery-engine/internal/ledger"
	"lottery-engine/internal/storage"
)

const testOwner = "0xowner"

func TestMain(m *testing.M) {
	defer logger.Init("test", false, false, io.Discard).Close()
	m.Run()
}

// flakyStore fails the next Save when failNext is set.
type flakyStore struct {
	*storage.Storage
	failNext bool
}

func (f *flakyStore) Save(ctx context.Context, ch ledger.Changes, payouts []ledger.Transfer, tip chain.Block) error {
	if f.failNext {
		f.failNext = false
		return errors.New("disk full")
	}
	return f.Storage.Save(ctx, ch, payouts, tip)
}

func testConfig() ledger.Config {
	cfg := ledger.DefaultConfig(testOwner)
	cfg.TicketPrice = *uint256.NewInt(1_000)
	cfg.DrawInterval = time.Hour
	return cfg
}

func newTestService(t *testing.T, dbPath string, clock clockwork.Clock) (*LotteryService, *flakyStore) {
	t.Helper()
	st, err := storage.New(dbPath)
	if err != nil {
		t.Fatalf("Expected no error opening storage, but got %v", err)
	}
	t.Cleanup(func() { st.Close() })

	store := &flakyStore{Storage: st}
	service, err := NewLotteryService(context.Background(), testConfig(), Options{
		Host:    chain.NewSimulatedHost(clock, [32]byte{0x42}),
		Store:   store,
		Entropy: entropy.Fixed(3),
	})
	if err != nil {
		t.Fatalf("Expected no error creating service, but got %v", err)
	}
	return service, store
}

func TestLotteryService_Lifecycle(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "lottery.db")
	clock := clockwork.NewFakeClockAt(time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC))
	service, store := newTestService(t, dbPath, clock)

	winning := draw.Generate(uint256.NewInt(3), draw.DefaultRules())
	jackpot := ledger.TicketRequest{MainNumbers: winning.Main[:], BonusNumber: winning.Bonus}

	t.Run("Test purchase is persisted", func(t *testing.T) {
		res, err := service.Purchase(ctx, "0xalice", []ledger.TicketRequest{jackpot}, uint256.NewInt(1_000))
		if err != nil {
			t.Fatalf("Expected no error, but got %v", err)
		}
		if len(res.TicketIDs) != 1 || res.TicketIDs[0] != 1 {
			t.Fatalf("Expected ticket 1, but got %v", res.TicketIDs)
		}

		payouts, err := service.Payouts(ctx, 10)
		if err != nil {
			t.Fatalf("Expected no error listing payouts, but got %v", err)
		}
		if len(payouts) != 1 || payouts[0].Transfer.Kind != ledger.TransferFee {
			t.Errorf("Expected one fee payout, but got %+v", payouts)
		}
	})

	t.Run("Test invalid purchase changes nothing", func(t *testing.T) {
		_, err := service.Purchase(ctx, "0xbob", []ledger.TicketRequest{{MainNumbers: []int{1, 2, 3}, BonusNumber: 1}}, uint256.NewInt(1_000))
		if ledger.KindOf(err) != ledger.KindInputValidation {
			t.Fatalf("Expected an input validation error, but got %v", err)
		}
		if got := service.TicketsByOwner("0xbob"); len(got) != 0 {
			t.Errorf("Expected no tickets for bob, but got %d", len(got))
		}
	})

	t.Run("Test failed save rolls the operation back", func(t *testing.T) {
		store.failNext = true
		before := service.Summary()

		_, err := service.Purchase(ctx, "0xbob", []ledger.TicketRequest{jackpot}, uint256.NewInt(1_000))
		if err == nil {
			t.Fatal("Expected an error when the save fails, but got nil")
		}
		if got := service.TicketsByOwner("0xbob"); len(got) != 0 {
			t.Errorf("Expected the rolled back ticket to be gone, but got %d", len(got))
		}
		after := service.Summary()
		if !after.AccumulatedPool.Eq(before.AccumulatedPool) {
			t.Errorf("Expected pool %s after rollback, but got %s", before.AccumulatedPool.Dec(), after.AccumulatedPool.Dec())
		}
		payouts, _ := service.Payouts(ctx, 10)
		if len(payouts) != 1 {
			t.Errorf("Expected the rolled back fee to be absent, but got %d payouts", len(payouts))
		}
	})

	t.Run("Test auto draw waits for the deadline", func(t *testing.T) {
		d, err := service.AutoDraw(ctx)
		if err != nil || d != nil {
			t.Fatalf("Expected nothing to do, but got %v, %v", d, err)
		}

		clock.Advance(2 * time.Hour)
		d, err = service.AutoDraw(ctx)
		if err != nil {
			t.Fatalf("Expected no error, but got %v", err)
		}
		if d == nil || !d.Executed || d.WinningMainNumbers != winning.Main {
			t.Fatalf("Expected draw 1 executed with %v, but got %+v", winning.Main, d)
		}
		if service.Summary().CurrentDrawID != 2 {
			t.Errorf("Expected current draw 2, but got %d", service.Summary().CurrentDrawID)
		}
	})

	t.Run("Test claim pays the jackpot", func(t *testing.T) {
		res, err := service.Claim(ctx, "0xalice", []uint64{1})
		if err != nil {
			t.Fatalf("Expected no error, but got %v", err)
		}
		// net 950, jackpot share 50%.
		if res.Total.Uint64() != 475 {
			t.Errorf("Expected a prize of 475, but got %s", res.Total.Dec())
		}
		totals := service.PlayerTotals("0xalice")
		if totals.Claimed.Uint64() != 475 || !totals.Unclaimed.IsZero() {
			t.Errorf("Expected 475 claimed and nothing unclaimed, but got %+v", totals)
		}

		_, err = service.Claim(ctx, "0xalice", []uint64{1})
		if !errors.Is(err, ledger.ErrAlreadyClaimed) {
			t.Errorf("Expected ErrAlreadyClaimed, but got %v", err)
		}
	})

	t.Run("Test admin operations need the owner", func(t *testing.T) {
		if err := service.Pause(ctx, "0xalice"); !errors.Is(err, ledger.ErrNotPrivileged) {
			t.Fatalf("Expected ErrNotPrivileged, but got %v", err)
		}
		if err := service.Pause(ctx, testOwner); err != nil {
			t.Fatalf("Expected no error, but got %v", err)
		}
		if d, err := service.AutoDraw(ctx); d != nil || err != nil {
			t.Errorf("Expected auto draw to idle while paused, but got %v, %v", d, err)
		}
		if err := service.Donate(ctx, "0xcarol", uint256.NewInt(5)); !errors.Is(err, ledger.ErrPaused) {
			t.Errorf("Expected ErrPaused, but got %v", err)
		}
		if err := service.Unpause(ctx, testOwner); err != nil {
			t.Fatalf("Expected no error, but got %v", err)
		}
		if err := service.Donate(ctx, "0xcarol", uint256.NewInt(5)); err != nil {
			t.Fatalf("Expected no error, but got %v", err)
		}
		if err := service.WithdrawExcess(ctx, testOwner, uint256.NewInt(5)); err != nil {
			t.Fatalf("Expected no error, but got %v", err)
		}
		if err := service.AuthorizeUpgrade(ctx, testOwner, 2); err != nil {
			t.Fatalf("Expected no error, but got %v", err)
		}
	})

	t.Run("Test restart restores the ledger", func(t *testing.T) {
		want := service.Summary()

		restarted, _ := newTestService(t, dbPath, clock)
		got := restarted.Summary()
		if got.CurrentDrawID != want.CurrentDrawID || got.SchemaVersion != 2 || !got.Balance.Eq(want.Balance) {
			t.Fatalf("Expected %+v after restart, but got %+v", want, got)
		}
		tk, err := restarted.Ticket(1)
		if err != nil || !tk.Claimed {
			t.Errorf("Expected ticket 1 to be claimed after restart, but got %+v, %v", tk, err)
		}
		evs, err := restarted.Events(ctx, 0, 1)
		if err != nil || len(evs) != 1 || evs[0].Type != ledger.EventUpgradeAuthorized {
			t.Errorf("Expected the upgrade event last, but got %+v, %v", evs, err)
		}
	})
}

// recordingBank keeps every transfer it accepts. onTransfer, if set, runs
// before the transfer is accepted and may reject it.
type recordingBank struct {
	mu         sync.Mutex
	transfers  []ledger.Transfer
	onTransfer func(ledger.Transfer) error
}

func (b *recordingBank) Transfer(t ledger.Transfer) error {
	if b.onTransfer != nil {
		if err := b.onTransfer(t); err != nil {
			return err
		}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.transfers = append(b.transfers, t)
	return nil
}

func (b *recordingBank) count(kind ledger.TransferKind) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, t := range b.transfers {
		if t.Kind == kind {
			n++
		}
	}
	return n
}

func newBankedService(t *testing.T, clock clockwork.Clock, bank ledger.Bank) (*LotteryService, *flakyStore) {
	t.Helper()
	st, err := storage.New(filepath.Join(t.TempDir(), "lottery.db"))
	if err != nil {
		t.Fatalf("Expected no error opening storage, but got %v", err)
	}
	t.Cleanup(func() { st.Close() })

	store := &flakyStore{Storage: st}
	service, err := NewLotteryService(context.Background(), testConfig(), Options{
		Host:    chain.NewSimulatedHost(clock, [32]byte{0x42}),
		Store:   store,
		Entropy: entropy.Fixed(3),
		Bank:    bank,
	})
	if err != nil {
		t.Fatalf("Expected no error creating service, but got %v", err)
	}
	return service, store
}

func TestLotteryService_BankRejection(t *testing.T) {
	ctx := context.Background()
	bankErr := errors.New("payment rail down")
	down := true
	bank := &recordingBank{onTransfer: func(ledger.Transfer) error {
		if down {
			return bankErr
		}
		return nil
	}}
	service, _ := newBankedService(t, clockwork.NewFakeClock(), bank)

	_, err := service.Purchase(ctx, "0xalice", []ledger.TicketRequest{{MainNumbers: []int{1, 2, 3, 4, 5}, BonusNumber: 1}}, uint256.NewInt(1_000))
	if err != nil {
		t.Fatalf("Expected the committed purchase to succeed, but got %v", err)
	}
	pending, err := service.store.PendingPayouts(ctx, 10)
	if err != nil || len(pending) != 1 || pending[0].Transfer.Kind != ledger.TransferFee {
		t.Fatalf("Expected the fee to stay pending, but got %+v, %v", pending, err)
	}

	if err := service.DispatchPayouts(ctx); ledger.KindOf(err) != ledger.KindTransfer {
		t.Errorf("Expected a transfer failure while the bank is down, but got %v", err)
	}

	down = false
	if err := service.DispatchPayouts(ctx); err != nil {
		t.Fatalf("Expected no error, but got %v", err)
	}
	payouts, _ := service.Payouts(ctx, 10)
	if len(payouts) != 1 || payouts[0].DispatchedAt.IsZero() {
		t.Errorf("Expected the fee to be dispatched, but got %+v", payouts)
	}
	if bank.count(ledger.TransferFee) != 1 {
		t.Errorf("Expected one fee transfer, but got %d", bank.count(ledger.TransferFee))
	}
}

func TestLotteryService_FailedSaveNeverPays(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClockAt(time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC))
	bank := &recordingBank{}
	service, store := newBankedService(t, clock, bank)

	winning := draw.Generate(uint256.NewInt(3), draw.DefaultRules())
	jackpot := ledger.TicketRequest{MainNumbers: winning.Main[:], BonusNumber: winning.Bonus}
	if _, err := service.Purchase(ctx, "0xalice", []ledger.TicketRequest{jackpot}, uint256.NewInt(1_000)); err != nil {
		t.Fatalf("Expected no error, but got %v", err)
	}
	clock.Advance(2 * time.Hour)
	if _, err := service.Purchase(ctx, "0xbob", []ledger.TicketRequest{{MainNumbers: []int{1, 2, 3, 4, 5}, BonusNumber: 1}}, uint256.NewInt(1_000)); err != nil {
		t.Fatalf("Expected the settling purchase to succeed, but got %v", err)
	}

	store.failNext = true
	if _, err := service.Claim(ctx, "0xalice", []uint64{1}); err == nil {
		t.Fatal("Expected the claim to fail when the save fails, but got nil")
	}
	if got := bank.count(ledger.TransferPrize); got != 0 {
		t.Fatalf("Expected no prize sent for the failed claim, but got %d", got)
	}

	res, err := service.Claim(ctx, "0xalice", []uint64{1})
	if err != nil {
		t.Fatalf("Expected the retried claim to succeed, but got %v", err)
	}
	if _, err := service.Claim(ctx, "0xalice", []uint64{1}); !errors.Is(err, ledger.ErrAlreadyClaimed) {
		t.Errorf("Expected ErrAlreadyClaimed, but got %v", err)
	}
	if got := bank.count(ledger.TransferPrize); got != 1 {
		t.Errorf("Expected the prize of %s sent once, but it was sent %d times", res.Total.Dec(), got)
	}
}

func TestLotteryService_BankCallsBack(t *testing.T) {
	ctx := context.Background()
	ticket := []ledger.TicketRequest{{MainNumbers: []int{1, 2, 3, 4, 5}, BonusNumber: 1}}

	var (
		service *LotteryService
		once    sync.Once
		inner   error
	)
	bank := &recordingBank{onTransfer: func(ledger.Transfer) error {
		once.Do(func() {
			_, inner = service.Purchase(ctx, "0xbob", ticket, uint256.NewInt(1_000))
		})
		return nil
	}}
	service, _ = newBankedService(t, clockwork.NewFakeClock(), bank)

	done := make(chan error, 1)
	go func() {
		_, err := service.Purchase(ctx, "0xalice", ticket, uint256.NewInt(1_000))
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Expected no error, but got %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Expected the purchase to return while the bank calls back into the service")
	}
	if inner != nil {
		t.Errorf("Expected the purchase made by the bank to succeed, but got %v", inner)
	}
	if got := bank.count(ledger.TransferFee); got != 2 {
		t.Errorf("Expected both fees sent, but got %d", got)
	}
	pending, _ := service.store.PendingPayouts(ctx, 10)
	if len(pending) != 0 {
		t.Errorf("Expected nothing pending, but got %+v", pending)
	}
}

func TestLotteryService_QuickPick(t *testing.T) {
	service, _ := newTestService(t, filepath.Join(t.TempDir(), "lottery.db"), clockwork.NewFakeClock())
	service.entropy = entropy.KeccakSource{}

	first, bonus, err := service.QuickPick("0xalice")
	if err != nil {
		t.Fatalf("Expected no error, but got %v", err)
	}
	if err := draw.Validate(first[:], bonus, draw.DefaultRules()); err != nil {
		t.Errorf("Expected a valid selection, but got %v", err)
	}
	second, _, _ := service.QuickPick("0xalice")
	if first == second {
		t.Errorf("Expected consecutive picks to differ, both were %v", first)
	}
}

func TestLotteryService_QuickPickPerCaller(t *testing.T) {
	service, _ := newTestService(t, filepath.Join(t.TempDir(), "lottery.db"), clockwork.NewFakeClock())

	// The fixed source returns the same seed for every call.
	alice, _, err := service.QuickPick("0xalice")
	if err != nil {
		t.Fatalf("Expected no error, but got %v", err)
	}
	bob, _, _ := service.QuickPick("0xbob")
	if alice == bob {
		t.Errorf("Expected picks for different callers to differ, both were %v", alice)
	}

	var seen entropy.Context
	service.entropy = entropy.SourceFunc(func(ctx entropy.Context) (uint256.Int, error) {
		seen = ctx
		return *uint256.NewInt(9), nil
	})
	if _, _, err := service.QuickPick("0xcarol"); err != nil {
		t.Fatalf("Expected no error, but got %v", err)
	}
	if seen.Contract != service.cfg.ContractAddress || seen.DrawID != 1 {
		t.Errorf("Expected the seed context to hold only ledger values, but got %+v", seen)
	}
}
