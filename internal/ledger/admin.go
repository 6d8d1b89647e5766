package ledger

import (
	"fmt"

	"github.com/holiman/uint256"
)

// Pause stops purchases, claims, donations and draw execution.
func (l *Ledger) Pause(caller string) error {
	if err := l.guard.requirePrivileged(caller); err != nil {
		return err
	}
	if l.guard.paused {
		return ErrAlreadyPaused
	}
	l.guard.paused = true

	e := newEvent(EventPaused, l.host.Now())
	e.Account = caller
	l.emit(e)
	return nil
}

// Unpause lifts a Pause.
func (l *Ledger) Unpause(caller string) error {
	if err := l.guard.requirePrivileged(caller); err != nil {
		return err
	}
	if !l.guard.paused {
		return ErrNotPaused
	}
	l.guard.paused = false

	e := newEvent(EventUnpaused, l.host.Now())
	e.Account = caller
	l.emit(e)
	return nil
}

// Donate records value sent to the ledger outside a purchase. It becomes
// excess; it never joins the prize pool.
func (l *Ledger) Donate(from string, amount *uint256.Int) error {
	if err := l.guard.whenNotPaused(); err != nil {
		return err
	}
	if from == "" {
		return ErrInvalidAccount
	}
	if amount == nil || amount.IsZero() {
		return ErrInvalidAmount
	}
	var balance uint256.Int
	if _, overflow := balance.AddOverflow(&l.balance, amount); overflow {
		return ErrOverflow
	}
	l.balance = balance

	e := newEvent(EventDonationReceived, l.host.Now())
	e.Account = from
	e.Amount = amountOf(amount)
	l.emit(e)
	return nil
}

// WithdrawExcess sends amount of the untracked balance to the owner. It is
// allowed while paused.
func (l *Ledger) WithdrawExcess(caller string, amount *uint256.Int) error {
	if err := l.guard.requirePrivileged(caller); err != nil {
		return err
	}
	if err := l.lock.enter(); err != nil {
		return err
	}
	defer l.lock.exit()

	if amount == nil || amount.IsZero() {
		return ErrInvalidAmount
	}
	excess := l.excess()
	if amount.Gt(&excess) {
		return fmt.Errorf("%w: requested %s, excess %s", ErrInsufficientExcess, amount.Dec(), excess.Dec())
	}

	if err := l.bank.Transfer(Transfer{To: l.cfg.Owner, Amount: *amount, Kind: TransferWithdrawal}); err != nil {
		return fmt.Errorf("%w: withdrawal to %s: %v", ErrTransferFailed, l.cfg.Owner, err)
	}
	l.balance.Sub(&l.balance, amount)

	e := newEvent(EventExcessWithdrawn, l.host.Now())
	e.Account = l.cfg.Owner
	e.Amount = amountOf(amount)
	l.emit(e)
	return nil
}

// AuthorizeUpgrade records a new schema version for the persisted ledger.
func (l *Ledger) AuthorizeUpgrade(caller string, version uint64) error {
	if err := l.guard.requirePrivileged(caller); err != nil {
		return err
	}
	if version <= l.schemaVersion {
		return fmt.Errorf("%w: current %d, requested %d", ErrInvalidUpgrade, l.schemaVersion, version)
	}
	l.schemaVersion = version

	e := newEvent(EventUpgradeAuthorized, l.host.Now())
	e.Account = caller
	e.Version = version
	l.emit(e)
	return nil
}
