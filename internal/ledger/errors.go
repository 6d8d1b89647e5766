package ledger

import (
	"errors"

	"lottery-engine/internal/draw"
)

// Errors
var (
	ErrInvalidNumbers = draw.ErrInvalidNumbers
	ErrOverflow       = draw.ErrOverflow

	ErrInvalidAccount = errors.New("invalid account")
	ErrEmptyBatch     = errors.New("batch is empty")
	ErrBatchTooLarge  = errors.New("batch exceeds limit")
	ErrWrongPayment   = errors.New("payment does not match ticket price")
	ErrInvalidAmount  = errors.New("amount must be greater than zero")
	ErrTicketNotFound = errors.New("ticket not found")
	ErrDrawNotFound   = errors.New("draw not found")

	ErrNotPrivileged  = errors.New("caller is not privileged")
	ErrNotTicketOwner = errors.New("caller does not own ticket")

	ErrAlreadyClaimed      = errors.New("ticket already claimed")
	ErrDrawNotExecuted     = errors.New("draw not executed yet")
	ErrDrawAlreadyExecuted = errors.New("draw already executed")
	ErrDrawNotDue          = errors.New("draw is not due yet")
	ErrNothingToClaim      = errors.New("nothing to claim")
	ErrInsufficientPool    = errors.New("insufficient prize funds")
	ErrInsufficientExcess  = errors.New("amount exceeds excess funds")
	ErrAlreadyPaused       = errors.New("already paused")
	ErrNotPaused           = errors.New("not paused")
	ErrInvalidUpgrade      = errors.New("upgrade version must increase")
	ErrReentrant           = errors.New("reentrant call")

	ErrTransferFailed = errors.New("transfer failed")
	ErrPaused         = errors.New("ledger is paused")

	ErrEntropy = errors.New("entropy source failed")
)

// Kind classifies an error for callers deciding what to do next.
type Kind int

const (
	KindInternal Kind = iota
	KindInputValidation
	KindAuthorization
	KindStateConflict
	KindTransfer
	KindPaused
)

func (k Kind) String() string {
	switch k {
	case KindInputValidation:
		return "input_validation"
	case KindAuthorization:
		return "authorization_denied"
	case KindStateConflict:
		return "state_conflict"
	case KindTransfer:
		return "transfer_failure"
	case KindPaused:
		return "paused"
	}
	return "internal"
}

var kinds = []struct {
	kind Kind
	errs []error
}{
	{KindPaused, []error{ErrPaused}},
	{KindTransfer, []error{ErrTransferFailed}},
	{KindAuthorization, []error{ErrNotPrivileged, ErrNotTicketOwner}},
	{KindInputValidation, []error{
		ErrInvalidNumbers, ErrOverflow, ErrInvalidAccount, ErrEmptyBatch, ErrBatchTooLarge,
		ErrWrongPayment, ErrInvalidAmount, ErrTicketNotFound, ErrDrawNotFound,
	}},
	{KindStateConflict, []error{
		ErrAlreadyClaimed, ErrDrawNotExecuted, ErrDrawAlreadyExecuted, ErrDrawNotDue,
		ErrNothingToClaim, ErrInsufficientPool, ErrInsufficientExcess, ErrAlreadyPaused,
		ErrNotPaused, ErrInvalidUpgrade, ErrReentrant,
	}},
}

// KindOf returns the class of err. Unknown errors are KindInternal.
func KindOf(err error) Kind {
	for _, k := range kinds {
		for _, target := range k.errs {
			if errors.Is(err, target) {
				return k.kind
			}
		}
	}
	return KindInternal
}
