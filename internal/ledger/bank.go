package ledger

import "github.com/holiman/uint256"

// TransferKind says why value is leaving the ledger.
type TransferKind string

const (
	TransferFee        TransferKind = "fee"
	TransferPrize      TransferKind = "prize"
	TransferWithdrawal TransferKind = "withdrawal"
)

// Transfer is an outgoing value movement.
type Transfer struct {
	To     string       `json:"to"`
	Amount uint256.Int  `json:"amount"`
	Kind   TransferKind `json:"kind"`
	DrawID uint64       `json:"drawId,omitempty"`
}

// Bank moves value out of the ledger. A returned error aborts the whole
// operation that asked for the transfer.
type Bank interface {
	Transfer(t Transfer) error
}

// BankFunc adapts a function to Bank.
type BankFunc func(t Transfer) error

func (f BankFunc) Transfer(t Transfer) error {
	return f(t)
}
