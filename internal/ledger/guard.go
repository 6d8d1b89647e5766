package ledger

import "fmt"

// Authorizer answers the one question the ledger asks about callers.
type Authorizer interface {
	IsPrivileged(caller string) bool
}

// AccessGuard is the owner and pause flag checked at the top of mutating
// operations.
type AccessGuard struct {
	owner  string
	auth   Authorizer
	paused bool
}

func newAccessGuard(owner string, auth Authorizer) AccessGuard {
	return AccessGuard{owner: owner, auth: auth}
}

// IsPrivileged reports whether caller may run admin operations. With no
// Authorizer configured only the owner is privileged.
func (g *AccessGuard) IsPrivileged(caller string) bool {
	if caller == "" {
		return false
	}
	if g.auth != nil {
		return g.auth.IsPrivileged(caller)
	}
	return caller == g.owner
}

func (g *AccessGuard) requirePrivileged(caller string) error {
	if !g.IsPrivileged(caller) {
		return fmt.Errorf("%w: %q", ErrNotPrivileged, caller)
	}
	return nil
}

func (g *AccessGuard) whenNotPaused() error {
	if g.paused {
		return ErrPaused
	}
	return nil
}

// ReentrancyLock rejects a call into the ledger while another operation is
// still running, e.g. from inside a Bank transfer.
type ReentrancyLock struct {
	entered bool
}

func (r *ReentrancyLock) enter() error {
	if r.entered {
		return ErrReentrant
	}
	r.entered = true
	return nil
}

func (r *ReentrancyLock) exit() {
	r.entered = false
}
