package ledger

import (
	"fmt"
	"sort"

	"lottery-engine/internal/models"
)

// Snapshot is the full persisted ledger.
type Snapshot struct {
	State   State
	Tickets []models.Ticket
	Draws   []models.Draw
	Players []string
}

// Snapshot exports the whole ledger.
func (l *Ledger) Snapshot() Snapshot {
	s := Snapshot{State: l.state()}
	for _, t := range l.tickets {
		s.Tickets = append(s.Tickets, *t)
	}
	ids := make([]uint64, 0, len(l.draws))
	for id := range l.draws {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		s.Draws = append(s.Draws, *l.draws[id])
	}
	for p := range l.players {
		s.Players = append(s.Players, p)
	}
	sort.Strings(s.Players)
	return s
}

// Restore rebuilds a ledger from a snapshot. Tickets must be dense and
// ordered by id, and the current draw must exist and be pending.
func Restore(cfg Config, deps Deps, snap Snapshot) (*Ledger, error) {
	l, err := newLedger(cfg, deps)
	if err != nil {
		return nil, err
	}

	st := snap.State
	l.currentDrawID = st.CurrentDrawID
	l.nextDrawTime = st.NextDrawTime
	l.schemaVersion = st.SchemaVersion
	l.guard.paused = st.Paused
	l.pool = st.Pool
	l.reserved = st.Reserved
	l.balance = st.Balance
	l.analytics = st.Analytics

	for i := range snap.Draws {
		d := snap.Draws[i]
		l.draws[d.ID] = &d
	}
	for i := range snap.Tickets {
		t := snap.Tickets[i]
		if t.ID != uint64(i+1) {
			return nil, fmt.Errorf("restore: ticket %d found at position %d", t.ID, i+1)
		}
		if _, ok := l.draws[t.DrawID]; !ok {
			return nil, fmt.Errorf("restore: ticket %d references unknown draw %d", t.ID, t.DrawID)
		}
		l.tickets = append(l.tickets, &t)
		l.drawTickets[t.DrawID] = append(l.drawTickets[t.DrawID], t.ID)
		l.ownerTickets[t.Owner] = append(l.ownerTickets[t.Owner], t.ID)
	}
	if st.TicketCount != uint64(len(l.tickets)) {
		return nil, fmt.Errorf("restore: state counts %d tickets, snapshot has %d", st.TicketCount, len(l.tickets))
	}
	for _, p := range snap.Players {
		l.players[p] = struct{}{}
	}

	current, ok := l.draws[l.currentDrawID]
	if !ok {
		return nil, fmt.Errorf("restore: current draw %d missing", l.currentDrawID)
	}
	if current.Closed() {
		return nil, fmt.Errorf("restore: current draw %d is already closed", l.currentDrawID)
	}
	return l, nil
}
