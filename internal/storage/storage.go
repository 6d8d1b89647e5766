// Package storage persists the ledger in SQLite. Every committed ledger
// operation is written as one transaction together with the transfers it
// made and the events it emitted.
package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/logger"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"

	"lottery-engine/internal/chain"
	"lottery-engine/internal/ledger"
	"lottery-engine/internal/models"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// goose keeps its configuration in package globals.
var migrateMu sync.Mutex

// Storage handles all database operations
type Storage struct {
	db *sql.DB
}

// Payout is a transfer recorded in the outbox. DispatchedAt stays zero
// until the bank has accepted it.
type Payout struct {
	ID           int64           `json:"id"`
	Transfer     ledger.Transfer `json:"transfer"`
	CreatedAt    time.Time       `json:"createdAt"`
	DispatchedAt time.Time       `json:"dispatchedAt"`
}

// New opens the database at dbPath and migrates it to the latest schema.
func New(dbPath string) (*Storage, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, err
	}
	// A single connection keeps writers serialized.
	db.SetMaxOpenConns(1)

	s := &Storage{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database connection
func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) migrate() error {
	migrateMu.Lock()
	defer migrateMu.Unlock()

	goose.SetBaseFS(embedMigrations)
	goose.SetLogger(gooseLogger{})
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}
	if err := goose.Up(s.db, "migrations"); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

type gooseLogger struct{}

func (gooseLogger) Printf(format string, v ...interface{}) { logger.Infof(format, v...) }
func (gooseLogger) Fatalf(format string, v ...interface{}) { logger.Fatalf(format, v...) }

// Save writes ch, the transfers that produced it and the host tip in one
// transaction. Nothing is written if any statement fails. Transfers are
// stored as pending payouts.
func (s *Storage) Save(ctx context.Context, ch ledger.Changes, payouts []ledger.Transfer, tip chain.Block) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// Draws go first; tickets reference them.
	for i := range ch.Draws {
		if err := saveDraw(ctx, tx, &ch.Draws[i]); err != nil {
			return fmt.Errorf("save draw %d: %w", ch.Draws[i].ID, err)
		}
	}
	for i := range ch.Tickets {
		if err := saveTicket(ctx, tx, &ch.Tickets[i]); err != nil {
			return fmt.Errorf("save ticket %d: %w", ch.Tickets[i].ID, err)
		}
	}
	for _, p := range ch.Players {
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO players (address) VALUES (?)`, p); err != nil {
			return fmt.Errorf("save player %s: %w", p, err)
		}
	}

	now := time.Now().UnixNano()
	for _, p := range payouts {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO payouts (recipient, amount, kind, draw_id, created_at) VALUES (?, ?, ?, ?, ?)`,
			p.To, p.Amount.Dec(), string(p.Kind), p.DrawID, now,
		)
		if err != nil {
			return fmt.Errorf("save payout: %w", err)
		}
	}
	for i := range ch.Events {
		if err := saveEvent(ctx, tx, &ch.Events[i]); err != nil {
			return fmt.Errorf("save event %s: %w", ch.Events[i].ID, err)
		}
	}

	if err := saveState(ctx, tx, &ch.State, tip); err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	return tx.Commit()
}

func saveState(ctx context.Context, tx *sql.Tx, st *ledger.State, tip chain.Block) error {
	a := &st.Analytics
	_, err := tx.ExecContext(ctx, `
		INSERT INTO state (
			id, current_draw_id, next_draw_time, schema_version, paused,
			pool, reserved, balance, ticket_count,
			total_draws, total_tickets_sold, total_volume, total_prizes, total_fees, unique_players,
			tip_height, tip_time, tip_prev_hash, tip_hash
		) VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			current_draw_id = excluded.current_draw_id,
			next_draw_time = excluded.next_draw_time,
			schema_version = excluded.schema_version,
			paused = excluded.paused,
			pool = excluded.pool,
			reserved = excluded.reserved,
			balance = excluded.balance,
			ticket_count = excluded.ticket_count,
			total_draws = excluded.total_draws,
			total_tickets_sold = excluded.total_tickets_sold,
			total_volume = excluded.total_volume,
			total_prizes = excluded.total_prizes,
			total_fees = excluded.total_fees,
			unique_players = excluded.unique_players,
			tip_height = excluded.tip_height,
			tip_time = excluded.tip_time,
			tip_prev_hash = excluded.tip_prev_hash,
			tip_hash = excluded.tip_hash`,
		st.CurrentDrawID, unixNano(st.NextDrawTime), st.SchemaVersion, st.Paused,
		st.Pool.Dec(), st.Reserved.Dec(), st.Balance.Dec(), st.TicketCount,
		a.TotalDraws, a.TotalTicketsSold, a.TotalVolume.Dec(), a.TotalPrizesDistributed.Dec(),
		a.TotalFeesCollected.Dec(), a.TotalUniquePlayers,
		tip.Height, unixNano(tip.Timestamp), tip.PrevHash[:], tip.Hash[:],
	)
	return err
}

func saveDraw(ctx context.Context, tx *sql.Tx, d *models.Draw) error {
	_, err := tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO draws (
			id, winning_main, winning_bonus, timestamp, pool_before_fees, effective_pool,
			executed, skipped, total_tickets, random_seed, winner_counts, prize_amounts
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, encodeNumbers(d.WinningMainNumbers[:]), d.WinningBonusNumber, unixNano(d.Timestamp),
		d.TotalPrizePoolBeforeFees.Dec(), d.EffectivePrizePool.Dec(),
		d.Executed, d.Skipped, d.TotalTickets, d.RandomSeed.Dec(),
		encodeCounts(d.WinnerCounts[:]), encodeAmounts(d.PrizeAmounts[:]),
	)
	return err
}

func saveTicket(ctx context.Context, tx *sql.Tx, t *models.Ticket) error {
	_, err := tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO tickets (
			id, owner, main_numbers, bonus_number, draw_id, purchase_time,
			match_count, bonus_match, claimed, prize_amount
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Owner, encodeNumbers(t.MainNumbers[:]), t.BonusNumber, t.DrawID, unixNano(t.PurchaseTime),
		t.MatchCount, t.BonusMatch, t.Claimed, t.PrizeAmount.Dec(),
	)
	return err
}

func saveEvent(ctx context.Context, tx *sql.Tx, e *ledger.Event) error {
	payload, err := encodeEvent(e)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO events (id, type, time, draw_id, payload) VALUES (?, ?, ?, ?, ?)`,
		e.ID, string(e.Type), unixNano(e.Time), e.DrawID, payload,
	)
	return err
}

// Load reads back the whole ledger and the host tip. ok is false when
// nothing has been saved yet.
func (s *Storage) Load(ctx context.Context) (snap ledger.Snapshot, tip chain.Block, ok bool, err error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return snap, tip, false, err
	}
	defer tx.Rollback()

	snap.State, tip, err = loadState(ctx, tx)
	if errors.Is(err, sql.ErrNoRows) {
		return snap, tip, false, nil
	}
	if err != nil {
		return snap, tip, false, fmt.Errorf("load state: %w", err)
	}
	if snap.Draws, err = loadDraws(ctx, tx); err != nil {
		return snap, tip, false, fmt.Errorf("load draws: %w", err)
	}
	if snap.Tickets, err = loadTickets(ctx, tx); err != nil {
		return snap, tip, false, fmt.Errorf("load tickets: %w", err)
	}
	if snap.Players, err = loadPlayers(ctx, tx); err != nil {
		return snap, tip, false, fmt.Errorf("load players: %w", err)
	}
	return snap, tip, true, nil
}

func loadState(ctx context.Context, tx *sql.Tx) (ledger.State, chain.Block, error) {
	var (
		tip                     chain.Block
		s                       ledger.State
		next, tipTime           int64
		pool, reserved, balance string
		volume, prizes, fees    string
		prevHash, hash          []byte
	)
	err := tx.QueryRowContext(ctx, `
		SELECT current_draw_id, next_draw_time, schema_version, paused,
			pool, reserved, balance, ticket_count,
			total_draws, total_tickets_sold, total_volume, total_prizes, total_fees, unique_players,
			tip_height, tip_time, tip_prev_hash, tip_hash
		FROM state WHERE id = 1`,
	).Scan(
		&s.CurrentDrawID, &next, &s.SchemaVersion, &s.Paused,
		&pool, &reserved, &balance, &s.TicketCount,
		&s.Analytics.TotalDraws, &s.Analytics.TotalTicketsSold, &volume, &prizes, &fees, &s.Analytics.TotalUniquePlayers,
		&tip.Height, &tipTime, &prevHash, &hash,
	)
	if err != nil {
		return s, tip, err
	}

	s.NextDrawTime = fromUnixNano(next)
	tip.Timestamp = fromUnixNano(tipTime)
	copy(tip.PrevHash[:], prevHash)
	copy(tip.Hash[:], hash)

	err = decodeAmountsInto(
		[]string{pool, reserved, balance, volume, prizes, fees},
		&s.Pool, &s.Reserved, &s.Balance,
		&s.Analytics.TotalVolume, &s.Analytics.TotalPrizesDistributed, &s.Analytics.TotalFeesCollected,
	)
	return s, tip, err
}

func loadDraws(ctx context.Context, tx *sql.Tx) ([]models.Draw, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT id, winning_main, winning_bonus, timestamp, pool_before_fees, effective_pool,
			executed, skipped, total_tickets, random_seed, winner_counts, prize_amounts
		FROM draws ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var draws []models.Draw
	for rows.Next() {
		var (
			d                           models.Draw
			ts                          int64
			main, counts, prizes        string
			poolBefore, effective, seed string
		)
		err := rows.Scan(&d.ID, &main, &d.WinningBonusNumber, &ts, &poolBefore, &effective,
			&d.Executed, &d.Skipped, &d.TotalTickets, &seed, &counts, &prizes)
		if err != nil {
			return nil, err
		}
		d.Timestamp = fromUnixNano(ts)
		if err := decodeNumbers(main, d.WinningMainNumbers[:]); err != nil {
			return nil, fmt.Errorf("draw %d: %w", d.ID, err)
		}
		if err := decodeCounts(counts, d.WinnerCounts[:]); err != nil {
			return nil, fmt.Errorf("draw %d: %w", d.ID, err)
		}
		if err := decodeAmounts(prizes, d.PrizeAmounts[:]); err != nil {
			return nil, fmt.Errorf("draw %d: %w", d.ID, err)
		}
		err = decodeAmountsInto(
			[]string{poolBefore, effective, seed},
			&d.TotalPrizePoolBeforeFees, &d.EffectivePrizePool, &d.RandomSeed,
		)
		if err != nil {
			return nil, fmt.Errorf("draw %d: %w", d.ID, err)
		}
		draws = append(draws, d)
	}
	return draws, rows.Err()
}

func loadTickets(ctx context.Context, tx *sql.Tx) ([]models.Ticket, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT id, owner, main_numbers, bonus_number, draw_id, purchase_time,
			match_count, bonus_match, claimed, prize_amount
		FROM tickets ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tickets []models.Ticket
	for rows.Next() {
		var (
			t           models.Ticket
			main, prize string
			purchased   int64
		)
		err := rows.Scan(&t.ID, &t.Owner, &main, &t.BonusNumber, &t.DrawID, &purchased,
			&t.MatchCount, &t.BonusMatch, &t.Claimed, &prize)
		if err != nil {
			return nil, err
		}
		t.PurchaseTime = fromUnixNano(purchased)
		if err := decodeNumbers(main, t.MainNumbers[:]); err != nil {
			return nil, fmt.Errorf("ticket %d: %w", t.ID, err)
		}
		if err := decodeAmountsInto([]string{prize}, &t.PrizeAmount); err != nil {
			return nil, fmt.Errorf("ticket %d: %w", t.ID, err)
		}
		tickets = append(tickets, t)
	}
	return tickets, rows.Err()
}

func loadPlayers(ctx context.Context, tx *sql.Tx) ([]string, error) {
	rows, err := tx.QueryContext(ctx, `SELECT address FROM players ORDER BY address`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var players []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		players = append(players, p)
	}
	return players, rows.Err()
}

// --- Outbox and event log ---

// Payouts returns the most recent transfers, newest first.
func (s *Storage) Payouts(ctx context.Context, limit int) ([]Payout, error) {
	return s.queryPayouts(ctx, `
		SELECT id, recipient, amount, kind, draw_id, created_at, dispatched_at
		FROM payouts ORDER BY id DESC LIMIT ?`, limit)
}

// PendingPayouts returns transfers not yet handed to the bank, oldest first.
func (s *Storage) PendingPayouts(ctx context.Context, limit int) ([]Payout, error) {
	return s.queryPayouts(ctx, `
		SELECT id, recipient, amount, kind, draw_id, created_at, dispatched_at
		FROM payouts WHERE dispatched_at = 0 ORDER BY id LIMIT ?`, limit)
}

// MarkDispatched records that the bank accepted payout id.
func (s *Storage) MarkDispatched(ctx context.Context, id int64, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE payouts SET dispatched_at = ? WHERE id = ? AND dispatched_at = 0`,
		unixNano(at), id,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("payout %d is not pending", id)
	}
	return nil
}

func (s *Storage) queryPayouts(ctx context.Context, query string, limit int) ([]Payout, error) {
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payouts []Payout
	for rows.Next() {
		var (
			p                   Payout
			amount, kind        string
			created, dispatched int64
		)
		if err := rows.Scan(&p.ID, &p.Transfer.To, &amount, &kind, &p.Transfer.DrawID, &created, &dispatched); err != nil {
			return nil, err
		}
		if err := decodeAmountsInto([]string{amount}, &p.Transfer.Amount); err != nil {
			return nil, fmt.Errorf("payout %d: %w", p.ID, err)
		}
		p.Transfer.Kind = ledger.TransferKind(kind)
		p.CreatedAt = fromUnixNano(created)
		p.DispatchedAt = fromUnixNano(dispatched)
		payouts = append(payouts, p)
	}
	return payouts, rows.Err()
}

// Events returns the most recent events, newest first. drawID of zero
// means every draw.
func (s *Storage) Events(ctx context.Context, drawID uint64, limit int) ([]ledger.Event, error) {
	query := `SELECT payload FROM events ORDER BY seq DESC LIMIT ?`
	args := []any{limit}
	if drawID != 0 {
		query = `SELECT payload FROM events WHERE draw_id = ? ORDER BY seq DESC LIMIT ?`
		args = []any{drawID, limit}
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []ledger.Event
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		e, err := decodeEvent(payload)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
