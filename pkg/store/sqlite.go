package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
)

// SQLStore implements Store over sqlite via bun.
type SQLStore struct {
	db *bun.DB
}

var _ Store = (*SQLStore)(nil)

// Open opens (or creates) the sqlite database at path and ensures the
// schema exists. Use ":memory:" for tests.
func Open(path string) (*SQLStore, error) {
	sqldb, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single connection keeps :memory: databases coherent and sidesteps
	// sqlite writer contention.
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())

	s := &SQLStore{db: db}
	if err := s.createSchema(context.Background()); err != nil {
		sqldb.Close()
		return nil, err
	}
	return s, nil
}

// DB exposes the underlying bun handle for migrations and tests.
func (s *SQLStore) DB() *bun.DB {
	return s.db
}

// Close closes the database.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) createSchema(ctx context.Context) error {
	models := []interface{}{
		(*Player)(nil),
		(*LedgerEntry)(nil),
		(*Table)(nil),
		(*Seat)(nil),
		(*Hand)(nil),
		(*Pot)(nil),
		(*Action)(nil),
		(*Tournament)(nil),
		(*Registration)(nil),
		(*EarlyStartVote)(nil),
		(*Payout)(nil),
		(*GameEvent)(nil),
	}
	for _, model := range models {
		if _, err := s.db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	return nil
}

func mapNotFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// ---------- Players / bankroll ----------

func (s *SQLStore) GetPlayer(ctx context.Context, id string) (*Player, error) {
	p := new(Player)
	err := s.db.NewSelect().Model(p).Where("id = ?", id).Scan(ctx)
	if err != nil {
		return nil, mapNotFound(err)
	}
	return p, nil
}

func (s *SQLStore) UpsertPlayer(ctx context.Context, p *Player) error {
	_, err := s.db.NewInsert().
		Model(p).
		On("CONFLICT (id) DO UPDATE").
		Set("name = EXCLUDED.name").
		Exec(ctx)
	return err
}

func (s *SQLStore) Credit(ctx context.Context, playerID string, amount int64, reason string) error {
	if amount < 0 {
		return fmt.Errorf("credit amount must be non-negative")
	}
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewUpdate().
			Model((*Player)(nil)).
			Set("balance = balance + ?", amount).
			Where("id = ?", playerID).
			Exec(ctx)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}
		entry := &LedgerEntry{PlayerID: playerID, Amount: amount, Reason: reason}
		_, err = tx.NewInsert().Model(entry).Exec(ctx)
		return err
	})
}

func (s *SQLStore) Debit(ctx context.Context, playerID string, amount int64, reason string) error {
	if amount < 0 {
		return fmt.Errorf("debit amount must be non-negative")
	}
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewUpdate().
			Model((*Player)(nil)).
			Set("balance = balance - ?", amount).
			Where("id = ? AND balance >= ?", playerID, amount).
			Exec(ctx)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			exists, err := tx.NewSelect().Model((*Player)(nil)).Where("id = ?", playerID).Exists(ctx)
			if err != nil {
				return err
			}
			if !exists {
				return ErrNotFound
			}
			return ErrInsufficientBalance
		}
		entry := &LedgerEntry{PlayerID: playerID, Amount: -amount, Reason: reason}
		_, err = tx.NewInsert().Model(entry).Exec(ctx)
		return err
	})
}

// ---------- Tables ----------

func (s *SQLStore) CreateTable(ctx context.Context, t *Table) error {
	t.CreatedAt = time.Now()
	t.UpdatedAt = t.CreatedAt
	_, err := s.db.NewInsert().Model(t).Exec(ctx)
	return err
}

func (s *SQLStore) GetTable(ctx context.Context, id string) (*Table, error) {
	t := new(Table)
	err := s.db.NewSelect().Model(t).Where("id = ?", id).Scan(ctx)
	if err != nil {
		return nil, mapNotFound(err)
	}
	return t, nil
}

func (s *SQLStore) UpdateTable(ctx context.Context, t *Table) error {
	prev := t.Version
	t.Version = prev + 1
	t.UpdatedAt = time.Now()
	res, err := s.db.NewUpdate().
		Model(t).
		WherePK().
		Where("version = ?", prev).
		Exec(ctx)
	if err != nil {
		t.Version = prev
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		t.Version = prev
		return ErrVersionConflict
	}
	return nil
}

// ---------- Seats ----------

func (s *SQLStore) CreateSeat(ctx context.Context, seat *Seat) error {
	_, err := s.db.NewInsert().Model(seat).Exec(ctx)
	return err
}

func (s *SQLStore) UpdateSeat(ctx context.Context, seat *Seat) error {
	res, err := s.db.NewUpdate().Model(seat).WherePK().Exec(ctx)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLStore) SeatsByTable(ctx context.Context, tableID string) ([]*Seat, error) {
	var seats []*Seat
	err := s.db.NewSelect().
		Model(&seats).
		Where("table_id = ?", tableID).
		Order("seat_index ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return seats, nil
}

func (s *SQLStore) SeatByPlayer(ctx context.Context, tableID, playerID string) (*Seat, error) {
	seat := new(Seat)
	err := s.db.NewSelect().
		Model(seat).
		Where("table_id = ? AND player_id = ?", tableID, playerID).
		Scan(ctx)
	if err != nil {
		return nil, mapNotFound(err)
	}
	return seat, nil
}

// ---------- Hands ----------

func (s *SQLStore) CreateHand(ctx context.Context, h *Hand) error {
	h.CreatedAt = time.Now()
	h.UpdatedAt = h.CreatedAt
	_, err := s.db.NewInsert().Model(h).Exec(ctx)
	return err
}

func (s *SQLStore) GetHand(ctx context.Context, id string) (*Hand, error) {
	h := new(Hand)
	err := s.db.NewSelect().Model(h).Where("id = ?", id).Scan(ctx)
	if err != nil {
		return nil, mapNotFound(err)
	}
	return h, nil
}

func (s *SQLStore) ActiveHandByTable(ctx context.Context, tableID string) (*Hand, error) {
	h := new(Hand)
	err := s.db.NewSelect().
		Model(h).
		Where("table_id = ? AND phase != ?", tableID, PhaseComplete).
		Order("hand_num DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, mapNotFound(err)
	}
	return h, nil
}

func (s *SQLStore) UpdateHand(ctx context.Context, h *Hand) error {
	prev := h.Version
	h.Version = prev + 1
	h.UpdatedAt = time.Now()
	res, err := s.db.NewUpdate().
		Model(h).
		WherePK().
		Where("version = ?", prev).
		Exec(ctx)
	if err != nil {
		h.Version = prev
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		h.Version = prev
		return ErrVersionConflict
	}
	return nil
}

// ---------- Pots ----------

func (s *SQLStore) ReplacePots(ctx context.Context, handID string, pots []*Pot) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().Model((*Pot)(nil)).Where("hand_id = ?", handID).Exec(ctx); err != nil {
			return err
		}
		if len(pots) == 0 {
			return nil
		}
		_, err := tx.NewInsert().Model(&pots).Exec(ctx)
		return err
	})
}

func (s *SQLStore) PotsByHand(ctx context.Context, handID string) ([]*Pot, error) {
	var pots []*Pot
	err := s.db.NewSelect().
		Model(&pots).
		Where("hand_id = ?", handID).
		Order("pot_index ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return pots, nil
}

// ---------- Actions ----------

func (s *SQLStore) AppendActions(ctx context.Context, actions []*Action) error {
	if len(actions) == 0 {
		return nil
	}
	_, err := s.db.NewInsert().Model(&actions).Exec(ctx)
	return err
}

func (s *SQLStore) ActionsByHand(ctx context.Context, handID string) ([]*Action, error) {
	var actions []*Action
	err := s.db.NewSelect().
		Model(&actions).
		Where("hand_id = ?", handID).
		Order("seq ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return actions, nil
}

// ---------- Tournaments ----------

func (s *SQLStore) CreateTournament(ctx context.Context, tn *Tournament) error {
	tn.CreatedAt = time.Now()
	tn.UpdatedAt = tn.CreatedAt
	_, err := s.db.NewInsert().Model(tn).Exec(ctx)
	return err
}

func (s *SQLStore) GetTournament(ctx context.Context, id string) (*Tournament, error) {
	tn := new(Tournament)
	err := s.db.NewSelect().Model(tn).Where("id = ?", id).Scan(ctx)
	if err != nil {
		return nil, mapNotFound(err)
	}
	return tn, nil
}

func (s *SQLStore) UpdateTournament(ctx context.Context, tn *Tournament) error {
	prev := tn.Version
	tn.Version = prev + 1
	tn.UpdatedAt = time.Now()
	res, err := s.db.NewUpdate().
		Model(tn).
		WherePK().
		Where("version = ?", prev).
		Exec(ctx)
	if err != nil {
		tn.Version = prev
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		tn.Version = prev
		return ErrVersionConflict
	}
	return nil
}

func (s *SQLStore) TournamentsByStatus(ctx context.Context, statuses ...TournamentStatus) ([]*Tournament, error) {
	var tns []*Tournament
	err := s.db.NewSelect().
		Model(&tns).
		Where("status IN (?)", bun.In(statuses)).
		Order("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return tns, nil
}

// ---------- Registrations and votes ----------

func (s *SQLStore) CreateRegistration(ctx context.Context, r *Registration) error {
	r.CreatedAt = time.Now()
	_, err := s.db.NewInsert().Model(r).Exec(ctx)
	return err
}

func (s *SQLStore) DeleteRegistration(ctx context.Context, tournamentID, playerID string) error {
	res, err := s.db.NewDelete().
		Model((*Registration)(nil)).
		Where("tournament_id = ? AND player_id = ?", tournamentID, playerID).
		Exec(ctx)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLStore) UpdateRegistration(ctx context.Context, r *Registration) error {
	res, err := s.db.NewUpdate().Model(r).WherePK().Exec(ctx)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLStore) RegistrationsByTournament(ctx context.Context, tournamentID string) ([]*Registration, error) {
	var regs []*Registration
	err := s.db.NewSelect().
		Model(&regs).
		Where("tournament_id = ?", tournamentID).
		Order("created_at ASC", "id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return regs, nil
}

func (s *SQLStore) GetRegistration(ctx context.Context, tournamentID, playerID string) (*Registration, error) {
	r := new(Registration)
	err := s.db.NewSelect().
		Model(r).
		Where("tournament_id = ? AND player_id = ?", tournamentID, playerID).
		Scan(ctx)
	if err != nil {
		return nil, mapNotFound(err)
	}
	return r, nil
}

func (s *SQLStore) ResetReadyFlags(ctx context.Context, tournamentID string) error {
	_, err := s.db.NewUpdate().
		Model((*Registration)(nil)).
		Set("ready = ?", false).
		Where("tournament_id = ?", tournamentID).
		Exec(ctx)
	return err
}

func (s *SQLStore) CreateEarlyStartVote(ctx context.Context, v *EarlyStartVote) error {
	v.CreatedAt = time.Now()
	_, err := s.db.NewInsert().Model(v).Exec(ctx)
	return err
}

func (s *SQLStore) VotesByTournament(ctx context.Context, tournamentID string) ([]*EarlyStartVote, error) {
	var votes []*EarlyStartVote
	err := s.db.NewSelect().
		Model(&votes).
		Where("tournament_id = ?", tournamentID).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return votes, nil
}

// ---------- Payouts ----------

func (s *SQLStore) CreatePayouts(ctx context.Context, payouts []*Payout) error {
	if len(payouts) == 0 {
		return nil
	}
	_, err := s.db.NewInsert().Model(&payouts).Exec(ctx)
	return err
}

func (s *SQLStore) PayoutsByTournament(ctx context.Context, tournamentID string) ([]*Payout, error) {
	var payouts []*Payout
	err := s.db.NewSelect().
		Model(&payouts).
		Where("tournament_id = ?", tournamentID).
		Order("place ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return payouts, nil
}

// ---------- Event log ----------

func (s *SQLStore) AppendEvents(ctx context.Context, events []*GameEvent) error {
	if len(events) == 0 {
		return nil
	}
	_, err := s.db.NewInsert().Model(&events).Exec(ctx)
	return err
}

func (s *SQLStore) EventsSince(ctx context.Context, entityType, entityID string, afterVersion int64) ([]*GameEvent, error) {
	var events []*GameEvent
	err := s.db.NewSelect().
		Model(&events).
		Where("entity_type = ? AND entity_id = ? AND version > ?", entityType, entityID, afterVersion).
		Order("id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return events, nil
}
