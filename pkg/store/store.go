package store

import (
	"context"
	"errors"
)

// ErrVersionConflict is returned by optimistic updates when the persisted
// version no longer matches the one the caller read. Callers retry the whole
// read-compute-write cycle, normally via WithRetry.
var ErrVersionConflict = errors.New("store: version conflict")

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("store: not found")

// ErrInsufficientBalance is returned by Debit when the player cannot cover
// the amount.
var ErrInsufficientBalance = errors.New("store: insufficient balance")

// Store is the storage contract the engine and tournament orchestrator are
// written against. Update* methods have compare-and-swap semantics: they
// write only if the stored version equals the model's version, increment the
// version on success, and return ErrVersionConflict otherwise.
type Store interface {
	// Players / bankroll.
	GetPlayer(ctx context.Context, id string) (*Player, error)
	UpsertPlayer(ctx context.Context, p *Player) error
	Credit(ctx context.Context, playerID string, amount int64, reason string) error
	Debit(ctx context.Context, playerID string, amount int64, reason string) error

	// Tables.
	CreateTable(ctx context.Context, t *Table) error
	GetTable(ctx context.Context, id string) (*Table, error)
	UpdateTable(ctx context.Context, t *Table) error

	// Seats.
	CreateSeat(ctx context.Context, s *Seat) error
	UpdateSeat(ctx context.Context, s *Seat) error
	SeatsByTable(ctx context.Context, tableID string) ([]*Seat, error)
	SeatByPlayer(ctx context.Context, tableID, playerID string) (*Seat, error)

	// Hands.
	CreateHand(ctx context.Context, h *Hand) error
	GetHand(ctx context.Context, id string) (*Hand, error)
	ActiveHandByTable(ctx context.Context, tableID string) (*Hand, error)
	UpdateHand(ctx context.Context, h *Hand) error

	// Pots.
	ReplacePots(ctx context.Context, handID string, pots []*Pot) error
	PotsByHand(ctx context.Context, handID string) ([]*Pot, error)

	// Action audit log.
	AppendActions(ctx context.Context, actions []*Action) error
	ActionsByHand(ctx context.Context, handID string) ([]*Action, error)

	// Tournaments.
	CreateTournament(ctx context.Context, tn *Tournament) error
	GetTournament(ctx context.Context, id string) (*Tournament, error)
	UpdateTournament(ctx context.Context, tn *Tournament) error
	TournamentsByStatus(ctx context.Context, statuses ...TournamentStatus) ([]*Tournament, error)

	// Registrations and votes.
	CreateRegistration(ctx context.Context, r *Registration) error
	DeleteRegistration(ctx context.Context, tournamentID, playerID string) error
	UpdateRegistration(ctx context.Context, r *Registration) error
	RegistrationsByTournament(ctx context.Context, tournamentID string) ([]*Registration, error)
	GetRegistration(ctx context.Context, tournamentID, playerID string) (*Registration, error)
	ResetReadyFlags(ctx context.Context, tournamentID string) error

	CreateEarlyStartVote(ctx context.Context, v *EarlyStartVote) error
	VotesByTournament(ctx context.Context, tournamentID string) ([]*EarlyStartVote, error)

	// Payouts.
	CreatePayouts(ctx context.Context, payouts []*Payout) error
	PayoutsByTournament(ctx context.Context, tournamentID string) ([]*Payout, error)

	// Event log.
	AppendEvents(ctx context.Context, events []*GameEvent) error
	EventsSince(ctx context.Context, entityType, entityID string, afterVersion int64) ([]*GameEvent, error)
}
