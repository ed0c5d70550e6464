package store

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/CodeSpent/pokerpal/pkg/poker"
)

// TableStatus enumerates table lifecycle states.
type TableStatus string

const (
	TableWaiting  TableStatus = "waiting"
	TablePlaying  TableStatus = "playing"
	TableBreaking TableStatus = "breaking"
	TableClosed   TableStatus = "closed"
)

// SeatStatus enumerates per-hand seat states.
type SeatStatus string

const (
	SeatWaiting    SeatStatus = "waiting"
	SeatActive     SeatStatus = "active"
	SeatActed      SeatStatus = "acted"
	SeatFolded     SeatStatus = "folded"
	SeatAllIn      SeatStatus = "all_in"
	SeatSittingOut SeatStatus = "sitting_out"
	SeatEliminated SeatStatus = "eliminated"
)

// HandPhase enumerates the hand state machine's phases.
type HandPhase string

const (
	PhaseDealing  HandPhase = "dealing"
	PhasePreflop  HandPhase = "preflop"
	PhaseFlop     HandPhase = "flop"
	PhaseTurn     HandPhase = "turn"
	PhaseRiver    HandPhase = "river"
	PhaseShowdown HandPhase = "showdown"
	PhaseAwarding HandPhase = "awarding"
	PhaseComplete HandPhase = "complete"
)

// ActionType enumerates audit-log action kinds.
type ActionType string

const (
	ActionFold     ActionType = "fold"
	ActionCheck    ActionType = "check"
	ActionCall     ActionType = "call"
	ActionBet      ActionType = "bet"
	ActionRaise    ActionType = "raise"
	ActionAllIn    ActionType = "all_in"
	ActionPostSB   ActionType = "post_sb"
	ActionPostBB   ActionType = "post_bb"
	ActionPostAnte ActionType = "post_ante"
)

// TournamentStatus enumerates tournament lifecycle states.
type TournamentStatus string

const (
	TournamentRegistering TournamentStatus = "registering"
	TournamentStarting    TournamentStatus = "starting"
	TournamentRunning     TournamentStatus = "running"
	TournamentFinalTable  TournamentStatus = "final_table"
	TournamentHeadsUp     TournamentStatus = "heads_up"
	TournamentComplete    TournamentStatus = "complete"
	TournamentCancelled   TournamentStatus = "cancelled"
)

// NoSeat marks a nullable seat reference (no current actor).
const NoSeat = -1

// CardList stores a card slice as a JSON text column.
type CardList []poker.Card

// Value implements driver.Valuer.
func (l CardList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	data, err := json.Marshal(l)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan implements sql.Scanner.
func (l *CardList) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*l = nil
		return nil
	case string:
		return json.Unmarshal([]byte(v), l)
	case []byte:
		return json.Unmarshal(v, l)
	default:
		return fmt.Errorf("cannot scan %T into CardList", src)
	}
}

// IntList stores an int slice as a JSON text column.
type IntList []int

// Value implements driver.Valuer.
func (l IntList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	data, err := json.Marshal(l)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan implements sql.Scanner.
func (l *IntList) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*l = nil
		return nil
	case string:
		return json.Unmarshal([]byte(v), l)
	case []byte:
		return json.Unmarshal(v, l)
	default:
		return fmt.Errorf("cannot scan %T into IntList", src)
	}
}

// Player is a bankroll account. In-hand chips live on Seat, not here.
type Player struct {
	bun.BaseModel `bun:"table:players,alias:p"`

	ID        string    `bun:"id,pk"`
	Name      string    `bun:"name,notnull"`
	Balance   int64     `bun:"balance,notnull,default:0"`
	CreatedAt time.Time `bun:"created_at,nullzero,default:current_timestamp"`
}

// LedgerEntry records every bankroll mutation, append-only.
type LedgerEntry struct {
	bun.BaseModel `bun:"table:ledger_entries,alias:le"`

	ID        int64     `bun:"id,pk,autoincrement"`
	PlayerID  string    `bun:"player_id,notnull"`
	Amount    int64     `bun:"amount,notnull"`
	Reason    string    `bun:"reason,notnull"`
	CreatedAt time.Time `bun:"created_at,nullzero,default:current_timestamp"`
}

// Table is one poker table. Version is the optimistic lock counter.
type Table struct {
	bun.BaseModel `bun:"table:tables,alias:t"`

	ID           string      `bun:"id,pk"`
	Version      int64       `bun:"version,notnull,default:0"`
	TournamentID string      `bun:"tournament_id"`
	SeatCount    int         `bun:"seat_count,notnull"`
	SmallBlind   int64       `bun:"small_blind,notnull"`
	BigBlind     int64       `bun:"big_blind,notnull"`
	Ante         int64       `bun:"ante,notnull,default:0"`
	DealerSeat   int         `bun:"dealer_seat,notnull,default:0"`
	HandCounter  int64       `bun:"hand_counter,notnull,default:0"`
	Status       TableStatus `bun:"status,notnull"`
	CreatedAt    time.Time   `bun:"created_at,nullzero,default:current_timestamp"`
	UpdatedAt    time.Time   `bun:"updated_at,nullzero,default:current_timestamp"`
}

// Seat is one player's place at a table, including per-hand betting state.
// Seat rows carry no version of their own: every mutation happens inside an
// operation that wins the optimistic update on the owning hand or table.
type Seat struct {
	bun.BaseModel `bun:"table:table_players,alias:tp"`

	ID             string     `bun:"id,pk"`
	TableID        string     `bun:"table_id,notnull"`
	PlayerID       string     `bun:"player_id,notnull"`
	SeatIndex      int        `bun:"seat_index,notnull"`
	Stack          int64      `bun:"stack,notnull"`
	Status         SeatStatus `bun:"status,notnull"`
	CurrentBet     int64      `bun:"current_bet,notnull,default:0"`
	HandContrib    int64      `bun:"hand_contrib,notnull,default:0"`
	HandStartStack int64      `bun:"hand_start_stack,notnull,default:0"`
	HoleCards      CardList   `bun:"hole_cards,type:text"`
	EliminatedAt   *time.Time `bun:"eliminated_at"`
}

// Hand is one hand of play. Version is the optimistic lock counter.
type Hand struct {
	bun.BaseModel `bun:"table:hands,alias:h"`

	ID               string     `bun:"id,pk"`
	Version          int64      `bun:"version,notnull,default:0"`
	TableID          string     `bun:"table_id,notnull"`
	HandNum          int64      `bun:"hand_num,notnull"`
	Phase            HandPhase  `bun:"phase,notnull"`
	DealerSeat       int        `bun:"dealer_seat,notnull"`
	SmallBlindSeat   int        `bun:"small_blind_seat,notnull"`
	BigBlindSeat     int        `bun:"big_blind_seat,notnull"`
	// No SQL default: bun substitutes DEFAULT for zero-valued fields that
	// carry one, which would turn a first actor at seat 0 into NoSeat on
	// insert. The engine always assigns the actor explicitly.
	CurrentActorSeat int        `bun:"current_actor_seat,notnull"`
	CurrentBet       int64      `bun:"current_bet,notnull,default:0"`
	RaiseIncrement   int64      `bun:"raise_increment,notnull,default:0"`
	Pot              int64      `bun:"pot,notnull,default:0"`
	Community        CardList   `bun:"community,type:text"`
	Deck             CardList   `bun:"deck,type:text"`
	ActionDeadline   *time.Time `bun:"action_deadline"`
	ShowdownAt       *time.Time `bun:"showdown_at"`
	ActionCount      int        `bun:"action_count,notnull,default:0"`
	CreatedAt        time.Time  `bun:"created_at,nullzero,default:current_timestamp"`
	UpdatedAt        time.Time  `bun:"updated_at,nullzero,default:current_timestamp"`
}

// Pot is a persisted main or side pot for a hand.
type Pot struct {
	bun.BaseModel `bun:"table:pots,alias:pt"`

	ID       string  `bun:"id,pk"`
	HandID   string  `bun:"hand_id,notnull"`
	PotIndex int     `bun:"pot_index,notnull"`
	Amount   int64   `bun:"amount,notnull"`
	Eligible IntList `bun:"eligible,type:text"`
}

// Action is one row of the append-only per-hand audit log.
type Action struct {
	bun.BaseModel `bun:"table:actions,alias:a"`

	ID        int64      `bun:"id,pk,autoincrement"`
	HandID    string     `bun:"hand_id,notnull"`
	SeatIndex int        `bun:"seat_index,notnull"`
	Type      ActionType `bun:"type,notnull"`
	Amount    int64      `bun:"amount,notnull,default:0"`
	Phase     HandPhase  `bun:"phase,notnull"`
	Seq       int        `bun:"seq,notnull"`
	CreatedAt time.Time  `bun:"created_at,nullzero,default:current_timestamp"`
}

// Tournament is a single-table sit-and-go. Version is the optimistic lock
// counter.
type Tournament struct {
	bun.BaseModel `bun:"table:tournaments,alias:tn"`

	ID                 string           `bun:"id,pk"`
	Version            int64            `bun:"version,notnull,default:0"`
	Status             TournamentStatus `bun:"status,notnull"`
	HostID             string           `bun:"host_id,notnull"`
	MaxPlayers         int              `bun:"max_players,notnull"`
	TableSize          int              `bun:"table_size,notnull"`
	StartingChips      int64            `bun:"starting_chips,notnull"`
	BuyIn              int64            `bun:"buy_in,notnull"`
	SmallBlind         int64            `bun:"small_blind,notnull"`
	BigBlind           int64            `bun:"big_blind,notnull"`
	LevelDuration      time.Duration    `bun:"level_duration,notnull"`
	TurnTimer          time.Duration    `bun:"turn_timer,notnull,default:0"`
	CurrentLevel       int              `bun:"current_level,notnull,default:1"`
	PlayersRemaining   int              `bun:"players_remaining,notnull,default:0"`
	PrizePool          int64            `bun:"prize_pool,notnull,default:0"`
	TableID            string           `bun:"table_id"`
	CountdownStartedAt *time.Time       `bun:"countdown_started_at"`
	LevelStartedAt     *time.Time       `bun:"level_started_at"`
	StartedAt          *time.Time       `bun:"started_at"`
	CompletedAt        *time.Time       `bun:"completed_at"`
	CreatedAt          time.Time        `bun:"created_at,nullzero,default:current_timestamp"`
	UpdatedAt          time.Time        `bun:"updated_at,nullzero,default:current_timestamp"`
}

// Registration ties a player to a tournament. The buy-in has been debited
// for as long as the row exists.
type Registration struct {
	bun.BaseModel `bun:"table:tournament_registrations,alias:tr"`

	ID           string    `bun:"id,pk"`
	TournamentID string    `bun:"tournament_id,notnull"`
	PlayerID     string    `bun:"player_id,notnull"`
	Ready        bool      `bun:"ready,notnull,default:false"`
	CreatedAt    time.Time `bun:"created_at,nullzero,default:current_timestamp"`
}

// EarlyStartVote records one player's vote to start before the roster fills.
type EarlyStartVote struct {
	bun.BaseModel `bun:"table:early_start_votes,alias:esv"`

	ID           string    `bun:"id,pk"`
	TournamentID string    `bun:"tournament_id,notnull"`
	PlayerID     string    `bun:"player_id,notnull"`
	CreatedAt    time.Time `bun:"created_at,nullzero,default:current_timestamp"`
}

// Payout is one finishing place's prize. Existing rows make re-awarding a
// no-op.
type Payout struct {
	bun.BaseModel `bun:"table:tournament_payouts,alias:tp2"`

	ID           string    `bun:"id,pk"`
	TournamentID string    `bun:"tournament_id,notnull"`
	PlayerID     string    `bun:"player_id,notnull"`
	Place        int       `bun:"place,notnull"`
	Amount       int64     `bun:"amount,notnull"`
	CreatedAt    time.Time `bun:"created_at,nullzero,default:current_timestamp"`
}

// GameEvent is one row of the append-only domain event log, used for
// catch-up sync and to drive the broadcaster.
type GameEvent struct {
	bun.BaseModel `bun:"table:game_events,alias:ge"`

	ID         int64           `bun:"id,pk,autoincrement"`
	EntityType string          `bun:"entity_type,notnull"`
	EntityID   string          `bun:"entity_id,notnull"`
	Type       string          `bun:"type,notnull"`
	Payload    json.RawMessage `bun:"payload,type:text"`
	Version    int64           `bun:"version,notnull"`
	CreatedAt  time.Time       `bun:"created_at,nullzero,default:current_timestamp"`
}
