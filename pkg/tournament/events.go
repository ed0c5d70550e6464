package tournament

import (
	"encoding/json"
	"time"

	"github.com/CodeSpent/pokerpal/pkg/engine"
	"github.com/CodeSpent/pokerpal/pkg/store"
)

// Tournament lifecycle event names, mirrored on the tournament channel.
const (
	EventPlayerRegistered   = "PLAYER_REGISTERED"
	EventPlayerUnregistered = "PLAYER_UNREGISTERED"
	EventEarlyStartVote     = "EARLY_START_VOTE"
	EventCountdownStarted   = "COUNTDOWN_STARTED"
	EventCountdownCancelled = "COUNTDOWN_CANCELLED"
	EventStarted            = "TOURNAMENT_STARTED"
	EventBlindsUp           = "BLINDS_UP"
	EventPlayerBusted       = "PLAYER_BUSTED"
	EventFinished           = "TOURNAMENT_FINISHED"
	EventCancelled          = "TOURNAMENT_CANCELLED"
)

// RosterPayload announces a registration change.
type RosterPayload struct {
	TournamentID string `json:"tournament_id"`
	PlayerID     string `json:"player_id"`
	Registered   int    `json:"registered"`
	Capacity     int    `json:"capacity"`
}

// CountdownPayload announces a start countdown beginning or being called
// off.
type CountdownPayload struct {
	TournamentID string     `json:"tournament_id"`
	StartsAt     *time.Time `json:"starts_at,omitempty"`
	Reason       string     `json:"reason,omitempty"`
}

// StartedPayload announces play beginning.
type StartedPayload struct {
	TournamentID  string `json:"tournament_id"`
	TableID       string `json:"table_id"`
	Players       int    `json:"players"`
	StartingChips int64  `json:"starting_chips"`
}

// BlindsUpPayload announces a blind level escalation.
type BlindsUpPayload struct {
	TournamentID string `json:"tournament_id"`
	Level        Level  `json:"level"`
}

// BustedPayload announces an elimination with its finishing place.
type BustedPayload struct {
	TournamentID string `json:"tournament_id"`
	PlayerID     string `json:"player_id"`
	Place        int    `json:"place"`
	Remaining    int    `json:"remaining"`
}

// FinishedPayload announces the final result.
type FinishedPayload struct {
	TournamentID string       `json:"tournament_id"`
	WinnerID     string       `json:"winner_id"`
	Payouts      []PlacePrize `json:"payouts"`
}

// PlacePrize is one paid finishing place.
type PlacePrize struct {
	Place    int    `json:"place"`
	PlayerID string `json:"player_id"`
	Amount   int64  `json:"amount"`
}

// CancelledPayload announces a cancellation and that buy-ins were refunded.
type CancelledPayload struct {
	TournamentID string `json:"tournament_id"`
	Reason       string `json:"reason"`
	Refunded     int    `json:"refunded"`
}

// eventRows converts emitted events into persisted rows carrying the
// tournament's version at emission.
func eventRows(tournamentID string, version int64, events []engine.Event) []*store.GameEvent {
	rows := make([]*store.GameEvent, 0, len(events))
	for _, ev := range events {
		payload, err := json.Marshal(ev.Payload)
		if err != nil {
			payload = []byte("{}")
		}
		rows = append(rows, &store.GameEvent{
			EntityType: engine.EntityTournament,
			EntityID:   tournamentID,
			Type:       ev.Name,
			Payload:    payload,
			Version:    version,
			CreatedAt:  time.Now(),
		})
	}
	return rows
}
