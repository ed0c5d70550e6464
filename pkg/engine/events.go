package engine

import (
	"encoding/json"
	"time"

	"github.com/CodeSpent/pokerpal/pkg/poker"
	"github.com/CodeSpent/pokerpal/pkg/store"
)

// Domain event names, mirrored on the broadcast channels.
const (
	EventHandStarted      = "HAND_STARTED"
	EventTurnStarted      = "TURN_STARTED"
	EventAction           = "ACTION"
	EventStreetDealt      = "STREET_DEALT"
	EventPotUpdated       = "POT_UPDATED"
	EventShowdown         = "SHOWDOWN"
	EventPotAwarded       = "POT_AWARDED"
	EventHandComplete     = "HAND_COMPLETE"
	EventPlayerTimeout    = "PLAYER_TIMEOUT"
	EventTableRepaired    = "TABLE_REPAIRED"
	EventPlayerEliminated = "PLAYER_ELIMINATED"
)

// Entity types used in the persisted event log.
const (
	EntityTable      = "table"
	EntityHand       = "hand"
	EntityTournament = "tournament"
)

// Event is one domain event produced by a state transition, before it is
// persisted to the event log and broadcast.
type Event struct {
	Name    string
	Payload interface{}
}

// HandStartedPayload announces a freshly dealt hand.
type HandStartedPayload struct {
	HandID     string `json:"hand_id"`
	HandNum    int64  `json:"hand_num"`
	DealerSeat int    `json:"dealer_seat"`
	SmallBlind int64  `json:"small_blind"`
	BigBlind   int64  `json:"big_blind"`
	Ante       int64  `json:"ante,omitempty"`
	Players    int    `json:"players"`
}

// TurnStartedPayload announces whose turn it is and their deadline.
type TurnStartedPayload struct {
	HandID    string     `json:"hand_id"`
	Seat      int        `json:"seat"`
	PlayerID  string     `json:"player_id"`
	Deadline  *time.Time `json:"deadline,omitempty"`
	ToCall    int64      `json:"to_call"`
	MinRaise  int64      `json:"min_raise"`
	Phase     string     `json:"phase"`
	PotAmount int64      `json:"pot"`
}

// ActionPayload records an applied action.
type ActionPayload struct {
	HandID   string `json:"hand_id"`
	Seat     int    `json:"seat"`
	PlayerID string `json:"player_id"`
	Type     string `json:"type"`
	Amount   int64  `json:"amount,omitempty"`
	Auto     bool   `json:"auto,omitempty"`
}

// StreetDealtPayload announces newly dealt community cards.
type StreetDealtPayload struct {
	HandID    string       `json:"hand_id"`
	Phase     string       `json:"phase"`
	Community []poker.Card `json:"community"`
}

// PotUpdatedPayload carries the running pot total.
type PotUpdatedPayload struct {
	HandID string `json:"hand_id"`
	Pot    int64  `json:"pot"`
}

// ShowdownSeat is one revealed hand at showdown.
type ShowdownSeat struct {
	Seat        int          `json:"seat"`
	PlayerID    string       `json:"player_id"`
	HoleCards   []poker.Card `json:"hole_cards"`
	Description string       `json:"description"`
}

// ShowdownPayload reveals the contested hands.
type ShowdownPayload struct {
	HandID    string         `json:"hand_id"`
	Community []poker.Card   `json:"community"`
	Seats     []ShowdownSeat `json:"seats"`
	Pot       int64          `json:"pot"`
}

// PotAwardedPayload records one pot's payouts.
type PotAwardedPayload struct {
	HandID   string        `json:"hand_id"`
	PotIndex int           `json:"pot_index"`
	Amount   int64         `json:"amount"`
	Awards   []poker.Award `json:"awards"`
}

// HandCompletePayload finalizes a hand.
type HandCompletePayload struct {
	HandID  string `json:"hand_id"`
	HandNum int64  `json:"hand_num"`
}

// PlayerTimeoutPayload records an auto-applied correction.
type PlayerTimeoutPayload struct {
	HandID   string `json:"hand_id"`
	Seat     int    `json:"seat"`
	PlayerID string `json:"player_id"`
	Action   string `json:"action"`
}

// TableRepairedPayload records a self-healing correction.
type TableRepairedPayload struct {
	TableID string `json:"table_id"`
	HandID  string `json:"hand_id,omitempty"`
	Repair  string `json:"repair"`
}

// PlayerEliminatedPayload records a bust-out.
type PlayerEliminatedPayload struct {
	TableID  string `json:"table_id"`
	HandID   string `json:"hand_id"`
	Seat     int    `json:"seat"`
	PlayerID string `json:"player_id"`
}

// logEvents converts emitted events into persisted event-log rows carrying
// the entity's version at emission.
func logEvents(entityType, entityID string, version int64, events []Event) []*store.GameEvent {
	rows := make([]*store.GameEvent, 0, len(events))
	for _, ev := range events {
		payload, err := json.Marshal(ev.Payload)
		if err != nil {
			payload = []byte("{}")
		}
		rows = append(rows, &store.GameEvent{
			EntityType: entityType,
			EntityID:   entityID,
			Type:       ev.Name,
			Payload:    payload,
			Version:    version,
			CreatedAt:  time.Now(),
		})
	}
	return rows
}
