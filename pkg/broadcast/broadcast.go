// Package broadcast defines the fan-out contract the engine publishes
// domain events through. Delivery is best effort and at most once; clients
// that miss events recover with a full-state fetch.
package broadcast

import "fmt"

// Broadcaster publishes an event payload on a channel. Implementations must
// never block game progress: failures are logged and swallowed, never
// returned into a state transition.
type Broadcaster interface {
	Broadcast(channel, event string, payload interface{})
}

// TableChannel returns the per-table channel name.
func TableChannel(tableID string) string {
	return fmt.Sprintf("table-%s", tableID)
}

// TournamentChannel returns the per-tournament channel name.
func TournamentChannel(tournamentID string) string {
	return fmt.Sprintf("tournament-%s", tournamentID)
}

// Nop is a Broadcaster that drops everything.
type Nop struct{}

// Broadcast implements Broadcaster.
func (Nop) Broadcast(string, string, interface{}) {}
