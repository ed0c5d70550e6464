package broadcast

import (
	"encoding/json"

	"github.com/decred/slog"
	"github.com/nats-io/nats.go"
)

// envelope is the wire form of a broadcast message.
type envelope struct {
	Event   string      `json:"event"`
	Payload interface{} `json:"payload,omitempty"`
}

// NATSBroadcaster publishes events as JSON envelopes on NATS subjects named
// after the channel.
type NATSBroadcaster struct {
	nc  *nats.Conn
	log slog.Logger
}

// NewNATS connects to the given NATS URL.
func NewNATS(url string, log slog.Logger) (*NATSBroadcaster, error) {
	nc, err := nats.Connect(url,
		nats.Name("pokerpal"),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, err
	}
	return &NATSBroadcaster{nc: nc, log: log}, nil
}

// NewNATSWithConn wraps an existing connection.
func NewNATSWithConn(nc *nats.Conn, log slog.Logger) *NATSBroadcaster {
	return &NATSBroadcaster{nc: nc, log: log}
}

// Broadcast implements Broadcaster. Failures are logged and dropped; a
// broadcast must never roll back or retry the state mutation it follows.
func (b *NATSBroadcaster) Broadcast(channel, event string, payload interface{}) {
	data, err := json.Marshal(envelope{Event: event, Payload: payload})
	if err != nil {
		b.log.Errorf("broadcast: marshal %s on %s: %v", event, channel, err)
		return
	}
	if err := b.nc.Publish(channel, data); err != nil {
		b.log.Errorf("broadcast: publish %s on %s: %v", event, channel, err)
	}
}

// Close drains the connection.
func (b *NATSBroadcaster) Close() {
	if b.nc != nil {
		b.nc.Close()
	}
}
