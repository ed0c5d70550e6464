package broadcast

import "sync"

// Message is one captured broadcast.
type Message struct {
	Channel string
	Event   string
	Payload interface{}
}

// Capture is a Broadcaster that records messages in memory for tests.
type Capture struct {
	mu       sync.Mutex
	messages []Message
}

// NewCapture creates an empty capture broadcaster.
func NewCapture() *Capture {
	return &Capture{}
}

// Broadcast implements Broadcaster.
func (c *Capture) Broadcast(channel, event string, payload interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, Message{Channel: channel, Event: event, Payload: payload})
}

// Messages returns a copy of everything captured so far.
func (c *Capture) Messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// Events returns the event names captured on the given channel, in order.
func (c *Capture) Events(channel string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for _, m := range c.messages {
		if m.Channel == channel {
			out = append(out, m.Event)
		}
	}
	return out
}

// Reset clears captured messages.
func (c *Capture) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = nil
}
