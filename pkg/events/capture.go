package events

import (
	"context"
	"sync"
)

// Capture keeps every event it receives.
type Capture struct {
	mu     sync.Mutex
	events []Event
}

func (c *Capture) Handle(_ context.Context, evts ...Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, evts...)
	return nil
}

func (c *Capture) Events() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Event(nil), c.events...)
}

// Kinds returns the kinds received so far, in order.
func (c *Capture) Kinds() []Kind {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Kind, 0, len(c.events))
	for _, e := range c.events {
		out = append(out, e.Kind)
	}
	return out
}
