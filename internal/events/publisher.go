// Package events publishes finished generation runs to downstream consumers.
package events

import "context"

// Publisher sends run events.
type Publisher interface {
	Publish(ctx context.Context, evt RunFinished) error
}

// Nop drops every event. It is used when no queue is configured.
type Nop struct{}

// Publish implements Publisher.
func (Nop) Publish(context.Context, RunFinished) error { return nil }

var _ Publisher = Nop{}
