// Package stage defines the contract between the worker poll loop and the
// pipeline stages. Each stage package implements Handler around its slice of
// the shared store; the worker never touches store rows directly.
package stage

import "context"

// Item is one claimed unit of work. Key returns the value the stage's result
// table is keyed by: a source path, a stream path, or an interview name.
type Item interface {
	Key() string
}

// KeyItem is a bare Item for stages whose claim carries no row payload.
type KeyItem string

func (k KeyItem) Key() string { return string(k) }

// Handler describes the contract the worker loop needs from each stage.
type Handler interface {
	// Name identifies the stage in logs and error chains.
	Name() string
	// Claim selects the next eligible work item, or (nil, nil) when the
	// queue is drained. Claiming is logical: nothing is persisted, and two
	// workers may claim the same item. The losing worker finds out when its
	// result insert reports contention.
	Claim(ctx context.Context) (Item, error)
	// Process runs the stage on one claimed item and records its result row.
	Process(ctx context.Context, item Item) error
	// HealthCheck verifies the stage's external collaborators are usable.
	HealthCheck(ctx context.Context) Health
}

// Stasher is implemented by handlers that chain follow-up work after a
// processed item, such as the sibling stream of the same video. Stashed items
// bypass the general claim on the next poll.
type Stasher interface {
	TakeStashed(ctx context.Context) (Item, error)
}

// IdleObserver is implemented by handlers that react to a drained queue
// before the worker backs off, such as requesting more upstream material.
type IdleObserver interface {
	OnIdle(ctx context.Context) error
}
