package broker

import (
	"context"

	"github.com/juniorbasecompany/turna/domain"
)

// Message is the unit placed on the job queue. The Job row is the source
// of truth; the message only names it.
type Message struct {
	JobID string `json:"job_id"`
	Kind  string `json:"kind"`
}

// Broker is the external queue collaborator. Delivery is at-least-once:
// consumers must tolerate replays by re-checking job state.
type Broker interface {
	// Publish pushes a message onto the queue.
	Publish(ctx context.Context, msg Message) error
	// Consume blocks until a message is available or ctx is done.
	Consume(ctx context.Context) (Message, error)
	// Close releases resources.
	Close() error
}

// ErrClosed is returned by Consume when the broker shuts down.
var ErrClosed = domain.Unavailable("broker closed")
