package jobengine

import (
	"context"

	"github.com/juniorbasecompany/turna/domain"
)

// PingHandler validates the queue/worker path end to end.
func PingHandler() Handler {
	return HandlerFunc(func(ctx context.Context, job *domain.Job) (map[string]any, error) {
		return map[string]any{"pong": true}, nil
	})
}
