package supervisor

import (
	"context"
	"time"
)

// DefaultGracePeriod is how long a child gets to exit after SIGTERM when the
// supervising context is cancelled.
const DefaultGracePeriod = 5 * time.Second

// Run starts the child, forwards termination signals to it and blocks
// until it exits.
//
// The relationship is one child, no restart: whatever the child does is the
// final outcome. Cancelling ctx terminates the child (SIGTERM, then kill
// after DefaultGracePeriod) and still returns its real outcome.
func Run(ctx context.Context, spec Spec) Outcome {
	p, err := Spawn(spec)
	if err != nil {
		return FailedToStart(err)
	}

	stop := p.ForwardSignals()
	defer stop()

	select {
	case <-p.Done():
		return p.Wait()
	case <-ctx.Done():
		return p.Terminate(DefaultGracePeriod)
	}
}
