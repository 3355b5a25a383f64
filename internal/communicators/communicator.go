package communicators

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// Communicator is an external chat adapter (e.g. Telegram) feeding the
// chat service.
type Communicator interface {
	// ID returns the unique name of the communicator (e.g., "telegram").
	ID() string

	// Start listens for events until ctx is canceled or an error occurs.
	Start(ctx context.Context) error
}

// Run starts every communicator and blocks until all of them return. The
// first error cancels the others.
func Run(ctx context.Context, logger *slog.Logger, cs ...Communicator) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, c := range cs {
		g.Go(func() error {
			logger.Info("starting communicator", "id", c.ID())
			err := c.Start(ctx)
			logger.Info("communicator stopped", "id", c.ID(), "error", err)
			return err
		})
	}
	return g.Wait()
}
