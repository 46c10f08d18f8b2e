package engine

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/aliabuzahra/queue-sub006/internal/domain"
	"github.com/aliabuzahra/queue-sub006/internal/logging"
)

var log = logging.New("release")

// DefaultTickInterval is the nominal per-second controller cadence named
// in spec §4.5.
const DefaultTickInterval = time.Second

// RunControllers starts one ticking goroutine per active queue (spec §5
// "One release controller task per active queue") and blocks until ctx is
// canceled, using golang.org/x/sync/errgroup. The set of queues is read
// once at start. Each controller logs every Tick error and keeps ticking;
// a controller is not stopped when its queue is deleted, and the only
// error returned is one from ListActiveQueues.
func (s *Service) RunControllers(ctx context.Context, tickInterval time.Duration) error {
	if tickInterval <= 0 {
		tickInterval = DefaultTickInterval
	}
	queues, err := s.queues.ListActiveQueues(ctx)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, q := range queues {
		q := q
		g.Go(func() error {
			return s.runController(gctx, q, tickInterval)
		})
	}
	return g.Wait()
}

func (s *Service) runController(ctx context.Context, queue *domain.Queue, tickInterval time.Duration) error {
	c := s.controllerFor(queue)
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// Cancellation: the current tick (if any) already ran to a safe
			// point inside Controller.Tick, which never leaves a partial
			// BulkTransition committed (spec §5 "Cancellation & timeouts").
			return nil
		case now := <-ticker.C:
			res := c.Tick(ctx, now)
			if res.Err != nil {
				log.Printf("queue %s tick error: %v", queue.ID, res.Err)
			}
		}
	}
}
