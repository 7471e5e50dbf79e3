package settlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/efreitasn/pairexchange/internal/domain"
	"golang.org/x/sync/errgroup"
)

// Settler runs a settlement pass for one pair.
type Settler interface {
	Settle(ctx context.Context, pairID int64, reason string) (*Report, error)
}

// PairLister enumerates every registered pair.
type PairLister interface {
	ListPairs(ctx context.Context) ([]*domain.AssetPair, error)
}

// Sweeper periodically settles every registered pair. Pairs are settled
// concurrently up to a limit; a failing or contended pair never stops the
// others.
type Sweeper struct {
	settler     Settler
	pairs       PairLister
	interval    time.Duration
	concurrency int
	logger      *slog.Logger
	done        chan struct{}
}

// NewSweeper creates a Sweeper. A concurrency below 1 is treated as 1.
func NewSweeper(settler Settler, pairs PairLister, interval time.Duration, concurrency int, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		settler:     settler,
		pairs:       pairs,
		interval:    interval,
		concurrency: max(concurrency, 1),
		logger:      logger,
		done:        make(chan struct{}),
	}
}

// Start launches a background goroutine that sweeps at the configured
// interval. It stops when ctx is cancelled; Done is closed once the
// in-flight sweep has finished.
func (s *Sweeper) Start(ctx context.Context) {
	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := s.SweepOnce(ctx); err != nil && ctx.Err() == nil {
					s.logger.Error("sweep failed", slog.String("error", err.Error()))
				}
			}
		}
	}()
}

// Done is closed when the sweep loop has exited.
func (s *Sweeper) Done() <-chan struct{} {
	return s.done
}

// SweepOnce settles every registered pair once. Only a failure to enumerate
// pairs or a cancelled ctx is returned as an error.
func (s *Sweeper) SweepOnce(ctx context.Context) error {
	pairs, err := s.pairs.ListPairs(ctx)
	if err != nil {
		return fmt.Errorf("list pairs: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, p := range pairs {
		g.Go(func() error {
			_, err := s.settler.Settle(gctx, p.ID, ReasonSweep)
			switch {
			case err == nil, errors.Is(err, domain.ErrLockHeld):
			case errors.Is(err, context.Canceled):
				return err
			default:
				// The coordinator already logged settlement failures.
				var failure *domain.SettlementFailure
				if !errors.As(err, &failure) {
					s.logger.Error("sweep could not settle pair",
						slog.Int64("pair_id", p.ID),
						slog.String("pair", p.Symbol()),
						slog.String("error", err.Error()),
					)
				}
			}
			return nil
		})
	}
	return g.Wait()
}
