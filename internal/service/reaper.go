package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/matvey1347srgtjh/uchebnaia-practika/internal/queue"
)

// DefaultReapInterval is the sweep period used when none is configured.
const DefaultReapInterval = 60 * time.Second

// ExpiredReleaser releases every hold that expired at or before now and
// reports how many it released.  *repository.TicketRepo implements it.
type ExpiredReleaser interface {
	ReleaseExpired(ctx context.Context, now time.Time) (int64, error)
}

// Reaper periodically releases expired holds.  Correctness never depends
// on it: expired holds already count as free everywhere.  It only keeps
// the ledger tidy.
type Reaper struct {
	ledger   ExpiredReleaser
	clock    Clock
	interval time.Duration
	events   EventPublisher
	log      *slog.Logger
}

// ReaperOptions tunes a Reaper.  Zero values select defaults.
type ReaperOptions struct {
	Clock    Clock
	Interval time.Duration
	Events   EventPublisher
	Logger   *slog.Logger
}

// NewReaper returns a Reaper over ledger.
func NewReaper(ledger ExpiredReleaser, opts ReaperOptions) *Reaper {
	r := &Reaper{
		ledger:   ledger,
		clock:    opts.Clock,
		interval: opts.Interval,
		events:   opts.Events,
		log:      opts.Logger,
	}
	if r.clock == nil {
		r.clock = SystemClock()
	}
	if r.interval <= 0 {
		r.interval = DefaultReapInterval
	}
	if r.log == nil {
		r.log = slog.Default()
	}
	return r
}

// Interval returns the sweep period.
func (r *Reaper) Interval() time.Duration { return r.interval }

// Sweep runs one cycle and returns the number of holds released.  Sold
// tickets are never touched.
func (r *Reaper) Sweep(ctx context.Context) (int64, error) {
	now := snapshot(r.clock)
	n, err := r.ledger.ReleaseExpired(ctx, now)
	if err != nil {
		return 0, storeError("release expired holds", err)
	}
	if n > 0 {
		r.log.Info("released expired holds", "count", n, "now", now)
		if r.events != nil {
			ev := queue.HoldsReleasedEvent{Count: n, ReleasedAt: now.Format(time.RFC3339)}
			if err := r.events.PublishHoldsReleased(ctx, ev); err != nil {
				r.log.Warn("publish holds.released failed", "error", err)
			}
		}
	}
	return n, nil
}

// Run sweeps once immediately and then every interval until ctx is done.
// A failed cycle is logged and the loop carries on with the next tick.
func (r *Reaper) Run(ctx context.Context) {
	r.sweepAndLog(ctx)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sweepAndLog(ctx)
		}
	}
}

func (r *Reaper) sweepAndLog(ctx context.Context) {
	if _, err := r.Sweep(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		r.log.Error("reaper cycle failed", "error", err)
	}
}
