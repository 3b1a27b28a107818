package runner

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/beekhof/calendar-notify/internal/notify"
	syncengine "github.com/beekhof/calendar-notify/internal/sync"
)

// Syncer is the subset of the sync engine the runner drives.
type Syncer interface {
	SyncOnce(ctx context.Context) error
}

// Ticker is the subset of the notification scheduler the runner drives.
type Ticker interface {
	Tick(ctx context.Context, now time.Time) []notify.Notification
}

// Runner drives the two background timers: the sync poll and the
// notification tick. Neither ever runs on the UI path.
type Runner struct {
	cron   *cron.Cron
	syncer Syncer
	ticker Ticker
	poll   time.Duration
	tick   time.Duration
}

// New creates a runner polling the provider every poll and scanning triggers
// every tick. Overlapping runs of the same job are skipped, not queued.
func New(syncer Syncer, ticker Ticker, poll, tick time.Duration) *Runner {
	return &Runner{
		cron:   cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		syncer: syncer,
		ticker: ticker,
		poll:   poll,
		tick:   tick,
	}
}

// Start performs an immediate first sync, then schedules the background
// jobs and blocks until ctx is cancelled. Call Stop afterwards to drain
// in-flight jobs.
func (r *Runner) Start(ctx context.Context) error {
	if err := r.syncer.SyncOnce(ctx); err != nil {
		if errors.Is(err, syncengine.ErrUnauthenticated) {
			return err
		}
		// Stale-but-available: keep running on whatever we had.
		log.Printf("Initial sync failed: %v", err)
	}

	r.cron.Schedule(cron.Every(r.poll), cron.FuncJob(func() {
		if err := r.syncer.SyncOnce(ctx); err != nil {
			log.Printf("Sync failed: %v", err)
		}
	}))

	r.cron.Schedule(cron.Every(r.tick), cron.FuncJob(func() {
		if emitted := r.ticker.Tick(ctx, time.Now()); len(emitted) > 0 {
			log.Printf("Dispatched %d notification(s)", len(emitted))
		}
	}))

	r.cron.Start()
	log.Printf("Runner started (poll: %s, tick: %s)", r.poll, r.tick)

	<-ctx.Done()
	return nil
}

// Stop halts the schedule and waits for in-flight jobs, so shutdown never
// interrupts a merge halfway.
func (r *Runner) Stop() {
	stopCtx := r.cron.Stop()
	<-stopCtx.Done()
	log.Println("Runner stopped")
}
