package services

import (
	"context"
	"sync"
	"time"

	"github.com/Tom-Bini/manus-bridge-bot/internal/domain/entities"
	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Dispatcher polls for due schedule entries and fires them. Entries whose
// fire time passed while the process was down come back from the first poll
// and fire exactly once, which is the whole restart recovery story.
type Dispatcher struct {
	scheduler *SchedulerService
	cron      *cron.Cron
	logger    *zap.Logger

	mu       sync.Mutex
	inFlight map[int]struct{}
	fires    sync.WaitGroup
	running  bool
	lastTick time.Time
}

// NewDispatcher creates a dispatcher around the scheduler service.
func NewDispatcher(scheduler *SchedulerService, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		scheduler: scheduler,
		cron:      cron.New(),
		logger:    logger,
		inFlight:  make(map[int]struct{}),
	}
}

// Start begins polling. It logs how many past-due entries the first poll
// will pick up so restarts are visible in the log.
func (d *Dispatcher) Start(ctx context.Context) error {
	due, err := d.scheduler.scheduleRepo.GetDue(ctx, d.scheduler.clock.Now())
	if err != nil {
		return errors.Wrap(err, "failed to load due schedule entries")
	}
	if len(due) > 0 {
		d.logger.Info("Recovering past-due schedule entries", zap.Int("count", len(due)))
	}

	if _, err := d.cron.AddFunc("@every 10s", d.tick); err != nil {
		return errors.Wrap(err, "failed to register dispatch job")
	}
	d.cron.Start()

	d.mu.Lock()
	d.running = true
	d.mu.Unlock()

	d.logger.Info("Transfer dispatcher started")
	return nil
}

// Stop halts polling and waits for in-flight fires to finish, so no
// transfer row is left stuck in a non-terminal state by shutdown.
func (d *Dispatcher) Stop() {
	ctx := d.cron.Stop()
	<-ctx.Done()
	d.fires.Wait()

	d.mu.Lock()
	d.running = false
	d.mu.Unlock()

	d.logger.Info("Transfer dispatcher stopped")
}

// Running reports whether the dispatcher is polling.
func (d *Dispatcher) Running() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running
}

// LastTick returns the time of the most recent dispatch scan.
func (d *Dispatcher) LastTick() time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastTick
}

func (d *Dispatcher) tick() {
	ctx := context.Background()

	d.mu.Lock()
	d.lastTick = d.scheduler.clock.Now()
	d.mu.Unlock()

	due, err := d.scheduler.scheduleRepo.GetDue(ctx, d.scheduler.clock.Now())
	if err != nil {
		d.logger.Error("Failed to query due schedule entries", zap.Error(err))
		return
	}

	for i := range due {
		entry := due[i]
		if !d.claim(entry.ID) {
			continue
		}

		go func(entry entities.ScheduleEntry) {
			defer d.release(entry.ID)

			if err := d.scheduler.Fire(ctx, &entry); err != nil {
				if errors.Is(err, entities.ErrExecuting) {
					d.logger.Info("Wallet busy, entry rescheduled",
						zap.String("wallet", entry.WalletAddress),
						zap.Int("entry_id", entry.ID),
					)
					return
				}
				d.logger.Error("Schedule entry fire failed",
					zap.String("wallet", entry.WalletAddress),
					zap.Int("entry_id", entry.ID),
					zap.Error(err),
				)
			}
		}(entry)
	}
}

// claim marks an entry as in flight so overlapping ticks never fire the
// same row twice. A claimed entry is tracked until release so Stop can
// join every fire goroutine.
func (d *Dispatcher) claim(entryID int) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, busy := d.inFlight[entryID]; busy {
		return false
	}
	d.inFlight[entryID] = struct{}{}
	d.fires.Add(1)
	return true
}

func (d *Dispatcher) release(entryID int) {
	d.mu.Lock()
	delete(d.inFlight, entryID)
	d.mu.Unlock()
	d.fires.Done()
}
