package sweep

import (
	"context"
	"errors"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-mentor/internal/lock"
	"github.com/noah-isme/backend-mentor/internal/obs"
)

// TaskSweepQuotes archives unconfirmed quotes past the retention window.
const TaskSweepQuotes = "pricing:sweep_quotes"

const lockKey = "pricing:sweep:lock"

// NewTask builds the sweep task for the scheduler.
func NewTask() *asynq.Task {
	return asynq.NewTask(TaskSweepQuotes, nil)
}

// Archiver is the slice of the quote store the sweeper needs.
type Archiver interface {
	ArchiveUnconfirmedBefore(ctx context.Context, cutoff time.Time, limit int) (int64, error)
}

// Sweeper archives unconfirmed quotes older than the retention window.
// Locked breakdowns are never touched: a confirmed price is permanent.
type Sweeper struct {
	Store     Archiver
	Locker    lock.Locker
	Retention time.Duration
	BatchSize int
	LockTTL   time.Duration
	Log       zerolog.Logger
	Now       func() time.Time
}

func (s *Sweeper) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Handle processes one sweep task. Overlapping runs are skipped via the
// distributed lock rather than queued behind each other.
func (s *Sweeper) Handle(ctx context.Context, _ *asynq.Task) error {
	err := s.Locker.TryWithLock(ctx, lockKey, s.LockTTL, s.sweep)
	if errors.Is(err, lock.ErrNotObtained) {
		s.Log.Debug().Msg("sweep already running elsewhere, skipping")
		return nil
	}
	return err
}

func (s *Sweeper) sweep(ctx context.Context) error {
	if s.Store == nil {
		return errors.New("sweep: store not configured")
	}
	retention := s.Retention
	if retention <= 0 {
		retention = 7 * 24 * time.Hour
	}
	batch := s.BatchSize
	if batch <= 0 {
		batch = 500
	}
	cutoff := s.now().Add(-retention)

	var total int64
	for {
		archived, err := s.Store.ArchiveUnconfirmedBefore(ctx, cutoff, batch)
		if err != nil {
			return err
		}
		total += archived
		if archived < int64(batch) {
			break
		}
	}
	if total > 0 {
		if obs.QuoteSweepArchived != nil {
			obs.QuoteSweepArchived.Add(float64(total))
		}
		s.Log.Info().Int64("archived", total).Time("cutoff", cutoff).Msg("archived stale quotes")
	}
	return nil
}
