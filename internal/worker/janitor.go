package worker

import (
	"context"
	"fmt"
	"time"

	"moneybook/internal/log"
	"moneybook/internal/ports"

	"github.com/robfig/cron/v3"
)

const (
	baseRetryDelay = time.Minute
	maxRetryDelay  = time.Hour
)

// BlobJanitor retries deletion of blobs the transaction service could not
// remove in-line.
type BlobJanitor struct {
	orphans   ports.OrphanQueue
	blobs     ports.BlobStore
	batchSize int
	logger    *log.Logger
	now       func() time.Time
}

func NewBlobJanitor(orphans ports.OrphanQueue, blobs ports.BlobStore, batchSize int, logger *log.Logger) *BlobJanitor {
	if batchSize <= 0 {
		batchSize = 50
	}
	if logger == nil {
		logger = log.Discard()
	}
	return &BlobJanitor{
		orphans:   orphans,
		blobs:     blobs,
		batchSize: batchSize,
		logger:    logger.WithComponent(log.ComponentJanitor),
		now:       time.Now,
	}
}

// RetryDelay is the wait after a failed attempt given the number of earlier
// failures: one minute doubled per failure, capped at one hour.
func RetryDelay(attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	if attempts >= 6 {
		return maxRetryDelay
	}
	d := baseRetryDelay << attempts
	if d > maxRetryDelay {
		return maxRetryDelay
	}
	return d
}

// RunOnce processes one batch of due orphans. It returns how many blobs were
// deleted and how many were rescheduled.
func (j *BlobJanitor) RunOnce(ctx context.Context) (deleted, rescheduled int, err error) {
	now := j.now()
	due, err := j.orphans.DueOrphans(ctx, now, j.batchSize)
	if err != nil {
		return 0, 0, fmt.Errorf("fetch due orphans: %w", err)
	}

	for _, o := range due {
		if ctx.Err() != nil {
			return deleted, rescheduled, ctx.Err()
		}

		if derr := j.blobs.Delete(ctx, o.BlobKey); derr != nil {
			next := now.Add(RetryDelay(o.Attempts))
			if rerr := j.orphans.RetryOrphanLater(ctx, o.ID, derr.Error(), next); rerr != nil {
				j.logger.ErrorContext(ctx, "Failed to reschedule orphan blob",
					log.FieldBlobKey, o.BlobKey,
					log.FieldError, rerr,
					log.FieldErrorType, log.ErrorTypeDatabase)
				continue
			}
			rescheduled++
			j.logger.WarnContext(ctx, "Orphan blob delete failed, rescheduled",
				log.FieldBlobKey, o.BlobKey,
				log.FieldError, derr,
				"attempts", o.Attempts+1,
				"next_attempt_at", next)
			continue
		}

		if rerr := j.orphans.ResolveOrphan(ctx, o.ID); rerr != nil {
			j.logger.ErrorContext(ctx, "Failed to resolve orphan blob",
				log.FieldBlobKey, o.BlobKey,
				log.FieldError, rerr,
				log.FieldErrorType, log.ErrorTypeDatabase)
			continue
		}
		deleted++
	}

	if deleted > 0 || rescheduled > 0 {
		j.logger.InfoContext(ctx, "Orphan blob sweep finished",
			log.FieldOperation, log.OpCleanup,
			"deleted", deleted,
			"rescheduled", rescheduled)
	}
	return deleted, rescheduled, nil
}

// Run schedules RunOnce with a cron spec (e.g. "@every 1m") and blocks until
// ctx is cancelled. Overlapping sweeps are skipped.
func (j *BlobJanitor) Run(ctx context.Context, spec string) error {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	_, err := c.AddFunc(spec, func() {
		if _, _, err := j.RunOnce(ctx); err != nil && ctx.Err() == nil {
			j.logger.ErrorContext(ctx, "Orphan blob sweep failed", log.FieldError, err)
		}
	})
	if err != nil {
		return fmt.Errorf("schedule janitor %q: %w", spec, err)
	}

	c.Start()
	j.logger.InfoContext(ctx, "Blob janitor started", "schedule", spec, "batch_size", j.batchSize)

	<-ctx.Done()
	<-c.Stop().Done()
	j.logger.InfoContext(context.Background(), "Blob janitor stopped")
	return nil
}

// ValidateSchedule reports whether spec is a cron expression Run accepts.
func ValidateSchedule(spec string) error {
	if _, err := cron.ParseStandard(spec); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	return nil
}
