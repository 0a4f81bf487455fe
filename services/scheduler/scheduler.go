package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/jinzhu/now"
	"github.com/robfig/cron/v3"
)

// Reminders sends the reminders that are due.
type Reminders interface {
	RemindDue(ctx context.Context) (int, error)
}

// Codes drops one-time codes past their expiry.
type Codes interface {
	PurgeExpired(ctx context.Context, cutoff time.Time) (int64, error)
}

// Batches replays mission-order batches that did not fully persist.
type Batches interface {
	Reconcile(ctx context.Context) (int, error)
}

// Jobs lists the periodic maintenance targets. Nil members are skipped.
type Jobs struct {
	Reminders Reminders
	Codes     Codes
	Batches   Batches
}

// logScheduler logs scheduler events under a common prefix
func logScheduler(job string) *slog.Logger {
	return slog.Default().With("component", "scheduler", "job", job)
}

// RunReminders is the hourly reminder sweep.
func RunReminders(ctx context.Context, r Reminders) {
	sent, err := r.RemindDue(ctx)
	if err != nil {
		logScheduler("reminders").Error("reminder sweep failed", "error", err)
		return
	}
	if sent > 0 {
		logScheduler("reminders").Info("reminders sent", "count", sent)
	}
}

// RunPurge keeps codes for a day after expiry so recent attempts can still
// be told apart from unknown codes.
func RunPurge(ctx context.Context, c Codes, at time.Time) {
	cutoff := now.With(at).BeginningOfDay().AddDate(0, 0, -1)
	n, err := c.PurgeExpired(ctx, cutoff)
	if err != nil {
		logScheduler("otp-purge").Error("purge failed", "error", err)
		return
	}
	if n > 0 {
		logScheduler("otp-purge").Info("expired codes removed", "count", n, "cutoff", cutoff)
	}
}

func RunReconcile(ctx context.Context, b Batches) {
	n, err := b.Reconcile(ctx)
	if err != nil {
		logScheduler("mission-orders").Error("reconcile failed", "error", err)
		return
	}
	if n > 0 {
		logScheduler("mission-orders").Info("batches completed", "count", n)
	}
}

// Start registers the jobs and starts the cron runner. Stop the returned
// cron on shutdown.
func Start(ctx context.Context, jobs Jobs, loc *time.Location) (*cron.Cron, error) {
	if loc == nil {
		loc = time.Local
	}
	c := cron.New(cron.WithLocation(loc), cron.WithChain(cron.Recover(cron.DefaultLogger), cron.SkipIfStillRunning(cron.DefaultLogger)))

	if jobs.Reminders != nil {
		if _, err := c.AddFunc("@every 1h", func() { RunReminders(ctx, jobs.Reminders) }); err != nil {
			return nil, err
		}
	}
	if jobs.Codes != nil {
		if _, err := c.AddFunc("@every 15m", func() { RunPurge(ctx, jobs.Codes, time.Now()) }); err != nil {
			return nil, err
		}
	}
	if jobs.Batches != nil {
		if _, err := c.AddFunc("@every 5m", func() { RunReconcile(ctx, jobs.Batches) }); err != nil {
			return nil, err
		}
	}

	c.Start()
	logScheduler("all").Info("scheduler started", "jobs", len(c.Entries()))
	return c, nil
}
