package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"nebulaone/pkg/queue"
)

const enqueueTimeout = 2 * time.Second

// enqueueSummary schedules a background summary for the thread. Failures
// are logged; the summary can still be computed on demand.
func (a *App) enqueueSummary(threadID string) {
	if a.jobs == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), enqueueTimeout)
	defer cancel()
	job, err := a.jobs.Enqueue(ctx, queue.KindSummarize, threadID)
	if err != nil {
		slog.Warn("enqueue summary failed", "thread_id", threadID, "err", err)
		return
	}
	slog.Debug("summary job queued", "job_id", job.ID, "thread_id", threadID)
}

// GetJob returns the status of a background job.
func (a *App) GetJob(ctx context.Context, id string) (queue.Job, error) {
	if a.jobs == nil {
		return queue.Job{}, ErrJobsUnavailable
	}
	job, ok, err := a.jobs.GetJob(ctx, id)
	if err != nil {
		return queue.Job{}, fmt.Errorf("get job: %w", err)
	}
	if !ok {
		return queue.Job{}, ErrNotFound
	}
	return job, nil
}

// RunJob is the queue worker handler.
func (a *App) RunJob(_ context.Context, job queue.Job) error {
	switch job.Kind {
	case queue.KindSummarize:
		if _, err := a.SummarizeEmailThread(job.Ref); err != nil {
			return fmt.Errorf("summarize thread %s: %w", job.Ref, err)
		}
		return nil
	default:
		return fmt.Errorf("unknown job kind %q", job.Kind)
	}
}
