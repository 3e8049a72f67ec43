package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/hibiken/asynq"

	"github.com/depotline/depot/jobs"
)

// Enqueuer submits prepared tasks.
type Enqueuer interface {
	EnqueueByType(ctx context.Context, typ string) (*asynq.TaskInfo, error)
}

// Inspector reads queue state.
type Inspector interface {
	GetQueueInfo(queue string) (*asynq.QueueInfo, error)
	ListScheduledTasks(queue string, opts ...asynq.ListOption) ([]*asynq.TaskInfo, error)
}

// JobsCLI wraps manual management helpers for the background jobs.
type JobsCLI struct {
	client    Enqueuer
	inspector Inspector
	out       io.Writer
}

// NewJobsCLI builds the helpers on top of an enqueuer and an inspector.
func NewJobsCLI(client Enqueuer, inspector Inspector, out io.Writer) *JobsCLI {
	return &JobsCLI{client: client, inspector: inspector, out: out}
}

// Trigger enqueues a supported job by task type with its default payload.
func (c *JobsCLI) Trigger(ctx context.Context, typ string) error {
	if c == nil || c.client == nil {
		return errors.New("jobs cli: client not configured")
	}
	info, err := c.client.EnqueueByType(ctx, typ)
	if err != nil {
		if errors.Is(err, jobs.ErrUnknownTask) {
			return fmt.Errorf("jobs cli: unsupported job %q (known: %v)", typ, jobs.TaskTypes)
		}
		return err
	}
	_, err = fmt.Fprintf(c.out, "enqueued %s id=%s queue=%s\n", info.Type, info.ID, info.Queue)
	return err
}

// QueueStats summarises the current queue state.
type QueueStats struct {
	Queue     string
	Pending   int
	Active    int
	Scheduled int
	Retry     int
	Archived  int
	Paused    bool
}

// InspectQueue reports the metrics of the default queue.
func (c *JobsCLI) InspectQueue(ctx context.Context) (QueueStats, error) {
	if c == nil || c.inspector == nil {
		return QueueStats{}, errors.New("jobs cli: inspector not configured")
	}
	info, err := c.inspector.GetQueueInfo(jobs.QueueDefault)
	if err != nil {
		return QueueStats{}, err
	}
	stats := QueueStats{Queue: jobs.QueueDefault}
	if info != nil {
		stats.Pending = info.Pending
		stats.Active = info.Active
		stats.Scheduled = info.Scheduled
		stats.Retry = info.Retry
		stats.Archived = info.Archived
		stats.Paused = info.Paused
	}
	return stats, nil
}

// PrintStats writes the queue stats as a table.
func (c *JobsCLI) PrintStats(ctx context.Context) error {
	stats, err := c.InspectQueue(ctx)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "QUEUE\tPENDING\tACTIVE\tSCHEDULED\tRETRY\tARCHIVED\tPAUSED")
	fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%d\t%t\n",
		stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry, stats.Archived, stats.Paused)
	return tw.Flush()
}

// ListScheduled prints up to size scheduled tasks.
func (c *JobsCLI) ListScheduled(ctx context.Context, size int) error {
	if c == nil || c.inspector == nil {
		return errors.New("jobs cli: inspector not configured")
	}
	if size <= 0 {
		size = 10
	}
	tasks, err := c.inspector.ListScheduledTasks(jobs.QueueDefault, asynq.PageSize(size), asynq.Page(1))
	if err != nil {
		return err
	}
	if len(tasks) == 0 {
		_, err := fmt.Fprintln(c.out, "no scheduled tasks")
		return err
	}
	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTYPE\tNEXT RUN\tRETRIED")
	for _, t := range tasks {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", t.ID, t.Type, t.NextProcessAt.UTC().Format(time.RFC3339), t.Retried)
	}
	return tw.Flush()
}
