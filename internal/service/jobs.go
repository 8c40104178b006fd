package service

import (
	"context"
	"fmt"

	"github.com/oggyb/courier/internal/ingest"
	"github.com/oggyb/courier/internal/queue"
	"github.com/oggyb/courier/internal/webhook"
	"github.com/oggyb/courier/internal/worker"
)

// GroupJob starts the orchestrator for one accepted group. The recipients
// themselves wait on the fan-out list.
type GroupJob struct {
	Group ingest.Group `msgpack:"group"`
	Count int          `msgpack:"count"`
}

// DispatchJob sends to one recipient of a recorded group.
type DispatchJob struct {
	GroupID   uint             `msgpack:"group_id"`
	CompanyID uint             `msgpack:"company_id"`
	Group     ingest.Group     `msgpack:"group"`
	Index     int              `msgpack:"index"`
	Recipient ingest.Recipient `msgpack:"recipient"`
}

// ReconcileJob carries a batch of normalized webhook events.
type ReconcileJob struct {
	Events []webhook.Event `msgpack:"events"`
}

// Handlers routes every job kind to the pipeline or the reconciler.
// Payloads that cannot be decoded are dead-lettered straight away.
func Handlers(p *Pipeline, r *Reconciler) worker.Handlers {
	return worker.Handlers{
		queue.KindSendGroup: func(ctx context.Context, job *queue.Job) error {
			var j GroupJob
			if err := job.Decode(&j); err != nil {
				return worker.Permanent(err)
			}
			_, err := p.RunGroup(ctx, &j)
			return err
		},
		queue.KindSendMessage: func(ctx context.Context, job *queue.Job) error {
			var j DispatchJob
			if err := job.Decode(&j); err != nil {
				return worker.Permanent(err)
			}
			return p.Dispatch(ctx, &j)
		},
		queue.KindReconcile: func(ctx context.Context, job *queue.Job) error {
			var j ReconcileJob
			if err := job.Decode(&j); err != nil {
				return worker.Permanent(err)
			}
			return r.ApplyBatch(ctx, j.Events)
		},
	}
}

// EventQueue hands webhook events to the worker pool so the callback can be
// acknowledged without touching the store.
type EventQueue struct {
	jobs queue.JobQueue
}

func NewEventQueue(jobs queue.JobQueue) *EventQueue {
	return &EventQueue{jobs: jobs}
}

// Enqueue queues events as one reconcile job. An empty batch is a no-op.
func (q *EventQueue) Enqueue(ctx context.Context, events []*webhook.Event) error {
	if len(events) == 0 {
		return nil
	}
	batch := make([]webhook.Event, len(events))
	for i, e := range events {
		batch[i] = *e
	}
	job, err := queue.NewJob(queue.KindReconcile, &ReconcileJob{Events: batch})
	if err != nil {
		return err
	}
	if err := q.jobs.Enqueue(ctx, job); err != nil {
		return fmt.Errorf("enqueue reconcile job: %w", err)
	}
	return nil
}
