// Package queue defines the job queue and recipient fan-out ports used by the
// send pipeline. Delivery is at-least-once: every consumer must be safe to
// run again with the same job.
package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"
)

// ErrEmpty is returned by FanOut.Pop when a group has no pending recipients.
var ErrEmpty = errors.New("queue: empty")

// Kind names the handler a job is routed to.
type Kind string

const (
	KindSendGroup   Kind = "send_group"
	KindSendMessage Kind = "send_message"
	KindReconcile   Kind = "reconcile"
)

// Job is the unit of work moved through the job queue.
type Job struct {
	ID         string    `msgpack:"id"`
	Kind       Kind      `msgpack:"kind"`
	Attempt    int       `msgpack:"attempt"`
	EnqueuedAt time.Time `msgpack:"enqueued_at"`
	Payload    []byte    `msgpack:"payload"`
}

// NewJob encodes payload into a fresh job of the given kind.
func NewJob(kind Kind, payload any) (*Job, error) {
	b, err := msgpack.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", kind, err)
	}
	return &Job{
		ID:         uuid.NewString(),
		Kind:       kind,
		EnqueuedAt: time.Now().UTC(),
		Payload:    b,
	}, nil
}

// Decode unpacks the job payload into v.
func (j *Job) Decode(v any) error {
	if err := msgpack.Unmarshal(j.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", j.Kind, err)
	}
	return nil
}

// Stats is a point-in-time view of the job queue.
type Stats struct {
	Ready   int64
	Leased  int64
	Delayed int64
	Dead    int64
}

// JobQueue is a reliable queue: reserved jobs hold a lease until acked,
// retried or dead-lettered, and expired leases are returned by Sweep.
type JobQueue interface {
	Enqueue(ctx context.Context, job *Job) error

	// Reserve waits up to wait for a job. It returns (nil, nil) if none arrived.
	Reserve(ctx context.Context, wait time.Duration) (*Job, error)

	Ack(ctx context.Context, job *Job) error

	// Retry releases the lease and schedules the job again after delay with
	// its attempt counter incremented.
	Retry(ctx context.Context, job *Job, delay time.Duration) error

	DeadLetter(ctx context.Context, job *Job, reason string) error

	// Sweep requeues jobs whose lease expired and promotes due delayed jobs.
	Sweep(ctx context.Context, now time.Time) (requeued, promoted int, err error)

	Stats(ctx context.Context) (Stats, error)
}

// Entry is one recipient on a group's fan-out list. Data is the recipient
// encoded with msgpack; the queue does not interpret it.
type Entry struct {
	Index int                `msgpack:"index"`
	Data  msgpack.RawMessage `msgpack:"data"`

	raw string
}

// NewEntry encodes recipient as the entry payload.
func NewEntry(index int, recipient any) (Entry, error) {
	b, err := msgpack.Marshal(recipient)
	if err != nil {
		return Entry{}, fmt.Errorf("encode recipient %d: %w", index, err)
	}
	return Entry{Index: index, Data: b}, nil
}

// Decode unpacks the recipient payload into v.
func (e *Entry) Decode(v any) error {
	return msgpack.Unmarshal(e.Data, v)
}

// Raw returns the encoded form the entry was popped as.
func (e *Entry) Raw() string { return e.raw }

// WithRaw returns a copy of e that remembers its encoded form. Used by
// FanOut implementations to ack the exact element they popped.
func (e Entry) WithRaw(raw string) *Entry {
	e.raw = raw
	return &e
}

// FanOut holds the recipients of one group between ingestion and the
// orchestrator.
type FanOut interface {
	Push(ctx context.Context, group string, entries []Entry) error

	// Pop moves the next entry to the group's in-flight list. Returns ErrEmpty
	// when nothing is pending.
	Pop(ctx context.Context, group string) (*Entry, error)

	// Ack removes a popped entry for good.
	Ack(ctx context.Context, group string, e *Entry) error

	// Restore moves in-flight entries back to the head of the list, keeping
	// their order. Called before resuming an interrupted group.
	Restore(ctx context.Context, group string) (int, error)

	// Drop deletes the group's pending and in-flight entries.
	Drop(ctx context.Context, group string) error

	Len(ctx context.Context, group string) (int64, error)
}
