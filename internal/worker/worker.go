// Package worker runs queued jobs on a fixed pool of goroutines.
package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/oggyb/courier/internal/metrics"
	"github.com/oggyb/courier/internal/queue"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Handler processes one job. Returning nil acks it; any other error retries
// it unless wrapped with Permanent.
type Handler func(ctx context.Context, job *queue.Job) error

// Handlers routes jobs by kind.
type Handlers map[queue.Kind]Handler

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying. The job is dead-lettered.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Options tunes the pool.
type Options struct {
	Concurrency int
	JobTimeout  time.Duration
	MaxAttempts int
	RetryBase   time.Duration
	PollTimeout time.Duration
}

// Pool reserves jobs from a queue and runs their handlers.
type Pool struct {
	queue    queue.JobQueue
	handlers Handlers
	opts     Options
	log      zerolog.Logger
}

func NewPool(q queue.JobQueue, handlers Handlers, opts Options, log zerolog.Logger) *Pool {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if opts.JobTimeout <= 0 {
		opts.JobTimeout = 2 * time.Minute
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 5
	}
	if opts.RetryBase <= 0 {
		opts.RetryBase = 5 * time.Second
	}
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = 2 * time.Second
	}
	return &Pool{queue: q, handlers: handlers, opts: opts, log: log}
}

// Run blocks until ctx is cancelled. Jobs in progress when ctx ends are
// left leased and come back through the sweeper.
func (p *Pool) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < p.opts.Concurrency; i++ {
		id := i + 1
		g.Go(func() error {
			p.loop(ctx, id)
			return nil
		})
	}
	p.log.Info().Int("concurrency", p.opts.Concurrency).Msg("worker pool started")
	err := g.Wait()
	p.log.Info().Msg("worker pool stopped")
	return err
}

func (p *Pool) loop(ctx context.Context, id int) {
	log := p.log.With().Int("worker", id).Logger()

	for ctx.Err() == nil {
		job, err := p.queue.Reserve(ctx, p.opts.PollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error().Err(err).Msg("reserve failed")
			sleep(ctx, time.Second)
			continue
		}
		if job == nil {
			continue
		}
		p.Process(ctx, job)
	}
}

// Process runs one reserved job and settles it with the queue.
func (p *Pool) Process(ctx context.Context, job *queue.Job) {
	log := p.log.With().Str("job", job.ID).Str("kind", string(job.Kind)).Int("attempt", job.Attempt).Logger()
	start := time.Now()

	err := p.run(ctx, job)
	metrics.JobDuration.WithLabelValues(string(job.Kind)).Observe(time.Since(start).Seconds())

	// Interrupted by shutdown: not an attempt. The lease expires and the
	// sweeper puts the job back with its attempt count unchanged.
	if err != nil && ctx.Err() != nil {
		log.Warn().Err(err).Msg("job interrupted, leaving leased")
		metrics.JobsProcessed.WithLabelValues(string(job.Kind), "interrupted").Inc()
		return
	}

	// settle even if the pool is shutting down
	settleCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if err == nil {
		if aerr := p.queue.Ack(settleCtx, job); aerr != nil {
			log.Error().Err(aerr).Msg("ack failed")
		}
		metrics.JobsProcessed.WithLabelValues(string(job.Kind), "ok").Inc()
		log.Debug().Dur("took", time.Since(start)).Msg("job done")
		return
	}

	var perm *permanentError
	if errors.As(err, &perm) || job.Attempt+1 >= p.opts.MaxAttempts {
		log.Error().Err(err).Msg("job failed, dead-lettering")
		if derr := p.queue.DeadLetter(settleCtx, job, err.Error()); derr != nil {
			log.Error().Err(derr).Msg("dead-letter failed")
		}
		metrics.JobsProcessed.WithLabelValues(string(job.Kind), "dead").Inc()
		return
	}

	delay := p.retryDelay(job.Attempt)
	log.Warn().Err(err).Dur("retry_in", delay).Msg("job failed, retrying")
	if rerr := p.queue.Retry(settleCtx, job, delay); rerr != nil {
		log.Error().Err(rerr).Msg("retry failed")
	}
	metrics.JobsProcessed.WithLabelValues(string(job.Kind), "retry").Inc()
}

func (p *Pool) run(ctx context.Context, job *queue.Job) (err error) {
	h, ok := p.handlers[job.Kind]
	if !ok {
		return Permanent(fmt.Errorf("no handler for job kind %q", job.Kind))
	}

	ctx, cancel := context.WithTimeout(ctx, p.opts.JobTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			p.log.Error().Interface("panic", r).Str("stack", string(debug.Stack())).Msg("job panicked")
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return h(ctx, job)
}

// retryDelay doubles RetryBase per attempt, capped at one hour.
func (p *Pool) retryDelay(attempt int) time.Duration {
	d := p.opts.RetryBase << min(attempt, 16)
	if d <= 0 || d > time.Hour {
		return time.Hour
	}
	return d
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
