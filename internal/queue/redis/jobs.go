package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/oggyb/courier/internal/queue"
	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"
)

// reserveScript pops the next job id, leases it until ARGV[1] and returns the
// id with its encoded job. The pop and the lease happen atomically so a crash
// can never strand a job outside both structures.
var reserveScript = redis.NewScript(`
local id = redis.call('LPOP', KEYS[1])
if not id then
	return false
end
redis.call('ZADD', KEYS[2], ARGV[1], id)
local data = redis.call('HGET', KEYS[3], id)
if not data then
	data = ''
end
return {id, data}
`)

// sweepScript moves expired leases and due delayed jobs back to the ready list.
var sweepScript = redis.NewScript(`
local expired = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1])
for _, id in ipairs(expired) do
	redis.call('ZREM', KEYS[1], id)
	redis.call('RPUSH', KEYS[3], id)
end
local due = redis.call('ZRANGEBYSCORE', KEYS[2], '-inf', ARGV[1])
for _, id in ipairs(due) do
	redis.call('ZREM', KEYS[2], id)
	redis.call('RPUSH', KEYS[3], id)
end
return {#expired, #due}
`)

// DeadJob is what gets stored on the dead-letter list.
type DeadJob struct {
	Job      *queue.Job `msgpack:"job"`
	Reason   string     `msgpack:"reason"`
	FailedAt time.Time  `msgpack:"failed_at"`
}

// JobQueue is a redis implementation of queue.JobQueue.
//
// Keys, relative to the name:
//
//	{name}           ready list of job ids
//	{name}:inflight  zset of leased ids scored by lease deadline (ms)
//	{name}:payloads  hash of id to encoded job
//	{name}:delayed   zset of ids waiting for a retry, scored by due time (ms)
//	{name}:dead      list of encoded DeadJob
type JobQueue struct {
	rdb   *redis.Client
	lease time.Duration
	poll  time.Duration

	ready    string
	inflight string
	payloads string
	delayed  string
	dead     string
}

// NewJobQueue returns a job queue stored under name. Reserved jobs are leased
// for lease; Reserve polls every 100ms while waiting.
func NewJobQueue(rdb *redis.Client, name string, lease time.Duration) *JobQueue {
	return &JobQueue{
		rdb:      rdb,
		lease:    lease,
		poll:     100 * time.Millisecond,
		ready:    name,
		inflight: name + ":inflight",
		payloads: name + ":payloads",
		delayed:  name + ":delayed",
		dead:     name + ":dead",
	}
}

// Enqueue stores the job and appends it to the ready list.
func (q *JobQueue) Enqueue(ctx context.Context, job *queue.Job) error {
	data, err := msgpack.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}

	pipe := q.rdb.TxPipeline()
	pipe.HSet(ctx, q.payloads, job.ID, data)
	pipe.RPush(ctx, q.ready, job.ID)
	_, err = pipe.Exec(ctx)
	return err
}

// Reserve leases the next ready job, polling until wait elapses.
func (q *JobQueue) Reserve(ctx context.Context, wait time.Duration) (*queue.Job, error) {
	deadline := time.Now().Add(wait)

	for {
		job, err := q.tryReserve(ctx)
		if err != nil || job != nil {
			return job, err
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, nil
		}

		timer := time.NewTimer(min(q.poll, remaining))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

func (q *JobQueue) tryReserve(ctx context.Context) (*queue.Job, error) {
	until := time.Now().Add(q.lease).UnixMilli()

	res, err := reserveScript.Run(ctx, q.rdb, []string{q.ready, q.inflight, q.payloads}, until).Slice()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(res) != 2 {
		return nil, fmt.Errorf("reserve: unexpected reply %v", res)
	}

	id, _ := res[0].(string)
	data, _ := res[1].(string)
	if data == "" {
		// payload already gone (acked by a previous holder), drop the lease
		q.rdb.ZRem(ctx, q.inflight, id)
		return q.tryReserve(ctx)
	}

	var job queue.Job
	if err := msgpack.Unmarshal([]byte(data), &job); err != nil {
		return nil, fmt.Errorf("decode job %s: %w", id, err)
	}
	return &job, nil
}

// Ack drops the lease and the payload.
func (q *JobQueue) Ack(ctx context.Context, job *queue.Job) error {
	pipe := q.rdb.TxPipeline()
	pipe.ZRem(ctx, q.inflight, job.ID)
	pipe.HDel(ctx, q.payloads, job.ID)
	_, err := pipe.Exec(ctx)
	return err
}

// Retry reschedules the job with its attempt counter bumped.
func (q *JobQueue) Retry(ctx context.Context, job *queue.Job, delay time.Duration) error {
	job.Attempt++
	data, err := msgpack.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}

	pipe := q.rdb.TxPipeline()
	pipe.HSet(ctx, q.payloads, job.ID, data)
	pipe.ZRem(ctx, q.inflight, job.ID)
	pipe.ZAdd(ctx, q.delayed, redis.Z{Score: float64(time.Now().Add(delay).UnixMilli()), Member: job.ID})
	_, err = pipe.Exec(ctx)
	return err
}

// DeadLetter parks the job on the dead list with the failure reason.
func (q *JobQueue) DeadLetter(ctx context.Context, job *queue.Job, reason string) error {
	data, err := msgpack.Marshal(&DeadJob{Job: job, Reason: reason, FailedAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("encode dead job: %w", err)
	}

	pipe := q.rdb.TxPipeline()
	pipe.ZRem(ctx, q.inflight, job.ID)
	pipe.HDel(ctx, q.payloads, job.ID)
	pipe.RPush(ctx, q.dead, data)
	_, err = pipe.Exec(ctx)
	return err
}

// Sweep requeues expired leases and promotes due retries.
func (q *JobQueue) Sweep(ctx context.Context, now time.Time) (int, int, error) {
	res, err := sweepScript.Run(ctx, q.rdb,
		[]string{q.inflight, q.delayed, q.ready},
		strconv.FormatInt(now.UnixMilli(), 10),
	).Int64Slice()
	if err != nil {
		return 0, 0, err
	}
	if len(res) != 2 {
		return 0, 0, fmt.Errorf("sweep: unexpected reply %v", res)
	}
	return int(res[0]), int(res[1]), nil
}

// Stats reports the size of every structure.
func (q *JobQueue) Stats(ctx context.Context) (queue.Stats, error) {
	pipe := q.rdb.Pipeline()
	ready := pipe.LLen(ctx, q.ready)
	leased := pipe.ZCard(ctx, q.inflight)
	delayed := pipe.ZCard(ctx, q.delayed)
	dead := pipe.LLen(ctx, q.dead)
	if _, err := pipe.Exec(ctx); err != nil {
		return queue.Stats{}, err
	}
	return queue.Stats{
		Ready:   ready.Val(),
		Leased:  leased.Val(),
		Delayed: delayed.Val(),
		Dead:    dead.Val(),
	}, nil
}

// DeadJobs returns up to limit dead-lettered jobs, oldest first.
func (q *JobQueue) DeadJobs(ctx context.Context, limit int64) ([]DeadJob, error) {
	raw, err := q.rdb.LRange(ctx, q.dead, 0, limit-1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]DeadJob, 0, len(raw))
	for _, r := range raw {
		var d DeadJob
		if err := msgpack.Unmarshal([]byte(r), &d); err != nil {
			return nil, fmt.Errorf("decode dead job: %w", err)
		}
		out = append(out, d)
	}
	return out, nil
}

var _ queue.JobQueue = (*JobQueue)(nil)
