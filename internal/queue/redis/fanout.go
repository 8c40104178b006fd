package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oggyb/courier/internal/queue"
	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"
)

// FanOutTTL bounds how long an unprocessed recipient list may linger.
const FanOutTTL = 24 * time.Hour

// FanOut is a redis implementation of queue.FanOut. Each group owns a list
// "recipients:{group}" and an in-flight list "recipients:{group}:inflight".
type FanOut struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewFanOut(rdb *redis.Client) *FanOut {
	return &FanOut{rdb: rdb, ttl: FanOutTTL}
}

func pendingKey(group string) string  { return "recipients:" + group }
func inflightKey(group string) string { return "recipients:" + group + ":inflight" }

// Push appends all entries with a single RPUSH.
func (f *FanOut) Push(ctx context.Context, group string, entries []queue.Entry) error {
	if len(entries) == 0 {
		return nil
	}

	values := make([]interface{}, len(entries))
	for i := range entries {
		b, err := msgpack.Marshal(&entries[i])
		if err != nil {
			return fmt.Errorf("encode entry %d: %w", entries[i].Index, err)
		}
		values[i] = b
	}

	pipe := f.rdb.TxPipeline()
	pipe.RPush(ctx, pendingKey(group), values...)
	pipe.Expire(ctx, pendingKey(group), f.ttl)
	_, err := pipe.Exec(ctx)
	return err
}

// Pop moves the head entry onto the in-flight list.
func (f *FanOut) Pop(ctx context.Context, group string) (*queue.Entry, error) {
	raw, err := f.rdb.LMove(ctx, pendingKey(group), inflightKey(group), "LEFT", "RIGHT").Result()
	if errors.Is(err, redis.Nil) {
		return nil, queue.ErrEmpty
	}
	if err != nil {
		return nil, err
	}
	f.rdb.Expire(ctx, inflightKey(group), f.ttl)

	var e queue.Entry
	if err := msgpack.Unmarshal([]byte(raw), &e); err != nil {
		return nil, fmt.Errorf("decode entry: %w", err)
	}
	return e.WithRaw(raw), nil
}

// Ack removes the popped entry from the in-flight list.
func (f *FanOut) Ack(ctx context.Context, group string, e *queue.Entry) error {
	return f.rdb.LRem(ctx, inflightKey(group), 1, e.Raw()).Err()
}

// Restore pushes in-flight entries back onto the head of the pending list.
func (f *FanOut) Restore(ctx context.Context, group string) (int, error) {
	n := 0
	for {
		err := f.rdb.LMove(ctx, inflightKey(group), pendingKey(group), "RIGHT", "LEFT").Err()
		if errors.Is(err, redis.Nil) {
			return n, nil
		}
		if err != nil {
			return n, err
		}
		n++
	}
}

// Drop deletes both lists.
func (f *FanOut) Drop(ctx context.Context, group string) error {
	return f.rdb.Del(ctx, pendingKey(group), inflightKey(group)).Err()
}

// Len returns the number of pending entries.
func (f *FanOut) Len(ctx context.Context, group string) (int64, error) {
	return f.rdb.LLen(ctx, pendingKey(group)).Result()
}

var _ queue.FanOut = (*FanOut)(nil)
