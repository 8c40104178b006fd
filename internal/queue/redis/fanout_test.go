package redis

import (
	"context"
	"testing"

	"github.com/oggyb/courier/internal/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recipient struct {
	Address string `msgpack:"address"`
}

func pushRecipients(t *testing.T, f *FanOut, group string, addresses ...string) {
	t.Helper()
	entries := make([]queue.Entry, len(addresses))
	for i, a := range addresses {
		e, err := queue.NewEntry(i, recipient{Address: a})
		require.NoError(t, err)
		entries[i] = e
	}
	require.NoError(t, f.Push(context.Background(), group, entries))
}

func TestFanOutPopAckInOrder(t *testing.T) {
	rdb, mr := newTestRedis(t)
	f := NewFanOut(rdb)
	ctx := context.Background()

	pushRecipients(t, f, "g1", "a@x.com", "b@x.com")
	assert.Equal(t, FanOutTTL, mr.TTL("recipients:g1"))

	for i, want := range []string{"a@x.com", "b@x.com"} {
		e, err := f.Pop(ctx, "g1")
		require.NoError(t, err)
		assert.Equal(t, i, e.Index)

		var r recipient
		require.NoError(t, e.Decode(&r))
		assert.Equal(t, want, r.Address)
		require.NoError(t, f.Ack(ctx, "g1", e))
	}

	_, err := f.Pop(ctx, "g1")
	assert.ErrorIs(t, err, queue.ErrEmpty)
	assert.False(t, mr.Exists("recipients:g1:inflight"))
}

func TestFanOutRestoreKeepsOrder(t *testing.T) {
	rdb, _ := newTestRedis(t)
	f := NewFanOut(rdb)
	ctx := context.Background()

	pushRecipients(t, f, "g2", "a", "b", "c")

	// two pops without ack simulate a crash mid-group
	_, err := f.Pop(ctx, "g2")
	require.NoError(t, err)
	_, err = f.Pop(ctx, "g2")
	require.NoError(t, err)

	n, err := f.Restore(ctx, "g2")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	length, err := f.Len(ctx, "g2")
	require.NoError(t, err)
	assert.EqualValues(t, 3, length)

	for i := 0; i < 3; i++ {
		e, err := f.Pop(ctx, "g2")
		require.NoError(t, err)
		assert.Equal(t, i, e.Index)
	}
}

func TestFanOutDrop(t *testing.T) {
	rdb, mr := newTestRedis(t)
	f := NewFanOut(rdb)
	ctx := context.Background()

	pushRecipients(t, f, "g3", "a", "b")
	_, err := f.Pop(ctx, "g3")
	require.NoError(t, err)

	require.NoError(t, f.Drop(ctx, "g3"))
	assert.False(t, mr.Exists("recipients:g3"))
	assert.False(t, mr.Exists("recipients:g3:inflight"))
}
