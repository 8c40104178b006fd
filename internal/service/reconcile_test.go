package service

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	cacheredis "github.com/oggyb/courier/internal/cache/redis"
	"github.com/oggyb/courier/internal/domain/message"
	"github.com/oggyb/courier/internal/webhook"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newReconciler(t *testing.T) (*Reconciler, *memStore, *message.Message) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	store := newMemStore()
	m := &message.Message{
		GroupID:    1,
		Method:     message.MethodEmailMandrill,
		ExternalID: "abc123",
		Status:     message.StatusSend,
		SendTS:     t0,
		UpdateTS:   t0,
	}
	_, err := store.CreateMessage(context.Background(), m, []message.Link{{Token: "tok", URL: "https://acme.com/x"}})
	require.NoError(t, err)

	r := NewReconciler(store, cacheredis.Wrap(rdb), zerolog.Nop())
	r.now = func() time.Time { return t0.Add(time.Hour) }
	return r, store, store.messages[0]
}

func event(status message.Status, ts time.Time) *webhook.Event {
	return &webhook.Event{
		Method:     message.MethodEmailMandrill,
		ExternalID: "abc123",
		Status:     status,
		TS:         ts,
		Extra:      map[string]any{"user_agent": "test"},
	}
}

func TestReconcileOutOfOrderEvents(t *testing.T) {
	r, store, m := newReconciler(t)
	ctx := context.Background()
	t1, t2 := t0.Add(time.Minute), t0.Add(2*time.Minute)

	outcome, err := r.Apply(ctx, event(message.StatusOpen, t2))
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, outcome)

	outcome, err = r.Apply(ctx, event(message.StatusDeferral, t1))
	require.NoError(t, err)
	assert.Equal(t, OutcomeStale, outcome)

	assert.Equal(t, message.StatusOpen, m.Status)
	assert.Equal(t, t2, m.UpdateTS)
	assert.Len(t, store.eventsOf(m.ID), 2)
}

func TestReconcileEqualTimestampDoesNotChangeStatus(t *testing.T) {
	r, _, m := newReconciler(t)
	outcome, err := r.Apply(context.Background(), event(message.StatusHardBounce, t0))
	require.NoError(t, err)
	assert.Equal(t, OutcomeStale, outcome)
	assert.Equal(t, message.StatusSend, m.Status)
}

func TestReconcileSkipsDuplicateCallbacks(t *testing.T) {
	r, store, m := newReconciler(t)
	ctx := context.Background()
	ev := event(message.StatusOpen, t0.Add(time.Minute))

	_, err := r.Apply(ctx, ev)
	require.NoError(t, err)
	outcome, err := r.Apply(ctx, ev)
	require.NoError(t, err)

	assert.Equal(t, OutcomeDuplicate, outcome)
	assert.Len(t, store.eventsOf(m.ID), 1)
}

func TestReconcileUnknownMessage(t *testing.T) {
	r, _, _ := newReconciler(t)
	ev := event(message.StatusOpen, t0.Add(time.Minute))
	ev.ExternalID = "nope"

	outcome, err := r.Apply(context.Background(), ev)
	var unknown *UnknownMessageError
	require.True(t, errors.As(err, &unknown))
	assert.Equal(t, OutcomeUnknown, outcome)
	assert.Equal(t, "nope", unknown.ExternalID)

	// dropped, not retried
	assert.NoError(t, r.ApplyBatch(context.Background(), []webhook.Event{*ev}))
}

func TestReconcileBatchIsOrderIndependent(t *testing.T) {
	statuses := []message.Status{message.StatusDeferral, message.StatusSoftBounce, message.StatusOpen, message.StatusClick}
	orders := [][]int{{0, 1, 2, 3}, {3, 2, 1, 0}, {2, 0, 3, 1}, {1, 3, 0, 2}}

	for _, order := range orders {
		r, store, m := newReconciler(t)
		batch := make([]webhook.Event, 0, len(order))
		for _, i := range order {
			batch = append(batch, *event(statuses[i], t0.Add(time.Duration(i+1)*time.Minute)))
		}

		require.NoError(t, r.ApplyBatch(context.Background(), batch))
		assert.Equal(t, message.StatusClick, m.Status, "order %v", order)
		assert.Equal(t, t0.Add(4*time.Minute), m.UpdateTS)
		assert.Len(t, store.eventsOf(m.ID), 4)
	}
}

func TestClickRecordsOncePerAddress(t *testing.T) {
	r, store, m := newReconciler(t)
	ctx := context.Background()

	target, err := r.Click(ctx, "tok", "10.0.0.1", "curl/8", "")
	require.NoError(t, err)
	assert.Equal(t, "https://acme.com/x", target)

	_, err = r.Click(ctx, "tok", "10.0.0.1", "curl/8", "")
	require.NoError(t, err)
	_, err = r.Click(ctx, "tok", "10.0.0.2", "curl/8", "")
	require.NoError(t, err)

	events := store.eventsOf(m.ID)
	require.Len(t, events, 2)
	assert.Equal(t, message.StatusClick, events[0].Status)
	assert.Equal(t, "curl/8", events[0].Extra["user_agent"])
	assert.Equal(t, "https://acme.com/x", events[0].Extra["target"])
	assert.Equal(t, message.StatusClick, m.Status)
}

func TestClickUnknownToken(t *testing.T) {
	r, _, _ := newReconciler(t)
	ctx := context.Background()

	fallback := base64.URLEncoding.EncodeToString([]byte("https://acme.com/fallback"))
	target, err := r.Click(ctx, "missing", "10.0.0.1", "", fallback)
	require.NoError(t, err)
	assert.Equal(t, "https://acme.com/fallback", target)

	_, err = r.Click(ctx, "missing", "10.0.0.1", "", "")
	assert.ErrorIs(t, err, message.ErrNotFound)
}
