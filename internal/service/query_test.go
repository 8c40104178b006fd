package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/oggyb/courier/internal/domain/message"
	"github.com/oggyb/courier/internal/queue"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seededQuery(t *testing.T) (*Query, *memStore, *message.Group) {
	t.Helper()
	ctx := context.Background()
	store := newMemStore()

	companyID, err := store.CompanyID(ctx, "acme")
	require.NoError(t, err)
	g := &message.Group{UUID: uuid.New(), CompanyID: companyID, Method: message.MethodSMSTest, CreatedTS: t0, RecipientCount: 3}
	_, err = store.CreateGroup(ctx, g)
	require.NoError(t, err)

	cost := 0.024
	for i, st := range []message.Status{message.StatusSend, message.StatusDelivered, message.StatusReject} {
		m := message.NewMessage(g, i, t0.Add(time.Duration(i)*time.Hour))
		m.Status = st
		m.Tags = []string{"reminder"}
		if st != message.StatusReject {
			m.Cost = &cost
		}
		_, err := store.CreateMessage(ctx, m, nil)
		require.NoError(t, err)
	}
	_, err = store.ApplyEventToMessage(ctx, 2, &message.Event{Status: message.StatusDelivered, TS: t0.Add(2 * time.Hour)})
	require.NoError(t, err)

	return NewQuery(store, store), store, g
}

func TestQuerySearch(t *testing.T) {
	q, _, _ := seededQuery(t)
	ctx := context.Background()

	page, err := q.Search(ctx, "acme", message.SearchFilter{Method: message.MethodSMSTest, Tags: []string{"reminder"}, Limit: 2})
	require.NoError(t, err)
	assert.EqualValues(t, 3, page.Total)
	assert.Len(t, page.Items, 2)

	page, err = q.Search(ctx, "nobody", message.SearchFilter{Method: message.MethodSMSTest})
	require.NoError(t, err)
	assert.Zero(t, page.Total)
	assert.NotNil(t, page.Items)
}

func TestQueryMessageDetail(t *testing.T) {
	q, _, _ := seededQuery(t)
	ctx := context.Background()

	d, err := q.Message(ctx, "acme", message.MethodSMSTest, 2)
	require.NoError(t, err)
	assert.Equal(t, message.StatusDelivered, d.Message.Status)
	assert.Len(t, d.Events, 1)

	_, err = q.Message(ctx, "acme", message.MethodEmailTest, 2)
	assert.ErrorIs(t, err, message.ErrNotFound)
}

func TestQueryGroupStatsAndBilling(t *testing.T) {
	q, _, g := seededQuery(t)
	ctx := context.Background()

	sum, err := q.Group(ctx, g.UUID)
	require.NoError(t, err)
	assert.Equal(t, []message.StatusCount{
		{Status: message.StatusReject, Count: 1},
		{Status: message.StatusSend, Count: 1, Cost: 0.024},
		{Status: message.StatusDelivered, Count: 1, Cost: 0.024},
	}, sum.Counts)

	agg, err := q.Stats(ctx, "acme", message.AggregateFilter{Method: message.MethodSMSTest, Start: t0, End: t0.Add(90 * time.Minute)})
	require.NoError(t, err)
	assert.EqualValues(t, 2, agg.Total)

	bill, err := q.Billing(ctx, "acme", message.MethodSMSTest, t0, t0.Add(24*time.Hour))
	require.NoError(t, err)
	assert.InDelta(t, 0.048, bill.Spend, 1e-9)

	bill, err = q.Billing(ctx, "nobody", message.MethodSMSTest, t0, t0.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Zero(t, bill.Spend)
}

func TestMaintenanceSweepsAndPrunes(t *testing.T) {
	h := newHarness(t, 100)
	ctx := context.Background()

	job, err := queue.NewJob(queue.KindReconcile, &ReconcileJob{})
	require.NoError(t, err)
	require.NoError(t, h.jobs.Enqueue(ctx, job))
	reserved, err := h.jobs.Reserve(ctx, 0)
	require.NoError(t, err)
	require.NoError(t, h.jobs.Retry(ctx, reserved, 0))

	old := &message.Group{UUID: uuid.New(), CreatedTS: t0}
	_, err = h.store.CreateGroup(ctx, old)
	require.NoError(t, err)

	m := NewMaintenance(h.jobs, h.store, 24*time.Hour, zerolog.Nop())
	now := time.Now().UTC().Add(time.Second)
	m.now = func() time.Time { return now }
	require.NoError(t, m.ProcessBatch(ctx))

	stats, err := h.jobs.Stats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, stats.Ready)
	assert.EqualValues(t, 0, stats.Delayed)
	assert.Empty(t, h.store.groups)
	assert.Equal(t, now.Add(-24*time.Hour), h.store.pruned)
}
