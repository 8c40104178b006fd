package service

import (
	"context"
	"errors"
	"testing"

	"github.com/oggyb/courier/internal/domain/message"
	"github.com/oggyb/courier/internal/provider"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSubaccounts struct {
	created []string
	deleted []string
	sent    map[string]int
	err     error
}

func (f *fakeSubaccounts) CreateSubaccount(_ context.Context, id, _ string) (*provider.Subaccount, error) {
	if f.err != nil {
		return nil, f.err
	}
	if n, ok := f.sent[id]; ok {
		return &provider.Subaccount{SentTotal: n}, nil
	}
	f.created = append(f.created, id)
	return &provider.Subaccount{Created: true}, nil
}

func (f *fakeSubaccounts) DeleteSubaccount(_ context.Context, id string) error {
	if f.err != nil {
		return f.err
	}
	f.deleted = append(f.deleted, id)
	return nil
}

func TestCreateSubaccount(t *testing.T) {
	ctx := context.Background()
	sub := &fakeSubaccounts{sent: map[string]int{"quiet": 12}}
	a := NewAccounts(newMemStore(), sub, zerolog.Nop())

	res, err := a.CreateSubaccount(ctx, message.MethodEmailMandrill, "acme", "Acme Ltd")
	require.NoError(t, err)
	assert.Equal(t, SubaccountCreated, res.Outcome)

	res, err = a.CreateSubaccount(ctx, message.MethodEmailMandrill, "quiet", "")
	require.NoError(t, err)
	assert.Equal(t, SubaccountReused, res.Outcome)
	assert.Equal(t, 12, res.SentTotal)

	res, err = a.CreateSubaccount(ctx, message.MethodSMSTest, "acme", "")
	require.NoError(t, err)
	assert.Equal(t, SubaccountNotRequired, res.Outcome)

	assert.Equal(t, []string{"acme"}, sub.created)
}

func TestCreateSubaccountWithoutProvider(t *testing.T) {
	a := NewAccounts(newMemStore(), nil, zerolog.Nop())

	_, err := a.CreateSubaccount(context.Background(), message.MethodEmailMandrill, "acme", "")
	assert.ErrorIs(t, err, ErrSubaccountsUnavailable)

	res, err := a.CreateSubaccount(context.Background(), message.MethodEmailTest, "acme", "")
	require.NoError(t, err)
	assert.Equal(t, SubaccountNotRequired, res.Outcome)
}

func TestDeleteSubaccountPurgesByPrefix(t *testing.T) {
	h := newHarness(t, 100)
	ctx := context.Background()

	acme := emailRequest(recipients(2)...)
	acme.CompanyCode = "acme_1"
	other := emailRequest(recipients(1)...)
	other.CompanyCode = "other"
	_, err := h.pipeline.Submit(ctx, acme)
	require.NoError(t, err)
	_, err = h.pipeline.Submit(ctx, other)
	require.NoError(t, err)
	h.drain(t)

	sub := &fakeSubaccounts{}
	a := NewAccounts(h.store, sub, zerolog.Nop())

	purge, err := a.DeleteSubaccount(ctx, message.MethodEmailMandrill, "acme")
	require.NoError(t, err)
	assert.Equal(t, &message.CompanyPurge{Companies: 1, Groups: 1, Messages: 2}, purge)
	assert.Equal(t, []string{"acme"}, sub.deleted)

	_, err = h.store.FindCompany(ctx, "acme_1")
	assert.ErrorIs(t, err, message.ErrNotFound)
	g := h.group(t, other.UUID)
	assert.Len(t, h.store.messagesOf(g.ID), 1)
}

func TestDeleteSubaccountKeepsPurgeWhenProviderFails(t *testing.T) {
	store := newMemStore()
	_, err := store.CompanyID(context.Background(), "acme")
	require.NoError(t, err)

	sub := &fakeSubaccounts{err: errors.New("mandrill down")}
	a := NewAccounts(store, sub, zerolog.Nop())

	purge, err := a.DeleteSubaccount(context.Background(), message.MethodEmailMandrill, "acme")
	assert.EqualError(t, err, "mandrill down")
	require.NotNil(t, purge)
	assert.EqualValues(t, 1, purge.Companies)
}

func TestDeleteSubaccountForOtherMethodsSkipsProvider(t *testing.T) {
	store := newMemStore()
	sub := &fakeSubaccounts{}
	a := NewAccounts(store, sub, zerolog.Nop())

	purge, err := a.DeleteSubaccount(context.Background(), message.MethodSMSTest, "acme")
	require.NoError(t, err)
	assert.Zero(t, purge.Companies)
	assert.Empty(t, sub.deleted)

	_, err = a.DeleteSubaccount(context.Background(), message.MethodSMSTest, "")
	assert.Error(t, err)
}

func TestDeleteSubaccountWithoutProviderTouchesNothing(t *testing.T) {
	store := newMemStore()
	_, err := store.CompanyID(context.Background(), "acme")
	require.NoError(t, err)
	a := NewAccounts(store, nil, zerolog.Nop())

	_, err = a.DeleteSubaccount(context.Background(), message.MethodEmailMandrill, "acme")
	assert.ErrorIs(t, err, ErrSubaccountsUnavailable)

	_, err = store.FindCompany(context.Background(), "acme")
	assert.NoError(t, err)
}
