package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/oggyb/courier/internal/domain/message"
)

// EventLimit caps the events returned with a message.
const EventLimit = 200

// Page is one page of a message listing.
type Page struct {
	Items []*message.Message
	Total int64
}

// MessageDetail is a message with its most recent events.
type MessageDetail struct {
	Message *message.Message
	Events  []*message.Event
}

// GroupSummary is a group with its messages bucketed by status.
type GroupSummary struct {
	Group  *message.Group
	Counts []message.StatusCount
}

// Billing is the spend of a company on one method over a period.
type Billing struct {
	Start time.Time
	End   time.Time
	Spend float64
}

// Query serves the read side. Every lookup is scoped by company code.
type Query struct {
	groups  message.GroupRepository
	queries message.QueryRepository
}

func NewQuery(groups message.GroupRepository, queries message.QueryRepository) *Query {
	return &Query{groups: groups, queries: queries}
}

// Search lists a company's messages. An unknown company has no messages.
func (q *Query) Search(ctx context.Context, company string, f message.SearchFilter) (*Page, error) {
	c, err := q.groups.FindCompany(ctx, company)
	if errors.Is(err, message.ErrNotFound) {
		return &Page{Items: []*message.Message{}}, nil
	}
	if err != nil {
		return nil, err
	}

	f.CompanyID = c.ID
	items, total, err := q.queries.Search(ctx, f)
	if err != nil {
		return nil, err
	}
	return &Page{Items: items, Total: total}, nil
}

// Message returns one message and its events.
func (q *Query) Message(ctx context.Context, company string, method message.SendMethod, id uint) (*MessageDetail, error) {
	c, err := q.groups.FindCompany(ctx, company)
	if err != nil {
		return nil, err
	}
	m, err := q.queries.MessageByID(ctx, c.ID, method, id)
	if err != nil {
		return nil, err
	}
	events, err := q.queries.Events(ctx, m.ID, EventLimit)
	if err != nil {
		return nil, err
	}
	return &MessageDetail{Message: m, Events: events}, nil
}

// Group summarizes a group by uuid.
func (q *Query) Group(ctx context.Context, id uuid.UUID) (*GroupSummary, error) {
	g, err := q.groups.GroupByUUID(ctx, id)
	if err != nil {
		return nil, err
	}
	counts, err := q.queries.GroupStatusCounts(ctx, g.ID)
	if err != nil {
		return nil, err
	}
	return &GroupSummary{Group: g, Counts: counts}, nil
}

// Stats aggregates a company's messages. An unknown company aggregates to zero.
func (q *Query) Stats(ctx context.Context, company string, f message.AggregateFilter) (*message.Aggregate, error) {
	c, err := q.groups.FindCompany(ctx, company)
	if errors.Is(err, message.ErrNotFound) {
		return &message.Aggregate{ByStatus: []message.StatusCount{}}, nil
	}
	if err != nil {
		return nil, err
	}
	f.CompanyID = c.ID
	return q.queries.Aggregate(ctx, f)
}

// Billing sums a company's spend on method within [start, end).
func (q *Query) Billing(ctx context.Context, company string, method message.SendMethod, start, end time.Time) (*Billing, error) {
	out := &Billing{Start: start, End: end}
	c, err := q.groups.FindCompany(ctx, company)
	if errors.Is(err, message.ErrNotFound) {
		return out, nil
	}
	if err != nil {
		return nil, err
	}
	out.Spend, err = q.queries.Spend(ctx, c.ID, method, start, end)
	if err != nil {
		return nil, err
	}
	return out, nil
}
