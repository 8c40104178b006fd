package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/oggyb/courier/internal/cache"
	"github.com/oggyb/courier/internal/domain/message"
	"github.com/oggyb/courier/internal/ingest"
	"github.com/oggyb/courier/internal/metrics"
	"github.com/oggyb/courier/internal/queue"
)

// Accepted acknowledges a submitted group.
type Accepted struct {
	UUID       uuid.UUID
	Method     message.SendMethod
	Recipients int
}

// Submit queues a validated request. Nothing is written to the store here:
// the recipients go on the fan-out list and the orchestrator job records
// the group.
func (p *Pipeline) Submit(ctx context.Context, req *ingest.Request) (*Accepted, error) {
	if req.Method.IsSMS() && req.CostLimit != nil {
		if err := p.checkCostLimit(ctx, req); err != nil {
			metrics.GroupsRejected.WithLabelValues("cost_limit").Inc()
			return nil, err
		}
	}

	id := req.UUID.String()
	guard := cache.Groups.Key(id)
	fresh, err := p.Cache.SetNX(ctx, guard, string(req.Method), GroupGuardTTL)
	if err != nil {
		return nil, fmt.Errorf("group guard: %w", err)
	}
	if !fresh {
		metrics.GroupsRejected.WithLabelValues("duplicate").Inc()
		return nil, ErrDuplicateGroup
	}
	if _, err := p.Groups.GroupByUUID(ctx, req.UUID); err == nil {
		metrics.GroupsRejected.WithLabelValues("duplicate").Inc()
		return nil, ErrDuplicateGroup
	} else if !errors.Is(err, message.ErrNotFound) {
		p.release(id)
		return nil, err
	}

	if err := p.enqueueGroup(ctx, req); err != nil {
		p.release(id)
		return nil, err
	}

	metrics.GroupsAccepted.WithLabelValues(string(req.Method)).Inc()
	p.log.Info().
		Str("group", id).
		Str("company", req.CompanyCode).
		Str("method", string(req.Method)).
		Int("recipients", len(req.Recipients)).
		Msg("group accepted")

	return &Accepted{UUID: req.UUID, Method: req.Method, Recipients: len(req.Recipients)}, nil
}

func (p *Pipeline) enqueueGroup(ctx context.Context, req *ingest.Request) error {
	id := req.UUID.String()

	entries := make([]queue.Entry, len(req.Recipients))
	for i := range req.Recipients {
		e, err := queue.NewEntry(i, &req.Recipients[i])
		if err != nil {
			return err
		}
		entries[i] = e
	}
	if err := p.FanOut.Push(ctx, id, entries); err != nil {
		return fmt.Errorf("push recipients: %w", err)
	}

	job, err := queue.NewJob(queue.KindSendGroup, &GroupJob{Group: req.Group, Count: len(req.Recipients)})
	if err != nil {
		return err
	}
	if err := p.Jobs.Enqueue(ctx, job); err != nil {
		return fmt.Errorf("enqueue group job: %w", err)
	}
	return nil
}

// release undoes a half-submitted group so the client can retry it.
func (p *Pipeline) release(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := p.FanOut.Drop(ctx, id); err != nil {
		p.log.Error().Err(err).Str("group", id).Msg("failed to drop recipients")
	}
	if err := p.Cache.Del(ctx, cache.Groups.Key(id)); err != nil {
		p.log.Error().Err(err).Str("group", id).Msg("failed to release group guard")
	}
}

func (p *Pipeline) checkCostLimit(ctx context.Context, req *ingest.Request) error {
	company, err := p.Groups.FindCompany(ctx, req.CompanyCode)
	if errors.Is(err, message.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	now := p.now()
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	spend, err := p.Queries.Spend(ctx, company.ID, req.Method, start, now.Add(time.Second))
	if err != nil {
		return fmt.Errorf("monthly spend: %w", err)
	}
	if spend >= *req.CostLimit {
		return &CostLimitError{Limit: *req.CostLimit, Spend: spend}
	}
	return nil
}
