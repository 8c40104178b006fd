package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/oggyb/courier/internal/domain/message"
	"github.com/oggyb/courier/internal/ingest"
	"github.com/oggyb/courier/internal/metrics"
	"github.com/oggyb/courier/internal/queue"
	"github.com/oggyb/courier/internal/quota"
	"github.com/oggyb/courier/internal/template"
	"github.com/oggyb/courier/internal/worker"
	"github.com/rs/zerolog"
)

// RunGroup records the group, resolves its templates, consults the quota
// ledger once and fans the recipients out into dispatch jobs. Every step is
// persisted on the group row so a redelivered job resumes where the last
// one stopped; a group that already got that far is left untouched.
func (p *Pipeline) RunGroup(ctx context.Context, job *GroupJob) (uint, error) {
	id, err := uuid.Parse(job.Group.UID)
	if err != nil {
		return 0, worker.Permanent(fmt.Errorf("group uid: %w", err))
	}
	job.Group.UUID = id
	log := p.log.With().Str("group", id.String()).Logger()

	companyID, err := p.Groups.CompanyID(ctx, job.Group.CompanyCode)
	if err != nil {
		return 0, fmt.Errorf("company: %w", err)
	}

	g := &message.Group{
		UUID:           id,
		CompanyID:      companyID,
		Method:         job.Group.Method,
		CreatedTS:      p.now(),
		FromAddress:    job.Group.FromAddress,
		FromName:       job.Group.FromName,
		Tags:           job.Group.Tags,
		State:          message.GroupReceived,
		RecipientCount: job.Count,
		AdmittedCount:  -1,
	}
	created, err := p.Groups.CreateGroup(ctx, g)
	if err != nil {
		return 0, fmt.Errorf("create group: %w", err)
	}
	if !created && g.State.Settled() {
		log.Debug().Str("state", string(g.State)).Msg("group already fanned out")
		if g.State == message.GroupFannedOut {
			return g.ID, p.settle(ctx, g)
		}
		return g.ID, nil
	}

	if err := p.prepareTemplates(ctx, g, &job.Group, log); err != nil {
		var terr *template.TemplateResolutionError
		if errors.As(err, &terr) && ctx.Err() == nil {
			return g.ID, p.failGroup(ctx, g, terr, log)
		}
		return g.ID, err
	}

	if g.AdmittedCount < 0 {
		admitted, err := quota.Admit(ctx, p.Ledger, job.Group.CompanyCode, g.Method, g.RecipientCount)
		if err != nil {
			return g.ID, fmt.Errorf("quota: %w", err)
		}
		if err := p.Groups.SetGroupAdmitted(ctx, g.ID, admitted); err != nil {
			return g.ID, fmt.Errorf("store admitted count: %w", err)
		}
		g.AdmittedCount = admitted
		if rejected := g.RecipientCount - admitted; rejected > 0 {
			metrics.QuotaRejected.WithLabelValues(string(g.Method)).Add(float64(rejected))
			log.Warn().Int("admitted", admitted).Int("rejected", rejected).Msg("quota exceeded")
		}
	}
	if err := p.setState(ctx, g, message.GroupRecorded); err != nil {
		return g.ID, err
	}

	n, err := p.fanOut(ctx, g, job)
	if err != nil {
		return g.ID, err
	}

	if err := p.setState(ctx, g, message.GroupFannedOut); err != nil {
		return g.ID, err
	}
	log.Info().Int("jobs", n).Int("admitted", g.AdmittedCount).Msg("group fanned out")

	return g.ID, p.settle(ctx, g)
}

func (p *Pipeline) prepareTemplates(ctx context.Context, g *message.Group, desc *ingest.Group, log zerolog.Logger) error {
	ref := g.UUID.String()
	if g.State != message.GroupReceived {
		if _, err := p.Templates.Get(ctx, ref); err == nil {
			return nil
		}
		log.Debug().Msg("shared templates gone, resolving again")
	}

	t, err := p.Templates.Resolve(ctx, pathsOf(desc))
	if err != nil {
		return err
	}
	if err := p.Templates.Put(ctx, ref, t); err != nil {
		return fmt.Errorf("share templates: %w", err)
	}
	if g.State == message.GroupReceived {
		return p.setState(ctx, g, message.GroupTemplatesResolved)
	}
	return nil
}

func (p *Pipeline) failGroup(ctx context.Context, g *message.Group, cause error, log zerolog.Logger) error {
	log.Error().Err(cause).Msg("template resolution failed, failing group")
	if err := p.setState(ctx, g, message.GroupFailed); err != nil {
		return err
	}
	if err := p.FanOut.Drop(ctx, g.UUID.String()); err != nil {
		log.Error().Err(err).Msg("failed to drop recipients")
	}
	metrics.GroupsRejected.WithLabelValues("template").Inc()
	return nil
}

// fanOut drains the group's recipient list. Admitted recipients get a
// dispatch job; the rest are recorded as quota rejects. An entry is acked
// only after its job or row exists, so a crash replays at most the entries
// in flight, and both outcomes are idempotent on the recipient index.
func (p *Pipeline) fanOut(ctx context.Context, g *message.Group, job *GroupJob) (int, error) {
	list := g.UUID.String()
	if _, err := p.FanOut.Restore(ctx, list); err != nil {
		return 0, fmt.Errorf("restore recipients: %w", err)
	}

	jobs := 0
	for {
		entry, err := p.FanOut.Pop(ctx, list)
		if errors.Is(err, queue.ErrEmpty) {
			return jobs, nil
		}
		if err != nil {
			return jobs, fmt.Errorf("pop recipient: %w", err)
		}

		var r ingest.Recipient
		if err := entry.Decode(&r); err != nil {
			m := message.NewMessage(g, entry.Index, p.now())
			m.Status = message.StatusRenderFailed
			m.Body = fmt.Sprintf("undecodable recipient: %v", err)
			err = p.record(ctx, m, nil)
		} else if entry.Index < g.AdmittedCount {
			err = p.enqueueDispatch(ctx, g, job, entry.Index, &r)
			jobs++
		} else {
			err = p.record(ctx, p.quotaReject(g, entry.Index, &r), nil)
		}
		if err != nil {
			return jobs, err
		}

		if err := p.FanOut.Ack(ctx, list, entry); err != nil {
			return jobs, fmt.Errorf("ack recipient: %w", err)
		}
	}
}

func (p *Pipeline) enqueueDispatch(ctx context.Context, g *message.Group, job *GroupJob, index int, r *ingest.Recipient) error {
	j, err := queue.NewJob(queue.KindSendMessage, &DispatchJob{
		GroupID:   g.ID,
		CompanyID: g.CompanyID,
		Group:     job.Group,
		Index:     index,
		Recipient: *r,
	})
	if err != nil {
		return err
	}
	if err := p.Jobs.Enqueue(ctx, j); err != nil {
		return fmt.Errorf("enqueue dispatch %d: %w", index, err)
	}
	return nil
}

func (p *Pipeline) quotaReject(g *message.Group, index int, r *ingest.Recipient) *message.Message {
	m := message.NewMessage(g, index, p.now())
	m.Status = message.StatusReject
	m.ToFirstName = r.FirstName
	m.ToLastName = r.LastName
	m.ToAddress = r.To(g.Method)
	m.ToUserLink = r.UserLink
	m.Tags = mergeTags(g.Tags, r.Tags, g.UUID.String())
	m.Extra = map[string]any{"reason": "quota_exceeded"}
	return m
}

func (p *Pipeline) setState(ctx context.Context, g *message.Group, state message.GroupState) error {
	if g.State == state {
		return nil
	}
	if err := p.Groups.SetGroupState(ctx, g.ID, state); err != nil {
		return fmt.Errorf("group state %s: %w", state, err)
	}
	g.State = state
	return nil
}

// settle marks a fanned-out group complete once every recipient has a row.
// A group with quota rejects or failed provider requests ends in
// partial-failure instead.
func (p *Pipeline) settle(ctx context.Context, g *message.Group) error {
	switch g.State {
	case message.GroupFannedOut, message.GroupComplete, message.GroupPartialFailure:
	default:
		return nil
	}

	counts, err := p.Queries.GroupStatusCounts(ctx, g.ID)
	if err != nil {
		return fmt.Errorf("group status counts: %w", err)
	}

	var total int64
	failed := false
	for _, c := range counts {
		total += c.Count
		if c.Status == message.StatusSendRequestFailed && c.Count > 0 {
			failed = true
		}
	}
	if total < int64(g.RecipientCount) {
		return nil
	}

	state := message.GroupComplete
	if failed || (g.AdmittedCount >= 0 && g.AdmittedCount < g.RecipientCount) {
		state = message.GroupPartialFailure
	}
	return p.setState(ctx, g, state)
}

func pathsOf(g *ingest.Group) template.Paths {
	return template.Paths{
		Main:     g.MainTemplate,
		Inner:    g.InnerTemplate,
		Subject:  g.SubjectTemplate,
		Partials: g.Partials,
	}
}
