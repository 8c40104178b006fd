package service

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/google/uuid"
	"github.com/oggyb/courier/internal/attachment"
	"github.com/oggyb/courier/internal/domain/message"
	"github.com/oggyb/courier/internal/ingest"
	"github.com/oggyb/courier/internal/metrics"
	"github.com/oggyb/courier/internal/provider"
	"github.com/oggyb/courier/internal/render"
	"github.com/oggyb/courier/internal/template"
	"github.com/oggyb/courier/internal/worker"
	"github.com/prometheus/client_golang/prometheus"
)

// Dispatch renders and sends one recipient and records the outcome. Render
// and attachment failures are recorded as render_failed and provider
// failures as send_request_failed; neither is returned, so the job is not
// retried. Only infrastructure errors (store, cache) are returned.
func (p *Pipeline) Dispatch(ctx context.Context, job *DispatchJob) error {
	id, err := uuid.Parse(job.Group.UID)
	if err != nil {
		return worker.Permanent(fmt.Errorf("group uid: %w", err))
	}
	job.Group.UUID = id

	exists, err := p.Messages.MessageExists(ctx, job.GroupID, job.Index)
	if err != nil {
		return fmt.Errorf("message exists: %w", err)
	}
	if exists {
		return nil
	}

	g := &message.Group{
		ID:        job.GroupID,
		UUID:      job.Group.UUID,
		CompanyID: job.CompanyID,
		Method:    job.Group.Method,
		Tags:      job.Group.Tags,
	}
	ref := job.Group.UID

	m := message.NewMessage(g, job.Index, p.now())
	r := &job.Recipient
	m.ToFirstName = r.FirstName
	m.ToLastName = r.LastName
	m.ToAddress = r.To(g.Method)
	m.ToUserLink = r.UserLink
	m.Tags = mergeTags(job.Group.Tags, r.Tags, ref)

	t, err := p.templatesFor(ctx, job)
	if err != nil {
		var terr *template.TemplateResolutionError
		if !errors.As(err, &terr) || ctx.Err() != nil {
			return err
		}
		m.Status = message.StatusRenderFailed
		m.Body = err.Error()
		return p.finish(ctx, job, m, nil)
	}

	prov, err := p.Providers.Get(g.Method)
	if err != nil {
		return p.finish(ctx, job, p.sendFailed(m, err), nil)
	}

	var links []render.Link
	if g.Method.IsSMS() {
		links, err = p.sendSMS(ctx, prov, job, t, m)
	} else {
		links, err = p.sendEmail(ctx, prov, job, t, m)
	}
	if err != nil {
		return err
	}
	return p.finish(ctx, job, m, links)
}

func (p *Pipeline) sendEmail(ctx context.Context, prov provider.Provider, job *DispatchJob, t *render.Templates, m *message.Message) ([]render.Link, error) {
	r := &job.Recipient

	email, err := p.Renderer.Email(t, render.EmailInput{
		FirstName: r.FirstName,
		LastName:  r.LastName,
		Context:   render.Merge(job.Group.Context, r.Context),
		Headers:   render.MergeHeaders(job.Group.Headers, r.Headers),
	})
	if err != nil {
		m.Status = message.StatusRenderFailed
		m.Body = err.Error()
		return nil, nil
	}
	m.Subject = email.Subject
	m.Body = email.HTML

	files, refs, err := p.attachmentsFor(ctx, r)
	if err != nil {
		m.Status = message.StatusRenderFailed
		m.Extra = map[string]any{"error": err.Error()}
		return nil, nil
	}
	m.Attachments = refs

	env := &provider.Envelope{
		Method:      job.Group.Method,
		GroupUUID:   job.Group.UID,
		CompanyCode: job.Group.CompanyCode,
		FromAddress: job.Group.FromAddress,
		FromName:    job.Group.FromName,
		ToAddress:   r.Address,
		ToName:      email.FullName,
		ToUserLink:  r.UserLink,
		Subject:     email.Subject,
		HTML:        email.HTML,
		Headers:     email.Headers,
		Attachments: files,
		Tags:        m.Tags,
		Subaccount:  job.Group.Subaccount,
		Important:   job.Group.Important,
	}

	receipt, err := p.send(ctx, prov, env)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		p.sendFailed(m, err)
		return nil, nil
	}
	m.ExternalID = receipt.ExternalID
	m.Cost = receipt.Cost
	return email.Links, nil
}

func (p *Pipeline) sendSMS(ctx context.Context, prov provider.Provider, job *DispatchJob, t *render.Templates, m *message.Message) ([]render.Link, error) {
	r := &job.Recipient

	number, err := render.ParseMobile(r.To(job.Group.Method), job.Group.CountryCode)
	if err != nil {
		m.Status = message.StatusRenderFailed
		m.Body = err.Error()
		return nil, nil
	}
	m.ToAddress = number.Formatted

	sms, err := p.Renderer.SMS(t, render.Merge(job.Group.Context, r.Context))
	if err != nil {
		m.Status = message.StatusRenderFailed
		m.Body = err.Error()
		return nil, nil
	}
	m.Body = sms.Body
	m.Extra = map[string]any{"length": sms.Length.Length, "parts": sms.Length.Parts}

	env := &provider.Envelope{
		Method:      job.Group.Method,
		GroupUUID:   job.Group.UID,
		CompanyCode: job.Group.CompanyCode,
		FromName:    job.Group.FromName,
		ToAddress:   number.E164,
		ToName:      m.FullName(),
		ToUserLink:  r.UserLink,
		Text:        sms.Body,
		Number:      number,
		Length:      sms.Length,
		Tags:        m.Tags,
	}

	receipt, err := p.send(ctx, prov, env)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		p.sendFailed(m, err)
		return nil, nil
	}
	m.ExternalID = receipt.ExternalID
	m.Cost = receipt.Cost
	metrics.SMSParts.WithLabelValues(string(job.Group.Method)).Add(float64(sms.Length.Parts))
	return sms.Links, nil
}

func (p *Pipeline) send(ctx context.Context, prov provider.Provider, env *provider.Envelope) (*provider.Receipt, error) {
	timer := prometheus.NewTimer(metrics.ProviderDuration.WithLabelValues(string(env.Method)))
	defer timer.ObserveDuration()
	return prov.Send(ctx, env)
}

func (p *Pipeline) sendFailed(m *message.Message, err error) *message.Message {
	m.Status = message.StatusSendRequestFailed
	if m.Extra == nil {
		m.Extra = map[string]any{}
	}
	m.Extra["error"] = err.Error()
	return m
}

// attachmentsFor renders the recipient's PDF attachments and fetches the
// stored ones. It returns the files and their "id::name" references.
func (p *Pipeline) attachmentsFor(ctx context.Context, r *ingest.Recipient) ([]attachment.File, []string, error) {
	n := len(r.PDFAttachments) + len(r.Attachments)
	if n == 0 {
		return nil, nil, nil
	}
	files := make([]attachment.File, 0, n)
	refs := make([]string, 0, n)

	for _, a := range r.PDFAttachments {
		if p.PDF == nil {
			return nil, nil, attachment.ErrNotConfigured
		}
		content, err := p.PDF.Render(ctx, a.HTML)
		if err != nil {
			return nil, nil, fmt.Errorf("render %s: %w", a.Name, err)
		}
		files = append(files, attachment.File{Name: a.Name, MimeType: "application/pdf", Content: content})
		refs = append(refs, message.AttachmentRef(strconv.FormatInt(a.ID, 10), a.Name))
	}

	for _, a := range r.Attachments {
		if p.Attachments == nil {
			return nil, nil, attachment.ErrNotConfigured
		}
		content, err := p.Attachments.Fetch(ctx, a.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("fetch %s: %w", a.Name, err)
		}
		mimeType := a.MimeType
		if mimeType == "" {
			mimeType = mime.TypeByExtension(filepath.Ext(a.Name))
		}
		if mimeType == "" {
			mimeType = "application/octet-stream"
		}
		files = append(files, attachment.File{Name: a.Name, MimeType: mimeType, Content: content})
		refs = append(refs, message.AttachmentRef(a.Path, a.Name))
	}
	return files, refs, nil
}

// templatesFor returns the group's shared templates, resolving them again
// if the shared copy expired.
func (p *Pipeline) templatesFor(ctx context.Context, job *DispatchJob) (*render.Templates, error) {
	t, err := p.Templates.Get(ctx, job.Group.UID)
	if err == nil {
		return t, nil
	}
	var terr *template.TemplateResolutionError
	if !errors.As(err, &terr) {
		return nil, err
	}

	t, err = p.Templates.Resolve(ctx, pathsOf(&job.Group))
	if err != nil {
		return nil, err
	}
	if err := p.Templates.Put(ctx, job.Group.UID, t); err != nil {
		p.log.Warn().Err(err).Str("group", job.Group.UID).Msg("failed to share templates")
	}
	return t, nil
}

// finish records the message and tries to settle its group.
func (p *Pipeline) finish(ctx context.Context, job *DispatchJob, m *message.Message, links []render.Link) error {
	if err := p.record(ctx, m, links); err != nil {
		return err
	}

	g, err := p.Groups.GroupByUUID(ctx, job.Group.UUID)
	if err != nil {
		return fmt.Errorf("load group: %w", err)
	}
	return p.settle(ctx, g)
}

func (p *Pipeline) record(ctx context.Context, m *message.Message, links []render.Link) error {
	rows := make([]message.Link, len(links))
	for i, l := range links {
		rows[i] = message.Link{Token: l.Token, URL: l.URL}
	}

	created, err := p.Messages.CreateMessage(ctx, m, rows)
	if errors.Is(err, message.ErrInvalidData) {
		// The same row will never be accepted. Store a cleaned copy so the
		// group can still finish; the provider outcome is kept.
		p.log.Warn().Err(err).
			Uint("group_id", m.GroupID).
			Int("index", m.RecipientIndex).
			Msg("store refused message, recording cleaned copy")
		clean := m.Storable()
		clean.Extra = message.CleanExtra(withStoreError(m.Extra, err))
		for i := range rows {
			rows[i].URL = message.CleanText(rows[i].URL)
		}
		created, err = p.Messages.CreateMessage(ctx, clean, rows)
		m.ID = clean.ID
	}
	if err != nil {
		return fmt.Errorf("create message %d: %w", m.RecipientIndex, err)
	}

	log := p.log.With().
		Uint("group_id", m.GroupID).
		Int("index", m.RecipientIndex).
		Str("status", string(m.Status)).
		Logger()
	if !created {
		log.Warn().Msg("message already recorded")
		return nil
	}

	metrics.MessagesRecorded.WithLabelValues(string(m.Method), string(m.Status)).Inc()
	switch m.Status {
	case message.StatusSend:
		log.Debug().Str("external_id", m.ExternalID).Msg("message sent")
	case message.StatusReject:
		log.Debug().Msg("message rejected")
	default:
		log.Warn().Str("body", m.Body).Interface("extra", m.Extra).Msg("message failed")
	}
	return nil
}

func withStoreError(extra map[string]any, err error) map[string]any {
	out := make(map[string]any, len(extra)+1)
	for k, v := range extra {
		out[k] = v
	}
	out["store_error"] = err.Error()
	return out
}

// mergeTags is the sorted union of the group tags, the recipient tags and
// the group uuid.
func mergeTags(group, recipient []string, uid string) []string {
	seen := make(map[string]struct{}, len(group)+len(recipient)+1)
	out := make([]string, 0, len(group)+len(recipient)+1)
	for _, tags := range [][]string{group, recipient, {uid}} {
		for _, t := range tags {
			if _, ok := seen[t]; ok || t == "" {
				continue
			}
			seen[t] = struct{}{}
			out = append(out, t)
		}
	}
	sort.Strings(out)
	return out
}
