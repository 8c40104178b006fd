// Package service implements the send pipeline (ingestion, group
// orchestration, per-recipient dispatch), delivery event reconciliation and
// the read side.
package service

import (
	"context"
	"time"

	"github.com/oggyb/courier/internal/attachment"
	"github.com/oggyb/courier/internal/cache"
	"github.com/oggyb/courier/internal/domain/message"
	"github.com/oggyb/courier/internal/provider"
	"github.com/oggyb/courier/internal/queue"
	"github.com/oggyb/courier/internal/quota"
	"github.com/oggyb/courier/internal/render"
	"github.com/oggyb/courier/internal/template"
	"github.com/rs/zerolog"
)

// GroupGuardTTL is how long a submitted uuid is held in the cache. The
// database check covers anything older.
const GroupGuardTTL = 7 * 24 * time.Hour

// Templates resolves template sets and shares them between the orchestrator
// and the dispatch jobs of a group.
type Templates interface {
	Resolve(ctx context.Context, p template.Paths) (*render.Templates, error)
	Put(ctx context.Context, ref string, t *render.Templates) error
	Get(ctx context.Context, ref string) (*render.Templates, error)
}

// Deps are the collaborators of a Pipeline.
type Deps struct {
	Groups   message.GroupRepository
	Messages message.MessageRepository
	Queries  message.QueryRepository

	Jobs   queue.JobQueue
	FanOut queue.FanOut
	Ledger quota.Ledger
	Cache  cache.Cache

	Templates Templates
	Renderer  *render.Renderer
	Providers *provider.Registry

	// PDF and Attachments may be nil; recipients that need them then fail
	// with render_failed.
	PDF         attachment.Renderer
	Attachments attachment.Store
}

// Pipeline turns accepted send requests into recorded messages.
type Pipeline struct {
	Deps
	now func() time.Time
	log zerolog.Logger
}

func NewPipeline(d Deps, log zerolog.Logger) *Pipeline {
	return &Pipeline{
		Deps: d,
		now:  func() time.Time { return time.Now().UTC() },
		log:  log.With().Str("component", "pipeline").Logger(),
	}
}
