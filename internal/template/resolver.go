package template

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/oggyb/courier/internal/cache"
	"github.com/oggyb/courier/internal/render"
	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
)

// CacheTTL is how long a resolved template set stays in the shared cache.
const CacheTTL = 24 * time.Hour

// maxLocal bounds the process-local cache.
const maxLocal = 256

// TemplateResolutionError means a group's templates could not be fetched
// within the retry budget. It fails the whole group.
type TemplateResolutionError struct {
	Path string
	Err  error
}

func (e *TemplateResolutionError) Error() string {
	return fmt.Sprintf("resolve template %q: %v", e.Path, e.Err)
}

func (e *TemplateResolutionError) Unwrap() error { return e.Err }

// Paths names the templates of a group in the store.
type Paths struct {
	Main     string
	Inner    string
	Subject  string
	Partials map[string]string
}

// Resolver fetches template sets and shares them between orchestrator and
// dispatch workers.
type Resolver struct {
	store      Store
	cache      cache.Cache
	log        zerolog.Logger
	maxRetries uint64
	newBackOff func() backoff.BackOff

	mu    sync.Mutex
	local map[string]*render.Templates
}

func NewResolver(store Store, c cache.Cache, maxRetries int, log zerolog.Logger) *Resolver {
	return &Resolver{
		store:      store,
		cache:      c,
		log:        log,
		maxRetries: uint64(max(maxRetries, 0)),
		newBackOff: func() backoff.BackOff {
			return backoff.NewExponentialBackOff(
				backoff.WithInitialInterval(200*time.Millisecond),
				backoff.WithMaxInterval(5*time.Second),
			)
		},
		local: make(map[string]*render.Templates),
	}
}

// Resolve fetches every template named by p. Transient store failures are
// retried with exponential backoff; unknown paths fail immediately.
func (r *Resolver) Resolve(ctx context.Context, p Paths) (*render.Templates, error) {
	out := &render.Templates{Partials: make(map[string]string, len(p.Partials)+1)}

	var err error
	if out.Main, err = r.fetch(ctx, p.Main); err != nil {
		return nil, err
	}
	if p.Subject != "" {
		if out.Subject, err = r.fetch(ctx, p.Subject); err != nil {
			return nil, err
		}
	}
	if p.Inner != "" {
		if out.Partials[render.ContentPartial], err = r.fetch(ctx, p.Inner); err != nil {
			return nil, err
		}
	}
	for name, path := range p.Partials {
		if out.Partials[name], err = r.fetch(ctx, path); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (r *Resolver) fetch(ctx context.Context, path string) (string, error) {
	b := backoff.WithContext(backoff.WithMaxRetries(r.newBackOff(), r.maxRetries), ctx)

	content, err := backoff.RetryNotifyWithData(func() (string, error) {
		s, err := r.store.Fetch(ctx, path)
		if errors.Is(err, ErrNotFound) {
			return "", backoff.Permanent(err)
		}
		var serr *StatusError
		if errors.As(err, &serr) && !serr.Temporary() {
			return "", backoff.Permanent(err)
		}
		return s, err
	}, b, func(err error, next time.Duration) {
		r.log.Warn().Err(err).Str("path", path).Dur("retry_in", next).Msg("template fetch failed")
	})
	if err != nil {
		return "", &TemplateResolutionError{Path: path, Err: err}
	}
	return content, nil
}

// Put shares a resolved set under ref.
func (r *Resolver) Put(ctx context.Context, ref string, t *render.Templates) error {
	b, err := msgpack.Marshal(t)
	if err != nil {
		return fmt.Errorf("encode templates: %w", err)
	}
	if err := r.cache.Set(ctx, cache.Templates.Key(ref), string(b), CacheTTL); err != nil {
		return err
	}
	r.remember(ref, t)
	return nil
}

// Get returns the set stored under ref, preferring the local copy.
func (r *Resolver) Get(ctx context.Context, ref string) (*render.Templates, error) {
	r.mu.Lock()
	t, ok := r.local[ref]
	r.mu.Unlock()
	if ok {
		return t, nil
	}

	raw, err := r.cache.Get(ctx, cache.Templates.Key(ref))
	if errors.Is(err, cache.ErrMiss) {
		return nil, &TemplateResolutionError{Path: ref, Err: ErrNotFound}
	}
	if err != nil {
		return nil, err
	}

	t = &render.Templates{}
	if err := msgpack.Unmarshal([]byte(raw), t); err != nil {
		return nil, fmt.Errorf("decode templates: %w", err)
	}
	r.remember(ref, t)
	return t, nil
}

func (r *Resolver) remember(ref string, t *render.Templates) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.local) >= maxLocal {
		clear(r.local)
	}
	r.local[ref] = t
}
