package service

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/oggyb/courier/internal/cache"
	"github.com/oggyb/courier/internal/domain/message"
	"github.com/oggyb/courier/internal/metrics"
	"github.com/oggyb/courier/internal/webhook"
	"github.com/rs/zerolog"
)

const (
	// EventDedupeTTL is how long an event signature is remembered.
	EventDedupeTTL = 24 * time.Hour
	// ClickDedupeTTL collapses repeated clicks from one address.
	ClickDedupeTTL = time.Minute
)

// Outcome of applying one delivery event.
type Outcome string

const (
	OutcomeApplied   Outcome = "applied"
	OutcomeStale     Outcome = "stale"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeUnknown   Outcome = "unknown"
)

// Reconciler applies provider delivery events to messages.
type Reconciler struct {
	messages message.MessageRepository
	cache    cache.Cache
	now      func() time.Time
	log      zerolog.Logger
}

func NewReconciler(messages message.MessageRepository, c cache.Cache, log zerolog.Logger) *Reconciler {
	return &Reconciler{
		messages: messages,
		cache:    c,
		now:      func() time.Time { return time.Now().UTC().Truncate(message.TimestampPrecision) },
		log:      log.With().Str("component", "reconciler").Logger(),
	}
}

// Apply records ev against its message. The event is always appended; the
// message status only moves if ev is newer than the last applied event.
// Redelivered callbacks are skipped by their signature.
func (r *Reconciler) Apply(ctx context.Context, ev *webhook.Event) (Outcome, error) {
	key := cache.Events.Key(ev.Key())
	n, err := r.cache.IncrTTL(ctx, key, EventDedupeTTL)
	if err != nil {
		return "", fmt.Errorf("event dedupe: %w", err)
	}
	if n > 1 {
		metrics.EventsReconciled.WithLabelValues(string(ev.Method), string(OutcomeDuplicate)).Inc()
		return OutcomeDuplicate, nil
	}

	e := &message.Event{Status: ev.Status, TS: ev.TS, Extra: ev.Extra}
	updated, err := r.messages.ApplyEvent(ctx, ev.Method, ev.ExternalID, e)
	if errors.Is(err, message.ErrNotFound) {
		metrics.EventsReconciled.WithLabelValues(string(ev.Method), string(OutcomeUnknown)).Inc()
		return OutcomeUnknown, &UnknownMessageError{Method: ev.Method, ExternalID: ev.ExternalID}
	}
	if err != nil {
		// forget the signature so a retry is not mistaken for a duplicate
		if derr := r.cache.Del(context.WithoutCancel(ctx), key); derr != nil {
			r.log.Error().Err(derr).Msg("failed to clear event signature")
		}
		return "", fmt.Errorf("apply event: %w", err)
	}

	outcome := OutcomeStale
	if updated {
		outcome = OutcomeApplied
	}
	metrics.EventsReconciled.WithLabelValues(string(ev.Method), string(outcome)).Inc()
	return outcome, nil
}

// ApplyBatch applies every event. Unknown messages are logged and dropped;
// other failures are joined and returned so the batch is retried, with the
// events already applied skipped as duplicates.
func (r *Reconciler) ApplyBatch(ctx context.Context, events []webhook.Event) error {
	var errs []error
	for i := range events {
		ev := &events[i]
		outcome, err := r.Apply(ctx, ev)

		var unknown *UnknownMessageError
		switch {
		case errors.As(err, &unknown):
			r.log.Warn().Err(err).Str("status", string(ev.Status)).Msg("event for unknown message dropped")
		case err != nil:
			errs = append(errs, err)
		default:
			r.log.Debug().
				Str("method", string(ev.Method)).
				Str("external_id", ev.ExternalID).
				Str("status", string(ev.Status)).
				Str("outcome", string(outcome)).
				Msg("event reconciled")
		}
	}
	return errors.Join(errs...)
}

// Click resolves a tracking token to its target and records a click event
// on the message. Repeated clicks from one ip within ClickDedupeTTL are
// recorded once. An unknown token still redirects when the tracked URL
// carried a base64 fallback.
func (r *Reconciler) Click(ctx context.Context, token, ip, userAgent, fallback string) (string, error) {
	link, err := r.messages.LinkByToken(ctx, token)
	if errors.Is(err, message.ErrNotFound) {
		if target, derr := base64.URLEncoding.DecodeString(fallback); fallback != "" && derr == nil {
			return string(target), nil
		}
		return "", err
	}
	if err != nil {
		return "", err
	}

	fresh, err := r.cache.SetNX(ctx, cache.Clicks.Key(strconv.FormatUint(uint64(link.ID), 10)+"-"+ip), "1", ClickDedupeTTL)
	if err != nil {
		r.log.Error().Err(err).Msg("click dedupe failed")
		return link.URL, nil
	}
	if !fresh {
		return link.URL, nil
	}

	e := &message.Event{
		Status: message.StatusClick,
		TS:     r.now(),
		Extra:  map[string]any{"target": link.URL, "ip": ip, "user_agent": userAgent},
	}
	if _, err := r.messages.ApplyEventToMessage(ctx, link.MessageID, e); err != nil {
		r.log.Error().Err(err).Uint("message_id", link.MessageID).Msg("failed to record click")
	} else {
		metrics.EventsReconciled.WithLabelValues("click", string(OutcomeApplied)).Inc()
	}
	return link.URL, nil
}
