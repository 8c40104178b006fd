package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/oggyb/courier/internal/response"
	"github.com/oggyb/courier/internal/webhook"
	"github.com/rs/zerolog"
)

// MaxWebhookBody caps a provider callback body.
const MaxWebhookBody = 8 << 20

// EventSink accepts normalized delivery events for reconciliation.
type EventSink interface {
	Enqueue(ctx context.Context, events []*webhook.Event) error
}

// WebhookConfig holds the mandrill verification settings. An empty Key
// disables signature checks.
type WebhookConfig struct {
	MandrillKey string
	MandrillURL string
}

// WebhookHandler receives provider delivery callbacks. Events are queued,
// never applied inline, so the provider is answered quickly.
type WebhookHandler struct {
	sink EventSink
	cfg  WebhookConfig
	log  zerolog.Logger
}

func NewWebhookHandler(sink EventSink, cfg WebhookConfig, log zerolog.Logger) *WebhookHandler {
	return &WebhookHandler{
		sink: sink,
		cfg:  cfg,
		log:  log.With().Str("component", "webhook_handler").Logger(),
	}
}

// Mandrill godoc
// @Summary     Mandrill events
// @Description Receives a signed batch of mandrill delivery events.
// @Tags        webhook
// @Accept      x-www-form-urlencoded
// @Produce     json
// @Param       mandrill_events formData string true "JSON event batch"
// @Success     200 {object} response.JSONResponse
// @Failure     400 {object} response.JSONResponse
// @Failure     403 {object} response.JSONResponse
// @Router      /webhook/mandrill/ [post]
func (h *WebhookHandler) Mandrill(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxWebhookBody)
	if err := r.ParseForm(); err != nil {
		response.RespondError(w, http.StatusBadRequest, "invalid form body")
		return
	}

	if h.cfg.MandrillKey != "" {
		sig := r.Header.Get(webhook.MandrillSignatureHeader)
		if err := webhook.VerifyMandrill(h.cfg.MandrillKey, h.cfg.MandrillURL, r.PostForm, sig); err != nil {
			h.log.Warn().Str("remote", r.RemoteAddr).Msg("mandrill signature rejected")
			response.RespondError(w, http.StatusForbidden, err.Error())
			return
		}
	}

	events, err := webhook.ParseMandrill(r.PostForm)
	if err != nil {
		response.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.enqueue(w, r, events)
}

// MandrillHead godoc
// @Summary     Mandrill URL check
// @Description Mandrill checks the webhook url with a HEAD request before saving it.
// @Tags        webhook
// @Success     200
// @Router      /webhook/mandrill/ [head]
func (h *WebhookHandler) MandrillHead(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// MessageBird godoc
// @Summary     MessageBird delivery report
// @Description Receives a messagebird status report as query arguments.
// @Tags        webhook
// @Produce     json
// @Param       id             query string true "message id"
// @Param       status         query string true "delivery status"
// @Param       statusDatetime query string true "status time"
// @Success     200 {object} response.JSONResponse
// @Failure     400 {object} response.JSONResponse
// @Router      /webhook/messagebird/ [get]
func (h *WebhookHandler) MessageBird(w http.ResponseWriter, r *http.Request) {
	ev, err := webhook.ParseMessageBird(r.URL.Query())
	if err != nil {
		response.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.enqueue(w, r, []*webhook.Event{ev})
}

// Test godoc
// @Summary     Test sink event
// @Description Posts one mandrill-shaped event for a message sent by a test method.
// @Tags        webhook
// @Accept      json
// @Produce     json
// @Success     200 {object} response.JSONResponse
// @Failure     400 {object} response.JSONResponse
// @Router      /webhook/test/ [post]
func (h *WebhookHandler) Test(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxWebhookBody))
	if err != nil {
		response.RespondError(w, http.StatusBadRequest, "could not read request body")
		return
	}
	ev, err := webhook.ParseTest(body)
	if err != nil {
		response.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.enqueue(w, r, []*webhook.Event{ev})
}

func (h *WebhookHandler) enqueue(w http.ResponseWriter, r *http.Request, events []*webhook.Event) {
	if err := h.sink.Enqueue(r.Context(), events); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		h.log.Error().Err(err).Int("events", len(events)).Msg("failed to queue events")
		response.RespondError(w, http.StatusServiceUnavailable, "could not queue events")
		return
	}
	response.RespondJSON(w, http.StatusOK, response.WebhookPayload{Events: len(events)})
}
