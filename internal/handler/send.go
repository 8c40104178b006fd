package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/oggyb/courier/internal/ingest"
	"github.com/oggyb/courier/internal/metrics"
	"github.com/oggyb/courier/internal/response"
	"github.com/oggyb/courier/internal/service"
	"github.com/rs/zerolog"
)

// MaxSendBody caps an ingestion request body.
const MaxSendBody = 32 << 20

// Submitter queues a validated send request.
type Submitter interface {
	Submit(ctx context.Context, req *ingest.Request) (*service.Accepted, error)
}

// SendHandler is the ingestion surface: signed msgpack requests in, a
// group acknowledgement out.
type SendHandler struct {
	gate *ingest.Gate
	svc  Submitter
	log  zerolog.Logger
}

func NewSendHandler(gate *ingest.Gate, svc Submitter, log zerolog.Logger) *SendHandler {
	return &SendHandler{
		gate: gate,
		svc:  svc,
		log:  log.With().Str("component", "send_handler").Logger(),
	}
}

// SendEmail godoc
// @Summary     Send email
// @Description Accepts a signed msgpack send group for an email method.
// @Tags        send
// @Accept      application/msgpack
// @Produce     json
// @Param       X-Courier-Signature header string true "hex HMAC-SHA256 of the body"
// @Success     201 {object} response.AcceptedResponse
// @Failure     400 {object} response.JSONResponse
// @Failure     403 {object} response.JSONResponse
// @Failure     409 {object} response.JSONResponse
// @Router      /send/email/ [post]
func (h *SendHandler) SendEmail(w http.ResponseWriter, r *http.Request) {
	h.send(w, r, ingest.ChannelEmail)
}

// SendSMS godoc
// @Summary     Send SMS
// @Description Accepts a signed msgpack send group for an SMS method.
// @Tags        send
// @Accept      application/msgpack
// @Produce     json
// @Param       X-Courier-Signature header string true "hex HMAC-SHA256 of the body"
// @Success     201 {object} response.AcceptedResponse
// @Failure     400 {object} response.JSONResponse
// @Failure     402 {object} response.JSONResponse
// @Failure     403 {object} response.JSONResponse
// @Failure     409 {object} response.JSONResponse
// @Router      /send/sms/ [post]
func (h *SendHandler) SendSMS(w http.ResponseWriter, r *http.Request) {
	h.send(w, r, ingest.ChannelSMS)
}

func (h *SendHandler) send(w http.ResponseWriter, r *http.Request, channel ingest.Channel) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxSendBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.RespondError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		response.RespondError(w, http.StatusBadRequest, "could not read request body")
		return
	}

	req, err := h.gate.Open(body, r.Header.Get(ingest.SignatureHeader), channel)
	if err != nil {
		h.respondError(w, err)
		return
	}

	accepted, err := h.svc.Submit(r.Context(), req)
	if err != nil {
		h.respondError(w, err)
		return
	}

	response.RespondJSON(w, http.StatusCreated, response.AcceptedPayload{
		UID:        accepted.UUID.String(),
		Method:     string(accepted.Method),
		Recipients: accepted.Recipients,
	})
}

func (h *SendHandler) respondError(w http.ResponseWriter, err error) {
	var (
		authErr  *ingest.AuthenticationError
		validErr *ingest.ValidationError
		costErr  *service.CostLimitError
	)

	switch {
	case errors.As(err, &authErr):
		metrics.GroupsRejected.WithLabelValues("auth").Inc()
		response.RespondError(w, http.StatusForbidden, authErr.Error())
	case errors.As(err, &validErr):
		metrics.GroupsRejected.WithLabelValues("validation").Inc()
		response.RespondErrorDetails(w, http.StatusBadRequest, "invalid request", validErr.Problems)
	case errors.Is(err, service.ErrDuplicateGroup):
		response.RespondError(w, http.StatusConflict, err.Error())
	case errors.As(err, &costErr):
		response.RespondError(w, http.StatusPaymentRequired, costErr.Error())
	default:
		h.log.Error().Err(err).Msg("submit failed")
		response.RespondError(w, http.StatusInternalServerError, "internal error")
	}
}
