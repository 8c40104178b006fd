package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/oggyb/courier/internal/domain/message"
	"github.com/oggyb/courier/internal/request"
	"github.com/oggyb/courier/internal/response"
	"github.com/oggyb/courier/internal/service"
	"github.com/rs/zerolog"
)

// Querier is the read side of the store.
type Querier interface {
	Search(ctx context.Context, company string, f message.SearchFilter) (*service.Page, error)
	Message(ctx context.Context, company string, method message.SendMethod, id uint) (*service.MessageDetail, error)
	Group(ctx context.Context, id uuid.UUID) (*service.GroupSummary, error)
	Stats(ctx context.Context, company string, f message.AggregateFilter) (*message.Aggregate, error)
	Billing(ctx context.Context, company string, method message.SendMethod, start, end time.Time) (*service.Billing, error)
}

// QueryHandler serves message listings, details and aggregates.
type QueryHandler struct {
	svc Querier
	now func() time.Time
	log zerolog.Logger
}

func NewQueryHandler(svc Querier, log zerolog.Logger) *QueryHandler {
	return &QueryHandler{
		svc: svc,
		now: time.Now,
		log: log.With().Str("component", "query_handler").Logger(),
	}
}

// ListMessages godoc
// @Summary     List messages
// @Description Pages through a company's messages, newest first. With q the results are ranked by full-text relevance.
// @Tags        messages
// @Produce     json
// @Security    ServiceKey
// @Param       method  path  string true  "send method"
// @Param       company query string true  "company code"
// @Param       q       query string false "full-text query"
// @Param       tags    query string false "comma separated tags, all must match"
// @Param       offset  query int    false "offset" default(0)
// @Param       limit   query int    false "page size (max 1000)" default(100)
// @Success     200 {object} response.MessagesResponse
// @Failure     400 {object} response.JSONResponse
// @Failure     401 {object} response.JSONResponse
// @Router      /messages/{method}/ [get]
func (h *QueryHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	method, ok := pathMethod(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	company := strings.TrimSpace(q.Get("company"))
	if company == "" {
		response.RespondError(w, http.StatusBadRequest, "company is required")
		return
	}

	offset, limit := request.Paging(q)
	page, err := h.svc.Search(r.Context(), company, message.SearchFilter{
		Method: method,
		Tags:   request.Tags(q),
		Query:  strings.TrimSpace(q.Get("q")),
		Offset: offset,
		Limit:  limit,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}

	response.RespondJSON(w, http.StatusOK, response.MessagesPayload{
		Items:  response.FromDomainMessages(page.Items),
		Total:  page.Total,
		Offset: offset,
		Limit:  limit,
	})
}

// GetMessage godoc
// @Summary     Get message
// @Description Returns one message with its most recent delivery events.
// @Tags        messages
// @Produce     json
// @Security    ServiceKey
// @Param       method  path  string true "send method"
// @Param       id      path  int    true "message id"
// @Param       company query string true "company code"
// @Success     200 {object} response.MessageDetailResponse
// @Failure     400 {object} response.JSONResponse
// @Failure     404 {object} response.JSONResponse
// @Router      /messages/{method}/{id}/ [get]
func (h *QueryHandler) GetMessage(w http.ResponseWriter, r *http.Request) {
	method, ok := pathMethod(w, r)
	if !ok {
		return
	}
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil || id == 0 {
		response.RespondError(w, http.StatusBadRequest, "id must be a positive integer")
		return
	}
	company := strings.TrimSpace(r.URL.Query().Get("company"))
	if company == "" {
		response.RespondError(w, http.StatusBadRequest, "company is required")
		return
	}

	detail, err := h.svc.Message(r.Context(), company, method, uint(id))
	if err != nil {
		h.respondError(w, err)
		return
	}
	response.RespondJSON(w, http.StatusOK, response.FromMessageDetail(detail))
}

// GetGroup godoc
// @Summary     Get group
// @Description Returns a send group with its messages counted by status.
// @Tags        groups
// @Produce     json
// @Security    ServiceKey
// @Param       uuid path string true "group uuid"
// @Success     200 {object} response.GroupResponse
// @Failure     400 {object} response.JSONResponse
// @Failure     404 {object} response.JSONResponse
// @Router      /groups/{uuid}/ [get]
func (h *QueryHandler) GetGroup(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("uuid"))
	if err != nil {
		response.RespondError(w, http.StatusBadRequest, "uuid is malformed")
		return
	}

	summary, err := h.svc.Group(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	response.RespondJSON(w, http.StatusOK, response.FromGroupSummary(summary))
}

// Stats godoc
// @Summary     Message stats
// @Description Counts a company's messages and sums their cost per status over a send-time window.
// @Tags        analytics
// @Produce     json
// @Security    ServiceKey
// @Param       method  path  string true  "send method"
// @Param       company path  string true  "company code"
// @Param       start   query string false "window start (RFC 3339 or date), default start of month"
// @Param       end     query string false "window end (RFC 3339 or date), default now"
// @Param       status  query string false "comma separated statuses"
// @Success     200 {object} response.StatsResponse
// @Failure     400 {object} response.JSONResponse
// @Router      /stats/{method}/{company}/ [get]
func (h *QueryHandler) Stats(w http.ResponseWriter, r *http.Request) {
	method, ok := pathMethod(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	start, end, err := request.Window(q, h.now())
	if err != nil {
		response.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	statuses, err := request.Statuses(q)
	if err != nil {
		response.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	agg, err := h.svc.Stats(r.Context(), r.PathValue("company"), message.AggregateFilter{
		Method:   method,
		Start:    start,
		End:      end,
		Statuses: statuses,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}

	response.RespondJSON(w, http.StatusOK, response.StatsPayload{
		Start:     start,
		End:       end,
		Total:     agg.Total,
		TotalCost: agg.TotalCost,
		ByStatus:  response.FromStatusCounts(agg.ByStatus),
	})
}

// Billing godoc
// @Summary     Billing
// @Description Sums a company's spend on one send method over a window.
// @Tags        analytics
// @Produce     json
// @Security    ServiceKey
// @Param       method  path  string true  "send method"
// @Param       company path  string true  "company code"
// @Param       start   query string false "window start (RFC 3339 or date), default start of month"
// @Param       end     query string false "window end (RFC 3339 or date), default now"
// @Success     200 {object} response.BillingResponse
// @Failure     400 {object} response.JSONResponse
// @Router      /billing/{method}/{company}/ [get]
func (h *QueryHandler) Billing(w http.ResponseWriter, r *http.Request) {
	method, ok := pathMethod(w, r)
	if !ok {
		return
	}
	start, end, err := request.Window(r.URL.Query(), h.now())
	if err != nil {
		response.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	company := r.PathValue("company")
	b, err := h.svc.Billing(r.Context(), company, method, start, end)
	if err != nil {
		h.respondError(w, err)
		return
	}

	response.RespondJSON(w, http.StatusOK, response.BillingPayload{
		Company: company,
		Method:  string(method),
		Start:   b.Start,
		End:     b.End,
		Spend:   b.Spend,
	})
}

func pathMethod(w http.ResponseWriter, r *http.Request) (message.SendMethod, bool) {
	method, err := message.ParseSendMethod(r.PathValue("method"))
	if err != nil {
		response.RespondError(w, http.StatusBadRequest, err.Error())
		return "", false
	}
	return method, true
}

func (h *QueryHandler) respondError(w http.ResponseWriter, err error) {
	if errors.Is(err, message.ErrNotFound) {
		response.RespondError(w, http.StatusNotFound, "not found")
		return
	}
	h.log.Error().Err(err).Msg("query failed")
	response.RespondError(w, http.StatusInternalServerError, "internal error")
}
