package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/oggyb/courier/internal/domain/message"
	"github.com/oggyb/courier/internal/provider"
	"github.com/oggyb/courier/internal/request"
	"github.com/oggyb/courier/internal/response"
	"github.com/oggyb/courier/internal/service"
	"github.com/rs/zerolog"
)

// AccountManager provisions and removes companies.
type AccountManager interface {
	CreateSubaccount(ctx context.Context, method message.SendMethod, code, name string) (*service.SubaccountResult, error)
	DeleteSubaccount(ctx context.Context, method message.SendMethod, code string) (*message.CompanyPurge, error)
}

// AccountHandler serves the operator endpoints for company subaccounts.
type AccountHandler struct {
	svc AccountManager
	log zerolog.Logger
}

func NewAccountHandler(svc AccountManager, log zerolog.Logger) *AccountHandler {
	return &AccountHandler{
		svc: svc,
		log: log.With().Str("component", "account_handler").Logger(),
	}
}

// CreateSubaccount godoc
// @Summary     Create subaccount
// @Description Creates the provider subaccount for a company. An existing Mandrill subaccount is reused if it has sent at most 100 emails.
// @Tags        accounts
// @Accept      json
// @Produce     json
// @Security    ServiceKey
// @Param       method  path string                     true "send method"
// @Param       request body request.SubaccountRequest true "company"
// @Success     200 {object} response.SubaccountResponse "reused or not required"
// @Success     201 {object} response.SubaccountResponse
// @Failure     400 {object} response.JSONResponse
// @Failure     401 {object} response.JSONResponse
// @Failure     409 {object} response.JSONResponse
// @Failure     503 {object} response.JSONResponse
// @Router      /create-subaccount/{method}/ [post]
func (h *AccountHandler) CreateSubaccount(w http.ResponseWriter, r *http.Request) {
	method, req, ok := h.decode(w, r)
	if !ok {
		return
	}

	res, err := h.svc.CreateSubaccount(r.Context(), method, req.CompanyCode, req.CompanyName)
	if err != nil {
		h.respondError(w, err)
		return
	}

	payload := response.SubaccountPayload{
		Method:      string(method),
		CompanyCode: req.CompanyCode,
		Outcome:     string(res.Outcome),
		SentTotal:   res.SentTotal,
	}
	status := http.StatusOK
	switch res.Outcome {
	case service.SubaccountCreated:
		status = http.StatusCreated
		payload.Message = fmt.Sprintf("subaccount %q created", req.CompanyCode)
	case service.SubaccountReused:
		payload.Message = fmt.Sprintf("subaccount %q already exists with %d emails sent, reuse permitted", req.CompanyCode, res.SentTotal)
	default:
		payload.Message = fmt.Sprintf("no subaccount creation required for %q", method)
	}
	response.RespondJSON(w, status, payload)
}

// DeleteSubaccount godoc
// @Summary     Delete subaccount
// @Description Deletes every company whose code starts with company_code, with all their groups, messages and events, then removes the Mandrill subaccount.
// @Tags        accounts
// @Accept      json
// @Produce     json
// @Security    ServiceKey
// @Param       method  path string                     true "send method"
// @Param       request body request.SubaccountRequest true "company"
// @Success     200 {object} response.PurgeResponse
// @Failure     400 {object} response.JSONResponse
// @Failure     401 {object} response.JSONResponse
// @Failure     404 {object} response.JSONResponse
// @Failure     503 {object} response.JSONResponse
// @Router      /delete-subaccount/{method}/ [post]
func (h *AccountHandler) DeleteSubaccount(w http.ResponseWriter, r *http.Request) {
	method, req, ok := h.decode(w, r)
	if !ok {
		return
	}

	purge, err := h.svc.DeleteSubaccount(r.Context(), method, req.CompanyCode)
	if err != nil {
		h.respondError(w, err)
		return
	}
	response.RespondJSON(w, http.StatusOK, response.PurgePayload{
		Message:   fmt.Sprintf("deleted_messages=%d deleted_message_groups=%d", purge.Messages, purge.Groups),
		Companies: purge.Companies,
		Groups:    purge.Groups,
		Messages:  purge.Messages,
	})
}

func (h *AccountHandler) decode(w http.ResponseWriter, r *http.Request) (message.SendMethod, *request.SubaccountRequest, bool) {
	method, ok := pathMethod(w, r)
	if !ok {
		return "", nil, false
	}

	var req request.SubaccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.RespondError(w, http.StatusBadRequest, "invalid JSON body")
		return "", nil, false
	}
	req.CompanyCode = strings.TrimSpace(req.CompanyCode)
	switch {
	case req.CompanyCode == "":
		response.RespondError(w, http.StatusBadRequest, "company_code is required")
		return "", nil, false
	case utf8.RuneCountInString(req.CompanyCode) > message.MaxCompanyCodeLength:
		response.RespondError(w, http.StatusBadRequest, fmt.Sprintf("company_code must be at most %d characters", message.MaxCompanyCodeLength))
		return "", nil, false
	}
	return method, &req, true
}

func (h *AccountHandler) respondError(w http.ResponseWriter, err error) {
	var inUse *provider.SubaccountInUseError
	var apiErr *provider.APIError
	switch {
	case errors.Is(err, service.ErrSubaccountsUnavailable):
		response.RespondError(w, http.StatusServiceUnavailable, err.Error())
	case errors.As(err, &inUse):
		response.RespondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, provider.ErrUnknownSubaccount):
		response.RespondError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &apiErr):
		h.log.Warn().Err(err).Msg("provider refused subaccount change")
		response.RespondError(w, http.StatusBadRequest, err.Error())
	default:
		h.log.Error().Err(err).Msg("subaccount change failed")
		response.RespondError(w, http.StatusInternalServerError, "internal error")
	}
}
