package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/oggyb/courier/internal/render"
	"github.com/oggyb/courier/internal/request"
	"github.com/oggyb/courier/internal/response"
)

// MaxNumbers caps one validation batch.
const MaxNumbers = 10000

// NumberHandler checks phone numbers before a client sends to them.
type NumberHandler struct{}

func NewNumberHandler() *NumberHandler {
	return &NumberHandler{}
}

// ValidateSMS godoc
// @Summary     Validate numbers
// @Description Parses a batch of phone numbers. Each key maps to the parsed number, or null when it is not a valid number.
// @Tags        sms
// @Accept      json
// @Produce     json
// @Security    ServiceKey
// @Param       request body request.NumbersRequest true "numbers keyed by caller id, country_code defaults to GB"
// @Success     200 {object} response.NumbersResponse
// @Failure     400 {object} response.JSONResponse
// @Failure     401 {object} response.JSONResponse
// @Router      /validate/sms/ [get]
func (h *NumberHandler) ValidateSMS(w http.ResponseWriter, r *http.Request) {
	var req request.NumbersRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.RespondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := req.Normalize(); err != nil {
		response.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.Numbers) > MaxNumbers {
		response.RespondError(w, http.StatusBadRequest, "at most "+strconv.Itoa(MaxNumbers)+" numbers per request")
		return
	}

	out := make(map[string]*response.NumberDTO, len(req.Numbers))
	for key, raw := range req.Numbers {
		n, err := render.ParseNumber(raw, req.CountryCode)
		if err != nil {
			out[strconv.Itoa(key)] = nil
			continue
		}
		out[strconv.Itoa(key)] = &response.NumberDTO{
			Number:      n.E164,
			CountryCode: n.CountryCode,
			Formatted:   n.Formatted,
			Region:      n.Region,
			Mobile:      n.Mobile,
		}
	}
	response.RespondJSON(w, http.StatusOK, out)
}
