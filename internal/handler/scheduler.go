package handler

import (
	"encoding/json"
	"net/http"

	"github.com/oggyb/courier/internal/request"
	"github.com/oggyb/courier/internal/response"
	"github.com/oggyb/courier/internal/scheduler"
)

// SchedulerHandler controls the background maintenance scheduler.
type SchedulerHandler struct {
	schSvc scheduler.SchedulerService
}

func NewSchedulerHandler(schSvc scheduler.SchedulerService) *SchedulerHandler {
	return &SchedulerHandler{schSvc: schSvc}
}

// StartStopScheduler godoc
// @Summary     Control scheduler
// @Description Starts or stops the queue sweeper based on the given action.
// @Tags        scheduler
// @Accept      json
// @Produce     json
// @Security    ServiceKey
// @Param       request body request.SchedulerRequest true "Scheduler action (start|stop)"
// @Success     200 {object} response.SchedulerControlResponse
// @Failure     400 {object} response.JSONResponse
// @Failure     401 {object} response.JSONResponse
// @Router      /scheduler [post]
func (h *SchedulerHandler) StartStopScheduler(w http.ResponseWriter, r *http.Request) {
	var req request.SchedulerRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.RespondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	switch req.Action {
	case "start":
		if err := h.schSvc.Start(); err != nil {
			response.RespondError(w, http.StatusBadRequest, err.Error())
			return
		}

		payload := response.SchedulerControlPayload{
			Message: "scheduler started",
			Running: h.schSvc.IsRunning(),
		}
		response.RespondJSON(w, http.StatusOK, payload)

	case "stop":
		if err := h.schSvc.Stop(); err != nil {
			response.RespondError(w, http.StatusBadRequest, err.Error())
			return
		}

		payload := response.SchedulerControlPayload{
			Message: "scheduler stopped",
			Running: h.schSvc.IsRunning(),
		}
		response.RespondJSON(w, http.StatusOK, payload)

	default:
		response.RespondError(w, http.StatusBadRequest, "action must be 'start' or 'stop'")
	}
}
