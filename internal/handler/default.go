package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/oggyb/courier/internal/response"
)

// Pinger is a dependency the health check pings.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HomeHandler serves basic root, health and ping endpoints.
type HomeHandler struct {
	checks map[string]Pinger
}

// NewHomeHandler returns a new HomeHandler probing the given dependencies.
func NewHomeHandler(checks map[string]Pinger) *HomeHandler {
	return &HomeHandler{checks: checks}
}

// Index godoc
// @Summary     Welcome endpoint
// @Description Simple root endpoint that returns a welcome message.
// @Tags        home
// @Produce     json
// @Success     200 {object} response.WelcomeResponse
// @Router      / [get]
func (h *HomeHandler) Index(w http.ResponseWriter, r *http.Request) {
	payload := response.WelcomePayload{
		Message: "courier: transactional email and SMS",
	}

	response.RespondJSON(w, http.StatusOK, payload)
}

// Health godoc
// @Summary     Health check
// @Description Pings the database and redis. Responds 503 if any of them is down.
// @Tags        home
// @Produce     json
// @Success     200 {object} response.HealthResponse
// @Failure     503 {object} response.HealthResponse
// @Router      /health [get]
func (h *HomeHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	payload := response.HealthPayload{Status: "ok"}
	status := http.StatusOK

	if len(h.checks) > 0 {
		payload.Checks = make(map[string]string, len(h.checks))
	}
	for name, p := range h.checks {
		if err := p.Ping(ctx); err != nil {
			payload.Checks[name] = err.Error()
			payload.Status = "degraded"
			status = http.StatusServiceUnavailable
			continue
		}
		payload.Checks[name] = "ok"
	}

	response.RespondJSON(w, status, payload)
}
