package handler

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/oggyb/courier/internal/domain/message"
	"github.com/oggyb/courier/internal/response"
	"github.com/rs/zerolog"
)

// Clicker resolves tracking tokens.
type Clicker interface {
	Click(ctx context.Context, token, ip, userAgent, fallback string) (string, error)
}

// ClickHandler redirects tracked links to their target.
type ClickHandler struct {
	svc Clicker
	log zerolog.Logger
}

func NewClickHandler(svc Clicker, log zerolog.Logger) *ClickHandler {
	return &ClickHandler{svc: svc, log: log.With().Str("component", "click_handler").Logger()}
}

// Redirect godoc
// @Summary     Follow a tracked link
// @Description Records a click on the message and redirects to the original URL.
// @Tags        tracking
// @Param       token path  string true  "link token"
// @Param       u     query string false "base64 fallback target"
// @Success     307
// @Failure     404 {object} response.JSONResponse
// @Router      /l/{token} [get]
func (h *ClickHandler) Redirect(w http.ResponseWriter, r *http.Request) {
	token := r.PathValue("token")

	target, err := h.svc.Click(r.Context(), token, clientIP(r), r.UserAgent(), r.URL.Query().Get("u"))
	if errors.Is(err, message.ErrNotFound) {
		response.RespondError(w, http.StatusNotFound, "link not found")
		return
	}
	if err != nil {
		h.log.Error().Err(err).Str("token", token).Msg("click lookup failed")
		response.RespondError(w, http.StatusInternalServerError, "internal error")
		return
	}

	http.Redirect(w, r, target, http.StatusTemporaryRedirect)
}

// clientIP prefers the first X-Forwarded-For hop.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
