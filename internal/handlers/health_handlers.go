package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/qcom/accounts/internal/lazy"
	"github.com/sirupsen/logrus"
)

// Pinger checks a backend dependency.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

type HealthHandlers struct {
	checks map[string]Pinger
	mailer interface{ State() lazy.State }
	logger *logrus.Logger
}

func NewHealthHandlers(checks map[string]Pinger, mailer interface{ State() lazy.State }, logger *logrus.Logger) *HealthHandlers {
	return &HealthHandlers{checks: checks, mailer: mailer, logger: logger}
}

type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

func (h *HealthHandlers) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := HealthResponse{Status: "ok", Checks: make(map[string]string, len(h.checks)+1)}
	for name, check := range h.checks {
		if err := check.Ping(ctx); err != nil {
			h.logger.WithError(err).WithField("check", name).Warn("Health check failed")
			resp.Checks[name] = "unavailable"
			resp.Status = "degraded"
			continue
		}
		resp.Checks[name] = "ok"
	}

	if h.mailer != nil {
		state := h.mailer.State()
		resp.Checks["email"] = state.String()
		if state == lazy.Unavailable {
			resp.Status = "degraded"
		}
	}

	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	respondWithJSON(w, status, resp)
}
