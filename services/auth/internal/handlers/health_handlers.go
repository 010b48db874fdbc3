package handlers

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/diagnosis/carbonmrv/internal/http/response"
	"github.com/diagnosis/carbonmrv/pkg/logger"
)

const healthTimeout = 2 * time.Second

// HealthCheck pings every configured dependency and answers 503 if any fails.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status := "ok"
	code := http.StatusOK
	services := make(map[string]string, len(names))
	for _, name := range names {
		if err := h.checks[name].Ping(ctx); err != nil {
			logger.WarnContext(r.Context(), "Health check failed", "check", name, "error", err)
			services[name] = "error"
			status = "degraded"
			code = http.StatusServiceUnavailable
			continue
		}
		services[name] = "ok"
	}

	response.JSON(w, code, map[string]interface{}{
		"status":      status,
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
		"environment": h.config.App.Env,
		"services":    services,
	})
}

func (h *Handlers) Ping(w http.ResponseWriter, r *http.Request) {
	msg := h.config.App.PingMessage
	if msg == "" {
		msg = "ping"
	}
	response.JSON(w, http.StatusOK, map[string]string{"message": msg})
}
