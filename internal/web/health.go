package web

import (
	"context"
	"net/http"
	"time"

	"github.com/donbabahmcts/hmcts-case-task-management-system-frontend/internal/circuitbreaker"
	"github.com/donbabahmcts/hmcts-case-task-management-system-frontend/internal/httputil"
)

// handleHealth returns detailed component health status
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	components := map[string]string{
		"circuit": s.deps.Backend.BreakerState().String(),
	}
	status := "ok"
	if err := s.deps.Backend.Health(ctx); err != nil {
		components["backend"] = "unreachable"
		status = "degraded"
		httputil.GetLogger(r.Context()).Warn().Err(err).Msg("backend health check failed")
	} else {
		components["backend"] = "ok"
	}
	if s.deps.Backend.BreakerState() != circuitbreaker.StateClosed {
		status = "degraded"
	}

	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	httputil.WriteJSON(w, code, map[string]any{
		"status":     status,
		"components": components,
	})
}
