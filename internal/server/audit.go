package server

import (
	"context"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/xela07ax/council-autonomy-gate/internal/audit"
)

// AuditService — выборка событий из журнала решений
type AuditService interface {
	QueryEvents(ctx context.Context, agentID string, limit int) ([]audit.DecisionEvent, error)
}

type AuditHandler struct {
	service AuditService
	logger  *zap.Logger
}

func NewAuditHandler(s AuditService, logger *zap.Logger) *AuditHandler {
	return &AuditHandler{service: s, logger: logger.Named("audit")}
}

// GetEvents — последние события аудита, опционально по одному агенту
// (?agent_id=...&limit=...)
func (h *AuditHandler) GetEvents(w http.ResponseWriter, r *http.Request) {
	agentID := r.URL.Query().Get("agent_id")

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			http.Error(w, "limit must be a non-negative integer", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	events, err := h.service.QueryEvents(r.Context(), agentID, limit)
	if err != nil {
		h.logger.Error("audit query failed", zap.Error(err))
		http.Error(w, "audit query failed", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, events)
}
