package server

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/xela07ax/council-autonomy-gate/internal/domain"
)

// StatusService отдает агрегированную сводку шлюза
type StatusService interface {
	Status() domain.AutonomyStatus
}

type StatusHandler struct {
	service StatusService
	logger  *zap.Logger
}

func NewStatusHandler(s StatusService, logger *zap.Logger) *StatusHandler {
	return &StatusHandler{service: s, logger: logger.Named("status")}
}

func (h *StatusHandler) Get(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.service.Status())
}
