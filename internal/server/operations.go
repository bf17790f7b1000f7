package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/xela07ax/council-autonomy-gate/internal/admission"
	"github.com/xela07ax/council-autonomy-gate/internal/domain"
	"github.com/xela07ax/council-autonomy-gate/internal/infra/auth"
)

// AdmissionService Описываем, что нам нужно от контроллера допуска
type AdmissionService interface {
	RequestOperation(ctx context.Context, req admission.Request) (*domain.Operation, error)
	ApproveOperation(ctx context.Context, operationID, approver string) error
	RejectOperation(ctx context.Context, operationID, rejector, reason string) (bool, error)
	GetOperation(operationID string) (*domain.Operation, bool)
	ListPending(status domain.ApprovalStatus) []*domain.Operation
}

type OperationHandler struct {
	service AdmissionService
	logger  *zap.Logger
}

func NewOperationHandler(s AdmissionService, logger *zap.Logger) *OperationHandler {
	return &OperationHandler{service: s, logger: logger.Named("operations")}
}

type requestOperationBody struct {
	AgentID           string   `json:"agent_id"`
	OperationType     string   `json:"operation_type"`
	Description       string   `json:"description"`
	RequestedActions  []string `json:"requested_actions"`
	EstimatedCost     float64  `json:"estimated_cost"`
	EstimatedDuration int      `json:"estimated_duration"`
}

// Request — агент декларирует операцию и получает вердикт шлюза
func (h *OperationHandler) Request(w http.ResponseWriter, r *http.Request) {
	var body requestOperationBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	op, err := h.service.RequestOperation(r.Context(), admission.Request{
		AgentID:           body.AgentID,
		Type:              domain.OperationType(body.OperationType),
		Description:       body.Description,
		RequestedActions:  body.RequestedActions,
		EstimatedCost:     body.EstimatedCost,
		EstimatedDuration: body.EstimatedDuration,
	})
	if err != nil {
		if errors.Is(err, domain.ErrUnknownOperationType) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	writeJSON(w, http.StatusCreated, op)
}

func (h *OperationHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	op, ok := h.service.GetOperation(id)
	if !ok {
		http.Error(w, "operation not found", http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, op)
}

func (h *OperationHandler) List(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status") // Достаем из ?status=...
	if status == "" {
		status = string(domain.ApprovalPending) // Дефолт для удобства консоли
	}

	list := h.service.ListPending(domain.ApprovalStatus(status))
	writeJSON(w, http.StatusOK, list)
}

// Approve — ручное решение оператора по pending/escalated операции
func (h *OperationHandler) Approve(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	reviewerID := auth.UserIDFromContext(r.Context())

	if err := h.service.ApproveOperation(r.Context(), id, reviewerID); err != nil {
		switch {
		case errors.Is(err, domain.ErrOperationNotFound):
			http.Error(w, err.Error(), http.StatusNotFound)
		case errors.Is(err, domain.ErrAlreadyDecided):
			http.Error(w, err.Error(), http.StatusConflict)
		default:
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type rejectBody struct {
	Reason string `json:"reason"`
}

// Reject — повторное отклонение не ошибка: вердикт уже зафиксирован,
// отвечаем 200 с rejected=false
func (h *OperationHandler) Reject(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	reviewerID := auth.UserIDFromContext(r.Context())

	var body rejectBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if body.Reason == "" {
		http.Error(w, "reason is required", http.StatusBadRequest)
		return
	}

	rejected, err := h.service.RejectOperation(r.Context(), id, reviewerID, body.Reason)
	if err != nil {
		if errors.Is(err, domain.ErrOperationNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"rejected": rejected})
}
