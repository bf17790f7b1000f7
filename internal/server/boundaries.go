package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xela07ax/council-autonomy-gate/internal/domain"
)

// BoundaryService Описываем, что нам нужно от реестра границ
type BoundaryService interface {
	Snapshot() []*domain.SafetyBoundary
	Get(id string) (*domain.SafetyBoundary, bool)
	Add(ctx context.Context, b *domain.SafetyBoundary) error
	Update(ctx context.Context, b *domain.SafetyBoundary) error
	Toggle(ctx context.Context, id string, active bool) error
}

type BoundaryHandler struct {
	registry BoundaryService
	logger   *zap.Logger
}

func NewBoundaryHandler(registry BoundaryService, logger *zap.Logger) *BoundaryHandler {
	return &BoundaryHandler{registry: registry, logger: logger.Named("boundaries")}
}

func (h *BoundaryHandler) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.registry.Snapshot())
}

func (h *BoundaryHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	b, ok := h.registry.Get(id)
	if !ok {
		http.Error(w, "boundary not found", http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, b)
}

type boundaryBody struct {
	Name                 string   `json:"name"`
	Description          string   `json:"description"`
	OperationTypes       []string `json:"operation_types"`
	MaxCostThreshold     float64  `json:"max_cost_threshold"`
	MaxTimeThreshold     int      `json:"max_time_threshold"`
	RequiresApproval     bool     `json:"requires_approval"`
	AllowedDomains       []string `json:"allowed_domains"`
	BlockedActions       []string `json:"blocked_actions"`
	EscalationTriggers   []string `json:"escalation_triggers"`
	EscalationRecipients []string `json:"escalation_recipients"`
}

func (b boundaryBody) toDomain(id string) (*domain.SafetyBoundary, error) {
	types := make([]domain.OperationType, 0, len(b.OperationTypes))
	for _, raw := range b.OperationTypes {
		t, err := domain.ParseOperationType(raw)
		if err != nil {
			return nil, err
		}
		types = append(types, t)
	}

	triggers := make([]domain.EscalationTrigger, 0, len(b.EscalationTriggers))
	for _, raw := range b.EscalationTriggers {
		triggers = append(triggers, domain.EscalationTrigger(raw))
	}

	return &domain.SafetyBoundary{
		ID:                   id,
		Name:                 b.Name,
		Description:          b.Description,
		OperationTypes:       types,
		MaxCostThreshold:     b.MaxCostThreshold,
		MaxTimeThreshold:     b.MaxTimeThreshold,
		RequiresApproval:     b.RequiresApproval,
		AllowedDomains:       b.AllowedDomains,
		BlockedActions:       b.BlockedActions,
		EscalationTriggers:   triggers,
		EscalationRecipients: b.EscalationRecipients,
		Active:               true,
		UpdatedAt:            time.Now(),
	}, nil
}

// Create регистрирует новую границу и раскатывает ее на все инстансы
func (h *BoundaryHandler) Create(w http.ResponseWriter, r *http.Request) {
	var body boundaryBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if body.Name == "" || len(body.OperationTypes) == 0 {
		http.Error(w, "name and operation_types are required", http.StatusBadRequest)
		return
	}

	b, err := body.toDomain(uuid.NewString())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	b.CreatedAt = time.Now()

	if err := h.registry.Add(r.Context(), b); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	h.logger.Info("boundary created", zap.String("boundary_id", b.ID), zap.String("name", b.Name))
	writeJSON(w, http.StatusCreated, b)
}

func (h *BoundaryHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	existing, ok := h.registry.Get(id)
	if !ok {
		http.Error(w, "boundary not found", http.StatusNotFound)
		return
	}

	var body boundaryBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	b, err := body.toDomain(id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	b.Active = existing.Active
	b.CreatedAt = existing.CreatedAt

	if err := h.registry.Update(r.Context(), b); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, b)
}

type toggleBody struct {
	Active bool `json:"active"`
}

// Toggle — включение/выключение без удаления: история решений по границе
// остается валидной
func (h *BoundaryHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var body toggleBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.registry.Toggle(r.Context(), id, body.Active); err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	h.logger.Info("boundary toggled",
		zap.String("boundary_id", id),
		zap.Bool("active", body.Active))
	w.WriteHeader(http.StatusNoContent)
}
