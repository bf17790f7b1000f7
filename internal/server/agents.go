package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/xela07ax/council-autonomy-gate/internal/domain"
)

// TrustService Описываем, что нам нужно от хранилища профилей доверия
type TrustService interface {
	Register(ctx context.Context, agentID, agentName string, initial domain.PermissionLevel) *domain.TrustProfile
	Get(agentID string) (*domain.TrustProfile, bool)
	SetPermission(ctx context.Context, agentID string, level domain.PermissionLevel) error
	RecordViolation(ctx context.Context, agentID string, kind domain.ViolationKind, description string) error
}

// SuspensionService — рубильник автономии агента
type SuspensionService interface {
	IsSuspended(agentID string) bool
	Suspend(ctx context.Context, agentID string) error
	Reinstate(ctx context.Context, agentID string) error
}

type AgentHandler struct {
	trust      TrustService
	suspension SuspensionService
	logger     *zap.Logger
}

func NewAgentHandler(trust TrustService, suspension SuspensionService, logger *zap.Logger) *AgentHandler {
	return &AgentHandler{trust: trust, suspension: suspension, logger: logger.Named("agents")}
}

type registerAgentBody struct {
	AgentID         string `json:"agent_id"`
	AgentName       string `json:"agent_name"`
	PermissionLevel string `json:"permission_level"`
}

// Register создает профиль доверия. Повторная регистрация идемпотентна:
// существующий профиль не затирается
func (h *AgentHandler) Register(w http.ResponseWriter, r *http.Request) {
	var body registerAgentBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if body.AgentID == "" {
		http.Error(w, "agent_id is required", http.StatusBadRequest)
		return
	}

	level := domain.PermLimitedAction
	if body.PermissionLevel != "" {
		parsed, err := domain.ParsePermissionLevel(body.PermissionLevel)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		level = parsed
	}

	profile := h.trust.Register(r.Context(), body.AgentID, body.AgentName, level)
	writeJSON(w, http.StatusCreated, profile)
}

type trustView struct {
	*domain.TrustProfile
	Suspended bool `json:"suspended"`
}

func (h *AgentHandler) GetTrust(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	profile, ok := h.trust.Get(id)
	if !ok {
		http.Error(w, "agent not found", http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, trustView{
		TrustProfile: profile,
		Suspended:    h.suspension.IsSuspended(id),
	})
}

type setPermissionBody struct {
	PermissionLevel string `json:"permission_level"`
}

func (h *AgentHandler) SetPermission(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var body setPermissionBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	level, err := domain.ParsePermissionLevel(body.PermissionLevel)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.trust.SetPermission(r.Context(), id, level); err != nil {
		if errors.Is(err, domain.ErrAgentNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type violationBody struct {
	Kind        string `json:"kind"`
	Description string `json:"description"`
}

// RecordViolation — ручная фиксация нарушения оператором (штраф к доверию)
func (h *AgentHandler) RecordViolation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var body violationBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	kind := domain.ViolationKind(body.Kind)
	if kind != domain.ViolationSafety && kind != domain.ViolationUnauthorized {
		http.Error(w, "unknown violation kind", http.StatusBadRequest)
		return
	}

	if err := h.trust.RecordViolation(r.Context(), id, kind, body.Description); err != nil {
		if errors.Is(err, domain.ErrAgentNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Suspend выключает автономию агента на всех инстансах шлюза
func (h *AgentHandler) Suspend(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.suspension.Suspend(r.Context(), id); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	h.logger.Warn("agent suspended by operator", zap.String("agent_id", id))
	w.WriteHeader(http.StatusNoContent)
}

func (h *AgentHandler) Reinstate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.suspension.Reinstate(r.Context(), id); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	h.logger.Info("agent reinstated", zap.String("agent_id", id))
	w.WriteHeader(http.StatusNoContent)
}
