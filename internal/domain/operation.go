package domain

import (
	"errors"
	"time"
)

// OperationType классифицирует запрошенную автономную работу агента
type OperationType string

const (
	OpAnalysis           OperationType = "analysis"
	OpResearch           OperationType = "research"
	OpCommunication      OperationType = "communication"
	OpDataProcessing     OperationType = "data_processing"
	OpDecisionMaking     OperationType = "decision_making"
	OpSystemModification OperationType = "system_modification"
	OpExternalAPI        OperationType = "external_api"
	OpFinancial          OperationType = "financial"
)

// ParseOperationType валидирует тип на входе API, до создания операции
func ParseOperationType(s string) (OperationType, error) {
	switch t := OperationType(s); t {
	case OpAnalysis, OpResearch, OpCommunication, OpDataProcessing,
		OpDecisionMaking, OpSystemModification, OpExternalAPI, OpFinancial:
		return t, nil
	default:
		return "", ErrUnknownOperationType
	}
}

// PermissionLevel — уровень автономии, которым должен обладать агент
type PermissionLevel string

const (
	PermReadOnly         PermissionLevel = "read_only"
	PermAdvisory         PermissionLevel = "advisory"
	PermLimitedAction    PermissionLevel = "limited_action"
	PermModerateAutonomy PermissionLevel = "moderate_autonomy"
	PermHighAutonomy     PermissionLevel = "high_autonomy"
	PermFullAutonomy     PermissionLevel = "full_autonomy"
)

// permissionRank — явная таблица рангов вместо сравнения по порядку объявления.
// Перестановка констант не сломает авторизацию.
var permissionRank = map[PermissionLevel]int{
	PermReadOnly:         0,
	PermAdvisory:         1,
	PermLimitedAction:    2,
	PermModerateAutonomy: 3,
	PermHighAutonomy:     4,
	PermFullAutonomy:     5,
}

// Rank возвращает числовой ранг уровня; неизвестный уровень = -1 (ниже любого)
func (p PermissionLevel) Rank() int {
	if r, ok := permissionRank[p]; ok {
		return r
	}
	return -1
}

// AtLeast сравнивает уровни по таблице рангов
func (p PermissionLevel) AtLeast(other PermissionLevel) bool {
	return p.Rank() >= other.Rank()
}

func ParsePermissionLevel(s string) (PermissionLevel, error) {
	p := PermissionLevel(s)
	if _, ok := permissionRank[p]; !ok {
		return "", ErrUnknownPermissionLevel
	}
	return p, nil
}

// SafetyLevel — глобальный режим безопасности всего шлюза
type SafetyLevel string

const (
	SafetyMaximum  SafetyLevel = "maximum"  // Ручной апрув для всего
	SafetyHigh     SafetyLevel = "high"     // Ручной апрув для важных решений
	SafetyModerate SafetyLevel = "moderate" // Автономия с проверками границ
	SafetyLow      SafetyLevel = "low"      // Полная автономия, минимум ограничений
	SafetyCustom   SafetyLevel = "custom"   // Пользовательские правила
)

// EscalationTrigger — условие, при котором граница требует человека (HITL)
type EscalationTrigger string

const (
	TriggerHighCost              EscalationTrigger = "high_cost"
	TriggerHighRisk              EscalationTrigger = "high_risk"
	TriggerExternalCommunication EscalationTrigger = "external_communication"
	TriggerDataModification      EscalationTrigger = "data_modification"
	TriggerSystemChanges         EscalationTrigger = "system_changes"
	TriggerThresholdExceeded     EscalationTrigger = "threshold_exceeded"
	TriggerUserDefined           EscalationTrigger = "user_defined"
)

// RiskLevel — трехуровневая классификация риска операции
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Статусы State Machine апрува
type ApprovalStatus string

const (
	ApprovalPending   ApprovalStatus = "pending"
	ApprovalApproved  ApprovalStatus = "approved"
	ApprovalRejected  ApprovalStatus = "rejected"
	ApprovalEscalated ApprovalStatus = "escalated"
)

// Статусы State Machine исполнения (независимая от апрува машина)
type ExecutionStatus string

const (
	ExecQueued    ExecutionStatus = "queued"
	ExecRunning   ExecutionStatus = "running"
	ExecCompleted ExecutionStatus = "completed"
	ExecFailed    ExecutionStatus = "failed"
	ExecCancelled ExecutionStatus = "cancelled"
)

// Terminal сообщает, что статус исполнения финален и больше не меняется
func (s ExecutionStatus) Terminal() bool {
	return s == ExecCompleted || s == ExecFailed || s == ExecCancelled
}

var (
	ErrUnknownOperationType   = errors.New("unknown operation type")
	ErrUnknownPermissionLevel = errors.New("unknown permission level")
	ErrAlreadyDecided         = errors.New("operation already decided")
	ErrNotApproved            = errors.New("operation is not approved")
	ErrTerminalState          = errors.New("operation is in terminal state")
	ErrOperationNotFound      = errors.New("operation not found")
	ErrAgentNotFound          = errors.New("agent not found")
)

// Operation — запрос агента на автономную работу, проходящий через
// пайплайн допуска: риск → границы → решение → очередь → исполнение
type Operation struct {
	ID      string `json:"id"`
	AgentID string `json:"agent_id"`

	// Декларация агента
	Type              OperationType `json:"operation_type"`
	Description       string        `json:"description"`
	RequestedActions  []string      `json:"requested_actions"`
	EstimatedCost     float64       `json:"estimated_cost"`
	EstimatedDuration int           `json:"estimated_duration"` // минуты

	// Вычисляется ассессором
	RiskLevel          RiskLevel       `json:"risk_level"`
	RequiredPermission PermissionLevel `json:"required_permission_level"`

	// Процесс апрува
	ApprovalStatus  ApprovalStatus `json:"approval_status"`
	ApprovedBy      string         `json:"approved_by,omitempty"`
	ApprovedAt      *time.Time     `json:"approval_timestamp,omitempty"`
	RejectionReason string         `json:"rejection_reason,omitempty"`

	// Аудит проверки границ
	BoundariesChecked   []string `json:"safety_boundaries_checked"`
	SafetyViolations    []string `json:"safety_violations"`
	EscalationTriggered bool     `json:"escalation_triggered"`
	EscalationReasons   []string `json:"escalation_reasons"`

	// Исполнение
	ExecutionStatus ExecutionStatus        `json:"execution_status"`
	StartedAt       *time.Time             `json:"started_at,omitempty"`
	CompletedAt     *time.Time             `json:"completed_at,omitempty"`
	Results         map[string]interface{} `json:"results"`

	CreatedAt time.Time `json:"created_at"`
}

// canDecide проверяет правила конечного автомата апрува:
// решение принимается ровно один раз. Эскалация — не вердикт,
// а ожидание человека, поэтому из escalated решение тоже допустимо
func (o *Operation) canDecide() error {
	if o.ApprovalStatus != ApprovalPending && o.ApprovalStatus != ApprovalEscalated {
		return ErrAlreadyDecided
	}
	return nil
}

// Approve переводит pending → approved с фиксацией кто и когда
func (o *Operation) Approve(approver string) error {
	if err := o.canDecide(); err != nil {
		return err
	}
	now := time.Now()
	o.ApprovalStatus = ApprovalApproved
	o.ApprovedBy = approver
	o.ApprovedAt = &now
	return nil
}

// Reject переводит pending → rejected с сохранением причины
func (o *Operation) Reject(rejector, reason string) error {
	if err := o.canDecide(); err != nil {
		return err
	}
	now := time.Now()
	o.ApprovalStatus = ApprovalRejected
	o.ApprovedBy = rejector
	o.RejectionReason = reason
	o.ApprovedAt = &now
	return nil
}

// Escalate форсирует ручную проверку. Эскалация — не ошибка,
// а валидный для автоматики исход, требующий человека
func (o *Operation) Escalate(reasons []string) {
	o.EscalationTriggered = true
	o.EscalationReasons = append(o.EscalationReasons, reasons...)
	o.ApprovalStatus = ApprovalEscalated
}

// Start переводит исполнение в running. Инвариант: только для approved
func (o *Operation) Start() error {
	if o.ApprovalStatus != ApprovalApproved {
		return ErrNotApproved
	}
	if o.ExecutionStatus.Terminal() {
		return ErrTerminalState
	}
	now := time.Now()
	o.ExecutionStatus = ExecRunning
	o.StartedAt = &now
	return nil
}

// Complete фиксирует успешный финал. Повторный вызов на терминальной операции — ошибка
func (o *Operation) Complete(results map[string]interface{}) error {
	if o.ExecutionStatus.Terminal() {
		return ErrTerminalState
	}
	now := time.Now()
	o.ExecutionStatus = ExecCompleted
	o.CompletedAt = &now
	o.Results = results
	return nil
}

// Fail фиксирует провал с текстом ошибки в results
func (o *Operation) Fail(execErr error) error {
	if o.ExecutionStatus.Terminal() {
		return ErrTerminalState
	}
	now := time.Now()
	o.ExecutionStatus = ExecFailed
	o.CompletedAt = &now
	o.Results = map[string]interface{}{"error": execErr.Error()}
	return nil
}
