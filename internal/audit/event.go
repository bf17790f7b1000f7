package audit

import (
	"time"

	"github.com/xela07ax/council-autonomy-gate/internal/domain"
)

// Стадии жизненного цикла операции, попадающие в аудит
const (
	StageAdmission  = "ADMISSION"  // Решение шлюза по запросу
	StageDecision   = "DECISION"   // Ручное решение оператора (HITL)
	StageExecution  = "EXECUTION"  // Итог исполнения
	StageViolation  = "VIOLATION"  // Зафиксированное нарушение
	StagePermission = "PERMISSION" // Смена уровня доступа агента
)

// DecisionEvent — одна запись аудит-трейла шлюза допуска
type DecisionEvent struct {
	ID          string `json:"id"`       // UUID события
	OperationID string `json:"operation_id"`
	AgentID     string `json:"agent_id"`

	Stage          string                 `json:"stage"`
	OperationType  domain.OperationType   `json:"operation_type"`
	RiskLevel      domain.RiskLevel       `json:"risk_level"`
	ApprovalStatus domain.ApprovalStatus  `json:"approval_status"`
	DecidedBy      string                 `json:"decided_by,omitempty"`
	Violations     []string               `json:"violations,omitempty"`
	Details        map[string]interface{} `json:"details,omitempty"`

	Timestamp  time.Time `json:"timestamp"`
	DurationMs int64     `json:"duration_ms"`
	Error      string    `json:"error,omitempty"`
}
