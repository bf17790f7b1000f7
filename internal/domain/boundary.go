package domain

import "time"

// SafetyBoundary — декларативное правило, ограничивающее стоимость,
// длительность и действия для класса операций. Управляется администратором
// через Console API, никогда не удаляется автоматически — только флаг Active
type SafetyBoundary struct {
	ID          string `json:"boundary_id"`
	Name        string `json:"name"`
	Description string `json:"description"`

	// Какие типы операций регулируем
	OperationTypes []OperationType `json:"operation_types"`

	// Ограничения
	MaxCostThreshold float64  `json:"max_cost_threshold"`
	MaxTimeThreshold int      `json:"max_time_threshold"` // минуты
	RequiresApproval bool     `json:"requires_approval"`
	AllowedDomains   []string `json:"allowed_domains"`
	BlockedActions   []string `json:"blocked_actions"`

	// Правила эскалации
	EscalationTriggers   []EscalationTrigger `json:"escalation_triggers"`
	EscalationRecipients []string            `json:"escalation_recipients"`

	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AppliesTo — входит ли тип операции в зону действия границы
func (b *SafetyBoundary) AppliesTo(t OperationType) bool {
	for _, ot := range b.OperationTypes {
		if ot == t {
			return true
		}
	}
	return false
}

// HasTrigger проверяет наличие триггера эскалации у границы
func (b *SafetyBoundary) HasTrigger(trigger EscalationTrigger) bool {
	for _, tr := range b.EscalationTriggers {
		if tr == trigger {
			return true
		}
	}
	return false
}
