package safety

import (
	"fmt"
	"strings"

	"github.com/xela07ax/council-autonomy-gate/internal/domain"
)

// CheckResult — итог прогона операции через все подходящие границы
type CheckResult struct {
	Checked    []string `json:"checked_boundaries"`
	Violations []string `json:"violations"`
	Escalate   bool     `json:"escalate"`
	Reasons    []string `json:"escalation_reasons"`
}

// Check — чистая функция: операция × набор границ → нарушения + флаг эскалации.
// Проверяются все активные границы, чей набор типов содержит тип операции;
// результат — объединение без дедупликации (каждая граница говорит за себя),
// порядок перебора границ на итоговый набор не влияет
func Check(op *domain.Operation, boundaries []*domain.SafetyBoundary) CheckResult {
	result := CheckResult{
		Checked:    []string{},
		Violations: []string{},
		Reasons:    []string{},
	}

	for _, b := range boundaries {
		if !b.Active || !b.AppliesTo(op.Type) {
			continue
		}

		result.Checked = append(result.Checked, b.ID)

		// Порог стоимости: нарушение, эскалация только при триггере HIGH_COST
		if op.EstimatedCost > b.MaxCostThreshold {
			result.Violations = append(result.Violations, fmt.Sprintf("Cost exceeds boundary %s", b.Name))
			if b.HasTrigger(domain.TriggerHighCost) {
				result.Escalate = true
				result.Reasons = append(result.Reasons, "Cost threshold exceeded")
			}
		}

		// Порог времени: само по себе не эскалирует
		if op.EstimatedDuration > b.MaxTimeThreshold {
			result.Violations = append(result.Violations, fmt.Sprintf("Duration exceeds boundary %s", b.Name))
		}

		// Запрещенные действия: регистронезависимый поиск подстроки,
		// всегда эскалация
		for _, action := range op.RequestedActions {
			if matchesBlocked(action, b.BlockedActions) {
				result.Violations = append(result.Violations, fmt.Sprintf("Blocked action detected: %s", action))
				result.Escalate = true
				result.Reasons = append(result.Reasons, "Blocked action attempted")
			}
		}
	}

	return result
}

func matchesBlocked(action string, blocked []string) bool {
	lower := strings.ToLower(action)
	for _, substr := range blocked {
		if substr == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(substr)) {
			return true
		}
	}
	return false
}
