package risk

import (
	"github.com/xela07ax/council-autonomy-gate/internal/domain"
)

// Пороги аддитивной шкалы риска
const (
	highRiskScore   = 6
	mediumRiskScore = 3
)

// highRiskTypes — типы операций, дающие максимальный вклад в риск
var highRiskTypes = map[domain.OperationType]bool{
	domain.OpSystemModification: true,
	domain.OpFinancial:          true,
	domain.OpExternalAPI:        true,
}

// Assess — чистая функция: операция + профиль доверия → уровень риска.
// Никаких side effects, одинаковый вход всегда дает одинаковый выход.
// profile может быть nil — агент без истории не добавляет риска по доверию
func Assess(op *domain.Operation, profile *domain.TrustProfile) domain.RiskLevel {
	score := 0

	// Стоимость: взаимоисключающие ступени, выигрывает старшая
	switch {
	case op.EstimatedCost > 100:
		score += 3
	case op.EstimatedCost > 50:
		score += 2
	case op.EstimatedCost > 10:
		score += 1
	}

	// Длительность
	switch {
	case op.EstimatedDuration > 120:
		score += 2
	case op.EstimatedDuration > 60:
		score += 1
	}

	// Тип операции
	if highRiskTypes[op.Type] {
		score += 3
	}

	// Доверие к агенту: низкая оценка повышает риск
	if profile != nil {
		switch {
		case profile.CurrentTrustScore < 30:
			score += 2
		case profile.CurrentTrustScore < 60:
			score += 1
		}
	}

	switch {
	case score >= highRiskScore:
		return domain.RiskHigh
	case score >= mediumRiskScore:
		return domain.RiskMedium
	default:
		return domain.RiskLow
	}
}

// RequiredPermission определяет уровень автономии, необходимый агенту
// для самостоятельного исполнения операции данного класса риска.
// Вызывается после Assess — полагается на заполненный op.RiskLevel
func RequiredPermission(op *domain.Operation) domain.PermissionLevel {
	switch {
	case op.RiskLevel == domain.RiskHigh:
		return domain.PermHighAutonomy
	case op.RiskLevel == domain.RiskMedium:
		return domain.PermModerateAutonomy
	case op.Type == domain.OpAnalysis || op.Type == domain.OpResearch:
		return domain.PermAdvisory
	default:
		return domain.PermLimitedAction
	}
}
