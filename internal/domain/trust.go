package domain

import "time"

// TrustTrend — направление изменения доверия
type TrustTrend string

const (
	TrendIncreasing TrustTrend = "increasing"
	TrendStable     TrustTrend = "stable"
	TrendDecreasing TrustTrend = "decreasing"
)

// Результаты операции для учета в профиле доверия.
// rejected — отдельная категория: числится только в total_operations
type OperationResult string

const (
	ResultSuccess   OperationResult = "success"
	ResultFailed    OperationResult = "failed"
	ResultEscalated OperationResult = "escalated"
	ResultRejected  OperationResult = "rejected"
)

// ViolationKind — вид нарушения для мгновенного штрафа
type ViolationKind string

const (
	ViolationSafety       ViolationKind = "safety"
	ViolationUnauthorized ViolationKind = "unauthorized"
)

// Штрафы к current_trust_score за нарушения
const (
	safetyViolationPenalty    = 5.0
	unauthorizedActionPenalty = 3.0
)

// TrustProfile — скользящая оценка надежности агента (0–100),
// открывающая или закрывающая ему автономию. Один профиль на агента
type TrustProfile struct {
	AgentID   string `json:"agent_id"`
	AgentName string `json:"agent_name"`

	// Оценка
	BaseTrustScore    float64    `json:"base_trust_score"`
	CurrentTrustScore float64    `json:"current_trust_score"`
	TrustTrend        TrustTrend `json:"trust_trend"`

	// История операций
	TotalOperations      int `json:"total_operations"`
	SuccessfulOperations int `json:"successful_operations"`
	FailedOperations     int `json:"failed_operations"`
	EscalatedOperations  int `json:"escalated_operations"`

	// История разрешений
	CurrentPermissionLevel PermissionLevel `json:"current_permission_level"`
	PermissionUpgrades     int             `json:"permission_upgrades"`
	PermissionDowngrades   int             `json:"permission_downgrades"`
	LastPermissionChange   *time.Time      `json:"last_permission_change,omitempty"`

	// История нарушений
	SafetyViolations    int `json:"safety_violations"`
	CostOverruns        int `json:"cost_overruns"`
	TimeOverruns        int `json:"time_overruns"`
	UnauthorizedActions int `json:"unauthorized_actions"`

	// Обучение
	ImprovementRate float64 `json:"improvement_rate"` // за неделю

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewTrustProfile создает профиль с базовой оценкой 50 и выданным уровнем доступа
func NewTrustProfile(agentID, agentName string, initial PermissionLevel) *TrustProfile {
	now := time.Now()
	return &TrustProfile{
		AgentID:                agentID,
		AgentName:              agentName,
		BaseTrustScore:         50,
		CurrentTrustScore:      50,
		TrustTrend:             TrendStable,
		CurrentPermissionLevel: initial,
		CreatedAt:              now,
		UpdatedAt:              now,
	}
}

// CalculateTrustScore пересчитывает current_trust_score взвешенной формулой:
// 40% успешность, 30% надежность (100 минус штрафы за нарушения/перерасходы),
// 20% бонус за улучшение (с потолком), 10% базовая оценка. Итог зажат в [0,100]
func (p *TrustProfile) CalculateTrustScore() float64 {
	if p.TotalOperations == 0 {
		p.CurrentTrustScore = p.BaseTrustScore
		return p.CurrentTrustScore
	}

	successRate := float64(p.SuccessfulOperations) / float64(p.TotalOperations)
	successComponent := successRate * 40

	reliabilityScore := 100 - float64(p.SafetyViolations)*10 - float64(p.CostOverruns)*5
	if reliabilityScore < 0 {
		reliabilityScore = 0
	}
	reliabilityComponent := reliabilityScore / 100 * 30

	improvementComponent := p.ImprovementRate * 20
	if improvementComponent > 20 {
		improvementComponent = 20
	}

	baseComponent := p.BaseTrustScore / 100 * 10

	p.CurrentTrustScore = clampScore(successComponent + reliabilityComponent + improvementComponent + baseComponent)
	return p.CurrentTrustScore
}

// UpdatePerformance фиксирует исход операции и пересчитывает оценку.
// countRejectedAsFailed — явный переключатель для спорного поведения:
// исторически rejected не засчитывался в failed_operations
func (p *TrustProfile) UpdatePerformance(result OperationResult, costVariance, timeVariance float64, countRejectedAsFailed bool) {
	p.TotalOperations++

	switch result {
	case ResultSuccess:
		p.SuccessfulOperations++
	case ResultFailed:
		p.FailedOperations++
	case ResultEscalated:
		p.EscalatedOperations++
	case ResultRejected:
		if countRejectedAsFailed {
			p.FailedOperations++
		}
	}

	// Перерасходы: 20% по стоимости, 30% по времени
	if costVariance > 0.2 {
		p.CostOverruns++
	}
	if timeVariance > 0.3 {
		p.TimeOverruns++
	}

	p.CalculateTrustScore()
	p.updateTrend()
	p.UpdatedAt = time.Now()
}

// RecordViolation — мгновенный штраф без ожидания пересчета формулы
func (p *TrustProfile) RecordViolation(kind ViolationKind, description string) {
	switch kind {
	case ViolationSafety:
		p.SafetyViolations++
		p.CurrentTrustScore = clampScore(p.CurrentTrustScore - safetyViolationPenalty)
	case ViolationUnauthorized:
		p.UnauthorizedActions++
		p.CurrentTrustScore = clampScore(p.CurrentTrustScore - unauthorizedActionPenalty)
	}

	p.updateTrend()
	p.UpdatedAt = time.Now()
}

// SetPermission меняет уровень доступа с учетом апгрейд/даунгрейд счетчиков
func (p *TrustProfile) SetPermission(level PermissionLevel) {
	old := p.CurrentPermissionLevel
	p.CurrentPermissionLevel = level
	now := time.Now()
	p.LastPermissionChange = &now

	if level.Rank() > old.Rank() {
		p.PermissionUpgrades++
	} else {
		p.PermissionDowngrades++
	}
	p.UpdatedAt = now
}

// SuccessRate — доля успешных операций, 0 при пустой истории
func (p *TrustProfile) SuccessRate() float64 {
	if p.TotalOperations == 0 {
		return 0
	}
	return float64(p.SuccessfulOperations) / float64(p.TotalOperations)
}

// Тренд осмыслен только при наборе статистики (> 10 операций)
func (p *TrustProfile) updateTrend() {
	if p.TotalOperations <= 10 {
		return
	}
	rate := p.SuccessRate()
	switch {
	case rate > 0.8:
		p.TrustTrend = TrendIncreasing
	case rate < 0.6:
		p.TrustTrend = TrendDecreasing
	default:
		p.TrustTrend = TrendStable
	}
}

func clampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
