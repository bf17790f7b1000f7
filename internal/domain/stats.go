package domain

import "time"

// AutonomyStatus — сводка состояния шлюза для GET /v1/status
type AutonomyStatus struct {
	GlobalSafetyLevel   SafetyLevel             `json:"global_safety_level"`
	RegisteredAgents    int                     `json:"registered_agents"`
	ActiveBoundaries    int                     `json:"active_boundaries"`
	PendingOperations   int                     `json:"pending_operations"`
	QueuedOperations    int                     `json:"queued_operations"`
	CompletedOperations int                     `json:"completed_operations"`
	TrustProfiles       map[string]AgentSummary `json:"trust_profiles"`
	RecentOperations    []OperationSummary      `json:"recent_operations"`
}

// AgentSummary — краткий профиль агента для сводки
type AgentSummary struct {
	Name            string          `json:"name"`
	TrustScore      float64         `json:"trust_score"`
	PermissionLevel PermissionLevel `json:"permission_level"`
	TotalOperations int             `json:"total_operations"`
	SuccessRate     float64         `json:"success_rate"`
}

// OperationSummary — строка истории для сводки (последние операции)
type OperationSummary struct {
	ID        string          `json:"operation_id"`
	AgentID   string          `json:"agent_id"`
	Type      OperationType   `json:"type"`
	Status    ExecutionStatus `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
}
