package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xela07ax/council-autonomy-gate/internal/audit"
	"github.com/xela07ax/council-autonomy-gate/internal/domain"
)

// WriteBatch — пакетная вставка событий аудита (Bulk Insert).
// Вызывается воркером audit.Trail по таймеру или заполнению батча
func (s *Store) WriteBatch(ctx context.Context, events []audit.DecisionEvent) error {
	if len(events) == 0 {
		return nil
	}

	// Количество колонок в таблице decision_audit
	numFields := 13
	var placeholders strings.Builder
	vals := make([]interface{}, 0, len(events)*numFields)

	// Динамически строим запрос для пакетной вставки
	for i, e := range events {
		p := i * numFields
		fmt.Fprintf(&placeholders, "($%d,$%d,$%d,$%d,$%d,$%d,$%d,$%d,$%d,$%d,$%d,$%d,$%d),",
			p+1, p+2, p+3, p+4, p+5, p+6, p+7, p+8, p+9, p+10, p+11, p+12, p+13)

		violations, _ := json.Marshal(e.Violations)
		details, _ := json.Marshal(e.Details)

		vals = append(vals,
			e.ID, e.OperationID, e.AgentID, e.Stage, e.OperationType,
			e.RiskLevel, e.ApprovalStatus, e.DecidedBy,
			violations, details, e.DurationMs, e.Error, e.Timestamp,
		)
	}

	query := fmt.Sprintf(
		`INSERT INTO decision_audit
		   (id, operation_id, agent_id, stage, operation_type, risk_level,
		    approval_status, decided_by, violations, details, duration_ms, error, timestamp)
		 VALUES %s`,
		strings.TrimSuffix(placeholders.String(), ","),
	)

	_, err := s.pool.Exec(ctx, query, vals...)
	return err
}

const (
	auditDefaultLimit = 100
	auditMaxLimit     = 500
)

// clampAuditLimit: без лимита — дефолт, сверх потолка — потолок
func clampAuditLimit(limit int) int {
	switch {
	case limit <= 0:
		return auditDefaultLimit
	case limit > auditMaxLimit:
		return auditMaxLimit
	default:
		return limit
	}
}

// QueryEvents — выборка аудит-трейла для GET /v1/audit
func (s *Store) QueryEvents(ctx context.Context, agentID string, limit int) ([]audit.DecisionEvent, error) {
	limit = clampAuditLimit(limit)

	query := `SELECT id, operation_id, agent_id, stage, operation_type, risk_level,
	                 approval_status, decided_by, violations, details, duration_ms, error, timestamp
	          FROM decision_audit`

	var args []interface{}
	if agentID != "" {
		query += " WHERE agent_id = $1"
		args = append(args, agentID)
	}
	query += fmt.Sprintf(" ORDER BY timestamp DESC LIMIT %d", limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query audit events: %w", err)
	}
	defer rows.Close()

	results := make([]audit.DecisionEvent, 0)

	for rows.Next() {
		var e audit.DecisionEvent
		var opType, riskLevel, approvalStatus string
		var violations, details []byte

		err := rows.Scan(
			&e.ID, &e.OperationID, &e.AgentID, &e.Stage, &opType, &riskLevel,
			&approvalStatus, &e.DecidedBy, &violations, &details, &e.DurationMs, &e.Error, &e.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("postgres: failed to scan audit event: %w", err)
		}

		e.OperationType = domain.OperationType(opType)
		e.RiskLevel = domain.RiskLevel(riskLevel)
		e.ApprovalStatus = domain.ApprovalStatus(approvalStatus)
		_ = json.Unmarshal(violations, &e.Violations)
		_ = json.Unmarshal(details, &e.Details)

		results = append(results, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: rows iteration error: %w", err)
	}

	return results, nil
}
