package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/xela07ax/council-autonomy-gate/internal/domain"
)

/*
Таблица safety_boundaries: скалярные колонки для индексируемых полей,
JSONB для списков (operation_types, blocked_actions, триггеры).
Границы никогда не удаляются — только флаг active.
*/

// GetAllBoundaries — холодная загрузка для кэша реестра
func (s *Store) GetAllBoundaries(ctx context.Context) ([]*domain.SafetyBoundary, error) {
	query := `SELECT id, name, description, operation_types, max_cost_threshold,
	                 max_time_threshold, requires_approval, allowed_domains,
	                 blocked_actions, escalation_triggers, escalation_recipients,
	                 active, created_at, updated_at
	          FROM safety_boundaries
	          ORDER BY created_at`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query boundaries: %w", err)
	}
	defer rows.Close()

	// Пустой слайс, чтобы в JSON был [] вместо null
	results := make([]*domain.SafetyBoundary, 0)

	for rows.Next() {
		var b domain.SafetyBoundary
		var opTypes, allowedDomains, blockedActions, triggers, recipients []byte

		err := rows.Scan(
			&b.ID, &b.Name, &b.Description, &opTypes, &b.MaxCostThreshold,
			&b.MaxTimeThreshold, &b.RequiresApproval, &allowedDomains,
			&blockedActions, &triggers, &recipients,
			&b.Active, &b.CreatedAt, &b.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("postgres: failed to scan boundary: %w", err)
		}

		if err := decodeBoundaryLists(&b, opTypes, allowedDomains, blockedActions, triggers, recipients); err != nil {
			return nil, err
		}

		results = append(results, &b)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: rows iteration error: %w", err)
	}

	return results, nil
}

// UpsertBoundary создает или перезаписывает границу целиком
func (s *Store) UpsertBoundary(ctx context.Context, b *domain.SafetyBoundary) error {
	opTypes, _ := json.Marshal(b.OperationTypes)
	allowedDomains, _ := json.Marshal(b.AllowedDomains)
	blockedActions, _ := json.Marshal(b.BlockedActions)
	triggers, _ := json.Marshal(b.EscalationTriggers)
	recipients, _ := json.Marshal(b.EscalationRecipients)

	query := `INSERT INTO safety_boundaries
	            (id, name, description, operation_types, max_cost_threshold,
	             max_time_threshold, requires_approval, allowed_domains,
	             blocked_actions, escalation_triggers, escalation_recipients,
	             active, created_at, updated_at)
	          VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
	          ON CONFLICT (id) DO UPDATE SET
	            name = EXCLUDED.name,
	            description = EXCLUDED.description,
	            operation_types = EXCLUDED.operation_types,
	            max_cost_threshold = EXCLUDED.max_cost_threshold,
	            max_time_threshold = EXCLUDED.max_time_threshold,
	            requires_approval = EXCLUDED.requires_approval,
	            allowed_domains = EXCLUDED.allowed_domains,
	            blocked_actions = EXCLUDED.blocked_actions,
	            escalation_triggers = EXCLUDED.escalation_triggers,
	            escalation_recipients = EXCLUDED.escalation_recipients,
	            active = EXCLUDED.active,
	            updated_at = EXCLUDED.updated_at`

	_, err := s.pool.Exec(ctx, query,
		b.ID, b.Name, b.Description, opTypes, b.MaxCostThreshold,
		b.MaxTimeThreshold, b.RequiresApproval, allowedDomains,
		blockedActions, triggers, recipients,
		b.Active, b.CreatedAt, b.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: failed to upsert boundary: %w", err)
	}
	return nil
}

func decodeBoundaryLists(b *domain.SafetyBoundary, opTypes, allowedDomains, blockedActions, triggers, recipients []byte) error {
	if err := json.Unmarshal(opTypes, &b.OperationTypes); err != nil {
		return fmt.Errorf("postgres: bad operation_types for boundary %s: %w", b.ID, err)
	}
	if err := json.Unmarshal(allowedDomains, &b.AllowedDomains); err != nil {
		return fmt.Errorf("postgres: bad allowed_domains for boundary %s: %w", b.ID, err)
	}
	if err := json.Unmarshal(blockedActions, &b.BlockedActions); err != nil {
		return fmt.Errorf("postgres: bad blocked_actions for boundary %s: %w", b.ID, err)
	}
	if err := json.Unmarshal(triggers, &b.EscalationTriggers); err != nil {
		return fmt.Errorf("postgres: bad escalation_triggers for boundary %s: %w", b.ID, err)
	}
	if err := json.Unmarshal(recipients, &b.EscalationRecipients); err != nil {
		return fmt.Errorf("postgres: bad escalation_recipients for boundary %s: %w", b.ID, err)
	}
	return nil
}
