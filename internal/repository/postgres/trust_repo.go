package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/xela07ax/council-autonomy-gate/internal/domain"
)

// GetAllProfiles — загрузка профилей доверия в память при старте
func (s *Store) GetAllProfiles(ctx context.Context) ([]*domain.TrustProfile, error) {
	query := `SELECT agent_id, agent_name, base_trust_score, current_trust_score,
	                 trust_trend, total_operations, successful_operations,
	                 failed_operations, escalated_operations,
	                 current_permission_level, permission_upgrades,
	                 permission_downgrades, last_permission_change,
	                 safety_violations, cost_overruns, time_overruns,
	                 unauthorized_actions, improvement_rate, created_at, updated_at
	          FROM trust_profiles`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query trust profiles: %w", err)
	}
	defer rows.Close()

	results := make([]*domain.TrustProfile, 0)

	for rows.Next() {
		var p domain.TrustProfile
		var lastChange sql.NullTime // NULL пока доступ ни разу не менялся

		err := rows.Scan(
			&p.AgentID, &p.AgentName, &p.BaseTrustScore, &p.CurrentTrustScore,
			&p.TrustTrend, &p.TotalOperations, &p.SuccessfulOperations,
			&p.FailedOperations, &p.EscalatedOperations,
			&p.CurrentPermissionLevel, &p.PermissionUpgrades,
			&p.PermissionDowngrades, &lastChange,
			&p.SafetyViolations, &p.CostOverruns, &p.TimeOverruns,
			&p.UnauthorizedActions, &p.ImprovementRate, &p.CreatedAt, &p.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("postgres: failed to scan trust profile: %w", err)
		}

		if lastChange.Valid {
			t := lastChange.Time
			p.LastPermissionChange = &t
		}

		results = append(results, &p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: rows iteration error: %w", err)
	}

	return results, nil
}

// SaveProfile — write-behind снимок профиля после каждой мутации.
// Память — источник истины, база догоняет
func (s *Store) SaveProfile(ctx context.Context, p *domain.TrustProfile) error {
	query := `INSERT INTO trust_profiles
	            (agent_id, agent_name, base_trust_score, current_trust_score,
	             trust_trend, total_operations, successful_operations,
	             failed_operations, escalated_operations,
	             current_permission_level, permission_upgrades,
	             permission_downgrades, last_permission_change,
	             safety_violations, cost_overruns, time_overruns,
	             unauthorized_actions, improvement_rate, created_at, updated_at)
	          VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)
	          ON CONFLICT (agent_id) DO UPDATE SET
	            agent_name = EXCLUDED.agent_name,
	            current_trust_score = EXCLUDED.current_trust_score,
	            trust_trend = EXCLUDED.trust_trend,
	            total_operations = EXCLUDED.total_operations,
	            successful_operations = EXCLUDED.successful_operations,
	            failed_operations = EXCLUDED.failed_operations,
	            escalated_operations = EXCLUDED.escalated_operations,
	            current_permission_level = EXCLUDED.current_permission_level,
	            permission_upgrades = EXCLUDED.permission_upgrades,
	            permission_downgrades = EXCLUDED.permission_downgrades,
	            last_permission_change = EXCLUDED.last_permission_change,
	            safety_violations = EXCLUDED.safety_violations,
	            cost_overruns = EXCLUDED.cost_overruns,
	            time_overruns = EXCLUDED.time_overruns,
	            unauthorized_actions = EXCLUDED.unauthorized_actions,
	            improvement_rate = EXCLUDED.improvement_rate,
	            updated_at = EXCLUDED.updated_at`

	var lastChange interface{}
	if p.LastPermissionChange != nil {
		lastChange = *p.LastPermissionChange
	}

	_, err := s.pool.Exec(ctx, query,
		p.AgentID, p.AgentName, p.BaseTrustScore, p.CurrentTrustScore,
		p.TrustTrend, p.TotalOperations, p.SuccessfulOperations,
		p.FailedOperations, p.EscalatedOperations,
		p.CurrentPermissionLevel, p.PermissionUpgrades,
		p.PermissionDowngrades, lastChange,
		p.SafetyViolations, p.CostOverruns, p.TimeOverruns,
		p.UnauthorizedActions, p.ImprovementRate, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: failed to save trust profile: %w", err)
	}
	return nil
}
