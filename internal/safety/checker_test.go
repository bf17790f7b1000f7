package safety

import (
	"testing"

	"github.com/xela07ax/council-autonomy-gate/internal/domain"
)

func testBoundary(id string, mutate func(b *domain.SafetyBoundary)) *domain.SafetyBoundary {
	b := &domain.SafetyBoundary{
		ID:               id,
		Name:             id,
		OperationTypes:   []domain.OperationType{domain.OpFinancial},
		MaxCostThreshold: 100,
		MaxTimeThreshold: 60,
		Active:           true,
	}
	if mutate != nil {
		mutate(b)
	}
	return b
}

func TestCheckCostViolation(t *testing.T) {
	op := &domain.Operation{Type: domain.OpFinancial, EstimatedCost: 150}

	t.Run("without trigger no escalation", func(t *testing.T) {
		result := Check(op, []*domain.SafetyBoundary{testBoundary("b1", nil)})

		if len(result.Violations) != 1 {
			t.Fatalf("expected 1 violation, got %v", result.Violations)
		}
		if result.Escalate {
			t.Fatal("cost violation without high_cost trigger must not escalate")
		}
	})

	t.Run("high_cost trigger escalates", func(t *testing.T) {
		b := testBoundary("b1", func(b *domain.SafetyBoundary) {
			b.EscalationTriggers = []domain.EscalationTrigger{domain.TriggerHighCost}
		})
		result := Check(op, []*domain.SafetyBoundary{b})

		if !result.Escalate {
			t.Fatal("expected escalation")
		}
		if len(result.Reasons) != 1 || result.Reasons[0] != "Cost threshold exceeded" {
			t.Fatalf("unexpected reasons: %v", result.Reasons)
		}
	})
}

func TestCheckDurationViolationDoesNotEscalate(t *testing.T) {
	op := &domain.Operation{Type: domain.OpFinancial, EstimatedDuration: 90}

	result := Check(op, []*domain.SafetyBoundary{testBoundary("b1", nil)})

	if len(result.Violations) != 1 {
		t.Fatalf("expected 1 violation, got %v", result.Violations)
	}
	if result.Escalate {
		t.Fatal("duration violation alone must not escalate")
	}
}

func TestCheckBlockedActions(t *testing.T) {
	b := testBoundary("b1", func(b *domain.SafetyBoundary) {
		b.BlockedActions = []string{"delete", "DROP TABLE"}
	})

	tests := []struct {
		name    string
		actions []string
		want    bool
	}{
		{"exact match", []string{"delete"}, true},
		{"case insensitive substring", []string{"Delete ALL user files"}, true},
		{"blocked list case ignored", []string{"drop table accounts"}, true},
		{"clean actions pass", []string{"read report", "summarize"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			op := &domain.Operation{Type: domain.OpFinancial, RequestedActions: tt.actions}
			result := Check(op, []*domain.SafetyBoundary{b})

			if result.Escalate != tt.want {
				t.Fatalf("escalate: expected %v, got %v (violations: %v)", tt.want, result.Escalate, result.Violations)
			}
		})
	}
}

func TestCheckSkipsInactiveAndForeignBoundaries(t *testing.T) {
	op := &domain.Operation{Type: domain.OpFinancial, EstimatedCost: 500}

	inactive := testBoundary("inactive", func(b *domain.SafetyBoundary) { b.Active = false })
	foreign := testBoundary("foreign", func(b *domain.SafetyBoundary) {
		b.OperationTypes = []domain.OperationType{domain.OpAnalysis}
	})

	result := Check(op, []*domain.SafetyBoundary{inactive, foreign})

	if len(result.Checked) != 0 {
		t.Fatalf("expected no boundaries checked, got %v", result.Checked)
	}
	if len(result.Violations) != 0 || result.Escalate {
		t.Fatalf("unexpected violations: %v", result.Violations)
	}
}

// Каждая граница говорит за себя: совпадающие нарушения не схлопываются
func TestCheckUnionWithoutDeduplication(t *testing.T) {
	op := &domain.Operation{Type: domain.OpFinancial, EstimatedCost: 500}

	boundaries := []*domain.SafetyBoundary{
		testBoundary("first", nil),
		testBoundary("second", nil),
	}
	result := Check(op, boundaries)

	if len(result.Checked) != 2 {
		t.Fatalf("expected 2 boundaries checked, got %v", result.Checked)
	}
	if len(result.Violations) != 2 {
		t.Fatalf("expected 2 violations (one per boundary), got %v", result.Violations)
	}
}

func TestCheckEmptyBoundarySet(t *testing.T) {
	op := &domain.Operation{Type: domain.OpFinancial, EstimatedCost: 1e9}

	result := Check(op, nil)

	if len(result.Checked) != 0 || len(result.Violations) != 0 || result.Escalate {
		t.Fatalf("empty boundary set must pass everything, got %+v", result)
	}
}
