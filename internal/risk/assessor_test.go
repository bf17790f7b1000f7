package risk

import (
	"testing"

	"github.com/xela07ax/council-autonomy-gate/internal/domain"
)

func profileWithScore(score float64) *domain.TrustProfile {
	p := domain.NewTrustProfile("agent-1", "Analyst", domain.PermLimitedAction)
	p.CurrentTrustScore = score
	return p
}

func TestAssess(t *testing.T) {
	tests := []struct {
		name    string
		op      *domain.Operation
		profile *domain.TrustProfile
		want    domain.RiskLevel
	}{
		{
			name: "cheap analysis without profile",
			op:   &domain.Operation{Type: domain.OpAnalysis, EstimatedCost: 5, EstimatedDuration: 10},
			want: domain.RiskLow,
		},
		{
			// cost 60 (+2) + duration 70 (+1) = 3
			name: "cost and duration reach medium",
			op:   &domain.Operation{Type: domain.OpDataProcessing, EstimatedCost: 60, EstimatedDuration: 70},
			want: domain.RiskMedium,
		},
		{
			// financial (+3) + cost 150 (+3) = 6
			name: "expensive financial is high",
			op:   &domain.Operation{Type: domain.OpFinancial, EstimatedCost: 150},
			want: domain.RiskHigh,
		},
		{
			// system_modification (+3) при нулевой стоимости — medium, не high
			name: "free system modification stays medium",
			op:   &domain.Operation{Type: domain.OpSystemModification},
			want: domain.RiskMedium,
		},
		{
			// low trust (+2) + cost 60 (+2) = 4
			name:    "low trust raises risk",
			op:      &domain.Operation{Type: domain.OpResearch, EstimatedCost: 60},
			profile: profileWithScore(25),
			want:    domain.RiskMedium,
		},
		{
			// trust 55 (+1) + cost 5 = 1
			name:    "mediocre trust alone is not enough",
			op:      &domain.Operation{Type: domain.OpResearch, EstimatedCost: 5},
			profile: profileWithScore(55),
			want:    domain.RiskLow,
		},
		{
			// границы ступеней не включают сами пороги
			name: "thresholds are exclusive",
			op:   &domain.Operation{Type: domain.OpAnalysis, EstimatedCost: 10, EstimatedDuration: 60},
			want: domain.RiskLow,
		},
		{
			// все вклады сразу: 3 + 2 + 3 + 2 = 10
			name: "everything at once",
			op: &domain.Operation{
				Type:              domain.OpSystemModification,
				EstimatedCost:     150,
				EstimatedDuration: 130,
			},
			profile: profileWithScore(20),
			want:    domain.RiskHigh,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Assess(tt.op, tt.profile); got != tt.want {
				t.Fatalf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

// Одинаковый вход всегда дает одинаковый выход, состояние не мутируется
func TestAssessIsDeterministic(t *testing.T) {
	op := &domain.Operation{Type: domain.OpFinancial, EstimatedCost: 75, EstimatedDuration: 90}
	profile := profileWithScore(45)

	first := Assess(op, profile)
	for i := 0; i < 20; i++ {
		if got := Assess(op, profile); got != first {
			t.Fatalf("assessment diverged on run %d: %s vs %s", i, got, first)
		}
	}
	if profile.CurrentTrustScore != 45 {
		t.Fatal("assessor must not mutate the trust profile")
	}
}

func TestRequiredPermission(t *testing.T) {
	tests := []struct {
		name string
		op   *domain.Operation
		want domain.PermissionLevel
	}{
		{"high risk", &domain.Operation{Type: domain.OpFinancial, RiskLevel: domain.RiskHigh}, domain.PermHighAutonomy},
		{"medium risk", &domain.Operation{Type: domain.OpDataProcessing, RiskLevel: domain.RiskMedium}, domain.PermModerateAutonomy},
		{"low risk analysis", &domain.Operation{Type: domain.OpAnalysis, RiskLevel: domain.RiskLow}, domain.PermAdvisory},
		{"low risk research", &domain.Operation{Type: domain.OpResearch, RiskLevel: domain.RiskLow}, domain.PermAdvisory},
		{"low risk communication", &domain.Operation{Type: domain.OpCommunication, RiskLevel: domain.RiskLow}, domain.PermLimitedAction},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RequiredPermission(tt.op); got != tt.want {
				t.Fatalf("expected %s, got %s", tt.want, got)
			}
		})
	}
}
