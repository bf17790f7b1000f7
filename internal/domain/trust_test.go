package domain

import (
	"math"
	"math/rand"
	"testing"
)

func TestCalculateTrustScoreEmptyHistory(t *testing.T) {
	p := NewTrustProfile("agent-1", "Analyst", PermLimitedAction)

	if got := p.CalculateTrustScore(); got != 50 {
		t.Fatalf("expected base score 50 for empty history, got %v", got)
	}
}

func TestCalculateTrustScoreWeightedFormula(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(p *TrustProfile)
		want    float64
		epsilon float64
	}{
		{
			// 0.8*40 + 100/100*30 + 0 + 50/100*10 = 32 + 30 + 5 = 67
			name: "clean history",
			mutate: func(p *TrustProfile) {
				p.TotalOperations = 10
				p.SuccessfulOperations = 8
			},
			want: 67,
		},
		{
			// reliability = 100 - 3*10 - 2*5 = 60 -> 0.6*30 = 18
			name: "violations and overruns cut reliability",
			mutate: func(p *TrustProfile) {
				p.TotalOperations = 10
				p.SuccessfulOperations = 8
				p.SafetyViolations = 3
				p.CostOverruns = 2
			},
			want: 55,
		},
		{
			// reliability = 100 - 12*10 < 0, зажимается в 0
			name: "reliability floored at zero",
			mutate: func(p *TrustProfile) {
				p.TotalOperations = 4
				p.SuccessfulOperations = 4
				p.SafetyViolations = 12
			},
			want: 45, // 40 + 0 + 0 + 5
		},
		{
			// improvement component не может превысить 20
			name: "improvement capped",
			mutate: func(p *TrustProfile) {
				p.TotalOperations = 10
				p.SuccessfulOperations = 10
				p.ImprovementRate = 5
			},
			want: 95, // 40 + 30 + 20 + 5
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewTrustProfile("agent-1", "Analyst", PermLimitedAction)
			tt.mutate(p)

			got := p.CalculateTrustScore()
			if math.Abs(got-tt.want) > 1e-9 {
				t.Fatalf("expected score %v, got %v", tt.want, got)
			}
			if got != p.CurrentTrustScore {
				t.Fatalf("returned score %v diverges from stored %v", got, p.CurrentTrustScore)
			}
		})
	}
}

func TestUpdatePerformanceCounters(t *testing.T) {
	p := NewTrustProfile("agent-1", "Analyst", PermLimitedAction)

	p.UpdatePerformance(ResultSuccess, 0, 0, false)
	p.UpdatePerformance(ResultFailed, 0, 0, false)
	p.UpdatePerformance(ResultEscalated, 0, 0, false)
	p.UpdatePerformance(ResultRejected, 0, 0, false)

	if p.TotalOperations != 4 {
		t.Fatalf("expected 4 total operations, got %d", p.TotalOperations)
	}
	if p.SuccessfulOperations != 1 || p.FailedOperations != 1 || p.EscalatedOperations != 1 {
		t.Fatalf("unexpected counters: success=%d failed=%d escalated=%d",
			p.SuccessfulOperations, p.FailedOperations, p.EscalatedOperations)
	}
}

func TestUpdatePerformanceRejectedAsFailure(t *testing.T) {
	p := NewTrustProfile("agent-1", "Analyst", PermLimitedAction)

	p.UpdatePerformance(ResultRejected, 0, 0, true)

	if p.FailedOperations != 1 {
		t.Fatalf("expected rejection to count as failure, failed=%d", p.FailedOperations)
	}
	if p.TotalOperations != 1 {
		t.Fatalf("expected 1 total operation, got %d", p.TotalOperations)
	}
}

func TestUpdatePerformanceOverrunThresholds(t *testing.T) {
	tests := []struct {
		name             string
		costVariance     float64
		timeVariance     float64
		wantCostOverruns int
		wantTimeOverruns int
	}{
		{"at thresholds, no overruns", 0.2, 0.3, 0, 0},
		{"just above thresholds", 0.21, 0.31, 1, 1},
		{"cost only", 0.5, 0.1, 1, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewTrustProfile("agent-1", "Analyst", PermLimitedAction)
			p.UpdatePerformance(ResultSuccess, tt.costVariance, tt.timeVariance, false)

			if p.CostOverruns != tt.wantCostOverruns {
				t.Errorf("cost overruns: want %d, got %d", tt.wantCostOverruns, p.CostOverruns)
			}
			if p.TimeOverruns != tt.wantTimeOverruns {
				t.Errorf("time overruns: want %d, got %d", tt.wantTimeOverruns, p.TimeOverruns)
			}
		})
	}
}

func TestRecordViolationPenalties(t *testing.T) {
	p := NewTrustProfile("agent-1", "Analyst", PermLimitedAction)

	p.RecordViolation(ViolationSafety, "touched production")
	if p.CurrentTrustScore != 45 {
		t.Fatalf("safety violation: expected score 45, got %v", p.CurrentTrustScore)
	}
	if p.SafetyViolations != 1 {
		t.Fatalf("expected 1 safety violation, got %d", p.SafetyViolations)
	}

	p.RecordViolation(ViolationUnauthorized, "scope exceeded")
	if p.CurrentTrustScore != 42 {
		t.Fatalf("unauthorized action: expected score 42, got %v", p.CurrentTrustScore)
	}
	if p.UnauthorizedActions != 1 {
		t.Fatalf("expected 1 unauthorized action, got %d", p.UnauthorizedActions)
	}
}

func TestTrustTrend(t *testing.T) {
	t.Run("too little history keeps stable", func(t *testing.T) {
		p := NewTrustProfile("agent-1", "Analyst", PermLimitedAction)
		for i := 0; i < 10; i++ {
			p.UpdatePerformance(ResultFailed, 0, 0, false)
		}
		if p.TrustTrend != TrendStable {
			t.Fatalf("expected stable trend at 10 operations, got %s", p.TrustTrend)
		}
	})

	t.Run("high success rate increases", func(t *testing.T) {
		p := NewTrustProfile("agent-1", "Analyst", PermLimitedAction)
		for i := 0; i < 11; i++ {
			p.UpdatePerformance(ResultSuccess, 0, 0, false)
		}
		if p.TrustTrend != TrendIncreasing {
			t.Fatalf("expected increasing trend, got %s", p.TrustTrend)
		}
	})

	t.Run("low success rate decreases", func(t *testing.T) {
		p := NewTrustProfile("agent-1", "Analyst", PermLimitedAction)
		for i := 0; i < 6; i++ {
			p.UpdatePerformance(ResultSuccess, 0, 0, false)
		}
		for i := 0; i < 6; i++ {
			p.UpdatePerformance(ResultFailed, 0, 0, false)
		}
		if p.TrustTrend != TrendDecreasing {
			t.Fatalf("expected decreasing trend at 50%% success, got %s", p.TrustTrend)
		}
	})
}

func TestSetPermissionCounters(t *testing.T) {
	p := NewTrustProfile("agent-1", "Analyst", PermLimitedAction)

	p.SetPermission(PermHighAutonomy)
	if p.PermissionUpgrades != 1 || p.PermissionDowngrades != 0 {
		t.Fatalf("expected upgrade, got up=%d down=%d", p.PermissionUpgrades, p.PermissionDowngrades)
	}

	p.SetPermission(PermReadOnly)
	if p.PermissionDowngrades != 1 {
		t.Fatalf("expected downgrade, got down=%d", p.PermissionDowngrades)
	}
	if p.LastPermissionChange == nil {
		t.Fatal("expected last_permission_change to be set")
	}
	if p.CurrentPermissionLevel != PermReadOnly {
		t.Fatalf("expected read_only level, got %s", p.CurrentPermissionLevel)
	}
}

// Оценка доверия обязана оставаться в [0,100] при любой истории
func TestTrustScoreStaysClamped(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	p := NewTrustProfile("agent-1", "Analyst", PermLimitedAction)
	results := []OperationResult{ResultSuccess, ResultFailed, ResultEscalated, ResultRejected}

	for i := 0; i < 500; i++ {
		switch rng.Intn(3) {
		case 0:
			p.UpdatePerformance(results[rng.Intn(len(results))], rng.Float64(), rng.Float64(), false)
		case 1:
			p.RecordViolation(ViolationSafety, "fuzz")
		case 2:
			p.RecordViolation(ViolationUnauthorized, "fuzz")
		}

		if p.CurrentTrustScore < 0 || p.CurrentTrustScore > 100 {
			t.Fatalf("score escaped [0,100] at step %d: %v", i, p.CurrentTrustScore)
		}
	}
}
