package admission

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/xela07ax/council-autonomy-gate/internal/domain"
	"github.com/xela07ax/council-autonomy-gate/internal/safety"
	"github.com/xela07ax/council-autonomy-gate/internal/trust"
)

// stubExecutor — управляемый исполнитель для тестов контроллера
type stubExecutor struct {
	err   error
	calls int32
}

func (s *stubExecutor) Execute(ctx context.Context, op *domain.Operation) (map[string]interface{}, error) {
	atomic.AddInt32(&s.calls, 1)
	if s.err != nil {
		return nil, s.err
	}
	return map[string]interface{}{"status": "done"}, nil
}

type testEnv struct {
	controller *Controller
	trust      *trust.Store
	registry   *safety.Registry
	executor   *stubExecutor
	suspension *SuspensionManager
}

func newTestEnv(t *testing.T, opts Options) *testEnv {
	t.Helper()
	logger := zap.NewNop()

	env := &testEnv{
		trust:      trust.NewStore(nil, false, logger),
		registry:   safety.NewRegistry(nil, nil, logger),
		executor:   &stubExecutor{},
		suspension: NewSuspensionManager(nil, logger),
	}
	env.controller = NewController(opts, env.trust, env.registry, env.executor, nil, nil, env.suspension, nil, logger)
	return env
}

// trustedAgent готовит профиль, проходящий любые проверки автоапрува
func (e *testEnv) trustedAgent(ctx context.Context, agentID string) *domain.TrustProfile {
	p := e.trust.Register(ctx, agentID, agentID, domain.PermFullAutonomy)
	p.CurrentTrustScore = 90
	return p
}

func TestAutoApproveTrustedAgent(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, Options{SafetyLevel: domain.SafetyHigh})
	env.trustedAgent(ctx, "agent-1")

	op, err := env.controller.RequestOperation(ctx, Request{
		AgentID:       "agent-1",
		Type:          domain.OpAnalysis,
		Description:   "quarterly summary",
		EstimatedCost: 5,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if op.ApprovalStatus != domain.ApprovalApproved {
		t.Fatalf("expected auto-approval, got %s", op.ApprovalStatus)
	}
	if op.ApprovedBy != AutoApprover {
		t.Fatalf("expected approver %q, got %q", AutoApprover, op.ApprovedBy)
	}
	if op.RiskLevel != domain.RiskLow {
		t.Fatalf("expected low risk, got %s", op.RiskLevel)
	}

	executed, err := env.controller.ExecuteNext(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if executed == nil || executed.ExecutionStatus != domain.ExecCompleted {
		t.Fatalf("expected completed execution, got %+v", executed)
	}
	if atomic.LoadInt32(&env.executor.calls) != 1 {
		t.Fatalf("expected 1 executor call, got %d", env.executor.calls)
	}

	profile, _ := env.trust.Get("agent-1")
	if profile.SuccessfulOperations != 1 {
		t.Fatalf("execution must feed trust profile, successful=%d", profile.SuccessfulOperations)
	}

	// Терминальная операция ушла из pending в историю
	if got, ok := env.controller.GetOperation(op.ID); !ok || got.ExecutionStatus != domain.ExecCompleted {
		t.Fatal("operation must remain findable in history")
	}
	if pending := env.controller.ListPending(""); len(pending) != 0 {
		t.Fatalf("pending must be empty after execution, got %d", len(pending))
	}
}

func TestLowTrustStaysPending(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, Options{SafetyLevel: domain.SafetyHigh})
	p := env.trust.Register(ctx, "agent-1", "Novice", domain.PermFullAutonomy)
	p.CurrentTrustScore = 40

	op, err := env.controller.RequestOperation(ctx, Request{
		AgentID: "agent-1",
		Type:    domain.OpAnalysis,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if op.ApprovalStatus != domain.ApprovalPending {
		t.Fatalf("expected pending, got %s", op.ApprovalStatus)
	}

	// Неодобренная операция не попадает в очередь исполнения
	if executed, err := env.controller.ExecuteNext(ctx); executed != nil || err != nil {
		t.Fatalf("expected empty queue, got %v / %v", executed, err)
	}
}

func TestInsufficientPermissionStaysPending(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, Options{SafetyLevel: domain.SafetyHigh})
	p := env.trust.Register(ctx, "agent-1", "Advisor", domain.PermAdvisory)
	p.CurrentTrustScore = 95

	// medium risk требует moderate_autonomy, advisory не хватает
	op, err := env.controller.RequestOperation(ctx, Request{
		AgentID:           "agent-1",
		Type:              domain.OpDataProcessing,
		EstimatedCost:     60,
		EstimatedDuration: 70,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if op.RiskLevel != domain.RiskMedium {
		t.Fatalf("expected medium risk, got %s", op.RiskLevel)
	}
	if op.ApprovalStatus != domain.ApprovalPending {
		t.Fatalf("expected pending, got %s", op.ApprovalStatus)
	}
}

func TestHighRiskNeedsHumanAtHighSafety(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, Options{SafetyLevel: domain.SafetyHigh})
	env.trustedAgent(ctx, "agent-1")

	op, err := env.controller.RequestOperation(ctx, Request{
		AgentID:       "agent-1",
		Type:          domain.OpFinancial,
		EstimatedCost: 150,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if op.RiskLevel != domain.RiskHigh {
		t.Fatalf("expected high risk, got %s", op.RiskLevel)
	}
	if op.ApprovalStatus != domain.ApprovalPending {
		t.Fatalf("high risk at high safety must wait for a human, got %s", op.ApprovalStatus)
	}
}

func TestMaximumSafetyDisablesAutoApproval(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, Options{SafetyLevel: domain.SafetyMaximum})
	env.trustedAgent(ctx, "agent-1")

	op, err := env.controller.RequestOperation(ctx, Request{
		AgentID: "agent-1",
		Type:    domain.OpAnalysis,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if op.ApprovalStatus != domain.ApprovalPending {
		t.Fatalf("maximum safety must force manual approval, got %s", op.ApprovalStatus)
	}
}

func TestBootstrapAllowanceForUnknownAgent(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, Options{SafetyLevel: domain.SafetyHigh})

	op, err := env.controller.RequestOperation(ctx, Request{
		AgentID: "newcomer",
		Type:    domain.OpAnalysis,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if op.ApprovalStatus != domain.ApprovalApproved {
		t.Fatalf("agent without profile must pass bootstrap allowance, got %s", op.ApprovalStatus)
	}
}

func TestBoundaryEscalation(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, Options{SafetyLevel: domain.SafetyHigh})
	env.trustedAgent(ctx, "agent-1")

	if err := env.registry.Add(ctx, &domain.SafetyBoundary{
		Name:                 "budget cap",
		OperationTypes:       []domain.OperationType{domain.OpFinancial},
		MaxCostThreshold:     100,
		MaxTimeThreshold:     60,
		EscalationTriggers:   []domain.EscalationTrigger{domain.TriggerHighCost},
		EscalationRecipients: []string{"ops-team"},
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	op, err := env.controller.RequestOperation(ctx, Request{
		AgentID:       "agent-1",
		Type:          domain.OpFinancial,
		EstimatedCost: 150,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if op.ApprovalStatus != domain.ApprovalEscalated || !op.EscalationTriggered {
		t.Fatalf("expected escalation, got %s", op.ApprovalStatus)
	}
	if len(op.SafetyViolations) == 0 {
		t.Fatal("expected cost violation to be recorded")
	}

	// Эскалация не ставит операцию в очередь
	if executed, _ := env.controller.ExecuteNext(ctx); executed != nil {
		t.Fatal("escalated operation must not execute without a decision")
	}

	// Оператор одобряет эскалированную операцию
	if err := env.controller.ApproveOperation(ctx, op.ID, "operator-7"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	executed, err := env.controller.ExecuteNext(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if executed == nil || executed.ExecutionStatus != domain.ExecCompleted {
		t.Fatalf("expected completed execution after manual approval, got %+v", executed)
	}
	if executed.ApprovedBy != "operator-7" {
		t.Fatalf("unexpected approver: %s", executed.ApprovedBy)
	}
}

func TestSuspendedAgentForcedEscalation(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, Options{SafetyLevel: domain.SafetyHigh})
	env.trustedAgent(ctx, "agent-1")

	if err := env.suspension.Suspend(ctx, "agent-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	op, err := env.controller.RequestOperation(ctx, Request{
		AgentID: "agent-1",
		Type:    domain.OpAnalysis,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if op.ApprovalStatus != domain.ApprovalEscalated {
		t.Fatalf("suspended agent must be escalated, got %s", op.ApprovalStatus)
	}

	found := false
	for _, r := range op.EscalationReasons {
		if r == "Agent suspended by operator" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected suspension reason, got %v", op.EscalationReasons)
	}
}

func TestRejectIsIdempotent(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, Options{SafetyLevel: domain.SafetyMaximum})
	env.trustedAgent(ctx, "agent-1")

	op, err := env.controller.RequestOperation(ctx, Request{
		AgentID: "agent-1",
		Type:    domain.OpAnalysis,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rejected, err := env.controller.RejectOperation(ctx, op.ID, "operator-7", "not now")
	if err != nil || !rejected {
		t.Fatalf("first rejection must succeed: %v / %v", rejected, err)
	}

	profile, _ := env.trust.Get("agent-1")
	if profile.TotalOperations != 1 {
		t.Fatalf("rejection must count into total operations, got %d", profile.TotalOperations)
	}

	// Повторное отклонение — no-op без ошибки
	rejected, err = env.controller.RejectOperation(ctx, op.ID, "operator-8", "different reason")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rejected {
		t.Fatal("second rejection must report false")
	}

	got, _ := env.controller.GetOperation(op.ID)
	if got.RejectionReason != "not now" || got.ApprovedBy != "operator-7" {
		t.Fatalf("first verdict must survive: %q by %s", got.RejectionReason, got.ApprovedBy)
	}
	if profile.TotalOperations != 1 {
		t.Fatalf("no-op rejection must not touch trust, got %d", profile.TotalOperations)
	}
}

func TestDecisionsOnUnknownOperation(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, Options{})

	if err := env.controller.ApproveOperation(ctx, "ghost", "operator-7"); !errors.Is(err, domain.ErrOperationNotFound) {
		t.Fatalf("expected ErrOperationNotFound, got %v", err)
	}
	if _, err := env.controller.RejectOperation(ctx, "ghost", "operator-7", "reason"); !errors.Is(err, domain.ErrOperationNotFound) {
		t.Fatalf("expected ErrOperationNotFound, got %v", err)
	}
}

func TestRequestValidation(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, Options{})

	if _, err := env.controller.RequestOperation(ctx, Request{AgentID: "agent-1", Type: "mining"}); !errors.Is(err, domain.ErrUnknownOperationType) {
		t.Fatalf("expected ErrUnknownOperationType, got %v", err)
	}
	if _, err := env.controller.RequestOperation(ctx, Request{Type: domain.OpAnalysis}); err == nil {
		t.Fatal("expected error for empty agent_id")
	}
}

func TestFailedExecutionFeedsTrust(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, Options{SafetyLevel: domain.SafetyHigh})
	env.trustedAgent(ctx, "agent-1")
	env.executor.err = errors.New("connector down")

	op, err := env.controller.RequestOperation(ctx, Request{
		AgentID: "agent-1",
		Type:    domain.OpAnalysis,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	executed, err := env.controller.ExecuteNext(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if executed.ExecutionStatus != domain.ExecFailed {
		t.Fatalf("expected failed execution, got %s", executed.ExecutionStatus)
	}
	if executed.Results["error"] != "connector down" {
		t.Fatalf("expected error text in results, got %v", executed.Results)
	}

	profile, _ := env.trust.Get("agent-1")
	if profile.FailedOperations != 1 {
		t.Fatalf("failure must feed trust profile, failed=%d", profile.FailedOperations)
	}

	if got, ok := env.controller.GetOperation(op.ID); !ok || got.ExecutionStatus != domain.ExecFailed {
		t.Fatal("failed operation must remain findable in history")
	}
}

func TestListPendingFilters(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, Options{SafetyLevel: domain.SafetyMaximum})
	env.trustedAgent(ctx, "agent-1")

	first, _ := env.controller.RequestOperation(ctx, Request{AgentID: "agent-1", Type: domain.OpAnalysis})
	second, _ := env.controller.RequestOperation(ctx, Request{AgentID: "agent-1", Type: domain.OpResearch})
	if _, err := env.controller.RejectOperation(ctx, second.ID, "operator-7", "duplicate"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	pending := env.controller.ListPending(domain.ApprovalPending)
	if len(pending) != 1 || pending[0].ID != first.ID {
		t.Fatalf("expected only first operation pending, got %d", len(pending))
	}

	all := env.controller.ListPending("")
	if len(all) != 2 {
		t.Fatalf("expected 2 undispatched operations, got %d", len(all))
	}
}

// Воркер стартует до первого запроса: id не должен оказаться в очереди
// раньше самой операции в pending-мапе, иначе воркер молча выбросит его
func TestConcurrentWorkerExecutesEveryApproval(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	const total = 200
	env := newTestEnv(t, Options{SafetyLevel: domain.SafetyHigh, QueueSize: total})
	env.trustedAgent(ctx, "agent-1")

	go NewWorker(env.controller, zap.NewNop()).Run(ctx)

	ids := make([]string, 0, total)
	for i := 0; i < total; i++ {
		op, err := env.controller.RequestOperation(ctx, Request{
			AgentID: "agent-1",
			Type:    domain.OpAnalysis,
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if op.ApprovalStatus != domain.ApprovalApproved {
			t.Fatalf("expected auto-approval, got %s", op.ApprovalStatus)
		}
		ids = append(ids, op.ID)
	}

	deadline := time.After(5 * time.Second)
	for {
		if atomic.LoadInt32(&env.executor.calls) == total {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("worker executed %d of %d approved operations",
				atomic.LoadInt32(&env.executor.calls), total)
		case <-time.After(10 * time.Millisecond):
		}
	}

	for _, id := range ids {
		got, ok := env.controller.GetOperation(id)
		if !ok || got.ExecutionStatus != domain.ExecCompleted {
			t.Fatalf("operation %s lost by concurrent worker: %+v", id, got)
		}
	}

	profile, _ := env.trust.Get("agent-1")
	if profile.SuccessfulOperations != total {
		t.Fatalf("every execution must feed trust, successful=%d", profile.SuccessfulOperations)
	}
}

// Читатели получают снимки: правка возвращенной структуры не должна
// протекать в состояние контроллера
func TestReadsReturnSnapshots(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, Options{SafetyLevel: domain.SafetyMaximum})
	env.trustedAgent(ctx, "agent-1")

	op, err := env.controller.RequestOperation(ctx, Request{
		AgentID:     "agent-1",
		Type:        domain.OpAnalysis,
		Description: "original",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	op.Description = "tampered via request result"
	op.ApprovalStatus = domain.ApprovalApproved

	got, ok := env.controller.GetOperation(op.ID)
	if !ok {
		t.Fatal("operation must be findable")
	}
	if got.Description != "original" || got.ApprovalStatus != domain.ApprovalPending {
		t.Fatalf("controller state leaked to caller: %q / %s", got.Description, got.ApprovalStatus)
	}

	got.Description = "tampered via get"
	if listed := env.controller.ListPending(""); len(listed) != 1 || listed[0].Description != "original" {
		t.Fatalf("snapshot mutation must not leak, got %+v", listed)
	}

	listed := env.controller.ListPending("")
	listed[0].ApprovalStatus = domain.ApprovalRejected

	again, _ := env.controller.GetOperation(op.ID)
	if again.ApprovalStatus != domain.ApprovalPending {
		t.Fatalf("list snapshot mutation must not leak, got %s", again.ApprovalStatus)
	}
}

func TestStatusSummary(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, Options{SafetyLevel: domain.SafetyHigh})
	env.trustedAgent(ctx, "agent-1")

	if _, err := env.controller.RequestOperation(ctx, Request{AgentID: "agent-1", Type: domain.OpAnalysis}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := env.controller.ExecuteNext(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	status := env.controller.Status()
	if status.GlobalSafetyLevel != domain.SafetyHigh {
		t.Fatalf("unexpected safety level: %s", status.GlobalSafetyLevel)
	}
	if status.RegisteredAgents != 1 || status.CompletedOperations != 1 || status.PendingOperations != 0 {
		t.Fatalf("unexpected status: %+v", status)
	}
	if len(status.RecentOperations) != 1 {
		t.Fatalf("expected 1 recent operation, got %d", len(status.RecentOperations))
	}
}
