package domain

import (
	"errors"
	"testing"
)

func newOperation() *Operation {
	return &Operation{
		ID:              "op-1",
		AgentID:         "agent-1",
		Type:            OpAnalysis,
		ApprovalStatus:  ApprovalPending,
		ExecutionStatus: ExecQueued,
	}
}

func TestApproveFromPending(t *testing.T) {
	op := newOperation()

	if err := op.Approve("operator-7"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if op.ApprovalStatus != ApprovalApproved {
		t.Fatalf("expected approved, got %s", op.ApprovalStatus)
	}
	if op.ApprovedBy != "operator-7" || op.ApprovedAt == nil {
		t.Fatal("expected approver and timestamp to be recorded")
	}
}

func TestDecisionIsFinal(t *testing.T) {
	op := newOperation()
	if err := op.Approve("operator-7"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := op.Approve("operator-8"); !errors.Is(err, ErrAlreadyDecided) {
		t.Fatalf("expected ErrAlreadyDecided on second approve, got %v", err)
	}
	if err := op.Reject("operator-8", "changed my mind"); !errors.Is(err, ErrAlreadyDecided) {
		t.Fatalf("expected ErrAlreadyDecided on reject after approve, got %v", err)
	}
	if op.ApprovedBy != "operator-7" {
		t.Fatalf("first decision must survive, approved_by=%s", op.ApprovedBy)
	}
}

func TestRejectKeepsReason(t *testing.T) {
	op := newOperation()

	if err := op.Reject("operator-7", "budget freeze"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if op.ApprovalStatus != ApprovalRejected || op.RejectionReason != "budget freeze" {
		t.Fatalf("unexpected state: %s / %q", op.ApprovalStatus, op.RejectionReason)
	}

	if err := op.Reject("operator-8", "other reason"); !errors.Is(err, ErrAlreadyDecided) {
		t.Fatalf("expected ErrAlreadyDecided, got %v", err)
	}
	if op.RejectionReason != "budget freeze" {
		t.Fatalf("original reason was overwritten: %q", op.RejectionReason)
	}
}

// Эскалация — ожидание человека, а не финальный вердикт:
// оператор должен мочь и одобрить, и отклонить эскалированную операцию
func TestEscalatedOperationAcceptsDecision(t *testing.T) {
	t.Run("approve", func(t *testing.T) {
		op := newOperation()
		op.Escalate([]string{"Cost threshold exceeded"})

		if op.ApprovalStatus != ApprovalEscalated || !op.EscalationTriggered {
			t.Fatalf("unexpected state after escalate: %s", op.ApprovalStatus)
		}
		if err := op.Approve("operator-7"); err != nil {
			t.Fatalf("escalated operation must be approvable: %v", err)
		}
	})

	t.Run("reject", func(t *testing.T) {
		op := newOperation()
		op.Escalate([]string{"Blocked action attempted"})

		if err := op.Reject("operator-7", "too risky"); err != nil {
			t.Fatalf("escalated operation must be rejectable: %v", err)
		}
	})
}

func TestStartRequiresApproval(t *testing.T) {
	op := newOperation()

	if err := op.Start(); !errors.Is(err, ErrNotApproved) {
		t.Fatalf("expected ErrNotApproved for pending operation, got %v", err)
	}

	if err := op.Approve("operator-7"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := op.Start(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if op.ExecutionStatus != ExecRunning || op.StartedAt == nil {
		t.Fatalf("expected running state with timestamp, got %s", op.ExecutionStatus)
	}
}

func TestTerminalStateIsSticky(t *testing.T) {
	op := newOperation()
	if err := op.Approve("operator-7"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := op.Start(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := op.Complete(map[string]interface{}{"status": "done"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := op.Complete(nil); !errors.Is(err, ErrTerminalState) {
		t.Fatalf("expected ErrTerminalState on double complete, got %v", err)
	}
	if err := op.Fail(errors.New("late failure")); !errors.Is(err, ErrTerminalState) {
		t.Fatalf("expected ErrTerminalState on fail after complete, got %v", err)
	}
	if err := op.Start(); !errors.Is(err, ErrTerminalState) {
		t.Fatalf("expected ErrTerminalState on restart, got %v", err)
	}
}

func TestFailRecordsError(t *testing.T) {
	op := newOperation()
	if err := op.Approve("operator-7"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := op.Start(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := op.Fail(errors.New("connector timeout")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if op.ExecutionStatus != ExecFailed || op.CompletedAt == nil {
		t.Fatalf("unexpected state: %s", op.ExecutionStatus)
	}
	if op.Results["error"] != "connector timeout" {
		t.Fatalf("expected error text in results, got %v", op.Results)
	}
}

func TestExecutionStatusTerminal(t *testing.T) {
	for _, s := range []ExecutionStatus{ExecCompleted, ExecFailed, ExecCancelled} {
		if !s.Terminal() {
			t.Errorf("%s must be terminal", s)
		}
	}
	for _, s := range []ExecutionStatus{ExecQueued, ExecRunning} {
		if s.Terminal() {
			t.Errorf("%s must not be terminal", s)
		}
	}
}

func TestParseOperationType(t *testing.T) {
	if _, err := ParseOperationType("financial"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := ParseOperationType("mining"); !errors.Is(err, ErrUnknownOperationType) {
		t.Fatalf("expected ErrUnknownOperationType, got %v", err)
	}
}

func TestPermissionRanking(t *testing.T) {
	if !PermHighAutonomy.AtLeast(PermModerateAutonomy) {
		t.Error("high_autonomy must satisfy moderate_autonomy")
	}
	if PermAdvisory.AtLeast(PermLimitedAction) {
		t.Error("advisory must not satisfy limited_action")
	}
	if !PermFullAutonomy.AtLeast(PermFullAutonomy) {
		t.Error("level must satisfy itself")
	}
	// Неизвестный уровень ниже любого известного
	if PermissionLevel("root").AtLeast(PermReadOnly) {
		t.Error("unknown level must rank below read_only")
	}
}
