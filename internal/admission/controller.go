package admission

/*
Файл controller.go — ядро шлюза допуска автономных операций.

Пайплайн: запрос агента → оценка риска → проверка границ безопасности →
решение (автоапрув / pending / эскалация) → очередь → исполнение →
обратная связь в профиль доверия.

Все реестры (pending-мапа, очередь, история) — поля контроллера,
не процесс-wide синглтоны: каждый тест собирает свежий контроллер.
*/

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xela07ax/council-autonomy-gate/internal/audit"
	"github.com/xela07ax/council-autonomy-gate/internal/domain"
	"github.com/xela07ax/council-autonomy-gate/internal/notify"
	"github.com/xela07ax/council-autonomy-gate/internal/risk"
	"github.com/xela07ax/council-autonomy-gate/internal/safety"
	"github.com/xela07ax/council-autonomy-gate/internal/trust"
)

// AutoApprover — идентификатор системы в поле approved_by при автоапруве
const AutoApprover = "auto_approval_system"

const historyLimit = 1000

// Request — входная декларация операции (уже провалидированная на границе API)
type Request struct {
	AgentID           string
	Type              domain.OperationType
	Description       string
	RequestedActions  []string
	EstimatedCost     float64
	EstimatedDuration int // минуты
}

// Options — настройки поведения контроллера
type Options struct {
	SafetyLevel       domain.SafetyLevel
	AutoApproveScore  float64 // Минимальное доверие для автоапрува
	QueueSize         int
	ExecTimeoutFactor float64 // Таймаут = estimated_duration * фактор; 0 — без таймаута
}

// Controller — единственный владелец состояния операций.
// Мьютекс защищает pending/history; он никогда не держится во время
// исполнения (Execute) — только на взятие и фиксацию результата
type Controller struct {
	mu      sync.Mutex
	pending map[string]*domain.Operation
	history []*domain.Operation

	// Single-consumer очередь: получение из канала и есть атомарный
	// pop-and-claim, два воркера не возьмут один id
	queue chan string

	opts Options

	trust      *trust.Store
	registry   *safety.Registry
	executor   Executor
	recorder   audit.Recorder
	notifier   notify.Notifier
	suspension *SuspensionManager // nil допустим
	metrics    *Metrics
	logger     *zap.Logger
}

func NewController(
	opts Options,
	trustStore *trust.Store,
	registry *safety.Registry,
	executor Executor,
	recorder audit.Recorder,
	notifier notify.Notifier,
	suspension *SuspensionManager,
	metrics *Metrics,
	logger *zap.Logger,
) *Controller {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 1024
	}
	if opts.AutoApproveScore == 0 {
		opts.AutoApproveScore = 70
	}
	if opts.SafetyLevel == "" {
		opts.SafetyLevel = domain.SafetyHigh
	}
	if recorder == nil {
		recorder = audit.NopRecorder{}
	}
	if notifier == nil {
		notifier = notify.NopNotifier{}
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}

	return &Controller{
		pending:    make(map[string]*domain.Operation),
		queue:      make(chan string, opts.QueueSize),
		opts:       opts,
		trust:      trustStore,
		registry:   registry,
		executor:   executor,
		recorder:   recorder,
		notifier:   notifier,
		suspension: suspension,
		metrics:    metrics,
		logger:     logger.Named("admission"),
	}
}

// RequestOperation — точка входа пайплайна допуска.
// Ошибки оценки риска/проверки границ фатальны для запроса: операция
// не создается, вызывающий узнает об этом сразу
func (c *Controller) RequestOperation(ctx context.Context, req Request) (*domain.Operation, error) {
	if _, err := domain.ParseOperationType(string(req.Type)); err != nil {
		return nil, err
	}
	if req.AgentID == "" {
		return nil, fmt.Errorf("agent_id is required")
	}

	op := &domain.Operation{
		ID:                uuid.New().String(),
		AgentID:           req.AgentID,
		Type:              req.Type,
		Description:       req.Description,
		RequestedActions:  req.RequestedActions,
		EstimatedCost:     req.EstimatedCost,
		EstimatedDuration: req.EstimatedDuration,
		ApprovalStatus:    domain.ApprovalPending,
		ExecutionStatus:   domain.ExecQueued,
		Results:           map[string]interface{}{},
		CreatedAt:         time.Now(),
	}

	// 1. Оценка риска и требуемого уровня автономии
	profile, hasProfile := c.trust.Get(req.AgentID)
	op.RiskLevel = risk.Assess(op, profile)
	op.RequiredPermission = risk.RequiredPermission(op)

	// 2. Проверка границ безопасности
	boundaries := c.registry.Snapshot()
	check := safety.Check(op, boundaries)
	op.BoundariesChecked = check.Checked
	op.SafetyViolations = check.Violations
	if len(check.Violations) > 0 {
		c.metrics.ViolationsTotal.WithLabelValues(string(op.Type)).Add(float64(len(check.Violations)))
	}

	// 3. Отстраненный агент не получает автоапрув — принудительная эскалация
	if c.suspension != nil && c.suspension.IsSuspended(req.AgentID) {
		check.Escalate = true
		check.Reasons = append(check.Reasons, "Agent suspended by operator")
	}

	// 4. Эскалация закрывает путь к автоапруву
	autoApproved := false
	if check.Escalate {
		op.Escalate(check.Reasons)
		c.metrics.EscalationsTotal.Inc()
		c.notifier.NotifyEscalation(ctx, notify.Escalation{
			OperationID: op.ID,
			AgentID:     op.AgentID,
			Type:        op.Type,
			RiskLevel:   op.RiskLevel,
			Reasons:     check.Reasons,
			Recipients:  escalationRecipients(op, boundaries),
		})
	} else if c.canAutoApprove(op, profile, hasProfile) {
		// 5. Автоапрув
		if err := op.Approve(AutoApprover); err != nil {
			return nil, err
		}
		autoApproved = true
	}

	// 6. Сначала операция попадает в pending-мапу и только потом ее id —
	// в очередь: воркер, разбуженный каналом, обязан найти операцию.
	// Наружу уходит снимок, живой указатель остается под мьютексом
	c.mu.Lock()
	c.pending[op.ID] = op
	view := *op
	c.mu.Unlock()

	if autoApproved {
		c.enqueue(view.ID)
	}

	c.metrics.DecisionsTotal.WithLabelValues(string(view.ApprovalStatus), string(view.RiskLevel)).Inc()
	c.recorder.Record(audit.DecisionEvent{
		ID:             uuid.New().String(),
		OperationID:    view.ID,
		AgentID:        view.AgentID,
		Stage:          audit.StageAdmission,
		OperationType:  view.Type,
		RiskLevel:      view.RiskLevel,
		ApprovalStatus: view.ApprovalStatus,
		DecidedBy:      view.ApprovedBy,
		Violations:     view.SafetyViolations,
	})

	c.logger.Info("operation admitted",
		zap.String("operation_id", view.ID),
		zap.String("agent_id", view.AgentID),
		zap.String("type", string(view.Type)),
		zap.String("risk", string(view.RiskLevel)),
		zap.String("decision", string(view.ApprovalStatus)),
		zap.Int("violations", len(view.SafetyViolations)))

	return &view, nil
}

// canAutoApprove — все условия должны выполниться одновременно
func (c *Controller) canAutoApprove(op *domain.Operation, profile *domain.TrustProfile, hasProfile bool) bool {
	// Режим MAXIMUM: человек подтверждает всё
	if c.opts.SafetyLevel == domain.SafetyMaximum {
		return false
	}

	if len(op.SafetyViolations) > 0 {
		return false
	}

	if hasProfile {
		if !profile.CurrentPermissionLevel.AtLeast(op.RequiredPermission) {
			return false
		}
		if profile.CurrentTrustScore < c.opts.AutoApproveScore {
			return false
		}
	} else {
		// Bootstrap-допущение: агент без профиля проходит проверки
		// доверия и уровня. Осознанное решение, а не дыра — новый агент
		// еще не успел ни зарегистрироваться, ни провиниться
		c.logger.Warn("auto-approval bootstrap allowance used",
			zap.String("agent_id", op.AgentID),
			zap.String("operation_id", op.ID))
	}

	if op.RiskLevel == domain.RiskHigh && c.opts.SafetyLevel == domain.SafetyHigh {
		return false
	}

	return true
}

// ApproveOperation — ручное подтверждение оператором (HITL)
func (c *Controller) ApproveOperation(ctx context.Context, operationID, approver string) error {
	c.mu.Lock()
	op, ok := c.pending[operationID]
	if !ok {
		c.mu.Unlock()
		return domain.ErrOperationNotFound
	}

	if err := op.Approve(approver); err != nil {
		c.mu.Unlock()
		return err
	}
	view := *op
	c.mu.Unlock()

	c.enqueue(operationID)
	c.recordDecision(&view, approver)

	c.logger.Info("operation approved manually",
		zap.String("operation_id", operationID),
		zap.String("approver", approver))
	return nil
}

// RejectOperation отклоняет операцию. Идемпотентность: повторный вызов
// по уже решенной операции — no-op, возвращает false, причина первого
// отклонения не перезаписывается
func (c *Controller) RejectOperation(ctx context.Context, operationID, rejector, reason string) (bool, error) {
	c.mu.Lock()
	op, ok := c.pending[operationID]
	if !ok {
		c.mu.Unlock()
		return false, domain.ErrOperationNotFound
	}

	if err := op.Reject(rejector, reason); err != nil {
		c.mu.Unlock()
		return false, nil
	}
	view := *op
	c.mu.Unlock()

	// Отклонение — своя категория результата, не провал
	c.trust.UpdatePerformance(ctx, view.AgentID, domain.ResultRejected, 0, 0)
	c.recordDecision(&view, rejector)

	c.logger.Info("operation rejected",
		zap.String("operation_id", operationID),
		zap.String("rejector", rejector),
		zap.String("reason", reason))
	return true, nil
}

// ExecuteNext забирает голову очереди и исполняет ее.
// Пустая очередь → (nil, nil), состояние не меняется.
// Неодобренная операция в очереди просто выбрасывается (no re-queue)
func (c *Controller) ExecuteNext(ctx context.Context) (*domain.Operation, error) {
	select {
	case operationID := <-c.queue:
		c.metrics.QueueDepth.Set(float64(len(c.queue)))
		return c.execute(ctx, operationID)
	default:
		return nil, nil
	}
}

// execute — один проход исполнения: claim → работа без замков → фиксация
func (c *Controller) execute(ctx context.Context, operationID string) (*domain.Operation, error) {
	c.mu.Lock()
	op, ok := c.pending[operationID]
	if !ok || op.ApprovalStatus != domain.ApprovalApproved {
		c.mu.Unlock()
		return nil, nil
	}

	if err := op.Start(); err != nil {
		c.mu.Unlock()
		return nil, err
	}

	// Снимок для исполнителя: работа идет без замка на pending-мапе
	snapshot := *op
	c.mu.Unlock()

	execCtx := ctx
	var cancel context.CancelFunc
	if c.opts.ExecTimeoutFactor > 0 && op.EstimatedDuration > 0 {
		timeout := time.Duration(float64(op.EstimatedDuration) * c.opts.ExecTimeoutFactor * float64(time.Minute))
		execCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	started := time.Now()
	results, execErr := c.executor.Execute(execCtx, &snapshot)
	elapsed := time.Since(started)

	// Фиксация результата и обратная связь в профиль доверия.
	// Ошибка исполнителя поглощается состоянием операции и не
	// останавливает обработку очереди
	c.mu.Lock()
	if execErr != nil {
		_ = op.Fail(execErr)
	} else {
		_ = op.Complete(results)
	}

	// Терминальная операция уходит из pending в историю при любом исходе
	delete(c.pending, operationID)
	c.history = append(c.history, op)
	if len(c.history) > historyLimit {
		c.history = c.history[len(c.history)-historyLimit:]
	}
	final := *op
	c.mu.Unlock()

	result := domain.ResultSuccess
	if execErr != nil {
		result = domain.ResultFailed
	}
	c.trust.UpdatePerformance(ctx, final.AgentID, result, 0, 0)
	if profile, ok := c.trust.Get(final.AgentID); ok {
		c.metrics.TrustScore.WithLabelValues(final.AgentID).Set(profile.CurrentTrustScore)
	}

	c.metrics.ExecutionDuration.WithLabelValues(string(final.Type), string(final.ExecutionStatus)).Observe(elapsed.Seconds())

	event := audit.DecisionEvent{
		ID:             uuid.New().String(),
		OperationID:    final.ID,
		AgentID:        final.AgentID,
		Stage:          audit.StageExecution,
		OperationType:  final.Type,
		RiskLevel:      final.RiskLevel,
		ApprovalStatus: final.ApprovalStatus,
		DurationMs:     elapsed.Milliseconds(),
	}
	if execErr != nil {
		event.Error = execErr.Error()
	}
	c.recorder.Record(event)

	if execErr != nil {
		c.logger.Warn("operation execution failed",
			zap.String("operation_id", final.ID),
			zap.Duration("elapsed", elapsed),
			zap.Error(execErr))
	} else {
		c.logger.Info("operation executed",
			zap.String("operation_id", final.ID),
			zap.Duration("elapsed", elapsed))
	}

	return &final, nil
}

// GetOperation ищет операцию в pending, затем в истории.
// Читатели получают снимок: живые указатели не покидают мьютекс
func (c *Controller) GetOperation(operationID string) (*domain.Operation, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if op, ok := c.pending[operationID]; ok {
		view := *op
		return &view, true
	}
	for i := len(c.history) - 1; i >= 0; i-- {
		if c.history[i].ID == operationID {
			view := *c.history[i]
			return &view, true
		}
	}
	return nil, false
}

// ListPending возвращает снимки операций, ожидающих решения или
// исполнения. status == "" — все pending без фильтра
func (c *Controller) ListPending(status domain.ApprovalStatus) []*domain.Operation {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]*domain.Operation, 0, len(c.pending))
	for _, op := range c.pending {
		if status == "" || op.ApprovalStatus == status {
			view := *op
			out = append(out, &view)
		}
	}
	return out
}

// Status собирает сводку для GET /v1/status
func (c *Controller) Status() domain.AutonomyStatus {
	c.mu.Lock()
	pendingCount := len(c.pending)
	completed := len(c.history)

	recent := make([]domain.OperationSummary, 0, 10)
	start := len(c.history) - 10
	if start < 0 {
		start = 0
	}
	for _, op := range c.history[start:] {
		recent = append(recent, domain.OperationSummary{
			ID:        op.ID,
			AgentID:   op.AgentID,
			Type:      op.Type,
			Status:    op.ExecutionStatus,
			CreatedAt: op.CreatedAt,
		})
	}
	c.mu.Unlock()

	return domain.AutonomyStatus{
		GlobalSafetyLevel:   c.opts.SafetyLevel,
		RegisteredAgents:    c.trust.Count(),
		ActiveBoundaries:    c.registry.ActiveCount(),
		PendingOperations:   pendingCount,
		QueuedOperations:    len(c.queue),
		CompletedOperations: completed,
		TrustProfiles:       c.trust.Summaries(),
		RecentOperations:    recent,
	}
}

func (c *Controller) enqueue(operationID string) {
	// Load Shedding: переполненная очередь не блокирует допуск,
	// операция остается approved и видна оператору
	select {
	case c.queue <- operationID:
		c.metrics.QueueDepth.Set(float64(len(c.queue)))
	default:
		c.logger.Error("execution queue overflow, operation not enqueued",
			zap.String("operation_id", operationID))
	}
}

func (c *Controller) recordDecision(op *domain.Operation, decidedBy string) {
	c.recorder.Record(audit.DecisionEvent{
		ID:             uuid.New().String(),
		OperationID:    op.ID,
		AgentID:        op.AgentID,
		Stage:          audit.StageDecision,
		OperationType:  op.Type,
		RiskLevel:      op.RiskLevel,
		ApprovalStatus: op.ApprovalStatus,
		DecidedBy:      decidedBy,
	})
}

// escalationRecipients — объединение получателей всех сработавших границ
func escalationRecipients(op *domain.Operation, boundaries []*domain.SafetyBoundary) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, b := range boundaries {
		if !b.Active || !b.AppliesTo(op.Type) {
			continue
		}
		for _, r := range b.EscalationRecipients {
			if _, ok := seen[r]; !ok {
				seen[r] = struct{}{}
				out = append(out, r)
			}
		}
	}
	return out
}
