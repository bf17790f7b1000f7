package trust

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/xela07ax/council-autonomy-gate/internal/domain"
)

// ProfileRepository — требования стора к персистентности профилей.
// Хранилище догоняющее: решения принимаются по состоянию в памяти
type ProfileRepository interface {
	GetAllProfiles(ctx context.Context) ([]*domain.TrustProfile, error)
	SaveProfile(ctx context.Context, p *domain.TrustProfile) error
}

// Store — один профиль доверия на агента, мутации сериализованы мьютексом.
// Конкурентные запросы разных агентов не пересекаются по записи в один
// профиль: вся мутация профиля происходит под общим замком стора
type Store struct {
	mu       sync.RWMutex
	profiles map[string]*domain.TrustProfile

	repo   ProfileRepository // nil допустим: чисто In-memory режим (тесты)
	logger *zap.Logger

	// Явный переключатель: считать ли rejected провалом (см. TrustConfig)
	rejectionCountsAsFailure bool
}

func NewStore(repo ProfileRepository, rejectionCountsAsFailure bool, logger *zap.Logger) *Store {
	return &Store{
		profiles:                 make(map[string]*domain.TrustProfile),
		repo:                     repo,
		logger:                   logger.Named("trust"),
		rejectionCountsAsFailure: rejectionCountsAsFailure,
	}
}

// Warmup — холодная загрузка профилей из БД при старте
func (s *Store) Warmup(ctx context.Context) error {
	if s.repo == nil {
		return nil
	}

	profiles, err := s.repo.GetAllProfiles(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	for _, p := range profiles {
		s.profiles[p.AgentID] = p
	}
	s.mu.Unlock()

	s.logger.Info("trust profiles loaded", zap.Int("count", len(profiles)))
	return nil
}

// Register создает профиль при первой регистрации агента.
// Повторная регистрация возвращает существующий профиль без сброса истории
func (s *Store) Register(ctx context.Context, agentID, agentName string, initial domain.PermissionLevel) *domain.TrustProfile {
	s.mu.Lock()
	if existing, ok := s.profiles[agentID]; ok {
		s.mu.Unlock()
		return existing
	}

	p := domain.NewTrustProfile(agentID, agentName, initial)
	s.profiles[agentID] = p
	s.mu.Unlock()

	s.persist(ctx, p)
	s.logger.Info("agent registered",
		zap.String("agent_id", agentID),
		zap.String("permission", string(initial)))
	return p
}

// Get возвращает профиль; второй результат false — агент не зарегистрирован
func (s *Store) Get(agentID string) (*domain.TrustProfile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[agentID]
	return p, ok
}

// UpdatePerformance фиксирует исход операции агента и пересчитывает доверие
func (s *Store) UpdatePerformance(ctx context.Context, agentID string, result domain.OperationResult, costVariance, timeVariance float64) {
	s.mu.Lock()
	p, ok := s.profiles[agentID]
	if !ok {
		s.mu.Unlock()
		return
	}
	p.UpdatePerformance(result, costVariance, timeVariance, s.rejectionCountsAsFailure)
	s.mu.Unlock()

	s.persist(ctx, p)
}

// RecordViolation — мгновенный штраф агенту за нарушение
func (s *Store) RecordViolation(ctx context.Context, agentID string, kind domain.ViolationKind, description string) error {
	s.mu.Lock()
	p, ok := s.profiles[agentID]
	if !ok {
		s.mu.Unlock()
		return domain.ErrAgentNotFound
	}
	p.RecordViolation(kind, description)
	s.mu.Unlock()

	s.persist(ctx, p)
	s.logger.Warn("violation recorded",
		zap.String("agent_id", agentID),
		zap.String("kind", string(kind)),
		zap.String("description", description))
	return nil
}

// SetPermission меняет уровень доступа агента (решение администратора)
func (s *Store) SetPermission(ctx context.Context, agentID string, level domain.PermissionLevel) error {
	s.mu.Lock()
	p, ok := s.profiles[agentID]
	if !ok {
		s.mu.Unlock()
		return domain.ErrAgentNotFound
	}
	p.SetPermission(level)
	s.mu.Unlock()

	s.persist(ctx, p)
	return nil
}

// Count — число зарегистрированных агентов
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.profiles)
}

// Summaries — сводки всех профилей для GET /v1/status
func (s *Store) Summaries() map[string]domain.AgentSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]domain.AgentSummary, len(s.profiles))
	for id, p := range s.profiles {
		out[id] = domain.AgentSummary{
			Name:            p.AgentName,
			TrustScore:      p.CurrentTrustScore,
			PermissionLevel: p.CurrentPermissionLevel,
			TotalOperations: p.TotalOperations,
			SuccessRate:     p.SuccessRate(),
		}
	}
	return out
}

func (s *Store) persist(ctx context.Context, p *domain.TrustProfile) {
	if s.repo == nil {
		return
	}
	// Снимок под RLock: воркер исполнения мог уже взять замок на апдейт
	s.mu.RLock()
	snapshot := *p
	s.mu.RUnlock()

	if err := s.repo.SaveProfile(ctx, &snapshot); err != nil {
		s.logger.Error("trust profile persist failed",
			zap.String("agent_id", p.AgentID), zap.Error(err))
	}
}
