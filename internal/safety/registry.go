package safety

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xela07ax/council-autonomy-gate/internal/domain"
	"github.com/xela07ax/council-autonomy-gate/internal/infra"
)

// BoundaryRepository описывает требования реестра к хранилищу границ
type BoundaryRepository interface {
	GetAllBoundaries(ctx context.Context) ([]*domain.SafetyBoundary, error)
	UpsertBoundary(ctx context.Context, b *domain.SafetyBoundary) error
}

// Registry — потокобезопасный In-memory кэш границ безопасности.
// Hot Path проверки допуска работает только с RAM; Postgres нужен
// для холодной загрузки (Refresh) и записи изменений администратора.
// Инвалидация между инстансами — через Redis Pub/Sub
type Registry struct {
	mu         sync.RWMutex
	boundaries map[string]*domain.SafetyBoundary

	repo   BoundaryRepository // nil допустим: чисто In-memory режим (тесты)
	rdb    *redis.Client      // nil допустим: без межинстансных сигналов
	logger *zap.Logger
}

func NewRegistry(repo BoundaryRepository, rdb *redis.Client, logger *zap.Logger) *Registry {
	return &Registry{
		boundaries: make(map[string]*domain.SafetyBoundary),
		repo:       repo,
		rdb:        rdb,
		logger:     logger.Named("boundaries"),
	}
}

// Refresh выполняет холодную загрузку всех границ из БД в память.
// Если хранилище пустое — засеваем дефолтные границы
func (r *Registry) Refresh(ctx context.Context) error {
	if r.repo == nil {
		return nil
	}

	stored, err := r.repo.GetAllBoundaries(ctx)
	if err != nil {
		return fmt.Errorf("boundary refresh failed: %w", err)
	}

	if len(stored) == 0 {
		stored = DefaultBoundaries()
		for _, b := range stored {
			if err := r.repo.UpsertBoundary(ctx, b); err != nil {
				r.logger.Warn("failed to persist default boundary",
					zap.String("boundary_id", b.ID), zap.Error(err))
			}
		}
		r.logger.Info("seeded default safety boundaries", zap.Int("count", len(stored)))
	}

	fresh := make(map[string]*domain.SafetyBoundary, len(stored))
	for _, b := range stored {
		fresh[b.ID] = b
	}

	r.mu.Lock()
	r.boundaries = fresh
	r.mu.Unlock()

	r.logger.Info("boundary cache refreshed", zap.Int("count", len(fresh)))
	return nil
}

// Snapshot отдает срез границ для прогона через Check.
// Копия среза, указатели общие: границы после публикации не мутируются
func (r *Registry) Snapshot() []*domain.SafetyBoundary {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*domain.SafetyBoundary, 0, len(r.boundaries))
	for _, b := range r.boundaries {
		out = append(out, b)
	}
	return out
}

func (r *Registry) Get(id string) (*domain.SafetyBoundary, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.boundaries[id]
	return b, ok
}

// ActiveCount — число действующих границ (для сводки статуса)
func (r *Registry) ActiveCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, b := range r.boundaries {
		if b.Active {
			n++
		}
	}
	return n
}

// Add регистрирует новую границу: кэш, БД, сигнал остальным инстансам
func (r *Registry) Add(ctx context.Context, b *domain.SafetyBoundary) error {
	if b.ID == "" {
		b.ID = uuid.New().String()
	}
	now := time.Now()
	b.CreatedAt = now
	b.UpdatedAt = now
	b.Active = true

	return r.publish(ctx, b)
}

// Update перезаписывает границу целиком (редактирование администратором)
func (r *Registry) Update(ctx context.Context, b *domain.SafetyBoundary) error {
	r.mu.RLock()
	_, exists := r.boundaries[b.ID]
	r.mu.RUnlock()
	if !exists {
		return domain.ErrOperationNotFound
	}

	b.UpdatedAt = time.Now()
	return r.publish(ctx, b)
}

// Toggle переключает флаг Active без удаления записи
func (r *Registry) Toggle(ctx context.Context, id string, active bool) error {
	r.mu.RLock()
	b, exists := r.boundaries[id]
	r.mu.RUnlock()
	if !exists {
		return domain.ErrOperationNotFound
	}

	copied := *b
	copied.Active = active
	copied.UpdatedAt = time.Now()
	return r.publish(ctx, &copied)
}

func (r *Registry) publish(ctx context.Context, b *domain.SafetyBoundary) error {
	if r.repo != nil {
		if err := r.repo.UpsertBoundary(ctx, b); err != nil {
			return fmt.Errorf("boundary persist failed: %w", err)
		}
	}

	r.mu.Lock()
	r.boundaries[b.ID] = b
	r.mu.Unlock()

	// Сигнал инвалидации; его потеря не критична — другой инстанс
	// догонит состояние при следующем Refresh
	if r.rdb != nil {
		if err := r.rdb.Publish(ctx, infra.RedisChanBoundaryUpdate, b.ID).Err(); err != nil {
			r.logger.Warn("boundary update signal failed",
				zap.String("boundary_id", b.ID), zap.Error(err))
		}
	}
	return nil
}

// StartListener — "живучая" подписка на сигналы обновления границ.
// Переподключение с ресинхронизацией кэша при каждом успешном коннекте
func (r *Registry) StartListener(ctx context.Context) {
	if r.rdb == nil {
		return
	}

	for {
		pubsub := r.rdb.Subscribe(ctx, infra.RedisChanBoundaryUpdate)

		if _, err := pubsub.Receive(ctx); err != nil {
			r.logger.Error("failed to subscribe to boundary updates", zap.Error(err))
			pubsub.Close()
			select {
			case <-ctx.Done():
				return
			case <-time.After(5 * time.Second):
				continue
			}
		}

		// Ресинхронизация при каждом коннекте: пропущенные сигналы не теряются
		if err := r.Refresh(ctx); err != nil {
			r.logger.Error("boundary resync failed on reconnect", zap.Error(err))
		}

		ch := pubsub.Channel()

	loop:
		for {
			select {
			case <-ctx.Done():
				pubsub.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					break loop // Канал закрыт, идем на переподключение
				}
				r.logger.Debug("boundary update signal received", zap.String("boundary_id", msg.Payload))
				if err := r.Refresh(ctx); err != nil {
					r.logger.Error("boundary refresh failed", zap.Error(err))
				}
			}
		}

		pubsub.Close()
		time.Sleep(time.Second)
	}
}

// DefaultBoundaries — стартовый набор границ для пустого хранилища:
// безопасные read-only операции и высокорисковые с обязательным апрувом
func DefaultBoundaries() []*domain.SafetyBoundary {
	now := time.Now()
	return []*domain.SafetyBoundary{
		{
			ID:               "readonly_default",
			Name:             "Read-Only Operations",
			Description:      "Safe operations that only read data and provide analysis",
			OperationTypes:   []domain.OperationType{domain.OpAnalysis, domain.OpResearch},
			MaxCostThreshold: 0,
			MaxTimeThreshold: 30,
			RequiresApproval: false,
			Active:           true,
			CreatedAt:        now,
			UpdatedAt:        now,
		},
		{
			ID:               "highrisk_default",
			Name:             "High-Risk Operations",
			Description:      "Operations requiring explicit approval",
			OperationTypes:   []domain.OperationType{domain.OpSystemModification, domain.OpFinancial, domain.OpExternalAPI},
			MaxCostThreshold: 100,
			MaxTimeThreshold: 60,
			RequiresApproval: true,
			EscalationTriggers: []domain.EscalationTrigger{
				domain.TriggerHighCost,
				domain.TriggerHighRisk,
			},
			Active:    true,
			CreatedAt: now,
			UpdatedAt: now,
		},
	}
}
