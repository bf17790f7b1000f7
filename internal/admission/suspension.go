package admission

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xela07ax/council-autonomy-gate/internal/infra"
)

// SuspensionManager — оперативное отстранение агента от автономии.
// Запросы отстраненного агента не проходят автоапрув и сразу эскалируются.
// L1 кэш в памяти, L2 — Redis Set для общего состояния инстансов
type SuspensionManager struct {
	mu        sync.RWMutex
	suspended map[string]struct{}

	rdb    *redis.Client // nil допустим: чисто локальный режим (тесты)
	logger *zap.Logger
}

func NewSuspensionManager(rdb *redis.Client, logger *zap.Logger) *SuspensionManager {
	return &SuspensionManager{
		suspended: make(map[string]struct{}),
		rdb:       rdb,
		logger:    logger.Named("suspension"),
	}
}

// Init прогревает локальный кэш из Redis при старте шлюза
func (m *SuspensionManager) Init(ctx context.Context) error {
	if m.rdb == nil {
		return nil
	}

	agents, err := m.rdb.SMembers(ctx, infra.RedisKeySuspendedAgents).Result()
	if err != nil {
		return fmt.Errorf("failed to load suspended agents: %w", err)
	}

	m.mu.Lock()
	for _, id := range agents {
		m.suspended[id] = struct{}{}
	}
	m.mu.Unlock()

	m.logger.Info("suspension state loaded", zap.Int("count", len(agents)))
	return nil
}

// IsSuspended — быстрая проверка в Hot Path допуска
func (m *SuspensionManager) IsSuspended(agentID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.suspended[agentID]
	return ok
}

// Suspend отстраняет агента: локальный кэш, Redis Set, сигнал инстансам
func (m *SuspensionManager) Suspend(ctx context.Context, agentID string) error {
	m.mu.Lock()
	m.suspended[agentID] = struct{}{}
	m.mu.Unlock()

	return m.broadcast(ctx, agentID, true)
}

// Reinstate возвращает агенту право на автономию
func (m *SuspensionManager) Reinstate(ctx context.Context, agentID string) error {
	m.mu.Lock()
	delete(m.suspended, agentID)
	m.mu.Unlock()

	return m.broadcast(ctx, agentID, false)
}

func (m *SuspensionManager) broadcast(ctx context.Context, agentID string, on bool) error {
	if m.rdb == nil {
		return nil
	}

	if on {
		if err := m.rdb.SAdd(ctx, infra.RedisKeySuspendedAgents, agentID).Err(); err != nil {
			return fmt.Errorf("suspension state update failed: %w", err)
		}
	} else {
		if err := m.rdb.SRem(ctx, infra.RedisKeySuspendedAgents, agentID).Err(); err != nil {
			return fmt.Errorf("suspension state update failed: %w", err)
		}
	}

	val := "off"
	if on {
		val = "on"
	}
	payload := fmt.Sprintf("%s:%s", agentID, val)
	if err := m.rdb.Publish(ctx, infra.RedisChanSuspend, payload).Err(); err != nil {
		// Сигнал потерян — другие инстансы догонят состояние при ресинке
		m.logger.Warn("suspension signal delivery failed",
			zap.String("agent_id", agentID), zap.Error(err))
	}

	m.logger.Info("agent suspension updated",
		zap.String("agent_id", agentID), zap.Bool("suspended", on))
	return nil
}

// StartListener — подписка на сигналы отстранения в реальном времени
// с переподключением и ресинхронизацией кэша
func (m *SuspensionManager) StartListener(ctx context.Context) {
	if m.rdb == nil {
		return
	}

	for {
		pubsub := m.rdb.Subscribe(ctx, infra.RedisChanSuspend)

		if _, err := pubsub.Receive(ctx); err != nil {
			m.logger.Error("failed to subscribe to suspension signals", zap.Error(err))
			pubsub.Close()
			select {
			case <-ctx.Done():
				return
			case <-time.After(5 * time.Second):
				continue
			}
		}

		// Ресинк при каждом успешном коннекте
		if err := m.resync(ctx); err != nil {
			m.logger.Error("suspension resync failed", zap.Error(err))
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
				m.processSignal(msg.Payload)
			}
		}

		pubsub.Close()
		time.Sleep(time.Second)
	}
}

// processSignal разбирает формат "agent_id:on" / "agent_id:off"
func (m *SuspensionManager) processSignal(payload string) {
	parts := strings.Split(payload, ":")
	if len(parts) != 2 {
		m.logger.Error("invalid suspension signal format", zap.String("payload", payload))
		return
	}

	agentID := parts[0]
	on := parts[1] == "on" || parts[1] == "true"

	m.mu.Lock()
	defer m.mu.Unlock()
	if on {
		m.suspended[agentID] = struct{}{}
	} else {
		delete(m.suspended, agentID)
	}
}

func (m *SuspensionManager) resync(ctx context.Context) error {
	agents, err := m.rdb.SMembers(ctx, infra.RedisKeySuspendedAgents).Result()
	if err != nil {
		return err
	}

	fresh := make(map[string]struct{}, len(agents))
	for _, id := range agents {
		fresh[id] = struct{}{}
	}

	m.mu.Lock()
	m.suspended = fresh
	m.mu.Unlock()
	return nil
}
