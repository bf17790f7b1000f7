package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xela07ax/council-autonomy-gate/internal/domain"
	"github.com/xela07ax/council-autonomy-gate/internal/infra"
)

// Escalation — уведомление оператору о том, что операция ждет человека
type Escalation struct {
	OperationID string               `json:"operation_id"`
	AgentID     string               `json:"agent_id"`
	Type        domain.OperationType `json:"operation_type"`
	RiskLevel   domain.RiskLevel     `json:"risk_level"`
	Reasons     []string             `json:"reasons"`
	Recipients  []string             `json:"recipients"`
	Timestamp   time.Time            `json:"timestamp"`
}

// Notifier доставляет эскалации получателям. Контроллер не знает про транспорт
type Notifier interface {
	NotifyEscalation(ctx context.Context, esc Escalation)
}

// RedisNotifier транслирует эскалации через Pub/Sub: общий канал для
// дашборда операторов плюс персональные каналы получателей границы
type RedisNotifier struct {
	rdb    *redis.Client
	logger *zap.Logger
}

func NewRedisNotifier(rdb *redis.Client, logger *zap.Logger) *RedisNotifier {
	return &RedisNotifier{rdb: rdb, logger: logger.Named("notifier")}
}

func (n *RedisNotifier) NotifyEscalation(ctx context.Context, esc Escalation) {
	if esc.Timestamp.IsZero() {
		esc.Timestamp = time.Now()
	}

	payload, err := json.Marshal(esc)
	if err != nil {
		n.logger.Error("failed to marshal escalation", zap.Error(err))
		return
	}

	// Потеря сигнала не фатальна: эскалированная операция остается
	// в pending и видна через GET /v1/operations?status=escalated
	if err := n.rdb.Publish(ctx, infra.RedisChanEscalations, payload).Err(); err != nil {
		n.logger.Warn("escalation broadcast failed",
			zap.String("operation_id", esc.OperationID), zap.Error(err))
	}

	for _, recipient := range esc.Recipients {
		ch := infra.GetEscalationChanKey(recipient)
		if err := n.rdb.Publish(ctx, ch, payload).Err(); err != nil {
			n.logger.Warn("escalation delivery failed",
				zap.String("recipient", recipient), zap.Error(err))
		}
	}

	n.logger.Info("escalation notified",
		zap.String("operation_id", esc.OperationID),
		zap.Strings("reasons", esc.Reasons),
		zap.Int("recipients", len(esc.Recipients)))
}

// NopNotifier — для тестов и конфигураций без Redis
type NopNotifier struct{}

func (NopNotifier) NotifyEscalation(context.Context, Escalation) {}
