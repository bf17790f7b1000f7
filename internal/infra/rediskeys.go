package infra

import "fmt"

const (
	// RedisNamespace Базовый префикс для изоляции данных проекта в Redis
	RedisNamespace = "cagate"
)

// Ключи для Sets (состояние)
const (
	RedisKeySuspendedAgents  = RedisNamespace + ":agents:suspended_set"
	RedisKeyLockWarmup       = RedisNamespace + ":lock:warmup:boundaries"
	RedisKeyLockWarmupAgents = RedisNamespace + ":lock:warmup:agents"
)

// Каналы Pub/Sub (события)
const (
	// RedisChanBoundaryUpdate — инвалидация кэша границ между инстансами
	RedisChanBoundaryUpdate = RedisNamespace + ":boundaries:update"

	// RedisChanEscalations — трансляция эскалаций операторам (HITL)
	RedisChanEscalations = RedisNamespace + ":operations:escalations"

	// RedisChanDecisions — решения операторов по эскалированным операциям
	RedisChanDecisions = RedisNamespace + ":operations:decisions"

	// RedisChanSuspend — сигналы отстранения агентов ("agent_id:on"/"agent_id:off")
	RedisChanSuspend = RedisNamespace + ":agents:suspend-signal"
)

// GetEscalationChanKey — персональный канал получателя эскалаций
func GetEscalationChanKey(recipient string) string {
	return fmt.Sprintf("%s:escalations:%s", RedisNamespace, recipient)
}
