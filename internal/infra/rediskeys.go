package infra

import "fmt"

const (
	// RedisNamespace Базовый префикс для изоляции данных проекта в Redis
	RedisNamespace = "taskgate"
)

// Каналы Pub/Sub (события)
const (
	// RedisChanApprovalDecisions — префикс каналов решений оператора (HITL).
	RedisChanApprovalDecisions = RedisNamespace + ":approvals"
	// RedisChanApprovalRequests — канал уведомлений о новых запросах на подтверждение.
	RedisChanApprovalRequests = RedisNamespace + ":approvals:requests"
	// RedisChanRulesUpdate — сигнал инвалидации кэша таблицы индикаторов.
	RedisChanRulesUpdate = RedisNamespace + ":rules:update"
)

// ApprovalDecisionChannel — канал уникален для конкретного запроса:
// taskgate:approvals:execution:{approvalID}
func ApprovalDecisionChannel(approvalID string) string {
	return fmt.Sprintf("%s:execution:%s", RedisChanApprovalDecisions, approvalID)
}
