package audit

import "time"

// Статусы событий журнала
const (
	StatusClassified = "CLASSIFIED" // dry-run классификация
	StatusSuspended  = "SUSPENDED"  // задача ушла на гейт
	StatusCompleted  = "COMPLETED"
	StatusFailed     = "FAILED"
	StatusDenied     = "DENIED"
	StatusTimedOut   = "TIMED_OUT"
)

type AuditEvent struct {
	ID      string `json:"id"`       // UUID события
	TraceID string `json:"trace_id"` // Сквозной ID запроса
	TaskID  string `json:"task_id"`
	Task    string `json:"task"` // Описание задачи как пришло от пользователя

	// Оценка риска
	RiskLevel  string   `json:"risk_level"`
	Indicators []string `json:"indicators"`

	// HITL
	Decision string `json:"decision,omitempty"` // пусто, если гейт не понадобился

	// Результат
	Status     string      `json:"status"`
	Response   interface{} `json:"response,omitempty"` // Что вернул runner
	Timestamp  time.Time   `json:"timestamp"`
	DurationMs int64       `json:"duration_ms"` // Время обработки, включая ожидание оператора
	Error      string      `json:"error,omitempty"`
}
