package domain

import (
	"errors"
	"time"
)

// TaskRequest — входящий запрос на выполнение. Неизменяем, живет до классификации.
type TaskRequest struct {
	ID          string `json:"id"`
	Description string `json:"task"`
}

type TaskStatus string

const (
	TaskPendingApproval TaskStatus = "PENDING_APPROVAL"
	TaskRunning         TaskStatus = "RUNNING"
	TaskCompleted       TaskStatus = "COMPLETED"
	TaskFailed          TaskStatus = "FAILED"
	TaskDenied          TaskStatus = "DENIED"
	TaskTimedOut        TaskStatus = "TIMED_OUT"
)

var ErrRunNotFound = errors.New("task run not found")

// TaskRun — запись диспетчера о судьбе задачи. Хранится в инжектируемом runs.Store.
type TaskRun struct {
	ID          string         `json:"id"`
	Description string         `json:"task"`
	Assessment  RiskAssessment `json:"assessment"`

	// Decision == nil означает, что гейт был пропущен (LOW)
	Decision *ApprovalDecision `json:"decision,omitempty"`

	Status     TaskStatus `json:"status"`
	Output     string     `json:"output,omitempty"`
	Error      string     `json:"error,omitempty"`
	TraceID    string     `json:"trace_id,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Executed сообщает, дошла ли задача до исполнителя.
func (r *TaskRun) Executed() bool {
	return r.Status == TaskRunning || r.Status == TaskCompleted || r.Status == TaskFailed
}
