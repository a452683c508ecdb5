package domain

import (
	"errors"
	"time"
)

// ApprovalDecision — терминальный исход гейта.
type ApprovalDecision string

const (
	DecisionApproved ApprovalDecision = "APPROVED"
	DecisionDenied   ApprovalDecision = "DENIED"
	DecisionTimedOut ApprovalDecision = "TIMED_OUT"
)

// Permits — исполнение разрешено только явным APPROVED. TIMED_OUT трактуется как отказ.
func (d ApprovalDecision) Permits() bool {
	return d == DecisionApproved
}

// Статусы State Machine
type ApprovalStatus string

const (
	StatusPending  ApprovalStatus = "PENDING"
	StatusApproved ApprovalStatus = "APPROVED"
	StatusDenied   ApprovalStatus = "DENIED"
	StatusTimedOut ApprovalStatus = "TIMED_OUT"
)

// IsTerminal — из терминального статуса переходов нет.
func (s ApprovalStatus) IsTerminal() bool {
	return s == StatusApproved || s == StatusDenied || s == StatusTimedOut
}

// Decision переводит терминальный статус в решение гейта.
func (s ApprovalStatus) Decision() (ApprovalDecision, bool) {
	if !s.IsTerminal() {
		return "", false
	}
	return ApprovalDecision(s), true
}

var (
	ErrInvalidTransition   = errors.New("invalid approval status transition")
	ErrAlreadyProcessed    = errors.New("approval request already processed")
	ErrApprovalNotFound    = errors.New("approval request not found")
	ErrApprovalNotRequired = errors.New("approval is not required for LOW risk")
)

type ApprovalRequest struct {
	ID          string         `json:"id"`
	TaskID      string         `json:"task_id"` // Ссылка на приостановленную задачу в диспетчере
	Description string         `json:"description"`
	Level       RiskLevel      `json:"level"`
	Indicators  []string       `json:"indicators"`
	Status      ApprovalStatus `json:"status"`

	ReviewerID *string `json:"reviewer_id,omitempty"`
	Comment    *string `json:"comment,omitempty"`

	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt time.Time  `json:"expires_at"`
	DecidedAt *time.Time `json:"decided_at,omitempty"`
}

// CanTransitionTo проверяет правила конечного автомата
func (a *ApprovalRequest) CanTransitionTo(next ApprovalStatus) error {
	if a.Status != StatusPending {
		return ErrAlreadyProcessed
	}
	if !next.IsTerminal() {
		return ErrInvalidTransition
	}
	return nil
}

// Verdict — сигнал решения, который идет по каналу от оператора к ждущему гейту.
type Verdict struct {
	ApprovalID string           `json:"approval_id"`
	Decision   ApprovalDecision `json:"decision"`
	ReviewerID string           `json:"reviewer_id,omitempty"`
	Comment    string           `json:"comment,omitempty"`
}
