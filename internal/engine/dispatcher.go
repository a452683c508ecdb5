package engine

/*
Ядро шлюза: classify -> {proceed | gate} -> executor.

Единственный инвариант, ради которого существует пакет: задача доходит до
Executor только если уровень риска LOW или гейт вернул APPROVED.
*/

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/xela07ax/spaceai-taskgate/internal/audit"
	"github.com/xela07ax/spaceai-taskgate/internal/domain"
	"github.com/xela07ax/spaceai-taskgate/internal/infra"
	"go.uber.org/zap"
)

// Executor — цикл браузерной автоматизации. Живет за пределами шлюза.
type Executor interface {
	Execute(ctx context.Context, task domain.TaskRequest) ([]byte, error)
}

type Classifier interface {
	Classify(description string) domain.RiskAssessment
}

type Approver interface {
	RequestApproval(ctx context.Context, task domain.TaskRequest, assessment domain.RiskAssessment, timeout time.Duration) (domain.ApprovalDecision, error)
}

type RunStore interface {
	Put(ctx context.Context, run *domain.TaskRun) error
}

type Dispatcher struct {
	classifier Classifier
	approver   Approver
	executor   Executor
	runs       RunStore
	auditor    audit.Auditor
	metrics    *Metrics
	logger     *zap.Logger

	// approvalTimeout <= 0: гейт берет свое значение по умолчанию
	approvalTimeout time.Duration
	now             func() time.Time
}

func NewDispatcher(
	classifier Classifier,
	approver Approver,
	executor Executor,
	runs RunStore,
	auditor audit.Auditor,
	metrics *Metrics,
	logger *zap.Logger,
	approvalTimeout time.Duration,
) *Dispatcher {
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Dispatcher{
		classifier:      classifier,
		approver:        approver,
		executor:        executor,
		runs:            runs,
		auditor:         auditor,
		metrics:         metrics,
		logger:          logger.Named("dispatcher"),
		approvalTimeout: approvalTimeout,
		now:             time.Now,
	}
}

// Classify — dry-run: оценка без исполнения и без гейта.
func (d *Dispatcher) Classify(ctx context.Context, description string) domain.RiskAssessment {
	a := d.classifier.Classify(description)
	d.auditor.Log(audit.AuditEvent{
		ID:         uuid.New().String(),
		TraceID:    infra.TraceIDFromContext(ctx),
		Task:       description,
		RiskLevel:  string(a.Level),
		Indicators: a.Indicators,
		Status:     audit.StatusClassified,
		Timestamp:  d.now(),
	})
	return a
}

// Submit проводит задачу через гейт и, если разрешено, через Executor.
// Отказ, таймаут и ошибка runner-а: обычные исходы, они возвращаются в TaskRun.
// Ошибка возвращается только если итоговую запись не удалось сохранить.
func (d *Dispatcher) Submit(ctx context.Context, req domain.TaskRequest) (*domain.TaskRun, error) {
	if req.ID == "" {
		req.ID = uuid.New().String()
	}
	start := d.now()

	assessment := d.classifier.Classify(req.Description)
	d.metrics.Submissions.WithLabelValues(string(assessment.Level)).Inc()

	run := &domain.TaskRun{
		ID:          req.ID,
		Description: req.Description,
		Assessment:  assessment,
		TraceID:     infra.TraceIDFromContext(ctx),
		StartedAt:   start,
	}
	log := d.logger.With(
		zap.String("task_id", run.ID),
		zap.String("trace_id", run.TraceID),
		zap.String("level", string(assessment.Level)),
	)

	if assessment.Level.RequiresApproval() {
		run.Status = domain.TaskPendingApproval
		d.record(ctx, run, log)
		d.audit(run, start)

		decision, err := d.approver.RequestApproval(ctx, req, assessment, d.approvalTimeout)
		if err != nil {
			// Fail closed: ошибка гейта не может открыть дорогу к исполнению
			log.Error("approval gate error, refusing to execute", zap.Error(err))
			decision = domain.DecisionTimedOut
		}
		run.Decision = &decision

		if !decision.Permits() {
			log.Info("task not executed", zap.String("decision", string(decision)))
			return d.finish(ctx, run, statusForDecision(decision), start, log)
		}
	}

	// Сюда попадаем только с LOW или APPROVED
	run.Status = domain.TaskRunning
	d.record(ctx, run, log)
	log.Info("dispatching task to executor")

	out, err := d.executor.Execute(ctx, req)
	if err != nil {
		d.metrics.ErrorTotal.WithLabelValues("runner").Inc()
		run.Error = err.Error()
		log.Warn("executor failed", zap.Error(err))
		return d.finish(ctx, run, domain.TaskFailed, start, log)
	}
	run.Output = string(out)
	return d.finish(ctx, run, domain.TaskCompleted, start, log)
}

func (d *Dispatcher) finish(ctx context.Context, run *domain.TaskRun, status domain.TaskStatus, start time.Time, log *zap.Logger) (*domain.TaskRun, error) {
	finished := d.now()
	run.Status = status
	run.FinishedAt = &finished

	d.metrics.Outcomes.WithLabelValues(string(status)).Inc()
	d.metrics.TaskDuration.WithLabelValues(string(status)).Observe(finished.Sub(start).Seconds())
	d.audit(run, start)

	// Запись итога не должна зависеть от того, ушел ли клиент
	if err := d.runs.Put(context.WithoutCancel(ctx), run); err != nil {
		d.metrics.ErrorTotal.WithLabelValues("store").Inc()
		log.Error("failed to store task run", zap.Error(err))
		return run, fmt.Errorf("dispatcher: store run %s: %w", run.ID, err)
	}
	return run, nil
}

func (d *Dispatcher) record(ctx context.Context, run *domain.TaskRun, log *zap.Logger) {
	if err := d.runs.Put(ctx, run); err != nil {
		d.metrics.ErrorTotal.WithLabelValues("store").Inc()
		log.Warn("failed to store intermediate task state", zap.Error(err))
	}
}

func (d *Dispatcher) audit(run *domain.TaskRun, start time.Time) {
	event := audit.AuditEvent{
		ID:         uuid.New().String(),
		TraceID:    run.TraceID,
		TaskID:     run.ID,
		Task:       run.Description,
		RiskLevel:  string(run.Assessment.Level),
		Indicators: run.Assessment.Indicators,
		Status:     auditStatus(run.Status),
		Timestamp:  d.now(),
		DurationMs: d.now().Sub(start).Milliseconds(),
		Error:      run.Error,
	}
	if run.Decision != nil {
		event.Decision = string(*run.Decision)
	}
	if run.Output != "" {
		var resp interface{}
		if err := json.Unmarshal([]byte(run.Output), &resp); err != nil {
			resp = run.Output
		}
		event.Response = resp
	}
	d.auditor.Log(event)
}

func statusForDecision(d domain.ApprovalDecision) domain.TaskStatus {
	if d == domain.DecisionDenied {
		return domain.TaskDenied
	}
	return domain.TaskTimedOut
}

func auditStatus(s domain.TaskStatus) string {
	switch s {
	case domain.TaskPendingApproval:
		return audit.StatusSuspended
	case domain.TaskCompleted:
		return audit.StatusCompleted
	case domain.TaskFailed:
		return audit.StatusFailed
	case domain.TaskDenied:
		return audit.StatusDenied
	case domain.TaskTimedOut:
		return audit.StatusTimedOut
	default:
		return string(s)
	}
}
