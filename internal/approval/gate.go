package approval

/*
Файл gate.go: точка приостановки задачи до решения оператора (Human-in-the-loop).

Порядок важен:
  1. Подписка на канал решений заявки.
  2. Запись PENDING заявки (с этого момента ее видит оператор).
  3. Уведомление оператора.
  4. Ожидание: решение, таймер или отмена контекста вызывающего.

Итог фиксируется атомарным переходом PENDING -> терминальный статус в Store.
Если решение оператора и таймаут пришли одновременно, выигрывает тот переход,
который успел первым, и гейт возвращает именно сохраненное значение.
*/

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/xela07ax/spaceai-taskgate/internal/domain"
	"go.uber.org/zap"
)

// DefaultTimeout — сколько задача ждет оператора, если вызывающий не указал иное.
const DefaultTimeout = 60 * time.Second

// resolveTimeout ограничивает финальную запись, когда контекст вызывающего уже отменен.
const resolveTimeout = 5 * time.Second

type Gate struct {
	store    Store
	broker   Broker
	notifier Notifier
	metrics  *Metrics
	logger   *zap.Logger

	defaultTimeout time.Duration
	now            func() time.Time
}

type GateOption func(*Gate)

func WithDefaultTimeout(d time.Duration) GateOption {
	return func(g *Gate) {
		if d > 0 {
			g.defaultTimeout = d
		}
	}
}

func WithGateMetrics(m *Metrics) GateOption {
	return func(g *Gate) { g.metrics = m }
}

func WithClock(now func() time.Time) GateOption {
	return func(g *Gate) { g.now = now }
}

func NewGate(store Store, broker Broker, notifier Notifier, logger *zap.Logger, opts ...GateOption) *Gate {
	g := &Gate{
		store:          store,
		broker:         broker,
		notifier:       notifier,
		logger:         logger.Named("approval-gate"),
		defaultTimeout: DefaultTimeout,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.metrics == nil {
		g.metrics = NewMetrics(nil)
	}
	return g
}

// RequestApproval блокирует вызывающую горутину до решения по задаче.
// Ошибку возвращает только при нарушении предусловия (уровень LOW).
// Любая поломка инфраструктуры деградирует в TIMED_OUT, который трактуется как отказ.
func (g *Gate) RequestApproval(ctx context.Context, task domain.TaskRequest, assessment domain.RiskAssessment, timeout time.Duration) (domain.ApprovalDecision, error) {
	if !assessment.Level.RequiresApproval() {
		return "", domain.ErrApprovalNotRequired
	}
	if timeout <= 0 {
		timeout = g.defaultTimeout
	}

	start := g.now()
	req := &domain.ApprovalRequest{
		ID:          uuid.New().String(),
		TaskID:      task.ID,
		Description: task.Description,
		Level:       assessment.Level,
		Indicators:  append([]string{}, assessment.Indicators...),
		Status:      domain.StatusPending,
		CreatedAt:   start,
		ExpiresAt:   start.Add(timeout),
	}
	log := g.logger.With(
		zap.String("approval_id", req.ID),
		zap.String("task_id", task.ID),
		zap.String("level", string(req.Level)),
	)

	// 1. Подписка раньше, чем заявка станет видна оператору
	sub, err := g.broker.Subscribe(ctx, req.ID)
	if err != nil {
		log.Error("decision channel unavailable, treating as timeout", zap.Error(err))
		return g.observe(domain.DecisionTimedOut, start), nil
	}
	defer sub.Close()

	// 2. Persistence
	if err := g.store.Create(ctx, req); err != nil {
		log.Error("failed to persist approval request, treating as timeout", zap.Error(err))
		return g.observe(domain.DecisionTimedOut, start), nil
	}
	g.metrics.Requests.WithLabelValues(string(req.Level)).Inc()
	g.metrics.Pending.Inc()
	defer g.metrics.Pending.Dec()

	// 3. Уведомление оператора
	if err := g.notifier.Notify(ctx, noticeFor(req)); err != nil {
		log.Error("operator notification failed, treating as timeout", zap.Error(err))
		return g.observe(g.resolve(req.ID, domain.StatusTimedOut, "", "notification failed", log), start), nil
	}

	log.Info("task suspended pending approval", zap.Duration("timeout", timeout))

	// 4. Ожидание
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var decision domain.ApprovalDecision
	select {
	case v, ok := <-sub.C():
		if !ok {
			log.Warn("decision channel closed while waiting")
			decision = g.resolve(req.ID, domain.StatusTimedOut, "", "decision channel closed", log)
			break
		}
		decision = g.resolve(req.ID, statusFor(v.Decision), v.ReviewerID, v.Comment, log)
	case <-timer.C:
		decision = g.resolve(req.ID, domain.StatusTimedOut, "", "", log)
	case <-ctx.Done():
		log.Info("caller gave up waiting", zap.Error(ctx.Err()))
		decision = g.resolve(req.ID, domain.StatusTimedOut, "", "caller cancelled", log)
	}

	log.Info("approval gate resolved", zap.String("decision", string(decision)))
	return g.observe(decision, start), nil
}

// resolve фиксирует переход в Store. Если переход уже сделал кто-то другой
// (консоль записала решение до публикации сигнала), возвращает сохраненный итог.
func (g *Gate) resolve(id string, status domain.ApprovalStatus, reviewerID, comment string, log *zap.Logger) domain.ApprovalDecision {
	ctx, cancel := context.WithTimeout(context.Background(), resolveTimeout)
	defer cancel()

	updated, err := g.store.Resolve(ctx, id, status, reviewerID, comment, g.now())
	if err == nil {
		if d, ok := updated.Status.Decision(); ok {
			return d
		}
	}
	if err != nil && !errors.Is(err, domain.ErrAlreadyProcessed) {
		log.Error("failed to persist approval outcome", zap.String("status", string(status)), zap.Error(err))
		return domain.DecisionTimedOut
	}

	current, err := g.store.Get(ctx, id)
	if err != nil {
		log.Error("failed to read approval outcome", zap.Error(err))
		return domain.DecisionTimedOut
	}
	if d, ok := current.Status.Decision(); ok {
		return d
	}
	return domain.DecisionTimedOut
}

func (g *Gate) observe(d domain.ApprovalDecision, start time.Time) domain.ApprovalDecision {
	g.metrics.Decisions.WithLabelValues(string(d)).Inc()
	g.metrics.WaitDuration.WithLabelValues(string(d)).Observe(g.now().Sub(start).Seconds())
	return d
}

// statusFor — неизвестное решение в сигнале не может разрешить исполнение.
func statusFor(d domain.ApprovalDecision) domain.ApprovalStatus {
	switch d {
	case domain.DecisionApproved:
		return domain.StatusApproved
	case domain.DecisionDenied:
		return domain.StatusDenied
	default:
		return domain.StatusTimedOut
	}
}
