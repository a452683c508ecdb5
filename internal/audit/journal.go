package audit

/*
Файл journal.go: журнал решений гейта (Audit Trail).

- Non-blocking: Log никогда не блокирует диспетчер. При переполнении буфера
  событие сбрасывается в zap (Load Shedding).
- Batching: события копятся и пишутся пачкой по таймеру или по размеру пачки.
- Drain Pattern: Stop закрывает вход, воркер вычитывает остаток и делает финальный flush.
*/

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// StorageInterface определяет, куда физически будут сохраняться события
type StorageInterface interface {
	// WriteBatch сохраняет пачку событий за один раз
	WriteBatch(ctx context.Context, events []AuditEvent) error
}

type Auditor interface {
	Log(event AuditEvent)
}

type Options struct {
	BufferSize    int
	BatchSize     int
	FlushInterval time.Duration
	// BufferFill, если задан, показывает заполненность буфера (backpressure)
	BufferFill prometheus.Gauge
}

func (o *Options) withDefaults() {
	if o.BufferSize <= 0 {
		o.BufferSize = 1000
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 100
	}
	if o.FlushInterval <= 0 {
		o.FlushInterval = 500 * time.Millisecond
	}
}

type Journal struct {
	ch     chan AuditEvent
	repo   StorageInterface
	opts   Options
	logger *zap.Logger
	wg     sync.WaitGroup

	closed    atomic.Bool
	closeOnce sync.Once
	// sendMu не дает закрыть канал, пока идет отправка в Log
	sendMu sync.RWMutex
}

func NewJournal(repo StorageInterface, opts Options, logger *zap.Logger) *Journal {
	opts.withDefaults()
	return &Journal{
		ch:     make(chan AuditEvent, opts.BufferSize),
		repo:   repo,
		opts:   opts,
		logger: logger.With(zap.String("mod", "audit-journal")),
	}
}

func (j *Journal) Start() {
	j.wg.Add(1)
	go j.worker()
}

// Stop «запирает» вход в канал и ждет, пока воркер всё допишет.
func (j *Journal) Stop() {
	j.closeOnce.Do(func() {
		j.logger.Info("stopping auditor: closing channel and flushing buffer...")
		j.sendMu.Lock()
		j.closed.Store(true)
		close(j.ch)
		j.sendMu.Unlock()

		j.wg.Wait()
		j.logger.Info("auditor stopped gracefully")
	})
}

func (j *Journal) Log(event AuditEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	j.sendMu.RLock()
	defer j.sendMu.RUnlock()

	if j.closed.Load() {
		j.logger.Warn("audit event dropped: auditor is stopping", zap.String("id", event.ID))
		return
	}

	select {
	case j.ch <- event:
		j.reportFill()
	default:
		// Буфер переполнен: не блокируем диспетчер, но и не теряем след в логах
		j.logger.Error("audit_buffer_overflow",
			zap.String("task_id", event.TaskID),
			zap.String("trace_id", event.TraceID),
			zap.String("status", event.Status),
		)
	}
}

func (j *Journal) reportFill() {
	if j.opts.BufferFill != nil {
		j.opts.BufferFill.Set(float64(len(j.ch)))
	}
}

func (j *Journal) worker() {
	defer j.wg.Done()

	batch := make([]AuditEvent, 0, j.opts.BatchSize)
	ticker := time.NewTicker(j.opts.FlushInterval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		// Используем Background, так как основной контекст может быть уже закрыт
		if err := j.repo.WriteBatch(context.Background(), batch); err != nil {
			j.logger.Error("audit flush failed", zap.Int("events", len(batch)), zap.Error(err))
		}
		batch = make([]AuditEvent, 0, j.opts.BatchSize)
		j.reportFill()
	}

	for {
		select {
		case event, ok := <-j.ch:
			if !ok {
				flush() // Финальный сброс
				j.logger.Info("audit worker finished")
				return
			}
			batch = append(batch, event)
			if len(batch) >= j.opts.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

// LogStorage — хранилище для запуска без Postgres: события уходят в zap.
type LogStorage struct {
	logger *zap.Logger
}

func NewLogStorage(logger *zap.Logger) *LogStorage {
	return &LogStorage{logger: logger.Named("audit")}
}

func (s *LogStorage) WriteBatch(_ context.Context, events []AuditEvent) error {
	for _, e := range events {
		s.logger.Info("audit",
			zap.String("task_id", e.TaskID),
			zap.String("trace_id", e.TraceID),
			zap.String("risk_level", e.RiskLevel),
			zap.Strings("indicators", e.Indicators),
			zap.String("decision", e.Decision),
			zap.String("status", e.Status),
			zap.Int64("duration_ms", e.DurationMs),
		)
	}
	return nil
}
