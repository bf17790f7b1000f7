package audit

/*
Файл recorder.go реализует асинхронный сборщик аудит-трейла решений шлюза.

Ключевые особенности архитектуры:
- Non-blocking Logging: события уходят в буферизированный канал,
  задержки записи в БД не влияют на время решения по операции.
- Batching: накопление событий и пакетная запись (Bulk Insert)
  в PostgreSQL по таймеру или при достижении лимита.
- Drain Pattern & Graceful Shutdown: при остановке сервиса буфер
  вычитывается полностью (Final Flush), данные не теряются.
*/

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

const flushBatchSize = 100

// StorageInterface определяет, куда физически сохраняются события
type StorageInterface interface {
	// WriteBatch сохраняет пачку событий за один раз
	WriteBatch(ctx context.Context, events []DecisionEvent) error
}

// Recorder — принимающая сторона для всех участников пайплайна допуска
type Recorder interface {
	Record(event DecisionEvent)
}

type Trail struct {
	ch            chan DecisionEvent
	repo          StorageInterface
	logger        *zap.Logger
	flushInterval time.Duration
	wg            sync.WaitGroup
	// Атомарный флаг (0 - открыт, 1 - закрыт): защита от Record после Stop
	isClosed int32
}

func NewTrail(repo StorageInterface, bufferSize int, flushInterval time.Duration, logger *zap.Logger) *Trail {
	if bufferSize <= 0 {
		bufferSize = 10000
	}
	if flushInterval <= 0 {
		flushInterval = 500 * time.Millisecond
	}
	return &Trail{
		ch:            make(chan DecisionEvent, bufferSize),
		repo:          repo,
		logger:        logger.With(zap.String("mod", "audit")),
		flushInterval: flushInterval,
	}
}

func (t *Trail) Start() {
	t.wg.Add(1)
	go t.worker()
}

// Stop «запирает» вход в канал и ждет, пока воркер всё допишет
func (t *Trail) Stop() {
	atomic.StoreInt32(&t.isClosed, 1)

	// Крошечная пауза, чтобы текущие Record успели проскочить
	time.Sleep(10 * time.Millisecond)

	t.logger.Info("stopping audit trail: closing channel and flushing buffer...")
	close(t.ch) // Новые события больше не принимаются
	t.wg.Wait() // Воркер вычитает остатки и сделает финальный flush
	t.logger.Info("audit trail stopped gracefully")
}

func (t *Trail) Record(event DecisionEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	if atomic.LoadInt32(&t.isClosed) == 1 {
		t.logger.Warn("audit event dropped: trail is stopping", zap.String("operation_id", event.OperationID))
		return
	}

	// Load Shedding: при переполнении буфера событие уходит хотя бы в логгер
	select {
	case t.ch <- event:
	default:
		t.logger.Error("audit_buffer_overflow",
			zap.String("operation_id", event.OperationID),
			zap.String("agent_id", event.AgentID),
			zap.String("stage", event.Stage),
		)
	}
}

func (t *Trail) worker() {
	defer t.wg.Done()

	batch := make([]DecisionEvent, 0, flushBatchSize)
	ticker := time.NewTicker(t.flushInterval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) > 0 {
			// Background: основной контекст на этапе останова уже закрыт
			if err := t.repo.WriteBatch(context.Background(), batch); err != nil {
				t.logger.Error("audit flush failed", zap.Error(err))
			}
			batch = batch[:0]
		}
	}

	for {
		select {
		case event, ok := <-t.ch:
			if !ok {
				// Канал закрыт в Stop(): вычитали всё — финальный сброс и выход
				flush()
				t.logger.Info("audit worker finished")
				return
			}
			batch = append(batch, event)
			if len(batch) >= flushBatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

// NopRecorder — заглушка для тестов и чисто In-memory конфигураций
type NopRecorder struct{}

func (NopRecorder) Record(DecisionEvent) {}
