package admission

import (
	"context"

	"go.uber.org/zap"
)

// Worker — потребитель очереди исполнения. Несколько воркеров безопасны:
// канал гарантирует, что один id достанется ровно одному из них
type Worker struct {
	controller *Controller
	logger     *zap.Logger
}

func NewWorker(c *Controller, logger *zap.Logger) *Worker {
	return &Worker{controller: c, logger: logger.Named("worker")}
}

// Run блокируется до отмены контекста. Ошибка одной операции
// не останавливает обработку очереди
func (w *Worker) Run(ctx context.Context) {
	w.logger.Info("execution worker started")

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("execution worker stopping by context...")
			return
		case operationID, ok := <-w.controller.queue:
			if !ok {
				w.logger.Info("execution queue closed")
				return
			}
			w.controller.metrics.QueueDepth.Set(float64(len(w.controller.queue)))

			if _, err := w.controller.execute(ctx, operationID); err != nil {
				w.logger.Error("operation execution error",
					zap.String("operation_id", operationID),
					zap.Error(err))
			}
		}
	}
}
