package admission

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/xela07ax/council-autonomy-gate/internal/connectors"
)

// ReliabilityWrapper защищает внешний коннектор исполнителя:
// Rate Limiter → Circuit Breaker → Retries с умным бэкоффом
type ReliabilityWrapper struct {
	next    ExecutionProvider
	cb      *gobreaker.CircuitBreaker
	limiter *rate.Limiter
}

type ReliabilitySettings struct {
	CBMaxRequests uint32
	CBInterval    time.Duration
	CBTimeout     time.Duration
}

func NewReliabilityWrapper(next ExecutionProvider, s ReliabilitySettings) *ReliabilityWrapper {
	if s.CBMaxRequests == 0 {
		s.CBMaxRequests = 3
	}
	if s.CBInterval == 0 {
		s.CBInterval = 5 * time.Second
	}
	if s.CBTimeout == 0 {
		s.CBTimeout = 30 * time.Second
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "gate-connector",
		MaxRequests: s.CBMaxRequests,
		Interval:    s.CBInterval,
		Timeout:     s.CBTimeout, // Пауза перед пробными запросами после размыкания
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			// Шестой подряд провал коннектора размыкает цепь
			return counts.ConsecutiveFailures > 5
		},
	})

	// 100 rps с запасом на всплеск: делегированные операции агентов
	// не должны заваливать внешний канал
	limiter := rate.NewLimiter(rate.Limit(100), 20)

	return &ReliabilityWrapper{
		next:    next,
		cb:      cb,
		limiter: limiter,
	}
}

// throttleAwareDelay выбирает паузу между попытками: троттлинг
// коннектора диктует ее сам через Retry-After, все остальные ошибки
// идут по экспоненциальному бэкоффу
func throttleAwareDelay(n uint, err error, config retry.DelayContext) time.Duration {
	var tErr *connectors.ThrottleError
	if errors.As(err, &tErr) {
		return tErr.RetryAfter
	}
	return retry.BackOffDelay(n, err, config)
}

// Call проводит делегированную операцию через всю цепочку защиты.
// Лимитер стоит первым: нет смысла тратить бюджет предохранителя
// на заведомо избыточный трафик
func (w *ReliabilityWrapper) Call(ctx context.Context, capID string, payload []byte) ([]byte, error) {
	if err := w.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit exceeded: %w", err)
	}

	var finalData []byte

	// Внутри предохранителя — до трех попыток доставки, каждая со своим
	// таймаутом, чтобы зависший коннектор не съел весь дедлайн операции
	cbResult, err := w.cb.Execute(func() (interface{}, error) {
		r := retry.New(
			retry.Context(ctx),
			retry.Attempts(3),
			retry.DelayType(throttleAwareDelay),
		)

		retryErr := r.Do(func() error {
			tCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()

			var callErr error
			finalData, callErr = w.next.Call(tCtx, capID, payload)
			return callErr
		})

		return finalData, retryErr
	})

	if err != nil {
		return nil, err
	}

	return cbResult.([]byte), nil
}
