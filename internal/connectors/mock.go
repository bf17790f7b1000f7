package connectors

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"time"
)

// MockChannelConnector имитирует внешние системы, в которые шлюз
// делегирует коммуникационные и API-операции агентов
type MockChannelConnector struct{}

func (c *MockChannelConnector) Call(ctx context.Context, capID string, payload []byte) ([]byte, error) {
	// Имитируем задержку 50-300мс
	latency := time.Duration(50+rand.IntN(250)) * time.Millisecond

	select {
	case <-time.After(latency):
		// Имитация работы
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	var req map[string]interface{}
	_ = json.Unmarshal(payload, &req)

	switch capID {
	case "channel.message.send":
		resp := map[string]interface{}{
			"status":             "sent",
			"messages_sent":      3 + rand.IntN(5),
			"recipients_reached": 10 + rand.IntN(20),
		}
		return json.Marshal(resp)

	case "external.api.call":
		resp := map[string]interface{}{
			"status":     "ok",
			"latency_ms": latency.Milliseconds(),
			"echo":       req,
		}
		return json.Marshal(resp)

	case "unstable.service":
		return nil, fmt.Errorf("service internal error")

	default:
		return nil, fmt.Errorf("capability %s not supported by connector", capID)
	}
}
