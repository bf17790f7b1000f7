package admission

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/xela07ax/council-autonomy-gate/internal/domain"
)

// Executor выполняет одобренную единицу работы и возвращает ее результат.
// Реализация может приостанавливаться (IO-bound); вызывающая сторона
// обязана не держать замки на профиле доверия и pending-мапе во время Execute
type Executor interface {
	Execute(ctx context.Context, op *domain.Operation) (map[string]interface{}, error)
}

// ExecutionProvider — внешний коннектор для делегируемых типов операций
type ExecutionProvider interface {
	Call(ctx context.Context, capID string, payload []byte) ([]byte, error)
}

// SimulatedExecutor имитирует работу переменной длительности.
// Коммуникационные и внешние API-операции уходят в коннектор
// (обернутый в ReliabilityWrapper), остальные считаются локально
type SimulatedExecutor struct {
	connector ExecutionProvider // nil допустим: всё исполняется локально
}

func NewSimulatedExecutor(connector ExecutionProvider) *SimulatedExecutor {
	return &SimulatedExecutor{connector: connector}
}

func (e *SimulatedExecutor) Execute(ctx context.Context, op *domain.Operation) (map[string]interface{}, error) {
	// Длительность от заявленной оценки, зажатая в рабочий диапазон
	seconds := float64(op.EstimatedDuration) / 60.0
	if seconds < 0.5 {
		seconds = 0.5
	}
	if seconds > 10 {
		seconds = 10
	}
	workTime := time.Duration(seconds * float64(time.Second))

	// Делегируемые типы уходят во внешнюю систему
	if e.connector != nil && (op.Type == domain.OpCommunication || op.Type == domain.OpExternalAPI) {
		return e.delegate(ctx, op)
	}

	select {
	case <-time.After(workTime):
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	results := e.localResults(op, seconds)
	results["execution_time_seconds"] = seconds
	results["agent_id"] = op.AgentID
	results["operation_id"] = op.ID
	return results, nil
}

func (e *SimulatedExecutor) delegate(ctx context.Context, op *domain.Operation) (map[string]interface{}, error) {
	capID := "external.api.call"
	if op.Type == domain.OpCommunication {
		capID = "channel.message.send"
	}

	payload, err := json.Marshal(map[string]interface{}{
		"description": op.Description,
		"actions":     op.RequestedActions,
	})
	if err != nil {
		return nil, fmt.Errorf("payload marshal failed: %w", err)
	}

	resp, err := e.connector.Call(ctx, capID, payload)
	if err != nil {
		return nil, fmt.Errorf("connector call failed: %w", err)
	}

	var results map[string]interface{}
	if err := json.Unmarshal(resp, &results); err != nil {
		return nil, fmt.Errorf("connector response decode failed: %w", err)
	}
	return results, nil
}

// localResults формирует осмысленный результат по типу операции
func (e *SimulatedExecutor) localResults(op *domain.Operation, seconds float64) map[string]interface{} {
	t := int(seconds)
	switch op.Type {
	case domain.OpAnalysis:
		return map[string]interface{}{
			"analysis_type":        "comprehensive",
			"data_points_analyzed": 1000 + t*100,
			"insights_generated":   5 + t,
			"confidence_score":     minInt(95, 70+t*5),
		}
	case domain.OpResearch:
		return map[string]interface{}{
			"research_scope":     "targeted",
			"sources_consulted":  15 + t*3,
			"documents_analyzed": 50 + t*10,
			"relevance_score":    minInt(98, 75+t*4),
		}
	case domain.OpDataProcessing:
		return map[string]interface{}{
			"processing_type":    "batch",
			"records_processed":  5000 + t*1000,
			"data_quality_score": minInt(95, 80+t*3),
		}
	case domain.OpDecisionMaking:
		return map[string]interface{}{
			"decision_framework":      "multi-criteria",
			"criteria_evaluated":      8 + t,
			"alternatives_considered": 5 + t/2,
			"confidence_level":        minInt(92, 75+t*4),
		}
	default:
		return map[string]interface{}{
			"operation_type":    string(op.Type),
			"completion_status": "successful",
		}
	}
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
