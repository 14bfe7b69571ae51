package upstream

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"
)

// APICall — параметры отложенного запроса, восстановленные из
// request_data одобренной заявки.
type APICall struct {
	TargetURL string            `json:"targetUrl"`
	Method    string            `json:"method"`
	Headers   map[string]string `json:"headers,omitempty"`
	Body      interface{}       `json:"body,omitempty"`
}

// Caller — провайдер исполнения исходящих вызовов. Возвращает ответ
// апстрима в форме {statusCode, headers, body}.
type Caller interface {
	Call(ctx context.Context, agentBaseURL string, call APICall) (map[string]interface{}, error)
}

// SimulatedCaller — имитация апстрима. Реальный форвардинг живет на
// шлюзе, ядру для исполнения одобренных действий достаточно заглушки
// с правдоподобной задержкой.
type SimulatedCaller struct{}

func (c *SimulatedCaller) Call(ctx context.Context, agentBaseURL string, call APICall) (map[string]interface{}, error) {
	// Имитируем задержку 50-300мс
	latency := time.Duration(50+rand.IntN(250)) * time.Millisecond

	select {
	case <-time.After(latency):
		// Имитация работы
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if call.TargetURL == "" {
		return nil, fmt.Errorf("target url is empty")
	}
	if strings.Contains(call.TargetURL, "unstable") {
		return nil, fmt.Errorf("service internal error")
	}

	return map[string]interface{}{
		"statusCode": 200,
		"headers":    map[string]interface{}{"Content-Type": "application/json"},
		"body": map[string]interface{}{
			"status":   "executed",
			"endpoint": call.TargetURL,
			"method":   strings.ToUpper(call.Method),
		},
	}, nil
}
