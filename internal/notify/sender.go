package notify

import (
	"context"

	"go.uber.org/zap"
)

// Notice — одно уведомление оператору (отказ, сбой исполнения).
type Notice struct {
	Title     string
	Content   string
	Recipient string
}

// Sender доставляет уведомления. Все вызовы best-effort: сбой доставки
// логируется и никогда не откатывает бизнес-операцию.
type Sender interface {
	Send(ctx context.Context, n Notice) error
}

// LogSender — дефолтная реализация: уведомление уходит в структурный
// лог, откуда его подбирает внешний алертинг.
type LogSender struct {
	logger *zap.Logger
}

func NewLogSender(logger *zap.Logger) *LogSender {
	return &LogSender{logger: logger.Named("notify")}
}

func (s *LogSender) Send(_ context.Context, n Notice) error {
	s.logger.Warn("operator notification",
		zap.String("title", n.Title),
		zap.String("recipient", n.Recipient),
		zap.String("content", n.Content),
	)
	return nil
}
