package notify

import (
	"context"
	"strings"

	"go.uber.org/zap"
)

// Sender 把消息交给某种传输；实现需并发安全
type Sender interface {
	Send(ctx context.Context, m Message) error
}

// LogSender 开发环境用：只写日志
type LogSender struct{ L *zap.Logger }

func (s LogSender) Send(_ context.Context, m Message) error {
	s.L.Info("email (log sender)",
		zap.String("to", strings.Join(m.To, ",")),
		zap.String("subject", m.Subject),
		zap.Int("body_len", len(m.Body)),
	)
	return nil
}
