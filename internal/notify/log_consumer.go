package notify

import (
	"context"

	"go.uber.org/zap"
)

// LogConsumer logs every bus event at debug level.
type LogConsumer struct {
	log *zap.Logger
}

func NewLogConsumer(log *zap.Logger) *LogConsumer { return &LogConsumer{log: log} }

func (c *LogConsumer) HandleEvent(_ context.Context, evt Event) error {
	switch evt.Type {
	case EventToast:
		if evt.Toast != nil {
			c.log.Debug("toast",
				zap.String("level", string(evt.Toast.Level)),
				zap.String("message", evt.Toast.Message))
		}
	case EventInvalidate:
		c.log.Debug("invalidate", zap.Strings("keys", evt.Keys))
	}
	return nil
}
