package notify

import (
	"context"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

type Notifier interface {
	Send(ctx context.Context, title, text string) error
}

// Multi fans a message out to every notifier and combines their errors.
type Multi []Notifier

func (m Multi) Send(ctx context.Context, title, text string) error {
	var err error
	for _, n := range m {
		if n == nil {
			continue
		}
		err = multierr.Append(err, n.Send(ctx, title, text))
	}
	return err
}

// Log writes notifications to a zap logger. Useful when no webhook is set.
type Log struct {
	L *zap.Logger
}

func (l Log) Send(_ context.Context, title, text string) error {
	if l.L != nil {
		l.L.Info("notification", zap.String("title", title), zap.String("text", text))
	}
	return nil
}
