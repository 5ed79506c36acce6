package eventbus

import (
	"context"

	"github.com/sirupsen/logrus"
)

// Sink - внешний получатель событий (брокер сообщений, очередь вебхуков)
type Sink interface {
	Publish(ctx context.Context, event Event) error
}

// Relay пересылает события подписки во внешний получатель, пока не отменён ctx
// или не закрыта подписка. Ошибки получателя логируются без повторов.
func Relay(ctx context.Context, sub *Subscription, name string, sink Sink, logger *logrus.Logger) {
	log := logger.WithFields(logrus.Fields{"component": "eventbus", "sink": name, "topic": sub.Topic()})
	log.Info("Starting event relay...")
	defer sub.Unsubscribe()

	for {
		select {
		case <-ctx.Done():
			log.Info("Stopping event relay.")
			return
		case event, ok := <-sub.Events():
			if !ok {
				log.Info("Subscription closed, stopping event relay.")
				return
			}
			if err := sink.Publish(ctx, event); err != nil {
				log.WithError(err).WithField("type", event.Type).Warn("Failed to relay event")
			}
		}
	}
}
