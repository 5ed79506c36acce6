// Package eventbus - шина событий в памяти процесса с подпиской по темам.
//
// Доставка "выстрелил и забыл": без подтверждений, повторов и хранения.
// Подписчик, которого не было в момент публикации, событие не получит.
package eventbus

import (
	"encoding/json"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/shenikar/disaster_coordination_system/internal/observability"
	"github.com/sirupsen/logrus"
)

// Bus - реестр подписок и рассылка событий по темам
type Bus struct {
	mu     sync.RWMutex
	topics map[string]map[*Subscription]struct{}

	bufferSize int
	clock      clockwork.Clock
	logger     *logrus.Logger
	metrics    *observability.Metrics
}

// NewBus создает шину; bufferSize - размер очереди каждого подписчика
func NewBus(bufferSize int, clock clockwork.Clock, logger *logrus.Logger, metrics *observability.Metrics) *Bus {
	if bufferSize <= 0 {
		bufferSize = 1
	}
	return &Bus{
		topics:     make(map[string]map[*Subscription]struct{}),
		bufferSize: bufferSize,
		clock:      clock,
		logger:     logger,
		metrics:    metrics,
	}
}

// Publish рассылает событие всем текущим подписчикам темы и никогда не блокируется.
// Если очередь подписчика заполнена, событие для него отбрасывается.
func (b *Bus) Publish(topic string, eventType EventType, entityID string, data any) {
	log := b.logger.WithFields(logrus.Fields{
		"component": "eventbus",
		"topic":     topic,
		"type":      eventType,
		"entity_id": entityID,
	})

	event := Event{
		Type:       eventType,
		Topic:      topic,
		EntityID:   entityID,
		OccurredAt: b.clock.Now().UTC(),
	}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			log.WithError(err).Error("Failed to encode event payload, event discarded")
			return
		}
		event.Data = raw
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	b.metrics.EventsPublished.WithLabelValues(string(eventType)).Inc()
	for sub := range b.topics[topic] {
		select {
		case sub.ch <- event:
		default:
			b.metrics.EventsDropped.WithLabelValues(string(eventType)).Inc()
			log.Warn("Subscriber queue is full, event dropped")
		}
	}
}

// Subscribe регистрирует подписку на тему. Подписка действует до Unsubscribe.
func (b *Bus) Subscribe(topic string) *Subscription {
	sub := &Subscription{
		bus:   b,
		topic: topic,
		ch:    make(chan Event, b.bufferSize),
	}

	b.mu.Lock()
	subs, ok := b.topics[topic]
	if !ok {
		subs = make(map[*Subscription]struct{})
		b.topics[topic] = subs
	}
	subs[sub] = struct{}{}
	b.mu.Unlock()

	b.metrics.ActiveSubscribers.Inc()
	b.logger.WithFields(logrus.Fields{"component": "eventbus", "topic": topic}).Debug("Subscriber joined")
	return sub
}

// SubscriberCount возвращает число активных подписок на тему
func (b *Bus) SubscriberCount(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.topics[topic])
}

// Close отменяет все подписки
func (b *Bus) Close() {
	b.mu.RLock()
	var all []*Subscription
	for _, subs := range b.topics {
		for sub := range subs {
			all = append(all, sub)
		}
	}
	b.mu.RUnlock()

	for _, sub := range all {
		sub.Unsubscribe()
	}
}

func (b *Bus) remove(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if subs, ok := b.topics[sub.topic]; ok {
		delete(subs, sub)
		if len(subs) == 0 {
			delete(b.topics, sub.topic)
		}
	}
	// канал закрывается под блокировкой записи, поэтому Publish не может писать в закрытый канал
	close(sub.ch)
}

// Subscription - подписка на одну тему
type Subscription struct {
	bus   *Bus
	topic string
	ch    chan Event
	once  sync.Once
}

// Topic возвращает тему подписки
func (s *Subscription) Topic() string {
	return s.topic
}

// Events возвращает канал событий; канал закрывается после Unsubscribe
func (s *Subscription) Events() <-chan Event {
	return s.ch
}

// Unsubscribe освобождает подписку. Повторный вызов ничего не делает.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.bus.remove(s)
		s.bus.metrics.ActiveSubscribers.Dec()
		s.bus.logger.WithFields(logrus.Fields{"component": "eventbus", "topic": s.topic}).Debug("Subscriber left")
	})
}
