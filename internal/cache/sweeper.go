package cache

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
)

// Sweeper периодически удаляет истёкшие записи, ограничивая рост кэша
// записями, которые никто больше не читает
type Sweeper struct {
	store    *Store
	interval time.Duration
	clock    clockwork.Clock
	logger   *logrus.Logger
	done     chan struct{}
}

// NewSweeper создает фоновую задачу очистки кэша
func NewSweeper(store *Store, interval time.Duration, clock clockwork.Clock, logger *logrus.Logger) *Sweeper {
	return &Sweeper{
		store:    store,
		interval: interval,
		clock:    clock,
		logger:   logger,
		done:     make(chan struct{}),
	}
}

// Start запускает горутину очистки; первая очистка выполняется сразу
func (s *Sweeper) Start(ctx context.Context) {
	s.logger.WithField("interval", s.interval.String()).Info("Starting cache sweeper...")
	go func() {
		defer close(s.done)

		s.sweep(ctx)
		ticker := s.clock.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				s.logger.Info("Stopping cache sweeper.")
				return
			case <-ticker.Chan():
				s.sweep(ctx)
			}
		}
	}()
}

// Done закрывается после остановки горутины
func (s *Sweeper) Done() <-chan struct{} {
	return s.done
}

func (s *Sweeper) sweep(ctx context.Context) {
	removed := s.store.Sweep(ctx)
	s.logger.WithField("removed", removed).Debug("Cache sweep completed")
}
