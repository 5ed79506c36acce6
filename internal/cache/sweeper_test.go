package cache

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestSweeper_SweepsOnStartAndOnTick(t *testing.T) {
	defer goleak.VerifyNone(t)

	store, backend, clock := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger := logrus.New()
	logger.SetOutput(&bytes.Buffer{})

	store.Set(ctx, "stale", "v", time.Minute)
	clock.Advance(2 * time.Minute)

	sweeper := NewSweeper(store, time.Hour, clock, logger)
	sweeper.Start(ctx)

	// горутина выполнила первую очистку и ждёт на тикере
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	require.Equal(t, 0, backend.Len())

	store.Set(ctx, "next", "v", 30*time.Minute)
	clock.Advance(time.Hour)

	require.Eventually(t, func() bool { return backend.Len() == 0 }, time.Second, 5*time.Millisecond)

	cancel()
	<-sweeper.Done()
}
